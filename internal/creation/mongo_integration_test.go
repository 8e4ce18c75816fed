//go:build integration

package creation_test

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/suPer8Hu/adforge/internal/creation"
	"github.com/suPer8Hu/adforge/internal/models"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
	"gorm.io/datatypes"
)

func startMongo(t *testing.T, ctx context.Context) string {
	t.Helper()
	c, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: testcontainers.ContainerRequest{
			Image:        "mongo:7",
			ExposedPorts: []string{"27017/tcp"},
			WaitingFor:   wait.ForListeningPort("27017/tcp").WithStartupTimeout(60 * time.Second),
		},
		Started: true,
	})
	require.NoError(t, err, "should start mongo container")
	t.Cleanup(func() { _ = c.Terminate(context.Background()) })

	host, err := c.Host(ctx)
	require.NoError(t, err)
	port, err := c.MappedPort(ctx, "27017/tcp")
	require.NoError(t, err)
	return fmt.Sprintf("mongodb://%s:%s", host, port.Port())
}

func TestMongoStoreRoundTrip(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	client, err := creation.ConnectMongo(ctx, startMongo(t, ctx), "adforge_test")
	require.NoError(t, err)
	defer client.Disconnect(ctx)

	store, err := creation.NewMongoStore(ctx, client.Database("adforge_test"))
	require.NoError(t, err)

	items := []*models.Creation{
		{ID: "01J0000000000000000000000A", Type: "faq", UserID: 1, Input: datatypes.JSON(`{"adId":"x"}`), Output: datatypes.JSON(`{"q":"why","a":"because"}`)},
		{ID: "01J0000000000000000000000B", Type: "faq", UserID: 1, Input: datatypes.JSON(`{"adId":"x"}`), Output: datatypes.JSON(`{"q":"how","a":"like so"}`)},
		{ID: "01J0000000000000000000000C", Type: "seo", UserID: 2, Input: datatypes.JSON(`{}`), Output: datatypes.JSON(`{"keywords":["a","b"]}`)},
	}
	require.NoError(t, store.CreateMany(ctx, items))

	got, err := store.Get(ctx, 1, items[0].ID)
	require.NoError(t, err)
	assert.Equal(t, "faq", got.Type)
	assert.JSONEq(t, `{"q":"why","a":"because"}`, string(got.Output))

	_, err = store.Get(ctx, 2, items[0].ID)
	assert.ErrorIs(t, err, creation.ErrNotFound)

	list, err := store.List(ctx, 1, creation.ListOptions{Type: "faq", Limit: 10})
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, items[1].ID, list[0].ID, "newest first")

	require.NoError(t, store.SetRating(ctx, 1, items[0].ID, 5))
	got, err = store.Get(ctx, 1, items[0].ID)
	require.NoError(t, err)
	require.NotNil(t, got.Rating)
	assert.Equal(t, 5, *got.Rating)

	assert.ErrorIs(t, store.SetRating(ctx, 1, "missing", 3), creation.ErrNotFound)
	assert.ErrorIs(t, store.SetRating(ctx, 1, items[0].ID, 0), creation.ErrInvalidRating)

	seo, err := store.Get(ctx, 2, items[2].ID)
	require.NoError(t, err)
	assert.JSONEq(t, `{"keywords":["a","b"]}`, string(seo.Output))
}
