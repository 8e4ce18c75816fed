package creation

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/suPer8Hu/adforge/internal/models"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

const mongoCollection = "creations"

// mongoCreation is the document shape; input/output are stored as real
// sub-documents rather than opaque bytes so they stay queryable.
type mongoCreation struct {
	ID        string    `bson:"_id"`
	Type      string    `bson:"type"`
	UserID    uint64    `bson:"user"`
	ProjectID *string   `bson:"project,omitempty"`
	Input     any       `bson:"input"`
	Output    any       `bson:"output"`
	Rating    *int      `bson:"rating,omitempty"`
	CreatedAt time.Time `bson:"createdAt"`
	UpdatedAt time.Time `bson:"updatedAt"`
}

type MongoStore struct {
	coll *mongo.Collection
}

func ConnectMongo(ctx context.Context, uri, database string) (*mongo.Client, error) {
	cctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	client, err := mongo.Connect(cctx, options.Client().ApplyURI(uri))
	if err != nil {
		return nil, fmt.Errorf("mongo connect: %w", err)
	}
	if err := client.Ping(cctx, nil); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, fmt.Errorf("mongo ping: %w", err)
	}
	return client, nil
}

func NewMongoStore(ctx context.Context, db *mongo.Database) (*MongoStore, error) {
	coll := db.Collection(mongoCollection)
	_, err := coll.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys: bson.D{{Key: "user", Value: 1}, {Key: "type", Value: 1}, {Key: "_id", Value: -1}},
	})
	if err != nil {
		return nil, fmt.Errorf("mongo index: %w", err)
	}
	return &MongoStore{coll: coll}, nil
}

func (s *MongoStore) CreateMany(ctx context.Context, items []*models.Creation) error {
	if len(items) == 0 {
		return nil
	}
	stamp(items)
	docs := make([]any, 0, len(items))
	for _, c := range items {
		d, err := toMongo(c)
		if err != nil {
			return err
		}
		docs = append(docs, d)
	}
	_, err := s.coll.InsertMany(ctx, docs)
	return err
}

func (s *MongoStore) Get(ctx context.Context, userID uint64, id string) (*models.Creation, error) {
	var d mongoCreation
	err := s.coll.FindOne(ctx, bson.M{"_id": id, "user": userID}).Decode(&d)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return fromMongo(d)
}

func (s *MongoStore) List(ctx context.Context, userID uint64, opts ListOptions) ([]models.Creation, error) {
	filter := bson.M{"user": userID}
	if opts.Type != "" {
		filter["type"] = opts.Type
	}
	if opts.BeforeID != "" {
		filter["_id"] = bson.M{"$lt": opts.BeforeID}
	}
	findOpts := options.Find().
		SetSort(bson.D{{Key: "_id", Value: -1}}).
		SetLimit(int64(opts.Limit))

	cur, err := s.coll.Find(ctx, filter, findOpts)
	if err != nil {
		return nil, err
	}
	defer cur.Close(ctx)

	var out []models.Creation
	for cur.Next(ctx) {
		var d mongoCreation
		if err := cur.Decode(&d); err != nil {
			return nil, err
		}
		c, err := fromMongo(d)
		if err != nil {
			return nil, err
		}
		out = append(out, *c)
	}
	return out, cur.Err()
}

func (s *MongoStore) SetRating(ctx context.Context, userID uint64, id string, rating int) error {
	if !validRating(rating) {
		return ErrInvalidRating
	}
	res, err := s.coll.UpdateOne(ctx,
		bson.M{"_id": id, "user": userID},
		bson.M{"$set": bson.M{"rating": rating, "updatedAt": time.Now().UTC()}},
	)
	if err != nil {
		return err
	}
	if res.MatchedCount == 0 {
		return ErrNotFound
	}
	return nil
}

func toMongo(c *models.Creation) (mongoCreation, error) {
	d := mongoCreation{
		ID:        c.ID,
		Type:      c.Type,
		UserID:    c.UserID,
		ProjectID: c.ProjectID,
		Rating:    c.Rating,
		CreatedAt: c.CreatedAt,
		UpdatedAt: c.UpdatedAt,
	}
	if err := decodeJSON(c.Input, &d.Input); err != nil {
		return d, fmt.Errorf("creation %s input: %w", c.ID, err)
	}
	if err := decodeJSON(c.Output, &d.Output); err != nil {
		return d, fmt.Errorf("creation %s output: %w", c.ID, err)
	}
	return d, nil
}

func fromMongo(d mongoCreation) (*models.Creation, error) {
	in, err := encodeJSON(d.Input)
	if err != nil {
		return nil, err
	}
	out, err := encodeJSON(d.Output)
	if err != nil {
		return nil, err
	}
	return &models.Creation{
		ID:        d.ID,
		Type:      d.Type,
		UserID:    d.UserID,
		ProjectID: d.ProjectID,
		Input:     in,
		Output:    out,
		Rating:    d.Rating,
		CreatedAt: d.CreatedAt,
		UpdatedAt: d.UpdatedAt,
	}, nil
}

func decodeJSON(raw []byte, dst *any) error {
	if len(raw) == 0 {
		*dst = nil
		return nil
	}
	return json.Unmarshal(raw, dst)
}

// encodeJSON goes through bson's relaxed extended JSON so nested
// primitive.D / primitive.A values come back as plain JSON.
func encodeJSON(v any) ([]byte, error) {
	if v == nil {
		return []byte("null"), nil
	}
	b, err := bson.MarshalExtJSON(bson.M{"v": v}, false, false)
	if err != nil {
		return nil, err
	}
	var wrapped struct {
		V json.RawMessage `json:"v"`
	}
	if err := json.Unmarshal(b, &wrapped); err != nil {
		return nil, err
	}
	return wrapped.V, nil
}
