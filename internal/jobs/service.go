// Package jobs implements the start / query / end lifecycle of generation
// jobs and the composite records that tie several jobs to one ad.
package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/rs/zerolog"

	"github.com/suPer8Hu/adforge/internal/assets"
	"github.com/suPer8Hu/adforge/internal/common"
	"github.com/suPer8Hu/adforge/internal/models"
)

const DefaultCompositeType = "ad"

type Persister interface {
	Persist(ctx context.Context, userID uint64, typ string, input json.RawMessage, outputs []json.RawMessage) ([]*models.Creation, error)
}

type Limiter interface {
	Allow(ctx context.Context, key string, limit int, window time.Duration) (bool, error)
}

type Service struct {
	store      *Store
	composites *CompositeStore
	catalog    *assets.Catalog
	creations  Persister
	dispatcher Dispatcher
	limiter    Limiter
	perMinute  int
	log        zerolog.Logger
}

type Options struct {
	Store      *Store
	Composites *CompositeStore
	Catalog    *assets.Catalog
	Creations  Persister
	Dispatcher Dispatcher
	Limiter    Limiter
	// RatePerMinute caps starts per user. Zero disables the limit.
	RatePerMinute int
	Log           zerolog.Logger
}

func NewService(o Options) *Service {
	return &Service{
		store:      o.Store,
		composites: o.Composites,
		catalog:    o.Catalog,
		creations:  o.Creations,
		dispatcher: o.Dispatcher,
		limiter:    o.Limiter,
		perMinute:  o.RatePerMinute,
		log:        o.Log,
	}
}

// SetDispatcher swaps the dispatcher; the inline dispatcher needs the runner,
// which needs the store the service was built with.
func (s *Service) SetDispatcher(d Dispatcher) { s.dispatcher = d }

// QueryResult is what a polling client sees.
type QueryResult struct {
	Status   Status `json:"status"`
	Progress int    `json:"progress"`
	Error    string `json:"error,omitempty"`
}

// EndResult is either a pending notice or the persisted projection.
type EndResult struct {
	Pending  bool
	Progress int
	Response []map[string]any
}

// Start records a processing job for an already validated input and hands it
// to the dispatcher. It returns as soon as the job is queued.
func (s *Service) Start(ctx context.Context, userID uint64, asset string, in assets.Input) (string, error) {
	if _, ok := s.catalog.Get(asset); !ok {
		return "", fmt.Errorf("unknown asset %q", asset)
	}

	// 1) per-user fixed window
	if s.limiter != nil && s.perMinute > 0 {
		ok, err := s.limiter.Allow(ctx, "start:"+strconv.FormatUint(userID, 10), s.perMinute, time.Minute)
		if err != nil {
			return "", err
		}
		if !ok {
			return "", ErrRateLimited
		}
	}

	raw, err := json.Marshal(in)
	if err != nil {
		return "", err
	}

	// 2) initial record
	token := common.NewJobToken()
	rec := &Record{
		Status:   StatusProcessing,
		Progress: 0,
		Asset:    asset,
		UserID:   userID,
		Input:    raw,
	}
	if err := s.store.Create(ctx, token, rec); err != nil {
		return "", err
	}

	// 3) fire and forget
	if err := s.dispatcher.Dispatch(ctx, token); err != nil {
		if _, derr := s.store.Claim(ctx, token); derr != nil {
			s.log.Warn().Err(derr).Str("token", token).Msg("cleanup after dispatch failure")
		}
		return "", fmt.Errorf("dispatch job: %w", err)
	}
	return token, nil
}

func (s *Service) Query(ctx context.Context, userID uint64, asset, token string) (*QueryResult, error) {
	rec, err := s.owned(ctx, userID, asset, token)
	if err != nil {
		return nil, err
	}
	return &QueryResult{Status: rec.Status, Progress: rec.Progress, Error: rec.Error}, nil
}

// End consumes a finished job. A completed job is persisted as Creations and
// returned; a failed job is returned as *JobError. Either way the record is
// gone afterwards and a repeated call gets ErrNotFound.
func (s *Service) End(ctx context.Context, userID uint64, asset, token string) (*EndResult, error) {
	rec, err := s.owned(ctx, userID, asset, token)
	if err != nil {
		return nil, err
	}

	switch rec.Status {
	case StatusError:
		claimed, err := s.store.Claim(ctx, token)
		if err != nil {
			return nil, err
		}
		if !claimed {
			return nil, ErrNotFound
		}
		return nil, &JobError{Message: rec.Error}

	case StatusCompleted:
		remaining, claimed, err := s.store.Take(ctx, token)
		if err != nil {
			return nil, err
		}
		if !claimed {
			return nil, ErrNotFound
		}
		resp, err := s.persist(ctx, rec)
		if err != nil {
			if rerr := s.store.Restore(ctx, token, rec, remaining); rerr != nil {
				s.log.Error().Err(rerr).Str("token", token).Msg("restore job after failed persist")
			}
			return nil, err
		}
		return &EndResult{Response: resp}, nil

	default:
		return &EndResult{Pending: true, Progress: rec.Progress}, nil
	}
}

func (s *Service) persist(ctx context.Context, rec *Record) ([]map[string]any, error) {
	def, ok := s.catalog.Get(rec.Asset)
	if !ok {
		return nil, fmt.Errorf("unknown asset %q", rec.Asset)
	}

	// 1) shape the payload
	items, err := def.Items(json.RawMessage(rec.Response))
	if err != nil {
		return nil, err
	}

	// 2) durable write
	created, err := s.creations.Persist(ctx, rec.UserID, def.CreationType, rec.Input, items)
	if err != nil {
		return nil, err
	}

	// 3) client projection: each item plus its creation id
	resp := make([]map[string]any, 0, len(created))
	for i, c := range created {
		m := map[string]any{}
		if err := json.Unmarshal(items[i], &m); err != nil {
			m = map[string]any{"value": json.RawMessage(items[i])}
		}
		m["id"] = c.ID
		resp = append(resp, m)
	}

	// 4) composite fragment, best effort: the creations already exist
	if def.Fragment != "" && s.composites != nil {
		if adID := correlationID(s.catalog, rec); adID != "" {
			var out any = resp
			if !def.Split && len(resp) == 1 {
				out = resp[0]
			}
			if err := s.mergeFragment(ctx, adID, rec, def.Fragment, out); err != nil {
				s.log.Warn().Err(err).Str("ad_id", adID).Str("fragment", def.Fragment).Msg("composite merge failed")
			}
		}
	}
	return resp, nil
}

func (s *Service) mergeFragment(ctx context.Context, adID string, rec *Record, fragment string, out any) error {
	b, err := json.Marshal(out)
	if err != nil {
		return err
	}
	return s.composites.Merge(ctx, adID, rec.UserID, fragment, rec.Input, b)
}

func correlationID(c *assets.Catalog, rec *Record) string {
	in, err := c.DecodeInput(rec.Asset, rec.Input)
	if err != nil {
		return ""
	}
	return in.CorrelationID()
}

// Finalize turns the fragments collected for adID into a single Creation.
// Caller supplied fields override fragments of the same name.
func (s *Service) Finalize(ctx context.Context, userID uint64, adID, typ string, input, output map[string]json.RawMessage) (string, error) {
	if typ == "" {
		typ = DefaultCompositeType
	}

	comp, err := s.composites.Take(ctx, adID, userID)
	if err != nil {
		return "", err
	}

	mergedIn := mergeFields(comp.Input, input)
	mergedOut := mergeFields(comp.Output, output)
	inRaw, err := json.Marshal(mergedIn)
	if err != nil {
		return "", err
	}
	outRaw, err := json.Marshal(mergedOut)
	if err != nil {
		return "", err
	}

	created, err := s.creations.Persist(ctx, userID, typ, inRaw, []json.RawMessage{outRaw})
	if err == nil && len(created) != 1 {
		err = errors.New("composite persisted no creation")
	}
	if err != nil {
		if rerr := s.composites.Restore(ctx, adID, comp); rerr != nil {
			s.log.Error().Err(rerr).Str("ad_id", adID).Msg("restore composite after failed persist")
		}
		return "", err
	}
	return created[0].ID, nil
}

func mergeFields(base, override map[string]json.RawMessage) map[string]json.RawMessage {
	out := make(map[string]json.RawMessage, len(base)+len(override))
	for k, v := range base {
		out[k] = v
	}
	for k, v := range override {
		out[k] = v
	}
	return out
}

// owned loads a record and hides it from anyone but its user and asset route.
func (s *Service) owned(ctx context.Context, userID uint64, asset, token string) (*Record, error) {
	if !common.ValidJobToken(token) {
		return nil, ErrNotFound
	}
	rec, err := s.store.Get(ctx, token)
	if err != nil {
		return nil, err
	}
	if !rec.ownedBy(userID, asset) {
		return nil, ErrNotFound
	}
	return rec, nil
}
