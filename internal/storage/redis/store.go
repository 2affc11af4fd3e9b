// Package redis provides a Redis-backed character store using go-redis v9.
package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"time"

	goredis "github.com/redis/go-redis/v9"
	"golang.org/x/sync/errgroup"

	"github.com/cory-johannsen/progression/internal/config"
	"github.com/cory-johannsen/progression/internal/game/character"
)

// ErrCharacterNotFound is returned when no record is stored for an ID.
var ErrCharacterNotFound = character.ErrNotFound

// loadConcurrency bounds concurrent GETs in LoadMany.
const loadConcurrency = 16

// Connect opens a client for cfg.URL and pings it within cfg.DialTimeout.
//
// Precondition: cfg.URL must be a redis:// or rediss:// URL.
// Postcondition: Returns a reachable client or a non-nil error.
func Connect(ctx context.Context, cfg config.RedisConfig) (*goredis.Client, error) {
	opts, err := goredis.ParseURL(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("parsing redis url: %w", err)
	}
	if cfg.DialTimeout > 0 {
		opts.DialTimeout = cfg.DialTimeout
	}
	client := goredis.NewClient(opts)

	pingCtx := ctx
	if cfg.DialTimeout > 0 {
		var cancel context.CancelFunc
		pingCtx, cancel = context.WithTimeout(ctx, cfg.DialTimeout)
		defer cancel()
	}
	if err := client.Ping(pingCtx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("pinging redis: %w", err)
	}
	return client, nil
}

// Store keeps each character as a JSON document under
// "<prefix>:character:<id>" and tracks IDs in the set "<prefix>:characters".
type Store struct {
	client goredis.Cmdable
	prefix string
	now    func() time.Time
}

// NewStore creates a Store. An empty prefix stores keys unprefixed; a nil
// clock uses time.Now.
//
// Precondition: client must be non-nil.
func NewStore(client goredis.Cmdable, prefix string, clock func() time.Time) *Store {
	if clock == nil {
		clock = time.Now
	}
	return &Store{client: client, prefix: prefix, now: clock}
}

// CharacterKey returns the key holding the record for id.
func (s *Store) CharacterKey(id string) string {
	return s.key("character:" + id)
}

// IndexKey returns the key of the ID index set.
func (s *Store) IndexKey() string {
	return s.key("characters")
}

func (s *Store) key(k string) string {
	if s.prefix == "" {
		return k
	}
	return s.prefix + ":" + k
}

// Save writes rec and adds its ID to the index, stamping UpdatedAt.
//
// Precondition: rec.ID must be non-empty.
func (s *Store) Save(ctx context.Context, rec character.Record) error {
	if rec.ID == "" {
		return errors.New("saving character: empty id")
	}
	rec.UpdatedAt = s.now().UTC()
	data, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("marshalling character %s: %w", rec.ID, err)
	}

	pipe := s.client.Pipeline()
	pipe.Set(ctx, s.CharacterKey(rec.ID), string(data), 0)
	pipe.SAdd(ctx, s.IndexKey(), rec.ID)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("saving character %s: %w", rec.ID, err)
	}
	return nil
}

// Load returns the record for id.
//
// Postcondition: Returns an error wrapping ErrCharacterNotFound if absent.
func (s *Store) Load(ctx context.Context, id string) (character.Record, error) {
	data, err := s.client.Get(ctx, s.CharacterKey(id)).Bytes()
	if err != nil {
		if errors.Is(err, goredis.Nil) {
			return character.Record{}, fmt.Errorf("loading character %q: %w", id, ErrCharacterNotFound)
		}
		return character.Record{}, fmt.Errorf("loading character %q: %w", id, err)
	}
	var rec character.Record
	if err := json.Unmarshal(data, &rec); err != nil {
		return character.Record{}, fmt.Errorf("unmarshalling character %q: %w", id, err)
	}
	return rec, nil
}

// Delete removes the record for id and its index entry.
//
// Postcondition: Returns an error wrapping ErrCharacterNotFound if no
// record was stored.
func (s *Store) Delete(ctx context.Context, id string) error {
	pipe := s.client.Pipeline()
	del := pipe.Del(ctx, s.CharacterKey(id))
	pipe.SRem(ctx, s.IndexKey(), id)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("deleting character %q: %w", id, err)
	}
	if del.Val() == 0 {
		return fmt.Errorf("deleting character %q: %w", id, ErrCharacterNotFound)
	}
	return nil
}

// ListIDs returns every indexed ID in sorted order.
func (s *Store) ListIDs(ctx context.Context) ([]string, error) {
	ids, err := s.client.SMembers(ctx, s.IndexKey()).Result()
	if err != nil {
		return nil, fmt.Errorf("listing characters: %w", err)
	}
	sort.Strings(ids)
	return ids, nil
}

// LoadMany loads ids concurrently. The result is in the order of ids.
//
// Postcondition: Returns every record, or the first error encountered.
func (s *Store) LoadMany(ctx context.Context, ids []string) ([]character.Record, error) {
	recs := make([]character.Record, len(ids))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(loadConcurrency)
	for i, id := range ids {
		i, id := i, id
		g.Go(func() error {
			rec, err := s.Load(gctx, id)
			if err != nil {
				return err
			}
			recs[i] = rec
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return recs, nil
}

// LoadAll loads every indexed character.
func (s *Store) LoadAll(ctx context.Context) ([]character.Record, error) {
	ids, err := s.ListIDs(ctx)
	if err != nil {
		return nil, err
	}
	return s.LoadMany(ctx, ids)
}
