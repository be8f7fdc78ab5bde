// Package store keeps the pharmacy catalog and sales ledger as one JSON
// document in a kv blob. Every mutation rewrites the whole document.
package store

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"pharmapos/backend/internal/domain"
	"pharmapos/backend/internal/kv"
)

const (
	DefaultKey        = "pharma.db"
	DefaultDateLayout = "1/2/2006"
)

type Option func(*Store)

func WithKey(key string) Option {
	return func(s *Store) {
		if key != "" {
			s.key = key
		}
	}
}

func WithLogger(logger zerolog.Logger) Option {
	return func(s *Store) { s.logger = logger }
}

// WithClock replaces time.Now for sale timestamps and analytics windows.
func WithClock(now func() time.Time) Option {
	return func(s *Store) {
		if now != nil {
			s.now = now
		}
	}
}

func WithLocation(loc *time.Location) Option {
	return func(s *Store) {
		if loc != nil {
			s.loc = loc
		}
	}
}

func WithDateLayout(layout string) Option {
	return func(s *Store) {
		if layout != "" {
			s.dateLayout = layout
		}
	}
}

type Store struct {
	blobs      kv.Store
	key        string
	logger     zerolog.Logger
	now        func() time.Time
	loc        *time.Location
	dateLayout string

	mu    sync.RWMutex
	state *state
}

func New(blobs kv.Store, opts ...Option) *Store {
	s := &Store{
		blobs:      blobs,
		key:        DefaultKey,
		logger:     zerolog.Nop(),
		now:        time.Now,
		loc:        time.Local,
		dateLayout: DefaultDateLayout,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// state is never modified once it is published on the Store; mutations work
// on a clone and swap it in after the blob write succeeds.
type state struct {
	medicines []domain.Medicine
	index     map[string]int
	sales     []domain.Sale
	nextMemo  int
}

func newState(medicines []domain.Medicine, sales []domain.Sale, nextMemo int) *state {
	if medicines == nil {
		medicines = []domain.Medicine{}
	}
	if sales == nil {
		sales = []domain.Sale{}
	}
	if nextMemo < 1 {
		nextMemo = 1
	}
	st := &state{
		medicines: medicines,
		index:     make(map[string]int, len(medicines)),
		sales:     sales,
		nextMemo:  nextMemo,
	}
	for i, med := range medicines {
		if _, dup := st.index[med.ID]; !dup {
			st.index[med.ID] = i
		}
	}
	return st
}

func (st *state) clone() *state {
	dup := &state{
		medicines: make([]domain.Medicine, len(st.medicines)),
		index:     make(map[string]int, len(st.index)),
		sales:     make([]domain.Sale, len(st.sales)),
		nextMemo:  st.nextMemo,
	}
	copy(dup.medicines, st.medicines)
	copy(dup.sales, st.sales)
	for id, pos := range st.index {
		dup.index[id] = pos
	}
	return dup
}

// Reload drops the cached document and reads the blob again.
func (s *Store) Reload(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	st, err := s.load(ctx)
	if err != nil {
		return err
	}
	s.state = st
	s.logger.Info().
		Int("medicines", len(st.medicines)).
		Int("sales", len(st.sales)).
		Msg("store reloaded")
	return nil
}

// snapshot returns the published state, hydrating it on first use.
func (s *Store) snapshot(ctx context.Context) (*state, error) {
	s.mu.RLock()
	st := s.state
	s.mu.RUnlock()
	if st != nil {
		return st, nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	return s.hydratedLocked(ctx)
}

func (s *Store) hydratedLocked(ctx context.Context) (*state, error) {
	if s.state != nil {
		return s.state, nil
	}
	st, err := s.load(ctx)
	if err != nil {
		return nil, err
	}
	s.state = st
	return st, nil
}

func (s *Store) load(ctx context.Context) (*state, error) {
	raw, err := s.blobs.Load(ctx, s.key)
	if errors.Is(err, kv.ErrNotFound) {
		return newState(nil, nil, 1), nil
	}
	if err != nil {
		return nil, fmt.Errorf("load %s: %w", s.key, err)
	}

	st, migrated, err := decodeDocument(raw)
	if err != nil {
		return nil, fmt.Errorf("decode %s: %w", s.key, err)
	}
	if migrated {
		s.logger.Info().
			Str("key", s.key).
			Int("sales", len(st.sales)).
			Int("version", schemaVersion).
			Msg("migrated legacy store document")
	}
	return st, nil
}

// mutate runs fn against a private copy of the state under the write lock.
// When fn reports a change the copy is persisted and only then published.
func (s *Store) mutate(ctx context.Context, fn func(next *state) (bool, error)) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	current, err := s.hydratedLocked(ctx)
	if err != nil {
		return err
	}

	next := current.clone()
	changed, err := fn(next)
	if err != nil || !changed {
		return err
	}

	raw, err := encodeDocument(next)
	if err != nil {
		return fmt.Errorf("encode %s: %w", s.key, err)
	}
	if err := s.blobs.Save(ctx, s.key, raw); err != nil {
		return fmt.Errorf("save %s: %w", s.key, err)
	}
	s.state = next
	return nil
}

func cloneSale(src domain.Sale) domain.Sale {
	dup := src
	dup.Items = make([]domain.CartItem, len(src.Items))
	copy(dup.Items, src.Items)
	return dup
}

func startOfDay(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, t.Location())
}
