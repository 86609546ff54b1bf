package jsonfile

import (
	"context"
	"encoding/json"
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"badgekit/core"
)

// Store persists every individual to a single JSON file.
// Suitable for demos and small deployments.
type Store struct {
	path string
	mu   sync.Mutex
	// in-memory cache for speed
	data map[core.IndividualID]individual
}

type individual struct {
	Lifetime   int64                          `json:"lifetime_points"`
	Multiplier decimal.Decimal                `json:"multiplier"`
	Progress   map[core.BadgeID]core.Progress `json:"progress"`
	Updated    time.Time                      `json:"updated"`
}

func (i individual) clone() individual {
	cp := i
	cp.Progress = make(map[core.BadgeID]core.Progress, len(i.Progress))
	for k, v := range i.Progress {
		cp.Progress[k] = v.Clone()
	}
	return cp
}

func New(path string) (*Store, error) {
	s := &Store{path: path, data: map[core.IndividualID]individual{}}
	if err := s.load(); err != nil {
		if !errors.Is(err, fs.ErrNotExist) {
			return nil, err
		}
	}
	return s, nil
}

func (s *Store) load() error {
	b, err := os.ReadFile(s.path)
	if err != nil {
		return err
	}
	var raw map[string]individual
	if err := json.Unmarshal(b, &raw); err != nil {
		return err
	}
	for k, v := range raw {
		if v.Progress == nil {
			v.Progress = map[core.BadgeID]core.Progress{}
		}
		s.data[core.IndividualID(k)] = v
	}
	return nil
}

func (s *Store) persist(data map[core.IndividualID]individual) error {
	tmp := s.path + ".tmp"
	raw := make(map[string]individual, len(data))
	for k, v := range data {
		raw[string(k)] = v
	}
	b, err := json.MarshalIndent(raw, "", "  ")
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(s.path), 0o755); err != nil {
		return err
	}
	if err := os.WriteFile(tmp, b, 0o644); err != nil {
		return err
	}
	return os.Rename(tmp, s.path)
}

func (s *Store) get(id core.IndividualID) individual {
	if st, ok := s.data[id]; ok {
		return st.clone()
	}
	return individual{Multiplier: decimal.NewFromInt(1), Progress: map[core.BadgeID]core.Progress{}}
}

// update applies fn to a copy of the individual and keeps it only once the
// file has been written.
func (s *Store) update(id core.IndividualID, fn func(*individual) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	st := s.get(id)
	if err := fn(&st); err != nil {
		return err
	}
	st.Updated = time.Now().UTC()
	next := make(map[core.IndividualID]individual, len(s.data)+1)
	for k, v := range s.data {
		next[k] = v
	}
	next[id] = st
	if err := s.persist(next); err != nil {
		return err
	}
	s.data = next
	return nil
}

func (s *Store) AddPoints(_ context.Context, id core.IndividualID, delta int64) (int64, error) {
	if delta == 0 {
		return 0, core.ErrZeroDelta
	}
	var total int64
	err := s.update(id, func(st *individual) error {
		next, err := core.AddSafe(st.Lifetime, delta)
		if err != nil {
			return err
		}
		total = max(next, 0)
		st.Lifetime = total
		return nil
	})
	if err != nil {
		return 0, err
	}
	return total, nil
}

func (s *Store) LifetimePoints(_ context.Context, id core.IndividualID) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.get(id).Lifetime, nil
}

func (s *Store) SetMultiplier(_ context.Context, id core.IndividualID, m decimal.Decimal) error {
	return s.update(id, func(st *individual) error {
		st.Multiplier = m
		return nil
	})
}

func (s *Store) Multiplier(_ context.Context, id core.IndividualID) (decimal.Decimal, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.get(id).Multiplier, nil
}

func (s *Store) GetProgress(_ context.Context, id core.IndividualID) (map[core.BadgeID]core.Progress, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.get(id).Progress, nil
}

func (s *Store) PutProgress(_ context.Context, id core.IndividualID, records ...core.Progress) error {
	for _, r := range records {
		if err := r.Validate(); err != nil {
			return err
		}
	}
	return s.update(id, func(st *individual) error {
		for _, r := range records {
			st.Progress[r.Badge] = r.Clone()
		}
		return nil
	})
}

func (s *Store) AccrueCyclePoints(_ context.Context, id core.IndividualID, badges []core.BadgeID, delta int64) error {
	return s.update(id, func(st *individual) error {
		for _, b := range badges {
			p, ok := st.Progress[b]
			if !ok || !p.Status.Earned() {
				continue
			}
			next, err := core.AddSafe(p.CyclePoints, delta)
			if err != nil {
				return err
			}
			p.CyclePoints = next
			st.Progress[b] = p
		}
		return nil
	})
}
