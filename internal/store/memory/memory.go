// Package memory is an in-process Store. When a state file is configured the
// lists are loaded from it, written back after every mutation and reloaded
// whenever another process replaces the file, so a server and a worker can
// share one state file.
package memory

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"billbuddy/internal/core"
	"billbuddy/internal/store"
)

type Store struct {
	mu    sync.Mutex
	path  string
	state store.State
	// seen is the state file as of the last load or write.
	seen os.FileInfo
}

func New() *Store {
	return &Store{}
}

// NewFromFile loads state from path if it exists. An empty path gives a
// purely in-memory store.
func NewFromFile(path string) (*Store, error) {
	s := &Store{path: path}
	if err := s.reload(); err != nil {
		return nil, err
	}
	return s, nil
}

// reload re-reads the state file when it changed since it was last seen.
// A file older than the state in memory is ignored. Callers hold s.mu.
func (s *Store) reload() error {
	if s.path == "" {
		return nil
	}
	info, err := os.Stat(s.path)
	if errors.Is(err, os.ErrNotExist) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("stat state file: %w", err)
	}
	if s.seen != nil && os.SameFile(s.seen, info) && s.seen.ModTime().Equal(info.ModTime()) && s.seen.Size() == info.Size() {
		return nil
	}

	data, err := os.ReadFile(s.path)
	if err != nil {
		return fmt.Errorf("read state file: %w", err)
	}
	var st store.State
	if err := json.Unmarshal(data, &st); err != nil {
		return fmt.Errorf("decode state file %s: %w", s.path, err)
	}
	s.seen = info
	if st.Revision < s.state.Revision {
		return nil
	}
	s.state = st
	return nil
}

func (s *Store) Snapshot(_ context.Context) (store.State, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.reload(); err != nil {
		return store.State{}, err
	}
	return cloneState(s.state), nil
}

func (s *Store) Participants(_ context.Context) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.reload(); err != nil {
		return nil, err
	}
	return append([]string{}, s.state.People...), nil
}

func (s *Store) AddEqual(_ context.Context, e core.EqualSplitEntry) (int64, error) {
	return s.mutate(func(st *store.State) error {
		for _, existing := range st.Equal {
			if existing.ID == e.ID {
				return store.ErrDuplicateID
			}
		}
		st.Equal = append(st.Equal, cloneEqual(e))
		st.People = store.MergePeople(st.People, e.People()...)
		return nil
	})
}

func (s *Store) AddItemized(_ context.Context, e core.ItemizedSplitEntry) (int64, error) {
	return s.mutate(func(st *store.State) error {
		for _, existing := range st.Itemized {
			if existing.ID == e.ID {
				return store.ErrDuplicateID
			}
		}
		st.Itemized = append(st.Itemized, cloneItemized(e))
		st.People = store.MergePeople(st.People, e.People()...)
		return nil
	})
}

func (s *Store) DeleteEqual(_ context.Context, id string) (int64, error) {
	return s.mutate(func(st *store.State) error {
		for i, e := range st.Equal {
			if e.ID == id {
				st.Equal = append(st.Equal[:i:i], st.Equal[i+1:]...)
				return nil
			}
		}
		return store.ErrNotFound
	})
}

func (s *Store) DeleteItemized(_ context.Context, id string) (int64, error) {
	return s.mutate(func(st *store.State) error {
		for i, e := range st.Itemized {
			if e.ID == id {
				st.Itemized = append(st.Itemized[:i:i], st.Itemized[i+1:]...)
				return nil
			}
		}
		return store.ErrNotFound
	})
}

func (s *Store) AddSharer(_ context.Context, entryID, name string) (int64, error) {
	return s.mutate(func(st *store.State) error {
		for i := range st.Equal {
			e := &st.Equal[i]
			if e.ID != entryID {
				continue
			}
			if !store.CanShare(*e, name) {
				return store.ErrAlreadySharing
			}
			e.SharedWith = append(e.SharedWith, name)
			st.People = store.MergePeople(st.People, name)
			return nil
		}
		return store.ErrNotFound
	})
}

func (s *Store) RemoveSharer(_ context.Context, entryID, name string) (int64, error) {
	return s.mutate(func(st *store.State) error {
		for i := range st.Equal {
			if st.Equal[i].ID == entryID {
				st.Equal[i].SharedWith = store.WithoutName(st.Equal[i].SharedWith, name)
				return nil
			}
		}
		return store.ErrNotFound
	})
}

func (s *Store) Close() error { return nil }

// mutate applies fn to a copy of the state and commits it only when fn and
// the optional file write both succeed.
func (s *Store) mutate(fn func(*store.State) error) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.reload(); err != nil {
		return 0, err
	}
	next := cloneState(s.state)
	if err := fn(&next); err != nil {
		return 0, err
	}
	next.Revision++
	if err := s.persist(next); err != nil {
		return 0, err
	}
	s.state = next
	return next.Revision, nil
}

func (s *Store) persist(st store.State) error {
	if s.path == "" {
		return nil
	}
	data, err := json.MarshalIndent(st, "", "  ")
	if err != nil {
		return fmt.Errorf("encode state: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(s.path), 0755); err != nil {
		return fmt.Errorf("create state directory: %w", err)
	}
	tmp := s.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0644); err != nil {
		return fmt.Errorf("write state file: %w", err)
	}
	if err := os.Rename(tmp, s.path); err != nil {
		return fmt.Errorf("replace state file: %w", err)
	}
	if info, err := os.Stat(s.path); err == nil {
		s.seen = info
	}
	return nil
}

func cloneState(st store.State) store.State {
	out := store.State{
		Equal:    make([]core.EqualSplitEntry, 0, len(st.Equal)),
		Itemized: make([]core.ItemizedSplitEntry, 0, len(st.Itemized)),
		People:   append([]string{}, st.People...),
		Revision: st.Revision,
	}
	for _, e := range st.Equal {
		out.Equal = append(out.Equal, cloneEqual(e))
	}
	for _, e := range st.Itemized {
		out.Itemized = append(out.Itemized, cloneItemized(e))
	}
	return out
}

func cloneEqual(e core.EqualSplitEntry) core.EqualSplitEntry {
	e.SharedWith = append([]string{}, e.SharedWith...)
	return e
}

func cloneItemized(e core.ItemizedSplitEntry) core.ItemizedSplitEntry {
	e.Costs = append([]core.ItemizedCost{}, e.Costs...)
	return e
}
