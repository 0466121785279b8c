// Package testutil provides in-memory fakes for tests.
package testutil

import (
	"context"
	"fmt"
	"sync"

	"fragboard/internal/fragment"
)

// FakeStore is an in-memory fragment.Store with call counting and error
// injection, standing in for the remote fragment store in tests.
type FakeStore struct {
	mu    sync.Mutex
	seq   int
	frags []fragment.Fragment

	ListCalls   int
	CreateCalls int
	UpdateCalls int
	DeleteCalls int

	ListErr   error
	CreateErr error
	UpdateErr error
	DeleteErr error
}

// NewFakeStore returns an empty FakeStore.
func NewFakeStore() *FakeStore {
	return &FakeStore{}
}

// Seed inserts a fragment directly, bypassing call counters, and returns its
// assigned ID.
func (s *FakeStore) Seed(f fragment.Fragment) string {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.seq++
	f.ID = fmt.Sprintf("frag-%d", s.seq)
	s.frags = append(s.frags, f)
	return f.ID
}

// SetContent rewrites a stored fragment's content, simulating a change made
// by another writer.
func (s *FakeStore) SetContent(id, content string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := range s.frags {
		if s.frags[i].ID == id {
			s.frags[i].Content = content
			return
		}
	}
}

// Stored returns the stored fragment with the given ID.
func (s *FakeStore) Stored(id string) (fragment.Fragment, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, f := range s.frags {
		if f.ID == id {
			return f, true
		}
	}
	return fragment.Fragment{}, false
}

// MutationCalls returns the total number of create+update+delete calls.
func (s *FakeStore) MutationCalls() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.CreateCalls + s.UpdateCalls + s.DeleteCalls
}

func (s *FakeStore) List(_ context.Context, _ fragment.ListOptions) ([]fragment.Fragment, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.ListCalls++
	if s.ListErr != nil {
		return nil, s.ListErr
	}
	out := make([]fragment.Fragment, len(s.frags))
	copy(out, s.frags)
	return out, nil
}

func (s *FakeStore) Create(_ context.Context, f fragment.Fragment) (*fragment.Fragment, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.CreateCalls++
	if s.CreateErr != nil {
		return nil, s.CreateErr
	}
	s.seq++
	f.ID = fmt.Sprintf("frag-%d", s.seq)
	s.frags = append(s.frags, f)
	out := f
	return &out, nil
}

func (s *FakeStore) Update(_ context.Context, id string, f fragment.Fragment) (*fragment.Fragment, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.UpdateCalls++
	if s.UpdateErr != nil {
		return nil, s.UpdateErr
	}
	for i := range s.frags {
		if s.frags[i].ID == id {
			f.ID = id
			s.frags[i] = f
			out := f
			return &out, nil
		}
	}
	return nil, fmt.Errorf("fake store: fragment %s not found", id)
}

func (s *FakeStore) Delete(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.DeleteCalls++
	if s.DeleteErr != nil {
		return s.DeleteErr
	}
	for i := range s.frags {
		if s.frags[i].ID == id {
			s.frags = append(s.frags[:i], s.frags[i+1:]...)
			return nil
		}
	}
	return fmt.Errorf("fake store: fragment %s not found", id)
}
