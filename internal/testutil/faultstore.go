// Package testutil provides testing utilities.
package testutil

import (
	"context"
	"sync"

	"github.com/taskflow/core/internal/adapters/storage"
	"github.com/taskflow/core/internal/ports"
)

// FaultStore is an in-memory ports.KeyValueStore with error injection.
type FaultStore struct {
	*storage.MemoryStore

	mu sync.Mutex

	// Error injection for testing
	GetErr error
	SetErr error

	// SetKeyErrs fails writes to individual keys
	SetKeyErrs map[string]error

	// SetCalls counts successful and failed writes
	SetCalls int
}

var _ ports.KeyValueStore = (*FaultStore)(nil)

// NewFaultStore creates an empty FaultStore.
func NewFaultStore() *FaultStore {
	return &FaultStore{MemoryStore: storage.NewMemoryStore()}
}

// FailGets makes every Get return err until cleared with nil.
func (f *FaultStore) FailGets(err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.GetErr = err
}

// FailSets makes every Set return err until cleared with nil.
func (f *FaultStore) FailSets(err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.SetErr = err
}

// FailSetsFor makes writes to key return err until cleared with nil.
func (f *FaultStore) FailSetsFor(key string, err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err == nil {
		delete(f.SetKeyErrs, key)
		return
	}
	if f.SetKeyErrs == nil {
		f.SetKeyErrs = make(map[string]error)
	}
	f.SetKeyErrs[key] = err
}

// Get implements ports.KeyValueStore.
func (f *FaultStore) Get(ctx context.Context, key string) ([]byte, bool, error) {
	f.mu.Lock()
	err := f.GetErr
	f.mu.Unlock()
	if err != nil {
		return nil, false, err
	}
	return f.MemoryStore.Get(ctx, key)
}

// Set implements ports.KeyValueStore.
func (f *FaultStore) Set(ctx context.Context, key string, value []byte) error {
	f.mu.Lock()
	f.SetCalls++
	err := f.SetErr
	if keyErr, ok := f.SetKeyErrs[key]; ok {
		err = keyErr
	}
	f.mu.Unlock()
	if err != nil {
		return err
	}
	return f.MemoryStore.Set(ctx, key, value)
}
