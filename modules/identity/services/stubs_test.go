package services_test

import (
	"context"
	"sync"

	"github.com/iota-uz/identity-sync/modules/identity/domain"
	"github.com/iota-uz/identity-sync/modules/identity/domain/aggregates/person"
)

type stubDirectory struct {
	mu    sync.Mutex
	names map[string]person.Name
	err   error
	calls []string
}

func newStubDirectory(names map[string]person.Name) *stubDirectory {
	return &stubDirectory{names: names}
}

func (d *stubDirectory) Resolve(ctx context.Context, nationalID string) (person.Name, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.calls = append(d.calls, nationalID)
	if d.err != nil {
		return person.Name{}, d.err
	}
	n, ok := d.names[nationalID]
	if !ok {
		return person.Name{}, domain.ErrNotFound
	}
	return n, nil
}

func (d *stubDirectory) Calls() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.calls)
}

type forgettingDirectory struct {
	*stubDirectory
	forgotten []string
}

func (d *forgettingDirectory) Forget(ctx context.Context, nationalID string) error {
	d.forgotten = append(d.forgotten, nationalID)
	return nil
}
