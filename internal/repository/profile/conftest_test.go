package profile

import (
	"context"
	"testing"

	"github.com/kailas-cloud/tailorly/internal/db"
	domprofile "github.com/kailas-cloud/tailorly/internal/domain/profile"
)

const testPrefix = "tailorly:"

// mockStore implements the consumer interface over a plain map.
type mockStore struct {
	data      map[string][]byte
	writes    int
	getFn     func(ctx context.Context, key string) ([]byte, error)
	txErr     error
	lastTxKey string
}

func (m *mockStore) Get(ctx context.Context, key string) ([]byte, error) {
	if m.getFn != nil {
		return m.getFn(ctx, key)
	}
	v, ok := m.data[key]
	if !ok {
		return nil, db.ErrKeyNotFound
	}
	return v, nil
}

func (m *mockStore) Transact(_ context.Context, key string, fn db.TxFunc) error {
	m.lastTxKey = key
	if m.txErr != nil {
		return m.txErr
	}
	next, err := fn(m.data[key])
	if err != nil {
		return err
	}
	if next != nil {
		m.data[key] = next
		m.writes++
	}
	return nil
}

func newTestRepo(t *testing.T) (*Repo, *mockStore) {
	t.Helper()
	ms := &mockStore{data: map[string][]byte{}}
	return New(ms, testPrefix), ms
}

func testProfile(t *testing.T) domprofile.Profile {
	t.Helper()
	p, err := domprofile.New(domprofile.Identity{
		UID:   "u1",
		Email: "u1@example.com",
	}, 150, domprofile.ReasonDefaultQuota, 1_700_000_000_000)
	if err != nil {
		t.Fatalf("new profile: %v", err)
	}
	return p
}
