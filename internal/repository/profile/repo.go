package profile

import (
	"context"
	"errors"
	"fmt"

	"github.com/kailas-cloud/tailorly/internal/db"
	"github.com/kailas-cloud/tailorly/internal/domain"
	domprofile "github.com/kailas-cloud/tailorly/internal/domain/profile"
)

// store is the consumer interface for profiles (ISP).
type store interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Transact(ctx context.Context, key string, fn db.TxFunc) error
}

// Repo implements usecase/ledger.Repository.
type Repo struct {
	store  store
	prefix string
}

// New creates a profile repository. Keys are "<prefix>profile:<uid>".
func New(s store, keyPrefix string) *Repo {
	return &Repo{store: s, prefix: keyPrefix}
}

// Get loads a profile.
func (r *Repo) Get(ctx context.Context, uid string) (domprofile.Profile, error) {
	data, err := r.store.Get(ctx, r.key(uid))
	if err != nil {
		if errors.Is(err, db.ErrKeyNotFound) {
			return domprofile.Profile{}, domain.ErrProfileNotFound
		}
		return domprofile.Profile{}, fmt.Errorf("get profile %s: %w", uid, err)
	}
	return unmarshalProfile(data)
}

// Mutate applies fn to the stored profile in one transaction and returns
// the resulting state. fn reports whether it changed anything; nothing is
// written otherwise. fn may run more than once when the store retries.
func (r *Repo) Mutate(
	ctx context.Context, uid string, fn func(p *domprofile.Profile) (bool, error),
) (domprofile.Profile, error) {
	var result domprofile.Profile
	err := r.store.Transact(ctx, r.key(uid), func(current []byte) ([]byte, error) {
		if current == nil {
			return nil, domain.ErrProfileNotFound
		}
		p, err := unmarshalProfile(current)
		if err != nil {
			return nil, err
		}
		changed, err := fn(&p)
		if err != nil {
			return nil, err
		}
		result = p
		if !changed {
			return nil, nil
		}
		return marshalProfile(p)
	})
	if err != nil {
		return domprofile.Profile{}, err
	}
	return result, nil
}

// Create stores build's profile when uid is absent. An existing profile is
// returned untouched with created == false.
func (r *Repo) Create(
	ctx context.Context, uid string, build func() (domprofile.Profile, error),
) (domprofile.Profile, bool, error) {
	var (
		result  domprofile.Profile
		created bool
	)
	err := r.store.Transact(ctx, r.key(uid), func(current []byte) ([]byte, error) {
		if current != nil {
			p, err := unmarshalProfile(current)
			if err != nil {
				return nil, err
			}
			result, created = p, false
			return nil, nil
		}
		p, err := build()
		if err != nil {
			return nil, err
		}
		result, created = p, true
		return marshalProfile(p)
	})
	if err != nil {
		return domprofile.Profile{}, false, err
	}
	return result, created, nil
}

func (r *Repo) key(uid string) string {
	return r.prefix + "profile:" + uid
}
