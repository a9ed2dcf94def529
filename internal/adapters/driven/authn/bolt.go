package authn

import (
	"encoding/json"
	"fmt"

	bolt "go.etcd.io/bbolt"

	"github.com/philiph/saml-sp-flow/internal/core/domain"
	"github.com/philiph/saml-sp-flow/internal/core/ports"
)

var principalsBucket = []byte("principals")

// BoltBackend resolves principals against a bbolt database, so provisioned
// users survive restarts.
type BoltBackend struct {
	db *bolt.DB
}

// NewBoltBackend opens (or creates) the database at path.
func NewBoltBackend(path string) (*BoltBackend, error) {
	db, err := bolt.Open(path, 0o600, nil)
	if err != nil {
		return nil, fmt.Errorf("open principal database: %w", err)
	}
	err = db.Update(func(tx *bolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(principalsBucket)
		return err
	})
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("create principal bucket: %w", err)
	}
	return &BoltBackend{db: db}, nil
}

// Close releases the underlying database.
func (b *BoltBackend) Close() error {
	return b.db.Close()
}

// Authenticate maps the asserted attributes and resolves or provisions the
// local principal.
func (b *BoltBackend) Authenticate(info *domain.AssertionInfo, mapping domain.AttributeMapping, createUnknown bool) (*domain.Principal, error) {
	username, fields := domain.MapAttributes(info, mapping)
	if username == "" {
		username = info.SubjectID
	}
	if username == "" {
		return nil, ports.ErrUnknownPrincipal
	}

	var principal *domain.Principal
	err := b.db.Update(func(tx *bolt.Tx) error {
		bucket := tx.Bucket(principalsBucket)

		var p domain.Principal
		if raw := bucket.Get([]byte(username)); raw != nil {
			if err := json.Unmarshal(raw, &p); err != nil {
				return fmt.Errorf("decode principal %q: %w", username, err)
			}
		} else {
			if !createUnknown {
				return ports.ErrUnknownPrincipal
			}
			p = domain.Principal{ID: username, Username: username}
		}

		if p.Attributes == nil {
			p.Attributes = make(map[string][]string)
		}
		for name, values := range fields {
			p.Attributes[name] = values
		}

		raw, err := json.Marshal(&p)
		if err != nil {
			return fmt.Errorf("encode principal %q: %w", username, err)
		}
		if err := bucket.Put([]byte(username), raw); err != nil {
			return err
		}
		principal = &p
		return nil
	})
	if err != nil {
		return nil, err
	}
	return principal, nil
}

// Ensure BoltBackend implements ports.AuthBackend
var _ ports.AuthBackend = (*BoltBackend)(nil)
