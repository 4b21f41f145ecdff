package callback

import (
	"context"
	"encoding/json"
	"fmt"

	domainauth "github.com/target/mmk-portal/internal/domain/auth"
	"github.com/target/mmk-portal/internal/ports"
)

// StorageKeyUser holds the serialized identity used for rehydration.
const StorageKeyUser = "user"

// SessionPublisher commits a resolved identity to persisted storage and then to
// process-wide auth state. Callers guarantee it runs once per lifecycle.
type SessionPublisher struct {
	Storage ports.KeyValueStore
	State   ports.IdentityPublisher
}

// Publish stores identity under StorageKeyUser and publishes it. A storage failure
// leaves auth state untouched.
func (p SessionPublisher) Publish(ctx context.Context, identity domainauth.Identity) error {
	raw, err := json.Marshal(identity)
	if err != nil {
		return newError(KindPublish, fmt.Errorf("marshal identity: %w", err))
	}
	if err := p.Storage.Set(ctx, StorageKeyUser, string(raw)); err != nil {
		return newError(KindPublish, fmt.Errorf("store identity: %w", err))
	}
	p.State.Publish(identity)
	return nil
}

// DecodeIdentity parses a record written by Publish.
func DecodeIdentity(raw string) (domainauth.Identity, error) {
	var identity domainauth.Identity
	if err := json.Unmarshal([]byte(raw), &identity); err != nil {
		return domainauth.Identity{}, fmt.Errorf("decode identity: %w", err)
	}
	return identity, nil
}
