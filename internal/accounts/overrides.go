package accounts

import (
	"context"
	"errors"
	"fmt"

	"github.com/jdapena/iwkmail/internal/conf"
)

// Connection-specific transport overrides map a connection id (one
// network the device may be attached to) to the server account to send
// through while on it. They are persisted as one shared flat list of
// alternating (connection id, server account name) pairs; lookups are
// linear scans by string equality, which is fine at the scale of a
// device's known connections.

// overrideList reads the shared pair list, tolerating its absence.
func (r *Registry) overrideList(ctx context.Context) ([]string, error) {
	list, err := r.store.GetStringList(ctx, keySpecificSMTP)
	if errors.Is(err, conf.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("reading transport overrides: %w", err)
	}
	if len(list)%2 != 0 {
		return nil, fmt.Errorf("transport override list has odd length %d", len(list))
	}
	return list, nil
}

// TransportOverride returns the server account overriding transport
// for the given connection, or "" when none is set.
func (r *Registry) TransportOverride(ctx context.Context, connectionID string) (string, error) {
	list, err := r.overrideList(ctx)
	if err != nil {
		return "", err
	}
	for i := 0; i+1 < len(list); i += 2 {
		if list[i] == connectionID {
			return list[i+1], nil
		}
	}
	return "", nil
}

// SetTransportOverride sets or replaces the transport override for the
// given connection.
func (r *Registry) SetTransportOverride(ctx context.Context, connectionID, serverAccount string) error {
	list, err := r.overrideList(ctx)
	if err != nil {
		return err
	}
	replaced := false
	for i := 0; i+1 < len(list); i += 2 {
		if list[i] == connectionID {
			list[i+1] = serverAccount
			replaced = true
			break
		}
	}
	if !replaced {
		list = append(list, connectionID, serverAccount)
	}
	if err := r.store.SetStringList(ctx, keySpecificSMTP, list); err != nil {
		return fmt.Errorf("writing transport overrides: %w", err)
	}
	return nil
}

// RemoveTransportOverride deletes the override for the given
// connection. Removing an absent override is not an error.
func (r *Registry) RemoveTransportOverride(ctx context.Context, connectionID string) error {
	list, err := r.overrideList(ctx)
	if err != nil {
		return err
	}
	for i := 0; i+1 < len(list); i += 2 {
		if list[i] == connectionID {
			list = append(list[:i], list[i+2:]...)
			if err := r.store.SetStringList(ctx, keySpecificSMTP, list); err != nil {
				return fmt.Errorf("writing transport overrides: %w", err)
			}
			return nil
		}
	}
	return nil
}
