// Package credential stores account secrets in the system keyring.
//
// Secrets are keyed by (protocol, user, host, port), not by account:
// two accounts pointing at the same server share one stored secret.
package credential

import "fmt"

// Key identifies one stored secret.
type Key struct {
	Protocol string
	User     string
	Host     string
	Port     int
}

// String renders the keyring item key for this secret.
func (k Key) String() string {
	return fmt.Sprintf("%s://%s@%s:%d", k.Protocol, k.User, k.Host, k.Port)
}

// Store is the secret storage contract used during authentication.
type Store interface {
	// Find returns the stored secret, or ErrNotFound.
	Find(key Key) (string, error)

	// Put stores or replaces the secret for key.
	Put(key Key, secret string) error

	// Delete removes the secret for key. Deleting an absent secret is
	// not an error.
	Delete(key Key) error
}
