package testutil

import (
	"github.com/jdapena/iwkmail/internal/credential"
)

// MemoryCredentials is an in-memory credential.Store recording every
// lookup, so tests can assert on retrieval counts.
type MemoryCredentials struct {
	Secrets map[credential.Key]string

	FindCalls   int
	PutCalls    int
	DeleteCalls int
}

var _ credential.Store = (*MemoryCredentials)(nil)

// NewMemoryCredentials creates an empty in-memory credential store.
func NewMemoryCredentials() *MemoryCredentials {
	return &MemoryCredentials{Secrets: make(map[credential.Key]string)}
}

func (m *MemoryCredentials) Find(key credential.Key) (string, error) {
	m.FindCalls++
	secret, ok := m.Secrets[key]
	if !ok {
		return "", credential.ErrNotFound
	}
	return secret, nil
}

func (m *MemoryCredentials) Put(key credential.Key, secret string) error {
	m.PutCalls++
	m.Secrets[key] = secret
	return nil
}

func (m *MemoryCredentials) Delete(key credential.Key) error {
	m.DeleteCalls++
	delete(m.Secrets, key)
	return nil
}
