package testutil

import (
	"testing"

	"github.com/rs/zerolog"

	"github.com/jdapena/iwkmail/internal/accounts"
	"github.com/jdapena/iwkmail/internal/conf"
)

// NewTestConf creates an in-memory conf store with all migrations
// applied. It automatically closes the store when the test completes.
func NewTestConf(t *testing.T) *conf.SQLiteStore {
	t.Helper()

	s, err := conf.NewSQLiteStore(":memory:", "")
	if err != nil {
		t.Fatalf("creating test conf store: %v", err)
	}

	t.Cleanup(func() {
		if err := s.Close(); err != nil {
			t.Errorf("closing test conf store: %v", err)
		}
	})

	return s
}

// NewTestRegistry creates an account registry over a fresh in-memory
// conf store.
func NewTestRegistry(t *testing.T) *accounts.Registry {
	t.Helper()
	return accounts.New(NewTestConf(t), zerolog.Nop())
}
