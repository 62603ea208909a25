// Package accounts provides namespaced, cached, typed access to
// account and server-account settings on top of the conf store, plus
// account lifecycle: creation, removal, enumeration and default
// election.
//
// The conf store is assumed single-writer; like the store itself, the
// registry performs no internal locking and the derived-key cache is
// safe only under single-threaded or externally-synchronized access.
package accounts

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/rs/zerolog"
	"golang.org/x/text/collate"
	"golang.org/x/text/language"

	"github.com/jdapena/iwkmail/internal/conf"
)

// Event describes a change to one account.
type Event int

const (
	EventInserted Event = iota
	EventChanged
	EventRemoved
)

// ListenerFunc receives account lifecycle events.
type ListenerFunc func(account string, ev Event)

var (
	// ErrInvalidName is returned for empty account names and names
	// containing the namespace separator.
	ErrInvalidName = errors.New("accounts: invalid account name")

	// ErrAccountExists is returned when adding an account whose name is
	// already taken.
	ErrAccountExists = errors.New("accounts: account already exists")

	// ErrNotFound is returned when loading an account that does not exist.
	ErrNotFound = errors.New("accounts: account not found")

	// ErrCorrupted is returned when an account references a server
	// account whose settings cannot be loaded.
	ErrCorrupted = errors.New("accounts: corrupted account settings")
)

// Registry is the account settings registry.
type Registry struct {
	store conf.Store
	log   zerolog.Logger

	collator *collate.Collator

	accKeys *keyCache
	srvKeys *keyCache

	listeners []ListenerFunc

	// quiet suppresses watch-driven change events while a multi-step
	// add or remove is in flight; the operation emits its own event.
	quiet bool
}

// New creates a registry over the given conf store and subscribes to
// its change notifications.
func New(store conf.Store, log zerolog.Logger) *Registry {
	r := &Registry{
		store:    store,
		log:      log.With().Str("component", "accounts").Logger(),
		collator: collate.New(language.Und, collate.IgnoreCase),
		accKeys:  newKeyCache(namespaceAccounts),
		srvKeys:  newKeyCache(namespaceServers),
	}
	store.Watch(namespaceAccounts, r.onConfChange)
	return r
}

// AddListener registers fn for account lifecycle events.
func (r *Registry) AddListener(fn ListenerFunc) {
	r.listeners = append(r.listeners, fn)
}

func (r *Registry) emit(account string, ev Event) {
	for _, fn := range r.listeners {
		fn(account, ev)
	}
}

// onConfChange maps raw store mutations under the accounts namespace
// to per-account change events.
func (r *Registry) onConfChange(key string, _ conf.ChangeKind) {
	if r.quiet {
		return
	}
	rest := strings.TrimPrefix(key, namespaceAccounts+"/")
	if rest == key {
		return
	}
	escaped, _, _ := strings.Cut(rest, "/")
	account, err := conf.Unescape(escaped)
	if err != nil {
		r.log.Warn().Str("key", key).Err(err).Msg("unparseable account key in change event")
		return
	}
	r.emit(account, EventChanged)
}

// AccountExists reports whether the named account (or server account,
// when server is true) has any persisted settings.
func (r *Registry) AccountExists(ctx context.Context, name string, server bool) (bool, error) {
	exists, err := r.store.Exists(ctx, r.cacheFor(server).key(name, ""))
	if err != nil {
		return false, fmt.Errorf("checking account %q: %w", name, err)
	}
	return exists, nil
}

// AccountNames lists account names, optionally restricted to enabled
// accounts. Accounts whose referenced store or transport server
// account no longer exists are dropped rather than reported, so
// enumeration stays usable during partial deletion.
func (r *Registry) AccountNames(ctx context.Context, onlyEnabled bool) ([]string, error) {
	subkeys, err := r.store.ListSubKeys(ctx, namespaceAccounts)
	if err != nil {
		return nil, fmt.Errorf("listing accounts: %w", err)
	}

	var names []string
	for _, escaped := range subkeys {
		name, err := conf.Unescape(escaped)
		if err != nil {
			r.log.Warn().Str("key", escaped).Err(err).Msg("skipping unparseable account key")
			continue
		}
		if onlyEnabled {
			enabled, err := r.Bool(ctx, name, propEnabled, false)
			if err != nil || !enabled {
				continue
			}
		}
		ok, err := r.dependentsExist(ctx, name)
		if err != nil {
			return nil, err
		}
		if !ok {
			r.log.Debug().Str("account", name).Msg("dropping account with missing server accounts")
			continue
		}
		names = append(names, name)
	}
	return names, nil
}

// dependentsExist checks that both server accounts referenced by the
// account are still present.
func (r *Registry) dependentsExist(ctx context.Context, name string) (bool, error) {
	for _, prop := range []string{propStoreAccount, propTransportAccount} {
		ref, err := r.String(ctx, name, prop, false)
		if err != nil || ref == "" {
			return false, nil
		}
		exists, err := r.AccountExists(ctx, ref, true)
		if err != nil {
			return false, err
		}
		if !exists {
			return false, nil
		}
	}
	return true, nil
}

// AddAccount creates an account referencing the given store and
// transport server accounts. Properties are written sequentially; the
// first failure aborts and returns without rolling back earlier
// writes, so a failed add may leave a partially written account.
func (r *Registry) AddAccount(ctx context.Context, name, storeAccount, transportAccount string, enabled bool) error {
	if name == "" || strings.ContainsRune(name, '/') {
		return fmt.Errorf("%w: %q", ErrInvalidName, name)
	}
	exists, err := r.AccountExists(ctx, name, false)
	if err != nil {
		return err
	}
	if exists {
		return fmt.Errorf("%w: %q", ErrAccountExists, name)
	}

	r.quiet = true
	defer func() { r.quiet = false }()

	writes := []struct {
		prop  string
		write func(key string) error
	}{
		{propStoreAccount, func(k string) error { return r.store.SetString(ctx, k, storeAccount) }},
		{propTransportAccount, func(k string) error { return r.store.SetString(ctx, k, transportAccount) }},
		{propEnabled, func(k string) error { return r.store.SetBool(ctx, k, enabled) }},
	}
	for _, w := range writes {
		if err := w.write(r.accKeys.key(name, w.prop)); err != nil {
			return fmt.Errorf("adding account %q: %w", name, err)
		}
	}

	// First account becomes the default.
	def, err := r.DefaultAccountName(ctx)
	if err == nil && def == "" {
		if err := r.store.SetString(ctx, keyDefaultAccount, name); err != nil {
			return fmt.Errorf("adding account %q: %w", name, err)
		}
	}

	r.quiet = false
	r.emit(name, EventInserted)
	return nil
}

// AddServerAccount creates a server account. Writes are sequential and
// non-transactional, like AddAccount.
func (r *Registry) AddServerAccount(ctx context.Context, settings ServerAccountArgs) error {
	if settings.Name == "" || strings.ContainsRune(settings.Name, '/') {
		return fmt.Errorf("%w: %q", ErrInvalidName, settings.Name)
	}
	exists, err := r.AccountExists(ctx, settings.Name, true)
	if err != nil {
		return err
	}
	if exists {
		return fmt.Errorf("%w: %q", ErrAccountExists, settings.Name)
	}

	r.quiet = true
	defer func() { r.quiet = false }()

	key := func(prop string) string { return r.srvKeys.key(settings.Name, prop) }
	writes := []func() error{
		func() error { return r.store.SetString(ctx, key(propHostname), settings.Hostname) },
		func() error { return r.store.SetInt(ctx, key(propPort), settings.Port) },
		func() error { return r.store.SetString(ctx, key(propProto), settings.Protocol) },
		func() error { return r.store.SetString(ctx, key(propSecurity), settings.Security) },
		func() error { return r.store.SetString(ctx, key(propAuthMech), settings.Auth) },
		func() error { return r.store.SetString(ctx, key(propUsername), settings.Username) },
		func() error { return r.store.SetString(ctx, key(propPassword), settings.Password) },
	}
	if settings.URI != "" {
		writes = append(writes, func() error { return r.store.SetString(ctx, key(propURI), settings.URI) })
	}
	for _, write := range writes {
		if err := write(); err != nil {
			return fmt.Errorf("adding server account %q: %w", settings.Name, err)
		}
	}
	return nil
}

// ServerAccountArgs holds the initial settings of a new server account.
type ServerAccountArgs struct {
	Name     string
	Hostname string
	Port     int
	Protocol string
	Security string
	Auth     string
	Username string
	Password string
	URI      string
}

// RemoveAccount removes the account and both of its server accounts.
// If the account was the default, the default moves to the first
// remaining enabled account in collated name order. The removal event
// is emitted only after every deletion has completed.
func (r *Registry) RemoveAccount(ctx context.Context, name string) error {
	exists, err := r.AccountExists(ctx, name, false)
	if err != nil {
		return err
	}
	if !exists {
		return fmt.Errorf("%w: %q", ErrNotFound, name)
	}

	storeRef, _ := r.String(ctx, name, propStoreAccount, false)
	transportRef, _ := r.String(ctx, name, propTransportAccount, false)

	def, err := r.DefaultAccountName(ctx)
	if err != nil {
		return err
	}

	r.quiet = true
	defer func() { r.quiet = false }()

	if def == name {
		if err := r.electNewDefault(ctx, name); err != nil {
			return err
		}
	}

	for _, ref := range []string{storeRef, transportRef} {
		if ref == "" {
			continue
		}
		if err := r.store.RemoveTree(ctx, r.srvKeys.key(ref, "")); err != nil {
			return fmt.Errorf("removing server account %q: %w", ref, err)
		}
	}
	if err := r.store.RemoveTree(ctx, r.accKeys.key(name, "")); err != nil {
		return fmt.Errorf("removing account %q: %w", name, err)
	}

	r.quiet = false
	r.emit(name, EventRemoved)
	return nil
}

// electNewDefault clears the default and promotes the collated-first
// remaining enabled account, skipping the named one.
func (r *Registry) electNewDefault(ctx context.Context, skip string) error {
	if err := r.store.SetString(ctx, keyDefaultAccount, ""); err != nil {
		return fmt.Errorf("clearing default account: %w", err)
	}

	names, err := r.AccountNames(ctx, true)
	if err != nil {
		return err
	}

	best := ""
	for _, n := range names {
		if n == skip {
			continue
		}
		if best == "" || r.collator.CompareString(n, best) < 0 {
			best = n
		}
	}
	if best == "" {
		return nil
	}
	if err := r.store.SetString(ctx, keyDefaultAccount, best); err != nil {
		return fmt.Errorf("electing default account: %w", err)
	}
	return nil
}

// DefaultAccountName returns the current default account, or "" when
// no default is set.
func (r *Registry) DefaultAccountName(ctx context.Context) (string, error) {
	def, err := r.store.GetString(ctx, keyDefaultAccount)
	if errors.Is(err, conf.ErrNotFound) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("reading default account: %w", err)
	}
	return def, nil
}

// SetDefaultAccount makes name the default account.
func (r *Registry) SetDefaultAccount(ctx context.Context, name string) error {
	exists, err := r.AccountExists(ctx, name, false)
	if err != nil {
		return err
	}
	if !exists {
		return fmt.Errorf("%w: %q", ErrNotFound, name)
	}
	if err := r.store.SetString(ctx, keyDefaultAccount, name); err != nil {
		return fmt.Errorf("setting default account: %w", err)
	}
	return nil
}

// IsDefault reports whether name is the default account.
func (r *Registry) IsDefault(ctx context.Context, name string) (bool, error) {
	def, err := r.DefaultAccountName(ctx)
	if err != nil {
		return false, err
	}
	return def != "" && def == name, nil
}

// IsEnabled reports whether the account is enabled. Missing accounts
// and read failures report false.
func (r *Registry) IsEnabled(ctx context.Context, name string) bool {
	enabled, err := r.Bool(ctx, name, propEnabled, false)
	if err != nil {
		return false
	}
	return enabled
}

// SetEnabled flips the account's enabled flag.
func (r *Registry) SetEnabled(ctx context.Context, name string, enabled bool) error {
	return r.SetBool(ctx, name, propEnabled, false, enabled)
}

// SetUsernameHasSucceeded records whether the server account's current
// username has been accepted by its server.
func (r *Registry) SetUsernameHasSucceeded(ctx context.Context, serverName string, ok bool) error {
	return r.SetBool(ctx, serverName, propUserSucceeded, true, ok)
}

// DisplayName returns the account's display name, or "" when unset.
func (r *Registry) DisplayName(ctx context.Context, name string) string {
	display, err := r.String(ctx, name, propDisplayName, false)
	if err != nil {
		return ""
	}
	return display
}

// SetDisplayName sets the account's display name.
func (r *Registry) SetDisplayName(ctx context.Context, name, display string) error {
	return r.SetString(ctx, name, propDisplayName, false, display)
}

// SetEmail sets the account's address.
func (r *Registry) SetEmail(ctx context.Context, name, email string) error {
	return r.SetString(ctx, name, propEmail, false, email)
}
