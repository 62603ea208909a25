package accounts

import (
	"context"
	"errors"

	"github.com/jdapena/iwkmail/internal/conf"
)

// Typed property access for account and server-account settings. The
// server flag selects the namespace. Reads of missing keys return the
// zero value with conf.ErrNotFound; persistence failures surface as
// errors here and are converted to sentinels by the callers that need
// boolean semantics.

func (r *Registry) String(ctx context.Context, account, prop string, server bool) (string, error) {
	return r.store.GetString(ctx, r.cacheFor(server).key(account, prop))
}

func (r *Registry) SetString(ctx context.Context, account, prop string, server bool, value string) error {
	return r.store.SetString(ctx, r.cacheFor(server).key(account, prop), value)
}

func (r *Registry) Int(ctx context.Context, account, prop string, server bool) (int, error) {
	return r.store.GetInt(ctx, r.cacheFor(server).key(account, prop))
}

func (r *Registry) SetInt(ctx context.Context, account, prop string, server bool, value int) error {
	return r.store.SetInt(ctx, r.cacheFor(server).key(account, prop), value)
}

func (r *Registry) Bool(ctx context.Context, account, prop string, server bool) (bool, error) {
	return r.store.GetBool(ctx, r.cacheFor(server).key(account, prop))
}

func (r *Registry) SetBool(ctx context.Context, account, prop string, server bool, value bool) error {
	return r.store.SetBool(ctx, r.cacheFor(server).key(account, prop), value)
}

func (r *Registry) StringList(ctx context.Context, account, prop string, server bool) ([]string, error) {
	return r.store.GetStringList(ctx, r.cacheFor(server).key(account, prop))
}

func (r *Registry) SetStringList(ctx context.Context, account, prop string, server bool, value []string) error {
	return r.store.SetStringList(ctx, r.cacheFor(server).key(account, prop), value)
}

// stringOr reads a string property, mapping a missing key to def and
// logging (not propagating) other persistence failures.
func (r *Registry) stringOr(ctx context.Context, account, prop string, server bool, def string) string {
	v, err := r.String(ctx, account, prop, server)
	if errors.Is(err, conf.ErrNotFound) {
		return def
	}
	if err != nil {
		r.log.Warn().Str("account", account).Str("prop", prop).Err(err).Msg("property read failed")
		return def
	}
	return v
}

func (r *Registry) intOr(ctx context.Context, account, prop string, server bool, def int) int {
	v, err := r.Int(ctx, account, prop, server)
	if errors.Is(err, conf.ErrNotFound) {
		return def
	}
	if err != nil {
		r.log.Warn().Str("account", account).Str("prop", prop).Err(err).Msg("property read failed")
		return def
	}
	return v
}

func (r *Registry) boolOr(ctx context.Context, account, prop string, server bool, def bool) bool {
	v, err := r.Bool(ctx, account, prop, server)
	if errors.Is(err, conf.ErrNotFound) {
		return def
	}
	if err != nil {
		r.log.Warn().Str("account", account).Str("prop", prop).Err(err).Msg("property read failed")
		return def
	}
	return v
}
