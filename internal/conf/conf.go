// Package conf provides typed, namespaced key-value persistence for
// account and application settings, with subtree listing, removal and
// change notification.
//
// Keys are slash-separated paths ("accounts/myaccount/display_name")
// resolved under an overridable root namespace, so independent
// instances of the program can coexist against the same database.
//
// Access is synchronous and assumes a single writer; callers that
// mutate the same keys concurrently must serialize externally.
package conf

import (
	"context"
	"errors"
)

// ChangeKind describes what happened to a watched key.
type ChangeKind int

const (
	// ChangeSet means the key was created or its value replaced.
	ChangeSet ChangeKind = iota

	// ChangeRemoved means the key (or the subtree rooted at it) was removed.
	ChangeRemoved
)

// WatchFunc receives change notifications for keys under a watched
// namespace. The key is relative to the store root, not the namespace.
type WatchFunc func(key string, kind ChangeKind)

// ErrNotFound is returned by typed getters when the key does not exist.
var ErrNotFound = errors.New("conf: key not found")

// ErrTypeMismatch is returned when a key exists but holds a value of a
// different type than the one requested.
var ErrTypeMismatch = errors.New("conf: value type mismatch")

// Store is the persistence contract used by the account registry.
//
// All keys are interpreted relative to the store's root namespace.
type Store interface {
	GetString(ctx context.Context, key string) (string, error)
	SetString(ctx context.Context, key, value string) error

	GetInt(ctx context.Context, key string) (int, error)
	SetInt(ctx context.Context, key string, value int) error

	GetFloat(ctx context.Context, key string) (float64, error)
	SetFloat(ctx context.Context, key string, value float64) error

	GetBool(ctx context.Context, key string) (bool, error)
	SetBool(ctx context.Context, key string, value bool) error

	GetStringList(ctx context.Context, key string) ([]string, error)
	SetStringList(ctx context.Context, key string, value []string) error

	// Exists reports whether the key itself, or any key below it, is set.
	Exists(ctx context.Context, key string) (bool, error)

	// ListSubKeys returns the immediate child segments under key,
	// without the parent prefix. Children are reported once even when
	// they only exist as deeper paths.
	ListSubKeys(ctx context.Context, key string) ([]string, error)

	// RemoveTree deletes the key and every key below it. Watchers
	// receive a single ChangeRemoved event for the subtree root.
	RemoveTree(ctx context.Context, key string) error

	// Watch registers fn for every mutation at or under namespace.
	// Callbacks run synchronously on the mutating goroutine.
	Watch(namespace string, fn WatchFunc)

	Close() error
}
