// Package transport defines the session collaborator the service
// manager drives: live connections bound to one server configuration,
// with authentication, mailbox management and a cached secret. Wire
// protocols and mailbox formats are owned by the providers, not by the
// callers.
package transport

import (
	"context"
	"errors"
	"fmt"
	"io"
)

// Security selects the connection security mode of a session.
type Security int

const (
	// SecurityNone connects in the clear on the standard port.
	SecurityNone Security = iota

	// SecuritySSL wraps the connection in TLS on the alternate port.
	SecuritySSL

	// SecuritySTARTTLS upgrades a standard-port connection via STARTTLS.
	SecuritySTARTTLS
)

func (s Security) String() string {
	switch s {
	case SecuritySSL:
		return "ssl"
	case SecuritySTARTTLS:
		return "starttls"
	default:
		return "none"
	}
}

// Settings binds a session to one server endpoint.
type Settings struct {
	Host string
	Port int
	User string

	Security Security

	// AuthMech is the SASL mechanism name, or "" for the protocol's
	// native login command.
	AuthMech string

	// LocalDir roots filesystem-backed providers; unused by remote ones.
	LocalDir string
}

// Addr returns the host:port dial address.
func (s Settings) Addr() string {
	return fmt.Sprintf("%s:%d", s.Host, s.Port)
}

// AuthStatus is the outcome of one authentication attempt.
type AuthStatus int

const (
	// AuthAccepted means the server accepted the credentials.
	AuthAccepted AuthStatus = iota

	// AuthRejected means the server explicitly refused the credentials.
	AuthRejected

	// AuthErrored means the attempt failed for another reason
	// (connection, protocol, unsupported mechanism).
	AuthErrored
)

// AuthResult carries the attempt outcome and, for AuthErrored, the
// underlying error.
type AuthResult struct {
	Status AuthStatus
	Err    error
}

// ErrOffline is returned by sessions forced offline by the
// connectivity monitor.
var ErrOffline = errors.New("transport: offline")

// Folder is an open named mailbox.
type Folder interface {
	Name() string

	// Append stores one complete message into the mailbox.
	Append(ctx context.Context, msg io.Reader) error
}

// Session is one live service connection bound to (settings, role).
//
// Sessions cache the plaintext secret used for authentication; the
// cache belongs to the session, not the credential store, and is
// cleared when the server rejects it.
type Session interface {
	Settings() Settings

	// Authenticate performs one authentication attempt with the given
	// mechanism, connecting first if necessary.
	Authenticate(ctx context.Context, mech string) AuthResult

	// Disconnect drops the connection. It is safe to call when already
	// disconnected.
	Disconnect() error

	Connected() bool

	Secret() string
	SetSecret(secret string)
	ClearSecret()

	// SetOnline flips the session's view of network availability.
	// Going offline forces an immediate disconnect without waiting for
	// in-flight operations.
	SetOnline(online bool)

	CreateFolder(ctx context.Context, name string) error
	OpenFolder(ctx context.Context, name string) (Folder, error)
	DeleteFolder(ctx context.Context, name string) error
	ListFolders(ctx context.Context) ([]string, error)

	// RefreshFolder re-reads the mailbox state from the backend.
	RefreshFolder(ctx context.Context, name string) error
}

// Factory instantiates a session bound to the given settings without
// connecting.
type Factory func(settings Settings) (Session, error)

// Providers maps provider names to session factories.
type Providers map[string]Factory

// New instantiates a session from the named provider.
func (p Providers) New(name string, settings Settings) (Session, error) {
	f, ok := p[name]
	if !ok {
		return nil, fmt.Errorf("transport: unknown provider %q", name)
	}
	return f(settings)
}

// DefaultProviders returns the built-in provider set. Local formats
// share the maildir-style filesystem session rooted at mailDir.
func DefaultProviders(mailDir string) Providers {
	local := func(settings Settings) (Session, error) {
		if settings.LocalDir == "" {
			settings.LocalDir = mailDir
		}
		return NewLocalSession(settings)
	}
	return Providers{
		"imap":     NewIMAPSession,
		"pop":      NewPOPSession,
		"smtp":     NewSMTPSession,
		"maildir":  local,
		"mbox":     local,
		"sendmail": local,
	}
}
