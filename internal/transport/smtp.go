package transport

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"sync"

	"github.com/emersion/go-smtp"
)

// smtpSession implements Session over go-smtp. Transports own no
// mailboxes, so the folder operations report ErrNoFolders. The client
// field is written by the connectivity monitor while other goroutines
// run commands, so every access goes through the mutex.
type smtpSession struct {
	settings Settings

	mu     sync.Mutex
	client *smtp.Client
	secret string
	online bool
}

// ErrNoFolders is returned for mailbox operations on transport-only
// sessions.
var ErrNoFolders = errors.New("transport: session has no mailboxes")

// NewSMTPSession creates an SMTP session bound to settings. No
// connection is made until the first authentication.
func NewSMTPSession(settings Settings) (Session, error) {
	if settings.Host == "" {
		return nil, fmt.Errorf("smtp session: no hostname")
	}
	return &smtpSession{settings: settings, online: true}, nil
}

func (s *smtpSession) Settings() Settings { return s.settings }

// conn returns the live client, dialing first when disconnected.
func (s *smtpSession) conn() (*smtp.Client, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.client != nil {
		return s.client, nil
	}
	if !s.online {
		return nil, ErrOffline
	}

	addr := s.settings.Addr()
	tlsConfig := &tls.Config{ServerName: s.settings.Host}
	var (
		client *smtp.Client
		err    error
	)
	switch s.settings.Security {
	case SecuritySSL:
		client, err = smtp.DialTLS(addr, tlsConfig)
	case SecuritySTARTTLS:
		client, err = smtp.DialStartTLS(addr, tlsConfig)
	default:
		client, err = smtp.Dial(addr)
	}
	if err != nil {
		return nil, fmt.Errorf("connecting to SMTP %s: %w", addr, err)
	}
	s.client = client
	return client, nil
}

// Authenticate performs one attempt. SMTP 53x replies map to
// AuthRejected; everything else that fails is AuthErrored.
func (s *smtpSession) Authenticate(_ context.Context, mech string) AuthResult {
	client, err := s.conn()
	if err != nil {
		return AuthResult{Status: AuthErrored, Err: err}
	}

	// SMTP has no separate login command; the native mechanism is LOGIN.
	if mech == "" {
		mech = "LOGIN"
	}
	saslClient, err := newSASLClient(mech, s.settings.User, s.Secret())
	if err != nil {
		return AuthResult{Status: AuthErrored, Err: err}
	}

	if err := client.Auth(saslClient); err != nil {
		var smtpErr *smtp.SMTPError
		if errors.As(err, &smtpErr) && smtpErr.Code >= 530 && smtpErr.Code <= 539 {
			return AuthResult{Status: AuthRejected, Err: err}
		}
		return AuthResult{Status: AuthErrored, Err: fmt.Errorf("authenticating to %s: %w", s.settings.Addr(), err)}
	}
	return AuthResult{Status: AuthAccepted}
}

func (s *smtpSession) Disconnect() error {
	s.mu.Lock()
	client := s.client
	s.client = nil
	s.mu.Unlock()

	if client == nil {
		return nil
	}
	if err := client.Quit(); err != nil {
		return client.Close()
	}
	return nil
}

func (s *smtpSession) Connected() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.client != nil
}

func (s *smtpSession) Secret() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.secret
}

func (s *smtpSession) SetSecret(secret string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.secret = secret
}

func (s *smtpSession) ClearSecret() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.secret = ""
}

func (s *smtpSession) SetOnline(online bool) {
	s.mu.Lock()
	s.online = online
	var client *smtp.Client
	if !online {
		client = s.client
		s.client = nil
	}
	s.mu.Unlock()

	if client != nil {
		_ = client.Close()
	}
}

func (s *smtpSession) CreateFolder(context.Context, string) error { return ErrNoFolders }

func (s *smtpSession) OpenFolder(context.Context, string) (Folder, error) {
	return nil, ErrNoFolders
}

func (s *smtpSession) DeleteFolder(context.Context, string) error { return ErrNoFolders }

func (s *smtpSession) ListFolders(context.Context) ([]string, error) {
	return nil, ErrNoFolders
}

func (s *smtpSession) RefreshFolder(context.Context, string) error { return ErrNoFolders }
