package transport

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"

	"github.com/emersion/go-imap/v2"
	"github.com/emersion/go-imap/v2/imapclient"
)

// imapSession implements Session over go-imap v2. The client field is
// written by the connectivity monitor while other goroutines run
// commands, so every access goes through the mutex.
type imapSession struct {
	settings Settings

	mu     sync.Mutex
	client *imapclient.Client
	secret string
	online bool
}

// NewIMAPSession creates an IMAP session bound to settings. No
// connection is made until the first authentication.
func NewIMAPSession(settings Settings) (Session, error) {
	if settings.Host == "" {
		return nil, fmt.Errorf("imap session: no hostname")
	}
	return &imapSession{settings: settings, online: true}, nil
}

func (s *imapSession) Settings() Settings { return s.settings }

// conn returns the live client, dialing first when disconnected.
func (s *imapSession) conn() (*imapclient.Client, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.client != nil {
		return s.client, nil
	}
	if !s.online {
		return nil, ErrOffline
	}

	addr := s.settings.Addr()
	var (
		client *imapclient.Client
		err    error
	)
	switch s.settings.Security {
	case SecuritySSL:
		client, err = imapclient.DialTLS(addr, nil)
	case SecuritySTARTTLS:
		client, err = imapclient.DialStartTLS(addr, nil)
	default:
		client, err = imapclient.DialInsecure(addr, nil)
	}
	if err != nil {
		return nil, fmt.Errorf("connecting to IMAP %s: %w", addr, err)
	}
	s.client = client
	return client, nil
}

// Authenticate performs one attempt with the given mechanism. An
// explicit NO from the server maps to AuthRejected; everything else
// that fails is AuthErrored.
func (s *imapSession) Authenticate(_ context.Context, mech string) AuthResult {
	client, err := s.conn()
	if err != nil {
		return AuthResult{Status: AuthErrored, Err: err}
	}
	secret := s.Secret()

	if mech == "" {
		err = client.Login(s.settings.User, secret).Wait()
	} else {
		saslClient, saslErr := newSASLClient(mech, s.settings.User, secret)
		if saslErr != nil {
			return AuthResult{Status: AuthErrored, Err: saslErr}
		}
		err = client.Authenticate(saslClient)
	}
	if err == nil {
		return AuthResult{Status: AuthAccepted}
	}

	var imapErr *imap.Error
	if errors.As(err, &imapErr) && imapErr.Type == imap.StatusResponseTypeNo {
		return AuthResult{Status: AuthRejected, Err: err}
	}
	return AuthResult{Status: AuthErrored, Err: fmt.Errorf("authenticating to %s: %w", s.settings.Addr(), err)}
}

func (s *imapSession) Disconnect() error {
	s.mu.Lock()
	client := s.client
	s.client = nil
	s.mu.Unlock()

	if client == nil {
		return nil
	}
	if err := client.Logout().Wait(); err != nil {
		// Logout races with dropped connections; closing is enough.
		return client.Close()
	}
	return nil
}

func (s *imapSession) Connected() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.client != nil
}

func (s *imapSession) Secret() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.secret
}

func (s *imapSession) SetSecret(secret string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.secret = secret
}

func (s *imapSession) ClearSecret() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.secret = ""
}

func (s *imapSession) SetOnline(online bool) {
	s.mu.Lock()
	s.online = online
	var client *imapclient.Client
	if !online {
		client = s.client
		s.client = nil
	}
	s.mu.Unlock()

	if client != nil {
		// Offline transitions drop the connection immediately, without
		// waiting for in-flight commands.
		_ = client.Close()
	}
}

func (s *imapSession) CreateFolder(_ context.Context, name string) error {
	client, err := s.conn()
	if err != nil {
		return err
	}
	if err := client.Create(name, nil).Wait(); err != nil {
		return fmt.Errorf("creating mailbox %q: %w", name, err)
	}
	return nil
}

func (s *imapSession) OpenFolder(_ context.Context, name string) (Folder, error) {
	client, err := s.conn()
	if err != nil {
		return nil, err
	}
	if _, err := client.Select(name, nil).Wait(); err != nil {
		return nil, fmt.Errorf("selecting mailbox %q: %w", name, err)
	}
	return &imapFolder{session: s, name: name}, nil
}

func (s *imapSession) DeleteFolder(_ context.Context, name string) error {
	client, err := s.conn()
	if err != nil {
		return err
	}
	if err := client.Delete(name).Wait(); err != nil {
		return fmt.Errorf("deleting mailbox %q: %w", name, err)
	}
	return nil
}

func (s *imapSession) ListFolders(_ context.Context) ([]string, error) {
	client, err := s.conn()
	if err != nil {
		return nil, err
	}
	boxes, err := client.List("", "*", nil).Collect()
	if err != nil {
		return nil, fmt.Errorf("listing mailboxes: %w", err)
	}
	names := make([]string, 0, len(boxes))
	for _, box := range boxes {
		names = append(names, box.Mailbox)
	}
	return names, nil
}

func (s *imapSession) RefreshFolder(_ context.Context, name string) error {
	client, err := s.conn()
	if err != nil {
		return err
	}
	opts := &imap.StatusOptions{NumMessages: true, UIDValidity: true}
	if _, err := client.Status(name, opts).Wait(); err != nil {
		return fmt.Errorf("refreshing mailbox %q: %w", name, err)
	}
	return nil
}

type imapFolder struct {
	session *imapSession
	name    string
}

func (f *imapFolder) Name() string { return f.name }

// Append stores one message. The folder may outlive the connection it
// was opened on, so the client is re-resolved per call; an offline
// session reports ErrOffline instead of appending.
func (f *imapFolder) Append(ctx context.Context, msg io.Reader) error {
	client, err := f.session.conn()
	if err != nil {
		return err
	}
	data, err := io.ReadAll(msg)
	if err != nil {
		return fmt.Errorf("reading message: %w", err)
	}
	cmd := client.Append(f.name, int64(len(data)), nil)
	if _, err := cmd.Write(data); err != nil {
		cmd.Close()
		return fmt.Errorf("appending to %q: %w", f.name, err)
	}
	if err := cmd.Close(); err != nil {
		return fmt.Errorf("appending to %q: %w", f.name, err)
	}
	if _, err := cmd.Wait(); err != nil {
		return fmt.Errorf("appending to %q: %w", f.name, err)
	}
	return nil
}
