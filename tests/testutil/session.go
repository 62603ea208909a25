package testutil

import (
	"context"
	"fmt"
	"io"
	"sort"

	"github.com/jdapena/iwkmail/internal/transport"
)

// AuthAttempt records one authentication attempt against a FakeSession.
type AuthAttempt struct {
	Mech   string
	Secret string
}

// FakeSession is a scripted transport.Session. Each Authenticate call
// consumes the next result from Script; attempts beyond the script are
// accepted.
type FakeSession struct {
	Config transport.Settings

	Script   []transport.AuthResult
	Attempts []AuthAttempt

	Online       bool
	IsConnected  bool
	Disconnected int

	Folders map[string]bool

	secret string
}

var _ transport.Session = (*FakeSession)(nil)

// NewFakeSession creates a fake session bound to settings.
func NewFakeSession(settings transport.Settings) *FakeSession {
	return &FakeSession{
		Config:  settings,
		Online:  true,
		Folders: make(map[string]bool),
	}
}

func (s *FakeSession) Settings() transport.Settings { return s.Config }

func (s *FakeSession) Authenticate(_ context.Context, mech string) transport.AuthResult {
	s.Attempts = append(s.Attempts, AuthAttempt{Mech: mech, Secret: s.secret})
	if !s.Online {
		return transport.AuthResult{Status: transport.AuthErrored, Err: transport.ErrOffline}
	}
	if len(s.Script) == 0 {
		s.IsConnected = true
		return transport.AuthResult{Status: transport.AuthAccepted}
	}
	res := s.Script[0]
	s.Script = s.Script[1:]
	if res.Status == transport.AuthAccepted {
		s.IsConnected = true
	}
	return res
}

func (s *FakeSession) Disconnect() error {
	s.Disconnected++
	s.IsConnected = false
	return nil
}

func (s *FakeSession) Connected() bool { return s.IsConnected }

func (s *FakeSession) Secret() string          { return s.secret }
func (s *FakeSession) SetSecret(secret string) { s.secret = secret }
func (s *FakeSession) ClearSecret()            { s.secret = "" }

func (s *FakeSession) SetOnline(online bool) {
	s.Online = online
	if !online {
		s.IsConnected = false
	}
}

func (s *FakeSession) CreateFolder(_ context.Context, name string) error {
	s.Folders[name] = true
	return nil
}

func (s *FakeSession) OpenFolder(_ context.Context, name string) (transport.Folder, error) {
	if !s.Folders[name] {
		return nil, fmt.Errorf("no such folder %q", name)
	}
	return fakeFolder(name), nil
}

func (s *FakeSession) DeleteFolder(_ context.Context, name string) error {
	delete(s.Folders, name)
	return nil
}

func (s *FakeSession) ListFolders(context.Context) ([]string, error) {
	names := make([]string, 0, len(s.Folders))
	for name := range s.Folders {
		names = append(names, name)
	}
	sort.Strings(names)
	return names, nil
}

func (s *FakeSession) RefreshFolder(_ context.Context, name string) error {
	if !s.Folders[name] {
		return fmt.Errorf("no such folder %q", name)
	}
	return nil
}

type fakeFolder string

func (f fakeFolder) Name() string { return string(f) }

func (f fakeFolder) Append(context.Context, io.Reader) error {
	return nil
}

// FakeProviderSet builds a provider map whose remote factories capture
// every created session for later assertions. Local formats use the
// real filesystem provider rooted at dir.
type FakeProviderSet struct {
	Providers transport.Providers

	// Created holds every fake session handed out, in creation order.
	Created []*FakeSession
}

// NewFakeProviderSet creates the provider set. Remote provider names
// get fake sessions; maildir, mbox and sendmail stay real so special
// folder handling is exercised against the filesystem.
func NewFakeProviderSet(dir string) *FakeProviderSet {
	set := &FakeProviderSet{Providers: transport.DefaultProviders(dir)}
	for _, name := range []string{"imap", "pop", "smtp"} {
		set.Providers[name] = func(settings transport.Settings) (transport.Session, error) {
			session := NewFakeSession(settings)
			set.Created = append(set.Created, session)
			return session, nil
		}
	}
	return set
}

// LastSession returns the most recently created fake session.
func (s *FakeProviderSet) LastSession() *FakeSession {
	if len(s.Created) == 0 {
		return nil
	}
	return s.Created[len(s.Created)-1]
}
