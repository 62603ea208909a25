// Package session turns persisted account settings into live,
// authenticated service sessions and manages the special mailboxes
// (per-account Outbox, shared Drafts, per-account local Inbox) that
// live outside normal remote storage.
package session

import (
	"context"
	"fmt"
	"path/filepath"
	"sync"

	"github.com/rs/zerolog"

	"github.com/jdapena/iwkmail/internal/accounts"
	"github.com/jdapena/iwkmail/internal/credential"
	"github.com/jdapena/iwkmail/internal/model"
	"github.com/jdapena/iwkmail/internal/netmon"
	"github.com/jdapena/iwkmail/internal/protocol"
	"github.com/jdapena/iwkmail/internal/transport"
)

// EventKind describes a session lifecycle notification.
type EventKind int

const (
	SessionCreated EventKind = iota
	SessionUpdated
	SessionRemoved
)

// EventFunc receives session lifecycle events.
type EventFunc func(account string, kind EventKind)

// Manager owns every live service session, one store and one transport
// per enabled account.
type Manager struct {
	registry    *accounts.Registry
	protocols   *protocol.Registry
	credentials credential.Store
	providers   transport.Providers
	prompter    Prompter
	monitor     netmon.Monitor
	log         zerolog.Logger
	mailDir     string

	localStore transport.Session

	mu        sync.Mutex
	services  map[string]map[model.AccountRole]*Service
	online    bool
	listeners []EventFunc
}

// Config carries the manager's collaborators; every field is required.
type Config struct {
	Registry    *accounts.Registry
	Protocols   *protocol.Registry
	Credentials credential.Store
	Providers   transport.Providers
	Prompter    Prompter
	Monitor     netmon.Monitor
	MailDir     string
	Logger      zerolog.Logger
}

// NewManager wires a manager from its collaborators and opens the
// shared local store holding the special mailboxes.
func NewManager(cfg Config) (*Manager, error) {
	m := &Manager{
		registry:    cfg.Registry,
		protocols:   cfg.Protocols,
		credentials: cfg.Credentials,
		providers:   cfg.Providers,
		prompter:    cfg.Prompter,
		monitor:     cfg.Monitor,
		log:         cfg.Logger.With().Str("component", "session").Logger(),
		mailDir:     cfg.MailDir,
		services:    make(map[string]map[model.AccountRole]*Service),
		online:      cfg.Monitor.Online(),
	}

	local, err := m.providers.New(protocol.ProtocolMaildir, transport.Settings{
		LocalDir: filepath.Join(cfg.MailDir, "store"),
	})
	if err != nil {
		return nil, fmt.Errorf("opening local store: %w", err)
	}
	m.localStore = local

	return m, nil
}

// AddListener registers fn for session lifecycle events. Events from
// the initial quiet load are not delivered.
func (m *Manager) AddListener(fn EventFunc) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.listeners = append(m.listeners, fn)
}

func (m *Manager) emit(account string, kind EventKind) {
	m.mu.Lock()
	listeners := make([]EventFunc, len(m.listeners))
	copy(listeners, m.listeners)
	m.mu.Unlock()

	for _, fn := range listeners {
		fn(account, kind)
	}
}

// Start performs the quiet initial load, creating sessions for every
// enabled account without emitting events, then subscribes to account
// and connectivity changes.
func (m *Manager) Start(ctx context.Context) error {
	if err := m.ensureDrafts(ctx); err != nil {
		return err
	}

	names, err := m.registry.AccountNames(ctx, true)
	if err != nil {
		return fmt.Errorf("loading enabled accounts: %w", err)
	}
	for _, name := range names {
		if err := m.createSessions(ctx, name); err != nil {
			// A broken account must not keep the rest from loading.
			m.log.Error().Str("account", name).Err(err).Msg("initial session creation failed")
		}
	}

	m.registry.AddListener(m.onAccountEvent)
	m.monitor.Subscribe(m.onConnectivity)
	return nil
}

// createSessions builds the store and transport services of one
// account and registers them.
func (m *Manager) createSessions(ctx context.Context, account string) error {
	settings, err := m.registry.LoadAccountSettings(ctx, account)
	if err != nil {
		return err
	}

	pair := make(map[model.AccountRole]*Service, 2)
	for _, role := range []model.AccountRole{model.RoleStore, model.RoleTransport} {
		svc, err := m.createService(ctx, settings, role)
		if err != nil {
			return err
		}
		pair[role] = svc
	}

	m.mu.Lock()
	m.services[account] = pair
	m.mu.Unlock()
	return nil
}

// dropSessions disconnects and discards both role sessions of an
// account, if present.
func (m *Manager) dropSessions(account string) {
	m.mu.Lock()
	pair := m.services[account]
	delete(m.services, account)
	m.mu.Unlock()

	for _, svc := range pair {
		if err := svc.Session.Disconnect(); err != nil {
			m.log.Warn().Str("account", account).Err(err).Msg("disconnect failed")
		}
	}
}

// onAccountEvent reacts to registry notifications, keeping the session
// set in step with the persisted accounts.
func (m *Manager) onAccountEvent(account string, ev accounts.Event) {
	ctx := context.Background()

	switch ev {
	case accounts.EventInserted:
		if !m.registry.IsEnabled(ctx, account) {
			return
		}
		if err := m.createSessions(ctx, account); err != nil {
			m.log.Error().Str("account", account).Err(err).Msg("session creation failed")
			return
		}
		m.emit(account, SessionCreated)

	case accounts.EventChanged:
		m.mu.Lock()
		_, had := m.services[account]
		m.mu.Unlock()

		enabled := m.registry.IsEnabled(ctx, account)
		switch {
		case enabled && !had:
			if err := m.createSessions(ctx, account); err != nil {
				m.log.Error().Str("account", account).Err(err).Msg("session creation failed")
				return
			}
			m.emit(account, SessionCreated)
		case enabled && had:
			// Settings changed under a live session: rebuild it.
			m.dropSessions(account)
			if err := m.createSessions(ctx, account); err != nil {
				m.log.Error().Str("account", account).Err(err).Msg("session rebuild failed")
				m.emit(account, SessionRemoved)
				return
			}
			m.emit(account, SessionUpdated)
		case !enabled && had:
			m.dropSessions(account)
			m.emit(account, SessionRemoved)
		}

	case accounts.EventRemoved:
		m.dropSessions(account)
		m.removeSpecialFolders(ctx, account)
		m.emit(account, SessionRemoved)
	}
}

// onConnectivity reacts to availability transitions. Going offline
// forces every managed session into a disconnected state immediately.
func (m *Manager) onConnectivity(online bool) {
	m.mu.Lock()
	m.online = online
	var sessions []transport.Session
	for _, pair := range m.services {
		for _, svc := range pair {
			sessions = append(sessions, svc.Session)
		}
	}
	m.mu.Unlock()

	m.log.Info().Bool("online", online).Msg("connectivity changed")
	for _, sess := range sessions {
		sess.SetOnline(online)
	}
}

// localDirFor roots filesystem-backed provider sessions per account
// and role, away from the shared special-folder store.
func (m *Manager) localDirFor(account string, role model.AccountRole) string {
	return filepath.Join(m.mailDir, account, role.String())
}

// Online reports the global availability flag consulted by sessions.
func (m *Manager) Online() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.online
}

// ServiceFor returns the live service for (account, role).
func (m *Manager) ServiceFor(account string, role model.AccountRole) (*Service, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	svc, ok := m.services[account][role]
	return svc, ok
}

// Accounts returns the accounts that currently have live sessions.
func (m *Manager) Accounts() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	names := make([]string, 0, len(m.services))
	for name := range m.services {
		names = append(names, name)
	}
	return names
}

// Connect authenticates the service for (account, role), creating the
// account's sessions first if needed.
func (m *Manager) Connect(ctx context.Context, account string, role model.AccountRole) error {
	svc, ok := m.ServiceFor(account, role)
	if !ok {
		if err := m.createSessions(ctx, account); err != nil {
			return err
		}
		svc, _ = m.ServiceFor(account, role)
	}
	return m.Authenticate(ctx, svc)
}

// Stop disconnects every session. The manager is not usable afterwards.
func (m *Manager) Stop() {
	m.mu.Lock()
	services := m.services
	m.services = make(map[string]map[model.AccountRole]*Service)
	m.mu.Unlock()

	for account, pair := range services {
		for _, svc := range pair {
			if err := svc.Session.Disconnect(); err != nil {
				m.log.Warn().Str("account", account).Err(err).Msg("disconnect failed")
			}
		}
	}
	if err := m.localStore.Disconnect(); err != nil {
		m.log.Warn().Err(err).Msg("closing local store failed")
	}
}
