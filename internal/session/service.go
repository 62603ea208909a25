package session

import (
	"context"
	"fmt"
	"strconv"

	"github.com/jdapena/iwkmail/internal/credential"
	"github.com/jdapena/iwkmail/internal/model"
	"github.com/jdapena/iwkmail/internal/protocol"
	"github.com/jdapena/iwkmail/internal/transport"
)

// Service is one live session bound to an (account, role) pair.
type Service struct {
	Account string
	Role    model.AccountRole

	// ProviderName is the transport provider the session came from,
	// which doubles as the credential-store protocol component.
	ProviderName string

	// ServerAccountName names the server account the service was built
	// from, so authentication outcomes can be recorded against it.
	ServerAccountName string

	// AuthName is the persisted auth kind, resolved to a mechanism at
	// authentication time.
	AuthName string

	Session transport.Session

	authState AuthState
}

// AuthState reports where the service last was in the authentication
// machine.
func (s *Service) AuthState() AuthState { return s.authState }

// credentialKey derives the credential-store key of the server this
// service talks to. Keys deliberately omit the account name: accounts
// sharing a server share the stored secret.
func (s *Service) credentialKey() credential.Key {
	settings := s.Session.Settings()
	return credential.Key{
		Protocol: s.ProviderName,
		User:     settings.User,
		Host:     settings.Host,
		Port:     settings.Port,
	}
}

// createService instantiates the session for one (account, role) from
// the persisted settings, mapping protocol, security and auth kinds to
// their transport equivalents. It does not connect or authenticate.
func (m *Manager) createService(ctx context.Context, settings *model.AccountSettings, role model.AccountRole) (*Service, error) {
	srv := settings.ServerFor(role)

	tag := protocol.TagStore
	if role == model.RoleTransport {
		tag = protocol.TagTransport
	}
	proto := m.protocols.ByName(tag, srv.ProtocolName)
	if proto == nil {
		return nil, fmt.Errorf("account %q: unknown %s protocol %q", settings.Name, role, srv.ProtocolName)
	}

	security, port := m.resolveSecurity(proto, srv)

	transportSettings := transport.Settings{
		Host:     srv.Hostname,
		Port:     port,
		User:     srv.Username,
		Security: security,
		LocalDir: m.localDirFor(settings.Name, role),
	}
	if authProto := m.protocols.ByName(protocol.TagAuth, srv.AuthName); authProto != nil {
		transportSettings.AuthMech = authProto.AuthMechanism(proto.Name())
	}

	sess, err := m.providers.New(proto.Name(), transportSettings)
	if err != nil {
		return nil, fmt.Errorf("account %q: %w", settings.Name, err)
	}
	sess.SetOnline(m.Online())

	svc := &Service{
		Account:           settings.Name,
		Role:              role,
		ProviderName:      proto.Name(),
		ServerAccountName: srv.AccountName,
		AuthName:          srv.AuthName,
		Session:           sess,
	}

	// Stores without remote mailboxes get a local Inbox; every account
	// gets an Outbox in the shared outbox store.
	if role == model.RoleStore && !m.protocols.HasTag(proto.Type(), protocol.TagRemoteStore) {
		if err := m.ensureLocalInbox(ctx, settings.Name); err != nil {
			return nil, err
		}
	}
	if err := m.ensureOutbox(ctx, settings.Name); err != nil {
		return nil, err
	}

	return svc, nil
}

// resolveSecurity maps the persisted security kind to the session
// security mode and picks the port: the server account's own when set,
// otherwise the protocol's standard port, or the alternate one for
// SSL-on-alternate-port.
func (m *Manager) resolveSecurity(proto *protocol.Protocol, srv *model.ServerSettings) (transport.Security, int) {
	security := transport.SecurityNone
	portProp := protocol.PropStandardPort

	if secProto := m.protocols.ByName(protocol.TagSecurity, srv.SecurityName); secProto != nil {
		switch secProto.Get(protocol.PropSecurityOption) {
		case protocol.SecurityOptionSSL:
			security = transport.SecuritySSL
			portProp = protocol.PropAlternatePort
		case protocol.SecurityOptionTLS, protocol.SecurityOptionWhenPossible:
			security = transport.SecuritySTARTTLS
		}
	}

	port := srv.Port
	if port == 0 {
		port, _ = strconv.Atoi(proto.Get(portProp))
	}
	return security, port
}
