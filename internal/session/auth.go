package session

import (
	"context"
	"errors"
	"fmt"

	"github.com/jdapena/iwkmail/internal/credential"
	"github.com/jdapena/iwkmail/internal/model"
	"github.com/jdapena/iwkmail/internal/protocol"
	"github.com/jdapena/iwkmail/internal/transport"
)

// AuthState tracks where a service is in the authentication machine.
type AuthState int

const (
	AuthStateIdle AuthState = iota
	AuthStateNoMechanism
	AuthStateDirectNoSecret
	AuthStateEmptySecretProbe
	AuthStateCredentialLoop
	AuthStateAccepted
	AuthStateRejected
	AuthStateError
	AuthStateCancelled
)

func (s AuthState) String() string {
	switch s {
	case AuthStateNoMechanism:
		return "no-mechanism"
	case AuthStateDirectNoSecret:
		return "direct-no-secret"
	case AuthStateEmptySecretProbe:
		return "empty-secret-probe"
	case AuthStateCredentialLoop:
		return "credential-loop"
	case AuthStateAccepted:
		return "accepted"
	case AuthStateRejected:
		return "rejected"
	case AuthStateError:
		return "error"
	case AuthStateCancelled:
		return "cancelled"
	default:
		return "idle"
	}
}

// AuthFailure classifies terminal authentication failures.
type AuthFailure int

const (
	FailureUnknownMechanism AuthFailure = iota
	FailureRejected
	FailureNoCredential
	FailureCancelled
	FailureError
)

// AuthError is the single terminal error of one authentication run.
// Intermediate rejections inside the credential loop are not surfaced
// individually.
type AuthError struct {
	Account string
	Role    model.AccountRole
	Failure AuthFailure
	Err     error
}

func (e *AuthError) Error() string {
	msg := "authentication failed"
	switch e.Failure {
	case FailureUnknownMechanism:
		msg = "unknown auth mechanism"
	case FailureRejected:
		msg = "credentials rejected"
	case FailureNoCredential:
		msg = "no credential available"
	case FailureCancelled:
		msg = "authentication cancelled"
	}
	if e.Err != nil {
		return fmt.Sprintf("%s account %q: %s: %v", e.Role, e.Account, msg, e.Err)
	}
	return fmt.Sprintf("%s account %q: %s", e.Role, e.Account, msg)
}

func (e *AuthError) Unwrap() error { return e.Err }

// Authenticate runs the full authentication machine for one service.
// It is safe to call from background goroutines: credential prompting
// is bridged to the primary context by the manager's prompter.
func (m *Manager) Authenticate(ctx context.Context, svc *Service) error {
	fail := func(state AuthState, failure AuthFailure, err error) *AuthError {
		svc.authState = state
		return &AuthError{Account: svc.Account, Role: svc.Role, Failure: failure, Err: err}
	}

	authProto := m.protocols.ByName(protocol.TagAuth, svc.AuthName)
	if authProto == nil {
		return fail(AuthStateNoMechanism, FailureUnknownMechanism,
			fmt.Errorf("auth kind %q not registered", svc.AuthName))
	}
	mech := authProto.AuthMechanism(svc.ProviderName)

	// Mechanisms without a secret get a single direct attempt.
	if mech == protocol.MechAnonymous {
		svc.authState = AuthStateDirectNoSecret
		res := svc.Session.Authenticate(ctx, mech)
		switch res.Status {
		case transport.AuthAccepted:
			svc.authState = AuthStateAccepted
			return nil
		case transport.AuthRejected:
			return fail(AuthStateRejected, FailureRejected, res.Err)
		default:
			return fail(AuthStateError, FailureError, res.Err)
		}
	}

	key := svc.credentialKey()

	// Zero-secret probe: some servers accept the user outright. This is
	// the only point the machine polls cancellation.
	svc.authState = AuthStateEmptySecretProbe
	svc.Session.ClearSecret()
	if res := svc.Session.Authenticate(ctx, mech); res.Status == transport.AuthAccepted {
		svc.authState = AuthStateAccepted
		return nil
	}
	if ctx.Err() != nil {
		return fail(AuthStateCancelled, FailureCancelled, ctx.Err())
	}

	svc.authState = AuthStateCredentialLoop
	reprompt := false
	for {
		if svc.Session.Secret() == "" {
			secret, err := m.retrieveSecret(ctx, svc, key, reprompt)
			if err != nil {
				svc.authState = AuthStateError
				var authErr *AuthError
				if errors.As(err, &authErr) {
					return err
				}
				return &AuthError{Account: svc.Account, Role: svc.Role, Failure: FailureError, Err: err}
			}
			svc.Session.SetSecret(secret)
		}

		res := svc.Session.Authenticate(ctx, mech)
		switch res.Status {
		case transport.AuthRejected:
			// The server refused this secret: drop it everywhere and go
			// around again with a fresh prompt.
			svc.Session.ClearSecret()
			if err := m.credentials.Delete(key); err != nil {
				m.log.Warn().Str("account", svc.Account).Err(err).Msg("deleting rejected credential failed")
			}
			reprompt = true
		case transport.AuthAccepted:
			m.rememberSuccess(ctx, svc)
			svc.authState = AuthStateAccepted
			return nil
		default:
			return fail(AuthStateError, FailureError, res.Err)
		}
	}
}

// retrieveSecret fetches the secret for one credential-loop iteration:
// from the credential store when possible, interactively when absent
// or when a reprompt was requested. A cancelled prompt is the terminal
// no-credential failure.
func (m *Manager) retrieveSecret(ctx context.Context, svc *Service, key credential.Key, reprompt bool) (string, error) {
	if !reprompt {
		secret, err := m.credentials.Find(key)
		if err == nil {
			return secret, nil
		}
		if !errors.Is(err, credential.ErrNotFound) {
			return "", fmt.Errorf("reading credential store: %w", err)
		}
	}

	secret, cancelled, err := m.prompter.PromptSecret(ctx, PromptRequest{
		Key:      key,
		Account:  svc.Account,
		Reprompt: reprompt,
	})
	if err != nil {
		return "", fmt.Errorf("prompting for credential: %w", err)
	}
	if cancelled {
		return "", &AuthError{
			Account: svc.Account,
			Role:    svc.Role,
			Failure: FailureNoCredential,
		}
	}

	if err := m.credentials.Put(key, secret); err != nil {
		m.log.Warn().Str("account", svc.Account).Err(err).Msg("storing credential failed")
	}
	return secret, nil
}

// rememberSuccess records that the server accepted the current
// username, so settings dialogs stop treating it as unverified.
func (m *Manager) rememberSuccess(ctx context.Context, svc *Service) {
	if err := m.registry.SetUsernameHasSucceeded(ctx, svc.ServerAccountName, true); err != nil {
		m.log.Warn().Str("account", svc.Account).Err(err).Msg("recording username success failed")
	}
}
