package session_test

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/rs/zerolog"

	"github.com/jdapena/iwkmail/internal/accounts"
	"github.com/jdapena/iwkmail/internal/credential"
	"github.com/jdapena/iwkmail/internal/model"
	"github.com/jdapena/iwkmail/internal/netmon"
	"github.com/jdapena/iwkmail/internal/protocol"
	"github.com/jdapena/iwkmail/internal/session"
	"github.com/jdapena/iwkmail/internal/transport"
	"github.com/jdapena/iwkmail/tests/testutil"
)

// fixture wires a manager from fakes: scripted remote sessions, an
// in-memory credential store, a manual connectivity monitor and a
// function-backed prompter.
type fixture struct {
	registry  *accounts.Registry
	creds     *testutil.MemoryCredentials
	providers *testutil.FakeProviderSet
	monitor   *netmon.ManualMonitor
	manager   *session.Manager
	mailDir   string

	// Prompts records every credential request; PromptFn answers them,
	// defaulting to a cancelled prompt.
	Prompts  []session.PromptRequest
	PromptFn func(req session.PromptRequest) (string, bool, error)
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	f := &fixture{
		registry: testutil.NewTestRegistry(t),
		creds:    testutil.NewMemoryCredentials(),
		monitor:  netmon.NewManualMonitor(true),
		mailDir:  t.TempDir(),
	}
	f.providers = testutil.NewFakeProviderSet(f.mailDir)

	prompter := session.PrompterFunc(func(_ context.Context, req session.PromptRequest) (string, bool, error) {
		f.Prompts = append(f.Prompts, req)
		if f.PromptFn == nil {
			return "", true, nil
		}
		return f.PromptFn(req)
	})

	m, err := session.NewManager(session.Config{
		Registry:    f.registry,
		Protocols:   protocol.NewDefaultRegistry(),
		Credentials: f.creds,
		Providers:   f.providers.Providers,
		Prompter:    prompter,
		Monitor:     f.monitor,
		MailDir:     f.mailDir,
		Logger:      zerolog.Nop(),
	})
	if err != nil {
		t.Fatalf("NewManager: %v", err)
	}
	f.manager = m
	return f
}

// seedRemoteAccount persists an IMAP-over-SSL store and SMTP transport
// account pair under the given name and auth kind.
func (f *fixture) seedRemoteAccount(t *testing.T, name, auth string, enabled bool) {
	t.Helper()
	ctx := context.Background()

	if err := f.registry.AddServerAccount(ctx, accounts.ServerAccountArgs{
		Name:     name + "_store",
		Hostname: "imap.example.com",
		Port:     993,
		Protocol: protocol.ProtocolIMAP,
		Security: protocol.SecuritySSL,
		Auth:     auth,
		Username: "ada",
	}); err != nil {
		t.Fatalf("adding store server account: %v", err)
	}
	if err := f.registry.AddServerAccount(ctx, accounts.ServerAccountArgs{
		Name:     name + "_transport",
		Hostname: "smtp.example.com",
		Port:     587,
		Protocol: protocol.ProtocolSMTP,
		Security: protocol.SecurityTLS,
		Auth:     auth,
		Username: "ada",
	}); err != nil {
		t.Fatalf("adding transport server account: %v", err)
	}
	if err := f.registry.AddAccount(ctx, name, name+"_store", name+"_transport", enabled); err != nil {
		t.Fatalf("adding account: %v", err)
	}
}

func (f *fixture) storeKey() credential.Key {
	return credential.Key{
		Protocol: protocol.ProtocolIMAP,
		User:     "ada",
		Host:     "imap.example.com",
		Port:     993,
	}
}

func (f *fixture) storeService(t *testing.T, account string) *session.Service {
	t.Helper()
	svc, ok := f.manager.ServiceFor(account, model.RoleStore)
	if !ok {
		t.Fatalf("no store service for %q", account)
	}
	return svc
}

func TestStartCreatesSessionsForEnabledAccounts(t *testing.T) {
	f := newFixture(t)
	f.seedRemoteAccount(t, "on", protocol.AuthPassword, true)
	f.seedRemoteAccount(t, "off", protocol.AuthPassword, false)

	var events []session.EventKind
	f.manager.AddListener(func(_ string, kind session.EventKind) {
		events = append(events, kind)
	})

	if err := f.manager.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}

	names := f.manager.Accounts()
	if len(names) != 1 || names[0] != "on" {
		t.Fatalf("Accounts() = %v, want [on]", names)
	}
	if _, ok := f.manager.ServiceFor("on", model.RoleTransport); !ok {
		t.Fatal("no transport service for enabled account")
	}
	if len(f.providers.Created) != 2 {
		t.Fatalf("created %d remote sessions, want 2", len(f.providers.Created))
	}

	// The initial load is quiet.
	if len(events) != 0 {
		t.Fatalf("initial load emitted events %v", events)
	}

	// Special mailboxes exist in the shared store on disk.
	for _, dir := range []string{
		filepath.Join(f.mailDir, "store", "drafts"),
		filepath.Join(f.mailDir, "store", "outbox", "on"),
	} {
		if _, err := os.Stat(dir); err != nil {
			t.Errorf("special mailbox %s missing: %v", dir, err)
		}
	}
	// Disabled accounts get no sessions and no outbox.
	if _, err := os.Stat(filepath.Join(f.mailDir, "store", "outbox", "off")); err == nil {
		t.Error("disabled account got an outbox")
	}
}

func TestLocalStoreAccountGetsLocalInbox(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	if err := f.registry.AddServerAccount(ctx, accounts.ServerAccountArgs{
		Name:     "local_store",
		Protocol: protocol.ProtocolMaildir,
		Security: protocol.SecurityNone,
		Auth:     protocol.AuthNone,
	}); err != nil {
		t.Fatalf("adding store server account: %v", err)
	}
	if err := f.registry.AddServerAccount(ctx, accounts.ServerAccountArgs{
		Name:     "local_transport",
		Hostname: "smtp.example.com",
		Port:     587,
		Protocol: protocol.ProtocolSMTP,
		Security: protocol.SecurityTLS,
		Auth:     protocol.AuthPassword,
	}); err != nil {
		t.Fatalf("adding transport server account: %v", err)
	}
	if err := f.registry.AddAccount(ctx, "local", "local_store", "local_transport", true); err != nil {
		t.Fatalf("adding account: %v", err)
	}

	if err := f.manager.Start(ctx); err != nil {
		t.Fatalf("Start: %v", err)
	}

	inbox := filepath.Join(f.mailDir, "store", "local", "local", "inbox")
	if _, err := os.Stat(inbox); err != nil {
		t.Fatalf("local inbox missing: %v", err)
	}
	if _, err := f.manager.LocalInbox(ctx, "local"); err != nil {
		t.Fatalf("LocalInbox: %v", err)
	}
}

func TestAuthenticateUsesStoredSecret(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.seedRemoteAccount(t, "acct", protocol.AuthCRAMMD5, true)
	f.creds.Secrets[f.storeKey()] = "stored-pass"

	if err := f.manager.Start(ctx); err != nil {
		t.Fatalf("Start: %v", err)
	}

	sess := f.providers.Created[0]
	sess.Script = []transport.AuthResult{
		{Status: transport.AuthRejected}, // zero-secret probe
		{Status: transport.AuthAccepted},
	}

	if err := f.manager.Connect(ctx, "acct", model.RoleStore); err != nil {
		t.Fatalf("Connect: %v", err)
	}

	want := []testutil.AuthAttempt{
		{Mech: protocol.MechCRAMMD5, Secret: ""},
		{Mech: protocol.MechCRAMMD5, Secret: "stored-pass"},
	}
	if len(sess.Attempts) != len(want) {
		t.Fatalf("attempts = %v, want %v", sess.Attempts, want)
	}
	for i, attempt := range want {
		if sess.Attempts[i] != attempt {
			t.Errorf("attempt %d = %v, want %v", i, sess.Attempts[i], attempt)
		}
	}

	if f.creds.FindCalls != 1 || len(f.Prompts) != 0 {
		t.Errorf("retrievals: %d store lookups, %d prompts; want 1 and 0",
			f.creds.FindCalls, len(f.Prompts))
	}
	if got := f.storeService(t, "acct").AuthState(); got != session.AuthStateAccepted {
		t.Errorf("auth state = %v, want accepted", got)
	}

	// Success is recorded against the server account.
	srv, err := f.registry.LoadServerSettings(ctx, "acct_store")
	if err != nil {
		t.Fatalf("LoadServerSettings: %v", err)
	}
	if !srv.UsernameHasSucceeded {
		t.Error("username success not recorded")
	}
}

func TestAuthenticateRejectionRepromptsOnce(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.seedRemoteAccount(t, "acct", protocol.AuthCRAMMD5, true)
	f.creds.Secrets[f.storeKey()] = "stale-pass"
	f.PromptFn = func(req session.PromptRequest) (string, bool, error) {
		if !req.Reprompt {
			t.Error("prompt after rejection not flagged as reprompt")
		}
		return "fresh-pass", false, nil
	}

	if err := f.manager.Start(ctx); err != nil {
		t.Fatalf("Start: %v", err)
	}

	sess := f.providers.Created[0]
	sess.Script = []transport.AuthResult{
		{Status: transport.AuthRejected}, // zero-secret probe
		{Status: transport.AuthRejected}, // stored secret is stale
		{Status: transport.AuthAccepted}, // prompted secret works
	}

	if err := f.manager.Connect(ctx, "acct", model.RoleStore); err != nil {
		t.Fatalf("Connect: %v", err)
	}

	secrets := make([]string, len(sess.Attempts))
	for i, a := range sess.Attempts {
		secrets[i] = a.Secret
	}
	if len(secrets) != 3 || secrets[0] != "" || secrets[1] != "stale-pass" || secrets[2] != "fresh-pass" {
		t.Fatalf("attempt secrets = %q, want [\"\" stale-pass fresh-pass]", secrets)
	}

	// Exactly two credential retrievals: one store lookup, one prompt.
	if f.creds.FindCalls != 1 || len(f.Prompts) != 1 {
		t.Errorf("retrievals: %d store lookups, %d prompts; want 1 and 1",
			f.creds.FindCalls, len(f.Prompts))
	}

	// The rejected secret was purged and the accepted one stored.
	if f.creds.DeleteCalls != 1 {
		t.Errorf("DeleteCalls = %d, want 1", f.creds.DeleteCalls)
	}
	if got := f.creds.Secrets[f.storeKey()]; got != "fresh-pass" {
		t.Errorf("stored secret = %q, want fresh-pass", got)
	}
}

func TestAuthenticateEmptyProbeAccepted(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.seedRemoteAccount(t, "acct", protocol.AuthCRAMMD5, true)

	if err := f.manager.Start(ctx); err != nil {
		t.Fatalf("Start: %v", err)
	}

	sess := f.providers.Created[0]
	sess.Script = []transport.AuthResult{{Status: transport.AuthAccepted}}

	if err := f.manager.Connect(ctx, "acct", model.RoleStore); err != nil {
		t.Fatalf("Connect: %v", err)
	}
	if len(sess.Attempts) != 1 || sess.Attempts[0].Secret != "" {
		t.Fatalf("attempts = %v, want single empty-secret attempt", sess.Attempts)
	}
	if f.creds.FindCalls != 0 || len(f.Prompts) != 0 {
		t.Error("probe acceptance still consulted credentials")
	}
}

func TestAuthenticateAnonymousMechanism(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.seedRemoteAccount(t, "acct", protocol.AuthNone, true)

	if err := f.manager.Start(ctx); err != nil {
		t.Fatalf("Start: %v", err)
	}

	// The none kind resolves to ANONYMOUS on SMTP, a single direct
	// attempt with no credential machinery.
	if err := f.manager.Connect(ctx, "acct", model.RoleTransport); err != nil {
		t.Fatalf("Connect: %v", err)
	}

	sess := f.providers.Created[1]
	if len(sess.Attempts) != 1 || sess.Attempts[0].Mech != protocol.MechAnonymous {
		t.Fatalf("attempts = %v, want single ANONYMOUS attempt", sess.Attempts)
	}
	if f.creds.FindCalls != 0 || len(f.Prompts) != 0 {
		t.Error("anonymous auth consulted credentials")
	}
}

func TestAuthenticateUnknownMechanism(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.seedRemoteAccount(t, "acct", "otp", true)

	if err := f.manager.Start(ctx); err != nil {
		t.Fatalf("Start: %v", err)
	}

	err := f.manager.Connect(ctx, "acct", model.RoleStore)
	var authErr *session.AuthError
	if !errors.As(err, &authErr) || authErr.Failure != session.FailureUnknownMechanism {
		t.Fatalf("Connect: got %v, want unknown-mechanism AuthError", err)
	}
	if len(f.providers.Created[0].Attempts) != 0 {
		t.Error("unknown mechanism still attempted authentication")
	}
	if got := f.storeService(t, "acct").AuthState(); got != session.AuthStateNoMechanism {
		t.Errorf("auth state = %v, want no-mechanism", got)
	}
}

func TestAuthenticateCancelledPrompt(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.seedRemoteAccount(t, "acct", protocol.AuthCRAMMD5, true)
	// PromptFn left nil: every prompt is cancelled.

	if err := f.manager.Start(ctx); err != nil {
		t.Fatalf("Start: %v", err)
	}

	sess := f.providers.Created[0]
	sess.Script = []transport.AuthResult{{Status: transport.AuthRejected}}

	err := f.manager.Connect(ctx, "acct", model.RoleStore)
	var authErr *session.AuthError
	if !errors.As(err, &authErr) || authErr.Failure != session.FailureNoCredential {
		t.Fatalf("Connect: got %v, want no-credential AuthError", err)
	}
	if f.creds.FindCalls != 1 || len(f.Prompts) != 1 {
		t.Errorf("retrievals: %d store lookups, %d prompts; want 1 and 1",
			f.creds.FindCalls, len(f.Prompts))
	}
	// Only the probe reached the server.
	if len(sess.Attempts) != 1 {
		t.Errorf("attempts = %v, want only the probe", sess.Attempts)
	}
}

func TestOfflineForcesDisconnect(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.seedRemoteAccount(t, "acct", protocol.AuthPassword, true)

	if err := f.manager.Start(ctx); err != nil {
		t.Fatalf("Start: %v", err)
	}
	if err := f.manager.Connect(ctx, "acct", model.RoleStore); err != nil {
		t.Fatalf("Connect: %v", err)
	}

	sess := f.providers.Created[0]
	if !sess.Connected() {
		t.Fatal("session not connected after successful auth")
	}

	f.monitor.SetOnline(false)
	if f.manager.Online() {
		t.Error("manager still reports online")
	}
	for i, s := range f.providers.Created {
		if s.Online || s.Connected() {
			t.Errorf("session %d still online after offline transition", i)
		}
	}

	f.monitor.SetOnline(true)
	if !f.manager.Online() {
		t.Error("manager did not return online")
	}
	if sess.Connected() {
		t.Error("going online silently reconnected the session")
	}
}

func TestDisablingAccountDropsSessions(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.seedRemoteAccount(t, "acct", protocol.AuthPassword, true)

	if err := f.manager.Start(ctx); err != nil {
		t.Fatalf("Start: %v", err)
	}

	var removed []string
	f.manager.AddListener(func(account string, kind session.EventKind) {
		if kind == session.SessionRemoved {
			removed = append(removed, account)
		}
	})

	if err := f.registry.SetEnabled(ctx, "acct", false); err != nil {
		t.Fatalf("SetEnabled: %v", err)
	}

	if _, ok := f.manager.ServiceFor("acct", model.RoleStore); ok {
		t.Error("store service survived disabling")
	}
	if f.providers.Created[0].Disconnected == 0 {
		t.Error("session not disconnected on disable")
	}
	if len(removed) != 1 || removed[0] != "acct" {
		t.Errorf("removed events = %v, want [acct]", removed)
	}

	// Re-enabling brings the sessions back.
	if err := f.registry.SetEnabled(ctx, "acct", true); err != nil {
		t.Fatalf("SetEnabled: %v", err)
	}
	if _, ok := f.manager.ServiceFor("acct", model.RoleStore); !ok {
		t.Error("no store service after re-enabling")
	}
}

func TestRemovingAccountTearsDownSpecialFolders(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.seedRemoteAccount(t, "acct", protocol.AuthPassword, true)

	if err := f.manager.Start(ctx); err != nil {
		t.Fatalf("Start: %v", err)
	}

	outbox := filepath.Join(f.mailDir, "store", "outbox", "acct")
	if _, err := os.Stat(outbox); err != nil {
		t.Fatalf("outbox missing before removal: %v", err)
	}

	if err := f.registry.RemoveAccount(ctx, "acct"); err != nil {
		t.Fatalf("RemoveAccount: %v", err)
	}

	if _, ok := f.manager.ServiceFor("acct", model.RoleStore); ok {
		t.Error("sessions survived account removal")
	}
	if _, err := os.Stat(outbox); !os.IsNotExist(err) {
		t.Errorf("outbox still present after removal: %v", err)
	}
	// The shared drafts mailbox is untouched.
	if _, err := os.Stat(filepath.Join(f.mailDir, "store", "drafts")); err != nil {
		t.Errorf("shared drafts mailbox lost: %v", err)
	}
}

func TestOutboxAppendDelivers(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.seedRemoteAccount(t, "acct", protocol.AuthPassword, true)

	if err := f.manager.Start(ctx); err != nil {
		t.Fatalf("Start: %v", err)
	}

	outbox, err := f.manager.Outbox(ctx, "acct")
	if err != nil {
		t.Fatalf("Outbox: %v", err)
	}
	msg := "From: ada@example.com\r\nTo: bob@example.com\r\nSubject: hi\r\n\r\nhello\r\n"
	if err := outbox.Append(ctx, strings.NewReader(msg)); err != nil {
		t.Fatalf("Append: %v", err)
	}

	entries, err := os.ReadDir(filepath.Join(f.mailDir, "store", "outbox", "acct", "new"))
	if err != nil {
		t.Fatalf("reading outbox new/: %v", err)
	}
	if len(entries) != 1 {
		t.Fatalf("outbox new/ holds %d messages, want 1", len(entries))
	}
}
