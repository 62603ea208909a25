package session

import (
	"context"
	"fmt"
	"path"

	"github.com/jdapena/iwkmail/internal/transport"
)

// Special folder layout inside the shared local store: one Outbox per
// account under a common root, one Drafts mailbox shared by every
// account, and a local Inbox for accounts whose store protocol keeps
// no mailboxes on a server.
const (
	outboxRoot   = "outbox"
	draftsFolder = "drafts"
	localRoot    = "local"
	inboxFolder  = "inbox"
)

func outboxFolder(account string) string {
	return path.Join(outboxRoot, account)
}

func localInboxFolder(account string) string {
	return path.Join(localRoot, account, inboxFolder)
}

// ensureOutbox makes sure the account's Outbox exists in the shared
// outbox store.
func (m *Manager) ensureOutbox(ctx context.Context, account string) error {
	if err := m.localStore.CreateFolder(ctx, outboxFolder(account)); err != nil {
		return fmt.Errorf("ensuring outbox for %q: %w", account, err)
	}
	return nil
}

// ensureDrafts makes sure the shared Drafts mailbox exists.
func (m *Manager) ensureDrafts(ctx context.Context) error {
	if err := m.localStore.CreateFolder(ctx, draftsFolder); err != nil {
		return fmt.Errorf("ensuring drafts mailbox: %w", err)
	}
	return nil
}

// ensureLocalInbox provisions the per-account local Inbox used by
// store protocols without remote mailboxes.
func (m *Manager) ensureLocalInbox(ctx context.Context, account string) error {
	if err := m.localStore.CreateFolder(ctx, localInboxFolder(account)); err != nil {
		return fmt.Errorf("ensuring local inbox for %q: %w", account, err)
	}
	return nil
}

// Outbox opens the account's Outbox mailbox.
func (m *Manager) Outbox(ctx context.Context, account string) (transport.Folder, error) {
	return m.localStore.OpenFolder(ctx, outboxFolder(account))
}

// Drafts opens the shared Drafts mailbox.
func (m *Manager) Drafts(ctx context.Context) (transport.Folder, error) {
	return m.localStore.OpenFolder(ctx, draftsFolder)
}

// LocalInbox opens the account's local Inbox mailbox.
func (m *Manager) LocalInbox(ctx context.Context, account string) (transport.Folder, error) {
	return m.localStore.OpenFolder(ctx, localInboxFolder(account))
}

// removeSpecialFolders deletes the account's Outbox and local Inbox.
// Removal is best effort: failures are logged, never propagated, so a
// half-deleted account still tears down.
func (m *Manager) removeSpecialFolders(ctx context.Context, account string) {
	if err := m.localStore.DeleteFolder(ctx, outboxFolder(account)); err != nil {
		m.log.Warn().Str("account", account).Err(err).Msg("removing outbox failed")
	}
	if err := m.localStore.DeleteFolder(ctx, localInboxFolder(account)); err != nil {
		m.log.Warn().Str("account", account).Err(err).Msg("removing local inbox failed")
	}
}
