package transport

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/emersion/go-message"
	"github.com/google/uuid"
)

// localSession implements Session over a maildir-style directory tree.
// Each folder is a directory with cur/new/tmp subdirectories; messages
// are one file each. Local sessions need no network and authenticate
// trivially.
type localSession struct {
	settings Settings
	root     string
	secret   string
}

// NewLocalSession creates a filesystem session rooted at
// settings.LocalDir, creating the root on first use.
func NewLocalSession(settings Settings) (Session, error) {
	if settings.LocalDir == "" {
		return nil, fmt.Errorf("local session: no directory")
	}
	if err := os.MkdirAll(settings.LocalDir, 0o700); err != nil {
		return nil, fmt.Errorf("creating local store %s: %w", settings.LocalDir, err)
	}
	return &localSession{settings: settings, root: settings.LocalDir}, nil
}

func (s *localSession) Settings() Settings { return s.settings }

func (s *localSession) Authenticate(context.Context, string) AuthResult {
	return AuthResult{Status: AuthAccepted}
}

func (s *localSession) Disconnect() error { return nil }
func (s *localSession) Connected() bool   { return true }

func (s *localSession) Secret() string          { return s.secret }
func (s *localSession) SetSecret(secret string) { s.secret = secret }
func (s *localSession) ClearSecret()            { s.secret = "" }

func (s *localSession) SetOnline(bool) {}

func (s *localSession) folderPath(name string) string {
	return filepath.Join(s.root, name)
}

func (s *localSession) CreateFolder(_ context.Context, name string) error {
	dir := s.folderPath(name)
	for _, sub := range []string{"cur", "new", "tmp"} {
		if err := os.MkdirAll(filepath.Join(dir, sub), 0o700); err != nil {
			return fmt.Errorf("creating folder %q: %w", name, err)
		}
	}
	return nil
}

func (s *localSession) OpenFolder(_ context.Context, name string) (Folder, error) {
	dir := s.folderPath(name)
	info, err := os.Stat(dir)
	if err != nil {
		return nil, fmt.Errorf("opening folder %q: %w", name, err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("opening folder %q: not a directory", name)
	}
	return &localFolder{name: name, dir: dir}, nil
}

func (s *localSession) DeleteFolder(_ context.Context, name string) error {
	if err := os.RemoveAll(s.folderPath(name)); err != nil {
		return fmt.Errorf("deleting folder %q: %w", name, err)
	}
	return nil
}

func (s *localSession) ListFolders(context.Context) ([]string, error) {
	entries, err := os.ReadDir(s.root)
	if err != nil {
		return nil, fmt.Errorf("listing folders: %w", err)
	}
	var names []string
	for _, e := range entries {
		if e.IsDir() {
			names = append(names, e.Name())
		}
	}
	sort.Strings(names)
	return names, nil
}

func (s *localSession) RefreshFolder(_ context.Context, name string) error {
	// Moves messages delivered into new/ over to cur/, the only state
	// a maildir needs refreshing.
	dir := s.folderPath(name)
	entries, err := os.ReadDir(filepath.Join(dir, "new"))
	if err != nil {
		return fmt.Errorf("refreshing folder %q: %w", name, err)
	}
	for _, e := range entries {
		from := filepath.Join(dir, "new", e.Name())
		to := filepath.Join(dir, "cur", e.Name())
		if err := os.Rename(from, to); err != nil {
			return fmt.Errorf("refreshing folder %q: %w", name, err)
		}
	}
	return nil
}

type localFolder struct {
	name string
	dir  string
}

func (f *localFolder) Name() string { return f.name }

// Append parses the message to validate its header, stamping a Date if
// missing, and delivers it through tmp/ then new/ in maildir fashion.
func (f *localFolder) Append(_ context.Context, msg io.Reader) error {
	entity, err := message.Read(msg)
	if err != nil && !message.IsUnknownCharset(err) {
		return fmt.Errorf("parsing message for %q: %w", f.name, err)
	}
	if entity.Header.Get("Date") == "" {
		entity.Header.Set("Date", time.Now().Format(time.RFC1123Z))
	}

	id := uuid.NewString()
	tmp := filepath.Join(f.dir, "tmp", id)
	file, err := os.Create(tmp)
	if err != nil {
		return fmt.Errorf("writing message to %q: %w", f.name, err)
	}
	if err := entity.WriteTo(file); err != nil {
		file.Close()
		os.Remove(tmp)
		return fmt.Errorf("writing message to %q: %w", f.name, err)
	}
	if err := file.Close(); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("writing message to %q: %w", f.name, err)
	}

	final := filepath.Join(f.dir, "new", id)
	if err := os.Rename(tmp, final); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("delivering message to %q: %w", f.name, err)
	}
	return nil
}
