package transport

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func newLocalTestSession(t *testing.T) (Session, string) {
	t.Helper()
	dir := t.TempDir()
	s, err := NewLocalSession(Settings{LocalDir: dir})
	if err != nil {
		t.Fatalf("NewLocalSession: %v", err)
	}
	return s, dir
}

func TestLocalSessionRequiresDirectory(t *testing.T) {
	if _, err := NewLocalSession(Settings{}); err == nil {
		t.Fatal("session created without a directory")
	}
}

func TestLocalSessionAuthenticatesTrivially(t *testing.T) {
	s, _ := newLocalTestSession(t)
	if res := s.Authenticate(context.Background(), ""); res.Status != AuthAccepted {
		t.Fatalf("Authenticate = %+v, want accepted", res)
	}
	if !s.Connected() {
		t.Fatal("local session reports disconnected")
	}
}

func TestLocalSessionFolderLifecycle(t *testing.T) {
	ctx := context.Background()
	s, dir := newLocalTestSession(t)

	if err := s.CreateFolder(ctx, "inbox"); err != nil {
		t.Fatalf("CreateFolder: %v", err)
	}
	for _, sub := range []string{"cur", "new", "tmp"} {
		if _, err := os.Stat(filepath.Join(dir, "inbox", sub)); err != nil {
			t.Errorf("missing maildir subdirectory %s: %v", sub, err)
		}
	}

	// Creating an existing folder is idempotent.
	if err := s.CreateFolder(ctx, "inbox"); err != nil {
		t.Fatalf("CreateFolder twice: %v", err)
	}

	if err := s.CreateFolder(ctx, "archive"); err != nil {
		t.Fatalf("CreateFolder: %v", err)
	}
	names, err := s.ListFolders(ctx)
	if err != nil {
		t.Fatalf("ListFolders: %v", err)
	}
	if len(names) != 2 || names[0] != "archive" || names[1] != "inbox" {
		t.Fatalf("ListFolders = %v, want [archive inbox]", names)
	}

	if err := s.DeleteFolder(ctx, "archive"); err != nil {
		t.Fatalf("DeleteFolder: %v", err)
	}
	if _, err := os.Stat(filepath.Join(dir, "archive")); !os.IsNotExist(err) {
		t.Fatalf("deleted folder still on disk: %v", err)
	}

	if _, err := s.OpenFolder(ctx, "archive"); err == nil {
		t.Fatal("opened a deleted folder")
	}
}

func TestLocalFolderAppendAndRefresh(t *testing.T) {
	ctx := context.Background()
	s, dir := newLocalTestSession(t)

	if err := s.CreateFolder(ctx, "inbox"); err != nil {
		t.Fatalf("CreateFolder: %v", err)
	}
	folder, err := s.OpenFolder(ctx, "inbox")
	if err != nil {
		t.Fatalf("OpenFolder: %v", err)
	}

	msg := "From: a@example.com\r\nSubject: test\r\n\r\nbody\r\n"
	if err := folder.Append(ctx, strings.NewReader(msg)); err != nil {
		t.Fatalf("Append: %v", err)
	}

	entries, err := os.ReadDir(filepath.Join(dir, "inbox", "new"))
	if err != nil {
		t.Fatalf("reading new/: %v", err)
	}
	if len(entries) != 1 {
		t.Fatalf("new/ holds %d entries, want 1", len(entries))
	}

	data, err := os.ReadFile(filepath.Join(dir, "inbox", "new", entries[0].Name()))
	if err != nil {
		t.Fatalf("reading delivered message: %v", err)
	}
	text := string(data)
	if !strings.Contains(text, "Subject: test") || !strings.Contains(text, "body") {
		t.Fatalf("delivered message mangled:\n%s", text)
	}
	// A missing Date header is stamped at delivery.
	if !strings.Contains(text, "Date: ") {
		t.Fatalf("no Date header stamped:\n%s", text)
	}

	if err := s.RefreshFolder(ctx, "inbox"); err != nil {
		t.Fatalf("RefreshFolder: %v", err)
	}
	cur, err := os.ReadDir(filepath.Join(dir, "inbox", "cur"))
	if err != nil {
		t.Fatalf("reading cur/: %v", err)
	}
	if len(cur) != 1 {
		t.Fatalf("cur/ holds %d entries after refresh, want 1", len(cur))
	}
	left, _ := os.ReadDir(filepath.Join(dir, "inbox", "new"))
	if len(left) != 0 {
		t.Fatalf("new/ still holds %d entries after refresh", len(left))
	}
}

func TestLocalFolderAppendRejectsGarbage(t *testing.T) {
	ctx := context.Background()
	s, dir := newLocalTestSession(t)

	if err := s.CreateFolder(ctx, "inbox"); err != nil {
		t.Fatalf("CreateFolder: %v", err)
	}
	folder, err := s.OpenFolder(ctx, "inbox")
	if err != nil {
		t.Fatalf("OpenFolder: %v", err)
	}

	if err := folder.Append(ctx, strings.NewReader("no colon on this line\r\nmore\r\n\r\n")); err == nil {
		t.Fatal("garbage accepted as a message")
	}
	if entries, _ := os.ReadDir(filepath.Join(dir, "inbox", "tmp")); len(entries) != 0 {
		t.Fatal("failed delivery left droppings in tmp/")
	}
}
