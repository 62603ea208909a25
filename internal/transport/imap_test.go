package transport

import (
	"context"
	"errors"
	"strings"
	"testing"
)

func TestIMAPSessionRequiresHostname(t *testing.T) {
	if _, err := NewIMAPSession(Settings{Port: 993}); err == nil {
		t.Fatal("session created without a hostname")
	}
}

func TestIMAPSessionOfflineOperations(t *testing.T) {
	ctx := context.Background()
	s, err := NewIMAPSession(Settings{Host: "imap.example.org", Port: 993})
	if err != nil {
		t.Fatalf("NewIMAPSession: %v", err)
	}
	s.SetOnline(false)

	if res := s.Authenticate(ctx, ""); res.Status != AuthErrored || !errors.Is(res.Err, ErrOffline) {
		t.Fatalf("Authenticate offline = %+v, want ErrOffline", res)
	}
	if _, err := s.ListFolders(ctx); !errors.Is(err, ErrOffline) {
		t.Fatalf("ListFolders offline = %v, want ErrOffline", err)
	}
	if s.Connected() {
		t.Fatal("offline session reports connected")
	}
	if err := s.Disconnect(); err != nil {
		t.Fatalf("Disconnect while disconnected: %v", err)
	}
}

func TestIMAPFolderAppendAfterOfflineTransition(t *testing.T) {
	s, err := NewIMAPSession(Settings{Host: "imap.example.org", Port: 993})
	if err != nil {
		t.Fatalf("NewIMAPSession: %v", err)
	}

	// A folder may be held across an offline transition that drops the
	// connection under it; appending then reports ErrOffline.
	folder := &imapFolder{session: s.(*imapSession), name: "inbox"}
	s.SetOnline(false)

	err = folder.Append(context.Background(), strings.NewReader("From: a@b\r\n\r\nhi\r\n"))
	if !errors.Is(err, ErrOffline) {
		t.Fatalf("Append offline = %v, want ErrOffline", err)
	}
}
