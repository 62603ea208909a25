package session_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/jdapena/iwkmail/internal/session"
)

func TestChannelPrompterRoundTrip(t *testing.T) {
	p := session.NewChannelPrompter(5 * time.Second)

	go func() {
		job := <-p.Requests()
		if job.Request.Account != "acct" {
			t.Errorf("request account = %q, want acct", job.Request.Account)
		}
		job.Reply("hunter2", false, nil)
	}()

	secret, cancelled, err := p.PromptSecret(context.Background(), session.PromptRequest{Account: "acct"})
	if err != nil {
		t.Fatalf("PromptSecret: %v", err)
	}
	if cancelled {
		t.Fatal("answered prompt reported cancelled")
	}
	if secret != "hunter2" {
		t.Fatalf("secret = %q, want hunter2", secret)
	}
}

func TestChannelPrompterCancelledByUser(t *testing.T) {
	p := session.NewChannelPrompter(5 * time.Second)

	go func() {
		job := <-p.Requests()
		job.Reply("", true, nil)
	}()

	_, cancelled, err := p.PromptSecret(context.Background(), session.PromptRequest{})
	if err != nil {
		t.Fatalf("PromptSecret: %v", err)
	}
	if !cancelled {
		t.Fatal("dismissed prompt not reported cancelled")
	}
}

func TestChannelPrompterTimesOut(t *testing.T) {
	// Nothing drains Requests, so the enqueue itself must time out.
	p := session.NewChannelPrompter(10 * time.Millisecond)

	_, _, err := p.PromptSecret(context.Background(), session.PromptRequest{})
	if !errors.Is(err, session.ErrPromptTimeout) {
		t.Fatalf("PromptSecret: got %v, want ErrPromptTimeout", err)
	}
}

func TestChannelPrompterAnswerTimesOut(t *testing.T) {
	p := session.NewChannelPrompter(10 * time.Millisecond)

	accepted := make(chan *session.PromptJob, 1)
	go func() {
		accepted <- <-p.Requests()
	}()

	_, _, err := p.PromptSecret(context.Background(), session.PromptRequest{})
	if !errors.Is(err, session.ErrPromptTimeout) {
		t.Fatalf("PromptSecret: got %v, want ErrPromptTimeout", err)
	}

	// A late answer must not block or panic the responder.
	job := <-accepted
	job.Reply("too-late", false, nil)
	job.Reply("twice", false, nil)
}

func TestChannelPrompterHonorsContext(t *testing.T) {
	p := session.NewChannelPrompter(time.Minute)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, _, err := p.PromptSecret(ctx, session.PromptRequest{})
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("PromptSecret: got %v, want context.Canceled", err)
	}
}
