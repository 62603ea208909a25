package session

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/jdapena/iwkmail/internal/credential"
)

// PromptRequest asks the user for the secret of one server.
type PromptRequest struct {
	Key     credential.Key
	Account string

	// Reprompt is set when a previously supplied secret was rejected
	// by the server, so the UI can say so.
	Reprompt bool
}

// Prompter supplies secrets interactively. PromptSecret blocks until
// the user answers, the context is cancelled, or the prompter's
// timeout expires; cancelled reports that the user dismissed the
// prompt without entering a secret.
type Prompter interface {
	PromptSecret(ctx context.Context, req PromptRequest) (secret string, cancelled bool, err error)
}

// ErrPromptTimeout is returned when no interactive answer arrives in
// time.
var ErrPromptTimeout = errors.New("session: credential prompt timed out")

// PromptJob is one pending credential request handed to the primary
// context. The responder must call Reply exactly once; Reply is safe
// against duplicate calls and never blocks, so the responder always
// signals even when the requesting worker has already given up.
type PromptJob struct {
	Request PromptRequest

	once  sync.Once
	reply chan promptReply
}

type promptReply struct {
	secret    string
	cancelled bool
	err       error
}

// Reply delivers the user's answer to the waiting worker.
func (j *PromptJob) Reply(secret string, cancelled bool, err error) {
	j.once.Do(func() {
		j.reply <- promptReply{secret: secret, cancelled: cancelled, err: err}
	})
}

// ChannelPrompter bridges authentication running on background
// goroutines to the primary context that can show UI. Workers block in
// PromptSecret while the primary context drains Requests and answers
// each job; the reply channel is buffered so a late answer to a worker
// that timed out is dropped instead of deadlocking the responder.
type ChannelPrompter struct {
	requests chan *PromptJob
	timeout  time.Duration
}

var _ Prompter = (*ChannelPrompter)(nil)

// NewChannelPrompter creates a prompter whose workers wait at most
// timeout for an answer.
func NewChannelPrompter(timeout time.Duration) *ChannelPrompter {
	return &ChannelPrompter{
		requests: make(chan *PromptJob),
		timeout:  timeout,
	}
}

// Requests is drained by the primary context.
func (p *ChannelPrompter) Requests() <-chan *PromptJob {
	return p.requests
}

// PromptSecret enqueues a request and blocks for the answer.
func (p *ChannelPrompter) PromptSecret(ctx context.Context, req PromptRequest) (string, bool, error) {
	job := &PromptJob{
		Request: req,
		reply:   make(chan promptReply, 1),
	}

	timer := time.NewTimer(p.timeout)
	defer timer.Stop()

	select {
	case p.requests <- job:
	case <-ctx.Done():
		return "", false, fmt.Errorf("requesting credential prompt: %w", ctx.Err())
	case <-timer.C:
		return "", false, ErrPromptTimeout
	}

	select {
	case reply := <-job.reply:
		return reply.secret, reply.cancelled, reply.err
	case <-ctx.Done():
		return "", false, fmt.Errorf("waiting for credential prompt: %w", ctx.Err())
	case <-timer.C:
		return "", false, ErrPromptTimeout
	}
}

// PrompterFunc adapts a function to the Prompter interface.
type PrompterFunc func(ctx context.Context, req PromptRequest) (string, bool, error)

func (f PrompterFunc) PromptSecret(ctx context.Context, req PromptRequest) (string, bool, error) {
	return f(ctx, req)
}
