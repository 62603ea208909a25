package session

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/jdapena/iwkmail/internal/model"
)

// RefreshState represents the current state of an account refresh.
type RefreshState int

const (
	RefreshIdle RefreshState = iota
	RefreshRunning
	RefreshError
)

// RefreshStatus holds the refresh state of a single account.
type RefreshStatus struct {
	Account     string
	State       RefreshState
	LastRefresh time.Time
	Error       error
}

// RefreshResult is delivered after each account refresh completes.
type RefreshResult struct {
	Account string
	Folders []string
	Error   error

	// AuthError is set when the refresh failed authenticating, so the
	// consumer can ask for new credentials instead of retrying blindly.
	AuthError *AuthError
}

// refreshTimeout is the maximum time allowed for one account refresh.
const refreshTimeout = 30 * time.Second

// Refresher polls the store session of every managed account in the
// background, keeping mailbox listings fresh while the device is
// online. Refreshes are skipped while offline.
type Refresher struct {
	manager  *Manager
	interval time.Duration

	resultCh  chan RefreshResult
	triggerCh chan string
	stopCh    chan struct{}

	mu       sync.Mutex
	statuses map[string]*RefreshStatus
	running  bool
}

// NewRefresher creates a refresher polling every interval.
func NewRefresher(m *Manager, interval time.Duration) *Refresher {
	if interval <= 0 {
		interval = 2 * time.Minute
	}
	return &Refresher{
		manager:   m,
		interval:  interval,
		resultCh:  make(chan RefreshResult, 16),
		triggerCh: make(chan string, 16),
		statuses:  make(map[string]*RefreshStatus),
	}
}

// Results delivers one RefreshResult per completed account refresh.
func (r *Refresher) Results() <-chan RefreshResult {
	return r.resultCh
}

// Start launches the polling goroutine. Starting twice is a no-op; a
// stopped refresher may be started again.
func (r *Refresher) Start() {
	r.mu.Lock()
	if r.running {
		r.mu.Unlock()
		return
	}
	r.running = true
	r.stopCh = make(chan struct{})
	stop := r.stopCh
	r.mu.Unlock()

	go r.loop(stop)
}

// Stop halts the polling goroutine.
func (r *Refresher) Stop() {
	r.mu.Lock()
	defer r.mu.Unlock()
	if !r.running {
		return
	}
	close(r.stopCh)
	r.running = false
}

// Trigger requests an immediate refresh of one account. Requests are
// dropped rather than blocking when the refresher is saturated.
func (r *Refresher) Trigger(account string) {
	select {
	case r.triggerCh <- account:
	default:
	}
}

// Statuses returns the refresh status of every account seen so far.
func (r *Refresher) Statuses() []RefreshStatus {
	r.mu.Lock()
	defer r.mu.Unlock()

	statuses := make([]RefreshStatus, 0, len(r.statuses))
	for _, s := range r.statuses {
		statuses = append(statuses, *s)
	}
	return statuses
}

func (r *Refresher) loop(stop <-chan struct{}) {
	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			for _, account := range r.manager.Accounts() {
				r.refresh(account)
			}
		case account := <-r.triggerCh:
			r.refresh(account)
		}
	}
}

// refresh connects the account's store service and walks its folders.
func (r *Refresher) refresh(account string) {
	if !r.manager.Online() {
		return
	}

	r.setStatus(account, RefreshRunning, nil)

	ctx, cancel := context.WithTimeout(context.Background(), refreshTimeout)
	defer cancel()

	folders, err := r.fetch(ctx, account)
	if err != nil {
		r.setStatus(account, RefreshError, err)

		result := RefreshResult{Account: account, Error: err}
		var authErr *AuthError
		if errors.As(err, &authErr) {
			result.AuthError = authErr
		}
		r.sendResult(result)
		return
	}

	r.setStatus(account, RefreshIdle, nil)
	r.sendResult(RefreshResult{Account: account, Folders: folders})
}

func (r *Refresher) fetch(ctx context.Context, account string) ([]string, error) {
	svc, ok := r.manager.ServiceFor(account, model.RoleStore)
	if !ok {
		return nil, errors.New("no store session")
	}
	if !svc.Session.Connected() {
		if err := r.manager.Authenticate(ctx, svc); err != nil {
			return nil, err
		}
	}

	folders, err := svc.Session.ListFolders(ctx)
	if err != nil {
		return nil, err
	}
	for _, name := range folders {
		if err := svc.Session.RefreshFolder(ctx, name); err != nil {
			return nil, err
		}
	}
	return folders, nil
}

func (r *Refresher) setStatus(account string, state RefreshState, err error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	status, ok := r.statuses[account]
	if !ok {
		status = &RefreshStatus{Account: account}
		r.statuses[account] = status
	}
	status.State = state
	status.Error = err
	if state == RefreshIdle && err == nil {
		status.LastRefresh = time.Now()
	}
}

// sendResult delivers without blocking; stale results are dropped when
// the consumer lags.
func (r *Refresher) sendResult(result RefreshResult) {
	select {
	case r.resultCh <- result:
	default:
	}
}
