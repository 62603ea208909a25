package transport

import (
	"context"
	"crypto/tls"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"net"
	"net/textproto"
	"strings"
	"sync"
)

// popInbox is the single mailbox a POP3 server exposes.
const popInbox = "INBOX"

// ErrFixedMailboxes is returned for mailbox mutations on sessions
// whose mailbox set is fixed by the protocol.
var ErrFixedMailboxes = errors.New("transport: session has a fixed mailbox set")

// popError is an explicit -ERR reply from the server, as opposed to a
// connection or protocol failure.
type popError struct {
	msg string
}

func (e *popError) Error() string { return "pop3: " + e.msg }

// popSession implements Session over POP3. The protocol exposes
// exactly one read-only mailbox. The conn fields are written by the
// connectivity monitor while other goroutines run commands, so every
// access goes through the mutex, and commands hold it for the whole
// exchange since POP3 conversations are strictly serial.
type popSession struct {
	settings Settings

	mu     sync.Mutex
	conn   net.Conn
	text   *textproto.Conn
	secret string
	online bool
}

// NewPOPSession creates a POP3 session bound to settings. No
// connection is made until the first authentication.
func NewPOPSession(settings Settings) (Session, error) {
	if settings.Host == "" {
		return nil, fmt.Errorf("pop session: no hostname")
	}
	return &popSession{settings: settings, online: true}, nil
}

func (s *popSession) Settings() Settings { return s.settings }

// connectLocked dials and consumes the greeting. Callers hold s.mu.
func (s *popSession) connectLocked() error {
	if s.text != nil {
		return nil
	}
	if !s.online {
		return ErrOffline
	}

	addr := s.settings.Addr()
	var (
		conn net.Conn
		err  error
	)
	if s.settings.Security == SecuritySSL {
		conn, err = tls.Dial("tcp", addr, &tls.Config{ServerName: s.settings.Host})
	} else {
		conn, err = net.Dial("tcp", addr)
	}
	if err != nil {
		return fmt.Errorf("connecting to POP3 %s: %w", addr, err)
	}

	text := textproto.NewConn(conn)
	if _, err := readPOPReply(text); err != nil {
		conn.Close()
		return fmt.Errorf("reading POP3 greeting from %s: %w", addr, err)
	}

	if s.settings.Security == SecuritySTARTTLS {
		if err := text.PrintfLine("STLS"); err != nil {
			conn.Close()
			return fmt.Errorf("upgrading POP3 connection to %s: %w", addr, err)
		}
		if _, err := readPOPReply(text); err != nil {
			conn.Close()
			return fmt.Errorf("upgrading POP3 connection to %s: %w", addr, err)
		}
		conn = tls.Client(conn, &tls.Config{ServerName: s.settings.Host})
		text = textproto.NewConn(conn)
	}

	s.conn = conn
	s.text = text
	return nil
}

// cmdLocked sends one command and reads the single-line reply. Callers
// hold s.mu with an established connection.
func (s *popSession) cmdLocked(format string, args ...any) (string, error) {
	if err := s.text.PrintfLine(format, args...); err != nil {
		return "", err
	}
	return readPOPReply(s.text)
}

// readPOPReply reads one status line, returning the text after +OK or
// a popError for -ERR.
func readPOPReply(text *textproto.Conn) (string, error) {
	line, err := text.ReadLine()
	if err != nil {
		return "", err
	}
	switch {
	case strings.HasPrefix(line, "+OK"):
		return strings.TrimSpace(strings.TrimPrefix(line, "+OK")), nil
	case strings.HasPrefix(line, "-ERR"):
		return "", &popError{msg: strings.TrimSpace(strings.TrimPrefix(line, "-ERR"))}
	default:
		return "", fmt.Errorf("pop3: malformed reply %q", line)
	}
}

// Authenticate performs one attempt. The empty mechanism is the native
// USER/PASS pair; anything else goes through AUTH. An explicit -ERR
// maps to AuthRejected; everything else that fails is AuthErrored.
func (s *popSession) Authenticate(_ context.Context, mech string) AuthResult {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.connectLocked(); err != nil {
		return AuthResult{Status: AuthErrored, Err: err}
	}

	var err error
	if mech == "" {
		err = s.loginLocked()
	} else {
		err = s.authSASLLocked(mech)
	}
	if err == nil {
		return AuthResult{Status: AuthAccepted}
	}

	var popErr *popError
	if errors.As(err, &popErr) {
		return AuthResult{Status: AuthRejected, Err: err}
	}
	return AuthResult{Status: AuthErrored, Err: fmt.Errorf("authenticating to %s: %w", s.settings.Addr(), err)}
}

func (s *popSession) loginLocked() error {
	if _, err := s.cmdLocked("USER %s", s.settings.User); err != nil {
		return err
	}
	_, err := s.cmdLocked("PASS %s", s.secret)
	return err
}

// authSASLLocked runs one AUTH exchange. Continuation challenges are
// "+ " lines carrying base64.
func (s *popSession) authSASLLocked(mech string) error {
	client, err := newSASLClient(mech, s.settings.User, s.secret)
	if err != nil {
		return err
	}
	mechName, ir, err := client.Start()
	if err != nil {
		return err
	}

	cmd := "AUTH " + mechName
	if len(ir) > 0 {
		cmd += " " + base64.StdEncoding.EncodeToString(ir)
	}
	if err := s.text.PrintfLine("%s", cmd); err != nil {
		return err
	}

	for {
		line, err := s.text.ReadLine()
		if err != nil {
			return err
		}
		switch {
		case strings.HasPrefix(line, "+OK"):
			return nil
		case strings.HasPrefix(line, "-ERR"):
			return &popError{msg: strings.TrimSpace(strings.TrimPrefix(line, "-ERR"))}
		case strings.HasPrefix(line, "+"):
			challenge, err := base64.StdEncoding.DecodeString(strings.TrimSpace(line[1:]))
			if err != nil {
				return fmt.Errorf("pop3: undecodable challenge %q: %w", line, err)
			}
			resp, err := client.Next(challenge)
			if err != nil {
				return err
			}
			if err := s.text.PrintfLine("%s", base64.StdEncoding.EncodeToString(resp)); err != nil {
				return err
			}
		default:
			return fmt.Errorf("pop3: malformed reply %q", line)
		}
	}
}

func (s *popSession) Disconnect() error {
	s.mu.Lock()
	conn, text := s.conn, s.text
	s.conn, s.text = nil, nil
	s.mu.Unlock()

	if conn == nil {
		return nil
	}
	if err := text.PrintfLine("QUIT"); err != nil {
		return conn.Close()
	}
	_, _ = readPOPReply(text)
	return conn.Close()
}

func (s *popSession) Connected() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.conn != nil
}

func (s *popSession) Secret() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.secret
}

func (s *popSession) SetSecret(secret string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.secret = secret
}

func (s *popSession) ClearSecret() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.secret = ""
}

func (s *popSession) SetOnline(online bool) {
	s.mu.Lock()
	s.online = online
	var conn net.Conn
	if !online {
		conn = s.conn
		s.conn, s.text = nil, nil
	}
	s.mu.Unlock()

	if conn != nil {
		_ = conn.Close()
	}
}

func (s *popSession) CreateFolder(context.Context, string) error { return ErrFixedMailboxes }

func (s *popSession) OpenFolder(ctx context.Context, name string) (Folder, error) {
	if !strings.EqualFold(name, popInbox) {
		return nil, fmt.Errorf("pop3: no mailbox %q", name)
	}
	if err := s.RefreshFolder(ctx, name); err != nil {
		return nil, err
	}
	return &popFolder{}, nil
}

func (s *popSession) DeleteFolder(context.Context, string) error { return ErrFixedMailboxes }

func (s *popSession) ListFolders(context.Context) ([]string, error) {
	return []string{popInbox}, nil
}

func (s *popSession) RefreshFolder(_ context.Context, name string) error {
	if !strings.EqualFold(name, popInbox) {
		return fmt.Errorf("pop3: no mailbox %q", name)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.connectLocked(); err != nil {
		return err
	}
	if _, err := s.cmdLocked("STAT"); err != nil {
		return fmt.Errorf("refreshing mailbox %q: %w", name, err)
	}
	return nil
}

// popFolder is the read-only INBOX.
type popFolder struct{}

func (f *popFolder) Name() string { return popInbox }

func (f *popFolder) Append(context.Context, io.Reader) error {
	return errors.New("pop3: mailbox is read-only")
}
