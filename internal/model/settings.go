package model

import "fmt"

// RetrieveType controls how much of each message is fetched from the
// server for an account.
type RetrieveType string

const (
	RetrieveHeadersOnly            RetrieveType = "headers-only"
	RetrieveMessages               RetrieveType = "messages"
	RetrieveMessagesAndAttachments RetrieveType = "messages-and-attachments"
)

// ParseRetrieveType maps a persisted string to a RetrieveType,
// defaulting to headers-only for unknown values.
func ParseRetrieveType(s string) RetrieveType {
	switch RetrieveType(s) {
	case RetrieveMessages:
		return RetrieveMessages
	case RetrieveMessagesAndAttachments:
		return RetrieveMessagesAndAttachments
	default:
		return RetrieveHeadersOnly
	}
}

// AccountRole selects one of the two server accounts referenced by an
// account.
type AccountRole int

const (
	RoleStore AccountRole = iota
	RoleTransport
)

func (r AccountRole) String() string {
	if r == RoleTransport {
		return "transport"
	}
	return "store"
}

// ServerSettings holds the connection and authentication parameters of
// one store or transport server account.
//
// Local formats (maildir, mbox) are addressed by URI; remote formats
// use the host/port/protocol fields and leave URI empty.
type ServerSettings struct {
	// AccountName is the server account's own name under the
	// server-accounts namespace, not the owning account's name.
	AccountName string

	URI string

	Hostname     string
	Port         int
	ProtocolName string
	SecurityName string
	AuthName     string
	Username     string
	Password     string

	// UsernameHasSucceeded records that the current username has been
	// accepted by the server at least once, so settings dialogs can
	// stop treating it as unverified.
	UsernameHasSucceeded bool
}

// AccountSettings is the full persisted configuration of one account,
// including its two resolved server accounts.
type AccountSettings struct {
	Name        string
	DisplayName string
	Fullname    string
	Email       string

	RetrieveType  RetrieveType
	RetrieveLimit int

	Enabled   bool
	IsDefault bool

	UseSignature bool
	Signature    string

	LeaveOnServer bool

	// UseConnectionSpecificSMTP makes outgoing mail honor the
	// per-connection transport overrides instead of the account's own
	// transport server.
	UseConnectionSpecificSMTP bool

	StoreAccountName     string
	TransportAccountName string

	Store     ServerSettings
	Transport ServerSettings
}

// ServerFor returns the server settings for the given role.
func (a *AccountSettings) ServerFor(role AccountRole) *ServerSettings {
	if role == RoleTransport {
		return &a.Transport
	}
	return &a.Store
}

// Validate checks the fields required before an account can be saved.
func (a *AccountSettings) Validate() error {
	if a.Name == "" {
		return fmt.Errorf("account has no name")
	}
	if a.StoreAccountName == "" {
		return fmt.Errorf("account %q has no store server account", a.Name)
	}
	if a.TransportAccountName == "" {
		return fmt.Errorf("account %q has no transport server account", a.Name)
	}
	return nil
}
