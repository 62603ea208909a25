package protocol

// Protocol names persisted in server account settings.
const (
	ProtocolSendmail = "sendmail"
	ProtocolSMTP     = "smtp"
	ProtocolPOP      = "pop"
	ProtocolIMAP     = "imap"
	ProtocolMaildir  = "maildir"
	ProtocolMbox     = "mbox"

	SecurityNone            = "none"
	SecuritySSL             = "ssl"
	SecurityTLS             = "tls"
	SecurityTLSWhenPossible = "tls-op"

	AuthNone     = "none"
	AuthPassword = "password"
	AuthCRAMMD5  = "cram-md5"
)

// SASL mechanism strings resolved from auth kinds. The empty mechanism
// selects the connection protocol's native login command.
const (
	MechNone      = ""
	MechPlain     = "PLAIN"
	MechCRAMMD5   = "CRAM-MD5"
	MechAnonymous = "ANONYMOUS"
)

// Session security option strings carried by security kinds.
const (
	SecurityOptionNever        = "never"
	SecurityOptionSSL          = "ssl"
	SecurityOptionTLS          = "tls"
	SecurityOptionWhenPossible = "tls-when-possible"
)

// Message template names available on remote store/transport kinds.
const (
	TemplateDeleteMailbox = "delete-mailbox"
	TemplateConnectError  = "connect-error"
	TemplateAuthError     = "auth-error"
	TemplateAccountLimit  = "account-limit"
)

// NewDefaultRegistry builds the registry with the default catalog of
// store/transport kinds, security modes and auth mechanisms.
func NewDefaultRegistry() *Registry {
	r := NewRegistry()

	// Store kinds. IMAP sorts first for new-account defaults.
	imap := New(ProtocolIMAP, "IMAP")
	imap.Set(PropStandardPort, "143")
	imap.Set(PropAlternatePort, "993")
	seedRemoteTranslations(imap, "IMAP")
	r.Add(imap, 0, TagStore, TagRemoteStore)

	pop := New(ProtocolPOP, "POP3")
	pop.Set(PropStandardPort, "110")
	pop.Set(PropAlternatePort, "995")
	seedRemoteTranslations(pop, "POP3")
	r.Add(pop, 10, TagStore, TagRemoteStore)

	maildir := New(ProtocolMaildir, "Maildir")
	maildir.Set(PropLocalFormat, "true")
	r.Add(maildir, 20, TagStore)

	mbox := New(ProtocolMbox, "mbox")
	mbox.Set(PropLocalFormat, "true")
	r.Add(mbox, 30, TagStore)

	// Transport kinds.
	smtp := New(ProtocolSMTP, "SMTP")
	smtp.Set(PropStandardPort, "25")
	smtp.Set(PropAlternatePort, "465")
	seedRemoteTranslations(smtp, "SMTP")
	r.Add(smtp, 0, TagTransport)

	sendmail := New(ProtocolSendmail, "Sendmail")
	sendmail.Set(PropLocalFormat, "true")
	r.Add(sendmail, 10, TagTransport)

	// Security modes.
	secNone := New(SecurityNone, "Off")
	secNone.Set(PropSecurityOption, SecurityOptionNever)
	r.Add(secNone, 0, TagSecurity)

	secTLS := New(SecurityTLS, "TLS (STARTTLS)")
	secTLS.Set(PropSecurityOption, SecurityOptionTLS)
	r.Add(secTLS, 10, TagSecurity)

	secSSL := New(SecuritySSL, "SSL")
	secSSL.Set(PropSecurityOption, SecurityOptionSSL)
	r.Add(secSSL, 20, TagSecurity)

	secOp := New(SecurityTLSWhenPossible, "TLS when possible")
	secOp.Set(PropSecurityOption, SecurityOptionWhenPossible)
	r.Add(secOp, 30, TagSecurity)

	// Auth mechanisms. IMAP and POP have native login commands, so the
	// none/password kinds resolve to no SASL mechanism there.
	authNone := New(AuthNone, "None")
	authNone.Set(PropAuthOption, MechAnonymous)
	authNone.SetAuthMechanism(ProtocolIMAP, MechNone)
	authNone.SetAuthMechanism(ProtocolPOP, MechNone)
	r.Add(authNone, 0, TagAuth)

	authPassword := New(AuthPassword, "Password")
	authPassword.Set(PropAuthOption, MechPlain)
	authPassword.SetAuthMechanism(ProtocolIMAP, MechNone)
	authPassword.SetAuthMechanism(ProtocolPOP, MechNone)
	r.Add(authPassword, 10, TagAuth)

	authCRAM := New(AuthCRAMMD5, "CRAM-MD5")
	authCRAM.Set(PropAuthOption, MechCRAMMD5)
	r.Add(authCRAM, 20, TagAuth)

	return r
}

// seedRemoteTranslations installs the user-message templates shared by
// the remote kinds.
func seedRemoteTranslations(p *Protocol, label string) {
	p.SetTranslation(TemplateDeleteMailbox,
		"Delete mailbox %s from the "+label+" server?")
	p.SetTranslation(TemplateConnectError,
		"Could not connect to the "+label+" server %s.")
	p.SetTranslation(TemplateAuthError,
		"Login to the "+label+" server %s failed for user %s.")
	p.SetTranslation(TemplateAccountLimit,
		"Only %d "+label+" accounts are supported.")
}
