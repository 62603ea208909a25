// Package protocol holds the process-lifetime catalog of protocol
// descriptors: wire/storage mechanisms, connection security modes and
// authentication mechanisms, grouped by capability tag and ordered by
// priority.
package protocol

import (
	"fmt"
	"sync/atomic"
)

// Type is the runtime-unique numeric id of a protocol. Ids are
// allocated at construction and never persisted; only the protocol
// name is stored, and it is re-resolved by name at load time.
type Type int32

// TypeNone marks an unset or unresolved protocol reference.
const TypeNone Type = -1

var typeCounter atomic.Int32

// nextType allocates a fresh protocol id. Allocation is atomic so
// registries can be built from any goroutine.
func nextType() Type {
	return Type(typeCounter.Add(1) - 1)
}

// Well-known property names.
const (
	// PropStandardPort and PropAlternatePort hold the decimal ports a
	// remote kind listens on (the alternate port is the SSL one).
	PropStandardPort  = "standard-port"
	PropAlternatePort = "alternate-port"

	// PropSecurityOption is the session-layer security option string a
	// security kind maps to.
	PropSecurityOption = "security-option"

	// PropAuthOption is the SASL mechanism string an auth kind maps to
	// when no per-protocol override applies.
	PropAuthOption = "auth-option"

	// PropLocalFormat marks store kinds that keep mail on local disk.
	PropLocalFormat = "local-format"
)

// Protocol describes one named mechanism: a store or transport kind, a
// connection security mode, or an authentication mechanism.
type Protocol struct {
	id          Type
	name        string
	displayName string

	props map[string]string

	// authMechanisms maps a connection protocol name to the SASL
	// mechanism to use instead of PropAuthOption when authenticating
	// against that protocol.
	authMechanisms map[string]string

	// translations maps template names to fmt format strings used for
	// protocol-specific user messages.
	translations map[string]string
}

// New creates a protocol descriptor with a fresh runtime id.
func New(name, displayName string) *Protocol {
	return &Protocol{
		id:          nextType(),
		name:        name,
		displayName: displayName,
		props:       make(map[string]string),
	}
}

// Type returns the runtime-unique id.
func (p *Protocol) Type() Type { return p.id }

// Name returns the persisted protocol name.
func (p *Protocol) Name() string { return p.name }

// DisplayName returns the human-readable protocol name.
func (p *Protocol) DisplayName() string { return p.displayName }

// Get returns the named property, or "" when unset.
func (p *Protocol) Get(prop string) string { return p.props[prop] }

// Set stores a property string on the protocol.
func (p *Protocol) Set(prop, value string) { p.props[prop] = value }

// Has reports whether the named property is set.
func (p *Protocol) Has(prop string) bool {
	_, ok := p.props[prop]
	return ok
}

// SetAuthMechanism records a per-connection-protocol override for the
// mechanism this auth kind resolves to.
func (p *Protocol) SetAuthMechanism(connProtocol, mechanism string) {
	if p.authMechanisms == nil {
		p.authMechanisms = make(map[string]string)
	}
	p.authMechanisms[connProtocol] = mechanism
}

// AuthMechanism resolves the SASL mechanism to use when this auth kind
// authenticates against connProtocol, honoring overrides.
func (p *Protocol) AuthMechanism(connProtocol string) string {
	if m, ok := p.authMechanisms[connProtocol]; ok {
		return m
	}
	return p.props[PropAuthOption]
}

// SetTranslation registers a named message template.
func (p *Protocol) SetTranslation(name, format string) {
	if p.translations == nil {
		p.translations = make(map[string]string)
	}
	p.translations[name] = format
}

// Translation expands the named message template with args. It returns
// "" when the protocol has no such template.
func (p *Protocol) Translation(name string, args ...any) string {
	format, ok := p.translations[name]
	if !ok {
		return ""
	}
	return fmt.Sprintf(format, args...)
}
