package protocol

import (
	"sort"

	"golang.org/x/text/collate"
	"golang.org/x/text/language"
)

// Capability tags grouping protocols that share a trait.
const (
	// TagStore marks mailbox storage kinds (imap, pop, maildir, mbox).
	TagStore = "store"

	// TagTransport marks outgoing mail kinds (smtp, sendmail).
	TagTransport = "transport"

	// TagRemoteStore marks store kinds whose mailboxes live on the
	// server rather than on local disk.
	TagRemoteStore = "remote-store"

	// TagSecurity marks connection security modes.
	TagSecurity = "security"

	// TagAuth marks authentication mechanisms.
	TagAuth = "auth"
)

// Registry is the process-lifetime protocol catalog. It is populated
// once at construction and read-only afterwards; concurrent reads are
// safe, concurrent mutation is not supported.
type Registry struct {
	all        map[Type]*Protocol
	tags       map[string]map[Type]*Protocol
	priorities map[Type]int
	collator   *collate.Collator
}

// NewRegistry creates an empty registry. Most callers want
// NewDefaultRegistry instead.
func NewRegistry() *Registry {
	return &Registry{
		all:        make(map[Type]*Protocol),
		tags:       make(map[string]map[Type]*Protocol),
		priorities: make(map[Type]int),
		collator:   collate.New(language.Und, collate.IgnoreCase),
	}
}

// Add registers p in the all-protocols table and in each named tag
// table, recording its priority. Lower priorities sort first in ByTag.
func (r *Registry) Add(p *Protocol, priority int, tags ...string) {
	r.all[p.Type()] = p
	r.priorities[p.Type()] = priority
	for _, tag := range tags {
		table := r.tags[tag]
		if table == nil {
			table = make(map[Type]*Protocol)
			r.tags[tag] = table
		}
		table[p.Type()] = p
	}
}

// ByTag returns the protocols carrying tag, sorted by ascending
// priority with ties broken by collated display name.
func (r *Registry) ByTag(tag string) []*Protocol {
	table := r.tags[tag]
	out := make([]*Protocol, 0, len(table))
	for _, p := range table {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool {
		pi, pj := r.priorities[out[i].Type()], r.priorities[out[j].Type()]
		if pi != pj {
			return pi < pj
		}
		return r.collator.CompareString(out[i].DisplayName(), out[j].DisplayName()) < 0
	})
	return out
}

// ByName returns the protocol named name within tag, or nil when the
// tag has no such member.
func (r *Registry) ByName(tag, name string) *Protocol {
	for _, p := range r.tags[tag] {
		if p.Name() == name {
			return p
		}
	}
	return nil
}

// ByType returns the protocol with the given runtime id, or nil.
func (r *Registry) ByType(id Type) *Protocol {
	return r.all[id]
}

// HasTag reports whether the protocol with the given id carries tag.
func (r *Registry) HasTag(id Type, tag string) bool {
	_, ok := r.tags[tag][id]
	return ok
}

// All returns every registered protocol in priority order.
func (r *Registry) All() []*Protocol {
	out := make([]*Protocol, 0, len(r.all))
	for _, p := range r.all {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool {
		pi, pj := r.priorities[out[i].Type()], r.priorities[out[j].Type()]
		if pi != pj {
			return pi < pj
		}
		return r.collator.CompareString(out[i].DisplayName(), out[j].DisplayName()) < 0
	})
	return out
}
