package accounts

import (
	"github.com/jdapena/iwkmail/internal/conf"
)

// Namespaces under the conf root. Account and server-account names are
// escaped before being used as key segments, so they can never contain
// the separator.
const (
	namespaceAccounts = "accounts"
	namespaceServers  = "server_accounts"
)

// Account property keys.
const (
	propDisplayName      = "display_name"
	propFullname         = "fullname"
	propEmail            = "email"
	propRetrieve         = "retrieve"
	propLimitRetrieve    = "limit_retrieve"
	propEnabled          = "enabled"
	propUseSignature     = "use_signature"
	propSignature        = "signature"
	propLeaveOnServer    = "leave_on_server"
	propUseSpecificSMTP  = "use_specific_smtp"
	propStoreAccount     = "store_account"
	propTransportAccount = "transport_account"
)

// Server account property keys.
const (
	propHostname      = "hostname"
	propPort          = "port"
	propProto         = "proto"
	propSecurity      = "security"
	propAuthMech      = "auth_mech"
	propUsername      = "username"
	propPassword      = "password"
	propURI           = "uri"
	propUserSucceeded = "username_has_succeeded"
)

// Top-level keys outside the per-account namespaces.
const (
	keyDefaultAccount = "default_account"
	keySpecificSMTP   = "connection_specific_smtp"
)

// keyCache caches derived persistence keys per account and property,
// to avoid repeated escape and concatenation work. Entries are never
// evicted, including on account removal; a removed name that is later
// reused resolves to the same derived keys, so stale entries are
// harmless but the cache only ever grows.
type keyCache struct {
	namespace string
	keys      map[string]map[string]string
}

func newKeyCache(namespace string) *keyCache {
	return &keyCache{
		namespace: namespace,
		keys:      make(map[string]map[string]string),
	}
}

// key derives the persistence key for (account, prop). An empty prop
// selects the account's top-level key.
func (c *keyCache) key(account, prop string) string {
	perAccount, ok := c.keys[account]
	if !ok {
		perAccount = make(map[string]string)
		c.keys[account] = perAccount
	}
	if derived, ok := perAccount[prop]; ok {
		return derived
	}

	derived := c.namespace + "/" + conf.Escape(account)
	if prop != "" {
		derived += "/" + conf.Escape(prop)
	}
	perAccount[prop] = derived
	return derived
}

// cacheFor selects the account or server-account key cache.
func (r *Registry) cacheFor(server bool) *keyCache {
	if server {
		return r.srvKeys
	}
	return r.accKeys
}
