package accounts

import (
	"context"
	"fmt"

	"github.com/jdapena/iwkmail/internal/model"
)

// LoadAccountSettings populates a full settings value from every
// persisted field of the account, including both referenced server
// accounts. A missing account is ErrNotFound; a referenced server
// account that fails to load is ErrCorrupted, since the reference
// itself proves the account was once complete.
func (r *Registry) LoadAccountSettings(ctx context.Context, name string) (*model.AccountSettings, error) {
	exists, err := r.AccountExists(ctx, name, false)
	if err != nil {
		return nil, err
	}
	if !exists {
		return nil, fmt.Errorf("%w: %q", ErrNotFound, name)
	}

	s := &model.AccountSettings{
		Name:        name,
		DisplayName: r.stringOr(ctx, name, propDisplayName, false, ""),
		Fullname:    r.stringOr(ctx, name, propFullname, false, ""),
		Email:       r.stringOr(ctx, name, propEmail, false, ""),

		RetrieveType:  model.ParseRetrieveType(r.stringOr(ctx, name, propRetrieve, false, "")),
		RetrieveLimit: r.intOr(ctx, name, propLimitRetrieve, false, 0),

		Enabled: r.boolOr(ctx, name, propEnabled, false, false),

		UseSignature: r.boolOr(ctx, name, propUseSignature, false, false),
		Signature:    r.stringOr(ctx, name, propSignature, false, ""),

		LeaveOnServer:             r.boolOr(ctx, name, propLeaveOnServer, false, false),
		UseConnectionSpecificSMTP: r.boolOr(ctx, name, propUseSpecificSMTP, false, false),

		StoreAccountName:     r.stringOr(ctx, name, propStoreAccount, false, ""),
		TransportAccountName: r.stringOr(ctx, name, propTransportAccount, false, ""),
	}

	isDefault, err := r.IsDefault(ctx, name)
	if err != nil {
		return nil, err
	}
	s.IsDefault = isDefault

	if s.StoreAccountName != "" {
		srv, err := r.LoadServerSettings(ctx, s.StoreAccountName)
		if err != nil {
			return nil, fmt.Errorf("%w: account %q store server: %v", ErrCorrupted, name, err)
		}
		s.Store = *srv
	}
	if s.TransportAccountName != "" {
		srv, err := r.LoadServerSettings(ctx, s.TransportAccountName)
		if err != nil {
			return nil, fmt.Errorf("%w: account %q transport server: %v", ErrCorrupted, name, err)
		}
		s.Transport = *srv
	}

	return s, nil
}

// LoadServerSettings populates a server settings value from every
// persisted field of the server account.
func (r *Registry) LoadServerSettings(ctx context.Context, name string) (*model.ServerSettings, error) {
	exists, err := r.AccountExists(ctx, name, true)
	if err != nil {
		return nil, err
	}
	if !exists {
		return nil, fmt.Errorf("%w: server account %q", ErrNotFound, name)
	}

	return &model.ServerSettings{
		AccountName: name,

		URI: r.stringOr(ctx, name, propURI, true, ""),

		Hostname:     r.stringOr(ctx, name, propHostname, true, ""),
		Port:         r.intOr(ctx, name, propPort, true, 0),
		ProtocolName: r.stringOr(ctx, name, propProto, true, ""),
		SecurityName: r.stringOr(ctx, name, propSecurity, true, ""),
		AuthName:     r.stringOr(ctx, name, propAuthMech, true, ""),
		Username:     r.stringOr(ctx, name, propUsername, true, ""),
		Password:     r.stringOr(ctx, name, propPassword, true, ""),

		UsernameHasSucceeded: r.boolOr(ctx, name, propUserSucceeded, true, false),
	}, nil
}

// SaveAccountSettings persists every field of s, including both server
// accounts. Saving forces the enabled flag true: a saved account is a
// usable account. Saving IsDefault false for the current default hands
// the default to the collated-first remaining enabled account. Writes
// are sequential and non-transactional.
func (r *Registry) SaveAccountSettings(ctx context.Context, s *model.AccountSettings) error {
	if err := s.Validate(); err != nil {
		return fmt.Errorf("saving account: %w", err)
	}

	name := s.Name
	writes := []func() error{
		func() error { return r.SetString(ctx, name, propDisplayName, false, s.DisplayName) },
		func() error { return r.SetString(ctx, name, propFullname, false, s.Fullname) },
		func() error { return r.SetString(ctx, name, propEmail, false, s.Email) },
		func() error { return r.SetString(ctx, name, propRetrieve, false, string(s.RetrieveType)) },
		func() error { return r.SetInt(ctx, name, propLimitRetrieve, false, s.RetrieveLimit) },
		func() error { return r.SetBool(ctx, name, propUseSignature, false, s.UseSignature) },
		func() error { return r.SetString(ctx, name, propSignature, false, s.Signature) },
		func() error { return r.SetBool(ctx, name, propLeaveOnServer, false, s.LeaveOnServer) },
		func() error { return r.SetBool(ctx, name, propUseSpecificSMTP, false, s.UseConnectionSpecificSMTP) },
		func() error { return r.SetString(ctx, name, propStoreAccount, false, s.StoreAccountName) },
		func() error { return r.SetString(ctx, name, propTransportAccount, false, s.TransportAccountName) },
		// Saving settings always re-enables the account.
		func() error { return r.SetBool(ctx, name, propEnabled, false, true) },
	}
	for _, write := range writes {
		if err := write(); err != nil {
			return fmt.Errorf("saving account %q: %w", name, err)
		}
	}

	if s.IsDefault {
		if err := r.SetDefaultAccount(ctx, name); err != nil {
			return err
		}
	} else {
		isDefault, err := r.IsDefault(ctx, name)
		if err != nil {
			return err
		}
		if isDefault {
			if err := r.electNewDefault(ctx, name); err != nil {
				return err
			}
		}
	}

	if s.Store.AccountName != "" {
		if err := r.SaveServerSettings(ctx, &s.Store); err != nil {
			return err
		}
	}
	if s.Transport.AccountName != "" {
		if err := r.SaveServerSettings(ctx, &s.Transport); err != nil {
			return err
		}
	}
	return nil
}

// SaveServerSettings persists every field of s. Writes are sequential
// and non-transactional.
func (r *Registry) SaveServerSettings(ctx context.Context, s *model.ServerSettings) error {
	name := s.AccountName
	if name == "" {
		return fmt.Errorf("saving server account: no name")
	}

	writes := []func() error{
		func() error { return r.SetString(ctx, name, propURI, true, s.URI) },
		func() error { return r.SetString(ctx, name, propHostname, true, s.Hostname) },
		func() error { return r.SetInt(ctx, name, propPort, true, s.Port) },
		func() error { return r.SetString(ctx, name, propProto, true, s.ProtocolName) },
		func() error { return r.SetString(ctx, name, propSecurity, true, s.SecurityName) },
		func() error { return r.SetString(ctx, name, propAuthMech, true, s.AuthName) },
		func() error { return r.SetString(ctx, name, propUsername, true, s.Username) },
		func() error { return r.SetString(ctx, name, propPassword, true, s.Password) },
		func() error { return r.SetBool(ctx, name, propUserSucceeded, true, s.UsernameHasSucceeded) },
	}
	for _, write := range writes {
		if err := write(); err != nil {
			return fmt.Errorf("saving server account %q: %w", name, err)
		}
	}
	return nil
}
