package accounts

import (
	"context"
	"fmt"
	"strconv"
)

// incrementName bumps the trailing decimal-digit suffix of name, or
// appends one if none exists. Digits are parsed over codepoints, so
// multi-byte text before the suffix is preserved intact.
func incrementName(name string) string {
	runes := []rune(name)
	i := len(runes)
	for i > 0 && runes[i-1] >= '0' && runes[i-1] <= '9' {
		i--
	}
	prefix, digits := string(runes[:i]), string(runes[i:])
	if digits == "" {
		return prefix + "1"
	}
	n, err := strconv.Atoi(digits)
	if err != nil {
		// Suffix too large to parse; start a fresh counter.
		return name + "1"
	}
	return prefix + strconv.Itoa(n+1)
}

// UnusedAccountName returns candidate if no account or server account
// uses it, otherwise the first incremented variant that is free.
func (r *Registry) UnusedAccountName(ctx context.Context, candidate string) (string, error) {
	name := candidate
	for {
		inUse, err := r.AccountExists(ctx, name, false)
		if err != nil {
			return "", err
		}
		if !inUse {
			inUse, err = r.AccountExists(ctx, name, true)
			if err != nil {
				return "", err
			}
		}
		if !inUse {
			return name, nil
		}
		name = incrementName(name)
	}
}

// UnusedDisplayName returns candidate if no account currently uses it
// as a display name, otherwise the first incremented variant that is
// free.
func (r *Registry) UnusedDisplayName(ctx context.Context, candidate string) (string, error) {
	names, err := r.AccountNames(ctx, false)
	if err != nil {
		return "", err
	}
	used := make(map[string]bool, len(names))
	for _, n := range names {
		used[r.DisplayName(ctx, n)] = true
	}

	name := candidate
	for used[name] {
		name = incrementName(name)
	}
	if name == "" {
		return "", fmt.Errorf("accounts: empty display name candidate")
	}
	return name, nil
}
