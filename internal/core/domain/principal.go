package domain

import "strings"

// Principal is the authenticated identity of a caller, derived from a verified
// client certificate. A zero Principal means the caller did not authenticate.
type Principal struct {
	// Name is the display name: the SPIFFE ID when present, else the subject CN.
	Name string
	// SPIFFEID is set when the client certificate carries a spiffe:// URI SAN.
	SPIFFEID string
}

// IsZero reports whether no identity is present.
func (p Principal) IsZero() bool {
	return strings.TrimSpace(p.Name) == ""
}

// NameOr returns the principal name, or fallback when no identity is present.
func (p Principal) NameOr(fallback string) string {
	if p.IsZero() {
		return fallback
	}
	return p.Name
}
