package overlay

import "strings"

// Address is the opaque identifier of a remote node on the underlying
// transport (spec.md §3): a full string plus host/port parts. Equality is
// by full string — the core never parses or validates the transport's
// addressing scheme, it just compares and stores it.
type Address struct {
	full string
	host string
	port string
}

// NewAddress builds an Address from its full wire form, splitting out the
// host/port parts on the last ':' if present. An address with no ':' (e.g.
// an opaque anonymizing-network identifier) gets the whole string as its
// host and an empty port; the core never depends on either part.
func NewAddress(full string) Address {
	host, port := full, ""
	if i := strings.LastIndex(full, ":"); i >= 0 {
		host, port = full[:i], full[i+1:]
	}
	return Address{full: full, host: host, port: port}
}

// Full returns the complete address string, which is what equality and
// hashing are defined over.
func (a Address) Full() string { return a.full }

// Host returns the host part of the address, if one could be split out.
func (a Address) Host() string { return a.host }

// Port returns the port part of the address, if one could be split out.
func (a Address) Port() string { return a.port }

// IsZero reports whether this is the zero-value Address.
func (a Address) IsZero() bool { return a.full == "" }

// String implements fmt.Stringer.
func (a Address) String() string { return a.full }
