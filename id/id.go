// Package id defines the TypeID-backed identifiers used by Steward entities.
//
// An ID carries a short prefix naming the entity kind followed by a
// UUIDv7 suffix, e.g. "role_01h2xcejqtf2nbrexx3vqjhp41". IDs sort by
// creation time and are safe to embed in URLs.
package id

import (
	"database/sql/driver"
	"fmt"
	"strings"

	"go.jetify.com/typeid/v2"
)

// Prefix names the entity kind encoded in an ID.
type Prefix string

// Entity prefixes.
const (
	PrefixRole          Prefix = "role"
	PrefixAssignment    Prefix = "asgn"
	PrefixPrincipal     Prefix = "prin"
	PrefixResolutionLog Prefix = "rlog"
)

// ID identifies a Steward entity. The zero value is Nil.
//
//nolint:recvcheck // Value receivers for read-only methods, pointer receivers for UnmarshalText/Scan.
type ID struct {
	inner typeid.TypeID
	valid bool
}

// Nil is the zero-value ID.
var Nil ID

// New generates an ID with the given prefix. It panics on a malformed
// prefix, which is always a programming error.
func New(prefix Prefix) ID {
	tid, err := typeid.Generate(string(prefix))
	if err != nil {
		panic(fmt.Sprintf("id: invalid prefix %q: %v", prefix, err))
	}

	return ID{inner: tid, valid: true}
}

// Parse parses any prefixed TypeID string.
func Parse(s string) (ID, error) {
	if strings.TrimSpace(s) == "" {
		return Nil, fmt.Errorf("id: parse %q: empty string", s)
	}

	tid, err := typeid.Parse(s)
	if err != nil {
		return Nil, fmt.Errorf("id: parse %q: %w", s, err)
	}

	return ID{inner: tid, valid: true}, nil
}

// ParseWithPrefix parses s and rejects IDs of a different entity kind.
func ParseWithPrefix(s string, expected Prefix) (ID, error) {
	parsed, err := Parse(s)
	if err != nil {
		return Nil, err
	}

	if got := parsed.Prefix(); got != expected {
		return Nil, fmt.Errorf("id: parse %q: expected prefix %q, got %q", s, expected, got)
	}

	return parsed, nil
}

// MustParse is like Parse but panics on error.
func MustParse(s string) ID {
	parsed, err := Parse(s)
	if err != nil {
		panic(fmt.Sprintf("id: must parse %q: %v", s, err))
	}

	return parsed
}

// ──────────────────────────────────────────────────
// Entity aliases
// ──────────────────────────────────────────────────

// RoleID identifies a role in the catalog (prefix "role").
type RoleID = ID

// AssignmentID identifies a principal-to-role binding (prefix "asgn").
type AssignmentID = ID

// PrincipalID identifies a registered principal record (prefix "prin").
// Note that assignments reference principals by their external identifier,
// not by this ID.
type PrincipalID = ID

// ResolutionLogID identifies a resolution diagnostics entry (prefix "rlog").
type ResolutionLogID = ID

// NewRoleID generates a role ID.
func NewRoleID() ID { return New(PrefixRole) }

// NewAssignmentID generates an assignment ID.
func NewAssignmentID() ID { return New(PrefixAssignment) }

// NewPrincipalID generates a principal ID.
func NewPrincipalID() ID { return New(PrefixPrincipal) }

// NewResolutionLogID generates a resolution log entry ID.
func NewResolutionLogID() ID { return New(PrefixResolutionLog) }

// ParseRoleID parses s as a role ID.
func ParseRoleID(s string) (ID, error) { return ParseWithPrefix(s, PrefixRole) }

// ParseAssignmentID parses s as an assignment ID.
func ParseAssignmentID(s string) (ID, error) { return ParseWithPrefix(s, PrefixAssignment) }

// ParsePrincipalID parses s as a principal ID.
func ParsePrincipalID(s string) (ID, error) { return ParseWithPrefix(s, PrefixPrincipal) }

// ParseResolutionLogID parses s as a resolution log entry ID.
func ParseResolutionLogID(s string) (ID, error) { return ParseWithPrefix(s, PrefixResolutionLog) }

// ──────────────────────────────────────────────────
// Methods
// ──────────────────────────────────────────────────

// String returns "prefix_suffix", or "" for Nil.
func (i ID) String() string {
	if !i.valid {
		return ""
	}

	return i.inner.String()
}

// Prefix returns the entity prefix, or "" for Nil.
func (i ID) Prefix() Prefix {
	if !i.valid {
		return ""
	}

	return Prefix(i.inner.Prefix())
}

// IsNil reports whether i is the zero value.
func (i ID) IsNil() bool {
	return !i.valid
}

// Compare orders IDs by their string form. Nil sorts first.
func (i ID) Compare(other ID) int {
	return strings.Compare(i.String(), other.String())
}

// MarshalText implements encoding.TextMarshaler.
func (i ID) MarshalText() ([]byte, error) {
	return []byte(i.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler. Empty input yields Nil.
func (i *ID) UnmarshalText(data []byte) error {
	if len(data) == 0 {
		*i = Nil

		return nil
	}

	parsed, err := Parse(string(data))
	if err != nil {
		return err
	}

	*i = parsed

	return nil
}

// Value implements driver.Valuer. Nil is stored as NULL.
func (i ID) Value() (driver.Value, error) {
	if !i.valid {
		return nil, nil //nolint:nilnil // NULL for optional references
	}

	return i.inner.String(), nil
}

// Scan implements sql.Scanner.
func (i *ID) Scan(src any) error {
	switch v := src.(type) {
	case nil:
		*i = Nil
		return nil
	case string:
		return i.UnmarshalText([]byte(v))
	case []byte:
		return i.UnmarshalText(v)
	default:
		return fmt.Errorf("id: cannot scan %T into ID", src)
	}
}
