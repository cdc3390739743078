package domain

import (
	"strings"
	"unicode/utf8"

	"github.com/google/uuid"

	dErrors "residency/pkg/domain-errors"
)

// UserID identifies the person whose presence is tracked.
type UserID uuid.UUID

// ConflictID identifies a conflict record. Derived deterministically from
// conflict content so identical inputs produce identical ids.
type ConflictID uuid.UUID

// conflictNamespace scopes ConflictID derivation.
var conflictNamespace = uuid.MustParse("4f0e7c55-2a61-5d2e-9b4c-3b8f0d6a2c11")

// NewConflictID derives the id for the given parts. Parts are joined with a
// separator that cannot appear in dates or evidence ids accepted by
// ParseEvidenceID.
func NewConflictID(parts ...string) ConflictID {
	return ConflictID(uuid.NewSHA1(conflictNamespace, []byte(strings.Join(parts, "\x1f"))))
}

func parseUUID(s, kind string) (uuid.UUID, error) {
	if s == "" {
		return uuid.Nil, dErrors.New(dErrors.CodeInvalidInput, kind+" cannot be empty")
	}
	u, err := uuid.Parse(s)
	if err != nil {
		return uuid.Nil, dErrors.New(dErrors.CodeInvalidInput, "invalid "+kind+": must be a UUID")
	}
	if u == uuid.Nil {
		return uuid.Nil, dErrors.New(dErrors.CodeInvalidInput, kind+" cannot be the nil UUID")
	}
	return u, nil
}

// ParseUserID parses a user id at a trust boundary.
func ParseUserID(s string) (UserID, error) {
	u, err := parseUUID(s, "user id")
	return UserID(u), err
}

// ParseConflictID parses a conflict id at a trust boundary.
func ParseConflictID(s string) (ConflictID, error) {
	u, err := parseUUID(s, "conflict id")
	return ConflictID(u), err
}

func (id UserID) String() string     { return uuid.UUID(id).String() }
func (id UserID) IsNil() bool        { return uuid.UUID(id) == uuid.Nil }
func (id ConflictID) String() string { return uuid.UUID(id).String() }
func (id ConflictID) IsNil() bool    { return uuid.UUID(id) == uuid.Nil }

func (id ConflictID) MarshalText() ([]byte, error) {
	return []byte(id.String()), nil
}

func (id *ConflictID) UnmarshalText(b []byte) error {
	u, err := uuid.ParseBytes(b)
	if err != nil {
		return dErrors.New(dErrors.CodeInvalidInput, "invalid conflict id")
	}
	*id = ConflictID(u)
	return nil
}

// EvidenceID is the external evidence store's opaque record id.
type EvidenceID string

// RuleID identifies a versioned rule definition.
type RuleID string

// SnapshotID identifies an immutable evidence snapshot.
type SnapshotID string

const maxOpaqueIDLen = 128

func parseOpaque(s, kind string) (string, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return "", dErrors.New(dErrors.CodeInvalidInput, kind+" cannot be empty")
	}
	if len(s) > maxOpaqueIDLen {
		return "", dErrors.New(dErrors.CodeInvalidInput, kind+" is too long")
	}
	if !utf8.ValidString(s) {
		return "", dErrors.New(dErrors.CodeInvalidInput, kind+" must be valid UTF-8")
	}
	for _, r := range s {
		if r < 0x20 || r == 0x7f {
			return "", dErrors.New(dErrors.CodeInvalidInput, kind+" contains control characters")
		}
	}
	return s, nil
}

// ParseEvidenceID validates an evidence id.
func ParseEvidenceID(s string) (EvidenceID, error) {
	v, err := parseOpaque(s, "evidence id")
	return EvidenceID(v), err
}

// ParseRuleID validates a rule id.
func ParseRuleID(s string) (RuleID, error) {
	v, err := parseOpaque(s, "rule id")
	return RuleID(v), err
}

func (id EvidenceID) String() string { return string(id) }
func (id RuleID) String() string     { return string(id) }
func (id SnapshotID) String() string { return string(id) }
