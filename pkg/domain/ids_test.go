package domain

import (
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	dErrors "residency/pkg/domain-errors"
)

// TestParseUserID_Invariants validates the parsing invariant:
// "user IDs must be valid, non-nil UUIDs"
func TestParseUserID_Invariants(t *testing.T) {
	t.Run("rejects empty string", func(t *testing.T) {
		_, err := ParseUserID("")
		require.Error(t, err)
		assert.True(t, dErrors.HasCode(err, dErrors.CodeInvalidInput))
	})

	t.Run("rejects invalid format", func(t *testing.T) {
		_, err := ParseUserID("not-a-uuid")
		require.Error(t, err)
		assert.True(t, dErrors.HasCode(err, dErrors.CodeInvalidInput))
	})

	t.Run("rejects nil UUID", func(t *testing.T) {
		_, err := ParseUserID(uuid.Nil.String())
		require.Error(t, err)
		assert.True(t, dErrors.HasCode(err, dErrors.CodeInvalidInput))
	})

	t.Run("accepts valid UUID", func(t *testing.T) {
		validUUID := uuid.New()
		id, err := ParseUserID(validUUID.String())
		require.NoError(t, err)
		assert.Equal(t, UserID(validUUID), id)
	})
}

func TestNewConflictID_Deterministic(t *testing.T) {
	a := NewConflictID("midnight", "2024-03-01", "ev-1", "ev-2")
	b := NewConflictID("midnight", "2024-03-01", "ev-1", "ev-2")
	c := NewConflictID("midnight", "2024-03-02", "ev-1", "ev-2")

	assert.Equal(t, a, b)
	assert.NotEqual(t, a, c)
	assert.False(t, a.IsNil())

	parsed, err := ParseConflictID(a.String())
	require.NoError(t, err)
	assert.Equal(t, a, parsed)
}

func TestParseOpaqueIDs(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		wantErr bool
	}{
		{"simple id", "ev-123", false},
		{"trims whitespace", "  ev-123 ", false},
		{"empty", "", true},
		{"whitespace only", "   ", true},
		{"oversized", strings.Repeat("a", 200), true},
		{"null byte", "ev\x00123", true},
		{"unit separator", "ev\x1f123", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, errEvidence := ParseEvidenceID(tt.input)
			_, errRule := ParseRuleID(tt.input)
			if tt.wantErr {
				require.Error(t, errEvidence)
				require.Error(t, errRule)
				assert.True(t, dErrors.HasCode(errEvidence, dErrors.CodeInvalidInput))
			} else {
				require.NoError(t, errEvidence)
				require.NoError(t, errRule)
			}
		})
	}
}

func TestParseCountryCode(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		want    CountryCode
		wantErr bool
	}{
		{"upper case", "FR", "FR", false},
		{"lower case normalized", "de", "DE", false},
		{"kosovo accepted", "XK", "XK", false},
		{"unknown", "ZZ", "", true},
		{"alpha-3 rejected", "FRA", "", true},
		{"empty", "", "", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseCountryCode(tt.input)
			if tt.wantErr {
				require.Error(t, err)
				assert.True(t, dErrors.HasCode(err, dErrors.CodeInvalidInput))
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestParseJurisdiction(t *testing.T) {
	t.Run("country", func(t *testing.T) {
		j, err := ParseJurisdiction("fr")
		require.NoError(t, err)
		assert.False(t, j.IsZone())
		assert.Equal(t, CountryCode("FR"), j.Country)
	})

	t.Run("zone", func(t *testing.T) {
		j, err := ParseJurisdiction("schengen")
		require.NoError(t, err)
		assert.True(t, j.IsZone())
		assert.Equal(t, "SCHENGEN", j.String())
	})

	t.Run("unknown two letter code", func(t *testing.T) {
		_, err := ParseJurisdiction("QQ")
		require.Error(t, err)
	})

	t.Run("text round trip", func(t *testing.T) {
		var j Jurisdiction
		require.NoError(t, j.UnmarshalText([]byte("SCHENGEN")))
		b, err := j.MarshalText()
		require.NoError(t, err)
		assert.Equal(t, "SCHENGEN", string(b))
	})
}
