package strings

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestDedupeAndTrimUpper(t *testing.T) {
	tests := []struct {
		name     string
		input    []string
		expected []string
	}{
		{"nil slice", nil, nil},
		{"empty slice", []string{}, []string{}},
		{"mixed case repeats", []string{" fr", "FR", "de ", "Fr"}, []string{"FR", "DE"}},
		{"blanks dropped", []string{"", "  ", "\t"}, []string{}},
		{"order of first occurrence", []string{"schengen", "es", "SCHENGEN"}, []string{"SCHENGEN", "ES"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, DedupeAndTrimUpper(tt.input))
		})
	}
}
