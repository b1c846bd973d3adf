package commands

import (
	"errors"
	"fmt"
	"strings"
	"testing"

	"github.com/wonny/clv-retention/internal/contracts"
)

func TestDescribe(t *testing.T) {
	tests := []struct {
		name   string
		err    error
		prefix string
	}{
		{"insufficient history", fmt.Errorf("S1 failed: %w", contracts.ErrInsufficientHistory), "❌ Not enough ledger history"},
		{"validation", contracts.NewValidationError("csv", "--offline needs a ledger CSV"), "❌ Invalid input: validation failed: csv"},
		{"other", errors.New("connection refused"), "❌ connection refused"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Describe(tt.err)
			if !strings.HasPrefix(got, tt.prefix) {
				t.Errorf("Describe() = %q, want prefix %q", got, tt.prefix)
			}
		})
	}
}

func TestParseWeights(t *testing.T) {
	got, err := parseWeights("1, 0.5,0")
	if err != nil {
		t.Fatalf("parseWeights() error = %v", err)
	}
	want := []float64{1, 0.5, 0}
	if len(got) != len(want) {
		t.Fatalf("parseWeights() = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("weight[%d] = %v, want %v", i, got[i], want[i])
		}
	}

	if _, err := parseWeights("1,abc"); !contracts.IsValidation(err) {
		t.Errorf("parseWeights(\"1,abc\") error = %v, want validation error", err)
	}
}
