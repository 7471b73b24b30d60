package money

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestFormat(t *testing.T) {
	tests := []struct {
		cents int64
		want  string
	}{
		{0, "0.00"},
		{1, "0.01"},
		{99, "0.99"},
		{100, "1.00"},
		{2900, "29.00"},
		{7900, "79.00"},
		{79000, "790.00"},
		{450000, "4500.00"},
		{123456789, "1234567.89"},
	}

	for _, tt := range tests {
		t.Run(tt.want, func(t *testing.T) {
			require.Equal(t, tt.want, Format(tt.cents))
		})
	}
}

// Every non-negative amount must render exactly as integer division by 100.
func TestFormatMatchesIntegerDivision(t *testing.T) {
	for cents := int64(0); cents < 100000; cents += 37 {
		want := fmt.Sprintf("%d.%02d", cents/100, cents%100)
		if got := Format(cents); got != want {
			t.Fatalf("Format(%d) = %q, want %q", cents, got, want)
		}
	}
}

func TestAverage(t *testing.T) {
	require.Equal(t, int64(0), Average(100, 0))
	require.Equal(t, int64(3333), Average(10000, 3))
	require.Equal(t, "79.00", NewAmount(7900).Formatted)
}
