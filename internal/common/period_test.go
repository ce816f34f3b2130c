package common

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPeriodStart(t *testing.T) {
	end := time.Date(2024, 6, 15, 0, 0, 0, 0, time.UTC)

	tests := []struct {
		period string
		want   time.Time
	}{
		{"", time.Time{}},
		{"max", time.Time{}},
		{"5d", time.Date(2024, 6, 10, 0, 0, 0, 0, time.UTC)},
		{"2wk", time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC)},
		{"6mo", time.Date(2023, 12, 15, 0, 0, 0, 0, time.UTC)},
		{"1Y", time.Date(2023, 6, 15, 0, 0, 0, 0, time.UTC)},
		{"ytd", time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)},
	}
	for _, tt := range tests {
		t.Run(tt.period, func(t *testing.T) {
			got, err := PeriodStart(tt.period, end)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestPeriodStart_Invalid(t *testing.T) {
	for _, p := range []string{"y", "0d", "-1y", "3q", "abc"} {
		_, err := PeriodStart(p, time.Now())
		assert.Error(t, err, p)
	}
}
