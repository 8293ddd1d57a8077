package analytics

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestGrowth(t *testing.T) {
	tests := []struct {
		name     string
		current  int64
		previous int64
		want     float64
	}{
		{"no prior period", 125, 0, 0},
		{"no prior period and nothing now", 0, 0, 0},
		{"negative prior treated as empty", 10, -5, 0},
		{"quarter growth", 125, 100, 25.0},
		{"decline", 75, 100, -25.0},
		{"flat", 100, 100, 0},
		{"rounds to one decimal", 4, 3, 33.3},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Growth(tt.current, tt.previous))
		})
	}
}

func TestPercentage(t *testing.T) {
	assert.Equal(t, 40.0, Percentage(4, 10))
	assert.Equal(t, 66.7, Percentage(2, 3))
	assert.Equal(t, 0.0, Percentage(5, 0))
}

func TestRoundTo(t *testing.T) {
	assert.Equal(t, 1.2, RoundTo(1.24, 1))
	assert.Equal(t, 1.3, RoundTo(1.25, 1))
	assert.Equal(t, -1.3, RoundTo(-1.25, 1))
	assert.Equal(t, 3.14, RoundTo(3.14159, 2))
}
