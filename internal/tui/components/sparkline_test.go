package components

import (
	"testing"

	"github.com/charmbracelet/lipgloss"
	"github.com/stretchr/testify/assert"
)

func TestSparklineScrollsAndScales(t *testing.T) {
	s := NewSparkline(4, "RPS", "req/s", lipgloss.NewStyle())
	for _, v := range []float64{100, 1, 2, 4, 8} {
		s.Add(v)
	}

	assert.Equal(t, []float64{1, 2, 4, 8}, s.Data)
	assert.Equal(t, 8.0, s.Max)
	assert.Equal(t, 8.0, s.Last())
	assert.Equal(t, "▁▂▄█", s.Graph())
}

func TestSparklinePadsAndHandlesZero(t *testing.T) {
	s := NewSparkline(3, "", "", lipgloss.NewStyle())
	assert.Equal(t, "   ", s.Graph())
	s.Add(0)
	s.Add(-5)
	assert.Equal(t, "   ", s.Graph())
	assert.Equal(t, 0.0, s.Last())
}
