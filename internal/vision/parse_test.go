package vision

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestParseLine(t *testing.T) {
	tests := []struct {
		name     string
		line     string
		expected *Draft
	}{
		{
			name:     "full item",
			line:     "Paper towels | 2 rolls | one opened",
			expected: &Draft{Name: "Paper towels", Quantity: 2, Unit: "rolls", Notes: "one opened"},
		},
		{
			name:     "name and quantity only",
			line:     "Eggs | 12 count",
			expected: &Draft{Name: "Eggs", Quantity: 12, Unit: "count"},
		},
		{
			name:     "fractional quantity rounds up",
			line:     "Flour | 0.5 kg |",
			expected: &Draft{Name: "Flour", Quantity: 1, Unit: "kg"},
		},
		{
			name:     "quantity without a number",
			line:     "Batteries | a few | AA",
			expected: &Draft{Name: "Batteries", Quantity: 1, Unit: "a few", Notes: "AA"},
		},
		{
			name:     "list bullet",
			line:     "- Rice | 3 bags |",
			expected: &Draft{Name: "Rice", Quantity: 3, Unit: "bags"},
		},
		{
			name:     "name only without pipe",
			line:     "Butter",
			expected: nil,
		},
		{
			name:     "empty line",
			line:     "   ",
			expected: nil,
		},
		{
			name:     "header line",
			line:     "Here are the items I can see:",
			expected: nil,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, ParseLine(tt.line))
		})
	}
}

func TestParseResponse(t *testing.T) {
	tests := []struct {
		name     string
		raw      string
		expected []Draft
	}{
		{
			name: "basic items",
			raw: `Here are the items I see:
Dish soap | 1 bottle | half full

Sponges | 4 |`,
			expected: []Draft{
				{Name: "Dish soap", Quantity: 1, Unit: "bottle", Notes: "half full"},
				{Name: "Sponges", Quantity: 4},
			},
		},
		{
			name:     "no items with pipes",
			raw:      "Based on the image, the shelf is empty.",
			expected: []Draft{},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, ParseResponse(tt.raw))
		})
	}
}
