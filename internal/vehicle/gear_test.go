package vehicle

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGear_String(t *testing.T) {
	assert.Equal(t, "R", Reverse.String())
	assert.Equal(t, "N", Neutral.String())
	assert.Equal(t, "3", Third.String())
	assert.Equal(t, "Gear(9)", Gear(9).String())
}

func TestParseGear(t *testing.T) {
	tests := []struct {
		in      string
		want    Gear
		wantErr bool
	}{
		{"R", Reverse, false},
		{"r", Reverse, false},
		{" n ", Neutral, false},
		{"-1", Reverse, false},
		{"0", Neutral, false},
		{"5", Fifth, false},
		{"6", Neutral, true},
		{"-2", Neutral, true},
		{"fifth", Neutral, true},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseGear(tt.in)
			if tt.wantErr {
				require.ErrorIs(t, err, ErrInvalidGear)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestGear_Forward(t *testing.T) {
	assert.False(t, Reverse.Forward())
	assert.False(t, Neutral.Forward())
	assert.True(t, First.Forward())
	assert.True(t, Fifth.Forward())
}
