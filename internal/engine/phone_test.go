package engine

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDeriveUsername(t *testing.T) {
	tests := []struct {
		name string
		from string
		want string
		ok   bool
	}{
		{"standard sender", "whatsapp:+94771234567", "0771234567", true},
		{"bare e164", "+94771234567", "0771234567", true},
		{"wrong country", "whatsapp:+1771234567", "", false},
		{"too short", "whatsapp:+9477123", "", false},
		{"too long", "whatsapp:+947712345678", "", false},
		{"letters in subscriber", "whatsapp:+94abc234567", "", false},
		{"empty", "", "", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := DeriveUsername(tt.from)
			if !tt.ok {
				require.ErrorIs(t, err, ErrMalformedSender)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestSplitCourseID(t *testing.T) {
	assert.Equal(t, []int{60, 70}, SplitCourseID(6070))
	assert.Equal(t, []int{12, 345}, SplitCourseID(12345))
	assert.Equal(t, []int{42}, SplitCourseID(42))
	assert.Equal(t, []int{7}, SplitCourseID(7))
}
