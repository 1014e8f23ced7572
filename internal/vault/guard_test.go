package vault

import (
	"testing"

	sdkmath "cosmossdk.io/math"
	"github.com/stretchr/testify/assert"
)

func TestCheckValueJump(t *testing.T) {
	tests := []struct {
		name                    string
		maxBps                  uint16
		before, expected, after int64
		wantErr                 bool
	}{
		{"disabled", 0, 10_000, 10_000, 1, false},
		{"empty vault", 100, 0, 5_000, 1, false},
		{"exact", 100, 10_000, 10_000, 10_000, false},
		{"edge of band below", 100, 10_000, 10_000, 9_900, false},
		{"edge of band above", 100, 10_000, 10_000, 10_100, false},
		{"below band", 100, 10_000, 10_000, 9_899, true},
		{"above band", 100, 10_000, 10_000, 10_101, true},
		{"band is relative to value before", 100, 10_000, 2_000, 2_099, false},
		{"withdrawal overshoot", 100, 10_000, 2_000, 2_101, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := checkValueJump(tt.maxBps, sdkmath.NewInt(tt.before), sdkmath.NewInt(tt.expected), sdkmath.NewInt(tt.after))
			if tt.wantErr {
				assert.ErrorIs(t, err, ErrMaxValueJumpExceeded)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}
