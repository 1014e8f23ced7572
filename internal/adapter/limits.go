/*

Exposure limits. Every adapter caps how much of a holder's deposit it accepts; whatever the cap
rejects is left with the holder, un-invested. A deposit never fails for exceeding a soft cap.

*/

package adapter

import (
	"errors"
	"fmt"

	sdkmath "cosmossdk.io/math"
	"github.com/elys-network/stratvault/internal/types"
	"github.com/elys-network/stratvault/internal/utils"
)

// LimitMode selects how an adapter's exposure cap is computed.
type LimitMode int

const (
	LimitNone            LimitMode = iota // Accept everything
	LimitPoolPercent                      // Position may be at most Bps of the pool after the deposit
	LimitProtocolPercent                  // Position may be at most Bps of the protocol after the deposit
	LimitAbsolute                         // Position may be at most Absolute
)

func (m LimitMode) String() string {
	switch m {
	case LimitNone:
		return "none"
	case LimitPoolPercent:
		return "pool_percent"
	case LimitProtocolPercent:
		return "protocol_percent"
	case LimitAbsolute:
		return "absolute"
	default:
		return fmt.Sprintf("unknown(%d)", int(m))
	}
}

var ErrInvalidLimits = errors.Join(types.ErrConfiguration, errors.New("adapter limits are invalid"))

// Limits configures an adapter's exposure cap.
type Limits struct {
	Mode     LimitMode   `json:"mode"`
	Bps      uint16      `json:"bps"`      // LimitPoolPercent, LimitProtocolPercent
	Absolute sdkmath.Int `json:"absolute"` // LimitAbsolute
}

// Validate checks the limits against their mode.
func (l Limits) Validate() error {
	switch l.Mode {
	case LimitNone:
		return nil
	case LimitPoolPercent, LimitProtocolPercent:
		if l.Bps == 0 || l.Bps > types.BasisPoints {
			return fmt.Errorf("%w: %s limit needs bps in (0, %d], got %d", ErrInvalidLimits, l.Mode, types.BasisPoints, l.Bps)
		}
		return nil
	case LimitAbsolute:
		if l.Absolute.IsNil() || l.Absolute.IsNegative() {
			return fmt.Errorf("%w: absolute limit must be a non-negative amount", ErrInvalidLimits)
		}
		return nil
	default:
		return fmt.Errorf("%w: unknown mode %d", ErrInvalidLimits, int(l.Mode))
	}
}

// Allowed returns how much of requested may be deposited given the holder's current position
// and the pool and protocol totals before the deposit. The result is in [0, requested].
func (l Limits) Allowed(requested, position, poolTotal, protocolTotal sdkmath.Int) sdkmath.Int {
	requested = utils.NilToZero(requested)
	if !requested.IsPositive() {
		return sdkmath.ZeroInt()
	}
	position = utils.NilToZero(position)

	var room sdkmath.Int
	switch l.Mode {
	case LimitPoolPercent, LimitProtocolPercent:
		if l.Bps >= types.BasisPoints {
			return requested
		}
		total := poolTotal
		if l.Mode == LimitProtocolPercent {
			total = protocolTotal
		}
		room = percentRoom(l.Bps, position, utils.NilToZero(total))
	case LimitAbsolute:
		room = utils.NilToZero(l.Absolute).Sub(position)
	default:
		return requested
	}
	if !room.IsPositive() {
		return sdkmath.ZeroInt()
	}
	return sdkmath.MinInt(room, requested)
}

// percentRoom solves position + x <= (total + x) * bps / 10000 for the largest x.
func percentRoom(bps uint16, position, total sdkmath.Int) sdkmath.Int {
	den := int64(types.BasisPoints - bps)
	num := total.MulRaw(int64(bps)).Sub(position.MulRaw(int64(types.BasisPoints)))
	if !num.IsPositive() {
		return sdkmath.ZeroInt()
	}
	return num.QuoRaw(den)
}
