package parammap

import (
	"fmt"
)

// SignMode describes how a wire value encodes negative numbers.
type SignMode uint8

const (
	// Unsigned wire values are plain magnitudes.
	Unsigned SignMode = iota
	// TwosComplement wire values at or above the half range of the bit
	// width are negative, e.g. 7-bit 127 is -1 and 64 is -64.
	TwosComplement
	// SignBit wire values use the top bit of the bit width as the sign and
	// the remaining bits as the magnitude, e.g. 7-bit 65 is -1.
	SignBit
)

var signModeNames = map[SignMode]string{
	Unsigned:       "none",
	TwosComplement: "twosComplement",
	SignBit:        "signBit",
}

func (s SignMode) String() string {
	if n, ok := signModeNames[s]; ok {
		return n
	}
	return fmt.Sprintf("SignMode(%d)", uint8(s))
}

func (s *SignMode) UnmarshalYAML(unmarshal func(interface{}) error) error {
	var n string
	if err := unmarshal(&n); err != nil {
		return err
	}
	for k, v := range signModeNames {
		if v == n {
			*s = k
			return nil
		}
	}
	return fmt.Errorf("invalid sign mode %q", n)
}

const (
	minBitWidth = 1
	maxBitWidth = 14
)

// clampBitWidth keeps w within the widths a wire value can have.
func clampBitWidth(w uint8) uint8 {
	if w < minBitWidth {
		return minBitWidth
	} else if w > maxBitWidth {
		return maxBitWidth
	}
	return w
}

// halfRange returns the first value of the upper half of the bit width's
// range, 64 for 7 bits and 8192 for 14 bits.
func halfRange(bitWidth uint8) int {
	return 1 << (clampBitWidth(bitWidth) - 1)
}

// fullRange returns the number of distinct wire values of the bit width.
func fullRange(bitWidth uint8) int {
	return 1 << clampBitWidth(bitWidth)
}

// ToWire converts a display value to its wire representation.
//
// The display value is clamped to [displayMin, displayMax], rescaled onto
// [midiMin, midiMax] rounding to nearest (halves away from zero), and the
// result is encoded into the bit width according to signMode. midiMin and
// midiMax are given in the signed domain for the signed modes.
func ToWire(displayValue, displayMin, displayMax, midiMin, midiMax int, signMode SignMode, bitWidth uint8) uint16 {
	v := clamp(displayValue, displayMin, displayMax)
	m := rescale(v, displayMin, displayMax, midiMin, midiMax)
	return encodeSigned(m, signMode, bitWidth)
}

// ToDisplay converts a wire value to a display value. It is the inverse of
// ToWire: the wire value is decoded according to signMode, clamped to
// [midiMin, midiMax] and rescaled onto [displayMin, displayMax].
func ToDisplay(midiValue uint16, midiMin, midiMax, displayMin, displayMax int, signMode SignMode, bitWidth uint8) int {
	m := clamp(decodeSigned(midiValue, signMode, bitWidth), midiMin, midiMax)
	return rescale(m, midiMin, midiMax, displayMin, displayMax)
}

// encodeSigned maps a signed integer onto raw wire bits. Values that do not
// fit the bit width saturate.
func encodeSigned(v int, signMode SignMode, bitWidth uint8) uint16 {
	full, half := fullRange(bitWidth), halfRange(bitWidth)
	switch signMode {
	case TwosComplement:
		v = clamp(v, -half, half-1)
		if v < 0 {
			v += full
		}
	case SignBit:
		v = clamp(v, -(half - 1), half-1)
		if v < 0 {
			v = -v | half
		}
	default:
		v = clamp(v, 0, full-1)
	}
	return uint16(v)
}

// decodeSigned is the inverse of encodeSigned.
func decodeSigned(w uint16, signMode SignMode, bitWidth uint8) int {
	full, half := fullRange(bitWidth), halfRange(bitWidth)
	v := int(w) & (full - 1)
	switch signMode {
	case TwosComplement:
		if v >= half {
			v -= full
		}
	case SignBit:
		if v&half != 0 {
			v = -(v &^ half)
		}
	}
	return v
}

// clamp limits v to the range spanned by a and b, in either order.
func clamp(v, a, b int) int {
	lo, hi := a, b
	if lo > hi {
		lo, hi = hi, lo
	}
	if v < lo {
		return lo
	} else if v > hi {
		return hi
	}
	return v
}

// rescale maps v from [fromMin, fromMax] onto [toMin, toMax] affinely.
func rescale(v, fromMin, fromMax, toMin, toMax int) int {
	span := fromMax - fromMin
	if span == 0 {
		return toMin
	}
	return toMin + roundDiv((v-fromMin)*(toMax-toMin), span)
}

// roundDiv divides n by d rounding to nearest, halves away from zero.
func roundDiv(n, d int) int {
	if d < 0 {
		n, d = -n, -d
	}
	if n >= 0 {
		return (2*n + d) / (2 * d)
	}
	return -((-2*n + d) / (2 * d))
}
