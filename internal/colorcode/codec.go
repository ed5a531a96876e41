package colorcode

import (
	"errors"
	"fmt"
	"image/color"
	"strconv"
)

const (
	// Digits is the width of the hex form of a colour
	Digits = 6

	// Background is the canvas fill colour (white). It is never issued
	// to a feature.
	Background = 0xffffff

	// MaxFeatureID is the largest feature id that can be encoded
	MaxFeatureID = Background - 1
)

// ErrCapacity is returned when a feature id has no colour representation
var ErrCapacity = errors.New("feature id exceeds colour capacity")

// BackgroundColor is the opaque white every canvas starts with
var BackgroundColor = color.RGBA{R: 0xff, G: 0xff, B: 0xff, A: 0xff}

// Hex returns the lowercase, zero-padded 6 digit form of a feature id.
// Id 0 is "000000", id 1 is "000001", id 255 is "0000ff".
func Hex(id int) (string, error) {
	if err := checkID(id); err != nil {
		return "", err
	}
	return fmt.Sprintf("%0*x", Digits, id), nil
}

// Encode maps a feature id to an opaque RGB colour. The hex digits are
// read as RRGGBB.
func Encode(id int) (color.RGBA, error) {
	if err := checkID(id); err != nil {
		return color.RGBA{}, err
	}
	return color.RGBA{
		R: uint8(id >> 16),
		G: uint8(id >> 8),
		B: uint8(id),
		A: 0xff,
	}, nil
}

// Decode recovers the feature id from a pixel colour. It reports false
// for the background colour. Alpha is ignored.
func Decode(c color.Color) (int, bool) {
	n := color.RGBAModel.Convert(c).(color.RGBA)
	v := int(n.R)<<16 | int(n.G)<<8 | int(n.B)
	if v == Background {
		return 0, false
	}
	return v, true
}

// Name returns the RRGGBB hex name of a colour without a leading '#'
func Name(c color.Color) string {
	n := color.RGBAModel.Convert(c).(color.RGBA)
	return fmt.Sprintf("%02x%02x%02x", n.R, n.G, n.B)
}

// ParseHex parses the 6 digit hex form back to a feature id
func ParseHex(s string) (int, error) {
	if len(s) != Digits {
		return 0, fmt.Errorf("colour %q: want %d hex digits", s, Digits)
	}
	v, err := strconv.ParseUint(s, 16, 32)
	if err != nil {
		return 0, fmt.Errorf("colour %q: %w", s, err)
	}
	if v == Background {
		return 0, fmt.Errorf("colour %q is the background", s)
	}
	return int(v), nil
}

// CheckCapacity verifies that n features (ids 0..n-1) can all be encoded
func CheckCapacity(n int) error {
	if n > MaxFeatureID+1 {
		return fmt.Errorf("%d features, limit %d: %w", n, MaxFeatureID+1, ErrCapacity)
	}
	return nil
}

func checkID(id int) error {
	if id < 0 || id > MaxFeatureID {
		return fmt.Errorf("feature id %d: %w", id, ErrCapacity)
	}
	return nil
}
