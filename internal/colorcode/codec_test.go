package colorcode

import (
	"errors"
	"image/color"
	"testing"
)

func TestHex(t *testing.T) {
	tests := []struct {
		id   int
		want string
	}{
		{0, "000000"},
		{1, "000001"},
		{255, "0000ff"},
		{256, "000100"},
		{4567, "0011d7"},
		{MaxFeatureID, "fffffe"},
	}

	for _, tt := range tests {
		got, err := Hex(tt.id)
		if err != nil {
			t.Fatalf("Hex(%d): %v", tt.id, err)
		}
		if got != tt.want {
			t.Errorf("Hex(%d) = %q, want %q", tt.id, got, tt.want)
		}
	}
}

func TestEncodeChannelOrder(t *testing.T) {
	c, err := Encode(0x123456)
	if err != nil {
		t.Fatal(err)
	}
	want := color.RGBA{R: 0x12, G: 0x34, B: 0x56, A: 0xff}
	if c != want {
		t.Errorf("Encode(0x123456) = %v, want %v", c, want)
	}
	if Name(c) != "123456" {
		t.Errorf("Name = %q, want %q", Name(c), "123456")
	}
}

func TestRoundTrip(t *testing.T) {
	ids := []int{0, 1, 2, 15, 16, 255, 256, 65535, 65536, 1 << 20, MaxFeatureID}
	for id := 0; id < 5000; id += 7 {
		ids = append(ids, id)
	}

	for _, id := range ids {
		c, err := Encode(id)
		if err != nil {
			t.Fatalf("Encode(%d): %v", id, err)
		}
		got, ok := Decode(c)
		if !ok || got != id {
			t.Errorf("Decode(Encode(%d)) = %d, %v", id, got, ok)
		}

		h, err := Hex(id)
		if err != nil {
			t.Fatal(err)
		}
		back, err := ParseHex(h)
		if err != nil || back != id {
			t.Errorf("ParseHex(%q) = %d, %v", h, back, err)
		}
	}
}

func TestEncodeRejectsOutOfRange(t *testing.T) {
	for _, id := range []int{-1, Background, 1 << 24, 1 << 30} {
		if _, err := Encode(id); !errors.Is(err, ErrCapacity) {
			t.Errorf("Encode(%d) error = %v, want ErrCapacity", id, err)
		}
		if _, err := Hex(id); !errors.Is(err, ErrCapacity) {
			t.Errorf("Hex(%d) error = %v, want ErrCapacity", id, err)
		}
	}
}

func TestDecodeBackground(t *testing.T) {
	if _, ok := Decode(BackgroundColor); ok {
		t.Error("background colour decoded as a feature")
	}
	if _, ok := Decode(color.White); ok {
		t.Error("color.White decoded as a feature")
	}
}

func TestParseHexInvalid(t *testing.T) {
	for _, s := range []string{"", "12345", "1234567", "zzzzzz", "ffffff"} {
		if _, err := ParseHex(s); err == nil {
			t.Errorf("ParseHex(%q) expected error", s)
		}
	}
}

func TestCheckCapacity(t *testing.T) {
	if err := CheckCapacity(MaxFeatureID + 1); err != nil {
		t.Errorf("CheckCapacity at limit: %v", err)
	}
	if err := CheckCapacity(MaxFeatureID + 2); !errors.Is(err, ErrCapacity) {
		t.Errorf("CheckCapacity over limit error = %v, want ErrCapacity", err)
	}
}
