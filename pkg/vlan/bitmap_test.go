package vlan

import (
	"bytes"
	"errors"
	"reflect"
	"testing"

	"github.com/newtron-network/vtpsync/pkg/util"
)

func TestDecode(t *testing.T) {
	tests := []struct {
		name string
		raw  []byte
		want []int
	}{
		{"empty", nil, nil},
		{"msb first", []byte{0x80}, []int{0}},
		{"vlan 1", []byte{0x40}, []int{1}},
		{"two bits", []byte{0x00, 0x20, 0x01}, []int{10, 23}},
		{"last bit", append(make([]byte, BitmapBytes-1), 0x01), []int{1023}},
		{"short value padded", []byte{0xff}, []int{0, 1, 2, 3, 4, 5, 6, 7}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Decode(tt.raw)
			if err != nil {
				t.Fatalf("Decode() error = %v", err)
			}
			if !reflect.DeepEqual(got, tt.want) {
				t.Errorf("Decode() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestDecodeTooLong(t *testing.T) {
	_, err := Decode(make([]byte, BitmapBytes+1))
	if !errors.Is(err, util.ErrProtocol) {
		t.Fatalf("Decode() error = %v, want ErrProtocol", err)
	}
	var lenErr *BitmapLengthError
	if !errors.As(err, &lenErr) || lenErr.Bits != (BitmapBytes+1)*8 {
		t.Errorf("expected *BitmapLengthError with bit count, got %v", err)
	}
}

func TestEncode(t *testing.T) {
	t.Run("set on empty", func(t *testing.T) {
		got, err := Encode(nil, 10, true)
		if err != nil {
			t.Fatalf("Encode() error = %v", err)
		}
		if len(got) != BitmapBytes {
			t.Fatalf("Encode() length = %d, want %d", len(got), BitmapBytes)
		}
		if got[1] != 0x20 {
			t.Errorf("byte 1 = %#x, want 0x20", got[1])
		}
	})

	t.Run("clear leaves others", func(t *testing.T) {
		got, err := Encode([]byte{0xff}, 3, false)
		if err != nil {
			t.Fatalf("Encode() error = %v", err)
		}
		if got[0] != 0xef {
			t.Errorf("byte 0 = %#x, want 0xef", got[0])
		}
	})

	t.Run("does not alias input", func(t *testing.T) {
		in := make([]byte, BitmapBytes)
		if _, err := Encode(in, 5, true); err != nil {
			t.Fatal(err)
		}
		if !bytes.Equal(in, make([]byte, BitmapBytes)) {
			t.Error("Encode() modified its input")
		}
	})

	for _, pos := range []int{-1, SegmentSize} {
		_, err := Encode(nil, pos, true)
		if !errors.Is(err, util.ErrValidationFailed) {
			t.Errorf("Encode(pos=%d) error = %v, want ErrValidationFailed", pos, err)
		}
	}
}

func TestEncodeRoundTrip(t *testing.T) {
	raw := []byte{0x12, 0x00, 0x80}
	for _, pos := range []int{0, 7, 100, 513, 1023} {
		for _, on := range []bool{true, false} {
			enc, err := Encode(raw, pos, on)
			if err != nil {
				t.Fatal(err)
			}
			before, _ := Decode(raw)
			after, _ := Decode(enc)

			want := map[int]bool{}
			for _, p := range before {
				want[p] = true
			}
			want[pos] = on

			got := map[int]bool{}
			for _, p := range after {
				got[p] = true
			}
			for p := 0; p < SegmentSize; p++ {
				if got[p] != want[p] {
					t.Errorf("pos=%d on=%v: bit %d = %v, want %v", pos, on, p, got[p], want[p])
				}
			}
		}
	}
}

func TestEncodeManyMatchesSequential(t *testing.T) {
	raw := []byte{0xf0, 0x0f}
	positions := []int{1, 9, 12, 500, 1023}

	for _, on := range []bool{true, false} {
		seq := raw
		for _, p := range positions {
			var err error
			seq, err = Encode(seq, p, on)
			if err != nil {
				t.Fatal(err)
			}
		}
		batch, err := EncodeMany(raw, positions, on)
		if err != nil {
			t.Fatal(err)
		}
		if !bytes.Equal(seq, batch) {
			t.Errorf("on=%v: EncodeMany differs from sequential Encode", on)
		}
	}
}

func TestEncodeManyIgnoresOutOfRange(t *testing.T) {
	got, err := EncodeMany(nil, []int{-5, 2, SegmentSize, 5000}, true)
	if err != nil {
		t.Fatalf("EncodeMany() error = %v", err)
	}
	bits, _ := Decode(got)
	if !reflect.DeepEqual(bits, []int{2}) {
		t.Errorf("EncodeMany() decoded = %v, want [2]", bits)
	}
}

func TestSegmentArithmetic(t *testing.T) {
	tests := []struct {
		id      ID
		seg     int
		pos     int
		segBase ID
	}{
		{1, 0, 1, 0},
		{1023, 0, 1023, 0},
		{1024, 1, 0, 1024},
		{2100, 2, 52, 2048},
		{4095, 3, 1023, 3072},
	}

	for _, tt := range tests {
		t.Run(tt.id.String(), func(t *testing.T) {
			if got := Segment(tt.id); got != tt.seg {
				t.Errorf("Segment() = %d, want %d", got, tt.seg)
			}
			if got := Position(tt.id); got != tt.pos {
				t.Errorf("Position() = %d, want %d", got, tt.pos)
			}
			if got := SegmentBase(tt.seg) + ID(tt.pos); got != tt.id {
				t.Errorf("SegmentBase()+pos = %d, want %d", got, tt.id)
			}
		})
	}
}

func TestSplitBySegment(t *testing.T) {
	got := SplitBySegment([]ID{2000, 10, 1500, 5, 3000})
	want := map[int][]int{
		0: {5, 10},
		1: {476, 976},
		2: {952},
	}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("SplitBySegment() = %v, want %v", got, want)
	}
	if ids := IDs(1, got[1]); ids[0] != 1500 || ids[1] != 2000 {
		t.Errorf("IDs() = %v, want [1500 2000]", ids)
	}
}

func TestParseHex(t *testing.T) {
	t.Run("prefix and spaces", func(t *testing.T) {
		raw, err := ParseHex("0x00 20")
		if err != nil {
			t.Fatalf("ParseHex() error = %v", err)
		}
		bits, _ := Decode(raw)
		if !reflect.DeepEqual(bits, []int{10}) {
			t.Errorf("decoded = %v, want [10]", bits)
		}
		if got := FormatHex(raw); got != "0x0020" {
			t.Errorf("FormatHex() = %q, want %q", got, "0x0020")
		}
	})

	t.Run("odd nibble", func(t *testing.T) {
		raw, err := ParseHex("8")
		if err != nil {
			t.Fatalf("ParseHex() error = %v", err)
		}
		if raw[0] != 0x80 {
			t.Errorf("byte 0 = %#x, want 0x80", raw[0])
		}
	})

	t.Run("not hex", func(t *testing.T) {
		if _, err := ParseHex("zz"); !errors.Is(err, util.ErrProtocol) {
			t.Errorf("ParseHex() error = %v, want ErrProtocol", err)
		}
	})

	t.Run("too long", func(t *testing.T) {
		long := make([]byte, BitmapBytes*2+2)
		for i := range long {
			long[i] = '0'
		}
		if _, err := ParseHex(string(long)); !errors.Is(err, util.ErrProtocol) {
			t.Errorf("ParseHex() error = %v, want ErrProtocol", err)
		}
	})
}
