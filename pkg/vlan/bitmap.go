package vlan

import (
	"encoding/hex"
	"fmt"
	"sort"
	"strings"

	"github.com/newtron-network/vtpsync/pkg/util"
)

// The VLAN id space is split into four 1024-wide segments, each stored on
// the device as its own 128-octet bitstring.
const (
	SegmentCount = 4
	SegmentSize  = 1024
	BitmapBytes  = SegmentSize / 8
)

// BitmapLengthError reports a wire bitmap longer than one segment.
type BitmapLengthError struct {
	Bits int
}

func (e *BitmapLengthError) Error() string {
	return fmt.Sprintf("VLAN bitmap is %d bits, segment holds %d", e.Bits, SegmentSize)
}

func (e *BitmapLengthError) Unwrap() error {
	return util.ErrProtocol
}

// Segment returns the segment index holding id.
func Segment(id ID) int {
	return int(id) / SegmentSize
}

// Position returns the bit position of id inside its segment. Segment 0 is
// addressed by the id itself, which is the same value.
func Position(id ID) int {
	return int(id) % SegmentSize
}

// SegmentBase returns the VLAN id of bit 0 of segment seg.
func SegmentBase(seg int) ID {
	return ID(seg * SegmentSize)
}

// SplitBySegment groups ids by segment, returning bit positions per segment
// in ascending order.
func SplitBySegment(ids []ID) map[int][]int {
	out := make(map[int][]int)
	for _, id := range ids {
		seg := Segment(id)
		out[seg] = append(out[seg], Position(id))
	}
	for _, positions := range out {
		sort.Ints(positions)
	}
	return out
}

// normalize right-pads raw with zero octets to a full segment. Short values
// mean the trailing VLANs are unset.
func normalize(raw []byte) ([]byte, error) {
	if len(raw) > BitmapBytes {
		return nil, &BitmapLengthError{Bits: len(raw) * 8}
	}
	out := make([]byte, BitmapBytes)
	copy(out, raw)
	return out, nil
}

// Decode returns the set bit positions of one segment bitmap in ascending
// order. Empty or absent input decodes to no positions.
func Decode(raw []byte) ([]int, error) {
	bits, err := normalize(raw)
	if err != nil {
		return nil, err
	}
	var positions []int
	for i, b := range bits {
		if b == 0 {
			continue
		}
		for j := 0; j < 8; j++ {
			if b&(0x80>>j) != 0 {
				positions = append(positions, i*8+j)
			}
		}
	}
	return positions, nil
}

// Encode sets bit pos to on and returns the full updated bitmap.
func Encode(raw []byte, pos int, on bool) ([]byte, error) {
	if pos < 0 || pos >= SegmentSize {
		return nil, util.NewValidationError(fmt.Sprintf("bit position %d outside 0-%d", pos, SegmentSize-1))
	}
	bits, err := normalize(raw)
	if err != nil {
		return nil, err
	}
	setBit(bits, pos, on)
	return bits, nil
}

// EncodeMany sets every listed position to on in a single re-encode.
// Positions outside the segment are ignored; callers pre-filter by segment.
func EncodeMany(raw []byte, positions []int, on bool) ([]byte, error) {
	bits, err := normalize(raw)
	if err != nil {
		return nil, err
	}
	for _, pos := range positions {
		if pos < 0 || pos >= SegmentSize {
			continue
		}
		setBit(bits, pos, on)
	}
	return bits, nil
}

func setBit(bits []byte, pos int, on bool) {
	mask := byte(0x80 >> (pos % 8))
	if on {
		bits[pos/8] |= mask
	} else {
		bits[pos/8] &^= mask
	}
}

// ParseHex converts hex text (as printed by SNMP tools, optional 0x prefix)
// into a normalized bitmap. An odd trailing nibble is completed with zero.
func ParseHex(text string) ([]byte, error) {
	s := strings.TrimSpace(text)
	s = strings.TrimPrefix(strings.TrimPrefix(s, "0x"), "0X")
	s = strings.NewReplacer(" ", "", ":", "").Replace(s)
	if len(s) > BitmapBytes*2 {
		return nil, &BitmapLengthError{Bits: len(s) * 4}
	}
	if len(s)%2 == 1 {
		s += "0"
	}
	raw, err := hex.DecodeString(s)
	if err != nil {
		return nil, fmt.Errorf("%w: parsing VLAN bitmap: %v", util.ErrProtocol, err)
	}
	return normalize(raw)
}

// FormatHex renders a bitmap as hex text with trailing zero octets trimmed.
func FormatHex(raw []byte) string {
	end := len(raw)
	for end > 0 && raw[end-1] == 0 {
		end--
	}
	return "0x" + hex.EncodeToString(raw[:end])
}

// IDs converts segment positions back into VLAN ids.
func IDs(seg int, positions []int) []ID {
	base := SegmentBase(seg)
	out := make([]ID, 0, len(positions))
	for _, p := range positions {
		out = append(out, base+ID(p))
	}
	return out
}
