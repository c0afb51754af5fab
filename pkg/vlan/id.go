// Package vlan defines VLAN identifiers, VLAN sets, and the per-segment
// membership bitmap used by trunk ports on the wire.
package vlan

import (
	"fmt"
	"sort"
	"strings"

	"github.com/newtron-network/vtpsync/pkg/util"
)

// Valid VLAN id bounds. Id 0 and anything from 4096 up are rejected before
// any device interaction.
const (
	MinID = 1
	MaxID = 4095
)

// ID is an 802.1Q VLAN tag.
type ID int

// Ref is anything that can name a VLAN: a bare ID or a richer object that
// carries one.
type Ref interface {
	VLANID() ID
}

// VLANID implements Ref.
func (id ID) VLANID() ID { return id }

func (id ID) String() string { return fmt.Sprintf("%d", int(id)) }

// InvalidIDError reports a VLAN id outside [MinID, MaxID].
type InvalidIDError struct {
	ID int
}

func (e *InvalidIDError) Error() string {
	return fmt.Sprintf("invalid VLAN id %d (must be %d-%d)", e.ID, MinID, MaxID)
}

func (e *InvalidIDError) Unwrap() error {
	return util.ErrInvalidVLAN
}

// Validate returns an *InvalidIDError if id is out of range.
func Validate(id ID) error {
	if id < MinID || id > MaxID {
		return &InvalidIDError{ID: int(id)}
	}
	return nil
}

// Resolve validates ref and returns its id.
func Resolve(ref Ref) (ID, error) {
	if ref == nil {
		return 0, &InvalidIDError{ID: 0}
	}
	id := ref.VLANID()
	if err := Validate(id); err != nil {
		return 0, err
	}
	return id, nil
}

// ResolveAll validates every ref and returns the ids in input order. The
// first invalid ref aborts the whole batch.
func ResolveAll(refs []Ref) ([]ID, error) {
	ids := make([]ID, 0, len(refs))
	for _, r := range refs {
		id, err := Resolve(r)
		if err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, nil
}

// Set is an unordered set of VLAN ids.
type Set map[ID]struct{}

// NewSet builds a set from ids.
func NewSet(ids ...ID) Set {
	s := make(Set, len(ids))
	for _, id := range ids {
		s[id] = struct{}{}
	}
	return s
}

// Add inserts ids into the set.
func (s Set) Add(ids ...ID) {
	for _, id := range ids {
		s[id] = struct{}{}
	}
}

// Has reports membership.
func (s Set) Has(id ID) bool {
	_, ok := s[id]
	return ok
}

// Sorted returns the members in ascending order.
func (s Set) Sorted() []ID {
	out := make([]ID, 0, len(s))
	for id := range s {
		out = append(out, id)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// Intersect returns the members present in both s and o.
func (s Set) Intersect(o Set) Set {
	out := make(Set)
	for id := range s {
		if o.Has(id) {
			out[id] = struct{}{}
		}
	}
	return out
}

// Diff returns the members of s that are not in o.
func (s Set) Diff(o Set) Set {
	out := make(Set)
	for id := range s {
		if !o.Has(id) {
			out[id] = struct{}{}
		}
	}
	return out
}

// Equal reports whether both sets hold the same members.
func (s Set) Equal(o Set) bool {
	if len(s) != len(o) {
		return false
	}
	for id := range s {
		if !o.Has(id) {
			return false
		}
	}
	return true
}

// String renders the set in compact range notation, e.g. "10-12,20".
func (s Set) String() string {
	ints := make([]int, 0, len(s))
	for id := range s {
		ints = append(ints, int(id))
	}
	return util.CompactRange(ints)
}

// ParseList parses range notation ("10-12,20") into a validated set.
func ParseList(spec string) (Set, error) {
	ints, err := util.ExpandRange(strings.TrimSpace(spec))
	if err != nil {
		return nil, err
	}
	s := make(Set, len(ints))
	for _, v := range ints {
		if err := Validate(ID(v)); err != nil {
			return nil, err
		}
		s[ID(v)] = struct{}{}
	}
	return s, nil
}
