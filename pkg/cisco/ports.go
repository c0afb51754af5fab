package cisco

import (
	"context"
	"fmt"
	"sort"

	"github.com/newtron-network/vtpsync/pkg/snmp"
	"github.com/newtron-network/vtpsync/pkg/util"
	"github.com/newtron-network/vtpsync/pkg/vlan"
)

// SetPortAlias writes ifAlias of port.
func (s *Switch) SetPortAlias(ctx context.Context, p PortRef, alias string) error {
	util.WithPort(s.name, s.portLabel(p)).Debugf("set alias %q", alias)
	return s.transport.Set(ctx, snmp.Str(snmp.Join(oidIfAlias, p.PortIndex()), alias))
}

// SetAdminStatus brings port up or down.
func (s *Switch) SetAdminStatus(ctx context.Context, p PortRef, up bool) error {
	status := ifAdminDown
	if up {
		status = ifAdminUp
	}
	util.WithPort(s.name, s.portLabel(p)).Debugf("set admin status %d", status)
	return s.transport.Set(ctx, snmp.Int(snmp.Join(oidIfAdminStatus, p.PortIndex()), status))
}

// Enable brings port administratively up.
func (s *Switch) Enable(ctx context.Context, p PortRef) error {
	return s.SetAdminStatus(ctx, p, true)
}

// Disable shuts port down.
func (s *Switch) Disable(ctx context.Context, p PortRef) error {
	return s.SetAdminStatus(ctx, p, false)
}

// SetTrunkMode writes the trunking mode of port.
func (s *Switch) SetTrunkMode(ctx context.Context, p PortRef, mode TrunkMode) error {
	if _, ok := trunkModeNames[mode]; !ok {
		return util.NewValidationError(fmt.Sprintf("invalid trunk mode %d", int(mode)))
	}
	util.WithPort(s.name, s.portLabel(p)).Debugf("set trunk mode %s", mode)
	return s.transport.Set(ctx, snmp.Int(snmp.Join(oidTrunkDynamicState, p.PortIndex()), int(mode)))
}

// MakeTrunk forces port to trunk unconditionally.
func (s *Switch) MakeTrunk(ctx context.Context, p PortRef) error {
	return s.SetTrunkMode(ctx, p, TrunkOn)
}

// MakeAccess disables trunking on port.
func (s *Switch) MakeAccess(ctx context.Context, p PortRef) error {
	return s.SetTrunkMode(ctx, p, TrunkOff)
}

// ActivateVLAN enables one VLAN on a trunk port.
func (s *Switch) ActivateVLAN(ctx context.Context, p PortRef, ref vlan.Ref) error {
	id, err := vlan.Resolve(ref)
	if err != nil {
		return err
	}
	return s.setMembership(ctx, p, []vlan.ID{id}, true)
}

// DeactivateVLAN disables one VLAN on a trunk port.
func (s *Switch) DeactivateVLAN(ctx context.Context, p PortRef, ref vlan.Ref) error {
	id, err := vlan.Resolve(ref)
	if err != nil {
		return err
	}
	return s.setMembership(ctx, p, []vlan.ID{id}, false)
}

// ActivateVLANs enables every listed VLAN on a trunk port with at most one
// read and one write per touched segment. All ids are validated before any
// device access; an empty list does nothing.
func (s *Switch) ActivateVLANs(ctx context.Context, p PortRef, refs ...vlan.Ref) error {
	ids, err := vlan.ResolveAll(refs)
	if err != nil {
		return err
	}
	return s.setMembership(ctx, p, ids, true)
}

// DeactivateVLANs is the batch form of DeactivateVLAN.
func (s *Switch) DeactivateVLANs(ctx context.Context, p PortRef, refs ...vlan.Ref) error {
	ids, err := vlan.ResolveAll(refs)
	if err != nil {
		return err
	}
	return s.setMembership(ctx, p, ids, false)
}

// setMembership rewrites the segment bitmaps holding ids. Each write echoes
// the trunk set serial number read alongside the bitmap, so a concurrent
// writer makes the set fail instead of being silently overwritten.
func (s *Switch) setMembership(ctx context.Context, p PortRef, ids []vlan.ID, on bool) error {
	if len(ids) == 0 {
		return nil
	}
	bySeg := vlan.SplitBySegment(ids)
	segs := make([]int, 0, len(bySeg))
	for seg := range bySeg {
		segs = append(segs, seg)
	}
	sort.Ints(segs)

	logger := util.WithPort(s.name, s.portLabel(p))
	for _, seg := range segs {
		positions := bySeg[seg]
		segOID := snmp.Join(oidTrunkVlansEnabled[seg], p.PortIndex())

		vars, err := s.get(ctx, oidTrunkSetSerialNo, segOID)
		if err != nil {
			return err
		}
		serial, ok, err := optInt(vars[0])
		if err != nil {
			return err
		}
		if !ok {
			return fmt.Errorf("%w: %s has no trunk set serial number", util.ErrProtocol, s.name)
		}
		var raw []byte
		if !vars[1].IsAbsent() {
			if raw, err = vars[1].Bytes(); err != nil {
				return err
			}
		}

		var bits []byte
		if len(positions) == 1 {
			bits, err = vlan.Encode(raw, positions[0], on)
		} else {
			bits, err = vlan.EncodeMany(raw, positions, on)
		}
		if err != nil {
			return fmt.Errorf("port %s segment %d: %w", s.portLabel(p), seg, err)
		}

		logger.Debugf("segment %d: set %v=%v", seg, vlan.IDs(seg, positions), on)
		if err := s.transport.Set(ctx, snmp.Int(oidTrunkSetSerialNo, serial), snmp.Octets(segOID, bits)); err != nil {
			return err
		}
	}
	return nil
}

// SetAccessVLAN assigns the access VLAN of a port and verifies it by reading
// it back. The port must already be an access port.
func (s *Switch) SetAccessVLAN(ctx context.Context, p PortRef, ref vlan.Ref) error {
	id, err := vlan.Resolve(ref)
	if err != nil {
		return err
	}
	label := s.portLabel(p)
	oid := snmp.Join(oidVmVlan, p.PortIndex())

	if _, ok, err := s.AccessVLAN(ctx, p); err != nil {
		return err
	} else if !ok {
		return fmt.Errorf("port %s on %s: %w", label, s.name, util.ErrPortNotAccess)
	}

	util.WithPort(s.name, label).Debugf("set access VLAN %d", id)
	if err := s.transport.Set(ctx, snmp.Int(oid, int(id))); err != nil {
		return err
	}

	got, _, err := s.AccessVLAN(ctx, p)
	if err != nil {
		return err
	}
	if got != id {
		return &AccessVLANError{Port: label, Want: id, Got: got}
	}
	return nil
}
