package reconcile

import (
	"context"

	"github.com/newtron-network/vtpsync/pkg/cisco"
	"github.com/newtron-network/vtpsync/pkg/inventory"
	"github.com/newtron-network/vtpsync/pkg/vlan"
)

// PortView is what port-level hooks see: the host, the declared link and
// the live port it matched.
type PortView struct {
	Host   *inventory.Host
	Link   inventory.Link
	Port   cisco.Port
	Device Device
}

// Policy holds the engine's override hooks. A nil hook keeps its default.
type Policy struct {
	// Deployable decides whether a host is touched at all.
	// Default: the host has a management address.
	Deployable func(h *inventory.Host) bool

	// RemoveVLAN decides whether a live VLAN not declared for the host may
	// be deleted from its directory. Default: true.
	RemoveVLAN func(h *inventory.Host, live cisco.VLAN) bool

	// RemovePortVLAN decides whether id may be pruned from a trunk.
	// Default: true.
	RemovePortVLAN func(pv PortView, id vlan.ID) bool

	// EditPort gates every change on a linked port. Default: true.
	EditPort func(pv PortView) bool

	// EditPortVLANs gates trunk membership changes.
	// Default: the port is currently trunking.
	EditPortVLANs func(ctx context.Context, pv PortView) (bool, error)

	// RenamePort gates alias changes. Default: false.
	RenamePort func(pv PortView) bool

	// PortAlias computes the desired alias. Default: the link's port name.
	PortAlias func(pv PortView) string
}

func (p Policy) deployable(h *inventory.Host) bool {
	if p.Deployable != nil {
		return p.Deployable(h)
	}
	return h.Address != ""
}

func (p Policy) removeVLAN(h *inventory.Host, live cisco.VLAN) bool {
	if p.RemoveVLAN != nil {
		return p.RemoveVLAN(h, live)
	}
	return true
}

func (p Policy) removePortVLAN(pv PortView, id vlan.ID) bool {
	if p.RemovePortVLAN != nil {
		return p.RemovePortVLAN(pv, id)
	}
	return true
}

func (p Policy) editPort(pv PortView) bool {
	if p.EditPort != nil {
		return p.EditPort(pv)
	}
	return true
}

func (p Policy) editPortVLANs(ctx context.Context, pv PortView) (bool, error) {
	if p.EditPortVLANs != nil {
		return p.EditPortVLANs(ctx, pv)
	}
	return pv.Device.TrunkStatus(ctx, pv.Port)
}

func (p Policy) renamePort(pv PortView) bool {
	if p.RenamePort != nil {
		return p.RenamePort(pv)
	}
	return false
}

func (p Policy) portAlias(pv PortView) string {
	if p.PortAlias != nil {
		return p.PortAlias(pv)
	}
	return pv.Link.Port
}

// KeepVLANs returns a RemoveVLAN hook that never deletes ids in reserved,
// such as the factory default and token-ring VLANs.
func KeepVLANs(reserved vlan.Set) func(*inventory.Host, cisco.VLAN) bool {
	return func(_ *inventory.Host, live cisco.VLAN) bool {
		return !reserved.Has(live.ID)
	}
}

// KeepPortVLANs returns a RemovePortVLAN hook that never prunes ids in
// reserved from a trunk.
func KeepPortVLANs(reserved vlan.Set) func(PortView, vlan.ID) bool {
	return func(_ PortView, id vlan.ID) bool {
		return !reserved.Has(id)
	}
}
