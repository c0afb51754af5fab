package reconcile

import (
	"github.com/newtron-network/vtpsync/pkg/inventory"
	"github.com/newtron-network/vtpsync/pkg/topology"
	"github.com/newtron-network/vtpsync/pkg/vlan"
)

// Desired is the target state for one pass. It is read-only once built.
type Desired struct {
	// VLANs is the declared VLAN directory.
	VLANs map[vlan.ID]inventory.VLAN
	// VLANMap lists the VLANs each device must carry after minimization.
	VLANMap map[string]vlan.Set
}

// Devices returns the devices in VLANMap, sorted.
func (d Desired) Devices() []string {
	return sortedDevices(d.VLANMap)
}

// Plan minimizes the inventory's requirements over its link graph.
func Plan(inv *inventory.Inventory) Desired {
	g := inv.Graph()
	return Desired{
		VLANs:   inv.VLANs,
		VLANMap: topology.Invert(g.VLANMap(inv.Requirements())),
	}
}
