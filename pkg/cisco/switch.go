// Package cisco is the device facade for Cisco-style switches managed over
// SNMP: port and VLAN reads, trunk membership edits, VTP edit transactions,
// and configuration persistence.
//
// All reads are live; nothing is cached between calls.
package cisco

import (
	"context"
	"fmt"
	"math"
	"math/rand"
	"sort"
	"time"

	"github.com/newtron-network/vtpsync/pkg/snmp"
	"github.com/newtron-network/vtpsync/pkg/util"
	"github.com/newtron-network/vtpsync/pkg/vlan"
)

// Defaults for Options.
const (
	DefaultOwner        = "vtpsync"
	DefaultPollInterval = 100 * time.Millisecond
	DefaultMaxPolls     = 10
)

// PortRef identifies an interface by ifIndex.
type PortRef interface {
	PortIndex() int
}

// PortIndex is a bare ifIndex.
type PortIndex int

// PortIndex implements PortRef.
func (p PortIndex) PortIndex() int { return int(p) }

// Port is an interface with its ifIndex and name.
type Port struct {
	Index int    `json:"index"`
	Name  string `json:"name"`
}

// PortIndex implements PortRef.
func (p Port) PortIndex() int { return p.Index }

func (p Port) String() string { return p.Name }

// VLAN is a live VLAN directory entry.
type VLAN struct {
	ID   vlan.ID `json:"id"`
	Name string  `json:"name"`
}

// VLANID implements vlan.Ref.
func (v VLAN) VLANID() vlan.ID { return v.ID }

// Saver persists the running configuration by some means other than the
// config copy MIB.
type Saver interface {
	SaveConfig(ctx context.Context) error
}

// Options tunes a Switch. Zero values select the defaults.
type Options struct {
	// Domain is the VTP management domain index.
	Domain int
	// Owner is written to the edit buffer owner object on Begin.
	Owner        string
	PollInterval time.Duration
	MaxPolls     int
	// Saver replaces the config copy MIB for SaveConfig when set.
	Saver Saver
	// CopyIndex picks the config copy table row; random when nil.
	CopyIndex func() int
}

// Switch is the facade for one device.
type Switch struct {
	name      string
	transport snmp.Transport
	domain    int
	owner     string
	poll      time.Duration
	maxPolls  int
	saver     Saver
	copyIndex func() int
}

// New wraps an open transport.
func New(name string, t snmp.Transport, opts Options) *Switch {
	s := &Switch{
		name:      name,
		transport: t,
		domain:    opts.Domain,
		owner:     opts.Owner,
		poll:      opts.PollInterval,
		maxPolls:  opts.MaxPolls,
		saver:     opts.Saver,
		copyIndex: opts.CopyIndex,
	}
	if s.domain == 0 {
		s.domain = defaultManagementID
	}
	if s.owner == "" {
		s.owner = DefaultOwner
	}
	if s.poll == 0 {
		s.poll = DefaultPollInterval
	}
	if s.maxPolls == 0 {
		s.maxPolls = DefaultMaxPolls
	}
	if s.copyIndex == nil {
		s.copyIndex = func() int { return int(rand.Int31n(math.MaxInt32)) + 1 }
	}
	return s
}

// Name returns the device name.
func (s *Switch) Name() string { return s.name }

// Domain returns the VTP management domain index.
func (s *Switch) Domain() int { return s.domain }

// Close closes the underlying transport.
func (s *Switch) Close() error { return s.transport.Close() }

func (s *Switch) portLabel(p PortRef) string {
	if port, ok := p.(Port); ok && port.Name != "" {
		return port.Name
	}
	return fmt.Sprintf("ifIndex %d", p.PortIndex())
}

func (s *Switch) get(ctx context.Context, oids ...string) ([]snmp.Variable, error) {
	vars, err := s.transport.Get(ctx, oids...)
	if err != nil {
		return nil, err
	}
	if len(vars) != len(oids) {
		return nil, fmt.Errorf("%w: %s returned %d bindings for %d OIDs", util.ErrProtocol, s.name, len(vars), len(oids))
	}
	return vars, nil
}

func (s *Switch) getOne(ctx context.Context, oid string) (snmp.Variable, error) {
	vars, err := s.get(ctx, oid)
	if err != nil {
		return snmp.Variable{}, err
	}
	return vars[0], nil
}

// optInt decodes an integer binding; absent yields ok=false.
func optInt(v snmp.Variable) (int, bool, error) {
	if v.IsAbsent() {
		return 0, false, nil
	}
	n, err := v.Int()
	if err != nil {
		return 0, false, err
	}
	return n, true, nil
}

// ============================================================================
// Port reads
// ============================================================================

// TrunkStatus reports whether port is administratively up and operating as a
// trunk with an applicable encapsulation.
func (s *Switch) TrunkStatus(ctx context.Context, p PortRef) (bool, error) {
	idx := p.PortIndex()
	vars, err := s.get(ctx,
		snmp.Join(oidIfAdminStatus, idx),
		snmp.Join(oidTrunkDynamicStat, idx),
		snmp.Join(oidTrunkEncapOper, idx))
	if err != nil {
		return false, err
	}
	admin, ok1, err := optInt(vars[0])
	if err != nil {
		return false, err
	}
	status, ok2, err := optInt(vars[1])
	if err != nil {
		return false, err
	}
	encap, ok3, err := optInt(vars[2])
	if err != nil {
		return false, err
	}
	if !ok1 || !ok2 || !ok3 {
		return false, nil
	}
	return admin == ifAdminUp && status == trunkingStatus && encap != encapNotApplicable, nil
}

// AdminStatus reports whether port is administratively up.
func (s *Switch) AdminStatus(ctx context.Context, p PortRef) (bool, error) {
	v, err := s.getOne(ctx, snmp.Join(oidIfAdminStatus, p.PortIndex()))
	if err != nil {
		return false, err
	}
	n, ok, err := optInt(v)
	if err != nil || !ok {
		return false, err
	}
	return n == ifAdminUp, nil
}

// TrunkMode returns the configured trunking mode of port.
func (s *Switch) TrunkMode(ctx context.Context, p PortRef) (TrunkMode, error) {
	v, err := s.getOne(ctx, snmp.Join(oidTrunkDynamicState, p.PortIndex()))
	if err != nil {
		return 0, err
	}
	n, ok, err := optInt(v)
	if err != nil {
		return 0, err
	}
	if !ok {
		return 0, fmt.Errorf("port %s has no trunk entry: %w", s.portLabel(p), util.ErrNotFound)
	}
	return TrunkMode(n), nil
}

func (s *Switch) counter(ctx context.Context, oid string) (uint64, error) {
	v, err := s.getOne(ctx, oid)
	if err != nil {
		return 0, err
	}
	if v.IsAbsent() {
		return 0, nil
	}
	return v.Uint()
}

// OctetsIn returns ifInOctets of port.
func (s *Switch) OctetsIn(ctx context.Context, p PortRef) (uint64, error) {
	return s.counter(ctx, snmp.Join(oidIfInOctets, p.PortIndex()))
}

// OctetsOut returns ifOutOctets of port.
func (s *Switch) OctetsOut(ctx context.Context, p PortRef) (uint64, error) {
	return s.counter(ctx, snmp.Join(oidIfOutOctets, p.PortIndex()))
}

// Counters reads both octet counters of port in one request.
func (s *Switch) Counters(ctx context.Context, p PortRef) (in, out uint64, err error) {
	vars, err := s.get(ctx, snmp.Join(oidIfInOctets, p.PortIndex()), snmp.Join(oidIfOutOctets, p.PortIndex()))
	if err != nil {
		return 0, 0, err
	}
	if !vars[0].IsAbsent() {
		if in, err = vars[0].Uint(); err != nil {
			return 0, 0, err
		}
	}
	if !vars[1].IsAbsent() {
		if out, err = vars[1].Uint(); err != nil {
			return 0, 0, err
		}
	}
	return in, out, nil
}

func (s *Switch) walkPorts(ctx context.Context, column string) ([]Port, error) {
	var ports []Port
	err := s.transport.Walk(ctx, column, 0, func(v snmp.Variable) error {
		arcs, err := snmp.Suffix(v.OID, column)
		if err != nil {
			return err
		}
		name, err := v.Text()
		if err != nil {
			return err
		}
		ports = append(ports, Port{Index: arcs[len(arcs)-1], Name: name})
		return nil
	})
	if err != nil {
		return nil, err
	}
	sort.Slice(ports, func(i, j int) bool { return ports[i].Index < ports[j].Index })
	return ports, nil
}

// Ports lists interfaces by ifName, ordered by ifIndex.
func (s *Switch) Ports(ctx context.Context) ([]Port, error) {
	return s.walkPorts(ctx, oidIfName)
}

// BasePorts lists interfaces by ifDescr for agents without ifXTable.
func (s *Switch) BasePorts(ctx context.Context) ([]Port, error) {
	return s.walkPorts(ctx, oidIfDescr)
}

// PortIndex resolves an interface name, trying ifName then ifDescr.
func (s *Switch) PortIndex(ctx context.Context, name string) (Port, error) {
	for _, list := range []func(context.Context) ([]Port, error){s.Ports, s.BasePorts} {
		ports, err := list(ctx)
		if err != nil {
			return Port{}, err
		}
		for _, p := range ports {
			if p.Name == name {
				return p, nil
			}
		}
	}
	return Port{}, fmt.Errorf("port %q on %s: %w", name, s.name, util.ErrNotFound)
}

// PortAlias returns ifAlias of port.
func (s *Switch) PortAlias(ctx context.Context, p PortRef) (string, error) {
	v, err := s.getOne(ctx, snmp.Join(oidIfAlias, p.PortIndex()))
	if err != nil {
		return "", err
	}
	if v.IsAbsent() {
		return "", nil
	}
	return v.Text()
}

// AccessVLAN returns the access VLAN of port. ok is false when the port has
// no access VLAN entry, which is the normal state of a trunk.
func (s *Switch) AccessVLAN(ctx context.Context, p PortRef) (id vlan.ID, ok bool, err error) {
	v, err := s.getOne(ctx, snmp.Join(oidVmVlan, p.PortIndex()))
	if err != nil {
		return 0, false, err
	}
	n, ok, err := optInt(v)
	if err != nil || !ok {
		return 0, false, err
	}
	return vlan.ID(n), true, nil
}

// TrunkVLANs returns the VLANs enabled on port, read from all four segment
// bitmaps in one request.
func (s *Switch) TrunkVLANs(ctx context.Context, p PortRef) (vlan.Set, error) {
	oids := make([]string, len(oidTrunkVlansEnabled))
	for seg, col := range oidTrunkVlansEnabled {
		oids[seg] = snmp.Join(col, p.PortIndex())
	}
	vars, err := s.get(ctx, oids...)
	if err != nil {
		return nil, err
	}

	set := vlan.NewSet()
	for seg, v := range vars {
		if v.IsAbsent() {
			continue
		}
		raw, err := v.Bytes()
		if err != nil {
			return nil, err
		}
		positions, err := vlan.Decode(raw)
		if err != nil {
			return nil, fmt.Errorf("port %s segment %d: %w", s.portLabel(p), seg, err)
		}
		for _, id := range vlan.IDs(seg, positions) {
			// bit 0 of the first segment is VLAN 0, never a real VLAN
			if id == 0 {
				continue
			}
			set.Add(id)
		}
	}
	return set, nil
}

// ============================================================================
// VLAN directory reads
// ============================================================================

// VLANs returns the live VLAN directory of the management domain in
// ascending id order.
func (s *Switch) VLANs(ctx context.Context) ([]VLAN, error) {
	prefix := snmp.Join(oidVtpVlanName, s.domain)
	var vlans []VLAN
	err := s.transport.Walk(ctx, prefix, 0, func(v snmp.Variable) error {
		arcs, err := snmp.Suffix(v.OID, prefix)
		if err != nil {
			return err
		}
		name, err := v.Text()
		if err != nil {
			return err
		}
		vlans = append(vlans, VLAN{ID: vlan.ID(arcs[0]), Name: name})
		return nil
	})
	if err != nil {
		return nil, err
	}
	sort.Slice(vlans, func(i, j int) bool { return vlans[i].ID < vlans[j].ID })
	return vlans, nil
}

// VLANName reads the name of one VLAN.
func (s *Switch) VLANName(ctx context.Context, ref vlan.Ref) (string, error) {
	id, err := vlan.Resolve(ref)
	if err != nil {
		return "", err
	}
	v, err := s.getOne(ctx, snmp.Join(oidVtpVlanName, s.domain, int(id)))
	if err != nil {
		return "", err
	}
	if v.IsAbsent() {
		return "", &VLANError{Op: "read", ID: id, Err: util.ErrNotFound}
	}
	return v.Text()
}
