// Package testutil provides test helpers shared across packages: an in-memory
// switch agent for unit tests and Redis helpers for integration tests.
package testutil

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"sync"

	"github.com/newtron-network/vtpsync/pkg/snmp"
	"github.com/newtron-network/vtpsync/pkg/vlan"
)

// MIB locations emulated by Agent.
const (
	oidIfDescr       = "1.3.6.1.2.1.2.2.1.2"
	oidIfAdminStatus = "1.3.6.1.2.1.2.2.1.7"
	oidIfInOctets    = "1.3.6.1.2.1.2.2.1.10"
	oidIfOutOctets   = "1.3.6.1.2.1.2.2.1.16"
	oidIfName        = "1.3.6.1.2.1.31.1.1.1.1"
	oidIfAlias       = "1.3.6.1.2.1.31.1.1.1.18"

	oidVlanName      = "1.3.6.1.4.1.9.9.46.1.3.1.1.4"
	oidEditOperation = "1.3.6.1.4.1.9.9.46.1.4.1.1.1"
	oidApplyStatus   = "1.3.6.1.4.1.9.9.46.1.4.1.1.2"
	oidEditOwner     = "1.3.6.1.4.1.9.9.46.1.4.1.1.3"
	oidEditName      = "1.3.6.1.4.1.9.9.46.1.4.2.1.4"
	oidEditRowStatus = "1.3.6.1.4.1.9.9.46.1.4.2.1.11"

	oidTrunkEnabled   = "1.3.6.1.4.1.9.9.46.1.6.1.1.4"
	oidTrunkDynState  = "1.3.6.1.4.1.9.9.46.1.6.1.1.13"
	oidTrunkDynStatus = "1.3.6.1.4.1.9.9.46.1.6.1.1.14"
	oidTrunkEncapOper = "1.3.6.1.4.1.9.9.46.1.6.1.1.16"
	oidTrunkEnabled2k = "1.3.6.1.4.1.9.9.46.1.6.1.1.17"
	oidTrunkEnabled3k = "1.3.6.1.4.1.9.9.46.1.6.1.1.18"
	oidTrunkEnabled4k = "1.3.6.1.4.1.9.9.46.1.6.1.1.19"
	oidTrunkSerial    = "1.3.6.1.4.1.9.9.46.1.6.2.0"

	oidVmVlan = "1.3.6.1.4.1.9.9.68.1.2.2.1.2"

	oidCopyEntry = "1.3.6.1.4.1.9.9.96.1.1.1.1"
)

var trunkSegmentColumns = []string{oidTrunkEnabled, oidTrunkEnabled2k, oidTrunkEnabled3k, oidTrunkEnabled4k}

const (
	editCopy    = 2
	editApply   = 3
	editRelease = 4

	applySucceeded = 2

	rowActive      = 1
	rowCreateAndGo = 4
	rowDestroy     = 6
)

// Agent is an in-memory switch implementing snmp.Transport. It emulates the
// VTP edit buffer, trunk membership bitmaps guarded by the set serial number,
// the access VLAN table, and the config copy table. Every Set is recorded.
type Agent struct {
	Name   string
	Domain int

	// Fail, when set, is consulted before every request; a non-nil return
	// fails the request as a transport error.
	Fail func(op string, oids []string) error

	// ApplySequence lists the apply status values returned by successive
	// reads after an apply. The last value repeats. Empty means succeeded.
	ApplySequence []int

	// IgnoreAccessWrites makes the agent accept but drop access VLAN writes.
	IgnoreAccessWrites bool

	// SkipCopy makes the copy operation leave the edit buffer empty.
	SkipCopy bool

	mu        sync.Mutex
	vars      map[string]snmp.Variable
	sets      [][]snmp.Variable
	gets      int
	applyPoll int
	closed    bool
}

// NewAgent returns an agent for VTP domain 1 with VLAN 1 present.
func NewAgent(name string) *Agent {
	a := &Agent{
		Name:   name,
		Domain: 1,
		vars:   make(map[string]snmp.Variable),
	}
	a.vars[oidTrunkSerial] = snmp.Int(oidTrunkSerial, 0)
	a.AddVLAN(1, "default")
	return a
}

func (a *Agent) domainOID(base string, arcs ...int) string {
	return snmp.Join(base, append([]int{a.Domain}, arcs...)...)
}

// AddPort registers an interface with ifName and ifDescr, admin up.
func (a *Agent) AddPort(index int, name string) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.put(snmp.Str(snmp.Join(oidIfName, index), name))
	a.put(snmp.Str(snmp.Join(oidIfDescr, index), name))
	a.put(snmp.Int(snmp.Join(oidIfAdminStatus, index), 1))
	a.put(snmp.Str(snmp.Join(oidIfAlias, index), ""))
	a.put(snmp.Variable{OID: snmp.Join(oidIfInOctets, index), Type: snmp.Counter32, Value: uint(0)})
	a.put(snmp.Variable{OID: snmp.Join(oidIfOutOctets, index), Type: snmp.Counter32, Value: uint(0)})
}

// AddVLAN adds a VLAN to the live directory.
func (a *Agent) AddVLAN(id int, name string) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.put(snmp.Str(a.domainOID(oidVlanName, id), name))
}

// SetTrunk makes port an operational dot1q trunk carrying ids.
func (a *Agent) SetTrunk(port int, ids ...int) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.put(snmp.Int(snmp.Join(oidTrunkDynState, port), 1))
	a.put(snmp.Int(snmp.Join(oidTrunkDynStatus, port), 1))
	a.put(snmp.Int(snmp.Join(oidTrunkEncapOper, port), 4))
	delete(a.vars, snmp.Join(oidVmVlan, port))

	segs := make([][]int, len(trunkSegmentColumns))
	for _, id := range ids {
		seg := vlan.Segment(vlan.ID(id))
		segs[seg] = append(segs[seg], vlan.Position(vlan.ID(id)))
	}
	for seg, col := range trunkSegmentColumns {
		raw, _ := vlan.EncodeMany(nil, segs[seg], true)
		a.put(snmp.Octets(snmp.Join(col, port), raw))
	}
}

// SetAccess makes port a static access port on id.
func (a *Agent) SetAccess(port, id int) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.put(snmp.Int(snmp.Join(oidTrunkDynState, port), 2))
	a.put(snmp.Int(snmp.Join(oidTrunkDynStatus, port), 2))
	a.put(snmp.Int(snmp.Join(oidTrunkEncapOper, port), 6))
	a.put(snmp.Int(snmp.Join(oidVmVlan, port), id))
}

// SetCounters sets the octet counters of port.
func (a *Agent) SetCounters(port int, in, out uint) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.put(snmp.Variable{OID: snmp.Join(oidIfInOctets, port), Type: snmp.Counter32, Value: in})
	a.put(snmp.Variable{OID: snmp.Join(oidIfOutOctets, port), Type: snmp.Counter32, Value: out})
}

// HoldEditBuffer simulates another manager having opened an edit session.
func (a *Agent) HoldEditBuffer(owner string) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.copyToEditBuffer()
	a.put(snmp.Str(a.domainOID(oidEditOwner), owner))
}

// VLANs returns the live VLAN directory.
func (a *Agent) VLANs() map[int]string {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.table(a.domainOID(oidVlanName))
}

// EditBufferFree reports whether the edit buffer holds no rows and no owner.
func (a *Agent) EditBufferFree() bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	if len(a.table(a.domainOID(oidEditName))) > 0 {
		return false
	}
	_, owned := a.vars[a.domainOID(oidEditOwner)]
	return !owned
}

// EditOperation returns the last value written to the edit operation object.
func (a *Agent) EditOperation() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	v, ok := a.vars[a.domainOID(oidEditOperation)]
	if !ok {
		return 0
	}
	n, _ := v.Int()
	return n
}

// TrunkVLANs returns the VLANs enabled on a trunk port.
func (a *Agent) TrunkVLANs(port int) []int {
	a.mu.Lock()
	defer a.mu.Unlock()
	var ids []int
	for seg, col := range trunkSegmentColumns {
		v, ok := a.vars[snmp.Join(col, port)]
		if !ok {
			continue
		}
		raw, _ := v.Bytes()
		positions, _ := vlan.Decode(raw)
		for _, p := range positions {
			ids = append(ids, seg*vlan.SegmentSize+p)
		}
	}
	return ids
}

// AccessVLAN returns the access VLAN of port, 0 when unset.
func (a *Agent) AccessVLAN(port int) int {
	return a.intValue(snmp.Join(oidVmVlan, port))
}

// AdminStatus returns ifAdminStatus of port.
func (a *Agent) AdminStatus(port int) int {
	return a.intValue(snmp.Join(oidIfAdminStatus, port))
}

// TrunkMode returns the configured trunk mode of port.
func (a *Agent) TrunkMode(port int) int {
	return a.intValue(snmp.Join(oidTrunkDynState, port))
}

// Alias returns ifAlias of port.
func (a *Agent) Alias(port int) string {
	a.mu.Lock()
	defer a.mu.Unlock()
	v, ok := a.vars[snmp.Join(oidIfAlias, port)]
	if !ok {
		return ""
	}
	s, _ := v.Text()
	return s
}

// Saves returns how many config copy rows were created.
func (a *Agent) Saves() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	n := 0
	for oid := range a.vars {
		if snmp.HasPrefix(oid, oidCopyEntry+".14") {
			n++
		}
	}
	return n
}

// SetLog returns a copy of every Set request received, in order.
func (a *Agent) SetLog() [][]snmp.Variable {
	a.mu.Lock()
	defer a.mu.Unlock()
	out := make([][]snmp.Variable, len(a.sets))
	copy(out, a.sets)
	return out
}

// SetCount returns the number of Set requests received.
func (a *Agent) SetCount() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return len(a.sets)
}

// GetCount returns the number of Get requests received.
func (a *Agent) GetCount() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.gets
}

// ResetLog clears recorded requests.
func (a *Agent) ResetLog() {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.sets = nil
	a.gets = 0
}

// Closed reports whether Close was called.
func (a *Agent) Closed() bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.closed
}

// Dialer returns an snmp.Dialer serving agents by target.
func Dialer(agents ...*Agent) snmp.Dialer {
	byName := make(map[string]*Agent, len(agents))
	for _, a := range agents {
		byName[a.Name] = a
	}
	return func(_ context.Context, target string) (snmp.Transport, error) {
		a, ok := byName[target]
		if !ok {
			return nil, &snmp.TransportError{Op: "dial", Target: target, Err: errors.New("no route to host")}
		}
		a.mu.Lock()
		a.closed = false
		a.mu.Unlock()
		return a, nil
	}
}

// Get implements snmp.Transport.
func (a *Agent) Get(ctx context.Context, oids ...string) ([]snmp.Variable, error) {
	if err := a.check(ctx, "get", oids); err != nil {
		return nil, err
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	a.gets++

	out := make([]snmp.Variable, 0, len(oids))
	for _, oid := range oids {
		oid = snmp.NormalizeOID(oid)
		if oid == a.domainOID(oidApplyStatus) && len(a.ApplySequence) > 0 {
			i := a.applyPoll
			if i >= len(a.ApplySequence) {
				i = len(a.ApplySequence) - 1
			}
			a.applyPoll++
			out = append(out, snmp.Int(oid, a.ApplySequence[i]))
			continue
		}
		if v, ok := a.vars[oid]; ok {
			out = append(out, v)
			continue
		}
		out = append(out, snmp.Variable{OID: oid, Type: snmp.NoSuchInstance})
	}
	return out, nil
}

// Walk implements snmp.Transport.
func (a *Agent) Walk(ctx context.Context, prefix string, maxRows int, fn snmp.WalkFunc) error {
	if err := a.check(ctx, "walk", []string{prefix}); err != nil {
		return err
	}
	a.mu.Lock()
	var rows []snmp.Variable
	for oid, v := range a.vars {
		if snmp.HasPrefix(oid, prefix) {
			rows = append(rows, v)
		}
	}
	a.mu.Unlock()

	sort.Slice(rows, func(i, j int) bool { return oidLess(rows[i].OID, rows[j].OID) })
	for i, v := range rows {
		if maxRows > 0 && i >= maxRows {
			break
		}
		if err := fn(v); err != nil {
			if errors.Is(err, snmp.ErrStopWalk) {
				return nil
			}
			return err
		}
	}
	return nil
}

// Set implements snmp.Transport. A request is applied atomically: a
// rejected binding leaves state untouched.
func (a *Agent) Set(ctx context.Context, vars ...snmp.Variable) error {
	oids := make([]string, 0, len(vars))
	for _, v := range vars {
		oids = append(oids, v.OID)
	}
	if err := a.check(ctx, "set", oids); err != nil {
		return err
	}

	a.mu.Lock()
	defer a.mu.Unlock()

	rec := make([]snmp.Variable, len(vars))
	for i, v := range vars {
		v.OID = snmp.NormalizeOID(v.OID)
		rec[i] = v
	}
	a.sets = append(a.sets, rec)

	if err := a.validateSet(rec); err != nil {
		return &snmp.TransportError{Op: "set", Target: a.Name, OIDs: oids, Err: err}
	}

	// row status first so a createAndGo and its name land together
	work := append([]snmp.Variable(nil), rec...)
	sort.SliceStable(work, func(i, j int) bool {
		return snmp.HasPrefix(work[i].OID, oidEditRowStatus) && !snmp.HasPrefix(work[j].OID, oidEditRowStatus)
	})
	for _, v := range work {
		a.apply(v)
	}
	return nil
}

// Close implements snmp.Transport.
func (a *Agent) Close() error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.closed = true
	return nil
}

func (a *Agent) check(ctx context.Context, op string, oids []string) error {
	if err := ctx.Err(); err != nil {
		return &snmp.TransportError{Op: op, Target: a.Name, OIDs: oids, Err: err}
	}
	if a.Fail != nil {
		if err := a.Fail(op, oids); err != nil {
			return &snmp.TransportError{Op: op, Target: a.Name, OIDs: oids, Err: err}
		}
	}
	return nil
}

func (a *Agent) validateSet(vars []snmp.Variable) error {
	for _, v := range vars {
		switch {
		case v.OID == oidTrunkSerial:
			want, _ := a.vars[oidTrunkSerial].Int()
			got, err := v.Int()
			if err != nil || got != want {
				return fmt.Errorf("inconsistentValue: serial %v, want %d", v.Value, want)
			}
		case snmp.HasPrefix(v.OID, oidEditRowStatus):
			status, err := v.Int()
			if err != nil {
				return fmt.Errorf("wrongType: %s", v.OID)
			}
			_, exists := a.vars[v.OID]
			if status == rowCreateAndGo && exists {
				return fmt.Errorf("inconsistentValue: row %s exists", v.OID)
			}
			if status == rowDestroy && !exists {
				return fmt.Errorf("noSuchName: row %s", v.OID)
			}
		case snmp.HasPrefix(v.OID, oidEditName):
			if _, exists := a.vars[v.OID]; !exists && !a.creating(vars, v.OID) {
				return fmt.Errorf("noCreation: %s", v.OID)
			}
		}
	}
	return nil
}

// creating reports whether vars contains a createAndGo for the row named by
// nameOID.
func (a *Agent) creating(vars []snmp.Variable, nameOID string) bool {
	idx := strings.TrimPrefix(nameOID, oidEditName)
	for _, v := range vars {
		if v.OID == oidEditRowStatus+idx {
			if n, _ := v.Int(); n == rowCreateAndGo {
				return true
			}
		}
	}
	return false
}

func (a *Agent) apply(v snmp.Variable) {
	switch {
	case v.OID == oidTrunkSerial:
		n, _ := v.Int()
		a.put(snmp.Int(oidTrunkSerial, n+1))
	case v.OID == a.domainOID(oidEditOperation):
		op, _ := v.Int()
		a.put(v)
		a.editOperation(op)
	case snmp.HasPrefix(v.OID, oidEditRowStatus):
		status, _ := v.Int()
		idx := strings.TrimPrefix(v.OID, oidEditRowStatus)
		switch status {
		case rowCreateAndGo:
			a.put(snmp.Int(v.OID, rowActive))
			if _, ok := a.vars[oidEditName+idx]; !ok {
				a.put(snmp.Str(oidEditName+idx, ""))
			}
		case rowDestroy:
			delete(a.vars, v.OID)
			delete(a.vars, oidEditName+idx)
		}
	case snmp.HasPrefix(v.OID, oidVmVlan):
		if a.IgnoreAccessWrites {
			return
		}
		a.put(v)
	case snmp.HasPrefix(v.OID, oidCopyEntry+".14"):
		a.put(v)
		idx := strings.TrimPrefix(v.OID, oidCopyEntry+".14")
		// ccCopyState successful(3)
		a.put(snmp.Int(oidCopyEntry+".10"+idx, 3))
	default:
		a.put(v)
	}
}

func (a *Agent) editOperation(op int) {
	switch op {
	case editCopy:
		a.applyPoll = 0
		if !a.SkipCopy {
			a.copyToEditBuffer()
		}
	case editApply:
		a.applyPoll = 0
		if len(a.ApplySequence) > 0 && a.ApplySequence[len(a.ApplySequence)-1] != applySucceeded {
			return
		}
		live := a.domainOID(oidVlanName)
		for oid := range a.vars {
			if snmp.HasPrefix(oid, live) {
				delete(a.vars, oid)
			}
		}
		for id, name := range a.table(a.domainOID(oidEditName)) {
			a.put(snmp.Str(a.domainOID(oidVlanName, id), name))
		}
		a.put(snmp.Int(a.domainOID(oidApplyStatus), applySucceeded))
	case editRelease:
		for oid := range a.vars {
			if snmp.HasPrefix(oid, a.domainOID(oidEditName)) || snmp.HasPrefix(oid, a.domainOID(oidEditRowStatus)) {
				delete(a.vars, oid)
			}
		}
		delete(a.vars, a.domainOID(oidEditOwner))
	}
}

func (a *Agent) copyToEditBuffer() {
	for id, name := range a.table(a.domainOID(oidVlanName)) {
		a.put(snmp.Str(a.domainOID(oidEditName, id), name))
		a.put(snmp.Int(a.domainOID(oidEditRowStatus, id), rowActive))
	}
}

// table returns the text column under prefix keyed by the last index arc.
func (a *Agent) table(prefix string) map[int]string {
	out := make(map[int]string)
	for oid, v := range a.vars {
		if !snmp.HasPrefix(oid, prefix) {
			continue
		}
		arcs, err := snmp.Suffix(oid, prefix)
		if err != nil || len(arcs) != 1 {
			continue
		}
		s, _ := v.Text()
		out[arcs[0]] = s
	}
	return out
}

func (a *Agent) intValue(oid string) int {
	a.mu.Lock()
	defer a.mu.Unlock()
	v, ok := a.vars[oid]
	if !ok {
		return 0
	}
	n, _ := v.Int()
	return n
}

func (a *Agent) put(v snmp.Variable) {
	v.OID = snmp.NormalizeOID(v.OID)
	a.vars[v.OID] = v
}

func oidLess(x, y string) bool {
	xs, ys := strings.Split(x, "."), strings.Split(y, ".")
	for i := 0; i < len(xs) && i < len(ys); i++ {
		a, _ := strconv.Atoi(xs[i])
		b, _ := strconv.Atoi(ys[i])
		if a != b {
			return a < b
		}
	}
	return len(xs) < len(ys)
}
