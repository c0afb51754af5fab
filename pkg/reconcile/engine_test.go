package reconcile

import (
	"context"
	"errors"
	"reflect"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/newtron-network/vtpsync/internal/testutil"
	"github.com/newtron-network/vtpsync/pkg/audit"
	"github.com/newtron-network/vtpsync/pkg/cisco"
	"github.com/newtron-network/vtpsync/pkg/inventory"
	"github.com/newtron-network/vtpsync/pkg/util"
	"github.com/newtron-network/vtpsync/pkg/vlan"
)

const chainYAML = `
vlans:
  10: eng
hosts:
  sw1:
    address: sw1
    vlans: "10"
    links:
      - {port: Gi0/1, remote: sw2}
  sw2:
    address: sw2
    links:
      - {port: Gi0/1, remote: sw1}
      - {port: Gi0/2, remote: sw3}
  sw3:
    address: sw3
    vlans: "10"
    links:
      - {port: Gi0/1, remote: sw2}
`

// chainFleet is sw1 - sw2 - sw3 where only the ends need VLAN 10. sw2 carries
// a stale VLAN and sw3 has VLAN 10 under an old name.
func chainFleet(t *testing.T) (*inventory.Inventory, map[string]*testutil.Agent) {
	t.Helper()
	inv, err := inventory.Parse([]byte(chainYAML))
	if err != nil {
		t.Fatalf("Parse() error = %v", err)
	}

	sw1 := testutil.NewAgent("sw1")
	sw1.AddPort(1, "Gi0/1")
	sw1.SetTrunk(1)
	sw1.AddPort(2, "Gi0/2")
	sw1.SetAccess(2, 1)

	sw2 := testutil.NewAgent("sw2")
	sw2.AddPort(1, "Gi0/1")
	sw2.SetTrunk(1)
	sw2.AddPort(2, "Gi0/2")
	sw2.SetTrunk(2)
	sw2.AddVLAN(99, "stale")

	sw3 := testutil.NewAgent("sw3")
	sw3.AddPort(1, "Gi0/1")
	sw3.SetTrunk(1)
	sw3.AddVLAN(10, "old")

	return inv, map[string]*testutil.Agent{"sw1": sw1, "sw2": sw2, "sw3": sw3}
}

func connector(agents map[string]*testutil.Agent) Connector {
	list := make([]*testutil.Agent, 0, len(agents))
	for _, a := range agents {
		list = append(list, a)
	}
	return DialSwitch(testutil.Dialer(list...), cisco.Options{
		PollInterval: time.Millisecond,
		CopyIndex:    func() int { return 7 },
	})
}

func keepDefault() Policy {
	return Policy{RemoveVLAN: KeepVLANs(vlan.NewSet(1))}
}

func rendered(res *Result) []string {
	if len(res.Changes) == 0 {
		return nil
	}
	return res.Rendered()
}

func TestRunEndToEnd(t *testing.T) {
	ctx := context.Background()
	inv, agents := chainFleet(t)
	desired := Plan(inv)

	if got := desired.Devices(); !reflect.DeepEqual(got, []string{"sw1", "sw2", "sw3"}) {
		t.Fatalf("Devices() = %v", got)
	}

	e := New(Config{Connect: connector(agents), Policy: keepDefault(), Parallelism: 2})
	report := e.Run(ctx, desired, inv.Hosts)

	want := map[string][]string{
		"sw1": {"create VLAN 10 (eng)", "add VLANs 10 to trunk Gi0/1"},
		"sw2": {"delete VLAN 99", "create VLAN 10 (eng)", "add VLANs 10 to trunk Gi0/1", "add VLANs 10 to trunk Gi0/2"},
		"sw3": {`rename VLAN 10 from "old" to "eng"`, "add VLANs 10 to trunk Gi0/1"},
	}
	for _, res := range report.Results {
		if res.Err != nil {
			t.Errorf("%s: error = %v", res.Device, res.Err)
			continue
		}
		if got := rendered(res); !reflect.DeepEqual(got, want[res.Device]) {
			t.Errorf("%s: changes = %q, want %q", res.Device, got, want[res.Device])
		}
		if !res.Saved {
			t.Errorf("%s: not saved", res.Device)
		}
	}

	for name, a := range agents {
		if got := a.VLANs(); !reflect.DeepEqual(got, map[int]string{1: "default", 10: "eng"}) {
			t.Errorf("%s: VLANs = %v", name, got)
		}
		if a.Saves() != 1 {
			t.Errorf("%s: Saves = %d, want 1", name, a.Saves())
		}
		if !a.EditBufferFree() {
			t.Errorf("%s: edit buffer left owned", name)
		}
		if !a.Closed() {
			t.Errorf("%s: transport not closed", name)
		}
		if got := a.TrunkVLANs(1); !reflect.DeepEqual(got, []int{10}) {
			t.Errorf("%s: trunk 1 = %v", name, got)
		}
	}
	if got := agents["sw2"].TrunkVLANs(2); !reflect.DeepEqual(got, []int{10}) {
		t.Errorf("sw2: trunk 2 = %v", got)
	}
	if got := agents["sw1"].AccessVLAN(2); got != 1 {
		t.Errorf("unlinked access port touched: vlan %d", got)
	}

	t.Run("second pass writes nothing", func(t *testing.T) {
		for _, a := range agents {
			a.ResetLog()
		}
		report := e.Run(ctx, desired, inv.Hosts)
		if len(report.Changed()) != 0 || len(report.Failed()) != 0 {
			t.Errorf("second pass: %s", report.Summary())
		}
		for name, a := range agents {
			if a.SetCount() != 0 {
				t.Errorf("%s: %d sets on second pass: %v", name, a.SetCount(), a.SetLog())
			}
		}
		for _, res := range report.Results {
			if res.Saved {
				t.Errorf("%s: saved without changes", res.Device)
			}
		}
	})
}

func TestRunDryRun(t *testing.T) {
	inv, agents := chainFleet(t)
	rec := &fakeRecorder{}
	e := New(Config{
		DryRun:   true,
		Connect:  connector(agents),
		Policy:   keepDefault(),
		Recorder: rec,
		User:     "ci",
	})

	report := e.Run(context.Background(), Plan(inv), inv.Hosts)

	if !report.DryRun || !strings.HasSuffix(report.Summary(), "(dry run)") {
		t.Errorf("Summary() = %q", report.Summary())
	}
	if len(report.Changed()) != 3 {
		t.Errorf("Changed() = %d devices, want 3", len(report.Changed()))
	}
	for name, a := range agents {
		if a.SetCount() != 0 {
			t.Errorf("%s: dry run wrote %v", name, a.SetLog())
		}
	}
	for _, res := range report.Results {
		if res.Saved {
			t.Errorf("%s: dry run saved", res.Device)
		}
	}
	if got := rendered(report.Results[1]); len(got) != 4 || got[0] != "delete VLAN 99" {
		t.Errorf("sw2 planned changes = %q", got)
	}

	if len(rec.events) != 3 {
		t.Fatalf("recorded %d events, want 3", len(rec.events))
	}
	for _, ev := range rec.events {
		if !ev.DryRun || !ev.Success || ev.User != "ci" || ev.Operation != audit.OpReconcile {
			t.Errorf("event = %+v", ev)
		}
		if len(ev.Changes) == 0 {
			t.Errorf("%s: event carries no changes", ev.Device)
		}
	}
}

func TestRunPartialFailure(t *testing.T) {
	sw1 := testutil.NewAgent("sw1")
	sw1.Fail = func(string, []string) error { return errors.New("timeout") }
	sw2 := testutil.NewAgent("sw2")
	sw2.HoldEditBuffer("operator")
	sw3 := testutil.NewAgent("sw3")

	agents := map[string]*testutil.Agent{"sw1": sw1, "sw2": sw2, "sw3": sw3}
	desired := Desired{
		VLANs: map[vlan.ID]inventory.VLAN{10: {ID: 10, Name: "eng"}},
		VLANMap: map[string]vlan.Set{
			"ghost": vlan.NewSet(10),
			"sw1":   vlan.NewSet(10),
			"sw2":   vlan.NewSet(10),
			"sw3":   vlan.NewSet(10),
			"sw4":   vlan.NewSet(10),
		},
	}
	hosts := map[string]*inventory.Host{
		"sw1": {Name: "sw1", Address: "sw1"},
		"sw2": {Name: "sw2", Address: "sw2"},
		"sw3": {Name: "sw3", Address: "sw3"},
		"sw4": {Name: "sw4"},
	}

	e := New(Config{Connect: connector(agents), Policy: keepDefault(), Parallelism: 3})
	report := e.Run(context.Background(), desired, hosts)

	byName := make(map[string]*Result)
	for _, res := range report.Results {
		byName[res.Device] = res
	}

	if byName["ghost"].Skipped == "" || byName["sw4"].Skipped == "" {
		t.Errorf("ghost/sw4 should be skipped: %+v %+v", byName["ghost"], byName["sw4"])
	}
	if err := byName["sw1"].Err; !util.IsConnectivity(err) {
		t.Errorf("sw1 error = %v, want connectivity failure", err)
	}
	if err := byName["sw2"].Err; !errors.Is(err, util.ErrTransactionBusy) {
		t.Errorf("sw2 error = %v, want ErrTransactionBusy", err)
	}
	if sw2.SetCount() != 0 {
		t.Errorf("sw2: busy edit buffer must not be written, got %v", sw2.SetLog())
	}
	if res := byName["sw3"]; res.Err != nil || !res.Saved {
		t.Errorf("sw3 = %+v, want saved without error", res)
	}
	if sw3.VLANs()[10] != "eng" {
		t.Errorf("sw3 VLANs = %v", sw3.VLANs())
	}

	if got := report.Summary(); got != "5 devices, 1 changed, 2 failed, 2 skipped, 1 changes" {
		t.Errorf("Summary() = %q", got)
	}
}

func TestPolicyHooks(t *testing.T) {
	tests := []struct {
		name   string
		setup  func(a *testutil.Agent)
		policy func(p *Policy)
		peer   vlan.Set
		port   func(string) string
		link   string
		want   []string
		check  func(t *testing.T, a *testutil.Agent)
	}{
		{
			name:   "default policy deletes undeclared VLANs",
			setup:  func(a *testutil.Agent) { a.AddVLAN(50, "old") },
			policy: func(p *Policy) { p.RemoveVLAN = nil },
			want:   []string{"delete VLAN 1", "delete VLAN 50"},
		},
		{
			name: "trunk pruning honors the removal hook",
			setup: func(a *testutil.Agent) {
				a.SetTrunk(1, 10, 20, 30)
			},
			policy: func(p *Policy) { p.RemovePortVLAN = KeepPortVLANs(vlan.NewSet(20)) },
			want:   []string{"remove VLANs 30 from trunk Gi0/1"},
			check: func(t *testing.T, a *testutil.Agent) {
				if got := a.TrunkVLANs(1); !reflect.DeepEqual(got, []int{10, 20}) {
					t.Errorf("trunk = %v", got)
				}
			},
		},
		{
			name:  "trunk gains only VLANs both ends carry",
			peer:  vlan.NewSet(10, 30),
			setup: func(a *testutil.Agent) { a.SetTrunk(1) },
			want:  []string{"add VLANs 10 to trunk Gi0/1"},
		},
		{
			name:  "access port is not edited by default",
			setup: func(a *testutil.Agent) { a.SetAccess(1, 1) },
			want:  nil,
		},
		{
			name:   "port edits can be vetoed",
			setup:  func(a *testutil.Agent) { a.SetTrunk(1) },
			policy: func(p *Policy) { p.EditPort = func(PortView) bool { return false } },
			want:   nil,
		},
		{
			name:  "membership edit hook overrides trunk status",
			setup: func(a *testutil.Agent) { a.SetTrunk(1) },
			policy: func(p *Policy) {
				p.EditPortVLANs = func(context.Context, PortView) (bool, error) { return false, nil }
			},
			want: nil,
		},
		{
			name:   "rename sets the link port name",
			setup:  func(a *testutil.Agent) { a.SetTrunk(1, 10) },
			policy: func(p *Policy) { p.RenamePort = func(PortView) bool { return true } },
			want:   []string{`set alias of Gi0/1 from "" to "Gi0/1"`},
			check: func(t *testing.T, a *testutil.Agent) {
				if a.Alias(1) != "Gi0/1" {
					t.Errorf("alias = %q", a.Alias(1))
				}
			},
		},
		{
			name:  "custom alias",
			setup: func(a *testutil.Agent) { a.SetTrunk(1, 10) },
			policy: func(p *Policy) {
				p.RenamePort = func(PortView) bool { return true }
				p.PortAlias = func(pv PortView) string { return "to " + pv.Link.Remote }
			},
			want: []string{`set alias of Gi0/1 from "" to "to peer"`},
		},
		{
			name:  "declared port names are mapped",
			link:  "gi0/1",
			port:  func(s string) string { return "G" + strings.TrimPrefix(s, "g") },
			setup: func(a *testutil.Agent) { a.SetTrunk(1) },
			want:  []string{"add VLANs 10 to trunk Gi0/1"},
		},
		{
			name:  "unmapped port name matches nothing",
			link:  "gi0/1",
			setup: func(a *testutil.Agent) { a.SetTrunk(1) },
			want:  nil,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			a := testutil.NewAgent("sw1")
			a.AddVLAN(10, "eng")
			a.AddPort(1, "Gi0/1")
			tt.setup(a)

			link := tt.link
			if link == "" {
				link = "Gi0/1"
			}
			peer := tt.peer
			if peer == nil {
				peer = vlan.NewSet(10)
			}
			policy := keepDefault()
			if tt.policy != nil {
				tt.policy(&policy)
			}

			desired := Desired{
				VLANs:   map[vlan.ID]inventory.VLAN{10: {ID: 10, Name: "eng"}},
				VLANMap: map[string]vlan.Set{"sw1": vlan.NewSet(10), "peer": peer},
			}
			hosts := map[string]*inventory.Host{
				"sw1": {Name: "sw1", Address: "sw1", Links: []inventory.Link{{Port: link, Remote: "peer"}}},
			}

			e := New(Config{
				Connect:  connector(map[string]*testutil.Agent{"sw1": a}),
				Policy:   policy,
				PortName: tt.port,
			})
			report := e.Run(context.Background(), desired, hosts)

			res := report.Results[1]
			if res.Device != "sw1" || res.Err != nil {
				t.Fatalf("result = %+v", res)
			}
			if got := rendered(res); !reflect.DeepEqual(got, tt.want) {
				t.Errorf("changes = %q, want %q", got, tt.want)
			}
			if res.Saved != (len(tt.want) > 0) {
				t.Errorf("Saved = %v", res.Saved)
			}
			if tt.check != nil {
				tt.check(t, a)
			}
		})
	}
}

func TestRunLocking(t *testing.T) {
	inv, agents := chainFleet(t)
	locker := &fakeLocker{held: map[string]string{"sw2": "someone-else"}}
	e := New(Config{
		Connect: connector(agents),
		Policy:  keepDefault(),
		Locker:  locker,
		Holder:  "me",
	})

	report := e.Run(context.Background(), Plan(inv), inv.Hosts)

	for _, res := range report.Results {
		switch res.Device {
		case "sw2":
			if !errors.Is(res.Err, util.ErrDeviceLocked) {
				t.Errorf("sw2 error = %v, want ErrDeviceLocked", res.Err)
			}
		default:
			if res.Err != nil {
				t.Errorf("%s error = %v", res.Device, res.Err)
			}
		}
	}
	if agents["sw2"].SetCount() != 0 {
		t.Error("locked device was written")
	}
	if !reflect.DeepEqual(locker.released, []string{"sw1", "sw3"}) {
		t.Errorf("released = %v", locker.released)
	}
	if locker.held["sw2"] != "someone-else" || len(locker.held) != 1 {
		t.Errorf("held = %v", locker.held)
	}

	t.Run("dry run does not lock", func(t *testing.T) {
		locker.acquired = nil
		e := New(Config{DryRun: true, Connect: connector(agents), Locker: locker})
		e.Run(context.Background(), Plan(inv), inv.Hosts)
		if len(locker.acquired) != 0 {
			t.Errorf("acquired = %v", locker.acquired)
		}
	})
}

func TestRunStopsDeviceOnWriteFailure(t *testing.T) {
	a := testutil.NewAgent("sw1")
	a.AddVLAN(20, "ops")
	a.Fail = func(op string, _ []string) error {
		if op == "set" {
			return errors.New("read-only community")
		}
		return nil
	}
	desired := Desired{
		VLANs:   map[vlan.ID]inventory.VLAN{10: {ID: 10, Name: "eng"}},
		VLANMap: map[string]vlan.Set{"sw1": vlan.NewSet(10)},
	}
	hosts := map[string]*inventory.Host{"sw1": {Name: "sw1", Address: "sw1"}}

	e := New(Config{Connect: connector(map[string]*testutil.Agent{"sw1": a}), Policy: keepDefault()})
	res := e.Run(context.Background(), desired, hosts).Results[0]

	if res.Err == nil || !strings.Contains(res.Err.Error(), "delete VLAN 20") {
		t.Errorf("error = %v, want failure on delete VLAN 20", res.Err)
	}
	if res.Changed() || res.Saved {
		t.Errorf("result = %+v, want no recorded changes", res)
	}
	if a.Saves() != 0 {
		t.Error("failed device must not be saved")
	}
}

func TestDesiredName(t *testing.T) {
	d := Desired{VLANs: map[vlan.ID]inventory.VLAN{10: {ID: 10, Name: "eng"}, 11: {ID: 11}}}
	tests := []struct {
		id   vlan.ID
		want string
	}{
		{10, "eng"},
		{11, "VLAN0011"},
		{300, "VLAN0300"},
	}
	for _, tt := range tests {
		if got := d.name(tt.id); got != tt.want {
			t.Errorf("name(%d) = %q, want %q", tt.id, got, tt.want)
		}
	}
}

type fakeRecorder struct {
	mu     sync.Mutex
	events []*audit.Event
}

func (r *fakeRecorder) Log(ev *audit.Event) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, ev)
	return nil
}

type fakeLocker struct {
	mu       sync.Mutex
	held     map[string]string
	acquired []string
	released []string
}

func (l *fakeLocker) Acquire(_ context.Context, device, holder string, _ time.Duration) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.acquired = append(l.acquired, device)
	if h, ok := l.held[device]; ok && h != holder {
		return util.ErrDeviceLocked
	}
	l.held[device] = holder
	return nil
}

func (l *fakeLocker) Release(_ context.Context, device, holder string) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.held[device] != holder {
		return errors.New("not holder")
	}
	delete(l.held, device)
	l.released = append(l.released, device)
	return nil
}
