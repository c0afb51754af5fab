package cisco

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/newtron-network/vtpsync/internal/testutil"
	"github.com/newtron-network/vtpsync/pkg/util"
	"github.com/newtron-network/vtpsync/pkg/vlan"
)

// newTestSwitch returns a switch over an agent with a trunk on ifIndex 1
// carrying VLANs 1 and 10, and an access port on ifIndex 2 in VLAN 20.
func newTestSwitch(t *testing.T) (*Switch, *testutil.Agent) {
	t.Helper()
	a := testutil.NewAgent("sw1")
	a.AddPort(1, "Gi1/0/1")
	a.AddPort(2, "Gi1/0/2")
	a.AddVLAN(10, "eng")
	a.AddVLAN(20, "ops")
	a.SetTrunk(1, 1, 10)
	a.SetAccess(2, 20)
	sw := New("sw1", a, Options{
		PollInterval: time.Millisecond,
		CopyIndex:    func() int { return 42 },
	})
	return sw, a
}

func TestNewDefaults(t *testing.T) {
	sw := New("sw1", testutil.NewAgent("sw1"), Options{})
	if sw.Domain() != 1 || sw.owner != DefaultOwner || sw.maxPolls != DefaultMaxPolls || sw.poll != DefaultPollInterval {
		t.Errorf("unexpected defaults: domain=%d owner=%q polls=%d interval=%v", sw.Domain(), sw.owner, sw.maxPolls, sw.poll)
	}
	for i := 0; i < 100; i++ {
		if idx := sw.copyIndex(); idx < 1 {
			t.Fatalf("copy index %d out of range", idx)
		}
	}
}

func TestTrunkStatus(t *testing.T) {
	ctx := context.Background()
	sw, a := newTestSwitch(t)

	tests := []struct {
		name  string
		setup func()
		port  PortRef
		want  bool
	}{
		{"operational trunk", func() {}, PortIndex(1), true},
		{"access port", func() {}, PortIndex(2), false},
		{"unknown port", func() {}, PortIndex(99), false},
		{"admin down", func() {
			if err := sw.Disable(ctx, PortIndex(1)); err != nil {
				t.Fatal(err)
			}
		}, PortIndex(1), false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tt.setup()
			got, err := sw.TrunkStatus(ctx, tt.port)
			if err != nil {
				t.Fatalf("TrunkStatus() error = %v", err)
			}
			if got != tt.want {
				t.Errorf("TrunkStatus() = %v, want %v", got, tt.want)
			}
		})
	}

	if a.AdminStatus(1) != ifAdminDown {
		t.Errorf("agent admin status = %d, want down", a.AdminStatus(1))
	}
}

func TestPorts(t *testing.T) {
	ctx := context.Background()
	sw, _ := newTestSwitch(t)

	ports, err := sw.Ports(ctx)
	if err != nil {
		t.Fatalf("Ports() error = %v", err)
	}
	if len(ports) != 2 || ports[0].Name != "Gi1/0/1" || ports[1].Index != 2 {
		t.Errorf("Ports() = %v", ports)
	}

	base, err := sw.BasePorts(ctx)
	if err != nil || len(base) != 2 {
		t.Errorf("BasePorts() = %v, %v", base, err)
	}

	p, err := sw.PortIndex(ctx, "Gi1/0/2")
	if err != nil {
		t.Fatalf("PortIndex() error = %v", err)
	}
	if p.Index != 2 {
		t.Errorf("PortIndex() = %d, want 2", p.Index)
	}

	if _, err := sw.PortIndex(ctx, "Gi9/9/9"); !errors.Is(err, util.ErrNotFound) {
		t.Errorf("PortIndex(unknown) error = %v, want ErrNotFound", err)
	}
}

func TestCounters(t *testing.T) {
	ctx := context.Background()
	sw, a := newTestSwitch(t)
	a.SetCounters(1, 1000, 2000)

	in, out, err := sw.Counters(ctx, PortIndex(1))
	if err != nil {
		t.Fatalf("Counters() error = %v", err)
	}
	if in != 1000 || out != 2000 {
		t.Errorf("Counters() = %d, %d", in, out)
	}
	if n, _ := sw.OctetsIn(ctx, PortIndex(1)); n != 1000 {
		t.Errorf("OctetsIn() = %d", n)
	}
	if n, _ := sw.OctetsOut(ctx, PortIndex(1)); n != 2000 {
		t.Errorf("OctetsOut() = %d", n)
	}
}

func TestVLANs(t *testing.T) {
	ctx := context.Background()
	sw, _ := newTestSwitch(t)

	vlans, err := sw.VLANs(ctx)
	if err != nil {
		t.Fatalf("VLANs() error = %v", err)
	}
	want := []VLAN{{1, "default"}, {10, "eng"}, {20, "ops"}}
	if len(vlans) != len(want) {
		t.Fatalf("VLANs() = %v, want %v", vlans, want)
	}
	for i := range want {
		if vlans[i] != want[i] {
			t.Errorf("VLANs()[%d] = %v, want %v", i, vlans[i], want[i])
		}
	}

	name, err := sw.VLANName(ctx, vlan.ID(10))
	if err != nil || name != "eng" {
		t.Errorf("VLANName(10) = %q, %v", name, err)
	}
	if _, err := sw.VLANName(ctx, vlan.ID(99)); !errors.Is(err, util.ErrNotFound) {
		t.Errorf("VLANName(99) error = %v, want ErrNotFound", err)
	}
	if _, err := sw.VLANName(ctx, vlan.ID(0)); !errors.Is(err, util.ErrInvalidVLAN) {
		t.Errorf("VLANName(0) error = %v, want ErrInvalidVLAN", err)
	}
}

func TestTrunkVLANs(t *testing.T) {
	ctx := context.Background()
	sw, a := newTestSwitch(t)
	a.AddPort(3, "Gi1/0/3")
	a.SetTrunk(3, 0, 5, 1024, 4095)

	got, err := sw.TrunkVLANs(ctx, PortIndex(3))
	if err != nil {
		t.Fatalf("TrunkVLANs() error = %v", err)
	}
	if !got.Equal(vlan.NewSet(5, 1024, 4095)) {
		t.Errorf("TrunkVLANs() = %v, want 5,1024,4095", got)
	}

	empty, err := sw.TrunkVLANs(ctx, PortIndex(2))
	if err != nil {
		t.Fatalf("TrunkVLANs(access) error = %v", err)
	}
	if len(empty) != 0 {
		t.Errorf("TrunkVLANs(access) = %v, want empty", empty)
	}
}

func TestAccessVLAN(t *testing.T) {
	ctx := context.Background()
	sw, _ := newTestSwitch(t)

	id, ok, err := sw.AccessVLAN(ctx, PortIndex(2))
	if err != nil || !ok || id != 20 {
		t.Errorf("AccessVLAN(access) = %d, %v, %v", id, ok, err)
	}
	_, ok, err = sw.AccessVLAN(ctx, PortIndex(1))
	if err != nil || ok {
		t.Errorf("AccessVLAN(trunk) ok = %v, err = %v; want unset", ok, err)
	}
}

func TestTransportFailureIsConnectivity(t *testing.T) {
	ctx := context.Background()
	sw, a := newTestSwitch(t)
	a.Fail = func(string, []string) error { return errors.New("request timeout") }

	_, err := sw.VLANs(ctx)
	if !util.IsConnectivity(err) {
		t.Errorf("VLANs() error = %v, want connectivity-class", err)
	}
	_, err = sw.TrunkStatus(ctx, PortIndex(1))
	if !util.IsConnectivity(err) {
		t.Errorf("TrunkStatus() error = %v, want connectivity-class", err)
	}
}
