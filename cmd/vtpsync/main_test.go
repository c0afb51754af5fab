package main

import (
	"errors"
	"testing"

	"github.com/newtron-network/vtpsync/pkg/cisco"
	"github.com/newtron-network/vtpsync/pkg/inventory"
	"github.com/newtron-network/vtpsync/pkg/reconcile"
	"github.com/newtron-network/vtpsync/pkg/settings"
	"github.com/newtron-network/vtpsync/pkg/sshexec"
	"github.com/newtron-network/vtpsync/pkg/util"
	"github.com/newtron-network/vtpsync/pkg/vlan"
)

func TestParseVLAN(t *testing.T) {
	tests := []struct {
		arg     string
		want    vlan.ID
		wantErr bool
	}{
		{"10", 10, false},
		{"4095", 4095, false},
		{"0", 0, true},
		{"4096", 0, true},
		{"ten", 0, true},
	}
	for _, tt := range tests {
		t.Run(tt.arg, func(t *testing.T) {
			got, err := parseVLAN(tt.arg)
			if (err != nil) != tt.wantErr {
				t.Fatalf("parseVLAN() error = %v, wantErr %v", err, tt.wantErr)
			}
			if got != tt.want {
				t.Errorf("parseVLAN() = %d, want %d", got, tt.want)
			}
		})
	}

	if _, err := parseVLAN("5000"); !errors.Is(err, util.ErrInvalidVLAN) {
		t.Errorf("out-of-range error = %v, want ErrInvalidVLAN", err)
	}
}

func TestParseVLANList(t *testing.T) {
	refs, err := parseVLANList("20,10-12")
	if err != nil {
		t.Fatalf("parseVLANList() error = %v", err)
	}
	want := []vlan.ID{10, 11, 12, 20}
	if len(refs) != len(want) {
		t.Fatalf("parseVLANList() = %v", refs)
	}
	for i, r := range refs {
		if r.VLANID() != want[i] {
			t.Errorf("refs[%d] = %d, want %d", i, r.VLANID(), want[i])
		}
	}

	if _, err := parseVLANList("1-5000"); err == nil {
		t.Error("parseVLANList() should reject ids above 4095")
	}
}

func TestSNMPConfig(t *testing.T) {
	inv := &inventory.Inventory{Community: "fleet"}
	h := &inventory.Host{Name: "sw1", Address: "10.0.0.1"}

	userSettings = &settings.Settings{}
	community = "flag"
	if got := snmpConfig(inv, h); got.Community != "fleet" || got.V3 != nil {
		t.Errorf("snmpConfig() = %+v, want inventory community", got)
	}
	h.Community = "host"
	if got := snmpConfig(inv, h); got.Community != "host" {
		t.Errorf("snmpConfig() community = %q, want host override", got.Community)
	}

	userSettings = &settings.Settings{SNMPVersion: "3", SNMPUser: "ops", SNMPAuthPass: "authpass"}
	got := snmpConfig(inv, h)
	if got.V3 == nil || got.V3.User != "ops" || got.V3.AuthProtocol != "SHA" || got.V3.PrivProtocol != "" {
		t.Errorf("snmpConfig() v3 = %+v", got.V3)
	}
}

func TestSwitchOptions(t *testing.T) {
	inv := &inventory.Inventory{Domain: 2}
	h := &inventory.Host{Name: "sw1", Address: "10.0.0.1"}

	userSettings = &settings.Settings{Owner: "netops"}
	opts := switchOptions(inv, h)
	if opts.Domain != 2 || opts.Owner != "netops" || opts.Saver != nil {
		t.Errorf("switchOptions() = %+v", opts)
	}

	userSettings = &settings.Settings{Persist: settings.PersistSSH, SSHUser: "admin", SSHPassword: "pw"}
	opts = switchOptions(inv, h)
	saver, ok := opts.Saver.(cisco.SSHSaver)
	if !ok {
		t.Fatalf("Saver = %T, want cisco.SSHSaver", opts.Saver)
	}
	runner, ok := saver.Runner.(sshexec.Runner)
	if !ok || runner.Host != "10.0.0.1" || runner.Config.User != "admin" || runner.Config.Password != "pw" {
		t.Errorf("Runner = %+v", saver.Runner)
	}
}

func TestNewReportJSON(t *testing.T) {
	r := &reconcile.Report{DryRun: true, Results: []*reconcile.Result{
		{Device: "sw1", Changes: []reconcile.Change{{Kind: reconcile.DeleteVLAN, VLAN: 99}}},
		{Device: "sw2", Err: errors.New("timeout")},
		{Device: "sw3", Skipped: "not deployable"},
	}}
	got := newReportJSON(r)
	if !got.DryRun || len(got.Results) != 3 {
		t.Fatalf("newReportJSON() = %+v", got)
	}
	if got.Results[0].Changes[0] != "delete VLAN 99" {
		t.Errorf("changes = %v", got.Results[0].Changes)
	}
	if got.Results[1].Error != "timeout" || got.Results[2].Skipped != "not deployable" {
		t.Errorf("results = %+v", got.Results)
	}
	if got.Summary != r.Summary() {
		t.Errorf("summary = %q", got.Summary)
	}
}
