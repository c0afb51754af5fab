package reconcile

import (
	"fmt"
	"strings"

	"github.com/newtron-network/vtpsync/pkg/vlan"
)

// ChangeKind names a corrective operation.
type ChangeKind string

const (
	CreateVLAN       ChangeKind = "create-vlan"
	RenameVLAN       ChangeKind = "rename-vlan"
	DeleteVLAN       ChangeKind = "delete-vlan"
	AddTrunkVLANs    ChangeKind = "add-trunk-vlans"
	RemoveTrunkVLANs ChangeKind = "remove-trunk-vlans"
	SetPortAlias     ChangeKind = "set-port-alias"
)

// Change is one corrective operation, applied or (in dry-run) planned.
type Change struct {
	Kind  ChangeKind `json:"kind"`
	VLAN  vlan.ID    `json:"vlan,omitempty"`
	Name  string     `json:"name,omitempty"`
	From  string     `json:"from,omitempty"`
	Port  string     `json:"port,omitempty"`
	VLANs []vlan.ID  `json:"vlans,omitempty"`
}

func (c Change) String() string {
	switch c.Kind {
	case CreateVLAN:
		return fmt.Sprintf("create VLAN %d (%s)", c.VLAN, c.Name)
	case RenameVLAN:
		return fmt.Sprintf("rename VLAN %d from %q to %q", c.VLAN, c.From, c.Name)
	case DeleteVLAN:
		return fmt.Sprintf("delete VLAN %d", c.VLAN)
	case AddTrunkVLANs:
		return fmt.Sprintf("add VLANs %s to trunk %s", vlan.NewSet(c.VLANs...), c.Port)
	case RemoveTrunkVLANs:
		return fmt.Sprintf("remove VLANs %s from trunk %s", vlan.NewSet(c.VLANs...), c.Port)
	case SetPortAlias:
		return fmt.Sprintf("set alias of %s from %q to %q", c.Port, c.From, c.Name)
	}
	return string(c.Kind)
}

// Result is the outcome for one device.
type Result struct {
	Device  string   `json:"device"`
	Changes []Change `json:"changes,omitempty"`
	Saved   bool     `json:"saved"`
	Skipped string   `json:"skipped,omitempty"`
	Err     error    `json:"-"`
}

// Changed reports whether the device needed any change.
func (r *Result) Changed() bool { return len(r.Changes) > 0 }

// Failed reports whether reconciling the device stopped on an error.
func (r *Result) Failed() bool { return r.Err != nil }

// Rendered returns the changes as strings.
func (r *Result) Rendered() []string {
	out := make([]string, len(r.Changes))
	for i, c := range r.Changes {
		out[i] = c.String()
	}
	return out
}

// Report collects the results of one pass, ordered by device name.
type Report struct {
	DryRun  bool      `json:"dry_run"`
	Results []*Result `json:"results"`
}

// Changed returns results with at least one change.
func (r *Report) Changed() []*Result {
	return r.filter((*Result).Changed)
}

// Failed returns results that ended in an error.
func (r *Report) Failed() []*Result {
	return r.filter((*Result).Failed)
}

// Skipped returns results the engine did not touch.
func (r *Report) Skipped() []*Result {
	return r.filter(func(res *Result) bool { return res.Skipped != "" })
}

func (r *Report) filter(keep func(*Result) bool) []*Result {
	var out []*Result
	for _, res := range r.Results {
		if keep(res) {
			out = append(out, res)
		}
	}
	return out
}

// Summary is a one-line account of the pass.
func (r *Report) Summary() string {
	changes := 0
	for _, res := range r.Results {
		changes += len(res.Changes)
	}
	var b strings.Builder
	fmt.Fprintf(&b, "%d devices, %d changed, %d failed, %d skipped, %d changes",
		len(r.Results), len(r.Changed()), len(r.Failed()), len(r.Skipped()), changes)
	if r.DryRun {
		b.WriteString(" (dry run)")
	}
	return b.String()
}
