package main

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/newtron-network/vtpsync/pkg/cli"
	"github.com/newtron-network/vtpsync/pkg/inventory"
	"github.com/newtron-network/vtpsync/pkg/lock"
	"github.com/newtron-network/vtpsync/pkg/reconcile"
	"github.com/newtron-network/vtpsync/pkg/topology"
	"github.com/newtron-network/vtpsync/pkg/util"
	"github.com/newtron-network/vtpsync/pkg/vlan"
)

var (
	runParallelism int
	runRenamePorts bool
	runLockTTL     time.Duration
	minimizeByVLAN bool
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run one reconciliation pass over the fleet",
	Long: `Run one reconciliation pass over every device in the minimized VLAN map.

For each deployable device the pass renames, deletes and creates VLANs to
match the inventory, then aligns trunk membership on every linked port with
the VLANs both ends must carry. Changed devices are saved.

Without -x the pass only reports what it would change.

Examples:
  vtpsync run
  vtpsync run -x -p 8
  vtpsync run -x --rename-ports`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runPass(!executeMode)
	},
}

var planCmd = &cobra.Command{
	Use:   "plan",
	Short: "Preview a reconciliation pass (same as run without -x)",
	RunE: func(cmd *cobra.Command, args []string) error {
		return runPass(true)
	},
}

var minimizeCmd = &cobra.Command{
	Use:   "minimize",
	Short: "Print the minimized device to VLAN map",
	Long: `Print the VLANs each device must carry: for every declared VLAN, the
devices that require it plus every device on a redundant path between them.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		inv, err := loadInventory()
		if err != nil {
			return err
		}
		byVLAN := inv.Graph().VLANMap(inv.Requirements())

		if minimizeByVLAN {
			if jsonOutput {
				return printJSON(byVLAN)
			}
			t := cli.NewTable("VLAN", "NAME", "DEVICES")
			for _, id := range sortedVLANs(byVLAN) {
				t.Row(id.String(), inv.VLANs[id].Name, cli.Dash(strings.Join(byVLAN[id], ",")))
			}
			t.Flush()
			return nil
		}

		byDevice := topology.Invert(byVLAN)
		if jsonOutput {
			out := make(map[string][]vlan.ID, len(byDevice))
			for name, set := range byDevice {
				out[name] = set.Sorted()
			}
			return printJSON(out)
		}
		t := cli.NewTable("DEVICE", "VLANS", "REQUIRED")
		for _, name := range inv.HostNames() {
			set, ok := byDevice[name]
			if !ok {
				continue
			}
			t.Row(name, set.String(), cli.Dash(inv.Hosts[name].Required.String()))
		}
		t.Flush()
		return nil
	},
}

func init() {
	for _, cmd := range []*cobra.Command{runCmd, planCmd} {
		cmd.Flags().IntVarP(&runParallelism, "parallel", "p", 0, "Devices reconciled at once (default from settings)")
		cmd.Flags().BoolVar(&runRenamePorts, "rename-ports", false, "Set linked port aliases to the link port name")
	}
	runCmd.Flags().DurationVar(&runLockTTL, "lock-ttl", reconcile.DefaultLockTTL, "Device lock lifetime when a Redis lock server is set")
	minimizeCmd.Flags().BoolVar(&minimizeByVLAN, "by-vlan", false, "Group by VLAN instead of device")
}

func runPass(dryRun bool) error {
	inv, err := loadInventory()
	if err != nil {
		return err
	}
	ctx, cancel := commandContext()
	defer cancel()

	policy := reconcile.Policy{
		RemoveVLAN:     reconcile.KeepVLANs(inv.Reserved),
		RemovePortVLAN: reconcile.KeepPortVLANs(inv.Reserved),
	}
	if runRenamePorts {
		policy.RenamePort = func(reconcile.PortView) bool { return true }
	}

	parallelism := runParallelism
	if parallelism == 0 {
		parallelism = userSettings.GetParallelism()
	}

	cfg := reconcile.Config{
		DryRun:      dryRun,
		Parallelism: parallelism,
		Connect:     fleetConnector(inv),
		Policy:      policy,
		LockTTL:     runLockTTL,
		User:        currentUser(),
	}

	if userSettings.Redis != "" && !dryRun {
		locker, err := lock.NewRedisLocker(ctx, userSettings.Redis, 0)
		if err != nil {
			return fmt.Errorf("connecting to lock server: %w", err)
		}
		defer locker.Close()
		cfg.Locker = locker
	}

	if l, err := openAudit(); err != nil {
		util.Warnf("Could not open audit log: %v", err)
	} else {
		defer l.Close()
		cfg.Recorder = l
	}

	report := reconcile.New(cfg).Run(ctx, reconcile.Plan(inv), inv.Hosts)

	if jsonOutput {
		if err := printJSON(newReportJSON(report)); err != nil {
			return err
		}
	} else {
		printReport(report)
	}

	if failed := report.Failed(); len(failed) > 0 {
		return fmt.Errorf("%d of %d devices failed", len(failed), len(report.Results))
	}
	return nil
}

// fleetConnector dials each host with its own community and persist method.
func fleetConnector(inv *inventory.Inventory) reconcile.Connector {
	return func(ctx context.Context, h *inventory.Host) (reconcile.Device, error) {
		return reconcile.DialSwitch(snmpConfig(inv, h).Dialer(), switchOptions(inv, h))(ctx, h)
	}
}

type resultJSON struct {
	Device  string   `json:"device"`
	Changes []string `json:"changes,omitempty"`
	Saved   bool     `json:"saved"`
	Skipped string   `json:"skipped,omitempty"`
	Error   string   `json:"error,omitempty"`
}

type reportJSON struct {
	DryRun  bool         `json:"dry_run"`
	Summary string       `json:"summary"`
	Results []resultJSON `json:"results"`
}

func newReportJSON(r *reconcile.Report) reportJSON {
	out := reportJSON{DryRun: r.DryRun, Summary: r.Summary()}
	for _, res := range r.Results {
		rj := resultJSON{
			Device:  res.Device,
			Changes: res.Rendered(),
			Saved:   res.Saved,
			Skipped: res.Skipped,
		}
		if res.Err != nil {
			rj.Error = res.Err.Error()
		}
		out.Results = append(out.Results, rj)
	}
	return out
}

func printReport(r *reconcile.Report) {
	t := cli.NewTable("DEVICE", "STATUS", "CHANGES", "DETAIL")
	for _, res := range r.Results {
		detail := res.Skipped
		switch {
		case res.Err != nil:
			detail = res.Err.Error()
		case res.Saved:
			detail = "saved"
		}
		t.Row(res.Device, cli.Status(res.Failed(), res.Changed(), res.Skipped),
			fmt.Sprintf("%d", len(res.Changes)), cli.Dash(detail))
	}
	t.Flush()

	for _, res := range r.Changed() {
		fmt.Printf("\n%s\n", bold(res.Device))
		for _, line := range res.Rendered() {
			fmt.Printf("  %s\n", line)
		}
	}

	fmt.Printf("\n%s\n", r.Summary())
	if r.DryRun {
		fmt.Println(yellow("DRY-RUN: No changes applied. Use -x to execute."))
	}
}

func sortedVLANs(m map[vlan.ID][]string) []vlan.ID {
	set := vlan.NewSet()
	for id := range m {
		set.Add(id)
	}
	return set.Sorted()
}
