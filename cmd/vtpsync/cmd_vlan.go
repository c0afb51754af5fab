package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/newtron-network/vtpsync/pkg/audit"
	"github.com/newtron-network/vtpsync/pkg/cisco"
	"github.com/newtron-network/vtpsync/pkg/cli"
)

var vlanCmd = &cobra.Command{
	Use:   "vlan",
	Short: "Manage the VLAN directory of a device",
	Long: `Manage the VLAN directory of the device selected with -d.

Every change runs in its own VTP edit transaction: the edit buffer is
claimed, the change is staged and checked, then applied and released.

Examples:
  vtpsync -d sw1 vlan list
  vtpsync -d sw1 vlan create 10 eng -x
  vtpsync -d sw1 vlan rename 10 engineering -x
  vtpsync -d sw1 vlan delete 10 -xs`,
}

var vlanListCmd = &cobra.Command{
	Use:   "list",
	Short: "List live VLANs",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, cancel := commandContext()
		defer cancel()
		sw, err := openSwitch(ctx)
		if err != nil {
			return err
		}
		defer sw.Close()

		vlans, err := sw.VLANs(ctx)
		if err != nil {
			return err
		}
		if jsonOutput {
			return printJSON(vlans)
		}
		if len(vlans) == 0 {
			fmt.Println("No VLANs found")
			return nil
		}
		t := cli.NewTable("VLAN", "NAME")
		for _, v := range vlans {
			t.Row(v.ID.String(), v.Name)
		}
		t.Flush()
		return nil
	},
}

var vlanCreateCmd = &cobra.Command{
	Use:   "create <id> [name]",
	Short: "Create a VLAN (name defaults to the inventory name)",
	Args:  cobra.RangeArgs(1, 2),
	RunE: func(cmd *cobra.Command, args []string) error {
		id, err := parseVLAN(args[0])
		if err != nil {
			return err
		}
		name := fmt.Sprintf("VLAN%04d", int(id))
		if len(args) == 2 {
			name = args[1]
		} else if inv, err := loadInventory(); err == nil {
			if v, ok := inv.VLANs[id]; ok && v.Name != "" {
				name = v.Name
			}
		}
		change := fmt.Sprintf("create VLAN %d (%s)", id, name)
		return withSwitchWrite(audit.OpVLAN, change, func(ctx context.Context, sw *cisco.Switch) error {
			return sw.CreateVLAN(ctx, id, name)
		})
	},
}

var vlanRenameCmd = &cobra.Command{
	Use:   "rename <id> <name>",
	Short: "Rename a VLAN",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		id, err := parseVLAN(args[0])
		if err != nil {
			return err
		}
		change := fmt.Sprintf("rename VLAN %d to %q", id, args[1])
		return withSwitchWrite(audit.OpVLAN, change, func(ctx context.Context, sw *cisco.Switch) error {
			return sw.RenameVLAN(ctx, id, args[1])
		})
	},
}

var vlanDeleteCmd = &cobra.Command{
	Use:   "delete <id>",
	Short: "Delete a VLAN",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		id, err := parseVLAN(args[0])
		if err != nil {
			return err
		}
		change := fmt.Sprintf("delete VLAN %d", id)
		return withSwitchWrite(audit.OpVLAN, change, func(ctx context.Context, sw *cisco.Switch) error {
			return sw.DeleteVLAN(ctx, id)
		})
	},
}

func init() {
	vlanCmd.AddCommand(vlanListCmd, vlanCreateCmd, vlanRenameCmd, vlanDeleteCmd)
}
