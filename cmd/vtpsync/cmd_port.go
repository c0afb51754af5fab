package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/newtron-network/vtpsync/pkg/audit"
	"github.com/newtron-network/vtpsync/pkg/cisco"
	"github.com/newtron-network/vtpsync/pkg/cli"
	"github.com/newtron-network/vtpsync/pkg/vlan"
)

var portCmd = &cobra.Command{
	Use:   "port",
	Short: "Inspect and configure ports of a device",
	Long: `Inspect and configure ports of the device selected with -d.

Ports are named by ifName (Gi0/1) or by numeric ifIndex.

Examples:
  vtpsync -d sw1 port list
  vtpsync -d sw1 port show Gi0/1
  vtpsync -d sw1 port trunk Gi0/1 -x
  vtpsync -d sw1 port add-vlans Gi0/1 10-12,20 -x
  vtpsync -d sw1 port set-access-vlan Gi0/5 30 -xs`,
}

var portListCmd = &cobra.Command{
	Use:   "list",
	Short: "List ports",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, cancel := commandContext()
		defer cancel()
		sw, err := openSwitch(ctx)
		if err != nil {
			return err
		}
		defer sw.Close()

		ports, err := sw.Ports(ctx)
		if err != nil {
			return err
		}
		if jsonOutput {
			return printJSON(ports)
		}
		t := cli.NewTable("INDEX", "NAME")
		for _, p := range ports {
			t.Row(fmt.Sprintf("%d", p.Index), p.Name)
		}
		t.Flush()
		return nil
	},
}

// portDetail is the JSON form of port show.
type portDetail struct {
	Index      int       `json:"index"`
	Name       string    `json:"name"`
	Alias      string    `json:"alias"`
	AdminUp    bool      `json:"admin_up"`
	TrunkMode  string    `json:"trunk_mode"`
	Trunking   bool      `json:"trunking"`
	TrunkVLANs []vlan.ID `json:"trunk_vlans,omitempty"`
	AccessVLAN *vlan.ID  `json:"access_vlan,omitempty"`
	OctetsIn   uint64    `json:"octets_in"`
	OctetsOut  uint64    `json:"octets_out"`
}

var portShowCmd = &cobra.Command{
	Use:   "show <port>",
	Short: "Show port state",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, cancel := commandContext()
		defer cancel()
		sw, err := openSwitch(ctx)
		if err != nil {
			return err
		}
		defer sw.Close()

		p, err := resolvePort(ctx, sw, args[0])
		if err != nil {
			return err
		}
		d, err := readPort(ctx, sw, p)
		if err != nil {
			return err
		}
		if jsonOutput {
			return printJSON(d)
		}

		fmt.Printf("Port: %s (ifIndex %d)\n\n", bold(d.Name), d.Index)
		t := cli.NewTable("PROPERTY", "VALUE")
		t.Row("alias", cli.Dash(d.Alias))
		t.Row("admin", cli.OnOff(d.AdminUp))
		t.Row("trunk mode", d.TrunkMode)
		t.Row("trunking", cli.OnOff(d.Trunking))
		if d.Trunking {
			t.Row("trunk vlans", cli.Dash(vlan.NewSet(d.TrunkVLANs...).String()))
		}
		if d.AccessVLAN != nil {
			t.Row("access vlan", d.AccessVLAN.String())
		}
		t.Row("octets in", fmt.Sprintf("%d", d.OctetsIn))
		t.Row("octets out", fmt.Sprintf("%d", d.OctetsOut))
		t.Flush()
		return nil
	},
}

func readPort(ctx context.Context, sw *cisco.Switch, p cisco.Port) (*portDetail, error) {
	d := &portDetail{Index: p.Index, Name: p.Name}
	var err error
	if d.Alias, err = sw.PortAlias(ctx, p); err != nil {
		return nil, err
	}
	if d.AdminUp, err = sw.AdminStatus(ctx, p); err != nil {
		return nil, err
	}
	mode, err := sw.TrunkMode(ctx, p)
	if err != nil {
		return nil, err
	}
	d.TrunkMode = mode.String()
	if d.Trunking, err = sw.TrunkStatus(ctx, p); err != nil {
		return nil, err
	}
	if d.Trunking {
		set, err := sw.TrunkVLANs(ctx, p)
		if err != nil {
			return nil, err
		}
		d.TrunkVLANs = set.Sorted()
	}
	id, ok, err := sw.AccessVLAN(ctx, p)
	if err != nil {
		return nil, err
	}
	if ok {
		d.AccessVLAN = &id
	}
	if d.OctetsIn, d.OctetsOut, err = sw.Counters(ctx, p); err != nil {
		return nil, err
	}
	return d, nil
}

// portWrite resolves the port argument inside the write callback.
func portWrite(arg, change string, fn func(ctx context.Context, sw *cisco.Switch, p cisco.Port) error) error {
	return withSwitchWrite(audit.OpPort, change, func(ctx context.Context, sw *cisco.Switch) error {
		p, err := resolvePort(ctx, sw, arg)
		if err != nil {
			return err
		}
		return fn(ctx, sw, p)
	})
}

var portSetAliasCmd = &cobra.Command{
	Use:   "set-alias <port> <alias>",
	Short: "Set the port description",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		change := fmt.Sprintf("set alias of %s to %q", args[0], args[1])
		return portWrite(args[0], change, func(ctx context.Context, sw *cisco.Switch, p cisco.Port) error {
			return sw.SetPortAlias(ctx, p, args[1])
		})
	},
}

var portEnableCmd = &cobra.Command{
	Use:   "enable <port>",
	Short: "Set the port administratively up",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return portWrite(args[0], "enable "+args[0], func(ctx context.Context, sw *cisco.Switch, p cisco.Port) error {
			return sw.Enable(ctx, p)
		})
	},
}

var portDisableCmd = &cobra.Command{
	Use:   "disable <port>",
	Short: "Set the port administratively down",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return portWrite(args[0], "disable "+args[0], func(ctx context.Context, sw *cisco.Switch, p cisco.Port) error {
			return sw.Disable(ctx, p)
		})
	},
}

var portTrunkCmd = &cobra.Command{
	Use:   "trunk <port>",
	Short: "Force the port to trunk (on)",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return portWrite(args[0], "make "+args[0]+" a trunk", func(ctx context.Context, sw *cisco.Switch, p cisco.Port) error {
			return sw.MakeTrunk(ctx, p)
		})
	},
}

var portAccessCmd = &cobra.Command{
	Use:   "access <port>",
	Short: "Stop the port from trunking (off)",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return portWrite(args[0], "make "+args[0]+" an access port", func(ctx context.Context, sw *cisco.Switch, p cisco.Port) error {
			return sw.MakeAccess(ctx, p)
		})
	},
}

var portAddVLANsCmd = &cobra.Command{
	Use:   "add-vlans <port> <vlans>",
	Short: "Allow VLANs on a trunk (range notation)",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		refs, err := parseVLANList(args[1])
		if err != nil {
			return err
		}
		change := fmt.Sprintf("add VLANs %s to trunk %s", args[1], args[0])
		return portWrite(args[0], change, func(ctx context.Context, sw *cisco.Switch, p cisco.Port) error {
			return sw.ActivateVLANs(ctx, p, refs...)
		})
	},
}

var portRemoveVLANsCmd = &cobra.Command{
	Use:   "remove-vlans <port> <vlans>",
	Short: "Remove VLANs from a trunk (range notation)",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		refs, err := parseVLANList(args[1])
		if err != nil {
			return err
		}
		change := fmt.Sprintf("remove VLANs %s from trunk %s", args[1], args[0])
		return portWrite(args[0], change, func(ctx context.Context, sw *cisco.Switch, p cisco.Port) error {
			return sw.DeactivateVLANs(ctx, p, refs...)
		})
	},
}

var portSetAccessVLANCmd = &cobra.Command{
	Use:   "set-access-vlan <port> <vlan>",
	Short: "Set the access VLAN of a port",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		id, err := parseVLAN(args[1])
		if err != nil {
			return err
		}
		change := fmt.Sprintf("set access VLAN of %s to %d", args[0], id)
		return portWrite(args[0], change, func(ctx context.Context, sw *cisco.Switch, p cisco.Port) error {
			return sw.SetAccessVLAN(ctx, p, id)
		})
	},
}

func init() {
	portCmd.AddCommand(
		portListCmd, portShowCmd, portSetAliasCmd, portEnableCmd, portDisableCmd,
		portTrunkCmd, portAccessCmd, portAddVLANsCmd, portRemoveVLANsCmd, portSetAccessVLANCmd,
	)
}
