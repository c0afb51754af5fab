// vtpsync - VLAN topology manager for Cisco switches
//
// vtpsync keeps the VLAN directory and trunk membership of a switch fleet in
// line with a declared inventory over SNMP. Each switch carries only the
// VLANs needed to keep every redundant path between the switches that
// require them.
//
// Context flags select the inventory and device; commands act on them:
//
//	vtpsync [-I inventory] [-d device] <command> [args] [-x]
//
// Write commands preview changes by default; -x executes them and -s saves
// the running config afterwards.
//
// Examples:
//
//	vtpsync run                                  # preview a reconciliation pass
//	vtpsync run -x -p 8                          # reconcile, 8 devices at a time
//	vtpsync minimize                             # device -> VLAN map
//	vtpsync -d sw1 vlan list                     # live VLAN directory
//	vtpsync -d sw1 vlan create 10 eng -x         # create a VLAN
//	vtpsync -d sw1 port add-vlans Gi0/1 10-12 -xs
//	vtpsync bitmap decode 0x00200000
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"strconv"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/newtron-network/vtpsync/pkg/audit"
	"github.com/newtron-network/vtpsync/pkg/cisco"
	"github.com/newtron-network/vtpsync/pkg/cli"
	"github.com/newtron-network/vtpsync/pkg/inventory"
	"github.com/newtron-network/vtpsync/pkg/settings"
	"github.com/newtron-network/vtpsync/pkg/snmp"
	"github.com/newtron-network/vtpsync/pkg/sshexec"
	"github.com/newtron-network/vtpsync/pkg/util"
	"github.com/newtron-network/vtpsync/pkg/version"
	"github.com/newtron-network/vtpsync/pkg/vlan"
)

var (
	// Global context flags
	inventoryPath string // -I, --inventory
	deviceName    string // -d, --device

	// Global option flags
	verbose      bool
	logJSON      bool
	askCommunity bool
	executeMode  bool
	saveMode     bool
	jsonOutput   bool

	// Global state
	userSettings *settings.Settings
	community    string
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:               "vtpsync",
	Short:             "VLAN topology manager for Cisco switches",
	SilenceUsage:      true,
	SilenceErrors:     true,
	CompletionOptions: cobra.CompletionOptions{HiddenDefaultCmd: true},
	Long: `vtpsync reconciles the VLAN directory and trunk membership of a switch
fleet with a declared inventory over SNMP.

Write commands preview changes by default. Use -x to execute.

  vtpsync [-I inventory] [-d device] <command> [args] [-x]`,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		util.ConfigureCLI(verbose, logJSON)

		if isSettingsOrHelp(cmd) {
			return nil
		}

		if saveMode && !executeMode {
			return fmt.Errorf("--save (-s) requires --execute (-x): use -xs to execute and save")
		}

		var err error
		userSettings, err = settings.Load()
		if err != nil {
			util.Warnf("Could not load settings: %v", err)
			userSettings = &settings.Settings{}
		}
		if inventoryPath == "" {
			inventoryPath = userSettings.Inventory
		}

		community = userSettings.Community
		if askCommunity {
			community, err = promptSecret("SNMP community: ")
			if err != nil {
				return fmt.Errorf("reading community: %w", err)
			}
		}
		return nil
	},
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&inventoryPath, "inventory", "I", "", "Inventory file")
	rootCmd.PersistentFlags().StringVarP(&deviceName, "device", "d", "", "Device name (object selector)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Verbose output")
	rootCmd.PersistentFlags().BoolVar(&logJSON, "log-json", false, "Log as JSON lines")
	rootCmd.PersistentFlags().BoolVar(&askCommunity, "ask-community", false, "Prompt for the SNMP community")

	for _, cmd := range []*cobra.Command{runCmd, vlanCmd, portCmd} {
		addWriteFlags(cmd)
	}
	for _, cmd := range []*cobra.Command{runCmd, planCmd, minimizeCmd, vlanCmd, portCmd, auditCmd} {
		addOutputFlags(cmd)
	}

	rootCmd.AddGroup(
		&cobra.Group{ID: "fleet", Title: "Fleet Operations:"},
		&cobra.Group{ID: "device", Title: "Device Operations:"},
		&cobra.Group{ID: "meta", Title: "Configuration & Meta:"},
	)
	for _, cmd := range []*cobra.Command{runCmd, planCmd, minimizeCmd} {
		cmd.GroupID = "fleet"
		rootCmd.AddCommand(cmd)
	}
	for _, cmd := range []*cobra.Command{vlanCmd, portCmd, saveCmd} {
		cmd.GroupID = "device"
		rootCmd.AddCommand(cmd)
	}
	for _, cmd := range []*cobra.Command{bitmapCmd, auditCmd, settingsCmd, versionCmd} {
		cmd.GroupID = "meta"
		rootCmd.AddCommand(cmd)
	}
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Run: func(cmd *cobra.Command, args []string) {
		if version.Version == "dev" {
			fmt.Println("vtpsync dev build (use 'make build' for version info)")
			return
		}
		fmt.Println(version.Info())
	},
}

// ============================================================================
// Context Helpers
// ============================================================================

// commandContext returns a context cancelled on interrupt.
func commandContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), os.Interrupt)
}

func loadInventory() (*inventory.Inventory, error) {
	if inventoryPath == "" {
		return nil, fmt.Errorf("inventory required: use -I <file> or 'vtpsync settings set inventory <file>'")
	}
	return inventory.Load(inventoryPath)
}

// requireHost resolves -d against the inventory.
func requireHost() (*inventory.Inventory, *inventory.Host, error) {
	if deviceName == "" {
		return nil, nil, fmt.Errorf("device required: use -d <device> flag")
	}
	inv, err := loadInventory()
	if err != nil {
		return nil, nil, err
	}
	h, err := inv.Host(deviceName)
	if err != nil {
		return nil, nil, err
	}
	if h.Address == "" {
		return nil, nil, util.NewPreconditionError("connect", h.Name, "management address", "none in "+inventoryPath)
	}
	return inv, h, nil
}

// snmpConfig builds the SNMP session parameters for one host.
func snmpConfig(inv *inventory.Inventory, h *inventory.Host) snmp.Config {
	cfg := snmp.Config{
		Version:   userSettings.SNMPVersion,
		Community: inv.CommunityFor(h, community),
	}
	if cfg.Version == "3" {
		v3 := &snmp.V3Config{User: userSettings.SNMPUser}
		if userSettings.SNMPAuthPass != "" {
			v3.AuthProtocol = "SHA"
			v3.AuthPassphrase = userSettings.SNMPAuthPass
		}
		if userSettings.SNMPPrivPass != "" {
			v3.PrivProtocol = "AES"
			v3.PrivPassphrase = userSettings.SNMPPrivPass
		}
		cfg.V3 = v3
	}
	return cfg
}

// switchOptions builds facade options for one host. The ssh persist method
// replaces the config copy MIB with "write memory" over SSH.
func switchOptions(inv *inventory.Inventory, h *inventory.Host) cisco.Options {
	opts := cisco.Options{Domain: inv.Domain, Owner: userSettings.Owner}
	if userSettings.GetPersist() == settings.PersistSSH {
		opts.Saver = cisco.SSHSaver{Runner: sshexec.Runner{
			Host: h.Address,
			Config: sshexec.Config{
				User:       userSettings.SSHUser,
				Password:   userSettings.SSHPassword,
				KnownHosts: userSettings.KnownHosts,
			},
		}}
	}
	return opts
}

// openSwitch connects to the -d device.
func openSwitch(ctx context.Context) (*cisco.Switch, error) {
	inv, h, err := requireHost()
	if err != nil {
		return nil, err
	}
	t, err := snmpConfig(inv, h).Dialer()(ctx, h.Address)
	if err != nil {
		return nil, err
	}
	return cisco.New(h.Name, t, switchOptions(inv, h)), nil
}

// resolvePort accepts an ifName or a numeric ifIndex.
func resolvePort(ctx context.Context, sw *cisco.Switch, arg string) (cisco.Port, error) {
	if n, err := strconv.Atoi(arg); err == nil {
		return cisco.Port{Index: n, Name: arg}, nil
	}
	return sw.PortIndex(ctx, arg)
}

// parseVLAN parses a single VLAN id argument.
func parseVLAN(arg string) (vlan.ID, error) {
	n, err := strconv.Atoi(arg)
	if err != nil {
		return 0, fmt.Errorf("invalid VLAN id %q", arg)
	}
	id := vlan.ID(n)
	if err := vlan.Validate(id); err != nil {
		return 0, err
	}
	return id, nil
}

// parseVLANList parses range notation into refs in ascending order.
func parseVLANList(arg string) ([]vlan.Ref, error) {
	set, err := vlan.ParseList(arg)
	if err != nil {
		return nil, err
	}
	ids := set.Sorted()
	refs := make([]vlan.Ref, len(ids))
	for i, id := range ids {
		refs[i] = id
	}
	return refs, nil
}

func promptSecret(prompt string) (string, error) {
	fd := int(os.Stdin.Fd())
	if !term.IsTerminal(fd) {
		return "", fmt.Errorf("stdin is not a terminal")
	}
	fmt.Fprint(os.Stderr, prompt)
	b, err := term.ReadPassword(fd)
	fmt.Fprintln(os.Stderr)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

func currentUser() string {
	if u := os.Getenv("USER"); u != "" {
		return u
	}
	return "unknown"
}

// ============================================================================
// Write Helpers
// ============================================================================

// withSwitchWrite previews change unless -x is set; otherwise it connects,
// applies fn, saves on -s, and records an audit event.
func withSwitchWrite(op, change string, fn func(ctx context.Context, sw *cisco.Switch) error) error {
	if _, _, err := requireHost(); err != nil {
		return err
	}
	if !executeMode {
		fmt.Printf("Would %s on %s\n", change, deviceName)
		printDryRunNotice()
		return nil
	}

	ctx, cancel := commandContext()
	defer cancel()
	sw, err := openSwitch(ctx)
	if err != nil {
		return err
	}
	defer sw.Close()

	start := time.Now()
	err = fn(ctx, sw)
	saved := false
	if err == nil && saveMode {
		if err = sw.SaveConfig(ctx); err == nil {
			saved = true
		}
	}
	recordEvent(audit.NewEvent(currentUser(), deviceName, op).
		WithChanges([]string{change}).
		WithSaved(saved).
		WithDuration(time.Since(start)).
		WithResult(err))
	if err != nil {
		return err
	}

	fmt.Println(green("Changes applied successfully."))
	if saved {
		fmt.Println(green("Configuration saved."))
	}
	return nil
}

// openAudit opens the audit log from settings.
func openAudit() (*audit.FileLogger, error) {
	return audit.NewFileLogger(userSettings.GetAuditLog(), audit.RotationConfig{
		MaxSize:    10 * 1024 * 1024,
		MaxBackups: 10,
	})
}

// recordEvent appends one event to the audit log. Failures only warn.
func recordEvent(event *audit.Event) {
	l, err := openAudit()
	if err != nil {
		util.Warnf("Could not open audit log: %v", err)
		return
	}
	defer l.Close()
	if err := l.Log(event); err != nil {
		util.Warnf("Could not write audit event: %v", err)
	}
}

// ============================================================================
// Output Helpers
// ============================================================================

func printDryRunNotice() {
	if !executeMode {
		fmt.Println("\n" + yellow("DRY-RUN: No changes applied. Use -x to execute."))
	}
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// isSettingsOrHelp checks whether cmd (or any ancestor) needs no settings.
func isSettingsOrHelp(cmd *cobra.Command) bool {
	for c := cmd; c != nil; c = c.Parent() {
		switch c.Name() {
		case "help", "version", "settings":
			return true
		}
	}
	return false
}

// addWriteFlags registers -x/--execute and -s/--save as local flags.
// For noun-group parent commands, these are PersistentFlags so subcommands inherit.
func addWriteFlags(cmd *cobra.Command) {
	flags := cmd.Flags()
	if cmd.HasSubCommands() {
		flags = cmd.PersistentFlags()
	}
	flags.BoolVarP(&executeMode, "execute", "x", false, "Execute changes (default is dry-run)")
	flags.BoolVarP(&saveMode, "save", "s", false, "Save config after changes (requires -x)")
}

// addOutputFlags registers --json as a local flag.
func addOutputFlags(cmd *cobra.Command) {
	flags := cmd.Flags()
	if cmd.HasSubCommands() {
		flags = cmd.PersistentFlags()
	}
	flags.BoolVar(&jsonOutput, "json", false, "JSON output")
}

// Color helpers delegate to pkg/cli
func green(s string) string  { return cli.Green(s) }
func yellow(s string) string { return cli.Yellow(s) }
func red(s string) string    { return cli.Red(s) }
func bold(s string) string   { return cli.Bold(s) }
