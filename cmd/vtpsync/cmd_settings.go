package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/newtron-network/vtpsync/pkg/cli"
	"github.com/newtron-network/vtpsync/pkg/settings"
)

var settingsCmd = &cobra.Command{
	Use:   "settings",
	Short: "Manage persistent settings",
	Long: `Manage persistent settings stored in ~/.vtpsync/settings.json.

VTPSYNC_* environment variables override the file. Secrets (the SNMP
community, SNMPv3 passphrases and the SSH password) are only read from the
environment: VTPSYNC_COMMUNITY, VTPSYNC_SNMP_AUTH_PASS,
VTPSYNC_SNMP_PRIV_PASS and VTPSYNC_SSH_PASSWORD.

Examples:
  vtpsync settings show
  vtpsync settings set inventory /etc/vtpsync/inventory.yaml
  vtpsync settings set persist ssh
  vtpsync settings get parallelism
  vtpsync settings clear`,
}

var settingsShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Show current settings",
	RunE: func(cmd *cobra.Command, args []string) error {
		s, err := settings.Load()
		if err != nil {
			return fmt.Errorf("loading settings: %w", err)
		}

		fmt.Printf("Settings file: %s\n\n", settings.DefaultSettingsPath())

		t := cli.NewTable("SETTING", "VALUE")
		for _, key := range settings.Keys() {
			v, _ := s.Get(key)
			t.Row(key, cli.Dash(v))
		}
		t.Row("community", secretState(s.Community))
		t.Row("ssh_password", secretState(s.SSHPassword))
		t.Flush()
		return nil
	},
}

func secretState(v string) string {
	if v == "" {
		return "-"
	}
	return "(set)"
}

var settingsSetCmd = &cobra.Command{
	Use:   "set <key> <value>",
	Short: "Set a setting",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		path := settings.DefaultSettingsPath()
		s, err := settings.LoadFrom(path)
		if err != nil {
			return fmt.Errorf("loading settings: %w", err)
		}
		if err := s.Set(args[0], args[1]); err != nil {
			return err
		}
		if err := s.SaveTo(path); err != nil {
			return fmt.Errorf("saving settings: %w", err)
		}
		fmt.Printf("%s = %s\n", args[0], args[1])
		return nil
	},
}

var settingsGetCmd = &cobra.Command{
	Use:   "get <key>",
	Short: "Print a setting",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		s, err := settings.Load()
		if err != nil {
			return fmt.Errorf("loading settings: %w", err)
		}
		v, err := s.Get(args[0])
		if err != nil {
			return err
		}
		fmt.Println(v)
		return nil
	},
}

var settingsClearCmd = &cobra.Command{
	Use:   "clear",
	Short: "Clear all settings",
	RunE: func(cmd *cobra.Command, args []string) error {
		s, err := settings.LoadFrom(settings.DefaultSettingsPath())
		if err != nil {
			return fmt.Errorf("loading settings: %w", err)
		}
		s.Clear()
		if err := s.Save(); err != nil {
			return fmt.Errorf("saving settings: %w", err)
		}
		fmt.Println("Settings cleared")
		return nil
	},
}

func init() {
	settingsCmd.AddCommand(settingsShowCmd, settingsSetCmd, settingsGetCmd, settingsClearCmd)
}
