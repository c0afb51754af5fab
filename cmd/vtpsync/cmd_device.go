package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/newtron-network/vtpsync/pkg/audit"
)

var saveCmd = &cobra.Command{
	Use:   "save",
	Short: "Persist the running config of a device",
	Long: `Copy the running config to startup config on the device selected with -d.

The copy uses the config copy MIB, or "write memory" over SSH when the
persist setting is "ssh".`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, cancel := commandContext()
		defer cancel()
		sw, err := openSwitch(ctx)
		if err != nil {
			return err
		}
		defer sw.Close()

		start := time.Now()
		fmt.Printf("Saving configuration on %s... ", sw.Name())
		err = sw.SaveConfig(ctx)
		recordEvent(audit.NewEvent(currentUser(), sw.Name(), audit.OpSave).
			WithSaved(err == nil).
			WithDuration(time.Since(start)).
			WithResult(err))
		if err != nil {
			fmt.Println(red("FAILED"))
			return fmt.Errorf("config save failed: %w", err)
		}
		fmt.Println(green("saved."))
		return nil
	},
}
