package cisco

import (
	"context"
	"fmt"
	"strings"

	"github.com/newtron-network/vtpsync/pkg/snmp"
	"github.com/newtron-network/vtpsync/pkg/util"
)

// SaveConfig persists the running configuration to startup. With a Saver
// configured it delegates; otherwise it starts a config copy and returns
// without waiting for completion.
func (s *Switch) SaveConfig(ctx context.Context) error {
	if s.saver != nil {
		util.WithDevice(s.name).Debug("saving configuration via saver")
		return s.saver.SaveConfig(ctx)
	}
	_, err := s.StartCopy(ctx)
	return err
}

// StartCopy creates a running-to-startup row in the config copy table and
// returns its index for use with CopyState.
func (s *Switch) StartCopy(ctx context.Context) (int, error) {
	idx := s.copyIndex()
	util.WithDevice(s.name).Debugf("config copy running->startup at index %d", idx)
	err := s.transport.Set(ctx,
		snmp.Int(snmp.Join(oidCcCopyEntry, ccCopySourceType, idx), fileRunningConfig),
		snmp.Int(snmp.Join(oidCcCopyEntry, ccCopyDestType, idx), fileStartupConfig),
		snmp.Int(snmp.Join(oidCcCopyEntry, ccCopyEntryRowState, idx), rowCreateAndGo))
	if err != nil {
		return 0, err
	}
	return idx, nil
}

// CopyState reads the progress of a config copy row.
func (s *Switch) CopyState(ctx context.Context, index int) (CopyState, error) {
	v, err := s.getOne(ctx, snmp.Join(oidCcCopyEntry, ccCopyState, index))
	if err != nil {
		return 0, err
	}
	n, ok, err := optInt(v)
	if err != nil {
		return 0, err
	}
	if !ok {
		return 0, fmt.Errorf("config copy row %d on %s: %w", index, s.name, util.ErrNotFound)
	}
	return CopyState(n), nil
}

// CommandRunner runs one CLI command on a device and returns its output.
type CommandRunner interface {
	Run(ctx context.Context, cmd string) (string, error)
}

// DefaultSaveCommand persists the running configuration from the CLI.
const DefaultSaveCommand = "write memory"

// SSHSaver saves configuration through the device CLI, for agents with the
// config copy MIB disabled.
type SSHSaver struct {
	Runner  CommandRunner
	Command string
}

// SaveConfig implements Saver. IOS reports CLI errors on lines starting
// with "%".
func (s SSHSaver) SaveConfig(ctx context.Context) error {
	cmd := s.Command
	if cmd == "" {
		cmd = DefaultSaveCommand
	}
	out, err := s.Runner.Run(ctx, cmd)
	if err != nil {
		return err
	}
	for _, line := range strings.Split(out, "\n") {
		if strings.HasPrefix(strings.TrimSpace(line), "%") {
			return fmt.Errorf("%s: %s", cmd, strings.TrimSpace(line))
		}
	}
	return nil
}
