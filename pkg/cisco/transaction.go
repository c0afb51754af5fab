package cisco

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/newtron-network/vtpsync/pkg/snmp"
	"github.com/newtron-network/vtpsync/pkg/util"
	"github.com/newtron-network/vtpsync/pkg/vlan"
)

// TxState is the local view of the edit buffer lifecycle.
type TxState int

const (
	TxFree TxState = iota
	TxOwned
	TxCommitting
	TxAborting
)

func (s TxState) String() string {
	switch s {
	case TxFree:
		return "free"
	case TxOwned:
		return "owned"
	case TxCommitting:
		return "committing"
	case TxAborting:
		return "aborting"
	}
	return fmt.Sprintf("TxState(%d)", int(s))
}

// Transaction is one VTP edit buffer session. Every path out of an owned
// session writes release, so the device buffer is free when any method
// returns an error or Commit returns.
type Transaction struct {
	sw    *Switch
	state TxState
}

// Begin takes the edit buffer. A buffer that already holds rows belongs to
// another session (possibly a crashed one of ours) and fails with
// *TransactionBusyError without any write.
func (s *Switch) Begin(ctx context.Context) (*Transaction, error) {
	tx := &Transaction{sw: s, state: TxFree}

	busy := false
	err := s.transport.Walk(ctx, snmp.Join(oidVtpEditName, s.domain), 1, func(snmp.Variable) error {
		busy = true
		return snmp.ErrStopWalk
	})
	if err != nil {
		return nil, err
	}
	if busy {
		owner := ""
		if v, err := s.getOne(ctx, snmp.Join(oidVtpEditOwner, s.domain)); err == nil && !v.IsAbsent() {
			owner, _ = v.Text()
		}
		return nil, &TransactionBusyError{Domain: s.domain, Owner: owner}
	}

	if err := s.transport.Set(ctx,
		snmp.Int(snmp.Join(oidVtpEditOperation, s.domain), editOpCopy),
		snmp.Str(snmp.Join(oidVtpEditOwner, s.domain), s.owner)); err != nil {
		return nil, err
	}
	tx.state = TxOwned

	prepared := false
	err = s.transport.Walk(ctx, oidVtpEditTable, 1, func(snmp.Variable) error {
		prepared = true
		return snmp.ErrStopWalk
	})
	if err == nil && !prepared {
		err = fmt.Errorf("edit buffer for domain %d is empty after copy: %w", s.domain, util.ErrTransactionPrepare)
	}
	if err != nil {
		return nil, tx.fail(ctx, err)
	}
	util.WithDevice(s.name).Debugf("edit buffer for domain %d taken as %q", s.domain, s.owner)
	return tx, nil
}

// State returns the session state.
func (tx *Transaction) State() TxState { return tx.state }

// Validate checks that VLAN id exists in the edit buffer (wantPresent) or
// does not. A failed check aborts the session.
func (tx *Transaction) Validate(ctx context.Context, op string, id vlan.ID, wantPresent bool) error {
	if tx.state != TxOwned {
		return fmt.Errorf("validate in state %s", tx.state)
	}
	s := tx.sw
	v, err := s.getOne(ctx, snmp.Join(oidVtpEditRowStatus, s.domain, int(id)))
	if err != nil {
		return tx.fail(ctx, err)
	}
	present := !v.IsAbsent()
	switch {
	case present && !wantPresent:
		return tx.fail(ctx, &VLANError{Op: op, ID: id, Err: util.ErrAlreadyExists})
	case !present && wantPresent:
		return tx.fail(ctx, &VLANError{Op: op, ID: id, Err: util.ErrNotFound})
	}
	return nil
}

// Stage writes edit buffer rows in one request. A failed write aborts the
// session.
func (tx *Transaction) Stage(ctx context.Context, vars ...snmp.Variable) error {
	if tx.state != TxOwned {
		return fmt.Errorf("stage in state %s", tx.state)
	}
	if err := tx.sw.transport.Set(ctx, vars...); err != nil {
		return tx.fail(ctx, err)
	}
	return nil
}

// Commit applies the edit buffer and polls the apply status until it
// succeeds, fails, or the poll budget runs out. The buffer is released on
// every outcome.
func (tx *Transaction) Commit(ctx context.Context) error {
	if tx.state != TxOwned {
		return fmt.Errorf("commit in state %s", tx.state)
	}
	s := tx.sw
	tx.state = TxCommitting

	if err := s.transport.Set(ctx, snmp.Int(snmp.Join(oidVtpEditOperation, s.domain), editOpApply)); err != nil {
		return tx.fail(ctx, err)
	}

	statusOID := snmp.Join(oidVtpApplyStatus, s.domain)
	for poll := 0; poll < s.maxPolls; poll++ {
		v, err := s.getOne(ctx, statusOID)
		if err != nil {
			return tx.fail(ctx, err)
		}
		n, _, err := optInt(v)
		if err != nil {
			return tx.fail(ctx, err)
		}
		switch status := ApplyStatus(n); status {
		case ApplySucceeded:
			if err := tx.release(ctx); err != nil {
				// the apply went through; only the buffer is left held
				util.WithDevice(s.name).Warnf("releasing edit buffer after apply: %v", err)
			}
			return nil
		case ApplyInProgress:
			if poll == s.maxPolls-1 {
				break
			}
			select {
			case <-ctx.Done():
				return tx.fail(ctx, ctx.Err())
			case <-time.After(s.poll):
			}
		default:
			return tx.fail(ctx, &ApplyError{Domain: s.domain, Status: status})
		}
	}
	return tx.fail(ctx, &ApplyError{Domain: s.domain, Status: ApplyInProgress})
}

// Abort releases the edit buffer without applying.
func (tx *Transaction) Abort(ctx context.Context) error {
	if tx.state == TxFree {
		return nil
	}
	tx.state = TxAborting
	return tx.release(ctx)
}

// fail aborts the session and returns cause, joined with any release error.
func (tx *Transaction) fail(ctx context.Context, cause error) error {
	tx.state = TxAborting
	if err := tx.release(ctx); err != nil {
		return errors.Join(cause, fmt.Errorf("releasing edit buffer: %w", err))
	}
	return cause
}

// release writes the release operation on a context that outlives caller
// cancellation.
func (tx *Transaction) release(ctx context.Context) error {
	s := tx.sw
	rctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
	defer cancel()
	err := s.transport.Set(rctx, snmp.Int(snmp.Join(oidVtpEditOperation, s.domain), editOpRelease))
	tx.state = TxFree
	return err
}

// ============================================================================
// VLAN directory writes
// ============================================================================

func (s *Switch) editVLAN(ctx context.Context, op string, ref vlan.Ref, wantPresent bool, stage func(id vlan.ID) []snmp.Variable) error {
	id, err := vlan.Resolve(ref)
	if err != nil {
		return err
	}
	tx, err := s.Begin(ctx)
	if err != nil {
		return err
	}
	if err := tx.Validate(ctx, op, id, wantPresent); err != nil {
		return err
	}
	if err := tx.Stage(ctx, stage(id)...); err != nil {
		return err
	}
	if err := tx.Commit(ctx); err != nil {
		return err
	}
	util.WithVLAN(s.name, int(id)).Debugf("%s committed", op)
	return nil
}

// CreateVLAN adds a VLAN to the management domain.
func (s *Switch) CreateVLAN(ctx context.Context, ref vlan.Ref, name string) error {
	return s.editVLAN(ctx, "create", ref, false, func(id vlan.ID) []snmp.Variable {
		return []snmp.Variable{
			snmp.Int(snmp.Join(oidVtpEditRowStatus, s.domain, int(id)), rowCreateAndGo),
			snmp.Str(snmp.Join(oidVtpEditName, s.domain, int(id)), name),
		}
	})
}

// RenameVLAN changes the name of an existing VLAN.
func (s *Switch) RenameVLAN(ctx context.Context, ref vlan.Ref, name string) error {
	return s.editVLAN(ctx, "rename", ref, true, func(id vlan.ID) []snmp.Variable {
		return []snmp.Variable{snmp.Str(snmp.Join(oidVtpEditName, s.domain, int(id)), name)}
	})
}

// DeleteVLAN removes an existing VLAN.
func (s *Switch) DeleteVLAN(ctx context.Context, ref vlan.Ref) error {
	return s.editVLAN(ctx, "delete", ref, true, func(id vlan.ID) []snmp.Variable {
		return []snmp.Variable{snmp.Int(snmp.Join(oidVtpEditRowStatus, s.domain, int(id)), rowDestroy)}
	})
}
