package cisco

import (
	"fmt"

	"github.com/newtron-network/vtpsync/pkg/util"
	"github.com/newtron-network/vtpsync/pkg/vlan"
)

// TransactionBusyError reports an edit buffer already owned by a manager.
type TransactionBusyError struct {
	Domain int
	Owner  string
}

func (e *TransactionBusyError) Error() string {
	owner := e.Owner
	if owner == "" {
		owner = "unknown owner"
	}
	return fmt.Sprintf("VLAN edit buffer for domain %d is held by %q", e.Domain, owner)
}

func (e *TransactionBusyError) Unwrap() error {
	return util.ErrTransactionBusy
}

// VLANError reports a VLAN existence precondition failing inside an edit
// transaction. Err is util.ErrAlreadyExists or util.ErrNotFound.
type VLANError struct {
	Op  string
	ID  vlan.ID
	Err error
}

func (e *VLANError) Error() string {
	return fmt.Sprintf("%s VLAN %d: %v", e.Op, e.ID, e.Err)
}

func (e *VLANError) Unwrap() error {
	return e.Err
}

// ApplyError reports an apply that ended in a non-success status, or that
// was still in progress when polling gave up.
type ApplyError struct {
	Domain int
	Status ApplyStatus
}

func (e *ApplyError) Error() string {
	return fmt.Sprintf("VLAN apply on domain %d failed: %s", e.Domain, e.Status)
}

func (e *ApplyError) Unwrap() error {
	return util.ErrApplyFailed
}

// AccessVLANError reports an access VLAN write that did not read back.
type AccessVLANError struct {
	Port string
	Want vlan.ID
	Got  vlan.ID
}

func (e *AccessVLANError) Error() string {
	return fmt.Sprintf("port %s: access VLAN reads back %d after setting %d", e.Port, e.Got, e.Want)
}

func (e *AccessVLANError) Unwrap() error {
	return util.ErrVerificationFailed
}
