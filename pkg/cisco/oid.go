package cisco

import "fmt"

// IF-MIB / IF-MIB ifXTable
const (
	oidIfDescr       = "1.3.6.1.2.1.2.2.1.2"
	oidIfAdminStatus = "1.3.6.1.2.1.2.2.1.7"
	oidIfInOctets    = "1.3.6.1.2.1.2.2.1.10"
	oidIfOutOctets   = "1.3.6.1.2.1.2.2.1.16"
	oidIfName        = "1.3.6.1.2.1.31.1.1.1.1"
	oidIfAlias       = "1.3.6.1.2.1.31.1.1.1.18"
)

// CISCO-VTP-MIB
const (
	oidVtpVlanName = "1.3.6.1.4.1.9.9.46.1.3.1.1.4"

	oidVtpEditOperation = "1.3.6.1.4.1.9.9.46.1.4.1.1.1"
	oidVtpApplyStatus   = "1.3.6.1.4.1.9.9.46.1.4.1.1.2"
	oidVtpEditOwner     = "1.3.6.1.4.1.9.9.46.1.4.1.1.3"
	oidVtpEditTable     = "1.3.6.1.4.1.9.9.46.1.4.2"
	oidVtpEditName      = "1.3.6.1.4.1.9.9.46.1.4.2.1.4"
	oidVtpEditRowStatus = "1.3.6.1.4.1.9.9.46.1.4.2.1.11"

	oidTrunkDynamicState = "1.3.6.1.4.1.9.9.46.1.6.1.1.13"
	oidTrunkDynamicStat  = "1.3.6.1.4.1.9.9.46.1.6.1.1.14"
	oidTrunkEncapOper    = "1.3.6.1.4.1.9.9.46.1.6.1.1.16"
	oidTrunkSetSerialNo  = "1.3.6.1.4.1.9.9.46.1.6.2.0"
)

// vlanTrunkPortVlansEnabled, 2k, 3k and 4k columns, one per segment.
var oidTrunkVlansEnabled = [4]string{
	"1.3.6.1.4.1.9.9.46.1.6.1.1.4",
	"1.3.6.1.4.1.9.9.46.1.6.1.1.17",
	"1.3.6.1.4.1.9.9.46.1.6.1.1.18",
	"1.3.6.1.4.1.9.9.46.1.6.1.1.19",
}

// CISCO-VLAN-MEMBERSHIP-MIB vmVlan
const oidVmVlan = "1.3.6.1.4.1.9.9.68.1.2.2.1.2"

// CISCO-CONFIG-COPY-MIB ccCopyEntry
const (
	oidCcCopyEntry      = "1.3.6.1.4.1.9.9.96.1.1.1.1"
	ccCopySourceType    = 3
	ccCopyDestType      = 4
	ccCopyState         = 10
	ccCopyEntryRowState = 14
)

// Enumerations.
const (
	ifAdminUp   = 1
	ifAdminDown = 2

	trunkingStatus      = 1
	encapNotApplicable  = 6
	editOpCopy          = 2
	editOpApply         = 3
	editOpRelease       = 4
	rowCreateAndGo      = 4
	rowDestroy          = 6
	fileRunningConfig   = 4
	fileStartupConfig   = 3
	defaultManagementID = 1
)

// ApplyStatus is vtpVlanApplyStatus.
type ApplyStatus int

const (
	ApplyInProgress ApplyStatus = 1
	ApplySucceeded  ApplyStatus = 2
)

func (s ApplyStatus) String() string {
	switch s {
	case ApplyInProgress:
		return "inProgress"
	case ApplySucceeded:
		return "succeeded"
	}
	return fmt.Sprintf("status(%d)", int(s))
}

// TrunkMode is vlanTrunkPortDynamicState.
type TrunkMode int

const (
	TrunkOn            TrunkMode = 1
	TrunkOff           TrunkMode = 2
	TrunkDesirable     TrunkMode = 3
	TrunkAuto          TrunkMode = 4
	TrunkOnNoNegotiate TrunkMode = 5
)

var trunkModeNames = map[TrunkMode]string{
	TrunkOn:            "on",
	TrunkOff:           "off",
	TrunkDesirable:     "desirable",
	TrunkAuto:          "auto",
	TrunkOnNoNegotiate: "onNoNegotiate",
}

func (m TrunkMode) String() string {
	if s, ok := trunkModeNames[m]; ok {
		return s
	}
	return fmt.Sprintf("mode(%d)", int(m))
}

// ParseTrunkMode accepts the names printed by TrunkMode.String.
func ParseTrunkMode(s string) (TrunkMode, error) {
	for m, name := range trunkModeNames {
		if name == s {
			return m, nil
		}
	}
	return 0, fmt.Errorf("unknown trunk mode %q", s)
}

// CopyState is ccCopyState.
type CopyState int

const (
	CopyWaiting    CopyState = 1
	CopyRunning    CopyState = 2
	CopySuccessful CopyState = 3
	CopyFailed     CopyState = 4
)

func (c CopyState) String() string {
	switch c {
	case CopyWaiting:
		return "waiting"
	case CopyRunning:
		return "running"
	case CopySuccessful:
		return "successful"
	case CopyFailed:
		return "failed"
	}
	return fmt.Sprintf("state(%d)", int(c))
}
