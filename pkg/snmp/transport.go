// Package snmp defines the request/response port used to talk to switches
// (Get, Set, bounded Walk) and binds it to gosnmp.
package snmp

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/newtron-network/vtpsync/pkg/util"
)

// Type is the ASN.1 type tag of a variable binding.
type Type int

const (
	Integer Type = iota + 1
	OctetString
	Counter32
	Counter64
	Gauge32
	TimeTicks
	Null
	NoSuchObject
	NoSuchInstance
	EndOfMibView
)

var typeNames = map[Type]string{
	Integer:        "Integer",
	OctetString:    "OctetString",
	Counter32:      "Counter32",
	Counter64:      "Counter64",
	Gauge32:        "Gauge32",
	TimeTicks:      "TimeTicks",
	Null:           "Null",
	NoSuchObject:   "NoSuchObject",
	NoSuchInstance: "NoSuchInstance",
	EndOfMibView:   "EndOfMibView",
}

func (t Type) String() string {
	if s, ok := typeNames[t]; ok {
		return s
	}
	return fmt.Sprintf("Type(%d)", int(t))
}

// Variable is one OID/value binding. OIDs carry no leading dot.
type Variable struct {
	OID   string
	Type  Type
	Value interface{}
}

// Int builds an Integer binding.
func Int(oid string, v int) Variable {
	return Variable{OID: oid, Type: Integer, Value: v}
}

// Octets builds an OctetString binding from raw bytes.
func Octets(oid string, b []byte) Variable {
	return Variable{OID: oid, Type: OctetString, Value: b}
}

// Str builds an OctetString binding from text.
func Str(oid, s string) Variable {
	return Variable{OID: oid, Type: OctetString, Value: []byte(s)}
}

// IsAbsent reports the "no such object/instance" family of responses.
func (v Variable) IsAbsent() bool {
	switch v.Type {
	case NoSuchObject, NoSuchInstance, EndOfMibView:
		return true
	}
	return false
}

func (v Variable) typeError(want string) error {
	return fmt.Errorf("%w: %s is %s, want %s", util.ErrProtocol, v.OID, v.Type, want)
}

// Int returns an Integer value.
func (v Variable) Int() (int, error) {
	if v.Type != Integer {
		return 0, v.typeError("Integer")
	}
	switch n := v.Value.(type) {
	case int:
		return n, nil
	case int32:
		return int(n), nil
	case int64:
		return int(n), nil
	}
	return 0, v.typeError("Integer")
}

// Uint returns a counter, gauge or timeticks value.
func (v Variable) Uint() (uint64, error) {
	switch v.Type {
	case Counter32, Counter64, Gauge32, TimeTicks:
	default:
		return 0, v.typeError("unsigned")
	}
	switch n := v.Value.(type) {
	case uint:
		return uint64(n), nil
	case uint32:
		return uint64(n), nil
	case uint64:
		return n, nil
	case int:
		if n >= 0 {
			return uint64(n), nil
		}
	}
	return 0, v.typeError("unsigned")
}

// Bytes returns an OctetString value.
func (v Variable) Bytes() ([]byte, error) {
	if v.Type != OctetString {
		return nil, v.typeError("OctetString")
	}
	switch b := v.Value.(type) {
	case []byte:
		return b, nil
	case string:
		return []byte(b), nil
	}
	return nil, v.typeError("OctetString")
}

// Text returns an OctetString value as a string.
func (v Variable) Text() (string, error) {
	b, err := v.Bytes()
	if err != nil {
		return "", err
	}
	return string(b), nil
}

func (v Variable) String() string {
	if v.Type == OctetString {
		if b, err := v.Bytes(); err == nil {
			return fmt.Sprintf("%s = %s: %q", v.OID, v.Type, b)
		}
	}
	return fmt.Sprintf("%s = %s: %v", v.OID, v.Type, v.Value)
}

// ErrStopWalk may be returned by a WalkFunc to end a walk early without error.
var ErrStopWalk = errors.New("stop walk")

// WalkFunc receives each row of a walk in OID order.
type WalkFunc func(Variable) error

// Transport is the request/response port to one device. Implementations need
// not be safe for concurrent use.
type Transport interface {
	Get(ctx context.Context, oids ...string) ([]Variable, error)
	Set(ctx context.Context, vars ...Variable) error
	// Walk visits rows under prefix in order. maxRows 0 means unlimited.
	Walk(ctx context.Context, prefix string, maxRows int, fn WalkFunc) error
	Close() error
}

// Dialer opens a Transport to target (host or host:port).
type Dialer func(ctx context.Context, target string) (Transport, error)

// TransportError reports a failed exchange with a device.
type TransportError struct {
	Op     string
	Target string
	OIDs   []string
	Err    error
}

func (e *TransportError) Error() string {
	msg := fmt.Sprintf("snmp %s %s", e.Op, e.Target)
	if len(e.OIDs) > 0 {
		msg += " [" + strings.Join(e.OIDs, " ") + "]"
	}
	return msg + ": " + e.Err.Error()
}

// Unwrap exposes both the transport class and the underlying cause.
func (e *TransportError) Unwrap() []error {
	return []error{util.ErrTransport, e.Err}
}

// NormalizeOID strips the leading dot some agents and libraries emit.
func NormalizeOID(oid string) string {
	return strings.TrimPrefix(oid, ".")
}

// HasPrefix reports whether oid lies strictly under prefix.
func HasPrefix(oid, prefix string) bool {
	oid, prefix = NormalizeOID(oid), NormalizeOID(prefix)
	return strings.HasPrefix(oid, prefix+".")
}

// Suffix returns the numeric arcs of oid after prefix, e.g. the table index
// of a column walk.
func Suffix(oid, prefix string) ([]int, error) {
	if !HasPrefix(oid, prefix) {
		return nil, fmt.Errorf("%w: %s is not under %s", util.ErrProtocol, oid, prefix)
	}
	rest := strings.TrimPrefix(NormalizeOID(oid), NormalizeOID(prefix)+".")
	parts := strings.Split(rest, ".")
	arcs := make([]int, 0, len(parts))
	for _, p := range parts {
		n, err := strconv.Atoi(p)
		if err != nil {
			return nil, fmt.Errorf("%w: bad arc %q in %s", util.ErrProtocol, p, oid)
		}
		arcs = append(arcs, n)
	}
	return arcs, nil
}

// Join appends numeric arcs to a base OID.
func Join(base string, arcs ...int) string {
	var b strings.Builder
	b.WriteString(NormalizeOID(base))
	for _, a := range arcs {
		b.WriteByte('.')
		b.WriteString(strconv.Itoa(a))
	}
	return b.String()
}
