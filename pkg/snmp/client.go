package snmp

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/gosnmp/gosnmp"
)

// Default client parameters.
const (
	DefaultPort      = 161
	DefaultCommunity = "public"
	DefaultTimeout   = 2 * time.Second
	DefaultRetries   = 1
)

// Config describes how to reach agents. Version "3" uses the V3 block;
// anything else is SNMPv2c with Community.
type Config struct {
	Version   string        `json:"version,omitempty"`
	Community string        `json:"community,omitempty"`
	Port      uint16        `json:"port,omitempty"`
	Timeout   time.Duration `json:"timeout,omitempty"`
	Retries   int           `json:"retries,omitempty"`
	V3        *V3Config     `json:"v3,omitempty"`
}

// V3Config holds USM credentials. Protocols are "SHA"/"MD5" and "AES"/"DES";
// empty disables that layer.
type V3Config struct {
	User           string `json:"user"`
	AuthProtocol   string `json:"auth_protocol,omitempty"`
	AuthPassphrase string `json:"auth_passphrase,omitempty"`
	PrivProtocol   string `json:"priv_protocol,omitempty"`
	PrivPassphrase string `json:"priv_passphrase,omitempty"`
}

// WithCommunity returns a copy of c using community when it is non-empty.
func (c Config) WithCommunity(community string) Config {
	if community != "" {
		c.Community = community
	}
	return c
}

// Dialer returns a Dialer bound to this configuration.
func (c Config) Dialer() Dialer {
	return func(ctx context.Context, target string) (Transport, error) {
		return Dial(ctx, target, c)
	}
}

// Client is a Transport backed by gosnmp. Calls are serialized.
type Client struct {
	mu     sync.Mutex
	target string
	g      *gosnmp.GoSNMP
}

// Dial opens a UDP session to target ("host" or "host:port").
func Dial(ctx context.Context, target string, cfg Config) (*Client, error) {
	host, port, err := splitTarget(target, cfg.Port)
	if err != nil {
		return nil, &TransportError{Op: "dial", Target: target, Err: err}
	}

	g := &gosnmp.GoSNMP{
		Target:             host,
		Port:               port,
		Transport:          "udp",
		Community:          cfg.Community,
		Version:            gosnmp.Version2c,
		Timeout:            cfg.Timeout,
		Retries:            cfg.Retries,
		ExponentialTimeout: true,
		MaxOids:            gosnmp.MaxOids,
		Context:            ctx,
	}
	if g.Community == "" {
		g.Community = DefaultCommunity
	}
	if g.Timeout == 0 {
		g.Timeout = DefaultTimeout
	}
	if cfg.Retries == 0 {
		g.Retries = DefaultRetries
	}
	if cfg.Version == "3" {
		if err := applyV3(g, cfg.V3); err != nil {
			return nil, &TransportError{Op: "dial", Target: target, Err: err}
		}
	}

	if err := g.Connect(); err != nil {
		return nil, &TransportError{Op: "dial", Target: target, Err: err}
	}
	return &Client{target: target, g: g}, nil
}

func splitTarget(target string, defPort uint16) (string, uint16, error) {
	if defPort == 0 {
		defPort = DefaultPort
	}
	host, portStr, err := net.SplitHostPort(target)
	if err != nil {
		// bare host or IPv6 literal without port
		return strings.Trim(target, "[]"), defPort, nil
	}
	p, err := strconv.ParseUint(portStr, 10, 16)
	if err != nil {
		return "", 0, fmt.Errorf("invalid port %q", portStr)
	}
	return host, uint16(p), nil
}

func applyV3(g *gosnmp.GoSNMP, v3 *V3Config) error {
	if v3 == nil || v3.User == "" {
		return fmt.Errorf("SNMPv3 requires a user")
	}
	usm := &gosnmp.UsmSecurityParameters{
		UserName:               v3.User,
		AuthenticationProtocol: gosnmp.NoAuth,
		PrivacyProtocol:        gosnmp.NoPriv,
	}
	flags := gosnmp.NoAuthNoPriv

	switch strings.ToUpper(v3.AuthProtocol) {
	case "":
	case "SHA":
		usm.AuthenticationProtocol = gosnmp.SHA
	case "MD5":
		usm.AuthenticationProtocol = gosnmp.MD5
	default:
		return fmt.Errorf("unsupported auth protocol %q", v3.AuthProtocol)
	}
	if usm.AuthenticationProtocol != gosnmp.NoAuth {
		usm.AuthenticationPassphrase = v3.AuthPassphrase
		flags = gosnmp.AuthNoPriv
	}

	switch strings.ToUpper(v3.PrivProtocol) {
	case "":
	case "AES":
		usm.PrivacyProtocol = gosnmp.AES
	case "DES":
		usm.PrivacyProtocol = gosnmp.DES
	default:
		return fmt.Errorf("unsupported privacy protocol %q", v3.PrivProtocol)
	}
	if usm.PrivacyProtocol != gosnmp.NoPriv {
		if flags != gosnmp.AuthNoPriv {
			return fmt.Errorf("privacy requires authentication")
		}
		usm.PrivacyPassphrase = v3.PrivPassphrase
		flags = gosnmp.AuthPriv
	}

	g.Version = gosnmp.Version3
	g.SecurityModel = gosnmp.UserSecurityModel
	g.MsgFlags = flags
	g.SecurityParameters = usm
	return nil
}

// Target returns the address this client was dialed with.
func (c *Client) Target() string { return c.target }

// Get fetches oids in one request. Absent objects come back as variables of
// an absent type rather than as errors.
func (c *Client) Get(ctx context.Context, oids ...string) ([]Variable, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.g.Context = ctx

	pkt, err := c.g.Get(oids)
	if err != nil {
		return nil, &TransportError{Op: "get", Target: c.target, OIDs: oids, Err: err}
	}
	if pkt.Error != gosnmp.NoError {
		return nil, &TransportError{Op: "get", Target: c.target, OIDs: oids, Err: statusError(pkt)}
	}
	vars := make([]Variable, 0, len(pkt.Variables))
	for _, pdu := range pkt.Variables {
		vars = append(vars, fromPDU(pdu))
	}
	return vars, nil
}

// Set writes all bindings in a single request.
func (c *Client) Set(ctx context.Context, vars ...Variable) error {
	oids := make([]string, 0, len(vars))
	pdus := make([]gosnmp.SnmpPDU, 0, len(vars))
	for _, v := range vars {
		pdu, err := toPDU(v)
		if err != nil {
			return &TransportError{Op: "set", Target: c.target, OIDs: []string{v.OID}, Err: err}
		}
		oids = append(oids, v.OID)
		pdus = append(pdus, pdu)
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	c.g.Context = ctx

	pkt, err := c.g.Set(pdus)
	if err != nil {
		return &TransportError{Op: "set", Target: c.target, OIDs: oids, Err: err}
	}
	if pkt.Error != gosnmp.NoError {
		return &TransportError{Op: "set", Target: c.target, OIDs: oids, Err: statusError(pkt)}
	}
	return nil
}

// Walk visits the subtree under prefix using GETNEXT.
func (c *Client) Walk(ctx context.Context, prefix string, maxRows int, fn WalkFunc) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.g.Context = ctx

	rows := 0
	var fnErr error
	err := c.g.Walk(prefix, func(pdu gosnmp.SnmpPDU) error {
		v := fromPDU(pdu)
		if v.IsAbsent() || !HasPrefix(v.OID, prefix) {
			return ErrStopWalk
		}
		if err := fn(v); err != nil {
			if !errors.Is(err, ErrStopWalk) {
				fnErr = err
			}
			return err
		}
		rows++
		if maxRows > 0 && rows >= maxRows {
			return ErrStopWalk
		}
		return nil
	})
	if fnErr != nil {
		return fnErr
	}
	if err != nil && !errors.Is(err, ErrStopWalk) {
		return &TransportError{Op: "walk", Target: c.target, OIDs: []string{prefix}, Err: err}
	}
	return nil
}

// Close releases the UDP socket.
func (c *Client) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.g.Conn == nil {
		return nil
	}
	return c.g.Conn.Close()
}

func statusError(pkt *gosnmp.SnmpPacket) error {
	return fmt.Errorf("agent returned error-status %v at index %d", pkt.Error, pkt.ErrorIndex)
}

func fromPDU(pdu gosnmp.SnmpPDU) Variable {
	v := Variable{OID: NormalizeOID(pdu.Name), Value: pdu.Value}
	switch pdu.Type {
	case gosnmp.Integer:
		v.Type = Integer
	case gosnmp.OctetString:
		v.Type = OctetString
	case gosnmp.Counter32:
		v.Type = Counter32
	case gosnmp.Counter64:
		v.Type = Counter64
	case gosnmp.Gauge32, gosnmp.Uinteger32:
		v.Type = Gauge32
	case gosnmp.TimeTicks:
		v.Type = TimeTicks
	case gosnmp.NoSuchObject:
		v.Type = NoSuchObject
	case gosnmp.NoSuchInstance:
		v.Type = NoSuchInstance
	case gosnmp.EndOfMibView:
		v.Type = EndOfMibView
	default:
		v.Type = Null
	}
	return v
}

func toPDU(v Variable) (gosnmp.SnmpPDU, error) {
	pdu := gosnmp.SnmpPDU{Name: "." + NormalizeOID(v.OID)}
	switch v.Type {
	case Integer:
		n, err := v.Int()
		if err != nil {
			return pdu, err
		}
		pdu.Type, pdu.Value = gosnmp.Integer, n
	case OctetString:
		b, err := v.Bytes()
		if err != nil {
			return pdu, err
		}
		pdu.Type, pdu.Value = gosnmp.OctetString, b
	case Gauge32:
		n, err := v.Uint()
		if err != nil {
			return pdu, err
		}
		pdu.Type, pdu.Value = gosnmp.Gauge32, uint(n)
	case Null:
		pdu.Type = gosnmp.Null
	default:
		return pdu, fmt.Errorf("cannot set %s value", v.Type)
	}
	return pdu, nil
}
