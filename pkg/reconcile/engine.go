// Package reconcile drives live switches toward the declared VLAN state:
// one pass visits every device in the minimized VLAN map, corrects its VLAN
// directory and its trunks toward linked neighbors, and persists the result.
package reconcile

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/newtron-network/vtpsync/pkg/audit"
	"github.com/newtron-network/vtpsync/pkg/cisco"
	"github.com/newtron-network/vtpsync/pkg/inventory"
	"github.com/newtron-network/vtpsync/pkg/snmp"
	"github.com/newtron-network/vtpsync/pkg/util"
	"github.com/newtron-network/vtpsync/pkg/vlan"
)

// DefaultLockTTL bounds how long a crashed run can keep a device locked.
const DefaultLockTTL = 5 * time.Minute

const releaseTimeout = 5 * time.Second

// Device is the part of the switch facade the engine drives.
type Device interface {
	VLANs(ctx context.Context) ([]cisco.VLAN, error)
	CreateVLAN(ctx context.Context, ref vlan.Ref, name string) error
	RenameVLAN(ctx context.Context, ref vlan.Ref, name string) error
	DeleteVLAN(ctx context.Context, ref vlan.Ref) error
	Ports(ctx context.Context) ([]cisco.Port, error)
	TrunkStatus(ctx context.Context, p cisco.PortRef) (bool, error)
	TrunkVLANs(ctx context.Context, p cisco.PortRef) (vlan.Set, error)
	ActivateVLANs(ctx context.Context, p cisco.PortRef, refs ...vlan.Ref) error
	DeactivateVLANs(ctx context.Context, p cisco.PortRef, refs ...vlan.Ref) error
	PortAlias(ctx context.Context, p cisco.PortRef) (string, error)
	SetPortAlias(ctx context.Context, p cisco.PortRef, alias string) error
	SaveConfig(ctx context.Context) error
	Close() error
}

var _ Device = (*cisco.Switch)(nil)

// Connector opens a device for a host.
type Connector func(ctx context.Context, h *inventory.Host) (Device, error)

// DialSwitch returns a Connector that dials the host's address and wraps
// the transport in a switch facade.
func DialSwitch(dial snmp.Dialer, opts cisco.Options) Connector {
	return func(ctx context.Context, h *inventory.Host) (Device, error) {
		t, err := dial(ctx, h.Address)
		if err != nil {
			return nil, err
		}
		return cisco.New(h.Name, t, opts), nil
	}
}

// Locker serializes writers across runs.
type Locker interface {
	Acquire(ctx context.Context, device, holder string, ttl time.Duration) error
	Release(ctx context.Context, device, holder string) error
}

// Recorder receives one audit event per visited device.
type Recorder interface {
	Log(event *audit.Event) error
}

// Config configures an Engine.
type Config struct {
	// DryRun logs and reports changes without writing.
	DryRun bool
	// Parallelism bounds how many devices are reconciled at once.
	Parallelism int
	Connect     Connector
	Policy      Policy

	// Locker, when set, is held per device for the duration of a write
	// pass under Holder with LockTTL.
	Locker  Locker
	LockTTL time.Duration
	Holder  string

	Recorder Recorder
	// User is stamped on audit events.
	User string

	// PortName maps a declared link port name to the device's ifName.
	PortName func(string) string
}

// Engine runs reconciliation passes.
type Engine struct {
	cfg Config
}

// New builds an Engine, filling defaults.
func New(cfg Config) *Engine {
	if cfg.Parallelism < 1 {
		cfg.Parallelism = 1
	}
	if cfg.LockTTL == 0 {
		cfg.LockTTL = DefaultLockTTL
	}
	if cfg.Holder == "" {
		cfg.Holder = uuid.New().String()
	}
	if cfg.PortName == nil {
		cfg.PortName = func(name string) string { return name }
	}
	return &Engine{cfg: cfg}
}

// Run reconciles every device in desired.VLANMap. A failing device never
// stops the pass; its error is kept in its Result.
func (e *Engine) Run(ctx context.Context, desired Desired, hosts map[string]*inventory.Host) *Report {
	devices := desired.Devices()
	report := &Report{DryRun: e.cfg.DryRun, Results: make([]*Result, len(devices))}

	var g errgroup.Group
	g.SetLimit(e.cfg.Parallelism)
	for i, name := range devices {
		i, name := i, name // per-iteration copies (go directive < 1.22)
		g.Go(func() error {
			report.Results[i] = e.reconcileHost(ctx, desired, name, hosts[name])
			return nil
		})
	}
	_ = g.Wait()

	util.WithOperation("reconcile").Infof("pass complete: %s", report.Summary())
	return report
}

func (e *Engine) reconcileHost(ctx context.Context, desired Desired, name string, h *inventory.Host) *Result {
	res := &Result{Device: name}
	log := util.WithDevice(name)

	switch {
	case h == nil:
		res.Skipped = "not in inventory"
	case !e.cfg.Policy.deployable(h):
		res.Skipped = "not deployable"
	}
	if res.Skipped != "" {
		log.Debugf("skipped: %s", res.Skipped)
		return res
	}

	start := time.Now()
	res.Err = e.locked(ctx, name, func() error {
		return e.reconcileDevice(ctx, desired, h, res)
	})
	if res.Err != nil {
		if util.IsConnectivity(res.Err) {
			log.Warnf("could not reach device: %v", res.Err)
		} else {
			log.Errorf("reconcile failed: %v", res.Err)
		}
	}
	e.record(res, time.Since(start))
	return res
}

// locked runs fn under the device lock. Dry runs never write and skip it.
func (e *Engine) locked(ctx context.Context, name string, fn func() error) error {
	if e.cfg.Locker == nil || e.cfg.DryRun {
		return fn()
	}
	if err := e.cfg.Locker.Acquire(ctx, name, e.cfg.Holder, e.cfg.LockTTL); err != nil {
		return fmt.Errorf("locking %s: %w", name, err)
	}
	defer func() {
		rctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), releaseTimeout)
		defer cancel()
		if err := e.cfg.Locker.Release(rctx, name, e.cfg.Holder); err != nil {
			util.WithDevice(name).Warnf("releasing lock: %v", err)
		}
	}()
	return fn()
}

func (e *Engine) record(res *Result, d time.Duration) {
	if e.cfg.Recorder == nil {
		return
	}
	ev := audit.NewEvent(e.cfg.User, res.Device, audit.OpReconcile).
		WithChanges(res.Rendered()).
		WithDryRun(e.cfg.DryRun).
		WithSaved(res.Saved).
		WithDuration(d).
		WithResult(res.Err)
	if err := e.cfg.Recorder.Log(ev); err != nil {
		util.WithDevice(res.Device).Warnf("audit: %v", err)
	}
}

func (e *Engine) reconcileDevice(ctx context.Context, desired Desired, h *inventory.Host, res *Result) error {
	dev, err := e.cfg.Connect(ctx, h)
	if err != nil {
		return fmt.Errorf("connecting: %w", err)
	}
	defer dev.Close()

	want := desired.VLANMap[h.Name]
	if err := e.syncDirectory(ctx, dev, desired, h, want, res); err != nil {
		return err
	}
	if err := e.syncPorts(ctx, dev, desired, h, want, res); err != nil {
		return err
	}

	if res.Changed() && !e.cfg.DryRun {
		if err := dev.SaveConfig(ctx); err != nil {
			return fmt.Errorf("saving config: %w", err)
		}
		res.Saved = true
		util.WithDevice(h.Name).Info("running config saved")
	}
	return nil
}

// syncDirectory renames declared VLANs whose name drifted, deletes VLANs
// the device should not carry, and creates the missing ones.
func (e *Engine) syncDirectory(ctx context.Context, dev Device, desired Desired, h *inventory.Host, want vlan.Set, res *Result) error {
	live, err := dev.VLANs(ctx)
	if err != nil {
		return fmt.Errorf("reading VLAN directory: %w", err)
	}

	seen := vlan.NewSet()
	for _, lv := range live {
		seen.Add(lv.ID)
		if want.Has(lv.ID) {
			name := desired.name(lv.ID)
			if lv.Name == name {
				continue
			}
			c := Change{Kind: RenameVLAN, VLAN: lv.ID, Name: name, From: lv.Name}
			if err := e.apply(res, c, func() error { return dev.RenameVLAN(ctx, lv.ID, name) }); err != nil {
				return err
			}
			continue
		}
		if !e.cfg.Policy.removeVLAN(h, lv) {
			continue
		}
		c := Change{Kind: DeleteVLAN, VLAN: lv.ID}
		if err := e.apply(res, c, func() error { return dev.DeleteVLAN(ctx, lv.ID) }); err != nil {
			return err
		}
	}

	for _, id := range want.Diff(seen).Sorted() {
		name := desired.name(id)
		c := Change{Kind: CreateVLAN, VLAN: id, Name: name}
		if err := e.apply(res, c, func() error { return dev.CreateVLAN(ctx, id, name) }); err != nil {
			return err
		}
	}
	return nil
}

// syncPorts walks the device's ports that carry a declared link to another
// device in the map.
func (e *Engine) syncPorts(ctx context.Context, dev Device, desired Desired, h *inventory.Host, want vlan.Set, res *Result) error {
	links := make(map[string]inventory.Link)
	for _, l := range h.Links {
		if _, ok := desired.VLANMap[l.Remote]; ok {
			links[e.cfg.PortName(l.Port)] = l
		}
	}
	if len(links) == 0 {
		return nil
	}

	ports, err := dev.Ports(ctx)
	if err != nil {
		return fmt.Errorf("listing ports: %w", err)
	}
	for _, p := range ports {
		l, ok := links[p.Name]
		if !ok {
			continue
		}
		pv := PortView{Host: h, Link: l, Port: p, Device: dev}
		if !e.cfg.Policy.editPort(pv) {
			continue
		}

		edit, err := e.cfg.Policy.editPortVLANs(ctx, pv)
		if err != nil {
			return fmt.Errorf("port %s: %w", p.Name, err)
		}
		if edit {
			if err := e.syncTrunk(ctx, pv, want.Intersect(desired.VLANMap[l.Remote]), res); err != nil {
				return err
			}
		}

		if e.cfg.Policy.renamePort(pv) {
			if err := e.syncAlias(ctx, pv, res); err != nil {
				return err
			}
		}
	}
	return nil
}

func (e *Engine) syncTrunk(ctx context.Context, pv PortView, link vlan.Set, res *Result) error {
	current, err := pv.Device.TrunkVLANs(ctx, pv.Port)
	if err != nil {
		return fmt.Errorf("port %s: %w", pv.Port.Name, err)
	}

	if missing := link.Diff(current).Sorted(); len(missing) > 0 {
		c := Change{Kind: AddTrunkVLANs, Port: pv.Port.Name, VLANs: missing}
		err := e.apply(res, c, func() error {
			return pv.Device.ActivateVLANs(ctx, pv.Port, refs(missing)...)
		})
		if err != nil {
			return err
		}
	}

	var extra []vlan.ID
	for _, id := range current.Diff(link).Sorted() {
		if e.cfg.Policy.removePortVLAN(pv, id) {
			extra = append(extra, id)
		}
	}
	if len(extra) == 0 {
		return nil
	}
	c := Change{Kind: RemoveTrunkVLANs, Port: pv.Port.Name, VLANs: extra}
	return e.apply(res, c, func() error {
		return pv.Device.DeactivateVLANs(ctx, pv.Port, refs(extra)...)
	})
}

func (e *Engine) syncAlias(ctx context.Context, pv PortView, res *Result) error {
	current, err := pv.Device.PortAlias(ctx, pv.Port)
	if err != nil {
		return fmt.Errorf("port %s: %w", pv.Port.Name, err)
	}
	alias := e.cfg.Policy.portAlias(pv)
	if alias == current {
		return nil
	}
	c := Change{Kind: SetPortAlias, Port: pv.Port.Name, Name: alias, From: current}
	return e.apply(res, c, func() error { return pv.Device.SetPortAlias(ctx, pv.Port, alias) })
}

// apply logs c and, unless dry-running, performs it. Only changes that took
// effect (or would have) are recorded.
func (e *Engine) apply(res *Result, c Change, do func() error) error {
	log := util.WithDevice(res.Device).WithField("change", string(c.Kind))
	if e.cfg.DryRun {
		log.Infof("would %s", c)
		res.Changes = append(res.Changes, c)
		return nil
	}
	log.Info(c.String())
	if err := do(); err != nil {
		return fmt.Errorf("%s: %w", c, err)
	}
	res.Changes = append(res.Changes, c)
	return nil
}

// name is the declared name for id, or the switch's factory name when id
// is not in the directory.
func (d Desired) name(id vlan.ID) string {
	if v, ok := d.VLANs[id]; ok && v.Name != "" {
		return v.Name
	}
	return fmt.Sprintf("VLAN%04d", int(id))
}

func refs(ids []vlan.ID) []vlan.Ref {
	out := make([]vlan.Ref, len(ids))
	for i, id := range ids {
		out[i] = id
	}
	return out
}

func sortedDevices(m map[string]vlan.Set) []string {
	out := make([]string, 0, len(m))
	for name := range m {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}
