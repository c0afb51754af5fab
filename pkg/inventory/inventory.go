// Package inventory loads the declared state of the switch fleet: the VLAN
// directory, the hosts with their management addresses, which VLANs each
// host needs, and how hosts are cabled together.
package inventory

import (
	"fmt"
	"os"
	"sort"

	"gopkg.in/yaml.v3"

	"github.com/newtron-network/vtpsync/pkg/topology"
	"github.com/newtron-network/vtpsync/pkg/util"
	"github.com/newtron-network/vtpsync/pkg/vlan"
)

// VLAN is a declared VLAN.
type VLAN struct {
	ID   vlan.ID `json:"id"`
	Name string  `json:"name"`
}

// VLANID implements vlan.Ref.
func (v VLAN) VLANID() vlan.ID { return v.ID }

// Link is a cable from a local port to a neighboring host.
type Link struct {
	Port   string `yaml:"port" json:"port"`
	Remote string `yaml:"remote" json:"remote"`
}

// Host is a managed switch.
type Host struct {
	Name      string   `yaml:"-" json:"name"`
	Address   string   `yaml:"address" json:"address"`
	Community string   `yaml:"community,omitempty" json:"-"`
	VLANs     string   `yaml:"vlans,omitempty" json:"vlans,omitempty"`
	Links     []Link   `yaml:"links,omitempty" json:"links,omitempty"`
	Required  vlan.Set `yaml:"-" json:"-"`
}

// Inventory is the parsed inventory file.
type Inventory struct {
	Domain    int              `yaml:"domain"`
	Community string           `yaml:"community,omitempty"`
	Protected string           `yaml:"protected,omitempty"`
	RawVLANs  map[int]string   `yaml:"vlans"`
	Hosts     map[string]*Host `yaml:"hosts"`

	// Resolved by Parse.
	VLANs    map[vlan.ID]VLAN `yaml:"-"`
	Reserved vlan.Set         `yaml:"-"`
}

// Load reads and validates an inventory file.
func Load(path string) (*Inventory, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading inventory file: %w", err)
	}
	inv, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return inv, nil
}

// Parse decodes and validates inventory YAML.
func Parse(data []byte) (*Inventory, error) {
	var inv Inventory
	if err := yaml.Unmarshal(data, &inv); err != nil {
		return nil, fmt.Errorf("parsing inventory YAML: %w", err)
	}
	if err := inv.resolve(); err != nil {
		return nil, err
	}
	return &inv, nil
}

// resolve fills derived fields and collects every problem in one error.
func (inv *Inventory) resolve() error {
	v := &util.ValidationBuilder{}

	if inv.Domain == 0 {
		inv.Domain = 1
	}
	v.Add(inv.Domain > 0, fmt.Sprintf("domain %d must be positive", inv.Domain))

	inv.VLANs = make(map[vlan.ID]VLAN, len(inv.RawVLANs))
	for id, name := range inv.RawVLANs {
		if err := vlan.Validate(vlan.ID(id)); err != nil {
			v.AddErrorf("vlans: %v", err)
			continue
		}
		inv.VLANs[vlan.ID(id)] = VLAN{ID: vlan.ID(id), Name: name}
	}

	reserved, err := vlan.ParseList(inv.Protected)
	if err != nil {
		v.AddErrorf("protected: %v", err)
	}
	inv.Reserved = reserved

	if inv.Hosts == nil {
		inv.Hosts = make(map[string]*Host)
	}
	for _, name := range inv.HostNames() {
		h := inv.Hosts[name]
		if h == nil {
			h = &Host{}
			inv.Hosts[name] = h
		}
		h.Name = name

		req, err := vlan.ParseList(h.VLANs)
		if err != nil {
			v.AddErrorf("host %s: vlans: %v", name, err)
			continue
		}
		for _, id := range req.Sorted() {
			if _, ok := inv.VLANs[id]; !ok {
				v.AddErrorf("host %s: VLAN %d is not declared", name, id)
			}
		}
		h.Required = req

		for i, l := range h.Links {
			v.Add(l.Port != "", fmt.Sprintf("host %s: link %d: port is required", name, i))
			v.Add(l.Remote != "", fmt.Sprintf("host %s: link %d: remote is required", name, i))
		}
	}
	return v.Build()
}

// HostNames returns host names in sorted order.
func (inv *Inventory) HostNames() []string {
	names := make([]string, 0, len(inv.Hosts))
	for name := range inv.Hosts {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Host looks up a host by name.
func (inv *Inventory) Host(name string) (*Host, error) {
	h, ok := inv.Hosts[name]
	if !ok {
		return nil, fmt.Errorf("host %q: %w", name, util.ErrNotFound)
	}
	return h, nil
}

// CommunityFor returns the host's community, falling back to the inventory
// default and then to def.
func (inv *Inventory) CommunityFor(h *Host, def string) string {
	switch {
	case h.Community != "":
		return h.Community
	case inv.Community != "":
		return inv.Community
	}
	return def
}

// Graph builds the adjacency graph: every host first, then every link.
// Links to hosts not in the inventory are dropped.
func (inv *Inventory) Graph() *topology.Graph {
	g := topology.NewGraph()
	names := inv.HostNames()
	for _, name := range names {
		g.AddDevice(name)
	}
	for _, name := range names {
		for _, l := range inv.Hosts[name].Links {
			if !g.Link(name, l.Remote) {
				util.WithDevice(name).Debugf("link %s to %q dropped: remote not in inventory", l.Port, l.Remote)
			}
		}
	}
	return g
}

// Requirements maps each declared VLAN to the sorted hosts that need it.
// Declared VLANs nobody requires map to an empty list.
func (inv *Inventory) Requirements() map[vlan.ID][]string {
	req := make(map[vlan.ID][]string, len(inv.VLANs))
	for id := range inv.VLANs {
		req[id] = []string{}
	}
	for _, name := range inv.HostNames() {
		for id := range inv.Hosts[name].Required {
			req[id] = append(req[id], name)
		}
	}
	return req
}
