// Package topology models switch adjacency and prunes, per VLAN, the set of
// devices that must carry it so that every redundant path between devices
// needing the VLAN survives.
package topology

import (
	"sort"

	"github.com/newtron-network/vtpsync/pkg/vlan"
)

// Graph is an undirected adjacency graph keyed by device name.
type Graph struct {
	adj map[string]map[string]struct{}
}

// NewGraph returns an empty graph.
func NewGraph() *Graph {
	return &Graph{adj: make(map[string]map[string]struct{})}
}

// AddDevice registers a device. Registering twice is harmless.
func (g *Graph) AddDevice(name string) {
	if _, ok := g.adj[name]; !ok {
		g.adj[name] = make(map[string]struct{})
	}
}

// HasDevice reports whether name is registered.
func (g *Graph) HasDevice(name string) bool {
	_, ok := g.adj[name]
	return ok
}

// Link connects a and b. Links naming an unregistered device and self-links
// are ignored; devices must be registered before they are linked.
func (g *Graph) Link(a, b string) bool {
	if a == b || !g.HasDevice(a) || !g.HasDevice(b) {
		return false
	}
	g.adj[a][b] = struct{}{}
	g.adj[b][a] = struct{}{}
	return true
}

// Neighbors returns the sorted neighbors of name.
func (g *Graph) Neighbors(name string) []string {
	return sortedKeys(g.adj[name])
}

// Devices returns every registered device, sorted.
func (g *Graph) Devices() []string {
	out := make([]string, 0, len(g.adj))
	for name := range g.adj {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}

// Minimize returns the required devices plus every device lying on a simple
// path between two devices of the result. Redundant paths are all kept; the
// result is not a spanning tree. Required devices unknown to the graph are
// still returned. The result is sorted.
func (g *Graph) Minimize(required []string) []string {
	result := make(map[string]struct{}, len(required))
	for _, r := range required {
		result[r] = struct{}{}
	}

	for changed := true; changed; {
		changed = false
		for _, v := range g.Devices() {
			if _, ok := result[v]; ok {
				continue
			}
			if g.disjointPaths(v, result) >= 2 {
				result[v] = struct{}{}
				changed = true
			}
		}
	}
	return sortedKeys(result)
}

// disjointPaths counts, up to two, paths from v to distinct members of
// targets that share no device other than v. Two such paths joined at v form
// a simple path between two targets through v.
func (g *Graph) disjointPaths(v string, targets map[string]struct{}) int {
	names := g.Devices()
	index := make(map[string]int, len(names))
	for i, n := range names {
		index[n] = i
	}

	// Every device is split into in (2i) and out (2i+1) joined by a unit
	// edge, so each device carries at most one path. Targets drain from their
	// out side into the sink, so a target either ends a path or is crossed by
	// one, and two paths must end at different targets.
	sink := 2 * len(names)
	f := newFlow(sink + 1)
	for i, n := range names {
		if n != v {
			f.add(2*i, 2*i+1, 1)
		}
		if _, ok := targets[n]; ok && n != v {
			f.add(2*i+1, sink, 1)
		}
		for m := range g.adj[n] {
			f.add(2*i+1, 2*index[m], 1)
		}
	}
	return f.max(2*index[v]+1, sink, 2)
}

// VLANMap minimizes the required device list of every VLAN.
func (g *Graph) VLANMap(required map[vlan.ID][]string) map[vlan.ID][]string {
	out := make(map[vlan.ID][]string, len(required))
	for id, devs := range required {
		out[id] = g.Minimize(devs)
	}
	return out
}

// Invert turns VLAN → devices into device → VLANs.
func Invert(m map[vlan.ID][]string) map[string]vlan.Set {
	out := make(map[string]vlan.Set)
	for id, devs := range m {
		for _, d := range devs {
			if out[d] == nil {
				out[d] = vlan.NewSet()
			}
			out[d].Add(id)
		}
	}
	return out
}

func sortedKeys(m map[string]struct{}) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}
