// Package capacity maintains an in-memory index of resource group claims and
// answers availability queries for the planner. All mutation happens during
// the single-threaded planning phase; by execution time the index is final.
package capacity

import (
	"fmt"
	"sort"

	"batchcore/pkg/domain"
)

// Window is a half-open day interval [Start, End) relative to the plan epoch.
type Window struct {
	Start int
	End   int
}

// Contains reports whether day falls inside the window.
func (w Window) Contains(day int) bool { return day >= w.Start && day < w.End }

// Overlaps reports whether two windows intersect.
func (w Window) Overlaps(other Window) bool {
	return w.Start < other.End && other.Start < w.End
}

// Valid reports whether the window is non-empty.
func (w Window) Valid() bool { return w.End > w.Start }

// CapacityError reports a failed reservation. Callers decide the fallback
// strategy; the index never retries.
type CapacityError struct {
	GroupID   string
	Requested int
	Free      int
	Window    Window
}

func (e CapacityError) Error() string {
	if e.GroupID == "" {
		return fmt.Sprintf("capacity exhausted: requested %d units for [%d,%d)",
			e.Requested, e.Window.Start, e.Window.End)
	}
	return fmt.Sprintf("capacity exhausted on group %s: requested %d units for [%d,%d), %d free",
		e.GroupID, e.Requested, e.Window.Start, e.Window.End, e.Free)
}

// ReservedUnits names the concrete units claimed by a successful reservation.
type ReservedUnits struct {
	GroupID string
	UnitIDs []string
}

type unit struct {
	id     string
	claims []Window // sorted by Start, pairwise disjoint
}

func (u *unit) freeFor(w Window) bool {
	for _, c := range u.claims {
		if c.Overlaps(w) {
			return false
		}
	}
	return true
}

func (u *unit) claim(w Window) {
	u.claims = append(u.claims, w)
	sort.Slice(u.claims, func(i, j int) bool { return u.claims[i].Start < u.claims[j].Start })
}

type group struct {
	def   domain.ResourceGroup
	units []*unit
}

// Index answers availability queries over a fixed set of resource groups and
// records claims as the planner reserves capacity.
type Index struct {
	groups map[string]*group
	order  []string // group IDs sorted for deterministic scans
}

// NewIndex builds an index over the supplied groups. Unit identifiers are
// derived from the group ID so schedules stay stable across runs.
func NewIndex(groups []domain.ResourceGroup) *Index {
	idx := &Index{groups: make(map[string]*group, len(groups))}
	for _, g := range groups {
		units := make([]*unit, g.UnitCount)
		for i := range units {
			units[i] = &unit{id: fmt.Sprintf("%s-u%02d", g.ID, i+1)}
		}
		idx.groups[g.ID] = &group{def: g, units: units}
		idx.order = append(idx.order, g.ID)
	}
	sort.Strings(idx.order)
	return idx
}

// FreeUnits counts the units of a group that are unclaimed throughout the
// whole window.
func (idx *Index) FreeUnits(groupID string, w Window) int {
	g, ok := idx.groups[groupID]
	if !ok {
		return 0
	}
	free := 0
	for _, u := range g.units {
		if u.freeFor(w) {
			free++
		}
	}
	return free
}

// FindGroup scans candidate groups of the requested kind and region and
// returns the first (by group ID) with capacity for desired units across the
// whole window. An empty region matches any region.
func (idx *Index) FindGroup(kind domain.ResourceKind, region string, w Window, desired int) (string, bool) {
	for _, id := range idx.order {
		g := idx.groups[id]
		if g.def.Kind != kind {
			continue
		}
		if region != "" && g.def.Region != region {
			continue
		}
		if idx.FreeUnits(id, w) >= desired {
			return id, true
		}
	}
	return "", false
}

// Reserve claims count units from the group for the window. The lowest-index
// free units are taken, keeping unit assignment deterministic. On shortfall
// it returns a CapacityError and leaves the index untouched.
func (idx *Index) Reserve(groupID string, w Window, count int) (ReservedUnits, error) {
	g, ok := idx.groups[groupID]
	if !ok {
		return ReservedUnits{}, fmt.Errorf("unknown resource group %s", groupID)
	}
	if !w.Valid() {
		return ReservedUnits{}, fmt.Errorf("invalid window [%d,%d)", w.Start, w.End)
	}
	if count <= 0 {
		return ReservedUnits{}, fmt.Errorf("unit count must be positive, got %d", count)
	}
	var free []*unit
	for _, u := range g.units {
		if u.freeFor(w) {
			free = append(free, u)
			if len(free) == count {
				break
			}
		}
	}
	if len(free) < count {
		return ReservedUnits{}, CapacityError{GroupID: groupID, Requested: count, Free: idx.FreeUnits(groupID, w), Window: w}
	}
	reserved := ReservedUnits{GroupID: groupID}
	for _, u := range free {
		u.claim(w)
		reserved.UnitIDs = append(reserved.UnitIDs, u.id)
	}
	return reserved, nil
}

// ClaimedUnitDays sums unit-days claimed across the whole index.
func (idx *Index) ClaimedUnitDays() int {
	total := 0
	for _, id := range idx.order {
		for _, u := range idx.groups[id].units {
			for _, c := range u.claims {
				total += c.End - c.Start
			}
		}
	}
	return total
}

// TotalUnitDays returns the capacity of the index over the given horizon,
// used for saturation reporting.
func (idx *Index) TotalUnitDays(horizon Window) int {
	if !horizon.Valid() {
		return 0
	}
	total := 0
	for _, id := range idx.order {
		total += idx.groups[id].def.UnitCount * (horizon.End - horizon.Start)
	}
	return total
}
