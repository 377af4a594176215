// Package reconcile brings an external playlist in line with a materialized
// track set using the minimal set of add and remove calls.
//
// The same diff and chunking primitives back the inbound mirror, where the
// remote collection is the source of truth and local rows are the target.
package reconcile

import "slices"

// Diff is the work needed to turn current into desired.
type Diff struct {
	PlaylistID string
	// ToAdd keeps the order of desired.
	ToAdd []string
	// ToRemove is sorted.
	ToRemove []string
}

// Empty reports whether there is nothing to apply.
func (d Diff) Empty() bool {
	return len(d.ToAdd) == 0 && len(d.ToRemove) == 0
}

// Reconcile computes toAdd = desired - current and toRemove = current - desired.
// Every member of current that is not desired is removed, so after a clean
// apply the external playlist holds exactly the desired set.
func Reconcile(playlistExternalID string, desired, current []string) Diff {
	desiredSet := make(map[string]struct{}, len(desired))
	for _, id := range desired {
		desiredSet[id] = struct{}{}
	}
	currentSet := make(map[string]struct{}, len(current))
	for _, id := range current {
		currentSet[id] = struct{}{}
	}

	d := Diff{PlaylistID: playlistExternalID}

	seen := make(map[string]struct{}, len(desired))
	for _, id := range desired {
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		if _, ok := currentSet[id]; !ok {
			d.ToAdd = append(d.ToAdd, id)
		}
	}

	for id := range currentSet {
		if _, ok := desiredSet[id]; !ok {
			d.ToRemove = append(d.ToRemove, id)
		}
	}
	slices.Sort(d.ToRemove)

	return d
}
