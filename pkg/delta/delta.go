/*
Package delta turns the Delta produced by objstate.State.Apply into
something that can be replayed without re-running the batch it came
from (ApplyTrusted), diffs two States into a Delta from scratch (used
to build a commit's compact delta from a branch's accumulated live
changes), and defines SnapshotEntry, the recursive (base, delta)
representation a commit's state is actually stored under.
*/
package delta

import (
	"fmt"

	"github.com/rossdb/ross/pkg/hashid"
	"github.com/rossdb/ross/pkg/objstate"
	"github.com/rossdb/ross/pkg/value"
)

// ApplyTrusted applies every entry of d to s in map order. Entries on
// distinct objects commute, so iteration order never matters. It panics
// if an Updated entry targets an object missing from s; that can only
// happen if d was built against a different base state than s actually
// is.
func ApplyTrusted(s *objstate.State, d objstate.Delta) {
	for id, entry := range d {
		switch entry.Kind {
		case objstate.EntryDeleted:
			s.Delete(id)

		case objstate.EntryInserted:
			s.Insert(id, objstate.Object{Version: entry.Version, Data: entry.Data})

		case objstate.EntryUpdated:
			obj, ok := s.Get(id)
			if !ok {
				panic(fmt.Sprintf("delta: trusted apply: Updated entry for missing object %s", id))
			}
			obj = obj.Clone()
			bumpVersion(&obj, entry.DeltaVersion)
			for field, v := range entry.FieldChanges {
				obj.SetField(field, v)
			}
			s.Insert(id, obj)

		default:
			panic(fmt.Sprintf("delta: unknown entry kind %v", entry.Kind))
		}
	}
}

// bumpVersion applies a signed version delta, asserting rather than
// silently wrapping on underflow.
func bumpVersion(obj *objstate.Object, dv int16) {
	if dv >= 0 {
		obj.Version += uint32(dv)
		return
	}
	dec := uint32(-int32(dv))
	if dec > obj.Version {
		panic(fmt.Sprintf("delta: version underflow applying Δ%d to version %d", dv, obj.Version))
	}
	obj.Version -= dec
}

// Diff computes the compact delta that turns base into derived: keys
// only in derived are Inserted, keys only in base are Deleted, keys in
// both with an identical version are skipped, and keys in both with
// differing versions get a field-by-field Updated entry.
//
// Diff is used to build a commit's CommitDelta from the branch's
// accumulated live BatchPatches: rather than concatenating every
// per-patch revert/forward delta (which would retain redundant
// intermediate field writes), the commit simply diffs the resolved
// state at the branch head against the state right before commit.
func Diff(base, derived *objstate.State) objstate.Delta {
	d := make(objstate.Delta)

	derived.Range(func(id hashid.Hash16, after objstate.Object) bool {
		before, existed := base.Get(id)
		switch {
		case !existed:
			d[id] = objstate.DeltaEntry{
				Kind:    objstate.EntryInserted,
				Data:    after.Data,
				Version: after.Version,
			}
		case before.Version == after.Version:
			// Unchanged, skip.
		default:
			changes := fieldDiff(before.Data, after.Data)
			d[id] = objstate.DeltaEntry{
				Kind:         objstate.EntryUpdated,
				DeltaVersion: versionDelta(before.Version, after.Version),
				FieldChanges: changes,
			}
		}
		return true
	})

	base.Range(func(id hashid.Hash16, _ objstate.Object) bool {
		if _, stillExists := derived.Get(id); !stillExists {
			d[id] = objstate.DeltaEntry{Kind: objstate.EntryDeleted}
		}
		return true
	})

	return d
}

func versionDelta(before, after uint32) int16 {
	dv := int64(after) - int64(before)
	if dv < -0x8000 || dv > 0x7fff {
		panic(fmt.Sprintf("delta: version delta %d overflows int16", dv))
	}
	return int16(dv)
}

func fieldDiff(before, after []value.Value) map[objstate.FieldId]value.Value {
	n := len(before)
	if len(after) > n {
		n = len(after)
	}
	changes := make(map[objstate.FieldId]value.Value)
	for i := 0; i < n; i++ {
		b := fieldAt(before, i)
		a := fieldAt(after, i)
		if !b.Equal(a) {
			changes[objstate.FieldId(i)] = a
		}
	}
	return changes
}

func fieldAt(data []value.Value, i int) value.Value {
	if i >= len(data) {
		return value.Null()
	}
	return data[i]
}

// SnapshotEntry is how a commit's resolved State is stored: either the
// full image, or a reference to a base commit plus the
// delta that turns the base's resolved state into this one. Reading
// resolves the chain recursively until a Snapshot is found.
type SnapshotEntry struct {
	IsSnapshot bool

	// Snapshot
	State *objstate.State

	// Delta
	Base  hashid.Hash20
	Delta objstate.Delta
}

// NewSnapshot wraps a full State image.
func NewSnapshot(s *objstate.State) SnapshotEntry {
	return SnapshotEntry{IsSnapshot: true, State: s}
}

// NewDeltaEntry wraps a (base commit, delta) pair.
func NewDeltaEntry(base hashid.Hash20, d objstate.Delta) SnapshotEntry {
	return SnapshotEntry{IsSnapshot: false, Base: base, Delta: d}
}

// Resolver resolves a CommitId to its stored SnapshotEntry. pkg/engine
// implements this against pkg/storage; kept as an interface here so
// Resolve has no storage dependency and can be unit-tested with a plain
// map.
type Resolver interface {
	SnapshotEntry(commit hashid.Hash20) (SnapshotEntry, error)
}

// Resolve walks the SnapshotEntry chain starting at commit until it
// finds a full Snapshot, applying every intervening Delta in turn.
func Resolve(r Resolver, commit hashid.Hash20) (*objstate.State, error) {
	chain := make([]objstate.Delta, 0, 4)
	cur := commit
	for {
		entry, err := r.SnapshotEntry(cur)
		if err != nil {
			return nil, fmt.Errorf("delta: resolve %s: %w", cur, err)
		}
		if entry.IsSnapshot {
			state := entry.State.Clone()
			for i := len(chain) - 1; i >= 0; i-- {
				ApplyTrusted(state, chain[i])
			}
			return state, nil
		}
		chain = append(chain, entry.Delta)
		cur = entry.Base
	}
}
