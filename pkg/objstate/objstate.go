/*
Package objstate implements ROSS's in-memory object graph: the State
map from ObjectId to Object, the Patch/BatchPatch mutation vocabulary,
and the atomic apply/conflict-detection/revert machinery.

A State is cheap to mutate but is not internally synchronized: it is
exclusively owned by the Editor while loaded, which serializes access
with its own RWMutex. Concurrent callers must not share a *State
without external locking.
*/
package objstate

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/rossdb/ross/pkg/hashid"
	"github.com/rossdb/ross/pkg/value"
)

// ObjectId identifies an object, globally unique within a repository.
type ObjectId = hashid.Hash16

// UserId identifies the author of a batch of patches.
type UserId = hashid.Hash16

// FieldId indexes a field within an Object's data; 0..=255.
type FieldId = uint8

// Object is the tuple (version, data); data[i] is addressed by
// FieldId i.
type Object struct {
	Version uint32
	Data    []value.Value
}

// Field returns data[i], or Null if i is beyond the object's current
// length.
func (o Object) Field(i FieldId) value.Value {
	if int(i) >= len(o.Data) {
		return value.Null()
	}
	return o.Data[i]
}

// Clone returns a deep-enough copy of o (the Data slice is copied; Value
// itself is an immutable value type).
func (o Object) Clone() Object {
	data := make([]value.Value, len(o.Data))
	copy(data, o.Data)
	return Object{Version: o.Version, Data: data}
}

// SetField writes v at index i, padding with Null up to i if necessary.
func (o *Object) SetField(i FieldId, v value.Value) {
	if int(i) >= len(o.Data) {
		grown := make([]value.Value, int(i)+1)
		copy(grown, o.Data)
		for j := len(o.Data); j < len(grown); j++ {
			grown[j] = value.Null()
		}
		o.Data = grown
	}
	o.Data[i] = v
}

// State is the mapping ObjectId -> Object. The zero value is not ready
// for use; construct with New.
type State struct {
	objects map[ObjectId]Object
}

// New returns an empty State; a repository's initial state is always
// empty.
func New() *State {
	return &State{objects: make(map[ObjectId]Object)}
}

// Get returns the object at id and whether it exists.
func (s *State) Get(id ObjectId) (Object, bool) {
	o, ok := s.objects[id]
	return o, ok
}

// Len reports the number of live objects.
func (s *State) Len() int { return len(s.objects) }

// Range calls f for every (id, object) pair. Iteration order is
// unspecified, matching Go map semantics.
func (s *State) Range(f func(id ObjectId, obj Object) bool) {
	for id, obj := range s.objects {
		if !f(id, obj) {
			return
		}
	}
}

// Insert sets id's object to obj, overwriting any existing entry. Used
// by pkg/delta's ApplyTrusted to replay Inserted/Updated entries.
func (s *State) Insert(id ObjectId, obj Object) {
	s.objects[id] = obj
}

// Delete removes id from the state if present. Used by pkg/delta's
// ApplyTrusted to replay Deleted entries.
func (s *State) Delete(id ObjectId) {
	delete(s.objects, id)
}

// Clone returns a deep copy of s, used when diffing a base against a
// derived state (pkg/delta) without mutating the original.
func (s *State) Clone() *State {
	out := &State{objects: make(map[ObjectId]Object, len(s.objects))}
	for id, obj := range s.objects {
		out.objects[id] = obj.Clone()
	}
	return out
}

// MarshalJSON encodes State as its object map in the untagged
// client-facing form, used by pkg/protocol's FullSync. Persistence does
// not go through this form; pkg/storage carries every value in its
// tagged binary encoding instead.
func (s *State) MarshalJSON() ([]byte, error) {
	return json.Marshal(s.objects)
}

// UnmarshalJSON is MarshalJSON's inverse.
func (s *State) UnmarshalJSON(data []byte) error {
	objects := make(map[ObjectId]Object)
	if err := json.Unmarshal(data, &objects); err != nil {
		return err
	}
	s.objects = objects
	return nil
}

// --- Patch / BatchPatch ---

// PatchKind tags the active variant of a Patch.
type PatchKind int

const (
	PatchCreate PatchKind = iota
	PatchDelete
	PatchCAS
	PatchTouch
)

func (k PatchKind) String() string {
	switch k {
	case PatchCreate:
		return "Create"
	case PatchDelete:
		return "Delete"
	case PatchCAS:
		return "CAS"
	case PatchTouch:
		return "Touch"
	default:
		return fmt.Sprintf("PatchKind(%d)", int(k))
	}
}

// Patch is a single atomic mutation atom. Exactly the fields relevant to
// Kind are meaningful; a tagged union with exhaustive match, not an
// interface hierarchy.
type Patch struct {
	Kind PatchKind
	ID   ObjectId

	// Create
	Data    []value.Value
	Version uint32

	// CAS
	Field  FieldId
	Base   value.Value
	Target value.Value
}

// NewCreate builds a Create patch. version defaults to 0.
func NewCreate(id ObjectId, data []value.Value, version ...uint32) Patch {
	v := uint32(0)
	if len(version) > 0 {
		v = version[0]
	}
	return Patch{Kind: PatchCreate, ID: id, Data: data, Version: v}
}

// NewDelete builds a Delete patch, which succeeds iff the live object's
// version is <= the provided version.
func NewDelete(id ObjectId, version uint32) Patch {
	return Patch{Kind: PatchDelete, ID: id, Version: version}
}

// NewCAS builds a compare-and-swap patch on a single field.
func NewCAS(id ObjectId, field FieldId, base, target value.Value) Patch {
	return Patch{Kind: PatchCAS, ID: id, Field: field, Base: base, Target: target}
}

// NewTouch builds a Touch patch: asserts existence and bumps version.
func NewTouch(id ObjectId) Patch {
	return Patch{Kind: PatchTouch, ID: id}
}

// ActionTag is an opaque, application-defined classification of what
// produced a batch (e.g. which UI action), carried but never
// interpreted by the core.
type ActionTag uint32

// BatchPatch is an atomic, ordered sequence of Patches from one author.
type BatchPatch struct {
	Patches []Patch
	Author  UserId
	Action  ActionTag
	Time    time.Time
}

// --- Conflicts ---

// ConflictKind tags the kind of detected conflict.
type ConflictKind int

const (
	ConflictIdCollision ConflictKind = iota
	ConflictWriteDelete
	ConflictDeleteWrite
	ConflictCAS
)

func (k ConflictKind) String() string {
	switch k {
	case ConflictIdCollision:
		return "IdCollision"
	case ConflictWriteDelete:
		return "WriteDelete"
	case ConflictDeleteWrite:
		return "DeleteWrite"
	case ConflictCAS:
		return "CAS"
	default:
		return fmt.Sprintf("ConflictKind(%d)", int(k))
	}
}

// Conflict is a structured failure value returned from Apply, not a Go
// error. Field is only meaningful for ConflictCAS.
type Conflict struct {
	Kind  ConflictKind
	ID    ObjectId
	Field FieldId
}

func (c Conflict) Error() string {
	if c.Kind == ConflictCAS {
		return fmt.Sprintf("%s conflict on object %s field %d", c.Kind, c.ID, c.Field)
	}
	return fmt.Sprintf("%s conflict on object %s", c.Kind, c.ID)
}

// --- Delta entries produced by Apply ---

// EntryKind tags a Delta entry's variant.
type EntryKind int

const (
	EntryDeleted EntryKind = iota
	EntryInserted
	EntryUpdated
)

// DeltaEntry is the per-object change record for one id.
type DeltaEntry struct {
	Kind EntryKind

	// Inserted
	Data    []value.Value
	Version uint32

	// Updated
	DeltaVersion int16
	FieldChanges map[FieldId]value.Value
}

// Delta maps each changed object to its entry. It is a forward or
// backward delta depending on how it was produced: forward mirrors what
// Apply just did, backward (the "revertDelta") exactly inverts it.
type Delta map[ObjectId]DeltaEntry

// --- Apply ---

// invariantViolation panics; used for states that can only arise from a
// broken caller contract (an underflowing version, a trusted apply
// whose precondition was violated).
func invariantViolation(format string, args ...interface{}) {
	panic(fmt.Sprintf("objstate: invariant violation: "+format, args...))
}

// Apply applies batch to s. When trusted is false, it first runs a
// read-only conflict scan; if any conflicts are found,
// s is left unchanged and the conflicts are returned. When trusted is
// true (replaying a previously-validated batch from the persisted live
// changes log, or re-applying a revert), the scan is skipped.
//
// On success, Apply returns the delta that exactly inverts this batch:
// applying it via pkg/delta's trusted apply restores s to its pre-call
// contents, object for object, field for field. That includes the case
// where a client deletes and immediately re-creates the same id within
// one batch: the revert is built from a before/after comparison per
// object, so it re-inserts the authoritative pre-batch object rather
// than trusting the re-created data.
func (s *State) Apply(batch BatchPatch, trusted bool) (Delta, []Conflict, error) {
	if !trusted {
		if conflicts := s.scanConflicts(batch); len(conflicts) > 0 {
			return nil, conflicts, nil
		}
	}

	type snapshot struct {
		obj    Object
		exists bool
	}
	pre := make(map[ObjectId]snapshot)
	touchOrder := make([]ObjectId, 0, len(batch.Patches))
	bumped := make(map[ObjectId]bool)

	capture := func(id ObjectId) {
		if _, seen := pre[id]; seen {
			return
		}
		obj, exists := s.objects[id]
		pre[id] = snapshot{obj: obj.Clone(), exists: exists}
		touchOrder = append(touchOrder, id)
	}

	for _, p := range batch.Patches {
		capture(p.ID)

		switch p.Kind {
		case PatchCreate:
			data := make([]value.Value, len(p.Data))
			copy(data, p.Data)
			s.objects[p.ID] = Object{Version: p.Version, Data: data}

		case PatchDelete:
			delete(s.objects, p.ID)

		case PatchCAS:
			obj, exists := s.objects[p.ID]
			if !exists {
				// Only reachable when trusted==true and the persisted
				// log is corrupt: the untrusted path already rejected
				// this with ConflictDeleteWrite.
				invariantViolation("CAS target %s missing during trusted apply", p.ID)
			}
			current := obj.Field(p.Field)
			if current.Equal(p.Target) {
				// Idempotent: no mutation, no version bump.
				continue
			}
			obj.SetField(p.Field, p.Target)
			if !bumped[p.ID] {
				obj.Version++
				bumped[p.ID] = true
			}
			s.objects[p.ID] = obj

		case PatchTouch:
			obj, exists := s.objects[p.ID]
			if !exists {
				invariantViolation("Touch target %s missing during trusted apply", p.ID)
			}
			if !bumped[p.ID] {
				obj.Version++
				bumped[p.ID] = true
			}
			s.objects[p.ID] = obj

		default:
			return nil, nil, fmt.Errorf("objstate: unknown patch kind %v", p.Kind)
		}
	}

	revert := make(Delta, len(touchOrder))
	for _, id := range touchOrder {
		before := pre[id]
		after, afterExists := s.objects[id]

		switch {
		case !before.exists && afterExists:
			// Forward: Inserted. Revert: Deleted.
			revert[id] = DeltaEntry{Kind: EntryDeleted}

		case before.exists && !afterExists:
			// Forward: Deleted. Revert: Inserted with the original data.
			revert[id] = DeltaEntry{
				Kind:    EntryInserted,
				Data:    before.obj.Data,
				Version: before.obj.Version,
			}

		case before.exists && afterExists:
			changes := fieldDiff(after.Data, before.obj.Data)
			dv := int32(before.obj.Version) - int32(after.Version)
			if dv < -0x8000 || dv > 0x7fff {
				invariantViolation("version delta %d for object %s overflows int16", dv, id)
			}
			revert[id] = DeltaEntry{
				Kind:         EntryUpdated,
				DeltaVersion: int16(dv),
				FieldChanges: changes,
			}

		default:
			// Touched but never existed either side: nothing to revert.
		}
	}

	return revert, nil, nil
}

// fieldDiff returns, for every field index where cur and want disagree
// (treating a short slice as Null-padded), the value in want, i.e. the
// set of field writes that would turn cur into want.
func fieldDiff(cur, want []value.Value) map[FieldId]value.Value {
	n := len(cur)
	if len(want) > n {
		n = len(want)
	}
	changes := make(map[FieldId]value.Value)
	for i := 0; i < n; i++ {
		var c, w value.Value
		if i < len(cur) {
			c = cur[i]
		} else {
			c = value.Null()
		}
		if i < len(want) {
			w = want[i]
		} else {
			w = value.Null()
		}
		if !c.Equal(w) {
			changes[FieldId(i)] = w
		}
	}
	return changes
}

// scanConflicts is the validation phase: a read-only pass over batch
// that simulates the patches in arrival order against an overlay of the
// real state, so a Create following a same-batch Delete of the same id
// is correctly seen as available rather than colliding with the object
// that still exists in s.
func (s *State) scanConflicts(batch BatchPatch) []Conflict {
	type overlayEntry struct {
		obj    Object
		exists bool
	}
	overlay := make(map[ObjectId]overlayEntry)

	lookup := func(id ObjectId) (Object, bool) {
		if ov, ok := overlay[id]; ok {
			return ov.obj, ov.exists
		}
		obj, exists := s.objects[id]
		return obj, exists
	}

	var conflicts []Conflict
	for _, p := range batch.Patches {
		switch p.Kind {
		case PatchCreate:
			if _, exists := lookup(p.ID); exists {
				conflicts = append(conflicts, Conflict{Kind: ConflictIdCollision, ID: p.ID})
				continue
			}
			overlay[p.ID] = overlayEntry{exists: true, obj: Object{Version: p.Version, Data: append([]value.Value{}, p.Data...)}}

		case PatchDelete:
			obj, exists := lookup(p.ID)
			if !exists {
				// Idempotent delete of a missing object is not an error.
				overlay[p.ID] = overlayEntry{exists: false}
				continue
			}
			if obj.Version > p.Version {
				conflicts = append(conflicts, Conflict{Kind: ConflictWriteDelete, ID: p.ID})
				continue
			}
			overlay[p.ID] = overlayEntry{exists: false}

		case PatchCAS:
			obj, exists := lookup(p.ID)
			if !exists {
				conflicts = append(conflicts, Conflict{Kind: ConflictDeleteWrite, ID: p.ID})
				continue
			}
			current := obj.Field(p.Field)
			if current.Equal(p.Target) {
				continue // idempotent no-op
			}
			if !current.Equal(p.Base) {
				conflicts = append(conflicts, Conflict{Kind: ConflictCAS, ID: p.ID, Field: p.Field})
				continue
			}
			clone := obj.Clone()
			clone.SetField(p.Field, p.Target)
			overlay[p.ID] = overlayEntry{exists: true, obj: clone}

		case PatchTouch:
			obj, exists := lookup(p.ID)
			if !exists {
				conflicts = append(conflicts, Conflict{Kind: ConflictDeleteWrite, ID: p.ID})
				continue
			}
			overlay[p.ID] = overlayEntry{exists: true, obj: obj}
		}
	}
	return conflicts
}
