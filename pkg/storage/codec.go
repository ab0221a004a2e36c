package storage

import (
	"fmt"
	"time"

	"github.com/rossdb/ross/pkg/delta"
	"github.com/rossdb/ross/pkg/hashid"
	"github.com/rossdb/ross/pkg/objstate"
	"github.com/rossdb/ross/pkg/value"
)

// Persisted records that carry PrimitiveValues do not reuse the domain
// types' JSON form: that form is untagged for clients, which makes it
// lossy for the union. A stored String that happens to be 32 hex chars
// would reload as a Hash16, and a whole-number F64 would reload as a
// U32. The stored* mirror types below keep the record containers as
// plain JSON but carry every value as its tagged binary encoding
// (value.MarshalBinary, base64 inside the JSON document), so a reload
// restores the exact variant that was written.

// storedValue is one tagged-binary value; encoding/json renders []byte
// as a base64 string.
type storedValue []byte

func encodeValue(v value.Value) (storedValue, error) {
	b, err := v.MarshalBinary()
	if err != nil {
		return nil, fmt.Errorf("storage: encode value: %w", err)
	}
	return b, nil
}

func decodeValue(b storedValue) (value.Value, error) {
	var v value.Value
	if err := v.UnmarshalBinary(b); err != nil {
		return value.Value{}, fmt.Errorf("storage: decode value: %w", err)
	}
	return v, nil
}

func encodeValues(vs []value.Value) ([]storedValue, error) {
	if vs == nil {
		return nil, nil
	}
	out := make([]storedValue, len(vs))
	for i, v := range vs {
		enc, err := encodeValue(v)
		if err != nil {
			return nil, err
		}
		out[i] = enc
	}
	return out, nil
}

func decodeValues(vs []storedValue) ([]value.Value, error) {
	if vs == nil {
		return nil, nil
	}
	out := make([]value.Value, len(vs))
	for i, enc := range vs {
		v, err := decodeValue(enc)
		if err != nil {
			return nil, err
		}
		out[i] = v
	}
	return out, nil
}

// --- State ---

type storedObject struct {
	Version uint32        `json:"version"`
	Data    []storedValue `json:"data"`
}

type storedState map[hashid.Hash16]storedObject

func encodeState(s *objstate.State) (storedState, error) {
	out := make(storedState, s.Len())
	var encErr error
	s.Range(func(id hashid.Hash16, obj objstate.Object) bool {
		data, err := encodeValues(obj.Data)
		if err != nil {
			encErr = err
			return false
		}
		out[id] = storedObject{Version: obj.Version, Data: data}
		return true
	})
	if encErr != nil {
		return nil, encErr
	}
	return out, nil
}

func decodeState(in storedState) (*objstate.State, error) {
	s := objstate.New()
	for id, obj := range in {
		data, err := decodeValues(obj.Data)
		if err != nil {
			return nil, err
		}
		s.Insert(id, objstate.Object{Version: obj.Version, Data: data})
	}
	return s, nil
}

// --- Delta ---

type storedDeltaEntry struct {
	Kind         int                   `json:"kind"`
	Data         []storedValue         `json:"data,omitempty"`
	Version      uint32                `json:"version,omitempty"`
	DeltaVersion int16                 `json:"delta_version,omitempty"`
	FieldChanges map[uint8]storedValue `json:"field_changes,omitempty"`
}

type storedDelta map[hashid.Hash16]storedDeltaEntry

func encodeDelta(d objstate.Delta) (storedDelta, error) {
	out := make(storedDelta, len(d))
	for id, entry := range d {
		data, err := encodeValues(entry.Data)
		if err != nil {
			return nil, err
		}
		var changes map[uint8]storedValue
		if entry.FieldChanges != nil {
			changes = make(map[uint8]storedValue, len(entry.FieldChanges))
			for field, v := range entry.FieldChanges {
				enc, err := encodeValue(v)
				if err != nil {
					return nil, err
				}
				changes[field] = enc
			}
		}
		out[id] = storedDeltaEntry{
			Kind:         int(entry.Kind),
			Data:         data,
			Version:      entry.Version,
			DeltaVersion: entry.DeltaVersion,
			FieldChanges: changes,
		}
	}
	return out, nil
}

func decodeDelta(in storedDelta) (objstate.Delta, error) {
	out := make(objstate.Delta, len(in))
	for id, entry := range in {
		data, err := decodeValues(entry.Data)
		if err != nil {
			return nil, err
		}
		var changes map[objstate.FieldId]value.Value
		if entry.FieldChanges != nil {
			changes = make(map[objstate.FieldId]value.Value, len(entry.FieldChanges))
			for field, enc := range entry.FieldChanges {
				v, err := decodeValue(enc)
				if err != nil {
					return nil, err
				}
				changes[field] = v
			}
		}
		out[id] = objstate.DeltaEntry{
			Kind:         objstate.EntryKind(entry.Kind),
			Data:         data,
			Version:      entry.Version,
			DeltaVersion: entry.DeltaVersion,
			FieldChanges: changes,
		}
	}
	return out, nil
}

// --- BatchPatch ---

type storedPatch struct {
	Kind    int           `json:"kind"`
	ID      hashid.Hash16 `json:"id"`
	Data    []storedValue `json:"data,omitempty"`
	Version uint32        `json:"version,omitempty"`
	Field   uint8         `json:"field,omitempty"`
	Base    storedValue   `json:"base,omitempty"`
	Target  storedValue   `json:"target,omitempty"`
}

type storedBatch struct {
	Patches []storedPatch `json:"patches"`
	Author  hashid.Hash16 `json:"author"`
	Action  uint32        `json:"action,omitempty"`
	Time    time.Time     `json:"time"`
}

func encodeBatch(b objstate.BatchPatch) (storedBatch, error) {
	patches := make([]storedPatch, len(b.Patches))
	for i, p := range b.Patches {
		data, err := encodeValues(p.Data)
		if err != nil {
			return storedBatch{}, err
		}
		base, err := encodeValue(p.Base)
		if err != nil {
			return storedBatch{}, err
		}
		target, err := encodeValue(p.Target)
		if err != nil {
			return storedBatch{}, err
		}
		patches[i] = storedPatch{
			Kind:    int(p.Kind),
			ID:      p.ID,
			Data:    data,
			Version: p.Version,
			Field:   p.Field,
			Base:    base,
			Target:  target,
		}
	}
	return storedBatch{
		Patches: patches,
		Author:  b.Author,
		Action:  uint32(b.Action),
		Time:    b.Time,
	}, nil
}

func decodeBatch(in storedBatch) (objstate.BatchPatch, error) {
	patches := make([]objstate.Patch, len(in.Patches))
	for i, p := range in.Patches {
		data, err := decodeValues(p.Data)
		if err != nil {
			return objstate.BatchPatch{}, err
		}
		base, err := decodeValue(p.Base)
		if err != nil {
			return objstate.BatchPatch{}, err
		}
		target, err := decodeValue(p.Target)
		if err != nil {
			return objstate.BatchPatch{}, err
		}
		patches[i] = objstate.Patch{
			Kind:    objstate.PatchKind(p.Kind),
			ID:      p.ID,
			Data:    data,
			Version: p.Version,
			Field:   p.Field,
			Base:    base,
			Target:  target,
		}
	}
	return objstate.BatchPatch{
		Patches: patches,
		Author:  in.Author,
		Action:  objstate.ActionTag(in.Action),
		Time:    in.Time,
	}, nil
}

// --- SnapshotEntry ---

type storedSnapshotEntry struct {
	IsSnapshot bool          `json:"is_snapshot"`
	State      storedState   `json:"state,omitempty"`
	Base       hashid.Hash20 `json:"base"`
	Delta      storedDelta   `json:"delta,omitempty"`
}

func encodeSnapshotEntry(e delta.SnapshotEntry) (storedSnapshotEntry, error) {
	if e.IsSnapshot {
		state, err := encodeState(e.State)
		if err != nil {
			return storedSnapshotEntry{}, err
		}
		return storedSnapshotEntry{IsSnapshot: true, State: state}, nil
	}
	d, err := encodeDelta(e.Delta)
	if err != nil {
		return storedSnapshotEntry{}, err
	}
	return storedSnapshotEntry{Base: e.Base, Delta: d}, nil
}

func decodeSnapshotEntry(in storedSnapshotEntry) (delta.SnapshotEntry, error) {
	if in.IsSnapshot {
		state, err := decodeState(in.State)
		if err != nil {
			return delta.SnapshotEntry{}, err
		}
		return delta.NewSnapshot(state), nil
	}
	d, err := decodeDelta(in.Delta)
	if err != nil {
		return delta.SnapshotEntry{}, err
	}
	return delta.NewDeltaEntry(in.Base, d), nil
}
