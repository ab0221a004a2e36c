package storage

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rossdb/ross/pkg/delta"
	"github.com/rossdb/ross/pkg/hashid"
	"github.com/rossdb/ross/pkg/objstate"
	"github.com/rossdb/ross/pkg/value"
)

// ambiguousValues are the cases the untagged client form cannot tell
// apart: a String that is exactly 32 hex chars, a whole-number F64, and
// their "real" counterparts. The stored form must keep each variant.
func ambiguousValues() []value.Value {
	h, _ := hashid.ParseHash16("0123456789abcdef0123456789abcdef")
	return []value.Value{
		value.String("0123456789abcdef0123456789abcdef"),
		value.Hash16(h),
		value.F64(5),
		value.U32(5),
		value.Null(),
		value.Bool(true),
	}
}

func TestStoredStateKeepsValueVariants(t *testing.T) {
	s := objstate.New()
	id := hashid.Hash16{0x01}
	s.Insert(id, objstate.Object{Version: 3, Data: ambiguousValues()})

	enc, err := encodeState(s)
	require.NoError(t, err)

	// Through the actual JSON document, as a bucket value would be.
	raw, err := json.Marshal(enc)
	require.NoError(t, err)
	var back storedState
	require.NoError(t, json.Unmarshal(raw, &back))

	decoded, err := decodeState(back)
	require.NoError(t, err)

	obj, ok := decoded.Get(id)
	require.True(t, ok)
	assert.Equal(t, uint32(3), obj.Version)
	want := ambiguousValues()
	require.Len(t, obj.Data, len(want))
	for i, w := range want {
		assert.Equal(t, w.Kind(), obj.Data[i].Kind(), "field %d variant", i)
		assert.True(t, w.Equal(obj.Data[i]), "field %d value", i)
	}
}

func TestStoredBatchKeepsValueVariants(t *testing.T) {
	b := objstate.BatchPatch{
		Patches: []objstate.Patch{
			objstate.NewCreate(hashid.Hash16{0x01}, ambiguousValues(), 2),
			objstate.NewCAS(hashid.Hash16{0x02}, 4,
				value.String("0123456789abcdef0123456789abcdef"), value.F64(5)),
			objstate.NewDelete(hashid.Hash16{0x03}, 9),
			objstate.NewTouch(hashid.Hash16{0x04}),
		},
		Author: hashid.Hash16{0xEE},
		Action: 7,
		Time:   time.Unix(1000, 0).UTC(),
	}

	enc, err := encodeBatch(b)
	require.NoError(t, err)
	raw, err := json.Marshal(enc)
	require.NoError(t, err)
	var stored storedBatch
	require.NoError(t, json.Unmarshal(raw, &stored))

	back, err := decodeBatch(stored)
	require.NoError(t, err)
	assert.Equal(t, b, back)
	assert.Equal(t, value.KindString, back.Patches[1].Base.Kind())
	assert.Equal(t, value.KindF64, back.Patches[1].Target.Kind())
}

func TestStoredDeltaRoundTrip(t *testing.T) {
	d := objstate.Delta{
		hashid.Hash16{0x01}: {Kind: objstate.EntryDeleted},
		hashid.Hash16{0x02}: {
			Kind:    objstate.EntryInserted,
			Data:    ambiguousValues(),
			Version: 4,
		},
		hashid.Hash16{0x03}: {
			Kind:         objstate.EntryUpdated,
			DeltaVersion: -1,
			FieldChanges: map[objstate.FieldId]value.Value{
				0: value.F64(5),
				7: value.String("0123456789abcdef0123456789abcdef"),
			},
		},
	}

	enc, err := encodeDelta(d)
	require.NoError(t, err)
	raw, err := json.Marshal(enc)
	require.NoError(t, err)
	var stored storedDelta
	require.NoError(t, json.Unmarshal(raw, &stored))

	back, err := decodeDelta(stored)
	require.NoError(t, err)
	assert.Equal(t, d, back)
	assert.Equal(t, value.KindF64, back[hashid.Hash16{0x03}].FieldChanges[0].Kind())
}

func TestStoredSnapshotEntryRoundTrip(t *testing.T) {
	s := objstate.New()
	s.Insert(hashid.Hash16{0x01}, objstate.Object{Data: ambiguousValues()})

	snap, err := encodeSnapshotEntry(delta.NewSnapshot(s))
	require.NoError(t, err)
	back, err := decodeSnapshotEntry(snap)
	require.NoError(t, err)
	require.True(t, back.IsSnapshot)
	obj, ok := back.State.Get(hashid.Hash16{0x01})
	require.True(t, ok)
	assert.Equal(t, value.KindString, obj.Data[0].Kind())
	assert.Equal(t, value.KindHash16, obj.Data[1].Kind())

	base := hashid.Hash20{0xAA}
	entry, err := encodeSnapshotEntry(delta.NewDeltaEntry(base, objstate.Delta{
		hashid.Hash16{0x02}: {Kind: objstate.EntryDeleted},
	}))
	require.NoError(t, err)
	backDelta, err := decodeSnapshotEntry(entry)
	require.NoError(t, err)
	assert.False(t, backDelta.IsSnapshot)
	assert.Equal(t, base, backDelta.Base)
	assert.Len(t, backDelta.Delta, 1)
}
