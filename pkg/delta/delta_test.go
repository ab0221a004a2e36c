package delta_test

import (
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/rossdb/ross/pkg/delta"
	"github.com/rossdb/ross/pkg/hashid"
	"github.com/rossdb/ross/pkg/objstate"
	"github.com/rossdb/ross/pkg/value"
	"github.com/stretchr/testify/require"
)

func TestApplyTrustedRoundTrip(t *testing.T) {
	// Create then delete, then apply the revert of the delete: state
	// should return to exactly the post-create state.
	id := hashid.Hash16{0x01}
	s := objstate.New()

	batch1 := objstate.BatchPatch{
		Patches: []objstate.Patch{objstate.NewCreate(id, []value.Value{value.U32(5)})},
	}
	_, conflicts, err := s.Apply(batch1, false)
	require.NoError(t, err)
	require.Empty(t, conflicts)

	snapshotAfterCreate := s.Clone()

	batch2 := objstate.BatchPatch{
		Patches: []objstate.Patch{objstate.NewDelete(id, 0)},
	}
	revert2, conflicts, err := s.Apply(batch2, false)
	require.NoError(t, err)
	require.Empty(t, conflicts)
	require.Equal(t, 0, s.Len())

	delta.ApplyTrusted(s, revert2)

	obj, ok := s.Get(id)
	require.True(t, ok)
	require.Equal(t, uint32(0), obj.Version)
	require.True(t, obj.Field(0).Equal(value.U32(5)))

	if diff := cmp.Diff(snapshotAfterCreate.Len(), s.Len()); diff != "" {
		t.Fatalf("state length mismatch after revert (-want +got):\n%s", diff)
	}
}

func TestDiffMatchesApply(t *testing.T) {
	id1 := hashid.Hash16{0x01}
	id2 := hashid.Hash16{0x02}

	base := objstate.New()
	_, _, err := base.Apply(objstate.BatchPatch{Patches: []objstate.Patch{
		objstate.NewCreate(id1, []value.Value{value.String("a")}),
		objstate.NewCreate(id2, []value.Value{value.U32(1)}),
	}}, false)
	require.NoError(t, err)

	derived := base.Clone()
	revert, conflicts, err := derived.Apply(objstate.BatchPatch{Patches: []objstate.Patch{
		objstate.NewCAS(id1, 0, value.String("a"), value.String("b")),
		objstate.NewDelete(id2, 0),
	}}, false)
	require.NoError(t, err)
	require.Empty(t, conflicts)

	d := delta.Diff(base, derived)

	replay := base.Clone()
	delta.ApplyTrusted(replay, d)

	obj1, ok := replay.Get(id1)
	require.True(t, ok)
	require.True(t, obj1.Field(0).Equal(value.String("b")))

	_, stillThere := replay.Get(id2)
	require.False(t, stillThere)

	// Apply() returns the revert delta, which must agree with the
	// backward Diff(derived, base) on id1's change.
	require.Equal(t, delta.Diff(derived, base)[id1].FieldChanges, revert[id1].FieldChanges)
}

func TestSnapshotEntryResolveChain(t *testing.T) {
	id := hashid.Hash16{0x09}
	base := objstate.New()
	_, _, err := base.Apply(objstate.BatchPatch{Patches: []objstate.Patch{
		objstate.NewCreate(id, []value.Value{value.U32(1)}),
	}}, false)
	require.NoError(t, err)

	derived := base.Clone()
	_, _, err = derived.Apply(objstate.BatchPatch{Patches: []objstate.Patch{
		objstate.NewCAS(id, 0, value.U32(1), value.U32(2)),
	}}, false)
	require.NoError(t, err)

	d := delta.Diff(base, derived)

	baseCommit := hashid.Hash20{0xaa}
	deltaCommit := hashid.Hash20{0xbb}

	entries := map[hashid.Hash20]delta.SnapshotEntry{
		baseCommit:  delta.NewSnapshot(base),
		deltaCommit: delta.NewDeltaEntry(baseCommit, d),
	}

	resolver := mapResolver(entries)
	resolved, err := delta.Resolve(resolver, deltaCommit)
	require.NoError(t, err)

	obj, ok := resolved.Get(id)
	require.True(t, ok)
	require.True(t, obj.Field(0).Equal(value.U32(2)))
}

type mapResolver map[hashid.Hash20]delta.SnapshotEntry

func (m mapResolver) SnapshotEntry(commit hashid.Hash20) (delta.SnapshotEntry, error) {
	e, ok := m[commit]
	if !ok {
		return delta.SnapshotEntry{}, errNotFound
	}
	return e, nil
}

var errNotFound = &notFoundError{}

type notFoundError struct{}

func (*notFoundError) Error() string { return "snapshot entry not found" }
