package storage_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rossdb/ross/pkg/commit"
	"github.com/rossdb/ross/pkg/delta"
	"github.com/rossdb/ross/pkg/hashid"
	"github.com/rossdb/ross/pkg/objstate"
	"github.com/rossdb/ross/pkg/storage"
	"github.com/rossdb/ross/pkg/value"
)

func openTestStore(t *testing.T) *storage.BoltStore {
	t.Helper()
	dir := t.TempDir()
	s, err := storage.NewBoltStore(dir)
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func TestRepositoryInfoRoundTrip(t *testing.T) {
	s := openTestStore(t)
	repo := hashid.Hash16{0x01}

	_, found, err := s.GetRepositoryInfo(repo)
	require.NoError(t, err)
	assert.False(t, found)

	info := commit.RepositoryInfo{CreatedAt: time.Unix(1000, 0).UTC(), Owner: hashid.Hash16{0x02}, Title: "demo"}
	require.NoError(t, s.PutRepositoryInfo(repo, info))

	got, found, err := s.GetRepositoryInfo(repo)
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, info, got)
}

func TestLogEventsAppend(t *testing.T) {
	s := openTestStore(t)
	repo := hashid.Hash16{0x01}
	user := hashid.Hash16{0x02}

	require.NoError(t, s.AppendLogEvents(repo, commit.NewInit(user, time.Unix(1, 0).UTC())))
	require.NoError(t, s.AppendLogEvents(repo,
		commit.NewBranchCreated(hashid.Hash16{0x03}, hashid.Hash20{0x04}, user, time.Unix(2, 0).UTC()),
		commit.NewCommitted(hashid.Hash16{0x03}, hashid.Hash20{0x05}, user, time.Unix(3, 0).UTC()),
	))

	events, err := s.ListLogEvents(repo)
	require.NoError(t, err)
	require.Len(t, events, 3)
	assert.Equal(t, commit.LogInit, events[0].Kind)
	assert.Equal(t, commit.LogBranchCreated, events[1].Kind)
	assert.Equal(t, commit.LogCommitted, events[2].Kind)
}

func TestBranchInfoRoundTrip(t *testing.T) {
	s := openTestStore(t)
	repo := hashid.Hash16{0x01}
	branch := hashid.Hash16{0x02}

	require.NoError(t, s.AppendBranchIds(repo, branch))
	ids, err := s.ListBranchIds(repo)
	require.NoError(t, err)
	assert.Equal(t, []commit.BranchId{branch}, ids)

	info := commit.BranchInfo{
		Head:      hashid.Hash20{0x09},
		CreatedAt: time.Unix(5, 0).UTC(),
		User:      hashid.Hash16{0x03},
		Mode:      commit.BranchNormal,
		Title:     "main",
	}
	require.NoError(t, s.PutBranchInfo(repo, branch, info))

	got, found, err := s.GetBranchInfo(repo, branch)
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, info, got)

	require.NoError(t, s.DeleteBranchInfo(repo, branch))
	_, found, err = s.GetBranchInfo(repo, branch)
	require.NoError(t, err)
	assert.False(t, found)
}

func TestLiveChangesAppendAndClear(t *testing.T) {
	s := openTestStore(t)
	repo := hashid.Hash16{0x01}
	branch := hashid.Hash16{0x02}
	user := hashid.Hash16{0x03}
	id := hashid.Hash16{0x0A}

	b1 := objstate.BatchPatch{Author: user, Patches: []objstate.Patch{objstate.NewTouch(id)}}
	b2 := objstate.BatchPatch{Author: user, Patches: []objstate.Patch{objstate.NewDelete(id, 0)}}

	require.NoError(t, s.AppendLiveChanges(repo, branch, b1))
	require.NoError(t, s.AppendLiveChanges(repo, branch, b2))

	got, err := s.ListLiveChanges(repo, branch)
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, b1, got[0])
	assert.Equal(t, b2, got[1])

	require.NoError(t, s.ClearLiveChanges(repo, branch))
	got, err = s.ListLiveChanges(repo, branch)
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestCommitInfoAndPartialOriginRead(t *testing.T) {
	s := openTestStore(t)
	repo := hashid.Hash16{0x01}

	info := commit.CommitInfo{
		Origin:    commit.CommitOrigin{Branch: hashid.Hash16{0x02}, Order: 3},
		Time:      time.Unix(9, 0).UTC(),
		Committer: hashid.Hash16{0x05},
		Message:   "hello",
	}
	id := info.Hash()
	require.NoError(t, s.PutCommitInfo(repo, id, info))

	full, found, err := s.GetCommitInfo(repo, id)
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, info, full)

	origin, found, err := s.GetCommitOrigin(repo, id)
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, info.Origin, origin)
}

func TestSnapshotEntryRoundTrip(t *testing.T) {
	s := openTestStore(t)
	repo := hashid.Hash16{0x01}
	id := hashid.Hash20{0x02}

	st := objstate.New()
	st.Insert(hashid.Hash16{0x0A}, objstate.Object{Version: 0, Data: []value.Value{value.U32(5)}})
	entry := delta.NewSnapshot(st)

	require.NoError(t, s.PutSnapshotEntry(repo, id, entry))

	got, found, err := s.GetSnapshotEntry(repo, id)
	require.NoError(t, err)
	require.True(t, found)
	assert.True(t, got.IsSnapshot)
	gotObj, ok := got.State.Get(hashid.Hash16{0x0A})
	require.True(t, ok)
	assert.Equal(t, uint32(0), gotObj.Version)
}

func TestSnapshotEntryPreservesValueVariants(t *testing.T) {
	s := openTestStore(t)
	repo := hashid.Hash16{0x01}
	id := hashid.Hash20{0x02}

	// A String that is exactly 32 hex chars and a whole-number F64 are
	// indistinguishable from Hash16/U32 in the untagged client form;
	// the stored form must bring back the exact variants.
	st := objstate.New()
	st.Insert(hashid.Hash16{0x0A}, objstate.Object{Data: []value.Value{
		value.String("0123456789abcdef0123456789abcdef"),
		value.F64(5),
	}})
	require.NoError(t, s.PutSnapshotEntry(repo, id, delta.NewSnapshot(st)))

	got, found, err := s.GetSnapshotEntry(repo, id)
	require.NoError(t, err)
	require.True(t, found)
	obj, ok := got.State.Get(hashid.Hash16{0x0A})
	require.True(t, ok)
	assert.Equal(t, value.KindString, obj.Data[0].Kind())
	assert.Equal(t, value.KindF64, obj.Data[1].Kind())
}
