package commit_test

import (
	"crypto/sha1"
	"fmt"
	"testing"

	"github.com/rossdb/ross/pkg/commit"
	"github.com/rossdb/ross/pkg/hashid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCanonicalTextAndHash(t *testing.T) {
	// Branch all-zeros, no fork-point, no parents, committer
	// all-zeros, message "Init".
	info := commit.CommitInfo{
		Origin: commit.CommitOrigin{
			Branch: hashid.MinHash16,
		},
		Committer: hashid.MinHash16,
		Message:   "Init",
	}

	wantText := "branch 00000000000000000000000000000000\n" +
		"committed-by 00000000000000000000000000000000\n" +
		"\nInit"
	require.Equal(t, wantText, info.Text())

	header := fmt.Sprintf("commit %d", len(wantText))
	h := sha1.New()
	h.Write([]byte(header))
	h.Write([]byte(wantText))
	h.Write([]byte{0})
	var want hashid.Hash20
	copy(want[:], h.Sum(nil))

	assert.Equal(t, want, info.Hash())
}

func TestHashDeterministicAcrossEquivalentInfos(t *testing.T) {
	branch := hashid.Hash16{0x01}
	committer := hashid.Hash16{0x02}

	a := commit.CommitInfo{
		Origin:    commit.CommitOrigin{Branch: branch, Order: 0},
		Committer: committer,
		Message:   "hello",
	}
	b := commit.CommitInfo{
		Origin:    commit.CommitOrigin{Branch: branch, Order: 7}, // order is not part of the text
		Committer: committer,
		Message:   "hello",
	}

	assert.Equal(t, a.Hash(), b.Hash())
}

func TestHashChangesWithForkPointAndParents(t *testing.T) {
	branch := hashid.Hash16{0x01}
	committer := hashid.Hash16{0x02}
	fork := hashid.Hash20{0x03}
	parent := hashid.Hash20{0x04}

	base := commit.CommitInfo{
		Origin:    commit.CommitOrigin{Branch: branch},
		Committer: committer,
		Message:   "m",
	}
	withFork := base
	withFork.Origin.ForkPoint = &commit.ForkPoint{Branch: branch, Commit: fork}

	withParent := base
	withParent.Parents = []hashid.Hash20{parent}

	assert.NotEqual(t, base.Hash(), withFork.Hash())
	assert.NotEqual(t, base.Hash(), withParent.Hash())
	assert.NotEqual(t, withFork.Hash(), withParent.Hash())
}

func TestBranchModePermissions(t *testing.T) {
	assert.True(t, commit.BranchNormal.AllowsLiveChanges())
	assert.True(t, commit.BranchNormal.AllowsWrites())

	assert.False(t, commit.BranchStatic.AllowsLiveChanges())
	assert.True(t, commit.BranchStatic.AllowsWrites())

	assert.False(t, commit.BranchArchived.AllowsLiveChanges())
	assert.False(t, commit.BranchArchived.AllowsWrites())

	assert.False(t, commit.BranchStaticArchived.AllowsLiveChanges())
	assert.False(t, commit.BranchStaticArchived.AllowsWrites())
}

func TestRatioSnapshotPolicy(t *testing.T) {
	p := commit.NewRatioSnapshotPolicy(0.5, 32)

	assert.False(t, p.ShouldSnapshot(1, 10, 100), "delta well under half the snapshot size")
	assert.True(t, p.ShouldSnapshot(1, 60, 100), "delta over half the snapshot size")
	assert.True(t, p.ShouldSnapshot(32, 1, 1000), "chain depth at the hard cap forces a snapshot")
}
