package storage

import (
	"github.com/rossdb/ross/pkg/commit"
	"github.com/rossdb/ross/pkg/delta"
	"github.com/rossdb/ross/pkg/objstate"
)

// ColumnFamily names one of the store's physical namespaces. Each maps
// to exactly one bbolt bucket.
type ColumnFamily string

const (
	CFRepositories ColumnFamily = "repositories"
	CFLog          ColumnFamily = "log"
	CFBranches     ColumnFamily = "branches"
	CFBranch       ColumnFamily = "branch"
	CFLiveChanges  ColumnFamily = "live_changes"
	CFPackedDelta  ColumnFamily = "packed_delta"
	CFCommit       ColumnFamily = "commit"
	CFCommitDelta  ColumnFamily = "commit_delta"
	CFSnapshot     ColumnFamily = "snapshot"
)

// allColumnFamilies is the fixed bucket set created on open.
var allColumnFamilies = []ColumnFamily{
	CFRepositories,
	CFLog,
	CFBranches,
	CFBranch,
	CFLiveChanges,
	CFPackedDelta,
	CFCommit,
	CFCommitDelta,
	CFSnapshot,
}

// Store is the sorted-key storage wrapper: column families, atomic
// multi-operation batches, point reads, and prefix iteration,
// specialized to ROSS's nine column families and their value types.
// pkg/editor and pkg/engine depend on this interface rather than the
// concrete BoltStore so tests can substitute an in-memory fake.
type Store interface {
	// Repositories
	PutRepositoryInfo(repo commit.RepositoryId, info commit.RepositoryInfo) error
	GetRepositoryInfo(repo commit.RepositoryId) (commit.RepositoryInfo, bool, error)

	// Log: append-only history of LogEvent, per repository.
	AppendLogEvents(repo commit.RepositoryId, events ...commit.LogEvent) error
	ListLogEvents(repo commit.RepositoryId) ([]commit.LogEvent, error)

	// Branches: append-only list of every BranchId ever created in a
	// repository (including later-deleted ones; deletion only touches
	// the Branch CF's entry).
	AppendBranchIds(repo commit.RepositoryId, ids ...commit.BranchId) error
	ListBranchIds(repo commit.RepositoryId) ([]commit.BranchId, error)

	// Branch: current metadata for a still-live branch.
	PutBranchInfo(repo commit.RepositoryId, branch commit.BranchId, info commit.BranchInfo) error
	GetBranchInfo(repo commit.RepositoryId, branch commit.BranchId) (commit.BranchInfo, bool, error)
	DeleteBranchInfo(repo commit.RepositoryId, branch commit.BranchId) error
	// ScanBranchInfos prefix-iterates the Branch CF over every entry
	// keyed under repo, in BranchId order; the returned map does not
	// keep that order.
	ScanBranchInfos(repo commit.RepositoryId) (map[commit.BranchId]commit.BranchInfo, error)

	// LiveChanges: append-only list of BatchPatch applied since the
	// branch's head commit, merge-appended (read-modify-write) on each
	// perform().
	AppendLiveChanges(repo commit.RepositoryId, branch commit.BranchId, batches ...objstate.BatchPatch) error
	ListLiveChanges(repo commit.RepositoryId, branch commit.BranchId) ([]objstate.BatchPatch, error)
	ClearLiveChanges(repo commit.RepositoryId, branch commit.BranchId) error

	// PackedDelta: the live-changes folded into a single Delta. Written
	// only through PackLiveChanges (and cleared by WriteCommit), so the
	// fold and the log clear always land together.
	GetPackedDelta(repo commit.RepositoryId, branch commit.BranchId) (objstate.Delta, bool, error)

	// Commit: immutable per-commit metadata.
	PutCommitInfo(repo commit.RepositoryId, id commit.CommitId, info commit.CommitInfo) error
	GetCommitInfo(repo commit.RepositoryId, id commit.CommitId) (commit.CommitInfo, bool, error)
	// GetCommitOrigin is a partial read of CommitInfo: the commonly-read
	// prefix decodes without the full record. pkg/lca only ever needs
	// this much.
	GetCommitOrigin(repo commit.RepositoryId, id commit.CommitId) (commit.CommitOrigin, bool, error)

	// CommitDelta: the delta a commit's state can be resolved from,
	// relative to its SnapshotEntry's base. Written only as part of
	// WriteCommit.
	GetCommitDelta(repo commit.RepositoryId, id commit.CommitId) (objstate.Delta, bool, error)

	// Snapshot: either a full State image or a delta-chain pointer,
	// chosen by pkg/commit.SnapshotPolicy at commit time.
	PutSnapshotEntry(repo commit.RepositoryId, id commit.CommitId, entry delta.SnapshotEntry) error
	GetSnapshotEntry(repo commit.RepositoryId, id commit.CommitId) (delta.SnapshotEntry, bool, error)

	// Composite atomic writes. Whole lifecycle transitions land in one
	// storage batch: each of these runs its mutations inside a single
	// engine transaction, so a crash can never leave a repository
	// half-created or a commit half-applied.
	InitRepository(w RepositoryWrite) error
	CreateBranch(repo commit.RepositoryId, branch commit.BranchId, info commit.BranchInfo, ev commit.LogEvent) error
	DeleteBranch(repo commit.RepositoryId, branch commit.BranchId, ev commit.LogEvent) error
	WriteCommit(w CommitWrite) error
	// PackLiveChanges replaces the branch's live-changes log with the
	// given folded delta in one transaction, so a crash can never leave
	// both (double-applying) or neither (losing uncommitted work).
	PackLiveChanges(repo commit.RepositoryId, branch commit.BranchId, d objstate.Delta) error

	Close() error
}

// RepositoryWrite bundles every mutation CreateRepository lands
// atomically: the repository record, its Init log event, the initial
// empty commit (info + snapshot) and the main branch pointing at it.
type RepositoryWrite struct {
	Repo       commit.RepositoryId
	Info       commit.RepositoryInfo
	Branch     commit.BranchId
	BranchInfo commit.BranchInfo
	CommitId   commit.CommitId
	CommitInfo commit.CommitInfo
	Snapshot   delta.SnapshotEntry
	Events     []commit.LogEvent
}

// CommitWrite bundles every mutation Editor.Commit lands atomically:
// the new commit record, its delta and snapshot entry, the Committed log
// event, the branch's advanced head, and the cleared live-changes (and
// packed delta, if any).
type CommitWrite struct {
	Repo       commit.RepositoryId
	Branch     commit.BranchId
	CommitId   commit.CommitId
	CommitInfo commit.CommitInfo
	Delta      objstate.Delta
	Snapshot   delta.SnapshotEntry
	BranchInfo commit.BranchInfo
	Event      commit.LogEvent
}
