/*
Package storage implements the sorted-key storage wrapper on top of
go.etcd.io/bbolt: one column family per bucket, atomic multi-operation
batches via bbolt's Update/View transactions, and an append-merge codec
for the three column families that grow by appending rather than
overwriting (Log, Branches, LiveChanges).

# Column families

	Repositories  RepositoryId          -> RepositoryInfo
	Log           RepositoryId          -> []LogEvent   (append)
	Branches      RepositoryId          -> []BranchId   (append)
	Branch        (RepositoryId,BranchId) -> BranchInfo
	LiveChanges   (RepositoryId,BranchId) -> []BatchPatch (append)
	PackedDelta   (RepositoryId,BranchId) -> Delta
	Commit        (RepositoryId,CommitId)  -> CommitInfo
	CommitDelta   (RepositoryId,CommitId)  -> Delta
	Snapshot      (RepositoryId,CommitId)  -> SnapshotEntry

Keys are the plain concatenation of their fixed-width id components
(hashid.Hash16/Hash20); since no component has variable length, this is
already unambiguous and sorts a repository's entries contiguously with
its branches/commits ordered within it, so prefix scans see exactly one
repository's rows.

Values are JSON: one json.Marshal'd blob per key rather than a denser
binary format, except in the three append column families, whose value
is the append-merge codec wrapping one JSON blob per item.
*/
package storage
