package storage

import (
	"errors"
	"fmt"

	"github.com/rossdb/ross/pkg/commit"
	"github.com/rossdb/ross/pkg/delta"
	"github.com/rossdb/ross/pkg/hashid"
)

// Lookup-miss errors. They originate here because this is the layer
// that can tell "not stored" apart from an I/O failure; pkg/editor and
// pkg/engine propagate them unchanged.
var (
	ErrCommitNotFound = errors.New("storage: commit not found")
	ErrBranchNotFound = errors.New("storage: branch not found")
)

// SnapshotResolver adapts a Store to pkg/delta's Resolver interface,
// scoped to one repository, so delta.Resolve can walk a commit's
// SnapshotEntry chain straight out of the Snapshot CF.
type SnapshotResolver struct {
	Store Store
	Repo  commit.RepositoryId
}

// SnapshotEntry implements delta.Resolver.
func (r SnapshotResolver) SnapshotEntry(id hashid.Hash20) (delta.SnapshotEntry, error) {
	entry, found, err := r.Store.GetSnapshotEntry(r.Repo, id)
	if err != nil {
		return delta.SnapshotEntry{}, err
	}
	if !found {
		return delta.SnapshotEntry{}, fmt.Errorf("snapshot entry for %s: %w", id, ErrCommitNotFound)
	}
	return entry, nil
}

// OriginResolver adapts a Store to pkg/lca's OriginLookup interface,
// scoped to one repository. It only ever issues partial reads; the LCA
// search never decodes a full CommitInfo.
type OriginResolver struct {
	Store Store
	Repo  commit.RepositoryId
}

// CommitOrigin implements lca.OriginLookup.
func (r OriginResolver) CommitOrigin(id hashid.Hash20) (commit.CommitOrigin, error) {
	origin, found, err := r.Store.GetCommitOrigin(r.Repo, id)
	if err != nil {
		return commit.CommitOrigin{}, err
	}
	if !found {
		return commit.CommitOrigin{}, fmt.Errorf("origin of %s: %w", id, ErrCommitNotFound)
	}
	return origin, nil
}

// SnapshotChainDepth counts how many delta entries sit between id's
// SnapshotEntry and the nearest full snapshot, zero when id's own entry
// is a full image. pkg/editor feeds this to the SnapshotPolicy at commit
// time to bound resolve-chain depth.
func SnapshotChainDepth(s Store, repo commit.RepositoryId, id commit.CommitId) (int, error) {
	depth := 0
	cur := id
	for {
		entry, found, err := s.GetSnapshotEntry(repo, cur)
		if err != nil {
			return 0, err
		}
		if !found {
			return 0, fmt.Errorf("snapshot entry for %s: %w", cur, ErrCommitNotFound)
		}
		if entry.IsSnapshot {
			return depth, nil
		}
		depth++
		cur = entry.Base
	}
}
