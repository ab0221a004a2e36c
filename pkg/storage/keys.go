package storage

import (
	"github.com/rossdb/ross/pkg/commit"
)

// Keys are built by concatenating fixed-width ids: RepositoryId (16
// bytes) then, where applicable, BranchId (16 bytes) or CommitId (20
// bytes). Because every id component is fixed-width, plain
// concatenation is unambiguous and byte-lex order already gives the
// required prefix ordering: RepositoryId sorts first, then
// BranchId/CommitId within it, with no length prefix needed.

func repoKey(repo commit.RepositoryId) []byte {
	k := make([]byte, len(repo))
	copy(k, repo[:])
	return k
}

func branchKey(repo commit.RepositoryId, branch commit.BranchId) []byte {
	k := make([]byte, 0, len(repo)+len(branch))
	k = append(k, repo[:]...)
	k = append(k, branch[:]...)
	return k
}

func commitKey(repo commit.RepositoryId, id commit.CommitId) []byte {
	k := make([]byte, 0, len(repo)+len(id))
	k = append(k, repo[:]...)
	k = append(k, id[:]...)
	return k
}

// branchPrefix returns the key prefix shared by every (repo, branch, ...)
// entry, used by cursor-based prefix iteration over all of a repository's
// branches.
func branchPrefix(repo commit.RepositoryId) []byte {
	return repoKey(repo)
}
