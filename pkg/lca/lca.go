/*
Package lca implements the lowest-common-ancestor search over the
commit graph. It only ever looks at each commit's CommitOrigin (branch,
fork-point, order), never its content: the branch graph is a tree
(every branch has at most one fork-point), so walking each commit's
ancestor branches up to the root and comparing where the two paths
first meet is sufficient.
*/
package lca

import (
	"errors"

	"github.com/rossdb/ross/pkg/commit"
	"github.com/rossdb/ross/pkg/hashid"
)

// ErrNotFound is returned when the two commits' ancestries never
// converge: a genuine disjoint-history failure.
var ErrNotFound = errors.New("lca: lowest common ancestor not found")

// ErrUnsupported is returned by Multi: LCA over more than two commits
// is a defined error until a generalization is needed.
var ErrUnsupported = errors.New("lca: more than two commits is not supported")

// OriginLookup resolves a CommitId to its CommitOrigin. pkg/engine
// implements this against pkg/storage's partial-read capability; kept as
// an interface here so the search can be unit-tested against a plain map
// and never needs to decode a full CommitInfo.
type OriginLookup interface {
	CommitOrigin(id hashid.Hash20) (commit.CommitOrigin, error)
}

// ancestorStep names one branch a commit's lineage passes through on the
// way to the root branch, with the exact commit (on that branch) the
// lineage passes through and its branch-local order.
type ancestorStep struct {
	branch hashid.Hash16
	commit hashid.Hash20
	order  uint32
}

// ancestorPath walks from id's own branch up through successive
// fork-points to the root branch (the one with no fork-point). Every
// branch has at most one parent branch, so the branch graph is a tree
// and this walk always terminates.
func ancestorPath(lookup OriginLookup, id hashid.Hash20) ([]ancestorStep, error) {
	var path []ancestorStep
	cur := id
	for {
		origin, err := lookup.CommitOrigin(cur)
		if err != nil {
			return nil, err
		}
		path = append(path, ancestorStep{branch: origin.Branch, commit: cur, order: origin.Order})
		if origin.ForkPoint == nil {
			return path, nil
		}
		cur = origin.ForkPoint.Commit
	}
}

// Two finds the lowest common ancestor of a and b: the branch both
// ancestor paths first share, resolved to whichever of the two entries
// on that branch has the lower order (the one closer to the root, hence
// an ancestor of, or equal to, the other).
func Two(lookup OriginLookup, a, b hashid.Hash20) (hashid.Hash20, error) {
	pathA, err := ancestorPath(lookup, a)
	if err != nil {
		return hashid.Hash20{}, err
	}
	pathB, err := ancestorPath(lookup, b)
	if err != nil {
		return hashid.Hash20{}, err
	}

	indexB := make(map[hashid.Hash16]ancestorStep, len(pathB))
	for _, step := range pathB {
		indexB[step.branch] = step
	}

	for _, stepA := range pathA {
		stepB, ok := indexB[stepA.branch]
		if !ok {
			continue
		}
		if stepA.order <= stepB.order {
			return stepA.commit, nil
		}
		return stepB.commit, nil
	}

	return hashid.Hash20{}, ErrNotFound
}

// Multi is a placeholder for LCA over more than two commits; the core
// rejects it with ErrUnsupported rather than guessing at a
// generalization.
func Multi(lookup OriginLookup, commits []hashid.Hash20) (hashid.Hash20, error) {
	if len(commits) == 2 {
		return Two(lookup, commits[0], commits[1])
	}
	return hashid.Hash20{}, ErrUnsupported
}
