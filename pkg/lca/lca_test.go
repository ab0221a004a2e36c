package lca_test

import (
	"fmt"
	"testing"

	"github.com/rossdb/ross/pkg/commit"
	"github.com/rossdb/ross/pkg/hashid"
	"github.com/rossdb/ross/pkg/lca"
	"github.com/stretchr/testify/require"
)

// mapGraph is a synthetic commit graph built purely from CommitOrigin
// records, so lca.Two can be exercised without a store.
type mapGraph struct {
	origins map[hashid.Hash20]commit.CommitOrigin
	ids     int
}

func newMapGraph() *mapGraph {
	return &mapGraph{origins: make(map[hashid.Hash20]commit.CommitOrigin)}
}

func (g *mapGraph) nextID() int {
	g.ids++
	return g.ids
}

func (g *mapGraph) branch(n int) hashid.Hash16 {
	var h hashid.Hash16
	copy(h[:], []byte(fmt.Sprintf("branch-%04d", n)))
	return h
}

func (g *mapGraph) commitID(n int) hashid.Hash20 {
	var h hashid.Hash20
	copy(h[:], []byte(fmt.Sprintf("commit-%08d", n)))
	return h
}

// initBranch creates a root branch (no fork-point) with one commit at
// order 0, returning the branch id and that first commit.
func (g *mapGraph) initBranch() (hashid.Hash16, hashid.Hash20) {
	b := g.branch(g.nextID())
	c := g.commitID(g.nextID())
	g.origins[c] = commit.CommitOrigin{Branch: b, Order: 0}
	return b, c
}

// commitOn appends a new commit to branch at the given order.
func (g *mapGraph) commitOn(branch hashid.Hash16, fork *commit.ForkPoint, order uint32) hashid.Hash20 {
	c := g.commitID(g.nextID())
	g.origins[c] = commit.CommitOrigin{Branch: branch, ForkPoint: fork, Order: order}
	return c
}

func (g *mapGraph) CommitOrigin(id hashid.Hash20) (commit.CommitOrigin, error) {
	o, ok := g.origins[id]
	if !ok {
		return commit.CommitOrigin{}, fmt.Errorf("lca_test: unknown commit %s", id)
	}
	return o, nil
}

// TestTwoDiamond builds a diamond-shaped branch graph:
//
//	B0: A(0) ----------------------------- G(1)
//	      \                                  \
//	      B1: B(0) -- C(1) -- E(2)           B4: H(0)
//	        \           \
//	        B2: D(0)    B3: F(0)
//
// B1 forks from B0 at A, B2 forks from B1 at B, B3 forks from B1 at C,
// B4 forks from B0 at G.
func TestTwoDiamond(t *testing.T) {
	g := newMapGraph()

	b0, a := g.initBranch()
	gCommit := g.commitOn(b0, nil, 1)

	b1 := g.branch(g.nextID())
	b1Fork := &commit.ForkPoint{Branch: b0, Commit: a}
	b := g.commitOn(b1, b1Fork, 0)
	c := g.commitOn(b1, b1Fork, 1)
	e := g.commitOn(b1, b1Fork, 2)

	b2 := g.branch(g.nextID())
	d := g.commitOn(b2, &commit.ForkPoint{Branch: b1, Commit: b}, 0)

	b3 := g.branch(g.nextID())
	f := g.commitOn(b3, &commit.ForkPoint{Branch: b1, Commit: c}, 0)

	b4 := g.branch(g.nextID())
	h := g.commitOn(b4, &commit.ForkPoint{Branch: b0, Commit: gCommit}, 0)

	cases := []struct {
		name     string
		x, y     hashid.Hash20
		expected hashid.Hash20
	}{
		{"E,F", e, f, c},
		{"G,H", gCommit, h, gCommit},
		{"D,F", d, f, b},
		{"C,E", c, e, c},
		{"C,B", c, b, b},
		{"G,G", gCommit, gCommit, gCommit},
		{"G,A", gCommit, a, a},
		{"F,H", f, h, a},
		{"G,C", gCommit, c, a},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got, err := lca.Two(g, tc.x, tc.y)
			require.NoError(t, err)
			require.Equal(t, tc.expected, got)

			// LCA is symmetric.
			got2, err := lca.Two(g, tc.y, tc.x)
			require.NoError(t, err)
			require.Equal(t, tc.expected, got2)
		})
	}
}

func TestTwoUnknownCommit(t *testing.T) {
	g := newMapGraph()
	_, a := g.initBranch()

	var unknown hashid.Hash20
	copy(unknown[:], []byte("does-not-exist"))

	_, err := lca.Two(g, a, unknown)
	require.Error(t, err)
}

func TestMultiRejectsMoreThanTwo(t *testing.T) {
	g := newMapGraph()
	_, a := g.initBranch()
	_, b := g.initBranch()
	_, c := g.initBranch()

	_, err := lca.Multi(g, []hashid.Hash20{a, b, c})
	require.ErrorIs(t, err, lca.ErrUnsupported)
}

func TestMultiDelegatesToTwo(t *testing.T) {
	g := newMapGraph()
	b0, a := g.initBranch()
	gCommit := g.commitOn(b0, nil, 1)

	got, err := lca.Multi(g, []hashid.Hash20{gCommit, a})
	require.NoError(t, err)
	require.Equal(t, a, got)
}
