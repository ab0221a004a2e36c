/*
Package commit implements the commit graph types: CommitInfo and its
canonical-text hashing (content-addressed SHA-1 with a bit-exact text
construction), BranchInfo and its fork-point/mode, and the repository's
append-only LogEvent history.

It also hosts SnapshotPolicy: the editor asks it, at commit time,
whether to persist the branch's newly-committed state as a full image
or a delta against a prior commit.
*/
package commit

import (
	"crypto/sha1"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/rossdb/ross/pkg/hashid"
)

// RepositoryId identifies a repository, globally unique.
type RepositoryId = hashid.Hash16

// BranchId identifies a branch, unique within its repository.
type BranchId = hashid.Hash16

// CommitId is the content-addressed SHA-1 hash of a commit's canonical
// text, unique within its repository.
type CommitId = hashid.Hash20

// UserId identifies a person or service acting on the repository.
type UserId = hashid.Hash16

// ForkPoint names the (branch, commit) pair a branch diverged from.
type ForkPoint struct {
	Branch BranchId
	Commit CommitId
}

// CommitOrigin is the prefix of CommitInfo that pkg/lca needs: which
// branch the commit landed on, where that branch forked from, and its
// branch-local monotonic order. pkg/storage places these fields first
// in the encoded record so they can be read without decoding the rest
// of CommitInfo.
type CommitOrigin struct {
	Branch    BranchId
	ForkPoint *ForkPoint
	Order     uint32
}

// CommitInfo is the full, immutable record for one commit.
type CommitInfo struct {
	Origin    CommitOrigin
	Time      time.Time
	Parents   []CommitId
	Committer UserId
	Authors   []UserId
	Message   string
}

// Text returns the canonical UTF-8 text whose SHA-1 is this commit's
// hash, byte for byte:
//
//	branch <branch-id-hex>\n
//	[tree <fork-commit-id-hex>\n]?
//	(parent <parent-id-hex>\n)*
//	committed-by <user-id-hex>\n
//	\n
//	<message>
func (c CommitInfo) Text() string {
	var b strings.Builder
	b.Grow(128 + len(c.Message))

	b.WriteString("branch ")
	b.WriteString(c.Origin.Branch.String())
	b.WriteByte('\n')

	if c.Origin.ForkPoint != nil {
		b.WriteString("tree ")
		b.WriteString(c.Origin.ForkPoint.Commit.String())
		b.WriteByte('\n')
	}

	for _, parent := range c.Parents {
		b.WriteString("parent ")
		b.WriteString(parent.String())
		b.WriteByte('\n')
	}

	b.WriteString("committed-by ")
	b.WriteString(c.Committer.String())
	b.WriteByte('\n')
	b.WriteByte('\n')
	b.WriteString(c.Message)

	return b.String()
}

// Hash computes the content-addressed CommitId: SHA-1 of
// "commit " || decimal(len(text)) || text || 0x00. Any deviation in the
// construction changes every hash and invalidates existing
// repositories. Two CommitInfo values with the same canonical text
// (even differing in Time, which Text() never includes) hash identically
// and that is intentional: Time is provenance, not identity.
func (c CommitInfo) Hash() CommitId {
	text := c.Text()
	header := "commit " + strconv.Itoa(len(text))

	h := sha1.New()
	h.Write([]byte(header))
	h.Write([]byte(text))
	h.Write([]byte{0})

	var id CommitId
	copy(id[:], h.Sum(nil))
	return id
}

// BranchMode tags a branch's write eligibility.
type BranchMode int

const (
	BranchNormal BranchMode = iota
	BranchStatic
	BranchArchived
	BranchStaticArchived
)

func (m BranchMode) String() string {
	switch m {
	case BranchNormal:
		return "Normal"
	case BranchStatic:
		return "Static"
	case BranchArchived:
		return "Archived"
	case BranchStaticArchived:
		return "StaticArchived"
	default:
		return fmt.Sprintf("BranchMode(%d)", int(m))
	}
}

// AllowsLiveChanges reports whether perform() may append live changes on
// a branch in this mode; false for Static and StaticArchived.
func (m BranchMode) AllowsLiveChanges() bool {
	return m == BranchNormal
}

// AllowsWrites reports whether any write (live change or commit) is
// permitted; false for Archived and StaticArchived.
func (m BranchMode) AllowsWrites() bool {
	return m == BranchNormal || m == BranchStatic
}

// BranchInfo is the persisted metadata for one branch.
type BranchInfo struct {
	Head      CommitId
	ForkPoint *ForkPoint
	CreatedAt time.Time
	User      UserId
	Mode      BranchMode
	Title     string
}

// RepositoryInfo is the persisted metadata for one repository, written
// once at creation and never mutated after.
type RepositoryInfo struct {
	CreatedAt time.Time
	Owner     UserId
	Title     string
}
