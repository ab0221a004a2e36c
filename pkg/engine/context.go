package engine

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/rossdb/ross/pkg/commit"
	"github.com/rossdb/ross/pkg/delta"
	"github.com/rossdb/ross/pkg/dropmap"
	"github.com/rossdb/ross/pkg/editor"
	"github.com/rossdb/ross/pkg/hashid"
	"github.com/rossdb/ross/pkg/lca"
	"github.com/rossdb/ross/pkg/metrics"
	"github.com/rossdb/ross/pkg/objstate"
	"github.com/rossdb/ross/pkg/rconfig"
	"github.com/rossdb/ross/pkg/rlog"
	"github.com/rossdb/ross/pkg/storage"
)

// ErrRepositoryNotFound is returned when a repository id resolves to
// nothing.
var ErrRepositoryNotFound = errors.New("engine: repository not found")

// MainBranchTitle is the title of the branch CreateRepository creates
// alongside the initial commit.
const MainBranchTitle = "main"

// editorKey identifies one cached editor: a branch within a repository.
type editorKey struct {
	repo   commit.RepositoryId
	branch commit.BranchId
}

// cachedEditor pairs an editor with the number of external handles
// currently holding it. refs is guarded by the owning Context's mutex.
type cachedEditor struct {
	editor *editor.Editor
	refs   int
}

// Context owns the storage handle and the editor cache. It
// is safe for concurrent use: the cache critical section only covers
// lookup and insert, never storage I/O, and each editor serializes its
// own operations internally.
type Context struct {
	store  storage.Store
	cfg    rconfig.Config
	policy commit.SnapshotPolicy

	mu      sync.Mutex
	editors *dropmap.DropMap[editorKey, *cachedEditor]
	clock   func() dropmap.Clock
}

// New builds a Context over an open store with the given configuration.
func New(store storage.Store, cfg rconfig.Config) *Context {
	return &Context{
		store:   store,
		cfg:     cfg,
		policy:  commit.NewRatioSnapshotPolicy(cfg.Snapshot.DeltaRatio, cfg.Snapshot.MaxChainDepth),
		editors: dropmap.New[editorKey, *cachedEditor](cfg.DropMap.Capacity, cfg.DropMap.TTL.Milliseconds()),
		clock:   func() dropmap.Clock { return time.Now().UnixMilli() },
	}
}

// Close releases the storage handle. Cached editors hold no resources
// beyond their in-memory state, so no per-editor teardown is needed.
func (c *Context) Close() error {
	return c.store.Close()
}

// CreateRepository mints a fresh repository: its record, the Init log
// event, the initial empty commit, and a main branch referencing it,
// all in one storage batch. Id collisions are resolved by
// probing existence and re-rolling.
func (c *Context) CreateRepository(user commit.UserId, title string) (commit.RepositoryId, error) {
	var repo commit.RepositoryId
	for {
		repo = hashid.NewRandomHash16()
		_, found, err := c.store.GetRepositoryInfo(repo)
		if err != nil {
			return commit.RepositoryId{}, fmt.Errorf("engine: probe repository id: %w", err)
		}
		if !found {
			break
		}
	}

	now := time.Now().UTC()
	branch := hashid.NewRandomHash16()

	initial := commit.CommitInfo{
		Origin: commit.CommitOrigin{
			Branch: branch,
			Order:  0,
		},
		Time:      now,
		Committer: user,
		Message:   "Init",
	}
	commitID := initial.Hash()

	write := storage.RepositoryWrite{
		Repo: repo,
		Info: commit.RepositoryInfo{
			CreatedAt: now,
			Owner:     user,
			Title:     title,
		},
		Branch: branch,
		BranchInfo: commit.BranchInfo{
			Head:      commitID,
			CreatedAt: now,
			User:      user,
			Mode:      commit.BranchNormal,
			Title:     MainBranchTitle,
		},
		CommitId:   commitID,
		CommitInfo: initial,
		Snapshot:   delta.NewSnapshot(objstate.New()),
		Events: []commit.LogEvent{
			commit.NewInit(user, now),
			commit.NewBranchCreated(branch, commitID, user, now),
		},
	}
	if err := c.store.InitRepository(write); err != nil {
		return commit.RepositoryId{}, fmt.Errorf("engine: init repository: %w", err)
	}

	metrics.RepositoriesCreatedTotal.Inc()
	metrics.BranchesCreatedTotal.Inc()
	initLogger := rlog.WithRepositoryID(repo.String())
	initLogger.Info().
		Str("branch_id", branch.String()).
		Msg("repository created")

	return repo, nil
}

// Repository returns a repository's metadata.
func (c *Context) Repository(repo commit.RepositoryId) (commit.RepositoryInfo, error) {
	info, found, err := c.store.GetRepositoryInfo(repo)
	if err != nil {
		return commit.RepositoryInfo{}, err
	}
	if !found {
		return commit.RepositoryInfo{}, fmt.Errorf("engine: repository %s: %w", repo, ErrRepositoryNotFound)
	}
	return info, nil
}

// CreateBranchOptions parameterizes CreateBranch. Exactly one of
// FromCommit and FromBranch names the origin: a specific commit, or
// another branch's current head.
type CreateBranchOptions struct {
	Repo  commit.RepositoryId
	User  commit.UserId
	Title string
	Mode  commit.BranchMode

	FromCommit *commit.CommitId
	FromBranch *commit.BranchId
}

// CreateBranch creates a branch whose head is the origin commit and
// whose fork-point is computed from that commit's own origin: the
// branch the origin commit landed on, plus the commit itself. Forking from a commit that is itself a fork-point therefore
// chains fork-points naturally.
func (c *Context) CreateBranch(opts CreateBranchOptions) (commit.BranchId, error) {
	var origin commit.CommitId
	switch {
	case opts.FromCommit != nil:
		origin = *opts.FromCommit
	case opts.FromBranch != nil:
		info, found, err := c.store.GetBranchInfo(opts.Repo, *opts.FromBranch)
		if err != nil {
			return commit.BranchId{}, fmt.Errorf("engine: read origin branch: %w", err)
		}
		if !found {
			return commit.BranchId{}, fmt.Errorf("engine: origin branch %s: %w", *opts.FromBranch, storage.ErrBranchNotFound)
		}
		origin = info.Head
	default:
		return commit.BranchId{}, fmt.Errorf("engine: create branch needs an origin commit or branch")
	}

	originInfo, found, err := c.store.GetCommitOrigin(opts.Repo, origin)
	if err != nil {
		return commit.BranchId{}, fmt.Errorf("engine: read origin commit: %w", err)
	}
	if !found {
		return commit.BranchId{}, fmt.Errorf("engine: origin commit %s: %w", origin, storage.ErrCommitNotFound)
	}

	now := time.Now().UTC()
	branch := hashid.NewRandomHash16()
	info := commit.BranchInfo{
		Head: origin,
		ForkPoint: &commit.ForkPoint{
			Branch: originInfo.Branch,
			Commit: origin,
		},
		CreatedAt: now,
		User:      opts.User,
		Mode:      opts.Mode,
		Title:     opts.Title,
	}

	ev := commit.NewBranchCreated(branch, origin, opts.User, now)
	if err := c.store.CreateBranch(opts.Repo, branch, info, ev); err != nil {
		return commit.BranchId{}, fmt.Errorf("engine: create branch: %w", err)
	}

	metrics.BranchesCreatedTotal.Inc()
	return branch, nil
}

// DeleteBranch removes a branch's record, any live changes and packed
// delta it accumulated, and its cached editor. Its commits stay; they
// may be referenced by other branches' fork-points.
func (c *Context) DeleteBranch(repo commit.RepositoryId, branch commit.BranchId, user commit.UserId) error {
	_, found, err := c.store.GetBranchInfo(repo, branch)
	if err != nil {
		return fmt.Errorf("engine: read branch: %w", err)
	}
	if !found {
		return fmt.Errorf("engine: branch %s: %w", branch, storage.ErrBranchNotFound)
	}

	c.mu.Lock()
	key := editorKey{repo: repo, branch: branch}
	if _, ok := c.editors.Get(key); ok {
		// Evict immediately: handles still holding the editor keep
		// their reference, but no new open can find it.
		c.editors.DropExpire(key, c.clock())
		c.editors.GC(c.clock() + c.cfg.DropMap.TTL.Milliseconds() + 1)
	}
	c.mu.Unlock()

	ev := commit.NewBranchDeleted(branch, user, time.Now().UTC())
	if err := c.store.DeleteBranch(repo, branch, ev); err != nil {
		return fmt.Errorf("engine: delete branch: %w", err)
	}

	metrics.BranchesDeletedTotal.Inc()
	return nil
}

// ListBranches returns every live branch of a repository, keyed by id.
func (c *Context) ListBranches(repo commit.RepositoryId) (map[commit.BranchId]commit.BranchInfo, error) {
	return c.store.ScanBranchInfos(repo)
}

// Log returns a repository's append-only event history, oldest first.
func (c *Context) Log(repo commit.RepositoryId) ([]commit.LogEvent, error) {
	return c.store.ListLogEvents(repo)
}

// OpenEditor returns a handle on the branch's cached editor, loading it
// from storage on a miss. The cache lock is never held across the load:
// on a racing double-open, one of the freshly loaded editors is
// discarded and both callers share the survivor.
func (c *Context) OpenEditor(repo commit.RepositoryId, branch commit.BranchId) (*EditorHandle, error) {
	key := editorKey{repo: repo, branch: branch}

	c.mu.Lock()
	if ce, ok := c.editors.Get(key); ok {
		ce.refs++
		c.mu.Unlock()
		return &EditorHandle{ctx: c, key: key, editor: ce.editor}, nil
	}
	c.mu.Unlock()

	ed, err := editor.Open(c.store, c.policy, repo, branch)
	if err != nil {
		return nil, err
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	ce, err := c.editors.GetOrMaybeInsertWith(key, func() (*cachedEditor, error) {
		return &cachedEditor{editor: ed}, nil
	})
	if err != nil {
		return nil, err
	}
	ce.refs++
	return &EditorHandle{ctx: c, key: key, editor: ce.editor}, nil
}

// dropEditor is called by EditorHandle.Close when an external reference
// disappears; the last one schedules TTL eviction.
func (c *Context) dropEditor(key editorKey) {
	c.mu.Lock()
	defer c.mu.Unlock()

	ce, ok := c.editors.Get(key)
	if !ok {
		return
	}
	ce.refs--
	if ce.refs <= 0 {
		ce.refs = 0
		c.editors.DropExpire(key, c.clock())
	}
}

// Sweep runs a GC pass over the editor cache, evicting every editor
// whose TTL has elapsed. Callers run it on whatever cadence suits them;
// DropExpire also forces a sweep when pending evictions reach capacity.
func (c *Context) Sweep() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.editors.GC(c.clock())
}

// Checkout resolves a commit's SnapshotEntry chain into a full State
//.
func (c *Context) Checkout(repo commit.RepositoryId, id commit.CommitId) (*objstate.State, error) {
	timer := metrics.NewTimer()
	state, err := delta.Resolve(storage.SnapshotResolver{Store: c.store, Repo: repo}, id)
	if err != nil {
		return nil, fmt.Errorf("engine: checkout %s: %w", id, err)
	}
	timer.ObserveDuration(metrics.CheckoutDuration)
	return state, nil
}

// MergeBase computes the lowest common ancestor of two commits, the
// merge base a merge-conflict preview starts from.
func (c *Context) MergeBase(repo commit.RepositoryId, a, b commit.CommitId) (commit.CommitId, error) {
	return lca.Two(storage.OriginResolver{Store: c.store, Repo: repo}, a, b)
}

// CreateMergeRequest spins up the scratch branch a merge request is
// previewed on, forked from the source branch's head, and records the
// MergeRequestCreated event. Conflict resolution itself happens through
// ordinary editor operations on the scratch branch.
func (c *Context) CreateMergeRequest(repo commit.RepositoryId, source commit.BranchId, targets []commit.BranchId, user commit.UserId) (commit.BranchId, error) {
	scratch, err := c.CreateBranch(CreateBranchOptions{
		Repo:       repo,
		User:       user,
		Title:      "merge request",
		Mode:       commit.BranchNormal,
		FromBranch: &source,
	})
	if err != nil {
		return commit.BranchId{}, err
	}

	ev := commit.NewMergeRequestCreated(source, targets, scratch, user, time.Now().UTC())
	if err := c.store.AppendLogEvents(repo, ev); err != nil {
		return commit.BranchId{}, fmt.Errorf("engine: log merge request: %w", err)
	}
	return scratch, nil
}

// EditorsCached implements metrics.Source.
func (c *Context) EditorsCached() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.editors.Len()
}

// Subscribers implements metrics.Source: the total subscriber count
// across every cached editor.
func (c *Context) Subscribers() int {
	c.mu.Lock()
	defer c.mu.Unlock()

	total := 0
	c.editors.Range(func(_ editorKey, ce *cachedEditor) bool {
		total += ce.editor.SubscriberCount()
		return true
	})
	return total
}
