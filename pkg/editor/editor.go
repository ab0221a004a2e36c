package editor

import (
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rossdb/ross/pkg/commit"
	"github.com/rossdb/ross/pkg/delta"
	"github.com/rossdb/ross/pkg/events"
	"github.com/rossdb/ross/pkg/metrics"
	"github.com/rossdb/ross/pkg/objstate"
	"github.com/rossdb/ross/pkg/protocol"
	"github.com/rossdb/ross/pkg/rlog"
	"github.com/rossdb/ross/pkg/storage"
)

// Protocol-level refusals. These are returned as errors from
// Perform/Commit but carry no storage failure behind them; the
// transport maps them to client-visible refusal codes.
var (
	ErrWriteOnArchived  = errors.New("editor: branch is archived, no writes permitted")
	ErrWriteOnStatic    = errors.New("editor: branch is static, no live changes permitted")
	ErrEmptyTransaction = errors.New("editor: empty transaction")
	ErrNoChangeToCommit = errors.New("editor: no change to commit")
	ErrHeadMoved        = errors.New("editor: branch head moved since expected head was read")
)

// Response is what an Editor operation hands the transport layer:
// messages for the initiating session and messages to fan out to every
// other subscriber. The Editor never blocks on delivery: broadcast is
// best-effort and non-blocking from its perspective.
type Response struct {
	Current []protocol.Message
	Others  []protocol.Message
}

// Editor is the live working copy of one branch: the
// resolved state at head with all live changes applied, the ordered
// live-changes log itself, and the broadcast fan-out for subscribers.
//
// A single RWMutex guards all mutable fields. Perform, PartialSync, and
// Commit take the write lock, so batch ordering on a branch is total;
// Sync and the accessors take the read lock.
type Editor struct {
	store  storage.Store
	policy commit.SnapshotPolicy
	repo   commit.RepositoryId
	branch commit.BranchId

	mu sync.RWMutex
	// info.Head advances on commit; info.Mode gates writes.
	info commit.BranchInfo
	// headState is the resolved state at info.Head, before the packed
	// delta and live changes, the diff base for the next commit.
	headState *objstate.State
	// state is headState with the packed delta and every live change
	// applied: what a fully-synced subscriber sees.
	state *objstate.State
	live  []objstate.BatchPatch

	broker     *events.Broker[protocol.Message]
	nextHostID atomic.Uint32
}

// Open loads the branch into memory: branch info, the
// snapshot chain at head, the packed delta if one exists, then every
// persisted live change replayed in order with trusted apply.
func Open(store storage.Store, policy commit.SnapshotPolicy, repo commit.RepositoryId, branch commit.BranchId) (*Editor, error) {
	timer := metrics.NewTimer()

	info, found, err := store.GetBranchInfo(repo, branch)
	if err != nil {
		return nil, fmt.Errorf("editor: read branch %s: %w", branch, err)
	}
	if !found {
		return nil, fmt.Errorf("editor: branch %s: %w", branch, storage.ErrBranchNotFound)
	}

	headState, err := delta.Resolve(storage.SnapshotResolver{Store: store, Repo: repo}, info.Head)
	if err != nil {
		return nil, fmt.Errorf("editor: checkout head of branch %s: %w", branch, err)
	}

	state := headState.Clone()

	packed, hasPacked, err := store.GetPackedDelta(repo, branch)
	if err != nil {
		return nil, fmt.Errorf("editor: read packed delta of branch %s: %w", branch, err)
	}
	if hasPacked {
		delta.ApplyTrusted(state, packed)
	}

	live, err := store.ListLiveChanges(repo, branch)
	if err != nil {
		return nil, fmt.Errorf("editor: read live changes of branch %s: %w", branch, err)
	}
	for _, batch := range live {
		if _, _, err := state.Apply(batch, true); err != nil {
			return nil, fmt.Errorf("editor: replay live changes of branch %s: %w", branch, err)
		}
	}

	e := &Editor{
		store:     store,
		policy:    policy,
		repo:      repo,
		branch:    branch,
		info:      info,
		headState: headState,
		state:     state,
		live:      live,
		broker:    events.NewBroker[protocol.Message](),
	}

	timer.ObserveDuration(metrics.EditorOpenDuration)
	metrics.EditorOpensTotal.Inc()
	openLogger := rlog.WithBranchID(branch.String())
	openLogger.Debug().
		Int("live_changes", len(live)).
		Str("head", info.Head.String()).
		Msg("editor opened")

	return e, nil
}

// Branch returns the branch this editor serves.
func (e *Editor) Branch() commit.BranchId { return e.branch }

// Head returns the current head commit.
func (e *Editor) Head() commit.CommitId {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.info.Head
}

// Info returns a copy of the current branch metadata.
func (e *Editor) Info() commit.BranchInfo {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.info
}

// LiveLen reports how many live changes sit on top of head.
func (e *Editor) LiveLen() int {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return len(e.live)
}

// Subscribe registers a new session with the editor's broadcast fan-out
// and returns its channel plus the HostID message the transport should
// deliver first.
func (e *Editor) Subscribe(buffer int) (events.Subscriber[protocol.Message], protocol.Message) {
	sub := e.broker.Subscribe(buffer)
	return sub, protocol.NewHostID(e.nextHostID.Add(1))
}

// Unsubscribe removes and closes a session's channel.
func (e *Editor) Unsubscribe(sub events.Subscriber[protocol.Message]) {
	e.broker.Unsubscribe(sub)
}

// SubscriberCount reports the number of currently subscribed sessions.
func (e *Editor) SubscriberCount() int {
	return e.broker.SubscriberCount()
}

// Broadcast fans a response out: Others to every subscriber except the
// initiator, Current to the initiator alone (delivered on its own
// channel). initiator may be nil for server-originated messages.
func (e *Editor) Broadcast(resp Response, initiator events.Subscriber[protocol.Message]) {
	for _, msg := range resp.Others {
		e.broker.PublishExcept(msg, initiator)
	}
	if initiator == nil {
		return
	}
	for _, msg := range resp.Current {
		select {
		case initiator <- msg:
		default:
		}
	}
}

// checkWritable enforces branch-mode gating: Archived refuses all
// writes, Static refuses live changes.
func (e *Editor) checkWritable() error {
	if !e.info.Mode.AllowsWrites() {
		return ErrWriteOnArchived
	}
	if !e.info.Mode.AllowsLiveChanges() {
		return ErrWriteOnStatic
	}
	return nil
}

// Perform applies one batch: mode gating, empty-batch
// refusal, conflict scan, then persist-and-remember with rollback on
// storage failure. On conflict, Current carries the Conflicts message
// and nothing is persisted or broadcast; on success, Others carries the
// Patch for every other subscriber and Current is empty (the initiator
// already applied the batch optimistically).
func (e *Editor) Perform(batch objstate.BatchPatch) (Response, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.performLocked(batch)
}

func (e *Editor) performLocked(batch objstate.BatchPatch) (Response, error) {
	timer := metrics.NewTimer()

	if err := e.checkWritable(); err != nil {
		metrics.PerformsTotal.WithLabelValues("refused").Inc()
		return Response{}, err
	}
	if len(batch.Patches) == 0 {
		metrics.PerformsTotal.WithLabelValues("refused").Inc()
		return Response{}, ErrEmptyTransaction
	}

	revert, conflicts, err := e.state.Apply(batch, false)
	if err != nil {
		return Response{}, fmt.Errorf("editor: apply batch: %w", err)
	}
	if len(conflicts) > 0 {
		for _, c := range conflicts {
			metrics.ConflictsTotal.WithLabelValues(c.Kind.String()).Inc()
		}
		metrics.PerformsTotal.WithLabelValues("conflict").Inc()
		return Response{Current: []protocol.Message{protocol.NewConflicts(conflicts)}}, nil
	}

	if err := e.store.AppendLiveChanges(e.repo, e.branch, batch); err != nil {
		// Roll the in-memory apply back so memory and storage agree.
		delta.ApplyTrusted(e.state, revert)
		return Response{}, fmt.Errorf("editor: persist live change: %w", err)
	}
	e.live = append(e.live, batch)

	metrics.LiveChangesAppendedTotal.Inc()
	metrics.PerformsTotal.WithLabelValues("applied").Inc()
	timer.ObserveDuration(metrics.PerformDuration)

	return Response{Others: []protocol.Message{protocol.NewPatch(batch)}}, nil
}

// Sync returns the full-sync message for a newly connected subscriber:
// the current head position and a copy of the resolved state.
func (e *Editor) Sync() protocol.Message {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.fullSyncLocked()
}

func (e *Editor) fullSyncLocked() protocol.Message {
	head := protocol.Head{Commit: e.info.Head, Live: len(e.live)}
	return protocol.NewFullSync(head, e.state.Clone())
}

// PartialSync resumes a session that has been offline. clientHead is where the client last was;
// clientBatches are changes it made while offline. The response's
// Current messages bring the client up to date (individual patches when
// only live changes are missing, a full sync when the commit advanced),
// and its Others messages broadcast whichever client batches applied
// cleanly. Batches that conflict produce Conflicts messages on Current
// and are not persisted.
func (e *Editor) PartialSync(clientHead protocol.Head, clientBatches []objstate.BatchPatch) (Response, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	var resp Response

	if clientHead.Commit == e.info.Head && clientHead.Live <= len(e.live) {
		// Same commit: the client is only missing live changes it
		// hasn't seen yet, if any.
		for _, batch := range e.live[clientHead.Live:] {
			resp.Current = append(resp.Current, protocol.NewPatch(batch))
		}
	} else {
		// The server committed (or the client's position is ahead of
		// anything we know, which only corruption produces): full sync.
		resp.Current = append(resp.Current, e.fullSyncLocked())
	}

	for _, batch := range clientBatches {
		r, err := e.performLocked(batch)
		if err != nil {
			if errors.Is(err, ErrEmptyTransaction) {
				continue
			}
			return resp, err
		}
		resp.Current = append(resp.Current, r.Current...)
		resp.Others = append(resp.Others, r.Others...)
	}

	return resp, nil
}

// Pack folds the branch's accumulated live changes (on top of any
// previously packed delta) into one persisted delta and clears the
// live-changes log, without committing. The resolved state is
// unchanged; a subsequent Open replays the packed delta instead of
// every individual batch. Broadcast order is unaffected because packing
// never changes what subscribers see.
func (e *Editor) Pack() error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if !e.info.Mode.AllowsWrites() {
		return ErrWriteOnArchived
	}
	if len(e.live) == 0 {
		return nil
	}

	d := delta.Diff(e.headState, e.state)
	if err := e.store.PackLiveChanges(e.repo, e.branch, d); err != nil {
		return fmt.Errorf("editor: pack live changes: %w", err)
	}
	e.live = nil
	return nil
}

// Commit freezes the live changes into an immutable commit:
// verify the expected head, build CommitInfo, choose snapshot-vs-delta
// per the policy, land everything in one storage batch, then clear the
// in-memory live changes and advance head. On storage failure, memory
// is untouched: same head, same live changes.
func (e *Editor) Commit(user commit.UserId, expectedHead commit.CommitId, message string) (commit.CommitId, Response, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	timer := metrics.NewTimer()

	if !e.info.Mode.AllowsWrites() {
		return commit.CommitId{}, Response{}, ErrWriteOnArchived
	}
	if e.info.Head != expectedHead {
		return commit.CommitId{}, Response{}, ErrHeadMoved
	}

	compact := delta.Diff(e.headState, e.state)
	if len(compact) == 0 {
		return commit.CommitId{}, Response{}, ErrNoChangeToCommit
	}

	headOrigin, found, err := e.store.GetCommitOrigin(e.repo, e.info.Head)
	if err != nil {
		return commit.CommitId{}, Response{}, fmt.Errorf("editor: read head origin: %w", err)
	}
	if !found {
		return commit.CommitId{}, Response{}, fmt.Errorf("editor: head %s: %w", e.info.Head, storage.ErrCommitNotFound)
	}

	info := commit.CommitInfo{
		Origin: commit.CommitOrigin{
			Branch:    e.branch,
			ForkPoint: e.info.ForkPoint,
			Order:     headOrigin.Order + 1,
		},
		Time:      batchTime(e.live),
		Parents:   []commit.CommitId{e.info.Head},
		Committer: user,
		Authors:   distinctAuthors(e.live),
		Message:   message,
	}
	id := info.Hash()

	entry, form, err := e.chooseSnapshotEntry(compact)
	if err != nil {
		return commit.CommitId{}, Response{}, err
	}

	newInfo := e.info
	newInfo.Head = id

	write := storage.CommitWrite{
		Repo:       e.repo,
		Branch:     e.branch,
		CommitId:   id,
		CommitInfo: info,
		Delta:      compact,
		Snapshot:   entry,
		BranchInfo: newInfo,
		Event:      commit.NewCommitted(e.branch, id, user, info.Time),
	}
	if err := e.store.WriteCommit(write); err != nil {
		return commit.CommitId{}, Response{}, fmt.Errorf("editor: write commit: %w", err)
	}

	e.info = newInfo
	e.headState = e.state.Clone()
	e.live = nil

	metrics.CommitsTotal.Inc()
	metrics.SnapshotsWrittenTotal.WithLabelValues(form).Inc()
	timer.ObserveDuration(metrics.CommitDuration)
	commitLogger := rlog.WithBranchID(e.branch.String())
	commitLogger.Info().
		Str("commit_id", id.String()).
		Int("objects_changed", len(compact)).
		Msg("commit landed")

	return id, Response{Others: []protocol.Message{protocol.NewCommitted(e.branch, id)}}, nil
}

// chooseSnapshotEntry asks the policy whether the new commit stores a
// full image or a delta against the previous head, comparing serialized
// sizes and the resolve-chain depth a delta would produce.
func (e *Editor) chooseSnapshotEntry(compact objstate.Delta) (delta.SnapshotEntry, string, error) {
	snapshotEntry := delta.NewSnapshot(e.state.Clone())
	deltaEntry := delta.NewDeltaEntry(e.info.Head, compact)

	chainDepth, err := storage.SnapshotChainDepth(e.store, e.repo, e.info.Head)
	if err != nil {
		return delta.SnapshotEntry{}, "", fmt.Errorf("editor: measure snapshot chain: %w", err)
	}

	deltaSize, err := serializedSize(deltaEntry)
	if err != nil {
		return delta.SnapshotEntry{}, "", err
	}
	snapshotSize, err := serializedSize(snapshotEntry)
	if err != nil {
		return delta.SnapshotEntry{}, "", err
	}

	if e.policy.ShouldSnapshot(chainDepth+1, deltaSize, snapshotSize) {
		return snapshotEntry, "snapshot", nil
	}
	return deltaEntry, "delta", nil
}

// serializedSize measures a candidate entry's serialized form. The
// policy only compares the two candidates against each other, so the
// exact storage framing does not need to be reproduced here.
func serializedSize(entry delta.SnapshotEntry) (int, error) {
	data, err := json.Marshal(entry)
	if err != nil {
		return 0, fmt.Errorf("editor: size snapshot entry: %w", err)
	}
	return len(data), nil
}

// batchTime picks the commit's timestamp: the last live batch's time,
// falling back to now if the log carries no usable timestamp.
func batchTime(live []objstate.BatchPatch) time.Time {
	for i := len(live) - 1; i >= 0; i-- {
		if !live[i].Time.IsZero() {
			return live[i].Time
		}
	}
	return time.Now().UTC()
}

// distinctAuthors collects the distinct batch authors in first-seen
// order, so two commits from the same live log always list the same
// author sequence.
func distinctAuthors(live []objstate.BatchPatch) []commit.UserId {
	seen := make(map[commit.UserId]bool, len(live))
	var authors []commit.UserId
	for _, batch := range live {
		if !seen[batch.Author] {
			seen[batch.Author] = true
			authors = append(authors, batch.Author)
		}
	}
	return authors
}
