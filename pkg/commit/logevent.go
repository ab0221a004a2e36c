package commit

import "time"

// LogEventKind tags the active variant of a LogEvent.
type LogEventKind int

const (
	LogInit LogEventKind = iota
	LogBranchCreated
	LogBranchDeleted
	LogCommitted
	LogMergeRequestCreated
	LogMerged
)

func (k LogEventKind) String() string {
	switch k {
	case LogInit:
		return "Init"
	case LogBranchCreated:
		return "BranchCreated"
	case LogBranchDeleted:
		return "BranchDeleted"
	case LogCommitted:
		return "Committed"
	case LogMergeRequestCreated:
		return "MergeRequestCreated"
	case LogMerged:
		return "Merged"
	default:
		return "Unknown"
	}
}

// LogEvent is one entry of a repository's append-only history. Only
// the fields relevant to Kind are meaningful; a tagged union, not a
// polymorphic hierarchy.
type LogEvent struct {
	Kind LogEventKind
	Time time.Time
	User UserId

	// BranchCreated, BranchDeleted
	Branch BranchId
	Head   CommitId // BranchCreated only

	// Committed
	Commit CommitId

	// MergeRequestCreated, Merged: a merge can target several branches
	// at once; MergeBranch is the scratch branch created to preview and
	// resolve conflicts before the merge lands.
	Source      BranchId
	Targets     []BranchId
	MergeBranch BranchId
}

// NewInit builds the first LogEvent written by CreateRepository.
func NewInit(user UserId, at time.Time) LogEvent {
	return LogEvent{Kind: LogInit, User: user, Time: at}
}

// NewBranchCreated builds the event pushed by CreateBranch.
func NewBranchCreated(branch BranchId, head CommitId, user UserId, at time.Time) LogEvent {
	return LogEvent{Kind: LogBranchCreated, Branch: branch, Head: head, User: user, Time: at}
}

// NewBranchDeleted builds the event pushed when a branch is removed.
func NewBranchDeleted(branch BranchId, user UserId, at time.Time) LogEvent {
	return LogEvent{Kind: LogBranchDeleted, Branch: branch, User: user, Time: at}
}

// NewCommitted builds the event pushed by Editor.commit.
func NewCommitted(branch BranchId, commitID CommitId, user UserId, at time.Time) LogEvent {
	return LogEvent{Kind: LogCommitted, Branch: branch, Commit: commitID, User: user, Time: at}
}

// NewMergeRequestCreated builds the event pushed when a merge request
// spins up its scratch branch.
func NewMergeRequestCreated(source BranchId, targets []BranchId, mergeBranch BranchId, user UserId, at time.Time) LogEvent {
	return LogEvent{
		Kind:        LogMergeRequestCreated,
		Source:      source,
		Targets:     targets,
		MergeBranch: mergeBranch,
		User:        user,
		Time:        at,
	}
}

// NewMerged builds the event pushed once a merge request lands.
func NewMerged(source BranchId, targets []BranchId, user UserId, at time.Time) LogEvent {
	return LogEvent{Kind: LogMerged, Source: source, Targets: targets, User: user, Time: at}
}
