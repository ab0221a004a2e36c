package storage

import (
	"bytes"
	"encoding/json"
	"fmt"
	"path/filepath"

	bolt "go.etcd.io/bbolt"

	"github.com/rossdb/ross/pkg/commit"
	"github.com/rossdb/ross/pkg/delta"
	"github.com/rossdb/ross/pkg/objstate"
)

// BoltStore implements Store on top of go.etcd.io/bbolt: one bucket per
// column family, json.Marshal'd record containers (value-bearing
// records go through the stored* mirror types in codec.go), with
// Update/View transactions as the atomic batch-write primitive.
type BoltStore struct {
	db *bolt.DB
}

// NewBoltStore opens (creating if necessary) a bbolt database file under
// dataDir and ensures every column family's bucket exists.
func NewBoltStore(dataDir string) (*BoltStore, error) {
	dbPath := filepath.Join(dataDir, "ross.db")

	db, err := bolt.Open(dbPath, 0600, nil)
	if err != nil {
		return nil, fmt.Errorf("storage: open database: %w", err)
	}

	err = db.Update(func(tx *bolt.Tx) error {
		for _, cf := range allColumnFamilies {
			if _, err := tx.CreateBucketIfNotExists([]byte(cf)); err != nil {
				return fmt.Errorf("storage: create bucket %s: %w", cf, err)
			}
		}
		return nil
	})
	if err != nil {
		db.Close()
		return nil, err
	}

	return &BoltStore{db: db}, nil
}

// Close closes the underlying database.
func (s *BoltStore) Close() error {
	return s.db.Close()
}

func putJSON(tx *bolt.Tx, cf ColumnFamily, key []byte, v interface{}) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("storage: marshal %s: %w", cf, err)
	}
	return tx.Bucket([]byte(cf)).Put(key, data)
}

// getJSON reports (found, error); v is only populated when found is true.
func getJSON(tx *bolt.Tx, cf ColumnFamily, key []byte, v interface{}) (bool, error) {
	data := tx.Bucket([]byte(cf)).Get(key)
	if data == nil {
		return false, nil
	}
	if err := json.Unmarshal(data, v); err != nil {
		return false, fmt.Errorf("storage: unmarshal %s: %w", cf, err)
	}
	return true, nil
}

// --- Repositories ---

func (s *BoltStore) PutRepositoryInfo(repo commit.RepositoryId, info commit.RepositoryInfo) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		return putJSON(tx, CFRepositories, repoKey(repo), info)
	})
}

func (s *BoltStore) GetRepositoryInfo(repo commit.RepositoryId) (commit.RepositoryInfo, bool, error) {
	var info commit.RepositoryInfo
	var found bool
	err := s.db.View(func(tx *bolt.Tx) error {
		var err error
		found, err = getJSON(tx, CFRepositories, repoKey(repo), &info)
		return err
	})
	return info, found, err
}

// --- Log ---

func (s *BoltStore) AppendLogEvents(repo commit.RepositoryId, events ...commit.LogEvent) error {
	return s.appendItems(CFLog, repoKey(repo), len(events), func(i int) (interface{}, error) {
		return events[i], nil
	})
}

func (s *BoltStore) ListLogEvents(repo commit.RepositoryId) ([]commit.LogEvent, error) {
	var out []commit.LogEvent
	err := s.listItems(CFLog, repoKey(repo), func(data []byte) error {
		var e commit.LogEvent
		if err := json.Unmarshal(data, &e); err != nil {
			return err
		}
		out = append(out, e)
		return nil
	})
	return out, err
}

// --- Branches ---

func (s *BoltStore) AppendBranchIds(repo commit.RepositoryId, ids ...commit.BranchId) error {
	return s.appendItems(CFBranches, repoKey(repo), len(ids), func(i int) (interface{}, error) {
		return ids[i], nil
	})
}

func (s *BoltStore) ListBranchIds(repo commit.RepositoryId) ([]commit.BranchId, error) {
	var out []commit.BranchId
	err := s.listItems(CFBranches, repoKey(repo), func(data []byte) error {
		var id commit.BranchId
		if err := json.Unmarshal(data, &id); err != nil {
			return err
		}
		out = append(out, id)
		return nil
	})
	return out, err
}

// --- Branch ---

func (s *BoltStore) PutBranchInfo(repo commit.RepositoryId, branch commit.BranchId, info commit.BranchInfo) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		return putJSON(tx, CFBranch, branchKey(repo, branch), info)
	})
}

func (s *BoltStore) GetBranchInfo(repo commit.RepositoryId, branch commit.BranchId) (commit.BranchInfo, bool, error) {
	var info commit.BranchInfo
	var found bool
	err := s.db.View(func(tx *bolt.Tx) error {
		var err error
		found, err = getJSON(tx, CFBranch, branchKey(repo, branch), &info)
		return err
	})
	return info, found, err
}

func (s *BoltStore) DeleteBranchInfo(repo commit.RepositoryId, branch commit.BranchId) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket([]byte(CFBranch)).Delete(branchKey(repo, branch))
	})
}

// --- LiveChanges ---

func (s *BoltStore) AppendLiveChanges(repo commit.RepositoryId, branch commit.BranchId, batches ...objstate.BatchPatch) error {
	return s.appendItems(CFLiveChanges, branchKey(repo, branch), len(batches), func(i int) (interface{}, error) {
		return encodeBatch(batches[i])
	})
}

func (s *BoltStore) ListLiveChanges(repo commit.RepositoryId, branch commit.BranchId) ([]objstate.BatchPatch, error) {
	var out []objstate.BatchPatch
	err := s.listItems(CFLiveChanges, branchKey(repo, branch), func(data []byte) error {
		var stored storedBatch
		if err := json.Unmarshal(data, &stored); err != nil {
			return err
		}
		b, err := decodeBatch(stored)
		if err != nil {
			return err
		}
		out = append(out, b)
		return nil
	})
	return out, err
}

func (s *BoltStore) ClearLiveChanges(repo commit.RepositoryId, branch commit.BranchId) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket([]byte(CFLiveChanges)).Delete(branchKey(repo, branch))
	})
}

// --- PackedDelta ---

func (s *BoltStore) GetPackedDelta(repo commit.RepositoryId, branch commit.BranchId) (objstate.Delta, bool, error) {
	var stored storedDelta
	var found bool
	err := s.db.View(func(tx *bolt.Tx) error {
		var err error
		found, err = getJSON(tx, CFPackedDelta, branchKey(repo, branch), &stored)
		return err
	})
	if err != nil || !found {
		return nil, found, err
	}
	d, err := decodeDelta(stored)
	return d, found, err
}

// --- Commit ---

func (s *BoltStore) PutCommitInfo(repo commit.RepositoryId, id commit.CommitId, info commit.CommitInfo) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		return putJSON(tx, CFCommit, commitKey(repo, id), info)
	})
}

func (s *BoltStore) GetCommitInfo(repo commit.RepositoryId, id commit.CommitId) (commit.CommitInfo, bool, error) {
	var info commit.CommitInfo
	var found bool
	err := s.db.View(func(tx *bolt.Tx) error {
		var err error
		found, err = getJSON(tx, CFCommit, commitKey(repo, id), &info)
		return err
	})
	return info, found, err
}

// GetCommitOrigin decodes only the Origin field of the stored
// CommitInfo record: the caller never materializes Parents, Authors,
// or Message.
func (s *BoltStore) GetCommitOrigin(repo commit.RepositoryId, id commit.CommitId) (commit.CommitOrigin, bool, error) {
	var wrapper struct {
		Origin commit.CommitOrigin
	}
	var found bool
	err := s.db.View(func(tx *bolt.Tx) error {
		var err error
		found, err = getJSON(tx, CFCommit, commitKey(repo, id), &wrapper)
		return err
	})
	return wrapper.Origin, found, err
}

// --- CommitDelta ---

func (s *BoltStore) GetCommitDelta(repo commit.RepositoryId, id commit.CommitId) (objstate.Delta, bool, error) {
	var stored storedDelta
	var found bool
	err := s.db.View(func(tx *bolt.Tx) error {
		var err error
		found, err = getJSON(tx, CFCommitDelta, commitKey(repo, id), &stored)
		return err
	})
	if err != nil || !found {
		return nil, found, err
	}
	d, err := decodeDelta(stored)
	return d, found, err
}

// --- Snapshot ---

func (s *BoltStore) PutSnapshotEntry(repo commit.RepositoryId, id commit.CommitId, entry delta.SnapshotEntry) error {
	stored, err := encodeSnapshotEntry(entry)
	if err != nil {
		return err
	}
	return s.db.Update(func(tx *bolt.Tx) error {
		return putJSON(tx, CFSnapshot, commitKey(repo, id), stored)
	})
}

func (s *BoltStore) GetSnapshotEntry(repo commit.RepositoryId, id commit.CommitId) (delta.SnapshotEntry, bool, error) {
	var stored storedSnapshotEntry
	var found bool
	err := s.db.View(func(tx *bolt.Tx) error {
		var err error
		found, err = getJSON(tx, CFSnapshot, commitKey(repo, id), &stored)
		return err
	})
	if err != nil || !found {
		return delta.SnapshotEntry{}, found, err
	}
	entry, err := decodeSnapshotEntry(stored)
	return entry, found, err
}

// ScanBranchInfos walks the Branch CF with a cursor seeked to repo's
// 16-byte key prefix, decoding every (repo, branch) entry it finds. The
// cursor yields keys in byte-lex order, so it visits exactly the
// branches of repo, in BranchId order; the returned map does not keep
// that order.
func (s *BoltStore) ScanBranchInfos(repo commit.RepositoryId) (map[commit.BranchId]commit.BranchInfo, error) {
	out := make(map[commit.BranchId]commit.BranchInfo)
	prefix := branchPrefix(repo)

	err := s.db.View(func(tx *bolt.Tx) error {
		c := tx.Bucket([]byte(CFBranch)).Cursor()
		for k, v := c.Seek(prefix); k != nil && bytes.HasPrefix(k, prefix); k, v = c.Next() {
			if len(k) != len(prefix)+16 {
				return fmt.Errorf("storage: malformed branch key of %d bytes", len(k))
			}
			var branch commit.BranchId
			copy(branch[:], k[len(prefix):])

			var info commit.BranchInfo
			if err := json.Unmarshal(v, &info); err != nil {
				return fmt.Errorf("storage: unmarshal branch %s: %w", branch, err)
			}
			out[branch] = info
		}
		return nil
	})
	return out, err
}

// --- composite atomic writes ---

// InitRepository lands a whole CreateRepository in one transaction.
func (s *BoltStore) InitRepository(w RepositoryWrite) error {
	snapshot, err := encodeSnapshotEntry(w.Snapshot)
	if err != nil {
		return err
	}
	return s.db.Update(func(tx *bolt.Tx) error {
		if err := putJSON(tx, CFRepositories, repoKey(w.Repo), w.Info); err != nil {
			return err
		}
		if err := putJSON(tx, CFCommit, commitKey(w.Repo, w.CommitId), w.CommitInfo); err != nil {
			return err
		}
		if err := putJSON(tx, CFSnapshot, commitKey(w.Repo, w.CommitId), snapshot); err != nil {
			return err
		}
		if err := putJSON(tx, CFBranch, branchKey(w.Repo, w.Branch), w.BranchInfo); err != nil {
			return err
		}
		if err := appendJSONInTx(tx, CFBranches, repoKey(w.Repo), w.Branch); err != nil {
			return err
		}
		for _, ev := range w.Events {
			if err := appendJSONInTx(tx, CFLog, repoKey(w.Repo), ev); err != nil {
				return err
			}
		}
		return nil
	})
}

// CreateBranch writes the branch record, its index entry, and the
// BranchCreated log event in one transaction.
func (s *BoltStore) CreateBranch(repo commit.RepositoryId, branch commit.BranchId, info commit.BranchInfo, ev commit.LogEvent) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		if err := putJSON(tx, CFBranch, branchKey(repo, branch), info); err != nil {
			return err
		}
		if err := appendJSONInTx(tx, CFBranches, repoKey(repo), branch); err != nil {
			return err
		}
		return appendJSONInTx(tx, CFLog, repoKey(repo), ev)
	})
}

// DeleteBranch removes the branch record (and any leftover live changes
// and packed delta) and logs the deletion in one transaction. The
// Branches index keeps the id; it records every branch ever created.
func (s *BoltStore) DeleteBranch(repo commit.RepositoryId, branch commit.BranchId, ev commit.LogEvent) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		key := branchKey(repo, branch)
		if err := tx.Bucket([]byte(CFBranch)).Delete(key); err != nil {
			return err
		}
		if err := tx.Bucket([]byte(CFLiveChanges)).Delete(key); err != nil {
			return err
		}
		if err := tx.Bucket([]byte(CFPackedDelta)).Delete(key); err != nil {
			return err
		}
		return appendJSONInTx(tx, CFLog, repoKey(repo), ev)
	})
}

// WriteCommit lands a whole Editor.Commit in one transaction: commit
// record, delta, snapshot entry, log event, advanced branch head,
// cleared live changes and packed delta.
func (s *BoltStore) WriteCommit(w CommitWrite) error {
	storedD, err := encodeDelta(w.Delta)
	if err != nil {
		return err
	}
	snapshot, err := encodeSnapshotEntry(w.Snapshot)
	if err != nil {
		return err
	}
	return s.db.Update(func(tx *bolt.Tx) error {
		ck := commitKey(w.Repo, w.CommitId)
		if err := putJSON(tx, CFCommit, ck, w.CommitInfo); err != nil {
			return err
		}
		if err := putJSON(tx, CFCommitDelta, ck, storedD); err != nil {
			return err
		}
		if err := putJSON(tx, CFSnapshot, ck, snapshot); err != nil {
			return err
		}
		if err := appendJSONInTx(tx, CFLog, repoKey(w.Repo), w.Event); err != nil {
			return err
		}
		bk := branchKey(w.Repo, w.Branch)
		if err := putJSON(tx, CFBranch, bk, w.BranchInfo); err != nil {
			return err
		}
		if err := tx.Bucket([]byte(CFLiveChanges)).Delete(bk); err != nil {
			return err
		}
		return tx.Bucket([]byte(CFPackedDelta)).Delete(bk)
	})
}

// PackLiveChanges writes the folded delta and clears the live-changes
// log in one transaction.
func (s *BoltStore) PackLiveChanges(repo commit.RepositoryId, branch commit.BranchId, d objstate.Delta) error {
	stored, err := encodeDelta(d)
	if err != nil {
		return err
	}
	return s.db.Update(func(tx *bolt.Tx) error {
		key := branchKey(repo, branch)
		if err := putJSON(tx, CFPackedDelta, key, stored); err != nil {
			return err
		}
		return tx.Bucket([]byte(CFLiveChanges)).Delete(key)
	})
}

// --- append-merge plumbing shared by Log, Branches, LiveChanges ---

// appendJSONInTx merge-appends a single marshaled item onto key's
// append-codec value inside an already-open transaction.
func appendJSONInTx(tx *bolt.Tx, cf ColumnFamily, key []byte, v interface{}) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("storage: marshal append item for %s: %w", cf, err)
	}
	b := tx.Bucket([]byte(cf))
	merged := mergeAppend(b.Get(key), [][]byte{data})
	return b.Put(key, merged)
}

// appendItems marshals n items (via build) to JSON and merge-appends
// them onto key's existing append-codec value in a single transaction.
func (s *BoltStore) appendItems(cf ColumnFamily, key []byte, n int, build func(i int) (interface{}, error)) error {
	if n == 0 {
		return nil
	}
	blobs := make([][]byte, n)
	for i := 0; i < n; i++ {
		v, err := build(i)
		if err != nil {
			return err
		}
		data, err := json.Marshal(v)
		if err != nil {
			return fmt.Errorf("storage: marshal append item for %s: %w", cf, err)
		}
		blobs[i] = data
	}

	return s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket([]byte(cf))
		existing := b.Get(key)
		merged := mergeAppend(existing, blobs)
		return b.Put(key, merged)
	})
}

// listItems decodes every item appended under key, in order, feeding
// each item's raw JSON bytes to decode.
func (s *BoltStore) listItems(cf ColumnFamily, key []byte, decode func(data []byte) error) error {
	return s.db.View(func(tx *bolt.Tx) error {
		data := tx.Bucket([]byte(cf)).Get(key)
		items, err := decodeAppendValue(data)
		if err != nil {
			return fmt.Errorf("storage: decode append value for %s: %w", cf, err)
		}
		for _, item := range items {
			if err := decode(item); err != nil {
				return err
			}
		}
		return nil
	})
}

var _ Store = (*BoltStore)(nil)
