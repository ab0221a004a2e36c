package storage

import (
	"encoding/binary"
	"fmt"
)

// Package-level append-merge codec. A CF value under this codec is
// `LE u64 count || item0 || item1 || ...`, each item itself
// length-prefixed so it is self-delimited. The merge operator
// (mergeAppend below) takes an optional existing value plus a sequence
// of new item blobs and produces the concatenation. BoltStore runs it
// read-modify-write inside the write transaction, so each append
// rewrites the whole existing value and its cost grows with the list.

// encodeAppendValue builds a fresh append-codec value containing items,
// in order, with no prior value.
func encodeAppendValue(items [][]byte) []byte {
	return mergeAppend(nil, items)
}

// mergeAppend is the merge operator itself: existing (nil on first
// write) plus newItems yields the new encoded value.
func mergeAppend(existing []byte, newItems [][]byte) []byte {
	var count uint64
	var body []byte

	if len(existing) >= 8 {
		count = binary.LittleEndian.Uint64(existing[:8])
		body = existing[8:]
	}

	total := 8 + len(body)
	for _, item := range newItems {
		total += 4 + len(item)
	}

	out := make([]byte, 0, total)
	var countBuf [8]byte
	binary.LittleEndian.PutUint64(countBuf[:], count+uint64(len(newItems)))
	out = append(out, countBuf[:]...)
	out = append(out, body...)

	for _, item := range newItems {
		var lenBuf [4]byte
		binary.LittleEndian.PutUint32(lenBuf[:], uint32(len(item)))
		out = append(out, lenBuf[:]...)
		out = append(out, item...)
	}

	return out
}

// decodeAppendValue materializes the ordered list of item blobs encoded
// by mergeAppend. A nil or empty value decodes to an empty list: a CF
// key that was never written behaves like one with zero appended items.
func decodeAppendValue(data []byte) ([][]byte, error) {
	if len(data) == 0 {
		return nil, nil
	}
	if len(data) < 8 {
		return nil, fmt.Errorf("storage: append value truncated: %d bytes", len(data))
	}

	count := binary.LittleEndian.Uint64(data[:8])
	rest := data[8:]

	// Every item carries at least a 4-byte length prefix.
	if count > uint64(len(rest))/4 {
		return nil, fmt.Errorf("storage: append value truncated: count %d exceeds remaining %d bytes", count, len(rest))
	}
	items := make([][]byte, 0, count)
	for i := uint64(0); i < count; i++ {
		if len(rest) < 4 {
			return nil, fmt.Errorf("storage: append value truncated before item %d length", i)
		}
		n := binary.LittleEndian.Uint32(rest[:4])
		rest = rest[4:]
		if uint64(len(rest)) < uint64(n) {
			return nil, fmt.Errorf("storage: append value truncated inside item %d", i)
		}
		items = append(items, rest[:n])
		rest = rest[n:]
	}

	return items, nil
}
