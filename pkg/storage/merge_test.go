package storage

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestAppendMergeAccumulates: an existing blob encoding two items
// merged with two further single-item appends decodes to all four
// items in order with count=4.
func TestAppendMergeAccumulates(t *testing.T) {
	existing := encodeAppendValue([][]byte{
		{17, 9},
		{5, 27},
	})

	merged := mergeAppend(existing, [][]byte{{12, 13}})
	merged = mergeAppend(merged, [][]byte{{8, 7}})

	items, err := decodeAppendValue(merged)
	require.NoError(t, err)
	assert.Equal(t, [][]byte{{17, 9}, {5, 27}, {12, 13}, {8, 7}}, items)
}

func TestAppendMergeEmptyExisting(t *testing.T) {
	merged := mergeAppend(nil, [][]byte{{1}, {2, 2}})
	items, err := decodeAppendValue(merged)
	require.NoError(t, err)
	assert.Equal(t, [][]byte{{1}, {2, 2}}, items)
}

func TestDecodeAppendValueEmpty(t *testing.T) {
	items, err := decodeAppendValue(nil)
	require.NoError(t, err)
	assert.Nil(t, items)
}

func TestDecodeAppendValueTruncated(t *testing.T) {
	_, err := decodeAppendValue([]byte{0, 0, 0, 0, 0, 0, 0, 1})
	assert.Error(t, err)
}
