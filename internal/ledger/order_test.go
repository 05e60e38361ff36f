package ledger

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAppendKey(t *testing.T) {
	assert.Equal(t, int64(1024), appendKey(nil))

	day := []*Entry{{OrderKey: 1024}, {OrderKey: 2048}}
	assert.Equal(t, int64(3072), appendKey(day))

	day = []*Entry{{OrderKey: 7}}
	assert.Equal(t, int64(7+1024), appendKey(day))
}

func TestKeyBetween(t *testing.T) {
	key, ok := keyBetween(0, 1024)
	require.True(t, ok)
	assert.Equal(t, int64(512), key)

	key, ok = keyBetween(1024, 2048)
	require.True(t, ok)
	assert.Equal(t, int64(1536), key)

	// Repeated insertion at the front halves the gap until it closes.
	prev, next := int64(0), int64(1024)
	inserts := 0
	for {
		key, ok := keyBetween(prev, next)
		if !ok {
			break
		}
		assert.Greater(t, key, prev)
		assert.Less(t, key, next)
		next = key
		inserts++
	}
	assert.Equal(t, 10, inserts)

	_, ok = keyBetween(5, 6)
	assert.False(t, ok)
	_, ok = keyBetween(5, 5)
	assert.False(t, ok)
}

func TestRenormalize(t *testing.T) {
	day := []*Entry{
		{ID: "a", OrderKey: 1},
		{ID: "b", OrderKey: 2048},
		{ID: "c", OrderKey: 2049},
	}

	touched := renormalize(day)

	assert.Equal(t, int64(1024), day[0].OrderKey)
	assert.Equal(t, int64(2048), day[1].OrderKey)
	assert.Equal(t, int64(3072), day[2].OrderKey)

	// b already sat on its slot and is not reported.
	require.Len(t, touched, 2)
	assert.Equal(t, "a", touched[0].ID)
	assert.Equal(t, "c", touched[1].ID)
}
