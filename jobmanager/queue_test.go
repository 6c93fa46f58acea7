package jobmanager

import (
	"testing"

	"github.com/copyd/copyd/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestQueueHigherPriorityPopsFirst(t *testing.T) {
	q := newQueue()
	low := common.NewJobID()
	high := common.NewJobID()

	q.PushBack(low, 1)
	q.PushBack(high, 10)

	id, ok := q.Pop()
	require.True(t, ok)
	assert.Equal(t, high, id)

	id, ok = q.Pop()
	require.True(t, ok)
	assert.Equal(t, low, id)
}

func TestQueueFIFOWithinSamePriority(t *testing.T) {
	q := newQueue()
	first := common.NewJobID()
	second := common.NewJobID()

	q.PushBack(first, 5)
	q.PushBack(second, 5)

	id, _ := q.Pop()
	assert.Equal(t, first, id)
	id, _ = q.Pop()
	assert.Equal(t, second, id)
}

func TestQueuePushFrontBeatsAnyPriority(t *testing.T) {
	q := newQueue()
	normal := common.NewJobID()
	resumed := common.NewJobID()

	q.PushBack(normal, 100)
	q.PushFront(resumed, 0)

	id, _ := q.Pop()
	assert.Equal(t, resumed, id)
}

func TestQueuePopEmptyReturnsFalse(t *testing.T) {
	q := newQueue()
	_, ok := q.Pop()
	assert.False(t, ok)
}
