package audiofx

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func drain(q *commandQueue) []command {
	stop := make(chan struct{})
	close(stop)

	var out []command
	for q.len() > 0 {
		cmd, ok := q.pop(stop)
		if !ok {
			break
		}
		out = append(out, cmd)
	}
	return out
}

func TestPushAddDropsQueuedRemoval(t *testing.T) {
	q := newCommandQueue()

	require.True(t, q.pushRemove(4))
	require.True(t, q.pushRemove(5))
	require.True(t, q.pushAdd(4))

	require.Equal(t, []command{
		removeSessionCmd{sessionID: 5},
		addSessionCmd{sessionID: 4},
	}, drain(q))
}

func TestPushAddSkipsPendingAdd(t *testing.T) {
	q := newCommandQueue()

	require.True(t, q.pushAdd(4))
	require.False(t, q.pushAdd(4))
	require.Equal(t, 1, q.len())
}

func TestPushRemoveSkipsPendingRemoval(t *testing.T) {
	q := newCommandQueue()

	require.True(t, q.pushRemove(4))
	require.False(t, q.pushRemove(4))
	require.True(t, q.pushRemove(6))
	require.Equal(t, 2, q.len())
}

func TestQueueKeepsOrder(t *testing.T) {
	q := newCommandQueue()

	q.push(updateCmd{flags: 1})
	q.pushAdd(2)
	q.push(overrideLevelCmd{band: 1, level: 2})

	require.Equal(t, []command{
		updateCmd{flags: 1},
		addSessionCmd{sessionID: 2},
		overrideLevelCmd{band: 1, level: 2},
	}, drain(q))
}

func TestPopWaitsForPush(t *testing.T) {
	q := newCommandQueue()
	stop := make(chan struct{})
	defer close(stop)

	got := make(chan command, 1)
	go func() {
		cmd, ok := q.pop(stop)
		if ok {
			got <- cmd
		}
	}()

	q.push(updateCmd{flags: 2})

	select {
	case cmd := <-got:
		require.Equal(t, updateCmd{flags: 2}, cmd)
	case <-time.After(time.Second):
		t.Fatal("pop did not return after push")
	}
}

func TestPopReturnsOnStop(t *testing.T) {
	q := newCommandQueue()
	stop := make(chan struct{})
	close(stop)

	_, ok := q.pop(stop)
	require.False(t, ok)
}
