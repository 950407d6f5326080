package eventbus

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/banshee-data/handheld/internal/motion"
)

// seqEvent lets the ordering tests tag each event with its producer.
type seqEvent struct {
	producer int
	seq      int
}

func (seqEvent) isEvent() {}

func TestTryRecv_Empty(t *testing.T) {
	tx, rx := New()
	defer tx.Close()

	e, err := rx.TryRecv()
	assert.Nil(t, e)
	assert.ErrorIs(t, err, ErrEmpty)
}

func TestSendNeverBlocks(t *testing.T) {
	tx, rx := New()
	defer tx.Close()

	for i := 0; i < 10_000; i++ {
		require.NoError(t, tx.Send(seqEvent{seq: i}))
	}
	assert.Equal(t, 10_000, rx.Len())
	assert.Equal(t, uint64(10_000), rx.Sent())
}

func TestFIFOPerProducer(t *testing.T) {
	tx, rx := New()
	const producers, perProducer = 4, 500

	var wg sync.WaitGroup
	for p := 0; p < producers; p++ {
		s := tx.Clone()
		wg.Add(1)
		go func(p int, s *Sender) {
			defer wg.Done()
			defer s.Close()
			for i := 0; i < perProducer; i++ {
				if err := s.Send(seqEvent{producer: p, seq: i}); err != nil {
					t.Errorf("producer %d: %v", p, err)
					return
				}
			}
		}(p, s)
	}
	tx.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	next := make([]int, producers)
	total := 0
	for {
		e, err := rx.Recv(ctx)
		if errors.Is(err, ErrClosed) {
			break
		}
		require.NoError(t, err)
		ev := e.(seqEvent)
		require.Equal(t, next[ev.producer], ev.seq, "producer %d out of order", ev.producer)
		next[ev.producer]++
		total++
	}
	wg.Wait()
	assert.Equal(t, producers*perProducer, total)
}

func TestRecv_WakesOnSend(t *testing.T) {
	tx, rx := New()
	defer tx.Close()

	go func() {
		time.Sleep(10 * time.Millisecond)
		_ = tx.Send(UserInputEvent{Input: InputConfirm})
	}()

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	e, err := rx.Recv(ctx)
	require.NoError(t, err)
	assert.Equal(t, UserInputEvent{Input: InputConfirm}, e)
}

func TestRecv_ContextCancelled(t *testing.T) {
	tx, rx := New()
	defer tx.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	_, err := rx.Recv(ctx)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestClosedAfterAllSendersDrained(t *testing.T) {
	tx, rx := New()
	clone := tx.Clone()

	require.NoError(t, tx.Send(SystemFaultEvent{Source: "sensor", Reason: "bus error"}))
	tx.Close()

	_, err := rx.TryRecv()
	require.NoError(t, err)
	_, err = rx.TryRecv()
	assert.ErrorIs(t, err, ErrEmpty, "clone still open")

	require.NoError(t, clone.Send(MotionEvent{State: motion.Shaking}))
	clone.Close()

	e, err := rx.TryRecv()
	require.NoError(t, err, "pending events survive the last close")
	assert.Equal(t, motion.Shaking, e.(MotionEvent).State)

	_, err = rx.TryRecv()
	assert.ErrorIs(t, err, ErrClosed)
	_, err = rx.Recv(context.Background())
	assert.ErrorIs(t, err, ErrClosed)
}

func TestSenderCloseIsIdempotent(t *testing.T) {
	tx, rx := New()
	clone := tx.Clone()
	tx.Close()
	tx.Close()

	assert.ErrorIs(t, tx.Send(UserInputEvent{}), ErrSenderClosed)
	_, err := rx.TryRecv()
	assert.ErrorIs(t, err, ErrEmpty, "double close must not release the clone's reference")
	clone.Close()
}

func TestSendAfterReceiverClosed(t *testing.T) {
	tx, rx := New()
	defer tx.Close()
	require.NoError(t, tx.Send(UserInputEvent{}))

	rx.Close()
	assert.ErrorIs(t, tx.Send(UserInputEvent{}), ErrReceiverClosed)
	assert.ErrorIs(t, tx.Clone().Send(UserInputEvent{}), ErrReceiverClosed)
	assert.Zero(t, rx.Len())
}

func TestUserInputNames(t *testing.T) {
	for _, u := range []UserInput{InputPress, InputConfirm, InputCancel, InputSettings, InputBack} {
		got, ok := ParseUserInput(u.String())
		require.True(t, ok, u.String())
		assert.Equal(t, u, got)
	}
	_, ok := ParseUserInput("jump")
	assert.False(t, ok)
}

func TestNetworkResultOK(t *testing.T) {
	assert.True(t, NetworkResultEvent{Command: CommandScan}.OK())
	assert.False(t, NetworkResultEvent{Command: CommandConnect, Err: "auth failed"}.OK())
	assert.Equal(t, "connect", CommandConnect.String())
	assert.Equal(t, "connected", StatusConnected.String())
}
