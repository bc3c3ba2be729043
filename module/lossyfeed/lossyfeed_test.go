package lossyfeed_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/onstrata/strata-go/module/lossyfeed"
	"github.com/onstrata/strata-go/utils/unittest"
)

// TestRecvInOrder verifies that a subscriber keeping up with the publisher
// receives every item, in publication order.
func TestRecvInOrder(t *testing.T) {
	feed := lossyfeed.New[int](10)
	sub := feed.Subscribe()

	for i := 0; i < 10; i++ {
		feed.Publish(i)
	}

	for i := 0; i < 10; i++ {
		item, err := sub.Recv(context.Background())
		require.NoError(t, err)
		require.Equal(t, i, item)
	}
}

// TestRecvBlocksUntilPublish verifies that Recv parks until an item arrives.
func TestRecvBlocksUntilPublish(t *testing.T) {
	feed := lossyfeed.New[string](1)
	sub := feed.Subscribe()

	received := make(chan struct{})
	go func() {
		item, err := sub.Recv(context.Background())
		require.NoError(t, err)
		require.Equal(t, "hello", item)
		close(received)
	}()

	unittest.RequireNeverClosedWithin(t, received, 100*time.Millisecond,
		"should not receive before anything is published")

	feed.Publish("hello")
	unittest.RequireCloseBefore(t, received, time.Second, "should receive after publish")
}

// TestRecvContextCancelled verifies that a blocked Recv returns the context
// error once the context ends.
func TestRecvContextCancelled(t *testing.T) {
	feed := lossyfeed.New[int](1)
	sub := feed.Subscribe()

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		_, err := sub.Recv(ctx)
		require.ErrorIs(t, err, context.Canceled)
		close(done)
	}()

	cancel()
	unittest.RequireCloseBefore(t, done, time.Second, "Recv should unblock on cancellation")
}

// TestSlowSubscriberGap verifies the overflow contract: when more items are
// published than the buffer holds, the oldest are dropped and the subscriber
// observes a single gap accounting for all of them, followed by the newest
// items.
func TestSlowSubscriberGap(t *testing.T) {
	feed := lossyfeed.New[int](3)
	sub := feed.Subscribe()

	// 8 items into a buffer of 3: items 0..4 are dropped, 5..7 survive.
	for i := 0; i < 8; i++ {
		feed.Publish(i)
	}

	_, err := sub.Recv(context.Background())
	var gap lossyfeed.GapError
	require.ErrorAs(t, err, &gap)
	require.Equal(t, uint64(5), gap.Skipped)

	for i := 5; i < 8; i++ {
		item, err := sub.Recv(context.Background())
		require.NoError(t, err)
		require.Equal(t, i, item)
	}
}

// TestGapReportedOnce verifies that a gap is consumed by the Recv reporting
// it, and subsequent receives proceed normally until the next overflow.
func TestGapReportedOnce(t *testing.T) {
	feed := lossyfeed.New[int](1)
	sub := feed.Subscribe()

	feed.Publish(1)
	feed.Publish(2)

	_, err := sub.Recv(context.Background())
	var gap lossyfeed.GapError
	require.ErrorAs(t, err, &gap)
	require.Equal(t, uint64(1), gap.Skipped)

	item, err := sub.Recv(context.Background())
	require.NoError(t, err)
	require.Equal(t, 2, item)

	feed.Publish(3)
	item, err = sub.Recv(context.Background())
	require.NoError(t, err)
	require.Equal(t, 3, item)
}

// TestCloseDrainsThenErrClosed verifies that closing the feed lets the
// subscriber drain buffered items before seeing ErrClosed.
func TestCloseDrainsThenErrClosed(t *testing.T) {
	feed := lossyfeed.New[int](5)
	sub := feed.Subscribe()

	feed.Publish(1)
	feed.Publish(2)
	feed.Close()

	item, err := sub.Recv(context.Background())
	require.NoError(t, err)
	require.Equal(t, 1, item)
	item, err = sub.Recv(context.Background())
	require.NoError(t, err)
	require.Equal(t, 2, item)

	_, err = sub.Recv(context.Background())
	require.ErrorIs(t, err, lossyfeed.ErrClosed)

	// closed is terminal
	_, err = sub.Recv(context.Background())
	require.ErrorIs(t, err, lossyfeed.ErrClosed)
}

// TestCloseUnblocksRecv verifies a parked Recv returns ErrClosed when the
// feed closes underneath it.
func TestCloseUnblocksRecv(t *testing.T) {
	feed := lossyfeed.New[int](1)
	sub := feed.Subscribe()

	done := make(chan struct{})
	go func() {
		_, err := sub.Recv(context.Background())
		require.ErrorIs(t, err, lossyfeed.ErrClosed)
		close(done)
	}()

	feed.Close()
	unittest.RequireCloseBefore(t, done, time.Second, "Recv should unblock on close")
}

// TestCloseIdempotent verifies Close and post-close Publish are no-ops.
func TestCloseIdempotent(t *testing.T) {
	feed := lossyfeed.New[int](1)
	sub := feed.Subscribe()

	feed.Close()
	feed.Close()
	feed.Publish(42)

	_, err := sub.Recv(context.Background())
	require.ErrorIs(t, err, lossyfeed.ErrClosed)
}

// TestSubscribeAfterClose verifies a subscription opened on a closed feed is
// born closed.
func TestSubscribeAfterClose(t *testing.T) {
	feed := lossyfeed.New[int](1)
	feed.Close()

	sub := feed.Subscribe()
	_, err := sub.Recv(context.Background())
	require.ErrorIs(t, err, lossyfeed.ErrClosed)
}

// TestMultipleSubscribers verifies every subscriber gets its own copy of the
// stream.
func TestMultipleSubscribers(t *testing.T) {
	feed := lossyfeed.New[int](10)
	subA := feed.Subscribe()
	subB := feed.Subscribe()

	for i := 0; i < 5; i++ {
		feed.Publish(i)
	}

	for _, sub := range []*lossyfeed.Subscription[int]{subA, subB} {
		for i := 0; i < 5; i++ {
			item, err := sub.Recv(context.Background())
			require.NoError(t, err)
			require.Equal(t, i, item)
		}
	}
}

// TestConcurrentPublish verifies the feed under concurrent publishers: the
// number of items received plus the number reported skipped must equal the
// number published, with no duplicates or losses beyond the reported gaps.
func TestConcurrentPublish(t *testing.T) {
	const publishers = 10
	const perPublisher = 100

	feed := lossyfeed.New[int](32)
	sub := feed.Subscribe()

	var wg sync.WaitGroup
	wg.Add(publishers)
	for p := 0; p < publishers; p++ {
		go func() {
			defer wg.Done()
			for i := 0; i < perPublisher; i++ {
				feed.Publish(i)
			}
		}()
	}

	go func() {
		wg.Wait()
		feed.Close()
	}()

	var received, skipped uint64
	for {
		_, err := sub.Recv(context.Background())
		if err == nil {
			received++
			continue
		}
		var gap lossyfeed.GapError
		if errors.As(err, &gap) {
			skipped += gap.Skipped
			continue
		}
		require.ErrorIs(t, err, lossyfeed.ErrClosed)
		break
	}
	require.Equal(t, uint64(publishers*perPublisher), received+skipped)
}
