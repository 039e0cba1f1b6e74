package profilecache

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/webmasterarbez/elaaoms-claude-sub000/internal/apperr"
)

func TestCacheFetchesOnceAndServesFromCache(t *testing.T) {
	var calls int32
	fetch := func(ctx context.Context, key string) (any, error) {
		atomic.AddInt32(&calls, 1)
		return "profile-" + key, nil
	}
	c := New(time.Minute, fetch, nil)

	v1, err := c.Get(context.Background(), "agent-1")
	require.NoError(t, err)
	require.Equal(t, "profile-agent-1", v1)

	v2, err := c.Get(context.Background(), "agent-1")
	require.NoError(t, err)
	require.Equal(t, "profile-agent-1", v2)
	require.Equal(t, int32(1), atomic.LoadInt32(&calls))
}

func TestCacheCollapsesConcurrentMisses(t *testing.T) {
	var calls int32
	release := make(chan struct{})
	fetch := func(ctx context.Context, key string) (any, error) {
		atomic.AddInt32(&calls, 1)
		<-release
		return "profile", nil
	}
	c := New(time.Minute, fetch, nil)

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := c.Get(context.Background(), "agent-1")
			require.NoError(t, err)
		}()
	}
	close(release)
	wg.Wait()

	require.Equal(t, int32(1), atomic.LoadInt32(&calls))
}

func TestCacheServesStaleOnUpstreamFailureAfterWarming(t *testing.T) {
	var fail atomic.Bool
	fetch := func(ctx context.Context, key string) (any, error) {
		if fail.Load() {
			return nil, apperr.New(apperr.UpstreamUnavailable, "down")
		}
		return "fresh-profile", nil
	}
	c := New(time.Millisecond, fetch, nil)

	v, err := c.Get(context.Background(), "agent-1")
	require.NoError(t, err)
	require.Equal(t, "fresh-profile", v)

	time.Sleep(5 * time.Millisecond)
	fail.Store(true)

	v, err = c.Get(context.Background(), "agent-1")
	require.NoError(t, err)
	require.Equal(t, "fresh-profile", v)
}

func TestCacheReturnsProfileUnavailableWithNoStaleValue(t *testing.T) {
	fetch := func(ctx context.Context, key string) (any, error) {
		return nil, apperr.New(apperr.UpstreamUnavailable, "down")
	}
	c := New(time.Minute, fetch, nil)

	_, err := c.Get(context.Background(), "agent-1")
	require.Error(t, err)
	require.Equal(t, apperr.ProfileUnavailable, apperr.KindOf(err))
}

func TestCacheInvalidateForcesRefetch(t *testing.T) {
	var calls int32
	fetch := func(ctx context.Context, key string) (any, error) {
		atomic.AddInt32(&calls, 1)
		return "profile", nil
	}
	c := New(time.Minute, fetch, nil)

	_, err := c.Get(context.Background(), "agent-1")
	require.NoError(t, err)
	c.Invalidate("agent-1")
	_, err = c.Get(context.Background(), "agent-1")
	require.NoError(t, err)

	require.Equal(t, int32(2), atomic.LoadInt32(&calls))
}
