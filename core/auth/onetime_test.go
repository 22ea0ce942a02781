package auth

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOneTime_IssueAndRedeem(t *testing.T) {
	store := NewOneTimeTokenStore()

	token, err := store.Issue("streams/a/playlist.m3u8", "")
	require.NoError(t, err)
	assert.Len(t, token, 40)

	key, err := store.Redeem(token, "")
	require.NoError(t, err)
	assert.Equal(t, "streams/a/playlist.m3u8", key)
}

func TestOneTime_SecondRedemptionRejected(t *testing.T) {
	store := NewOneTimeTokenStore()

	token, err := store.Issue("k", "")
	require.NoError(t, err)

	_, err = store.Redeem(token, "")
	require.NoError(t, err)

	// 此后每次兑换都必须被拒绝
	for i := 0; i < 3; i++ {
		_, err = store.Redeem(token, "")
		assert.Error(t, err)
	}
}

func TestOneTime_UnknownTokenRejected(t *testing.T) {
	store := NewOneTimeTokenStore()

	_, err := store.Redeem("never-issued", "")
	assert.ErrorIs(t, err, ErrTokenInvalid)
}

func TestOneTime_ExpiresUnconditionally(t *testing.T) {
	store := NewOneTimeTokenStore()
	base := time.Unix(1000, 0)
	store.now = func() time.Time { return base }

	token, err := store.Issue("k", "")
	require.NoError(t, err)

	// 超过 30 秒后即使从未使用也被拒绝
	base = base.Add(31 * time.Second)
	_, err = store.Redeem(token, "")
	assert.ErrorIs(t, err, ErrTokenExpired)
}

func TestOneTime_IPBinding(t *testing.T) {
	store := NewOneTimeTokenStore()

	token, err := store.Issue("k", "10.0.0.1")
	require.NoError(t, err)

	_, err = store.Redeem(token, "10.0.0.2")
	assert.ErrorIs(t, err, ErrTokenIPMismatch)

	// 失败的 IP 校验不消耗令牌
	key, err := store.Redeem(token, "10.0.0.1")
	require.NoError(t, err)
	assert.Equal(t, "k", key)
}

func TestOneTime_MissingCallerIPSkipsBindingCheck(t *testing.T) {
	store := NewOneTimeTokenStore()

	token, err := store.Issue("k", "10.0.0.1")
	require.NoError(t, err)

	_, err = store.Redeem(token, "")
	assert.NoError(t, err)
}

func TestOneTime_ConcurrentRedemptionSingleWinner(t *testing.T) {
	store := NewOneTimeTokenStore()

	token, err := store.Issue("k", "")
	require.NoError(t, err)

	const goroutines = 32
	var wg sync.WaitGroup
	var mu sync.Mutex
	successes := 0

	for i := 0; i < goroutines; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := store.Redeem(token, ""); err == nil {
				mu.Lock()
				successes++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, successes, "exactly one concurrent redemption may succeed")
}

func TestOneTime_IssueSweepsExpiredEntries(t *testing.T) {
	store := NewOneTimeTokenStore()
	base := time.Unix(1000, 0)
	store.now = func() time.Time { return base }

	for i := 0; i < 5; i++ {
		_, err := store.Issue("k", "")
		require.NoError(t, err)
	}
	require.Equal(t, 5, store.Len())

	base = base.Add(31 * time.Second)
	_, err := store.Issue("k", "")
	require.NoError(t, err)

	assert.Equal(t, 1, store.Len(), "expired entries are swept on issue")
}
