package xkeylock

import (
	"bytes"
	"context"
	"runtime"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"

	"github.com/omeyang/multikeylock/pkg/observability/xlog"
)

func TestAcquire_ZeroTimeoutClaimsExactlyOnce(t *testing.T) {
	ctrl := gomock.NewController(t)
	reg := NewMockRegistry(ctrl)
	kl := newForTest(t, WithRegistry(reg))

	reg.EXPECT().TryClaim("k").Return(Generation(0), false).Times(1)

	_, err := kl.Acquire(context.Background(), "k", WithTimeout(0))
	assert.ErrorIs(t, err, ErrTimedOut)
}

func TestAcquire_MaxAttemptsCountsClaims(t *testing.T) {
	ctrl := gomock.NewController(t)
	reg := NewMockRegistry(ctrl)
	kl := newForTest(t, WithRegistry(reg))

	reg.EXPECT().TryClaim("k").Return(Generation(0), false).Times(4)

	_, err := kl.Acquire(context.Background(), "k", fast(WithMaxAttempts(4))...)
	assert.ErrorIs(t, err, ErrTooManyAttempts)
}

func TestAcquire_RetriesUntilClaimed(t *testing.T) {
	ctrl := gomock.NewController(t)
	reg := NewMockRegistry(ctrl)
	kl := newForTest(t, WithRegistry(reg))

	gomock.InOrder(
		reg.EXPECT().TryClaim("k").Return(Generation(0), false).Times(2),
		reg.EXPECT().TryClaim("k").Return(Generation(9), true),
		reg.EXPECT().Release("k", Generation(9)).Return(true),
	)

	var waits int
	g, err := kl.Acquire(context.Background(), "k", fast(WithOnWait(func(int, time.Duration) { waits++ }))...)
	require.NoError(t, err)
	assert.Equal(t, Generation(9), g.Generation())
	assert.Equal(t, 2, waits)
	g.Release()
}

func TestGuard_ReleasesClaimedGenerationOnce(t *testing.T) {
	ctrl := gomock.NewController(t)
	reg := NewMockRegistry(ctrl)
	kl := newForTest(t, WithRegistry(reg))

	reg.EXPECT().TryClaim("k").Return(Generation(42), true)
	reg.EXPECT().Release("k", Generation(42)).Return(true).Times(1)

	g, err := kl.TryAcquire("k")
	require.NoError(t, err)
	g.Release()
	g.Release()
	assert.True(t, g.Released())
}

func TestGuard_ReleaseMismatchIsLoggedNotReturned(t *testing.T) {
	ctrl := gomock.NewController(t)
	reg := NewMockRegistry(ctrl)

	var buf bytes.Buffer
	logger, cleanup, err := xlog.New().SetOutput(&buf).Build()
	require.NoError(t, err)
	t.Cleanup(func() { _ = cleanup() })

	kl := newForTest(t, WithRegistry(reg), WithLogger(logger))

	reg.EXPECT().TryClaim("k").Return(Generation(5), true)
	reg.EXPECT().Release("k", Generation(5)).Return(false)

	g, err := kl.TryAcquire("k")
	require.NoError(t, err)
	g.Release()

	out := buf.String()
	assert.Contains(t, out, "registry entry missing on release")
	assert.Contains(t, out, "generation=5")
	assert.Contains(t, out, "stack=")
	assert.Equal(t, 0, kl.Len())
}

func TestGuard_LeakedGuardReleasedByCleanup(t *testing.T) {
	var buf syncBuffer
	logger, cleanup, err := xlog.New().SetOutput(&buf).Build()
	require.NoError(t, err)
	t.Cleanup(func() { _ = cleanup() })

	kl := newForTest(t, WithLogger(logger))

	func() {
		_, err := kl.TryAcquire("leaky")
		require.NoError(t, err)
	}()

	assert.Eventually(t, func() bool {
		runtime.GC()
		return kl.Len() == 0
	}, 5*time.Second, 10*time.Millisecond)

	g, err := kl.TryAcquire("leaky")
	require.NoError(t, err, "key must be claimable after the leaked guard is collected")
	g.Release()

	assert.Eventually(t, func() bool {
		return bytes.Contains(buf.Bytes(), []byte("guard collected without Release"))
	}, time.Second, 10*time.Millisecond)
}
