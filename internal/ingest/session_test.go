package ingest

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
)

func TestEventIDFromSessionIDParsesOrchestratorConvention(t *testing.T) {
	eventID := uuid.New()
	cameraID := uuid.New()
	sessionID := "event-" + eventID.String() + "-camera-" + cameraID.String() + "-1234567890"

	got, ok := EventIDFromSessionID(sessionID)
	require.True(t, ok)
	require.Equal(t, eventID, got)
}

func TestEventIDFromSessionIDRejectsFaceOnlyConvention(t *testing.T) {
	_, ok := EventIDFromSessionID("face-rec-" + uuid.New().String() + "-1234567890")
	require.False(t, ok)
}

func TestOnFrameThrottlesWithinWindow(t *testing.T) {
	var handled atomic.Int64
	handler := func(ctx context.Context, sessionID string, frame Frame) error {
		handled.Add(1)
		return nil
	}
	sess := NewSession("s1", uuid.New(), uuid.New(), "rtsp://x", 1, newAdmission(10), handler)

	sess.onFrame(context.Background(), []byte("frame-1"))
	sess.onFrame(context.Background(), []byte("frame-2"))

	time.Sleep(50 * time.Millisecond)
	require.EqualValues(t, 1, handled.Load(), "second frame within the throttle window must be dropped")
	require.Equal(t, uint64(1), sess.nextSeq)
}

func TestOnFrameRingTrimsToMaxRetained(t *testing.T) {
	handler := func(ctx context.Context, sessionID string, frame Frame) error { return nil }
	sess := NewSession("s1", uuid.New(), uuid.New(), "rtsp://x", 1, newAdmission(10), handler)

	for i := 0; i < maxRetainedFrames+3; i++ {
		sess.onFrame(context.Background(), []byte("x"))
		sess.mu.Lock()
		sess.lastProcessed = time.Time{} // bypass throttle between synthetic frames
		sess.mu.Unlock()
	}

	sess.mu.Lock()
	ringLen := len(sess.ring)
	sess.mu.Unlock()
	require.Equal(t, maxRetainedFrames, ringLen)
}

func TestStatsReflectsRetainedBytesAndState(t *testing.T) {
	handler := func(ctx context.Context, sessionID string, frame Frame) error { return nil }
	sess := NewSession("s1", uuid.New(), uuid.New(), "rtsp://x", 1, newAdmission(10), handler)
	require.Equal(t, StateIdle, sess.Stats().State)

	sess.onFrame(context.Background(), []byte("abcde"))
	stats := sess.Stats()
	require.Equal(t, 5, stats.RetainedBytes)
	require.False(t, stats.LastFrameTime.IsZero())
}

func TestTrimToNewestKeepsOnlyNFrames(t *testing.T) {
	handler := func(ctx context.Context, sessionID string, frame Frame) error { return nil }
	sess := NewSession("s1", uuid.New(), uuid.New(), "rtsp://x", 1, newAdmission(10), handler)
	for i := 0; i < 5; i++ {
		sess.onFrame(context.Background(), []byte("x"))
		sess.mu.Lock()
		sess.lastProcessed = time.Time{}
		sess.mu.Unlock()
	}
	sess.trimToNewest(2)
	sess.mu.Lock()
	ringLen := len(sess.ring)
	sess.mu.Unlock()
	require.Equal(t, 2, ringLen)
}

func TestAdmissionEnforcesLimit(t *testing.T) {
	a := newAdmission(2)
	require.True(t, a.tryAcquire())
	require.True(t, a.tryAcquire())
	require.False(t, a.tryAcquire())
	a.release()
	require.True(t, a.tryAcquire())
}

func TestIsActiveTracksState(t *testing.T) {
	handler := func(ctx context.Context, sessionID string, frame Frame) error { return nil }
	sess := NewSession("s1", uuid.New(), uuid.New(), "rtsp://x", 1, newAdmission(10), handler)
	require.False(t, sess.IsActive())

	sess.mu.Lock()
	sess.state = StateRunning
	sess.mu.Unlock()
	require.True(t, sess.IsActive())
}
