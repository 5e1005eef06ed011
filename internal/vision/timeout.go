package vision

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/technosupport/sentinel/internal/recogerr"
)

// DefaultCallTimeout is the per-call ceiling the recognition worker
// enforces on every Detect; the source clamps this to 10-15s.
const DefaultCallTimeout = 10 * time.Second

// TimeoutDetector wraps Capability with a hard per-call deadline. A call
// that exceeds the deadline (or whose context ends first) disposes the
// current ONNX sessions and rebuilds them in the background; a call that
// finds no live capability builds one before running. This keeps a
// wedged native call from poisoning every subsequent frame.
type TimeoutDetector struct {
	cfg     Config
	timeout time.Duration

	mu  sync.Mutex
	cap *Capability
}

// NewTimeoutDetector builds the underlying Capability eagerly so the
// first real call pays no cold-start cost.
func NewTimeoutDetector(cfg Config, timeout time.Duration) (*TimeoutDetector, error) {
	if timeout <= 0 {
		timeout = DefaultCallTimeout
	}
	cap, err := NewCapability(cfg)
	if err != nil {
		return nil, err
	}
	return &TimeoutDetector{cfg: cfg, timeout: timeout, cap: cap}, nil
}

// Detect runs Capability.Detect on a goroutine and races it against the
// configured timeout. On timeout the current sessions are disposed; the
// frame that timed out is reported as an error to the caller, who is
// expected to treat it as a drop, not propagate it further up the stream.
func (t *TimeoutDetector) Detect(ctx context.Context, imageBytes []byte) (Result, error) {
	t.mu.Lock()
	cap := t.cap
	t.mu.Unlock()

	if cap == nil {
		if err := t.reinit(); err != nil {
			return Result{}, fmt.Errorf("detector unavailable: %w", err)
		}
		t.mu.Lock()
		cap = t.cap
		t.mu.Unlock()
	}

	type outcome struct {
		res Result
		err error
	}
	done := make(chan outcome, 1)
	go func() {
		res, err := cap.Detect(imageBytes)
		done <- outcome{res, err}
	}()

	deadline := time.NewTimer(t.timeout)
	defer deadline.Stop()

	select {
	case o := <-done:
		return o.res, o.err
	case <-ctx.Done():
		t.disposeAndReinitAsync()
		return Result{}, ctx.Err()
	case <-deadline.C:
		slog.Warn("detector call timed out, disposing and reinitializing", "timeout", t.timeout)
		t.disposeAndReinitAsync()
		return Result{}, fmt.Errorf("%w: after %s", recogerr.ErrTimeout, t.timeout)
	}
}

func (t *TimeoutDetector) disposeAndReinitAsync() {
	t.mu.Lock()
	old := t.cap
	t.cap = nil
	t.mu.Unlock()

	go func() {
		if old != nil {
			old.Close()
		}
		if err := t.reinit(); err != nil {
			slog.Error("detector reinit failed", "error", err)
		}
	}()
}

func (t *TimeoutDetector) reinit() error {
	cap, err := NewCapability(t.cfg)
	if err != nil {
		return err
	}
	t.mu.Lock()
	t.cap = cap
	t.mu.Unlock()
	return nil
}

// SetConfidenceThreshold forwards to the live capability, if any.
func (t *TimeoutDetector) SetConfidenceThreshold(v float32) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.cap != nil {
		t.cap.SetConfidenceThreshold(v)
	}
}

// Crop forwards to the live capability.
func (t *TimeoutDetector) Crop(imageBytes []byte, box [4]float32) ([]byte, error) {
	t.mu.Lock()
	cap := t.cap
	t.mu.Unlock()
	if cap == nil {
		return nil, fmt.Errorf("detector unavailable")
	}
	return cap.Crop(imageBytes, box)
}

// Close releases the underlying sessions.
func (t *TimeoutDetector) Close() {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.cap != nil {
		t.cap.Close()
		t.cap = nil
	}
}
