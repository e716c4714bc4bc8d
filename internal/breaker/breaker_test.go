package breaker

import (
	"errors"
	"sync"
	"testing"
	"time"
)

var errBoom = errors.New("boom")

// fakeClock lets tests advance time without sleeping.
type fakeClock struct {
	mu sync.Mutex
	t  time.Time
}

func (c *fakeClock) now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *fakeClock) advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = c.t.Add(d)
}

func newTestBreaker(threshold int, cooldown time.Duration) (*Breaker, *fakeClock) {
	clock := &fakeClock{t: time.Unix(1000, 0)}
	b := New(threshold, cooldown)
	b.now = clock.now
	return b, clock
}

func fail(b *Breaker) error    { return b.Do(func() error { return errBoom }) }
func succeed(b *Breaker) error { return b.Do(func() error { return nil }) }

func TestOpensAfterThreshold(t *testing.T) {
	b, _ := newTestBreaker(5, time.Minute)

	for i := 0; i < 5; i++ {
		if err := fail(b); !errors.Is(err, errBoom) {
			t.Fatalf("call %d: err = %v, want errBoom", i, err)
		}
	}
	if b.State() != StateOpen {
		t.Fatalf("state = %s, want open", b.State())
	}

	// 6th call is rejected without invoking the function.
	invoked := false
	err := b.Do(func() error { invoked = true; return nil })
	if !errors.Is(err, ErrOpen) {
		t.Errorf("err = %v, want ErrOpen", err)
	}
	if invoked {
		t.Error("wrapped function invoked while breaker open")
	}
}

func TestSuccessResetsFailureCount(t *testing.T) {
	b, _ := newTestBreaker(3, time.Minute)

	_ = fail(b)
	_ = fail(b)
	_ = succeed(b)
	if b.Failures() != 0 {
		t.Errorf("failures = %d after success, want 0", b.Failures())
	}
	_ = fail(b)
	_ = fail(b)
	if b.State() != StateClosed {
		t.Errorf("state = %s, want closed (only 2 consecutive failures)", b.State())
	}
}

func TestHalfOpenAfterCooldown(t *testing.T) {
	b, clock := newTestBreaker(5, 60*time.Second)

	for i := 0; i < 5; i++ {
		_ = fail(b)
	}
	if !errors.Is(fail(b), ErrOpen) {
		t.Fatal("expected rejection while open")
	}

	clock.advance(61 * time.Second)

	// Next call executes and on success the breaker closes.
	if err := succeed(b); err != nil {
		t.Fatalf("trial call failed: %v", err)
	}
	if b.State() != StateClosed {
		t.Errorf("state = %s after successful trial, want closed", b.State())
	}
	if b.Failures() != 0 {
		t.Errorf("failures = %d, want 0", b.Failures())
	}
}

func TestHalfOpenFailureReopens(t *testing.T) {
	b, clock := newTestBreaker(2, 30*time.Second)

	_ = fail(b)
	_ = fail(b)
	clock.advance(31 * time.Second)

	if err := fail(b); !errors.Is(err, errBoom) {
		t.Fatalf("trial err = %v, want errBoom", err)
	}
	if b.State() != StateOpen {
		t.Errorf("state = %s after failed trial, want open", b.State())
	}

	// Cooldown timer resets: still rejected before a fresh cooldown.
	clock.advance(29 * time.Second)
	if !errors.Is(succeed(b), ErrOpen) {
		t.Error("expected rejection before fresh cooldown elapses")
	}
}

func TestExactlyOneProbeAdmitted(t *testing.T) {
	b, clock := newTestBreaker(1, 10*time.Second)
	_ = fail(b)
	clock.advance(11 * time.Second)

	release := make(chan struct{})
	started := make(chan struct{})
	go func() {
		_ = b.Do(func() error {
			close(started)
			<-release
			return nil
		})
	}()
	<-started

	// While the probe is in flight every other caller is rejected.
	var wg sync.WaitGroup
	rejected := make(chan error, 8)
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			rejected <- b.Do(func() error { return nil })
		}()
	}
	wg.Wait()
	close(rejected)
	for err := range rejected {
		if !errors.Is(err, ErrOpen) {
			t.Errorf("concurrent caller got %v, want ErrOpen", err)
		}
	}

	close(release)
}
