package broker

import (
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"
)

func collect(t *testing.T, ch <-chan string, want int) []string {
	t.Helper()
	got := make([]string, 0, want)
	deadline := time.After(2 * time.Second)
	for len(got) < want {
		select {
		case m := <-ch:
			got = append(got, m)
		case <-deadline:
			t.Fatalf("timed out, received %d of %d messages", len(got), want)
		}
	}
	return got
}

func TestWorkQueueDeliversEachMessageOnce(t *testing.T) {
	b := New()
	defer b.Stop()

	received := make(chan string, 64)
	handler := func(payload []byte) error {
		received <- string(payload)
		return nil
	}
	b.ConsumeWork("q", handler)
	b.ConsumeWork("q", handler)

	const n = 20
	for i := 0; i < n; i++ {
		if err := b.PublishWork("q", []byte(fmt.Sprintf("m%d", i))); err != nil {
			t.Fatalf("publish: %v", err)
		}
	}

	got := collect(t, received, n)
	seen := make(map[string]int)
	for _, m := range got {
		seen[m]++
	}
	if len(seen) != n {
		t.Fatalf("expected %d distinct messages, got %d", n, len(seen))
	}
	for m, c := range seen {
		if c != 1 {
			t.Fatalf("message %s delivered %d times", m, c)
		}
	}

	select {
	case m := <-received:
		t.Fatalf("unexpected extra delivery: %s", m)
	case <-time.After(50 * time.Millisecond):
	}
}

func TestWorkQueueRedeliversOnHandlerError(t *testing.T) {
	b := New()
	defer b.Stop()

	var mu sync.Mutex
	attempts := 0
	done := make(chan struct{})
	b.ConsumeWork("q", func(payload []byte) error {
		mu.Lock()
		attempts++
		n := attempts
		mu.Unlock()
		if n == 1 {
			return errors.New("transient")
		}
		close(done)
		return nil
	})

	if err := b.PublishWork("q", []byte("once")); err != nil {
		t.Fatalf("publish: %v", err)
	}

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("message was not redelivered")
	}
}

func TestWorkQueueDropsPoisonedMessage(t *testing.T) {
	b := New()
	defer b.Stop()

	calls := make(chan struct{}, 8)
	b.ConsumeWork("q", func(payload []byte) error {
		calls <- struct{}{}
		panic("boom")
	})

	if err := b.PublishWork("q", []byte("bad")); err != nil {
		t.Fatalf("publish: %v", err)
	}

	// One initial delivery plus one retry, then the message is dropped.
	for i := 0; i < maxAttempts; i++ {
		select {
		case <-calls:
		case <-time.After(2 * time.Second):
			t.Fatalf("expected %d attempts, saw %d", maxAttempts, i)
		}
	}
	select {
	case <-calls:
		t.Fatal("poisoned message delivered more than maxAttempts times")
	case <-time.After(100 * time.Millisecond):
	}
}

func TestRequeueOnFullQueueDropsInsteadOfBlocking(t *testing.T) {
	b := New()
	defer b.Stop()

	release := make(chan struct{})
	picked := make(chan struct{}, maxAttempts)
	seen := make(chan struct{}, queueDepth)
	b.ConsumeWork("q", func(payload []byte) error {
		if string(payload) == "poison" {
			picked <- struct{}{}
			<-release
			return errors.New("boom")
		}
		seen <- struct{}{}
		return nil
	})

	if err := b.PublishWork("q", []byte("poison")); err != nil {
		t.Fatalf("publish: %v", err)
	}
	select {
	case <-picked:
	case <-time.After(2 * time.Second):
		t.Fatal("consumer never picked up the first message")
	}

	// The sole consumer is parked in its handler; fill the queue to the
	// brim so the failed message has nowhere to be requeued.
	for i := 0; i < queueDepth; i++ {
		if err := b.PublishWork("q", []byte("ok")); err != nil {
			t.Fatalf("fill publish %d: %v", i, err)
		}
	}
	close(release)

	// The requeue must be dropped, not block the consumer: the backlog
	// still drains.
	for i := 0; i < queueDepth; i++ {
		select {
		case <-seen:
		case <-time.After(2 * time.Second):
			t.Fatalf("consumer stalled after draining %d of %d messages", i, queueDepth)
		}
	}
}

func TestTopicFanOut(t *testing.T) {
	b := New()
	defer b.Stop()

	first := make(chan string, 1)
	second := make(chan string, 1)
	b.SubscribeTopic("t", func(payload []byte) { first <- string(payload) })
	b.SubscribeTopic("t", func(payload []byte) { second <- string(payload) })

	if err := b.PublishTopic("t", []byte("hello")); err != nil {
		t.Fatalf("publish: %v", err)
	}

	for _, ch := range []chan string{first, second} {
		select {
		case m := <-ch:
			if m != "hello" {
				t.Fatalf("got %q", m)
			}
		case <-time.After(2 * time.Second):
			t.Fatal("subscriber missed the message")
		}
	}
}

func TestClaimCompareAndSet(t *testing.T) {
	b := New()
	defer b.Stop()
	claims := b.Claims()

	owner, won := claims.Claim("r1", "w1")
	if !won || owner != "w1" {
		t.Fatalf("first claim: owner=%s won=%v", owner, won)
	}

	owner, won = claims.Claim("r1", "w2")
	if won || owner != "w1" {
		t.Fatalf("second claim should lose to w1: owner=%s won=%v", owner, won)
	}

	// Re-claiming your own room still counts as holding it.
	if _, won = claims.Claim("r1", "w1"); !won {
		t.Fatal("owner lost its own claim")
	}

	// Release by non-owner is a no-op.
	claims.Release("r1", "w2")
	if owner, _ = claims.Claim("r1", "w2"); owner != "w1" {
		t.Fatal("non-owner release dropped the claim")
	}

	claims.Release("r1", "w1")
	if owner, won = claims.Claim("r1", "w2"); !won || owner != "w2" {
		t.Fatalf("claim after release: owner=%s won=%v", owner, won)
	}
}

func TestStopIsIdempotentAndFailsPublishes(t *testing.T) {
	b := New()
	b.Stop()
	b.Stop()

	if err := b.PublishWork("q", []byte("x")); !errors.Is(err, ErrStopped) {
		t.Fatalf("expected ErrStopped, got %v", err)
	}
	if err := b.PublishTopic("t", []byte("x")); !errors.Is(err, ErrStopped) {
		t.Fatalf("expected ErrStopped, got %v", err)
	}
}
