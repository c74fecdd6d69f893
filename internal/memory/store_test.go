package memory

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"axioma-bot/internal/domain"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

func TestIsDuplicate_WithinTTL(t *testing.T) {
	clock := newFakeClock()
	s := New(WithClock(clock.Now))

	require.False(t, s.IsDuplicate("m1"))
	clock.Advance(4 * time.Minute)
	require.True(t, s.IsDuplicate("m1"))
	require.False(t, s.IsDuplicate("m2"))
}

func TestIsDuplicate_NovelAfterTTL(t *testing.T) {
	clock := newFakeClock()
	s := New(WithClock(clock.Now))

	require.False(t, s.IsDuplicate("m1"))
	clock.Advance(DefaultDedupTTL)
	require.False(t, s.IsDuplicate("m1"))
	clock.Advance(time.Minute)
	require.True(t, s.IsDuplicate("m1"))
}

func TestIsDuplicate_RepeatDoesNotExtendWindow(t *testing.T) {
	clock := newFakeClock()
	s := New(WithClock(clock.Now))

	require.False(t, s.IsDuplicate("m1"))
	clock.Advance(3 * time.Minute)
	require.True(t, s.IsDuplicate("m1"))
	clock.Advance(3 * time.Minute)
	require.False(t, s.IsDuplicate("m1"))
}

func TestIsDuplicate_EmptyIDAlwaysNovel(t *testing.T) {
	s := New()
	require.False(t, s.IsDuplicate(""))
	require.False(t, s.IsDuplicate(""))
	seen, _ := s.Len()
	require.Zero(t, seen)
}

func TestHistory_CapKeepsMostRecentInOrder(t *testing.T) {
	clock := newFakeClock()
	s := New(WithClock(clock.Now))

	for i := 1; i <= 11; i++ {
		s.RecordTurn("c1", domain.RoleUser, fmt.Sprintf("msg-%d", i))
		clock.Advance(time.Second)
	}
	h := s.History("c1")
	require.Len(t, h, DefaultHistoryLimit)
	for i, turn := range h {
		require.Equal(t, fmt.Sprintf("msg-%d", i+4), turn.Text)
	}
	require.True(t, h[0].Timestamp.Before(h[len(h)-1].Timestamp))
}

func TestHistory_ReturnsCopy(t *testing.T) {
	s := New()
	s.RecordTurn("c1", domain.RoleUser, "hola")
	h := s.History("c1")
	h[0].Text = "mutated"
	require.Equal(t, "hola", s.History("c1")[0].Text)
}

func TestHistory_ExpiresAfterInactivity(t *testing.T) {
	clock := newFakeClock()
	s := New(WithClock(clock.Now))

	s.RecordTurn("c1", domain.RoleUser, "hola")
	clock.Advance(10 * time.Minute)
	s.RecordTurn("c1", domain.RoleAssistant, "¡Hola!")
	clock.Advance(10 * time.Minute)
	require.Len(t, s.History("c1"), 2, "ttl is measured from last activity")

	clock.Advance(5 * time.Minute)
	require.Empty(t, s.History("c1"))

	s.RecordTurn("c1", domain.RoleUser, "de nuevo")
	h := s.History("c1")
	require.Len(t, h, 1)
	require.Equal(t, "de nuevo", h[0].Text)
}

func TestRecordTurn_IgnoresEmpty(t *testing.T) {
	s := New()
	s.RecordTurn("", domain.RoleUser, "hola")
	s.RecordTurn("c1", domain.RoleUser, "")
	_, convs := s.Len()
	require.Zero(t, convs)
	require.Nil(t, s.History(""))
}

func TestSweep_EvictsExpiredEntries(t *testing.T) {
	clock := newFakeClock()
	s := New(WithClock(clock.Now))

	s.IsDuplicate("old")
	s.RecordTurn("c-old", domain.RoleUser, "hola")
	clock.Advance(6 * time.Minute)
	s.IsDuplicate("new")
	s.RecordTurn("c-new", domain.RoleUser, "hola")

	seen, convs := s.Sweep()
	require.Equal(t, 1, seen)
	require.Zero(t, convs)

	clock.Advance(10 * time.Minute)
	seen, convs = s.Sweep()
	require.Equal(t, 1, seen)
	require.Equal(t, 1, convs)

	nSeen, nConvs := s.Len()
	require.Zero(t, nSeen)
	require.Equal(t, 1, nConvs)
}

func TestOptions_OverrideDefaults(t *testing.T) {
	clock := newFakeClock()
	s := New(WithClock(clock.Now), WithDedupTTL(time.Second), WithHistoryLimit(2), WithHistoryTTL(time.Minute))

	require.False(t, s.IsDuplicate("m1"))
	clock.Advance(time.Second)
	require.False(t, s.IsDuplicate("m1"))

	s.RecordTurn("c1", domain.RoleUser, "a")
	s.RecordTurn("c1", domain.RoleAssistant, "b")
	s.RecordTurn("c1", domain.RoleUser, "c")
	require.Len(t, s.History("c1"), 2)
	clock.Advance(time.Minute)
	require.Empty(t, s.History("c1"))
}

func TestRun_StopsOnContextCancel(t *testing.T) {
	s := New(WithSweepInterval(time.Millisecond))
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		s.Run(ctx, nil)
		close(done)
	}()
	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Run did not return after cancel")
	}
}

func TestStore_ConcurrentAccess(t *testing.T) {
	s := New()
	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			id := fmt.Sprintf("m%d", i%4)
			s.IsDuplicate(id)
			s.RecordTurn("c1", domain.RoleUser, id)
			_ = s.History("c1")
			s.Sweep()
		}(i)
	}
	wg.Wait()
	require.LessOrEqual(t, len(s.History("c1")), DefaultHistoryLimit)
}
