package graphics

import (
	"testing"
	"time"
)

func TestRenderer_ShowMakesGraphicVisible(t *testing.T) {
	r := NewRenderer(0, 0)
	r.Create("lower_third", "lower_third", 1)
	r.Show("lower_third")

	g, ok := r.Get("lower_third")
	if !ok || !g.Visible {
		t.Fatalf("expected lower_third visible, got %+v ok=%v", g, ok)
	}
	if g.Animation != AnimationLive {
		t.Fatalf("expected immediate live animation with zero durations, got %s", g.Animation)
	}
}

func TestRenderer_ShowWithAnimationSettlesToLive(t *testing.T) {
	r := NewRenderer(10*time.Millisecond, 10*time.Millisecond)
	r.Create("ticker", "ticker", 2)
	r.Show("ticker")

	g, _ := r.Get("ticker")
	if g.Animation != AnimationEnter {
		t.Fatalf("expected enter animation immediately after Show, got %s", g.Animation)
	}

	time.Sleep(30 * time.Millisecond)
	g, _ = r.Get("ticker")
	if g.Animation != AnimationLive {
		t.Fatalf("expected animation to settle to live, got %s", g.Animation)
	}
}

func TestRenderer_HideWithAnimationEventuallyHides(t *testing.T) {
	r := NewRenderer(0, 10*time.Millisecond)
	r.Create("clock", "clock", 0)
	r.Show("clock")
	r.Hide("clock")

	g, _ := r.Get("clock")
	if !g.Visible || g.Animation != AnimationExit {
		t.Fatalf("expected still visible mid-exit, got %+v", g)
	}

	time.Sleep(30 * time.Millisecond)
	g, _ = r.Get("clock")
	if g.Visible {
		t.Fatalf("expected hidden after exit animation settles, got %+v", g)
	}
}

func TestRenderer_UpdateWhileVisibleRequiresSwap(t *testing.T) {
	r := NewRenderer(0, 0)
	r.Create("score", "scoreboard", 3)
	r.Show("score")
	r.Update("score", Surface{1, 2, 3})

	r.mu.Lock()
	s := r.slots["score"]
	hasBack := s.hasBack
	frontLen := len(s.front)
	r.mu.Unlock()

	if !hasBack || frontLen != 0 {
		t.Fatalf("expected update to land in back buffer while visible, hasBack=%v frontLen=%d", hasBack, frontLen)
	}

	r.Swap("score")
	r.mu.Lock()
	frontLen = len(r.slots["score"].front)
	hasBack = r.slots["score"].hasBack
	r.mu.Unlock()
	if frontLen != 3 || hasBack {
		t.Fatalf("expected swap to publish the back buffer, frontLen=%d hasBack=%v", frontLen, hasBack)
	}
}

func TestRenderer_UpdateWhileHiddenWritesDirectly(t *testing.T) {
	r := NewRenderer(0, 0)
	r.Create("timer", "timer", 0)
	r.Update("timer", Surface{9})

	r.mu.Lock()
	frontLen := len(r.slots["timer"].front)
	r.mu.Unlock()
	if frontLen != 1 {
		t.Fatalf("expected direct write to front buffer while hidden, got len %d", frontLen)
	}
}

func TestRenderer_DeleteRemovesGraphic(t *testing.T) {
	r := NewRenderer(0, 0)
	r.Create("g1", "ticker", 0)
	r.Delete("g1")
	if _, ok := r.Get("g1"); ok {
		t.Fatal("expected graphic to be gone after Delete")
	}
}

func TestRenderer_VisibleListsOnlyShownGraphics(t *testing.T) {
	r := NewRenderer(0, 0)
	r.Create("a", "lower_third", 0)
	r.Create("b", "ticker", 1)
	r.Show("a")

	visible := r.Visible()
	if len(visible) != 1 || visible[0] != "a" {
		t.Fatalf("expected only 'a' visible, got %v", visible)
	}
}
