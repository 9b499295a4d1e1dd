// Package graphics implements the mixer's raster graphics overlay
// layer (spec §4.6): a small create/update/show/hide/delete-by-id
// operation set over named overlays (lower-third, ticker, scoreboard,
// timer, clock), each carrying an enter/live/exit animation state and
// a double-buffered surface so a visible graphic's update is atomic —
// a reader never observes a half-written frame.
package graphics

import (
	"sync"
	"time"
)

// AnimationState is one graphic's place in its enter/live/exit cycle.
type AnimationState string

const (
	AnimationNone  AnimationState = "none"
	AnimationEnter AnimationState = "enter"
	AnimationLive  AnimationState = "live"
	AnimationExit  AnimationState = "exit"
)

// Surface is the rendered pixel buffer for one graphic. The renderer
// itself (cairo/skia-equivalent drawing calls) is outside this
// package's concern; Surface is an opaque payload Update replaces
// wholesale.
type Surface []byte

// Graphic is one overlay instance: a named, z-ordered, independently
// toggleable layer.
type Graphic struct {
	ID        string
	Kind      string // lower_third, ticker, scoreboard, timer, clock
	Z         int
	Visible   bool
	Animation AnimationState
	UpdatedAt time.Time
}

type slot struct {
	meta    Graphic
	front   Surface
	back    Surface
	hasBack bool
}

// Renderer owns the set of active overlays for one mixer program
// output. All calls are serialized by an internal mutex; Get returns a
// value copy of a graphic's metadata. The front and back surface
// buffers have no exported accessor.
type Renderer struct {
	mu    sync.Mutex
	slots map[string]*slot

	enterDuration time.Duration
	exitDuration  time.Duration
}

// NewRenderer constructs an empty Renderer. enterDuration/exitDuration
// bound how long a graphic stays in its enter/exit animation state
// before settling into live/none; a zero duration skips the animation
// entirely (immediate show/hide).
func NewRenderer(enterDuration, exitDuration time.Duration) *Renderer {
	return &Renderer{
		slots:         make(map[string]*slot),
		enterDuration: enterDuration,
		exitDuration:  exitDuration,
	}
}

// Create registers a new graphic, hidden by default. Creating an id
// that already exists replaces its metadata but preserves visibility.
func (r *Renderer) Create(id, kind string, z int) {
	r.mu.Lock()
	defer r.mu.Unlock()

	existing, ok := r.slots[id]
	if ok {
		existing.meta.Kind = kind
		existing.meta.Z = z
		return
	}
	r.slots[id] = &slot{meta: Graphic{ID: id, Kind: kind, Z: z, Animation: AnimationNone}}
}

// Update replaces a graphic's rendered content. If the graphic is
// currently visible, the new surface lands in the back buffer and
// Swap must be called to publish it atomically; if not visible, it is
// written directly since no reader can observe a half-drawn surface.
func (r *Renderer) Update(id string, surface Surface) {
	r.mu.Lock()
	defer r.mu.Unlock()

	s, ok := r.slots[id]
	if !ok {
		return
	}
	if s.meta.Visible {
		s.back = surface
		s.hasBack = true
		return
	}
	s.front = surface
	s.meta.UpdatedAt = time.Now()
}

// Swap publishes a pending back-buffer surface for a visible graphic,
// the atomic update the program compositor picks up on its next frame.
func (r *Renderer) Swap(id string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	s, ok := r.slots[id]
	if !ok || !s.hasBack {
		return
	}
	s.front = s.back
	s.back = nil
	s.hasBack = false
	s.meta.UpdatedAt = time.Now()
}

// Show makes a graphic visible, entering its enter animation state if
// an enterDuration is configured.
func (r *Renderer) Show(id string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	s, ok := r.slots[id]
	if !ok {
		return
	}
	s.meta.Visible = true
	if r.enterDuration > 0 {
		s.meta.Animation = AnimationEnter
		go r.settleAfter(id, r.enterDuration, AnimationLive)
	} else {
		s.meta.Animation = AnimationLive
	}
}

// Hide begins a graphic's exit animation, then marks it not visible
// once the exit duration elapses (or immediately if none is
// configured).
func (r *Renderer) Hide(id string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	s, ok := r.slots[id]
	if !ok {
		return
	}
	if r.exitDuration > 0 {
		s.meta.Animation = AnimationExit
		go r.finishHideAfter(id, r.exitDuration)
	} else {
		s.meta.Visible = false
		s.meta.Animation = AnimationNone
	}
}

func (r *Renderer) settleAfter(id string, d time.Duration, next AnimationState) {
	time.Sleep(d)
	r.mu.Lock()
	defer r.mu.Unlock()
	if s, ok := r.slots[id]; ok && s.meta.Animation == AnimationEnter {
		s.meta.Animation = next
	}
}

func (r *Renderer) finishHideAfter(id string, d time.Duration) {
	time.Sleep(d)
	r.mu.Lock()
	defer r.mu.Unlock()
	if s, ok := r.slots[id]; ok && s.meta.Animation == AnimationExit {
		s.meta.Visible = false
		s.meta.Animation = AnimationNone
	}
}

// Delete removes a graphic entirely.
func (r *Renderer) Delete(id string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.slots, id)
}

// Visible returns the ids of every currently visible graphic, used by
// the mixer engine to populate MixerState's graphics_overlay_set.
func (r *Renderer) Visible() []string {
	r.mu.Lock()
	defer r.mu.Unlock()

	var ids []string
	for id, s := range r.slots {
		if s.meta.Visible {
			ids = append(ids, id)
		}
	}
	return ids
}

// Get returns a value copy of one graphic's metadata.
func (r *Renderer) Get(id string) (Graphic, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.slots[id]
	if !ok {
		return Graphic{}, false
	}
	return s.meta, true
}
