package services

import (
	"sync"
	"time"

	"promo-kiosk-backend/internal/config"
)

// CascadeAnimator sequences the staggered reveal and hide of list items
// around the PIN screen. Only one reveal runs at a time. Steps are timer
// callbacks tagged with a generation, so callbacks from an abandoned cascade
// no longer touch the visible set.
type CascadeAnimator struct {
	mu         sync.Mutex
	cfg        config.AnimationConfig
	started    bool
	generation uint64
	visible    []bool
	clicking   map[string]*time.Timer
	onChange   func()
}

func NewCascadeAnimator(cfg config.AnimationConfig) *CascadeAnimator {
	return &CascadeAnimator{
		cfg:      cfg,
		clicking: make(map[string]*time.Timer),
	}
}

// OnChange registers a hook called after every visible-state change.
func (a *CascadeAnimator) OnChange(fn func()) {
	a.mu.Lock()
	a.onChange = fn
	a.mu.Unlock()
}

// IndividuallyAnimated is the number of rows revealed one by one: the list
// items up to the cap plus the trailing enter-code control.
func (a *CascadeAnimator) IndividuallyAnimated(itemCount int) int {
	if itemCount < 0 {
		itemCount = 0
	}
	return min(itemCount, a.cfg.MaxCascadeItems) + 1
}

// StartCascade reveals the list. The channel yields the number of
// individually animated rows once the last one is visible, or 0 right away
// when a cascade is already running.
func (a *CascadeAnimator) StartCascade(itemCount int) <-chan int {
	done := make(chan int, 1)

	a.mu.Lock()
	if a.started {
		a.mu.Unlock()
		done <- 0
		return done
	}
	a.started = true
	a.generation++
	gen := a.generation

	if itemCount < 0 {
		itemCount = 0
	}
	total := itemCount + 1
	n := a.IndividuallyAnimated(itemCount)
	a.visible = make([]bool, total)
	for i := n; i < total; i++ {
		a.visible[i] = true
	}
	a.mu.Unlock()
	a.changed()

	for i := 0; i < n; i++ {
		time.AfterFunc(time.Duration(i)*a.cfg.ItemDelay, func() {
			a.mu.Lock()
			current := gen == a.generation
			if current && i < len(a.visible) {
				a.visible[i] = true
			}
			a.mu.Unlock()

			if current {
				a.changed()
			}
			if i == n-1 {
				done <- n
			}
		})
	}
	return done
}

// StartReverseCascade hides every row at once and resolves after the first
// return step, clearing the running flag.
func (a *CascadeAnimator) StartReverseCascade(itemCount int) <-chan int {
	done := make(chan int, 1)

	a.mu.Lock()
	a.generation++
	gen := a.generation
	if itemCount < 0 {
		itemCount = 0
	}
	n := a.IndividuallyAnimated(itemCount)
	a.visible = make([]bool, itemCount+1)
	a.mu.Unlock()
	a.changed()

	time.AfterFunc(0, func() {
		a.mu.Lock()
		if gen == a.generation {
			a.started = false
		}
		a.mu.Unlock()
		done <- n
	})
	return done
}

// AnimateItem reports whether row index is visible.
func (a *CascadeAnimator) AnimateItem(index int) bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return index >= 0 && index < len(a.visible) && a.visible[index]
}

// Visible returns a copy of the visible flags.
func (a *CascadeAnimator) Visible() []bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return append([]bool(nil), a.visible...)
}

func (a *CascadeAnimator) Running() bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.started
}

// Reset drops all cascade state.
func (a *CascadeAnimator) Reset() {
	a.mu.Lock()
	a.started = false
	a.generation++
	a.visible = nil
	a.mu.Unlock()
	a.changed()
}

// ApplyClickAnimation flags key as clicked for the click feedback duration.
// A second click restarts the window.
func (a *CascadeAnimator) ApplyClickAnimation(key string) {
	a.mu.Lock()
	if t, ok := a.clicking[key]; ok {
		t.Stop()
	}
	var timer *time.Timer
	timer = time.AfterFunc(a.cfg.ClickFeedback, func() {
		a.mu.Lock()
		if a.clicking[key] == timer {
			delete(a.clicking, key)
		}
		a.mu.Unlock()
		a.changed()
	})
	a.clicking[key] = timer
	a.mu.Unlock()
	a.changed()
}

func (a *CascadeAnimator) IsClicking(key string) bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	_, ok := a.clicking[key]
	return ok
}

// Close stops pending click timers.
func (a *CascadeAnimator) Close() {
	a.mu.Lock()
	defer a.mu.Unlock()
	for key, t := range a.clicking {
		t.Stop()
		delete(a.clicking, key)
	}
	a.generation++
}

func (a *CascadeAnimator) changed() {
	a.mu.Lock()
	fn := a.onChange
	a.mu.Unlock()
	if fn != nil {
		fn()
	}
}
