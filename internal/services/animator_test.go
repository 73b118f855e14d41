package services_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"promo-kiosk-backend/internal/config"
	"promo-kiosk-backend/internal/services"
)

func newAnimator(itemDelay time.Duration) *services.CascadeAnimator {
	return services.NewCascadeAnimator(config.AnimationConfig{
		ItemDelay:       itemDelay,
		ReturnItemDelay: time.Millisecond,
		MaxCascadeItems: 3,
		ClickFeedback:   20 * time.Millisecond,
	})
}

func receive(t *testing.T, ch <-chan int) int {
	t.Helper()
	select {
	case n := <-ch:
		return n
	case <-time.After(2 * time.Second):
		t.Fatal("cascade did not resolve")
		return -1
	}
}

func TestCascadeSizing(t *testing.T) {
	a := newAnimator(time.Millisecond)

	for count := 0; count <= 6; count++ {
		want := min(count, 3) + 1
		assert.Equal(t, want, a.IndividuallyAnimated(count), "count=%d", count)

		n := receive(t, a.StartCascade(count))
		assert.Equal(t, want, n)
		for i := 0; i <= count; i++ {
			assert.True(t, a.AnimateItem(i), "count=%d index=%d", count, i)
		}
		a.Reset()
	}
}

func TestCascadeSnapsItemsBeyondCap(t *testing.T) {
	a := newAnimator(30 * time.Millisecond)
	done := a.StartCascade(6)

	// rows 4..6 are past the cap and shown at once
	for i := 4; i <= 6; i++ {
		assert.True(t, a.AnimateItem(i), "index %d", i)
	}
	assert.False(t, a.AnimateItem(3))

	// lower rows turn on in order and never turn off
	last := -1
	require.Eventually(t, func() bool {
		visible := a.Visible()
		count := 0
		for i := 0; i < 4; i++ {
			if visible[i] {
				count++
			} else {
				break
			}
		}
		for i := count; i < 4; i++ {
			if visible[i] {
				t.Errorf("index %d visible before %d", i, count)
			}
		}
		assert.GreaterOrEqual(t, count, last)
		last = count
		return count == 4
	}, 2*time.Second, 2*time.Millisecond)

	assert.Equal(t, 4, receive(t, done))
}

func TestCascadeReentryResolvesZero(t *testing.T) {
	a := newAnimator(20 * time.Millisecond)

	first := a.StartCascade(3)
	second := a.StartCascade(3)

	assert.Equal(t, 0, receive(t, second))
	assert.True(t, a.Running(), "first cascade keeps running")
	assert.Equal(t, 4, receive(t, first))
	assert.True(t, a.AnimateItem(3))
}

func TestReverseCascadeHidesAndClearsRunning(t *testing.T) {
	a := newAnimator(time.Millisecond)
	receive(t, a.StartCascade(2))
	require.True(t, a.Running())

	n := receive(t, a.StartReverseCascade(2))
	assert.Equal(t, 3, n)
	assert.False(t, a.Running())
	for i := 0; i <= 2; i++ {
		assert.False(t, a.AnimateItem(i))
	}

	assert.Equal(t, 3, receive(t, a.StartCascade(2)), "a new cascade can start")
}

func TestResetIgnoresAbandonedSteps(t *testing.T) {
	a := newAnimator(10 * time.Millisecond)
	done := a.StartCascade(3)
	a.Reset()

	receive(t, done)
	assert.Empty(t, a.Visible())
	assert.False(t, a.AnimateItem(0))
}

func TestApplyClickAnimation(t *testing.T) {
	a := newAnimator(time.Millisecond)
	a.ApplyClickAnimation("promo:7")
	assert.True(t, a.IsClicking("promo:7"))
	assert.False(t, a.IsClicking("promo:8"))

	require.Eventually(t, func() bool { return !a.IsClicking("promo:7") }, time.Second, 5*time.Millisecond)
}
