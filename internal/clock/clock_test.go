package clock

import (
	"testing"
	"time"
)

func TestReal_AfterFunc(t *testing.T) {
	done := make(chan struct{})
	Real{}.AfterFunc(time.Millisecond, func() { close(done) })

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("timer did not fire")
	}
}

func TestFake_Advance(t *testing.T) {
	start := time.Date(2024, 1, 15, 10, 30, 0, 0, time.UTC)
	c := NewFake(start)

	t.Run("fires only due timers", func(t *testing.T) {
		var fired []string
		c.AfterFunc(time.Second, func() { fired = append(fired, "1s") })
		c.AfterFunc(3*time.Second, func() { fired = append(fired, "3s") })

		c.Advance(999 * time.Millisecond)
		if len(fired) != 0 {
			t.Fatalf("fired early: %v", fired)
		}

		c.Advance(time.Millisecond)
		if len(fired) != 1 || fired[0] != "1s" {
			t.Fatalf("fired = %v, want [1s]", fired)
		}
		if c.Pending() != 1 {
			t.Errorf("Pending() = %d, want 1", c.Pending())
		}

		c.Advance(5 * time.Second)
		if len(fired) != 2 {
			t.Fatalf("fired = %v, want both", fired)
		}
	})

	t.Run("stopped timers never fire", func(t *testing.T) {
		fired := false
		timer := c.AfterFunc(time.Second, func() { fired = true })
		if !timer.Stop() {
			t.Fatal("Stop() = false on armed timer")
		}
		if timer.Stop() {
			t.Error("second Stop() should report false")
		}
		c.Advance(time.Minute)
		if fired {
			t.Error("stopped timer fired")
		}
	})

	t.Run("now moves forward", func(t *testing.T) {
		before := c.Now()
		c.Advance(time.Hour)
		if got := c.Now().Sub(before); got != time.Hour {
			t.Errorf("advanced by %v, want 1h", got)
		}
	})
}
