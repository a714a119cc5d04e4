package session

import (
	"testing"
	"time"
)

func TestBackoffDelaysGrow(t *testing.T) {
	p := NewRetryPolicy()

	want := []time.Duration{
		400 * time.Millisecond,
		600 * time.Millisecond,
		900 * time.Millisecond,
	}
	for i, expected := range want {
		delay, retry := p.Next(KindTransientNetwork)
		if !retry {
			t.Fatalf("attempt %d: expected a retry", i+1)
		}
		if delay != expected {
			t.Errorf("attempt %d: expected delay %v, got %v", i+1, expected, delay)
		}
	}
}

func TestBackoffDelayClamped(t *testing.T) {
	p := NewRetryPolicy()
	p.TransientCeiling = 100

	var last time.Duration
	for i := 0; i < 20; i++ {
		delay, retry := p.Next(KindTransientNetwork)
		if !retry {
			t.Fatalf("attempt %d: expected a retry", i+1)
		}
		if delay > p.MaxDelay {
			t.Fatalf("attempt %d: delay %v exceeds cap %v", i+1, delay, p.MaxDelay)
		}
		if delay < last {
			t.Fatalf("attempt %d: delay %v shrank from %v", i+1, delay, last)
		}
		last = delay
	}
	if last != p.MaxDelay {
		t.Errorf("expected delays to saturate at %v, got %v", p.MaxDelay, last)
	}
}

func TestTransientCeiling(t *testing.T) {
	p := NewRetryPolicy()

	for i := 0; i < p.TransientCeiling; i++ {
		if _, retry := p.Next(KindTransientNetwork); !retry {
			t.Fatalf("attempt %d: budget exhausted too early", i+1)
		}
	}
	if _, retry := p.Next(KindTransientNetwork); retry {
		t.Error("retry allowed past the transient ceiling")
	}
}

func TestGenericCeilingIsLower(t *testing.T) {
	p := NewRetryPolicy()

	for i := 0; i < p.GenericCeiling; i++ {
		if _, retry := p.Next(KindUnknown); !retry {
			t.Fatalf("attempt %d: budget exhausted too early", i+1)
		}
	}
	if _, retry := p.Next(KindUnknown); retry {
		t.Error("retry allowed past the generic ceiling")
	}
}

func TestDeviceUnavailableUsesTransientBudget(t *testing.T) {
	p := NewRetryPolicy()

	for i := 0; i < p.TransientCeiling; i++ {
		if _, retry := p.Next(KindDeviceUnavailable); !retry {
			t.Fatalf("attempt %d: device errors should get the transient budget", i+1)
		}
	}
	if _, retry := p.Next(KindDeviceUnavailable); retry {
		t.Error("retry allowed past the transient ceiling")
	}
}

func TestTerminalKindsNeverRetry(t *testing.T) {
	for _, kind := range []Kind{KindPermissionDenied, KindModelUnavailable} {
		p := NewRetryPolicy()
		if _, retry := p.Next(kind); retry {
			t.Errorf("%s: retried on first error", kind)
		}

		// Even with budget to spare mid-stream, terminal stays terminal.
		p = NewRetryPolicy()
		p.Next(KindTransientNetwork)
		if _, retry := p.Next(kind); retry {
			t.Errorf("%s: retried after a prior transient error", kind)
		}
	}
}

func TestCooldownDecaysBudget(t *testing.T) {
	p := NewRetryPolicy()
	current := time.Now()
	p.now = func() time.Time { return current }

	for i := 0; i < p.TransientCeiling; i++ {
		p.Next(KindTransientNetwork)
	}
	if p.Count() != p.TransientCeiling {
		t.Fatalf("expected count %d, got %d", p.TransientCeiling, p.Count())
	}

	// A long healthy stretch forgives old errors.
	current = current.Add(p.Cooldown + time.Second)
	delay, retry := p.Next(KindTransientNetwork)
	if !retry {
		t.Fatal("expected a retry after the cooldown window")
	}
	if p.Count() != 1 {
		t.Errorf("expected count reset to 1, got %d", p.Count())
	}
	if delay != p.BaseDelay {
		t.Errorf("expected base delay %v after reset, got %v", p.BaseDelay, delay)
	}
}

func TestErrorsInsideCooldownAccumulate(t *testing.T) {
	p := NewRetryPolicy()
	current := time.Now()
	p.now = func() time.Time { return current }

	p.Next(KindTransientNetwork)
	current = current.Add(p.Cooldown / 2)
	p.Next(KindTransientNetwork)
	if p.Count() != 2 {
		t.Errorf("errors within the window must accumulate, got count %d", p.Count())
	}
}

func TestReset(t *testing.T) {
	p := NewRetryPolicy()
	p.Next(KindTransientNetwork)
	p.Next(KindTransientNetwork)
	p.Reset()
	if p.Count() != 0 {
		t.Errorf("expected zero count after reset, got %d", p.Count())
	}
	if delay, _ := p.Next(KindTransientNetwork); delay != p.BaseDelay {
		t.Errorf("expected base delay after reset, got %v", delay)
	}
}
