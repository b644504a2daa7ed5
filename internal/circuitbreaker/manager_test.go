package circuitbreaker

import (
	"context"
	"testing"
	"time"
)

func TestManager(t *testing.T) {
	manager := NewManager(quietLogger())

	sms := manager.GetOrCreate("sms-gateway", Config{MaxFailures: 1, Timeout: time.Minute})
	if again := manager.GetOrCreate("sms-gateway", Config{MaxFailures: 9}); again != sms {
		t.Error("expected same circuit breaker instance")
	}
	manager.GetOrCreate("document-store", Config{})

	if manager.Get("missing") != nil {
		t.Error("expected nil for unknown breaker")
	}
	if !manager.Healthy() {
		t.Error("expected healthy manager")
	}

	sms.Execute(context.Background(), fail)
	if manager.Healthy() {
		t.Error("an open breaker must make the manager unhealthy")
	}

	snaps := manager.Snapshots()
	if len(snaps) != 2 || snaps[0].Name != "document-store" || snaps[1].State != StateOpen {
		t.Errorf("unexpected snapshots %+v", snaps)
	}

	if !manager.Reset("sms-gateway") || sms.State() != StateClosed {
		t.Error("expected reset to close the breaker")
	}
	if manager.Reset("missing") {
		t.Error("expected reset of unknown breaker to report false")
	}
}
