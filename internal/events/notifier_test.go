package events

import (
	"bytes"
	"log/slog"
	"strings"
	"testing"
)

func TestEmitReachesTenantListeners(t *testing.T) {
	n := NewNotifier(nil)
	var got []Event
	n.On("acme", SyncCompleted, func(ev Event) { got = append(got, ev) })
	n.On("globex", SyncCompleted, func(ev Event) { t.Error("other tenant should not be called") })

	n.Emit(Event{Name: SyncCompleted, Tenant: "acme", Successful: 2, Failed: 1})

	if len(got) != 1 {
		t.Fatalf("got %d events, want 1", len(got))
	}
	if got[0].Successful != 2 || got[0].Failed != 1 || got[0].Time.IsZero() {
		t.Errorf("unexpected event: %+v", got[0])
	}
}

func TestEmitRecoversPanics(t *testing.T) {
	var buf bytes.Buffer
	n := NewNotifier(slog.New(slog.NewTextHandler(&buf, nil)))

	var calls []string
	n.On("acme", Online, func(Event) { calls = append(calls, "first") })
	n.On("acme", Online, func(Event) { panic("listener bug") })
	n.On("acme", Online, func(Event) { calls = append(calls, "third") })

	n.Emit(Event{Name: Online, Tenant: "acme"})

	if strings.Join(calls, ",") != "first,third" {
		t.Errorf("calls = %v, want first,third", calls)
	}
	if !strings.Contains(buf.String(), "listener bug") {
		t.Errorf("panic not logged: %q", buf.String())
	}
}

func TestUnsubscribe(t *testing.T) {
	n := NewNotifier(nil)
	count := 0
	off := n.On("acme", Offline, func(Event) { count++ })

	n.Emit(Event{Name: Offline, Tenant: "acme"})
	off()
	off()
	n.Emit(Event{Name: Offline, Tenant: "acme"})

	if count != 1 {
		t.Errorf("count = %d, want 1", count)
	}
}

func TestWildcardTenant(t *testing.T) {
	n := NewNotifier(nil)
	var tenants []string
	n.On(AllTenants, SyncFailed, func(ev Event) { tenants = append(tenants, ev.Tenant) })

	n.Emit(Event{Name: SyncFailed, Tenant: "acme"})
	n.Emit(Event{Name: SyncFailed, Tenant: "globex"})
	n.Emit(Event{Name: SyncCompleted, Tenant: "acme"})

	if strings.Join(tenants, ",") != "acme,globex" {
		t.Errorf("tenants = %v", tenants)
	}
}

func TestParseName(t *testing.T) {
	if n, err := ParseName("sync_failed"); err != nil || n != SyncFailed {
		t.Errorf("ParseName(sync_failed) = %q, %v", n, err)
	}
	if _, err := ParseName("synced"); err == nil {
		t.Error("expected error for unknown event")
	}
}
