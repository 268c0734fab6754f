package conflict

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/marcus/offsync/internal/models"
)

type fakeSubmitter struct {
	forceCalls int
	mergeCalls int
	lastMerged json.RawMessage
	forceErr   error
	mergeErr   error
}

func (f *fakeSubmitter) Force(ctx context.Context, rec *models.MutationRecord) error {
	f.forceCalls++
	return f.forceErr
}

func (f *fakeSubmitter) SubmitMerged(ctx context.Context, rec *models.MutationRecord, merged json.RawMessage) error {
	f.mergeCalls++
	f.lastMerged = merged
	return f.mergeErr
}

type fakeRecorder struct {
	conflicts []*models.ConflictRecord
	err       error
}

func (f *fakeRecorder) InsertConflict(c *models.ConflictRecord) error {
	if f.err != nil {
		return f.err
	}
	f.conflicts = append(f.conflicts, c)
	return nil
}

func testRecord() *models.MutationRecord {
	return &models.MutationRecord{
		ID:           "profile_update_1_abcd1234",
		ResourceType: models.ResourceProfile,
		Action:       models.ActionUpdate,
		Payload:      json.RawMessage(`{"name":"client","email":"c@example.com"}`),
		Tenant:       "acme",
	}
}

var serverState = json.RawMessage(`{"name":"server","phone":"555"}`)

func TestParseStrategy(t *testing.T) {
	tests := []struct {
		in   string
		want Strategy
	}{
		{"server_wins", ServerWins},
		{"Server-Wins", ServerWins},
		{"client", ClientWins},
		{"merge", Merge},
		{"MANUAL", Manual},
	}
	for _, tt := range tests {
		got, err := ParseStrategy(tt.in)
		if err != nil || got != tt.want {
			t.Errorf("ParseStrategy(%q) = %q, %v; want %q", tt.in, got, err, tt.want)
		}
	}
	if _, err := ParseStrategy("last_write_wins"); !errors.Is(err, ErrUnknownStrategy) {
		t.Errorf("unknown strategy err = %v", err)
	}
}

func TestSetValidates(t *testing.T) {
	r := NewResolver(&fakeSubmitter{}, &fakeRecorder{}, nil)
	if err := r.Set("invoice", Manual, nil); !errors.Is(err, models.ErrInvalidResourceType) {
		t.Errorf("invalid resource type err = %v", err)
	}
	if err := r.Set(models.ResourceBooking, "yolo", nil); !errors.Is(err, ErrUnknownStrategy) {
		t.Errorf("invalid strategy err = %v", err)
	}
	if got := r.StrategyFor(models.ResourceBooking); got != ServerWins {
		t.Errorf("default strategy = %q, want server_wins", got)
	}
}

func TestResolveServerWins(t *testing.T) {
	sub := &fakeSubmitter{}
	r := NewResolver(sub, &fakeRecorder{}, nil)

	out, err := r.Resolve(context.Background(), testRecord(), serverState)
	if err != nil || !out.Handled || out.Strategy != ServerWins {
		t.Fatalf("Resolve = %+v, %v", out, err)
	}
	if sub.forceCalls+sub.mergeCalls != 0 {
		t.Error("server_wins must not issue further calls")
	}
}

func TestResolveClientWins(t *testing.T) {
	sub := &fakeSubmitter{}
	r := NewResolver(sub, &fakeRecorder{}, nil)
	r.Set(models.ResourceProfile, ClientWins, nil)

	out, _ := r.Resolve(context.Background(), testRecord(), serverState)
	if !out.Handled || sub.forceCalls != 1 {
		t.Fatalf("out=%+v forceCalls=%d", out, sub.forceCalls)
	}

	sub.forceErr = errors.New("503")
	out, _ = r.Resolve(context.Background(), testRecord(), serverState)
	if out.Handled || out.Err == nil {
		t.Errorf("failed force should be unhandled with Err: %+v", out)
	}
}

func TestResolveMerge(t *testing.T) {
	sub := &fakeSubmitter{}
	r := NewResolver(sub, &fakeRecorder{}, nil)
	r.Set(models.ResourceProfile, Merge, ShallowMerge)

	out, err := r.Resolve(context.Background(), testRecord(), serverState)
	if err != nil || !out.Handled || sub.mergeCalls != 1 {
		t.Fatalf("out=%+v err=%v mergeCalls=%d", out, err, sub.mergeCalls)
	}
	var merged map[string]string
	if err := json.Unmarshal(sub.lastMerged, &merged); err != nil {
		t.Fatalf("merged payload: %v", err)
	}
	want := map[string]string{"name": "client", "email": "c@example.com", "phone": "555"}
	for k, v := range want {
		if merged[k] != v {
			t.Errorf("merged[%s] = %q, want %q", k, merged[k], v)
		}
	}
}

func TestResolveMergeWithoutFuncDegrades(t *testing.T) {
	sub := &fakeSubmitter{}
	r := NewResolver(sub, &fakeRecorder{}, nil)
	r.Set(models.ResourceProfile, Merge, nil)

	out, _ := r.Resolve(context.Background(), testRecord(), serverState)
	if !out.Handled || out.Strategy != ServerWins || sub.mergeCalls != 0 {
		t.Errorf("merge without func should behave as server_wins: %+v calls=%d", out, sub.mergeCalls)
	}
}

func TestResolveManual(t *testing.T) {
	rc := &fakeRecorder{}
	now := time.Date(2026, 2, 2, 0, 0, 0, 0, time.UTC)
	r := NewResolver(&fakeSubmitter{}, rc, func() time.Time { return now })
	r.Set(models.ResourceProfile, Manual, nil)

	out, err := r.Resolve(context.Background(), testRecord(), serverState)
	if err != nil || !out.Handled {
		t.Fatalf("Resolve = %+v, %v", out, err)
	}
	if len(rc.conflicts) != 1 {
		t.Fatalf("conflicts recorded = %d, want 1", len(rc.conflicts))
	}
	c := rc.conflicts[0]
	if c.MutationID != testRecord().ID || string(c.ServerData) != string(serverState) || !c.CreatedAt.Equal(now) || c.Resolved {
		t.Errorf("unexpected conflict record: %+v", c)
	}

	rc.err = errors.New("disk full")
	if _, err := r.Resolve(context.Background(), testRecord(), serverState); err == nil {
		t.Error("recorder failure should be returned as a persistence error")
	}
}

func TestShallowMergeNonObjects(t *testing.T) {
	got, err := ShallowMerge(json.RawMessage(`[1,2]`), json.RawMessage(`{"a":1}`))
	if err != nil || string(got) != `{"a":1}` {
		t.Errorf("ShallowMerge = %s, %v", got, err)
	}
}
