package cmd

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/marcus/offsync/internal/conflict"
	"github.com/marcus/offsync/internal/db"
	"github.com/marcus/offsync/internal/engine"
	"github.com/marcus/offsync/internal/models"
	"github.com/marcus/offsync/internal/output"
	"github.com/marcus/offsync/internal/webhook"
)

// testEnv points config and database at a temp dir and the remote at url.
func testEnv(t *testing.T, url string) string {
	t.Helper()
	dir := t.TempDir()
	t.Setenv("OFFSYNC_HOME", dir)
	t.Setenv("OFFSYNC_URL", url)
	for _, k := range []string{
		"OFFSYNC_API_KEY", "OFFSYNC_TENANT", "OFFSYNC_DB", "OFFSYNC_SYNC_INTERVAL",
		"OFFSYNC_REQUEST_TIMEOUT", "OFFSYNC_PROBE_INTERVAL", "OFFSYNC_PROBE",
		"OFFSYNC_MAX_RETRIES", "OFFSYNC_LOG_FORMAT", "OFFSYNC_WEBHOOK_URL",
		"OFFSYNC_WEBHOOK_SECRET",
	} {
		t.Setenv(k, "")
	}
	t.Setenv("OFFSYNC_LOG_LEVEL", "error")
	return dir
}

// resetFlags restores every flag to its default between runs.
func resetFlags(c *cobra.Command) {
	reset := func(f *pflag.Flag) {
		if f.Changed {
			f.Value.Set(f.DefValue)
			f.Changed = false
		}
	}
	c.Flags().VisitAll(reset)
	c.PersistentFlags().VisitAll(reset)
	for _, sub := range c.Commands() {
		resetFlags(sub)
	}
	addPriority.p = models.PriorityMedium
	resolveKeep.r = ""
	strategySet.s = ""
}

func runCLI(t *testing.T, args ...string) error {
	t.Helper()
	resetFlags(rootCmd)
	rootCmd.SetArgs(args)
	return rootCmd.Execute()
}

func openTestDB(t *testing.T, dir string) *db.DB {
	t.Helper()
	database, err := db.Open(db.DefaultPath(dir))
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	t.Cleanup(func() { database.Close() })
	return database
}

// fakeAPI records requests and answers according to handle.
type fakeAPI struct {
	mu       sync.Mutex
	requests []string
	handle   func(w http.ResponseWriter, r *http.Request)
}

func newFakeAPI(t *testing.T, handle func(w http.ResponseWriter, r *http.Request)) (*fakeAPI, *httptest.Server) {
	api := &fakeAPI{handle: handle}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/healthz" {
			w.Write([]byte(`{"status":"ok"}`))
			return
		}
		api.mu.Lock()
		api.requests = append(api.requests, r.Method+" "+r.URL.Path)
		api.mu.Unlock()
		if api.handle != nil {
			api.handle(w, r)
			return
		}
		w.WriteHeader(http.StatusCreated)
	}))
	t.Cleanup(srv.Close)
	return api, srv
}

func (a *fakeAPI) seen() []string {
	a.mu.Lock()
	defer a.mu.Unlock()
	return append([]string(nil), a.requests...)
}

func TestReadPayload(t *testing.T) {
	file := filepath.Join(t.TempDir(), "p.json")
	if err := os.WriteFile(file, []byte(`{"from":"file"}`), 0644); err != nil {
		t.Fatal(err)
	}

	tests := []struct {
		name    string
		inline  []string
		file    string
		stdin   string
		want    string
		wantErr bool
	}{
		{"none", nil, "", "", "null", false},
		{"inline", []string{`{"a":1}`}, "", "", `{"a":1}`, false},
		{"file", nil, file, "", `{"from":"file"}`, false},
		{"stdin", nil, "-", `[1,2]`, `[1,2]`, false},
		{"invalid", []string{`{nope`}, "", "", "", true},
		{"both", []string{`{}`}, file, "", "", true},
		{"missing file", nil, filepath.Join(t.TempDir(), "gone.json"), "", "", true},
	}
	for _, tt := range tests {
		got, err := readPayload(tt.inline, tt.file, strings.NewReader(tt.stdin))
		if tt.wantErr {
			if err == nil {
				t.Errorf("%s: expected error", tt.name)
			}
			continue
		}
		if err != nil {
			t.Errorf("%s: %v", tt.name, err)
			continue
		}
		if string(got) != tt.want {
			t.Errorf("%s: got %s, want %s", tt.name, got, tt.want)
		}
	}
}

func TestFlagValues(t *testing.T) {
	p := newPriorityValue(models.PriorityMedium)
	if err := p.Set("HIGH"); err != nil || p.p != models.PriorityHigh {
		t.Errorf("priority Set(HIGH) = %v, %q", err, p.p)
	}
	if err := p.Set("urgent"); !errors.Is(err, models.ErrInvalidPriority) {
		t.Errorf("priority Set(urgent) err = %v", err)
	}

	r := &resolutionValue{}
	if err := r.Set("mine"); err != nil || r.r != models.ResolutionClient {
		t.Errorf("resolution Set(mine) = %v, %q", err, r.r)
	}
	if err := r.Set("both"); !errors.Is(err, errResolution) {
		t.Errorf("resolution Set(both) err = %v", err)
	}

	s := &strategyValue{}
	if err := s.Set("client-wins"); err != nil || s.s != conflict.ClientWins {
		t.Errorf("strategy Set(client-wins) = %v, %q", err, s.s)
	}
	if err := s.Set("coin"); !errors.Is(err, conflict.ErrUnknownStrategy) {
		t.Errorf("strategy Set(coin) err = %v", err)
	}
}

func TestErrorCode(t *testing.T) {
	tests := []struct {
		err  error
		want string
	}{
		{fmt.Errorf("x: %w", db.ErrNotFound), output.ErrCodeNotFound},
		{engine.ErrOffline, output.ErrCodeOffline},
		{engine.ErrSyncInProgress, output.ErrCodeSyncBusy},
		{fmt.Errorf("%w: cf-1", engine.ErrConflictResolved), output.ErrCodeAlreadyClosed},
		{models.ErrInvalidAction, output.ErrCodeInvalidInput},
		{errors.New("disk full"), output.ErrCodeDatabaseError},
	}
	for _, tt := range tests {
		if got := errorCode(tt.err); got != tt.want {
			t.Errorf("errorCode(%v) = %s, want %s", tt.err, got, tt.want)
		}
	}
}

func TestAddThenSync(t *testing.T) {
	api, srv := newFakeAPI(t, nil)
	dir := testEnv(t, srv.URL)

	if err := runCLI(t, "add", "booking", "create", `{"room":"A1"}`, "--priority", "low"); err != nil {
		t.Fatalf("add: %v", err)
	}
	if err := runCLI(t, "add", "profile", "update", `{"name":"x"}`, "-p", "high"); err != nil {
		t.Fatalf("add: %v", err)
	}

	database := openTestDB(t, dir)
	recs, err := database.ListMutations()
	if err != nil {
		t.Fatal(err)
	}
	if len(recs) != 2 || recs[0].ResourceType != models.ResourceProfile {
		t.Fatalf("queue = %+v, want profile first", recs)
	}
	if len(api.seen()) != 0 {
		t.Fatalf("add without --sync should not deliver, saw %v", api.seen())
	}

	if err := runCLI(t, "sync"); err != nil {
		t.Fatalf("sync: %v", err)
	}
	want := []string{"PUT /user/profile/sync", "POST /bookings"}
	if got := api.seen(); strings.Join(got, ",") != strings.Join(want, ",") {
		t.Errorf("requests = %v, want %v", got, want)
	}
	if n, _ := database.CountMutations(); n != 0 {
		t.Errorf("pending = %d after sync", n)
	}
	hist, err := database.GetSyncHistoryTail(10)
	if err != nil || len(hist) != 2 || hist[0].Outcome != models.OutcomeSynced {
		t.Errorf("history = %+v, %v", hist, err)
	}
}

func TestAddWithSyncFlag(t *testing.T) {
	api, srv := newFakeAPI(t, nil)
	dir := testEnv(t, srv.URL)

	if err := runCLI(t, "add", "payment", "delete", `{"id":"p1"}`, "--sync"); err != nil {
		t.Fatalf("add --sync: %v", err)
	}
	if got := api.seen(); len(got) != 1 || got[0] != "DELETE /payments/sync" {
		t.Errorf("requests = %v", got)
	}
	if n, _ := openTestDB(t, dir).CountMutations(); n != 0 {
		t.Errorf("pending = %d, want 0", n)
	}
}

func TestSyncOffline(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()
	dir := testEnv(t, url)

	if err := runCLI(t, "add", "custom", "create", `{}`); err != nil {
		t.Fatalf("add: %v", err)
	}
	err := runCLI(t, "sync")
	if !errors.Is(err, engine.ErrOffline) {
		t.Fatalf("sync err = %v, want ErrOffline", err)
	}
	if n, _ := openTestDB(t, dir).CountMutations(); n != 1 {
		t.Errorf("pending = %d, want mutation kept", n)
	}
}

func TestManualConflictResolveKeepClient(t *testing.T) {
	var conflicted bool
	_, srv := newFakeAPI(t, func(w http.ResponseWriter, r *http.Request) {
		if !conflicted && r.URL.Path == "/user/profile/sync" {
			conflicted = true
			w.WriteHeader(http.StatusConflict)
			w.Write([]byte(`{"serverData":{"name":"server"}}`))
			return
		}
		w.WriteHeader(http.StatusOK)
	})
	dir := testEnv(t, srv.URL)

	if err := runCLI(t, "strategy", "profile", "--set", "manual"); err != nil {
		t.Fatalf("strategy --set: %v", err)
	}
	if err := runCLI(t, "add", "profile", "update", `{"name":"client"}`); err != nil {
		t.Fatalf("add: %v", err)
	}
	if err := runCLI(t, "sync"); err != nil {
		t.Fatalf("sync: %v", err)
	}

	database := openTestDB(t, dir)
	open, err := database.ListConflicts(db.ConflictFilter{UnresolvedOnly: true})
	if err != nil || len(open) != 1 {
		t.Fatalf("open conflicts = %d, %v", len(open), err)
	}
	var server map[string]string
	json.Unmarshal(open[0].ServerData, &server)
	if server["name"] != "server" {
		t.Errorf("server data = %s", open[0].ServerData)
	}

	if err := runCLI(t, "conflicts", "resolve", open[0].ID, "--keep", "client"); err != nil {
		t.Fatalf("resolve: %v", err)
	}
	c, err := database.GetConflict(open[0].ID)
	if err != nil || !c.Resolved || c.Resolution != models.ResolutionClient {
		t.Fatalf("conflict after resolve = %+v, %v", c, err)
	}
	recs, _ := database.ListMutations()
	if len(recs) != 1 || recs[0].Priority != models.PriorityHigh || recs[0].Action != models.ActionUpdate {
		t.Fatalf("re-queued = %+v", recs)
	}

	if err := runCLI(t, "conflicts", "resolve", open[0].ID, "--keep", "server"); !errors.Is(err, engine.ErrConflictResolved) {
		t.Errorf("second resolve err = %v, want ErrConflictResolved", err)
	}
}

func TestConfigSetValidates(t *testing.T) {
	testEnv(t, "http://127.0.0.1:1")
	if err := runCLI(t, "config", "set", "sync_interval", "whenever"); err == nil {
		t.Error("invalid duration should fail")
	}
	if err := runCLI(t, "config", "set", "sync_interval", "45s"); err != nil {
		t.Errorf("config set: %v", err)
	}
	if err := runCLI(t, "config", "show"); err != nil {
		t.Errorf("config show: %v", err)
	}
	if settings.SyncInterval.String() != "45s" {
		t.Errorf("SyncInterval = %v, want 45s", settings.SyncInterval)
	}
}

func TestRunForwardsWebhooks(t *testing.T) {
	api, srv := newFakeAPI(t, nil)
	testEnv(t, srv.URL)

	completed := make(chan webhook.Payload, 4)
	var sigMissing bool
	var mu sync.Mutex
	hook := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var p webhook.Payload
		json.NewDecoder(r.Body).Decode(&p)
		mu.Lock()
		if r.Header.Get(webhook.HeaderSignature) == "" {
			sigMissing = true
		}
		mu.Unlock()
		if p.Event == "sync_completed" {
			select {
			case completed <- p:
			default:
			}
		}
	}))
	defer hook.Close()
	t.Setenv("OFFSYNC_WEBHOOK_URL", hook.URL)
	t.Setenv("OFFSYNC_WEBHOOK_SECRET", "k")

	if err := runCLI(t, "add", "notification", "create", `{"msg":"hi"}`); err != nil {
		t.Fatalf("add: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- runEngine(ctx) }()

	select {
	case p := <-completed:
		if p.Successful != 1 || p.Tenant != models.DefaultTenant {
			t.Errorf("sync_completed payload = %+v", p)
		}
	case <-time.After(10 * time.Second):
		t.Fatal("no sync_completed webhook")
	}
	cancel()
	if err := <-done; err != nil {
		t.Fatalf("runEngine: %v", err)
	}

	if got := api.seen(); len(got) != 1 || got[0] != "POST /notifications" {
		t.Errorf("requests = %v", got)
	}
	mu.Lock()
	defer mu.Unlock()
	if sigMissing {
		t.Error("webhook request without signature")
	}
}
