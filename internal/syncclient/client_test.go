package syncclient

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/marcus/offsync/internal/models"
)

func testRecord(rt models.ResourceType, action models.Action, payload string) *models.MutationRecord {
	return &models.MutationRecord{
		ID:           "booking_create_1767225600000_deadbeef",
		ResourceType: rt,
		Action:       action,
		Payload:      json.RawMessage(payload),
		Tenant:       "acme",
	}
}

func TestEndpointMapping(t *testing.T) {
	tests := []struct {
		rt         models.ResourceType
		action     models.Action
		v          Variant
		wantMethod string
		wantPath   string
	}{
		{models.ResourceBooking, models.ActionCreate, VariantDefault, "POST", "/bookings"},
		{models.ResourceBooking, models.ActionUpdate, VariantDefault, "PUT", "/bookings/sync"},
		{models.ResourceBooking, models.ActionDelete, VariantDefault, "DELETE", "/bookings/sync"},
		{models.ResourceProfile, models.ActionCreate, VariantDefault, "POST", "/user/profile"},
		{models.ResourceProfile, models.ActionUpdate, VariantForce, "PUT", "/user/profile/sync/force"},
		{models.ResourcePayment, models.ActionUpdate, VariantMerge, "PUT", "/payments/sync/merge"},
		{models.ResourceNotification, models.ActionDelete, VariantDefault, "DELETE", "/notifications/sync"},
		{models.ResourceCustom, models.ActionCreate, VariantDefault, "POST", "/sync/custom"},
		{models.ResourceCustom, models.ActionUpdate, VariantDefault, "PUT", "/sync/custom"},
		{models.ResourceCustom, models.ActionCreate, VariantForce, "POST", "/sync/custom/force"},
	}
	for _, tt := range tests {
		method, path, err := Endpoint(tt.rt, tt.action, tt.v)
		if err != nil {
			t.Errorf("Endpoint(%s,%s): %v", tt.rt, tt.action, err)
			continue
		}
		if method != tt.wantMethod || path != tt.wantPath {
			t.Errorf("Endpoint(%s,%s,%d) = %s %s, want %s %s", tt.rt, tt.action, tt.v, method, path, tt.wantMethod, tt.wantPath)
		}
	}

	if _, _, err := Endpoint("invoice", models.ActionCreate, VariantDefault); !errors.Is(err, models.ErrInvalidResourceType) {
		t.Errorf("unknown type err = %v", err)
	}
}

func TestDeliverSendsHeadersAndBody(t *testing.T) {
	var gotHeaders http.Header
	var gotBody map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotHeaders = r.Header.Clone()
		data, _ := io.ReadAll(r.Body)
		json.Unmarshal(data, &gotBody)
		w.WriteHeader(http.StatusCreated)
	}))
	defer srv.Close()

	c := New(srv.URL+"/", "secret")
	c.Now = func() time.Time { return time.UnixMilli(1767225600123) }

	rec := testRecord(models.ResourceBooking, models.ActionCreate, `{"room":"101"}`)
	if err := c.Deliver(context.Background(), rec); err != nil {
		t.Fatalf("Deliver: %v", err)
	}

	if gotHeaders.Get(HeaderTenant) != "acme" || gotHeaders.Get(HeaderOfflineSync) != "true" {
		t.Errorf("missing sync headers: %v", gotHeaders)
	}
	if gotHeaders.Get(HeaderIdempotency) != rec.ID {
		t.Errorf("Idempotency-Key = %q", gotHeaders.Get(HeaderIdempotency))
	}
	if gotHeaders.Get("Authorization") != "Bearer secret" {
		t.Errorf("Authorization = %q", gotHeaders.Get("Authorization"))
	}
	if gotBody["room"] != "101" || gotBody["_syncId"] != rec.ID {
		t.Errorf("body = %v", gotBody)
	}
	if ts, _ := gotBody["_syncTimestamp"].(float64); int64(ts) != 1767225600123 {
		t.Errorf("_syncTimestamp = %v", gotBody["_syncTimestamp"])
	}
}

func TestDeliverWrapsNonObjectPayload(t *testing.T) {
	var gotBody map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		data, _ := io.ReadAll(r.Body)
		json.Unmarshal(data, &gotBody)
	}))
	defer srv.Close()

	rec := testRecord(models.ResourceCustom, models.ActionCreate, `[1,2,3]`)
	if err := New(srv.URL, "").Deliver(context.Background(), rec); err != nil {
		t.Fatalf("Deliver: %v", err)
	}
	if arr, ok := gotBody["data"].([]any); !ok || len(arr) != 3 {
		t.Errorf("body = %v, want data array", gotBody)
	}
}

func TestDeliverConflict(t *testing.T) {
	tests := []struct {
		name string
		body string
		want string
	}{
		{"wrapped", `{"error":"conflict","serverData":{"v":2}}`, `{"v":2}`},
		{"bare", `{"v":3}`, `{"v":3}`},
		{"empty", ``, `null`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(http.StatusConflict)
				io.WriteString(w, tt.body)
			}))
			defer srv.Close()

			err := New(srv.URL, "").Deliver(context.Background(), testRecord(models.ResourceProfile, models.ActionUpdate, `{}`))
			ce, ok := IsConflict(err)
			if !ok {
				t.Fatalf("err = %v, want ConflictError", err)
			}
			if string(ce.ServerData) != tt.want {
				t.Errorf("ServerData = %s, want %s", ce.ServerData, tt.want)
			}
		})
	}
}

func TestDeliverStatusError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	}))
	defer srv.Close()

	err := New(srv.URL, "").Deliver(context.Background(), testRecord(models.ResourceBooking, models.ActionCreate, `{}`))
	var se *StatusError
	if !errors.As(err, &se) || se.StatusCode != 401 {
		t.Fatalf("err = %v, want StatusError 401", err)
	}
	if !errors.Is(err, ErrUnauthorized) {
		t.Error("401 should unwrap to ErrUnauthorized")
	}
	if _, ok := IsConflict(err); ok {
		t.Error("401 is not a conflict")
	}
}

func TestDeliverTimeout(t *testing.T) {
	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-release:
		case <-r.Context().Done():
		}
	}))
	defer srv.Close()
	defer close(release)

	c := New(srv.URL, "")
	c.Timeout = 50 * time.Millisecond
	err := c.Deliver(context.Background(), testRecord(models.ResourceBooking, models.ActionCreate, `{}`))
	if !errors.Is(err, ErrTimeout) {
		t.Fatalf("err = %v, want ErrTimeout", err)
	}
}

func TestForceAndMergeVariants(t *testing.T) {
	var paths []string
	var mergedBody map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		paths = append(paths, r.Method+" "+r.URL.Path)
		if r.URL.Path == "/user/profile/sync/merge" {
			data, _ := io.ReadAll(r.Body)
			json.Unmarshal(data, &mergedBody)
		}
	}))
	defer srv.Close()

	c := New(srv.URL, "")
	rec := testRecord(models.ResourceProfile, models.ActionUpdate, `{"name":"client"}`)
	if err := c.Force(context.Background(), rec); err != nil {
		t.Fatalf("Force: %v", err)
	}
	if err := c.SubmitMerged(context.Background(), rec, json.RawMessage(`{"name":"merged"}`)); err != nil {
		t.Fatalf("SubmitMerged: %v", err)
	}

	if len(paths) != 2 || paths[0] != "PUT /user/profile/sync/force" || paths[1] != "PUT /user/profile/sync/merge" {
		t.Errorf("paths = %v", paths)
	}
	if mergedBody["name"] != "merged" {
		t.Errorf("merge body = %v", mergedBody)
	}
}

func TestHealthCheck(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		io.WriteString(w, `{"status":"ok"}`)
	}))
	defer srv.Close()

	resp, err := New(srv.URL, "").HealthCheck(context.Background())
	if err != nil || resp.Status != "ok" {
		t.Errorf("HealthCheck = %+v, %v", resp, err)
	}
}
