package db

import (
	"testing"
	"time"

	"github.com/marcus/offsync/internal/models"
)

func historyEntry(id string, outcome models.SyncOutcome, ts time.Time) models.SyncHistoryEntry {
	return models.SyncHistoryEntry{
		MutationID:   id,
		ResourceType: models.ResourceBooking,
		Action:       models.ActionCreate,
		Tenant:       "acme",
		Outcome:      outcome,
		Timestamp:    ts,
	}
}

func TestRecordSyncHistory_EmptyIsNoop(t *testing.T) {
	db := openTestDB(t)
	if err := db.RecordSyncHistory(); err != nil {
		t.Fatalf("RecordSyncHistory with no entries should not error: %v", err)
	}
}

func TestGetSyncHistoryTail_OrderAndLimit(t *testing.T) {
	db := openTestDB(t)
	base := time.Now().Add(-time.Hour)

	var entries []models.SyncHistoryEntry
	for i, id := range []string{"m1", "m2", "m3", "m4"} {
		entries = append(entries, historyEntry(id, models.OutcomeSynced, base.Add(time.Duration(i)*time.Minute)))
	}
	if err := db.RecordSyncHistory(entries...); err != nil {
		t.Fatalf("RecordSyncHistory: %v", err)
	}

	tail, err := db.GetSyncHistoryTail(2)
	if err != nil {
		t.Fatalf("GetSyncHistoryTail: %v", err)
	}
	if len(tail) != 2 {
		t.Fatalf("got %d entries, want 2", len(tail))
	}
	if tail[0].MutationID != "m3" || tail[1].MutationID != "m4" {
		t.Errorf("tail = %s,%s; want m3,m4", tail[0].MutationID, tail[1].MutationID)
	}
}

func TestGetSyncHistory_AfterID(t *testing.T) {
	db := openTestDB(t)
	now := time.Now()
	db.RecordSyncHistory(
		historyEntry("m1", models.OutcomeSynced, now),
		historyEntry("m2", models.OutcomeRetry, now),
		historyEntry("m3", models.OutcomeConflict, now),
	)

	first, err := db.GetSyncHistory(0, 10)
	if err != nil || len(first) != 3 {
		t.Fatalf("GetSyncHistory(0) = %d, %v", len(first), err)
	}
	rest, err := db.GetSyncHistory(first[0].ID, 10)
	if err != nil {
		t.Fatalf("GetSyncHistory: %v", err)
	}
	if len(rest) != 2 || rest[0].Outcome != models.OutcomeRetry {
		t.Errorf("unexpected follow page: %+v", rest)
	}
}

func TestDeleteSyncHistoryBefore(t *testing.T) {
	db := openTestDB(t)
	now := time.Now()
	db.RecordSyncHistory(
		historyEntry("old", models.OutcomeSynced, now.Add(-40*24*time.Hour)),
		historyEntry("new", models.OutcomeSynced, now),
	)

	n, err := db.DeleteSyncHistoryBefore(now.Add(-30 * 24 * time.Hour))
	if err != nil || n != 1 {
		t.Fatalf("DeleteSyncHistoryBefore = %d, %v; want 1", n, err)
	}
	left, _ := db.GetSyncHistoryTail(10)
	if len(left) != 1 || left[0].MutationID != "new" {
		t.Errorf("remaining history = %+v", left)
	}
}
