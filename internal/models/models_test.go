package models

import (
	"errors"
	"testing"
	"time"
)

func TestPriorityRank(t *testing.T) {
	tests := []struct {
		p    Priority
		want int
	}{
		{PriorityHigh, 3},
		{PriorityMedium, 2},
		{PriorityLow, 1},
		{Priority("bogus"), 2},
	}
	for _, tt := range tests {
		if got := tt.p.Rank(); got != tt.want {
			t.Errorf("%q.Rank() = %d, want %d", tt.p, got, tt.want)
		}
	}
}

func TestParseResourceType(t *testing.T) {
	tests := []struct {
		in      string
		want    ResourceType
		wantErr bool
	}{
		{"booking", ResourceBooking, false},
		{"Bookings", ResourceBooking, false},
		{"user_profile", ResourceProfile, false},
		{" payments ", ResourcePayment, false},
		{"notification", ResourceNotification, false},
		{"custom", ResourceCustom, false},
		{"invoice", "", true},
		{"", "", true},
	}
	for _, tt := range tests {
		got, err := ParseResourceType(tt.in)
		if tt.wantErr {
			if !errors.Is(err, ErrInvalidResourceType) {
				t.Errorf("ParseResourceType(%q) err = %v, want ErrInvalidResourceType", tt.in, err)
			}
			continue
		}
		if err != nil {
			t.Errorf("ParseResourceType(%q) unexpected err: %v", tt.in, err)
			continue
		}
		if got != tt.want {
			t.Errorf("ParseResourceType(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestParseActionAndPriority(t *testing.T) {
	if a, err := ParseAction("UPDATE"); err != nil || a != ActionUpdate {
		t.Errorf("ParseAction(UPDATE) = %q, %v", a, err)
	}
	if _, err := ParseAction("upsert"); !errors.Is(err, ErrInvalidAction) {
		t.Errorf("ParseAction(upsert) err = %v", err)
	}
	if p, err := ParsePriority(""); err != nil || p != PriorityMedium {
		t.Errorf("ParsePriority(\"\") = %q, %v", p, err)
	}
	if _, err := ParsePriority("urgent"); !errors.Is(err, ErrInvalidPriority) {
		t.Errorf("ParsePriority(urgent) err = %v", err)
	}
}

func TestMutationRecordBefore(t *testing.T) {
	base := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	low := &MutationRecord{Priority: PriorityLow, CreatedAt: base, Seq: 1}
	high := &MutationRecord{Priority: PriorityHigh, CreatedAt: base.Add(time.Hour), Seq: 2}
	medOld := &MutationRecord{Priority: PriorityMedium, CreatedAt: base, Seq: 3}
	medNew := &MutationRecord{Priority: PriorityMedium, CreatedAt: base.Add(time.Second), Seq: 4}
	medTie := &MutationRecord{Priority: PriorityMedium, CreatedAt: base, Seq: 5}

	if !high.Before(low) {
		t.Error("high priority should sort before low regardless of age")
	}
	if low.Before(high) {
		t.Error("low should not sort before high")
	}
	if !medOld.Before(medNew) {
		t.Error("older record should sort first within a band")
	}
	if !medOld.Before(medTie) || medTie.Before(medOld) {
		t.Error("equal timestamps should fall back to seq")
	}
}
