package models

import (
	"testing"
	"time"
)

func TestNewAlert(t *testing.T) {
	a := NewAlert("Production", "db01", "disk_full", SeverityMajor)

	if a.ID == "" {
		t.Fatal("NewAlert should assign an id")
	}
	if a.LastReceiveID != a.ID {
		t.Errorf("expected last receive id %s, got %s", a.ID, a.LastReceiveID)
	}
	if a.Status != StatusOpen {
		t.Errorf("expected status open, got %s", a.Status)
	}
	if a.Tags == nil {
		t.Error("Tags map should be initialized")
	}
	if a.ReceiveTime.IsZero() || !a.CreateTime.Equal(a.ReceiveTime) {
		t.Error("timestamps should be initialized together")
	}

	b := NewAlert("Production", "db01", "disk_full", SeverityMajor)
	if a.ID == b.ID {
		t.Error("ids should be unique")
	}
}

func TestAlert_Key(t *testing.T) {
	a := NewAlert("Production", "db01", "disk_full", SeverityMajor)
	key := a.Key()

	want := AlertKey{Environment: "Production", Resource: "db01", Event: "disk_full"}
	if key != want {
		t.Errorf("expected %v, got %v", want, key)
	}
	if key.String() != "Production/db01/disk_full" {
		t.Errorf("unexpected key string %q", key.String())
	}
}

func TestAlert_Validate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(a *Alert)
		wantErr bool
	}{
		{"valid", func(a *Alert) {}, false},
		{"empty status is allowed", func(a *Alert) { a.Status = "" }, false},
		{"missing id", func(a *Alert) { a.ID = "" }, true},
		{"missing environment", func(a *Alert) { a.Environment = "" }, true},
		{"missing resource", func(a *Alert) { a.Resource = "" }, true},
		{"missing event", func(a *Alert) { a.Event = "" }, true},
		{"unknown severity", func(a *Alert) { a.Severity = "fatal" }, true},
		{"unknown status", func(a *Alert) { a.Status = "snoozed" }, true},
		{"negative timeout", func(a *Alert) { a.Timeout = -5 }, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			a := NewAlert("Production", "db01", "disk_full", SeverityMajor)
			tt.mutate(a)
			err := a.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestAlert_EventSnapshot(t *testing.T) {
	a := NewAlert("Production", "db01", "disk_full", SeverityCritical)
	a.Value = "99%"
	a.Text = "disk almost full"

	h := a.EventSnapshot()
	if h.Kind != HistoryKindEvent {
		t.Errorf("expected event snapshot, got %s", h.Kind)
	}
	if h.ID != a.ID || h.Event != a.Event || h.Severity != a.Severity || h.Value != a.Value || h.Text != a.Text {
		t.Errorf("snapshot does not match alert: %+v", h)
	}
	if !h.ReceiveTime.Equal(a.ReceiveTime) {
		t.Error("snapshot should carry receive time")
	}

	s := StatusSnapshot(StatusAck, "on it", time.Now())
	if s.Kind != HistoryKindStatus || s.Status != StatusAck || s.Text != "on it" {
		t.Errorf("unexpected status snapshot: %+v", s)
	}
}
