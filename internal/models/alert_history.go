// Package models defines domain models for alertdb.
package models

import "time"

// HistoryKind distinguishes the two kinds of history snapshot.
type HistoryKind string

const (
	HistoryKindEvent  HistoryKind = "event"
	HistoryKindStatus HistoryKind = "status"
)

// HistoryEntry is an immutable snapshot appended to an alert's history.
// Event snapshots carry ID through ReceiveTime; status snapshots carry
// Status, UpdateTime and Text.
type HistoryEntry struct {
	Kind HistoryKind `json:"kind"`

	ID          string    `json:"id,omitempty"`
	Event       string    `json:"event,omitempty"`
	Severity    Severity  `json:"severity,omitempty"`
	Value       string    `json:"value,omitempty"`
	CreateTime  time.Time `json:"createTime,omitempty"`
	ReceiveTime time.Time `json:"receiveTime,omitempty"`

	Status     Status    `json:"status,omitempty"`
	UpdateTime time.Time `json:"updateTime,omitempty"`

	Text string `json:"text"`
}

// StatusSnapshot returns a status-change history entry.
func StatusSnapshot(status Status, text string, at time.Time) HistoryEntry {
	return HistoryEntry{
		Kind:       HistoryKindStatus,
		Status:     status,
		UpdateTime: at,
		Text:       text,
	}
}

// ArchivedHistory is a history entry removed from an alert by retention and
// shipped to the archive.
type ArchivedHistory struct {
	AlertID     string       `json:"alertId"`
	Environment string       `json:"environment"`
	Resource    string       `json:"resource"`
	Entry       HistoryEntry `json:"entry"`
	ArchivedAt  time.Time    `json:"archivedAt"`
}
