package models

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Alert is the canonical record for one active problem, keyed by
// (Environment, Resource, Event) and widened by CorrelatedEvents.
type Alert struct {
	ID            string `json:"id"`
	LastReceiveID string `json:"lastReceiveId"`

	Environment      string   `json:"environment"`
	Resource         string   `json:"resource"`
	Event            string   `json:"event"`
	CorrelatedEvents []string `json:"correlatedEvents"`

	Severity         Severity `json:"severity"`
	PreviousSeverity Severity `json:"previousSeverity"`
	TrendIndication  Trend    `json:"trendIndication"`
	Status           Status   `json:"status"`
	Repeat           bool     `json:"repeat"`
	DuplicateCount   int      `json:"duplicateCount"`

	Group         string            `json:"group"`
	Value         string            `json:"value"`
	Service       string            `json:"service"`
	Text          string            `json:"text"`
	Tags          map[string]string `json:"tags"`
	Origin        string            `json:"origin"`
	ThresholdInfo string            `json:"thresholdInfo"`
	Summary       string            `json:"summary"`
	RawData       string            `json:"rawData"`
	MoreInfo      string            `json:"moreInfo"`
	GraphURLs     []string          `json:"graphUrls"`
	EventType     string            `json:"type"`

	CreateTime      time.Time `json:"createTime"`
	ReceiveTime     time.Time `json:"receiveTime"`
	LastReceiveTime time.Time `json:"lastReceiveTime"`
	ExpireTime      time.Time `json:"expireTime,omitempty"`
	Timeout         int       `json:"timeout"` // seconds

	History []HistoryEntry `json:"history,omitempty"`
}

// NewAlert creates an open alert with a fresh id and initialized timestamps.
func NewAlert(environment, resource, event string, severity Severity) *Alert {
	now := time.Now().UTC()
	id := uuid.New().String()
	return &Alert{
		ID:              id,
		LastReceiveID:   id,
		Environment:     environment,
		Resource:        resource,
		Event:           event,
		Severity:        severity,
		Status:          StatusOpen,
		Tags:            map[string]string{},
		CreateTime:      now,
		ReceiveTime:     now,
		LastReceiveTime: now,
	}
}

// Key returns the correlation key of the alert.
func (a *Alert) Key() AlertKey {
	return AlertKey{Environment: a.Environment, Resource: a.Resource, Event: a.Event}
}

// Validate checks the fields every stored alert must carry.
func (a *Alert) Validate() error {
	switch {
	case a.ID == "":
		return fmt.Errorf("id is required")
	case a.Environment == "":
		return fmt.Errorf("environment is required")
	case a.Resource == "":
		return fmt.Errorf("resource is required")
	case a.Event == "":
		return fmt.Errorf("event is required")
	case !a.Severity.Valid():
		return fmt.Errorf("invalid severity %q", a.Severity)
	case a.Status != "" && !a.Status.Valid():
		return fmt.Errorf("invalid status %q", a.Status)
	case a.Timeout < 0:
		return fmt.Errorf("timeout must not be negative")
	}
	return nil
}

// EventSnapshot returns the history entry recorded when this alert creates or
// correlates a record.
func (a *Alert) EventSnapshot() HistoryEntry {
	return HistoryEntry{
		Kind:        HistoryKindEvent,
		ID:          a.ID,
		Event:       a.Event,
		Severity:    a.Severity,
		Value:       a.Value,
		Text:        a.Text,
		CreateTime:  a.CreateTime,
		ReceiveTime: a.ReceiveTime,
	}
}

// AlertKey identifies a logical problem.
type AlertKey struct {
	Environment string `json:"environment"`
	Resource    string `json:"resource"`
	Event       string `json:"event"`
}

// String renders the key as environment/resource/event.
func (k AlertKey) String() string {
	return k.Environment + "/" + k.Resource + "/" + k.Event
}

// Resource is one entry of a distinct-resource listing.
type Resource struct {
	Environment     string    `json:"environment"`
	Resource        string    `json:"resource"`
	Service         string    `json:"service"`
	LastReceiveTime time.Time `json:"lastReceiveTime"`
}
