package models

import "time"

// Heartbeat is the liveness record of one reporting origin.
type Heartbeat struct {
	Origin      string    `json:"origin"`
	Version     string    `json:"version"`
	CreateTime  time.Time `json:"createTime"`
	ReceiveTime time.Time `json:"receiveTime"`
	Timeout     int       `json:"timeout"` // seconds
}

// Stale reports whether the origin has not reported within its timeout.
// A zero timeout never goes stale.
func (h *Heartbeat) Stale(now time.Time) bool {
	if h.Timeout <= 0 {
		return false
	}
	return h.ReceiveTime.Add(time.Duration(h.Timeout) * time.Second).Before(now)
}

// MetricType is the kind of an operational metric.
type MetricType string

const (
	MetricTypeGauge MetricType = "gauge"
	MetricTypeTimer MetricType = "timer"
)

// MetricIdentity is the composite key of a metric record.
type MetricIdentity struct {
	Group       string     `json:"group"`
	Name        string     `json:"name"`
	Type        MetricType `json:"type"`
	Title       string     `json:"title"`
	Description string     `json:"description"`
}

// Metric is an operational counter. Gauges carry Value; timers carry
// Count and TotalTime (milliseconds).
type Metric struct {
	MetricIdentity
	Value     int64 `json:"value,omitempty"`
	Count     int64 `json:"count,omitempty"`
	TotalTime int64 `json:"totalTime,omitempty"`
}
