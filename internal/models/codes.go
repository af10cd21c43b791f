package models

// Severity represents alert severity level.
type Severity string

const (
	SeverityCritical      Severity = "critical"
	SeverityMajor         Severity = "major"
	SeverityMinor         Severity = "minor"
	SeverityWarning       Severity = "warning"
	SeverityIndeterminate Severity = "indeterminate"
	SeverityCleared       Severity = "cleared"
	SeverityNormal        Severity = "normal"
	SeverityInformational Severity = "informational"
	SeverityDebug         Severity = "debug"
	SeverityAuth          Severity = "auth"
	SeverityUnknown       Severity = "unknown"
)

// AllSeverities lists every known severity, most severe first.
var AllSeverities = []Severity{
	SeverityCritical, SeverityMajor, SeverityMinor, SeverityWarning,
	SeverityIndeterminate, SeverityCleared, SeverityNormal,
	SeverityInformational, SeverityDebug, SeverityAuth, SeverityUnknown,
}

// lower rank is more severe
var severityRank = map[Severity]int{
	SeverityCritical:      1,
	SeverityMajor:         2,
	SeverityMinor:         3,
	SeverityWarning:       4,
	SeverityIndeterminate: 5,
	SeverityCleared:       5,
	SeverityNormal:        5,
	SeverityInformational: 6,
	SeverityDebug:         7,
	SeverityAuth:          8,
	SeverityUnknown:       9,
}

// Rank returns the numeric rank of the severity; unknown values rank as unknown.
func (s Severity) Rank() int {
	if r, ok := severityRank[s]; ok {
		return r
	}
	return severityRank[SeverityUnknown]
}

// Valid reports whether s is a known severity.
func (s Severity) Valid() bool {
	_, ok := severityRank[s]
	return ok
}

// ParseSeverity converts a string to Severity.
func ParseSeverity(s string) Severity {
	sev := Severity(s)
	if sev.Valid() {
		return sev
	}
	return SeverityUnknown
}

// Status represents the lifecycle state of an alert.
type Status string

const (
	StatusOpen    Status = "open"
	StatusAck     Status = "ack"
	StatusClosed  Status = "closed"
	StatusExpired Status = "expired"
	StatusUnknown Status = "unknown"
)

// AllStatuses lists every known status.
var AllStatuses = []Status{StatusOpen, StatusAck, StatusClosed, StatusExpired, StatusUnknown}

// Valid reports whether s is a known status.
func (s Status) Valid() bool {
	for _, v := range AllStatuses {
		if s == v {
			return true
		}
	}
	return false
}

// ParseStatus converts a string to Status.
func ParseStatus(s string) Status {
	st := Status(s)
	if st.Valid() {
		return st
	}
	return StatusUnknown
}

// Trend is the direction of a severity change.
type Trend string

const (
	TrendMoreSevere Trend = "moreSevere"
	TrendLessSevere Trend = "lessSevere"
	TrendNoChange   Trend = "noChange"
)

// TrendIndication derives the trend from the previous and current severity.
func TrendIndication(previous, current Severity) Trend {
	switch p, c := previous.Rank(), current.Rank(); {
	case c < p:
		return TrendMoreSevere
	case c > p:
		return TrendLessSevere
	default:
		return TrendNoChange
	}
}
