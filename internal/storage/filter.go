package storage

import (
	"fmt"
	"strings"
	"time"

	"github.com/good-yellow-bee/alertdb/internal/models"
	"github.com/good-yellow-bee/alertdb/internal/query"
)

// AlertFilter defines query parameters for alert retrieval. Zero-valued
// fields are not applied.
type AlertFilter struct {
	IDPrefix    string
	Environment string
	Resource    string
	Event       string
	Service     string
	Group       string
	Origin      string
	Severities  []models.Severity
	Statuses    []models.Status
	Tags        map[string]string

	// Window on last receive time.
	ReceivedAfter  time.Time
	ReceivedBefore time.Time

	// Expr is an optional filter expression, e.g.
	// `severity in ["critical", "major"] and tags.site == "lon"`.
	Expr string
}

// SortField orders a listing by one alert field.
type SortField struct {
	Field string // see sortColumns
	Desc  bool
}

// ListOptions controls List and ListResources.
type ListOptions struct {
	Filter      *AlertFilter
	Sort        []SortField
	Limit       int // 0 means no limit
	WithHistory bool
}

// Counts is the result of AggregateCounts.
type Counts struct {
	Total      int64                     `json:"total"`
	BySeverity map[models.Severity]int64 `json:"severityCounts"`
	ByStatus   map[models.Status]int64   `json:"statusCounts"`
}

func newCounts() *Counts {
	c := &Counts{
		BySeverity: make(map[models.Severity]int64, len(models.AllSeverities)),
		ByStatus:   make(map[models.Status]int64, len(models.AllStatuses)),
	}
	for _, s := range models.AllSeverities {
		c.BySeverity[s] = 0
	}
	for _, s := range models.AllStatuses {
		c.ByStatus[s] = 0
	}
	return c
}

var sortColumns = map[string]string{
	"lastReceiveTime": "last_receive_time",
	"receiveTime":     "receive_time",
	"createTime":      "create_time",
	"expireTime":      "expire_time",
	"environment":     "environment",
	"resource":        "resource",
	"event":           "event",
	"service":         "service",
	"status":          "status",
	"duplicateCount":  "duplicate_count",
	"severity":        severityRankSQL(),
}

// severityRankSQL orders by severity rank rather than by name.
func severityRankSQL() string {
	var sb strings.Builder
	sb.WriteString("CASE severity")
	for _, s := range models.AllSeverities {
		fmt.Fprintf(&sb, " WHEN '%s' THEN %d", s, s.Rank())
	}
	fmt.Fprintf(&sb, " ELSE %d END", models.SeverityUnknown.Rank())
	return sb.String()
}

// whereClause builds the WHERE clause (including the keyword) for filter.
func whereClause(filter *AlertFilter) (string, []any, error) {
	if filter == nil {
		return "", nil, nil
	}

	var conditions []string
	var args []any

	eq := func(col, v string) {
		if v != "" {
			conditions = append(conditions, col+" = ?")
			args = append(args, v)
		}
	}

	if filter.IDPrefix != "" {
		conditions = append(conditions, "(instr(id, ?) = 1 OR instr(last_receive_id, ?) = 1)")
		args = append(args, filter.IDPrefix, filter.IDPrefix)
	}
	eq("environment", filter.Environment)
	eq("resource", filter.Resource)
	eq("event", filter.Event)
	eq("service", filter.Service)
	eq("alert_group", filter.Group)
	eq("origin", filter.Origin)

	if len(filter.Severities) > 0 {
		placeholders := make([]string, len(filter.Severities))
		for i, s := range filter.Severities {
			placeholders[i] = "?"
			args = append(args, string(s))
		}
		conditions = append(conditions, fmt.Sprintf("severity IN (%s)", strings.Join(placeholders, ", ")))
	}
	if len(filter.Statuses) > 0 {
		placeholders := make([]string, len(filter.Statuses))
		for i, s := range filter.Statuses {
			placeholders[i] = "?"
			args = append(args, string(s))
		}
		conditions = append(conditions, fmt.Sprintf("status IN (%s)", strings.Join(placeholders, ", ")))
	}

	for k, v := range filter.Tags {
		conditions = append(conditions, "EXISTS (SELECT 1 FROM json_each(alerts.tags) WHERE key = ? AND value = ?)")
		args = append(args, k, v)
	}

	if !filter.ReceivedAfter.IsZero() {
		conditions = append(conditions, "last_receive_time >= ?")
		args = append(args, filter.ReceivedAfter.UnixNano())
	}
	if !filter.ReceivedBefore.IsZero() {
		conditions = append(conditions, "last_receive_time <= ?")
		args = append(args, filter.ReceivedBefore.UnixNano())
	}

	if filter.Expr != "" {
		pq, err := query.NewLanguage(query.AlertFields).Parse(filter.Expr)
		if err != nil {
			return "", nil, fmt.Errorf("filter expression: %w", err)
		}
		res, err := query.NewSQLBuilder(query.AlertFields).Build(pq)
		if err != nil {
			return "", nil, fmt.Errorf("filter expression: %w", err)
		}
		conditions = append(conditions, res.SQL)
		args = append(args, res.Args...)
	}

	if len(conditions) == 0 {
		return "", nil, nil
	}
	return " WHERE " + strings.Join(conditions, " AND "), args, nil
}

// orderLimitClause builds ORDER BY and LIMIT for a listing. Ties fall back to
// rowid so results are stable.
func orderLimitClause(sorts []SortField, limit int) (string, error) {
	var sb strings.Builder
	if len(sorts) > 0 {
		parts := make([]string, 0, len(sorts))
		for _, s := range sorts {
			col, ok := sortColumns[s.Field]
			if !ok {
				return "", fmt.Errorf("unknown sort field: %s", s.Field)
			}
			dir := "ASC"
			if s.Desc {
				dir = "DESC"
			}
			parts = append(parts, col+" "+dir)
		}
		sb.WriteString(" ORDER BY ")
		sb.WriteString(strings.Join(parts, ", "))
		sb.WriteString(", rowid ASC")
	} else {
		sb.WriteString(" ORDER BY rowid ASC")
	}
	if limit > 0 {
		fmt.Fprintf(&sb, " LIMIT %d", limit)
	}
	return sb.String(), nil
}
