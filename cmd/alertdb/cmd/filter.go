package cmd

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/good-yellow-bee/alertdb/internal/models"
	"github.com/good-yellow-bee/alertdb/internal/query"
	"github.com/good-yellow-bee/alertdb/internal/storage"
)

// filterFlags are the alert selection flags shared by list, counts and resources.
type filterFlags struct {
	id          string
	environment string
	resource    string
	event       string
	service     string
	group       string
	origin      string
	severities  []string
	statuses    []string
	tags        []string
	since       time.Duration
	expr        string
}

func (f *filterFlags) register(cmd *cobra.Command) {
	fs := cmd.Flags()
	fs.StringVar(&f.id, "id", "", "alert id prefix")
	fs.StringVarP(&f.environment, "environment", "E", "", "environment")
	fs.StringVarP(&f.resource, "resource", "r", "", "resource")
	fs.StringVar(&f.event, "event", "", "event (also matches correlated events)")
	fs.StringVar(&f.service, "service", "", "service")
	fs.StringVar(&f.group, "group", "", "group")
	fs.StringVar(&f.origin, "origin", "", "origin")
	fs.StringSliceVarP(&f.severities, "severity", "s", nil, "severities (repeatable)")
	fs.StringSliceVar(&f.statuses, "status", nil, "statuses (repeatable)")
	fs.StringArrayVarP(&f.tags, "tag", "t", nil, "tag key=value (repeatable)")
	fs.DurationVar(&f.since, "since", 0, "only alerts received within this duration")
	fs.StringVarP(&f.expr, "query", "q", "", `filter expression, e.g. 'severity in ["critical", "major"]'`)
}

// build turns the flags into a storage filter.
func (f *filterFlags) build(now time.Time) (*storage.AlertFilter, error) {
	filter := &storage.AlertFilter{
		IDPrefix:    f.id,
		Environment: f.environment,
		Resource:    f.resource,
		Event:       f.event,
		Service:     f.service,
		Group:       f.group,
		Origin:      f.origin,
		Expr:        f.expr,
	}

	for _, s := range f.severities {
		sev := models.Severity(s)
		if !sev.Valid() {
			return nil, fmt.Errorf("invalid severity %q", s)
		}
		filter.Severities = append(filter.Severities, sev)
	}
	for _, s := range f.statuses {
		st := models.Status(s)
		if !st.Valid() {
			return nil, fmt.Errorf("invalid status %q", s)
		}
		filter.Statuses = append(filter.Statuses, st)
	}
	if len(f.tags) > 0 {
		filter.Tags = models.ParseTags(f.tags)
	}
	if f.since > 0 {
		filter.ReceivedAfter = now.Add(-f.since)
	}
	if f.expr != "" {
		// Reject bad expressions before touching the database.
		if _, err := query.NewLanguage(query.AlertFields).Parse(f.expr); err != nil {
			return nil, fmt.Errorf("invalid query: %w", err)
		}
	}
	return filter, nil
}

// parseSort parses "field,-field" into sort fields; a leading '-' sorts descending.
func parseSort(s string) []storage.SortField {
	var sorts []storage.SortField
	for _, part := range strings.Split(s, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		desc := strings.HasPrefix(part, "-")
		sorts = append(sorts, storage.SortField{Field: strings.TrimPrefix(part, "-"), Desc: desc})
	}
	return sorts
}
