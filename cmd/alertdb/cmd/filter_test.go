package cmd

import (
	"reflect"
	"testing"
	"time"

	"github.com/good-yellow-bee/alertdb/internal/models"
	"github.com/good-yellow-bee/alertdb/internal/storage"
)

func TestFilterFlags_Build(t *testing.T) {
	now := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	f := filterFlags{
		environment: "Production",
		severities:  []string{"critical", "major"},
		statuses:    []string{"open"},
		tags:        []string{"site=lon", "urgent"},
		since:       time.Hour,
		expr:        `duplicate_count > 2`,
	}

	filter, err := f.build(now)
	if err != nil {
		t.Fatalf("build() error = %v", err)
	}
	if filter.Environment != "Production" {
		t.Errorf("Environment = %q", filter.Environment)
	}
	if !reflect.DeepEqual(filter.Severities, []models.Severity{models.SeverityCritical, models.SeverityMajor}) {
		t.Errorf("Severities = %v", filter.Severities)
	}
	if !reflect.DeepEqual(filter.Tags, map[string]string{"site": "lon", "urgent": ""}) {
		t.Errorf("Tags = %v", filter.Tags)
	}
	if !filter.ReceivedAfter.Equal(now.Add(-time.Hour)) {
		t.Errorf("ReceivedAfter = %v", filter.ReceivedAfter)
	}
	if filter.Expr != `duplicate_count > 2` {
		t.Errorf("Expr = %q", filter.Expr)
	}
}

func TestFilterFlags_BuildErrors(t *testing.T) {
	tests := []struct {
		name  string
		flags filterFlags
	}{
		{"bad severity", filterFlags{severities: []string{"huge"}}},
		{"bad status", filterFlags{statuses: []string{"sleeping"}}},
		{"bad query", filterFlags{expr: `nope == 1`}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := tt.flags.build(time.Now()); err == nil {
				t.Error("expected error")
			}
		})
	}
}

func TestParseSort(t *testing.T) {
	tests := []struct {
		in   string
		want []storage.SortField
	}{
		{"", nil},
		{"severity", []storage.SortField{{Field: "severity"}}},
		{"severity,-lastReceiveTime", []storage.SortField{
			{Field: "severity"},
			{Field: "lastReceiveTime", Desc: true},
		}},
		{" -duplicateCount , ", []storage.SortField{{Field: "duplicateCount", Desc: true}}},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			if got := parseSort(tt.in); !reflect.DeepEqual(got, tt.want) {
				t.Errorf("parseSort(%q) = %v, want %v", tt.in, got, tt.want)
			}
		})
	}
}
