package query

import (
	"reflect"
	"testing"
)

func TestSQLBuilder_Build(t *testing.T) {
	lang := NewLanguage(AlertFields)
	builder := NewSQLBuilder(AlertFields)

	tests := []struct {
		name          string
		expr          string
		wantSQL       string
		wantArgs      []any
		skipArgsCheck bool // For map-based args where order is non-deterministic
	}{
		{
			name:     "simple equality is case-sensitive",
			expr:     `environment == "Production"`,
			wantSQL:  "(environment = ?)",
			wantArgs: []any{"Production"},
		},
		{
			name:          "in operator",
			expr:          `severity in ["critical", "major"]`,
			wantSQL:       "severity IN (?, ?)",
			skipArgsCheck: true, // Map iteration order is non-deterministic
		},
		{
			name:     "numeric comparison",
			expr:     `duplicate_count >= 3`,
			wantSQL:  "(duplicate_count >= ?)",
			wantArgs: []any{3},
		},
		{
			name:     "group maps to its column",
			expr:     `group == "Performance"`,
			wantSQL:  "(alert_group = ?)",
			wantArgs: []any{"Performance"},
		},
		{
			name:     "boolean field",
			expr:     `is_repeat == true`,
			wantSQL:  "(repeat = 1)",
			wantArgs: []any{},
		},
		{
			name:     "contains",
			expr:     `text contains "disk"`,
			wantSQL:  "(instr(text, ?) > 0)",
			wantArgs: []any{"disk"},
		},
		{
			name:     "startsWith",
			expr:     `resource startsWith "db"`,
			wantSQL:  "(instr(resource, ?) = 1)",
			wantArgs: []any{"db"},
		},
		{
			name:     "endsWith",
			expr:     `resource endsWith "01"`,
			wantSQL:  "(substr(resource, -length(?)) = ?)",
			wantArgs: []any{"01", "01"},
		},
		{
			name:     "endsWith function operand",
			expr:     `environment == "Production" and text endsWith lower("FULL")`,
			wantSQL:  "((environment = ?) AND (substr(text, -length(lower(?))) = lower(?)))",
			wantArgs: []any{"Production", "FULL", "FULL"},
		},
		{
			name:     "and logic",
			expr:     `status == "open" and timeout > 0`,
			wantSQL:  "((status = ?) AND (timeout > ?))",
			wantArgs: []any{"open", 0},
		},
		{
			name:     "or logic",
			expr:     `event == "disk_full" or event == "disk_warn"`,
			wantSQL:  "((event = ?) OR (event = ?))",
			wantArgs: []any{"disk_full", "disk_warn"},
		},
		{
			name:     "not operator",
			expr:     `not (status == "closed")`,
			wantSQL:  "NOT ((status = ?))",
			wantArgs: []any{"closed"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			parsed, err := lang.Parse(tt.expr)
			if err != nil {
				t.Fatalf("Parse() error = %v", err)
			}

			result, err := builder.Build(parsed)
			if err != nil {
				t.Fatalf("Build() error = %v", err)
			}

			if result.SQL != tt.wantSQL {
				t.Errorf("SQL = %q, want %q", result.SQL, tt.wantSQL)
			}

			if !tt.skipArgsCheck && !reflect.DeepEqual(result.Args, tt.wantArgs) {
				t.Errorf("Args = %v, want %v", result.Args, tt.wantArgs)
			}
		})
	}
}

func TestSQLBuilder_Tags(t *testing.T) {
	lang := NewLanguage(AlertFields)
	builder := NewSQLBuilder(AlertFields)

	tests := []struct {
		name    string
		expr    string
		wantSQL string
	}{
		{
			name:    "tag equality",
			expr:    `tags.site == "lon"`,
			wantSQL: `(json_extract(tags, '$."site"') = ?)`,
		},
		{
			name:    "hyphenated tag",
			expr:    `tags["rack-id"] == "r12"`,
			wantSQL: `(json_extract(tags, '$."rack-id"') = ?)`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			parsed, err := lang.Parse(tt.expr)
			if err != nil {
				t.Fatalf("Parse() error = %v", err)
			}

			result, err := builder.Build(parsed)
			if err != nil {
				t.Fatalf("Build() error = %v", err)
			}

			if result.SQL != tt.wantSQL {
				t.Errorf("SQL = %q, want %q", result.SQL, tt.wantSQL)
			}
		})
	}
}

func TestSQLBuilder_RejectsUnsafeTagName(t *testing.T) {
	lang := NewLanguage(AlertFields)
	builder := NewSQLBuilder(AlertFields)

	parsed, err := lang.Parse(`tags["x') OR 1=1 --"] == "y"`)
	if err != nil {
		t.Fatalf("Parse() error = %v", err)
	}
	if _, err := builder.Build(parsed); err == nil {
		t.Error("expected error for unsafe tag name")
	}
}

func TestSQLBuilder_Functions(t *testing.T) {
	lang := NewLanguage(AlertFields)
	builder := NewSQLBuilder(AlertFields)

	parsed, err := lang.Parse(`lower(service) == "web"`)
	if err != nil {
		t.Fatalf("Parse() error = %v", err)
	}
	result, err := builder.Build(parsed)
	if err != nil {
		t.Fatalf("Build() error = %v", err)
	}
	if want := "(lower(service) = ?)"; result.SQL != want {
		t.Errorf("SQL = %q, want %q", result.SQL, want)
	}
}
