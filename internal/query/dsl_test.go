package query

import (
	"testing"
)

func TestQueryDSL_Parse(t *testing.T) {
	lang := NewLanguage(AlertFields)

	tests := []struct {
		name    string
		expr    string
		wantErr bool
	}{
		// Valid expressions
		{"simple equality", `severity == "critical"`, false},
		{"in operator", `severity in ["critical", "major"]`, false},
		{"and logic", `environment == "Production" and duplicate_count >= 2`, false},
		{"or logic", `status == "open" or status == "ack"`, false},
		{"not logic", `not (text contains "test")`, false},
		{"contains", `text contains "disk"`, false},
		{"startsWith", `resource startsWith "db"`, false},
		{"endsWith", `origin endsWith ".example.com"`, false},
		{"numeric comparison", `timeout > 3600`, false},
		{"boolean field", `is_repeat`, false},
		{"complex boolean", `severity == "major" and (is_repeat == true or duplicate_count > 1)`, false},
		{"id prefix", `id startsWith "4f3c"`, false},

		// Invalid expressions
		{"empty expression", ``, true},
		{"unknown field", `foo == "bar"`, true},
		{"syntax error", `severity ==`, true},
		{"operator not allowed", `severity contains "crit"`, true},
		{"non-boolean result", `duplicate_count`, true},
		{"disallowed function", `trim(text) == "x"`, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := lang.Parse(tt.expr)
			if (err != nil) != tt.wantErr {
				t.Errorf("Parse() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestQueryDSL_ParseWithTags(t *testing.T) {
	lang := NewLanguage(AlertFields)

	tests := []struct {
		name    string
		expr    string
		wantErr bool
	}{
		{"tag access", `tags.site == "lon"`, false},
		{"tag contains", `tags.owner contains "ops"`, false},
		{"member on plain field", `service.name == "x"`, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := lang.Parse(tt.expr)
			if (err != nil) != tt.wantErr {
				t.Errorf("Parse() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestFieldDef_IsOperatorAllowed(t *testing.T) {
	field := FieldDef{
		Operators: []string{"==", "!=", "in"},
	}

	tests := []struct {
		op   string
		want bool
	}{
		{"==", true},
		{"!=", true},
		{"in", true},
		{">=", false},
		{"contains", false},
	}

	for _, tt := range tests {
		t.Run(tt.op, func(t *testing.T) {
			if got := field.IsOperatorAllowed(tt.op); got != tt.want {
				t.Errorf("IsOperatorAllowed(%q) = %v, want %v", tt.op, got, tt.want)
			}
		})
	}
}
