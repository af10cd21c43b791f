// Package query compiles alert filter expressions into SQLite WHERE clauses.
package query

// FieldType represents the data type of a queryable field.
type FieldType int

const (
	FieldTypeString FieldType = iota
	FieldTypeInt
	FieldTypeBool
	FieldTypeJSON
)

// FieldDef defines a queryable field with its allowed operators.
type FieldDef struct {
	Name      string    // expr field name
	Column    string    // SQLite column name
	Type      FieldType // data type
	Operators []string  // allowed operators
}

var (
	keywordOps = []string{"==", "!=", "in"}
	textOps    = []string{"==", "!=", "in", "contains", "startsWith", "endsWith"}
	numberOps  = []string{"==", "!=", ">=", "<=", ">", "<", "in"}
)

// AlertFields contains all queryable alert fields.
var AlertFields = map[string]FieldDef{
	// Identity
	"id":          {Name: "id", Column: "id", Type: FieldTypeString, Operators: []string{"==", "!=", "startsWith"}},
	"environment": {Name: "environment", Column: "environment", Type: FieldTypeString, Operators: keywordOps},
	"resource":    {Name: "resource", Column: "resource", Type: FieldTypeString, Operators: textOps},
	"event":       {Name: "event", Column: "event", Type: FieldTypeString, Operators: textOps},

	// State
	"severity":        {Name: "severity", Column: "severity", Type: FieldTypeString, Operators: keywordOps},
	"status":          {Name: "status", Column: "status", Type: FieldTypeString, Operators: keywordOps},
	"is_repeat":       {Name: "is_repeat", Column: "repeat", Type: FieldTypeBool, Operators: []string{"==", "!="}},
	"duplicate_count": {Name: "duplicate_count", Column: "duplicate_count", Type: FieldTypeInt, Operators: numberOps},
	"timeout":         {Name: "timeout", Column: "timeout", Type: FieldTypeInt, Operators: numberOps},

	// Descriptive
	"service":    {Name: "service", Column: "service", Type: FieldTypeString, Operators: textOps},
	"group":      {Name: "group", Column: "alert_group", Type: FieldTypeString, Operators: keywordOps},
	"origin":     {Name: "origin", Column: "origin", Type: FieldTypeString, Operators: textOps},
	"event_type": {Name: "event_type", Column: "event_type", Type: FieldTypeString, Operators: keywordOps},
	"value":      {Name: "value", Column: "value", Type: FieldTypeString, Operators: textOps},
	"text":       {Name: "text", Column: "text", Type: FieldTypeString, Operators: textOps},

	// tags.<key>
	"tags": {Name: "tags", Column: "tags", Type: FieldTypeJSON, Operators: textOps},
}

// IsOperatorAllowed checks if an operator is valid for a field.
func (f FieldDef) IsOperatorAllowed(op string) bool {
	for _, allowed := range f.Operators {
		if allowed == op {
			return true
		}
	}
	return false
}
