package query

import (
	"fmt"
	"strings"

	"github.com/expr-lang/expr/ast"
)

// SQLBuilder converts parsed expressions to SQLite SQL. String comparisons
// are exact and case-sensitive.
type SQLBuilder struct {
	fields map[string]FieldDef
}

// NewSQLBuilder creates a new SQL builder.
func NewSQLBuilder(fields map[string]FieldDef) *SQLBuilder {
	return &SQLBuilder{fields: fields}
}

// Clause is a WHERE condition with its positional arguments.
type Clause struct {
	SQL  string
	Args []any
}

// Build generates a WHERE clause condition from a parsed query.
func (b *SQLBuilder) Build(c *Compiled) (*Clause, error) {
	w := &whereWriter{
		fields: b.fields,
		args:   make([]any, 0),
	}

	node := c.Node()
	sql, err := w.write(&node)
	if err != nil {
		return nil, err
	}

	return &Clause{
		SQL:  sql,
		Args: w.args,
	}, nil
}

type whereWriter struct {
	fields map[string]FieldDef
	args   []any
}

func (w *whereWriter) write(node *ast.Node) (string, error) {
	switch n := (*node).(type) {
	case *ast.BinaryNode:
		return w.writeBinary(n)
	case *ast.UnaryNode:
		return w.writeUnary(n)
	case *ast.IdentifierNode:
		return w.writeIdentifier(n)
	case *ast.StringNode:
		w.args = append(w.args, n.Value)
		return "?", nil
	case *ast.IntegerNode:
		w.args = append(w.args, n.Value)
		return "?", nil
	case *ast.FloatNode:
		w.args = append(w.args, n.Value)
		return "?", nil
	case *ast.BoolNode:
		return boolSQL(n.Value), nil
	case *ast.ArrayNode:
		return w.writeArray(n)
	case *ast.ConstantNode:
		return w.writeConstant(n)
	case *ast.BuiltinNode:
		return w.writeFunction(n.Name, n.Arguments)
	case *ast.CallNode:
		callee, ok := n.Callee.(*ast.IdentifierNode)
		if !ok {
			return "", fmt.Errorf("unsupported callee type")
		}
		return w.writeFunction(callee.Value, n.Arguments)
	case *ast.MemberNode:
		return w.writeMember(n)
	case *ast.NilNode:
		return "NULL", nil
	default:
		return "", fmt.Errorf("unsupported node type: %T", n)
	}
}

func (w *whereWriter) writeBinary(n *ast.BinaryNode) (string, error) {
	switch n.Operator {
	case "contains", "startsWith", "endsWith":
		return w.writeStringOperator(n)
	case "matches":
		return "", fmt.Errorf("operator %q is not supported", n.Operator)
	}

	left, err := w.write(&n.Left)
	if err != nil {
		return "", err
	}
	right, err := w.write(&n.Right)
	if err != nil {
		return "", err
	}

	if n.Operator == "in" {
		return fmt.Sprintf("%s IN %s", left, right), nil
	}

	op, err := mapOperator(n.Operator)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("(%s %s %s)", left, op, right), nil
}

func (w *whereWriter) writeUnary(n *ast.UnaryNode) (string, error) {
	operand, err := w.write(&n.Node)
	if err != nil {
		return "", err
	}

	switch n.Operator {
	case "not", "!":
		return fmt.Sprintf("NOT (%s)", operand), nil
	case "-":
		return fmt.Sprintf("-%s", operand), nil
	default:
		return "", fmt.Errorf("unsupported unary operator: %s", n.Operator)
	}
}

func (w *whereWriter) writeIdentifier(n *ast.IdentifierNode) (string, error) {
	if field, ok := w.fields[n.Value]; ok {
		return field.Column, nil
	}
	return "", fmt.Errorf("unknown field: %s", n.Value)
}

func (w *whereWriter) writeArray(n *ast.ArrayNode) (string, error) {
	parts := make([]string, len(n.Nodes))
	for i, node := range n.Nodes {
		sql, err := w.write(&node)
		if err != nil {
			return "", err
		}
		parts[i] = sql
	}
	return fmt.Sprintf("(%s)", strings.Join(parts, ", ")), nil
}

func (w *whereWriter) writeConstant(n *ast.ConstantNode) (string, error) {
	// expr folds literal arrays into constants.
	switch val := n.Value.(type) {
	case []any:
		parts := make([]string, len(val))
		for i, item := range val {
			w.args = append(w.args, item)
			parts[i] = "?"
		}
		return fmt.Sprintf("(%s)", strings.Join(parts, ", ")), nil
	case map[string]struct{}:
		// "in" arrays are optimized to sets.
		parts := make([]string, 0, len(val))
		for key := range val {
			w.args = append(w.args, key)
			parts = append(parts, "?")
		}
		return fmt.Sprintf("(%s)", strings.Join(parts, ", ")), nil
	case map[any]struct{}:
		parts := make([]string, 0, len(val))
		for key := range val {
			w.args = append(w.args, key)
			parts = append(parts, "?")
		}
		return fmt.Sprintf("(%s)", strings.Join(parts, ", ")), nil
	case string, int, int64, float64:
		w.args = append(w.args, val)
		return "?", nil
	case bool:
		return boolSQL(val), nil
	default:
		return "", fmt.Errorf("unsupported constant type: %T", val)
	}
}

func (w *whereWriter) writeFunction(name string, args []ast.Node) (string, error) {
	var fn string
	switch name {
	case "lower":
		fn = "lower"
	case "upper":
		fn = "upper"
	case "len":
		fn = "length"
	default:
		return "", fmt.Errorf("unsupported function: %s", name)
	}
	if len(args) != 1 {
		return "", fmt.Errorf("%s() requires exactly 1 argument", name)
	}
	arg, err := w.write(&args[0])
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("%s(%s)", fn, arg), nil
}

func (w *whereWriter) writeMember(n *ast.MemberNode) (string, error) {
	info, err := ResolveField(n, w.fields)
	if err != nil {
		return "", err
	}

	// The key is interpolated into the JSON path, so it must be safe.
	if !isValidJSONPropertyName(info.JSONPath) {
		return "", fmt.Errorf("invalid tag name: %q", info.JSONPath)
	}
	return fmt.Sprintf(`json_extract(%s, '$."%s"')`, info.Column, info.JSONPath), nil
}

// writeStringOperator renders contains, startsWith and endsWith with instr
// and substr, which compare case-sensitively.
func (w *whereWriter) writeStringOperator(n *ast.BinaryNode) (string, error) {
	left, err := w.write(&n.Left)
	if err != nil {
		return "", err
	}
	right, err := w.write(&n.Right)
	if err != nil {
		return "", err
	}

	switch n.Operator {
	case "contains":
		return fmt.Sprintf("(instr(%s, %s) > 0)", left, right), nil
	case "startsWith":
		return fmt.Sprintf("(instr(%s, %s) = 1)", left, right), nil
	default:
		// endsWith uses the operand twice, so its arguments are bound twice.
		again, err := w.write(&n.Right)
		if err != nil {
			return "", err
		}
		return fmt.Sprintf("(substr(%s, -length(%s)) = %s)", left, right, again), nil
	}
}

func boolSQL(b bool) string {
	if b {
		return "1"
	}
	return "0"
}

// mapOperator converts expr operators to SQL operators.
func mapOperator(op string) (string, error) {
	switch op {
	case "==":
		return "=", nil
	case "!=":
		return "!=", nil
	case "and", "&&":
		return "AND", nil
	case "or", "||":
		return "OR", nil
	case ">=", "<=", ">", "<":
		return op, nil
	case "-", "+", "*", "/":
		return op, nil
	default:
		return "", fmt.Errorf("unknown operator: %s", op)
	}
}

// isValidJSONPropertyName checks if a property name is safe for use in SQL.
// Only allows alphanumeric characters, underscores and hyphens.
func isValidJSONPropertyName(name string) bool {
	if name == "" {
		return false
	}
	for _, r := range name {
		if (r < 'a' || r > 'z') && (r < 'A' || r > 'Z') &&
			(r < '0' || r > '9') && r != '_' && r != '-' {
			return false
		}
	}
	return true
}
