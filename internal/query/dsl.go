package query

import (
	"fmt"
	"reflect"

	"github.com/expr-lang/expr"
	"github.com/expr-lang/expr/ast"
	"github.com/expr-lang/expr/vm"
)

// AllowedFunctions lists functions allowed in expressions.
var AllowedFunctions = map[string]bool{
	"lower": true,
	"upper": true,
	"len":   true,
}

// Compiled is an expression that passed validation.
type Compiled struct {
	program *vm.Program
	node    ast.Node
	raw     string
}

// Node returns the AST root node.
func (c *Compiled) Node() ast.Node {
	return c.node
}

// Raw returns the original expression string.
func (c *Compiled) Raw() string {
	return c.raw
}

// Language validates alert filter expressions against a field whitelist.
type Language struct {
	fields map[string]FieldDef
}

// NewLanguage returns a Language over fields.
func NewLanguage(fields map[string]FieldDef) *Language {
	return &Language{fields: fields}
}

// Parse compiles and validates an expression string.
func (d *Language) Parse(expression string) (*Compiled, error) {
	if expression == "" {
		return nil, fmt.Errorf("empty expression")
	}

	program, err := expr.Compile(
		expression,
		expr.Env(d.buildEnv()),
		expr.AsBool(),
	)
	if err != nil {
		return nil, fmt.Errorf("parse error: %w", err)
	}

	node := program.Node()
	if err := d.validateAST(&node); err != nil {
		return nil, err
	}

	return &Compiled{
		program: program,
		node:    node,
		raw:     expression,
	}, nil
}

// buildEnv creates typed placeholders so expr can type-check the expression.
func (d *Language) buildEnv() map[string]any {
	env := make(map[string]any, len(d.fields))
	for name, field := range d.fields {
		switch field.Type {
		case FieldTypeString:
			env[name] = ""
		case FieldTypeInt:
			env[name] = 0
		case FieldTypeBool:
			env[name] = false
		case FieldTypeJSON:
			env[name] = map[string]any{}
		}
	}
	return env
}

func (d *Language) validateAST(node *ast.Node) error {
	v := &fieldChecker{fields: d.fields}
	ast.Walk(node, v)
	return v.err
}

// fieldChecker checks fields, operators and functions in the AST.
type fieldChecker struct {
	fields map[string]FieldDef
	err    error
}

func (v *fieldChecker) Visit(node *ast.Node) {
	if v.err != nil {
		return
	}

	switch n := (*node).(type) {
	case *ast.IdentifierNode:
		if _, ok := v.fields[n.Value]; !ok && !AllowedFunctions[n.Value] {
			v.err = fmt.Errorf("unknown field: %s", n.Value)
		}

	case *ast.BinaryNode:
		var field FieldDef
		var ok bool
		switch left := n.Left.(type) {
		case *ast.IdentifierNode:
			field, ok = v.fields[left.Value]
		case *ast.MemberNode:
			if ident, isIdent := left.Node.(*ast.IdentifierNode); isIdent {
				field, ok = v.fields[ident.Value]
			}
		}
		if ok && !isLogical(n.Operator) && !field.IsOperatorAllowed(n.Operator) {
			v.err = fmt.Errorf("operator %q not allowed for field %q", n.Operator, field.Name)
		}

	case *ast.MemberNode:
		if ident, ok := n.Node.(*ast.IdentifierNode); ok {
			if field, ok := v.fields[ident.Value]; ok && field.Type != FieldTypeJSON {
				v.err = fmt.Errorf("field %q does not support member access", ident.Value)
			}
		}

	case *ast.BuiltinNode:
		if !AllowedFunctions[n.Name] {
			v.err = fmt.Errorf("function %q is not allowed", n.Name)
		}

	case *ast.CallNode:
		if ident, ok := n.Callee.(*ast.IdentifierNode); ok && !AllowedFunctions[ident.Value] {
			v.err = fmt.Errorf("function %q is not allowed", ident.Value)
		}
	}
}

func isLogical(op string) bool {
	switch op {
	case "and", "&&", "or", "||":
		return true
	}
	return false
}

// FieldRef extracts field information from an AST node.
type FieldRef struct {
	Name     string
	Column   string
	JSONPath string // For tag access like tags.site
	Type     FieldType
}

// ResolveField gets field information from an identifier or member node.
func ResolveField(node ast.Node, fields map[string]FieldDef) (*FieldRef, error) {
	switch n := node.(type) {
	case *ast.IdentifierNode:
		if field, ok := fields[n.Value]; ok {
			return &FieldRef{
				Name:   n.Value,
				Column: field.Column,
				Type:   field.Type,
			}, nil
		}
		return nil, fmt.Errorf("unknown field: %s", n.Value)

	case *ast.MemberNode:
		if ident, ok := n.Node.(*ast.IdentifierNode); ok {
			if field, ok := fields[ident.Value]; ok {
				if field.Type != FieldTypeJSON {
					return nil, fmt.Errorf("field %q does not support member access", ident.Value)
				}
				propName, err := propertyName(n)
				if err != nil {
					return nil, err
				}
				return &FieldRef{
					Name:     ident.Value + "." + propName,
					Column:   field.Column,
					JSONPath: propName,
					Type:     FieldTypeJSON,
				}, nil
			}
		}
	}

	return nil, fmt.Errorf("cannot extract field info from node type: %s", reflect.TypeOf(node))
}

func propertyName(n *ast.MemberNode) (string, error) {
	switch prop := n.Property.(type) {
	case *ast.StringNode:
		return prop.Value, nil
	case *ast.IdentifierNode:
		return prop.Value, nil
	}
	return "", fmt.Errorf("unsupported property type")
}
