// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package knowledge

import (
	"errors"
	"fmt"
	"strconv"

	"github.com/expr-lang/expr"
	"github.com/expr-lang/expr/ast"
	"github.com/expr-lang/expr/parser"

	"github.com/AleutianAI/AleutianTwin/services/planner/constraint"
	"github.com/AleutianAI/AleutianTwin/services/planner/model"
)

// ValueIdentifier is the variable that stands for the property value in
// condition expressions.
const ValueIdentifier = "value"

// ErrUnsupportedExpression is returned for expressions outside the
// comparison-and-connective subset.
var ErrUnsupportedExpression = errors.New("unsupported condition expression")

var comparisonOps = map[string]model.ConstraintType{
	"==": model.EqualTo,
	"!=": model.NotEqualTo,
	">":  model.GreaterThan,
	">=": model.GreaterThanOrEqualTo,
	"<":  model.LessThan,
	"<=": model.LessThanOrEqualTo,
}

// mirrored gives the operator to use when the literal is on the left.
var mirrored = map[model.ConstraintType]model.ConstraintType{
	model.EqualTo:              model.EqualTo,
	model.NotEqualTo:           model.NotEqualTo,
	model.GreaterThan:          model.LessThan,
	model.GreaterThanOrEqualTo: model.LessThanOrEqualTo,
	model.LessThan:             model.GreaterThan,
	model.LessThanOrEqualTo:    model.GreaterThanOrEqualTo,
}

// ParseExpression compiles a boolean expression over `value` into a
// constraint tree.
//
// # Description
//
// The accepted subset is comparisons between `value` and a literal, in
// either order, joined by `&&`/`and` and `||`/`or`. Parentheses group as
// usual. The expression is also type-checked by the expr compiler so
// syntax errors are reported with positions.
//
// # Inputs
//
//   - source: e.g. `value > 10.1 && value <= 28.5`.
//
// # Outputs
//
//   - constraint.Expression: Atomic or Nested tree.
//   - error: Parse errors or ErrUnsupportedExpression.
func ParseExpression(source string) (constraint.Expression, error) {
	if _, err := expr.Compile(source, expr.AsBool(), expr.AllowUndefinedVariables()); err != nil {
		return nil, fmt.Errorf("compile %q: %w", source, err)
	}
	tree, err := parser.Parse(source)
	if err != nil {
		return nil, fmt.Errorf("parse %q: %w", source, err)
	}
	e, err := convert(tree.Node)
	if err != nil {
		return nil, fmt.Errorf("%q: %w", source, err)
	}
	return e, nil
}

func convert(node ast.Node) (constraint.Expression, error) {
	bin, ok := node.(*ast.BinaryNode)
	if !ok {
		return nil, fmt.Errorf("%w: expected a comparison, got %T", ErrUnsupportedExpression, node)
	}
	switch bin.Operator {
	case "&&", "and", "||", "or":
		left, err := convert(bin.Left)
		if err != nil {
			return nil, err
		}
		right, err := convert(bin.Right)
		if err != nil {
			return nil, err
		}
		op := model.And
		if bin.Operator == "||" || bin.Operator == "or" {
			op = model.Or
		}
		return constraint.NewNested(op, left, right)
	}

	op, ok := comparisonOps[bin.Operator]
	if !ok {
		return nil, fmt.Errorf("%w: operator %q", ErrUnsupportedExpression, bin.Operator)
	}
	switch {
	case isValue(bin.Left):
		lit, err := literal(bin.Right)
		if err != nil {
			return nil, err
		}
		return constraint.NewAtomic(op, lit)
	case isValue(bin.Right):
		lit, err := literal(bin.Left)
		if err != nil {
			return nil, err
		}
		return constraint.NewAtomic(mirrored[op], lit)
	default:
		return nil, fmt.Errorf("%w: comparison must involve %s", ErrUnsupportedExpression, ValueIdentifier)
	}
}

func isValue(node ast.Node) bool {
	id, ok := node.(*ast.IdentifierNode)
	return ok && id.Value == ValueIdentifier
}

func literal(node ast.Node) (string, error) {
	switch n := node.(type) {
	case *ast.IntegerNode:
		return strconv.Itoa(n.Value), nil
	case *ast.FloatNode:
		return strconv.FormatFloat(n.Value, 'g', -1, 64), nil
	case *ast.BoolNode:
		return strconv.FormatBool(n.Value), nil
	case *ast.StringNode:
		return n.Value, nil
	case *ast.UnaryNode:
		if n.Operator != "-" {
			break
		}
		inner, err := literal(n.Node)
		if err != nil {
			return "", err
		}
		return "-" + inner, nil
	}
	return "", fmt.Errorf("%w: expected a literal, got %T", ErrUnsupportedExpression, node)
}
