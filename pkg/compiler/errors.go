package compiler

import (
	"fmt"
)

// UnknownNameError is returned when an instruction names nothing the
// compiler knows: no builtin, function or declared variable.
type UnknownNameError struct {
	Name string
}

func (e *UnknownNameError) Error() string {
	return fmt.Sprintf("unknown name %q", e.Name)
}

// ControlFlowError reports an if$ or while$ whose operands cannot be
// compiled to structured control flow.
type ControlFlowError struct {
	Construct string // if$ or while$
	Reason    string // e.g. "if syntax: then", "complex condition"
	Fragment  string // offending block or value in .bst syntax
}

func (e *ControlFlowError) Error() string {
	if e.Fragment == "" {
		return fmt.Sprintf("%s: %s", e.Construct, e.Reason)
	}
	return fmt.Sprintf("%s: %s: %s", e.Construct, e.Reason, e.Fragment)
}

// Control flow error reasons.
const (
	ReasonIfThen           = "if syntax: then"
	ReasonIfElse           = "if syntax: else"
	ReasonWhileCond        = "while syntax: condition"
	ReasonWhileBody        = "while syntax: body"
	ReasonComplexCondition = "complex condition"
	ReasonComplexBody      = "complex body"
)

// TypeShapeError reports an operand of the wrong kind, such as assigning to
// something that is not a variable or adding a string to an int.
type TypeShapeError struct {
	Op   string
	Want string
	Got  string
}

func (e *TypeShapeError) Error() string {
	return fmt.Sprintf("%s: want %s, got %s", e.Op, e.Want, e.Got)
}
