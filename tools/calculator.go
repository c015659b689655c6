package tools

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strings"
)

// CalculatorRequest is one arithmetic operation. B is ignored by sqrt.
type CalculatorRequest struct {
	Op string  `json:"op" description:"Operation to apply" enum:"add|sub|mul|div|pow|sqrt"`
	A  float64 `json:"a" description:"First operand"`
	B  float64 `json:"b,omitempty" description:"Second operand"`
}

type CalculatorResponse struct {
	Result float64 `json:"result"`
}

var calculatorOps = map[string]func(a, b float64) (float64, error){
	"add": func(a, b float64) (float64, error) { return a + b, nil },
	"sub": func(a, b float64) (float64, error) { return a - b, nil },
	"mul": func(a, b float64) (float64, error) { return a * b, nil },
	"pow": func(a, b float64) (float64, error) { return math.Pow(a, b), nil },
	"div": func(a, b float64) (float64, error) {
		if b == 0 {
			return 0, errors.New("division by zero")
		}
		return a / b, nil
	},
	"sqrt": func(a, _ float64) (float64, error) {
		if a < 0 {
			return 0, errors.New("square root of a negative number")
		}
		return math.Sqrt(a), nil
	},
}

// Calculate applies req.Op, matched case-insensitively, to the operands.
func Calculate(_ context.Context, req CalculatorRequest) (CalculatorResponse, error) {
	op, ok := calculatorOps[strings.ToLower(req.Op)]
	if !ok {
		return CalculatorResponse{}, fmt.Errorf("unknown op %q", req.Op)
	}
	r, err := op(req.A, req.B)
	return CalculatorResponse{Result: r}, err
}

// NewCalculatorTool registers Calculate as "calculator".
func NewCalculatorTool() Tool {
	return NewFunction("calculator", "Perform basic arithmetic: add, sub, mul, div, pow, sqrt", Calculate)
}
