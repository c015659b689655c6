package tools

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCalculator(t *testing.T) {
	calc := NewCalculatorTool()
	for in, want := range map[string]string{
		`{"op":"add","a":1.5,"b":2}`: `{"result":3.5}`,
		`{"op":"sub","a":5,"b":7}`:   `{"result":-2}`,
		`{"op":"mul","a":17,"b":23}`: `{"result":391}`,
		`{"op":"div","a":1,"b":4}`:   `{"result":0.25}`,
		`{"op":"pow","a":2,"b":10}`:  `{"result":1024}`,
		`{"op":"Sqrt","a":16}`:       `{"result":4}`,
	} {
		got, err := calc.Execute(context.Background(), in)
		require.NoError(t, err, in)
		assert.JSONEq(t, want, got, in)
	}
}

func TestCalculatorRejects(t *testing.T) {
	calc := NewCalculatorTool()
	for _, in := range []string{
		``,
		`[1,2]`,
		`{"op":"div","a":3,"b":0}`,
		`{"op":"sqrt","a":-4}`,
		`{"op":"mod","a":7,"b":2}`,
	} {
		_, err := calc.Execute(context.Background(), in)
		assert.Error(t, err, in)
	}
}

func TestCalculatorSchemaListsOps(t *testing.T) {
	props := NewCalculatorTool().Schema()["properties"].(map[string]interface{})
	op := props["op"].(map[string]interface{})
	assert.ElementsMatch(t, []string{"add", "sub", "mul", "div", "pow", "sqrt"}, op["enum"])
}
