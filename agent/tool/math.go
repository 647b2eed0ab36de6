package tool

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"regexp"
	"strconv"
	"strings"

	"github.com/Knetic/govaluate"
	"github.com/cloudwego/eino/schema"
	contractx "github.com/tanpawarit/chative-supervisor/agent/contract"
)

const ToolMathEvaluate contractx.ToolID = "math_evaluate"

// Accepts digits, whitespace, decimal points, operators, and parentheses.
var mathExpressionPattern = regexp.MustCompile(`^[\d\s\+\-\*/%\^\(\)\.]+$`)

type mathInput struct {
	Expression string `json:"expression"`
}

func MathEvaluate() Definition {
	return Definition{
		ID:          ToolMathEvaluate,
		Description: "Evaluate an arithmetic expression and return the numeric result.",
		Params: schema.NewParamsOneOfByParams(map[string]*schema.ParameterInfo{
			"expression": {Type: schema.String, Desc: "Expression to evaluate", Required: true},
		}),
		Invoke: evaluateMath,
	}
}

func evaluateMath(_ context.Context, input string) (string, error) {
	var in mathInput
	if err := json.Unmarshal([]byte(input), &in); err != nil {
		// plain text input is accepted as the expression itself
		in.Expression = input
	}

	expression := strings.TrimSpace(in.Expression)
	if expression == "" {
		return "", fmt.Errorf("expression is empty")
	}
	if !mathExpressionPattern.MatchString(expression) {
		return "", fmt.Errorf("expression contains invalid characters")
	}
	// govaluate uses ** for power
	expression = strings.ReplaceAll(expression, "^", "**")

	expr, err := govaluate.NewEvaluableExpression(expression)
	if err != nil {
		return "", fmt.Errorf("parse expression: %w", err)
	}
	value, err := expr.Evaluate(nil)
	if err != nil {
		return "", fmt.Errorf("evaluate expression: %w", err)
	}

	result, ok := value.(float64)
	if !ok {
		return "", fmt.Errorf("expression did not produce a number")
	}
	if math.IsInf(result, 0) || math.IsNaN(result) {
		return "", fmt.Errorf("division by zero")
	}
	return strconv.FormatFloat(result, 'f', -1, 64), nil
}
