// Package alerting selects which alerts a notifier receives using expr-lang
// expressions.
package alerting

import (
	"fmt"
	"math"
	"regexp"
	"strconv"
	"strings"

	"github.com/expr-lang/expr"
	"github.com/expr-lang/expr/vm"

	"github.com/good-yellow-bee/climalert/internal/models"
)

// ExprMatcher compiles and evaluates expr-lang expressions against alerts.
type ExprMatcher struct {
	expression string
	program    *vm.Program
}

// NewExprMatcher creates a new ExprMatcher for the given expression.
func NewExprMatcher(expression string) (*ExprMatcher, error) {
	m := &ExprMatcher{expression: strings.TrimSpace(expression)}
	if m.expression == "" {
		return nil, fmt.Errorf("compile expression: empty expression")
	}
	if err := m.compile(); err != nil {
		return nil, err
	}
	return m, nil
}

// compile compiles the expression with the expected environment.
func (m *ExprMatcher) compile() error {
	// Note: expr-lang has built-in operators: contains, startsWith, endsWith
	// Syntax: description contains "chuva"
	program, err := expr.Compile(m.expression,
		expr.Env(buildSampleEnv()),
		expr.AsBool(),
	)
	if err != nil {
		return fmt.Errorf("compile expression: %w", err)
	}

	m.program = program
	return nil
}

// Match evaluates the expression against an alert.
func (m *ExprMatcher) Match(ev models.AlertEvent) (bool, error) {
	result, err := expr.Run(m.program, buildEnvFromAlert(ev))
	if err != nil {
		return false, fmt.Errorf("evaluate expression: %w", err)
	}

	matched, ok := result.(bool)
	if !ok {
		return false, fmt.Errorf("expression did not return bool: got %T", result)
	}

	return matched, nil
}

// Expression returns the original expression string.
func (m *ExprMatcher) Expression() string {
	return m.expression
}

// buildSampleEnv creates a sample environment for expression compilation.
func buildSampleEnv() map[string]any {
	return map[string]any{
		"city":        "",
		"uf":          "",
		"description": "",
		"temperature": "",
		"min_temp":    0.0,
		"max_temp":    0.0,
		"humidity":    0.0,
		"hour":        0,
	}
}

var tempPattern = regexp.MustCompile(`Min: (-?[0-9.]+)°C, Max: (-?[0-9.]+)°C`)

// buildEnvFromAlert creates an evaluation environment from an alert. Text
// fields are lowercased; numeric fields that are not available are NaN so
// any comparison against them is false.
func buildEnvFromAlert(ev models.AlertEvent) map[string]any {
	minTemp, maxTemp := math.NaN(), math.NaN()
	if m := tempPattern.FindStringSubmatch(ev.TemperatureSummary); m != nil {
		minTemp = parseFloat(m[1])
		maxTemp = parseFloat(m[2])
	}

	return map[string]any{
		"city":        strings.ToLower(ev.CityName),
		"uf":          strings.ToUpper(ev.RegionCode),
		"description": strings.ToLower(ev.Description),
		"temperature": ev.TemperatureSummary,
		"min_temp":    minTemp,
		"max_temp":    maxTemp,
		"humidity":    parseFloat(strings.TrimSuffix(strings.TrimSpace(ev.Humidity), "%")),
		"hour":        ev.OccurredAt.Local().Hour(),
	}
}

func parseFloat(s string) float64 {
	f, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
	if err != nil {
		return math.NaN()
	}
	return f
}
