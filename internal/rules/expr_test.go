package rules

import (
	"strings"
	"testing"
)

func TestParseAndEval(t *testing.T) {
	inputs := map[string]float64{
		"close":  2510,
		"open":   2490,
		"rsi":    28,
		"sma_50": 2500,
		"volume": 1200000,
	}

	cases := []struct {
		expr string
		want bool
	}{
		{"close > open", true},
		{"close < open", false},
		{"close >= 2510", true},
		{"close <= 2509.99", false},
		{"rsi == 28", true},
		{"rsi != 28", false},
		{"rsi < 30 and close > sma_50", true},
		{"rsi < 30 and close < sma_50", false},
		{"rsi > 70 or close > sma_50", true},
		{"rsi > 70 or close < sma_50", false},
		{"not rsi > 70", true},
		{"not (rsi < 30 and close > sma_50)", false},
		{"(rsi < 30 or rsi > 70) and volume > 1000000", true},
		{"rsi < 30 and close > sma_50 or rsi > 90", true},
	}

	for _, tc := range cases {
		t.Run(tc.expr, func(t *testing.T) {
			expr, err := Parse(tc.expr)
			if err != nil {
				t.Fatalf("Parse(%q) failed: %v", tc.expr, err)
			}
			got, err := expr.Eval(inputs)
			if err != nil {
				t.Fatalf("Eval(%q) failed: %v", tc.expr, err)
			}
			if got != tc.want {
				t.Errorf("Eval(%q) = %v, want %v", tc.expr, got, tc.want)
			}
		})
	}
}

func TestParseErrors(t *testing.T) {
	cases := []string{
		"",
		"close >",
		"> 100",
		"close >> 100",
		"close = 100",
		"close > 100 and",
		"close > 100 or or rsi < 30",
		"(close > 100",
		"close > 100)",
		"close > 100 extra",
		"close # 100",
		"and > or",
	}

	for _, expr := range cases {
		t.Run(expr, func(t *testing.T) {
			if _, err := Parse(expr); err == nil {
				t.Errorf("Parse(%q) should fail", expr)
			}
		})
	}
}

func TestEvalUndefinedInput(t *testing.T) {
	expr, err := Parse("macd > 0")
	if err != nil {
		t.Fatalf("Parse failed: %v", err)
	}

	_, err = expr.Eval(map[string]float64{"close": 100})
	if err == nil {
		t.Fatal("Expected error for undefined input")
	}
	if !strings.Contains(err.Error(), "macd") {
		t.Errorf("Error should name the missing input: %v", err)
	}
}

func TestShortCircuitSkipsMissingInput(t *testing.T) {
	// The right side references an undefined input, but the left side
	// already decides the result.
	andExpr, err := Parse("close > 1000 and macd > 0")
	if err != nil {
		t.Fatalf("Parse failed: %v", err)
	}
	got, err := andExpr.Eval(map[string]float64{"close": 100})
	if err != nil {
		t.Fatalf("Short-circuited and should not evaluate right side: %v", err)
	}
	if got {
		t.Error("Expected false")
	}

	orExpr, err := Parse("close > 10 or macd > 0")
	if err != nil {
		t.Fatalf("Parse failed: %v", err)
	}
	got, err = orExpr.Eval(map[string]float64{"close": 100})
	if err != nil {
		t.Fatalf("Short-circuited or should not evaluate right side: %v", err)
	}
	if !got {
		t.Error("Expected true")
	}
}

func TestNumRenderingStaysParseable(t *testing.T) {
	// Large and small literals must not render in scientific notation,
	// which the lexer would reject.
	cases := []float64{0.05, 30, 1000000, 2500000000, 0.000001}

	for _, v := range cases {
		rendered := Num{Value: v}.String()
		expr, err := Parse("close > " + rendered)
		if err != nil {
			t.Errorf("Rendered literal %q does not reparse: %v", rendered, err)
			continue
		}
		cmp, ok := expr.(Compare)
		if !ok {
			t.Fatalf("Expected Compare, got %T", expr)
		}
		num, ok := cmp.Right.(Num)
		if !ok {
			t.Fatalf("Expected Num operand, got %T", cmp.Right)
		}
		if num.Value != v {
			t.Errorf("Round trip of %v yielded %v", v, num.Value)
		}
	}
}

func TestStringRoundTrip(t *testing.T) {
	original := "rsi < 30 and (close > sma_50 or volume > 1000000)"
	expr, err := Parse(original)
	if err != nil {
		t.Fatalf("Parse failed: %v", err)
	}

	// Reparsing the rendered form must yield an equivalent expression.
	reparsed, err := Parse(expr.String())
	if err != nil {
		t.Fatalf("Parse of %q failed: %v", expr.String(), err)
	}

	inputs := []map[string]float64{
		{"rsi": 25, "close": 2510, "sma_50": 2500, "volume": 500},
		{"rsi": 25, "close": 2490, "sma_50": 2500, "volume": 2000000},
		{"rsi": 45, "close": 2510, "sma_50": 2500, "volume": 2000000},
	}
	for _, in := range inputs {
		a, err := expr.Eval(in)
		if err != nil {
			t.Fatalf("Eval failed: %v", err)
		}
		b, err := reparsed.Eval(in)
		if err != nil {
			t.Fatalf("Eval of reparsed failed: %v", err)
		}
		if a != b {
			t.Errorf("Round-trip changed semantics for %v: %v vs %v", in, a, b)
		}
	}
}
