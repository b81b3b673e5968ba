package cli

import (
	"bytes"
	"strings"
	"testing"

	"boursicotor/internal/models"
)

func newBufferedOutput(color bool) (*Output, *bytes.Buffer) {
	buf := &bytes.Buffer{}
	return &Output{writer: buf, colorEnabled: color}, buf
}

func TestStripANSIRemovesAllColors(t *testing.T) {
	out, _ := newBufferedOutput(true)

	colored := out.ColoredString(ColorGreen, "FILLED") + " " + out.ColoredString(ColorBold, "HEADER")
	if got := stripANSI(colored); got != "FILLED HEADER" {
		t.Errorf("stripANSI = %q", got)
	}
}

func TestStatusStringColors(t *testing.T) {
	out, _ := newBufferedOutput(true)

	cases := []struct {
		status models.OrderStatus
		color  string
	}{
		{models.StatusFilled, ColorGreen},
		{models.StatusPending, ColorYellow},
		{models.StatusSubmitted, ColorYellow},
		{models.StatusPartiallyFilled, ColorYellow},
		{models.StatusRejected, ColorRed},
		{models.StatusError, ColorRed},
		{models.StatusCancelled, ColorDim},
	}
	for _, tc := range cases {
		got := out.StatusString(tc.status)
		if !strings.HasPrefix(got, tc.color) {
			t.Errorf("StatusString(%s) = %q, expected prefix %q", tc.status, got, tc.color)
		}
		if stripANSI(got) != string(tc.status) {
			t.Errorf("StatusString(%s) altered the text: %q", tc.status, got)
		}
	}

	plain, _ := newBufferedOutput(false)
	if got := plain.StatusString(models.StatusFilled); got != "FILLED" {
		t.Errorf("Expected plain text without color, got %q", got)
	}
}

func TestTableAlignsColumns(t *testing.T) {
	out, buf := newBufferedOutput(false)

	table := NewTable(out, "ID", "SYMBOL", "QTY")
	table.AddRow("ORD_1", "RELIANCE", "100")
	table.AddRow("ORD_22", "TCS", "5")
	table.Render()

	lines := strings.Split(strings.TrimRight(buf.String(), "\n"), "\n")
	// Header, separator, two rows.
	if len(lines) != 4 {
		t.Fatalf("Expected 4 lines, got %d: %q", len(lines), lines)
	}

	// Every cell column starts at the same offset in every line.
	symbolCol := strings.Index(lines[0], "SYMBOL")
	if strings.Index(lines[2], "RELIANCE") != symbolCol {
		t.Errorf("Column misaligned:\n%s", buf.String())
	}
	if strings.Index(lines[3], "TCS") != symbolCol {
		t.Errorf("Column misaligned:\n%s", buf.String())
	}
}

func TestJSONOutput(t *testing.T) {
	buf := &bytes.Buffer{}
	out := &Output{writer: buf, jsonMode: true}

	if err := out.JSON(map[string]int{"corrected": 3}); err != nil {
		t.Fatalf("JSON failed: %v", err)
	}
	if !strings.Contains(buf.String(), `"corrected": 3`) {
		t.Errorf("Unexpected JSON output: %s", buf.String())
	}
}
