package verify

import (
	"fmt"
	"strings"

	"github.com/fatih/color"
)

// Reporter renders verifier diagnostics for the CLI. Mirrors the caret-style
// presentation used elsewhere in the toolchain.
type Reporter struct {
	errors []*VerifyError
}

// NewReporter creates an empty reporter.
func NewReporter() *Reporter {
	return &Reporter{}
}

// Add records a diagnostic when err is a VerifyError; other errors are
// ignored so callers can pass pipeline errors unconditionally.
func (r *Reporter) Add(err error) {
	if ve, ok := err.(*VerifyError); ok {
		r.errors = append(r.errors, ve)
	}
}

// HasErrors reports whether any diagnostics were recorded.
func (r *Reporter) HasErrors() bool { return len(r.errors) > 0 }

// Report prints all recorded diagnostics, pointing into the IL source text
// when a location is known.
func (r *Reporter) Report(source string) {
	lines := strings.Split(source, "\n")
	for _, e := range r.errors {
		color.Red("❌ %s error in @%s: %s", e.Kind, e.Fn, e.Message)
		if e.Block != "" {
			fmt.Printf("   in block %s", e.Block)
			if e.InstrIndex >= 0 {
				fmt.Printf(", instruction %d", e.InstrIndex)
			}
			fmt.Println()
		}
		if e.Loc.Line > 0 && int(e.Loc.Line) <= len(lines) {
			line := lines[e.Loc.Line-1]
			caret := strings.Repeat(" ", max(int(e.Loc.Col)-1, 0)) + "^"
			fmt.Println(line)
			color.HiRed(caret)
		}
	}
}

func max(a, b int) int {
	if a > b {
		return a
	}
	return b
}
