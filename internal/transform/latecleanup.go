package transform

import (
	"viper/internal/ir"
)

// Late cleanup: the final pass of the canonical pipelines. Iterates DCE,
// SimplifyCFG, and constant folding to a fixed point, sweeping up the debris
// the heavier transformations leave behind. Bounded to keep pathological
// inputs from spinning.
func runLateCleanup(fn *ir.Function) bool {
	changed := false
	for round := 0; round < 10; round++ {
		any := false
		any = runDCE(fn) || any
		any = runSimplifyCFG(fn) || any
		any = runConstFold(fn) || any
		if !any {
			break
		}
		changed = true
	}
	return changed
}
