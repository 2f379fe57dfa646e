package transform

import (
	"github.com/pkg/errors"
	"github.com/tliron/commonlog"

	"viper/internal/ir"
	"viper/internal/verify"
)

var log = commonlog.GetLogger("viper.transform")

// PipelineExecutor walks an ordered pass-id list, instantiating each pass via
// the registry, running it, and invalidating analyses from the preservation
// summary it returns. Unknown ids are skipped. The executor is stateless; a
// fresh AnalysisManager is created per run.
type PipelineExecutor struct {
	registry      *PassRegistry
	analyses      *AnalysisRegistry
	verifyBetween bool
}

// NewPipelineExecutor binds an executor to its registries.
func NewPipelineExecutor(registry *PassRegistry, analyses *AnalysisRegistry, verifyBetween bool) *PipelineExecutor {
	return &PipelineExecutor{registry: registry, analyses: analyses, verifyBetween: verifyBetween}
}

// Run executes the pipeline over the module. With verification enabled, the
// run stops at the first pass that leaves the module in an invalid state and
// the error carries the offending pass id.
func (e *PipelineExecutor) Run(m *ir.Module, pipeline []string) error {
	am := NewAnalysisManager(m, e.analyses)

	for _, passID := range pipeline {
		factory := e.registry.Lookup(passID)
		if factory == nil {
			log.Debugf("skipping unknown pass %q", passID)
			continue
		}

		switch factory.kind {
		case modulePassKind:
			pass := factory.makeModule()
			log.Debugf("running module pass %q", pass.ID())
			preserved := pass.Run(m, am)
			am.InvalidateAfterModulePass(preserved)

		case functionPassKind:
			for _, fn := range m.Functions {
				pass := factory.makeFunction()
				preserved := pass.Run(fn, am)
				am.InvalidateAfterFunctionPass(preserved, fn)
			}
			log.Debugf("ran function pass %q over %d functions", passID, len(m.Functions))
		}

		if e.verifyBetween {
			if err := verify.Module(m); err != nil {
				return errors.Wrapf(err, "after pass %q", passID)
			}
		}
	}
	return nil
}
