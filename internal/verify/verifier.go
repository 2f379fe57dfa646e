package verify

import (
	"fmt"

	"viper/internal/analysis"
	"viper/internal/ir"
)

// The verifier checks structural and type invariants of a module between
// passes. It never mutates the IR; the first violated invariant is reported
// as a VerifyError and checking stops.

// ErrorKind classifies a verifier diagnostic.
type ErrorKind uint8

const (
	ErrSSA ErrorKind = iota
	ErrDominance
	ErrTypeMismatch
	ErrMalformedTerminator
	ErrBranchArgs
	ErrStructure
)

func (k ErrorKind) String() string {
	switch k {
	case ErrSSA:
		return "ssa"
	case ErrDominance:
		return "dominance"
	case ErrTypeMismatch:
		return "type"
	case ErrMalformedTerminator:
		return "terminator"
	case ErrBranchArgs:
		return "branch-args"
	case ErrStructure:
		return "structure"
	}
	return "unknown"
}

// VerifyError describes the first violated invariant found in a module.
type VerifyError struct {
	Kind       ErrorKind
	Fn         string
	Block      string
	InstrIndex int
	Loc        ir.SourceLoc
	Message    string
}

func (e *VerifyError) Error() string {
	where := e.Fn
	if e.Block != "" {
		where += "/" + e.Block
	}
	if e.InstrIndex >= 0 {
		where += fmt.Sprintf("#%d", e.InstrIndex)
	}
	if e.Loc.Line > 0 {
		where += fmt.Sprintf(" (line %d:%d)", e.Loc.Line, e.Loc.Col)
	}
	return fmt.Sprintf("verify: %s: %s: %s", e.Kind, where, e.Message)
}

// Module verifies every function in the module.
func Module(m *ir.Module) error {
	for _, fn := range m.Functions {
		if err := Function(m, fn); err != nil {
			return err
		}
	}
	return nil
}

// Function verifies a single function against the invariants of the IL.
func Function(m *ir.Module, fn *ir.Function) error {
	v := &verifier{m: m, fn: fn}
	return v.run()
}

type defSite struct {
	block *ir.BasicBlock // nil for function parameters
	index int            // -1 for block/function parameters
	typ   ir.Type
}

type verifier struct {
	m    *ir.Module
	fn   *ir.Function
	defs map[uint32]defSite
}

func (v *verifier) fail(kind ErrorKind, b *ir.BasicBlock, idx int, loc ir.SourceLoc, format string, args ...interface{}) error {
	label := ""
	if b != nil {
		label = b.Label
	}
	return &VerifyError{Kind: kind, Fn: v.fn.Name, Block: label, InstrIndex: idx, Loc: loc, Message: fmt.Sprintf(format, args...)}
}

func (v *verifier) run() error {
	fn := v.fn
	if len(fn.Blocks) == 0 {
		return v.fail(ErrStructure, nil, -1, ir.SourceLoc{}, "function has no blocks")
	}
	if len(fn.Entry().Params) != 0 {
		return v.fail(ErrStructure, fn.Entry(), -1, ir.SourceLoc{},
			"entry block must not declare parameters; function parameters are referenced directly")
	}

	if err := v.collectDefs(); err != nil {
		return err
	}
	if err := v.checkBlocks(); err != nil {
		return err
	}
	if err := v.checkBranchArgs(); err != nil {
		return err
	}
	return v.checkDominance()
}

// collectDefs builds the temp id -> definition map and enforces single
// definitions.
func (v *verifier) collectDefs() error {
	v.defs = make(map[uint32]defSite)
	record := func(id uint32, site defSite, b *ir.BasicBlock, idx int, loc ir.SourceLoc) error {
		if _, dup := v.defs[id]; dup {
			return v.fail(ErrSSA, b, idx, loc, "temp %%t%d has more than one definition", id)
		}
		v.defs[id] = site
		return nil
	}
	for _, p := range v.fn.Params {
		if err := record(p.ID, defSite{nil, -1, p.Type}, nil, -1, ir.SourceLoc{}); err != nil {
			return err
		}
	}
	seenLabels := make(map[string]bool)
	for _, b := range v.fn.Blocks {
		if seenLabels[b.Label] {
			return v.fail(ErrStructure, b, -1, ir.SourceLoc{}, "duplicate block label %q", b.Label)
		}
		seenLabels[b.Label] = true
		for _, p := range b.Params {
			if err := record(p.ID, defSite{b, -1, p.Type}, b, -1, ir.SourceLoc{}); err != nil {
				return err
			}
		}
		for i := range b.Instrs {
			in := &b.Instrs[i]
			if id, ok := in.ResultID(); ok {
				if err := record(id, defSite{b, i, in.Type}, b, i, in.Loc); err != nil {
					return err
				}
			}
		}
	}
	return nil
}

// checkBlocks enforces terminator placement and per-opcode metadata.
func (v *verifier) checkBlocks() error {
	for _, b := range v.fn.Blocks {
		if len(b.Instrs) == 0 {
			return v.fail(ErrMalformedTerminator, b, -1, ir.SourceLoc{}, "block is empty")
		}
		for i := range b.Instrs {
			in := &b.Instrs[i]
			last := i == len(b.Instrs)-1
			if in.IsTerminator() != last {
				if last {
					return v.fail(ErrMalformedTerminator, b, i, in.Loc, "block does not end with a terminator")
				}
				return v.fail(ErrMalformedTerminator, b, i, in.Loc, "terminator %s in the middle of a block", in.Op)
			}
			if err := v.checkInstr(b, i, in); err != nil {
				return err
			}
		}
	}
	return nil
}

func (v *verifier) checkInstr(b *ir.BasicBlock, idx int, in *ir.Instr) error {
	info := in.Op.Info()

	if _, ok := in.ResultID(); ok && !info.HasResult {
		return v.fail(ErrTypeMismatch, b, idx, in.Loc, "%s cannot produce a result", in.Op)
	}
	if _, ok := in.ResultID(); !ok && info.HasResult && !in.Op.IsCall() {
		return v.fail(ErrTypeMismatch, b, idx, in.Loc, "%s requires a result temp", in.Op)
	}
	if info.FixedResult && in.Type != info.ResultType {
		return v.fail(ErrTypeMismatch, b, idx, in.Loc, "%s must have type %s, found %s", in.Op, info.ResultType, in.Type)
	}

	n := len(in.Operands)
	if n < info.MinOperands {
		return v.fail(ErrTypeMismatch, b, idx, in.Loc, "%s needs at least %d operands, found %d", in.Op, info.MinOperands, n)
	}
	if info.MaxOperands != ir.VariadicOperands && n > info.MaxOperands {
		return v.fail(ErrTypeMismatch, b, idx, in.Loc, "%s takes at most %d operands, found %d", in.Op, info.MaxOperands, n)
	}
	for i, kind := range info.OperandKind {
		if i >= n {
			break
		}
		switch kind {
		case ir.ParseIntLit:
			if in.Operands[i].Kind != ir.ValueConstInt {
				return v.fail(ErrTypeMismatch, b, idx, in.Loc, "%s operand %d must be an integer literal", in.Op, i)
			}
		case ir.ParseGlobal:
			if in.Operands[i].Kind != ir.ValueGlobalAddr {
				return v.fail(ErrTypeMismatch, b, idx, in.Loc, "%s operand %d must be a global address", in.Op, i)
			}
		}
	}

	if in.Op == ir.Call && in.Callee == "" {
		return v.fail(ErrStructure, b, idx, in.Loc, "call without a callee name")
	}

	succ := info.Successors
	if succ != ir.VariadicSuccessors && len(in.Labels) != succ {
		return v.fail(ErrMalformedTerminator, b, idx, in.Loc, "%s expects %d successor labels, found %d", in.Op, succ, len(in.Labels))
	}
	if in.Op == ir.SwitchI32 {
		if len(in.Labels) != len(in.Operands) || len(in.Labels) == 0 {
			return v.fail(ErrMalformedTerminator, b, idx, in.Loc, "switch.i32 operand/label layout is inconsistent")
		}
	}
	if len(in.Labels) > 0 && len(in.BrArgs) != len(in.Labels) {
		return v.fail(ErrBranchArgs, b, idx, in.Loc, "%s carries %d argument vectors for %d labels", in.Op, len(in.BrArgs), len(in.Labels))
	}
	for _, label := range in.Labels {
		if v.fn.FindBlock(label) == nil {
			return v.fail(ErrMalformedTerminator, b, idx, in.Loc, "branch to unknown block %q", label)
		}
	}

	for _, val := range in.Operands {
		if err := v.checkUse(b, idx, in, val); err != nil {
			return err
		}
	}
	for _, args := range in.BrArgs {
		for _, val := range args {
			if err := v.checkUse(b, idx, in, val); err != nil {
				return err
			}
		}
	}
	return nil
}

func (v *verifier) checkUse(b *ir.BasicBlock, idx int, in *ir.Instr, val ir.Value) error {
	if val.Kind != ir.ValueTemp {
		if val.Kind == ir.ValueGlobalAddr && v.m != nil && v.m.FindGlobal(val.Str) == nil && v.m.FindFunction(val.Str) == nil {
			return v.fail(ErrStructure, b, idx, in.Loc, "reference to unknown global @%s", val.Str)
		}
		return nil
	}
	if _, ok := v.defs[val.ID]; !ok {
		return v.fail(ErrSSA, b, idx, in.Loc, "use of undefined temp %%t%d", val.ID)
	}
	return nil
}

// checkBranchArgs verifies branch argument counts and types against target
// block parameters.
func (v *verifier) checkBranchArgs() error {
	for _, b := range v.fn.Blocks {
		term := b.Terminator()
		if term == nil {
			continue
		}
		for li, label := range term.Labels {
			target := v.fn.FindBlock(label)
			var args []ir.Value
			if li < len(term.BrArgs) {
				args = term.BrArgs[li]
			}
			if len(args) != len(target.Params) {
				return v.fail(ErrBranchArgs, b, len(b.Instrs)-1, term.Loc,
					"branch to %q passes %d arguments, block expects %d", label, len(args), len(target.Params))
			}
			for ai, arg := range args {
				want := target.Params[ai].Type
				if got, ok := v.useType(arg); ok && got != want {
					return v.fail(ErrBranchArgs, b, len(b.Instrs)-1, term.Loc,
						"branch argument %d to %q has type %s, block parameter %%%s expects %s",
						ai, label, got, target.Params[ai].Name, want)
				}
			}
		}
	}
	return nil
}

// useType resolves the static type of a value when it is known.
func (v *verifier) useType(val ir.Value) (ir.Type, bool) {
	switch val.Kind {
	case ir.ValueTemp:
		if d, ok := v.defs[val.ID]; ok && d.typ != ir.Void {
			return d.typ, true
		}
		return ir.Void, false
	case ir.ValueConstInt:
		if val.IsBool {
			return ir.I1, true
		}
		return ir.Void, false // integer literals adapt to i32/i64 context
	case ir.ValueConstFloat:
		return ir.F64, true
	case ir.ValueConstStr:
		return ir.Str, true
	case ir.ValueNullPtr, ir.ValueGlobalAddr:
		return ir.Ptr, true
	}
	return ir.Void, false
}

// checkDominance verifies that every use is dominated by its definition.
// Unreachable blocks carry no dominance information and are skipped;
// SimplifyCFG deletes them rather than the verifier rejecting them.
func (v *verifier) checkDominance() error {
	cfg := analysis.BuildCFG(v.fn)
	dom := analysis.ComputeDominatorTree(v.fn, cfg)

	reachable := func(b *ir.BasicBlock) bool {
		_, ok := dom.IDom[b]
		return ok
	}

	check := func(b *ir.BasicBlock, idx int, in *ir.Instr, val ir.Value) error {
		if val.Kind != ir.ValueTemp {
			return nil
		}
		d := v.defs[val.ID]
		if d.block == nil {
			return nil // function parameters dominate everything
		}
		if d.block == b {
			if d.index >= 0 && d.index >= idx {
				return v.fail(ErrDominance, b, idx, in.Loc, "temp %%t%d used before its definition", val.ID)
			}
			return nil
		}
		if !dom.Dominates(d.block, b) {
			return v.fail(ErrDominance, b, idx, in.Loc, "definition of %%t%d does not dominate its use in %q", val.ID, b.Label)
		}
		return nil
	}

	for _, b := range v.fn.Blocks {
		if !reachable(b) {
			continue
		}
		for i := range b.Instrs {
			in := &b.Instrs[i]
			for _, val := range in.Operands {
				if err := check(b, i, in, val); err != nil {
					return err
				}
			}
			for _, args := range in.BrArgs {
				for _, val := range args {
					if err := check(b, i, in, val); err != nil {
						return err
					}
				}
			}
		}
	}
	return nil
}
