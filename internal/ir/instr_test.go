package ir

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSwitchHelpers(t *testing.T) {
	sw := NewSwitch(Temp(4), "default", []Value{Temp(4)})
	sw.AddSwitchCase(ConstInt(0), "case0", nil)
	sw.AddSwitchCase(ConstInt(1), "case1", []Value{ConstInt(10)})

	assert.Equal(t, Temp(4), sw.SwitchScrutinee())
	assert.Equal(t, "default", sw.SwitchDefaultLabel())
	require.Len(t, sw.SwitchDefaultArgs(), 1)

	require.Equal(t, 2, sw.SwitchCaseCount())
	assert.Equal(t, ConstInt(0), sw.SwitchCaseValue(0))
	assert.Equal(t, "case0", sw.SwitchCaseLabel(0))
	assert.Empty(t, sw.SwitchCaseArgs(0))
	assert.Equal(t, ConstInt(1), sw.SwitchCaseValue(1))
	assert.Equal(t, "case1", sw.SwitchCaseLabel(1))
	assert.Equal(t, []Value{ConstInt(10)}, sw.SwitchCaseArgs(1))
}

func TestSwitchHelpersPanicOnWrongOpcode(t *testing.T) {
	in := Instr{Op: Br, Labels: []string{"next"}, BrArgs: [][]Value{nil}}
	assert.Panics(t, func() { in.SwitchScrutinee() })
}

func TestOpcodeMetadata(t *testing.T) {
	assert.True(t, Br.Info().Terminator)
	assert.True(t, Ret.Info().Terminator)
	assert.False(t, Add.Info().Terminator)

	assert.Equal(t, MemRead, Load.Info().Mem)
	assert.Equal(t, MemWrite, Store.Info().Mem)
	assert.Equal(t, MemUnknown, Call.Info().Mem)
	assert.Equal(t, MemNone, Add.Info().Mem)

	assert.Equal(t, VariadicSuccessors, SwitchI32.Info().Successors)
	assert.Equal(t, 2, CBr.Info().Successors)
	assert.Equal(t, 1, Br.Info().Successors)

	assert.True(t, Store.Info().SideEffects)
	assert.False(t, Mul.Info().SideEffects)
	assert.True(t, SDivChk0.Info().SideEffects, "checked ops trap and must not be DCE'd")
}

func TestOpcodeNamesRoundTrip(t *testing.T) {
	for op := Opcode(0); op < numOpcodes; op++ {
		got, ok := OpcodeByName(op.String())
		require.True(t, ok, "mnemonic %q not registered", op.String())
		assert.Equal(t, op, got)
	}
}

func TestCheckOpcodeClassification(t *testing.T) {
	for _, op := range []Opcode{IdxChk, SDivChk0, UDivChk0, SRemChk0, URemChk0, CastSiNarrowChk} {
		assert.True(t, op.IsCheck(), "%s", op)
	}
	assert.False(t, SDiv.IsCheck())
	assert.False(t, Add.IsCheck())
}
