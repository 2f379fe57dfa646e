package ir

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestValueEqualityByPayload(t *testing.T) {
	assert.True(t, Temp(3).Equal(Temp(3)))
	assert.False(t, Temp(3).Equal(Temp(4)))
	assert.True(t, ConstInt(7).Equal(ConstInt(7)))
	assert.False(t, ConstInt(7).Equal(ConstBool(true)), "bool-ness is part of the payload")
	assert.True(t, ConstFloat(1.5).Equal(ConstFloat(1.5)))
	assert.True(t, GlobalAddrOf("g").Equal(GlobalAddrOf("g")))
	assert.False(t, GlobalAddrOf("g").Equal(ConstStr("g")))
	assert.True(t, Null().Equal(Null()))
}

func TestFreshTempIDsAreMonotonic(t *testing.T) {
	fn := &Function{Name: "f", Ret: I64, Params: []Param{{Name: "a", Type: I64, ID: 0}}}
	b := fn.AddBlock("entry")

	id1 := fn.FreshTempID()
	assert.Equal(t, uint32(1), id1, "scanning should skip past the parameter id")

	in := Instr{Op: Add, Type: I64, Operands: []Value{Temp(0), ConstInt(1)}}
	in.SetResult(id1)
	b.Append(in)

	id2 := fn.FreshTempID()
	assert.Equal(t, uint32(2), id2)

	// Removing the defining instruction must not recycle the id.
	b.Remove(0)
	id3 := fn.FreshTempID()
	assert.Equal(t, uint32(3), id3)
}

func TestBlockTermination(t *testing.T) {
	fn := &Function{Name: "f", Ret: I64}
	b := fn.AddBlock("entry")
	assert.Nil(t, b.Terminator())
	assert.False(t, b.Terminated)

	b.Append(Instr{Op: Add, Type: I64, Operands: []Value{ConstInt(1), ConstInt(2)}})
	assert.Nil(t, b.Terminator())

	b.Append(Instr{Op: Ret, Type: I64, Operands: []Value{ConstInt(0)}})
	require.NotNil(t, b.Terminator())
	assert.True(t, b.Terminated)
	assert.Equal(t, Ret, b.Terminator().Op)
}

func TestBlockInsertRemove(t *testing.T) {
	b := &BasicBlock{Label: "bb"}
	b.Append(Instr{Op: Add, Type: I64})
	b.Append(Instr{Op: Ret, Type: I64})
	b.Insert(1, Instr{Op: Mul, Type: I64})

	require.Len(t, b.Instrs, 3)
	assert.Equal(t, Add, b.Instrs[0].Op)
	assert.Equal(t, Mul, b.Instrs[1].Op)
	assert.Equal(t, Ret, b.Instrs[2].Op)

	b.Remove(2)
	assert.False(t, b.Terminated, "removing the terminator clears the flag")
}

func TestModuleFunctionLookup(t *testing.T) {
	m := &Module{}
	m.AddFunction(&Function{Name: "main", Ret: I64})
	m.AddFunction(&Function{Name: "helper", Ret: Void})

	require.NotNil(t, m.FindFunction("helper"))
	assert.Nil(t, m.FindFunction("missing"))
	assert.True(t, m.RemoveFunction("helper"))
	assert.Nil(t, m.FindFunction("helper"))
	assert.False(t, m.RemoveFunction("helper"))
}

func TestInstrCloneIsDeep(t *testing.T) {
	in := Instr{Op: CBr, Operands: []Value{Temp(1)}, Labels: []string{"a", "b"}, BrArgs: [][]Value{{Temp(2)}, nil}}
	in.SetResult(9)

	cl := in.Clone()
	cl.Operands[0] = ConstInt(0)
	cl.Labels[0] = "x"
	cl.BrArgs[0][0] = ConstInt(5)
	*cl.Result = 10

	assert.Equal(t, Temp(1), in.Operands[0])
	assert.Equal(t, "a", in.Labels[0])
	assert.Equal(t, Temp(2), in.BrArgs[0][0])
	assert.Equal(t, uint32(9), *in.Result)
}
