package analysis

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"viper/internal/il"
	"viper/internal/ir"
)

func parseFn(t *testing.T, src, name string) *ir.Function {
	t.Helper()
	m, err := il.Parse("test.vil", src)
	require.NoError(t, err)
	fn := m.FindFunction(name)
	require.NotNil(t, fn)
	return fn
}

const diamondSrc = `func @main(%n: i64) -> i64 {
entry:
  %c = scmp_lt %n, 10
  cbr %c, ^then, ^else
then:
  br ^join(1)
else:
  br ^join(2)
join(%x: i64):
  ret %x
}
`

func TestBuildCFGSuccessorOrder(t *testing.T) {
	fn := parseFn(t, diamondSrc, "main")
	cfg := BuildCFG(fn)

	entry := fn.FindBlock("entry")
	succs := cfg.Successors[entry]
	require.Len(t, succs, 2)
	assert.Equal(t, "then", succs[0].Label, "true target first")
	assert.Equal(t, "else", succs[1].Label)

	join := fn.FindBlock("join")
	preds := cfg.Predecessors[join]
	require.Len(t, preds, 2)
	assert.Empty(t, cfg.Successors[join])
}

func TestReversePostOrder(t *testing.T) {
	fn := parseFn(t, diamondSrc, "main")
	cfg := BuildCFG(fn)

	rpo := cfg.ReversePostOrder()
	require.Len(t, rpo, 4)
	assert.Equal(t, "entry", rpo[0].Label)
	assert.Equal(t, "join", rpo[3].Label, "the join comes after both arms")

	idx := cfg.RPOIndex()
	assert.Less(t, idx[fn.FindBlock("entry")], idx[fn.FindBlock("then")])
	assert.Less(t, idx[fn.FindBlock("then")], idx[fn.FindBlock("join")])
}

func TestRPOSkipsUnreachable(t *testing.T) {
	src := `func @f() -> i64 {
entry:
  ret 0
island:
  ret 1
}
`
	fn := parseFn(t, src, "f")
	cfg := BuildCFG(fn)
	assert.Len(t, cfg.ReversePostOrder(), 1)
}
