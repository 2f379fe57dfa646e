package rt

// Read-only registry of runtime library signatures. The optimizer consults it
// as an oracle when classifying the memory behavior of calls whose callee is
// not defined in the module. Mirrors the shape of the runtime's exported
// entry points; only the attributes relevant to alias analysis are kept.

// Signature describes one runtime function.
type Signature struct {
	Name     string
	Pure     bool // no memory access, no observable side effects
	ReadOnly bool // may read memory, performs no writes
}

// Signatures is the lookup surface handed to alias analysis. Tests inject
// mocks; production code uses Default.
type Signatures interface {
	Lookup(name string) (Signature, bool)
}

// Table is a Signatures implementation backed by a map.
type Table map[string]Signature

// Lookup implements Signatures.
func (t Table) Lookup(name string) (Signature, bool) {
	sig, ok := t[name]
	return sig, ok
}

// NewTable builds a Table from a signature list.
func NewTable(sigs ...Signature) Table {
	t := make(Table, len(sigs))
	for _, s := range sigs {
		t[s.Name] = s
	}
	return t
}

var defaultTable = NewTable(
	Signature{Name: "rt_print_i64"},
	Signature{Name: "rt_print_f64"},
	Signature{Name: "rt_print_str"},
	Signature{Name: "rt_input_line"},
	Signature{Name: "rt_alloc"},
	Signature{Name: "rt_free"},
	Signature{Name: "rt_rand_i64"},
	Signature{Name: "rt_abs_i64", Pure: true},
	Signature{Name: "rt_min_i64", Pure: true},
	Signature{Name: "rt_max_i64", Pure: true},
	Signature{Name: "rt_sqrt", Pure: true},
	Signature{Name: "rt_pow", Pure: true},
	Signature{Name: "rt_floor", Pure: true},
	Signature{Name: "rt_ceil", Pure: true},
	Signature{Name: "rt_str_len", ReadOnly: true},
	Signature{Name: "rt_str_eq", ReadOnly: true},
	Signature{Name: "rt_str_cmp", ReadOnly: true},
	Signature{Name: "rt_concat", ReadOnly: true},
	Signature{Name: "rt_substr", ReadOnly: true},
)

// Default returns the production signature table.
func Default() Signatures { return defaultTable }
