package ir

// Switch helpers. A switch.i32 packs its data into the shared operand/label
// layout: Operands[0] is the scrutinee and Operands[1+i] guards case i;
// Labels[0]/BrArgs[0] is the default arm and Labels[1+i]/BrArgs[1+i] is case
// i's target. The helpers below are the only sanctioned way to read that
// layout.

// NewSwitch builds a switch.i32 instruction from its parts.
func NewSwitch(scrutinee Value, defaultLabel string, defaultArgs []Value) Instr {
	return Instr{
		Op:       SwitchI32,
		Operands: []Value{scrutinee},
		Labels:   []string{defaultLabel},
		BrArgs:   [][]Value{defaultArgs},
	}
}

// AddSwitchCase appends a case arm to a switch.i32 instruction.
func (in *Instr) AddSwitchCase(value Value, label string, args []Value) {
	in.Operands = append(in.Operands, value)
	in.Labels = append(in.Labels, label)
	in.BrArgs = append(in.BrArgs, args)
}

// SwitchScrutinee returns the value being switched on.
func (in *Instr) SwitchScrutinee() Value {
	mustBeSwitch(in)
	return in.Operands[0]
}

// SwitchDefaultLabel returns the default branch target.
func (in *Instr) SwitchDefaultLabel() string {
	mustBeSwitch(in)
	return in.Labels[0]
}

// SwitchDefaultArgs returns the branch arguments for the default target.
func (in *Instr) SwitchDefaultArgs() []Value {
	mustBeSwitch(in)
	return in.BrArgs[0]
}

// SwitchCaseCount returns the number of explicit case arms.
func (in *Instr) SwitchCaseCount() int {
	mustBeSwitch(in)
	return len(in.Operands) - 1
}

// SwitchCaseValue returns the guard value of case i.
func (in *Instr) SwitchCaseValue(i int) Value {
	mustBeSwitch(in)
	return in.Operands[1+i]
}

// SwitchCaseLabel returns the branch target of case i.
func (in *Instr) SwitchCaseLabel(i int) string {
	mustBeSwitch(in)
	return in.Labels[1+i]
}

// SwitchCaseArgs returns the branch arguments of case i.
func (in *Instr) SwitchCaseArgs(i int) []Value {
	mustBeSwitch(in)
	return in.BrArgs[1+i]
}

func mustBeSwitch(in *Instr) {
	if in.Op != SwitchI32 {
		panic("ir: switch accessor on non-switch instruction")
	}
}
