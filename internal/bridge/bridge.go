// Package bridge lowers parsed forge scripts into instruction batches. It
// owns view construction: reshape, transpose and basic indexing are pure
// view rewrites here, never instructions.
package bridge

import (
	"fmt"
	"strings"

	"forge/grammar"
	"forge/internal/array"
	"forge/internal/ir"
)

// Compiled is one lowered script: the batch to submit plus the named views
// the script built, with the print directives in source order.
type Compiled struct {
	Batch  []*ir.Instruction
	Vars   map[string]array.View
	Prints []string
}

// Compiler lowers one script.
type Compiler struct {
	vars  map[string]array.View
	batch []*ir.Instruction
}

// Session keeps named arrays alive across successive compilations, the way
// a REPL needs.
type Session struct {
	vars map[string]array.View
}

// NewSession starts an empty session.
func NewSession() *Session {
	return &Session{vars: map[string]array.View{}}
}

// Compile lowers a parsed script in a fresh session.
func Compile(script *grammar.Script) (*Compiled, error) {
	return NewSession().Compile(script)
}

// Compile lowers a parsed script against the session's named arrays.
func (s *Session) Compile(script *grammar.Script) (*Compiled, error) {
	c := &Compiler{vars: s.vars}
	out := &Compiled{Vars: c.vars}
	for _, stmt := range script.Statements {
		switch {
		case stmt.Comment != nil:
			// Comments carry no operations.
		case stmt.Assign != nil:
			v, err := c.expr(stmt.Assign.Expr)
			if err != nil {
				return nil, err
			}
			c.vars[stmt.Assign.Name] = v
		case stmt.Directive != nil:
			if err := c.directive(stmt.Directive, out); err != nil {
				return nil, err
			}
		}
	}
	out.Batch = c.batch
	return out, nil
}

// CompileSource parses and lowers a script in one step.
func CompileSource(path, source string) (*Compiled, error) {
	script, err := grammar.ParseSource(path, source)
	if err != nil {
		return nil, err
	}
	return Compile(script)
}

// CompileSource parses and lowers a script against the session.
func (s *Session) CompileSource(path, source string) (*Compiled, error) {
	script, err := grammar.ParseSource(path, source)
	if err != nil {
		return nil, err
	}
	return s.Compile(script)
}

func (c *Compiler) directive(d *grammar.Directive, out *Compiled) error {
	v, ok := c.vars[d.Arg]
	if !ok {
		return fmt.Errorf("%s: undefined array %q", d.Name, d.Arg)
	}
	switch d.Name {
	case "print":
		out.Prints = append(out.Prints, d.Arg)
		c.emit(ir.New(ir.Sync, array.CompleteView(v.Base)))
	case "free":
		c.emit(ir.New(ir.Free, array.CompleteView(v.Base)))
	case "sync":
		c.emit(ir.New(ir.Sync, array.CompleteView(v.Base)))
	}
	return nil
}

func (c *Compiler) emit(instr *ir.Instruction) {
	c.batch = append(c.batch, instr)
}

// value is either an array view or a scalar literal awaiting a type.
type value struct {
	view   array.View
	scalar float64
	isLit  bool
}

func (v value) dtype() array.DType {
	if v.isLit {
		return array.Float64
	}
	if v.view.IsConstant() {
		return v.view.Const.Type
	}
	return v.view.Base.Type
}

func (c *Compiler) expr(e *grammar.Expr) (array.View, error) {
	v, err := c.exprValue(e)
	if err != nil {
		return array.View{}, err
	}
	return c.materialize(v)
}

// materialize turns a bare literal into a one-element array via IDENTITY.
func (c *Compiler) materialize(v value) (array.View, error) {
	if !v.isLit {
		return v.view, nil
	}
	out := array.ContiguousView(array.NewBase(array.Float64, 1), []int64{1})
	instr := ir.New(ir.Identity, out, array.ConstView(array.Float64Scalar(v.scalar)))
	c.emit(instr)
	return out, nil
}

func (c *Compiler) exprValue(e *grammar.Expr) (value, error) {
	acc, err := c.termValue(e.Left)
	if err != nil {
		return value{}, err
	}
	for _, rest := range e.Rest {
		rhs, err := c.termValue(rest.Term)
		if err != nil {
			return value{}, err
		}
		acc, err = c.binary(rest.Op, acc, rhs)
		if err != nil {
			return value{}, err
		}
	}
	return acc, nil
}

func (c *Compiler) termValue(t *grammar.Term) (value, error) {
	acc, err := c.factorValue(t.Left)
	if err != nil {
		return value{}, err
	}
	for _, rest := range t.Rest {
		rhs, err := c.factorValue(rest.Factor)
		if err != nil {
			return value{}, err
		}
		acc, err = c.binary(rest.Op, acc, rhs)
		if err != nil {
			return value{}, err
		}
	}
	return acc, nil
}

func (c *Compiler) factorValue(f *grammar.Factor) (value, error) {
	switch {
	case f.Number != nil:
		if f.Number.Float != nil {
			return value{scalar: *f.Number.Float, isLit: true}, nil
		}
		return value{scalar: float64(*f.Number.Int), isLit: true}, nil
	case f.Neg != nil:
		v, err := c.factorValue(f.Neg)
		if err != nil {
			return value{}, err
		}
		return c.binary("-", value{scalar: 0, isLit: true}, v)
	case f.Call != nil:
		view, err := c.call(f.Call)
		if err != nil {
			return value{}, err
		}
		return value{view: view}, nil
	case f.Index != nil:
		view, err := c.index(f.Index)
		if err != nil {
			return value{}, err
		}
		return value{view: view}, nil
	case f.Ident != nil:
		view, ok := c.vars[*f.Ident]
		if !ok {
			return value{}, fmt.Errorf("undefined array %q", *f.Ident)
		}
		return value{view: view}, nil
	case f.Paren != nil:
		return c.exprValue(f.Paren)
	}
	return value{}, fmt.Errorf("empty expression factor")
}

var binaryOps = map[string]ir.Opcode{
	"+": ir.Add,
	"-": ir.Subtract,
	"*": ir.Multiply,
	"/": ir.Divide,
	"%": ir.Mod,
}

// binary lowers one elementwise operation. Literals stay constant operands;
// when both sides are literals, the left one is first materialised into a
// one-element array by IDENTITY and the operation runs over that array.
func (c *Compiler) binary(op string, lhs, rhs value) (value, error) {
	opcode, ok := binaryOps[op]
	if !ok {
		return value{}, fmt.Errorf("unknown operator %q", op)
	}
	if lhs.isLit && rhs.isLit {
		// Keep it symbolic: a one-element kernel computes it.
		lv, err := c.materialize(lhs)
		if err != nil {
			return value{}, err
		}
		lhs = value{view: lv}
	}

	dtype := promote(lhs.dtype(), rhs.dtype())
	var shape []int64
	switch {
	case lhs.isLit:
		shape = rhs.view.Shape
	case rhs.isLit:
		shape = lhs.view.Shape
	default:
		if !array.ShapeEqual(lhs.view.Shape, rhs.view.Shape) {
			if lhs.view.IsScalar() {
				shape = rhs.view.Shape
			} else if rhs.view.IsScalar() {
				shape = lhs.view.Shape
			} else {
				return value{}, fmt.Errorf("shape mismatch: %v vs %v", lhs.view.Shape, rhs.view.Shape)
			}
		} else {
			shape = lhs.view.Shape
		}
	}

	out := array.ContiguousView(array.NewBase(dtype, array.ShapeProd(shape)), shape)
	l := c.operand(lhs, dtype, shape)
	r := c.operand(rhs, dtype, shape)
	c.emit(ir.New(opcode, out, l, r))
	return value{view: out}, nil
}

// operand adapts a value for use at the given shape: literals become typed
// constants and one-element arrays broadcast with stride zero.
func (c *Compiler) operand(v value, dtype array.DType, shape []int64) array.View {
	if v.isLit {
		return array.ConstView(array.ScalarOf(dtype, v.scalar))
	}
	view := v.view
	if !array.ShapeEqual(view.Shape, shape) && view.IsScalar() {
		bcast := view.Clone()
		bcast.Shape = append([]int64(nil), shape...)
		bcast.Stride = make([]int64, len(shape))
		return bcast
	}
	return view
}

func promote(a, b array.DType) array.DType {
	rank := func(t array.DType) int {
		switch {
		case t.IsComplex():
			return 4
		case t.IsFloat():
			return 3
		case t.IsUnsigned():
			return 2
		case t.IsInteger():
			return 1
		default:
			return 0
		}
	}
	ra, rb := rank(a), rank(b)
	switch {
	case ra > rb:
		return a
	case rb > ra:
		return b
	case a.Size() >= b.Size():
		return a
	default:
		return b
	}
}

func (c *Compiler) index(ix *grammar.Index) (array.View, error) {
	src, ok := c.vars[ix.Name]
	if !ok {
		return array.View{}, fmt.Errorf("undefined array %q", ix.Name)
	}
	if src.NDim() == 0 {
		return array.View{}, fmt.Errorf("%q cannot be indexed", ix.Name)
	}
	v := src.Clone()
	if ix.Hi != nil {
		if ix.Lo < 0 || *ix.Hi > v.Shape[0] || ix.Lo > *ix.Hi {
			return array.View{}, fmt.Errorf("slice [%d:%d] out of range for %q", ix.Lo, *ix.Hi, ix.Name)
		}
		v.Start += ix.Lo * v.Stride[0]
		v.Shape[0] = *ix.Hi - ix.Lo
		return v, nil
	}
	if ix.Lo < 0 || ix.Lo >= v.Shape[0] {
		return array.View{}, fmt.Errorf("index %d out of range for %q", ix.Lo, ix.Name)
	}
	v.Start += ix.Lo * v.Stride[0]
	v.RemoveAxis(0)
	if v.NDim() == 0 {
		v.Shape = []int64{1}
		v.Stride = []int64{1}
	}
	return v, nil
}

// FormatView renders an allocated view's elements for printing.
func FormatView(v array.View) string {
	if v.IsConstant() {
		return v.Const.String()
	}
	if v.Base.Data == nil {
		return "<unallocated>"
	}
	var sb strings.Builder
	formatDim(&sb, v, nil)
	return sb.String()
}

func formatDim(sb *strings.Builder, v array.View, idx []int64) {
	if len(idx) == v.NDim() {
		sb.WriteString(v.Base.Load(v.ElemOffset(idx)).String())
		return
	}
	sb.WriteString("[")
	for i := int64(0); i < v.Shape[len(idx)]; i++ {
		if i > 0 {
			sb.WriteString(", ")
		}
		formatDim(sb, v, append(idx, i))
	}
	sb.WriteString("]")
}
