package codegen

import (
	"fmt"
	"strings"

	"forge/internal/array"
	"forge/internal/block"
	"forge/internal/errors"
	"forge/internal/ir"
)

// ChunkSize is the compile-time chunk of the single-rank parallel loop.
const ChunkSize = 2048

// Emitter lowers one block into kernel source. It is a pure function of the
// block, its iterspace, and the backend's operator catalogue.
type Emitter struct {
	arena *block.Arena
	root  block.ID
	syn   Syntax
	iter  Iterspace

	specs    []InstrSpec
	operands []Operand
	buffers  []*array.Base

	bufferIDs  map[*array.Base]int
	bufferRefs map[*array.Base]int
}

// NewEmitter collects the array operations of a block and assigns kernel
// argument ids to their operands and buffers.
func NewEmitter(a *block.Arena, root block.ID, syn Syntax) (*Emitter, error) {
	e := &Emitter{
		arena:      a,
		root:       root,
		syn:        syn,
		iter:       BuildIterspace(a, root),
		bufferIDs:  map[*array.Base]int{},
		bufferRefs: map[*array.Base]int{},
	}
	temps := a.Temps(root)
	for _, instr := range a.AllInstrs(root) {
		if instr.Opcode.IsSystem() {
			continue
		}
		spec, err := e.lower(instr, temps)
		if err != nil {
			return nil, err
		}
		e.specs = append(e.specs, spec)
	}
	if e.iter.Layout&LayoutSparse != 0 {
		return nil, errors.E(errors.UnsupportedLayout, "sparse operands have no lowering")
	}
	return e, nil
}

// Executable packages the lowered kernel with its source and symbol.
func (e *Emitter) Executable() (*Executable, error) {
	source, err := e.GenerateSource()
	if err != nil {
		return nil, err
	}
	return &Executable{
		Symbol:   e.Symbol(),
		Source:   source,
		Iter:     e.iter,
		Instrs:   e.specs,
		Operands: e.operands,
		Buffers:  e.buffers,
	}, nil
}

// Symbol returns the stable kernel symbol for the block.
func (e *Emitter) Symbol() string {
	return Symbol(e.specs, e.operands)
}

// Iterspace returns the iterspace the emitter lowers against.
func (e *Emitter) Iterspace() Iterspace {
	return e.iter
}

func (e *Emitter) lower(instr *ir.Instruction, temps map[*array.Base]struct{}) (InstrSpec, error) {
	spec := InstrSpec{
		Opcode:    instr.Opcode,
		Oper:      instr.Opcode.BaseOperator(),
		Shape:     append([]int64(nil), instr.Shape()...),
		SweepAxis: -1,
		Out:       -1,
		In1:       -1,
		In2:       -1,
		In3:       -1,
	}
	op := instr.Opcode
	switch {
	case op.IsReduction():
		if instr.Operands[0].IsScalar() {
			spec.Class = ClassReduceComplete
		} else {
			spec.Class = ClassReducePartial
		}
		spec.SweepAxis = instr.SweepAxis()
	case op.IsAccumulate():
		spec.Class = ClassScan
		spec.SweepAxis = instr.SweepAxis()
	case op == ir.Range || op == ir.Random:
		spec.Class = ClassGenerate
	case op == ir.Gather:
		spec.Class = ClassGather
	case op == ir.Scatter:
		spec.Class = ClassScatter
	case op == ir.CondScatter:
		spec.Class = ClassCondScatter
	case op.IsElementwise():
		if op.Arity() == 3 {
			spec.Class = ClassZip
		} else {
			spec.Class = ClassMap
		}
	default:
		return spec, errors.E(errors.UnknownOperator, "no lowering for %s", op)
	}

	ids := make([]int, 0, len(instr.Operands))
	for i := range instr.Operands {
		if op.IsSweep() && i == 2 {
			// The sweep axis constant travels in SweepAxis, not as an
			// argument.
			ids = append(ids, -1)
			continue
		}
		ids = append(ids, e.addOperand(instr, i, temps))
	}
	if len(ids) > 0 {
		spec.Out = ids[0]
	}
	if len(ids) > 1 {
		spec.In1 = ids[1]
	}
	if len(ids) > 2 {
		spec.In2 = ids[2]
	}
	if len(ids) > 3 {
		spec.In3 = ids[3]
	}

	// The computation type: ABSOLUTE computes in its input type, everything
	// else in the output type; sweeps accumulate in the pre-sweep type.
	switch {
	case op.IsSweep():
		spec.DType = instr.OperandType(1)
	case op == ir.Absolute && len(instr.Operands) > 1:
		spec.DType = instr.OperandType(1)
	default:
		spec.DType = instr.OperandType(0)
	}
	return spec, nil
}

func (e *Emitter) addOperand(instr *ir.Instruction, i int, temps map[*array.Base]struct{}) int {
	v := instr.Operands[i]
	if v.IsConstant() {
		// Inline constants of sweep-less opcodes may carry the payload in
		// the instruction constant.
		if v.Const.Type == array.DTypeUnknown {
			v.Const = instr.Constant
		}
		id := len(e.operands)
		e.operands = append(e.operands, Operand{ID: id, View: v, Layout: LayoutScalarConst, BufferID: -1})
		return id
	}
	for _, opd := range e.operands {
		if opd.View.Equal(v) {
			return opd.ID
		}
	}
	bufID, ok := e.bufferIDs[v.Base]
	if !ok {
		bufID = len(e.buffers)
		e.bufferIDs[v.Base] = bufID
		e.buffers = append(e.buffers, v.Base)
	}
	e.bufferRefs[v.Base]++
	id := len(e.operands)
	e.operands = append(e.operands, Operand{
		ID:       id,
		View:     v.Clone(),
		Layout:   ClassifyOperand(v, temps),
		BufferID: bufID,
	})
	return id
}

func (e *Emitter) opdName(id int) string {
	return fmt.Sprintf("opd%d", id)
}

func (e *Emitter) ctypeOf(opd Operand) string {
	if opd.View.IsConstant() {
		return e.syn.CType(opd.View.Const.Type)
	}
	return e.syn.CType(opd.View.Base.Type)
}

// axisAccess renders the expression addressing an operand at the iterspace
// axis: a plain subscript when the axis stride is 1, a constant subscript
// when it is 0, and an idx*stride subscript otherwise. Non-array layouts
// answer with the operand local.
func (e *Emitter) axisAccess(id int, axis int) string {
	opd := e.operands[id]
	name := e.opdName(id)
	if !opd.Layout.isArrayLayout() {
		return name
	}
	nd := opd.View.NDim()
	last := nd - 1
	stride := opd.View.Stride[last]
	switch {
	case stride == 0:
		return fmt.Sprintf("%s[0]", name)
	case stride == 1:
		return fmt.Sprintf("%s[idx%d]", name, axis)
	default:
		return fmt.Sprintf("%s[idx%d*%s_stride_d%d]", name, axis, name, last)
	}
}

// flatIndexExpr renders the global flat index of the current iteration, the
// value RANGE writes and RANDOM hashes.
func (e *Emitter) flatIndexExpr() string {
	expr := "idx0"
	for d := 1; d < e.iter.NDim; d++ {
		expr = fmt.Sprintf("(%s*iterspace_shape_d%d + idx%d)", expr, d, d)
	}
	return expr
}

func (e *Emitter) unpackIterspace(sb *strings.Builder) {
	sb.WriteString("const int64_t iterspace_ndim = iterspace->ndim;\n")
	sb.WriteString("const int64_t *iterspace_shape = iterspace->shape;\n")
	for d := 0; d < e.iter.NDim; d++ {
		fmt.Fprintf(sb, "const int64_t iterspace_shape_d%d = iterspace->shape[%d];\n", d, d)
	}
	sb.WriteString("const int64_t iterspace_nelem = iterspace->nelem;\n")
	sb.WriteString("(void)iterspace_ndim; (void)iterspace_shape; (void)iterspace_nelem;\n")
}

func (e *Emitter) unpackBuffers(sb *strings.Builder) {
	for id, buf := range e.buffers {
		fmt.Fprintf(sb, "\n// Buffer buf%d\n", id)
		ctype := e.syn.CType(buf.Type)
		fmt.Fprintf(sb, "%s *buf%d_data = (%s *) buffers[%d]->data;\n", ctype, id, ctype, id)
		fmt.Fprintf(sb, "int64_t buf%d_nelem = buffers[%d]->nelem;\n", id, id)
		fmt.Fprintf(sb, "assert(buf%d_data != NULL);\n", id)
		fmt.Fprintf(sb, "(void)buf%d_nelem;\n", id)
	}
}

func (e *Emitter) unpackArguments(sb *strings.Builder) {
	for _, opd := range e.operands {
		name := e.opdName(opd.ID)
		fmt.Fprintf(sb, "\n// Argument %s [%s]\n", name, opd.Layout)
		switch opd.Layout {
		case LayoutStrided, LayoutConsecutive, LayoutContiguous, LayoutScalar:
			fmt.Fprintf(sb, "const int64_t %s_start = args[%d]->start;\n", name, opd.ID)
			fmt.Fprintf(sb, "const int64_t %s_nelem = args[%d]->nelem;\n", name, opd.ID)
			fmt.Fprintf(sb, "const int64_t *%s_stride = args[%d]->stride;\n", name, opd.ID)
			fmt.Fprintf(sb, "(void)%s_nelem; (void)%s_stride;\n", name, name)
			for d := 0; d < opd.View.NDim(); d++ {
				fmt.Fprintf(sb, "const int64_t %s_stride_d%d = args[%d]->stride[%d];\n", name, d, opd.ID, d)
				fmt.Fprintf(sb, "(void)%s_stride_d%d;\n", name, d)
			}
		case LayoutScalarConst:
			ctype := e.ctypeOf(opd)
			fmt.Fprintf(sb, "const %s %s = *(const %s *) args[%d]->const_data;\n", ctype, name, ctype, opd.ID)
		case LayoutScalarTemp, LayoutContractable:
			sb.WriteString("// No unpacking needed.\n")
		default:
			fmt.Fprintf(sb, "// Unpacking not implemented for %s.\n", opd.Layout)
		}
	}
}

// declareInitOpds declares the operand walkers and offsets the array
// pointers by every non-axis index.
func (e *Emitter) declareInitOpds(skel *loopSkel) {
	for _, opd := range e.operands {
		name := e.opdName(opd.ID)
		switch opd.Layout {
		case LayoutScalarConst:
			// Declared in the kernel head.
		case LayoutScalar:
			fmt.Fprintf(&sbWrap{&skel.Prolog}, "%s %s = *(buf%d_data + %s_start);\n",
				e.ctypeOf(opd), name, opd.BufferID, name)
		case LayoutScalarTemp, LayoutContractable:
			fmt.Fprintf(&sbWrap{&skel.Prolog}, "%s %s;\n", e.ctypeOf(opd), name)
		case LayoutContiguous, LayoutConsecutive, LayoutStrided:
			var offset strings.Builder
			opdNDim := opd.View.NDim()
			opdAxis := 0
			for axis := 0; axis < e.iter.NDim; axis++ {
				if axis == e.iter.Axis {
					if opdNDim == e.iter.NDim {
						opdAxis++
					}
					continue
				}
				if opdAxis < opdNDim {
					fmt.Fprintf(&offset, " + idx%d*%s_stride_d%d", axis, name, opdAxis)
				}
				opdAxis++
			}
			qual := ""
			if e.bufferRefs[opd.View.Base] == 1 {
				qual = " restrict"
			}
			fmt.Fprintf(&sbWrap{&skel.Prolog}, "%s *%s %s = buf%d_data + %s_start%s;\n",
				e.ctypeOf(opd), qual, name, opd.BufferID, name, offset.String())
		}
	}
}

// sbWrap adapts a string section to fmt.Fprintf.
type sbWrap struct{ s *string }

func (w *sbWrap) Write(p []byte) (int, error) {
	*w.s += string(p)
	return len(p), nil
}

func (e *Emitter) operDescription(spec InstrSpec) string {
	var parts []string
	for _, id := range []int{spec.Out, spec.In1, spec.In2, spec.In3} {
		if id >= 0 {
			parts = append(parts, e.operands[id].Layout.String())
		}
	}
	return fmt.Sprintf("%s (%s)", spec.Oper, strings.Join(parts, ", "))
}

func (e *Emitter) accName(i int, shared bool) string {
	if shared {
		return fmt.Sprintf("acc%d_shared", i)
	}
	return fmt.Sprintf("acc%d_priv", i)
}

// syncedOper renders the private-into-shared fold: a named critical section
// for order-sensitive operators and complex types, an atomic update
// otherwise.
func (e *Emitter) syncedOper(i int, spec InstrSpec) (string, error) {
	expr, err := e.syn.OpExpr(spec.Oper, spec.DType, e.accName(i, true), e.accName(i, false))
	if err != nil {
		return "", err
	}
	assign := fmt.Sprintf("%s = %s;", e.accName(i, true), expr)
	switch spec.Oper {
	case ir.Maximum, ir.Minimum, ir.LogicalAnd, ir.LogicalOr, ir.LogicalXor:
		return fmt.Sprintf("#pragma omp critical(accusync)\n{ %s }\n", assign), nil
	}
	if spec.DType.IsComplex() {
		return fmt.Sprintf("#pragma omp critical(accusync)\n{ %s }\n", assign), nil
	}
	return fmt.Sprintf("#pragma omp atomic update\n%s\n", assign), nil
}

// emitOperations fills the code-block sections with one statement per
// instruction in source order.
func (e *Emitter) emitOperations(skel *loopSkel) error {
	axis := e.iter.Axis
	for i, spec := range e.specs {
		switch spec.Class {
		case ClassZip:
			expr, err := e.syn.OpExpr(spec.Oper, spec.DType, e.axisAccess(spec.In1, axis), e.axisAccess(spec.In2, axis))
			if err != nil {
				return err
			}
			skel.Body += fmt.Sprintf("%s = %s; // %s\n", e.axisAccess(spec.Out, axis), expr, e.operDescription(spec))

		case ClassMap:
			expr, err := e.syn.OpExpr(spec.Oper, spec.DType, e.axisAccess(spec.In1, axis), "")
			if err != nil {
				return err
			}
			skel.Body += fmt.Sprintf("%s = %s; // %s\n", e.axisAccess(spec.Out, axis), expr, e.operDescription(spec))

		case ClassGenerate:
			var expr string
			if spec.Opcode == ir.Random {
				expr = fmt.Sprintf("forge_random(%s, (uint64_t)%s, (uint64_t)%s)",
					e.flatIndexExpr(), e.opdName(spec.In1), e.opdName(spec.In2))
			} else {
				expr = e.flatIndexExpr()
			}
			ctype := e.ctypeOf(e.operands[spec.Out])
			skel.Body += fmt.Sprintf("%s = (%s)(%s); // %s\n", e.axisAccess(spec.Out, axis), ctype, expr, e.operDescription(spec))

		case ClassReduceComplete:
			neutral, err := e.syn.NeutralElement(spec.Oper, spec.DType)
			if err != nil {
				return err
			}
			skel.Prolog += fmt.Sprintf("%s %s = %s;\n", e.syn.CType(spec.DType), e.accName(i, false), neutral)
			fold, err := e.syn.OpExpr(spec.Oper, spec.DType, e.accName(i, false), e.axisAccess(spec.In1, axis))
			if err != nil {
				return err
			}
			skel.Body += fmt.Sprintf("%s = %s; // %s\n", e.accName(i, false), fold, e.operDescription(spec))
			synced, err := e.syncedOper(i, spec)
			if err != nil {
				return err
			}
			skel.Epilog += synced

		case ClassReducePartial:
			neutral, err := e.syn.NeutralElement(spec.Oper, spec.DType)
			if err != nil {
				return err
			}
			skel.Prolog += fmt.Sprintf("%s %s = %s;\n", e.syn.CType(spec.DType), e.accName(i, false), neutral)
			fold, err := e.syn.OpExpr(spec.Oper, spec.DType, e.accName(i, false), e.axisAccess(spec.In1, axis))
			if err != nil {
				return err
			}
			skel.Body += fmt.Sprintf("%s = %s; // %s\n", e.accName(i, false), fold, e.operDescription(spec))
			if e.operands[spec.Out].Layout.isArrayLayout() {
				skel.Epilog += fmt.Sprintf("*%s = %s; // write accumulator\n", e.opdName(spec.Out), e.accName(i, false))
			} else {
				skel.Epilog += fmt.Sprintf("%s = %s; // write accumulator\n", e.opdName(spec.Out), e.accName(i, false))
			}

		case ClassScan:
			neutral, err := e.syn.NeutralElement(spec.Oper, spec.DType)
			if err != nil {
				return err
			}
			skel.Prolog += fmt.Sprintf("%s %s = %s;\n", e.syn.CType(spec.DType), e.accName(i, false), neutral)
			fold, err := e.syn.OpExpr(spec.Oper, spec.DType, e.accName(i, false), e.axisAccess(spec.In1, axis))
			if err != nil {
				return err
			}
			skel.Body += fmt.Sprintf("%s = %s; // accumulation\n", e.accName(i, false), fold)
			skel.Body += fmt.Sprintf("%s = %s; // %s\n", e.axisAccess(spec.Out, axis), e.accName(i, false), e.operDescription(spec))

		case ClassGather:
			in1 := e.operands[spec.In1]
			skel.Body += fmt.Sprintf("%s = buf%d_data[%s_start + (int64_t)%s]; // %s\n",
				e.axisAccess(spec.Out, axis), in1.BufferID, e.opdName(spec.In1), e.axisAccess(spec.In2, axis), e.operDescription(spec))

		case ClassScatter:
			out := e.operands[spec.Out]
			skel.Body += fmt.Sprintf("buf%d_data[%s_start + (int64_t)%s] = %s; // %s\n",
				out.BufferID, e.opdName(spec.Out), e.axisAccess(spec.In2, axis), e.axisAccess(spec.In1, axis), e.operDescription(spec))

		case ClassCondScatter:
			out := e.operands[spec.Out]
			skel.Body += fmt.Sprintf("if (%s) { buf%d_data[%s_start + (int64_t)%s] = %s; } // %s\n",
				e.axisAccess(spec.In3, axis), out.BufferID, e.opdName(spec.Out), e.axisAccess(spec.In2, axis), e.axisAccess(spec.In1, axis), e.operDescription(spec))

		default:
			return errors.E(errors.UnknownOperator, "no body lowering for %s", spec.Opcode)
		}
	}

	// Scalar outputs of plain operations are value locals; write them back
	// once after the loops.
	written := map[int]bool{}
	for _, spec := range e.specs {
		switch spec.Class {
		case ClassMap, ClassZip, ClassGenerate:
			opd := e.operands[spec.Out]
			if opd.Layout == LayoutScalar && !written[spec.Out] {
				skel.Epilog += fmt.Sprintf("*(buf%d_data + %s_start) = %s;\n",
					opd.BufferID, e.opdName(spec.Out), e.opdName(spec.Out))
				written[spec.Out] = true
			}
		}
	}
	return nil
}

// simdReductionAnnotation derives the simd reduction clause from the active
// private accumulators.
func (e *Emitter) simdReductionAnnotation() string {
	var annotations []string
	for i, spec := range e.specs {
		if spec.Class != ClassReduceComplete && spec.Class != ClassReducePartial {
			continue
		}
		var op string
		switch spec.Oper {
		case ir.Add:
			op = "+"
		case ir.Multiply:
			op = "*"
		case ir.LogicalAnd:
			op = "&&"
		case ir.BitwiseAnd:
			op = "&"
		case ir.LogicalOr:
			op = "||"
		case ir.BitwiseOr:
			op = "|"
		default:
			continue
		}
		annotations = append(annotations, op+":"+e.accName(i, false))
	}
	if len(annotations) == 0 {
		return ""
	}
	return "reduction(" + strings.Join(annotations, ",") + ")"
}

func (e *Emitter) hasClass(classes ...Class) bool {
	for _, spec := range e.specs {
		for _, c := range classes {
			if spec.Class == c {
				return true
			}
		}
	}
	return false
}

// GenerateSource lowers the block into kernel source text.
func (e *Emitter) GenerateSource() (string, error) {
	if len(e.specs) == 0 {
		return "", errors.E(errors.UnknownOperator, "no array operations in block")
	}

	mode := "SIJ"
	if len(e.specs) > 1 {
		mode = "FUSED"
	}

	var krn strings.Builder
	fmt.Fprintf(&krn, "// MODE: %s\n", mode)
	fmt.Fprintf(&krn, "// LAYOUT: %s\n", e.iter.Layout)
	fmt.Fprintf(&krn, "// NINSTR: %d\n", len(e.specs))
	fmt.Fprintf(&krn, "// NARGS: %d\n", len(e.operands))
	fmt.Fprintf(&krn, "// SYMBOL: %s\n", e.Symbol())
	krn.WriteString(cPrelude)
	fmt.Fprintf(&krn, "void %s(forge_buffer **buffers, forge_operand **args, const forge_iterspace *iterspace)\n{\n", e.Symbol())

	// HEAD: unpack everything before any loop construct.
	var head strings.Builder
	e.unpackIterspace(&head)
	e.unpackBuffers(&head)
	e.unpackArguments(&head)
	for i, spec := range e.specs {
		if spec.Class == ClassReduceComplete {
			neutral, err := e.syn.NeutralElement(spec.Oper, spec.DType)
			if err != nil {
				return "", err
			}
			fmt.Fprintf(&head, "%s %s = %s;\n", e.syn.CType(spec.DType), e.accName(i, true), neutral)
		}
	}
	krn.WriteString(head.String())

	// The code block: operand walkers plus one statement per instruction.
	var code loopSkel
	e.declareInitOpds(&code)
	if err := e.emitOperations(&code); err != nil {
		return "", err
	}

	accumulates := e.hasClass(ClassReduceComplete, ClassReducePartial, ClassScan)
	scalarish := e.iter.Layout&(LayoutScalar|LayoutScalarConst|LayoutContractable|LayoutScalarTemp) != 0

	var body string
	switch {
	case scalarish && !accumulates:
		// Scalar kernel: no loop at all.
		scalar := blockSkel{Prolog: code.Prolog, Body: code.Body, Epilog: code.Epilog}
		body = scalar.emit()

	case e.iter.NDim == 1 && !e.hasClass(ClassScan):
		// Single-rank parallel: a chunked parallel loop around a
		// vectorised loop.
		axis := e.iter.Axis
		var vloop loopSkel
		vloop.Prolog = fmt.Sprintf(
			"const int64_t idx%d_chunked_bound = iterspace_shape_d%d < idx%d_chunked + FORGE_CHUNKSIZE ? iterspace_shape_d%d : idx%d_chunked + FORGE_CHUNKSIZE;\n",
			axis, axis, axis, axis, axis)
		pragma := "#pragma omp simd"
		if ann := e.simdReductionAnnotation(); ann != "" {
			pragma += " " + ann
		}
		vloop.Pragma = []string{pragma}
		vloop.Init = fmt.Sprintf("int64_t idx%d = idx%d_chunked", axis, axis)
		vloop.Cond = fmt.Sprintf("idx%d < idx%d_chunked_bound", axis, axis)
		vloop.Incr = fmt.Sprintf("++idx%d", axis)
		vloop.Body = code.Body

		var ploop loopSkel
		ploop.Init = fmt.Sprintf("int64_t idx%d_chunked = 0", axis)
		ploop.Cond = fmt.Sprintf("idx%d_chunked < iterspace_shape_d%d", axis, axis)
		ploop.Incr = fmt.Sprintf("idx%d_chunked += FORGE_CHUNKSIZE", axis)
		ploop.Pragma = []string{"#pragma omp for schedule(static)"}
		ploop.Prolog = code.Prolog
		ploop.Epilog = code.Epilog
		ploop.Body = vloop.emit()

		pblock := blockSkel{Pragma: "#pragma omp parallel", Body: ploop.emit()}
		body = pblock.emit()

	default:
		// Nested: the axis loop is innermost and vectorised; outer ranks
		// wrap it, the outermost carrying the parallel annotation.
		axis := e.iter.Axis
		var loop loopSkel
		loop.Init = fmt.Sprintf("int64_t idx%d = 0", axis)
		loop.Cond = fmt.Sprintf("idx%d < iterspace_shape_d%d", axis, axis)
		loop.Incr = fmt.Sprintf("++idx%d", axis)
		pragma := "#pragma omp simd"
		if ann := e.simdReductionAnnotation(); ann != "" {
			pragma += " " + ann
		}
		loop.Pragma = []string{pragma}
		loop.Prolog = code.Prolog
		loop.Body = code.Body
		loop.Epilog = code.Epilog
		body = loop.emit()

		var outerAxes []int
		for ax := e.iter.NDim - 1; ax >= 0; ax-- {
			if ax == axis {
				continue
			}
			outerAxes = append(outerAxes, ax)
		}
		for n, ax := range outerAxes {
			loop.reset()
			if n == len(outerAxes)-1 {
				p := "#pragma omp parallel for schedule(static)"
				if e.iter.NDim > 2 {
					p += fmt.Sprintf(" collapse(%d)", e.iter.NDim-1)
				}
				loop.Pragma = []string{p}
			}
			loop.Init = fmt.Sprintf("int64_t idx%d = 0", ax)
			loop.Cond = fmt.Sprintf("idx%d < iterspace_shape_d%d", ax, ax)
			loop.Incr = fmt.Sprintf("++idx%d", ax)
			loop.Body = body
			body = loop.emit()
		}
	}
	krn.WriteString(body)

	// FOOT: write shared accumulators back to their output buffers.
	for i, spec := range e.specs {
		if spec.Class == ClassReduceComplete {
			out := e.operands[spec.Out]
			fmt.Fprintf(&krn, "*(buf%d_data + %s_start) = %s;\n",
				out.BufferID, e.opdName(spec.Out), e.accName(i, true))
		}
	}
	krn.WriteString("}\n")
	return krn.String(), nil
}

const cPrelude = `
#include <assert.h>
#include <complex.h>
#include <float.h>
#include <math.h>
#include <stdbool.h>
#include <stdint.h>

#define FORGE_CHUNKSIZE 2048

typedef struct {
    void *data;
    int64_t nelem;
} forge_buffer;

typedef struct {
    int64_t start;
    int64_t nelem;
    const int64_t *stride;
    const void *const_data;
} forge_operand;

typedef struct {
    int32_t layout;
    int64_t ndim;
    const int64_t *shape;
    int64_t nelem;
} forge_iterspace;

static inline uint64_t forge_random(uint64_t idx, uint64_t key, uint64_t start)
{
    uint64_t z = (start + idx) * 0x9E3779B97F4A7C15ULL + key;
    z = (z ^ (z >> 30)) * 0xBF58476D1CE4E5B9ULL;
    z = (z ^ (z >> 27)) * 0x94D049BB133111EBULL;
    return z ^ (z >> 31);
}
`
