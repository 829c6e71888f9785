package array

// Simplify returns the view with the fewest dimensions that accesses the
// same elements in the same pattern: leading size-1 dimensions are skipped,
// row-major adjacent dimensions are collapsed, and any zero-extent dimension
// short-circuits to the one-dimensional empty view.
func Simplify(v View) View {
	res := View{Base: v.Base, Start: v.Start}
	if v.NDim() == 0 {
		res.Shape = []int64{1}
		res.Stride = []int64{1}
		return res
	}
	i := 0
	for i < v.NDim()-1 && v.Shape[i] == 1 {
		i++
	}
	shape := []int64{v.Shape[i]}
	stride := []int64{v.Stride[i]}
	if shape[0] == 0 {
		res.Shape = shape
		res.Stride = stride
		return res
	}
	last := 0
	for i++; i < v.NDim(); i++ {
		if v.Shape[i] == 0 {
			res.Shape = []int64{0}
			res.Stride = []int64{stride[0]}
			return res
		}
		if v.Shape[i] == 1 {
			continue
		}
		if v.Shape[i]*v.Stride[i] == stride[last] {
			shape[last] *= v.Shape[i]
			stride[last] = v.Stride[i]
		} else {
			shape = append(shape, v.Shape[i])
			stride = append(stride, v.Stride[i])
			last++
		}
	}
	// A trailing size-1 entry is only kept when it is the whole view.
	if last > 0 && shape[last] <= 1 {
		shape = shape[:last]
		stride = stride[:last]
	}
	res.Shape = shape
	res.Stride = stride
	return res
}

// Aligned reports whether the two views access the same base in the same
// pattern: after simplification they have identical start, shape and stride.
// Constants are aligned with everything.
func Aligned(a, b View) bool {
	if a.IsConstant() || b.IsConstant() {
		return true
	}
	sa := Simplify(a)
	sb := Simplify(b)
	return sa.Equal(sb)
}

// AlignedSameShape reports aligned views of pointwise-equal shape.
func AlignedSameShape(a, b View) bool {
	if a.NDim() != b.NDim() {
		return false
	}
	if !Aligned(a, b) {
		return false
	}
	return a.SameShape(b)
}

// Disjoint reports whether the two views definitely access no common
// element. The answer is a conservative over-approximation of non-overlap:
// it may be false on views that do not actually overlap, but it is never
// true on views that do. A negative stride in either view forces a false
// answer; this conservatism is deliberate.
func Disjoint(a, b View) bool {
	if a.IsConstant() || b.IsConstant() {
		return true
	}
	if a.Base != b.Base {
		return true
	}
	if a.NDim() != b.NDim() {
		// Views of different dimensionality are not analysed.
		return false
	}

	astart := a.Start
	bstart := b.Start
	stride := int64(1)
	for i := 0; i < a.NDim(); i++ {
		if a.Stride[i] < 0 || b.Stride[i] < 0 {
			return false
		}
		stride = gcd(a.Stride[i], b.Stride[i])
		if stride == 0 { // both strides zero: the dimension is virtual
			continue
		}
		as := astart / stride
		bs := bstart / stride
		ae := as + a.Shape[i]*(a.Stride[i]/stride)
		be := bs + b.Shape[i]*(b.Stride[i]/stride)
		if ae < bs || be < as {
			return true
		}
		astart %= stride
		bstart %= stride
	}
	if stride > 1 && a.Start%stride != b.Start%stride {
		return true
	}
	return false
}

func gcd(a, b int64) int64 {
	if b == 0 {
		return a
	}
	c := a % b
	for c != 0 {
		a = b
		b = c
		c = a % b
	}
	return b
}
