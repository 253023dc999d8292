package autodiff

// Derivatives answers partial-derivative queries against a tape.
//
// The first Dwrt call for an output runs one reverse pass; later calls for the
// same output reuse it until the output changes or the tape discards nodes.
// The zero value is ready to use.
type Derivatives struct {
	tape     *Tape
	root     int
	version  uint64
	adjoints []float64
}

// Compute runs the reverse pass rooted at out unless it is already cached.
// Constants have no graph and leave the cache empty.
func (d *Derivatives) Compute(out Scalar) {
	if out.tape == nil {
		d.Clear()
		return
	}
	if d.cached(out) {
		return
	}
	d.tape = out.tape
	d.root = int(out.idx)
	d.version = out.tape.version
	d.adjoints = out.tape.Adjoints(d.root)
}

func (d *Derivatives) cached(out Scalar) bool {
	return d.adjoints != nil &&
		d.tape == out.tape &&
		d.root == int(out.idx) &&
		d.version == out.tape.version
}

// Dwrt returns ∂out/∂in. It is 0 when either side is a constant or when in
// was recorded after out, since out cannot depend on it.
func (d *Derivatives) Dwrt(out, in Scalar) float64 {
	if out.tape == nil || in.tape == nil {
		return 0
	}
	if in.tape != out.tape {
		panic(ErrTapeMismatch)
	}
	d.Compute(out)
	i := int(in.idx)
	d.tape.check(i)
	if i >= len(d.adjoints) {
		return 0
	}
	return d.adjoints[i]
}

// Clear drops the cached reverse pass.
func (d *Derivatives) Clear() {
	d.tape = nil
	d.root = 0
	d.version = 0
	d.adjoints = nil
}
