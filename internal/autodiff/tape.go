package autodiff

import "fmt"

// OpKind identifies the operation a tape node was recorded for.
type OpKind uint8

// Recorded operation kinds.
const (
	OpLeaf OpKind = iota
	OpAdd
	OpSub
	OpMul
	OpDiv
	OpNeg
	OpScale
	OpSqrt
	OpExp
	OpLog
	OpAbs
	OpPow
	OpMin
	OpMax
	OpClamp
	OpSum
	OpDot
)

var opNames = [...]string{
	OpLeaf:  "leaf",
	OpAdd:   "add",
	OpSub:   "sub",
	OpMul:   "mul",
	OpDiv:   "div",
	OpNeg:   "neg",
	OpScale: "scale",
	OpSqrt:  "sqrt",
	OpExp:   "exp",
	OpLog:   "log",
	OpAbs:   "abs",
	OpPow:   "pow",
	OpMin:   "min",
	OpMax:   "max",
	OpClamp: "clamp",
	OpSum:   "sum",
	OpDot:   "dot",
}

// String returns the operation name.
func (k OpKind) String() string {
	if int(k) < len(opNames) {
		return opNames[k]
	}
	return fmt.Sprintf("OpKind(%d)", uint8(k))
}

// Node is one recorded differentiable operation.
//
// Operand indices and local partials live in flat slices owned by the tape;
// first and n locate this node's slice of them.
type Node struct {
	Kind  OpKind
	first int32
	n     int32
}

// NumOperands returns the number of operands of the node.
func (n Node) NumOperands() int {
	return int(n.n)
}

// Tape records scalar operations in creation order and computes adjoints
// with a reverse pass over them.
//
// Because operands are always recorded before the nodes that use them, node
// order is a topological order and the reverse pass is a single backward sweep.
//
// A Tape is not safe for concurrent use. One optimisation stream owns it.
//
// Usage:
//
//	tape := NewTape()
//	x := tape.Var(3)          // leaf, created before the loop
//	tape.Push()
//	y := Mul(x, x)
//	var d Derivatives
//	dydx := d.Dwrt(y, x)      // 6
//	tape.Pop()                // y's node is gone, x survives
type Tape struct {
	nodes    []Node
	operands []int32
	partials []float64

	checkpoints []int // saved sizes, innermost last
	version     uint64
}

// NewTape creates an empty tape.
func NewTape() *Tape {
	return &Tape{
		nodes:    make([]Node, 0, 1024),
		operands: make([]int32, 0, 2048),
		partials: make([]float64, 0, 2048),
	}
}

// Leaf registers an independent variable and returns its index.
func (t *Tape) Leaf() int {
	idx := len(t.nodes)
	t.nodes = append(t.nodes, Node{Kind: OpLeaf, first: int32(len(t.operands))})
	return idx
}

// Var registers an independent variable holding v.
func (t *Tape) Var(v float64) Scalar {
	return Scalar{v: v, idx: int32(t.Leaf()), tape: t}
}

// Record appends a derived node with the given operands and the local partial
// derivative of the node with respect to each operand. It returns the new index.
//
// Every operand must already be on the tape; otherwise Record panics with
// ErrOperandOrder.
func (t *Tape) Record(kind OpKind, operands []int, partials []float64) int {
	if len(operands) != len(partials) {
		panic(fmt.Errorf("%w: %d operands, %d partials", ErrPartialsMismatch, len(operands), len(partials)))
	}
	idx := len(t.nodes)
	first := len(t.operands)
	for i, op := range operands {
		if op < 0 || op >= idx {
			t.operands = t.operands[:first]
			t.partials = t.partials[:first]
			panic(fmt.Errorf("%w: operand %d of %s node %d", ErrOperandOrder, op, kind, idx))
		}
		t.operands = append(t.operands, int32(op))
		t.partials = append(t.partials, partials[i])
	}
	t.nodes = append(t.nodes, Node{Kind: kind, first: int32(first), n: int32(len(operands))})
	return idx
}

// record1 and record2 are the allocation-free paths used by the arithmetic
// functions. They enforce the same operand order as Record, which rejects
// Scalars whose nodes were discarded by Pop or Truncate.
func (t *Tape) record1(kind OpKind, a int32, da float64) int32 {
	idx := int32(len(t.nodes))
	if a >= idx {
		panic(fmt.Errorf("%w: operand %d of %s node %d", ErrOperandOrder, a, kind, idx))
	}
	t.nodes = append(t.nodes, Node{Kind: kind, first: int32(len(t.operands)), n: 1})
	t.operands = append(t.operands, a)
	t.partials = append(t.partials, da)
	return idx
}

func (t *Tape) record2(kind OpKind, a int32, da float64, b int32, db float64) int32 {
	idx := int32(len(t.nodes))
	if a >= idx || b >= idx {
		panic(fmt.Errorf("%w: operands %d, %d of %s node %d", ErrOperandOrder, a, b, kind, idx))
	}
	t.nodes = append(t.nodes, Node{Kind: kind, first: int32(len(t.operands)), n: 2})
	t.operands = append(t.operands, a, b)
	t.partials = append(t.partials, da, db)
	return idx
}

// Node returns the node at index i. It panics with ErrIndexOutOfRange if the
// node was never created or has been discarded.
func (t *Tape) Node(i int) Node {
	t.check(i)
	return t.nodes[i]
}

// Operands returns the operand indices and local partials of node i.
// The returned slices alias tape storage and must not be modified.
func (t *Tape) Operands(i int) ([]int32, []float64) {
	t.check(i)
	n := t.nodes[i]
	return t.operands[n.first : n.first+n.n], t.partials[n.first : n.first+n.n]
}

func (t *Tape) check(i int) {
	if i < 0 || i >= len(t.nodes) {
		panic(fmt.Errorf("%w: %d (size %d)", ErrIndexOutOfRange, i, len(t.nodes)))
	}
}

// Size returns the number of live nodes.
func (t *Tape) Size() int {
	return len(t.nodes)
}

// Depth returns the number of open checkpoints.
func (t *Tape) Depth() int {
	return len(t.checkpoints)
}

// Version increases every time nodes are discarded. Cached adjoints are only
// valid for the version they were computed at.
func (t *Tape) Version() uint64 {
	return t.version
}

// Push saves the current size as a checkpoint.
func (t *Tape) Push() {
	t.checkpoints = append(t.checkpoints, len(t.nodes))
}

// Pop discards every node created since the matching Push and closes the
// checkpoint. Nodes created before that Push, parameter leaves in particular,
// are untouched.
func (t *Tape) Pop() {
	if len(t.checkpoints) == 0 {
		panic(ErrEmptyCheckpointStack)
	}
	size := t.checkpoints[len(t.checkpoints)-1]
	t.checkpoints = t.checkpoints[:len(t.checkpoints)-1]
	t.truncate(size)
}

// Truncate discards all nodes at index size and above outside the Push/Pop
// discipline. It refuses to cut below the innermost open checkpoint and to
// discard any leaf node, since leaves are the values callers keep handles to.
func (t *Tape) Truncate(size int) error {
	floor := 0
	if len(t.checkpoints) > 0 {
		floor = t.checkpoints[len(t.checkpoints)-1]
	}
	if size < floor || size > len(t.nodes) {
		return fmt.Errorf("%w: size %d, allowed [%d, %d]", ErrTruncateRange, size, floor, len(t.nodes))
	}
	for i := size; i < len(t.nodes); i++ {
		if t.nodes[i].Kind == OpLeaf {
			return fmt.Errorf("%w: leaf %d", ErrLeafInRange, i)
		}
	}
	t.truncate(size)
	return nil
}

func (t *Tape) truncate(size int) {
	if size == len(t.nodes) {
		return
	}
	first := t.nodes[size].first
	t.nodes = t.nodes[:size]
	t.operands = t.operands[:first]
	t.partials = t.partials[:first]
	t.version++
}

// Adjoints runs the reverse pass rooted at node root and returns the adjoint
// of every node up to and including root.
func (t *Tape) Adjoints(root int) []float64 {
	t.check(root)
	adj := make([]float64, root+1)
	adj[root] = 1
	for i := root; i >= 0; i-- {
		a := adj[i]
		if a == 0 {
			continue
		}
		n := t.nodes[i]
		ops := t.operands[n.first : n.first+n.n]
		parts := t.partials[n.first : n.first+n.n]
		for k, op := range ops {
			adj[op] += a * parts[k]
		}
	}
	return adj
}
