package autodiff

import "errors"

// Contract violations. These indicate a caller bug and are raised with panic.
var (
	ErrEmptyCheckpointStack = errors.New("autodiff: pop on empty checkpoint stack")
	ErrIndexOutOfRange      = errors.New("autodiff: node index out of range")
	ErrOperandOrder         = errors.New("autodiff: operand index not older than node")
	ErrPartialsMismatch     = errors.New("autodiff: operands and partials differ in length")
	ErrTapeMismatch         = errors.New("autodiff: scalars recorded on different tapes")
)

// Errors returned by Truncate.
var (
	ErrTruncateRange = errors.New("autodiff: truncation size outside live checkpoint range")
	ErrLeafInRange   = errors.New("autodiff: truncation would discard a leaf node")
)
