package scan

import "errors"

var (
	ErrInvalidMetric = errors.New("invalid sweep metric")
	ErrInvalidOp     = errors.New("invalid target operation")
	ErrInvalidRange  = errors.New("invalid target range")
	ErrInvalidSize   = errors.New("invalid runner count")
)
