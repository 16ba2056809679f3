package engine

import "errors"

var (
	ErrColumnOutOfRange = errors.New("column out of range")
	ErrTooManyRunners   = errors.New("more than 3 active runners")
	ErrNegativeProgress = errors.New("negative progress")
	ErrCompletedRunner  = errors.New("runner on a completed column")
	ErrOrphanProgress   = errors.New("progress without a runner")
	ErrRunnerLimit      = errors.New("choice exceeds runner limit")
	ErrUnplayableChoice = errors.New("choice advances an unplayable column")
	ErrInvalidDice      = errors.New("invalid dice")
)
