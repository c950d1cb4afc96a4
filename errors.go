package poolsentry

import (
	"errors"
	"fmt"

	"github.com/ethereum/go-ethereum/common"

	"github.com/poolsentry/poolsentry/swap"
)

// SystemError is a base type for errors originating from the Sentry.
type SystemError struct {
	BlockNumber uint64
	Err         error
}

func (e *SystemError) Error() string {
	return fmt.Sprintf("block %d: %v", e.BlockNumber, e.Err)
}

func (e *SystemError) Unwrap() error {
	return e.Err
}

// DecodeError indicates a delivered log that could not be decoded as a
// pool-creation event. The log is dropped; nothing downstream runs.
type DecodeError struct {
	SystemError
	TxHash common.Hash
}

func (e *DecodeError) Error() string {
	return fmt.Sprintf("block %d: failed to decode log from tx %s: %v", e.BlockNumber, e.TxHash.Hex(), e.Err)
}

// ResolveError indicates a failure to assemble the creator's provenance:
// the creating transaction, its receipt, the transaction history or the
// verification status. The event is discarded unevaluated.
type ResolveError struct {
	SystemError
	Pool    common.Address
	Creator common.Address
	Stage   string
}

func (e *ResolveError) Error() string {
	return fmt.Sprintf("block %d: failed to resolve %s for pool %s: %v", e.BlockNumber, e.Stage, e.Pool.Hex(), e.Err)
}

// ExecutionError indicates that an event passed the consensus but the swap
// attempt failed. Reverted reports whether the failure was a simulation
// revert, as opposed to a transport or signing failure.
type ExecutionError struct {
	SystemError
	Pool     common.Address
	Token    common.Address
	Reverted bool
}

func (e *ExecutionError) Error() string {
	return fmt.Sprintf("block %d: swap for pool %s failed (reverted=%t): %v", e.BlockNumber, e.Pool.Hex(), e.Reverted, e.Err)
}

// RecordError indicates a failure to record an evaluation outcome in the
// registry, a critical internal state mismatch.
type RecordError struct {
	SystemError
	Pool common.Address
}

func (e *RecordError) Error() string {
	return fmt.Sprintf("CRITICAL block %d: failed to record evaluation for pool %s: %v", e.BlockNumber, e.Pool.Hex(), e.Err)
}

// PrunerError indicates a failure during the periodic pruning process.
type PrunerError struct {
	Err  error
	Pool common.Address
}

func (e *PrunerError) Error() string {
	return fmt.Sprintf("pruner: failed to process pool %s: %v", e.Pool.Hex(), e.Err)
}

func (e *PrunerError) Unwrap() error {
	return e.Err
}

// determineErrorType maps an error to its metrics label.
func determineErrorType(err error) string {
	var (
		decodeErr  *DecodeError
		resolveErr *ResolveError
		execErr    *ExecutionError
		recordErr  *RecordError
		prunerErr  *PrunerError
		revertErr  *swap.RevertError
		sysErr     *SystemError
	)
	switch {
	case errors.As(err, &decodeErr):
		return "decode"
	case errors.As(err, &resolveErr):
		return "resolve"
	case errors.As(err, &execErr):
		return "execution"
	case errors.As(err, &revertErr):
		return "execution"
	case errors.As(err, &recordErr):
		return "record"
	case errors.As(err, &prunerErr):
		return "pruner"
	case errors.As(err, &sysErr):
		return "system"
	default:
		return "unknown"
	}
}
