// Copyright (c) 2014-2016 The btcsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package mempool

import (
	"errors"
	"fmt"
)

// ErrPoolClosed is returned by every operation once the pool has been shut
// down, including admissions whose verification was in flight at the time.
var ErrPoolClosed = errors.New("transaction pool is shutting down")

// ErrExceededMaxCycles may be returned (optionally wrapped) by a Verifier
// that aborted because the transaction consumed more than the cycle limit it
// was given.  The pool maps it to ErrCyclesLimitExceeded.
var ErrExceededMaxCycles = errors.New("verification exceeded the cycle limit")

// ErrorCode identifies a kind of error.
type ErrorCode int

// These constants are used to identify a specific RuleError.
const (
	// ErrDuplicateTransaction indicates the transaction is already
	// resident or was recently committed.
	ErrDuplicateTransaction ErrorCode = iota

	// ErrConflicted indicates the transaction is remembered as having lost
	// a conflict.
	ErrConflicted

	// ErrFeeTooLow indicates the fee rate is below the configured minimum
	// and no valid replacement applies.
	ErrFeeTooLow

	// ErrInsufficientFeeForReplacement indicates the transaction spends
	// an input already spent by resident transactions and does not beat
	// all of them.
	ErrInsufficientFeeForReplacement

	// ErrCyclesLimitExceeded indicates verification cost more cycles than
	// the per-transaction limit.
	ErrCyclesLimitExceeded

	// ErrVerificationFailed indicates the verifier found the transaction
	// invalid, or it failed a structural sanity check.
	ErrVerificationFailed

	// ErrPoolFull indicates admitting the transaction would require
	// evicting itself, or the caps cannot be met even after evicting
	// everything else that may be evicted.
	ErrPoolFull

	// ErrInternalInconsistency indicates a pool invariant is violated.  The
	// operation that detected it was refused without side effects.
	ErrInternalInconsistency

	// ErrOutOfOrderBlock indicates a commit or revert notification does not
	// follow the last processed block height.
	ErrOutOfOrderBlock

	// ErrInvalidFee indicates the fee calculator could not price the
	// transaction.
	ErrInvalidFee
)

// Map of ErrorCode values back to their constant names for pretty printing.
var errorCodeStrings = map[ErrorCode]string{
	ErrDuplicateTransaction:          "ErrDuplicateTransaction",
	ErrConflicted:                    "ErrConflicted",
	ErrFeeTooLow:                     "ErrFeeTooLow",
	ErrInsufficientFeeForReplacement: "ErrInsufficientFeeForReplacement",
	ErrCyclesLimitExceeded:           "ErrCyclesLimitExceeded",
	ErrVerificationFailed:            "ErrVerificationFailed",
	ErrPoolFull:                      "ErrPoolFull",
	ErrInternalInconsistency:         "ErrInternalInconsistency",
	ErrOutOfOrderBlock:               "ErrOutOfOrderBlock",
	ErrInvalidFee:                    "ErrInvalidFee",
}

// String returns the ErrorCode as a human-readable name.
func (e ErrorCode) String() string {
	if s := errorCodeStrings[e]; s != "" {
		return s
	}
	return fmt.Sprintf("Unknown ErrorCode (%d)", int(e))
}

// RuleError identifies a rule violation.  It is used to indicate that
// processing of a transaction or chain notification failed due to one of the
// pool rules.  The caller can use errors.As to determine if a failure was
// specifically due to a rule violation and access the ErrorCode field to
// ascertain the specific reason for the rule violation.
type RuleError struct {
	ErrorCode   ErrorCode // Describes the kind of error
	Description string    // Human readable description of the issue
	Err         error     // Underlying cause, if any
}

// Error satisfies the error interface and prints human-readable errors.
func (e RuleError) Error() string {
	if e.Err != nil {
		return e.Description + ": " + e.Err.Error()
	}
	return e.Description
}

// Unwrap returns the underlying cause so errors.Is can inspect it.
func (e RuleError) Unwrap() error {
	return e.Err
}

// ruleError creates an RuleError given a set of arguments.
func ruleError(c ErrorCode, desc string) RuleError {
	return RuleError{ErrorCode: c, Description: desc}
}

// wrapRuleError creates an RuleError that carries an underlying cause.
func wrapRuleError(c ErrorCode, desc string, err error) RuleError {
	return RuleError{ErrorCode: c, Description: desc, Err: err}
}

// IsErrorCode returns whether err is a RuleError with the given code.
func IsErrorCode(err error, c ErrorCode) bool {
	var rerr RuleError
	return errors.As(err, &rerr) && rerr.ErrorCode == c
}
