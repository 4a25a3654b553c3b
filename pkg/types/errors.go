package types

import (
	"errors"
	"fmt"
)

// Category groups error codes by how a caller is expected to react.
type Category uint8

const (
	// CategoryValidation covers bad caller input detected before any
	// transaction is built. Never retried.
	CategoryValidation Category = iota + 1
	// CategoryVerification explains why a transaction is not a valid
	// registration. Verify* functions report it as a false result.
	CategoryVerification
	// CategoryChaining covers building on top of an ancestor that fails
	// verification.
	CategoryChaining
	// CategoryIntegrity covers inconsistent data handed to TXList.
	CategoryIntegrity
)

// String returns a human-readable name for the category.
func (c Category) String() string {
	switch c {
	case CategoryValidation:
		return "validation"
	case CategoryVerification:
		return "verification"
	case CategoryChaining:
		return "chaining"
	case CategoryIntegrity:
		return "integrity"
	default:
		return "unknown"
	}
}

// Code is a stable, machine-checkable error identifier.
type Code uint16

const (
	CodeInvalidUserPublicKey    Code = 100
	CodeInvalidServicePublicKey Code = 101
	CodeNameTooLong             Code = 102
	CodeInvalidNameCharacters   Code = 103
	CodeNonceLength             Code = 104
	CodeLocktimeRange           Code = 105
	CodeNameLengthMismatch      Code = 106
	CodeInvalidCommitData       Code = 107
	CodeInsufficientFunds       Code = 108
	CodeEmptyName               Code = 109
	CodeZeroAmount              Code = 110

	CodeVerification Code = 200

	CodeInvalidCommitment  Code = 300
	CodeBadLockTransaction Code = 301

	CodeLengthMismatch      Code = 400
	CodeOutputCountMismatch Code = 401
	CodeDuplicateTxid       Code = 402
	CodeUnknownTxid         Code = 403
	CodeUnknownOutput       Code = 404
)

// Category returns the category the code belongs to.
func (c Code) Category() Category {
	switch c {
	case CodeInvalidUserPublicKey, CodeInvalidServicePublicKey, CodeNameTooLong,
		CodeInvalidNameCharacters, CodeNonceLength, CodeLocktimeRange,
		CodeNameLengthMismatch, CodeInvalidCommitData, CodeInsufficientFunds,
		CodeEmptyName, CodeZeroAmount:
		return CategoryValidation
	case CodeVerification:
		return CategoryVerification
	case CodeInvalidCommitment, CodeBadLockTransaction:
		return CategoryChaining
	case CodeLengthMismatch, CodeOutputCountMismatch, CodeDuplicateTxid,
		CodeUnknownTxid, CodeUnknownOutput:
		return CategoryIntegrity
	default:
		return 0
	}
}

// String returns the code's stable identifier.
func (c Code) String() string {
	switch c {
	case CodeInvalidUserPublicKey:
		return "InvalidUserPublicKey"
	case CodeInvalidServicePublicKey:
		return "InvalidServicePublicKey"
	case CodeNameTooLong:
		return "NameTooLong"
	case CodeInvalidNameCharacters:
		return "InvalidNameCharacters"
	case CodeNonceLength:
		return "NonceLength"
	case CodeLocktimeRange:
		return "LocktimeRange"
	case CodeNameLengthMismatch:
		return "NameLengthMismatch"
	case CodeInvalidCommitData:
		return "InvalidCommitData"
	case CodeInsufficientFunds:
		return "InsufficientFunds"
	case CodeEmptyName:
		return "EmptyName"
	case CodeZeroAmount:
		return "ZeroAmount"
	case CodeVerification:
		return "Verification"
	case CodeInvalidCommitment:
		return "InvalidCommitment"
	case CodeBadLockTransaction:
		return "BadLockTransaction"
	case CodeLengthMismatch:
		return "LengthMismatch"
	case CodeOutputCountMismatch:
		return "OutputCountMismatch"
	case CodeDuplicateTxid:
		return "DuplicateTxid"
	case CodeUnknownTxid:
		return "UnknownTxid"
	case CodeUnknownOutput:
		return "UnknownOutput"
	default:
		return fmt.Sprintf("Code(%d)", uint16(c))
	}
}

// Error is a protocol error carrying a stable code.
// Two errors match under errors.Is when their codes are equal, so a
// sentinel matches any detailed error built from it.
type Error struct {
	Code Code
	Msg  string
}

// Error returns the message.
func (e *Error) Error() string {
	return e.Msg
}

// Is reports whether target carries the same code.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Code == e.Code
}

// Errorf builds an error with the given code and a formatted message.
func Errorf(code Code, format string, args ...interface{}) *Error {
	return &Error{Code: code, Msg: fmt.Sprintf(format, args...)}
}

// CodeOf returns the code of the first *Error in err's chain, or 0.
func CodeOf(err error) Code {
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return 0
}

// Sentinel errors, one per code.
var (
	ErrInvalidUserPublicKey    = &Error{CodeInvalidUserPublicKey, "invalid user public key"}
	ErrInvalidServicePublicKey = &Error{CodeInvalidServicePublicKey, "invalid service public key"}
	ErrNameTooLong             = &Error{CodeNameTooLong, "name is too long"}
	ErrInvalidNameCharacters   = &Error{CodeInvalidNameCharacters, "invalid character(s) in name"}
	ErrNonceLength             = &Error{CodeNonceLength, "invalid nonce size"}
	ErrLocktimeRange           = &Error{CodeLocktimeRange, "locktime must be at most 500000000 blocks"}
	ErrNameLengthMismatch      = &Error{CodeNameLengthMismatch, "name has incorrect length"}
	ErrInvalidCommitData       = &Error{CodeInvalidCommitData, "invalid commit data"}
	ErrInsufficientFunds       = &Error{CodeInsufficientFunds, "insufficient funds"}
	ErrEmptyName               = &Error{CodeEmptyName, "name is empty"}
	ErrZeroAmount              = &Error{CodeZeroAmount, "output amount must be positive"}

	ErrVerification = &Error{CodeVerification, "verification failed"}

	ErrInvalidCommitment  = &Error{CodeInvalidCommitment, "invalid commitment tx"}
	ErrBadLockTransaction = &Error{CodeBadLockTransaction, "bad lock transaction"}

	ErrLengthMismatch      = &Error{CodeLengthMismatch, "lists of transactions, spent outputs, and heights must be of same length"}
	ErrOutputCountMismatch = &Error{CodeOutputCountMismatch, "spent flags do not match output count"}
	ErrDuplicateTxid       = &Error{CodeDuplicateTxid, "duplicate txid"}
	ErrUnknownTxid         = &Error{CodeUnknownTxid, "unknown txid"}
	ErrUnknownOutput       = &Error{CodeUnknownOutput, "unknown output"}
)
