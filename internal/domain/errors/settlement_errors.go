package errors

import (
	"errors"
	"fmt"
)

// Settlement error categories. These drive the HTTP mapping and, more
// importantly, the compensation decision: only ErrVendorRejected releases
// reserved funds, ErrVendorAmbiguous never does.
var (
	// ErrInsufficientFunds indicates the wallet balance cannot cover the debit
	ErrInsufficientFunds = errors.New("insufficient funds")

	// ErrIncorrectCredential indicates the transaction PIN did not match
	ErrIncorrectCredential = errors.New("incorrect credential")

	// ErrPossibleDuplicate indicates a matching purchase was attempted within
	// the duplicate suppression window
	ErrPossibleDuplicate = errors.New("possible duplicate transaction")

	// ErrDuplicateKey indicates a reference or source reference was already used
	ErrDuplicateKey = errors.New("duplicate key")

	// ErrVendorRejected indicates the vendor definitively declined the order
	ErrVendorRejected = errors.New("vendor rejected order")

	// ErrVendorAmbiguous indicates the vendor outcome is unknown; funds must
	// remain reserved until the order is resolved out of band
	ErrVendorAmbiguous = errors.New("vendor outcome ambiguous")

	// ErrAlreadyFinalized indicates the order reached a terminal status before
	// this signal arrived; the late signal is benign and must be a no-op
	ErrAlreadyFinalized = errors.New("order already finalized")

	// ErrInvalidSignature indicates a webhook signature did not verify
	ErrInvalidSignature = errors.New("invalid webhook signature")
)

// InsufficientFundsError creates an insufficient funds error
func InsufficientFundsError(balance, amount string) *DomainError {
	return &DomainError{
		Err:     ErrInsufficientFunds,
		Code:    "INSUFFICIENT_FUNDS",
		Message: "wallet balance is insufficient for this purchase",
		Details: map[string]interface{}{
			"balance": balance,
			"amount":  amount,
		},
	}
}

// IncorrectCredentialError creates a PIN mismatch error
func IncorrectCredentialError() *DomainError {
	return &DomainError{
		Err:     ErrIncorrectCredential,
		Code:    "INCORRECT_CREDENTIAL",
		Message: "transaction PIN is incorrect",
	}
}

// PossibleDuplicateError creates a duplicate suppression error
func PossibleDuplicateError(windowSeconds int) *DomainError {
	return &DomainError{
		Err:     ErrPossibleDuplicate,
		Code:    "POSSIBLE_DUPLICATE",
		Message: fmt.Sprintf("a matching purchase was attempted within the last %d seconds", windowSeconds),
	}
}

// DuplicateKeyError creates a duplicate key error for a unique constraint hit
func DuplicateKeyError(field, value string) *DomainError {
	return &DomainError{
		Err:     ErrDuplicateKey,
		Code:    "DUPLICATE_KEY",
		Message: fmt.Sprintf("%s %q has already been used", field, value),
	}
}

// VendorRejectedError creates a definitive vendor rejection error
func VendorRejectedError(vendor, reason string) *DomainError {
	return &DomainError{
		Err:     ErrVendorRejected,
		Code:    "VENDOR_REJECTED",
		Message: reason,
		Details: map[string]interface{}{
			"vendor": vendor,
		},
	}
}

// VendorAmbiguousError creates an ambiguous outcome error
func VendorAmbiguousError(vendor string, cause error) *DomainError {
	de := &DomainError{
		Err:     ErrVendorAmbiguous,
		Code:    "VENDOR_AMBIGUOUS",
		Message: "order outcome could not be confirmed; it will be resolved automatically",
		Details: map[string]interface{}{
			"vendor": vendor,
		},
	}
	if cause != nil {
		de.Details["cause"] = cause.Error()
	}
	return de
}

// AlreadyFinalizedError creates an already finalized error
func AlreadyFinalizedError(reference string) *DomainError {
	return &DomainError{
		Err:     ErrAlreadyFinalized,
		Code:    "ALREADY_FINALIZED",
		Message: fmt.Sprintf("order %s is already in a terminal status", reference),
	}
}

// IsInsufficientFunds checks for a balance failure
func IsInsufficientFunds(err error) bool {
	return errors.Is(err, ErrInsufficientFunds)
}

// IsIncorrectCredential checks for a PIN mismatch
func IsIncorrectCredential(err error) bool {
	return errors.Is(err, ErrIncorrectCredential)
}

// IsPossibleDuplicate checks for duplicate suppression
func IsPossibleDuplicate(err error) bool {
	return errors.Is(err, ErrPossibleDuplicate)
}

// IsDuplicateKey checks for a unique constraint violation
func IsDuplicateKey(err error) bool {
	return errors.Is(err, ErrDuplicateKey)
}

// IsVendorRejected checks for a definitive vendor decline
func IsVendorRejected(err error) bool {
	return errors.Is(err, ErrVendorRejected)
}

// IsVendorAmbiguous checks for an unresolved vendor outcome
func IsVendorAmbiguous(err error) bool {
	return errors.Is(err, ErrVendorAmbiguous)
}

// IsAlreadyFinalized checks for a late signal against a terminal order
func IsAlreadyFinalized(err error) bool {
	return errors.Is(err, ErrAlreadyFinalized)
}
