package domain

import "fmt"

// AppError is the base domain error type.
type AppError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Status  int    `json:"-"`
	Cause   error  `json:"-"`
}

func (e *AppError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *AppError) Unwrap() error { return e.Cause }

// Standard domain error constructors.

func ErrBadSelection(msg string) *AppError {
	return &AppError{Code: "BAD_SELECTION", Message: msg, Status: 400}
}

func ErrOutOfRange(msg string) *AppError {
	return &AppError{Code: "OUT_OF_RANGE", Message: msg, Status: 400}
}

func ErrUnknownRound(roundNumber uint64) *AppError {
	return &AppError{Code: "UNKNOWN_ROUND", Message: fmt.Sprintf("round %d is not the current round", roundNumber), Status: 400}
}

func ErrBettingClosed() *AppError {
	return &AppError{Code: "BETTING_CLOSED", Message: "betting is closed for this round", Status: 409}
}

func ErrInsufficientFunds() *AppError {
	return &AppError{Code: "INSUFFICIENT_FUNDS", Message: "insufficient funds", Status: 402}
}

func ErrConflict(msg string) *AppError {
	return &AppError{Code: "CONFLICT", Message: msg, Status: 409}
}

func ErrUnauthenticated(msg string) *AppError {
	return &AppError{Code: "UNAUTHENTICATED", Message: msg, Status: 401}
}

func ErrRateLimited(msg string) *AppError {
	return &AppError{Code: "RATE_LIMITED", Message: msg, Status: 429}
}

func ErrLedgerUnavailable(cause error) *AppError {
	return &AppError{Code: "LEDGER_UNAVAILABLE", Message: "ledger temporarily unavailable", Status: 503, Cause: cause}
}

func ErrInternal(msg string, cause error) *AppError {
	return &AppError{Code: "INTERNAL", Message: msg, Status: 500, Cause: cause}
}
