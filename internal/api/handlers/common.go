package handlers

import (
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/paygo-service/paygo_service/internal/domain/entities"
	derrors "github.com/paygo-service/paygo_service/internal/domain/errors"
)

// Error codes returned in the API error envelope
const (
	ErrCodeUnauthorized        = "UNAUTHORIZED"
	ErrCodeInvalidRequest      = "INVALID_REQUEST"
	ErrCodeValidationError     = "VALIDATION_ERROR"
	ErrCodeNotFound            = "NOT_FOUND"
	ErrCodeConflict            = "CONFLICT"
	ErrCodeInternalError       = "INTERNAL_ERROR"
	ErrCodeServiceUnavailable  = "SERVICE_UNAVAILABLE"
	ErrCodeInsufficientFunds   = "INSUFFICIENT_FUNDS"
	ErrCodeIncorrectCredential = "INCORRECT_CREDENTIAL"
	ErrCodePossibleDuplicate   = "POSSIBLE_DUPLICATE"
	ErrCodeDuplicateReference  = "DUPLICATE_REFERENCE"
)

// getAccountID extracts the authenticated account ID from the request context
func getAccountID(c *gin.Context) (uuid.UUID, error) {
	val, exists := c.Get("account_id")
	if !exists {
		return uuid.Nil, fmt.Errorf("account ID not found in context")
	}

	switch v := val.(type) {
	case uuid.UUID:
		return v, nil
	case string:
		return uuid.Parse(v)
	default:
		return uuid.Nil, fmt.Errorf("invalid account ID type in context")
	}
}

// respondError sends a standardized error response
func respondError(c *gin.Context, status int, code, message string, details map[string]interface{}) {
	c.JSON(status, entities.ErrorResponse{
		Code:    code,
		Message: message,
		Details: details,
	})
}

// respondUnauthorized sends an unauthorized error
func respondUnauthorized(c *gin.Context, message string) {
	respondError(c, http.StatusUnauthorized, ErrCodeUnauthorized, message, nil)
}

// respondBadRequest sends a bad request error
func respondBadRequest(c *gin.Context, message string) {
	respondError(c, http.StatusBadRequest, ErrCodeInvalidRequest, message, nil)
}

// respondDomainError maps a domain error to the right HTTP status and envelope
func respondDomainError(c *gin.Context, err error) {
	status := http.StatusInternalServerError
	code := ErrCodeInternalError

	switch {
	case derrors.IsInsufficientFunds(err):
		status = http.StatusUnprocessableEntity
		code = ErrCodeInsufficientFunds
	case derrors.IsIncorrectCredential(err):
		status = http.StatusForbidden
		code = ErrCodeIncorrectCredential
	case derrors.IsPossibleDuplicate(err):
		status = http.StatusConflict
		code = ErrCodePossibleDuplicate
	case derrors.IsDuplicateKey(err):
		status = http.StatusConflict
		code = ErrCodeDuplicateReference
	case derrors.IsNotFound(err):
		status = http.StatusNotFound
		code = ErrCodeNotFound
	case derrors.IsInvalidInput(err):
		status = http.StatusBadRequest
		code = ErrCodeValidationError
	case derrors.IsUnauthorized(err):
		status = http.StatusUnauthorized
		code = ErrCodeUnauthorized
	case derrors.IsConflict(err):
		status = http.StatusConflict
		code = ErrCodeConflict
	case derrors.IsServiceUnavailable(err):
		status = http.StatusServiceUnavailable
		code = ErrCodeServiceUnavailable
	}

	message := "an unexpected error occurred"
	var details map[string]interface{}
	if status != http.StatusInternalServerError {
		message = err.Error()
		details = derrors.GetErrorDetails(err)
	}
	respondError(c, status, code, message, details)
}
