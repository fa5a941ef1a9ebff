package auth

import (
	"errors"
	"fmt"
	"net/http"

	validation "github.com/go-ozzo/ozzo-validation/v4"
	goerrors "github.com/goliatone/go-errors"
)

const (
	TextCodeInvalidInput          = "INVALID_INPUT"
	TextCodeUnauthorized          = "UNAUTHORIZED"
	TextCodeAccountExists         = "ACCOUNT_EXISTS"
	TextCodeInvalidOrExpiredToken = "INVALID_OR_EXPIRED_TOKEN"
	TextCodeDependencyUnavailable = "DEPENDENCY_UNAVAILABLE"
	TextCodeInternal              = "INTERNAL_ERROR"
	TextCodeTokenForged           = "TOKEN_FORGED"
	TextCodeResetTokenNotFound    = "RESET_TOKEN_NOT_FOUND"
)

// Sentinels are shared values: match them with errors.Is and never call the
// With* mutators on them. Attach context with fmt.Errorf("%w") instead.
var (
	// ErrInvalidInput is returned for malformed identifiers and weak secrets
	ErrInvalidInput = goerrors.New("invalid input", goerrors.CategoryValidation).
			WithCode(goerrors.CodeBadRequest).
			WithTextCode(TextCodeInvalidInput)

	// ErrInvalidCredentials is the single answer for unknown account and wrong secret
	ErrInvalidCredentials = goerrors.New("invalid credentials", goerrors.CategoryAuth).
				WithCode(goerrors.CodeUnauthorized).
				WithTextCode(goerrors.TextCodeInvalidCredentials)

	// ErrUnauthorized is what callers see for any rejected identity token
	ErrUnauthorized = goerrors.New("unauthorized", goerrors.CategoryAuth).
			WithCode(goerrors.CodeUnauthorized).
			WithTextCode(TextCodeUnauthorized)

	ErrAccountExists = goerrors.New("account already exists", goerrors.CategoryConflict).
				WithCode(goerrors.CodeConflict).
				WithTextCode(TextCodeAccountExists)

	ErrInvalidOrExpiredToken = goerrors.New("invalid or expired password reset token", goerrors.CategoryBadInput).
					WithCode(goerrors.CodeBadRequest).
					WithTextCode(TextCodeInvalidOrExpiredToken)

	ErrDependencyUnavailable = goerrors.New("dependency unavailable", goerrors.CategoryExternal).
					WithCode(goerrors.CodeInternal).
					WithTextCode(TextCodeDependencyUnavailable)

	ErrInternal = goerrors.New("internal error", goerrors.CategoryInternal).
			WithCode(goerrors.CodeInternal).
			WithTextCode(TextCodeInternal)

	// ErrRateLimited is written by the limiter in front of login and reset routes
	ErrRateLimited = goerrors.New("too many requests", goerrors.CategoryRateLimit).
			WithCode(goerrors.CodeTooManyRequests).
			WithTextCode(goerrors.TextCodeTooManyAttempts)
)

// Token codec failures. Exactly one of these is returned by Verify.
var (
	ErrTokenMalformed = goerrors.New("token is malformed", goerrors.CategoryAuth).
				WithCode(goerrors.CodeUnauthorized).
				WithTextCode(goerrors.TextCodeTokenMalformed)

	ErrTokenForged = goerrors.New("token signature is invalid", goerrors.CategoryAuth).
			WithCode(goerrors.CodeUnauthorized).
			WithTextCode(TextCodeTokenForged)

	ErrTokenExpired = goerrors.New("token is expired", goerrors.CategoryAuth).
			WithCode(goerrors.CodeUnauthorized).
			WithTextCode(goerrors.TextCodeTokenExpired)
)

// Collaborator level errors, never surfaced over HTTP as is.
var (
	// ErrIdentityNotFound is the error we return for non found identities
	ErrIdentityNotFound = goerrors.New("identity not found", goerrors.CategoryNotFound).
				WithCode(goerrors.CodeNotFound)

	// ErrResetTokenNotFound covers unknown, consumed and expired reset tokens alike
	ErrResetTokenNotFound = goerrors.New("reset token not found", goerrors.CategoryNotFound).
				WithCode(goerrors.CodeNotFound).
				WithTextCode(TextCodeResetTokenNotFound)

	ErrMismatchedHashAndPassword = goerrors.New("hashed secret does not match", goerrors.CategoryAuth).
					WithCode(goerrors.CodeUnauthorized).
					WithTextCode(goerrors.TextCodeInvalidCredentials)

	ErrNoEmptyString = goerrors.New("empty secret not allowed", goerrors.CategoryValidation).
				WithCode(goerrors.CodeBadRequest).
				WithTextCode(goerrors.TextCodeEmptyPassword)

	// ErrUnableToFindClaims is returned when a request carries no verified identity
	ErrUnableToFindClaims = goerrors.New("unable to find claims", goerrors.CategoryAuth).
				WithCode(goerrors.CodeUnauthorized).
				WithTextCode(TextCodeUnauthorized)
)

// NewInvalidInputError converts ozzo validation errors into an InvalidInput
// error that keeps the per field messages and still matches ErrInvalidInput.
func NewInvalidInputError(err error) error {
	if err == nil {
		return nil
	}

	var vErrs validation.Errors
	if !errors.As(err, &vErrs) {
		return withCause(ErrInvalidInput, err)
	}

	richErr := goerrors.FromOzzoValidation(vErrs, ErrInvalidInput.Message)
	richErr.Code = ErrInvalidInput.Code
	richErr.TextCode = ErrInvalidInput.TextCode
	richErr.Source = ErrInvalidInput
	return richErr
}

// NewDependencyError marks a collaborator failure or timeout
func NewDependencyError(cause error, operation string) error {
	if cause == nil {
		return nil
	}
	return fmt.Errorf("%s: %w: %w", operation, ErrDependencyUnavailable, cause)
}

func withCause(sentinel *goerrors.Error, cause error) error {
	return fmt.Errorf("%w: %w", sentinel, cause)
}

// IsTokenExpiredError will check for expired tokens
func IsTokenExpiredError(err error) bool {
	return errors.Is(err, ErrTokenExpired)
}

// IsMalformedError will check for unparseable tokens
func IsMalformedError(err error) bool {
	return errors.Is(err, ErrTokenMalformed)
}

// IsForgedError will check for tokens failing signature checks
func IsForgedError(err error) bool {
	return errors.Is(err, ErrTokenForged)
}

// IsTokenError reports any codec level rejection
func IsTokenError(err error) bool {
	return IsTokenExpiredError(err) || IsMalformedError(err) || IsForgedError(err)
}

// ErrorBody is the public part of an error, without source, location or metadata.
type ErrorBody struct {
	Category         string                    `json:"category"`
	TextCode         string                    `json:"text_code,omitempty"`
	Message          string                    `json:"message"`
	ValidationErrors goerrors.ValidationErrors `json:"validation_errors,omitempty"`
}

// ErrorResponse is the JSON envelope written for failed requests
type ErrorResponse struct {
	Error ErrorBody `json:"error"`
}

// PublicError maps any error to its HTTP status and sanitized body.
// Internal and dependency failures collapse to their generic message.
func PublicError(err error) (int, ErrorResponse) {
	var richErr *goerrors.Error
	if !goerrors.As(err, &richErr) {
		richErr = ErrInternal
	}

	switch {
	case errors.Is(err, ErrDependencyUnavailable):
		richErr = ErrDependencyUnavailable
	case richErr.Category == goerrors.CategoryExternal:
		richErr = ErrDependencyUnavailable
	case richErr.Category == goerrors.CategoryInternal,
		richErr.Category == goerrors.CategoryOperation,
		richErr.Category == goerrors.CategoryNotFound:
		richErr = ErrInternal
	case IsTokenError(err):
		richErr = ErrUnauthorized
	}

	body := ErrorBody{
		Category:         richErr.Category.String(),
		TextCode:         richErr.TextCode,
		Message:          richErr.Message,
		ValidationErrors: richErr.ValidationErrors,
	}

	return HTTPStatusFor(richErr), ErrorResponse{Error: body}
}

// HTTPStatusFor returns the status code for a rich error, falling back to
// its category when no explicit code was set.
func HTTPStatusFor(richErr *goerrors.Error) int {
	if richErr == nil {
		return http.StatusInternalServerError
	}

	if richErr.Code != 0 {
		return richErr.Code
	}

	switch richErr.Category {
	case goerrors.CategoryValidation, goerrors.CategoryBadInput:
		return http.StatusBadRequest
	case goerrors.CategoryAuth:
		return http.StatusUnauthorized
	case goerrors.CategoryAuthz:
		return http.StatusForbidden
	case goerrors.CategoryConflict:
		return http.StatusConflict
	case goerrors.CategoryRateLimit:
		return http.StatusTooManyRequests
	default:
		return http.StatusInternalServerError
	}
}
