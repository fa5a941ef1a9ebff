package auth

import (
	"strings"

	validation "github.com/go-ozzo/ozzo-validation/v4"
	"github.com/go-ozzo/ozzo-validation/v4/is"
)

const (
	DefaultPasswordMinLength = 6
	// bcrypt ignores everything past 72 bytes
	DefaultPasswordMaxLength = 72
	maxIdentifierLength      = 254
)

// PasswordPolicy decides whether a secret is acceptable
type PasswordPolicy struct {
	MinLength int
	MaxLength int
}

// DefaultPasswordPolicy returns the policy used when nothing is configured
func DefaultPasswordPolicy() PasswordPolicy {
	return PasswordPolicy{
		MinLength: DefaultPasswordMinLength,
		MaxLength: DefaultPasswordMaxLength,
	}
}

func (p PasswordPolicy) normalized() PasswordPolicy {
	if p.MinLength <= 0 {
		p.MinLength = DefaultPasswordMinLength
	}
	if p.MaxLength <= 0 || p.MaxLength > DefaultPasswordMaxLength {
		p.MaxLength = DefaultPasswordMaxLength
	}
	if p.MinLength > p.MaxLength {
		p.MinLength = p.MaxLength
	}
	return p
}

// Rules returns the ozzo rules for a secret field
func (p PasswordPolicy) Rules() []validation.Rule {
	p = p.normalized()
	return []validation.Rule{
		validation.Required,
		validation.Length(p.MinLength, p.MaxLength),
		validation.By(maxBytes(DefaultPasswordMaxLength)),
	}
}

func maxBytes(n int) validation.RuleFunc {
	return func(value any) error {
		s, _ := value.(string)
		if len(s) > n {
			return validation.NewError("validation_length_too_long", "the length must be no more than {{.max}} bytes").
				SetParams(map[string]any{"max": n})
		}
		return nil
	}
}

// Check validates secret and returns an InvalidInput error on failure
func (p PasswordPolicy) Check(secret string) error {
	err := validation.Errors{
		"secret": validation.Validate(secret, p.Rules()...),
	}.Filter()
	return NewInvalidInputError(err)
}

// IdentifierRules are the ozzo rules for an account identifier
func IdentifierRules() []validation.Rule {
	return []validation.Rule{
		validation.Required,
		validation.Length(3, maxIdentifierLength),
		is.EmailFormat,
	}
}

// NormalizeIdentifier trims and lower cases an identifier
func NormalizeIdentifier(identifier string) string {
	return strings.ToLower(strings.TrimSpace(identifier))
}

// CheckIdentifier validates an already normalized identifier
func CheckIdentifier(identifier string) error {
	err := validation.Errors{
		"identifier": validation.Validate(identifier, IdentifierRules()...),
	}.Filter()
	return NewInvalidInputError(err)
}
