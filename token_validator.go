package auth

// TokenValidator validates tokens and extracts claims without tying callers
// to a specific signing implementation.
type TokenValidator interface {
	Validate(tokenString string) (AuthClaims, error)
}

// TokenValidatorFunc adapts a function into a TokenValidator.
type TokenValidatorFunc func(tokenString string) (AuthClaims, error)

// Validate satisfies the TokenValidator interface.
func (f TokenValidatorFunc) Validate(tokenString string) (AuthClaims, error) {
	if f == nil {
		return nil, ErrTokenMalformed
	}
	return f(tokenString)
}

// MultiTokenValidator tries validators in order until one succeeds. It is
// used during signing key rotation: a token signed with a retired key is
// forged for the current validator and valid for the previous one.
// ErrTokenForged means "try next"; malformed and expired tokens stop the
// chain since no other key can change the outcome.
type MultiTokenValidator struct {
	validators []TokenValidator
}

// NewMultiTokenValidator filters nil validators and returns a composite validator.
func NewMultiTokenValidator(validators ...TokenValidator) *MultiTokenValidator {
	filtered := make([]TokenValidator, 0, len(validators))
	for _, v := range validators {
		if v != nil {
			filtered = append(filtered, v)
		}
	}
	return &MultiTokenValidator{validators: filtered}
}

// Validate satisfies the TokenValidator interface.
func (m *MultiTokenValidator) Validate(tokenString string) (AuthClaims, error) {
	var lastErr error
	for _, v := range m.validators {
		claims, err := v.Validate(tokenString)
		if err == nil {
			return claims, nil
		}
		if IsForgedError(err) {
			lastErr = err
			continue
		}
		return nil, err
	}
	if lastErr != nil {
		return nil, lastErr
	}
	return nil, ErrTokenMalformed
}

// NewRotatingValidator verifies with current first and then with a
// validator per retired key. Retired keys never sign.
func NewRotatingValidator(current *TokenServiceImpl, previousKeys []string, opts ...TokenServiceOption) (TokenValidator, error) {
	if len(previousKeys) == 0 {
		return current, nil
	}

	validators := []TokenValidator{current}
	for _, key := range previousKeys {
		if key == "" {
			continue
		}
		prev, err := NewTokenService([]byte(key), current.ttl, append([]TokenServiceOption{
			WithIssuer(current.issuer),
			WithAudience(current.audience...),
			WithClock(current.now),
			WithTokenLogger(current.logger),
		}, opts...)...)
		if err != nil {
			return nil, err
		}
		validators = append(validators, prev)
	}

	return NewMultiTokenValidator(validators...), nil
}
