package lockstep

import (
	"errors"

	"github.com/lockstep-auth/lockstep/jwt"
)

// ValidateAccessToken checks an access token's signature, algorithm, and
// expiry and returns its claims. The check is purely cryptographic: no
// session lookup is performed, so a token stays valid until expiry even
// after logout.
func (e *Engine) ValidateAccessToken(tokenStr string) (*jwt.AccessClaims, error) {
	if err := e.ready(); err != nil {
		return nil, err
	}

	claims, err := e.tokens.Parse(tokenStr)
	if err != nil {
		return nil, errors.Join(ErrTokenInvalid, err)
	}

	return claims, nil
}
