package jwt

import (
	"errors"

	"github.com/golang-jwt/jwt/v5"

	"github.com/mbeoliero/unichat/pkg/errcode"
)

// ExternalClaims represents claims issued by the platform's identity provider.
// The user id is taken from user_id, or from sub when user_id is absent.
type ExternalClaims struct {
	UserId string `json:"user_id,omitempty"`
	jwt.RegisteredClaims
}

// ParseExternalToken parses a token from the identity provider and converts it
// to Claims bound to defaultPlatformId.
func ParseExternalToken(tokenString, secret string, defaultPlatformId int) (*Claims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &ExternalClaims{}, func(token *jwt.Token) (any, error) {
		return []byte(secret), nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, errcode.ErrTokenExpired
		}
		return nil, errcode.ErrTokenInvalid.Wrap(err)
	}

	extClaims, ok := token.Claims.(*ExternalClaims)
	if !ok || !token.Valid {
		return nil, errcode.ErrTokenInvalid
	}

	userId := extClaims.UserId
	if userId == "" {
		userId = extClaims.Subject
	}
	if userId == "" {
		return nil, errcode.ErrTokenInvalid
	}

	return &Claims{
		UserId:           userId,
		PlatformId:       defaultPlatformId,
		RegisteredClaims: extClaims.RegisteredClaims,
	}, nil
}
