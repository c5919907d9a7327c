package auth

import (
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/zkpermit/zkpermit-go/faults"
)

// Claims binds a session token to one address.
type Claims struct {
	jwt.RegisteredClaims
	Address string `json:"address"`
}

// SignToken issues a time-bounded HS256 token for the address. Expiry is
// the only invalidation mechanism; there is no server-side revocation.
func SignToken(address string, secret []byte, validity time.Duration) (string, error) {
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(validity)),
		},
		Address: address,
	})
	return token.SignedString(secret)
}

// AddressFromToken validates a token and returns the bound address.
func AddressFromToken(tokenString string, secret []byte) (string, error) {
	claims := &Claims{}
	token, err := jwt.ParseWithClaims(tokenString, claims, func(t *jwt.Token) (interface{}, error) {
		return secret, nil
	})
	if err != nil || !token.Valid {
		return "", fmt.Errorf("%w: invalid token", faults.ErrAuth)
	}
	return claims.Address, nil
}
