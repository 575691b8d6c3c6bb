package pkg

import (
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// MyClaims is the bearer-token payload issued by the platform's auth service.
// Driver tokens carry both the driver and the device the token was minted for.
type MyClaims struct {
	DriverID string
	DeviceID string
	Role     string
	jwt.RegisteredClaims
}

func ParseTokenMyClaims(tokenStr string, secret []byte) (*MyClaims, error) {
	token, err := jwt.ParseWithClaims(tokenStr, &MyClaims{}, func(t *jwt.Token) (any, error) {
		return secret, nil
	})
	if err != nil {
		return nil, err
	}

	claims, ok := token.Claims.(*MyClaims)
	if !ok {
		return nil, fmt.Errorf("invalid claims structure")
	}
	return claims, nil
}

func GenerateTokenMyClaims(claims *MyClaims, secret []byte) (string, error) {
	claims.RegisteredClaims = jwt.RegisteredClaims{
		ExpiresAt: jwt.NewNumericDate(time.Now().Add(24 * time.Hour)),
		IssuedAt:  jwt.NewNumericDate(time.Now()),
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(secret)
}
