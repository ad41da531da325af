package security

import (
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"marketplace-chat/config/common"
)

const (
	audience = "marketplace-chat"
	issuer   = "marketplace-chat"
)

var ErrMissingSubject = errors.New("token carries no user_id")

type JWT struct {
	config *common.Config
	ttl    time.Duration
}

func NewJWT(config *common.Config) *JWT {
	return &JWT{config: config, ttl: time.Hour}
}

// GenerateToken issues an HS512 session token for userID. Session issuance belongs to the
// marketplace's auth service; this exists for tooling and tests.
func (j *JWT) GenerateToken(userID string) (string, error) {
	secretKey := j.config.GetJwtConfig()
	now := time.Now()

	claims := jwt.MapClaims{
		"user_id": userID,
		"aud":     audience,
		"iss":     issuer,
		"iat":     now.Unix(),
		"exp":     now.Add(j.ttl).Unix(),
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS512, claims)
	return token.SignedString(secretKey)
}

func (j *JWT) VerifyJwtToken(token string) (jwt.MapClaims, error) {
	secretKey := j.config.GetJwtConfig()

	tokenParse, err := jwt.Parse(token, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, jwt.ErrSignatureInvalid
		}
		return secretKey, nil
	}, jwt.WithIssuer(issuer), jwt.WithAudience(audience))
	if err != nil {
		return nil, err
	}

	if claims, ok := tokenParse.Claims.(jwt.MapClaims); ok && tokenParse.Valid {
		return claims, nil
	}
	return nil, jwt.ErrTokenInvalidClaims
}

func (j *JWT) GetUserIdFromToken(token string) (string, error) {
	claims, err := j.VerifyJwtToken(token)
	if err != nil {
		return "", err
	}
	return UserIDFromClaims(claims)
}

func UserIDFromClaims(claims jwt.MapClaims) (string, error) {
	userID, ok := claims["user_id"].(string)
	if !ok || userID == "" {
		return "", ErrMissingSubject
	}
	return userID, nil
}
