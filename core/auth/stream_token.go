package auth

import (
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// StreamClaims 流访问令牌的载荷
// sub 绑定对象键，allow_explicit 标记是否允许播放未消音版本
type StreamClaims struct {
	AllowExplicit string `json:"allow_explicit"` // "0" / "1"
	jwt.RegisteredClaims
}

// StreamTokenIssuer mints and validates signed stream access tokens.
// The HMAC secret is loaded from configuration at startup and never
// rotated at runtime.
type StreamTokenIssuer struct {
	secret []byte
}

// NewStreamTokenIssuer creates an issuer with the given symmetric secret.
func NewStreamTokenIssuer(secret string) *StreamTokenIssuer {
	return &StreamTokenIssuer{secret: []byte(secret)}
}

// Issue 为指定对象键签发限时令牌
func (i *StreamTokenIssuer) Issue(objectKey string, ttl time.Duration, allowExplicit bool) (string, error) {
	now := time.Now()

	allow := "0"
	if allowExplicit {
		allow = "1"
	}

	claims := StreamClaims{
		AllowExplicit: allow,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   objectKey,
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(i.secret)
	if err != nil {
		return "", fmt.Errorf("签发流令牌失败: %w", err)
	}
	return signed, nil
}

// Validate 校验令牌签名与有效期
// 任何结构或密码学层面的失败都折叠为 ok=false，绝不向外抛异常
func (i *StreamTokenIssuer) Validate(tokenString string) (objectKey string, allowExplicit bool, ok bool) {
	claims := &StreamClaims{}

	token, err := jwt.ParseWithClaims(tokenString, claims, func(t *jwt.Token) (interface{}, error) {
		if _, valid := t.Method.(*jwt.SigningMethodHMAC); !valid {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return i.secret, nil
	})
	if err != nil || !token.Valid {
		return "", false, false
	}

	return claims.Subject, claims.AllowExplicit == "1", true
}
