package auth

import (
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// TokenInfo 持有外部签发的访问令牌。服务端只透传不签发，
// 因此这里不做签名校验，只解析声明用于过期提示。
type TokenInfo struct {
	Raw       string
	ExpiresAt time.Time
	Subject   string
}

// ErrTokenEmpty 未配置访问令牌
var ErrTokenEmpty = errors.New("访问令牌为空")

// Inspect 解析令牌声明。令牌非 JWT 格式时原样返回，不视为错误。
func Inspect(raw string) (TokenInfo, error) {
	if raw == "" {
		return TokenInfo{}, ErrTokenEmpty
	}

	info := TokenInfo{Raw: raw}

	parser := jwt.NewParser()
	claims := jwt.MapClaims{}
	if _, _, err := parser.ParseUnverified(raw, claims); err != nil {
		// 不是JWT也能当不透明令牌用
		return info, nil
	}

	if exp, err := claims.GetExpirationTime(); err == nil && exp != nil {
		info.ExpiresAt = exp.Time
	}
	if sub, err := claims.GetSubject(); err == nil {
		info.Subject = sub
	}
	return info, nil
}

// Expired 令牌是否已过期。未携带过期声明时视为未过期。
func (t TokenInfo) Expired(now time.Time) bool {
	if t.ExpiresAt.IsZero() {
		return false
	}
	return now.After(t.ExpiresAt)
}

// ExpiresSoon 令牌是否将在给定窗口内过期
func (t TokenInfo) ExpiresSoon(now time.Time, window time.Duration) bool {
	if t.ExpiresAt.IsZero() {
		return false
	}
	return now.Add(window).After(t.ExpiresAt)
}
