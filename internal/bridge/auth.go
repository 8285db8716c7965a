package bridge

import (
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"github.com/wfunc/serial-connect/internal/errors"
	"golang.org/x/crypto/argon2"
)

// 签名密钥派生参数，配置中的secret是口令而非密钥本体
const (
	kdfSalt    = "serial-connect-bridge"
	kdfTime    = 1
	kdfMemory  = 64 * 1024
	kdfThreads = 4
	kdfKeyLen  = 32
)

// TokenClaims 桥接访问令牌Claims
type TokenClaims struct {
	Device string `json:"device"` // 桥接的设备路径
	jwt.RegisteredClaims
}

// TokenManager 桥接令牌管理器
type TokenManager struct {
	signingKey []byte
	expiry     time.Duration
}

// NewTokenManager 创建令牌管理器
// 用argon2id从配置口令派生签名密钥
func NewTokenManager(secret string, expiry time.Duration) *TokenManager {
	key := argon2.IDKey([]byte(secret), []byte(kdfSalt),
		kdfTime, kdfMemory, kdfThreads, kdfKeyLen)

	return &TokenManager{
		signingKey: key,
		expiry:     expiry,
	}
}

// Generate 生成访问令牌
func (m *TokenManager) Generate(device string) (string, error) {
	now := time.Now()

	claims := &TokenClaims{
		Device: device,
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(now.Add(m.expiry)),
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
			Issuer:    "serial-connect",
			Subject:   device,
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(m.signingKey)
}

// Validate 验证令牌
func (m *TokenManager) Validate(tokenString string) (*TokenClaims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &TokenClaims{},
		func(token *jwt.Token) (interface{}, error) {
			if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
				return nil, errors.New(errors.ErrTokenInvalid, "签名算法不匹配")
			}
			return m.signingKey, nil
		})

	if err != nil {
		if strings.Contains(err.Error(), "expired") {
			return nil, errors.Wrap(err, errors.ErrTokenExpired)
		}
		return nil, errors.Wrap(err, errors.ErrTokenInvalid)
	}

	claims, ok := token.Claims.(*TokenClaims)
	if !ok || !token.Valid {
		return nil, errors.New(errors.ErrTokenInvalid)
	}

	return claims, nil
}

// RequireAuth 认证中间件
// 从Authorization头或token查询参数中提取令牌
func (m *TokenManager) RequireAuth() gin.HandlerFunc {
	return func(c *gin.Context) {
		token := extractToken(c)
		if token == "" {
			c.JSON(http.StatusUnauthorized, gin.H{
				"code":    "NO_TOKEN",
				"message": "缺少访问令牌",
			})
			c.Abort()
			return
		}

		claims, err := m.Validate(token)
		if err != nil {
			c.JSON(http.StatusUnauthorized, gin.H{
				"code":    "INVALID_TOKEN",
				"message": "无效的令牌",
				"details": err.Error(),
			})
			c.Abort()
			return
		}

		c.Set("device", claims.Device)
		c.Next()
	}
}

// extractToken 提取令牌
// WebSocket客户端通常无法设置自定义头，支持query参数传递
func extractToken(c *gin.Context) string {
	auth := c.GetHeader("Authorization")
	if strings.HasPrefix(auth, "Bearer ") {
		return strings.TrimPrefix(auth, "Bearer ")
	}
	return c.Query("token")
}
