package middleware

import (
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"gw-bank/internal/storages"
)

// Ключи контекста gin
const (
	ContextUserID = "user_id"
	ContextEmail  = "email"
	ContextRole   = "role"
)

// Claims структура JWT claims
type Claims struct {
	UserID string `json:"user_id"`
	Email  string `json:"email"`
	Role   string `json:"role"`
	jwt.RegisteredClaims
}

// JWTMiddleware middleware для проверки JWT токенов
type JWTMiddleware struct {
	secret     []byte
	expiration time.Duration
	logger     *logrus.Logger
}

// NewJWTMiddleware создает новый JWT middleware
func NewJWTMiddleware(secret string, expiration time.Duration, logger *logrus.Logger) *JWTMiddleware {
	return &JWTMiddleware{
		secret:     []byte(secret),
		expiration: expiration,
		logger:     logger,
	}
}

// Auth middleware для аутентификации
func (m *JWTMiddleware) Auth() gin.HandlerFunc {
	return func(c *gin.Context) {
		// Получаем токен из заголовка Authorization
		authHeader := c.GetHeader("Authorization")
		if authHeader == "" {
			abort(c, http.StatusUnauthorized, "Authorization header is required", "unauthorized")
			return
		}

		// Проверяем формат "Bearer <token>"
		parts := strings.SplitN(authHeader, " ", 2)
		if len(parts) != 2 || parts[0] != "Bearer" {
			abort(c, http.StatusUnauthorized, "Invalid authorization header format", "unauthorized")
			return
		}

		claims, err := m.ParseToken(parts[1])
		if err != nil {
			m.logger.Warnf("Invalid token: %v", err)
			abort(c, http.StatusUnauthorized, "Invalid token", "unauthorized")
			return
		}

		userID, err := uuid.Parse(claims.UserID)
		if err != nil {
			abort(c, http.StatusUnauthorized, "Invalid token claims", "unauthorized")
			return
		}

		// Сохраняем данные пользователя в контекст
		c.Set(ContextUserID, userID)
		c.Set(ContextEmail, claims.Email)
		c.Set(ContextRole, claims.Role)
		c.Next()
	}
}

// RequireAdmin пропускает только пользователей с ролью admin. Ставится после Auth.
func (m *JWTMiddleware) RequireAdmin() gin.HandlerFunc {
	return func(c *gin.Context) {
		if c.GetString(ContextRole) != storages.RoleAdmin {
			abort(c, http.StatusForbidden, "Admin role required", "forbidden")
			return
		}
		c.Next()
	}
}

// ParseToken проверяет подпись и срок действия токена
func (m *JWTMiddleware) ParseToken(tokenString string) (*Claims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(token *jwt.Token) (interface{}, error) {
		// Проверяем алгоритм подписи
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return m.secret, nil
	})
	if err != nil {
		return nil, err
	}

	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid {
		return nil, fmt.Errorf("invalid token claims")
	}
	return claims, nil
}

// GenerateToken генерирует JWT токен для пользователя
func (m *JWTMiddleware) GenerateToken(userID uuid.UUID, email, role string) (string, error) {
	now := time.Now()
	claims := Claims{
		UserID: userID.String(),
		Email:  email,
		Role:   role,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   userID.String(),
			ExpiresAt: jwt.NewNumericDate(now.Add(m.expiration)),
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	tokenString, err := token.SignedString(m.secret)
	if err != nil {
		m.logger.Errorf("Failed to sign token: %v", err)
		return "", fmt.Errorf("failed to generate token: %w", err)
	}

	return tokenString, nil
}

// GetUserID извлекает user_id из контекста
func GetUserID(c *gin.Context) (uuid.UUID, error) {
	userID, exists := c.Get(ContextUserID)
	if !exists {
		return uuid.Nil, fmt.Errorf("user_id not found in context")
	}

	id, ok := userID.(uuid.UUID)
	if !ok {
		return uuid.Nil, fmt.Errorf("invalid user_id type")
	}

	return id, nil
}

func abort(c *gin.Context, status int, message, reason string) {
	c.AbortWithStatusJSON(status, gin.H{"error": message, "reason": reason})
}
