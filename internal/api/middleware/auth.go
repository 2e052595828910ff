// internal/api/middleware/auth.go
package middleware

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/LuisEduardoPedra/checkoutPix/internal/api/responses"
	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
)

const (
	ClaimsKey    = "user_claims"
	SessionIDKey = "session_id"
	sessionAud   = "checkout-session"
)

// IssueSessionToken gera o token que dá acesso a uma única sessão de checkout.
func IssueSessionToken(secret []byte, sessionID string, ttl time.Duration, now time.Time) (string, error) {
	claims := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"sid": sessionID,
		"aud": sessionAud,
		"iat": now.Unix(),
		"exp": now.Add(ttl).Unix(),
	})
	return claims.SignedString(secret)
}

func bearer(c *gin.Context) (string, bool) {
	authHeader := c.GetHeader("Authorization")
	if authHeader == "" {
		responses.Error(c, http.StatusUnauthorized, "Token de autorização não fornecido")
		return "", false
	}
	parts := strings.Split(authHeader, " ")
	if len(parts) != 2 || parts[0] != "Bearer" {
		responses.Error(c, http.StatusUnauthorized, "Formato do token inválido")
		return "", false
	}
	return parts[1], true
}

func parse(tokenString string, secret []byte, opts ...jwt.ParserOption) (jwt.MapClaims, error) {
	token, err := jwt.Parse(tokenString, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("método de assinatura inesperado: %v", token.Header["alg"])
		}
		return secret, nil
	}, opts...)
	if err != nil {
		return nil, err
	}
	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok || !token.Valid {
		return nil, errors.New("token inválido")
	}
	return claims, nil
}

// AuthMiddleware verifica o token de login de uma conta criada na conversão.
func AuthMiddleware(jwtSecret []byte) gin.HandlerFunc {
	return func(c *gin.Context) {
		tokenString, ok := bearer(c)
		if !ok {
			return
		}
		claims, err := parse(tokenString, jwtSecret)
		if err != nil {
			responses.Error(c, http.StatusUnauthorized, "Token inválido ou expirado")
			return
		}
		if aud, _ := claims.GetAudience(); len(aud) > 0 {
			responses.Error(c, http.StatusUnauthorized, "Token inválido ou expirado")
			return
		}
		c.Set(ClaimsKey, claims)
		c.Next()
	}
}

// SessionAuth exige um token de sessão cujo "sid" seja o :id da rota.
func SessionAuth(jwtSecret []byte) gin.HandlerFunc {
	return func(c *gin.Context) {
		tokenString, ok := bearer(c)
		if !ok {
			return
		}
		claims, err := parse(tokenString, jwtSecret, jwt.WithAudience(sessionAud))
		if err != nil {
			responses.Error(c, http.StatusUnauthorized, "Token de sessão inválido ou expirado")
			return
		}
		sid, _ := claims["sid"].(string)
		if sid == "" || sid != c.Param("id") {
			responses.Error(c, http.StatusForbidden, "Token não pertence a esta sessão")
			return
		}
		c.Set(SessionIDKey, sid)
		c.Next()
	}
}

// PermissionMiddleware verifica se o usuário tem uma permissão específica.
func PermissionMiddleware(requiredPermission string) gin.HandlerFunc {
	return func(c *gin.Context) {
		claims, exists := c.Get(ClaimsKey)
		if !exists {
			responses.Error(c, http.StatusForbidden, "Claims do usuário não encontrados")
			return
		}

		mapClaims := claims.(jwt.MapClaims)
		roles, ok := mapClaims["roles"].([]interface{})
		if !ok {
			responses.Error(c, http.StatusForbidden, "Permissões não encontradas no token")
			return
		}
		for _, role := range roles {
			if roleStr, ok := role.(string); ok && roleStr == requiredPermission {
				c.Next()
				return
			}
		}
		responses.Error(c, http.StatusForbidden, "Acesso negado: permissão necessária ausente")
	}
}
