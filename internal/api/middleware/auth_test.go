package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
)

var secret = []byte("segredo-de-teste")

func sessionRouter() *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.GET("/sessions/:id", SessionAuth(secret), func(c *gin.Context) {
		c.String(http.StatusOK, c.GetString(SessionIDKey))
	})
	return r
}

func do(r *gin.Engine, path, auth string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodGet, path, nil)
	if auth != "" {
		req.Header.Set("Authorization", auth)
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func TestSessionAuth(t *testing.T) {
	now := time.Now()
	valid, err := IssueSessionToken(secret, "abc", time.Hour, now)
	if err != nil {
		t.Fatal(err)
	}
	expired, _ := IssueSessionToken(secret, "abc", time.Minute, now.Add(-time.Hour))
	foreign, _ := IssueSessionToken([]byte("outro"), "abc", time.Hour, now)
	login, _ := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"username": "maria", "exp": now.Add(time.Hour).Unix(),
	}).SignedString(secret)

	tests := []struct {
		name   string
		path   string
		auth   string
		status int
	}{
		{"válido", "/sessions/abc", "Bearer " + valid, http.StatusOK},
		{"sem cabeçalho", "/sessions/abc", "", http.StatusUnauthorized},
		{"formato inválido", "/sessions/abc", "Token " + valid, http.StatusUnauthorized},
		{"expirado", "/sessions/abc", "Bearer " + expired, http.StatusUnauthorized},
		{"outra chave", "/sessions/abc", "Bearer " + foreign, http.StatusUnauthorized},
		{"token de login", "/sessions/abc", "Bearer " + login, http.StatusUnauthorized},
		{"outra sessão", "/sessions/xyz", "Bearer " + valid, http.StatusForbidden},
	}
	r := sessionRouter()
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			w := do(r, tc.path, tc.auth)
			if w.Code != tc.status {
				t.Errorf("status = %d, esperava %d (%s)", w.Code, tc.status, w.Body.String())
			}
		})
	}
}

func TestAuthMiddlewareAndPermission(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.GET("/admin", AuthMiddleware(secret), PermissionMiddleware("checkout:admin"), func(c *gin.Context) {
		c.Status(http.StatusNoContent)
	})

	sign := func(claims jwt.MapClaims) string {
		s, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(secret)
		if err != nil {
			t.Fatal(err)
		}
		return "Bearer " + s
	}
	exp := time.Now().Add(time.Hour).Unix()
	session, _ := IssueSessionToken(secret, "abc", time.Hour, time.Now())

	tests := []struct {
		name   string
		auth   string
		status int
	}{
		{"admin", sign(jwt.MapClaims{"username": "ana", "roles": []string{"checkout:admin"}, "exp": exp}), http.StatusNoContent},
		{"sem papel", sign(jwt.MapClaims{"username": "ana", "roles": []string{"outro"}, "exp": exp}), http.StatusForbidden},
		{"sem roles", sign(jwt.MapClaims{"username": "ana", "exp": exp}), http.StatusForbidden},
		{"token de sessão", "Bearer " + session, http.StatusUnauthorized},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			if w := do(r, "/admin", tc.auth); w.Code != tc.status {
				t.Errorf("status = %d, esperava %d", w.Code, tc.status)
			}
		})
	}
}
