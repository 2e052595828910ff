// internal/api/router.go
package api

import (
	"net/http"
	"strings"

	"github.com/LuisEduardoPedra/checkoutPix/internal/api/handlers"
	"github.com/LuisEduardoPedra/checkoutPix/internal/api/middleware"
	"github.com/gin-gonic/gin"
)

const AdminRole = "checkout:admin"

type RouterConfig struct {
	JWTSecret      []byte
	AllowedOrigins []string
	Checkout       *handlers.CheckoutHandler
	// Auth é nil quando as contas são criadas pela API remota.
	Auth *handlers.AuthHandler
}

func NewRouter(cfg RouterConfig) *gin.Engine {
	router := gin.New()
	router.Use(gin.Recovery(), cors(cfg.AllowedOrigins))

	apiV1 := router.Group("/api/v1")
	{
		apiV1.POST("/sessions", cfg.Checkout.Open)

		session := apiV1.Group("/sessions/:id")
		session.Use(middleware.SessionAuth(cfg.JWTSecret))
		{
			session.GET("", cfg.Checkout.Get)
			session.POST("/payer", cfg.Checkout.SubmitPayer)
			session.POST("/confirm", cfg.Checkout.ConfirmPayment)
			session.POST("/upgrade", cfg.Checkout.Upgrade)
			session.DELETE("", cfg.Checkout.Close)
		}

		if cfg.Auth != nil {
			apiV1.POST("/login", cfg.Auth.Login)
		}
		admin := apiV1.Group("/admin")
		admin.Use(middleware.AuthMiddleware(cfg.JWTSecret), middleware.PermissionMiddleware(AdminRole))
		{
			admin.GET("/sessions", cfg.Checkout.Stats)
		}
	}
	router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "UP"})
	})
	return router
}

func cors(allowed []string) gin.HandlerFunc {
	allowAll := len(allowed) == 0
	set := make(map[string]bool, len(allowed))
	for _, o := range allowed {
		if o == "*" {
			allowAll = true
		}
		set[strings.TrimRight(o, "/")] = true
	}
	return func(c *gin.Context) {
		origin := c.GetHeader("Origin")
		switch {
		case allowAll:
			c.Writer.Header().Set("Access-Control-Allow-Origin", "*")
		case set[origin]:
			c.Writer.Header().Set("Access-Control-Allow-Origin", origin)
			c.Writer.Header().Add("Vary", "Origin")
		}
		c.Writer.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
		c.Writer.Header().Set("Access-Control-Allow-Headers", "Origin, Content-Type, Authorization")
		if c.Request.Method == http.MethodOptions {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}
		c.Next()
	}
}
