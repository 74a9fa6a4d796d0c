package api

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"

	"gw-bank/internal/api/handlers"
	"gw-bank/internal/api/middleware"
	"gw-bank/internal/service"
)

// SetupRouter настраивает и возвращает роутер с всеми эндпоинтами
func SetupRouter(
	bankService *service.BankService,
	jwtMiddleware *middleware.JWTMiddleware,
	idempotencyStore middleware.IdempotencyStore,
	logger *logrus.Logger,
	ginMode string,
) *gin.Engine {
	gin.SetMode(ginMode)

	router := gin.New()

	router.Use(gin.Recovery())
	router.Use(middleware.Logger(logger))

	router.GET("/health", func(c *gin.Context) {
		ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
		defer cancel()
		if err := bankService.Ping(ctx); err != nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{"status": "unavailable"})
			return
		}
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	// Swagger documentation
	router.GET("/swagger/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))

	authHandler := handlers.NewAuthHandler(bankService, jwtMiddleware, logger)
	walletHandler := handlers.NewWalletHandler(bankService, logger)
	adminHandler := handlers.NewAdminHandler(bankService, logger)

	v1 := router.Group("/api/v1")
	{
		// Public routes (без авторизации)
		v1.POST("/register", authHandler.Register)
		v1.POST("/verify", authHandler.Verify)
		v1.POST("/login", authHandler.Login)

		// Protected routes (требуют авторизации)
		authorized := v1.Group("")
		authorized.Use(jwtMiddleware.Auth())
		{
			authorized.GET("/account", walletHandler.GetAccount)
			authorized.GET("/balances", walletHandler.GetBalances)
			authorized.GET("/transactions", walletHandler.GetTransactions)
			authorized.POST("/transfers", middleware.Idempotency(idempotencyStore, logger), walletHandler.Transfer)
		}

		admin := v1.Group("/admin")
		admin.Use(jwtMiddleware.Auth(), jwtMiddleware.RequireAdmin())
		{
			admin.GET("/users", adminHandler.ListUsers)
			admin.GET("/stats", adminHandler.GetStatistics)
			admin.PUT("/users/:id/status", adminHandler.SetStatus)
			admin.PUT("/users/:id/balance", adminHandler.SetBalance)
			admin.PUT("/users/:id/fee", adminHandler.SetFee)
			admin.DELETE("/users/:id", adminHandler.DeleteUser)
		}
	}

	return router
}
