// Package router assembles the gin engine and route table.
package router

import (
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"

	"payables-relay/internal/config"
	"payables-relay/internal/handlers"
	"payables-relay/internal/middleware"
	"payables-relay/internal/services"
)

// Deps carries the wired collaborators the route table needs.
type Deps struct {
	Config   *config.Config
	Finalize *services.FinalizeService
	Query    *services.QueryService
	Push     *services.PushHub
	Log      *logrus.Logger
}

// New builds the HTTP surface.
func New(d Deps) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(middleware.RequestID())
	r.Use(middleware.CORS())
	r.Use(middleware.Metrics())

	authHandler := handlers.NewAuthHandler(d.Config, d.Log)
	finalizeHandler := handlers.NewFinalizeHandler(d.Finalize, d.Log)
	entityHandler := handlers.NewEntityHandler(d.Query, d.Log)

	r.GET("/metrics", gin.WrapH(promhttp.Handler()))
	r.GET("/ws", func(c *gin.Context) {
		d.Push.ServeWS(c.Writer, c.Request)
	})

	api := r.Group("/api")
	{
		api.GET("/health", handlers.HealthCheckHandler)
		api.GET("/chains", handlers.ListChainsHandler)
		api.GET("/tokens", handlers.ListTokensHandler)

		api.POST("/auth/session", authHandler.CreateSessionHandler)

		// Public reads.
		api.GET("/payables/:chain", entityHandler.ListPayablesHandler)
		api.GET("/payables/:chain/:id", entityHandler.GetPayableHandler)
		api.GET("/payments/:chain", entityHandler.ListPaymentsHandler)
		api.GET("/payments/:chain/:id", entityHandler.GetPaymentHandler)
		api.GET("/payable-payments/:chain", entityHandler.ListPayablePaymentsHandler)
		api.GET("/payable-payments/:chain/:id", entityHandler.GetPayablePaymentHandler)
		api.GET("/payable-withdrawals/:chain", entityHandler.ListPayableWithdrawalsHandler)
		api.GET("/withdrawals/:chain", entityHandler.ListWithdrawalsHandler)
		api.GET("/withdrawals/:chain/:id", entityHandler.GetWithdrawalHandler)
		api.GET("/users/:chain/:wallet", entityHandler.GetUserHandler)

		// Finalization requires a wallet.
		authed := api.Group("")
		authed.Use(middleware.WalletAuth(d.Config.Auth.JWTSecret))
		{
			authed.POST("/payables", finalizeHandler.FinalizePayableHandler)
			authed.POST("/payments", finalizeHandler.FinalizePaymentHandler)
			authed.POST("/withdrawals", finalizeHandler.FinalizeWithdrawalHandler)
		}
	}

	return r
}
