package app

import (
	"context"
	"time"

	"github.com/NEAR-Edu/contract-registry/internal/controllers"
	"github.com/NEAR-Edu/contract-registry/internal/middleware"
	"github.com/NEAR-Edu/contract-registry/internal/providers"
	"github.com/NEAR-Edu/contract-registry/pkg/config"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

func SetupMappings(app *Application) {
	cfg := app.Config

	app.Engine.GET("/healthz", controllers.NewHealthController(func(ctx context.Context) error {
		return providers.PingRedis(ctx, app.Redis, time.Second)
	}).Handle)
	app.Engine.GET("/metrics", gin.WrapH(promhttp.Handler()))

	app.Engine.POST("/webhook",
		middleware.RateLimitWebhook(app.RateLimiter, cfg),
		middleware.WebhookSignature([]byte(cfg.CircleCI.WebhookSecret), cfg.CircleCI.MaxBodyBytes),
		controllers.NewWebhookController(app.Webhooks).Handle,
	)

	v1 := app.Engine.Group("/v1/registry")
	{
		v1.GET("/requests/pending", controllers.NewPendingRequestsController(app.Registry).Handle)
		v1.GET("/requests/:id", controllers.NewGetRequestController(app.Registry).Handle)
		v1.GET("/verifications/:codeHash", controllers.NewGetVerificationController(app.Registry).Handle)
		v1.GET("/fee", controllers.NewGetFeeController(app.Registry).Handle)
		v1.GET("/jobs/:number", controllers.NewGetJobController(app.Webhooks).Handle)
		v1.GET("/results/:codeHash", controllers.NewGetJobByHashController(app.Webhooks).Handle)

		admin := v1.Group("",
			middleware.RateLimitAdmin(app.RateLimiter, cfg),
			middleware.AdminAuthMiddleware(app.AdminValidator, config.AdminScope),
		)
		admin.POST("/requests/:id/failure", controllers.NewResolveFailureController(app.Resolutions).Handle)
		admin.PUT("/fee", controllers.NewSetFeeController(app.Resolutions).Handle)
		admin.POST("/jobs/:number/assemble", controllers.NewReassembleJobController(app.Webhooks).Handle)
	}
}
