package router

import (
	"github.com/gin-contrib/gzip"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"

	"github.com/d60-Lab/feedcore/config"
	"github.com/d60-Lab/feedcore/internal/api/handler"
	"github.com/d60-Lab/feedcore/internal/api/middleware"
)

// New 装配路由与中间件
func New(cfg *config.Config, h *handler.Handler) *gin.Engine {
	gin.SetMode(cfg.Server.Mode)
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(gzip.Gzip(gzip.DefaultCompression))
	if cfg.Telemetry.Enabled {
		r.Use(otelgin.Middleware(cfg.Telemetry.ServiceName))
	}

	r.GET("/healthz", func(c *gin.Context) { c.String(200, "ok") })
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))
	r.GET("/swagger/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))

	v1 := r.Group("/api/v1", middleware.JWTAuth(cfg.Auth.JWTSecret))
	{
		v1.POST("/posts", h.CreatePost)
		v1.GET("/posts/:post_id", h.GetPost)
		v1.POST("/posts/:post_id/like", h.LikePost)

		v1.GET("/timelines/:user_id", h.GetTimeline)
		v1.GET("/trending", h.GetTrending)

		rel := v1.Group("/relations")
		{
			rel.POST("/follow", h.Follow)
			rel.POST("/unfollow", h.Unfollow)
			rel.GET("/:user_id/following", h.ListFollowing)
			rel.GET("/:user_id/fans", h.ListFans)
		}
	}
	return r
}
