package http

import (
	"context"
	"net/http"

	"github.com/gin-contrib/sessions"
	"github.com/gin-contrib/sessions/cookie"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"github.com/samber/lo"

	"github.com/dkeye/Handshake/internal/adapters/signal"
	"github.com/dkeye/Handshake/internal/app/orch"
	"github.com/dkeye/Handshake/internal/config"
	"github.com/dkeye/Handshake/internal/core"
	"github.com/dkeye/Handshake/internal/domain"
)

func genClientToken() string {
	return uuid.NewString()
}

func ClientTokenMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		token, _ := c.Cookie("ct")
		if token == "" {
			token = genClientToken()
			c.SetCookie("ct", token, 3600*24*7, "/", "", false, true)
		}
		c.Set("client_token", token)
		c.Next()
	}
}

func SetupRouter(ctx context.Context, cfg *config.Config, o *orch.Orchestrator) *gin.Engine {
	if cfg.Mode == "release" {
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.New()
	if cfg.Mode == "debug" {
		r.Use(gin.Logger())
	}
	r.Use(gin.Recovery())

	store := cookie.NewStore([]byte(cfg.Secret))
	r.Use(sessions.Sessions("HandshakeSessions", store))
	r.Use(ClientTokenMiddleware())

	r.Static("/static", cfg.StaticPath)
	r.GET("/", func(c *gin.Context) {
		c.File(cfg.StaticPath + "/index.html")
	})
	r.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok", "endpoints": o.Registry.Count()})
	})

	log.Info().Str("module", "adapters.http").Str("static", cfg.StaticPath).Msg("router setup")

	limiter := signal.NewCallRateLimiter(cfg.CallLimit, cfg.CallInterval)
	ctrl := signal.NewWSController(o, limiter, cfg.ReadLimit)

	api := r.Group("/api")

	api.GET("/ws/signal", func(c *gin.Context) {
		log.Info().Str("module", "adapters.http").Str("ct", c.GetString("client_token")).Msg("ws signal endpoint hit")
		ctrl.HandleSignal(ctx, c)
	})

	api.GET("/endpoints", func(c *gin.Context) {
		// No role query means no filter.
		role := domain.Role(c.Query("role"))
		if role == "" {
			role = domain.RoleUnassigned
		}
		eps := o.ListAvailable(role)
		c.JSON(http.StatusOK, gin.H{
			"endpoints": lo.Map(eps, func(ep core.EndpointDTO, _ int) gin.H {
				return gin.H{"id": ep.ID, "role": ep.Role, "display_name": ep.DisplayName}
			}),
		})
	})

	api.GET("/sessions", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"sessions": o.ListSessions()})
	})

	return r
}
