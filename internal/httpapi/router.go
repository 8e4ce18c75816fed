package httpapi

import (
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"github.com/suPer8Hu/adforge/internal/common"
	"github.com/suPer8Hu/adforge/internal/config"
	"github.com/suPer8Hu/adforge/internal/httpapi/handlers"
	"github.com/suPer8Hu/adforge/internal/httpapi/middleware"
)

type RouterOptions struct {
	Access config.Access
	// StaticDir is served under /static when set.
	StaticDir string
	// AuthPerMinute caps /users and /login per client ip. Zero disables it.
	AuthPerMinute int
	SlowRequest   time.Duration
	// TrustedProxies may set the client ip through X-Forwarded-For. Nil
	// trusts no proxy and uses the connection address.
	TrustedProxies []string
	Log            zerolog.Logger
}

func NewRouter(h *handlers.Handler, o RouterOptions) (*gin.Engine, error) {
	r := gin.New()
	r.HandleMethodNotAllowed = true
	if err := r.SetTrustedProxies(o.TrustedProxies); err != nil {
		return nil, fmt.Errorf("trusted proxies: %w", err)
	}
	r.Use(middleware.RequestID())
	r.Use(middleware.Logger(o.Log, o.SlowRequest))
	r.Use(middleware.Recovery(o.Log))

	r.NoRoute(func(c *gin.Context) {
		common.Fail(c, http.StatusNotFound, 40400, "route not found")
	})
	r.NoMethod(func(c *gin.Context) {
		common.Fail(c, http.StatusMethodNotAllowed, 40500, "method not allowed")
	})

	r.GET("/ping", h.Ping)
	r.GET("/healthz", h.Healthz)
	if o.StaticDir != "" {
		r.Static("/static", o.StaticDir)
	}

	// users + auth
	public := r.Group("/")
	if o.AuthPerMinute > 0 && h.Redis != nil {
		public.Use(middleware.RateLimit(h.Redis, "auth", o.AuthPerMinute, time.Minute))
	}
	public.POST("/users", h.CreateUser)
	public.POST("/login", h.Login)

	authGroup := r.Group("/")
	authGroup.Use(middleware.AuthRequired(h.Cfg.JWTSecret))
	authGroup.GET("/me", h.Me)

	// one start / query / end triplet per asset
	for _, def := range h.Catalog.All() {
		g := authGroup.Group("/"+def.Name, middleware.RequireRoles(o.Access.RolesFor(def.Name)...))
		g.POST("/start", h.StartAsset(def))
		g.POST("/query/:token", h.QueryAsset(def))
		g.POST("/end/:token", h.EndAsset(def))
	}

	authGroup.POST("/composite/:adId/finalize", h.FinalizeComposite)

	authGroup.GET("/creations", h.ListCreations)
	authGroup.GET("/creations/:id", h.GetCreation)
	authGroup.PATCH("/creations/:id/rating", h.RateCreation)
	return r, nil
}
