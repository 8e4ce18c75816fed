package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
	"gorm.io/gorm"

	"github.com/suPer8Hu/adforge/internal/assets"
	"github.com/suPer8Hu/adforge/internal/common"
	"github.com/suPer8Hu/adforge/internal/config"
	"github.com/suPer8Hu/adforge/internal/creation"
	"github.com/suPer8Hu/adforge/internal/httpapi/middleware"
	"github.com/suPer8Hu/adforge/internal/jobs"
	"github.com/suPer8Hu/adforge/internal/store/redisstore"
	"github.com/suPer8Hu/adforge/internal/users"
)

type Handler struct {
	DB        *gorm.DB
	Cfg       config.Config
	Redis     *redisstore.Store
	Jobs      *jobs.Service
	Catalog   *assets.Catalog
	Creations *creation.Service
	Users     *users.Repo
	Log       zerolog.Logger
}

type Deps struct {
	DB        *gorm.DB
	Cfg       config.Config
	Redis     *redisstore.Store
	Jobs      *jobs.Service
	Catalog   *assets.Catalog
	Creations *creation.Service
	Log       zerolog.Logger
}

func NewHandler(d Deps) *Handler {
	return &Handler{
		DB:        d.DB,
		Cfg:       d.Cfg,
		Redis:     d.Redis,
		Jobs:      d.Jobs,
		Catalog:   d.Catalog,
		Creations: d.Creations,
		Users:     users.NewRepo(d.DB),
		Log:       d.Log,
	}
}

func userIDFromContext(c *gin.Context) (uint64, bool) {
	v, ok := c.Get(middleware.UserIDKey)
	if !ok {
		return 0, false
	}
	id, ok := v.(uint64)
	return id, ok
}

// mustUser aborts with 401 when the auth middleware did not run.
func mustUser(c *gin.Context) (uint64, bool) {
	uid, ok := userIDFromContext(c)
	if !ok {
		common.Fail(c, http.StatusUnauthorized, 40101, "unauthorized")
	}
	return uid, ok
}
