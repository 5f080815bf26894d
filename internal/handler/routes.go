package handler

import (
	"github.com/gin-gonic/gin"

	"github.com/THIS-Institute/thiscovery-surveys/internal/auth"
)

// Routes holds the handlers mounted under /v1.
type Routes struct {
	PersonalLink *PersonalLinkHandler
	// Admin is mounted only when JWTSecret is set.
	Admin     *AdminHandler
	JWTSecret string
}

// Register mounts the API on router.
func (rt Routes) Register(router *gin.Engine) {
	v1 := router.Group("/v1")
	v1.GET("/personal-link", rt.PersonalLink.Get)

	if rt.Admin == nil || rt.JWTSecret == "" {
		return
	}
	admin := v1.Group("/admin", auth.Middleware(rt.JWTSecret))
	admin.GET("/pools/:account/:survey_id", rt.Admin.Stats)
	admin.POST("/pools/:account/:survey_id/replenish", rt.Admin.Replenish)
}
