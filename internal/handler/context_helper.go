package handler

import (
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/gestao-docs-api/internal/middleware"
	"github.com/noah-isme/gestao-docs-api/internal/service"
)

func actorFromContext(c *gin.Context) (service.Actor, bool) {
	claims := middleware.Claims(c)
	if claims == nil {
		return service.Actor{}, false
	}
	actor := service.ActorFromClaims(claims)
	actor.IPAddress = c.ClientIP()
	actor.UserAgent = c.Request.UserAgent()
	return actor, true
}

func identityFromContext(c *gin.Context) (service.ChatIdentity, bool) {
	claims := middleware.Claims(c)
	if claims == nil || claims.UserID == "" {
		return service.ChatIdentity{}, false
	}
	return service.ChatIdentity{UserID: claims.UserID, SectorID: claims.SectorID}, true
}

func parseQueryInt(c *gin.Context, key string, def int) int {
	raw := c.Query(key)
	if raw == "" {
		return def
	}
	val, err := strconv.Atoi(raw)
	if err != nil {
		return def
	}
	return val
}

// pageParams converts page/page_size query parameters to limit and offset.
func pageParams(c *gin.Context) (limit, offset int) {
	page := parseQueryInt(c, "page", 1)
	size := parseQueryInt(c, "page_size", 20)
	if page < 1 {
		page = 1
	}
	if size < 1 || size > 100 {
		size = 20
	}
	return size, (page - 1) * size
}
