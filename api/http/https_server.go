package http

import (
	"ContextIndex/internal/config"
	jwtMiddleware "ContextIndex/internal/middleware/jwt"
	indexHandler "ContextIndex/internal/modules/index/interface/http"
	"ContextIndex/pkg/ssl"

	cors "github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
)

// Handlers 需要挂到路由上的 HTTP handler
type Handlers struct {
	Index  *indexHandler.IndexHandler
	Access *indexHandler.AccessHandler
	Query  *indexHandler.QueryHandler
}

// NewEngine 组装 gin 引擎；除 /ping 外所有接口都需要 JWT
func NewEngine(conf *config.Config, h Handlers) *gin.Engine {
	GE := gin.New()
	GE.Use(gin.Logger(), gin.Recovery())
	corsConfig := cors.DefaultConfig()
	corsConfig.AllowOrigins = []string{"*"}
	corsConfig.AllowMethods = []string{"GET", "POST", "OPTIONS"}
	corsConfig.AllowHeaders = []string{"Origin", "Content-Length", "Content-Type", "Authorization"}
	GE.Use(cors.New(corsConfig))
	if conf.MainConfig.EnableTLS {
		GE.Use(ssl.TlsHandler(conf.MainConfig.Host, conf.MainConfig.Port))
	}

	GE.GET("/ping", func(c *gin.Context) {
		c.JSON(200, gin.H{"app": conf.MainConfig.AppName})
	})

	authed := GE.Group("/")
	authed.Use(jwtMiddleware.Auth(conf.JwtConfig.Key))
	authed.GET("/auth/ping", func(c *gin.Context) {
		c.JSON(200, gin.H{
			"uuid":     c.GetString("uuid"),
			"username": c.GetString("username"),
		})
	})

	authed.POST("/index/addDocuments", h.Index.AddDocuments)
	authed.POST("/index/checkSources", h.Index.CheckSources)
	authed.POST("/index/deleteSources", h.Index.DeleteSources)
	authed.POST("/index/deleteProvider", h.Index.DeleteProvider)
	authed.POST("/index/countDocuments", h.Index.CountDocuments)

	authed.POST("/access/getUsers", h.Access.GetUsers)
	authed.POST("/access/declareAccess", h.Access.DeclareAccess)
	authed.POST("/access/updateAccess", h.Access.UpdateAccess)
	authed.POST("/access/updateAccessProvider", h.Access.UpdateAccessProvider)
	authed.POST("/access/deleteUser", h.Access.DeleteUser)

	authed.POST("/query/search", h.Query.Search)
	return GE
}
