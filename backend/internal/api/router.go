package api

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"noahs-ark/backend/internal/consistency"
	"noahs-ark/backend/internal/metrics"
	"noahs-ark/backend/pkg/logger"
)

// Handler serves the REST and GraphQL routes
type Handler struct {
	svc    *Service
	coord  *consistency.Coordinator
	logger *zap.Logger
}

// NewRouter builds the gin engine with every route mounted
func NewRouter(deps Deps) (*gin.Engine, error) {
	if deps.Production {
		gin.SetMode(gin.ReleaseMode)
	}
	log := logger.Component("api")
	svc := NewService(deps)
	h := &Handler{svc: svc, coord: deps.Coordinator, logger: log}

	gql, err := NewGraphQLHandler(svc)
	if err != nil {
		return nil, err
	}

	router := gin.New()
	router.Use(ginLogger(log))
	router.Use(gin.Recovery())
	router.Use(cors())

	router.GET("/health", h.health)
	router.GET("/metrics", gin.WrapH(metrics.Handler()))

	api := router.Group("/api")
	{
		api.GET("/search", h.searchPersons)
		api.GET("/relationship", h.relationship)
		api.GET("/plugins", h.listPlugins)
		api.POST("/graphql", gql.serve)

		persons := api.Group("/persons")
		persons.POST("", h.createPerson)
		persons.GET("/:id", h.getPerson)
		persons.PATCH("/:id", h.updatePerson)
		persons.GET("/:id/ancestors", h.ancestors)
		persons.GET("/:id/sosa", h.sosa)
		persons.GET("/:id/consanguinity", h.consanguinity)
		persons.GET("/:id/export", h.exportPerson)
		persons.POST("/:id/plugins/:capability", h.runPersonPlugins)

		families := api.Group("/families")
		families.POST("", h.createFamily)
		families.GET("/:id", h.getFamily)
		families.PATCH("/:id", h.updateFamily)
		families.POST("/:id/children", h.appendChild)
		families.DELETE("/:id/children/:childId", h.removeChild)
		families.POST("/:id/events", h.addFamilyEvent)
		families.POST("/:id/plugins/:capability", h.runFamilyPlugins)
	}

	return router, nil
}

func (h *Handler) health(c *gin.Context) {
	failures := h.svc.Health(c.Request.Context())
	if len(failures) > 0 {
		c.JSON(http.StatusServiceUnavailable, gin.H{"status": "degraded", "failures": failures})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

// cors allows browser clients from any origin
func cors() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Writer.Header().Set("Access-Control-Allow-Origin", "*")
		c.Writer.Header().Set("Access-Control-Allow-Credentials", "true")
		c.Writer.Header().Set("Access-Control-Allow-Headers", "Content-Type, Content-Length, Accept-Encoding, X-CSRF-Token, Authorization, accept, origin, Cache-Control, X-Requested-With")
		c.Writer.Header().Set("Access-Control-Allow-Methods", "POST, OPTIONS, GET, PATCH, DELETE")

		if c.Request.Method == http.MethodOptions {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}

		c.Next()
	}
}

// ginLogger logs every request through zap
func ginLogger(log *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		path := c.Request.URL.Path
		raw := c.Request.URL.RawQuery

		c.Next()

		latency := time.Since(start)
		status := c.Writer.Status()

		if raw != "" {
			path = path + "?" + raw
		}

		log.Info("HTTP Request",
			zap.Int("status", status),
			zap.String("method", c.Request.Method),
			zap.String("path", path),
			zap.Duration("latency", latency),
			zap.String("ip", c.ClientIP()),
		)
	}
}
