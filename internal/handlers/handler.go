package handlers

import (
	"tclab_control/internal/logger"
	"tclab_control/internal/service"

	"github.com/gin-gonic/gin"

	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
)

// Handler wires HTTP layer to services and logging.
type Handler struct {
	services *service.Service
	log      *logger.Logger
}

// NewHandler constructs a new HTTP handler with dependencies.
func NewHandler(services *service.Service, log *logger.Logger) *Handler {
	return &Handler{services: services, log: logger.OrNop(log)}
}

// InitRoutes builds and returns the Gin router with all routes registered.
func (h *Handler) InitRoutes() *gin.Engine {
	router := gin.New()
	router.Use(gin.Recovery())

	router.GET("/swagger/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))
	router.GET("/health", h.health)

	h.registerAuthRoutes(router)
	h.registerAPIRoutes(router)

	// Live run stream on the same port
	router.GET("/ws", h.wsConnect)

	return router
}

func (h *Handler) registerAuthRoutes(r *gin.Engine) {
	auth := r.Group("/auth")
	{
		auth.POST("/sign-up", h.signUp)
		auth.POST("/sign-in", h.signIn)
	}
}

func (h *Handler) registerAPIRoutes(r *gin.Engine) {
	api := r.Group("/api/v1", h.userIdMiddleware)
	{
		h.registerRunRoutes(api)
		h.registerLogRoutes(api)
	}
}

func (h *Handler) registerRunRoutes(api *gin.RouterGroup) {
	runs := api.Group("/runs")
	{
		// Body example: {"duration_s":600,"setpoint_c":45,"kp":5,"ki":0.5}
		runs.POST("", h.startRun)
		runs.GET("", h.listRuns)
		runs.GET("/current", h.currentRun)
		runs.POST("/current/abort", h.abortRun)
		runs.GET("/:id", h.getRun)
		runs.GET("/:id/samples", h.getRunSamples)
		runs.GET("/:id/events", h.getRunEvents)
		runs.GET("/:id/plot.png", h.getRunPlot)
	}
}

func (h *Handler) registerLogRoutes(api *gin.RouterGroup) {
	logs := api.Group("/logs")
	{
		logs.GET("/", h.getLogs)
	}
}
