package apiserver

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/helios/lifecycle/pkg/apiserver/handlers"
	"github.com/helios/lifecycle/pkg/apiserver/middleware"
	"github.com/helios/lifecycle/pkg/auth"
	"github.com/helios/lifecycle/pkg/lifecycle"
	"github.com/helios/lifecycle/pkg/store"
)

type Server struct {
	router  *gin.Engine
	service *lifecycle.Service
	logs    store.LogStore
	events  store.EventStore
	tokens  *auth.OperatorTokenManager
	logger  *zap.Logger
}

// NewServer builds the HTTP API. events may be nil, in which case the action
// history route is not registered.
func NewServer(service *lifecycle.Service, logs store.LogStore, events store.EventStore, tokens *auth.OperatorTokenManager, logger *zap.Logger) *Server {
	s := &Server{
		service: service,
		logs:    logs,
		events:  events,
		tokens:  tokens,
		logger:  logger,
	}
	s.setupRouter()
	return s
}

func (s *Server) setupRouter() {
	gin.SetMode(gin.ReleaseMode)
	r := gin.New()

	r.Use(gin.Recovery())
	r.Use(middleware.RequestID())
	r.Use(middleware.Logger(s.logger))
	r.Use(middleware.CORS())

	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	api := r.Group("/api/v1")
	{
		api.Use(middleware.Auth(s.tokens))

		read := middleware.RequireScope(auth.ScopeRead)
		write := middleware.RequireScope(auth.ScopeWrite)
		approve := middleware.RequireScope(auth.ScopeApprove)

		actionHandler := handlers.NewActionHandler(s.service, s.logger)
		api.POST("/organizations/:orgId/actions", write, actionHandler.Schedule)
		api.GET("/actions", read, actionHandler.List)
		api.GET("/actions/pending", read, actionHandler.ListPending)
		api.GET("/actions/:id", read, actionHandler.Get)
		api.PATCH("/actions/:id", write, actionHandler.Update)
		api.POST("/actions/:id/cancel", write, actionHandler.Cancel)
		api.POST("/actions/:id/approve", approve, actionHandler.Approve)
		api.POST("/actions/:id/reject", approve, actionHandler.Reject)
		api.POST("/scheduler/tick", middleware.RequireScope(auth.ScopeSchedule), actionHandler.Tick)

		logHandler := handlers.NewLogHandler(s.service, s.logs, s.logger)
		api.GET("/actions/:id/logs", read, logHandler.ActionLogs)
		api.GET("/organizations/:orgId/logs", read, logHandler.OrganizationLogs)

		if s.events != nil {
			eventHandler := handlers.NewEventHandler(s.service, s.events, s.logger)
			api.GET("/actions/:id/events", read, eventHandler.ActionEvents)
		}
	}

	s.router = r
}

func (s *Server) Router() *gin.Engine {
	return s.router
}
