package main

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"github.com/avika/achexport/internal/auth"
	"github.com/avika/achexport/internal/payment/interfaces"
	"go.uber.org/zap"
)

type Response struct {
	Message string `json:"message"`
}

type HealthChecker interface {
	Health(ctx context.Context) map[string]string
}

type Server struct {
	router               *http.ServeMux
	authorizationHandler *interfaces.AuthorizationHandler
	batchHandler         *interfaces.BatchHandler
	linkHandler          *interfaces.LinkHandler
	operatorAuth         *auth.Middleware
	health               HealthChecker
	logger               *zap.Logger
}

func NewServer(
	authorizationHandler *interfaces.AuthorizationHandler,
	batchHandler *interfaces.BatchHandler,
	linkHandler *interfaces.LinkHandler,
	operatorAuth *auth.Middleware,
	health HealthChecker,
	logger *zap.Logger,
) *Server {
	return &Server{
		router:               http.NewServeMux(),
		authorizationHandler: authorizationHandler,
		batchHandler:         batchHandler,
		linkHandler:          linkHandler,
		operatorAuth:         operatorAuth,
		health:               health,
		logger:               logger,
	}
}

func notFoundHandler(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusNotFound)
	json.NewEncoder(w).Encode(Response{Message: "Path not found"})
}

func (s *Server) handleReady(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	stats := s.health.Health(ctx)
	status := http.StatusOK
	if stats["status"] != "up" {
		status = http.StatusServiceUnavailable
	}
	interfaces.RespondJSON(w, status, map[string]string{"status": stats["status"]})
}

func (s *Server) loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		next.ServeHTTP(w, r)
		// download paths carry the token, so only the route prefix is logged
		path := r.URL.Path
		if strings.HasPrefix(path, "/api/downloads/") {
			path = "/api/downloads/{token}"
		}
		s.logger.Info("Request completed",
			zap.String("method", r.Method),
			zap.String("path", path),
			zap.Duration("duration", time.Since(start)),
		)
	})
}

func (s *Server) RegisterRoutes() {
	// Public routes
	publicRoutes := http.NewServeMux()
	publicRoutes.Handle("POST /api/authorizations", http.HandlerFunc(s.authorizationHandler.CreateAuthorization))
	publicRoutes.Handle("GET /api/downloads/{token}", http.HandlerFunc(s.linkHandler.RedeemLink))
	publicRoutes.Handle("GET /api/ready", http.HandlerFunc(s.handleReady))

	// Operator routes
	adminRoutes := http.NewServeMux()
	adminRoutes.Handle("POST /api/admin/batches", s.operatorAuth.RequireOperator(http.HandlerFunc(s.batchHandler.BuildBatch)))
	adminRoutes.Handle("POST /api/admin/links", s.operatorAuth.RequireOperator(http.HandlerFunc(s.linkHandler.IssueLink)))

	mainRouter := http.NewServeMux()
	mainRouter.Handle("/api/", publicRoutes)
	mainRouter.Handle("/api/admin/", adminRoutes)
	mainRouter.Handle("/", http.HandlerFunc(notFoundHandler))

	s.router = mainRouter
}

func (s *Server) Handler() http.Handler {
	return s.loggingMiddleware(s.router)
}
