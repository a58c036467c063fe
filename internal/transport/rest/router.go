package rest

import (
	"net/http"

	"github.com/gorilla/mux"
	"go.uber.org/zap"

	"github.com/sso312/QueryLens-sub002/internal/repository"
	"github.com/sso312/QueryLens-sub002/internal/service"
	"github.com/sso312/QueryLens-sub002/internal/transport/rest/handler"
	"github.com/sso312/QueryLens-sub002/internal/transport/rest/middleware"
	"github.com/sso312/QueryLens-sub002/internal/transport/ws"
)

// Container holds all dependencies for the router
type Container struct {
	QueryService *service.QueryService
	AuthService  *service.AuthService // nil disables operator auth
	AuditLog     repository.AuditLog
	CostLedger   repository.CostLedger
	WSHub        *ws.Hub
	CORSOrigins  string
	Logger       *zap.Logger
}

// NewRouter creates the API router with all endpoints
func NewRouter(c *Container) http.Handler {
	r := mux.NewRouter()

	queryHandler := handler.NewQueryHandler(c.QueryService, c.Logger)
	auditHandler := handler.NewAuditHandler(c.AuditLog, c.CostLedger, c.Logger)
	wsHandler := ws.NewHandler(c.WSHub, c.AuthService, c.Logger)

	r.Use(corsMiddleware(c.CORSOrigins))

	v1 := r.PathPrefix("/v1").Subrouter()

	// Public routes
	if c.AuthService != nil {
		authHandler := handler.NewAuthHandler(c.AuthService)
		v1.HandleFunc("/auth/login", authHandler.Login).Methods("POST", "OPTIONS")
	}

	// WebSocket routes (token in query param)
	v1.HandleFunc("/ws/requests/{id}", wsHandler.RequestTrail).Methods("GET")

	r.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		w.Write([]byte(`{"status":"ok"}`))
	}).Methods("GET")

	// Operator routes
	api := v1.NewRoute().Subrouter()
	if c.AuthService != nil {
		api.Use(middleware.NewAuthMiddleware(c.AuthService).RequireOperator)
	}

	api.HandleFunc("/query", queryHandler.Query).Methods("POST", "OPTIONS")
	api.HandleFunc("/policy/check", queryHandler.PolicyCheck).Methods("POST", "OPTIONS")
	api.HandleFunc("/classify", queryHandler.Classify).Methods("POST", "OPTIONS")
	api.HandleFunc("/audit", auditHandler.Recent).Methods("GET", "OPTIONS")
	api.HandleFunc("/costs/summary", auditHandler.CostSummary).Methods("GET", "OPTIONS")

	return r
}

func corsMiddleware(allowedOrigins string) mux.MiddlewareFunc {
	if allowedOrigins == "" {
		allowedOrigins = "*"
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Access-Control-Allow-Origin", allowedOrigins)
			w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
			w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")

			if r.Method == "OPTIONS" {
				w.WriteHeader(http.StatusOK)
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}
