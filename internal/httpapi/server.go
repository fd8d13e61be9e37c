package httpapi

import (
	"net/http"
	"time"

	"github.com/MrEthical07/carebook"
	"github.com/MrEthical07/carebook/middleware"
	"github.com/MrEthical07/carebook/permission"
	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"
)

// Server exposes the Engine over JSON HTTP.
type Server struct {
	engine  *carebook.Engine
	logger  *zap.Logger
	metrics http.Handler
}

// NewServer wires handlers to engine. metrics may be nil, in which case
// /metrics is not mounted.
func NewServer(engine *carebook.Engine, logger *zap.Logger, metrics http.Handler) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Server{
		engine:  engine,
		logger:  logger.Named("http"),
		metrics: metrics,
	}
}

func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(chimw.RequestID)
	r.Use(chimw.RealIP)
	r.Use(s.requestContext)
	r.Use(s.accessLog)
	r.Use(chimw.Recoverer)

	r.Get("/health", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	if s.metrics != nil {
		r.Handle("/metrics", s.metrics)
	}

	r.Route("/otp", func(r chi.Router) {
		r.Post("/request", s.handleRequestCode)
		r.Post("/resend", s.handleResendCode)
		r.Post("/verify", s.handleVerifyCode)
	})
	r.Route("/magic-link", func(r chi.Router) {
		r.Post("/request", s.handleRequestMagicLink)
		r.Post("/verify", s.handleVerifyMagicLink)
	})
	r.Post("/login", s.handleLogin)
	r.Post("/signup", s.handleSignup)

	guard := middleware.Guard(s.engine)
	r.With(guard, middleware.RequirePermission(s.engine.Roles(), permission.ProfileRead)).
		Get("/auth/me", s.handleMe)
	r.Route("/admin", func(r chi.Router) {
		r.Use(guard, middleware.RequireRole(carebook.RoleAdmin))
		r.With(middleware.RequirePermission(s.engine.Roles(), permission.RoleManage)).
			Patch("/accounts/{email}/role", s.handleSetRole)
	})

	return r
}

// requestContext copies the request id and client address into the context
// keys the Engine reads for audit events.
func (s *Server) requestContext(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := carebook.WithRequestID(r.Context(), chimw.GetReqID(r.Context()))
		ctx = carebook.WithClientIP(ctx, r.RemoteAddr)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func (s *Server) accessLog(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := chimw.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)
		s.logger.Info("request",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Int("status", ww.Status()),
			zap.Duration("duration", time.Since(start)),
			zap.String("request_id", chimw.GetReqID(r.Context())),
		)
	})
}
