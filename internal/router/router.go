package router

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"go-docrequest/internal/config"
	"go-docrequest/internal/handler"
	"go-docrequest/internal/metrics"
	"go-docrequest/internal/middleware"
	"go-docrequest/internal/model"
	"go-docrequest/internal/pipeline"
	"go-docrequest/internal/ratelimit"
)

type Handlers struct {
	Auth    *handler.AuthHandler
	Request *handler.RequestHandler
	Note    *handler.NoteHandler
	Form    *handler.FormHandler
	Audit   *handler.AuditHandler
	Health  *handler.HealthHandler
}

type Deps struct {
	Authenticator middleware.Authenticator
	Counter       ratelimit.Counter
	Metrics       *metrics.Registry
}

// chains holds the interceptor stacks shared by routes. Each route gets its
// own pipeline so the terminal handler is fixed at startup.
type chains struct {
	public  []pipeline.HTTPInterceptor
	login   []pipeline.HTTPInterceptor
	authed  []pipeline.HTTPInterceptor
	admin   []pipeline.HTTPInterceptor
	limited []pipeline.HTTPInterceptor
}

func (c chains) serve(stack []pipeline.HTTPInterceptor, h pipeline.HTTPHandler) http.Handler {
	return pipeline.ServePipeline(pipeline.New(h, stack...))
}

func New(cfg *config.Config, deps Deps, h Handlers) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.Recovery)
	r.Use(middleware.RealIP(cfg.ProxyNets))
	r.Use(middleware.CORS(cfg.CORSOrigins))
	r.Use(middleware.SecurityHeaders)

	logging := middleware.Logging(deps.Metrics)
	gate := middleware.AuthGate(deps.Authenticator, deps.Metrics)
	throttle := middleware.NewLoginThrottle(cfg.LoginRateLimitRPM)

	c := chains{
		public: []pipeline.HTTPInterceptor{logging},
		login:  []pipeline.HTTPInterceptor{logging, throttle.Interceptor()},
		authed: []pipeline.HTTPInterceptor{logging, gate},
		admin:  []pipeline.HTTPInterceptor{logging, gate, middleware.RequireKind(model.KindAdmin)},
		limited: []pipeline.HTTPInterceptor{
			logging,
			gate,
			middleware.RateLimit(deps.Counter, middleware.PrincipalOrIPKey, deps.Metrics),
		},
	}

	r.NotFound(c.serve(c.public, notFound).ServeHTTP)
	r.MethodNotAllowed(c.serve(c.public, methodNotAllowed).ServeHTTP)

	r.Method(http.MethodGet, "/health", c.serve(c.public, h.Health.Health))
	if deps.Metrics != nil {
		r.Method(http.MethodGet, "/metrics", deps.Metrics.Handler())
	}

	r.Route("/api/v1", func(api chi.Router) {
		timeout := middleware.Timeout(cfg.RequestTimeout)

		api.Group(func(api chi.Router) {
			api.Use(timeout)

			api.Route("/auth", func(auth chi.Router) {
				auth.Method(http.MethodPost, "/{role}/login", c.serve(c.login, h.Auth.Login))
				auth.Method(http.MethodPost, "/{role}/logout", c.serve(c.authed, h.Auth.Logout))
				auth.Method(http.MethodGet, "/me", c.serve(c.authed, h.Auth.Me))
			})

			api.Method(http.MethodGet, "/request-types/{id}/form", c.serve(c.authed, h.Form.Get))
			api.Method(http.MethodGet, "/audit", c.serve(c.admin, h.Audit.List))
		})

		api.Route("/requests", func(req chi.Router) {
			req.Group(func(req chi.Router) {
				req.Use(timeout)

				req.Method(http.MethodPost, "/", c.serve(c.limited, h.Request.Create))
				req.Method(http.MethodGet, "/", c.serve(c.authed, h.Request.List))
				req.Method(http.MethodPost, "/notes", c.serve(c.admin, h.Note.Add))

				req.Method(http.MethodGet, "/{id}", c.serve(c.authed, h.Request.Get))
				req.Method(http.MethodPut, "/{id}", c.serve(c.admin, h.Request.UpdateStatus))
				req.Method(http.MethodDelete, "/{id}", c.serve(c.admin, h.Request.Delete))
				req.Method(http.MethodGet, "/{id}/notes", c.serve(c.authed, h.Note.List))
				// {id} is a request type id here; kept for clients of the older path.
				req.Method(http.MethodGet, "/{id}/form", c.serve(c.authed, h.Form.Get))
				req.Method(http.MethodPut, "/{id}/documents/{doc_id}/verify", c.serve(c.admin, h.Request.VerifyDocument))
			})

			req.With(middleware.StreamDeadline(cfg.RequestTimeout)).
				Method(http.MethodGet, "/{id}/documents/{doc_id}", c.serve(c.authed, h.Request.Download))
		})
	})

	return r
}

func notFound(*http.Request) pipeline.Response {
	return pipeline.JSON(http.StatusNotFound, model.APIResponse{
		Status:  model.ResponseError,
		Code:    "NOT_FOUND",
		Message: "Route not found",
	})
}

func methodNotAllowed(*http.Request) pipeline.Response {
	return pipeline.JSON(http.StatusMethodNotAllowed, model.APIResponse{
		Status:  model.ResponseError,
		Code:    "METHOD_NOT_ALLOWED",
		Message: "Method not allowed",
	})
}
