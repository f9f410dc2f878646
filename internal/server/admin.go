package server

import (
	"encoding/json"
	"io"
	"net/http"

	"github.com/cockroachdb/errors"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/go-chi/render"

	"sysutils-mcp/internal/dispatch"
	"sysutils-mcp/internal/telemetry"
)

// AdminHandler returns the admin HTTP surface: health, metrics, the tool
// catalog and direct tool invocation.
func (s *Server) AdminHandler() http.Handler {
	log := s.logger.With().Str("component", "admin").Logger()

	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(telemetry.HTTPMetricsMiddleware(s.metrics))

	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Content-Type", "X-Request-Id"},
		ExposedHeaders: []string{"Content-Type", "X-Request-Id"},
		MaxAge:         300,
	}))

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		render.PlainText(w, r, "OK")
	})
	r.Method(http.MethodGet, "/metrics", s.metrics.Handler())

	r.Get("/session", func(w http.ResponseWriter, r *http.Request) {
		render.JSON(w, r, map[string]any{
			"state":   s.State().String(),
			"session": s.Session(),
		})
	})

	r.Route("/tools", func(r chi.Router) {
		r.Get("/", func(w http.ResponseWriter, r *http.Request) {
			render.JSON(w, r, map[string]any{"tools": s.catalog.List()})
		})
		r.Post("/{name}", func(w http.ResponseWriter, r *http.Request) {
			name := chi.URLParam(r, "name")

			body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, int64(s.cfg.MaxMessageBytes)))
			if err != nil {
				status := http.StatusBadRequest
				var tooLarge *http.MaxBytesError
				if errors.As(err, &tooLarge) {
					status = http.StatusRequestEntityTooLarge
				}
				render.Status(r, status)
				render.JSON(w, r, dispatch.Response{Error: &dispatch.Error{
					Kind:    dispatch.InvalidArguments,
					Message: err.Error(),
				}})
				return
			}

			resp := s.dispatcher.Dispatch(r.Context(), dispatch.Request{
				ToolName:  name,
				Arguments: json.RawMessage(body),
			})
			if resp.Error != nil {
				log.Info().
					Str("tool", name).
					Str("kind", string(resp.Error.Kind)).
					Str("request_id", middleware.GetReqID(r.Context())).
					Msg("Admin tool call failed")
			}
			render.Status(r, statusFor(resp))
			render.JSON(w, r, resp)
		})
	})

	return r
}

func statusFor(resp dispatch.Response) int {
	if resp.Error == nil {
		return http.StatusOK
	}
	switch resp.Error.Kind {
	case dispatch.UnknownTool:
		return http.StatusNotFound
	case dispatch.InvalidArguments:
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}
