package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"github.com/eunoia-health/eunoia/backend/internal/handler/chat"
	middlewarePkg "github.com/eunoia-health/eunoia/backend/internal/middleware"
	chatService "github.com/eunoia-health/eunoia/backend/internal/service/chat"
	"github.com/eunoia-health/eunoia/backend/pkg/utils"
)

// RouterOptions tunes the HTTP router.
type RouterOptions struct {
	AllowedOrigins []string
	Logger         *zap.Logger
}

// NewRouter wires HTTP routes to the chat service.
func NewRouter(chatSvc *chatService.Service, opts RouterOptions) http.Handler {
	origins := opts.AllowedOrigins
	if len(origins) == 0 {
		origins = []string{"*"}
	}

	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middlewarePkg.CORS(origins))

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		utils.RespondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	chatHandler := chat.New(chatSvc, opts.Logger)
	r.Route("/api", func(api chi.Router) {
		chatHandler.RegisterRoutes(api)
	})

	return r
}
