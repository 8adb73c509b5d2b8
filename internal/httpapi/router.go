package httpapi

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"modqueue/internal/bootstrap/logging"
	"modqueue/internal/domain/reviewable"
	"modqueue/internal/usecase/review"
)

// ReviewService is the slice of the review workflow served over HTTP.
type ReviewService interface {
	ActorResolver
	List(ctx context.Context, input review.ListInput) ([]review.ListEntry, error)
	Describe(ctx context.Context, actor reviewable.Actor, reviewableID uint64) (review.ListEntry, error)
	PendingCount(ctx context.Context, actor *reviewable.Actor) (int64, error)
	UpdateReviewable(ctx context.Context, input review.UpdateInput) (review.UpdateResult, error)
	PerformReviewable(ctx context.Context, input review.PerformInput) (*reviewable.PerformResult, error)
}

type Deps struct {
	Reviews  ReviewService
	Tokens   *Tokens
	Gatherer prometheus.Gatherer
	// Events enables GET /review/stream when set.
	Events EventSource
}

func NewRouter(deps Deps) http.Handler {
	r := chi.NewRouter()
	r.Use(chimw.RequestID)
	r.Use(chimw.RealIP)
	r.Use(requestLogger)
	r.Use(chimw.Recoverer)

	r.Get("/health", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	if deps.Gatherer != nil {
		r.Method(http.MethodGet, "/metrics", promhttp.HandlerFor(deps.Gatherer, promhttp.HandlerOpts{}))
	}

	h := &reviewHandler{reviews: deps.Reviews, events: deps.Events}
	r.Route("/review", func(r chi.Router) {
		r.Use(RequireActor(deps.Tokens, deps.Reviews))
		r.Get("/", h.list)
		r.Get("/count", h.count)
		if deps.Events != nil {
			r.Get("/stream", h.stream)
		}
		r.Get("/{id}", h.show)
		r.Put("/{id}", h.update)
		r.Put("/{id}/perform/{action}", h.perform)
	})
	return r
}

func requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		started := time.Now()
		ctx := logging.WithComponent(r.Context(), "httpapi")
		ctx = logging.WithAttrs(ctx, slog.String("request_id", chimw.GetReqID(ctx)))
		ww := chimw.NewWrapResponseWriter(w, r.ProtoMajor)

		next.ServeHTTP(ww, r.WithContext(ctx))

		logging.Debug(ctx, "http request",
			slog.String("method", r.Method),
			slog.String("path", r.URL.Path),
			slog.Int("status", ww.Status()),
			slog.Duration("took", time.Since(started)),
		)
	})
}

func actorAttr(id uint64) slog.Attr {
	return slog.Uint64("actor_id", id)
}
