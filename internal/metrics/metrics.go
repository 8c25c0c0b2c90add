package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "content_service"

var (
	// requestDuration - латентность HTTP-запросов.
	// Labels: method, route (шаблон chi), status
	requestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: namespace,
		Subsystem: "http",
		Name:      "request_duration_seconds",
		Help:      "HTTP request latency in seconds",
		Buckets:   prometheus.DefBuckets,
	}, []string{"method", "route", "status"})

	// likeToggles считает переключения лайков.
	// Labels: result (liked, unliked)
	likeToggles = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "interactions",
		Name:      "like_toggles_total",
		Help:      "Total like toggles by resulting state",
	}, []string{"result"})

	// commentOps считает операции с комментариями.
	// Labels: op (add, delete)
	commentOps = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "interactions",
		Name:      "comment_ops_total",
		Help:      "Total comment additions and deletions",
	}, []string{"op"})

	mediaReleaseFailures = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "media",
		Name:      "release_failures_total",
		Help:      "Attachments that could not be released and were left orphaned",
	})

	streamSubscribers = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Subsystem: "stream",
		Name:      "subscribers",
		Help:      "Currently connected comment stream subscribers",
	})
)

// LikeToggled фиксирует результат переключения лайка.
func LikeToggled(liked bool) {
	if liked {
		likeToggles.WithLabelValues("liked").Inc()
		return
	}
	likeToggles.WithLabelValues("unliked").Inc()
}

func CommentAdded()           { commentOps.WithLabelValues("add").Inc() }
func CommentDeleted()         { commentOps.WithLabelValues("delete").Inc() }
func MediaReleaseFailed()     { mediaReleaseFailures.Inc() }
func SubscriberConnected()    { streamSubscribers.Inc() }
func SubscriberDisconnected() { streamSubscribers.Dec() }

// Handler отдаёт метрики в формате Prometheus.
func Handler() http.Handler { return promhttp.Handler() }

// Middleware измеряет латентность запросов по шаблону маршрута chi.
func Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)

		route := "unmatched"
		if rctx := chi.RouteContext(r.Context()); rctx != nil {
			if pattern := rctx.RoutePattern(); pattern != "" {
				route = pattern
			}
		}
		status := ww.Status()
		if status == 0 {
			status = http.StatusOK
		}
		requestDuration.WithLabelValues(r.Method, route, strconv.Itoa(status)).Observe(time.Since(start).Seconds())
	})
}
