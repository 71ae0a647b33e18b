package main

import (
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5/middleware"

	"github.com/liamcoop/decisions/decision"
	"github.com/liamcoop/decisions/hitpolicy"
	"github.com/liamcoop/decisions/internal/logger"
)

const slowRequestThreshold = time.Second

// requestLogger logs every request through the structured logger and feeds the
// HTTP error counters.
func requestLogger(slow time.Duration) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			start := time.Now()

			next.ServeHTTP(ww, r)

			elapsed := time.Since(start)
			status := ww.Status()
			if status == 0 {
				status = http.StatusOK
			}

			args := []any{
				"method", r.Method,
				"path", r.URL.Path,
				"status", status,
				"bytes", ww.BytesWritten(),
				"duration_ms", float64(elapsed.Microseconds()) / 1000,
				"request_id", middleware.GetReqID(r.Context()),
			}

			switch {
			case status >= 500:
				logger.ErrorHttp5xx()
				logger.Error("request failed", args...)
			case status >= 400:
				logger.WarnHttp4xx(status)
				logger.Warn("request rejected", args...)
			default:
				logger.Debug("request served", args...)
			}

			if elapsed > slow {
				logger.WarnSlowRequest()
				logger.Warn("slow request", args...)
			}
		})
	}
}

// evaluationLogger reports table evaluations through the structured logger
type evaluationLogger struct{}

func (evaluationLogger) OnEvaluation(event decision.EvaluationEvent) {
	args := []any{
		"table_id", event.TableID,
		"table_key", event.TableKey,
		"hit_policy", event.Config.String(),
		"duration_ms", float64(event.Duration.Microseconds()) / 1000,
	}

	var hpErr *hitpolicy.Error
	switch {
	case event.Err == nil:
		logger.Debug("table evaluated", append(args, "matched", event.Matched)...)
	case errors.As(event.Err, &hpErr):
		logger.WarnHitPolicy("hit policy violation", append(args, "code", string(hpErr.Code), "error", hpErr.Message)...)
	default:
		logger.ErrorEvaluation("table evaluation failed", append(args, "error", event.Err.Error())...)
	}
}
