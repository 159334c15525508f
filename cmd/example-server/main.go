// Command example-server shows how a protocol layer wires the admission
// engine: it classifies routes into operation classes, translates denials
// into 429 responses with the usual rate-limit headers, and feeds failure
// outcomes back into the engine.
package main

import (
	"net"
	"net/http"
	"os"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/kestrelhq/admission/internal/config"
	"github.com/kestrelhq/admission/pkg/admission"
	"github.com/kestrelhq/admission/pkg/eventlog"
	"github.com/kestrelhq/admission/pkg/metrics"
)

func main() {
	logger := newLogger()
	defer logger.Sync()

	cfg, err := config.Load()
	if err != nil {
		logger.Fatal("config load failed", zap.Error(err))
	}

	sink := buildSink(logger, cfg.Redis)

	opts := []admission.Option{
		admission.WithLogger(logger),
		admission.WithSink(sink),
		admission.WithRecorder(metrics.NewPrometheusRecorder(nil)),
	}
	for op, tier := range cfg.Engine.TierOverrides {
		opts = append(opts, admission.WithTierConfig(op, tier))
	}

	engine, err := admission.New(opts...)
	if err != nil {
		logger.Fatal("engine construction failed", zap.Error(err))
	}

	if cfg.Engine.SweepInterval > 0 {
		go runSweeper(engine, logger, cfg.Engine.SweepInterval, cfg.Engine.SweepMaxIdle)
	}

	r := chi.NewRouter()
	r.Use(chimiddleware.Recoverer)
	r.Handle("/metrics", promhttp.Handler())

	r.Group(func(r chi.Router) {
		r.Use(admit(engine, admission.OpSearch))
		r.Get("/search", handle("search results"))
	})
	r.Group(func(r chi.Router) {
		r.Use(admit(engine, admission.OpView))
		r.Get("/items/{id}", handle("item"))
	})
	r.Group(func(r chi.Router) {
		r.Use(admit(engine, admission.OpCreate))
		r.Post("/items", handle("created"))
	})
	r.Group(func(r chi.Router) {
		r.Use(admit(engine, admission.OpUpdate))
		r.Put("/items/{id}", handle("updated"))
	})

	addr := ":" + cfg.Server.Port
	logger.Info("listening", zap.String("addr", addr))
	if err := http.ListenAndServe(addr, r); err != nil {
		logger.Fatal("server stopped", zap.Error(err))
	}
}

// admit checks the engine before the handler runs. The caller identity comes
// from the X-API-Key header when present; otherwise the request is anonymous
// and limited by source IP.
func admit(engine *admission.Engine, op admission.Operation) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			identity := r.Header.Get("X-API-Key")
			authenticated := identity != ""
			if !authenticated {
				identity = clientIP(r)
			}

			res, err := engine.Check(r.Context(), op, identity, authenticated)
			if err != nil {
				http.Error(w, "internal error", http.StatusInternalServerError)
				return
			}

			w.Header().Set("X-RateLimit-Remaining", strconv.Itoa(res.Remaining))
			w.Header().Set("X-RateLimit-Reset", strconv.FormatInt(res.ResetTime.Unix(), 10))
			if !res.Allowed {
				w.Header().Set("Retry-After", strconv.Itoa(res.RetryAfterSeconds()))
				http.Error(w, "rate limit exceeded", http.StatusTooManyRequests)
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

func handle(body string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(body + "\n"))
	}
}

func clientIP(r *http.Request) string {
	ip, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return ip
}

func buildSink(logger *zap.Logger, cfg config.RedisConfig) eventlog.Sink {
	if cfg.Addr == "" {
		return eventlog.NewZapSink(logger)
	}

	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})
	sink, err := eventlog.NewRedisSink(client)
	if err != nil {
		logger.Warn("redis sink unavailable, falling back to log sink", zap.Error(err))
		return eventlog.NewZapSink(logger)
	}
	logger.Info("security events going to redis stream", zap.String("addr", cfg.Addr))
	return sink
}

func runSweeper(engine *admission.Engine, logger *zap.Logger, interval, maxIdle time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for range ticker.C {
		if removed := engine.Sweep(maxIdle); removed > 0 {
			logger.Info("swept idle keys", zap.Int("removed", removed))
		}
	}
}

func newLogger() *zap.Logger {
	cfg := zap.NewProductionConfig()
	cfg.EncoderConfig.TimeKey = "timestamp"
	cfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder

	logger, err := cfg.Build()
	if err != nil {
		os.Exit(1)
	}
	return logger
}
