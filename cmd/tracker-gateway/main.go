// Package main provides the live tracker gateway service
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/google/uuid"
	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"

	"github.com/argosight/livetrack/pkg/config"
	"github.com/argosight/livetrack/pkg/events"
	"github.com/argosight/livetrack/pkg/handler"
	"github.com/argosight/livetrack/pkg/model"
	natsutil "github.com/argosight/livetrack/pkg/nats"
	"github.com/argosight/livetrack/pkg/provider"
	"github.com/argosight/livetrack/pkg/store"
)

// Config holds the tracker gateway configuration
type Config struct {
	// Server settings
	HTTPAddr string
	HTTPPort int

	// External services
	NATSUrl string // empty disables event publishing

	// Tracker settings
	FeedsFile       string
	IncludeCivil    bool
	RefreshInterval time.Duration
	HistoryWindow   time.Duration
	FetchLimit      int

	// Stream auth
	StreamSecret string

	// Flight provider credentials
	FlightBasicUser   string
	FlightBasicPass   string
	FlightOAuthID     string
	FlightOAuthSecret string
	FlightOAuthToken  string
	FlightThrottle    time.Duration

	// CORS settings
	CORSOrigins []string

	// Logging
	LogLevel string
	LogJSON  bool
}

// DefaultConfig returns configuration populated from the environment
func DefaultConfig() Config {
	return Config{
		HTTPAddr:          "0.0.0.0",
		HTTPPort:          getEnvInt("HTTP_PORT", 8080),
		NATSUrl:           getEnv("NATS_URL", ""),
		FeedsFile:         getEnv("FEEDS_FILE", ""),
		IncludeCivil:      getEnv("INCLUDE_CIVIL", "false") == "true",
		RefreshInterval:   getEnvDuration("REFRESH_INTERVAL", store.DefaultMinRefreshInterval),
		HistoryWindow:     getEnvDuration("HISTORY_WINDOW", store.DefaultHistoryWindow),
		FetchLimit:        getEnvInt("FETCH_LIMIT", store.DefaultFetchLimit),
		StreamSecret:      getEnv("STREAM_SECRET", ""),
		FlightBasicUser:   getEnv("FLIGHT_API_USER", ""),
		FlightBasicPass:   getEnv("FLIGHT_API_PASS", ""),
		FlightOAuthID:     getEnv("FLIGHT_OAUTH_CLIENT_ID", ""),
		FlightOAuthSecret: getEnv("FLIGHT_OAUTH_CLIENT_SECRET", ""),
		FlightOAuthToken:  getEnv("FLIGHT_OAUTH_TOKEN_URL", ""),
		FlightThrottle:    getEnvDuration("FLIGHT_MIN_INTERVAL", 0),
		CORSOrigins:       strings.Split(getEnv("CORS_ORIGINS", "http://localhost:3000,http://127.0.0.1:3000"), ","),
		LogLevel:          getEnv("LOG_LEVEL", "info"),
		LogJSON:           getEnv("LOG_JSON", "false") == "true",
	}
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if n, err := strconv.Atoi(value); err == nil {
			return n
		}
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}

// Prometheus metrics
var (
	httpRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "livetrack_http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"method", "path", "status"},
	)

	httpRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "livetrack_http_request_duration_seconds",
			Help:    "HTTP request duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "path"},
	)

	streamConnectionsActive = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "livetrack_stream_connections_active",
			Help: "Number of active stream connections",
		},
	)

	trackedEntities = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "livetrack_tracked_entities",
			Help: "Number of entities with retained history",
		},
	)

	natsConnectionStatus = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "livetrack_nats_connection_status",
			Help: "NATS connection status (1=connected, 0=disconnected)",
		},
	)
)

func init() {
	prometheus.MustRegister(httpRequestsTotal)
	prometheus.MustRegister(httpRequestDuration)
	prometheus.MustRegister(streamConnectionsActive)
	prometheus.MustRegister(trackedEntities)
	prometheus.MustRegister(natsConnectionStatus)
}

func main() {
	cfg := DefaultConfig()

	setupLogging(cfg)

	log.Info().
		Int("http_port", cfg.HTTPPort).
		Str("nats_url", cfg.NATSUrl).
		Str("feeds_file", cfg.FeedsFile).
		Dur("refresh_interval", cfg.RefreshInterval).
		Msg("Starting tracker gateway")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigChan
		log.Info().Str("signal", sig.String()).Msg("Received shutdown signal")
		cancel()
	}()

	feeds, err := config.LoadFeeds(cfg.FeedsFile)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to load feeds configuration")
	}

	st := buildStore(cfg, feeds)

	nc := connectNATS(cfg)
	if nc != nil {
		defer nc.Close()
		wirePublisher(st, nc, cfg)
	}

	streamHandler := handler.NewStreamHandler(st, cfg.StreamSecret, log.Logger)
	router := setupRouter(cfg, st, nc, streamHandler)

	server := &http.Server{
		Addr:         fmt.Sprintf("%s:%d", cfg.HTTPAddr, cfg.HTTPPort),
		Handler:      router,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 90 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	g, gCtx := errgroup.WithContext(ctx)

	// Background refresh keeps the cache warm even without queries
	g.Go(func() error {
		ticker := time.NewTicker(cfg.RefreshInterval)
		defer ticker.Stop()
		st.Refresh(gCtx, true)
		for {
			select {
			case <-gCtx.Done():
				return nil
			case <-ticker.C:
				st.Refresh(gCtx, false)
			}
		}
	})

	// Update gauges periodically
	g.Go(func() error {
		ticker := time.NewTicker(10 * time.Second)
		defer ticker.Stop()
		for {
			select {
			case <-gCtx.Done():
				return nil
			case <-ticker.C:
				streamConnectionsActive.Set(float64(streamHandler.ClientCount()))
				trackedEntities.Set(float64(st.TrackedEntities()))
			}
		}
	})

	g.Go(func() error {
		log.Info().Str("addr", server.Addr).Msg("HTTP server starting")
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			return fmt.Errorf("HTTP server error: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		<-gCtx.Done()
		log.Info().Msg("Shutting down HTTP server")

		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer shutdownCancel()

		return server.Shutdown(shutdownCtx)
	})

	if err := g.Wait(); err != nil {
		log.Error().Err(err).Msg("Server error")
	}

	log.Info().Msg("Tracker gateway shutdown complete")
}

func setupLogging(cfg Config) {
	level, err := zerolog.ParseLevel(cfg.LogLevel)
	if err != nil {
		level = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(level)

	if cfg.LogJSON {
		log.Logger = zerolog.New(os.Stdout).With().Timestamp().Logger()
	} else {
		log.Logger = zerolog.New(zerolog.ConsoleWriter{Out: os.Stdout, TimeFormat: time.RFC3339}).
			With().Timestamp().Logger()
	}
}

func buildStore(cfg Config, feeds config.Feeds) *store.Store {
	flightAdapter := provider.NewFlightAdapter(provider.FlightConfig{
		FeedURLs:          feeds.Flight.URLs,
		FeedFiles:         feeds.Flight.Files,
		BasicUser:         cfg.FlightBasicUser,
		BasicPass:         cfg.FlightBasicPass,
		OAuthClientID:     cfg.FlightOAuthID,
		OAuthClientSecret: cfg.FlightOAuthSecret,
		OAuthTokenURL:     cfg.FlightOAuthToken,
		IncludeCivil:      cfg.IncludeCivil,
		MinInterval:       cfg.FlightThrottle,
	}, log.Logger)

	shippingAdapter := provider.NewShippingAdapter(provider.ShippingConfig{
		FeedURL: feeds.Shipping.URL,
	}, log.Logger)

	return store.New(flightAdapter, shippingAdapter, store.Options{
		MinRefreshInterval: cfg.RefreshInterval,
		HistoryWindow:      cfg.HistoryWindow,
		FetchLimit:         cfg.FetchLimit,
		Logger:             log.Logger,
	})
}

func connectNATS(cfg Config) *nats.Conn {
	if cfg.NATSUrl == "" {
		return nil
	}

	nc, err := nats.Connect(cfg.NATSUrl,
		nats.Name("livetrack-gateway"),
		nats.RetryOnFailedConnect(true),
		nats.MaxReconnects(-1),
		nats.ReconnectWait(2*time.Second),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			log.Warn().Err(err).Msg("NATS disconnected")
			natsConnectionStatus.Set(0)
		}),
		nats.ReconnectHandler(func(_ *nats.Conn) {
			log.Info().Msg("NATS reconnected")
			natsConnectionStatus.Set(1)
		}),
	)
	if err != nil {
		log.Warn().Err(err).Msg("Failed to connect to NATS, continuing without event publishing")
		return nil
	}

	log.Info().Str("url", cfg.NATSUrl).Msg("Connected to NATS")
	natsConnectionStatus.Set(1)

	js, err := jetstream.New(nc)
	if err != nil {
		log.Warn().Err(err).Msg("JetStream unavailable, publishing to core NATS only")
		return nc
	}
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := natsutil.SetupStreams(ctx, js); err != nil {
		log.Warn().Err(err).Msg("Failed to provision JetStream streams")
	}
	return nc
}

// wirePublisher publishes a refresh event per kind after each provider round.
func wirePublisher(st *store.Store, nc *nats.Conn, cfg Config) {
	secret := []byte(cfg.StreamSecret)
	st.SetRefreshHook(func(stats store.RefreshStats) {
		publish := func(kind model.Kind, count int) {
			ev := events.NewRefreshEvent("livetrack-gateway", kind, count, stats.Warnings, stats.Forced, stats.RefreshedAt)
			data, err := events.MarshalSigned(ev, secret)
			if err != nil {
				log.Warn().Err(err).Msg("Failed to marshal refresh event")
				return
			}
			if err := nc.Publish(ev.Subject(), data); err != nil {
				log.Warn().Err(err).Str("subject", ev.Subject()).Msg("Failed to publish refresh event")
			}
		}
		publish(model.KindFlight, stats.FlightCount)
		publish(model.KindShip, stats.ShipCount)
	})
}

func setupRouter(cfg Config, st *store.Store, nc *nats.Conn, streamHandler *handler.StreamHandler) chi.Router {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(correlationIDMiddleware)
	r.Use(middleware.RealIP)
	r.Use(requestLogger)
	r.Use(middleware.Recoverer)
	r.Use(prometheusMiddleware)

	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   cfg.CORSOrigins,
		AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-API-Key", "X-Correlation-ID", "X-Request-ID"},
		ExposedHeaders:   []string{"X-Correlation-ID", "X-Request-ID"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	r.Get("/health", healthHandler(st, nc))
	r.Handle("/metrics", promhttp.Handler())
	r.Handle("/ws", streamHandler)

	r.Route("/api/v1", func(r chi.Router) {
		trackerHandler := handler.NewTrackerHandler(st, log.Logger)
		statsHandler := handler.NewStatsHandler(st, streamHandler, log.Logger)
		r.Mount("/trackers", trackerHandler.Routes())
		r.Mount("/stats", statsHandler.Routes())
	})

	return r
}

// correlationIDMiddleware adds a correlation ID to each request
func correlationIDMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		correlationID := r.Header.Get("X-Correlation-ID")
		if correlationID == "" {
			correlationID = uuid.New().String()
		}

		ctx := handler.WithCorrelationID(r.Context(), correlationID)
		w.Header().Set("X-Correlation-ID", correlationID)

		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// requestLogger logs each HTTP request
func requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()

		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)

		duration := time.Since(start)
		correlationID := handler.GetCorrelationID(r.Context())

		log.Info().
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Int("status", ww.Status()).
			Int("bytes", ww.BytesWritten()).
			Dur("duration", duration).
			Str("correlation_id", correlationID).
			Str("remote_addr", r.RemoteAddr).
			Msg("HTTP request")
	})
}

// prometheusMiddleware records HTTP metrics
func prometheusMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)

		next.ServeHTTP(ww, r)

		duration := time.Since(start)
		path := chi.RouteContext(r.Context()).RoutePattern()
		if path == "" {
			path = r.URL.Path
		}

		httpRequestsTotal.WithLabelValues(r.Method, path, fmt.Sprintf("%d", ww.Status())).Inc()
		httpRequestDuration.WithLabelValues(r.Method, path).Observe(duration.Seconds())
	})
}

// HealthResponse represents the health check response
type HealthResponse struct {
	Status        string            `json:"status"`
	Version       string            `json:"version"`
	Uptime        string            `json:"uptime"`
	Components    map[string]string `json:"components"`
	CorrelationID string            `json:"correlation_id"`
}

var startTime = time.Now()

func healthHandler(st *store.Store, nc *nats.Conn) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		correlationID := handler.GetCorrelationID(r.Context())

		response := HealthResponse{
			Status:        "healthy",
			Version:       "1.0.0",
			Uptime:        time.Since(startTime).Round(time.Second).String(),
			Components:    make(map[string]string),
			CorrelationID: correlationID,
		}

		last := st.LastRefresh()
		switch {
		case last.IsZero():
			response.Components["tracker_store"] = "no refresh completed yet"
			response.Status = "degraded"
		default:
			response.Components["tracker_store"] = fmt.Sprintf("last refresh %s ago", time.Since(last).Round(time.Second))
		}

		if nc != nil {
			if nc.IsConnected() {
				response.Components["nats"] = "connected"
			} else {
				response.Components["nats"] = "disconnected"
				response.Status = "degraded"
			}
		}

		status := http.StatusOK
		if response.Status != "healthy" {
			status = http.StatusServiceUnavailable
		}

		handler.WriteJSON(w, status, response)
	}
}
