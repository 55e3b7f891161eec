package main

import (
	"io"
	"net/http"
	"os"
	"time"

	"github.com/gorilla/mux"
	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/jwaldner/remora/internal/analysis"
	"github.com/jwaldner/remora/internal/config"
	"github.com/jwaldner/remora/internal/handlers"
	"github.com/jwaldner/remora/internal/ibkr"
	"github.com/jwaldner/remora/internal/providers"
	"github.com/jwaldner/remora/internal/providers/yahoo"
	"github.com/jwaldner/remora/internal/symbols"
)

func main() {
	_ = godotenv.Load()
	cfg := config.Load()

	initLogging(cfg.Logging)
	log.Info().Str("port", cfg.Port).Msg("🚀 Remora options activity scanner starting")

	// Public provider is always available; the broker path is optional.
	yahooProvider := yahoo.New(8, cfg.Filtering.MinDTE, cfg.Filtering.MaxDTE)

	var ibkrClient *ibkr.Client
	var primary providers.MarketProvider
	connected := func() bool { return false }

	if cfg.Features.EnableIBKR {
		ibkrClient = ibkr.NewClient(cfg.IBKR)
		ibkrProvider := providers.NewIBKRProvider(ibkrClient)
		primary = ibkrProvider
		connected = ibkrProvider.Connected

		if cfg.Features.UseIBKRPrimary {
			log.Info().Str("host", cfg.IBKR.Host).Int("port", cfg.IBKR.Port).
				Msg("📡 IBKR primary enabled, connecting at startup")
			if status := ibkrClient.Connect(); !status.Connected {
				log.Warn().Str("error", status.ErrorMessage).
					Msg("broker unavailable at startup, requests will use fallback")
			}
			defer ibkrClient.Disconnect()
		}
	}

	hybrid := providers.NewHybrid(primary, yahooProvider, connected,
		cfg.Features.UseIBKRPrimary, cfg.Features.FallbackToYfinanc)
	engine := analysis.New(cfg.Filtering, cfg.Position, cfg.Expert)
	symbolService := symbols.NewService()

	optionsHandler := handlers.NewOptionsHandler(hybrid, engine, symbolService, ibkrClient, cfg)

	r := mux.NewRouter()

	r.HandleFunc("/", optionsHandler.RootHandler).Methods("GET")
	r.HandleFunc("/api/analyze/{ticker}", optionsHandler.AnalyzeHandler).Methods("GET")

	r.HandleFunc("/api/ibkr/status", optionsHandler.IBKRStatusHandler).Methods("GET")
	r.HandleFunc("/api/ibkr/connect", optionsHandler.IBKRConnectHandler).Methods("POST")
	r.HandleFunc("/api/ibkr/disconnect", optionsHandler.IBKRDisconnectHandler).Methods("POST")
	r.HandleFunc("/api/ibkr/test/{ticker}", optionsHandler.IBKRTestHandler).Methods("GET")

	r.Handle("/metrics", promhttp.Handler()).Methods("GET")

	// CORS wraps the whole router so preflight requests are answered even
	// for routes registered with a single method.
	srv := &http.Server{
		Addr:         "0.0.0.0:" + cfg.Port,
		Handler:      handlers.CORS(cfg.CORSOrigins)(r),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 120 * time.Second,
	}

	log.Info().Str("addr", srv.Addr).Msg("🌐 HTTP server listening")
	if err := srv.ListenAndServe(); err != nil {
		log.Fatal().Err(err).Msg("server failed")
	}
}

func initLogging(cfg config.LoggingConfig) {
	zerolog.TimeFieldFormat = time.RFC3339

	level, err := zerolog.ParseLevel(cfg.LogLevel)
	if err != nil {
		level = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(level)

	var out io.Writer = zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.Kitchen}
	if cfg.LogFile != "" {
		if f, err := os.OpenFile(cfg.LogFile, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644); err == nil {
			out = zerolog.MultiLevelWriter(out, f)
		}
	}
	log.Logger = log.Output(out)
}
