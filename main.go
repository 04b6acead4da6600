package main

import (
	"context"
	"errors"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	alpacamd "github.com/alpacahq/alpaca-trade-api-go/v3/marketdata"
	"github.com/gorilla/mux"
	"github.com/joho/godotenv"
	log "github.com/sirupsen/logrus"

	"github.com/quantdesk/options-desk/analysis"
	"github.com/quantdesk/options-desk/dte"
	"github.com/quantdesk/options-desk/marketdata"
	"github.com/quantdesk/options-desk/notification"
	"github.com/quantdesk/options-desk/scheduler"
	"github.com/quantdesk/options-desk/server"
	"github.com/quantdesk/options-desk/storage"
	"github.com/quantdesk/options-desk/tastytrade"
)

const (
	defaultPort      = "8080"
	maxNotifications = 100
)

func main() {
	if err := godotenv.Load(); err != nil {
		if !errors.Is(err, os.ErrNotExist) {
			log.Warnf("loading .env file: %v", err)
		}
	}

	port := flag.String("port", envOr("PORT", defaultPort), "Port to listen on")
	production := flag.Bool("production", os.Getenv("TT_PRODUCTION") == "true", "Use the production tastytrade API")
	runScheduler := flag.Bool("scheduler", true, "Run the weekly analysis scheduler")
	flag.Parse()

	if os.Getenv("LOG_LEVEL") == "trace" {
		log.SetLevel(log.TraceLevel)
	}

	// tastytrade client for option chains and quotes.
	baseURL := tastytrade.SandboxBaseURL
	environment := "sandbox"
	if *production {
		baseURL = tastytrade.ProductionBaseURL
		environment = "production"
	}

	var store *storage.Store
	if dsn := os.Getenv("DATABASE_URL"); dsn != "" {
		var err error
		store, err = storage.Open(dsn)
		if err != nil {
			log.Fatalf("opening database: %v", err)
		}
		log.Info("database connected")
	} else {
		log.Warn("DATABASE_URL not set, running without persistence")
	}

	accessToken := os.Getenv("TT_ACCESS_TOKEN")
	if accessToken == "" && store != nil {
		token, _, err := store.LoadTokens(environment)
		if err != nil {
			log.Warnf("loading %s tokens from database: %v", environment, err)
		}
		accessToken = token
	}
	if accessToken == "" {
		log.Warnf("no %s access token configured, option chain requests will fail", environment)
	}

	ttClient := tastytrade.NewClient(baseURL, tastytrade.StaticToken(accessToken))
	discoverer := dte.NewDiscoverer(ttClient)

	// Alpaca supplies the historical bars behind the indicators.
	bars := alpacamd.NewClient(alpacamd.ClientOpts{
		APIKey:    os.Getenv("ALPACA_API_KEY"),
		APISecret: os.Getenv("ALPACA_SECRET_KEY"),
	})
	market := marketdata.NewService(ttClient, bars)

	analyzer := analysis.NewClient(
		os.Getenv("XAI_API_KEY"),
		os.Getenv("XAI_API_URL"),
		os.Getenv("XAI_MODEL"),
	)

	feed := notification.NewManager(maxNotifications)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var runner server.PipelineRunner
	if store != nil {
		sched := scheduler.New(scheduler.DefaultConfig(), discoverer, market, analyzer, store, feed)
		if *runScheduler {
			sched.Start(ctx)
			defer sched.Stop()
		}
		runner = sched
	} else {
		log.Warn("scheduler disabled, it requires persistence")
	}

	router := mux.NewRouter()

	var analysisStore server.AnalysisStore
	if store != nil {
		analysisStore = store
	}
	api := server.New(discoverer, market, analysisStore, runner)
	api.RegisterRoutes(router)
	notification.NewHandler(feed).RegisterRoutes(router)

	httpServer := &http.Server{
		Addr:         ":" + *port,
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 30 * time.Second,
	}

	go func() {
		log.Infof("listening on :%s (%s environment)", *port, environment)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatalf("http server: %v", err)
		}
	}()

	<-ctx.Done()
	log.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		log.Errorf("shutdown: %v", err)
	}
}

func envOr(key, fallback string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return fallback
}
