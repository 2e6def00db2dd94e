package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/rs/cors"
	"github.com/rs/zerolog"
	"golang.org/x/text/language"

	"github.com/portalkit/viewdata/internal/api"
	"github.com/portalkit/viewdata/internal/config"
	"github.com/portalkit/viewdata/internal/domain"
	"github.com/portalkit/viewdata/internal/engine"
	"github.com/portalkit/viewdata/internal/export"
	"github.com/portalkit/viewdata/internal/metadata"
	"github.com/portalkit/viewdata/internal/middleware"
	"github.com/portalkit/viewdata/internal/store"
	"github.com/portalkit/viewdata/internal/store/memory"
	"github.com/portalkit/viewdata/internal/store/postgres"
)

func main() {
	logger := zerolog.New(os.Stdout).With().Timestamp().Logger()

	cfg, err := config.Load(".")
	if err != nil {
		logger.Fatal().Err(err).Msg("load configuration")
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var recordStore store.RecordStore
	if cfg.Engine.MemoryStore {
		logger.Info().Msg("running against the in-memory demo store")
		recordStore = seedDemoStore()
	} else {
		if err := postgres.Migrate(cfg.Database); err != nil {
			logger.Fatal().Err(err).Msg("apply migrations")
		}
		pool, err := postgres.Connect(ctx, cfg.Database)
		if err != nil {
			logger.Fatal().Err(err).Msg("connect to database")
		}
		defer pool.Close()
		recordStore = postgres.NewStore(pool, cfg.Database)
	}

	collation, err := language.Parse(cfg.Engine.Collation)
	if err != nil {
		logger.Warn().Str("collation", cfg.Engine.Collation).Msg("unknown collation tag, falling back to English")
		collation = language.English
	}

	adapter := engine.NewViewDataAdapter(recordStore,
		engine.WithLogger(logger),
		engine.WithWorkerLimit(cfg.Engine.WorkerLimit),
		engine.WithCollation(collation),
		engine.WithMetadataResolver(metadata.NewLoader(recordStore)),
	)

	viewAPI := api.NewHandler(adapter, logger)
	registerDemoViews(viewAPI)

	exporter := export.NewService(adapter, export.WithPageSize(recordStore.PageLimit()))
	exportHandler := export.NewHTTPHandler(exporter, viewAPI.ResolveView)

	corsHandler := cors.New(cors.Options{
		AllowedOrigins:   cfg.Server.AllowedOrigins,
		AllowCredentials: true,
		AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders:   []string{"*"},
	})

	wrap := func(h http.Handler) http.Handler {
		return corsHandler.Handler(middleware.Logging(logger)(middleware.Caller()(h)))
	}

	mux := http.NewServeMux()
	mux.Handle("/views/", wrap(viewAPI))
	mux.Handle("/exports/", wrap(exportHandler))

	server := &http.Server{
		Addr:         cfg.Server.Addr,
		Handler:      mux,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 60 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		logger.Info().Str("addr", cfg.Server.Addr).Msg("starting view data server")
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal().Err(err).Msg("start server")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	logger.Info().Msg("shutting down server")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Fatal().Err(err).Msg("server forced to shutdown")
	}
	logger.Info().Msg("server exited")
}

// seedDemoStore builds a small ticket dataset so the server can run without a
// database.
func seedDemoStore() *memory.Store {
	demo := memory.NewStore(500)
	demo.AddMetadata(&domain.EntityMetadata{
		Collection:           "incident",
		PrimaryIDAttribute:   "incidentid",
		PrimaryNameAttribute: "title",
		Attributes: map[string]domain.AttributeType{
			"title":      domain.AttributeString,
			"customerid": domain.AttributeCustomer,
			"statuscode": domain.AttributeStatus,
			"createdon":  domain.AttributeDateTime,
		},
	})

	customer := uuid.New()
	statuses := []struct {
		code  int
		label string
	}{{1, "Active"}, {2, "Waiting"}, {5, "Resolved"}}
	for i := 0; i < 30; i++ {
		status := statuses[i%len(statuses)]
		record := domain.Record{Collection: "incident", ID: uuid.New()}
		record.Set("title", domain.StringValue(fmt.Sprintf("Demo ticket %02d", i+1)))
		record.Set("customerid", domain.Value{Type: domain.AttributeCustomer, Data: domain.Reference{ID: customer, Collection: "account", Name: "Demo Account"}})
		record.Set("statuscode", domain.StatusValue(status.code, status.label))
		record.Set("createdon", domain.TimeValue(time.Now().Add(-time.Duration(i)*24*time.Hour)))
		demo.AddRecords(record)
	}
	return demo
}

// registerDemoViews exposes a default support-ticket view.
func registerDemoViews(handler *api.Handler) {
	handler.RegisterView("tickets", &domain.ViewConfig{
		Collection: "incident",
		Columns: []domain.ViewColumn{
			{Attribute: "title", Label: "Title"},
			{Attribute: "statuscode", Label: "Status"},
			{Attribute: "createdon", Label: "Created On"},
		},
		UserFilterAttribute:    "customerid",
		AccountFilterAttribute: "customerid",
		SearchEnabled:          true,
		DefaultPageSize:        10,
		DefaultOrders:          []domain.Order{{Attribute: "createdon", Direction: domain.SortDescending}},
	})
}
