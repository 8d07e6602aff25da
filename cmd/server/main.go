package main

import (
	"context"
	"fmt"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	approvalmodel "github.com/OpenOA/formflow/internal/approval/model"
	"github.com/OpenOA/formflow/internal/approval/router"
	"github.com/OpenOA/formflow/internal/approval/service"
	"github.com/OpenOA/formflow/internal/config"
	"github.com/OpenOA/formflow/internal/database"
	"github.com/OpenOA/formflow/internal/directory"
	"github.com/OpenOA/formflow/internal/form"
	formmodel "github.com/OpenOA/formflow/internal/form/model"
	"github.com/OpenOA/formflow/internal/middleware"
	"github.com/OpenOA/formflow/internal/notify"
	"github.com/OpenOA/formflow/internal/notify/wecom"
)

func main() {
	// Load configuration from environment variables
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load configuration: %v", err)
	}

	slog.Info("configuration loaded successfully",
		"db_host", cfg.Database.Host,
		"db_port", cfg.Database.Port,
		"db_name", cfg.Database.Name,
		"db_sslmode", cfg.Database.SSLMode,
	)

	slog.Info("server configuration",
		"port", cfg.Server.Port,
		"wecom_enabled", cfg.WeCom.Enabled,
	)

	// Initialize database connection
	db, err := database.New(&cfg.Database)
	if err != nil {
		log.Fatalf("failed to connect to database: %v", err)
	}
	defer func() {
		if err := database.Close(db); err != nil {
			slog.Error("failed to close database", "error", err)
		}
	}()

	if err := database.HealthCheck(db); err != nil {
		log.Fatalf("database health check failed: %v", err)
	}

	if err := database.Migrate(db,
		&formmodel.Form{},
		&formmodel.FormField{},
		&formmodel.Submission{},
		&directory.User{},
		&directory.Role{},
		&directory.UserRole{},
		&approvalmodel.Flow{},
		&approvalmodel.Node{},
		&approvalmodel.Record{},
	); err != nil {
		log.Fatalf("failed to migrate database: %v", err)
	}

	// Initialize services
	submissions := form.NewSubmissionService(db)
	resolver := directory.NewResolver(db)
	flows := service.NewFlowService(db)
	records := service.NewRecordService(db)
	stats := service.NewStatisticsService(db, records)

	// Notification sink: WeCom when configured, structured log otherwise
	var sink service.Notifier = notify.NewLogSink()
	var wecomClient *wecom.Client
	if cfg.WeCom.Enabled {
		wecomClient = wecom.NewClient(&cfg.WeCom)
		sink = wecom.NewSink(wecomClient, resolver)
		slog.Info("wecom notifications enabled", "agent_id", cfg.WeCom.AgentID)
	}

	engine := service.NewEngine(db, flows, records, submissions, resolver, sink)

	flowRouter := router.NewFlowRouter(flows, engine, stats)
	recordRouter := router.NewRecordRouter(records, engine)

	// Set up HTTP routes
	mux := http.NewServeMux()
	mux.HandleFunc("GET /api/approval-flows", flowRouter.HandleListFlows)
	mux.HandleFunc("POST /api/approval-flows", flowRouter.HandleCreateFlow)
	mux.HandleFunc("GET /api/approval-flows/{flowID}", flowRouter.HandleGetFlow)
	mux.HandleFunc("PUT /api/approval-flows/{flowID}", flowRouter.HandleUpdateFlow)
	mux.HandleFunc("DELETE /api/approval-flows/{flowID}", flowRouter.HandleDeleteFlow)
	mux.HandleFunc("POST /api/approval-flows/{flowID}/submit", flowRouter.HandleSubmit)
	mux.HandleFunc("GET /api/approval-flows/{flowID}/statistics", flowRouter.HandleStatistics)
	mux.HandleFunc("GET /api/approval-records", recordRouter.HandleListPendingForApprover)
	mux.HandleFunc("GET /api/approval-records/{recordID}", recordRouter.HandleGetRecord)
	mux.HandleFunc("POST /api/approval-records/{recordID}/decide", recordRouter.HandleDecide)
	mux.HandleFunc("GET /api/submissions/{submissionID}/records", recordRouter.HandleSubmissionHistory)

	if cfg.WeCom.Enabled {
		callback := wecom.NewCallbackHandler(engine, cfg.WeCom.CallbackToken)
		mux.HandleFunc("GET /api/wecom/callback", callback.Verify)
		mux.HandleFunc("POST /api/wecom/callback", callback.Receive)
	}

	mux.HandleFunc("GET /healthz", func(w http.ResponseWriter, r *http.Request) {
		if err := database.HealthCheck(db); err != nil {
			http.Error(w, "database unavailable", http.StatusServiceUnavailable)
			return
		}
		w.Write([]byte("ok"))
	})

	serverAddr := fmt.Sprintf(":%d", cfg.Server.Port)

	// Wrap handler with CORS middleware
	handler := middleware.CORS(&cfg.CORS)(mux)

	server := &http.Server{
		Addr:    serverAddr,
		Handler: handler,
	}

	// Channel to listen for interrupt signals
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	// Start server in a goroutine
	go func() {
		slog.Info("starting server", "port", cfg.Server.Port)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("failed to start server", "error", err)
			quit <- syscall.SIGTERM
		}
	}()

	// Wait for interrupt signal
	<-quit
	slog.Info("shutting down server...")

	// Create a context with timeout for graceful shutdown
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		slog.Error("server forced to shutdown", "error", err)
	} else {
		slog.Info("server gracefully stopped")
	}

	slog.Info("server stopped")
}
