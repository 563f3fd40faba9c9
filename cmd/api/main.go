package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	// Application Layer
	appService "notifyd/internal/application/service"

	// Infrastructure Layer
	"notifyd/internal/infrastructure/alarm"
	"notifyd/internal/infrastructure/database/sqlite"
	lineClient "notifyd/internal/infrastructure/line"

	// Interfaces Layer
	"notifyd/internal/interfaces/api/handler"
	"notifyd/internal/interfaces/api/router"

	// Packages
	appLogger "notifyd/internal/pkg/logger"

	_ "github.com/joho/godotenv/autoload" // Automatically load .env file
)

func gracefulShutdown(apiServer *http.Server, coordinator appService.ScheduleCoordinator, done chan bool) {
	// Create context that listens for the interrupt signal from the OS.
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Listen for the interrupt signal.
	<-ctx.Done()

	log.Println("Shutting down gracefully, press Ctrl+C again to force")

	// Stop the alarm backend first so no fire transition races the shutdown
	log.Println("Stopping alarm backend...")
	coordinator.Stop()
	log.Println("Alarm backend stopped.")

	// Close database connection
	log.Println("Closing database connection...")
	if err := sqlite.CloseDB(); err != nil {
		log.Printf("Error closing database: %v", err)
	} else {
		log.Println("Database connection closed.")
	}

	// Shutdown HTTP server
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := apiServer.Shutdown(shutdownCtx); err != nil {
		log.Printf("Server forced to shutdown with error: %v", err)
	}

	log.Println("Server exiting")

	// Notify the main goroutine that the shutdown is complete
	done <- true
}

func main() {
	// --- Initialization ---
	appLog := appLogger.New()
	appLog.Info("Logger initialized.")

	// Load Environment Variables (using autoload)
	portStr := os.Getenv("PORT")
	if portStr == "" {
		portStr = "8080" // Default port
		appLog.Warn("PORT environment variable not set, defaulting to 8080")
	}
	port, err := strconv.Atoi(portStr)
	if err != nil {
		appLog.Error("Invalid PORT environment variable", err)
		os.Exit(1)
	}

	// --- Infrastructure ---
	db := sqlite.NewDB()
	store := sqlite.NewScheduleStore(db)
	appLog.Info("Database and schedule store initialized.")

	backend := alarm.NewBackend(appLog)

	var sink appService.NotificationSink
	if lineClient.Available() {
		sink = lineClient.NewSink(lineClient.NewClient(appLog), appLog)
		appLog.Info("LINE notification sink initialized.")
	} else {
		sink = appService.NewLogSink(appLog)
		appLog.Warn("LINE credentials not set, falling back to the log sink")
	}

	// --- Application Services ---
	coordinator := appService.NewCoordinatorService(store, backend, sink, appLog)
	querySvc := appService.NewQueryService(store, appLog)
	appLog.Info("Application services initialized.")

	// --- Recover Schedules ---
	// Armings never survive a restart; rebuild them all from the store.
	if err := coordinator.RecoverOnRestart(context.Background()); err != nil {
		// Log the error but continue starting the server
		appLog.Error("Failed to recover schedules on startup", err)
	}

	// --- API Handlers ---
	scheduleHandler := handler.NewScheduleHandler(coordinator, querySvc, appLog)
	appLog.Info("API handlers initialized.")

	// --- Router ---
	routerCfg := &router.Config{
		ScheduleHandler: scheduleHandler,
		Logger:          appLog,
	}
	echoRouter := router.NewRouter(routerCfg)

	// --- HTTP Server ---
	apiServer := &http.Server{
		Addr:         fmt.Sprintf(":%d", port),
		Handler:      echoRouter,
		IdleTimeout:  time.Minute,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 30 * time.Second,
	}

	// --- Start Server & Shutdown Handling ---
	done := make(chan bool, 1)
	go gracefulShutdown(apiServer, coordinator, done)

	appLog.Info(fmt.Sprintf("Server starting on port %d", port))
	err = apiServer.ListenAndServe()
	if err != nil && err != http.ErrServerClosed {
		appLog.Error("HTTP server ListenAndServe error", err)
		panic(fmt.Sprintf("http server error: %s", err))
	}

	// Wait for graceful shutdown signal
	<-done
	appLog.Info("Graceful shutdown complete.")
}
