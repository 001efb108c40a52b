// Command pagedriftd serves the analysis job API.
// Usage: pagedriftd [-addr :8080] [-db pagedrift.db]
package main

import (
	"context"
	"errors"
	"flag"
	"log"
	"net/http"
	"time"

	"github.com/pagedrift/pagedrift/internal/app"
	"github.com/pagedrift/pagedrift/internal/logging"
	"github.com/pagedrift/pagedrift/internal/server"
)

func main() {
	addr := flag.String("addr", ":8080", "Listen address")
	dbPath := flag.String("db", "pagedrift.db", "SQLite version store to serve")
	flag.Parse()

	logger := logging.NewStderrLogger("pagedriftd")

	appCfg := app.DefaultConfig()
	appCfg.StorePath = *dbPath

	s, err := server.NewServer(server.Config{
		ListenAddr: *addr,
		AppConfig:  appCfg,
		Logger:     logger,
	})
	if err != nil {
		log.Fatalf("creating server: %v", err)
	}
	defer s.Close()

	quit := app.NewQuitSignal(context.Background(), logger)
	defer quit.Stop()

	httpServer := s.HTTPServer()
	go func() {
		<-quit.Drain().Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		_ = httpServer.Shutdown(shutdownCtx)
	}()

	logger.Info("listening", logging.Field{Key: "addr", Value: *addr})
	if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		log.Fatalf("server error: %v", err)
	}
}
