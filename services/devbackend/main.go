// Заглушка внешнего бэкенда поддержки для локальной разработки клиентов.
package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/supportchat/internal/backendstub"
	"github.com/supportchat/internal/config"
	"github.com/supportchat/internal/logger"
)

func main() {
	logger.SetPrefix("devbackend")
	logger.Info("starting dev backend stub")
	cfg := config.Load()

	stub := backendstub.New(backendstub.Options{
		CORSAllowedOrigins: cfg.CORSAllowedOrigins,
	})

	srv := &http.Server{
		Addr:         cfg.StubAddr,
		Handler:      stub.Router(),
		ReadTimeout:  15 * time.Second,
		IdleTimeout:  60 * time.Second,
		// WriteTimeout не задаём: SSE-соединения живут дольше любого таймаута
	}
	var srvWg sync.WaitGroup
	srvWg.Add(1)
	go func() {
		defer srvWg.Done()
		logger.Infof("dev backend listening on %s", cfg.StubAddr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Errorf("dev backend: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	logger.Info("shutting down dev backend...")
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Errorf("dev backend shutdown: %v", err)
	}
	srvWg.Wait()
}
