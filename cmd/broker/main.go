package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"gdax-tickplot/internal/broker"
	"gdax-tickplot/internal/config"
	"gdax-tickplot/internal/logger"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "broker: %v\n", err)
		os.Exit(1)
	}
	flag.StringVar(&cfg.Broker.Listen, "listen", cfg.Broker.Listen, "http listen address")
	flag.StringVar(&cfg.App.LogLevel, "log-level", cfg.App.LogLevel, "log level")
	flag.Parse()

	// the broker has no chart, so it always logs to the console as well
	lc := logger.FromApp(cfg.App)
	lc.Console = true
	log, err := logger.New(lc)
	if err != nil {
		fmt.Fprintf(os.Stderr, "broker: %v\n", err)
		os.Exit(1)
	}
	defer func() { _ = log.Sync() }()

	b := broker.New(log)
	srv := &http.Server{
		Addr:              cfg.Broker.Listen,
		Handler:           newMux(b),
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		log.Info("broker listening", zap.String("addr", cfg.Broker.Listen), zap.String("ws_path", "/ws"))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal("listen failed", zap.Error(err))
		}
	}()

	ch := make(chan os.Signal, 1)
	signal.Notify(ch, syscall.SIGINT, syscall.SIGTERM)
	<-ch

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		log.Warn("shutdown", zap.Error(err))
		_ = srv.Close()
	}
}

func newMux(b *broker.Broker) *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("/ws", b.ServeWS)
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	return mux
}
