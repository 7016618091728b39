// Command api serves the read-only admin surface (runs, run steps, tasks)
// backed directly by DynamoDB, independent of the ticking agent process —
// grounded in the teacher's api/worker/scheduler split, where the API
// server was always a thin read layer over the same store the worker wrote
// to.
package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"go.uber.org/zap"

	appconfig "github.com/franksunye/FSOpsAssistant/internal/config"
	"github.com/franksunye/FSOpsAssistant/internal/httpapi"
	"github.com/franksunye/FSOpsAssistant/internal/runtracker"
	"github.com/franksunye/FSOpsAssistant/internal/store"
	"github.com/franksunye/FSOpsAssistant/internal/tasks"
)

func main() {
	appconfig.Load()

	log, err := zap.NewProduction()
	if err != nil {
		panic(err)
	}
	defer log.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	client, err := store.NewClient(ctx)
	if err != nil {
		log.Fatal("api: init dynamo client", zap.Error(err))
	}

	tables := appconfig.TablesFromEnv()
	tracker := runtracker.NewTracker(client, tables.Runs, tables.RunSteps)
	taskStore := tasks.NewStore(client, tables.NotificationTask)

	router := httpapi.NewRouter(&httpapi.App{Runs: tracker, Tasks: taskStore})

	addr := ":" + getenv("API_PORT", "8080")
	srv := &http.Server{Addr: addr, Handler: router}

	go func() {
		<-ctx.Done()
		_ = srv.Close()
	}()

	log.Info("api: listening", zap.String("addr", addr))
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		log.Fatal("api: listener stopped", zap.Error(err))
	}
	log.Info("api: stopped")
}

func getenv(k, def string) string {
	if v := os.Getenv(k); v != "" {
		return v
	}
	return def
}
