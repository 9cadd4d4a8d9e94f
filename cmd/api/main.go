package main

import (
    "context"
    "errors"
    "net/http"
    "os"
    "os/signal"
    "syscall"
    "time"

    "github.com/joho/godotenv"

    "xcscore/internal/api"
    "xcscore/internal/buildinfo"
    "xcscore/internal/logging"
    "xcscore/internal/observability"
)

func main() {
    _ = godotenv.Load(".env")
    log := logging.NewFromEnv()
    ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
    defer stop()

    shutdownTracing, err := observability.InitTracing(ctx, observability.TracingConfigFromEnv(), log)
    if err != nil {
        log.Error(ctx, "failed to init tracing", logging.Err(err))
        os.Exit(1)
    }
    defer observability.ShutdownWithTimeout(context.Background(), shutdownTracing, log)

    srvDeps, err := api.NewServer(ctx, log)
    if err != nil {
        log.Error(ctx, "failed to init server", logging.Err(err))
        os.Exit(1)
    }
    defer func() { _ = srvDeps.Close() }()

    // Background work stops with ctx
    workCtx, cancelWork := context.WithCancel(context.Background())
    srvDeps.Jobs.Start(workCtx)
    worker := srvDeps.NewWebhookWorker()
    go worker.Run(workCtx)

    addr := ":8080"
    if v := os.Getenv("PORT"); v != "" {
        addr = ":" + v
    }
    srv := &http.Server{
        Addr:              addr,
        Handler:           srvDeps.Handler(),
        ReadHeaderTimeout: 5 * time.Second,
    }

    errc := make(chan error, 1)
    go func() {
        log.Info(ctx, "API listening", logging.String("addr", addr), logging.String("version", buildinfo.String()))
        if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
            errc <- err
        }
        close(errc)
    }()

    select {
    case <-ctx.Done():
        log.Info(context.Background(), "shutting down")
    case err := <-errc:
        if err != nil { log.Error(context.Background(), "server error", logging.Err(err)) }
    }

    shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
    defer cancel()
    if err := srv.Shutdown(shutdownCtx); err != nil {
        log.Warn(shutdownCtx, "http shutdown", logging.Err(err))
    }
    // running jobs finish as cancelled with their best partial result
    cancelWork()
    srvDeps.Jobs.Wait()
}
