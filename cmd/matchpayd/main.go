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

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"matchpay/config"
	"matchpay/core"
	"matchpay/crypto"
	"matchpay/observability/logging"
	"matchpay/rpc"
	"matchpay/storage"
)

// claimAuthority applies the configured authority on first boot. An
// already-claimed authority is left untouched.
func claimAuthority(node *core.Node, encoded string) error {
	decoded, err := crypto.DecodeAddress(encoded)
	if err != nil {
		return err
	}
	var addr [20]byte
	copy(addr[:], decoded.Bytes())
	if _, ok, err := node.Authority(); err != nil {
		return err
	} else if ok {
		return nil
	}
	return node.SetAuthority(addr, addr)
}

func main() {
	var configPath string
	flag.StringVar(&configPath, "config", "./config.toml", "path to the daemon configuration file")
	flag.Parse()

	cfg, err := config.Load(configPath)
	if err != nil {
		logging.Setup("matchpayd", "").Error("failed to load config", "error", err, "path", configPath)
		os.Exit(1)
	}

	logger := logging.Setup("matchpayd", cfg.Env)

	db, err := storage.NewLevelDB(cfg.DataDir)
	if err != nil {
		logger.Error("failed to open database", "error", err, "dataDir", cfg.DataDir)
		os.Exit(1)
	}

	node := core.NewNode(db)
	defer node.Close()

	if cfg.AuthorityAddress != "" {
		if err := claimAuthority(node, cfg.AuthorityAddress); err != nil {
			logger.Error("failed to claim authority", "error", err, "authority", cfg.AuthorityAddress)
			os.Exit(1)
		}
	}

	server := rpc.NewServer(node, logger, cfg.AdminJWTSecret(), cfg.RateLimitPerSecond, cfg.RateLimitBurst)
	handler := otelhttp.NewHandler(server.Router(), "matchpayd.http")

	httpServer := &http.Server{
		Addr:              cfg.ListenAddress,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	errCh := make(chan error, 1)
	go func() {
		logger.Info("listening", "address", cfg.ListenAddress)
		errCh <- httpServer.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		logger.Info("shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			logger.Error("shutdown failed", "error", err)
		}
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("server stopped", "error", err)
			os.Exit(1)
		}
	}
}
