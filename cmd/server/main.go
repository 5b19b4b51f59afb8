package main

import (
	"context"
	"flag"
	"log"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/chatdepot/chatdepot/internal/api"
	"github.com/chatdepot/chatdepot/internal/chat"
	"github.com/chatdepot/chatdepot/internal/config"
	"github.com/chatdepot/chatdepot/internal/mail"
	"github.com/chatdepot/chatdepot/internal/stats"
	"github.com/chatdepot/chatdepot/internal/store"
	"github.com/chatdepot/chatdepot/internal/token"
	"github.com/joho/godotenv"
	_ "github.com/mattn/go-sqlite3"
)

const defaultSigningKey = "wT0phFUusHZIrDhL9bUKPUhwaxKhpi/SaI6PtgB+MgU="

type stringSliceFlag []string

func (s *stringSliceFlag) String() string {
	return strings.Join(*s, ",")
}

func (s *stringSliceFlag) Set(value string) error {
	*s = append(*s, strings.Split(value, ",")...)
	return nil
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

var (
	addr            string
	dataDir         string
	signingKey      string
	adminEmail      string
	baseURL         string
	requireApproval bool
	smtpAddr        string
	smtpFrom        string
	allowedOrigins  stringSliceFlag
)

func main() {
	// Optional .env; flags still win over the environment.
	godotenv.Load()

	flag.StringVar(&addr, "addr", envOr("CHATDEPOT_ADDR", "localhost:8000"), "server address")
	flag.StringVar(&dataDir, "data-dir", envOr("CHATDEPOT_DATA_DIR", "data"), "directory for room and registry databases")
	flag.StringVar(&signingKey, "signing-key", envOr("CHATDEPOT_SIGNING_KEY", defaultSigningKey), "base64 encoded signing key")
	flag.StringVar(&adminEmail, "admin-email", envOr("CHATDEPOT_ADMIN_EMAIL", "admin@localhost"), "administrator email address")
	flag.StringVar(&baseURL, "base-url", envOr("CHATDEPOT_BASE_URL", "http://localhost:8000"), "base URL used in emailed links")
	flag.BoolVar(&requireApproval, "require-approval", os.Getenv("CHATDEPOT_REQUIRE_APPROVAL") == "true", "require admin approval before provisioning rooms")
	flag.StringVar(&smtpAddr, "smtp-addr", envOr("CHATDEPOT_SMTP_ADDR", ""), "SMTP server address (empty logs mail instead)")
	flag.StringVar(&smtpFrom, "smtp-from", envOr("CHATDEPOT_SMTP_FROM", ""), "SMTP from address")
	flag.Var(&allowedOrigins, "allowed-origins", "comma-separated list of allowed origins for CORS")
	flag.Parse()

	logger := log.New(os.Stderr, "[chatdepot] ", log.LstdFlags)

	cfg, err := config.NewConfig(addr, dataDir, signingKey, adminEmail, baseURL, requireApproval, allowedOrigins, smtpAddr, smtpFrom)
	if err != nil {
		logger.Fatal("config:", err)
	}

	if err := os.MkdirAll(cfg.DataDir, 0o755); err != nil {
		logger.Fatal("create data directory:", err)
	}

	registry, err := store.OpenRegistryStore(filepath.Join(cfg.DataDir, "registry.db"))
	if err != nil {
		logger.Fatal("registry open:", err)
	}
	defer func() {
		if err := registry.Close(); err != nil {
			logger.Fatal("registry close:", err)
		}
	}()

	rooms, err := store.NewFactory(cfg.DataDir)
	if err != nil {
		logger.Fatal("room store factory:", err)
	}
	defer func() {
		if err := rooms.Close(); err != nil {
			logger.Fatal("room stores close:", err)
		}
	}()

	var notifier mail.Notifier
	if cfg.SMTPAddr != "" {
		notifier = mail.NewSMTPNotifier(cfg.SMTPAddr, cfg.SMTPFrom, logger)
	} else {
		notifier = mail.NewLogNotifier(logger)
	}

	mux := http.NewServeMux()

	statsUpdater := stats.NewStatsUpdater(mux)

	svc := chat.NewService(logger, rooms, registry, token.NewService(cfg.SigningKey), notifier, statsUpdater, cfg)

	srv := api.NewChatDepotApp(mux, logger, svc, cfg)

	statsUpdater.Run()
	defer statsUpdater.Stop()

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.Start()
	}()

	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-sigs:
		logger.Printf("received signal: %s\n", sig)
	case err := <-errCh:
		logger.Println("server:", err)
	}

	shutDownCtx, cancel := context.WithTimeout(
		context.Background(),
		10*time.Second,
	)
	defer cancel()

	if err := srv.Shutdown(shutDownCtx); err != nil {
		logger.Fatalln("HTTP server shutdown:", err)
	}

	logger.Println("shutdown complete")
}
