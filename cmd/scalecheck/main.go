package main

import (
	"context"
	_ "embed"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/peterbourgon/ff/v4"
	"github.com/peterbourgon/ff/v4/ffhelp"

	"github.com/zombor/scalecheck/internal/capture"
	"github.com/zombor/scalecheck/internal/capture/opencv"
	"github.com/zombor/scalecheck/internal/ledger"
	"github.com/zombor/scalecheck/internal/reading"
	"github.com/zombor/scalecheck/internal/reconcile"
	"github.com/zombor/scalecheck/internal/report"
)

//go:embed VERSION.txt
var versionFile string

var version = strings.TrimSpace(versionFile)

func main() {
	// Check for version flag before parsing other flags
	for _, arg := range os.Args[1:] {
		if arg == "--version" || arg == "-version" || arg == "-v" {
			fmt.Println(version)
			os.Exit(0)
		}
	}

	fs := ff.NewFlagSet("scalecheck")
	var (
		port        = fs.IntLong("port", 8080, "HTTP server port")
		dbPath      = fs.StringLong("db", "scalecheck.db", "Database file path")
		storagePath = fs.StringLong("storage", "./photos", "Report photo directory")
		readerType  = fs.StringLong("reader", "gemini", "Scale reader: 'gemini' or 'ollama'")
		geminiKey   = fs.StringLong("gemini-key", "", "Google Gemini API key (or set GEMINI_API_KEY env var)")
		geminiModel = fs.StringLong("gemini-model", "gemini-2.5-flash", "Google Gemini model name")
		ollamaURL   = fs.StringLong("ollama-url", "http://localhost:11434", "Ollama API base URL")
		ollamaModel = fs.StringLong("ollama-model", "llava", "Ollama vision model name (e.g., llava, qwen2.5vl)")
		ledgerURL   = fs.StringLong("ledger-url", "", "Remote ledger endpoint (optional; reports are kept locally without it)")
		cameraType  = fs.StringLong("camera", "opencv", "Camera source: 'opencv' or 'none'")
		frontDevice = fs.IntLong("front-device", -1, "Video device index of the user-facing camera (-1 for none)")
		backDevice  = fs.IntLong("back-device", 0, "Video device index of the environment-facing camera (-1 for none)")
		tierTimeout = fs.DurationLong("camera-tier-timeout", capture.DefaultTierTimeout, "Time allowed for each camera resolution attempt")
		jpegQuality = fs.IntLong("jpeg-quality", capture.DefaultJPEGQuality, "JPEG quality of captured stills (1-100)")
		tolAbsolute = fs.Float64Long("tolerance-absolute", reconcile.DefaultTolerance.Absolute, "Largest manual/photo difference that still matches")
		tolRelative = fs.Float64Long("tolerance-relative", 0, "Relative tolerance as a fraction of the photo reading (0 disables)")
		devMode     = fs.BoolLong("dev", "Development mode: panic on invalid camera state transitions")
		authUser    = fs.StringLong("auth-user", "", "Basic auth username (optional)")
		authPass    = fs.StringLong("auth-pass", "", "Basic auth password (optional)")
		showVersion = fs.BoolLong("version", "Show version information")
	)

	if err := ff.Parse(fs, os.Args[1:],
		ff.WithEnvVarPrefix("SCALECHECK"),
	); err != nil {
		fmt.Fprintf(os.Stderr, "%s\n", ffhelp.Flags(fs))
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}

	if *showVersion {
		fmt.Println(version)
		os.Exit(0)
	}

	if *jpegQuality < 1 || *jpegQuality > 100 {
		slog.Error("Invalid JPEG quality", "quality", *jpegQuality, "valid", "1-100")
		os.Exit(1)
	}
	if *tolAbsolute < 0 || *tolRelative < 0 {
		slog.Error("Tolerances must not be negative", "absolute", *tolAbsolute, "relative", *tolRelative)
		os.Exit(1)
	}

	// Initialize database
	slog.Info("Initializing database...", "path", *dbPath)
	db, err := report.NewBoltDB(*dbPath)
	if err != nil {
		slog.Error("Failed to initialize database", "error", err)
		os.Exit(1)
	}
	defer db.Close()

	// Initialize reader based on type
	var reader reading.Reader
	switch *readerType {
	case "gemini":
		apiKey := *geminiKey
		if apiKey == "" {
			apiKey = os.Getenv("GEMINI_API_KEY")
		}
		if apiKey == "" {
			slog.Error("Gemini API key is required. Set --gemini-key flag or GEMINI_API_KEY environment variable")
			os.Exit(1)
		}
		slog.Info("Initializing Gemini reader...", "model", *geminiModel)
		reader, err = reading.NewGemini(apiKey, *geminiModel)
		if err != nil {
			slog.Error("Failed to initialize Gemini", "error", err)
			os.Exit(1)
		}
	case "ollama":
		slog.Info("Initializing Ollama reader...", "url", *ollamaURL, "model", *ollamaModel)
		reader, err = reading.NewOllama(*ollamaURL, *ollamaModel)
		if err != nil {
			slog.Error("Failed to initialize Ollama", "error", err)
			os.Exit(1)
		}
	default:
		slog.Error("Invalid reader type", "type", *readerType, "valid", "gemini or ollama")
		os.Exit(1)
	}
	defer reader.Close()

	// Initialize camera source
	var source capture.Source
	switch *cameraType {
	case "opencv":
		slog.Info("Initializing OpenCV camera...", "front_device", *frontDevice, "back_device", *backDevice)
		source = opencv.NewSource(*frontDevice, *backDevice)
	case "none":
		slog.Info("Running without a camera; photos can still be uploaded")
		source = capture.NoSource{}
	default:
		slog.Error("Invalid camera type", "type", *cameraType, "valid", "opencv or none")
		os.Exit(1)
	}

	sessionOpts := []capture.Option{capture.WithEncoder(capture.NewEncoder(*jpegQuality))}
	if *devMode {
		sessionOpts = append(sessionOpts, capture.WithStrictStateChecks())
	}

	// Initialize storage
	slog.Info("Initializing storage...", "path", *storagePath)
	store, err := report.NewLocalStorage(*storagePath)
	if err != nil {
		slog.Error("Failed to initialize storage", "error", err)
		os.Exit(1)
	}

	cfg := report.Config{
		DB:             db,
		Storage:        store,
		Reader:         reader,
		Negotiator:     capture.NewNegotiator(source, *tierTimeout),
		SessionOptions: sessionOpts,
		Tolerance:      reconcile.Tolerance{Absolute: *tolAbsolute, Relative: *tolRelative},
	}
	if *ledgerURL != "" {
		client, err := ledger.NewClient(*ledgerURL)
		if err != nil {
			slog.Error("Failed to initialize ledger client", "error", err)
			os.Exit(1)
		}
		cfg.Ledger = client
		slog.Info("Reports will be sent to the ledger", "url", *ledgerURL)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	service := report.NewService(ctx, cfg)

	basicAuth := report.BasicAuth{
		Username: *authUser,
		Password: *authPass,
	}
	server := report.NewServer(service, basicAuth)

	addr := fmt.Sprintf(":%d", *port)
	go func() {
		if err := server.Start(addr); err != nil {
			slog.Error("Server error", "error", err)
			os.Exit(1)
		}
	}()

	slog.Info("Server started", "address", fmt.Sprintf("http://localhost%s", addr), "version", version)
	if *authUser != "" || *authPass != "" {
		slog.Info("Basic auth enabled", "user", *authUser)
	}

	// Wait for interrupt signal
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	<-sigChan

	slog.Info("Shutting down...")
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		slog.Warn("Server shutdown", "error", err)
	}
	cancel()
	service.Shutdown()
}
