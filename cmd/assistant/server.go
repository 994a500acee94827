package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/mark3labs/mcp-go/server"
	"github.com/spf13/cobra"

	"github.com/MahfuzulAlam/directorist-smart-assistant/internal/api"
	"github.com/MahfuzulAlam/directorist-smart-assistant/internal/chat"
	"github.com/MahfuzulAlam/directorist-smart-assistant/internal/config"
	"github.com/MahfuzulAlam/directorist-smart-assistant/internal/embedding"
	"github.com/MahfuzulAlam/directorist-smart-assistant/internal/retrieval"
	"github.com/MahfuzulAlam/directorist-smart-assistant/internal/settings"
	"github.com/MahfuzulAlam/directorist-smart-assistant/internal/storage"
	syncer "github.com/MahfuzulAlam/directorist-smart-assistant/internal/sync"
	"github.com/MahfuzulAlam/directorist-smart-assistant/internal/vector"
)

var startCmd = &cobra.Command{
	Use:   "start",
	Short: "Start the assistant server (foreground)",
	RunE: func(cmd *cobra.Command, args []string) error {
		return runServer()
	},
}

var stopCmd = &cobra.Command{
	Use:   "stop",
	Short: "Stop the running assistant server",
	RunE: func(cmd *cobra.Command, args []string) error {
		return stopServer()
	},
}

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show assistant system status",
	RunE: func(cmd *cobra.Command, args []string) error {
		return showStatus()
	},
}

func pidFilePath(dataDir string) string {
	return filepath.Join(dataDir, "assistant.pid")
}

func writePIDFile(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	return os.WriteFile(path, []byte(strconv.Itoa(os.Getpid())), 0o644)
}

func readPIDFile(path string) (int, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return 0, err
	}
	return strconv.Atoi(strings.TrimSpace(string(data)))
}

func removePIDFile(path string) {
	os.Remove(path)
}

func logLevel(name string) slog.Level {
	switch strings.ToLower(name) {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

func runServer() error {
	fmt.Fprintf(os.Stderr, "assistant version %s\n", version)

	cfg, err := config.Load()
	if err != nil {
		return err
	}

	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: logLevel(cfg.Log.Level),
	}))
	slog.SetDefault(logger)

	// Refuse to double-start: probe the health endpoint first.
	pidPath := pidFilePath(cfg.Storage.DataDir)
	healthURL := fmt.Sprintf("http://127.0.0.1:%d/health", cfg.Server.Port)
	healthClient := &http.Client{Timeout: 2 * time.Second}
	if resp, err := healthClient.Get(healthURL); err == nil {
		resp.Body.Close()
		if pid, pidErr := readPIDFile(pidPath); pidErr == nil {
			printWarning("assistant is already running (PID %d)", pid)
			return fmt.Errorf("server already running (PID %d)", pid)
		}
		printWarning("assistant is already running on port %d", cfg.Server.Port)
		return fmt.Errorf("server already running on port %d", cfg.Server.Port)
	}
	if err := writePIDFile(pidPath); err != nil {
		return fmt.Errorf("writing PID file: %w", err)
	}
	defer removePIDFile(pidPath)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	store, err := storage.Open(cfg.Storage.DataDir)
	if err != nil {
		return fmt.Errorf("opening storage: %w", err)
	}
	defer func() {
		if err := store.Close(); err != nil {
			logger.Warn("closing storage", "error", err)
		}
	}()

	settingsMgr, err := settings.NewManager(store, cfg.Auth.EncryptionKey)
	if err != nil {
		return err
	}

	embeddings := embedding.NewManager(settingsMgr)
	vectors := vector.NewManager(settingsMgr)
	backends := chat.NewManager(settingsMgr)

	assembler := retrieval.New(store, settingsMgr, embeddings, vectors, logger)
	synchronizer := syncer.New(store, settingsMgr, embeddings, vectors, logger)
	dispatcher := chat.NewDispatcher(settingsMgr, backends, assembler, logger)

	handler := api.NewHandler(api.Deps{
		Store:      store,
		Settings:   settingsMgr,
		Sync:       synchronizer,
		Chat:       dispatcher,
		Assembler:  assembler,
		Embeddings: embeddings,
		Vectors:    vectors,
		Token:      cfg.Auth.Token,
		Logger:     logger,
	})

	addr := fmt.Sprintf("127.0.0.1:%d", cfg.Server.Port)
	srv := &http.Server{
		Addr:    addr,
		Handler: handler,
	}

	// MCP server on its own port so agent clients do not share the
	// management surface.
	mcpSrv := api.NewMCPServer(api.MCPDeps{
		Store:     store,
		Assembler: assembler,
		Chat:      dispatcher,
	})
	mcpHTTP := server.NewStreamableHTTPServer(mcpSrv)
	mcpAddr := fmt.Sprintf("127.0.0.1:%d", cfg.Server.MCPPort)
	go func() {
		logger.Info("MCP server listening", "addr", mcpAddr)
		if err := mcpHTTP.Start(mcpAddr); err != nil && err != http.ErrServerClosed {
			logger.Error("MCP server error", "error", err)
		}
	}()

	errCh := make(chan error, 1)
	go func() {
		fmt.Fprintf(os.Stderr, "assistant listening on %s\n", addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case <-ctx.Done():
		fmt.Fprintln(os.Stderr, "shutting down...")
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("server error: %w", err)
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := mcpHTTP.Shutdown(shutdownCtx); err != nil {
		logger.Warn("MCP shutdown", "error", err)
	}
	return srv.Shutdown(shutdownCtx)
}

func stopServer() error {
	cfg, err := config.Load()
	if err != nil {
		printError("could not load config: %v", err)
		return err
	}

	pidPath := pidFilePath(cfg.Storage.DataDir)
	pid, err := readPIDFile(pidPath)
	if err != nil {
		printError("assistant is not running (no PID file)")
		return fmt.Errorf("not running: %w", err)
	}

	process, err := os.FindProcess(pid)
	if err != nil {
		printError("could not find process %d", pid)
		return err
	}

	if err := process.Signal(syscall.SIGTERM); err != nil {
		printError("could not stop assistant (PID %d): %v", pid, err)
		removePIDFile(pidPath)
		return err
	}

	printSuccess("Sent stop signal to assistant (PID %d)", pid)
	return nil
}

func showStatus() error {
	cfg, err := config.Load()
	if err != nil {
		printError("config error: %v", err)
		return nil
	}

	serverURL := fmt.Sprintf("http://127.0.0.1:%d", cfg.Server.Port)
	client := &http.Client{Timeout: 2 * time.Second}

	req, err := http.NewRequest(http.MethodGet, serverURL+"/health", nil)
	if err != nil {
		return err
	}
	if cfg.Auth.Token != "" {
		req.Header.Set("Authorization", "Bearer "+cfg.Auth.Token)
	}

	resp, err := client.Do(req)
	if err != nil {
		printStatus("Server", "stopped")
	} else {
		defer resp.Body.Close()
		if resp.StatusCode == http.StatusOK {
			printStatus("Server", "running on port %d", cfg.Server.Port)
			var health struct {
				EmbeddingReady bool `json:"embedding_ready"`
				VectorReady    bool `json:"vector_ready"`
			}
			if json.NewDecoder(resp.Body).Decode(&health) == nil {
				printStatus("Embeddings", "%s", readyLabel(health.EmbeddingReady))
				printStatus("Vector store", "%s", readyLabel(health.VectorReady))
			}
		} else {
			printStatus("Server", "error (HTTP %d)", resp.StatusCode)
		}
	}

	printStatus("MCP port", "%d", cfg.Server.MCPPort)
	printStatus("Data dir", "%s", cfg.Storage.DataDir)
	return nil
}

func readyLabel(ready bool) string {
	if ready {
		return "configured"
	}
	return "not configured"
}
