// ABOUTME: Entry point for the orchestra gateway server
// ABOUTME: Runs orchestration sessions and streams tournament events to viewers

package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"sync"
	"syscall"

	"github.com/fatih/color"

	"github.com/arkgart/orchestra/internal/archive"
	"github.com/arkgart/orchestra/internal/config"
	"github.com/arkgart/orchestra/internal/gateway"
	"github.com/arkgart/orchestra/internal/policy"
	"github.com/arkgart/orchestra/internal/session"
)

// Version is set by goreleaser at build time.
var version = "dev"

const banner = `
                _               _
  ___  _ __ ___| |__   ___  ___| |_ _ __ __ _
 / _ \| '__/ __| '_ \ / _ \/ __| __| '__/ _' |
| (_) | | | (__| | | |  __/\__ \ |_| | | (_| |
 \___/|_|  \___|_| |_|\___||___/\__|_|  \__,_|
`

// getConfigPath returns the path to the gateway config file.
// Priority: ORCHESTRA_CONFIG env var > XDG_CONFIG_HOME/orchestra/gateway.yaml > ~/.config/orchestra/gateway.yaml
func getConfigPath() string {
	if envPath := os.Getenv("ORCHESTRA_CONFIG"); envPath != "" {
		return envPath
	}

	configDir := os.Getenv("XDG_CONFIG_HOME")
	if configDir == "" {
		homeDir, err := os.UserHomeDir()
		if err != nil {
			return "gateway.yaml" // fallback
		}
		configDir = filepath.Join(homeDir, ".config")
	}

	return filepath.Join(configDir, "orchestra", "gateway.yaml")
}

func main() {
	if len(os.Args) < 2 {
		fmt.Println("Usage: orchestra-gateway <command>")
		fmt.Println()
		fmt.Println("Commands:")
		fmt.Println("  serve     Start the gateway server")
		fmt.Println("  init      Write a starter config file")
		fmt.Println("  health    Check gateway health")
		os.Exit(1)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	var err error
	switch os.Args[1] {
	case "serve":
		err = runServe(ctx)
	case "init":
		err = runInit()
	case "health":
		err = runHealth(ctx)
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n", os.Args[1])
		os.Exit(1)
	}

	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func runServe(ctx context.Context) error {
	configPath := getConfigPath()

	// Print banner
	cyan := color.New(color.FgCyan)
	cyan.Print(banner)

	// Version info
	gray := color.New(color.FgHiBlack)
	gray.Printf("    version: %s\n\n", version)

	// Load configuration
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	// Setup logger
	logger := setupLogger(cfg.Logging)

	// Startup info
	green := color.New(color.FgGreen)
	yellow := color.New(color.FgYellow)

	green.Print("    ▶ ")
	fmt.Printf("Config:    %s\n", configPath)
	green.Print("    ▶ ")
	fmt.Printf("HTTP:      %s\n", cfg.Server.HTTPAddr)
	green.Print("    ▶ ")
	fmt.Printf("Worker:    %s\n", cfg.Worker.Command)

	if cfg.Archive.Enabled {
		green.Print("    ▶ ")
		fmt.Printf("Archive:   ")
		cyan.Print(cfg.Archive.Path)
		fmt.Println()
	}
	if cfg.Policy.RulesPath != "" {
		green.Print("    ▶ ")
		fmt.Printf("Policy:    ")
		yellow.Print(cfg.Policy.RulesPath)
		fmt.Println()
	}

	fmt.Println()

	logger.Info("starting orchestra-gateway",
		"config", configPath,
		"http_addr", cfg.Server.HTTPAddr,
		"worker", cfg.Worker.Command,
	)

	// Policy rules: built-in tables unless a rules file overrides them.
	rules := policy.Default()
	if cfg.Policy.RulesPath != "" {
		rules, err = policy.LoadRules(cfg.Policy.RulesPath)
		if err != nil {
			return fmt.Errorf("loading policy rules: %w", err)
		}
	}

	// Optional audit archive.
	var archiveStore archive.Archive
	var opts []session.Option
	if cfg.Archive.Enabled {
		sqlStore, err := archive.NewSQLite(cfg.Archive.Path, logger)
		if err != nil {
			return fmt.Errorf("opening archive: %w", err)
		}
		archiveStore = sqlStore
		opts = append(opts, session.WithArchive(sqlStore.Sink()))
	}

	registry := session.NewRegistry(logger, opts...)

	return gateway.New(cfg, registry, rules, archiveStore, logger).Run(ctx)
}

func setupLogger(cfg config.LoggingConfig) *slog.Logger {
	var level slog.Level
	switch cfg.Level {
	case "debug":
		level = slog.LevelDebug
	case "info":
		level = slog.LevelInfo
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}

	opts := &slog.HandlerOptions{
		Level: level,
	}

	var handler slog.Handler
	if cfg.Format == "json" {
		handler = slog.NewJSONHandler(os.Stdout, opts)
	} else {
		handler = &colorHandler{
			level: level,
		}
	}

	return slog.New(handler)
}

// colorHandler provides colorized log output with thread-safe writes.
type colorHandler struct {
	mu     sync.Mutex
	level  slog.Level
	attrs  []slog.Attr
	groups []string
}

func (h *colorHandler) Enabled(_ context.Context, level slog.Level) bool {
	return level >= h.level
}

func (h *colorHandler) Handle(_ context.Context, r slog.Record) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	var buf strings.Builder

	// Format timestamp
	buf.WriteString(color.HiBlackString(r.Time.Format("15:04:05") + " "))

	// Colorize level
	switch r.Level {
	case slog.LevelDebug:
		buf.WriteString(color.MagentaString("DBG "))
	case slog.LevelInfo:
		buf.WriteString(color.CyanString("INF "))
	case slog.LevelWarn:
		buf.WriteString(color.YellowString("WRN "))
	case slog.LevelError:
		buf.WriteString(color.New(color.FgRed, color.Bold).Sprint("ERR "))
	default:
		buf.WriteString("??? ")
	}

	// Print message
	buf.WriteString(r.Message)

	// Print handler-level attrs first (from WithAttrs)
	for _, a := range h.attrs {
		buf.WriteString(color.HiBlackString(" " + a.Key + "="))
		buf.WriteString(a.Value.String())
	}

	// Print record attrs
	r.Attrs(func(a slog.Attr) bool {
		buf.WriteString(color.HiBlackString(" " + a.Key + "="))
		buf.WriteString(a.Value.String())
		return true
	})

	buf.WriteString("\n")
	fmt.Print(buf.String())
	return nil
}

func (h *colorHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	newAttrs := make([]slog.Attr, len(h.attrs), len(h.attrs)+len(attrs))
	copy(newAttrs, h.attrs)
	newAttrs = append(newAttrs, attrs...)
	return &colorHandler{
		level:  h.level,
		attrs:  newAttrs,
		groups: h.groups,
	}
}

func (h *colorHandler) WithGroup(name string) slog.Handler {
	newGroups := make([]string, len(h.groups), len(h.groups)+1)
	copy(newGroups, h.groups)
	newGroups = append(newGroups, name)
	return &colorHandler{
		level:  h.level,
		attrs:  h.attrs,
		groups: newGroups,
	}
}

func runHealth(ctx context.Context) error {
	configPath := getConfigPath()

	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	addr := strings.TrimPrefix(cfg.Server.HTTPAddr, "http://")
	url := fmt.Sprintf("http://%s/api/health", addr)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return fmt.Errorf("creating request: %w", err)
	}

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return fmt.Errorf("health check failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("unhealthy: status %d", resp.StatusCode)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("reading response: %w", err)
	}

	fmt.Println(strings.TrimSpace(string(body)))
	return nil
}

func runInit() error {
	configPath := getConfigPath()

	if _, err := os.Stat(configPath); err == nil {
		return fmt.Errorf("config already exists: %s", configPath)
	}

	if err := os.MkdirAll(filepath.Dir(configPath), 0755); err != nil {
		return fmt.Errorf("creating config directory: %w", err)
	}

	configContent := `# orchestra-gateway configuration
# Generated by orchestra-gateway init

server:
  http_addr: "localhost:8080"

worker:
  command: "python3"
  args: ["-m", "orchestra_worker"]

sessions:
  readiness_timeout: "5s"
  idle_ttl: "30m"
  reap_interval: "1m"

archive:
  enabled: false
  path: ""

policy:
  rules_path: ""

logging:
  level: "info"
  format: "text"
`

	if err := os.WriteFile(configPath, []byte(configContent), 0644); err != nil {
		return fmt.Errorf("writing config file: %w", err)
	}

	fmt.Printf("Config written to %s\n", configPath)
	fmt.Println("\nTo start the server:")
	fmt.Println("  orchestra-gateway serve")
	return nil
}
