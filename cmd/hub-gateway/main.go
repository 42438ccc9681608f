// ABOUTME: Entry point for hub-gateway, the read API over a Meltano hub snapshot
// ABOUTME: Serves snapshots over HTTP and builds them from a hub data tree

package main

import (
	"bufio"
	"context"
	"errors"
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
	"github.com/spf13/pflag"

	"github.com/2389/hub-gateway/internal/config"
	"github.com/2389/hub-gateway/internal/gateway"
	"github.com/2389/hub-gateway/internal/snapshot"
)

// Version is set by goreleaser at build time.
var version = "dev"

const banner = `
 _           _                       _
| |__  _   _| |__        __ _  __ _| |_ _____      ____ _ _   _
| '_ \| | | | '_ \ _____/ _' |/ _' | __/ _ \ \ /\ / / _' | | | |
| | | | |_| | |_) |_____| (_| | (_| | ||  __/\ V  V / (_| | |_| |
|_| |_|\__,_|_.__/       \__, |\__,_|\__\___| \_/\_/ \__,_|\__, |
                         |___/                             |___/
`

// errBuildFailed is returned by build when the tree had errors
var errBuildFailed = errors.New("hub tree has errors")

// getConfigPath returns the path to the gateway config file.
// Priority: HUB_CONFIG env var > XDG_CONFIG_HOME/hub-gateway/config.yaml > ~/.config/hub-gateway/config.yaml
func getConfigPath() string {
	if envPath := os.Getenv("HUB_CONFIG"); envPath != "" {
		return envPath
	}

	configDir := os.Getenv("XDG_CONFIG_HOME")
	if configDir == "" {
		homeDir, err := os.UserHomeDir()
		if err != nil {
			return "config.yaml" // fallback
		}
		configDir = filepath.Join(homeDir, ".config")
	}

	return filepath.Join(configDir, "hub-gateway", "config.yaml")
}

// getDataPath returns the directory snapshots are kept in by default.
// Priority: XDG_DATA_HOME/hub-gateway > ~/.local/share/hub-gateway
func getDataPath() string {
	dataDir := os.Getenv("XDG_DATA_HOME")
	if dataDir == "" {
		homeDir, err := os.UserHomeDir()
		if err != nil {
			return "data" // fallback
		}
		dataDir = filepath.Join(homeDir, ".local", "share")
	}

	return filepath.Join(dataDir, "hub-gateway")
}

func usage() {
	fmt.Println("Usage: hub-gateway <command> [flags]")
	fmt.Println()
	fmt.Println("Commands:")
	fmt.Println("  serve                      Serve the hub API from a snapshot")
	fmt.Println("  build --src DIR [--out DB] Build a snapshot from a hub data tree")
	fmt.Println("  init                       Create a new config file interactively")
	fmt.Println("  health                     Check gateway health")
	fmt.Println("  ready                      Check the served snapshot")
}

func main() {
	if len(os.Args) < 2 {
		usage()
		os.Exit(1)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	args := os.Args[2:]
	var err error
	switch os.Args[1] {
	case "serve":
		err = runServe(ctx, args)
	case "build":
		err = runBuild(ctx, args)
	case "init":
		err = runInit()
	case "health":
		err = runProbe(ctx, args, "/health")
	case "ready":
		err = runProbe(ctx, args, "/health/ready")
	case "-h", "--help", "help":
		usage()
		return
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n", os.Args[1])
		os.Exit(1)
	}

	if errors.Is(err, pflag.ErrHelp) {
		return
	}
	if errors.Is(err, errBuildFailed) {
		os.Exit(1)
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// configFlag registers --config on fs, defaulting to getConfigPath()
func configFlag(fs *pflag.FlagSet) *string {
	return fs.StringP("config", "c", getConfigPath(), "path to the config file (.yaml or .toml)")
}

func runServe(ctx context.Context, args []string) error {
	fs := pflag.NewFlagSet("serve", pflag.ContinueOnError)
	configPath := configFlag(fs)
	if err := fs.Parse(args); err != nil {
		return err
	}

	// Print banner
	cyan := color.New(color.FgCyan)
	cyan.Print(banner)

	// Version info
	gray := color.New(color.FgHiBlack)
	gray.Printf("    version: %s\n\n", version)

	// Load configuration
	cfg, err := config.Load(*configPath)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	// Setup logger
	logger := setupLogger(cfg.Logging)
	slog.SetDefault(logger)

	// Startup info
	green := color.New(color.FgGreen)
	yellow := color.New(color.FgYellow)

	green.Print("    ▶ ")
	fmt.Printf("Config:    %s\n", *configPath)
	green.Print("    ▶ ")
	fmt.Printf("Snapshot:  %s", cfg.Database.Path)
	if cfg.Database.Watch {
		yellow.Print(" [watch]")
	}
	fmt.Println()
	green.Print("    ▶ ")
	fmt.Printf("HTTP:      %s\n", cfg.Server.HTTPAddr)
	green.Print("    ▶ ")
	fmt.Printf("Base URL:  %s\n", cfg.BaseURL())
	if cfg.RateLimit.Enabled {
		green.Print("    ▶ ")
		fmt.Printf("Rate:      %g req/s ", cfg.RateLimit.RequestsPerSecond)
		gray.Printf("(burst %d)\n", cfg.RateLimit.Burst)
	}

	fmt.Println()

	logger.Info("starting hub-gateway",
		"config", *configPath,
		"snapshot", cfg.Database.Path,
		"http_addr", cfg.Server.HTTPAddr,
	)

	// Create and run gateway
	gw, err := gateway.New(cfg, logger)
	if err != nil {
		return fmt.Errorf("creating gateway: %w", err)
	}

	return gw.Run(ctx)
}

// runBuild loads a hub data tree and writes it as a snapshot.
// The snapshot is written even when some variants fail to load; the error
// table goes to stdout and the exit status reports the failures.
func runBuild(ctx context.Context, args []string) error {
	fs := pflag.NewFlagSet("build", pflag.ContinueOnError)
	src := fs.String("src", "", "hub data directory (contains default_variants.yml)")
	out := fs.String("out", "", "snapshot file to write (default: database.path from the config)")
	configPath := configFlag(fs)
	exitZero := fs.Bool("exit-zero", false, "exit 0 even when the tree has errors")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *src == "" {
		return fmt.Errorf("--src is required")
	}

	logCfg := config.Default().Logging
	if *out == "" {
		cfg, err := config.Load(*configPath)
		if err != nil {
			return fmt.Errorf("--out not given and no usable config: %w", err)
		}
		*out = cfg.Database.Path
		logCfg = cfg.Logging
	}
	logger := setupLogger(logCfg)

	data, report, err := snapshot.LoadHubTree(*src)
	if err != nil {
		return fmt.Errorf("loading hub tree: %w", err)
	}
	for _, c := range report.Counts {
		logger.Info("loaded plugins",
			"plugin_type", string(c.PluginType),
			"plugins", c.Plugins,
			"variants", c.Variants,
		)
	}

	if err := os.MkdirAll(filepath.Dir(*out), 0755); err != nil {
		return fmt.Errorf("creating output directory: %w", err)
	}
	if err := snapshot.Write(ctx, *out, data); err != nil {
		return fmt.Errorf("writing snapshot: %w", err)
	}
	logger.Info("snapshot written", "path", *out, "errors", len(report.Errors))

	fmt.Println(report.Markdown())

	if report.HasErrors() && !*exitZero {
		return errBuildFailed
	}
	return nil
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
		handler = slog.NewJSONHandler(os.Stderr, opts)
	} else {
		handler = &colorHandler{
			out:   os.Stderr,
			mu:    &sync.Mutex{},
			level: level,
		}
	}

	return slog.New(handler)
}

// colorHandler provides colorized log output with thread-safe writes.
// Handlers derived with WithAttrs share the parent's lock and writer.
type colorHandler struct {
	out    io.Writer
	mu     *sync.Mutex
	level  slog.Level
	attrs  []slog.Attr
	groups []string
}

func (h *colorHandler) Enabled(_ context.Context, level slog.Level) bool {
	return level >= h.level
}

func (h *colorHandler) Handle(_ context.Context, r slog.Record) error {
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

	buf.WriteString(r.Message)

	prefix := ""
	if len(h.groups) > 0 {
		prefix = strings.Join(h.groups, ".") + "."
	}

	// Print handler-level attrs first (from WithAttrs)
	for _, a := range h.attrs {
		buf.WriteString(color.HiBlackString(" " + a.Key + "="))
		buf.WriteString(a.Value.String())
	}

	// Print record attrs
	r.Attrs(func(a slog.Attr) bool {
		buf.WriteString(color.HiBlackString(" " + prefix + a.Key + "="))
		buf.WriteString(a.Value.String())
		return true
	})

	buf.WriteString("\n")

	h.mu.Lock()
	defer h.mu.Unlock()
	_, err := io.WriteString(h.out, buf.String())
	return err
}

func (h *colorHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	prefix := ""
	if len(h.groups) > 0 {
		prefix = strings.Join(h.groups, ".") + "."
	}
	newAttrs := make([]slog.Attr, len(h.attrs), len(h.attrs)+len(attrs))
	copy(newAttrs, h.attrs)
	for _, a := range attrs {
		newAttrs = append(newAttrs, slog.Attr{Key: prefix + a.Key, Value: a.Value})
	}
	return &colorHandler{
		out:    h.out,
		mu:     h.mu,
		level:  h.level,
		attrs:  newAttrs,
		groups: h.groups,
	}
}

func (h *colorHandler) WithGroup(name string) slog.Handler {
	if name == "" {
		return h
	}
	newGroups := make([]string, len(h.groups), len(h.groups)+1)
	copy(newGroups, h.groups)
	newGroups = append(newGroups, name)
	return &colorHandler{
		out:    h.out,
		mu:     h.mu,
		level:  h.level,
		attrs:  h.attrs,
		groups: newGroups,
	}
}

// runProbe requests one of the gateway's health endpoints and prints the answer
func runProbe(ctx context.Context, args []string, path string) error {
	fs := pflag.NewFlagSet(strings.TrimPrefix(path, "/"), pflag.ContinueOnError)
	configPath := configFlag(fs)
	if err := fs.Parse(args); err != nil {
		return err
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	// Make HTTP request to the endpoint with context
	url := fmt.Sprintf("http://%s%s", cfg.Server.HTTPAddr, path)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return fmt.Errorf("creating request: %w", err)
	}

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return fmt.Errorf("health check failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("reading response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("unhealthy: status %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}

	if path == "/health" {
		fmt.Println("healthy")
	} else {
		fmt.Println(string(body))
	}
	return nil
}

func runInit() error {
	reader := bufio.NewReader(os.Stdin)

	fmt.Println("hub-gateway configuration setup")
	fmt.Println("===============================")
	fmt.Println()

	defaultDbPath := filepath.Join(getDataPath(), "hub.db")

	// Output filename
	outputFile := prompt(reader, "Config file path", getConfigPath())

	// Check if file exists
	if _, err := os.Stat(outputFile); err == nil {
		overwrite := prompt(reader, "File exists. Overwrite?", "no")
		if !isYes(overwrite) {
			fmt.Println("Aborted.")
			return nil
		}
	}

	// Server configuration
	fmt.Println("\n--- Server Configuration ---")
	httpAddr := prompt(reader, "HTTP address", "localhost:8080")
	baseURL := prompt(reader, "Public base URL (leave empty to derive from address)", "")

	// Snapshot
	fmt.Println("\n--- Snapshot Configuration ---")
	dbPath := prompt(reader, "Snapshot file path", defaultDbPath)
	driver := prompt(reader, "SQLite driver (sqlite/sqlite3)", "sqlite")
	watch := isYes(prompt(reader, "Reload when the snapshot file is replaced?", "yes"))

	// Rate limiting
	fmt.Println("\n--- Rate Limiting ---")
	rateLimit := isYes(prompt(reader, "Enable per-client rate limiting?", "no"))

	// Logging
	fmt.Println("\n--- Logging Configuration ---")
	logLevel := prompt(reader, "Log level (debug/info/warn/error)", "info")
	logFormat := prompt(reader, "Log format (text/json)", "text")

	// Generate config
	var cfg strings.Builder
	cfg.WriteString("# hub-gateway configuration\n")
	cfg.WriteString("# Generated by hub-gateway init\n\n")

	cfg.WriteString("server:\n")
	cfg.WriteString(fmt.Sprintf("  http_addr: \"%s\"\n", httpAddr))
	if baseURL != "" {
		cfg.WriteString(fmt.Sprintf("  base_url: \"%s\"\n", baseURL))
	}
	cfg.WriteString("  read_header_timeout: \"10s\"\n")
	cfg.WriteString("  request_timeout: \"30s\"\n")
	cfg.WriteString("\n")

	cfg.WriteString("database:\n")
	cfg.WriteString(fmt.Sprintf("  path: \"%s\"\n", dbPath))
	cfg.WriteString(fmt.Sprintf("  driver: \"%s\"\n", driver))
	cfg.WriteString(fmt.Sprintf("  watch: %t\n", watch))
	cfg.WriteString("\n")

	cfg.WriteString("compression:\n")
	cfg.WriteString("  zstd_level: 3\n")
	cfg.WriteString("  gzip_level: -1\n")
	cfg.WriteString("\n")

	cfg.WriteString("rate_limit:\n")
	cfg.WriteString(fmt.Sprintf("  enabled: %t\n", rateLimit))
	cfg.WriteString("  requests_per_second: 20\n")
	cfg.WriteString("  burst: 40\n")
	cfg.WriteString("\n")

	cfg.WriteString("logging:\n")
	cfg.WriteString(fmt.Sprintf("  level: \"%s\"\n", logLevel))
	cfg.WriteString(fmt.Sprintf("  format: \"%s\"\n", logFormat))

	// Ensure config directory exists
	if err := os.MkdirAll(filepath.Dir(outputFile), 0755); err != nil {
		return fmt.Errorf("creating config directory: %w", err)
	}

	// Write config file
	if err := os.WriteFile(outputFile, []byte(cfg.String()), 0644); err != nil {
		return fmt.Errorf("writing config file: %w", err)
	}

	// Ensure data directory exists
	dataDir := filepath.Dir(dbPath)
	if err := os.MkdirAll(dataDir, 0755); err != nil {
		return fmt.Errorf("creating data directory: %w", err)
	}

	fmt.Printf("\nConfig written to %s\n", outputFile)
	fmt.Printf("Data directory: %s\n", dataDir)
	fmt.Println("\nTo build a snapshot and start the server:")
	fmt.Println("  hub-gateway build --src path/to/hub/_data")
	fmt.Println("  hub-gateway serve")

	return nil
}

func isYes(answer string) bool {
	answer = strings.ToLower(answer)
	return answer == "yes" || answer == "y"
}

func prompt(reader *bufio.Reader, question, defaultVal string) string {
	if defaultVal != "" {
		fmt.Printf("%s [%s]: ", question, defaultVal)
	} else {
		fmt.Printf("%s: ", question)
	}

	input, err := reader.ReadString('\n')
	if err != nil {
		// On EOF or error, return default
		fmt.Println()
		return defaultVal
	}
	input = strings.TrimSpace(input)

	if input == "" {
		return defaultVal
	}
	return input
}
