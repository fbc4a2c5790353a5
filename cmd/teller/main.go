// ABOUTME: Entry point for the teller banking assistant server
// ABOUTME: Provides serve, init, ingest, and health commands

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
	"github.com/joho/godotenv"
	"github.com/spf13/pflag"

	"github.com/2389/teller/internal/config"
	"github.com/2389/teller/internal/corpus"
	"github.com/2389/teller/internal/embedding"
	"github.com/2389/teller/internal/server"
)

// Version is set at build time with -ldflags "-X main.version=...".
var version = "dev"

const banner = `
  _       _ _
 | |_ ___| | | ___ _ __
 | __/ _ \ | |/ _ \ '__|
 | ||  __/ | |  __/ |
  \__\___|_|_|\___|_|
`

// getConfigPath returns the path to the teller config file.
// Priority: --config flag > TELLER_CONFIG env var > XDG_CONFIG_HOME/teller/teller.yaml > ~/.config/teller/teller.yaml
func getConfigPath(flagValue string) string {
	if flagValue != "" {
		return flagValue
	}
	if envPath := os.Getenv("TELLER_CONFIG"); envPath != "" {
		return envPath
	}

	configDir := os.Getenv("XDG_CONFIG_HOME")
	if configDir == "" {
		homeDir, err := os.UserHomeDir()
		if err != nil {
			return "teller.yaml"
		}
		configDir = filepath.Join(homeDir, ".config")
	}

	return filepath.Join(configDir, "teller", "teller.yaml")
}

// getDataPath returns the path to the teller data directory.
// Priority: XDG_DATA_HOME/teller > ~/.local/share/teller
func getDataPath() string {
	dataDir := os.Getenv("XDG_DATA_HOME")
	if dataDir == "" {
		homeDir, err := os.UserHomeDir()
		if err != nil {
			return "data"
		}
		dataDir = filepath.Join(homeDir, ".local", "share")
	}

	return filepath.Join(dataDir, "teller")
}

func usage() {
	fmt.Println("Usage: teller <command> [flags]")
	fmt.Println()
	fmt.Println("Commands:")
	fmt.Println("  serve                  Start the assistant server")
	fmt.Println("  init [--force]         Create a new config file interactively")
	fmt.Println("  ingest --file PATH     Add FAQ files to the retrieval corpus (repeatable)")
	fmt.Println("  health                 Check server readiness")
	fmt.Println()
	fmt.Println("Every command accepts --config PATH.")
}

func main() {
	if len(os.Args) < 2 {
		usage()
		os.Exit(1)
	}

	// A missing .env is normal; values may come from the real environment.
	_ = godotenv.Load()

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	args := os.Args[2:]
	var err error
	switch os.Args[1] {
	case "serve":
		err = runServe(ctx, args)
	case "init":
		err = runInit(args, os.Stdin)
	case "ingest":
		err = runIngest(ctx, args)
	case "health":
		err = runHealth(ctx, args)
	case "help", "-h", "--help":
		usage()
	case "version", "--version":
		fmt.Println(version)
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n", os.Args[1])
		os.Exit(1)
	}

	if err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			return
		}
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// newFlagSet returns a flag set for command with the shared --config flag.
func newFlagSet(command string, configPath *string) *pflag.FlagSet {
	fs := pflag.NewFlagSet("teller "+command, pflag.ContinueOnError)
	fs.StringVarP(configPath, "config", "c", "", "config file path")
	return fs
}

// loadConfig parses args and loads the selected config file.
func loadConfig(fs *pflag.FlagSet, args []string, configFlag *string) (*config.Config, string, error) {
	if err := fs.Parse(args); err != nil {
		return nil, "", err
	}
	if fs.NArg() > 0 {
		return nil, "", fmt.Errorf("unexpected argument: %s", fs.Arg(0))
	}
	path := getConfigPath(*configFlag)
	cfg, err := config.Load(path)
	if err != nil {
		return nil, "", fmt.Errorf("loading config: %w", err)
	}
	return cfg, path, nil
}

func runServe(ctx context.Context, args []string) error {
	var configFlag string
	fs := newFlagSet("serve", &configFlag)
	cfg, configPath, err := loadConfig(fs, args, &configFlag)
	if err != nil {
		return err
	}

	cyan := color.New(color.FgCyan)
	cyan.Print(banner)

	gray := color.New(color.FgHiBlack)
	gray.Printf("    version: %s\n\n", version)

	logger := setupLogger(cfg.Logging)

	green := color.New(color.FgGreen)
	green.Print("    ▶ ")
	fmt.Printf("Config:     %s\n", configPath)
	green.Print("    ▶ ")
	fmt.Printf("HTTP:       %s\n", cfg.Server.HTTPAddr)
	green.Print("    ▶ ")
	fmt.Printf("Chat:       ws://%s/ws/chat/{room}\n", cfg.Server.HTTPAddr)
	green.Print("    ▶ ")
	fmt.Printf("Classifier: %s (%s)\n", cfg.Classifier.Provider, cfg.Classifier.Model)
	green.Print("    ▶ ")
	fmt.Printf("Embedder:   %s", cfg.Embedder.Provider)
	gray.Printf(" [%s index]\n", cfg.Retriever.Index)
	fmt.Println()

	logger.Info("starting teller",
		"config", configPath,
		"http_addr", cfg.Server.HTTPAddr,
	)

	srv, err := server.New(ctx, cfg, logger)
	if err != nil {
		return fmt.Errorf("creating server: %w", err)
	}

	return srv.Run(ctx)
}

func setupLogger(cfg config.LoggingConfig) *slog.Logger {
	var level slog.Level
	switch cfg.Level {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}

	var handler slog.Handler
	if cfg.Format == "json" {
		handler = slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: level})
	} else {
		handler = &colorHandler{level: level, out: os.Stdout, mu: &sync.Mutex{}}
	}

	return slog.New(handler)
}

// colorHandler provides colorized log output with thread-safe writes.
// Handlers derived through WithAttrs share the parent's mutex and writer.
type colorHandler struct {
	mu     *sync.Mutex
	out    io.Writer
	level  slog.Level
	attrs  []slog.Attr
	groups []string
}

func (h *colorHandler) Enabled(_ context.Context, level slog.Level) bool {
	return level >= h.level
}

func (h *colorHandler) Handle(_ context.Context, r slog.Record) error {
	var buf strings.Builder

	buf.WriteString(color.HiBlackString(r.Time.Format("15:04:05") + " "))

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
	for _, a := range h.attrs {
		buf.WriteString(color.HiBlackString(" " + a.Key + "="))
		buf.WriteString(a.Value.String())
	}
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
	newAttrs := make([]slog.Attr, len(h.attrs), len(h.attrs)+len(attrs))
	copy(newAttrs, h.attrs)
	newAttrs = append(newAttrs, attrs...)
	return &colorHandler{
		mu:     h.mu,
		out:    h.out,
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
		mu:     h.mu,
		out:    h.out,
		level:  h.level,
		attrs:  h.attrs,
		groups: newGroups,
	}
}

func runHealth(ctx context.Context, args []string) error {
	var configFlag string
	fs := newFlagSet("health", &configFlag)
	cfg, _, err := loadConfig(fs, args, &configFlag)
	if err != nil {
		return err
	}

	url := fmt.Sprintf("http://%s/health/ready", cfg.Server.HTTPAddr)
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

	fmt.Println(string(body))
	return nil
}

// runIngest splits FAQ files into sections and stores each one with its
// embedding. A running server picks the documents up on its next start.
func runIngest(ctx context.Context, args []string) error {
	var configFlag string
	var files []string
	fs := newFlagSet("ingest", &configFlag)
	fs.StringArrayVarP(&files, "file", "f", nil, "FAQ file to ingest, repeatable (.md splits on headings, anything else on blank lines)")
	cfg, _, err := loadConfig(fs, args, &configFlag)
	if err != nil {
		return err
	}
	if len(files) == 0 {
		return fmt.Errorf("--file flag is required")
	}

	logger := setupLogger(cfg.Logging)

	s, err := server.OpenStore(cfg)
	if err != nil {
		return err
	}
	defer s.Close()

	emb, err := embedding.New(cfg.Embedder, logger)
	if err != nil {
		return fmt.Errorf("creating embedder: %w", err)
	}
	if c, ok := emb.(interface{ Close() }); ok {
		defer c.Close()
	}

	r, err := server.NewRetriever(ctx, cfg, emb, s, logger)
	if err != nil {
		return err
	}

	green := color.New(color.FgGreen)
	yellow := color.New(color.FgYellow)
	for _, file := range files {
		n, err := corpus.IngestFile(ctx, r, file)
		if n > 0 {
			green.Printf("  ✓ Ingested %d section(s) from %s\n", n, file)
		}
		if err != nil {
			return err
		}
		if n == 0 {
			yellow.Printf("  No content found in %s\n", file)
		}
	}
	return nil
}

// initAnswers holds the values collected by runInit.
type initAnswers struct {
	HTTPAddr      string
	DBPath        string
	Model         string
	Embedder      string
	EmbedderModel string
	Index         string
	LogLevel      string
	LogFormat     string
}

// renderConfig produces the YAML config file for a.
// The API keys are read from the environment at load time.
func renderConfig(a initAnswers) string {
	var b strings.Builder
	b.WriteString("# teller configuration\n")
	b.WriteString("# Generated by teller init\n\n")

	b.WriteString("server:\n")
	fmt.Fprintf(&b, "  http_addr: %q\n\n", a.HTTPAddr)

	b.WriteString("database:\n")
	fmt.Fprintf(&b, "  path: %q\n\n", a.DBPath)

	b.WriteString("classifier:\n")
	b.WriteString("  provider: \"anthropic\"\n")
	b.WriteString("  api_key: \"${ANTHROPIC_API_KEY}\"\n")
	fmt.Fprintf(&b, "  model: %q\n", a.Model)
	b.WriteString("  timeout: \"30s\"\n\n")

	b.WriteString("embedder:\n")
	fmt.Fprintf(&b, "  provider: %q\n", a.Embedder)
	switch a.Embedder {
	case config.EmbedderOpenAI:
		b.WriteString("  api_key: \"${OPENAI_API_KEY}\"\n")
	case config.EmbedderOllama:
		fmt.Fprintf(&b, "  model: %q\n", a.EmbedderModel)
	}
	b.WriteString("  cache_size: 1000\n\n")

	b.WriteString("retriever:\n")
	fmt.Fprintf(&b, "  index: %q\n", a.Index)
	b.WriteString("  top_k: 3\n")
	b.WriteString("  timeout: \"10s\"\n\n")

	b.WriteString("chat:\n")
	b.WriteString("  history_limit: 50\n")
	b.WriteString("  rate_limit: 1\n")
	b.WriteString("  burst: 5\n\n")

	b.WriteString("logging:\n")
	fmt.Fprintf(&b, "  level: %q\n", a.LogLevel)
	fmt.Fprintf(&b, "  format: %q\n", a.LogFormat)
	return b.String()
}

func runInit(args []string, in io.Reader) error {
	var configFlag string
	var force bool
	fs := newFlagSet("init", &configFlag)
	fs.BoolVar(&force, "force", false, "overwrite an existing config without asking")
	if err := fs.Parse(args); err != nil {
		return err
	}

	reader := bufio.NewReader(in)

	fmt.Println("teller configuration setup")
	fmt.Println("==========================")
	fmt.Println()

	outputFile := prompt(reader, "Config file path", getConfigPath(configFlag))

	if _, err := os.Stat(outputFile); err == nil && !force {
		if !yes(prompt(reader, "File exists. Overwrite?", "no")) {
			fmt.Println("Aborted.")
			return nil
		}
	}

	fmt.Println("\n--- Server Configuration ---")
	var a initAnswers
	a.HTTPAddr = prompt(reader, "HTTP address", "localhost:8000")
	a.DBPath = prompt(reader, "SQLite database path", filepath.Join(getDataPath(), "teller.db"))

	fmt.Println("\n--- Assistant Configuration ---")
	a.Model = prompt(reader, "Anthropic model", "claude-3-5-haiku-latest")
	a.Embedder = prompt(reader, "Embedder (hash/openai/ollama)", config.EmbedderHash)
	if a.Embedder == config.EmbedderOllama {
		a.EmbedderModel = prompt(reader, "Ollama embedding model", "nomic-embed-text")
	}
	a.Index = prompt(reader, "Retriever index (memory/chromem)", config.IndexMemory)

	fmt.Println("\n--- Logging Configuration ---")
	a.LogLevel = prompt(reader, "Log level (debug/info/warn/error)", "info")
	a.LogFormat = prompt(reader, "Log format (text/json)", "text")

	if err := os.MkdirAll(filepath.Dir(outputFile), 0o755); err != nil {
		return fmt.Errorf("creating config directory: %w", err)
	}
	if err := os.WriteFile(outputFile, []byte(renderConfig(a)), 0o644); err != nil {
		return fmt.Errorf("writing config file: %w", err)
	}

	dataDir := filepath.Dir(a.DBPath)
	if err := os.MkdirAll(dataDir, 0o755); err != nil {
		return fmt.Errorf("creating data directory: %w", err)
	}

	fmt.Printf("\nConfig written to %s\n", outputFile)
	fmt.Printf("Data directory: %s\n", dataDir)
	fmt.Println("\nSet ANTHROPIC_API_KEY (a .env file works), then start the server:")
	fmt.Println("  teller serve")

	return nil
}

func yes(answer string) bool {
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
	if err != nil && input == "" {
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
