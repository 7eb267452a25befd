// Package main is the Tower CLI entry point.
package main

import (
	"bytes"
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/url"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/obro79/Tower/internal/config"
	"github.com/obro79/Tower/internal/embedding"
	"github.com/obro79/Tower/internal/extract"
	"github.com/obro79/Tower/internal/ingest"
	"github.com/obro79/Tower/internal/keyword"
	"github.com/obro79/Tower/internal/lifecycle"
	"github.com/obro79/Tower/internal/models"
	"github.com/obro79/Tower/internal/search"
	"github.com/obro79/Tower/internal/server"
	"github.com/obro79/Tower/internal/storage"
	"github.com/obro79/Tower/internal/watcher"
	"github.com/obro79/Tower/pkg/utils"
)

var version = "dev"

const defaultConfigPath = "/usr/local/etc/tower/config.yaml"

// loadConfig loads config from path. When path is the default, a config.yaml
// in the current directory takes precedence so "tower server" from the project
// dir picks up the project's config. Returns the config and the path actually loaded.
func loadConfig(path string) (*config.Config, string, error) {
	if path == defaultConfigPath {
		if cwd, cwdErr := os.Getwd(); cwdErr == nil {
			fallback := filepath.Join(cwd, "config.yaml")
			if _, statErr := os.Stat(fallback); statErr == nil {
				cfg, loadErr := config.Load(fallback)
				if loadErr != nil {
					return nil, "", loadErr
				}
				return cfg, fallback, nil
			}
		}
	}
	cfg, err := config.Load(path)
	if err != nil {
		return nil, "", err
	}
	return cfg, path, nil
}

func main() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}
	command := os.Args[1]
	switch command {
	case "server":
		runServer()
	case "search":
		runSearch()
	case "keyword":
		runKeyword()
	case "embed":
		runEmbed()
	case "delete":
		runDelete()
	case "status":
		runStatus()
	case "version", "--version", "-v":
		fmt.Printf("tower version %s\n", version)
	case "help", "--help", "-h":
		printUsage()
	default:
		fmt.Printf("Unknown command: %s\n", command)
		printUsage()
		os.Exit(1)
	}
}

func runServer() {
	fs := flag.NewFlagSet("server", flag.ExitOnError)
	configPath := fs.String("config", defaultConfigPath, "config file path")
	debug := fs.Bool("debug", false, "enable debug logging")
	_ = fs.Parse(os.Args[2:])

	cfg, resolvedConfigPath, err := loadConfig(*configPath)
	if err != nil {
		fmt.Printf("Failed to load config: %v\n", err)
		os.Exit(1)
	}
	debugMode := cfg.Debug || *debug
	logger, err := utils.NewLogger(debugMode)
	if err != nil {
		fmt.Printf("Failed to create logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	logger.Info("config loaded",
		zap.String("config_path", resolvedConfigPath),
		zap.Bool("debug", debugMode),
	)

	components, err := initializeComponents(cfg, logger)
	if err != nil {
		logger.Fatal("Failed to initialize components", zap.Error(err))
	}
	defer components.Close()

	spoolCtx, spoolCancel := context.WithCancel(context.Background())
	defer spoolCancel()
	var spool *watcher.SpoolWatcher
	if cfg.Spool.Enabled {
		ing := components.Ingestor
		spool = watcher.NewSpoolWatcher(cfg.Spool.Directory, func(fileID int64, filename, path string) {
			if err := ing.IngestSpool(context.Background(), fileID, filename, path); err != nil {
				logger.Warn("spool ingest failed",
					zap.Int64("file_id", fileID), zap.String("path", path), zap.Error(err))
			}
		}, logger)
		if err := spool.Start(spoolCtx); err != nil {
			logger.Fatal("Failed to start spool watcher", zap.Error(err))
		}
		if err := spool.SyncExisting(); err != nil {
			logger.Warn("spool sync failed", zap.Error(err))
		}
	}

	srv := server.NewServer(
		components.Aggregator,
		components.Ingestor,
		components.Manager,
		components.KeywordIndex,
		cfg,
		logger,
	)
	go func() {
		if err := srv.Start(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("Server failed", zap.Error(err))
		}
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	<-sigChan

	logger.Info("Shutting down...")
	if spool != nil {
		spool.Stop()
	}
	spoolCancel()
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	_ = srv.Stop(ctx)
}

// buildQuery joins all positional args with spaces so multi-word queries work
// the same with or without shell quoting.
func buildQuery(args []string) string {
	return strings.TrimSpace(strings.Join(args, " "))
}

// argsReorder moves flags (and their values) that appear after the query to
// the front of the slice so flag.Parse() sees them. The flag package stops at
// the first non-flag argument.
func argsReorder(args []string) []string {
	for i, a := range args {
		if len(a) > 0 && a[0] == '-' {
			if i == 0 {
				return args
			}
			reordered := make([]string, 0, len(args))
			reordered = append(reordered, args[i:]...)
			reordered = append(reordered, args[:i]...)
			return reordered
		}
	}
	return args
}

func runSearch() {
	fs := flag.NewFlagSet("search", flag.ExitOnError)
	serverURL := fs.String("server", "http://localhost:8080", "server URL")
	topK := fs.Int("top-k", 10, "number of results")
	noExpand := fs.Bool("no-expand", false, "disable query expansion")
	expansions := fs.Int("expansions", 0, "number of expanded query variants (0 = server default)")
	outputFormat := fs.String("output", "text", "output format: text or json")
	_ = fs.Parse(argsReorder(os.Args[2:]))

	queryStr := buildQuery(fs.Args())
	if queryStr == "" {
		fmt.Println("Usage: tower search [flags] <query>")
		fs.PrintDefaults()
		os.Exit(1)
	}

	query := &models.SemanticQuery{
		Query:          queryStr,
		TopK:           *topK,
		ExpansionCount: *expansions,
	}
	if *noExpand {
		disabled := false
		query.UseQueryExpansion = &disabled
	}

	body, _ := json.Marshal(query)
	resp, err := http.Post(*serverURL+"/api/v1/search/semantic", "application/json", bytes.NewReader(body))
	if err != nil {
		fmt.Fprintf(os.Stderr, "Search failed: %v\n", err)
		os.Exit(1)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		b, _ := io.ReadAll(resp.Body)
		fmt.Fprintf(os.Stderr, "Search failed (%d): %s\n", resp.StatusCode, string(b))
		os.Exit(1)
	}

	var response models.SemanticResponse
	if err := json.NewDecoder(resp.Body).Decode(&response); err != nil {
		fmt.Fprintf(os.Stderr, "Decode response failed: %v\n", err)
		os.Exit(1)
	}

	switch *outputFormat {
	case "json":
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		_ = enc.Encode(&response)
	case "text":
		fmt.Printf("%d result(s) for %q (%d variant(s), %dms)\n",
			response.Total, response.Query, response.Variants, response.QueryTime)
		for i, r := range response.Results {
			fmt.Printf("%2d. file %-8d score %.4f  via %s\n",
				i+1, r.FileID, r.SimilarityScore, r.MatchedVia)
		}
	default:
		fmt.Fprintf(os.Stderr, "Unknown output format %q; use text or json\n", *outputFormat)
		os.Exit(1)
	}
}

func runKeyword() {
	fs := flag.NewFlagSet("keyword", flag.ExitOnError)
	serverURL := fs.String("server", "http://localhost:8080", "server URL")
	limit := fs.Int("limit", 50, "number of results")
	_ = fs.Parse(argsReorder(os.Args[2:]))

	queryStr := buildQuery(fs.Args())
	if queryStr == "" {
		fmt.Println("Usage: tower keyword [flags] <query>")
		os.Exit(1)
	}

	u := fmt.Sprintf("%s/api/v1/search/keyword?q=%s&limit=%d",
		*serverURL, url.QueryEscape(queryStr), *limit)
	resp, err := http.Get(u)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Keyword search failed: %v\n", err)
		os.Exit(1)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		b, _ := io.ReadAll(resp.Body)
		fmt.Fprintf(os.Stderr, "Keyword search failed (%d): %s\n", resp.StatusCode, string(b))
		os.Exit(1)
	}

	var out struct {
		Results []*models.KeywordResult `json:"results"`
		Total   int                     `json:"total"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		fmt.Fprintf(os.Stderr, "Decode response failed: %v\n", err)
		os.Exit(1)
	}
	fmt.Printf("%d result(s)\n", out.Total)
	for i, r := range out.Results {
		fmt.Printf("%2d. file %-8d %s\n", i+1, r.FileID, r.Filename)
	}
}

func runEmbed() {
	fs := flag.NewFlagSet("embed", flag.ExitOnError)
	serverURL := fs.String("server", "http://localhost:8080", "server URL")
	fileID := fs.Int64("id", 0, "file id (required, positive)")
	_ = fs.Parse(argsReorder(os.Args[2:]))

	if *fileID <= 0 || fs.NArg() < 1 {
		fmt.Println("Usage: tower embed --id <file-id> <file>")
		os.Exit(1)
	}
	path := fs.Arg(0)

	f, err := os.Open(path)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Open file failed: %v\n", err)
		os.Exit(1)
	}
	defer f.Close()

	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	_ = mw.WriteField("file_id", fmt.Sprintf("%d", *fileID))
	part, err := mw.CreateFormFile("file", filepath.Base(path))
	if err != nil {
		fmt.Fprintf(os.Stderr, "Build upload failed: %v\n", err)
		os.Exit(1)
	}
	if _, err := io.Copy(part, f); err != nil {
		fmt.Fprintf(os.Stderr, "Build upload failed: %v\n", err)
		os.Exit(1)
	}
	mw.Close()

	resp, err := http.Post(*serverURL+"/api/v1/embeddings/file", mw.FormDataContentType(), &buf)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Upload failed: %v\n", err)
		os.Exit(1)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusCreated {
		b, _ := io.ReadAll(resp.Body)
		fmt.Fprintf(os.Stderr, "Upload failed (%d): %s\n", resp.StatusCode, string(b))
		os.Exit(1)
	}
	fmt.Printf("File indexed: %d (%s)\n", *fileID, filepath.Base(path))
}

func runDelete() {
	fs := flag.NewFlagSet("delete", flag.ExitOnError)
	serverURL := fs.String("server", "http://localhost:8080", "server URL")
	_ = fs.Parse(os.Args[2:])

	if fs.NArg() < 1 {
		fmt.Println("Usage: tower delete [flags] <file-id>")
		os.Exit(1)
	}
	fileID := fs.Arg(0)

	req, _ := http.NewRequest(http.MethodDelete, *serverURL+"/api/v1/embeddings/"+url.PathEscape(fileID), nil)
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Delete failed: %v\n", err)
		os.Exit(1)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		b, _ := io.ReadAll(resp.Body)
		fmt.Fprintf(os.Stderr, "Delete failed (%d): %s\n", resp.StatusCode, string(b))
		os.Exit(1)
	}
	fmt.Printf("File deleted: %s\n", fileID)
}

func runStatus() {
	fs := flag.NewFlagSet("status", flag.ExitOnError)
	serverURL := fs.String("server", "http://localhost:8080", "server URL")
	outputFormat := fs.String("output", "text", "output format: text or json")
	_ = fs.Parse(os.Args[2:])

	resp, err := http.Get(*serverURL + "/api/v1/stats")
	if err != nil {
		fmt.Fprintf(os.Stderr, "Status failed: %v\n", err)
		os.Exit(1)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		b, _ := io.ReadAll(resp.Body)
		fmt.Fprintf(os.Stderr, "Status failed (%d): %s\n", resp.StatusCode, string(b))
		os.Exit(1)
	}

	var stats struct {
		Records          int64 `json:"records"`
		IndexedVectors   int   `json:"indexed_vectors"`
		Dimension        int   `json:"dimension"`
		IndexedFilenames int64 `json:"indexed_filenames"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&stats); err != nil {
		fmt.Fprintf(os.Stderr, "Decode response failed: %v\n", err)
		os.Exit(1)
	}

	switch *outputFormat {
	case "json":
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		_ = enc.Encode(&stats)
	case "text":
		fmt.Printf("records:            %d   # embeddings in the record store\n", stats.Records)
		fmt.Printf("indexed_vectors:    %d   # vectors in the similarity index\n", stats.IndexedVectors)
		fmt.Printf("dimension:          %d\n", stats.Dimension)
		fmt.Printf("indexed_filenames:  %d   # entries in the keyword index\n", stats.IndexedFilenames)
	default:
		fmt.Fprintf(os.Stderr, "Unknown output format %q; use text or json\n", *outputFormat)
		os.Exit(1)
	}
}

// Components holds initialized services.
type Components struct {
	Store        storage.VectorStore
	Embedder     embedding.Embedder
	Manager      *lifecycle.Manager
	KeywordIndex keyword.Index
	Aggregator   *search.Aggregator
	Ingestor     *ingest.Ingestor
}

func (c *Components) Close() {
	if c.Store != nil {
		_ = c.Store.Close()
	}
	if c.Embedder != nil {
		_ = c.Embedder.Close()
	}
	if c.KeywordIndex != nil {
		_ = c.KeywordIndex.Close()
	}
}

func initializeComponents(cfg *config.Config, logger *zap.Logger) (*Components, error) {
	store, err := storage.NewSQLiteStore(cfg.Storage.DatabasePath, cfg.Embedding.Dimension)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize storage: %w", err)
	}

	embedder := newEmbedder(cfg, logger)

	manager, err := lifecycle.NewManager(context.Background(), store, cfg.Storage.SnapshotPath, logger)
	if err != nil {
		store.Close()
		return nil, fmt.Errorf("failed to initialize index: %w", err)
	}

	keywordIndex, err := keyword.NewBleveIndex(cfg.Storage.KeywordIndexPath)
	if err != nil {
		store.Close()
		return nil, fmt.Errorf("failed to initialize keyword index: %w", err)
	}

	aggregator := search.NewAggregator(embedder, manager, &cfg.Search, logger)
	ingestor := ingest.NewIngestor(extract.NewExtractor(), embedder, manager, keywordIndex, logger)

	return &Components{
		Store:        store,
		Embedder:     embedder,
		Manager:      manager,
		KeywordIndex: keywordIndex,
		Aggregator:   aggregator,
		Ingestor:     ingestor,
	}, nil
}

// newEmbedder selects the embedding provider. The ONNX embedder falls back to
// the mock when the runtime or model is unavailable, so development setups
// work without the native library.
func newEmbedder(cfg *config.Config, logger *zap.Logger) embedding.Embedder {
	if cfg.Embedding.Provider == "mock" {
		return embedding.NewMockEmbedder(cfg.Embedding.Dimension)
	}
	onnx, err := embedding.NewONNXEmbedder(
		cfg.Embedding.ModelPath,
		cfg.Embedding.Dimension,
		cfg.Embedding.MaxTokens,
		cfg.Embedding.CacheSize,
	)
	if err != nil {
		logger.Warn("ONNX embedder unavailable, using mock embedder", zap.Error(err))
		return embedding.NewMockEmbedder(cfg.Embedding.Dimension)
	}
	return onnx
}

func printUsage() {
	fmt.Println(`tower - embedding-indexed file search service

Usage:
  tower server [flags]             Start the HTTP server
  tower search [flags] <query>     Semantic search over indexed files
  tower keyword [flags] <query>    Filename keyword search
  tower embed --id <id> <file>     Upload and index a file
  tower delete [flags] <file-id>   Delete a file's embedding
  tower status [flags]             Show store and index counts
  tower version                    Show version
  tower help                       Show this help

Server Flags:
  --config string    Config file path (default: /usr/local/etc/tower/config.yaml)
  --debug            Enable debug logging

Search Flags:
  --server string    Server URL (default: http://localhost:8080)
  --top-k int        Number of results (default: 10)
  --no-expand        Disable query expansion
  --expansions int   Number of expanded variants (0 = server default)
  --output string    Output format: text or json (default: text)

Examples:
  tower server
  tower search quarterly revenue report
  tower search --no-expand "exact phrasing"
  tower keyword budget
  tower embed --id 42 report.pdf
  tower delete 42
  tower status --output json`)
}
