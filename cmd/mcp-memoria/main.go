package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"

	"github.com/dshills/mcp-memoria/internal/chunker"
	"github.com/dshills/mcp-memoria/internal/dedup"
	"github.com/dshills/mcp-memoria/internal/embedmodel"
	"github.com/dshills/mcp-memoria/internal/mcp"
	"github.com/dshills/mcp-memoria/internal/router"
	"github.com/dshills/mcp-memoria/internal/search"
	"github.com/dshills/mcp-memoria/internal/store"
	"github.com/dshills/mcp-memoria/internal/worker"
	"github.com/dshills/mcp-memoria/internal/writepipeline"
)

const shutdownGrace = 5 * time.Second

var (
	version   = "dev"
	buildTime = "unknown"
)

const (
	exitOK        = 0
	exitInitError = 2
	exitServeErr  = 3
)

func main() {
	if len(os.Args) > 1 && os.Args[1] == "--version" {
		fmt.Printf("mcp-memoria\n")
		fmt.Printf("Version: %s\n", version)
		fmt.Printf("Build Time: %s\n", buildTime)
		fmt.Printf("Build Mode: %s\n", store.BuildMode)
		fmt.Printf("SQLite Driver: %s\n", store.DriverName)
		fmt.Printf("Native Cosine: %v\n", store.NativeCosineAvailable)
		os.Exit(exitOK)
	}

	log.SetOutput(os.Stderr)
	log.Printf("mcp-memoria v%s starting (build=%s driver=%s)", version, store.BuildMode, store.DriverName)

	os.Exit(run())
}

func run() int {
	cwd := resolveCwd()

	dataRoot, err := router.DataRoot()
	if err != nil {
		log.Printf("fatal: resolve data root: %v", err)
		return exitInitError
	}

	r := router.New(dataRoot, func(path string) (store.Store, error) {
		return store.Open(path)
	})

	// Open the two fixed-path scopes eagerly so early memory_stats/list
	// calls never pay a first-open cost mid-request.
	if _, err := r.Resolve("global", cwd); err != nil {
		log.Printf("fatal: open global store: %v", err)
		return exitInitError
	}
	if _, err := r.Resolve("personality", cwd); err != nil {
		log.Printf("fatal: open personality store: %v", err)
		return exitInitError
	}

	embedder, err := embedmodel.NewFromEnv()
	if err != nil {
		log.Printf("fatal: init embedder: %v", err)
		return exitInitError
	}
	defer func() { _ = embedder.Close() }()

	w := worker.New(embedder, r)
	pipeline := writepipeline.New(r, chunker.New(), dedup.New(), w, uuid.NewString)
	searchEngine := search.New(r, embedder)

	srv := mcp.NewServer(r, pipeline, searchEngine, cwd)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	go w.Run(ctx)

	errChan := make(chan error, 1)
	go func() {
		log.Println("mcp-memoria ready, listening on stdio...")
		errChan <- srv.Serve(ctx)
	}()

	var serveErr error
	select {
	case sig := <-sigChan:
		log.Printf("received signal %v, shutting down", sig)
		cancel()
	case serveErr = <-errChan:
		cancel()
	}

	select {
	case <-w.Done():
	case <-time.After(shutdownGrace):
		log.Println("worker did not drain within grace period")
	}

	if err := r.CloseAll(); err != nil {
		log.Printf("error closing stores: %v", err)
	}

	if serveErr != nil {
		log.Printf("transport error: %v", serveErr)
		return exitServeErr
	}
	log.Println("mcp-memoria stopped")
	return exitOK
}

func resolveCwd() string {
	if v := os.Getenv("MCP_PROJECT_DIR"); v != "" {
		return v
	}
	if v := os.Getenv("CLAUDE_CWD"); v != "" {
		return v
	}
	if wd, err := os.Getwd(); err == nil {
		return wd
	}
	return "."
}
