package cli

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/hearthmind/hearth/internal/config"
	"github.com/hearthmind/hearth/internal/embedding"
	"github.com/hearthmind/hearth/internal/engine"
	"github.com/hearthmind/hearth/internal/llm"
	"github.com/hearthmind/hearth/internal/notify"
	"github.com/hearthmind/hearth/internal/server"
	"github.com/hearthmind/hearth/internal/state"
	"github.com/hearthmind/hearth/internal/store"
	"github.com/spf13/cobra"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the hearth core and HTTP API server",
	RunE:  runServe,
}

func runServe(cmd *cobra.Command, args []string) error {
	path := configPath
	if path == "" {
		var err error
		path, err = config.DefaultPath()
		if err != nil {
			return fmt.Errorf("resolve config path: %w", err)
		}
	}
	cfg, err := config.Load(path)
	if err != nil {
		return err
	}

	dbPath := cfg.Database.Path
	if dbPath == "" {
		dbPath, err = store.DefaultDBPath()
		if err != nil {
			return fmt.Errorf("resolve db path: %w", err)
		}
	}

	db, err := store.Open(dbPath)
	if err != nil {
		return fmt.Errorf("open database: %w", err)
	}
	defer db.Close()

	llmClient, err := llm.NewClient(cfg.LLM)
	if err != nil {
		return fmt.Errorf("configure llm: %w", err)
	}

	var embedder embedding.Embedder
	if cfg.Embedding.Provider == "ollama" {
		embedder = embedding.NewOllamaEmbedder(cfg.Embedding.URL, cfg.Embedding.Model)
		fmt.Fprintf(os.Stderr, "  embedder: ollama (%s)\n", cfg.Embedding.Model)
	}

	hub := notify.NewHub()
	st := state.New(hub)
	st.SetMaxAttempts(cfg.Queue.MaxAttempts)

	eng := engine.New(cfg, st, db, llmClient, embedder, hub)

	// Resume from the newest checkpoint, if any.
	if metas, err := eng.Checkpoints.List(); err != nil {
		fmt.Fprintf(os.Stderr, "warning: list checkpoints: %v\n", err)
	} else if len(metas) > 0 {
		if ok, err := eng.Checkpoints.Restore(metas[0].Slot); err != nil {
			fmt.Fprintf(os.Stderr, "warning: restore checkpoint %d: %v\n", metas[0].Slot, err)
		} else if ok {
			fmt.Fprintf(os.Stderr, "  restored checkpoint slot %d\n", metas[0].Slot)
		}
	}

	eng.Start()
	defer eng.Stop()

	srv := server.New(eng, hub, VersionString())
	addr := cfg.ListenAddr()

	httpServer := &http.Server{
		Addr:    addr,
		Handler: srv,
	}

	// Graceful shutdown
	done := make(chan os.Signal, 1)
	signal.Notify(done, os.Interrupt, syscall.SIGTERM)

	go func() {
		fmt.Fprintf(os.Stderr, "hearth serving on %s\n", addr)
		fmt.Fprintf(os.Stderr, "  db: %s\n", dbPath)
		fmt.Fprintf(os.Stderr, "  llm: %s\n", cfg.LLM.Provider)
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			fmt.Fprintf(os.Stderr, "server error: %v\n", err)
			os.Exit(1)
		}
	}()

	<-done
	fmt.Fprintln(os.Stderr, "\nshutting down...")

	// Final checkpoint so nothing since the last auto save is lost.
	if _, err := eng.Checkpoints.Create(nil, ""); err != nil {
		fmt.Fprintf(os.Stderr, "warning: shutdown checkpoint: %v\n", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	return httpServer.Shutdown(ctx)
}
