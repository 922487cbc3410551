package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/engramhq/engram/internal/api"
	"github.com/engramhq/engram/internal/config"
	"github.com/engramhq/engram/internal/consolidator"
	"github.com/engramhq/engram/internal/embedding"
	"github.com/engramhq/engram/internal/engine"
	"github.com/engramhq/engram/internal/extractor"
	"github.com/engramhq/engram/internal/indexer"
	"github.com/engramhq/engram/internal/llm"
	"github.com/engramhq/engram/internal/models"
	"github.com/engramhq/engram/internal/scheduler"
	"github.com/engramhq/engram/internal/search"
	"github.com/engramhq/engram/internal/store"
)

func serveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Start the memory service",
		RunE:  runServe,
	}
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	logger := newLogger(cfg.LogLevel)

	// SQLite
	db, err := store.Open(cfg.DBPath)
	if err != nil {
		return fmt.Errorf("open database: %w", err)
	}
	defer db.Close()

	// Stores
	fileStore := store.NewFileStore(db)
	chunkStore := store.NewChunkStore(db)
	embCacheStore := store.NewEmbeddingCacheStore(db)
	sessionStore := store.NewSessionStore(db)
	factStore := store.NewFactStore(db)
	jobStore := store.NewJobStore(db)
	userConfigStore := store.NewUserConfigStore(db, models.UserIndexingConfig{
		AutoIndex:                  cfg.AutoIndex,
		MinMessagesToIndex:         cfg.MinMessagesToIndex,
		IndexOnSessionEnd:          cfg.IndexOnSessionEnd,
		ConsolidateOnIndex:         true,
		ConsolidationIntervalHours: cfg.ConsolidationIntervalHours,
	})

	// External services
	ollamaEmbed := embedding.NewOllamaClient(cfg.OllamaBaseURL, cfg.EmbeddingModel)
	chatClient := llm.NewOllamaClient(cfg.OllamaBaseURL, cfg.ChatModel)

	// Embedding with cache
	embedder := embedding.NewCachedEmbedder(ollamaEmbed, embCacheStore, cfg.EmbeddingDim, cfg.CacheEnabled)

	// Search
	searcher := search.NewHybridSearcher(db, chunkStore, cfg.VectorWeight, cfg.TextWeight, logger)

	// Memory engine
	eng := engine.New(db, fileStore, chunkStore, embCacheStore, embedder, searcher, engine.Config{
		ChunkTokenSize:    cfg.ChunkTokenSize,
		ChunkTokenOverlap: cfg.ChunkTokenOverlap,
		SearchMaxResults:  cfg.SearchMaxResults,
		SearchMinScore:    cfg.SearchMinScore,
		CacheMaxEntries:   cfg.CacheMaxEntries,
		CacheTTLDays:      cfg.CacheTTLDays,
	}, logger)

	// Conversation indexer
	ix := indexer.New(db, eng, sessionStore, userConfigStore, logger)

	// Fact extraction and consolidation
	ext := extractor.New(chatClient, logger)
	cons := consolidator.New(db, eng, ext, embedder, factStore, sessionStore, jobStore, userConfigStore, consolidator.Config{
		MinFactConfidence:   cfg.MinFactConfidence,
		DedupThreshold:      cfg.FactDedupThreshold,
		MinImportanceForDoc: cfg.MinImportanceForDoc,
		MaxFactsPerCall:     cfg.MaxFactsPerCall,
	}, logger)

	// Maintenance scheduler
	sched := scheduler.New(cfg.SchedulerEnabled, logger)
	registerTasks(sched, cfg, db, eng, cons, userConfigStore, logger)
	sched.Start()
	defer sched.Stop()

	if err := ollamaEmbed.HealthCheck(); err != nil {
		logger.Warn("ollama not available at startup, will retry on first use", "error", err)
	}

	// Router
	router := api.NewRouter(db, fileStore, eng, ix, cons, sched, ollamaEmbed, cfg.APIKey, logger)

	// Server
	addr := fmt.Sprintf(":%d", cfg.Port)
	srv := &http.Server{
		Addr:         addr,
		Handler:      router,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 120 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	// Graceful shutdown
	done := make(chan os.Signal, 1)
	signal.Notify(done, os.Interrupt, syscall.SIGTERM)

	go func() {
		logger.Info("memory server starting", "addr", addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("server error", "error", err)
			os.Exit(1)
		}
	}()

	<-done
	logger.Info("shutting down...")

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		logger.Error("shutdown error", "error", err)
	}

	logger.Info("server stopped")
	return nil
}

// registerTasks wires the four maintenance jobs into the scheduler.
func registerTasks(
	sched *scheduler.Scheduler,
	cfg *config.Config,
	db *store.DB,
	eng *engine.Engine,
	cons *consolidator.Consolidator,
	userConfigs *store.UserConfigStore,
	logger *slog.Logger,
) {
	sched.Register(scheduler.TaskConsolidationSweep,
		time.Duration(cfg.ConsolidationIntervalHours)*time.Hour,
		func() error {
			users, err := userConfigs.UsersDueForConsolidation(db, time.Now().Unix())
			if err != nil {
				return err
			}
			var failed int
			for i, userID := range users {
				if i > 0 {
					time.Sleep(time.Second)
				}
				if _, err := cons.Consolidate(userID, consolidator.Options{RegenerateMemory: true}); err != nil {
					logger.Error("sweep consolidation failed", "user_id", userID, "error", err)
					failed++
				}
			}
			if failed > 0 {
				return fmt.Errorf("consolidation sweep: %d of %d users failed", failed, len(users))
			}
			return nil
		})

	sched.Register(scheduler.TaskCacheCleanup,
		time.Duration(cfg.CacheCleanupIntervalHours)*time.Hour,
		func() error {
			_, err := eng.CleanupCache(0)
			return err
		})

	sched.Register(scheduler.TaskImportanceRescore,
		time.Duration(cfg.RescoreIntervalHours)*time.Hour,
		func() error {
			users, err := cons.UsersWithFacts()
			if err != nil {
				return err
			}
			total := 0
			for _, userID := range users {
				n, err := cons.UpdateImportanceScores(userID)
				if err != nil {
					return fmt.Errorf("rescore user %s: %w", userID, err)
				}
				total += n
			}
			logger.Info("importance rescore complete", "users", len(users), "facts", total)
			return nil
		})

	sched.Register(scheduler.TaskExpiredFactPurge,
		time.Duration(cfg.PurgeIntervalHours)*time.Hour,
		func() error {
			n, err := cons.PurgeExpiredFacts()
			if err != nil {
				return err
			}
			if n > 0 {
				logger.Info("expired facts purged", "count", n)
			}
			return nil
		})
}
