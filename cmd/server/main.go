package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/hanlog/hanlog/internal/api"
	"github.com/hanlog/hanlog/internal/cache"
	"github.com/hanlog/hanlog/internal/config"
	"github.com/hanlog/hanlog/internal/core"
	"github.com/hanlog/hanlog/internal/store"
)

func main() {
	// Load configuration
	cfg := config.Load()

	// Setup logging
	log.SetFlags(log.LstdFlags | log.Lshortfile)
	if cfg.LogLevel == "DEBUG" {
		log.Println("Service starting in DEBUG mode")
	}

	// Command line flag for bulk re-embedding
	bulkEmbedFlag := flag.Bool("bulk-embed", false, "Re-embed every post and exit")
	flag.Parse()

	// Initialize database store
	dbStore, err := store.NewSQLiteStore(cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("Failed to initialize database: %v", err)
	}
	defer dbStore.Close()

	// Initialize LLM service
	llmService := core.NewLLMService(cfg)
	defer llmService.Close()

	// Optional redis cache for related-post lists
	var relatedCache *cache.RelatedPostsCache
	if cfg.RedisAddr != "" {
		redisClient := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
		relatedCache = cache.NewRelatedPostsCache(redisClient, cfg.RelatedCacheTTL)
		if err := relatedCache.Ping(context.Background()); err != nil {
			log.Printf("Redis at %s unreachable (%v); continuing without related-posts cache", cfg.RedisAddr, err)
			relatedCache = nil
		}
	}

	// Initialize embedding pipeline
	embeddingService := core.NewEmbeddingService(dbStore, llmService, relatedCache)

	// Handle bulk re-embedding if flag is set
	if *bulkEmbedFlag {
		log.Println("Starting bulk embedding run...")
		result, err := embeddingService.BulkIndexPosts(context.Background())
		if err != nil {
			log.Fatalf("Bulk embedding failed: %v", err)
		}
		for _, item := range result.Results {
			if !item.Success {
				log.Printf("Post %d: %s", item.PostID, item.Error)
			}
		}
		log.Printf("Bulk embedding complete: %d/%d succeeded, %d failed. Exiting.", result.Succeeded, result.Total, result.Failed)
		os.Exit(0)
	}

	// Initialize similarity search and post services
	similarityService := core.NewSimilarityService(dbStore, relatedCache)
	postService := core.NewPostService(dbStore, embeddingService)

	// Initialize API Handler and Router
	apiHandler := api.NewAPIHandler(cfg, postService, embeddingService, similarityService, llmService)
	router := api.NewRouter(apiHandler)

	// Start HTTP server
	serverAddr := fmt.Sprintf(":%s", cfg.HTTPPort)

	srv := &http.Server{
		Addr:         serverAddr,
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 120 * time.Second, // Bulk embedding runs inside a request
		IdleTimeout:  120 * time.Second,
	}

	// Graceful shutdown handling
	go func() {
		log.Printf("Starting server on %s. Press Ctrl+C to quit.", serverAddr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Could not listen on %s: %v\n", serverAddr, err)
		}
	}()

	// Wait for interrupt signal to gracefully shutdown the server
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Println("Shutting down server...")

	// Give active connections time to finish.
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		log.Fatalf("Server forced to shutdown: %v", err)
	}

	log.Println("Server exiting gracefully")
}
