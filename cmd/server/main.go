package main

import (
	"log"
	"net/http"
	"os"
	"strings"
	"time"

	"search-digest/internal/api"
	"search-digest/internal/config"
	"search-digest/internal/fetch"
	"search-digest/internal/llm"
	"search-digest/internal/quota"
	"search-digest/internal/services"
	"search-digest/pkg/websearch"
)

func main() {
	cfg := config.Load()

	if missing := config.MissingRequired(); len(missing) > 0 {
		log.Fatalf("missing environment variables: %s", strings.Join(missing, ", "))
	}

	quotaManager := quota.NewManager(cfg.DailyQuotaLimit)
	chat := llm.New(cfg.LLMKey, cfg.LLMEndpoint)

	searcher := websearch.NewService(websearch.Config{
		APIKey:   cfg.SearchKey,
		EngineID: cfg.SearchEngineID,
		BaseURL:  cfg.SearchBaseURL,
	}, quotaManager)

	optimizer := services.NewOptimizer(chat, cfg.LLMModel)
	summarizer := services.NewSummarizer(chat, cfg.LLMFastModel)
	fetcher := fetch.NewFetcher()

	pipeline := services.NewPipeline(
		optimizer,
		searcher,
		fetcher,
		summarizer,
		quotaManager,
		cfg.NumPages,
		cfg.MaxResults,
	)

	server := api.NewServer(pipeline, quotaManager, api.Credentials{
		LLMKey:         cfg.LLMKey != "",
		SearchKey:      cfg.SearchKey != "",
		SearchEngineID: cfg.SearchEngineID != "",
	})

	port := os.Getenv("PORT")
	if port == "" {
		port = "8080"
	}
	log.Printf("listening on :%s", port)

	srv := &http.Server{
		Addr:         ":" + port,
		Handler:      server.Handler(),
		ReadTimeout:  15 * time.Second,
		// Pipeline runs are slow: several LLM calls plus courtesy delays.
		WriteTimeout: 5 * time.Minute,
	}

	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		log.Fatalf("server failed: %v", err)
	}
}
