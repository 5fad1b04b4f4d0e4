package main

import (
	"context"
	"fmt"
	"net/http"

	"github.com/PabloGalante/chicha/internal/adapters/functions"
	"github.com/PabloGalante/chicha/internal/adapters/llm"
	"github.com/PabloGalante/chicha/internal/adapters/objectstore"
	firestorestore "github.com/PabloGalante/chicha/internal/adapters/storage/firestore"
	memstore "github.com/PabloGalante/chicha/internal/adapters/storage/memory"
	redisstore "github.com/PabloGalante/chicha/internal/adapters/storage/redis"
	sqlitestore "github.com/PabloGalante/chicha/internal/adapters/storage/sqlite"
	"github.com/PabloGalante/chicha/internal/app/conversation"
	"github.com/PabloGalante/chicha/internal/app/translation"
	"github.com/PabloGalante/chicha/internal/config"
	"github.com/PabloGalante/chicha/internal/domain"
	"github.com/PabloGalante/chicha/internal/observability"
)

// app is everything a command needs, built from the config.
type app struct {
	conversations *conversation.Service
	translations  *translation.Service
	composers     *conversation.Composers

	// objects is set when uploads live in memory and must be served by us.
	objects *objectstore.Memory

	closers []func() error
}

func (a *app) Close() {
	if a.conversations != nil {
		a.conversations.Shutdown()
	}
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			observability.Logger().Warn("close failed", "error", err)
		}
	}
}

func buildApp(ctx context.Context, cfg *config.Config) (*app, error) {
	log := observability.Logger()
	a := &app{}

	// Storage: one store implements both interfaces, except in memory.
	var (
		sessionStore domain.SessionStore
		messageStore domain.MessageStore
	)
	switch cfg.StorageBackend {
	case "firestore":
		log.Info("using firestore storage", "project", cfg.GCPProjectID)
		st, err := firestorestore.NewStore(ctx, cfg.GCPProjectID)
		if err != nil {
			return nil, fmt.Errorf("initializing firestore store: %w", err)
		}
		sessionStore, messageStore = st, st
		a.closers = append(a.closers, st.Close)
	case "sqlite":
		log.Info("using sqlite storage", "path", cfg.SQLitePath)
		st, err := sqlitestore.Open(cfg.SQLitePath)
		if err != nil {
			return nil, fmt.Errorf("initializing sqlite store: %w", err)
		}
		sessionStore, messageStore = st, st
		a.closers = append(a.closers, st.Close)
	case "redis":
		log.Info("using redis storage", "ttl", cfg.RedisTTL)
		st, err := redisstore.NewStore(ctx, cfg.RedisURL, cfg.RedisTTL)
		if err != nil {
			return nil, fmt.Errorf("initializing redis store: %w", err)
		}
		sessionStore, messageStore = st, st
		a.closers = append(a.closers, st.Close)
	default:
		log.Info("using in-memory storage")
		sessionStore = memstore.NewSessionStore()
		messageStore = memstore.NewMessageStore()
	}

	// Object storage for attachments.
	var storage domain.ObjectStorage
	switch cfg.ObjectStorage {
	case "gcs":
		log.Info("using gcs object storage", "bucket", cfg.Bucket)
		gcs, err := objectstore.NewGCS(ctx, cfg.Bucket)
		if err != nil {
			a.Close()
			return nil, fmt.Errorf("initializing gcs: %w", err)
		}
		storage = gcs
		a.closers = append(a.closers, gcs.Close)
	default:
		a.objects = objectstore.NewMemory(cfg.PublicURL + "/objects")
		storage = a.objects
	}

	// Serverless functions back search, weather, translation and image
	// generation, and optionally the chat itself.
	var (
		search     domain.WebSearcher
		weather    domain.WeatherClient
		translator domain.Translator
		images     domain.ImageGenerator
		fnClient   *functions.Client
	)
	if cfg.FunctionsURL != "" {
		opts := []functions.Option{
			functions.WithHTTPClient(&http.Client{Timeout: cfg.FunctionsTimeout}),
		}
		if cfg.FunctionsRateLimit > 0 {
			opts = append(opts, functions.WithRateLimit(cfg.FunctionsRateLimit, 1))
		}
		fnClient = functions.NewClient(cfg.FunctionsURL, cfg.FunctionsKey, opts...)
		search = functions.NewSearcher(fnClient)
		weather = functions.NewWeather(fnClient)
		translator = functions.NewTranslator(fnClient)
		images = functions.NewImageGenerator(fnClient)
	} else {
		log.Warn("CHICHA_FUNCTIONS_URL not set; search, weather, translation and image generation are disabled")
	}

	var llmClient domain.LLMClient
	switch cfg.LLMBackend {
	case "gemini":
		log.Info("using gemini llm", "model", cfg.ModelName)
		g, err := llm.NewGeminiClient(ctx, llm.GeminiConfig{
			APIKey:   cfg.GeminiAPIKey,
			Project:  cfg.GCPProjectID,
			Location: cfg.GCPLocation,
			Model:    cfg.ModelName,
		})
		if err != nil {
			a.Close()
			return nil, fmt.Errorf("initializing gemini client: %w", err)
		}
		llmClient = g
	case "function":
		log.Info("using chat function llm")
		llmClient = functions.NewChatLLM(fnClient)
	default:
		log.Info("using mock llm")
		llmClient = llm.NewMockLLM()
	}

	a.composers = conversation.NewComposers(sessionStore, messageStore, conversation.Services{
		LLM:          llmClient,
		Search:       search,
		Weather:      weather,
		Images:       images,
		Storage:      storage,
		HistoryLimit: cfg.HistoryLimit,
	})
	a.conversations = conversation.NewService(sessionStore, messageStore, a.composers)
	a.translations = translation.NewService(messageStore, translator, func(id domain.SessionID) domain.Notifier {
		return a.composers.Get(id).Inbox
	})

	return a, nil
}
