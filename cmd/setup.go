package cmd

import (
	"context"
	"fmt"
	"time"

	"github.com/firebase/genkit/go/ai"
	"github.com/firebase/genkit/go/genkit"
	"github.com/firebase/genkit/go/plugins/googlegenai"

	"github.com/calagem/calagem/internal/chatbot"
	"github.com/calagem/calagem/internal/classify"
	"github.com/calagem/calagem/internal/config"
	"github.com/calagem/calagem/internal/docstore"
	"github.com/calagem/calagem/internal/extract"
	"github.com/calagem/calagem/internal/grade"
	"github.com/calagem/calagem/internal/log"
	"github.com/calagem/calagem/internal/retrieve"
	"github.com/calagem/calagem/internal/session"
)

// app bundles the wired components commands pick from.
type app struct {
	Config   *config.Config
	Genkit   *genkit.Genkit
	Embedder ai.Embedder
	Calamity *docstore.Store
	Gem      *docstore.Store
	Sessions *session.Store
	Engine   *chatbot.Engine
}

// setup loads configuration and wires the full pipeline. Commands that
// only ingest pass wantEngine=false to skip the conversation components.
func setup(ctx context.Context, logger log.Logger, wantEngine bool) (*app, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("loading config: %w", err)
	}
	if err := cfg.RequireAPIKey(); err != nil {
		return nil, err
	}

	g := genkit.Init(ctx, genkit.WithPlugins(&googlegenai.GoogleAI{}))
	embedder := googlegenai.GoogleAIEmbedder(g, cfg.EmbedderModel)

	calamityStore, err := docstore.Open(cfg.CalamityIndexPath, "calamity", embedder, logger)
	if err != nil {
		return nil, fmt.Errorf("opening calamity index: %w", err)
	}
	gemStore, err := docstore.Open(cfg.GemIndexPath, "gem", embedder, logger)
	if err != nil {
		return nil, fmt.Errorf("opening gem index: %w", err)
	}

	a := &app{
		Config:   cfg,
		Genkit:   g,
		Embedder: embedder,
		Calamity: calamityStore,
		Gem:      gemStore,
		Sessions: session.NewStore(),
	}
	if !wantEngine {
		return a, nil
	}

	model := cfg.FullModelName()
	engine, err := chatbot.New(chatbot.Config{
		Classifier:   classify.New(embedder, logger),
		Calamity:     retrieve.New(calamityStore, nil, logger),
		Gem:          retrieve.New(gemStore, cfg.GemDocumentIDs, logger),
		Extractor:    extract.New(logger),
		Grader:       grade.New(grade.NewLLMJudge(g, model), logger),
		Reformulator: chatbot.NewLLMReformulator(g, model),
		Answerers: map[classify.Label]chatbot.Answerer{
			classify.LabelCalamity: chatbot.NewCalamityAnswerer(g, model),
			classify.LabelGem:      chatbot.NewGemAnswerer(g, model),
			classify.LabelGeneral:  chatbot.NewGeneralAnswerer(g, model),
		},
		Sessions:    a.Sessions,
		Logger:      logger,
		ResponseTTL: time.Duration(cfg.ResponseCacheTTL) * time.Second,
		ChunkTTL:    time.Duration(cfg.ChunkCacheTTL) * time.Second,
	})
	if err != nil {
		return nil, fmt.Errorf("creating engine: %w", err)
	}
	a.Engine = engine
	return a, nil
}
