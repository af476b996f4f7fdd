package main

import (
	"context"
	"fmt"
	"io"
	"log"
	"os"
	"path/filepath"

	"github.com/rahul/plantdoc/internal/agent"
	"github.com/rahul/plantdoc/internal/gateway"
	"github.com/rahul/plantdoc/internal/governance"
	"github.com/rahul/plantdoc/internal/observability"
	"github.com/rahul/plantdoc/internal/store"
	"github.com/rahul/plantdoc/internal/tools"
	"github.com/rahul/plantdoc/pkg/config"
	"github.com/tmc/langchaingo/embeddings"
	"github.com/tmc/langchaingo/llms"
	"github.com/tmc/langchaingo/llms/openai"
	"github.com/tmc/langchaingo/vectorstores/chroma"
)

// app holds everything one plantdoc process shares between runs.
type app struct {
	cfg      *config.Config
	llm      llms.Model
	registry *tools.Registry
	store    *store.Store
	index    *tools.KeywordIndex
	logger   *observability.Logger
	policy   governance.PolicyEngine
	prompts  *agent.PromptManager

	closers []io.Closer
}

func newApp(cfg *config.Config) (*app, error) {
	a := &app{
		cfg:      cfg,
		registry: tools.NewRegistry(),
		prompts:  agent.NewPromptManager(cfg.App.Prompts),
	}

	events := io.Discard
	if cfg.App.LogDir != "" {
		if err := os.MkdirAll(cfg.App.LogDir, 0755); err != nil {
			return nil, fmt.Errorf("failed to create log directory: %w", err)
		}
		f, err := os.OpenFile(filepath.Join(cfg.App.LogDir, "events.jsonl"), os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
		if err != nil {
			return nil, fmt.Errorf("failed to open event log: %w", err)
		}
		a.closers = append(a.closers, f)
		events = f
	}
	a.logger = observability.NewLogger(events, cfg.App.LogDir)

	// Journal and index commands work without a model; runs report a
	// PlanningError instead.
	if llm, err := newModel(cfg); err != nil {
		log.Printf("Warning: %v", err)
	} else {
		a.llm = llm
	}

	policy := governance.NewStepPolicy(cfg.Policy.DisabledKinds...)
	for _, r := range cfg.Policy.Rules {
		if err := policy.Deny(r.Kind, r.Pattern, r.Reason); err != nil {
			a.Close()
			return nil, err
		}
	}
	a.policy = policy

	if err := os.MkdirAll(filepath.Dir(cfg.Memory.Path), 0755); err != nil {
		a.Close()
		return nil, fmt.Errorf("failed to create data directory: %w", err)
	}
	st, err := store.Open(cfg.Memory.Path)
	if err != nil {
		a.Close()
		return nil, fmt.Errorf("failed to open run journal: %w", err)
	}
	a.store = st
	a.closers = append(a.closers, st)

	if err := a.registerTools(); err != nil {
		a.Close()
		return nil, err
	}
	return a, nil
}

// newModel builds the chat model from the first enabled provider.
func newModel(cfg *config.Config) (*openai.LLM, error) {
	pName, pCfg := cfg.GetDefaultProvider()
	if pName == "" {
		return nil, fmt.Errorf("no enabled provider found in config (set OPENAI_API_KEY, GROQ_API_KEY or OPENROUTER_API_KEY)")
	}

	switch pName {
	case "openai", "openrouter", "groq":
		opts := []openai.Option{
			openai.WithToken(pCfg.APIKey),
			openai.WithModel(pCfg.Model),
		}
		if pCfg.BaseURL != "" {
			opts = append(opts, openai.WithBaseURL(pCfg.BaseURL))
		}
		if pCfg.EmbeddingModel != "" {
			opts = append(opts, openai.WithEmbeddingModel(pCfg.EmbeddingModel))
		}
		return openai.New(opts...)
	default:
		return nil, fmt.Errorf("provider %s not yet implemented", pName)
	}
}

func (a *app) registerTools() error {
	var explainer llms.Model
	if a.cfg.SCADA.Explain && a.llm != nil {
		explainer = a.llm
	}
	if err := os.MkdirAll(filepath.Dir(a.cfg.SCADA.DBPath), 0755); err != nil {
		return fmt.Errorf("failed to create scada directory: %w", err)
	}
	scada, err := tools.NewSCADATool(a.cfg.SCADA.DBPath, explainer)
	if err != nil {
		return fmt.Errorf("failed to open scada database: %w", err)
	}
	a.closers = append(a.closers, scada)
	a.registry.Register(scada)

	backend, err := a.manualBackend()
	if err != nil {
		return err
	}
	a.registry.Register(tools.NewManualTool(backend, a.cfg.Manual.TopK))
	return nil
}

func (a *app) manualBackend() (tools.Searcher, error) {
	if a.cfg.Manual.Backend == "vector" {
		client, ok := a.llm.(embeddings.EmbedderClient)
		if a.llm == nil || !ok {
			return nil, fmt.Errorf("the configured model cannot create embeddings")
		}
		embedder, err := embeddings.NewEmbedder(client)
		if err != nil {
			return nil, fmt.Errorf("failed to create embedder: %w", err)
		}
		vs, err := chroma.New(
			chroma.WithChromaURL(a.cfg.Manual.ChromaURL),
			chroma.WithEmbedder(embedder),
			chroma.WithNameSpace(a.cfg.Manual.Collection),
		)
		if err != nil {
			return nil, fmt.Errorf("failed to connect to chroma: %w", err)
		}
		log.Printf("[Manual] using chroma collection %s at %s", a.cfg.Manual.Collection, a.cfg.Manual.ChromaURL)
		return tools.VectorSearcher{Store: vs}, nil
	}

	idx, err := a.keywordIndex()
	if err != nil {
		return nil, err
	}
	if n, _ := idx.Count(); n == 0 && a.cfg.Manual.Dir != "" {
		if _, statErr := os.Stat(a.cfg.Manual.Dir); statErr == nil {
			indexed, err := idx.IndexDir(a.cfg.Manual.Dir)
			if err != nil {
				return nil, fmt.Errorf("failed to index manuals: %w", err)
			}
			log.Printf("[Manual] indexed %d passages from %s", indexed, a.cfg.Manual.Dir)
		}
	}
	return idx, nil
}

// keywordIndex opens the Bleve manual index once per process.
func (a *app) keywordIndex() (*tools.KeywordIndex, error) {
	if a.index != nil {
		return a.index, nil
	}
	idx, err := tools.OpenKeywordIndex(a.cfg.Manual.IndexPath)
	if err != nil {
		return nil, err
	}
	a.index = idx
	a.closers = append(a.closers, idx)
	return idx, nil
}

// orchestrator wires the agents around gate.
func (a *app) orchestrator(gate agent.Gate) *agent.Orchestrator {
	oc := a.cfg.Orchestrator
	llm := agent.Completer{Model: a.llm, Timeout: oc.LLMTimeout, Logger: a.logger}

	planner := agent.NewPlanner(llm, a.registry, a.prompts)
	if oc.MaxPlanSteps > 0 {
		planner.MaxSteps = oc.MaxPlanSteps
	}

	var corrector agent.Corrector = agent.FallbackCorrector{MaxCorrections: oc.MaxCorrections}
	if oc.Corrector == "llm" {
		corrector = agent.NewLLMCorrector(llm, a.prompts, oc.MaxCorrections)
	}

	return &agent.Orchestrator{
		Planner:       planner,
		Executor:      agent.NewExecutor(a.registry, a.policy, a.logger, oc.ToolTimeout),
		Replanner:     agent.NewReplanner(oc.MaxIterations, corrector, a.logger),
		Gate:          gate,
		Synthesizer:   agent.NewSynthesizer(llm, a.prompts),
		Journal:       a.store,
		Logger:        a.logger,
		MaxIterations: oc.MaxIterations,
	}
}

// messenger opens the remote operator channel for a telegram or discord mode.
func (a *app) messenger(mode string) (gateway.Messenger, error) {
	switch mode {
	case "telegram":
		g, ok := a.cfg.GetGatewayConfig("telegram")
		if !ok {
			return nil, fmt.Errorf("telegram gateway is not enabled or token is missing")
		}
		return gateway.NewTelegramMessenger(g.Token, g.ChatID)
	case "discord":
		g, ok := a.cfg.GetGatewayConfig("discord")
		if !ok {
			return nil, fmt.Errorf("discord gateway is not enabled or token is missing")
		}
		return gateway.NewDiscordMessenger(g.Token, g.ChannelID)
	}
	return nil, fmt.Errorf("gate mode %q has no remote messenger", mode)
}

// gate picks the review gate for an interactive command. The console gate
// is only used when stdin is a terminal.
func (a *app) gate(mode string) (agent.Gate, func(), error) {
	switch mode {
	case "auto":
		return agent.AutoGate{MaxIterations: a.cfg.Orchestrator.MaxIterations}, func() {}, nil
	case "console":
		if !observability.IsInteractive(os.Stdin) {
			log.Printf("[Gate] stdin is not a terminal, running unattended")
			return agent.AutoGate{MaxIterations: a.cfg.Orchestrator.MaxIterations}, func() {}, nil
		}
		return gateway.NewChatGate(gateway.NewConsoleMessenger(os.Stdin, os.Stdout), a.cfg.Gate.Timeout), func() {}, nil
	}
	m, err := a.messenger(mode)
	if err != nil {
		return nil, nil, err
	}
	return gateway.NewChatGate(m, a.cfg.Gate.Timeout), func() { m.Close() }, nil
}

func (a *app) Close() error {
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i].Close(); err != nil {
			log.Printf("close failed: %v", err)
		}
	}
	a.closers = nil
	return nil
}

// runOnce executes one query and prints the report.
func (a *app) runOnce(ctx context.Context, orch *agent.Orchestrator, query string, out io.Writer) error {
	rep := orch.Run(ctx, query)
	fmt.Fprintln(out, rep.Render())
	return rep.Err()
}
