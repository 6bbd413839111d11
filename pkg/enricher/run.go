package enricher

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	configpkg "github.com/minhyannv/vocab-enricher/pkg/config"
	"github.com/minhyannv/vocab-enricher/pkg/document"
	"github.com/minhyannv/vocab-enricher/pkg/engine"
	loggerpkg "github.com/minhyannv/vocab-enricher/pkg/logger"
	"github.com/minhyannv/vocab-enricher/pkg/synonyms"
)

// Run performs one complete enrichment: it validates cfg, connects to the
// engine, opens the app, enriches the vocabulary and closes the session. The
// session is closed on every path after a successful dial.
func Run(ctx context.Context, cfg configpkg.Config, opts ...Option) (Report, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	cfg = configpkg.Normalize(cfg)
	deps := runDeps{logger: cfg.Logger}
	for _, opt := range opts {
		if opt != nil {
			opt(&deps)
		}
	}
	if deps.logger == nil {
		deps.logger = loggerpkg.NopLogger{}
	}
	if deps.runID == "" {
		deps.runID = uuid.NewString()
	}
	logger := loggerpkg.With(deps.logger, map[string]any{"run_id": deps.runID})

	if err := configpkg.Validate(cfg); err != nil {
		return Report{}, err
	}
	loggerpkg.Debug(cfg.Verbose, logger, "run init", map[string]any{
		"endpoint":      configpkg.EngineEndpoint(cfg),
		"model":         cfg.Model,
		"vocabulary_id": cfg.VocabularyID,
		"locale":        cfg.Locale,
		"persist":       cfg.Persist,
		"merge":         cfg.Merge,
		"prompt_file":   cfg.PromptFile,
	})

	tmpl, err := synonyms.LoadTemplate(cfg.PromptFile)
	if err != nil {
		return Report{}, err
	}
	completer := deps.completer
	if completer == nil {
		completer = synonyms.NewOpenAICompleter(cfg.OpenAIAPIKey, cfg.OpenAIBaseURL, cfg.Model)
	}

	dialCtx, cancel := context.WithTimeout(ctx, cfg.Timeout)
	sess, err := engine.Dial(dialCtx, engine.Options{
		URL:              configpkg.EngineEndpoint(cfg),
		APIKey:           cfg.EngineAPIKey,
		SchemaVersion:    cfg.SchemaVersion,
		HandshakeTimeout: cfg.Timeout,
		Dialer:           deps.dialer,
		Logger:           logger,
		Verbose:          cfg.Verbose,
	})
	cancel()
	if err != nil {
		return Report{}, fmt.Errorf("connect to engine: %w", err)
	}
	defer func() {
		if err := sess.Close(); err != nil {
			logger.Warn("close engine session", map[string]any{"error": err.Error()})
		}
	}()

	openCtx, cancel := context.WithTimeout(ctx, cfg.Timeout)
	defer cancel()
	global, err := sess.Open(openCtx)
	if err != nil {
		return Report{}, fmt.Errorf("open engine session: %w", err)
	}
	doc, err := global.OpenDoc(openCtx, cfg.AppID)
	if err != nil {
		return Report{}, fmt.Errorf("open app %s: %w", cfg.AppID, err)
	}
	logger.Info("app opened", map[string]any{"app_id": cfg.AppID})

	app := document.New(doc, logger)
	generator := synonyms.NewGenerator(completer, tmpl, logger, cfg.Verbose)
	report, err := NewEnricher(app, generator, cfg, logger).Enrich(ctx)
	logger.Info("run finished", map[string]any{
		"items":    report.Items,
		"enriched": len(report.Enriched),
		"failed":   len(report.Failures),
		"writes":   report.Writes,
		"created":  report.Created,
	})
	return report, err
}
