// Package enricher fills an app's business vocabulary with model-generated
// synonyms for every master measure and dimension.
package enricher

import (
	"context"
	"errors"
	"fmt"
	"time"

	configpkg "github.com/minhyannv/vocab-enricher/pkg/config"
	"github.com/minhyannv/vocab-enricher/pkg/engine"
	loggerpkg "github.com/minhyannv/vocab-enricher/pkg/logger"
	"github.com/minhyannv/vocab-enricher/pkg/vocabulary"
)

// Catalog is the app-side view the enrichment loop works against.
type Catalog interface {
	ListItems(ctx context.Context) ([]vocabulary.Item, error)
	ItemProperties(ctx context.Context, item vocabulary.Item) (vocabulary.ItemProperties, error)
	GetOrCreateVocabulary(ctx context.Context, id, locale string) (vocabulary.Store, bool, error)
}

// SynonymSource produces the terms for one item.
type SynonymSource interface {
	Synonyms(ctx context.Context, props vocabulary.ItemProperties) ([]string, error)
}

// ItemFailure records an item that could not be enriched.
type ItemFailure struct {
	ItemID string
	Title  string
	Err    error
}

// Report summarizes one enrichment pass.
type Report struct {
	Items    int
	Enriched []string
	Failures []ItemFailure
	Writes   int
	Created  bool
}

// Failed reports whether at least one item could not be enriched.
func (r Report) Failed() bool {
	return len(r.Failures) > 0
}

// Enricher runs the enrichment loop.
type Enricher struct {
	catalog  Catalog
	source   SynonymSource
	cfg      configpkg.Config
	logger   loggerpkg.Logger
	verbose  bool
	timeout  time.Duration
	perItem  bool
	keepPrev bool
}

// NewEnricher builds an Enricher. cfg is normalized; a nil logger discards output.
func NewEnricher(catalog Catalog, source SynonymSource, cfg configpkg.Config, logger loggerpkg.Logger) *Enricher {
	cfg = configpkg.Normalize(cfg)
	if logger == nil {
		logger = loggerpkg.NopLogger{}
	}
	return &Enricher{
		catalog:  catalog,
		source:   source,
		cfg:      cfg,
		logger:   logger,
		verbose:  cfg.Verbose,
		timeout:  cfg.Timeout,
		perItem:  cfg.Persist != configpkg.PersistOnce,
		keepPrev: cfg.Merge == configpkg.MergeKeep,
	}
}

// Enrich lists the master items, locates or creates the vocabulary and adds
// one entry per item. Item errors are logged and recorded in the report.
// Errors outside the per-item boundary, a cancelled ctx and a lost engine
// connection are returned.
func (e *Enricher) Enrich(ctx context.Context) (Report, error) {
	var report Report

	items, err := e.listItems(ctx)
	if err != nil {
		return report, err
	}
	report.Items = len(items)
	e.logger.Info("master items listed", map[string]any{"count": len(items)})

	store, created, err := e.locate(ctx)
	if err != nil {
		return report, err
	}
	report.Created = created

	working, err := e.workingCopy(ctx, store, created)
	if err != nil {
		return report, err
	}

	for i, item := range items {
		if err := ctx.Err(); err != nil {
			return report, err
		}
		loggerpkg.Debug(e.verbose, e.logger, "processing item", map[string]any{
			"index": i + 1,
			"total": len(items),
			"id":    item.ID,
			"kind":  item.Kind,
		})

		next, title, err := e.enrichItem(ctx, store, working, item)
		if err != nil {
			if ctxErr := ctx.Err(); ctxErr != nil {
				return report, ctxErr
			}
			if connectionLost(err) {
				e.logger.Error("engine connection lost", map[string]any{"id": item.ID, "error": err.Error()})
				return report, fmt.Errorf("item %s: %w", item.ID, err)
			}
			e.logger.Error("item failed", map[string]any{"id": item.ID, "title": title, "error": err.Error()})
			report.Failures = append(report.Failures, ItemFailure{ItemID: item.ID, Title: title, Err: err})
			continue
		}
		working = next
		report.Enriched = append(report.Enriched, item.ID)
		if e.perItem {
			report.Writes++
		}
	}

	if !e.perItem && len(report.Enriched) > 0 {
		if err := e.save(ctx, store, working); err != nil {
			return report, err
		}
		report.Writes++
	}
	return report, nil
}

func connectionLost(err error) bool {
	return errors.Is(err, engine.ErrConnection) || errors.Is(err, engine.ErrClosed)
}

func (e *Enricher) listItems(ctx context.Context) ([]vocabulary.Item, error) {
	callCtx, cancel := context.WithTimeout(ctx, e.timeout)
	defer cancel()
	return e.catalog.ListItems(callCtx)
}

func (e *Enricher) locate(ctx context.Context) (vocabulary.Store, bool, error) {
	callCtx, cancel := context.WithTimeout(ctx, e.timeout)
	defer cancel()
	return e.catalog.GetOrCreateVocabulary(callCtx, e.cfg.VocabularyID, e.cfg.Locale)
}

// workingCopy returns the in-memory vocabulary the loop mutates. Under the
// replace policy prior entries are dropped; under merge they are kept and
// re-processed items overwrite their own entry.
func (e *Enricher) workingCopy(ctx context.Context, store vocabulary.Store, created bool) (vocabulary.Properties, error) {
	fresh := vocabulary.NewProperties(e.cfg.VocabularyID, e.cfg.Locale)
	if !e.keepPrev || created {
		return fresh, nil
	}

	callCtx, cancel := context.WithTimeout(ctx, e.timeout)
	defer cancel()
	current, err := store.Properties(callCtx)
	if err != nil {
		return vocabulary.Properties{}, fmt.Errorf("read vocabulary %s: %w", e.cfg.VocabularyID, err)
	}
	current = current.Clone()
	if current.Info.ID == "" {
		current.Info = fresh.Info
	}
	if current.MetaDef == nil {
		current.MetaDef = fresh.MetaDef
	}
	if len(current.Vocabularies) == 0 {
		current.Vocabularies = fresh.Vocabularies
	}
	loggerpkg.Debug(e.verbose, e.logger, "merging with existing vocabulary", map[string]any{
		"entries": len(current.Entries(e.cfg.Locale)),
	})
	return current, nil
}

// enrichItem returns the vocabulary with item's entry added. working is not
// modified, so a failed item never leaks into later writes.
func (e *Enricher) enrichItem(ctx context.Context, store vocabulary.Store, working vocabulary.Properties, item vocabulary.Item) (vocabulary.Properties, string, error) {
	propsCtx, cancel := context.WithTimeout(ctx, e.timeout)
	props, err := e.catalog.ItemProperties(propsCtx, item)
	cancel()
	if err != nil {
		return vocabulary.Properties{}, "", err
	}
	e.logger.Info("master item", map[string]any{"id": item.ID, "title": props.Title})

	modelCtx, cancel := context.WithTimeout(ctx, e.timeout)
	terms, err := e.source.Synonyms(modelCtx, props)
	cancel()
	if err != nil {
		return vocabulary.Properties{}, props.Title, fmt.Errorf("synonyms for %q: %w", props.Title, err)
	}
	if len(terms) == 0 {
		return vocabulary.Properties{}, props.Title, errors.New("model returned no terms")
	}

	entry := vocabulary.NewEntry(item, terms)
	next := working.Clone()
	next.Upsert(e.cfg.Locale, entry)
	e.logger.Info("entry created", entry)

	if e.perItem {
		if err := e.save(ctx, store, next); err != nil {
			return vocabulary.Properties{}, props.Title, err
		}
	}
	return next, props.Title, nil
}

func (e *Enricher) save(ctx context.Context, store vocabulary.Store, props vocabulary.Properties) error {
	callCtx, cancel := context.WithTimeout(ctx, e.timeout)
	defer cancel()
	if err := store.Save(callCtx, props); err != nil {
		return err
	}
	loggerpkg.Debug(e.verbose, e.logger, "vocabulary saved", map[string]any{
		"entries": len(props.Entries(e.cfg.Locale)),
	})
	return nil
}
