// Package document exposes the app operations the enrichment run needs on top
// of an engine Doc.
package document

import (
	"context"
	"fmt"

	"github.com/minhyannv/vocab-enricher/pkg/engine"
	loggerpkg "github.com/minhyannv/vocab-enricher/pkg/logger"
	"github.com/minhyannv/vocab-enricher/pkg/vocabulary"
)

// App wraps an opened engine document.
type App struct {
	doc    *engine.Doc
	logger loggerpkg.Logger
}

// New wraps doc. A nil logger discards output.
func New(doc *engine.Doc, logger loggerpkg.Logger) *App {
	if logger == nil {
		logger = loggerpkg.NopLogger{}
	}
	return &App{doc: doc, logger: logger}
}

// ListItems returns the master measures and dimensions in inventory order.
func (a *App) ListItems(ctx context.Context) ([]vocabulary.Item, error) {
	infos, err := a.doc.GetAllInfos(ctx)
	if err != nil {
		return nil, fmt.Errorf("list objects: %w", err)
	}
	return filterItems(infos), nil
}

func filterItems(infos []engine.ObjectInfo) []vocabulary.Item {
	items := make([]vocabulary.Item, 0, len(infos))
	for _, info := range infos {
		kind := vocabulary.KindOf(info.Type)
		if kind == vocabulary.KindOther {
			continue
		}
		items = append(items, vocabulary.Item{ID: info.ID, Kind: kind})
	}
	return items
}

type masterItemProps struct {
	MetaDef struct {
		Title       string `json:"title"`
		Description string `json:"description"`
	} `json:"qMetaDef"`
}

// ItemProperties fetches the title and description of a measure or dimension.
func (a *App) ItemProperties(ctx context.Context, item vocabulary.Item) (vocabulary.ItemProperties, error) {
	var (
		obj *engine.Object
		err error
	)
	switch item.Kind {
	case vocabulary.KindMeasure:
		obj, err = a.doc.GetMeasure(ctx, item.ID)
	case vocabulary.KindDimension:
		obj, err = a.doc.GetDimension(ctx, item.ID)
	default:
		return vocabulary.ItemProperties{}, fmt.Errorf("item %s: unsupported kind %q", item.ID, item.Kind)
	}
	if err != nil {
		return vocabulary.ItemProperties{}, fmt.Errorf("get %s %s: %w", item.Kind, item.ID, err)
	}

	var props masterItemProps
	if err := obj.GetProperties(ctx, &props); err != nil {
		return vocabulary.ItemProperties{}, fmt.Errorf("get properties of %s: %w", item.ID, err)
	}
	return vocabulary.ItemProperties{
		Title:       props.MetaDef.Title,
		Description: props.MetaDef.Description,
	}, nil
}

// GetOrCreateVocabulary returns the vocabulary object with id, creating it
// with the empty shape when the app does not list it. The bool reports
// whether the object was created.
func (a *App) GetOrCreateVocabulary(ctx context.Context, id, locale string) (vocabulary.Store, bool, error) {
	infos, err := a.doc.GetAllInfos(ctx)
	if err != nil {
		return nil, false, fmt.Errorf("list objects: %w", err)
	}
	for _, info := range infos {
		if info.ID != id {
			continue
		}
		obj, err := a.doc.GetObject(ctx, id)
		if err != nil {
			return nil, false, fmt.Errorf("get vocabulary %s: %w", id, err)
		}
		a.logger.Info("vocabulary found", map[string]any{"id": id})
		return &store{obj: obj}, false, nil
	}

	obj, err := a.doc.CreateObject(ctx, vocabulary.NewProperties(id, locale))
	if err != nil {
		return nil, false, fmt.Errorf("create vocabulary %s: %w", id, err)
	}
	a.logger.Info("vocabulary created", map[string]any{"id": id, "locale": locale})
	return &store{obj: obj}, true, nil
}

// store implements vocabulary.Store on a generic object.
type store struct {
	obj *engine.Object
}

func (s *store) Properties(ctx context.Context) (vocabulary.Properties, error) {
	var props vocabulary.Properties
	if err := s.obj.GetProperties(ctx, &props); err != nil {
		return vocabulary.Properties{}, err
	}
	return props, nil
}

func (s *store) Save(ctx context.Context, props vocabulary.Properties) error {
	if err := s.obj.SetProperties(ctx, props); err != nil {
		return fmt.Errorf("save vocabulary %s: %w", s.obj.ID, err)
	}
	return nil
}
