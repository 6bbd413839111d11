package enricher

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	configpkg "github.com/minhyannv/vocab-enricher/pkg/config"
	"github.com/minhyannv/vocab-enricher/pkg/engine"
	"github.com/minhyannv/vocab-enricher/pkg/synonyms"
	"github.com/minhyannv/vocab-enricher/pkg/vocabulary"
)

type fakeStore struct {
	current vocabulary.Properties
	saves   []vocabulary.Properties
	failOn  int // 1-based save number that fails; 0 never
}

func (s *fakeStore) Properties(context.Context) (vocabulary.Properties, error) {
	return s.current.Clone(), nil
}

func (s *fakeStore) Save(_ context.Context, props vocabulary.Properties) error {
	if s.failOn > 0 && len(s.saves)+1 == s.failOn {
		s.failOn = 0
		return errors.New("engine rejected write")
	}
	s.saves = append(s.saves, props.Clone())
	s.current = props.Clone()
	return nil
}

type fakeCatalog struct {
	items      []vocabulary.Item
	props      map[string]vocabulary.ItemProperties
	propsErr   error
	store      *fakeStore
	exists     bool
	propsCalls map[string]int
	creates    int
}

func newFakeCatalog(items ...vocabulary.Item) *fakeCatalog {
	return &fakeCatalog{
		items:      items,
		props:      map[string]vocabulary.ItemProperties{},
		store:      &fakeStore{},
		propsCalls: map[string]int{},
	}
}

func (c *fakeCatalog) ListItems(context.Context) ([]vocabulary.Item, error) {
	return c.items, nil
}

func (c *fakeCatalog) ItemProperties(_ context.Context, item vocabulary.Item) (vocabulary.ItemProperties, error) {
	c.propsCalls[item.ID]++
	if c.propsErr != nil {
		return vocabulary.ItemProperties{}, c.propsErr
	}
	props, ok := c.props[item.ID]
	if !ok {
		return vocabulary.ItemProperties{}, errors.New("no properties")
	}
	return props, nil
}

func (c *fakeCatalog) GetOrCreateVocabulary(_ context.Context, id, locale string) (vocabulary.Store, bool, error) {
	if c.exists {
		return c.store, false, nil
	}
	c.creates++
	c.exists = true
	c.store.current = vocabulary.NewProperties(id, locale)
	return c.store, true, nil
}

// replySource answers per title; unknown titles get a malformed reply.
type replySource struct {
	replies map[string]string
	calls   map[string]int
}

func (s *replySource) Synonyms(_ context.Context, props vocabulary.ItemProperties) ([]string, error) {
	if s.calls == nil {
		s.calls = map[string]int{}
	}
	s.calls[props.Title]++
	reply, ok := s.replies[props.Title]
	if !ok {
		reply = "Sure! Here are some synonyms."
	}
	return synonyms.ParseTerms(reply)
}

func testConfig() configpkg.Config {
	return configpkg.Normalize(configpkg.DefaultConfig())
}

func TestEnrichEndToEndScenario(t *testing.T) {
	item := vocabulary.Item{ID: "m1", Kind: vocabulary.KindMeasure}
	catalog := newFakeCatalog(item)
	catalog.props["m1"] = vocabulary.ItemProperties{Title: "Total #Orders", Description: "count of completed orders"}
	source := &replySource{replies: map[string]string{
		"Total #Orders": `["Total Orders","Order Count","# Orders","Orders Total","Completed Orders","Total #Orders"]`,
	}}

	report, err := NewEnricher(catalog, source, testConfig(), nil).Enrich(context.Background())
	require.NoError(t, err)

	assert.True(t, report.Created)
	assert.Equal(t, []string{"m1"}, report.Enriched)
	assert.Equal(t, 1, report.Writes)
	require.Len(t, catalog.store.saves, 1)
	assert.Equal(t, []vocabulary.Entry{{
		ID:        "m1",
		Terms:     []string{"Total Orders", "Order Count", "# Orders", "Orders Total", "Completed Orders", "Total #Orders"},
		AppliedTo: []vocabulary.AppliedTo{{LibItemRef: "m1"}},
	}}, catalog.store.saves[0].Entries("en"))
}

func TestEnrichCallsOncePerItem(t *testing.T) {
	catalog := newFakeCatalog(
		vocabulary.Item{ID: "m1", Kind: vocabulary.KindMeasure},
		vocabulary.Item{ID: "d1", Kind: vocabulary.KindDimension},
	)
	catalog.props["m1"] = vocabulary.ItemProperties{Title: "Revenue"}
	catalog.props["d1"] = vocabulary.ItemProperties{Title: "Region"}
	source := &replySource{replies: map[string]string{
		"Revenue": `["Revenue","Sales"]`,
		"Region":  `["Region","Area"]`,
	}}

	report, err := NewEnricher(catalog, source, testConfig(), nil).Enrich(context.Background())
	require.NoError(t, err)

	assert.Equal(t, map[string]int{"m1": 1, "d1": 1}, catalog.propsCalls)
	assert.Equal(t, map[string]int{"Revenue": 1, "Region": 1}, source.calls)
	assert.Equal(t, 2, report.Writes)
	require.Len(t, catalog.store.saves, 2)
	assert.Len(t, catalog.store.saves[0].Entries("en"), 1)
	assert.Len(t, catalog.store.saves[1].Entries("en"), 2)
}

func TestEnrichContainsMalformedResponse(t *testing.T) {
	catalog := newFakeCatalog(
		vocabulary.Item{ID: "m1", Kind: vocabulary.KindMeasure},
		vocabulary.Item{ID: "m2", Kind: vocabulary.KindMeasure},
		vocabulary.Item{ID: "m3", Kind: vocabulary.KindMeasure},
	)
	catalog.props["m1"] = vocabulary.ItemProperties{Title: "Revenue"}
	catalog.props["m2"] = vocabulary.ItemProperties{Title: "Chatty"}
	catalog.props["m3"] = vocabulary.ItemProperties{Title: "Margin"}
	source := &replySource{replies: map[string]string{
		"Revenue": `["Revenue","Sales"]`,
		"Margin":  `["Margin","Profit"]`,
	}}

	report, err := NewEnricher(catalog, source, testConfig(), nil).Enrich(context.Background())
	require.NoError(t, err)

	require.Len(t, report.Failures, 1)
	assert.Equal(t, "m2", report.Failures[0].ItemID)
	assert.True(t, errors.Is(report.Failures[0].Err, synonyms.ErrMalformedResponse))
	assert.True(t, report.Failed())
	assert.Equal(t, []string{"m1", "m3"}, report.Enriched)

	entries := catalog.store.current.Entries("en")
	require.Len(t, entries, 2)
	assert.Equal(t, "m1", entries[0].ID)
	assert.Equal(t, []string{"Revenue", "Sales"}, entries[0].Terms)
	assert.Equal(t, "m3", entries[1].ID)
}

func TestEnrichContainsFailedWrite(t *testing.T) {
	catalog := newFakeCatalog(
		vocabulary.Item{ID: "m1", Kind: vocabulary.KindMeasure},
		vocabulary.Item{ID: "m2", Kind: vocabulary.KindMeasure},
	)
	catalog.props["m1"] = vocabulary.ItemProperties{Title: "Revenue"}
	catalog.props["m2"] = vocabulary.ItemProperties{Title: "Margin"}
	catalog.store.failOn = 1
	source := &replySource{replies: map[string]string{
		"Revenue": `["Revenue"]`,
		"Margin":  `["Margin"]`,
	}}

	report, err := NewEnricher(catalog, source, testConfig(), nil).Enrich(context.Background())
	require.NoError(t, err)
	require.Len(t, report.Failures, 1)
	assert.Equal(t, "m1", report.Failures[0].ItemID)

	entries := catalog.store.current.Entries("en")
	require.Len(t, entries, 1)
	assert.Equal(t, "m2", entries[0].ID)
}

func TestEnrichWithNoItemsMakesNoCalls(t *testing.T) {
	catalog := newFakeCatalog()
	source := &replySource{}

	report, err := NewEnricher(catalog, source, testConfig(), nil).Enrich(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 1, catalog.creates)
	assert.Empty(t, source.calls)
	assert.Empty(t, catalog.store.saves)
	assert.Zero(t, report.Writes)
}

func TestEnrichReusesExistingVocabulary(t *testing.T) {
	catalog := newFakeCatalog()
	catalog.exists = true
	catalog.store.current = vocabulary.NewProperties("BusinessVocabulary", "en")

	report, err := NewEnricher(catalog, &replySource{}, testConfig(), nil).Enrich(context.Background())
	require.NoError(t, err)
	assert.False(t, report.Created)
	assert.Zero(t, catalog.creates)
}

func TestEnrichReplaceDropsPriorEntries(t *testing.T) {
	catalog := newFakeCatalog(vocabulary.Item{ID: "m1", Kind: vocabulary.KindMeasure})
	catalog.exists = true
	prior := vocabulary.NewProperties("BusinessVocabulary", "en")
	prior.Upsert("en", vocabulary.NewEntry(vocabulary.Item{ID: "old"}, []string{"Old"}))
	catalog.store.current = prior
	catalog.props["m1"] = vocabulary.ItemProperties{Title: "Revenue"}
	source := &replySource{replies: map[string]string{"Revenue": `["Revenue"]`}}

	_, err := NewEnricher(catalog, source, testConfig(), nil).Enrich(context.Background())
	require.NoError(t, err)

	entries := catalog.store.current.Entries("en")
	require.Len(t, entries, 1)
	assert.Equal(t, "m1", entries[0].ID)
}

func TestEnrichMergeKeepsPriorEntries(t *testing.T) {
	catalog := newFakeCatalog(vocabulary.Item{ID: "m1", Kind: vocabulary.KindMeasure})
	catalog.exists = true
	prior := vocabulary.NewProperties("BusinessVocabulary", "en")
	prior.Upsert("en", vocabulary.NewEntry(vocabulary.Item{ID: "old"}, []string{"Old"}))
	prior.Upsert("en", vocabulary.NewEntry(vocabulary.Item{ID: "m1"}, []string{"Stale"}))
	catalog.store.current = prior
	catalog.props["m1"] = vocabulary.ItemProperties{Title: "Revenue"}
	source := &replySource{replies: map[string]string{"Revenue": `["Revenue","Sales"]`}}

	cfg := testConfig()
	cfg.Merge = configpkg.MergeKeep
	_, err := NewEnricher(catalog, source, cfg, nil).Enrich(context.Background())
	require.NoError(t, err)

	entries := catalog.store.current.Entries("en")
	require.Len(t, entries, 2)
	assert.Equal(t, "old", entries[0].ID)
	assert.Equal(t, "m1", entries[1].ID)
	assert.Equal(t, []string{"Revenue", "Sales"}, entries[1].Terms)
}

func TestEnrichPersistOnceWritesOnce(t *testing.T) {
	catalog := newFakeCatalog(
		vocabulary.Item{ID: "m1", Kind: vocabulary.KindMeasure},
		vocabulary.Item{ID: "m2", Kind: vocabulary.KindMeasure},
		vocabulary.Item{ID: "m3", Kind: vocabulary.KindMeasure},
	)
	catalog.props["m1"] = vocabulary.ItemProperties{Title: "Revenue"}
	catalog.props["m2"] = vocabulary.ItemProperties{Title: "Margin"}
	source := &replySource{replies: map[string]string{
		"Revenue": `["Revenue"]`,
		"Margin":  `["Margin"]`,
	}}

	cfg := testConfig()
	cfg.Persist = configpkg.PersistOnce
	report, err := NewEnricher(catalog, source, cfg, nil).Enrich(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 1, report.Writes)
	require.Len(t, catalog.store.saves, 1)
	assert.Len(t, catalog.store.saves[0].Entries("en"), 2)
	require.Len(t, report.Failures, 1)
	assert.Equal(t, "m3", report.Failures[0].ItemID)
}

func TestEnrichStopsOnCancelledContext(t *testing.T) {
	catalog := newFakeCatalog(vocabulary.Item{ID: "m1", Kind: vocabulary.KindMeasure})
	catalog.props["m1"] = vocabulary.ItemProperties{Title: "Revenue"}
	source := &replySource{}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := NewEnricher(catalog, source, testConfig(), nil).Enrich(ctx)
	assert.True(t, errors.Is(err, context.Canceled))
	assert.Empty(t, source.calls)
}

func TestEnrichStopsWhenEngineConnectionIsLost(t *testing.T) {
	catalog := newFakeCatalog(
		vocabulary.Item{ID: "m1", Kind: vocabulary.KindMeasure},
		vocabulary.Item{ID: "m2", Kind: vocabulary.KindMeasure},
	)
	catalog.propsErr = fmt.Errorf("GetMeasure: %w: %w", engine.ErrConnection, errors.New("broken pipe"))
	source := &replySource{}

	report, err := NewEnricher(catalog, source, testConfig(), nil).Enrich(context.Background())
	require.Error(t, err)
	assert.True(t, errors.Is(err, engine.ErrConnection))
	assert.Empty(t, report.Failures)
	assert.Equal(t, map[string]int{"m1": 1}, catalog.propsCalls)
	assert.Empty(t, catalog.store.saves)
}
