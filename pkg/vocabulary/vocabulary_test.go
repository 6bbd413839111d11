package vocabulary

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewPropertiesShape(t *testing.T) {
	raw, err := json.Marshal(NewProperties("BusinessVocabulary", "en"))
	require.NoError(t, err)

	assert.JSONEq(t, `{
		"qInfo": {"qId": "BusinessVocabulary", "qType": "BusinessVocabulary"},
		"qMetaDef": {},
		"vocabularies": [{"entries": [], "unresolvedEntries": [], "sampleQueries": [], "locale": "en"}]
	}`, string(raw))
}

func TestNewEntryReferencesItem(t *testing.T) {
	entry := NewEntry(Item{ID: "m1", Kind: KindMeasure}, []string{"Orders", "Order Count"})

	raw, err := json.Marshal(entry)
	require.NoError(t, err)
	assert.JSONEq(t, `{"id":"m1","terms":["Orders","Order Count"],"appliedTo":[{"libItemRef":"m1"}]}`, string(raw))
}

func TestUpsertReplacesEntryWithSameID(t *testing.T) {
	p := NewProperties("BusinessVocabulary", "en")
	p.Upsert("en", NewEntry(Item{ID: "m1"}, []string{"a"}))
	p.Upsert("en", NewEntry(Item{ID: "d1"}, []string{"b"}))
	p.Upsert("en", NewEntry(Item{ID: "m1"}, []string{"c"}))

	entries := p.Entries("en")
	require.Len(t, entries, 2)
	assert.Equal(t, "m1", entries[0].ID)
	assert.Equal(t, []string{"c"}, entries[0].Terms)
	assert.Equal(t, "d1", entries[1].ID)
}

func TestUpsertAddsMissingLocale(t *testing.T) {
	p := NewProperties("BusinessVocabulary", "en")
	p.Upsert("de", NewEntry(Item{ID: "m1"}, []string{"Bestellungen"}))

	assert.Empty(t, p.Entries("en"))
	assert.Len(t, p.Entries("de"), 1)
}

func TestCloneIsIndependent(t *testing.T) {
	p := NewProperties("BusinessVocabulary", "en")
	p.Upsert("en", NewEntry(Item{ID: "m1"}, []string{"a"}))

	cp := p.Clone()
	cp.Upsert("en", NewEntry(Item{ID: "m2"}, []string{"b"}))
	cp.Vocabularies[0].Entries[0].Terms[0] = "changed"

	assert.Len(t, p.Entries("en"), 1)
	assert.Equal(t, "a", p.Entries("en")[0].Terms[0])
}

func TestKindOf(t *testing.T) {
	assert.Equal(t, KindMeasure, KindOf("measure"))
	assert.Equal(t, KindDimension, KindOf("dimension"))
	assert.Equal(t, KindOther, KindOf("sheet"))
}
