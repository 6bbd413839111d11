// Package vocabulary models the business-vocabulary object stored in an app
// and the master items it annotates.
package vocabulary

import (
	"context"
	"encoding/json"
)

// Kind classifies an object listed in the app inventory.
type Kind string

const (
	KindMeasure   Kind = "measure"
	KindDimension Kind = "dimension"
	KindOther     Kind = "other"
)

// KindOf maps an engine object type to a Kind.
func KindOf(qType string) Kind {
	switch Kind(qType) {
	case KindMeasure:
		return KindMeasure
	case KindDimension:
		return KindDimension
	default:
		return KindOther
	}
}

// Item is a master measure or dimension listed in the app.
type Item struct {
	ID   string
	Kind Kind
}

// ItemProperties is the descriptive metadata of a master item.
type ItemProperties struct {
	Title       string
	Description string
}

// AppliedTo links a vocabulary entry to a library item.
type AppliedTo struct {
	LibItemRef string `json:"libItemRef"`
}

// Entry holds the terms that resolve to one library item.
type Entry struct {
	ID        string      `json:"id"`
	Terms     []string    `json:"terms"`
	AppliedTo []AppliedTo `json:"appliedTo"`
}

// NewEntry builds the entry for item with the given terms.
func NewEntry(item Item, terms []string) Entry {
	return Entry{
		ID:        item.ID,
		Terms:     append([]string(nil), terms...),
		AppliedTo: []AppliedTo{{LibItemRef: item.ID}},
	}
}

// Vocabulary is one locale-specific vocabulary inside the object.
type Vocabulary struct {
	Entries           []Entry           `json:"entries"`
	UnresolvedEntries []json.RawMessage `json:"unresolvedEntries"`
	SampleQueries     []json.RawMessage `json:"sampleQueries"`
	Locale            string            `json:"locale"`
}

// Info identifies the vocabulary object.
type Info struct {
	ID   string `json:"qId"`
	Type string `json:"qType"`
}

// Properties is the full property tree of the vocabulary object.
type Properties struct {
	Info         Info           `json:"qInfo"`
	MetaDef      map[string]any `json:"qMetaDef"`
	Vocabularies []Vocabulary   `json:"vocabularies"`
}

// NewProperties returns an empty vocabulary object for id and locale.
func NewProperties(id, locale string) Properties {
	return Properties{
		Info:    Info{ID: id, Type: id},
		MetaDef: map[string]any{},
		Vocabularies: []Vocabulary{{
			Entries:           []Entry{},
			UnresolvedEntries: []json.RawMessage{},
			SampleQueries:     []json.RawMessage{},
			Locale:            locale,
		}},
	}
}

// Clone returns a deep copy of p suitable for local mutation.
func (p Properties) Clone() Properties {
	out := Properties{Info: p.Info, MetaDef: make(map[string]any, len(p.MetaDef))}
	for k, v := range p.MetaDef {
		out.MetaDef[k] = v
	}
	for _, v := range p.Vocabularies {
		cp := Vocabulary{
			Entries:           make([]Entry, 0, len(v.Entries)),
			UnresolvedEntries: append([]json.RawMessage{}, v.UnresolvedEntries...),
			SampleQueries:     append([]json.RawMessage{}, v.SampleQueries...),
			Locale:            v.Locale,
		}
		for _, e := range v.Entries {
			cp.Entries = append(cp.Entries, Entry{
				ID:        e.ID,
				Terms:     append([]string(nil), e.Terms...),
				AppliedTo: append([]AppliedTo(nil), e.AppliedTo...),
			})
		}
		out.Vocabularies = append(out.Vocabularies, cp)
	}
	return out
}

// Upsert stores entry in the vocabulary for locale, replacing any entry with
// the same id. A vocabulary for locale is added when none exists.
func (p *Properties) Upsert(locale string, entry Entry) {
	idx := -1
	for i, v := range p.Vocabularies {
		if v.Locale == locale {
			idx = i
			break
		}
	}
	if idx < 0 {
		p.Vocabularies = append(p.Vocabularies, Vocabulary{
			Entries:           []Entry{},
			UnresolvedEntries: []json.RawMessage{},
			SampleQueries:     []json.RawMessage{},
			Locale:            locale,
		})
		idx = len(p.Vocabularies) - 1
	}

	v := &p.Vocabularies[idx]
	for i, e := range v.Entries {
		if e.ID == entry.ID {
			v.Entries[i] = entry
			return
		}
	}
	v.Entries = append(v.Entries, entry)
}

// Entries returns the entries of the vocabulary for locale.
func (p Properties) Entries(locale string) []Entry {
	for _, v := range p.Vocabularies {
		if v.Locale == locale {
			return v.Entries
		}
	}
	return nil
}

// Store reads and writes the vocabulary object in the app.
type Store interface {
	Properties(ctx context.Context) (Properties, error)
	Save(ctx context.Context, props Properties) error
}
