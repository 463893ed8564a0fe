package services

import (
	"strings"
	"sync"

	"golang.org/x/text/language"
)

// DefaultCultureID is used when no culture is configured.
const DefaultCultureID = "en"

// TextLocalizer resolves localized text by key. fallback is returned when no
// culture in the fallback chain has an entry for l10nKey.
type TextLocalizer interface {
	Localize(cultureID, l10nKey, fallback string) string
}

// CultureService reports the active culture.
type CultureService interface {
	ActiveCultureID() string
}

// Culture is a fixed culture.
type Culture struct {
	id string
}

// NewCulture returns a culture service reporting id.
func NewCulture(id string) *Culture {
	if strings.TrimSpace(id) == "" {
		id = DefaultCultureID
	}
	return &Culture{id: id}
}

func (c *Culture) ActiveCultureID() string { return c.id }

// MapLocalizer keeps localized texts in memory. Lookups walk from the
// requested culture to its parents, e.g. de-CH then de.
type MapLocalizer struct {
	mu    sync.RWMutex
	texts map[string]map[string]string
}

// NewMapLocalizer returns an empty localizer.
func NewMapLocalizer() *MapLocalizer {
	return &MapLocalizer{texts: make(map[string]map[string]string)}
}

// Register stores text for l10nKey in cultureID.
func (m *MapLocalizer) Register(cultureID, l10nKey, text string) {
	culture := canonicalCulture(cultureID)
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.texts[culture] == nil {
		m.texts[culture] = make(map[string]string)
	}
	m.texts[culture][l10nKey] = text
}

// RegisterAll stores a culture -> key -> text table.
func (m *MapLocalizer) RegisterAll(table map[string]map[string]string) {
	for cultureID, texts := range table {
		for key, text := range texts {
			m.Register(cultureID, key, text)
		}
	}
}

func (m *MapLocalizer) Localize(cultureID, l10nKey, fallback string) string {
	if l10nKey == "" {
		return fallback
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, culture := range cultureChain(cultureID) {
		if text, ok := m.texts[culture][l10nKey]; ok {
			return text
		}
	}
	return fallback
}

func canonicalCulture(cultureID string) string {
	tag, err := language.Parse(strings.TrimSpace(cultureID))
	if err != nil {
		return strings.TrimSpace(cultureID)
	}
	return tag.String()
}

func cultureChain(cultureID string) []string {
	tag, err := language.Parse(strings.TrimSpace(cultureID))
	if err != nil {
		return []string{strings.TrimSpace(cultureID)}
	}
	var chain []string
	for !tag.IsRoot() {
		chain = append(chain, tag.String())
		tag = tag.Parent()
	}
	return chain
}
