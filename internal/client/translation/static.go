package translation

import (
	"context"
	"sync"

	"golang.org/x/text/language"

	"github.com/baker-beach/market-index/internal/domain"
)

// Static serves messages from memory. Lookups fall back from a regional
// locale to its base language, e.g. de-CH to de.
type Static struct {
	mu       sync.RWMutex
	messages map[string]string
}

var _ domain.Translator = (*Static)(nil)

// NewStatic creates an empty catalog.
func NewStatic() *Static {
	return &Static{messages: make(map[string]string)}
}

func staticKey(locale, tag, code string) string {
	return locale + "|" + tag + "|" + code
}

// Add registers the message for tag and code in locale.
func (s *Static) Add(locale language.Tag, tag, code, message string) *Static {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.messages[staticKey(locale.String(), tag, code)] = message
	return s
}

// Message implements domain.Translator.
func (s *Static) Message(_ context.Context, key domain.MessageKey, locale language.Tag) (string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if msg, ok := s.messages[staticKey(locale.String(), key.Tag, key.Code)]; ok {
		return msg, nil
	}
	base, _ := locale.Base()
	if msg, ok := s.messages[staticKey(base.String(), key.Tag, key.Code)]; ok {
		return msg, nil
	}
	return key.Fallback, nil
}
