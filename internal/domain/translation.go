package domain

import (
	"context"

	"golang.org/x/text/language"
)

// MessageKey identifies a translatable message.
type MessageKey struct {
	Tag      string   `json:"tag"`
	Type     string   `json:"type"`
	Code     string   `json:"code"`
	Params   []string `json:"params,omitempty"`
	Fallback string   `json:"fallback,omitempty"`
}

// Translator resolves localized display strings for attribute codes.
// Implementations return the key's fallback when no message exists.
type Translator interface {
	Message(ctx context.Context, key MessageKey, locale language.Tag) (string, error)
}
