package domain

import (
	"fmt"
	"time"

	"golang.org/x/text/language"
)

// Interval is a half-open validity period [From, To).
type Interval struct {
	From time.Time `json:"from"`
	To   time.Time `json:"to"`
}

func (i Interval) String() string {
	return fmt.Sprintf("[%s, %s)", i.From.UTC().Format(time.RFC3339), i.To.UTC().Format(time.RFC3339))
}

// Document is a flat index document: field name to value(s).
type Document map[string]any

// ID returns the document identity or an empty string.
func (d Document) ID() string {
	id, _ := d[FieldID].(string)
	return id
}

// ActiveFrom returns the validity start of the document. Documents read
// back from an engine carry it as an RFC 3339 string. The zero time is
// returned when the field is missing or unreadable.
func (d Document) ActiveFrom() time.Time {
	switch v := d[FieldActiveFrom].(type) {
	case time.Time:
		return v
	case string:
		t, _ := time.Parse(time.RFC3339Nano, v)
		return t
	}
	return time.Time{}
}

// Core field names shared by every schema.
const (
	FieldID         = "id"
	FieldType       = "type"
	FieldActiveFrom = "active_from"
	FieldActiveTo   = "active_to"
	FieldLastUpdate = "last_update"
)

// IndexContext carries the read-only parameters of one indexing run.
type IndexContext struct {
	// Shop tags the index change events of this run.
	Shop        string
	Locales     []language.Tag
	Currencies  []string
	PriceGroups []string
	// Addresses maps a logical index name (the product status) to a
	// search-engine address.
	Addresses map[string]string
	// DefaultIndex is used when a product status has no dedicated address.
	DefaultIndex string
	Horizon      time.Time
}

// IndexName returns the logical index for the given product status.
func (c *IndexContext) IndexName(status string) string {
	if _, ok := c.Addresses[status]; ok {
		return status
	}
	return c.DefaultIndex
}

// Address resolves the search-engine address for a product status.
func (c *IndexContext) Address(status string) (string, bool) {
	addr, ok := c.Addresses[c.IndexName(status)]
	return addr, ok
}
