package elasticsearch

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"time"

	"github.com/elastic/go-elasticsearch/v8"
	"github.com/shopspring/decimal"

	"github.com/baker-beach/market-index/internal/domain"
)

// maxFindResults bounds the documents returned by Find. A product rarely has
// more than a handful of validity intervals.
const maxFindResults = 1000

// Engine is an Elasticsearch-backed index of product documents.
type Engine struct {
	client    *elasticsearch.Client
	indexName string
	refresh   string
	logger    *slog.Logger
}

// esSearchResponse is the structure used to decode Elasticsearch search responses.
type esSearchResponse struct {
	Hits struct {
		Hits []struct {
			Source map[string]any `json:"_source"`
		} `json:"hits"`
	} `json:"hits"`
}

// esBulkResponse is the structure used to decode Elasticsearch bulk responses.
type esBulkResponse struct {
	Errors bool `json:"errors"`
	Items  []struct {
		Index struct {
			ID     string `json:"_id"`
			Status int    `json:"status"`
			Error  struct {
				Type   string `json:"type"`
				Reason string `json:"reason"`
			} `json:"error"`
		} `json:"index"`
	} `json:"items"`
}

// esDeleteByQueryResponse reports how many documents were removed.
type esDeleteByQueryResponse struct {
	Deleted  int   `json:"deleted"`
	Failures []any `json:"failures"`
}

// esErrorResponse is used to decode Elasticsearch error responses.
type esErrorResponse struct {
	Error struct {
		Type   string `json:"type"`
		Reason string `json:"reason"`
	} `json:"error"`
	Status int `json:"status"`
}

// New creates an Elasticsearch engine for the given cluster URL and index.
// The index is created with the document mapping if it does not exist.
// If indexName is empty, DefaultIndexName is used.
func New(esURL string, indexName string, logger *slog.Logger) (*Engine, error) {
	if indexName == "" {
		indexName = DefaultIndexName
	}

	client, err := elasticsearch.NewClient(elasticsearch.Config{
		Addresses: []string{esURL},
	})
	if err != nil {
		return nil, fmt.Errorf("elasticsearch: failed to create client: %w", err)
	}

	e := &Engine{
		client:    client,
		indexName: indexName,
		refresh:   "wait_for",
		logger:    logger.With(slog.String("index", indexName)),
	}

	if err := e.ensureIndex(); err != nil {
		return nil, fmt.Errorf("elasticsearch: failed to ensure index: %w", err)
	}

	return e, nil
}

// IndexName returns the name of the backing index.
func (e *Engine) IndexName() string {
	return e.indexName
}

// Ping checks whether the Elasticsearch cluster is reachable.
func (e *Engine) Ping(ctx context.Context) error {
	res, err := e.client.Ping(e.client.Ping.WithContext(ctx))
	if err != nil {
		return fmt.Errorf("elasticsearch ping: %w", err)
	}
	defer func() { _ = res.Body.Close() }()

	if res.IsError() {
		return fmt.Errorf("elasticsearch ping: unexpected status %s", res.Status())
	}
	return nil
}

// Close is a no-op; the HTTP transport has no persistent state to release.
func (e *Engine) Close() error {
	return nil
}

func (e *Engine) ensureIndex() error {
	res, err := e.client.Indices.Exists([]string{e.indexName})
	if err != nil {
		return fmt.Errorf("check index exists: %w", err)
	}
	defer func() { _ = res.Body.Close() }()

	if res.StatusCode == 200 {
		e.logger.Info("elasticsearch index already exists")
		return nil
	}

	res, err = e.client.Indices.Create(
		e.indexName,
		e.client.Indices.Create.WithBody(strings.NewReader(buildIndexMapping())),
	)
	if err != nil {
		return fmt.Errorf("create index: %w", err)
	}
	defer func() { _ = res.Body.Close() }()

	if res.IsError() {
		return decodeError("create index", res.Status(), res.Body)
	}

	e.logger.Info("elasticsearch index created")
	return nil
}

// Submit writes the documents with the bulk NDJSON API. Existing documents
// with the same id are replaced.
func (e *Engine) Submit(ctx context.Context, docs []domain.Document) error {
	if len(docs) == 0 {
		return nil
	}

	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)

	for i, d := range docs {
		id := d.ID()
		if id == "" {
			return fmt.Errorf("elasticsearch submit: document %d has no id", i)
		}
		action := map[string]any{
			"index": map[string]any{
				"_index": e.indexName,
				"_id":    id,
			},
		}
		if err := enc.Encode(action); err != nil {
			return fmt.Errorf("elasticsearch submit: encode action: %w", err)
		}
		if err := enc.Encode(encodeDocument(d)); err != nil {
			return fmt.Errorf("elasticsearch submit: encode document %s: %w", id, err)
		}
	}

	res, err := e.client.Bulk(
		bytes.NewReader(buf.Bytes()),
		e.client.Bulk.WithIndex(e.indexName),
		e.client.Bulk.WithRefresh(e.refresh),
		e.client.Bulk.WithContext(ctx),
	)
	if err != nil {
		return fmt.Errorf("elasticsearch submit: %w", err)
	}
	defer func() { _ = res.Body.Close() }()

	if res.IsError() {
		return decodeError("elasticsearch submit", res.Status(), res.Body)
	}

	var bulkResp esBulkResponse
	if err := json.NewDecoder(res.Body).Decode(&bulkResp); err != nil {
		return fmt.Errorf("elasticsearch submit: decode response: %w", err)
	}

	if bulkResp.Errors {
		var errMsgs []string
		for _, item := range bulkResp.Items {
			if item.Index.Error.Type != "" {
				errMsgs = append(errMsgs, fmt.Sprintf("id=%s: %s: %s", item.Index.ID, item.Index.Error.Type, item.Index.Error.Reason))
			}
		}
		return fmt.Errorf("elasticsearch submit: partial errors: %s", strings.Join(errMsgs, "; "))
	}

	e.logger.DebugContext(ctx, "submitted documents", slog.Int("count", len(docs)))
	return nil
}

// DeleteByField removes every document with a term match on field.
func (e *Engine) DeleteByField(ctx context.Context, field, value string) error {
	body, err := json.Marshal(termQuery(field, value))
	if err != nil {
		return fmt.Errorf("elasticsearch delete: marshal query: %w", err)
	}

	res, err := e.client.DeleteByQuery(
		[]string{e.indexName},
		bytes.NewReader(body),
		e.client.DeleteByQuery.WithConflicts("proceed"),
		e.client.DeleteByQuery.WithRefresh(true),
		e.client.DeleteByQuery.WithContext(ctx),
	)
	if err != nil {
		return fmt.Errorf("elasticsearch delete: %w", err)
	}
	defer func() { _ = res.Body.Close() }()

	if res.IsError() {
		return decodeError("elasticsearch delete", res.Status(), res.Body)
	}

	var resp esDeleteByQueryResponse
	if err := json.NewDecoder(res.Body).Decode(&resp); err != nil {
		return fmt.Errorf("elasticsearch delete: decode response: %w", err)
	}
	if len(resp.Failures) > 0 {
		return fmt.Errorf("elasticsearch delete: %d failures", len(resp.Failures))
	}

	e.logger.DebugContext(ctx, "deleted documents",
		slog.String("field", field),
		slog.String("value", value),
		slog.Int("count", resp.Deleted),
	)
	return nil
}

// Find returns the stored documents with a term match on field.
func (e *Engine) Find(ctx context.Context, field, value string) ([]domain.Document, error) {
	q := termQuery(field, value)
	q["size"] = maxFindResults
	q["sort"] = []any{map[string]any{domain.FieldActiveFrom: "asc"}}

	body, err := json.Marshal(q)
	if err != nil {
		return nil, fmt.Errorf("elasticsearch find: marshal query: %w", err)
	}

	res, err := e.client.Search(
		e.client.Search.WithIndex(e.indexName),
		e.client.Search.WithBody(bytes.NewReader(body)),
		e.client.Search.WithContext(ctx),
	)
	if err != nil {
		return nil, fmt.Errorf("elasticsearch find: %w", err)
	}
	defer func() { _ = res.Body.Close() }()

	if res.IsError() {
		return nil, decodeError("elasticsearch find", res.Status(), res.Body)
	}

	var esResp esSearchResponse
	if err := json.NewDecoder(res.Body).Decode(&esResp); err != nil {
		return nil, fmt.Errorf("elasticsearch find: decode response: %w", err)
	}

	docs := make([]domain.Document, 0, len(esResp.Hits.Hits))
	for _, hit := range esResp.Hits.Hits {
		docs = append(docs, domain.Document(hit.Source))
	}
	return docs, nil
}

// DeleteIndex removes the entire index. A 404 response is treated as success.
func (e *Engine) DeleteIndex(ctx context.Context) error {
	res, err := e.client.Indices.Delete(
		[]string{e.indexName},
		e.client.Indices.Delete.WithContext(ctx),
	)
	if err != nil {
		return fmt.Errorf("elasticsearch delete index: %w", err)
	}
	defer func() { _ = res.Body.Close() }()

	if res.IsError() && res.StatusCode != 404 {
		return decodeError("elasticsearch delete index", res.Status(), res.Body)
	}

	e.logger.Info("elasticsearch index deleted")
	return nil
}

func termQuery(field, value string) map[string]any {
	return map[string]any{
		"query": map[string]any{
			"term": map[string]any{field: value},
		},
	}
}

func decodeError(op, status string, body io.Reader) error {
	var errResp esErrorResponse
	if err := json.NewDecoder(body).Decode(&errResp); err == nil && errResp.Error.Type != "" {
		return fmt.Errorf("%s: %s: %s", op, errResp.Error.Type, errResp.Error.Reason)
	}
	return fmt.Errorf("%s: unexpected status %s", op, status)
}

// encodeDocument writes decimals as JSON numbers and instants in UTC.
func encodeDocument(d domain.Document) map[string]any {
	out := make(map[string]any, len(d))
	for k, v := range d {
		switch val := v.(type) {
		case decimal.Decimal:
			out[k] = json.Number(val.String())
		case time.Time:
			out[k] = val.UTC().Format(time.RFC3339)
		default:
			out[k] = v
		}
	}
	return out
}
