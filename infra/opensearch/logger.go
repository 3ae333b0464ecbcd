package opensearch

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/mstgnz/kazapay/provider"
	"github.com/opensearch-project/opensearch-go/v2/opensearchapi"
)

// AuditDocument is one audit entry as indexed
type AuditDocument struct {
	ID          string         `json:"id"`
	Timestamp   time.Time      `json:"timestamp"`
	Gateway     string         `json:"gateway"`
	Description string         `json:"description"`
	RequestID   string         `json:"request_id,omitempty"`
	OrderID     string         `json:"order_id,omitempty"`
	InvoiceID   string         `json:"invoice_id,omitempty"`
	Data        map[string]any `json:"data,omitempty"`
}

// Logger indexes audit entries and system log events
type Logger struct {
	client *Client
}

// NewLogger creates a new OpenSearch logger
func NewLogger(client *Client) *Logger {
	return &Logger{
		client: client,
	}
}

// AuditLog implements provider.AuditLogger
func (l *Logger) AuditLog(ctx context.Context, gateway string, data map[string]any, description string) error {
	if !l.client.IsEnabled() {
		return nil
	}
	return l.index(ctx, AuditIndexName(gateway), NewAuditDocument(gateway, data, description))
}

// LogSystemEvent implements logger.Sink
func (l *Logger) LogSystemEvent(ctx context.Context, entry any) error {
	if !l.client.IsEnabled() {
		return nil
	}
	return l.index(ctx, SystemIndexName(), entry)
}

// SearchAudit returns the most recent audit entries for an order id
func (l *Logger) SearchAudit(ctx context.Context, gateway, orderID string, size int) ([]AuditDocument, error) {
	if !l.client.IsEnabled() {
		return nil, fmt.Errorf("logging is disabled")
	}
	if size <= 0 || size > 100 {
		size = 100
	}

	searchQuery := map[string]any{
		"query": map[string]any{
			"term": map[string]any{"order_id": orderID},
		},
		"sort": []map[string]any{
			{"timestamp": map[string]string{"order": "desc"}},
		},
		"size": size,
	}

	queryJSON, err := json.Marshal(searchQuery)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal query: %w", err)
	}

	req := opensearchapi.SearchRequest{
		Index: []string{AuditIndexName(gateway)},
		Body:  bytes.NewReader(queryJSON),
	}

	res, err := req.Do(ctx, l.client.GetClient())
	if err != nil {
		return nil, fmt.Errorf("search failed: %w", err)
	}
	defer res.Body.Close()

	if res.IsError() {
		return nil, fmt.Errorf("opensearch search error: %s", res.String())
	}

	var searchResult struct {
		Hits struct {
			Hits []struct {
				Source AuditDocument `json:"_source"`
			} `json:"hits"`
		} `json:"hits"`
	}
	if err := json.NewDecoder(res.Body).Decode(&searchResult); err != nil {
		return nil, fmt.Errorf("failed to decode search results: %w", err)
	}

	docs := make([]AuditDocument, len(searchResult.Hits.Hits))
	for i, hit := range searchResult.Hits.Hits {
		docs[i] = hit.Source
	}
	return docs, nil
}

func (l *Logger) index(ctx context.Context, indexName string, doc any) error {
	body, err := json.Marshal(doc)
	if err != nil {
		return fmt.Errorf("failed to marshal log: %w", err)
	}

	req := opensearchapi.IndexRequest{
		Index: indexName,
		Body:  bytes.NewReader(body),
	}

	res, err := req.Do(ctx, l.client.GetClient())
	if err != nil {
		return fmt.Errorf("failed to index log: %w", err)
	}
	defer res.Body.Close()

	if res.IsError() {
		return fmt.Errorf("opensearch error: %s", res.String())
	}
	return nil
}

// NewAuditDocument builds the indexed form of an audit entry. Lookup keys are
// lifted out of data and credentials are redacted.
func NewAuditDocument(gateway string, data map[string]any, description string) AuditDocument {
	doc := AuditDocument{
		ID:          uuid.NewString(),
		Timestamp:   time.Now().UTC(),
		Gateway:     gateway,
		Description: description,
		Data:        provider.RedactAuditData(data),
	}
	doc.RequestID = stringField(data, "request_id")
	doc.OrderID = stringField(data, "order_id")
	doc.InvoiceID = stringField(data, "invoice_id", "ref")
	return doc
}

// stringField returns the first present key
func stringField(data map[string]any, keys ...string) string {
	for _, key := range keys {
		if v, ok := data[key]; ok && v != nil {
			return fmt.Sprint(v)
		}
	}
	return ""
}
