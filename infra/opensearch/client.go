package opensearch

import (
	"context"
	"crypto/tls"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/mstgnz/kazapay/infra/config"
	"github.com/mstgnz/kazapay/infra/logger"
	"github.com/opensearch-project/opensearch-go/v2"
	"github.com/opensearch-project/opensearch-go/v2/opensearchapi"
)

const indexPrefix = "kazapay"

// Client wraps the OpenSearch client
type Client struct {
	client  *opensearch.Client
	enabled bool
}

// NewClient creates a new OpenSearch client and makes sure the audit and
// system indices exist. Index setup failures are logged, not returned.
func NewClient(ctx context.Context, cfg *config.AppConfig, gateway string) (*Client, error) {
	opensearchConfig := opensearch.Config{
		Addresses: []string{cfg.OpenSearchURL},
		Transport: &http.Transport{
			TLSClientConfig: &tls.Config{
				InsecureSkipVerify: cfg.Environment == "development",
			},
		},
		MaxRetries:    3,
		RetryOnStatus: []int{502, 503, 504, 429},
		RetryBackoff: func(i int) time.Duration {
			return time.Duration(i) * 100 * time.Millisecond
		},
	}

	if cfg.OpenSearchUser != "" && cfg.OpenSearchPass != "" {
		opensearchConfig.Username = cfg.OpenSearchUser
		opensearchConfig.Password = cfg.OpenSearchPass
	}

	client, err := opensearch.NewClient(opensearchConfig)
	if err != nil {
		return nil, err
	}

	osClient := &Client{
		client:  client,
		enabled: cfg.EnableOpenSearch,
	}

	if osClient.enabled {
		for _, index := range []string{AuditIndexName(gateway), SystemIndexName()} {
			if err := osClient.ensureIndex(ctx, index); err != nil {
				logger.Warn(fmt.Sprintf("Failed to setup OpenSearch index %s: %v", index, err))
			}
		}
	}

	return osClient, nil
}

// GetClient returns the underlying OpenSearch client
func (c *Client) GetClient() *opensearch.Client {
	return c.client
}

// IsEnabled returns whether OpenSearch logging is enabled
func (c *Client) IsEnabled() bool {
	return c.enabled
}

func (c *Client) ensureIndex(ctx context.Context, indexName string) error {
	exists, err := c.indexExists(ctx, indexName)
	if err != nil {
		return err
	}
	if exists {
		return nil
	}
	if err := c.createIndex(ctx, indexName); err != nil {
		return err
	}
	logger.Info("Created OpenSearch index: " + indexName)
	return nil
}

func (c *Client) indexExists(ctx context.Context, indexName string) (bool, error) {
	req := opensearchapi.IndicesExistsRequest{
		Index: []string{indexName},
	}

	res, err := req.Do(ctx, c.client)
	if err != nil {
		return false, err
	}
	defer res.Body.Close()

	return res.StatusCode == http.StatusOK, nil
}

// createIndex creates an index with keyword mappings for the fields operators
// filter on. The free form data object stays dynamic.
func (c *Client) createIndex(ctx context.Context, indexName string) error {
	mapping := `{
		"mappings": {
			"properties": {
				"timestamp": {
					"type": "date",
					"format": "strict_date_optional_time||epoch_millis"
				},
				"gateway": {"type": "keyword"},
				"description": {"type": "keyword"},
				"request_id": {"type": "keyword"},
				"order_id": {"type": "keyword"},
				"invoice_id": {"type": "keyword"},
				"level": {"type": "keyword"},
				"component": {"type": "keyword"},
				"message": {"type": "text"},
				"data": {"type": "object"}
			}
		},
		"settings": {
			"number_of_shards": 1,
			"number_of_replicas": 0
		}
	}`

	req := opensearchapi.IndicesCreateRequest{
		Index: indexName,
		Body:  strings.NewReader(mapping),
	}

	res, err := req.Do(ctx, c.client)
	if err != nil {
		return err
	}
	defer res.Body.Close()

	if res.IsError() {
		return fmt.Errorf("index creation error: %s", res.String())
	}

	return nil
}

// AuditIndexName returns the index holding a gateway's audit entries
func AuditIndexName(gateway string) string {
	return indexPrefix + "-" + strings.ToLower(gateway) + "-audit"
}

// SystemIndexName returns the index holding shipped system log entries
func SystemIndexName() string {
	return indexPrefix + "-system-logs"
}
