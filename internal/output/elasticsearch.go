package output

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/elastic/go-elasticsearch/v8"
	"github.com/therealutkarshpriyadarshi/logseek/internal/metrics"
)

// ElasticsearchConfig contains Elasticsearch-specific configuration
type ElasticsearchConfig struct {
	// Addresses is the list of Elasticsearch node URLs
	Addresses []string `yaml:"addresses"`

	// Index is the index name or pattern (supports %{+YYYY.MM.dd} patterns)
	Index string `yaml:"index"`

	// IndexRotation appends a date suffix (daily, weekly, monthly, yearly, none)
	IndexRotation string `yaml:"index_rotation,omitempty"`

	// Pipeline is the ingest pipeline to use
	Pipeline string `yaml:"pipeline,omitempty"`

	Username string `yaml:"username,omitempty"`
	Password string `yaml:"password,omitempty"`
	CloudID  string `yaml:"cloud_id,omitempty"`
	APIKey   string `yaml:"api_key,omitempty"`

	// MaxRetries for failed requests
	MaxRetries int `yaml:"max_retries,omitempty"`
}

// Validate checks the required Elasticsearch settings
func (c *ElasticsearchConfig) Validate() error {
	if len(c.Addresses) == 0 && c.CloudID == "" {
		return fmt.Errorf("no addresses or cloud ID specified")
	}
	if c.Index == "" {
		return fmt.Errorf("no index specified")
	}
	return nil
}

// document is the body indexed for every line
type document struct {
	Source  string `json:"source"`
	Message string `json:"message"`
}

// ElasticsearchSink indexes every line of the range as a document through
// the bulk API
type ElasticsearchSink struct {
	*Batcher

	config    ElasticsearchConfig
	source    string
	client    *elasticsearch.Client
	collector *metrics.Collector
	now       func() time.Time
	closed    bool
}

// NewElasticsearchSink creates the client and checks the connection
func NewElasticsearchSink(ctx context.Context, cfg Config, source string, collector *metrics.Collector) (*ElasticsearchSink, error) {
	esCfg := cfg.Elasticsearch
	client, err := elasticsearch.NewClient(elasticsearch.Config{
		Addresses:  esCfg.Addresses,
		CloudID:    esCfg.CloudID,
		Username:   esCfg.Username,
		Password:   esCfg.Password,
		APIKey:     esCfg.APIKey,
		MaxRetries: esCfg.MaxRetries,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create Elasticsearch client: %w", err)
	}

	res, err := client.Info(client.Info.WithContext(ctx))
	if err != nil {
		return nil, fmt.Errorf("failed to connect to Elasticsearch: %w", err)
	}
	defer res.Body.Close()

	if res.IsError() {
		return nil, fmt.Errorf("elasticsearch returned error: %s", res.Status())
	}

	e := &ElasticsearchSink{
		config:    *esCfg,
		source:    source,
		client:    client,
		collector: collector,
		now:       time.Now,
	}
	e.Batcher = NewBatcher(ctx, BatcherConfig{
		MaxBatchSize:  cfg.BatchSize,
		MaxBatchBytes: 10 * 1024 * 1024, // 10MB default bulk size
		RateLimit:     cfg.RateLimit,
	}, e.send)
	return e, nil
}

// send indexes one batch with a bulk request
func (e *ElasticsearchSink) send(ctx context.Context, lines [][]byte) error {
	start := time.Now()
	index := e.indexName(e.now())

	action := map[string]interface{}{"_index": index}
	if e.config.Pipeline != "" {
		action["pipeline"] = e.config.Pipeline
	}
	meta, err := json.Marshal(map[string]interface{}{"index": action})
	if err != nil {
		return fmt.Errorf("failed to marshal bulk action: %w", err)
	}

	var buf bytes.Buffer
	var size int
	for _, line := range lines {
		doc, err := json.Marshal(document{Source: e.source, Message: string(line)})
		if err != nil {
			return fmt.Errorf("failed to marshal document: %w", err)
		}
		buf.Write(meta)
		buf.WriteByte('\n')
		buf.Write(doc)
		buf.WriteByte('\n')
		size += len(line)
	}

	err = e.bulk(ctx, &buf, len(lines))
	observe(e.collector, TypeElasticsearch, len(lines), size, start, err)
	return err
}

func (e *ElasticsearchSink) bulk(ctx context.Context, body *bytes.Buffer, count int) error {
	res, err := e.client.Bulk(bytes.NewReader(body.Bytes()), e.client.Bulk.WithContext(ctx))
	if err != nil {
		return fmt.Errorf("bulk request failed: %w", err)
	}
	defer res.Body.Close()

	if res.IsError() {
		return fmt.Errorf("bulk request returned error: %s", res.Status())
	}

	var bulkResp struct {
		Errors bool `json:"errors"`
		Items  []map[string]struct {
			Status int             `json:"status"`
			Error  json.RawMessage `json:"error"`
		} `json:"items"`
	}
	if err := json.NewDecoder(res.Body).Decode(&bulkResp); err != nil {
		return fmt.Errorf("failed to parse bulk response: %w", err)
	}

	if !bulkResp.Errors {
		return nil
	}

	var failed int
	var lastErr string
	for _, item := range bulkResp.Items {
		for _, doc := range item {
			if doc.Status >= 400 {
				failed++
				lastErr = string(doc.Error)
			}
		}
	}
	if failed > 0 {
		return fmt.Errorf("%d out of %d lines failed to index: %s", failed, count, lastErr)
	}
	return nil
}

// indexName returns the index for documents written at ts
func (e *ElasticsearchSink) indexName(ts time.Time) string {
	index := e.config.Index

	if strings.Contains(index, "%{") {
		index = strings.ReplaceAll(index, "%{+YYYY.MM.dd}", ts.Format("2006.01.02"))
		index = strings.ReplaceAll(index, "%{+YYYY.MM}", ts.Format("2006.01"))
		index = strings.ReplaceAll(index, "%{+YYYY}", ts.Format("2006"))
		return index
	}

	switch e.config.IndexRotation {
	case "", "none":
		return index
	case "weekly":
		year, week := ts.ISOWeek()
		return fmt.Sprintf("%s-%d.%02d", index, year, week)
	case "monthly":
		return index + "-" + ts.Format("2006.01")
	case "yearly":
		return index + "-" + ts.Format("2006")
	default:
		return index + "-" + ts.Format("2006.01.02")
	}
}

// Close flushes the remaining lines
func (e *ElasticsearchSink) Close() error {
	if e.closed {
		return nil
	}
	e.closed = true
	return e.Batcher.Close()
}

// Name returns the sink name
func (e *ElasticsearchSink) Name() string {
	return TypeElasticsearch
}
