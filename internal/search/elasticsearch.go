package search

import (
	"bytes"
	"context"
	"encoding/json"

	"github.com/elastic/go-elasticsearch/v7"
	"github.com/elastic/go-elasticsearch/v7/esapi"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"

	"example.com/careops/services/automation/config"
	"example.com/careops/services/automation/internal/models"
)

// ElasticClient indexes automation log rows so operators can search the
// audit trail across workspaces. Postgres stays the source of truth; a lost
// index entry is an observability gap, not data loss.
type ElasticClient struct {
	client *elasticsearch.Client
	config config.ElasticConfig
}

// NewElasticClient creates a new Elasticsearch client.
func NewElasticClient(cfg config.ElasticConfig) (*ElasticClient, error) {
	esConfig := elasticsearch.Config{
		Addresses: []string{cfg.URL},
		Username:  cfg.Username,
		Password:  cfg.Password,
	}

	client, err := elasticsearch.NewClient(esConfig)
	if err != nil {
		return nil, errors.Wrap(err, "failed to create Elasticsearch client")
	}

	return &ElasticClient{
		client: client,
		config: cfg,
	}, nil
}

// IndexLog indexes one automation log entry together with its rule context.
func (c *ElasticClient) IndexLog(ctx context.Context, entry *models.AutomationLog, rule *models.AutomationRule) error {
	doc := map[string]interface{}{
		"id":            entry.ID.String(),
		"workspace_id":  entry.WorkspaceID.String(),
		"rule_id":       entry.RuleID.String(),
		"status":        entry.Status,
		"reason":        entry.Reason,
		"error_summary": entry.ErrorSummary,
		"executed_at":   entry.ExecutedAt,
	}
	if rule != nil {
		doc["rule_name"] = rule.Name
		doc["trigger"] = rule.Trigger
		doc["action"] = rule.Action
	}

	if len(entry.TriggerPayload) > 0 {
		var payload map[string]string
		if err := json.Unmarshal(entry.TriggerPayload, &payload); err == nil {
			for k, v := range payload {
				doc["payload:"+k] = v
			}
		}
	}

	docJSON, err := json.Marshal(doc)
	if err != nil {
		return errors.Wrap(err, "failed to marshal log document")
	}

	indexName := config.FormatIndex(c.config, c.config.Index)
	req := esapi.IndexRequest{
		Index:      indexName,
		DocumentID: entry.ID.String(),
		Body:       bytes.NewReader(docJSON),
	}

	res, err := req.Do(ctx, c.client)
	if err != nil {
		return errors.Wrap(err, "failed to execute Elasticsearch index request")
	}
	defer res.Body.Close()

	if res.IsError() {
		var e map[string]interface{}
		if err := json.NewDecoder(res.Body).Decode(&e); err != nil {
			return errors.Wrap(err, "failed to parse Elasticsearch error response")
		}
		return errors.Errorf("Elasticsearch index error: %v", e)
	}

	log.Debug().Str("log_id", entry.ID.String()).Msg("Automation log indexed")
	return nil
}

// SearchLogs searches indexed log entries with the given query body.
func (c *ElasticClient) SearchLogs(ctx context.Context, query map[string]interface{}) ([]map[string]interface{}, error) {
	queryJSON, err := json.Marshal(query)
	if err != nil {
		return nil, errors.Wrap(err, "failed to marshal search query")
	}

	indexName := config.FormatIndex(c.config, c.config.Index)
	req := esapi.SearchRequest{
		Index: []string{indexName},
		Body:  bytes.NewReader(queryJSON),
	}

	res, err := req.Do(ctx, c.client)
	if err != nil {
		return nil, errors.Wrap(err, "failed to execute Elasticsearch search request")
	}
	defer res.Body.Close()

	if res.IsError() {
		var e map[string]interface{}
		if err := json.NewDecoder(res.Body).Decode(&e); err != nil {
			return nil, errors.Wrap(err, "failed to parse Elasticsearch error response")
		}
		return nil, errors.Errorf("Elasticsearch search error: %v", e)
	}

	var result map[string]interface{}
	if err := json.NewDecoder(res.Body).Decode(&result); err != nil {
		return nil, errors.Wrap(err, "failed to parse Elasticsearch search response")
	}

	hits, ok := result["hits"].(map[string]interface{})
	if !ok {
		return nil, errors.New("unexpected search result format")
	}
	hitsArray, ok := hits["hits"].([]interface{})
	if !ok {
		return nil, errors.New("unexpected hits format")
	}

	var docs []map[string]interface{}
	for _, hit := range hitsArray {
		hitMap, ok := hit.(map[string]interface{})
		if !ok {
			continue
		}
		source, ok := hitMap["_source"].(map[string]interface{})
		if !ok {
			continue
		}
		docs = append(docs, source)
	}

	return docs, nil
}

// WorkspaceLogQuery builds the standard search body for one workspace's logs
// matching a free-text term.
func WorkspaceLogQuery(workspaceID, term string, size int) map[string]interface{} {
	must := []interface{}{
		map[string]interface{}{
			"term": map[string]interface{}{"workspace_id": workspaceID},
		},
	}
	if term != "" {
		must = append(must, map[string]interface{}{
			"query_string": map[string]interface{}{"query": term},
		})
	}
	return map[string]interface{}{
		"size": size,
		"sort": []interface{}{
			map[string]interface{}{"executed_at": map[string]interface{}{"order": "desc"}},
		},
		"query": map[string]interface{}{
			"bool": map[string]interface{}{"must": must},
		},
	}
}
