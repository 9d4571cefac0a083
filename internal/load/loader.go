// Package load writes movie documents to Elasticsearch through the
// bulk API, with per-document outcome tracking and bounded retries of
// the transiently failed subset.
package load

import (
	"bytes"
	"context"
	"crypto/tls"
	"fmt"
	"io"
	"net/http"

	"github.com/elastic/go-elasticsearch/v8"
	"github.com/elastic/go-elasticsearch/v8/esapi"
	json "github.com/goccy/go-json"
	"go.uber.org/zap"

	"github.com/ajitpratap0/searchsync/pkg/backoff"
	"github.com/ajitpratap0/searchsync/pkg/config"
	"github.com/ajitpratap0/searchsync/pkg/logger"
	"github.com/ajitpratap0/searchsync/pkg/models"
	"github.com/ajitpratap0/searchsync/pkg/syncerrors"
)

// Loader indexes documents into a single target index. Writes are
// idempotent: documents are indexed by primary key, so reloading the
// same batch overwrites rather than duplicates.
type Loader struct {
	client   *elasticsearch.Client
	index    string
	attempts int
	policy   backoff.Policy
}

// NewLoader builds an Elasticsearch client from cfg. attempts bounds
// how many times a transiently failed document subset is resent within
// one Load call.
func NewLoader(cfg config.ElasticsearchConfig, attempts int, policy backoff.Policy) (*Loader, error) {
	esCfg := elasticsearch.Config{
		Addresses: cfg.Addresses,
		Username:  cfg.Username,
		Password:  cfg.Password,
		// Retries belong to Load's own policy. The client's built-in
		// transport retries would multiply with it and bypass the
		// configured backoff.
		DisableRetry: true,
	}
	if cfg.SkipTLSVerify {
		esCfg.Transport = &http.Transport{
			TLSClientConfig: &tls.Config{InsecureSkipVerify: true},
		}
	}

	client, err := elasticsearch.NewClient(esCfg)
	if err != nil {
		return nil, syncerrors.Wrap(err, syncerrors.ErrorTypeConfig, "failed to create elasticsearch client")
	}

	// Every Load must send at least once.
	if attempts < 1 {
		attempts = 1
	}

	return &Loader{
		client:   client,
		index:    cfg.Index,
		attempts: attempts,
		policy:   policy,
	}, nil
}

// newLoaderWithClient is used by tests to inject a client backed by a
// fake transport.
func newLoaderWithClient(client *elasticsearch.Client, index string, attempts int, policy backoff.Policy) *Loader {
	return &Loader{client: client, index: index, attempts: attempts, policy: policy}
}

// Ping verifies the cluster is reachable.
func (l *Loader) Ping(ctx context.Context) error {
	res, err := l.client.Ping(l.client.Ping.WithContext(ctx))
	if err != nil {
		return syncerrors.Wrap(err, syncerrors.ErrorTypeUnavailable, "elasticsearch ping failed")
	}
	defer res.Body.Close()
	if res.IsError() {
		return syncerrors.Newf(syncerrors.ErrorTypeUnavailable, "elasticsearch ping returned %s", res.Status())
	}
	return nil
}

// EnsureIndex creates the target index with the movies mapping if it
// does not exist yet. Existing indices are left untouched.
func (l *Loader) EnsureIndex(ctx context.Context) error {
	exists, err := esapi.IndicesExistsRequest{Index: []string{l.index}}.Do(ctx, l.client)
	if err != nil {
		return syncerrors.Wrap(err, syncerrors.ErrorTypeUnavailable, "index existence check failed")
	}
	defer exists.Body.Close()

	switch exists.StatusCode {
	case http.StatusOK:
		return nil
	case http.StatusNotFound:
	default:
		return syncerrors.Newf(syncerrors.ErrorTypeUnavailable, "index existence check returned %s", exists.Status())
	}

	create, err := esapi.IndicesCreateRequest{
		Index: l.index,
		Body:  bytes.NewReader([]byte(indexMapping)),
	}.Do(ctx, l.client)
	if err != nil {
		return syncerrors.Wrap(err, syncerrors.ErrorTypeUnavailable, "index creation failed")
	}
	defer create.Body.Close()
	if create.IsError() {
		body, _ := io.ReadAll(create.Body)
		return syncerrors.Newf(syncerrors.ErrorTypeUnavailable, "index creation returned %s: %s", create.Status(), string(body))
	}

	logger.WithContext(ctx).Info("created index", zap.String("index", l.index))
	return nil
}

// Load bulk-indexes docs and reports the per-document outcome.
// Transient rejections (429 and 5xx item statuses) are retried as a
// shrinking subset with backoff; mapping rejections and other 4xx item
// statuses are permanent and reported in Failed. A transport-level
// failure is retried the same way and returned as an error only once
// attempts are exhausted, alongside whatever subset did load.
func (l *Loader) Load(ctx context.Context, docs []models.MovieDocument) (models.LoadResult, error) {
	result := models.NewLoadResult()
	if len(docs) == 0 {
		return result, nil
	}

	pending := docs
	var lastErr error
	for attempt := 0; attempt < l.attempts && len(pending) > 0; attempt++ {
		if attempt > 0 {
			if err := l.policy.Sleep(ctx, attempt-1); err != nil {
				return result, err
			}
			logger.WithContext(ctx).Warn("retrying bulk load subset",
				zap.Int("attempt", attempt+1),
				zap.Int("documents", len(pending)))
		}

		retryable, err := l.bulkOnce(ctx, pending, &result)
		if err != nil {
			lastErr = err
			continue
		}
		lastErr = nil
		pending = retryable
	}

	if lastErr != nil {
		return result, lastErr
	}
	for _, doc := range pending {
		// Retries exhausted; surface the transient failure reason
		// recorded from the last response.
		if _, ok := result.Failed[doc.ID]; !ok {
			result.Failed[doc.ID] = "retries exhausted"
		}
	}
	return result, nil
}

// bulkOnce sends one bulk request for docs, folds outcomes into result,
// and returns the subset worth retrying.
func (l *Loader) bulkOnce(ctx context.Context, docs []models.MovieDocument, result *models.LoadResult) ([]models.MovieDocument, error) {
	body, err := encodeBulkBody(l.index, docs)
	if err != nil {
		return nil, syncerrors.Wrap(err, syncerrors.ErrorTypePartialLoad, "failed to encode bulk body")
	}

	res, err := l.client.Bulk(bytes.NewReader(body),
		l.client.Bulk.WithContext(ctx),
		l.client.Bulk.WithIndex(l.index))
	if err != nil {
		return nil, syncerrors.Wrap(err, syncerrors.ErrorTypeUnavailable, "bulk request failed")
	}
	defer res.Body.Close()

	if res.IsError() {
		raw, _ := io.ReadAll(res.Body)
		return nil, syncerrors.Newf(syncerrors.ErrorTypeUnavailable, "bulk request returned %s: %s", res.Status(), string(raw))
	}

	var parsed bulkResponse
	if err := json.NewDecoder(res.Body).Decode(&parsed); err != nil {
		return nil, syncerrors.Wrap(err, syncerrors.ErrorTypePartialLoad, "failed to decode bulk response")
	}

	byID := make(map[string]models.MovieDocument, len(docs))
	for _, doc := range docs {
		byID[doc.ID] = doc
	}

	var retryable []models.MovieDocument
	for _, item := range parsed.Items {
		outcome := item.Index
		switch {
		case outcome.Status >= 200 && outcome.Status < 300:
			result.Succeeded[outcome.ID] = struct{}{}
			delete(result.Failed, outcome.ID)
		case outcome.Status == http.StatusTooManyRequests || outcome.Status >= 500:
			result.Failed[outcome.ID] = outcome.reason()
			if doc, ok := byID[outcome.ID]; ok {
				retryable = append(retryable, doc)
			}
		default:
			result.Failed[outcome.ID] = outcome.reason()
		}
	}
	return retryable, nil
}

type bulkResponse struct {
	Errors bool `json:"errors"`
	Items  []struct {
		Index bulkItem `json:"index"`
	} `json:"items"`
}

type bulkItem struct {
	ID     string `json:"_id"`
	Status int    `json:"status"`
	Error  *struct {
		Type   string `json:"type"`
		Reason string `json:"reason"`
	} `json:"error"`
}

func (i bulkItem) reason() string {
	if i.Error == nil {
		return fmt.Sprintf("status %d", i.Status)
	}
	return fmt.Sprintf("%s: %s", i.Error.Type, i.Error.Reason)
}

func encodeBulkBody(index string, docs []models.MovieDocument) ([]byte, error) {
	var buf bytes.Buffer
	for _, doc := range docs {
		meta := map[string]map[string]string{
			"index": {"_index": index, "_id": doc.ID},
		}
		if err := json.NewEncoder(&buf).Encode(meta); err != nil {
			return nil, err
		}
		if err := json.NewEncoder(&buf).Encode(doc); err != nil {
			return nil, err
		}
	}
	return buf.Bytes(), nil
}
