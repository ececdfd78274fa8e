package pje

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/go-resty/resty/v2"
	"go.uber.org/zap"
)

// SearchClient looks up a single process by number against the portal API
// and drives the captcha resolver once the process id is known.
type SearchClient struct {
	resolver *ChallengeResolver
	logger   *zap.Logger
}

// NewSearchClient builds a SearchClient around the given resolver.
func NewSearchClient(resolver *ChallengeResolver, logger *zap.Logger) *SearchClient {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &SearchClient{resolver: resolver, logger: logger}
}

// Search resolves item's process number to a full process document.
// Returns ErrProcessNotFound when the portal has no usable record: the
// portal answers 403 for both unauthorized and absent processes, and a
// non-JSON or id-less body is treated the same way.
func (c *SearchClient) Search(ctx context.Context, client *resty.Client, pid string, row int, item WorkItem) (*SearchResult, error) {
	resp, err := client.R().
		SetContext(ctx).
		Get("/processos/dadosbasicos/" + item.ProcessNumber)
	if err != nil {
		return nil, fmt.Errorf("fetch basic data: %w", err)
	}
	if resp.StatusCode() == http.StatusForbidden {
		return nil, ErrProcessNotFound
	}

	processID, ok := extractProcessID(resp.Body())
	if !ok {
		c.logger.Debug("basic data response has no usable id",
			zap.String("process_number", item.ProcessNumber),
			zap.Int("status", resp.StatusCode()),
		)
		return nil, ErrProcessNotFound
	}
	return c.resolver.Resolve(ctx, client, pid, row, processID)
}

// extractProcessID pulls the numeric id out of a basic-data response.
// The portal sometimes wraps the document in a single-element list; the
// first element wins in that case.
func extractProcessID(body []byte) (string, bool) {
	dec := json.NewDecoder(bytes.NewReader(body))
	dec.UseNumber()
	var raw any
	if err := dec.Decode(&raw); err != nil {
		return "", false
	}
	if list, isList := raw.([]any); isList {
		if len(list) == 0 {
			return "", false
		}
		raw = list[0]
	}
	doc, isDoc := raw.(map[string]any)
	if !isDoc {
		return "", false
	}
	switch id := doc["id"].(type) {
	case json.Number:
		return id.String(), true
	case string:
		if id != "" {
			return id, true
		}
	}
	return "", false
}
