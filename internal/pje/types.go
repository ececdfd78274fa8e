// Package pje defines core types shared across the search/download pipeline.
package pje

import (
	"net/http"
	"time"

	"github.com/go-resty/resty/v2"
)

// WorkItem is one row of input data to process for a single legal case.
// ProcessNumber is overwritten with its canonical CNJ form during
// partitioning; Fields carries arbitrary business columns untouched.
type WorkItem struct {
	ProcessNumber string            `json:"process_number"`
	RegionKey     string            `json:"region_key,omitempty"`
	Fields        map[string]string `json:"fields,omitempty"`
}

// Session is the per-region credential bundle extracted from an
// authenticated browser context. It is owned by the scheduler for the
// lifetime of one region's processing and discarded afterward.
type Session struct {
	RegionKey  string
	Cookies    []*http.Cookie
	Headers    http.Header
	BaseURL    string
	ObtainedAt time.Time
}

// NewClient builds an HTTP client bound to the session's portal instance.
// The slow browser login happens once per region; all API calls that
// follow reuse its cookies through this client.
func (s *Session) NewClient(timeout time.Duration) *resty.Client {
	client := resty.New().
		SetBaseURL(s.BaseURL).
		SetTimeout(timeout)
	for key, values := range s.Headers {
		for _, value := range values {
			client.SetHeader(key, value)
		}
	}
	if len(s.Cookies) > 0 {
		client.SetCookies(s.Cookies)
	}
	return client
}

// SearchResult is returned once a process is found and its captcha solved.
// It is transient: handed to the result cache and the download pipeline,
// then discarded.
type SearchResult struct {
	ProcessID    string
	CaptchaToken string
	SolvedText   string
	ProcessData  map[string]any
}

// CachedEntry is the durable record written by the result cache, keyed
// uniquely by ProcessNumber. Re-saving overwrites.
type CachedEntry struct {
	ProcessNumber string         `json:"process_number"`
	ExecutionID   string         `json:"execution_id"`
	ProcessData   map[string]any `json:"process_data"`
}
