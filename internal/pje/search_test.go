package pje

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-resty/resty/v2"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func newSearchPortal(t *testing.T, basicDataStatus int, basicDataBody string) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("/processos/dadosbasicos/", func(w http.ResponseWriter, r *http.Request) {
		if basicDataStatus != http.StatusOK {
			w.WriteHeader(basicDataStatus)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, basicDataBody)
	})
	mux.HandleFunc("/captcha", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprintf(w, `{"imagem":%q,"tokenDesafio":"c0"}`, fakeChallengeImage())
	})
	mux.HandleFunc("/processos/", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Header().Set("captchatoken", "tok")
		fmt.Fprint(w, `{"id":777,"classe":"RTOrd"}`)
	})
	server := httptest.NewServer(mux)
	t.Cleanup(server.Close)
	return server
}

func newSearchClientForTest(reporter *recordingEmitter) *SearchClient {
	resolver := newTestResolver(reporter, 15)
	return NewSearchClient(resolver, zap.NewNop())
}

func TestSearchResolvesProcess(t *testing.T) {
	t.Parallel()

	server := newSearchPortal(t, http.StatusOK, `{"id":777}`)
	client := resty.New().SetBaseURL(server.URL)
	search := newSearchClientForTest(&recordingEmitter{})

	result, err := search.Search(context.Background(), client, "pid-1", 1,
		WorkItem{ProcessNumber: "0000123-45.2023.5.02.0001"})
	require.NoError(t, err)
	require.Equal(t, "777", result.ProcessID)
	require.Equal(t, "tok", result.CaptchaToken)
}

func TestSearchUsesFirstElementOfList(t *testing.T) {
	t.Parallel()

	server := newSearchPortal(t, http.StatusOK, `[{"id":111},{"id":222}]`)
	client := resty.New().SetBaseURL(server.URL)
	search := newSearchClientForTest(&recordingEmitter{})

	result, err := search.Search(context.Background(), client, "pid-1", 1,
		WorkItem{ProcessNumber: "0000123-45.2023.5.02.0001"})
	require.NoError(t, err)
	require.Equal(t, "111", result.ProcessID)
}

func TestSearchTreatsForbiddenAsNotFound(t *testing.T) {
	t.Parallel()

	server := newSearchPortal(t, http.StatusForbidden, "")
	client := resty.New().SetBaseURL(server.URL)
	search := newSearchClientForTest(&recordingEmitter{})

	_, err := search.Search(context.Background(), client, "pid-1", 1,
		WorkItem{ProcessNumber: "0000123-45.2023.5.02.0001"})
	require.ErrorIs(t, err, ErrProcessNotFound)
}

func TestSearchTreatsUnusableBodyAsNotFound(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		body string
	}{
		{name: "html error page", body: `<html>maintenance</html>`},
		{name: "empty list", body: `[]`},
		{name: "document without id", body: `{"classe":"RTOrd"}`},
		{name: "empty string id", body: `{"id":""}`},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			server := newSearchPortal(t, http.StatusOK, tc.body)
			client := resty.New().SetBaseURL(server.URL)
			search := newSearchClientForTest(&recordingEmitter{})

			_, err := search.Search(context.Background(), client, "pid-1", 1,
				WorkItem{ProcessNumber: "0000123-45.2023.5.02.0001"})
			require.ErrorIs(t, err, ErrProcessNotFound)
		})
	}
}
