package captcha

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestHTTPSolverPostsImage(t *testing.T) {
	t.Parallel()

	image := []byte("captcha-bytes")
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "Bearer key-123", r.Header.Get("Authorization"))
		var req struct {
			Image string `json:"image"`
		}
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		require.Equal(t, base64.StdEncoding.EncodeToString(image), req.Image)

		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, `{"text":" abc12 "}`)
	}))
	t.Cleanup(server.Close)

	solver, err := NewHTTPSolver(Config{Endpoint: server.URL, APIKey: "key-123"})
	require.NoError(t, err)

	text, err := solver.Solve(context.Background(), image)
	require.NoError(t, err)
	require.Equal(t, "abc12", text)
}

func TestHTTPSolverServiceError(t *testing.T) {
	t.Parallel()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, `{"error":"unreadable image"}`)
	}))
	t.Cleanup(server.Close)

	solver, err := NewHTTPSolver(Config{Endpoint: server.URL})
	require.NoError(t, err)

	_, err = solver.Solve(context.Background(), []byte("x"))
	require.ErrorContains(t, err, "unreadable image")
}

func TestHTTPSolverNonOKStatus(t *testing.T) {
	t.Parallel()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	t.Cleanup(server.Close)

	solver, err := NewHTTPSolver(Config{Endpoint: server.URL})
	require.NoError(t, err)

	_, err = solver.Solve(context.Background(), []byte("x"))
	require.ErrorContains(t, err, "status 503")
}

func TestHTTPSolverRequiresEndpoint(t *testing.T) {
	t.Parallel()

	_, err := NewHTTPSolver(Config{})
	require.Error(t, err)
}

func TestStaticSolver(t *testing.T) {
	t.Parallel()

	s := &Static{Text: "fixed"}
	text, err := s.Solve(context.Background(), nil)
	require.NoError(t, err)
	require.Equal(t, "fixed", text)
}
