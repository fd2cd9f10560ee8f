package sandbox

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
)

func TestJudge0ClientExecute(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, http.MethodPost, r.Method)
		require.Equal(t, "/submissions", r.URL.Path)
		require.Equal(t, "false", r.URL.Query().Get("base64_encoded"))
		require.Equal(t, "true", r.URL.Query().Get("wait"))
		require.Equal(t, "secret", r.Header.Get("X-Auth-Token"))

		var body map[string]interface{}
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		require.Equal(t, "print(input())", body["source_code"])
		require.EqualValues(t, 71, body["language_id"])
		require.Equal(t, "4", body["stdin"])

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusCreated)
		_, _ = w.Write([]byte(`{"status":{"id":3,"description":"Accepted"},"stdout":"4\n","stderr":null,"compile_output":null,"message":null}`))
	}))
	defer server.Close()

	client, err := NewJudge0Client(Judge0Config{BaseURL: server.URL + "/", AuthToken: "secret", Logger: zerolog.Nop()})
	require.NoError(t, err)

	result, err := client.Execute(context.Background(), Submission{SourceCode: "print(input())", LanguageID: 71, Stdin: "4"})
	require.NoError(t, err)
	require.Equal(t, "Accepted", result.Status)
	require.Equal(t, "4\n", result.Stdout)
	require.Empty(t, result.Stderr)
}

func TestJudge0ClientNonSuccessIsUnavailable(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer server.Close()

	client, err := NewJudge0Client(Judge0Config{BaseURL: server.URL, Logger: zerolog.Nop()})
	require.NoError(t, err)

	_, err = client.Execute(context.Background(), Submission{SourceCode: "x", LanguageID: 71})
	require.ErrorIs(t, err, ErrUnavailable)
}

func TestJudge0ClientTimeoutIsUnavailable(t *testing.T) {
	release := make(chan struct{})
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-release:
		case <-r.Context().Done():
		}
	}))
	defer server.Close()
	defer close(release)

	client, err := NewJudge0Client(Judge0Config{BaseURL: server.URL, Timeout: 50 * time.Millisecond, Logger: zerolog.Nop()})
	require.NoError(t, err)

	_, err = client.Execute(context.Background(), Submission{SourceCode: "x", LanguageID: 71})
	require.ErrorIs(t, err, ErrUnavailable)
}

func TestJudge0ClientUnreachable(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	url := server.URL
	server.Close()

	client, err := NewJudge0Client(Judge0Config{BaseURL: url, Logger: zerolog.Nop()})
	require.NoError(t, err)

	_, err = client.Execute(context.Background(), Submission{SourceCode: "x", LanguageID: 71})
	require.ErrorIs(t, err, ErrUnavailable)
}

func TestNewJudge0ClientRequiresURL(t *testing.T) {
	_, err := NewJudge0Client(Judge0Config{BaseURL: "  "})
	require.Error(t, err)
}
