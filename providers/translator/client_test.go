package translator

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"

	"notebook-bridge/config"
)

func testClient(baseURL string, timeoutSeconds int) *Client {
	return NewClient(&config.Config{
		TranslationBaseURL:        baseURL,
		TranslationTimeoutSeconds: timeoutSeconds,
	}, zap.NewNop())
}

func TestTranslateSkipsSameLanguage(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
	}))
	defer srv.Close()

	client := testClient(srv.URL, 5)
	text, applied := client.Translate(context.Background(), "hola", "es", "es")

	assert.Equal(t, "hola", text)
	assert.False(t, applied)
	assert.Equal(t, int32(0), calls.Load())
}

func TestTranslateSuccess(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/translate", r.URL.Path)
		var req map[string]any
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "en", req["source"])
		assert.Equal(t, "es", req["target"])
		assert.Equal(t, true, req["use_glossary"])
		json.NewEncoder(w).Encode(map[string]string{"translated": "El caballo gana la dama."})
	}))
	defer srv.Close()

	client := testClient(srv.URL, 5)
	text, applied := client.Translate(context.Background(), "The knight wins the queen.", "en", "es")

	assert.True(t, applied)
	assert.Equal(t, "El caballo gana la dama.", text)
}

func TestTranslateFailsOpenOnErrorStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "boom", http.StatusInternalServerError)
	}))
	defer srv.Close()

	client := testClient(srv.URL, 5)
	text, applied := client.Translate(context.Background(), "original", "en", "es")

	assert.False(t, applied)
	assert.Equal(t, "original", text)
}

func TestTranslateFailsOpenOnTimeout(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(3 * time.Second)
	}))
	defer srv.Close()

	client := testClient(srv.URL, 1)
	start := time.Now()
	text, applied := client.Translate(context.Background(), "original", "en", "es")

	assert.False(t, applied)
	assert.Equal(t, "original", text)
	assert.Less(t, time.Since(start), 2500*time.Millisecond)
}

func TestTranslateFailsOpenOnEmptyResult(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]string{"translated": ""})
	}))
	defer srv.Close()

	client := testClient(srv.URL, 5)
	text, applied := client.Translate(context.Background(), "original", "en", "es")

	assert.False(t, applied)
	assert.Equal(t, "original", text)
}
