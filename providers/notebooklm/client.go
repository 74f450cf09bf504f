package notebooklm

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"notebook-bridge/config"
)

// ErrNotFound signalisiert, dass das Backend die Ressource nicht (mehr) kennt.
// Die Registry interpretiert das als stale Mapping.
var ErrNotFound = errors.New("notebooklm: resource not found")

// ErrNotAuthenticated signalisiert eine fehlende Backend-Session.
var ErrNotAuthenticated = errors.New("notebooklm: not authenticated")

var httpClient = &http.Client{Timeout: 90 * time.Second}

// Client kapselt die HTTP-Kommunikation mit dem Notebook-Backend.
// Jeder Aufruf trägt eine explizite Deadline.
type Client struct {
	Config *config.Config
	Logger *zap.Logger

	timeout       time.Duration
	authenticated atomic.Bool
}

// NewClient erstellt einen neuen Backend-Client.
func NewClient(cfg *config.Config, logger *zap.Logger) *Client {
	return &Client{
		Config:  cfg,
		Logger:  logger,
		timeout: time.Duration(cfg.BackendTimeoutSeconds) * time.Second,
	}
}

// IsAuthenticated gibt den zuletzt geprüften Session-Status zurück.
func (c *Client) IsAuthenticated() bool {
	return c.authenticated.Load()
}

// CheckAuth prüft die Backend-Session, indem die Notebook-Liste abgerufen wird.
func (c *Client) CheckAuth(ctx context.Context) bool {
	notebooks, err := c.ListNotebooks(ctx)
	if err != nil {
		c.Logger.Error("Backend auth check failed", zap.Error(err))
		c.authenticated.Store(false)
		return false
	}
	c.authenticated.Store(true)
	c.Logger.Info("Backend auth check successful", zap.Int("notebook_count", len(notebooks)))
	return true
}

// ListNotebooks listet alle Notebooks des Accounts.
func (c *Client) ListNotebooks(ctx context.Context) ([]Notebook, error) {
	var resp listNotebooksResponse
	if err := c.doJSON(ctx, http.MethodGet, "/notebooks", nil, &resp); err != nil {
		return nil, err
	}
	return resp.Notebooks, nil
}

// Create legt ein neues Notebook an und gibt dessen ID zurück.
func (c *Client) Create(ctx context.Context, title string) (string, error) {
	var nb Notebook
	if err := c.doJSON(ctx, http.MethodPost, "/notebooks", createNotebookRequest{Title: title}, &nb); err != nil {
		return "", err
	}
	if nb.ID == "" {
		return "", fmt.Errorf("notebooklm: create returned empty id")
	}
	return nb.ID, nil
}

// Get prüft, ob das Notebook im Backend noch existiert.
func (c *Client) Get(ctx context.Context, notebookID string) (*Notebook, error) {
	var nb Notebook
	if err := c.doJSON(ctx, http.MethodGet, "/notebooks/"+notebookID, nil, &nb); err != nil {
		return nil, err
	}
	return &nb, nil
}

// Delete löscht das Notebook im Backend.
func (c *Client) Delete(ctx context.Context, notebookID string) error {
	return c.doJSON(ctx, http.MethodDelete, "/notebooks/"+notebookID, nil, nil)
}

// AddURLSource fügt dem Notebook eine URL-Quelle hinzu.
func (c *Client) AddURLSource(ctx context.Context, notebookID, url string) error {
	return c.doJSON(ctx, http.MethodPost, "/notebooks/"+notebookID+"/sources/url", addURLSourceRequest{URL: url}, nil)
}

// AddTextSource fügt dem Notebook eine Text-Quelle hinzu.
func (c *Client) AddTextSource(ctx context.Context, notebookID, title, content string) error {
	return c.doJSON(ctx, http.MethodPost, "/notebooks/"+notebookID+"/sources/text",
		addTextSourceRequest{Title: title, Content: content}, nil)
}

// ListSources listet die Quellen eines Notebooks.
func (c *Client) ListSources(ctx context.Context, notebookID string) ([]SourceDescriptor, error) {
	var resp listSourcesResponse
	if err := c.doJSON(ctx, http.MethodGet, "/notebooks/"+notebookID+"/sources", nil, &resp); err != nil {
		return nil, err
	}
	return resp.Sources, nil
}

// DeleteSource entfernt eine Quelle aus einem Notebook.
func (c *Client) DeleteSource(ctx context.Context, notebookID, sourceID string) error {
	return c.doJSON(ctx, http.MethodDelete, "/notebooks/"+notebookID+"/sources/"+sourceID, nil, nil)
}

// Ask stellt eine Frage gegen die Quellen des Notebooks (RAG-Inferenz).
func (c *Client) Ask(ctx context.Context, notebookID, prompt string) (*AskResult, error) {
	var res AskResult
	if err := c.doJSON(ctx, http.MethodPost, "/notebooks/"+notebookID+"/ask", askRequest{Question: prompt}, &res); err != nil {
		return nil, err
	}
	return &res, nil
}

// GenerateArtifact stößt die Generierung eines Artefakts (podcast, quiz) an.
func (c *Client) GenerateArtifact(ctx context.Context, notebookID, kind string) (*ArtifactResult, error) {
	var res ArtifactResult
	if err := c.doJSON(ctx, http.MethodPost, "/notebooks/"+notebookID+"/artifacts", artifactRequest{Kind: kind}, &res); err != nil {
		return nil, err
	}
	if res.Status == "" {
		res.Status = "processing"
	}
	return &res, nil
}

// doJSON führt einen Request mit Deadline aus und dekodiert die JSON-Antwort.
func (c *Client) doJSON(ctx context.Context, method, path string, body, out interface{}) error {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return err
		}
		reader = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.Config.BackendBaseURL+path, reader)
	if err != nil {
		return err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusNotFound:
		return ErrNotFound
	case resp.StatusCode == http.StatusUnauthorized:
		return ErrNotAuthenticated
	case resp.StatusCode < 200 || resp.StatusCode > 299:
		return fmt.Errorf("notebooklm: %s %s failed with status %d", method, path, resp.StatusCode)
	}

	if out == nil {
		return nil
	}
	return json.NewDecoder(resp.Body).Decode(out)
}
