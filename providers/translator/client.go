package translator

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"time"

	"go.uber.org/zap"

	"notebook-bridge/config"
)

// Client kapselt den HTTP-Aufruf des Übersetzungs-Service.
// Der Aufruf ist strikt fail-open: bei Timeout, Fehlerstatus oder sonstigen
// Fehlern kommt der Originaltext unverändert zurück.
type Client struct {
	Config *config.Config
	Logger *zap.Logger

	httpClient *http.Client
}

type translateRequest struct {
	Text        string `json:"text"`
	Source      string `json:"source"`
	Target      string `json:"target"`
	UseGlossary bool   `json:"use_glossary"`
}

type translateResponse struct {
	Translated string `json:"translated"`
}

// NewClient erstellt einen neuen Übersetzungs-Client.
func NewClient(cfg *config.Config, logger *zap.Logger) *Client {
	return &Client{
		Config: cfg,
		Logger: logger,
		httpClient: &http.Client{
			Timeout: time.Duration(cfg.TranslationTimeoutSeconds) * time.Second,
		},
	}
}

// Translate übersetzt eine Antwort in die Zielsprache. Bei gleicher Quell- und
// Zielsprache wird kein Request ausgeführt. Der zweite Rückgabewert meldet,
// ob die Übersetzung tatsächlich angewendet wurde.
func (c *Client) Translate(ctx context.Context, text, sourceLang, targetLang string) (string, bool) {
	if sourceLang == targetLang {
		return text, false
	}

	payload, err := json.Marshal(translateRequest{
		Text:        text,
		Source:      sourceLang,
		Target:      targetLang,
		UseGlossary: true,
	})
	if err != nil {
		return text, false
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.Config.TranslationBaseURL+"/translate", bytes.NewReader(payload))
	if err != nil {
		return text, false
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.Logger.Warn("Translation service unreachable",
			zap.String("source_lang", sourceLang),
			zap.String("target_lang", targetLang),
			zap.Int("text_length", len(text)),
			zap.Error(err))
		return text, false
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		c.Logger.Error("Translation service returned error status",
			zap.Int("status_code", resp.StatusCode),
			zap.String("source_lang", sourceLang),
			zap.String("target_lang", targetLang))
		return text, false
	}

	var result translateResponse
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		c.Logger.Error("Failed to decode translation response", zap.Error(err))
		return text, false
	}
	if result.Translated == "" {
		return text, false
	}
	return result.Translated, true
}
