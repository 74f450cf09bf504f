package services

import (
	"context"

	"notebook-bridge/providers/notebooklm"
)

// NotebookBackend ist der Ausschnitt des Backend-Clients, den die Services
// benötigen. Als Interface, damit Tests das Backend ersetzen können.
type NotebookBackend interface {
	Create(ctx context.Context, title string) (string, error)
	Get(ctx context.Context, notebookID string) (*notebooklm.Notebook, error)
	Delete(ctx context.Context, notebookID string) error
	AddURLSource(ctx context.Context, notebookID, url string) error
	AddTextSource(ctx context.Context, notebookID, title, content string) error
	Ask(ctx context.Context, notebookID, prompt string) (*notebooklm.AskResult, error)
	GenerateArtifact(ctx context.Context, notebookID, kind string) (*notebooklm.ArtifactResult, error)
}

// Translator übersetzt eine Antwort in die Zielsprache. Implementierungen
// müssen fail-open sein und bei Fehlern den Originaltext zurückgeben.
type Translator interface {
	Translate(ctx context.Context, text, sourceLang, targetLang string) (string, bool)
}
