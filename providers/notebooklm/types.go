package notebooklm

import "time"

// Notebook repräsentiert ein Notebook im Backend.
type Notebook struct {
	ID        string    `json:"id"`
	Title     string    `json:"title"`
	CreatedAt time.Time `json:"created_at,omitempty"`
}

// SourceDescriptor beschreibt eine Quelle im Backend.
type SourceDescriptor struct {
	ID    string `json:"id"`
	Title string `json:"title"`
	Kind  string `json:"kind"`
}

// AskResult ist die Antwort des Backends auf eine RAG-Anfrage.
// ConversationID ist optional; das Backend liefert sie nicht immer.
type AskResult struct {
	Answer         string   `json:"answer"`
	SourcesUsed    []string `json:"sources_used"`
	ConversationID string   `json:"conversation_id,omitempty"`
}

// ArtifactResult ist die Antwort auf eine Artefakt-Generierung.
type ArtifactResult struct {
	TaskID string `json:"task_id"`
	Status string `json:"status,omitempty"`
}

type createNotebookRequest struct {
	Title string `json:"title"`
}

type addURLSourceRequest struct {
	URL string `json:"url"`
}

type addTextSourceRequest struct {
	Title   string `json:"title"`
	Content string `json:"content"`
}

type askRequest struct {
	Question string `json:"question"`
}

type artifactRequest struct {
	Kind string `json:"kind"`
}

type listNotebooksResponse struct {
	Notebooks []Notebook `json:"notebooks"`
}

type listSourcesResponse struct {
	Sources []SourceDescriptor `json:"sources"`
}
