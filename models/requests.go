package models

import "time"

// CreateNotebookRequest legt ein Notebook an oder liefert das bestehende.
type CreateNotebookRequest struct {
	UserEmail         string `json:"user_email" binding:"required,email"`
	Category          string `json:"category"`
	NotebookName      string `json:"notebook_name"`
	PreferredLanguage string `json:"preferred_language"`
}

// AddSourceRequest fügt dem Notebook eines Users eine Quelle hinzu.
type AddSourceRequest struct {
	UserEmail  string `json:"user_email" binding:"required,email"`
	Category   string `json:"category"`
	SourceType string `json:"source_type" binding:"required,oneof=url file text video"`
	Content    string `json:"content" binding:"required"`
	Title      string `json:"title"`
	AutoCreate bool   `json:"auto_create"`
}

// AddChessGameRequest fügt eine Partie (PGN + optionale Analyse) hinzu.
type AddChessGameRequest struct {
	UserEmail string `json:"user_email" binding:"required,email"`
	Category  string `json:"category"`
	PGN       string `json:"pgn" binding:"required"`
	GameTitle string `json:"game_title"`
	Analysis  string `json:"analysis"`
}

// SaveNoteRequest speichert eine Notiz und legt das Notebook bei Bedarf an.
type SaveNoteRequest struct {
	UserEmail         string `json:"user_email" binding:"required,email"`
	Category          string `json:"category"`
	Content           string `json:"content" binding:"required"`
	Title             string `json:"title"`
	NotebookName      string `json:"notebook_name"`
	PreferredLanguage string `json:"preferred_language"`
}

// SaveNoteResponse meldet das Ergebnis inkl. ob ein Notebook neu angelegt wurde.
type SaveNoteResponse struct {
	Success         bool   `json:"success"`
	NotebookID      string `json:"notebook_id"`
	NotebookName    string `json:"notebook_name"`
	NotebookCreated bool   `json:"notebook_created"`
	Message         string `json:"message"`
}

// AskQuestionRequest stellt eine Frage gegen das Notebook eines Users.
type AskQuestionRequest struct {
	UserEmail      string `json:"user_email" binding:"required,email"`
	Category       string `json:"category"`
	Question       string `json:"question" binding:"required"`
	ConversationID string `json:"conversation_id"`
}

// AskQuestionResponse ist die (ggf. nachübersetzte) Antwort samt Metadaten.
type AskQuestionResponse struct {
	Answer         string   `json:"answer"`
	SourcesUsed    []string `json:"sources_used"`
	ConversationID string   `json:"conversation_id,omitempty"`
	TargetLanguage string   `json:"target_language"`
	WasTranslated  bool     `json:"was_translated"`
}

// GenerateContentRequest stößt die Artefakt-Generierung im Backend an.
type GenerateContentRequest struct {
	UserEmail   string `json:"user_email" binding:"required,email"`
	Category    string `json:"category"`
	ContentType string `json:"content_type" binding:"required,oneof=podcast quiz"`
	Topic       string `json:"topic"`
}

// GenerateContentResponse liefert die Task-ID der laufenden Generierung.
type GenerateContentResponse struct {
	TaskID string `json:"task_id"`
	Status string `json:"status"`
}

// NotebookInfo ist die API-Sicht auf ein Mapping.
type NotebookInfo struct {
	UserKey           string    `json:"user_key"`
	UserEmail         string    `json:"user_email"`
	Category          string    `json:"category"`
	NotebookID        string    `json:"notebook_id"`
	NotebookName      string    `json:"notebook_name"`
	PreferredLanguage string    `json:"preferred_language"`
	SourceCount       int       `json:"source_count"`
	CreatedAt         time.Time `json:"created_at"`
	UpdatedAt         time.Time `json:"updated_at"`
}

// NewNotebookInfo projiziert ein Mapping auf die API-Sicht.
func NewNotebookInfo(m *NotebookMapping, sourceCount int) NotebookInfo {
	return NotebookInfo{
		UserKey:           m.UserKey,
		UserEmail:         m.UserEmail,
		Category:          m.Category,
		NotebookID:        m.NotebookID,
		NotebookName:      m.NotebookName,
		PreferredLanguage: m.PreferredLanguage,
		SourceCount:       sourceCount,
		CreatedAt:         m.CreatedAt,
		UpdatedAt:         m.UpdatedAt,
	}
}

// HealthResponse ist die Antwort des Health-Endpoints.
type HealthResponse struct {
	Status               string `json:"status"`
	Service              string `json:"service"`
	Version              string `json:"version"`
	BackendAuthenticated bool   `json:"backend_authenticated"`
}
