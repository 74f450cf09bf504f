package models

import (
	"time"
)

// AnalysisRecord ist ein Frage/Antwort-Eintrag in der Historie eines user_key.
// Die Historie ist append-only und lebt unabhängig vom NotebookMapping.
type AnalysisRecord struct {
	ID        string    `json:"id" gorm:"primaryKey"`
	CreatedAt time.Time `json:"created_at" gorm:"index"`

	UserKey     string   `json:"user_key" gorm:"index;not null"`
	Question    string   `json:"question" gorm:"type:text"`
	Answer      string   `json:"answer" gorm:"type:text"`
	SourcesUsed []string `json:"sources_used" gorm:"serializer:json"`

	TargetLanguage string `json:"target_language,omitempty"`
	WasTranslated  bool   `json:"was_translated"`
}

// LanguageIncident protokolliert eine Antwort in der falschen Sprache.
// Wird asynchron geschrieben und darf den Request-Pfad nie blockieren.
type LanguageIncident struct {
	ID        uint      `json:"id" gorm:"primaryKey"`
	CreatedAt time.Time `json:"created_at"`

	UserKey          string `json:"user_key" gorm:"index"`
	ExpectedLanguage string `json:"expected_language"`
	DetectedLanguage string `json:"detected_language"`
	QuestionPreview  string `json:"question_preview"`
	AnswerPreview    string `json:"answer_preview"`
}
