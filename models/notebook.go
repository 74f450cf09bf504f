package models

import (
	"strings"
	"time"
)

// Trennzeichen zwischen User-Identität und Kategorie im user_key.
const UserKeySeparator = "::"

// Quellinhalte werden lokal nur als begrenzte Vorschau gespeichert.
const SourcePreviewLimit = 2000

// Quelltypen, die ein Notebook aufnehmen kann.
const (
	SourceTypeURL   = "url"
	SourceTypeFile  = "file"
	SourceTypeText  = "text"
	SourceTypeVideo = "video"
)

// NotebookMapping verknüpft einen user_key mit dem extern angelegten Notebook.
// Pro user_key existiert höchstens ein Mapping; die notebook_id ändert sich nur,
// wenn das Mapping nach Staleness komplett neu angelegt wird.
type NotebookMapping struct {
	ID        uint      `json:"id" gorm:"primaryKey"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`

	UserKey   string `json:"user_key" gorm:"uniqueIndex;not null"`
	UserEmail string `json:"user_email" gorm:"index"`
	Category  string `json:"category"`

	NotebookID        string `json:"notebook_id" gorm:"not null"`
	NotebookName      string `json:"notebook_name"`
	PreferredLanguage string `json:"preferred_language" gorm:"default:en"`
	GlossaryVersion   int    `json:"glossary_version"`

	Sources []SourceRecord `json:"sources,omitempty" gorm:"foreignKey:UserKey;references:UserKey"`
}

// SourceRecord ist eine dem Notebook hinzugefügte Quelle. Nach dem Anhängen
// unveränderlich; gehört exklusiv zu ihrem Mapping.
type SourceRecord struct {
	ID        uint      `json:"id" gorm:"primaryKey"`
	CreatedAt time.Time `json:"added_at"`

	UserKey    string `json:"-" gorm:"index;not null"`
	SourceType string `json:"source_type" gorm:"index"`
	Content    string `json:"content" gorm:"type:text"`
	Title      string `json:"title,omitempty"`
}

// UserKey baut den deterministischen Lookup-Key aus E-Mail und Kategorie.
func UserKey(email, category string) string {
	return email + UserKeySeparator + category
}

// SplitUserKey zerlegt einen user_key wieder in E-Mail und Kategorie.
// Es wird am letzten Separator getrennt, damit E-Mails mit ':' stabil bleiben.
func SplitUserKey(key string) (email, category string) {
	idx := strings.LastIndex(key, UserKeySeparator)
	if idx < 0 {
		return key, ""
	}
	return key[:idx], key[idx+len(UserKeySeparator):]
}

// Preview kürzt Quellinhalte auf die Speichergrenze.
func Preview(content string) string {
	if len(content) > SourcePreviewLimit {
		return content[:SourcePreviewLimit]
	}
	return content
}
