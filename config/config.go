package config

import (
	"fmt"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
)

// Config enthält alle Konfigurationsparameter aus Umgebungsvariablen.
type Config struct {
	DBHost     string `envconfig:"DB_HOST" required:"true"`
	DBPort     int    `envconfig:"DB_PORT" default:"5432"`
	DBUser     string `envconfig:"DB_USER" required:"true"`
	DBPassword string `envconfig:"DB_PASSWORD" required:"true"`
	DBName     string `envconfig:"DB_NAME" required:"true"`

	HTTPPort     string `envconfig:"HTTP_PORT" default:"3034"`
	APISecretKey string `envconfig:"API_SECRET_KEY"`

	// Notebook-Backend (externer NotebookLM-Bridge-Dienst)
	BackendBaseURL        string `envconfig:"BACKEND_BASE_URL" default:"http://localhost:3036"`
	BackendTimeoutSeconds int    `envconfig:"BACKEND_TIMEOUT_SECONDS" default:"60"`

	// Übersetzungs-Service (Fallback, wenn die Antwort in der falschen Sprache kommt)
	TranslationBaseURL        string `envconfig:"TRANSLATION_BASE_URL" default:"http://localhost:3035"`
	TranslationTimeoutSeconds int    `envconfig:"TRANSLATION_TIMEOUT_SECONDS" default:"30"`

	// Keep-Alive-Job: prüft regelmäßig, ob die Backend-Session noch gültig ist
	KeepAliveSchedule string `envconfig:"KEEP_ALIVE_SCHEDULE" default:"*/15 * * * *"`

	// Kategorie-Fallback, wenn ein Request keine angibt
	DefaultCategory string `envconfig:"DEFAULT_CATEGORY" default:"general"`

	// Puffergröße für asynchrone Sprach-Incident-Reports
	IncidentQueueSize int `envconfig:"INCIDENT_QUEUE_SIZE" default:"64"`

	// S3 für Datei-Quellen (Datei hochladen, Link ans Backend weiterreichen)
	StratoS3Key    string `envconfig:"STRATO_S3_KEY" required:"true"`
	StratoS3Secret string `envconfig:"STRATO_S3_SECRET" required:"true"`
	StratoS3URL    string `envconfig:"STRATO_S3_URL" required:"true"`
	StratoS3Region string `envconfig:"STRATO_S3_REGION" required:"true"`
	StratoS3Bucket string `envconfig:"STRATO_S3_BUCKET" required:"true"`
}

// DSN gibt den Data Source Name für die PostgreSQL-Verbindung zurück.
func (c *Config) DSN() string {
	return fmt.Sprintf("host=%s user=%s password=%s dbname=%s port=%d sslmode=disable",
		c.DBHost, c.DBUser, c.DBPassword, c.DBName, c.DBPort)
}

// Load lädt die Konfiguration aus den Umgebungsvariablen.
func Load() (*Config, error) {
	_ = godotenv.Load()
	var c Config
	err := envconfig.Process("", &c)
	return &c, err
}
