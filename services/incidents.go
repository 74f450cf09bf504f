package services

import (
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"notebook-bridge/models"
)

// Vorschauen in Incident-Reports werden hart gekürzt, um Log- und
// Tabellenvolumen zu begrenzen.
const incidentPreviewLimit = 100

// IncidentReporter protokolliert Antworten in der falschen Sprache.
// Submit ist fire-and-forget: der Request-Pfad wartet nie auf einen Report,
// und Fehler beim Schreiben bleiben im Worker.
type IncidentReporter struct {
	Store   IncidentStore
	Logger  *zap.Logger
	Counter prometheus.Counter

	queue chan models.LanguageIncident
	done  chan struct{}
}

// IncidentStore ist der minimale Persistenz-Ausschnitt für Incidents.
type IncidentStore interface {
	AppendIncident(inc *models.LanguageIncident) error
}

// NewIncidentReporter erstellt den Reporter und startet den Worker.
func NewIncidentReporter(store IncidentStore, logger *zap.Logger, queueSize int) *IncidentReporter {
	if queueSize <= 0 {
		queueSize = 64
	}
	r := &IncidentReporter{
		Store:  store,
		Logger: logger,
		queue:  make(chan models.LanguageIncident, queueSize),
		done:   make(chan struct{}),
	}
	go r.run()
	return r
}

// Submit reiht einen Incident ein. Blockiert nie: bei vollem Puffer wird der
// Report verworfen und nur geloggt.
func (r *IncidentReporter) Submit(userKey, expectedLang, detectedLang, question, answer string) {
	inc := models.LanguageIncident{
		UserKey:          userKey,
		ExpectedLanguage: expectedLang,
		DetectedLanguage: detectedLang,
		QuestionPreview:  truncate(question, incidentPreviewLimit),
		AnswerPreview:    truncate(answer, incidentPreviewLimit),
	}

	select {
	case r.queue <- inc:
	default:
		r.Logger.Warn("Incident queue full, dropping language incident",
			zap.String("user_key", userKey),
			zap.String("expected_lang", expectedLang),
			zap.String("detected_lang", detectedLang))
	}
}

// Close stoppt den Worker, nachdem die Queue geleert wurde.
func (r *IncidentReporter) Close() {
	close(r.queue)
	<-r.done
}

func (r *IncidentReporter) run() {
	defer close(r.done)
	for inc := range r.queue {
		r.Logger.Warn("AI responded in wrong language",
			zap.String("user_key", inc.UserKey),
			zap.String("expected_lang", inc.ExpectedLanguage),
			zap.String("detected_lang", inc.DetectedLanguage),
			zap.String("question_preview", inc.QuestionPreview),
			zap.String("answer_preview", inc.AnswerPreview))

		if r.Counter != nil {
			r.Counter.Inc()
		}
		if r.Store != nil {
			if err := r.Store.AppendIncident(&inc); err != nil {
				r.Logger.Error("Failed to persist language incident", zap.Error(err))
			}
		}
	}
}

func truncate(s string, limit int) string {
	if len(s) > limit {
		return s[:limit]
	}
	return s
}
