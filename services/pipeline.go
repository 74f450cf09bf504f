package services

import (
	"context"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"notebook-bridge/models"
	"notebook-bridge/storage"
)

// LanguagePipeline orchestriert einen Frage/Antwort-Austausch:
// Detect -> Augment -> Dispatch -> Verify -> Finalize. Sprachverifikation und
// Übersetzungs-Fallback dürfen den Aufruf nie scheitern lassen; nur ein
// Backend-Fehler beim Dispatch ist terminal.
type LanguagePipeline struct {
	Backend    NotebookBackend
	Translator Translator
	Detector   *LanguageDetector
	Reporter   *IncidentReporter
	Store      *storage.Store
	Logger     *zap.Logger
}

// NewLanguagePipeline erstellt eine neue Pipeline.
func NewLanguagePipeline(backend NotebookBackend, translator Translator, detector *LanguageDetector, reporter *IncidentReporter, store *storage.Store, logger *zap.Logger) *LanguagePipeline {
	return &LanguagePipeline{
		Backend:    backend,
		Translator: translator,
		Detector:   detector,
		Reporter:   reporter,
		Store:      store,
		Logger:     logger,
	}
}

// Ask stellt die Frage gegen das Notebook des Mappings und stellt sicher,
// dass die Antwort in der bevorzugten Sprache zurückkommt.
func (p *LanguagePipeline) Ask(ctx context.Context, mapping *models.NotebookMapping, question, conversationID string) (*models.AskQuestionResponse, error) {
	targetLang := mapping.PreferredLanguage
	if targetLang == "" {
		targetLang = LangEnglish
	}
	log := p.Logger.With(zap.String("user_key", mapping.UserKey), zap.String("target_lang", targetLang))

	// Detect: Sprache der Frage ist nur ein Hinweis für die Prompt-Anweisung.
	questionLang, _ := p.Detector.Detect(question)

	// Augment: für Englisch bleibt der Prompt byte-identisch.
	prompt := BuildPrompt(question, targetLang, questionLang)

	// Dispatch: ein Backend-Fehler ist terminal, Retries sind Sache des Backends.
	result, err := p.Backend.Ask(ctx, mapping.NotebookID, prompt)
	if err != nil {
		log.Error("Backend ask failed", zap.Error(err))
		return nil, err
	}

	answer := result.Answer
	wasTranslated := false

	// Verify: nur für nicht-englische Zielsprachen. Unsichere Erkennung
	// lässt die Antwort unverändert durch.
	if targetLang != LangEnglish {
		detected, confidence := p.Detector.Detect(answer)
		if detected != LangUnknown && detected != targetLang && confidence > confidenceThreshold {
			log.Warn("Answer came back in wrong language",
				zap.String("detected_lang", detected),
				zap.Float64("confidence", confidence))

			if p.Reporter != nil {
				p.Reporter.Submit(mapping.UserKey, targetLang, detected, question, answer)
			}
			answer, wasTranslated = p.Translator.Translate(ctx, answer, detected, targetLang)
		}
	}

	resp := &models.AskQuestionResponse{
		Answer:         answer,
		SourcesUsed:    result.SourcesUsed,
		ConversationID: result.ConversationID,
		TargetLanguage: targetLang,
		WasTranslated:  wasTranslated,
	}
	if resp.SourcesUsed == nil {
		resp.SourcesUsed = []string{}
	}
	if resp.ConversationID == "" {
		resp.ConversationID = conversationID
	}

	// Finalize: Historie anhängen. Ein Fehler hier beeinträchtigt die bereits
	// fertige Antwort nicht.
	if p.Store != nil {
		record := &models.AnalysisRecord{
			ID:             uuid.NewString(),
			CreatedAt:      time.Now().UTC(),
			Question:       question,
			Answer:         answer,
			SourcesUsed:    resp.SourcesUsed,
			TargetLanguage: targetLang,
			WasTranslated:  wasTranslated,
		}
		if err := p.Store.AppendAnalysis(mapping.UserKey, record); err != nil {
			log.Warn("Failed to append analysis record", zap.Error(err))
		}
	}

	return resp, nil
}
