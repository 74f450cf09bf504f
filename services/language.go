package services

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/pemistahl/lingua-go"
)

// Unterstützte Sprachcodes. Englisch ist die Default-Sprache.
const (
	LangEnglish = "en"
	LangSpanish = "es"
	LangUnknown = "unknown"
)

// Unter dieser Textlänge (nach Notation-Strip) ist keine verlässliche
// Erkennung möglich.
const minDetectableLength = 20

// Schwelle, ab der ein erkannter Sprach-Mismatch als sicher gilt.
const confidenceThreshold = 0.5

// Schachnotation ist sprachneutral und verzerrt statistische Detektoren,
// deshalb wird sie vor der Erkennung entfernt.
var chessNotationPatterns = []*regexp.Regexp{
	regexp.MustCompile(`\b[KQRBN]?[a-h]?[1-8]?x?[a-h][1-8][+#=]?[QRBN]?\b`), // Züge: Nf3, Bxe5, e8=Q
	regexp.MustCompile(`\bO-O(-O)?\b`),                                      // Rochade
	regexp.MustCompile(`\b\d+\.\s*`),                                        // Zugnummern: 1. 2. 15.
	regexp.MustCompile(`\b[A-E]\d{2}\b`),                                    // ECO-Codes: C50, B90
}

var whitespaceRegexp = regexp.MustCompile(`\s+`)

// LanguageDetector klassifiziert Text gegen die geschlossene Sprachmenge
// {en, es} und liefert eine Konfidenz im Bereich [0,1].
type LanguageDetector struct {
	detector lingua.LanguageDetector
}

// NewLanguageDetector baut den Detektor. Der minimale relative Abstand
// erzwingt eine klare Unterscheidung zwischen den beiden Sprachen.
func NewLanguageDetector() *LanguageDetector {
	detector := lingua.NewLanguageDetectorBuilder().
		FromLanguages(lingua.English, lingua.Spanish).
		WithMinimumRelativeDistance(0.25).
		Build()
	return &LanguageDetector{detector: detector}
}

// StripChessNotation entfernt Schachnotation und kollabiert Whitespace.
func StripChessNotation(text string) string {
	cleaned := text
	for _, pattern := range chessNotationPatterns {
		cleaned = pattern.ReplaceAllString(cleaned, " ")
	}
	return strings.TrimSpace(whitespaceRegexp.ReplaceAllString(cleaned, " "))
}

// Detect bestimmt die Sprache eines Textes. Zu kurze oder uneindeutige Texte
// ergeben "unknown" mit Konfidenz 0.0 statt einer Ratewahrscheinlichkeit.
func (d *LanguageDetector) Detect(text string) (string, float64) {
	if text == "" {
		return LangUnknown, 0.0
	}

	cleaned := StripChessNotation(text)
	if len(cleaned) < minDetectableLength {
		return LangUnknown, 0.0
	}

	language, ok := d.detector.DetectLanguageOf(cleaned)
	if !ok {
		return LangUnknown, 0.0
	}

	switch language {
	case lingua.English:
		return LangEnglish, d.detector.ComputeLanguageConfidence(cleaned, lingua.English)
	case lingua.Spanish:
		return LangSpanish, d.detector.ComputeLanguageConfidence(cleaned, lingua.Spanish)
	default:
		return LangUnknown, 0.0
	}
}

// IsLanguageCorrect prüft, ob eine Antwort in der erwarteten Sprache ist.
// Für Englisch (Default) wird nie beanstandet; "unknown" gilt als korrekt,
// weil keine verlässliche Aussage möglich ist.
func (d *LanguageDetector) IsLanguageCorrect(text, expectedLang string) bool {
	if expectedLang == LangEnglish {
		return true
	}

	detected, confidence := d.Detect(text)
	if detected == LangUnknown {
		return true
	}
	return detected == expectedLang && confidence > confidenceThreshold
}

// Sprachanweisungen, die nicht-englischen Prompts vorangestellt werden.
// Notation bleibt dabei ausdrücklich unübersetzt.
var languageInstructions = map[string]string{
	LangSpanish: "[IMPORTANT: Respond in Spanish. Use the chess terminology from the glossary source. " +
		"Keep all chess notation (Nf3, O-O, exd5) in standard algebraic notation - do not translate moves. " +
		"Translate piece names when explaining: 'el caballo en f3' but notation stays 'Nf3'.]\n\n",
}

var languageNames = map[string]string{
	LangEnglish: "English",
	LangSpanish: "Spanish",
}

// BuildPrompt stellt der Frage eine Sprachanweisung voran. Für Englisch (und
// für unbekannte Zielsprachen) kommt die Frage byte-identisch zurück.
func BuildPrompt(question, targetLang, userWritesIn string) string {
	if targetLang == LangEnglish {
		return question
	}

	instruction, ok := languageInstructions[targetLang]
	if !ok {
		return question
	}

	if userWritesIn != "" && userWritesIn != targetLang && userWritesIn != LangUnknown {
		userName := languageNames[userWritesIn]
		if userName == "" {
			userName = userWritesIn
		}
		targetName := languageNames[targetLang]
		if targetName == "" {
			targetName = targetLang
		}
		instruction += fmt.Sprintf("[Note: The user wrote in %s but prefers responses in %s.]\n\n", userName, targetName)
	}

	return instruction + question
}
