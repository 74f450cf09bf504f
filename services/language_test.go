package services

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStripChessNotation(t *testing.T) {
	assert.Equal(t, "jaque mate", StripChessNotation("1.e4 e5 2.Nf3 Nc6 jaque mate"))
	assert.Equal(t, "castling here", StripChessNotation("O-O castling O-O-O here"))
	assert.Equal(t, "the line is strong", StripChessNotation("the C50 line B90 is strong"))
	assert.Equal(t, "promotion wins", StripChessNotation("e8=Q promotion Bxe5 wins"))
}

func TestDetectSpanishWithNotation(t *testing.T) {
	detector := NewLanguageDetector()

	lang, confidence := detector.Detect("1.e4 e5 2.Nf3 Nc6 y las blancas ganan la dama con una horquilla del caballo")
	assert.Equal(t, LangSpanish, lang)
	assert.Greater(t, confidence, 0.5)
}

func TestDetectEnglish(t *testing.T) {
	detector := NewLanguageDetector()

	lang, confidence := detector.Detect("The knight fork on c7 attacks both the rook and the queen at once")
	assert.Equal(t, LangEnglish, lang)
	assert.Greater(t, confidence, 0.5)
}

func TestDetectTooShort(t *testing.T) {
	detector := NewLanguageDetector()

	lang, confidence := detector.Detect("a")
	assert.Equal(t, LangUnknown, lang)
	assert.Equal(t, 0.0, confidence)

	// Nach dem Notation-Strip bleibt hier nichts Verwertbares übrig.
	lang, confidence = detector.Detect("1.e4 e5 2.Nf3 Nc6 3.Bc4")
	assert.Equal(t, LangUnknown, lang)
	assert.Equal(t, 0.0, confidence)
}

func TestDetectEmpty(t *testing.T) {
	detector := NewLanguageDetector()

	lang, confidence := detector.Detect("")
	assert.Equal(t, LangUnknown, lang)
	assert.Equal(t, 0.0, confidence)
}

func TestBuildPromptEnglishUnchanged(t *testing.T) {
	question := "What is the best response to 1.e4?"
	assert.Equal(t, question, BuildPrompt(question, LangEnglish, LangSpanish))
}

func TestBuildPromptSpanish(t *testing.T) {
	prompt := BuildPrompt("Hello", LangSpanish, "")

	require.True(t, strings.HasPrefix(prompt, "[IMPORTANT:"))
	assert.True(t, strings.HasSuffix(prompt, "Hello"))
	assert.Greater(t, len(prompt), len("Hello"))
}

func TestBuildPromptSpanishWithMismatchNote(t *testing.T) {
	prompt := BuildPrompt("Hello", LangSpanish, LangEnglish)

	assert.Contains(t, prompt, "The user wrote in English but prefers responses in Spanish.")
	assert.True(t, strings.HasSuffix(prompt, "Hello"))
}

func TestBuildPromptUnsupportedLanguageUnchanged(t *testing.T) {
	assert.Equal(t, "Bonjour", BuildPrompt("Bonjour", "fr", ""))
}

func TestIsLanguageCorrect(t *testing.T) {
	detector := NewLanguageDetector()

	// Englisch ist der Default und wird nie beanstandet.
	assert.True(t, detector.IsLanguageCorrect("la dama y la torre estan en peligro inmediato", LangEnglish))

	assert.True(t, detector.IsLanguageCorrect("la horquilla del caballo ataca la torre y la dama", LangSpanish))
	assert.False(t, detector.IsLanguageCorrect("the knight fork attacks both the rook and the queen", LangSpanish))

	// Zu kurz für eine verlässliche Aussage: gilt als korrekt.
	assert.True(t, detector.IsLanguageCorrect("Nf3", LangSpanish))
}
