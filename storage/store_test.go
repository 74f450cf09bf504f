package storage

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"notebook-bridge/models"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	dsn := filepath.Join(t.TempDir(), "store.db") + "?_busy_timeout=5000"
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(
		&models.NotebookMapping{},
		&models.SourceRecord{},
		&models.AnalysisRecord{},
		&models.LanguageIncident{},
	))
	return NewStore(db, zap.NewNop())
}

func TestGetMappingReturnsNilWhenMissing(t *testing.T) {
	store := newTestStore(t)

	m, err := store.GetMapping("nobody@example.com::general")
	require.NoError(t, err)
	assert.Nil(t, m)
}

func TestInsertMappingIfAbsentIsAtomic(t *testing.T) {
	store := newTestStore(t)
	key := models.UserKey("magnus@example.com", "openings")

	inserted, err := store.InsertMappingIfAbsent(&models.NotebookMapping{
		UserKey:           key,
		UserEmail:         "magnus@example.com",
		Category:          "openings",
		NotebookID:        "nb-first",
		PreferredLanguage: "es",
	})
	require.NoError(t, err)
	assert.True(t, inserted)

	inserted, err = store.InsertMappingIfAbsent(&models.NotebookMapping{
		UserKey:    key,
		NotebookID: "nb-second",
	})
	require.NoError(t, err)
	assert.False(t, inserted)

	m, err := store.GetMapping(key)
	require.NoError(t, err)
	require.NotNil(t, m)
	assert.Equal(t, "nb-first", m.NotebookID)
	assert.Equal(t, "es", m.PreferredLanguage)
}

func TestUpsertMappingReplacesNotebookID(t *testing.T) {
	store := newTestStore(t)
	key := models.UserKey("judit@example.com", "general")

	require.NoError(t, store.UpsertMapping(&models.NotebookMapping{
		UserKey:    key,
		NotebookID: "nb-old",
	}))
	require.NoError(t, store.UpsertMapping(&models.NotebookMapping{
		UserKey:           key,
		NotebookID:        "nb-new",
		PreferredLanguage: "es",
		GlossaryVersion:   1,
	}))

	m, err := store.GetMapping(key)
	require.NoError(t, err)
	require.NotNil(t, m)
	assert.Equal(t, "nb-new", m.NotebookID)
	assert.Equal(t, 1, m.GlossaryVersion)
}

func TestDeleteMappingRemovesSources(t *testing.T) {
	store := newTestStore(t)
	key := models.UserKey("hikaru@example.com", "general")

	_, err := store.InsertMappingIfAbsent(&models.NotebookMapping{UserKey: key, NotebookID: "nb-1"})
	require.NoError(t, err)
	require.NoError(t, store.AppendSource(key, &models.SourceRecord{
		SourceType: models.SourceTypeURL,
		Content:    "https://example.com/game",
	}))

	deleted, err := store.DeleteMapping(key)
	require.NoError(t, err)
	assert.True(t, deleted)

	deleted, err = store.DeleteMapping(key)
	require.NoError(t, err)
	assert.False(t, deleted)

	count, err := store.CountSources(key)
	require.NoError(t, err)
	assert.Equal(t, 0, count)
}

func TestAppendSourceBumpsMappingTimestamp(t *testing.T) {
	store := newTestStore(t)
	key := models.UserKey("anna@example.com", "endgames")

	_, err := store.InsertMappingIfAbsent(&models.NotebookMapping{UserKey: key, NotebookID: "nb-1"})
	require.NoError(t, err)
	before, err := store.GetMapping(key)
	require.NoError(t, err)

	time.Sleep(10 * time.Millisecond)
	require.NoError(t, store.AppendSource(key, &models.SourceRecord{
		SourceType: models.SourceTypeText,
		Content:    "1.e4 e5 2.Nf3",
		Title:      "Pasted Text",
	}))

	after, err := store.GetMapping(key)
	require.NoError(t, err)
	assert.True(t, after.UpdatedAt.After(before.UpdatedAt))

	sources, err := store.ListSources(key)
	require.NoError(t, err)
	require.Len(t, sources, 1)
	assert.Equal(t, models.SourceTypeText, sources[0].SourceType)
}

func TestListAnalysesOrderAndPaging(t *testing.T) {
	store := newTestStore(t)
	key := models.UserKey("fabi@example.com", "general")

	for i, q := range []string{"first", "second", "third"} {
		require.NoError(t, store.AppendAnalysis(key, &models.AnalysisRecord{
			ID:        q,
			CreatedAt: time.Date(2026, 8, 1, 12, i, 0, 0, time.UTC),
			Question:  q,
			Answer:    "answer " + q,
		}))
	}

	records, total, err := store.ListAnalyses(key, 2, 0)
	require.NoError(t, err)
	assert.Equal(t, int64(3), total)
	require.Len(t, records, 2)
	assert.Equal(t, "third", records[0].Question)
	assert.Equal(t, "second", records[1].Question)

	records, total, err = store.ListAnalyses(key, 2, 2)
	require.NoError(t, err)
	assert.Equal(t, int64(3), total)
	require.Len(t, records, 1)
	assert.Equal(t, "first", records[0].Question)
}

func TestAppendIncident(t *testing.T) {
	store := newTestStore(t)

	require.NoError(t, store.AppendIncident(&models.LanguageIncident{
		UserKey:          "bobby@example.com::general",
		ExpectedLanguage: "es",
		DetectedLanguage: "en",
		QuestionPreview:  "¿Qué es una horquilla?",
		AnswerPreview:    "A fork attacks two pieces.",
	}))

	var count int64
	require.NoError(t, store.DB.Model(&models.LanguageIncident{}).Count(&count).Error)
	assert.Equal(t, int64(1), count)
}
