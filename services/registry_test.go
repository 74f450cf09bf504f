package services

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"notebook-bridge/config"
	"notebook-bridge/models"
	"notebook-bridge/providers/notebooklm"
	"notebook-bridge/storage"
)

// fakeBackend ersetzt den Backend-Client in Tests und zählt alle Aufrufe.
type fakeBackend struct {
	mu sync.Mutex

	notebooks   map[string]string
	textSources map[string][]string
	urlSources  map[string][]string

	createCalls int
	deleteCalls int

	failCreate    bool
	failGet       bool
	failDelete    bool
	failAddSource bool

	askAnswer  string
	askSources []string
	askErr     error
	askPrompts []string
}

func newFakeBackend() *fakeBackend {
	return &fakeBackend{
		notebooks:   make(map[string]string),
		textSources: make(map[string][]string),
		urlSources:  make(map[string][]string),
		askAnswer:   "The knight fork wins material.",
	}
}

func (f *fakeBackend) Create(ctx context.Context, title string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failCreate {
		return "", errors.New("backend down")
	}
	f.createCalls++
	id := fmt.Sprintf("nb-%d", f.createCalls)
	f.notebooks[id] = title
	return id, nil
}

func (f *fakeBackend) Get(ctx context.Context, notebookID string) (*notebooklm.Notebook, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failGet {
		return nil, notebooklm.ErrNotFound
	}
	title, ok := f.notebooks[notebookID]
	if !ok {
		return nil, notebooklm.ErrNotFound
	}
	return &notebooklm.Notebook{ID: notebookID, Title: title}, nil
}

func (f *fakeBackend) Delete(ctx context.Context, notebookID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.deleteCalls++
	if f.failDelete {
		return errors.New("backend down")
	}
	delete(f.notebooks, notebookID)
	return nil
}

func (f *fakeBackend) AddURLSource(ctx context.Context, notebookID, url string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failAddSource {
		return errors.New("backend down")
	}
	f.urlSources[notebookID] = append(f.urlSources[notebookID], url)
	return nil
}

func (f *fakeBackend) AddTextSource(ctx context.Context, notebookID, title, content string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failAddSource {
		return errors.New("backend down")
	}
	f.textSources[notebookID] = append(f.textSources[notebookID], title)
	return nil
}

func (f *fakeBackend) Ask(ctx context.Context, notebookID, prompt string) (*notebooklm.AskResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.askErr != nil {
		return nil, f.askErr
	}
	f.askPrompts = append(f.askPrompts, prompt)
	return &notebooklm.AskResult{Answer: f.askAnswer, SourcesUsed: f.askSources}, nil
}

func (f *fakeBackend) GenerateArtifact(ctx context.Context, notebookID, kind string) (*notebooklm.ArtifactResult, error) {
	return &notebooklm.ArtifactResult{TaskID: "task-1", Status: "processing"}, nil
}

func (f *fakeBackend) glossaryCount(notebookID string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	count := 0
	for _, title := range f.textSources[notebookID] {
		if title == glossaryTitle {
			count++
		}
	}
	return count
}

func newTestStore(t *testing.T) *storage.Store {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(filepath.Join(t.TempDir(), "test.db")+"?_busy_timeout=5000"), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(
		&models.NotebookMapping{},
		&models.SourceRecord{},
		&models.AnalysisRecord{},
		&models.LanguageIncident{},
	))
	return storage.NewStore(db, zap.NewNop())
}

func testConfig() *config.Config {
	return &config.Config{DefaultCategory: "general"}
}

func newTestRegistry(t *testing.T, backend *fakeBackend) (*NotebookRegistry, *storage.Store) {
	t.Helper()
	store := newTestStore(t)
	logger := zap.NewNop()
	glossary := NewGlossaryProvisioner(backend, logger)
	registry := NewNotebookRegistry(testConfig(), store, backend, glossary, nil, logger)
	return registry, store
}

func TestGetOrCreateIdempotent(t *testing.T) {
	backend := newFakeBackend()
	registry, _ := newTestRegistry(t, backend)
	ctx := context.Background()

	first, created, err := registry.GetOrCreate(ctx, "alice@example.com", "openings", "", LangEnglish)
	require.NoError(t, err)
	assert.True(t, created)
	assert.Equal(t, "alice@example.com::openings", first.UserKey)
	assert.NotEmpty(t, first.NotebookID)

	// Zweiter Aufruf mit abweichender Sprache: Mapping bleibt unverändert
	// (first-write-wins, keine erneute Provisionierung).
	second, created, err := registry.GetOrCreate(ctx, "alice@example.com", "openings", "", LangSpanish)
	require.NoError(t, err)
	assert.False(t, created)
	assert.Equal(t, first.NotebookID, second.NotebookID)
	assert.Equal(t, LangEnglish, second.PreferredLanguage)
	assert.Equal(t, 1, backend.createCalls)
}

func TestGetOrCreateConcurrentSingleResource(t *testing.T) {
	backend := newFakeBackend()
	registry, _ := newTestRegistry(t, backend)

	var wg sync.WaitGroup
	ids := make([]string, 10)
	errs := make([]error, 10)
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			m, _, err := registry.GetOrCreate(context.Background(), "bob@example.com", "tactics", "", LangEnglish)
			if err != nil {
				errs[i] = err
				return
			}
			ids[i] = m.NotebookID
		}(i)
	}
	wg.Wait()

	for _, err := range errs {
		require.NoError(t, err)
	}
	assert.Equal(t, 1, backend.createCalls)
	for _, id := range ids {
		assert.Equal(t, ids[0], id)
	}
}

func TestGetOrCreateProvisionsGlossaryForSpanish(t *testing.T) {
	backend := newFakeBackend()
	registry, _ := newTestRegistry(t, backend)

	m, _, err := registry.GetOrCreate(context.Background(), "carla@example.com", "general", "", LangSpanish)
	require.NoError(t, err)
	assert.Equal(t, GlossaryVersion, m.GlossaryVersion)
	assert.Equal(t, 1, backend.glossaryCount(m.NotebookID))

	// Für Englisch bleibt das Notebook ohne Glossar.
	en, _, err := registry.GetOrCreate(context.Background(), "dave@example.com", "general", "", LangEnglish)
	require.NoError(t, err)
	assert.Equal(t, 0, en.GlossaryVersion)
	assert.Equal(t, 0, backend.glossaryCount(en.NotebookID))
}

func TestEnsureValidRecreatesStaleMapping(t *testing.T) {
	backend := newFakeBackend()
	registry, store := newTestRegistry(t, backend)
	ctx := context.Background()

	original, _, err := registry.GetOrCreate(ctx, "erin@example.com", "endgames", "", LangSpanish)
	require.NoError(t, err)

	// Backend verliert die Ressource (z.B. manuell gelöscht).
	backend.mu.Lock()
	delete(backend.notebooks, original.NotebookID)
	backend.mu.Unlock()

	replacement, err := registry.EnsureValid(ctx, original.UserKey, "")
	require.NoError(t, err)
	assert.Equal(t, original.UserKey, replacement.UserKey)
	assert.NotEqual(t, original.NotebookID, replacement.NotebookID)

	// Recreate läuft über GetOrCreate, also wird das Glossar erneut angehängt.
	assert.Equal(t, 1, backend.glossaryCount(replacement.NotebookID))

	stored, err := store.GetMapping(original.UserKey)
	require.NoError(t, err)
	require.NotNil(t, stored)
	assert.Equal(t, replacement.NotebookID, stored.NotebookID)
}

func TestEnsureValidPassesHealthyMappingThrough(t *testing.T) {
	backend := newFakeBackend()
	registry, _ := newTestRegistry(t, backend)
	ctx := context.Background()

	original, _, err := registry.GetOrCreate(ctx, "frank@example.com", "general", "", LangEnglish)
	require.NoError(t, err)

	same, err := registry.EnsureValid(ctx, original.UserKey, "")
	require.NoError(t, err)
	assert.Equal(t, original.NotebookID, same.NotebookID)
	assert.Equal(t, 1, backend.createCalls)
}

func TestEnsureValidCreatesWhenMissing(t *testing.T) {
	backend := newFakeBackend()
	registry, _ := newTestRegistry(t, backend)

	m, err := registry.EnsureValid(context.Background(), "grace@example.com::general", LangEnglish)
	require.NoError(t, err)
	assert.Equal(t, "grace@example.com::general", m.UserKey)
	assert.Equal(t, 1, backend.createCalls)
}

func TestDeleteKeepsLocalMappingOnBackendFailure(t *testing.T) {
	backend := newFakeBackend()
	registry, store := newTestRegistry(t, backend)
	ctx := context.Background()

	m, _, err := registry.GetOrCreate(ctx, "henry@example.com", "general", "", LangEnglish)
	require.NoError(t, err)

	backend.failDelete = true
	deleted, err := registry.Delete(ctx, m.UserKey)
	assert.Error(t, err)
	assert.False(t, deleted)

	// Der Zeiger auf die verwaiste Ressource bleibt erhalten.
	stored, err := store.GetMapping(m.UserKey)
	require.NoError(t, err)
	require.NotNil(t, stored)
	assert.Equal(t, m.NotebookID, stored.NotebookID)
}

func TestDelete(t *testing.T) {
	backend := newFakeBackend()
	registry, store := newTestRegistry(t, backend)
	ctx := context.Background()

	m, _, err := registry.GetOrCreate(ctx, "iris@example.com", "general", "", LangEnglish)
	require.NoError(t, err)

	deleted, err := registry.Delete(ctx, m.UserKey)
	require.NoError(t, err)
	assert.True(t, deleted)

	stored, err := store.GetMapping(m.UserKey)
	require.NoError(t, err)
	assert.Nil(t, stored)

	// Zweiter Aufruf: kein Mapping mehr vorhanden.
	deleted, err = registry.Delete(ctx, m.UserKey)
	require.NoError(t, err)
	assert.False(t, deleted)
}

func TestAddSourceAppendsOnlyOnRemoteSuccess(t *testing.T) {
	backend := newFakeBackend()
	registry, store := newTestRegistry(t, backend)
	ctx := context.Background()

	m, _, err := registry.GetOrCreate(ctx, "judy@example.com", "general", "", LangEnglish)
	require.NoError(t, err)

	backend.failAddSource = true
	ok, err := registry.AddSource(ctx, m.UserKey, models.SourceTypeText, "some note", "Note", false)
	require.NoError(t, err)
	assert.False(t, ok)

	sources, err := store.ListSources(m.UserKey)
	require.NoError(t, err)
	assert.Empty(t, sources)

	backend.failAddSource = false
	ok, err = registry.AddSource(ctx, m.UserKey, models.SourceTypeText, "some note", "Note", false)
	require.NoError(t, err)
	assert.True(t, ok)

	sources, err = store.ListSources(m.UserKey)
	require.NoError(t, err)
	require.Len(t, sources, 1)
	assert.Equal(t, models.SourceTypeText, sources[0].SourceType)
	assert.Equal(t, "some note", sources[0].Content)
}

func TestAddSourceAutoCreate(t *testing.T) {
	backend := newFakeBackend()
	registry, store := newTestRegistry(t, backend)
	ctx := context.Background()

	userKey := models.UserKey("kate@example.com", "general")

	// Ohne auto_create kein Mapping, keine Quelle.
	ok, err := registry.AddSource(ctx, userKey, models.SourceTypeURL, "https://example.com/games", "", false)
	require.NoError(t, err)
	assert.False(t, ok)

	ok, err = registry.AddSource(ctx, userKey, models.SourceTypeURL, "https://example.com/games", "", true)
	require.NoError(t, err)
	assert.True(t, ok)

	stored, err := store.GetMapping(userKey)
	require.NoError(t, err)
	require.NotNil(t, stored)
	assert.Equal(t, 1, backend.createCalls)
}

func TestAddChessGameFormatsMarkdown(t *testing.T) {
	backend := newFakeBackend()
	registry, store := newTestRegistry(t, backend)
	ctx := context.Background()

	m, _, err := registry.GetOrCreate(ctx, "liam@example.com", "general", "", LangEnglish)
	require.NoError(t, err)

	ok, err := registry.AddChessGame(ctx, m.UserKey, "1.e4 e5 2.Nf3 Nc6", "Italian Miniature", "White develops quickly.")
	require.NoError(t, err)
	assert.True(t, ok)

	sources, err := store.ListSources(m.UserKey)
	require.NoError(t, err)
	require.Len(t, sources, 1)
	assert.Contains(t, sources[0].Content, "# Chess Game: Italian Miniature")
	assert.Contains(t, sources[0].Content, "## PGN Notation")
	assert.Contains(t, sources[0].Content, "## Analysis")
}

func TestSaveNoteCreatesNotebookWhenMissing(t *testing.T) {
	backend := newFakeBackend()
	registry, _ := newTestRegistry(t, backend)

	resp := registry.SaveNote(context.Background(), "mia@example.com", "", "remember the Najdorf move order", "Najdorf", "", LangEnglish)
	assert.True(t, resp.Success)
	assert.True(t, resp.NotebookCreated)
	assert.NotEmpty(t, resp.NotebookID)

	// Zweite Notiz landet im bestehenden Notebook.
	resp = registry.SaveNote(context.Background(), "mia@example.com", "", "and the Dragon too", "Dragon", "", LangEnglish)
	assert.True(t, resp.Success)
	assert.False(t, resp.NotebookCreated)
	assert.Equal(t, 1, backend.createCalls)
}

func TestSplitUserKeyRoundTrip(t *testing.T) {
	key := models.UserKey("nina@example.com", "openings")
	email, category := models.SplitUserKey(key)
	assert.Equal(t, "nina@example.com", email)
	assert.Equal(t, "openings", category)
}
