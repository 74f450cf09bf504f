package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	awss3 "github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"notebook-bridge/config"
	"notebook-bridge/models"
	"notebook-bridge/providers/notebooklm"
	"notebook-bridge/storage"
)

// NotebookRegistry besitzt die Zuordnung (user_key -> externes Notebook).
// Sie legt Notebooks an, prüft deren Existenz im Backend und ersetzt
// stale Mappings komplett.
type NotebookRegistry struct {
	Config   *config.Config
	Store    *storage.Store
	Backend  NotebookBackend
	Glossary *GlossaryProvisioner
	S3Client *awss3.Client
	Logger   *zap.Logger

	mu       sync.Mutex
	keyLocks map[string]*sync.Mutex
}

// NewNotebookRegistry erstellt eine neue Registry.
func NewNotebookRegistry(cfg *config.Config, store *storage.Store, backend NotebookBackend, glossary *GlossaryProvisioner, s3Client *awss3.Client, logger *zap.Logger) *NotebookRegistry {
	return &NotebookRegistry{
		Config:   cfg,
		Store:    store,
		Backend:  backend,
		Glossary: glossary,
		S3Client: s3Client,
		Logger:   logger,
		keyLocks: make(map[string]*sync.Mutex),
	}
}

// lockFor liefert den Mutex für einen user_key. Die Notebook-Erstellung wird
// pro Key serialisiert, damit konkurrierende Aufrufe nicht mehrere externe
// Ressourcen anlegen.
func (r *NotebookRegistry) lockFor(userKey string) *sync.Mutex {
	r.mu.Lock()
	defer r.mu.Unlock()
	lock, ok := r.keyLocks[userKey]
	if !ok {
		lock = &sync.Mutex{}
		r.keyLocks[userKey] = lock
	}
	return lock
}

// Resolve ist der reine Lookup: Mapping oder nil.
func (r *NotebookRegistry) Resolve(userKey string) (*models.NotebookMapping, error) {
	return r.Store.GetMapping(userKey)
}

// GetOrCreate liefert das bestehende Mapping unverändert zurück oder legt
// Notebook und Mapping neu an. Ein bestehendes Mapping wird auch dann nicht
// angefasst, wenn preferred_language vom Request abweicht (first-write-wins).
// Der zweite Rückgabewert meldet, ob neu angelegt wurde.
func (r *NotebookRegistry) GetOrCreate(ctx context.Context, userEmail, category, notebookName, preferredLang string) (*models.NotebookMapping, bool, error) {
	if category == "" {
		category = r.Config.DefaultCategory
	}
	if preferredLang == "" {
		preferredLang = LangEnglish
	}
	userKey := models.UserKey(userEmail, category)
	log := r.Logger.With(zap.String("user_key", userKey))

	existing, err := r.Store.GetMapping(userKey)
	if err != nil {
		return nil, false, err
	}
	if existing != nil {
		log.Info("Found existing notebook", zap.String("notebook_id", existing.NotebookID))
		return existing, false, nil
	}

	lock := r.lockFor(userKey)
	lock.Lock()
	defer lock.Unlock()

	// Re-Check unter dem Lock: ein paralleler Aufruf kann schneller gewesen sein.
	existing, err = r.Store.GetMapping(userKey)
	if err != nil {
		return nil, false, err
	}
	if existing != nil {
		return existing, false, nil
	}

	name := notebookName
	if name == "" {
		name = fmt.Sprintf("Chess Learning - %s (%s)", userEmail, category)
	}

	notebookID, err := r.Backend.Create(ctx, name)
	if err != nil {
		log.Error("Failed to create notebook in backend", zap.Error(err))
		return nil, false, err
	}

	glossaryVersion := 0
	if r.Glossary != nil && r.Glossary.Provision(ctx, notebookID, preferredLang) {
		glossaryVersion = GlossaryVersion
	}

	mapping := &models.NotebookMapping{
		UserKey:           userKey,
		UserEmail:         userEmail,
		Category:          category,
		NotebookID:        notebookID,
		NotebookName:      name,
		PreferredLanguage: preferredLang,
		GlossaryVersion:   glossaryVersion,
	}

	inserted, err := r.Store.InsertMappingIfAbsent(mapping)
	if err != nil {
		return nil, false, err
	}
	if !inserted {
		// Eine andere Instanz hat das Mapping zuerst geschrieben. Das gerade
		// angelegte Backend-Notebook ist damit verwaist und wird aufgeräumt.
		log.Warn("Lost creation race, removing orphaned backend notebook", zap.String("notebook_id", notebookID))
		if delErr := r.Backend.Delete(ctx, notebookID); delErr != nil {
			log.Warn("Failed to delete orphaned backend notebook", zap.Error(delErr))
		}
		stored, err := r.Store.GetMapping(userKey)
		if err != nil || stored == nil {
			return nil, false, fmt.Errorf("mapping vanished after lost creation race for %s", userKey)
		}
		return stored, false, nil
	}

	log.Info("Created new notebook", zap.String("notebook_id", notebookID), zap.String("preferred_language", preferredLang))
	return mapping, true, nil
}

// EnsureValid prüft, ob das extern referenzierte Notebook noch existiert.
// Jeder Probe-Fehler gilt als stale: das alte Mapping wird gelöscht und über
// GetOrCreate ersetzt (inklusive erneuter Glossar-Provisionierung). Existiert
// kein Mapping, verhält sich der Aufruf wie GetOrCreate.
func (r *NotebookRegistry) EnsureValid(ctx context.Context, userKey, preferredLang string) (*models.NotebookMapping, error) {
	email, category := models.SplitUserKey(userKey)

	mapping, err := r.Store.GetMapping(userKey)
	if err != nil {
		return nil, err
	}
	if mapping == nil {
		m, _, err := r.GetOrCreate(ctx, email, category, "", preferredLang)
		return m, err
	}

	_, probeErr := r.Backend.Get(ctx, mapping.NotebookID)
	if probeErr == nil {
		return mapping, nil
	}
	r.Logger.Warn("Notebook probe failed, treating mapping as stale",
		zap.String("user_key", userKey),
		zap.String("notebook_id", mapping.NotebookID),
		zap.Error(probeErr))

	if _, err := r.Store.DeleteMapping(userKey); err != nil {
		return nil, err
	}

	if preferredLang == "" {
		preferredLang = mapping.PreferredLanguage
	}
	replacement, _, err := r.GetOrCreate(ctx, email, category, "", preferredLang)
	return replacement, err
}

// Delete löscht erst die externe Ressource, dann das lokale Mapping.
// Schlägt die externe Löschung fehl, bleibt das Mapping erhalten, damit der
// Zeiger auf die verwaiste Ressource nicht verloren geht.
func (r *NotebookRegistry) Delete(ctx context.Context, userKey string) (bool, error) {
	mapping, err := r.Store.GetMapping(userKey)
	if err != nil {
		return false, err
	}
	if mapping == nil {
		return false, nil
	}

	if err := r.Backend.Delete(ctx, mapping.NotebookID); err != nil && !errors.Is(err, notebooklm.ErrNotFound) {
		r.Logger.Error("Failed to delete notebook in backend, keeping local mapping",
			zap.String("user_key", userKey),
			zap.String("notebook_id", mapping.NotebookID),
			zap.Error(err))
		return false, err
	}

	if _, err := r.Store.DeleteMapping(userKey); err != nil {
		return false, err
	}

	r.Logger.Info("Deleted notebook", zap.String("user_key", userKey))
	return true, nil
}

// AddSource leitet eine Quelle je nach Typ ans Backend weiter und hängt erst
// bei Remote-Erfolg den lokalen SourceRecord an. Datei-Inhalte werden nach S3
// hochgeladen und als Link weitergereicht, weil das Backend nur URLs und Text
// entgegennimmt.
func (r *NotebookRegistry) AddSource(ctx context.Context, userKey, sourceType, content, title string, autoCreate bool) (bool, error) {
	mapping, err := r.Store.GetMapping(userKey)
	if err != nil {
		return false, err
	}
	if mapping == nil {
		if !autoCreate {
			r.Logger.Error("No notebook found for user", zap.String("user_key", userKey))
			return false, nil
		}
		email, category := models.SplitUserKey(userKey)
		mapping, _, err = r.GetOrCreate(ctx, email, category, "", "")
		if err != nil {
			return false, err
		}
	}

	recordContent := models.Preview(content)

	switch sourceType {
	case models.SourceTypeURL, models.SourceTypeVideo:
		err = r.Backend.AddURLSource(ctx, mapping.NotebookID, content)
	case models.SourceTypeText:
		sourceTitle := title
		if sourceTitle == "" {
			sourceTitle = "Pasted Text"
		}
		err = r.Backend.AddTextSource(ctx, mapping.NotebookID, sourceTitle, content)
	case models.SourceTypeFile:
		if r.S3Client == nil {
			return false, fmt.Errorf("file sources require S3 storage")
		}
		key := uuid.NewString()
		if title != "" {
			key = key + "-" + sanitizeObjectKey(title)
		}
		link, upErr := storage.UploadFileSource(ctx, r.S3Client, r.Config, key, []byte(content))
		if upErr != nil {
			r.Logger.Error("Failed to upload file source", zap.String("user_key", userKey), zap.Error(upErr))
			return false, upErr
		}
		recordContent = link
		err = r.Backend.AddURLSource(ctx, mapping.NotebookID, link)
	default:
		r.Logger.Error("Unsupported source type", zap.String("source_type", sourceType))
		return false, nil
	}
	if err != nil {
		r.Logger.Error("Failed to add source in backend",
			zap.String("user_key", userKey),
			zap.String("source_type", sourceType),
			zap.Error(err))
		return false, nil
	}

	record := &models.SourceRecord{
		SourceType: sourceType,
		Content:    recordContent,
		Title:      title,
	}
	if err := r.Store.AppendSource(userKey, record); err != nil {
		return false, err
	}

	r.Logger.Info("Added source to notebook",
		zap.String("user_key", userKey),
		zap.String("source_type", sourceType))
	return true, nil
}

// AddChessGame formatiert eine Partie (PGN + optionale Analyse) als
// Markdown-Text-Quelle.
func (r *NotebookRegistry) AddChessGame(ctx context.Context, userKey, pgn, gameTitle, analysis string) (bool, error) {
	title := gameTitle
	if title == "" {
		title = "Chess Game"
	}

	var b strings.Builder
	fmt.Fprintf(&b, "# Chess Game: %s\n\n", title)
	b.WriteString("## PGN Notation\n```\n" + pgn + "\n```\n")
	if analysis != "" {
		b.WriteString("\n## Analysis\n" + analysis + "\n")
	}

	return r.AddSource(ctx, userKey, models.SourceTypeText, b.String(), title, false)
}

// SaveNote speichert eine Notiz und legt das Notebook bei Bedarf vorher an.
func (r *NotebookRegistry) SaveNote(ctx context.Context, userEmail, category, content, title, notebookName, preferredLang string) models.SaveNoteResponse {
	if category == "" {
		category = r.Config.DefaultCategory
	}
	userKey := models.UserKey(userEmail, category)

	mapping, created, err := r.GetOrCreate(ctx, userEmail, category, notebookName, preferredLang)
	if err != nil {
		return models.SaveNoteResponse{
			Success: false,
			Message: "Failed to create notebook. Check if the backend is authenticated.",
		}
	}

	ok, err := r.AddSource(ctx, userKey, models.SourceTypeText, content, title, false)
	if err != nil || !ok {
		return models.SaveNoteResponse{
			Success:         false,
			NotebookID:      mapping.NotebookID,
			NotebookName:    mapping.NotebookName,
			NotebookCreated: created,
			Message:         "Failed to save note to notebook backend",
		}
	}

	message := "Note saved successfully"
	if created {
		message += " (new notebook created)"
	}
	return models.SaveNoteResponse{
		Success:         true,
		NotebookID:      mapping.NotebookID,
		NotebookName:    mapping.NotebookName,
		NotebookCreated: created,
		Message:         message,
	}
}

// sanitizeObjectKey macht einen Titel S3-tauglich.
func sanitizeObjectKey(title string) string {
	var out strings.Builder
	for _, r := range strings.ToLower(title) {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9', r == '.', r == '-':
			out.WriteRune(r)
		case r == ' ', r == '_':
			out.WriteRune('-')
		}
	}
	return out.String()
}
