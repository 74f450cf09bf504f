package storage

import (
	"errors"
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"notebook-bridge/models"
)

// Store kapselt alle Datenbank-Operationen rund um Notebook-Mappings,
// Quellen, Analyse-Historie und Sprach-Incidents. Zugriff erfolgt
// ausschließlich über den user_key.
type Store struct {
	DB     *gorm.DB
	Logger *zap.Logger
}

// NewStore erstellt einen neuen Store.
func NewStore(db *gorm.DB, logger *zap.Logger) *Store {
	return &Store{DB: db, Logger: logger}
}

// GetMapping liefert das Mapping für einen user_key oder nil, wenn keines existiert.
func (s *Store) GetMapping(userKey string) (*models.NotebookMapping, error) {
	var m models.NotebookMapping
	err := s.DB.Where("user_key = ?", userKey).First(&m).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		s.Logger.Error("Failed to load notebook mapping", zap.String("user_key", userKey), zap.Error(err))
		return nil, err
	}
	return &m, nil
}

// InsertMappingIfAbsent legt das Mapping nur an, wenn für den user_key noch
// keines existiert. Gibt true zurück, wenn die Zeile eingefügt wurde.
// Der Unique-Index auf user_key macht das Einfügen atomar.
func (s *Store) InsertMappingIfAbsent(m *models.NotebookMapping) (bool, error) {
	res := s.DB.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "user_key"}},
		DoNothing: true,
	}).Create(m)
	if res.Error != nil {
		s.Logger.Error("Failed to insert notebook mapping", zap.String("user_key", m.UserKey), zap.Error(res.Error))
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

// UpsertMapping fügt ein Mapping ein oder ersetzt es anhand des user_key.
func (s *Store) UpsertMapping(m *models.NotebookMapping) error {
	err := s.DB.Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "user_key"}},
		DoUpdates: clause.AssignmentColumns([]string{
			"notebook_id", "notebook_name", "preferred_language", "glossary_version", "updated_at",
		}),
	}).Create(m).Error
	if err != nil {
		s.Logger.Error("Failed to upsert notebook mapping", zap.String("user_key", m.UserKey), zap.Error(err))
	}
	return err
}

// DeleteMapping löscht das Mapping samt lokaler Quell-Einträge.
// Gibt false zurück, wenn kein Mapping existierte.
func (s *Store) DeleteMapping(userKey string) (bool, error) {
	res := s.DB.Where("user_key = ?", userKey).Delete(&models.NotebookMapping{})
	if res.Error != nil {
		s.Logger.Error("Failed to delete notebook mapping", zap.String("user_key", userKey), zap.Error(res.Error))
		return false, res.Error
	}
	if res.RowsAffected == 0 {
		return false, nil
	}
	if err := s.DB.Where("user_key = ?", userKey).Delete(&models.SourceRecord{}).Error; err != nil {
		s.Logger.Warn("Failed to delete source records", zap.String("user_key", userKey), zap.Error(err))
	}
	return true, nil
}

// ListMappings liefert alle Mappings (Admin-Sicht).
func (s *Store) ListMappings() ([]models.NotebookMapping, error) {
	var mappings []models.NotebookMapping
	if err := s.DB.Order("created_at asc").Find(&mappings).Error; err != nil {
		return nil, err
	}
	return mappings, nil
}

// AppendSource hängt eine Quelle an das Mapping an und stößt den
// updated_at-Zeitstempel des Mappings an. Einfügen pro Zeile ist atomar,
// kein Read-Modify-Write auf dem Mapping nötig.
func (s *Store) AppendSource(userKey string, src *models.SourceRecord) error {
	src.UserKey = userKey
	if err := s.DB.Create(src).Error; err != nil {
		s.Logger.Error("Failed to append source record", zap.String("user_key", userKey), zap.Error(err))
		return err
	}
	return s.DB.Model(&models.NotebookMapping{}).
		Where("user_key = ?", userKey).
		Update("updated_at", time.Now().UTC()).Error
}

// ListSources liefert die Quellen eines Mappings in Einfüge-Reihenfolge.
func (s *Store) ListSources(userKey string) ([]models.SourceRecord, error) {
	var sources []models.SourceRecord
	if err := s.DB.Where("user_key = ?", userKey).Order("created_at asc").Find(&sources).Error; err != nil {
		return nil, err
	}
	return sources, nil
}

// CountSources zählt die Quellen eines Mappings.
func (s *Store) CountSources(userKey string) (int, error) {
	var count int64
	err := s.DB.Model(&models.SourceRecord{}).Where("user_key = ?", userKey).Count(&count).Error
	return int(count), err
}

// AppendAnalysis hängt einen Eintrag an die Analyse-Historie an.
func (s *Store) AppendAnalysis(userKey string, rec *models.AnalysisRecord) error {
	rec.UserKey = userKey
	if err := s.DB.Create(rec).Error; err != nil {
		s.Logger.Error("Failed to append analysis record", zap.String("user_key", userKey), zap.Error(err))
		return err
	}
	return nil
}

// ListAnalyses liefert die Analyse-Historie absteigend nach Erstellzeit,
// mit Limit/Skip und Gesamtanzahl.
func (s *Store) ListAnalyses(userKey string, limit, skip int) ([]models.AnalysisRecord, int64, error) {
	var total int64
	if err := s.DB.Model(&models.AnalysisRecord{}).Where("user_key = ?", userKey).Count(&total).Error; err != nil {
		return nil, 0, err
	}
	query := s.DB.Where("user_key = ?", userKey).Order("created_at desc")
	if limit > 0 {
		query = query.Limit(limit)
	}
	if skip > 0 {
		query = query.Offset(skip)
	}
	var records []models.AnalysisRecord
	if err := query.Find(&records).Error; err != nil {
		return nil, 0, err
	}
	return records, total, nil
}

// AppendIncident persistiert einen Sprach-Incident.
func (s *Store) AppendIncident(inc *models.LanguageIncident) error {
	return s.DB.Create(inc).Error
}
