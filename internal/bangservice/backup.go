package bangservice

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/starford/bangd/internal/apperr"
	"github.com/starford/bangd/internal/checksum"
	"github.com/starford/bangd/internal/kvstore"
	"github.com/starford/bangd/internal/migrate"
	"github.com/starford/bangd/internal/models"
	"github.com/starford/bangd/internal/settings"
	"github.com/starford/bangd/internal/storage"
)

// backupTimeLayout is used in backup file names.
const backupTimeLayout = "2006-01-02T15-04-05Z"

// ImportResult summarises an applied backup.
type ImportResult struct {
	Version  migrate.Version `json:"version"`
	Imported int             `json:"imported"`
	Total    int             `json:"total"`
	Symbol   string          `json:"bangSymbol,omitempty"`
	Provider string          `json:"bangProvider,omitempty"`
}

// BackupName returns the file name of a backup taken at t.
func BackupName(t time.Time) string {
	return "bangd-backup_" + t.UTC().Format(backupTimeLayout) + ".json"
}

// ExportDocument renders the durable configuration as a current-version
// backup document.
func (s *Service) ExportDocument(ctx context.Context) ([]byte, error) {
	st, err := settings.LoadState(ctx, s.durable, s.logger)
	if err != nil {
		return nil, err
	}
	return migrate.Encode(&migrate.Document{
		Version:  migrate.Current,
		Symbol:   st.Symbol,
		Provider: st.Provider,
		Bangs:    st.Bangs,
	})
}

// Export writes a backup to the service's backup storage.
func (s *Service) Export(ctx context.Context) (models.BackupFile, error) {
	if s.backups == nil {
		return models.BackupFile{}, fmt.Errorf("bangservice: no backup storage: %w", apperr.ErrInvalid)
	}
	return s.ExportTo(ctx, s.backups)
}

// ExportTo writes a backup to p.
func (s *Service) ExportTo(ctx context.Context, p storage.Provider) (models.BackupFile, error) {
	data, err := s.ExportDocument(ctx)
	if err != nil {
		return models.BackupFile{}, err
	}
	now := s.now()
	name := BackupName(now)
	if err := p.Write(name, data); err != nil {
		return models.BackupFile{}, err
	}
	s.logger.Info("backup: exported", slog.String("name", name), slog.Int("bytes", len(data)))
	return models.BackupFile{
		Name:      name,
		Size:      int64(len(data)),
		Checksum:  checksum.Sum(data),
		UpdatedAt: now.UTC(),
	}, nil
}

// ListBackups returns stored backups, newest first.
func (s *Service) ListBackups(_ context.Context) ([]models.BackupFile, error) {
	if s.backups == nil {
		return []models.BackupFile{}, nil
	}
	return s.backups.List()
}

// ImportFile imports a backup from the service's backup storage.
func (s *Service) ImportFile(ctx context.Context, name string) (ImportResult, error) {
	if s.backups == nil {
		return ImportResult{}, fmt.Errorf("bangservice: no backup storage: %w", apperr.ErrInvalid)
	}
	data, err := s.backups.Read(name)
	if err != nil {
		return ImportResult{}, err
	}
	return s.Import(ctx, data)
}

// Import decodes a backup of any supported version and merges it into the
// durable tier in one transaction. Custom bangs absent from the backup keep
// their relative order ahead of the imported ones; imported tokens replace
// existing ones. Nothing is written when decoding or the quota check fails.
func (s *Service) Import(ctx context.Context, data []byte) (ImportResult, error) {
	doc, err := migrate.Decode(data)
	if err != nil {
		return ImportResult{}, err
	}
	if doc.Provider != "" && !s.registry.Known(doc.Provider) {
		return ImportResult{}, fmt.Errorf("bangservice: backup provider %q: %w", doc.Provider, apperr.ErrMalformedBackup)
	}

	s.wmu.Lock()
	defer s.wmu.Unlock()

	st, err := settings.LoadState(ctx, s.durable, s.logger)
	if err != nil {
		return ImportResult{}, err
	}
	imported := make(map[string]bool, len(doc.Bangs))
	for _, b := range doc.Bangs {
		imported[b.Token] = true
	}

	merged := make([]models.BangDefinition, 0, len(st.Bangs)+len(doc.Bangs))
	for _, b := range st.Bangs {
		if !imported[b.Token] {
			merged = append(merged, b)
		}
	}
	merged = append(merged, doc.Bangs...)

	b := kvstore.Batch{Set: make(map[string]json.RawMessage, len(merged)+2)}
	for i, def := range merged {
		def.Order = i
		key, value, err := settings.EncodeBang(def)
		if err != nil {
			return ImportResult{}, err
		}
		b.Set[key] = value
	}
	if doc.Symbol != "" {
		b.Set[models.KeySymbol] = settings.EncodeValue(doc.Symbol)
	}
	if doc.Provider != "" {
		b.Set[models.KeyProvider] = settings.EncodeValue(doc.Provider)
	}
	if err := s.durable.Apply(ctx, b); err != nil {
		return ImportResult{}, err
	}

	s.logger.Info("backup: imported",
		slog.String("version", string(doc.Version)),
		slog.Int("bangs", len(doc.Bangs)),
	)
	s.resolver.Trigger(true)
	return ImportResult{
		Version:  doc.Version,
		Imported: len(doc.Bangs),
		Total:    len(merged),
		Symbol:   doc.Symbol,
		Provider: doc.Provider,
	}, nil
}
