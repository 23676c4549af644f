package service

import (
	"context"
	"log/slog"
	"strings"

	"github.com/neobackupapp/neobackup-server/internal/domain"
	"github.com/neobackupapp/neobackup-server/internal/store/sqlite"
	"github.com/neobackupapp/neobackup-server/internal/util"
	"github.com/neobackupapp/neobackup-server/internal/validation"
)

// ExtrasService manages custom tags and notes of packages. Changes are
// pushed to the search index.
type ExtrasService struct {
	store     *sqlite.Store
	search    *SearchService
	validator *validation.Validator
	logger    *slog.Logger
}

// NewExtrasService creates a new extras service. search may be nil.
func NewExtrasService(store *sqlite.Store, search *SearchService, validator *validation.Validator, logger *slog.Logger) *ExtrasService {
	return &ExtrasService{
		store:     store,
		search:    search,
		validator: validator,
		logger:    logger,
	}
}

// ListExtras returns the extras of every annotated package.
func (s *ExtrasService) ListExtras(ctx context.Context) (map[string]domain.AppExtras, error) {
	return s.store.ListExtras(ctx)
}

// GetExtras returns the extras of one package.
func (s *ExtrasService) GetExtras(ctx context.Context, pkg string) (*domain.AppExtras, error) {
	return s.store.GetExtras(ctx, pkg)
}

// ListTags returns every custom tag in use.
func (s *ExtrasService) ListTags(ctx context.Context) ([]string, error) {
	extras, err := s.store.ListExtras(ctx)
	if err != nil {
		return nil, err
	}
	var tags []string
	for _, e := range extras {
		tags = append(tags, e.CustomTags...)
	}
	return util.NormalizeTags(tags), nil
}

// SetExtras stores normalized extras for a package. Extras with neither tags
// nor a note are deleted.
func (s *ExtrasService) SetExtras(ctx context.Context, e *domain.AppExtras) (*domain.AppExtras, error) {
	if err := s.validator.Var("package_name", e.PackageName, "required,pkgname"); err != nil {
		return nil, err
	}
	clean := &domain.AppExtras{
		PackageName: e.PackageName,
		CustomTags:  util.NormalizeTags(e.CustomTags),
		Note:        strings.TrimSpace(e.Note),
	}

	if len(clean.CustomTags) == 0 && clean.Note == "" {
		if err := s.store.DeleteExtras(ctx, clean.PackageName); err != nil && !isNotFound(err) {
			return nil, err
		}
	} else if err := s.store.UpsertExtras(ctx, clean); err != nil {
		return nil, err
	}

	s.logger.Debug("package extras updated",
		slog.String("package", clean.PackageName),
		slog.Int("tags", len(clean.CustomTags)))
	s.reindex(ctx, clean.PackageName)
	return clean, nil
}

// DeleteExtras removes the extras of a package.
func (s *ExtrasService) DeleteExtras(ctx context.Context, pkg string) error {
	if err := s.store.DeleteExtras(ctx, pkg); err != nil {
		return err
	}
	s.reindex(ctx, pkg)
	return nil
}

func (s *ExtrasService) reindex(ctx context.Context, pkg string) {
	if s.search == nil {
		return
	}
	if err := s.search.IndexPackage(ctx, pkg); err != nil {
		s.logger.Warn("failed to reindex package", slog.String("package", pkg), slog.String("error", err.Error()))
	}
}
