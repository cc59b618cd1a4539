package contabase

import (
	"context"
	"time"

	"contaminer/pkg/remote"

	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type Service struct {
	db      *gorm.DB
	repo    Repository
	cluster *remote.Cluster
}

type ServiceParams struct {
	fx.In

	DB      *gorm.DB
	Cluster *remote.Cluster `optional:"true"`
}

func NewService(p ServiceParams) *Service {
	return &Service{
		db:      p.DB,
		repo:    NewRepository(p.DB),
		cluster: p.Cluster,
	}
}

func (s *Service) Repository() Repository { return s.repo }

func (s *Service) Current(ctx context.Context) (*ContaBase, error) {
	return s.repo.Current(ctx)
}

// Catalog returns the current snapshot with every category, contaminant,
// pack and model loaded.
func (s *Service) Catalog(ctx context.Context) (*ContaBase, error) {
	cb, err := s.repo.Current(ctx)
	if err != nil {
		return nil, err
	}
	cb.Categories, err = s.repo.Catalog(ctx, cb.ID)
	if err != nil {
		return nil, err
	}
	return cb, nil
}

// Sync rebuilds the catalog from the cluster. The previous snapshot is kept,
// marked obsolete, so that older tasks keep their packs.
func (s *Service) Sync(ctx context.Context) (*ContaBase, error) {
	start := time.Now()

	out, err := s.cluster.Display(ctx)
	if err != nil {
		zap.L().Error("[ContaBase] display failed", zap.Error(err))
		return nil, err
	}

	categories, err := ParseExport([]byte(out))
	if err != nil {
		zap.L().Error("[ContaBase] rejected catalog export", zap.Error(err))
		return nil, err
	}

	return s.Replace(ctx, categories, start)
}

// Replace stores categories as the new current snapshot.
func (s *Service) Replace(ctx context.Context, categories []Category, start time.Time) (*ContaBase, error) {
	cb := &ContaBase{Categories: categories}
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Model(&ContaBase{}).
			Where("obsolete = ?", false).
			Update("obsolete", true).Error; err != nil {
			return err
		}
		return tx.Create(cb).Error
	})
	if err != nil {
		zap.L().Error("[ContaBase] failed to store snapshot", zap.Error(err))
		return nil, err
	}

	zap.L().Info("[ContaBase] synchronized",
		zap.Int64("contabase_id", cb.ID),
		zap.Int("categories", len(categories)),
		zap.Duration("duration", time.Since(start)),
	)
	return cb, nil
}
