package contabase

import (
	"context"
	"errors"

	"contaminer/pkg/errutil"

	"gorm.io/gorm"
)

// Repository reads the catalog. Writes only happen through Sync.
type Repository interface {
	WithTrx(tx *gorm.DB) Repository
	Current(ctx context.Context) (*ContaBase, error)
	Catalog(ctx context.Context, contabaseID int64) ([]Category, error)
	Contaminants(ctx context.Context, contabaseID int64) ([]Contaminant, error)
	FindPacks(ctx context.Context, contabaseID int64, uniprotID string, number int) ([]Pack, error)
	Pack(ctx context.Context, packID int64) (*Pack, error)
}

type gormRepository struct {
	db *gorm.DB
}

func NewRepository(db *gorm.DB) Repository {
	return &gormRepository{db: db}
}

func (r *gormRepository) WithTrx(tx *gorm.DB) Repository {
	if tx == nil {
		return r
	}
	return &gormRepository{db: tx}
}

func (r *gormRepository) Current(ctx context.Context) (*ContaBase, error) {
	var cb ContaBase
	err := r.db.WithContext(ctx).
		Where("obsolete = ?", false).
		Order("id DESC").
		First(&cb).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, errutil.NotFound("the contabase is empty, run sync first", err)
	}
	if err != nil {
		return nil, err
	}
	return &cb, nil
}

func (r *gormRepository) Catalog(ctx context.Context, contabaseID int64) ([]Category, error) {
	var categories []Category
	err := r.db.WithContext(ctx).
		Where("contabase_id = ?", contabaseID).
		Preload("Contaminants", func(db *gorm.DB) *gorm.DB { return db.Order("uniprot_id") }).
		Preload("Contaminants.Packs", func(db *gorm.DB) *gorm.DB { return db.Order("number") }).
		Preload("Contaminants.Packs.Models").
		Preload("Contaminants.References", func(db *gorm.DB) *gorm.DB { return db.Order("pubmed_id") }).
		Preload("Contaminants.Suggestions", func(db *gorm.DB) *gorm.DB { return db.Order("id") }).
		Order("number").
		Find(&categories).Error
	return categories, err
}

func (r *gormRepository) Contaminants(ctx context.Context, contabaseID int64) ([]Contaminant, error) {
	var contaminants []Contaminant
	err := r.db.WithContext(ctx).
		Joins("JOIN categories ON categories.id = contaminants.category_id").
		Where("categories.contabase_id = ?", contabaseID).
		Order("contaminants.uniprot_id").
		Find(&contaminants).Error
	return contaminants, err
}

// FindPacks returns every pack numbered number of the contaminant uniprotID
// in the snapshot. More than one match means the catalog is inconsistent.
func (r *gormRepository) FindPacks(ctx context.Context, contabaseID int64, uniprotID string, number int) ([]Pack, error) {
	var packs []Pack
	err := r.db.WithContext(ctx).
		Joins("JOIN contaminants ON contaminants.id = packs.contaminant_id").
		Joins("JOIN categories ON categories.id = contaminants.category_id").
		Where("categories.contabase_id = ? AND contaminants.uniprot_id = ? AND packs.number = ?", contabaseID, uniprotID, number).
		Find(&packs).Error
	return packs, err
}

func (r *gormRepository) Pack(ctx context.Context, packID int64) (*Pack, error) {
	var pack Pack
	err := r.db.WithContext(ctx).
		Preload("Contaminant").
		Preload("Models").
		First(&pack, packID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, errutil.NotFound("pack not found", err)
	}
	if err != nil {
		return nil, err
	}
	return &pack, nil
}
