package service

import (
	"strings"

	"github.com/pkg/errors"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/plateful-labs/cookbook-back/internal/db"
)

// Catalog serves the admin-managed reference data: tags and ingredients.
// Rows are seeded out-of-band, this service only reads them.
type Catalog struct {
	db     *gorm.DB
	logger *zap.SugaredLogger
}

func NewCatalog(db *gorm.DB, l *zap.SugaredLogger) *Catalog {
	return &Catalog{
		db:     db,
		logger: l,
	}
}

func (s *Catalog) TagList() ([]db.Tag, error) {
	tags := make([]db.Tag, 0)
	res := s.db.Order("id").Find(&tags)
	if res.Error != nil {
		return nil, res.Error
	}
	return tags, nil
}

func (s *Catalog) TagGet(id uint64) (*db.Tag, error) {
	tag := db.Tag{}
	res := s.db.First(&tag, id)
	if res.Error != nil {
		if errors.Is(res.Error, gorm.ErrRecordNotFound) {
			return nil, errors.Wrap(ErrNotFound, "tag")
		}
		return nil, res.Error
	}
	return &tag, nil
}

// IngredientList returns ingredients whose name starts with namePrefix,
// case-insensitively. An empty prefix returns everything.
func (s *Catalog) IngredientList(namePrefix string) ([]db.Ingredient, error) {
	ingredients := make([]db.Ingredient, 0)
	q := s.db.Order("name")
	if namePrefix != "" {
		q = q.Where("lower(name) LIKE ?", strings.ToLower(namePrefix)+"%")
	}
	res := q.Find(&ingredients)
	if res.Error != nil {
		return nil, res.Error
	}
	return ingredients, nil
}

func (s *Catalog) IngredientGet(id uint64) (*db.Ingredient, error) {
	ingredient := db.Ingredient{}
	res := s.db.First(&ingredient, id)
	if res.Error != nil {
		if errors.Is(res.Error, gorm.ErrRecordNotFound) {
			return nil, errors.Wrap(ErrNotFound, "ingredient")
		}
		return nil, res.Error
	}
	return &ingredient, nil
}
