package service

import (
	"github.com/pkg/errors"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/plateful-labs/cookbook-back/internal/db"
)

type RelationKind string

const (
	KindFavorite RelationKind = "favorite"
	KindCart     RelationKind = "shopping_cart"
	KindFollow   RelationKind = "follow"
)

// Relations is the ledger of Favorite/ShoppingCart/Follow pairs. Every kind is
// keyed by (subject, object); for Follow the object is another user, otherwise
// a recipe.
type Relations struct {
	db     *gorm.DB
	logger *zap.SugaredLogger
}

func NewRelations(db *gorm.DB, l *zap.SugaredLogger) *Relations {
	return &Relations{
		db:     db,
		logger: l,
	}
}

func (s *Relations) Add(kind RelationKind, subjectID, objectID uint64) error {
	if kind == KindFollow && subjectID == objectID {
		return ErrSelfFollow
	}
	if err := s.checkObjectExists(kind, objectID); err != nil {
		return err
	}

	exists, err := s.Exists(kind, subjectID, objectID)
	if err != nil {
		return err
	}
	if exists {
		return errors.Wrapf(ErrAlreadyExists, "%s (%d, %d)", kind, subjectID, objectID)
	}

	res := s.db.Create(s.newRow(kind, subjectID, objectID))
	if res.Error != nil {
		// concurrent duplicate add loses on the unique index
		if isUniqueViolation(res.Error) {
			return errors.Wrapf(ErrAlreadyExists, "%s (%d, %d)", kind, subjectID, objectID)
		}
		return res.Error
	}
	return nil
}

func (s *Relations) Remove(kind RelationKind, subjectID, objectID uint64) error {
	res := s.where(s.db, kind, subjectID, objectID).Delete(s.newRow(kind, 0, 0))
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return errors.Wrapf(ErrNotFound, "%s (%d, %d)", kind, subjectID, objectID)
	}
	return nil
}

func (s *Relations) Exists(kind RelationKind, subjectID, objectID uint64) (bool, error) {
	var count int64
	res := s.where(s.db.Model(s.newRow(kind, 0, 0)), kind, subjectID, objectID).Count(&count)
	if res.Error != nil {
		return false, res.Error
	}
	return count > 0, nil
}

func (s *Relations) newRow(kind RelationKind, subjectID, objectID uint64) interface{} {
	switch kind {
	case KindFavorite:
		return &db.Favorite{UserID: subjectID, RecipeID: objectID}
	case KindCart:
		return &db.ShoppingCart{UserID: subjectID, RecipeID: objectID}
	default:
		return &db.Follow{UserID: subjectID, AuthorID: objectID}
	}
}

func (s *Relations) where(q *gorm.DB, kind RelationKind, subjectID, objectID uint64) *gorm.DB {
	if kind == KindFollow {
		return q.Where("user_id = ? AND author_id = ?", subjectID, objectID)
	}
	return q.Where("user_id = ? AND recipe_id = ?", subjectID, objectID)
}

func (s *Relations) checkObjectExists(kind RelationKind, objectID uint64) error {
	var (
		count int64
		res   *gorm.DB
	)
	if kind == KindFollow {
		res = s.db.Model(&db.User{}).Where("id = ?", objectID).Count(&count)
	} else {
		res = s.db.Model(&db.Recipe{}).Where("id = ?", objectID).Count(&count)
	}
	if res.Error != nil {
		return res.Error
	}
	if count == 0 {
		return errors.Wrapf(ErrNotFound, "%s target %d", kind, objectID)
	}
	return nil
}
