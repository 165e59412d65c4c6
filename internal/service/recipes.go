package service

import (
	"fmt"
	"time"

	"github.com/Masterminds/squirrel"
	"github.com/pkg/errors"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/plateful-labs/cookbook-back/internal/db"
)

// ImageStore persists an encoded image payload and returns its reference.
type ImageStore interface {
	Save(payload string) (string, error)
}

type (
	IngredientAmount struct {
		IngredientID uint64
		Amount       uint
	}

	// RecipeInput is the full field set for create and update. Partial edits
	// are not supported: the tag and ingredient sets always replace the old
	// ones entirely.
	RecipeInput struct {
		Name        string
		Text        string
		Image       string // encoded payload, not a reference
		CookingTime uint
		TagIDs      []uint64
		Ingredients []IngredientAmount
	}

	RecipeFilter struct {
		AuthorID    *uint64
		TagSlugs    []string
		FavoritedBy *uint64
		InCartOf    *uint64
	}

	Recipes struct {
		db     *gorm.DB
		images ImageStore
		logger *zap.SugaredLogger
	}
)

func NewRecipes(db *gorm.DB, images ImageStore, l *zap.SugaredLogger) *Recipes {
	return &Recipes{
		db:     db,
		images: images,
		logger: l,
	}
}

// Create validates the whole input, reporting every violated rule at once,
// then writes the recipe row and all of its tag links and ingredient lines as
// one transaction.
func (s *Recipes) Create(authorID uint64, in RecipeInput) (*db.Recipe, error) {
	imageRef, err := s.validate(in)
	if err != nil {
		return nil, err
	}
	if err := s.checkNameFree(authorID, in.Name, 0); err != nil {
		return nil, err
	}

	recipe := db.Recipe{
		Name:        in.Name,
		AuthorID:    authorID,
		Text:        in.Text,
		Image:       imageRef,
		CookingTime: in.CookingTime,
		PubDate:     time.Now(),
	}
	err = s.db.Transaction(func(tx *gorm.DB) error {
		if res := tx.Create(&recipe); res.Error != nil {
			return res.Error
		}
		return s.writeAssociations(tx, recipe.ID, in)
	})
	if err != nil {
		if isUniqueViolation(err) {
			return nil, errors.Wrapf(ErrUniqueConflict, "recipe %q by author %d", in.Name, authorID)
		}
		return nil, errors.Wrap(err, "create recipe")
	}

	return s.Get(recipe.ID)
}

// Update re-validates everything and replaces the recipe's scalar fields and
// both association sets in one transaction. PubDate is never touched.
func (s *Recipes) Update(recipeID uint64, in RecipeInput) (*db.Recipe, error) {
	recipe, err := s.Get(recipeID)
	if err != nil {
		return nil, err
	}

	imageRef, err := s.validate(in)
	if err != nil {
		return nil, err
	}
	if err := s.checkNameFree(recipe.AuthorID, in.Name, recipeID); err != nil {
		return nil, err
	}

	err = s.db.Transaction(func(tx *gorm.DB) error {
		res := tx.Model(&db.Recipe{GormForkedModel: db.GormForkedModel{ID: recipeID}}).
			Updates(map[string]interface{}{
				"name":         in.Name,
				"text":         in.Text,
				"image":        imageRef,
				"cooking_time": in.CookingTime,
			})
		if res.Error != nil {
			return res.Error
		}
		if res := tx.Where("recipe_id = ?", recipeID).Delete(&db.TagLink{}); res.Error != nil {
			return res.Error
		}
		if res := tx.Where("recipe_id = ?", recipeID).Delete(&db.IngredientLine{}); res.Error != nil {
			return res.Error
		}
		return s.writeAssociations(tx, recipeID, in)
	})
	if err != nil {
		if isUniqueViolation(err) {
			return nil, errors.Wrapf(ErrUniqueConflict, "recipe %q by author %d", in.Name, recipe.AuthorID)
		}
		return nil, errors.Wrap(err, "update recipe")
	}

	return s.Get(recipeID)
}

func (s *Recipes) Delete(recipeID uint64) error {
	if _, err := s.Get(recipeID); err != nil {
		return err
	}
	return s.db.Transaction(func(tx *gorm.DB) error {
		for _, m := range []interface{}{&db.TagLink{}, &db.IngredientLine{}, &db.Favorite{}, &db.ShoppingCart{}} {
			if res := tx.Where("recipe_id = ?", recipeID).Delete(m); res.Error != nil {
				return res.Error
			}
		}
		res := tx.Delete(&db.Recipe{}, recipeID)
		return res.Error
	})
}

func (s *Recipes) Get(recipeID uint64) (*db.Recipe, error) {
	recipe := db.Recipe{}
	res := s.db.
		Preload("Author").
		Preload("TagLinks").
		Preload("Lines").
		Preload("Lines.Ingredient").
		First(&recipe, recipeID)
	if res.Error != nil {
		if errors.Is(res.Error, gorm.ErrRecordNotFound) {
			return nil, errors.Wrapf(ErrNotFound, "recipe %d", recipeID)
		}
		return nil, res.Error
	}
	return &recipe, nil
}

// List returns recipes newest-first, narrowed by the filter.
func (s *Recipes) List(f RecipeFilter) ([]db.Recipe, error) {
	b := squirrel.Select("r.id").From("recipes r").
		GroupBy("r.id").
		OrderBy("MAX(r.pub_date) DESC", "r.id DESC")

	if f.AuthorID != nil {
		b = b.Where(squirrel.Eq{"r.author_id": *f.AuthorID})
	}
	if len(f.TagSlugs) != 0 {
		b = b.Join("tag_links tl ON tl.recipe_id = r.id").
			Join("tags t ON t.id = tl.tag_id").
			Where(squirrel.Eq{"t.slug": f.TagSlugs})
	}
	if f.FavoritedBy != nil {
		b = b.Join("favorites fav ON fav.recipe_id = r.id").
			Where(squirrel.Eq{"fav.user_id": *f.FavoritedBy})
	}
	if f.InCartOf != nil {
		b = b.Join("shopping_carts sc ON sc.recipe_id = r.id").
			Where(squirrel.Eq{"sc.user_id": *f.InCartOf})
	}

	sql, args, err := b.ToSql()
	if err != nil {
		return nil, errors.Wrap(err, "build sql")
	}

	ids := make([]uint64, 0)
	if res := s.db.Raw(sql, args...).Scan(&ids); res.Error != nil {
		return nil, errors.Wrap(res.Error, "scan recipe ids")
	}
	if len(ids) == 0 {
		return []db.Recipe{}, nil
	}

	recipes := make([]db.Recipe, 0, len(ids))
	res := s.db.
		Preload("Author").
		Preload("TagLinks").
		Preload("Lines").
		Preload("Lines.Ingredient").
		Where("id IN ?", ids).
		Order("pub_date DESC, id DESC").
		Find(&recipes)
	if res.Error != nil {
		return nil, res.Error
	}
	return recipes, nil
}

// validate collects every violated rule. On success it stores the image and
// returns its reference.
func (s *Recipes) validate(in RecipeInput) (string, error) {
	reasons := make([]string, 0)

	if in.Name == "" {
		reasons = append(reasons, "name is required")
	}
	if in.Text == "" {
		reasons = append(reasons, "text is required")
	}
	if in.CookingTime < db.MinPositive || in.CookingTime > db.MaxCookingTime {
		reasons = append(reasons, fmt.Sprintf("cooking_time must be between %d and %d", db.MinPositive, db.MaxCookingTime))
	}

	if len(in.TagIDs) == 0 {
		reasons = append(reasons, "tags must not be empty")
	} else {
		seen := make(map[uint64]bool, len(in.TagIDs))
		for _, id := range in.TagIDs {
			if seen[id] {
				reasons = append(reasons, fmt.Sprintf("duplicate tag id %d", id))
			}
			seen[id] = true
		}
		missing, err := s.missingIDs(&db.Tag{}, in.TagIDs)
		if err != nil {
			return "", err
		}
		for _, id := range missing {
			reasons = append(reasons, fmt.Sprintf("tag %d does not exist", id))
		}
	}

	if len(in.Ingredients) == 0 {
		reasons = append(reasons, "ingredients must not be empty")
	} else {
		seen := make(map[uint64]bool, len(in.Ingredients))
		ids := make([]uint64, 0, len(in.Ingredients))
		for _, line := range in.Ingredients {
			if seen[line.IngredientID] {
				reasons = append(reasons, fmt.Sprintf("duplicate ingredient id %d", line.IngredientID))
			}
			seen[line.IngredientID] = true
			ids = append(ids, line.IngredientID)
			if line.Amount < db.MinPositive || line.Amount > db.MaxAmount {
				reasons = append(reasons, fmt.Sprintf("amount for ingredient %d must be between %d and %d",
					line.IngredientID, db.MinPositive, db.MaxAmount))
			}
		}
		missing, err := s.missingIDs(&db.Ingredient{}, ids)
		if err != nil {
			return "", err
		}
		for _, id := range missing {
			reasons = append(reasons, fmt.Sprintf("ingredient %d does not exist", id))
		}
	}

	imageRef := ""
	if in.Image == "" {
		reasons = append(reasons, "image is required")
	} else {
		ref, err := s.images.Save(in.Image)
		if err != nil {
			reasons = append(reasons, "image payload is not a valid image")
		} else {
			imageRef = ref
		}
	}

	if len(reasons) != 0 {
		return "", &ValidationError{Reasons: reasons}
	}
	return imageRef, nil
}

func (s *Recipes) missingIDs(model interface{}, ids []uint64) ([]uint64, error) {
	found := make([]uint64, 0, len(ids))
	res := s.db.Model(model).Where("id IN ?", ids).Pluck("id", &found)
	if res.Error != nil {
		return nil, res.Error
	}
	foundSet := make(map[uint64]bool, len(found))
	for _, id := range found {
		foundSet[id] = true
	}
	missing := make([]uint64, 0)
	for _, id := range ids {
		if !foundSet[id] {
			foundSet[id] = true // report each missing id once
			missing = append(missing, id)
		}
	}
	return missing, nil
}

func (s *Recipes) checkNameFree(authorID uint64, name string, excludeID uint64) error {
	var count int64
	res := s.db.Model(&db.Recipe{}).
		Where("author_id = ? AND name = ? AND id <> ?", authorID, name, excludeID).
		Count(&count)
	if res.Error != nil {
		return res.Error
	}
	if count != 0 {
		return errors.Wrapf(ErrUniqueConflict, "recipe %q by author %d", name, authorID)
	}
	return nil
}

func (s *Recipes) writeAssociations(tx *gorm.DB, recipeID uint64, in RecipeInput) error {
	links := make([]db.TagLink, len(in.TagIDs))
	for i, tagID := range in.TagIDs {
		links[i] = db.TagLink{RecipeID: recipeID, TagID: tagID}
	}
	if res := tx.Create(&links); res.Error != nil {
		return res.Error
	}

	lines := make([]db.IngredientLine, len(in.Ingredients))
	for i, line := range in.Ingredients {
		lines[i] = db.IngredientLine{
			RecipeID:     recipeID,
			IngredientID: line.IngredientID,
			Amount:       line.Amount,
		}
	}
	if res := tx.Create(&lines); res.Error != nil {
		return res.Error
	}
	return nil
}
