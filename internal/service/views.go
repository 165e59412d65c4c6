package service

import (
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/plateful-labs/cookbook-back/internal/db"
)

type (
	TagView struct {
		ID    uint64 `json:"id"`
		Name  string `json:"name"`
		Color string `json:"color"`
		Slug  string `json:"slug"`
	}

	IngredientView struct {
		ID              uint64 `json:"id"`
		Name            string `json:"name"`
		MeasurementUnit string `json:"measurement_unit"`
	}

	IngredientLineView struct {
		ID              uint64 `json:"id"`
		Name            string `json:"name"`
		MeasurementUnit string `json:"measurement_unit"`
		Amount          uint   `json:"amount"`
	}

	UserView struct {
		ID           uint64 `json:"id"`
		Email        string `json:"email"`
		Username     string `json:"username"`
		FirstName    string `json:"first_name"`
		LastName     string `json:"last_name"`
		IsSubscribed bool   `json:"is_subscribed"`
	}

	RecipeView struct {
		ID               uint64               `json:"id"`
		Tags             []TagView            `json:"tags"`
		Author           UserView             `json:"author"`
		Ingredients      []IngredientLineView `json:"ingredients"`
		IsFavorited      bool                 `json:"is_favorited"`
		IsInShoppingCart bool                 `json:"is_in_shopping_cart"`
		Name             string               `json:"name"`
		Image            string               `json:"image"`
		Text             string               `json:"text"`
		CookingTime      uint                 `json:"cooking_time"`
	}

	RecipeShortView struct {
		ID          uint64 `json:"id"`
		Name        string `json:"name"`
		Image       string `json:"image"`
		CookingTime uint   `json:"cooking_time"`
	}

	UserRecipesView struct {
		UserView
		Recipes      []RecipeShortView `json:"recipes"`
		RecipesCount int64             `json:"recipes_count"`
	}
)

// Views computes viewer-relative projections. A nil viewer is an anonymous
// request: every is_* flag comes out false.
type Views struct {
	db        *gorm.DB
	relations *Relations
	logger    *zap.SugaredLogger
}

func NewViews(db *gorm.DB, relations *Relations, l *zap.SugaredLogger) *Views {
	return &Views{
		db:        db,
		relations: relations,
		logger:    l,
	}
}

func (s *Views) Tag(t *db.Tag) TagView {
	return TagView{
		ID:    t.ID,
		Name:  t.Name,
		Color: t.Color,
		Slug:  t.Slug,
	}
}

func (s *Views) Ingredient(i *db.Ingredient) IngredientView {
	return IngredientView{
		ID:              i.ID,
		Name:            i.Name,
		MeasurementUnit: i.MeasurementUnit,
	}
}

func (s *Views) User(u *db.User, viewer *db.User) (UserView, error) {
	subscribed := false
	if viewer != nil {
		var err error
		subscribed, err = s.relations.Exists(KindFollow, viewer.ID, u.ID)
		if err != nil {
			return UserView{}, err
		}
	}
	return UserView{
		ID:           u.ID,
		Email:        u.Email,
		Username:     u.Username,
		FirstName:    u.FirstName,
		LastName:     u.LastName,
		IsSubscribed: subscribed,
	}, nil
}

// Recipe expects the aggregate loaded with Author, TagLinks and
// Lines.Ingredient (Recipes.Get and Recipes.List do that).
func (s *Views) Recipe(r *db.Recipe, viewer *db.User) (RecipeView, error) {
	author, err := s.User(&r.Author, viewer)
	if err != nil {
		return RecipeView{}, err
	}

	tagIDs := make([]uint64, len(r.TagLinks))
	for i := range r.TagLinks {
		tagIDs[i] = r.TagLinks[i].TagID
	}
	tags := make([]db.Tag, 0, len(tagIDs))
	if len(tagIDs) != 0 {
		res := s.db.Where("id IN ?", tagIDs).Order("id").Find(&tags)
		if res.Error != nil {
			return RecipeView{}, res.Error
		}
	}
	tagViews := make([]TagView, len(tags))
	for i := range tags {
		tagViews[i] = s.Tag(&tags[i])
	}

	lines := make([]IngredientLineView, len(r.Lines))
	for i := range r.Lines {
		lines[i] = IngredientLineView{
			ID:              r.Lines[i].IngredientID,
			Name:            r.Lines[i].Ingredient.Name,
			MeasurementUnit: r.Lines[i].Ingredient.MeasurementUnit,
			Amount:          r.Lines[i].Amount,
		}
	}

	favorited := false
	inCart := false
	if viewer != nil {
		if favorited, err = s.relations.Exists(KindFavorite, viewer.ID, r.ID); err != nil {
			return RecipeView{}, err
		}
		if inCart, err = s.relations.Exists(KindCart, viewer.ID, r.ID); err != nil {
			return RecipeView{}, err
		}
	}

	return RecipeView{
		ID:               r.ID,
		Tags:             tagViews,
		Author:           author,
		Ingredients:      lines,
		IsFavorited:      favorited,
		IsInShoppingCart: inCart,
		Name:             r.Name,
		Image:            r.Image,
		Text:             r.Text,
		CookingTime:      r.CookingTime,
	}, nil
}

func (s *Views) RecipeShort(r *db.Recipe) RecipeShortView {
	return RecipeShortView{
		ID:          r.ID,
		Name:        r.Name,
		Image:       r.Image,
		CookingTime: r.CookingTime,
	}
}

func (s *Views) RecipesCount(userID uint64) (int64, error) {
	var count int64
	res := s.db.Model(&db.Recipe{}).Where("author_id = ?", userID).Count(&count)
	if res.Error != nil {
		return 0, res.Error
	}
	return count, nil
}

// UserWithRecipes annotates a user with their recipe count and recipes,
// newest-first, capped at recipesLimit (0 means unbounded).
func (s *Views) UserWithRecipes(u *db.User, viewer *db.User, recipesLimit int) (UserRecipesView, error) {
	base, err := s.User(u, viewer)
	if err != nil {
		return UserRecipesView{}, err
	}

	count, err := s.RecipesCount(u.ID)
	if err != nil {
		return UserRecipesView{}, err
	}

	q := s.db.Where("author_id = ?", u.ID).Order("pub_date DESC, id DESC")
	if recipesLimit > 0 {
		q = q.Limit(recipesLimit)
	}
	recipes := make([]db.Recipe, 0)
	if res := q.Find(&recipes); res.Error != nil {
		return UserRecipesView{}, res.Error
	}

	shorts := make([]RecipeShortView, len(recipes))
	for i := range recipes {
		shorts[i] = s.RecipeShort(&recipes[i])
	}

	return UserRecipesView{
		UserView:     base,
		Recipes:      shorts,
		RecipesCount: count,
	}, nil
}

// Subscriptions lists every author the viewer follows, in follow insertion
// order.
func (s *Views) Subscriptions(viewer *db.User, recipesLimit int) ([]UserRecipesView, error) {
	follows := make([]db.Follow, 0)
	res := s.db.Where("user_id = ?", viewer.ID).Order("id").Find(&follows)
	if res.Error != nil {
		return nil, res.Error
	}

	views := make([]UserRecipesView, 0, len(follows))
	for _, f := range follows {
		author := db.User{}
		if res := s.db.First(&author, f.AuthorID); res.Error != nil {
			return nil, res.Error
		}
		view, err := s.UserWithRecipes(&author, viewer, recipesLimit)
		if err != nil {
			return nil, err
		}
		views = append(views, view)
	}
	return views, nil
}
