package db

import (
	"fmt"
	"log"
	"os"
	"time"

	"github.com/pkg/errors"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/plateful-labs/cookbook-back/internal/config"
)

const (
	// Bounds for cooking_time and ingredient amounts, small-int semantics.
	MinPositive    = 1
	MaxCookingTime = 32000
	MaxAmount      = 32000
)

type (
	GormForkedModel struct {
		ID        uint64 `gorm:"primarykey"`
		CreatedAt time.Time
		UpdatedAt time.Time
	}

	User struct {
		GormForkedModel
		Email        string   `gorm:"unique;not null"`
		Username     string   `gorm:"unique;not null"`
		FirstName    string   `gorm:"not null"`
		LastName     string   `gorm:"not null"`
		PasswordHash string   `gorm:"not null"`
		Token        string   `gorm:"not null"`
		Recipes      []Recipe `gorm:"foreignKey:AuthorID"`
	}

	Tag struct {
		GormForkedModel
		Name  string `gorm:"unique;not null"`
		Color string `gorm:"unique;not null"`
		Slug  string `gorm:"unique;not null"`
	}

	Ingredient struct {
		GormForkedModel
		Name            string `gorm:"not null;uniqueIndex:uidx_ingredient_name_unit"`
		MeasurementUnit string `gorm:"not null;uniqueIndex:uidx_ingredient_name_unit"`
	}

	Recipe struct {
		GormForkedModel
		Name        string `gorm:"not null;uniqueIndex:uidx_recipe_author_name"`
		AuthorID    uint64 `gorm:"not null;uniqueIndex:uidx_recipe_author_name"`
		Author      User
		Text        string    `gorm:"not null"`
		Image       string    `gorm:"not null"`
		CookingTime uint      `gorm:"not null"`
		PubDate     time.Time `gorm:"not null"`
		TagLinks    []TagLink        `gorm:"constraint:OnDelete:CASCADE"`
		Lines       []IngredientLine `gorm:"constraint:OnDelete:CASCADE"`
	}

	// TagLink ties a recipe to a tag. Kept as an explicit join model so
	// create/update can replace the whole set inside one transaction.
	TagLink struct {
		GormForkedModel
		RecipeID uint64 `gorm:"not null;uniqueIndex:uidx_link_recipe_tag"`
		TagID    uint64 `gorm:"not null;uniqueIndex:uidx_link_recipe_tag"`
	}

	// IngredientLine is a (recipe, ingredient, amount) row. An ingredient
	// appears at most once per recipe.
	IngredientLine struct {
		GormForkedModel
		RecipeID     uint64 `gorm:"not null;uniqueIndex:uidx_line_recipe_ingredient"`
		IngredientID uint64 `gorm:"not null;uniqueIndex:uidx_line_recipe_ingredient"`
		Ingredient   Ingredient
		Amount       uint `gorm:"not null"`
	}

	Favorite struct {
		GormForkedModel
		UserID   uint64 `gorm:"not null;uniqueIndex:uidx_favorite_user_recipe"`
		RecipeID uint64 `gorm:"not null;uniqueIndex:uidx_favorite_user_recipe"`
	}

	ShoppingCart struct {
		GormForkedModel
		UserID   uint64 `gorm:"not null;uniqueIndex:uidx_cart_user_recipe"`
		RecipeID uint64 `gorm:"not null;uniqueIndex:uidx_cart_user_recipe"`
	}

	Follow struct {
		GormForkedModel
		UserID   uint64 `gorm:"not null;uniqueIndex:uidx_follow_user_author"`
		AuthorID uint64 `gorm:"not null;uniqueIndex:uidx_follow_user_author"`
	}
)

func NewGormClient(cfg *config.Config) (*gorm.DB, error) {
	newLogger := logger.New(log.New(os.Stdout, "\r\n", log.LstdFlags), logger.Config{
		SlowThreshold:             200 * time.Millisecond,
		LogLevel:                  logger.Info,
		Colorful:                  true,
		IgnoreRecordNotFoundError: false,
	})

	dsn := fmt.Sprintf("host=%s user=%s password=%s dbname=%s port=%s sslmode=%s",
		cfg.DBHost, cfg.DBUser, cfg.DBPassword, cfg.DBName, cfg.DBPort, cfg.DBSSLMode)
	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{
		Logger: newLogger,
	})
	if err != nil {
		return nil, errors.Wrap(err, "failed to connect database")
	}

	if err := Migrate(db); err != nil {
		return nil, err
	}

	return db, nil
}

// Migrate creates or updates the schema for every model. Split out of
// NewGormClient so tests can run it against their own connection.
func Migrate(db *gorm.DB) error {
	models := []interface{}{
		&User{},
		&Tag{},
		&Ingredient{},
		&Recipe{},
		&TagLink{},
		&IngredientLine{},
		&Favorite{},
		&ShoppingCart{},
		&Follow{},
	}
	for _, m := range models {
		if err := db.AutoMigrate(m); err != nil {
			return errors.Wrapf(err, "migrate %T", m)
		}
	}
	return nil
}
