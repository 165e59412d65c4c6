package transport

import (
	"context"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-playground/validator"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/pkg/errors"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/plateful-labs/cookbook-back/internal/config"
	"github.com/plateful-labs/cookbook-back/internal/db"
	"github.com/plateful-labs/cookbook-back/internal/service"
)

type (
	RegisterReq struct {
		Email     string `json:"email" validate:"required,email"`
		Username  string `json:"username" validate:"required"`
		FirstName string `json:"first_name" validate:"required"`
		LastName  string `json:"last_name" validate:"required"`
		Password  string `json:"password" validate:"required,min=8"`
	}

	LoginReq struct {
		Email    string `json:"email" validate:"required,email"`
		Password string `json:"password" validate:"required"`
	}

	TokenResp struct {
		Token string `json:"token"`
	}

	IngredientAmountReq struct {
		ID     uint64 `json:"id"`
		Amount uint   `json:"amount"`
	}

	// RecipeReq carries the full field set; deep rule checks live in the
	// service so that all violations come back together.
	RecipeReq struct {
		Name        string                `json:"name"`
		Text        string                `json:"text"`
		Image       string                `json:"image"`
		CookingTime uint                  `json:"cooking_time"`
		Tags        []uint64              `json:"tags"`
		Ingredients []IngredientAmountReq `json:"ingredients"`
	}

	CustomValidator struct {
		validator *validator.Validate
	}

	HTTPServer struct {
		db        *gorm.DB
		accounts  *service.Accounts
		catalog   *service.Catalog
		recipes   *service.Recipes
		relations *service.Relations
		shopping  *service.ShoppingList
		views     *service.Views
		logger    *zap.SugaredLogger
	}
)

func NewHTTPServer(
	lc fx.Lifecycle,
	cfg *config.Config,
	gormDB *gorm.DB,
	accounts *service.Accounts,
	catalog *service.Catalog,
	recipes *service.Recipes,
	relations *service.Relations,
	shopping *service.ShoppingList,
	views *service.Views,
	logger *zap.SugaredLogger,
) *HTTPServer {
	e := echo.New()

	instance := HTTPServer{
		db:        gormDB,
		accounts:  accounts,
		catalog:   catalog,
		recipes:   recipes,
		relations: relations,
		shopping:  shopping,
		views:     views,
		logger:    logger,
	}

	e.POST("/auth/register", instance.Register)
	e.POST("/auth/login", instance.Login)

	tagG := e.Group("/tags")
	tagG.GET("", instance.TagList)
	tagG.GET("/:id", instance.TagGet)

	ingredientG := e.Group("/ingredients")
	ingredientG.GET("", instance.IngredientList)
	ingredientG.GET("/:id", instance.IngredientGet)

	recipeG := e.Group("/recipes")
	recipeG.GET("", instance.RecipeList)
	recipeG.POST("", instance.RecipeCreate)
	recipeG.GET("/download_shopping_cart", instance.DownloadShoppingCart)
	recipeG.GET("/:id", instance.RecipeGet)
	recipeG.PATCH("/:id", instance.RecipeUpdate)
	recipeG.DELETE("/:id", instance.RecipeDelete)
	recipeG.POST("/:id/favorite", instance.relationAdd(service.KindFavorite))
	recipeG.DELETE("/:id/favorite", instance.relationRemove(service.KindFavorite))
	recipeG.POST("/:id/shopping_cart", instance.relationAdd(service.KindCart))
	recipeG.DELETE("/:id/shopping_cart", instance.relationRemove(service.KindCart))

	userG := e.Group("/users")
	userG.GET("/subscriptions", instance.Subscriptions)
	userG.POST("/:id/subscribe", instance.Subscribe)
	userG.DELETE("/:id/subscribe", instance.Unsubscribe)

	e.GET("/ping", func(c echo.Context) error { return c.String(http.StatusOK, "pong") })

	e.Use(middleware.CORS())
	e.Use(middleware.Logger())
	e.Use(middleware.Recover())

	e.Use(instance.AuthMiddleware)

	e.Validator = &CustomValidator{validator: validator.New()}

	echo.NotFoundHandler = func(c echo.Context) error {
		return c.NoContent(http.StatusNotFound)
	}

	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			go func() {
				listen := cfg.Host + ":" + cfg.Port
				if err := e.Start(listen); err != nil && err != http.ErrServerClosed {
					e.Logger.Fatal("shutting down the server")
				}
			}()
			return nil
		},
		OnStop: func(ctx context.Context) error {
			logger.Info("Stopping HTTP server.")
			return e.Shutdown(ctx)
		},
	})

	return &instance
}

func (s *HTTPServer) Register(c echo.Context) error {
	req := RegisterReq{}
	if err := BindAndValidate(c, &req); err != nil {
		return err
	}

	token, err := s.accounts.Register(req.Email, req.Username, req.FirstName, req.LastName, req.Password)
	if err != nil {
		return mapServiceError(err)
	}
	return c.JSON(http.StatusOK, &TokenResp{Token: token})
}

func (s *HTTPServer) Login(c echo.Context) error {
	req := LoginReq{}
	if err := BindAndValidate(c, &req); err != nil {
		return err
	}

	token, err := s.accounts.Login(req.Email, req.Password)
	if err != nil {
		if errors.Is(err, service.ErrLoginUserNotFound) || errors.Is(err, service.ErrLoginPasswordDoesNotMatch) {
			return echo.NewHTTPError(http.StatusBadRequest, echo.Map{"errors": "invalid credentials"})
		}
		return err
	}
	return c.JSON(http.StatusOK, &TokenResp{Token: token})
}

func (s *HTTPServer) TagList(c echo.Context) error {
	tags, err := s.catalog.TagList()
	if err != nil {
		return err
	}
	resp := make([]service.TagView, len(tags))
	for i := range tags {
		resp[i] = s.views.Tag(&tags[i])
	}
	return c.JSON(http.StatusOK, resp)
}

func (s *HTTPServer) TagGet(c echo.Context) error {
	id, err := GetAndParseParam(c, "id")
	if err != nil {
		return err
	}
	tag, err := s.catalog.TagGet(id)
	if err != nil {
		return mapServiceError(err)
	}
	return c.JSON(http.StatusOK, s.views.Tag(tag))
}

func (s *HTTPServer) IngredientList(c echo.Context) error {
	ingredients, err := s.catalog.IngredientList(c.QueryParam("name"))
	if err != nil {
		return err
	}
	resp := make([]service.IngredientView, len(ingredients))
	for i := range ingredients {
		resp[i] = s.views.Ingredient(&ingredients[i])
	}
	return c.JSON(http.StatusOK, resp)
}

func (s *HTTPServer) IngredientGet(c echo.Context) error {
	id, err := GetAndParseParam(c, "id")
	if err != nil {
		return err
	}
	ingredient, err := s.catalog.IngredientGet(id)
	if err != nil {
		return mapServiceError(err)
	}
	return c.JSON(http.StatusOK, s.views.Ingredient(ingredient))
}

func (s *HTTPServer) RecipeList(c echo.Context) error {
	viewer := OptionalUser(c)

	filter := service.RecipeFilter{}
	if raw := c.QueryParam("author"); raw != "" {
		authorID, err := strconv.ParseUint(raw, 10, 64)
		if err != nil {
			return echo.NewHTTPError(http.StatusBadRequest, "invalid query param 'author'")
		}
		filter.AuthorID = &authorID
	}
	if slugs := c.QueryParams()["tags"]; len(slugs) != 0 {
		filter.TagSlugs = slugs
	}
	if viewer != nil {
		if c.QueryParam("is_favorited") == "1" {
			filter.FavoritedBy = &viewer.ID
		}
		if c.QueryParam("is_in_shopping_cart") == "1" {
			filter.InCartOf = &viewer.ID
		}
	}

	recipes, err := s.recipes.List(filter)
	if err != nil {
		return err
	}
	resp := make([]service.RecipeView, len(recipes))
	for i := range recipes {
		view, err := s.views.Recipe(&recipes[i], viewer)
		if err != nil {
			return err
		}
		resp[i] = view
	}
	return c.JSON(http.StatusOK, resp)
}

func (s *HTTPServer) RecipeGet(c echo.Context) error {
	id, err := GetAndParseParam(c, "id")
	if err != nil {
		return err
	}
	recipe, err := s.recipes.Get(id)
	if err != nil {
		return mapServiceError(err)
	}
	view, err := s.views.Recipe(recipe, OptionalUser(c))
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, view)
}

func (s *HTTPServer) RecipeCreate(c echo.Context) error {
	user, err := GetUserFromContext(c)
	if err != nil {
		return err
	}

	req := RecipeReq{}
	if err := BindAndValidate(c, &req); err != nil {
		return err
	}

	recipe, err := s.recipes.Create(user.ID, recipeInput(&req))
	if err != nil {
		return mapServiceError(err)
	}
	view, err := s.views.Recipe(recipe, user)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusCreated, view)
}

func (s *HTTPServer) RecipeUpdate(c echo.Context) error {
	id, err := GetAndParseParam(c, "id")
	if err != nil {
		return err
	}
	user, err := GetUserFromContext(c)
	if err != nil {
		return err
	}

	recipe, err := s.recipes.Get(id)
	if err != nil {
		return mapServiceError(err)
	}
	if recipe.AuthorID != user.ID {
		return echo.NewHTTPError(http.StatusForbidden, echo.Map{"errors": "only the author may edit a recipe"})
	}

	req := RecipeReq{}
	if err := BindAndValidate(c, &req); err != nil {
		return err
	}

	updated, err := s.recipes.Update(id, recipeInput(&req))
	if err != nil {
		return mapServiceError(err)
	}
	view, err := s.views.Recipe(updated, user)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, view)
}

func (s *HTTPServer) RecipeDelete(c echo.Context) error {
	id, err := GetAndParseParam(c, "id")
	if err != nil {
		return err
	}
	user, err := GetUserFromContext(c)
	if err != nil {
		return err
	}

	recipe, err := s.recipes.Get(id)
	if err != nil {
		return mapServiceError(err)
	}
	if recipe.AuthorID != user.ID {
		return echo.NewHTTPError(http.StatusForbidden, echo.Map{"errors": "only the author may delete a recipe"})
	}

	if err := s.recipes.Delete(id); err != nil {
		return mapServiceError(err)
	}
	return c.NoContent(http.StatusNoContent)
}

func (s *HTTPServer) relationAdd(kind service.RelationKind) echo.HandlerFunc {
	return func(c echo.Context) error {
		id, err := GetAndParseParam(c, "id")
		if err != nil {
			return err
		}
		user, err := GetUserFromContext(c)
		if err != nil {
			return err
		}

		if err := s.relations.Add(kind, user.ID, id); err != nil {
			return mapServiceError(err)
		}
		recipe, err := s.recipes.Get(id)
		if err != nil {
			return mapServiceError(err)
		}
		return c.JSON(http.StatusCreated, s.views.RecipeShort(recipe))
	}
}

func (s *HTTPServer) relationRemove(kind service.RelationKind) echo.HandlerFunc {
	return func(c echo.Context) error {
		id, err := GetAndParseParam(c, "id")
		if err != nil {
			return err
		}
		user, err := GetUserFromContext(c)
		if err != nil {
			return err
		}

		if err := s.relations.Remove(kind, user.ID, id); err != nil {
			// removing a missing relation is caller misuse, not a 404
			if errors.Is(err, service.ErrNotFound) {
				return echo.NewHTTPError(http.StatusBadRequest, echo.Map{"errors": err.Error()})
			}
			return mapServiceError(err)
		}
		return c.NoContent(http.StatusNoContent)
	}
}

func (s *HTTPServer) Subscribe(c echo.Context) error {
	id, err := GetAndParseParam(c, "id")
	if err != nil {
		return err
	}
	user, err := GetUserFromContext(c)
	if err != nil {
		return err
	}

	if err := s.relations.Add(service.KindFollow, user.ID, id); err != nil {
		return mapServiceError(err)
	}

	author := db.User{}
	if res := s.db.First(&author, id); res.Error != nil {
		return res.Error
	}
	view, err := s.views.UserWithRecipes(&author, user, 0)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusCreated, view)
}

func (s *HTTPServer) Unsubscribe(c echo.Context) error {
	id, err := GetAndParseParam(c, "id")
	if err != nil {
		return err
	}
	user, err := GetUserFromContext(c)
	if err != nil {
		return err
	}

	if err := s.relations.Remove(service.KindFollow, user.ID, id); err != nil {
		if errors.Is(err, service.ErrNotFound) {
			return echo.NewHTTPError(http.StatusBadRequest, echo.Map{"errors": err.Error()})
		}
		return mapServiceError(err)
	}
	return c.NoContent(http.StatusNoContent)
}

func (s *HTTPServer) Subscriptions(c echo.Context) error {
	user, err := GetUserFromContext(c)
	if err != nil {
		return err
	}

	limit := 0
	if raw := c.QueryParam("recipes_limit"); raw != "" {
		limit, err = strconv.Atoi(raw)
		if err != nil || limit < 0 {
			return echo.NewHTTPError(http.StatusBadRequest, "invalid query param 'recipes_limit'")
		}
	}

	views, err := s.views.Subscriptions(user, limit)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, views)
}

func (s *HTTPServer) DownloadShoppingCart(c echo.Context) error {
	user, err := GetUserFromContext(c)
	if err != nil {
		return err
	}

	report, err := s.shopping.BuildReport(user.ID)
	if err != nil {
		return err
	}

	c.Response().Header().Set(echo.HeaderContentDisposition, `attachment; filename="shopping_list.txt"`)
	return c.Blob(http.StatusOK, "text/plain; charset=utf-8", []byte(report))
}

// AuthMiddleware attaches the principal when a valid X-Token header is
// present. Requests without a token stay anonymous: reads remain open,
// handlers that mutate demand a principal themselves.
func (s *HTTPServer) AuthMiddleware(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		token := ""
		for key, values := range c.Request().Header {
			if strings.ToLower(key) == "x-token" {
				token = values[0]
				break
			}
		}
		if token == "" {
			return next(c)
		}
		user := db.User{}
		res := s.db.Where("token = ?", token).First(&user)
		if res.Error != nil {
			s.logger.Error(errors.Wrap(res.Error, "find user in db"))
			return c.NoContent(http.StatusUnauthorized)
		}

		c.Set("user", &user)
		return next(c)
	}
}

////////

func (cv *CustomValidator) Validate(i interface{}) error {
	if err := cv.validator.Struct(i); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	return nil
}

func BindAndValidate(c echo.Context, v interface{}) error {
	var err error
	if err = c.Bind(v); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	if err = c.Validate(v); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	return nil
}

func mapServiceError(err error) error {
	var verr *service.ValidationError
	switch {
	case errors.As(err, &verr):
		return echo.NewHTTPError(http.StatusBadRequest, echo.Map{"errors": verr.Reasons})
	case errors.Is(err, service.ErrUniqueConflict),
		errors.Is(err, service.ErrAlreadyExists),
		errors.Is(err, service.ErrSelfFollow):
		return echo.NewHTTPError(http.StatusBadRequest, echo.Map{"errors": err.Error()})
	case errors.Is(err, service.ErrNotFound):
		return echo.NewHTTPError(http.StatusNotFound, echo.Map{"errors": err.Error()})
	case errors.Is(err, service.ErrNotAuthenticated):
		return echo.NewHTTPError(http.StatusUnauthorized, echo.Map{"errors": err.Error()})
	}
	return err
}

func recipeInput(req *RecipeReq) service.RecipeInput {
	ingredients := make([]service.IngredientAmount, len(req.Ingredients))
	for i := range req.Ingredients {
		ingredients[i] = service.IngredientAmount{
			IngredientID: req.Ingredients[i].ID,
			Amount:       req.Ingredients[i].Amount,
		}
	}
	return service.RecipeInput{
		Name:        req.Name,
		Text:        req.Text,
		Image:       req.Image,
		CookingTime: req.CookingTime,
		TagIDs:      req.Tags,
		Ingredients: ingredients,
	}
}

func GetUserFromContext(c echo.Context) (*db.User, error) {
	user, ok := c.Get("user").(*db.User)
	if !ok || user == nil {
		return nil, mapServiceError(service.ErrNotAuthenticated)
	}
	return user, nil
}

// OptionalUser returns the principal or nil for anonymous requests.
func OptionalUser(c echo.Context) *db.User {
	user, ok := c.Get("user").(*db.User)
	if !ok {
		return nil
	}
	return user
}

func GetParam(c echo.Context, name string) (string, error) {
	value := c.Param(name)
	if value == "" {
		return "", echo.NewHTTPError(http.StatusBadRequest, "invalid path param 'id'")
	}
	return value, nil
}

func GetAndParseParam(c echo.Context, name string) (uint64, error) {
	v, e := GetParam(c, name)
	if e != nil {
		return 0, e
	}
	vv, e := strconv.ParseUint(v, 10, 64)
	if e != nil {
		return 0, e
	}
	return vv, nil
}
