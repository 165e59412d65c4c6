package test_functional

import (
	"context"
	"fmt"
	"net/http"
	"testing"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// 1x1 PNG
const tinyPNG = "iVBORw0KGgoAAAANSUhEUgAAAAEAAAABCAYAAAAfFcSJAAAADUlEQVR42mNk+M9QDwADhgGAWjR9awAAAABJRU5ErkJggg=="

type tokenResp struct {
	Token string `json:"token"`
}

func registerUser(t *testing.T, ctx context.Context, email, username string) string {
	t.Helper()

	u := AppBaseURL
	u.Path = "/auth/register"

	resp, err := resty.New().
		R().
		SetHeader("Content-Type", "application/json").
		SetContext(ctx).
		SetResult(&tokenResp{}).
		SetBody(fmt.Sprintf(`{
			"email": %q,
			"username": %q,
			"first_name": "Test",
			"last_name": "User",
			"password": "s3cret-pass-123"
		}`, email, username)).
		Post(u.String())
	require.Nil(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode())

	got, ok := resp.Result().(*tokenResp)
	require.True(t, ok)
	require.NotEmpty(t, got.Token)
	return got.Token
}

func TestRegister(t *testing.T) {
	u := AppBaseURL
	u.Path = "/auth/register"

	t.Run("successful register", func(t *testing.T) {
		defer FlushDB()

		ctx, cancel := context.WithTimeout(context.Background(), time.Second*10)
		defer cancel()

		token := registerUser(t, ctx, "test@gmail.com", "test")

		var (
			id    uint64
			email string
		)
		err := DBConn.QueryRow(ctx, "SELECT id, email FROM users WHERE token=$1", token).Scan(&id, &email)
		assert.Nil(t, err)
		assert.Equal(t, "test@gmail.com", email)
	})

	t.Run("bad body", func(t *testing.T) {
		defer FlushDB()

		ctx, cancel := context.WithTimeout(context.Background(), time.Second*10)
		defer cancel()

		resp, err := resty.New().
			R().
			SetHeader("Content-Type", "application/json").
			SetContext(ctx).
			SetBody(`
			{"something": "???"}
		`).
			Post(u.String())
		assert.Nil(t, err)

		assert.Equal(t, http.StatusBadRequest, resp.StatusCode())
	})
}

func TestRecipeFlow(t *testing.T) {
	defer FlushDB()

	ctx, cancel := context.WithTimeout(context.Background(), time.Second*30)
	defer cancel()

	authorToken := registerUser(t, ctx, "author@gmail.com", "author")
	readerToken := registerUser(t, ctx, "reader@gmail.com", "reader")

	_, err := DBConn.Exec(ctx,
		"INSERT INTO tags (id, name, color, slug, created_at, updated_at) VALUES (1, 'Dinner', '#49B64E', 'dinner', now(), now())")
	require.Nil(t, err)
	_, err = DBConn.Exec(ctx,
		"INSERT INTO ingredients (id, name, measurement_unit, created_at, updated_at) VALUES (1, 'Salt', 'g', now(), now()), (2, 'Pepper', 'g', now(), now())")
	require.Nil(t, err)

	cl := resty.New()

	//////

	createURL := AppBaseURL
	createURL.Path = "/recipes"

	type recipeResp struct {
		ID          uint64 `json:"id"`
		Name        string `json:"name"`
		IsFavorited bool   `json:"is_favorited"`
	}

	resp, err := cl.R().
		SetHeader("Content-Type", "application/json").
		SetHeader("X-Token", authorToken).
		SetContext(ctx).
		SetResult(&recipeResp{}).
		SetBody(fmt.Sprintf(`{
			"name": "Soup",
			"text": "Boil everything.",
			"image": %q,
			"cooking_time": 30,
			"tags": [1],
			"ingredients": [{"id": 1, "amount": 5}, {"id": 2, "amount": 2}]
		}`, tinyPNG)).
		Post(createURL.String())
	require.Nil(t, err)
	require.Equal(t, http.StatusCreated, resp.StatusCode())

	created, ok := resp.Result().(*recipeResp)
	require.True(t, ok)
	assert.Equal(t, "Soup", created.Name)

	var lineCount int
	err = DBConn.QueryRow(ctx, "SELECT COUNT(*) FROM ingredient_lines WHERE recipe_id=$1", created.ID).Scan(&lineCount)
	require.Nil(t, err)
	assert.Equal(t, 2, lineCount)

	//////

	favURL := AppBaseURL
	favURL.Path = fmt.Sprintf("/recipes/%d/favorite", created.ID)

	resp, err = cl.R().
		SetHeader("X-Token", readerToken).
		SetContext(ctx).
		Post(favURL.String())
	require.Nil(t, err)
	assert.Equal(t, http.StatusCreated, resp.StatusCode())

	// a second identical add must fail
	resp, err = cl.R().
		SetHeader("X-Token", readerToken).
		SetContext(ctx).
		Post(favURL.String())
	require.Nil(t, err)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode())

	//////

	cartURL := AppBaseURL
	cartURL.Path = fmt.Sprintf("/recipes/%d/shopping_cart", created.ID)

	resp, err = cl.R().
		SetHeader("X-Token", readerToken).
		SetContext(ctx).
		Post(cartURL.String())
	require.Nil(t, err)
	assert.Equal(t, http.StatusCreated, resp.StatusCode())

	downloadURL := AppBaseURL
	downloadURL.Path = "/recipes/download_shopping_cart"

	resp, err = cl.R().
		SetHeader("X-Token", readerToken).
		SetContext(ctx).
		Get(downloadURL.String())
	require.Nil(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode())
	assert.Equal(t, "Shopping list:\nPepper - 2 g\nSalt - 5 g", resp.String())

	//////

	// anonymous read sees the recipe with false flags
	getURL := AppBaseURL
	getURL.Path = fmt.Sprintf("/recipes/%d", created.ID)

	resp, err = cl.R().
		SetContext(ctx).
		SetResult(&recipeResp{}).
		Get(getURL.String())
	require.Nil(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode())
	anon, ok := resp.Result().(*recipeResp)
	require.True(t, ok)
	assert.False(t, anon.IsFavorited)

	// anonymous mutation is rejected
	resp, err = cl.R().
		SetContext(ctx).
		Post(favURL.String())
	require.Nil(t, err)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode())
}

func TestSubscriptionFlow(t *testing.T) {
	defer FlushDB()

	ctx, cancel := context.WithTimeout(context.Background(), time.Second*30)
	defer cancel()

	readerToken := registerUser(t, ctx, "reader@gmail.com", "reader")
	registerUser(t, ctx, "chef@gmail.com", "chef")

	var chefID uint64
	err := DBConn.QueryRow(ctx, "SELECT id FROM users WHERE username='chef'").Scan(&chefID)
	require.Nil(t, err)

	cl := resty.New()

	subURL := AppBaseURL
	subURL.Path = fmt.Sprintf("/users/%d/subscribe", chefID)

	resp, err := cl.R().
		SetHeader("X-Token", readerToken).
		SetContext(ctx).
		Post(subURL.String())
	require.Nil(t, err)
	assert.Equal(t, http.StatusCreated, resp.StatusCode())

	type subscriptionResp struct {
		Username     string `json:"username"`
		RecipesCount int64  `json:"recipes_count"`
	}

	listURL := AppBaseURL
	listURL.Path = "/users/subscriptions"

	subs := make([]subscriptionResp, 0)
	resp, err = cl.R().
		SetHeader("X-Token", readerToken).
		SetContext(ctx).
		SetResult(&subs).
		Get(listURL.String())
	require.Nil(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode())
	require.Len(t, subs, 1)
	assert.Equal(t, "chef", subs[0].Username)
}
