package service

import (
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCatalogTags(t *testing.T) {
	conn := newTestDB(t)
	svc := NewCatalog(conn, newTestLogger())

	breakfast := seedTag(t, conn, "Breakfast", "#E26C2D", "breakfast")
	seedTag(t, conn, "Dinner", "#49B64E", "dinner")

	tags, err := svc.TagList()
	require.NoError(t, err)
	assert.Len(t, tags, 2)

	tag, err := svc.TagGet(breakfast.ID)
	require.NoError(t, err)
	assert.Equal(t, "Breakfast", tag.Name)

	_, err = svc.TagGet(777)
	assert.True(t, errors.Is(err, ErrNotFound))
}

func TestCatalogIngredientPrefixFilter(t *testing.T) {
	conn := newTestDB(t)
	svc := NewCatalog(conn, newTestLogger())

	seedIngredient(t, conn, "Salt", "g")
	seedIngredient(t, conn, "Saffron", "g")
	seedIngredient(t, conn, "Pepper", "g")

	all, err := svc.IngredientList("")
	require.NoError(t, err)
	assert.Len(t, all, 3)

	matched, err := svc.IngredientList("sa")
	require.NoError(t, err)
	require.Len(t, matched, 2)
	// sorted by name
	assert.Equal(t, "Saffron", matched[0].Name)
	assert.Equal(t, "Salt", matched[1].Name)

	none, err := svc.IngredientList("zz")
	require.NoError(t, err)
	assert.Empty(t, none)
}
