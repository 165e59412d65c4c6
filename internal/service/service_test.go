package service

import (
	"fmt"
	"sync/atomic"
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/plateful-labs/cookbook-back/internal/db"
)

var testDBSeq uint64

func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()

	// one shared in-memory database per test, so every pooled connection
	// sees the same schema
	dsn := fmt.Sprintf("file:testdb%d?mode=memory&cache=shared", atomic.AddUint64(&testDBSeq, 1))
	conn, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)
	require.NoError(t, db.Migrate(conn))
	return conn
}

func newTestLogger() *zap.SugaredLogger {
	return zap.NewNop().Sugar()
}

type fakeImages struct{}

func (fakeImages) Save(payload string) (string, error) {
	if payload == "broken" {
		return "", errors.New("decode image")
	}
	return "recipes/images/stub.png", nil
}

func seedUser(t *testing.T, conn *gorm.DB, email, username string) *db.User {
	t.Helper()
	user := db.User{
		Email:        email,
		Username:     username,
		FirstName:    "Test",
		LastName:     "User",
		PasswordHash: "x",
		Token:        username + "-token",
	}
	require.NoError(t, conn.Create(&user).Error)
	return &user
}

func seedTag(t *testing.T, conn *gorm.DB, name, color, slug string) *db.Tag {
	t.Helper()
	tag := db.Tag{Name: name, Color: color, Slug: slug}
	require.NoError(t, conn.Create(&tag).Error)
	return &tag
}

func seedIngredient(t *testing.T, conn *gorm.DB, name, unit string) *db.Ingredient {
	t.Helper()
	ingredient := db.Ingredient{Name: name, MeasurementUnit: unit}
	require.NoError(t, conn.Create(&ingredient).Error)
	return &ingredient
}
