package service

import (
	"fmt"
	"strings"

	"github.com/Masterminds/squirrel"
	"github.com/pkg/errors"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

const reportHeader = "Shopping list:"

type ShoppingList struct {
	db     *gorm.DB
	logger *zap.SugaredLogger
}

func NewShoppingList(db *gorm.DB, l *zap.SugaredLogger) *ShoppingList {
	return &ShoppingList{
		db:     db,
		logger: l,
	}
}

type reportRow struct {
	Name            string
	MeasurementUnit string
	Amount          uint
}

// BuildReport flattens the ingredient lines of every recipe in the user's
// cart, sums amounts per (name, unit) and renders one line per group, sorted
// by name. An empty cart yields the header alone.
func (s *ShoppingList) BuildReport(userID uint64) (string, error) {
	sql, args, err := squirrel.
		Select("i.name AS name", "i.measurement_unit AS measurement_unit", "SUM(il.amount) AS amount").
		From("ingredient_lines il").
		Join("ingredients i ON i.id = il.ingredient_id").
		Join("shopping_carts sc ON sc.recipe_id = il.recipe_id").
		Where(squirrel.Eq{"sc.user_id": userID}).
		GroupBy("i.name", "i.measurement_unit").
		OrderBy("i.name").
		ToSql()
	if err != nil {
		return "", errors.Wrap(err, "build sql")
	}

	rows := make([]reportRow, 0)
	res := s.db.Raw(sql, args...).Scan(&rows)
	if res.Error != nil {
		return "", errors.Wrap(res.Error, "scan")
	}

	b := strings.Builder{}
	b.WriteString(reportHeader)
	for _, row := range rows {
		b.WriteString(fmt.Sprintf("\n%s - %d %s", row.Name, row.Amount, row.MeasurementUnit))
	}
	return b.String(), nil
}
