package main

import (
	"go.uber.org/fx"
	"go.uber.org/zap"

	"github.com/plateful-labs/cookbook-back/internal/config"
	"github.com/plateful-labs/cookbook-back/internal/db"
	"github.com/plateful-labs/cookbook-back/internal/imagestore"
	"github.com/plateful-labs/cookbook-back/internal/service"
	"github.com/plateful-labs/cookbook-back/internal/transport"
)

func main() {
	app := fx.New(
		fx.Provide(
			config.NewConfig,
			NewLogger,
			db.NewGormClient,
			imagestore.NewStore,
			func(store *imagestore.Store) service.ImageStore { return store },
			service.NewAccounts,
			service.NewCatalog,
			service.NewRecipes,
			service.NewRelations,
			service.NewShoppingList,
			service.NewViews,
			transport.NewHTTPServer,
		),
		fx.Invoke(func(server *transport.HTTPServer) {}),
	)

	app.Run()
}

func NewLogger() (*zap.SugaredLogger, error) {
	l, err := zap.NewDevelopment()
	if err != nil {
		return nil, err
	}
	return l.Sugar(), nil
}
