package app

import (
	"database/sql"

	"github.com/go-chi/oauth"
	"github.com/mbolis/quick-register/config"
	"github.com/mbolis/quick-register/filestore"
)

type App struct {
	*sql.DB
	*oauth.BearerServer
	config.Config
	Files filestore.Store
}
