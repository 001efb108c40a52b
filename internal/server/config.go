package server

import (
	"github.com/pagedrift/pagedrift/internal/app"
	"github.com/pagedrift/pagedrift/internal/logging"
)

type Config struct {
	ListenAddr string
	AppConfig  *app.Config
	Logger     logging.Logger
}
