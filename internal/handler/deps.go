package handler

import (
	"roomrelay/internal/app/chat"
	"roomrelay/internal/configs"
)

// AppDeps carries what the HTTP layer needs from the rest of the application.
type AppDeps struct {
	Hub    *chat.Hub
	Config *configs.AppConfig
}
