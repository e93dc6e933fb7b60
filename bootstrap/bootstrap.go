package bootstrap

import (
	"stayvest-backend/internal/app"
	"stayvest-backend/internal/config"

	"github.com/gofiber/fiber/v2"
)

// New creates the Fiber app for Vercel serverless (api handler imports this package, not internal).
func New() (*fiber.App, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}
	return app.CreateApp(cfg)
}
