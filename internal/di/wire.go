//go:build wireinject
// +build wireinject

package di

import (
	"github.com/google/wire"

	"github.com/sandeepkv93/social-realtime-backend/internal/app"
	"github.com/sandeepkv93/social-realtime-backend/internal/repository"
)

func InitializeApp() (*app.App, error) {
	panic(wire.Build(
		ConfigSet,
		ObservabilitySet,
		RuntimeInfraSet,
		RepositorySet,
		SecuritySet,
		ServiceSet,
		RealtimeSet,
		HTTPSet,
		AppSet,
	))
}

func InitializeCLI() (*CLI, error) {
	panic(wire.Build(
		ConfigSet,
		provideCLILogger,
		provideDB,
		repository.NewSessionRepository,
		provideJWTManager,
		provideHasher,
		provideTokenIssuer,
		provideSessionService,
		provideCleanupTask,
		provideCLI,
	))
}
