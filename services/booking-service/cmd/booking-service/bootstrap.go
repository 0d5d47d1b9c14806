package main

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/clinicsched/clinicsched/libs/config"
	"github.com/clinicsched/clinicsched/libs/db"
	"github.com/clinicsched/clinicsched/libs/phi"
	"github.com/clinicsched/clinicsched/libs/runtime"
)

func serviceLogger() (string, *slog.Logger) {
	service := config.String("SERVICE_NAME", "booking-service")
	return service, runtime.NewLogger(service, config.String("LOG_LEVEL", "info"))
}

func openPool(ctx context.Context) (*db.Pool, error) {
	dbURL, err := config.RequiredString("DATABASE_URL")
	if err != nil {
		return nil, err
	}
	maxConns, err := config.Int("DB_MAX_CONNS", 10)
	if err != nil {
		return nil, err
	}
	pool, err := db.Open(ctx, dbURL, db.Options{MaxConns: int32(maxConns)})
	if err != nil {
		return nil, fmt.Errorf("db connection failed: %w", err)
	}
	return pool, nil
}

func phiEncryptor() (*phi.Encryptor, error) {
	key, err := config.RequiredString("PHI_ENCRYPTION_KEY")
	if err != nil {
		return nil, err
	}
	return phi.NewEncryptorFromBase64(key)
}
