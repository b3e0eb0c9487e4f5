package logger

import (
	"context"

	"go-kpi/internal/config"
	"go-kpi/internal/database"

	"go.uber.org/fx"
	"go.uber.org/zap"
)

// NewLogger builds the service logger. With LOG_TO_DB the entries are also
// written to Mongo through the async sink.
func NewLogger(lc fx.Lifecycle, cfg *config.Config, mongodb *database.MongodbDB) (*zap.Logger, error) {
	baseLogger, err := NewBaseLogger(cfg)
	if err != nil {
		return nil, err
	}

	if !cfg.LogToDB {
		return baseLogger, nil
	}

	dbWriter := NewDBLogWriter(mongodb.DB, cfg.AppId)
	lc.Append(fx.Hook{
		OnStop: func(ctx context.Context) error {
			return dbWriter.Close(ctx)
		},
	})

	// Tee core: sends to both console and DB
	finalCore := NewDBCore(baseLogger.Core(), dbWriter)
	return zap.New(finalCore, zap.AddCaller()), nil
}

// NewBaseLogger is the console logger alone, for tools without a database.
func NewBaseLogger(cfg *config.Config) (*zap.Logger, error) {
	var zapConfig zap.Config
	if cfg.IsProduction() {
		zapConfig = zap.NewProductionConfig()
	} else {
		zapConfig = zap.NewDevelopmentConfig()
	}

	// Important: Enable Caller to get Function Name
	zapConfig.EncoderConfig.FunctionKey = "func"

	return zapConfig.Build()
}
