package app

import (
	"time"

	"github.com/yungbote/lumen-backend/internal/platform/envutil"
	"github.com/yungbote/lumen-backend/internal/platform/logger"
)

type Config struct {
	ServiceName string
	Environment string
	Version     string

	HTTPAddress     string
	ShutdownTimeout time.Duration

	JWTSecretKey string
	JWTIssuer    string

	ModelRoutesPath string
	TracingEnabled  bool
}

func LoadConfig(log *logger.Logger) Config {
	cfg := Config{
		ServiceName:     envutil.String("SERVICE_NAME", "lumen-backend"),
		Environment:     envutil.String("ENVIRONMENT", "development"),
		Version:         envutil.String("SERVICE_VERSION", ""),
		HTTPAddress:     envutil.String("HTTP_ADDRESS", ":8080"),
		ShutdownTimeout: envutil.Seconds("HTTP_SHUTDOWN_TIMEOUT_SECONDS", 15),
		JWTSecretKey:    envutil.String("JWT_SECRET_KEY", ""),
		JWTIssuer:       envutil.String("JWT_ISSUER", ""),
		ModelRoutesPath: envutil.String("MODEL_ROUTES_PATH", ""),
		TracingEnabled:  envutil.Bool("OTEL_ENABLED", false),
	}
	if cfg.JWTSecretKey == "" && log != nil {
		log.Warn("JWT_SECRET_KEY is not set; every API request will be rejected")
	}
	return cfg
}
