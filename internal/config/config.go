package config

type Config interface {
	EnvConfig
	CorsConfig
	GatewayConfig
	IdentityConfig
	SessionConfig
}

type EnvConfig interface {
	GetPort() string
	GetAppName() string
	GetEnv() string
	GetLogLevel() string
	IsProduction() bool
}

type CorsConfig interface {
	GetAllowedOrigins() AllowedOrigins
	GetAllowedMethods() string
	GetAllowedHeaders() string
}

type mainConfig struct {
	EnvVars
	Cors
	Gateway
	Identity
	Session
}

func New() Config {
	return mainConfig{}
}
