package config

import (
	"os"
	"time"

	"github.com/ilyakaznacheev/cleanenv"
	"github.com/joho/godotenv"
)

type Config struct {
	Env             string        `yaml:"env" env-default:"local"`
	Storage         string        `yaml:"storage" env-default:"sqlite"`
	StoragePath     string        `yaml:"storage_path"`
	Mongo           MongoConfig   `yaml:"mongo"`
	HTTP            HTTPConfig    `yaml:"http"`
	AccessTokenTTL  time.Duration `yaml:"access_token_ttl" env-default:"15m"`
	RefreshTokenTTL time.Duration `yaml:"refresh_token_ttl" env-default:"168h"`
	BcryptCost      int           `yaml:"bcrypt_cost" env-default:"12"`
	RefreshPepper   string        `yaml:"refresh_pepper" env:"REFRESH_PEPPER"`
	// RevokeChainOnReuse enables the replay-hardening policy: presenting an
	// already-rotated refresh secret revokes every active token of its owner.
	RevokeChainOnReuse bool   `yaml:"revoke_chain_on_reuse" env-default:"true"`
	JWTSecret          string `yaml:"jwt_secret" env:"JWT_SECRET"`
}

type MongoConfig struct {
	URI      string `yaml:"uri" env:"MONGO_URI"`
	Database string `yaml:"database" env-default:"jledger"`
}

type HTTPConfig struct {
	Port    int           `yaml:"port" env-default:"4000"`
	Timeout time.Duration `yaml:"timeout" env-default:"10s"`
}

// MustLoad reads the config file and environment overrides. A missing
// file is fatal. The signing secret is checked on the serving path
// (app.New), not here, so tooling like the migrator can run without it.
func MustLoad(path string) *Config {
	// optional .env, same as the original deployment setup
	_ = godotenv.Load()

	var cfg Config

	if _, err := os.Stat(path); os.IsNotExist(err) {
		panic("config file not found: " + path)
	}

	if err := cleanenv.ReadConfig(path, &cfg); err != nil {
		panic("failed to read config: " + err.Error())
	}

	return &cfg
}
