package config

import (
	"github.com/spf13/viper"

	"github.com/portalkit/viewdata/internal/store/postgres"
)

// Config is the full server configuration: HTTP surface, record-store
// database, and engine tuning knobs.
type Config struct {
	Server   ServerConfig
	Database postgres.Config
	Engine   EngineConfig
}

type ServerConfig struct {
	Addr           string
	AllowedOrigins []string
}

type EngineConfig struct {
	// WorkerLimit caps concurrent per-rule sub-queries.
	WorkerLimit int
	// Collation is the BCP 47 language tag used for string ordering.
	Collation string
	// MemoryStore runs the server against the in-memory demo store instead
	// of Postgres.
	MemoryStore bool
}

// Load reads config.yaml from configPath (if present) and applies environment
// overrides with the VIEWDATA_ prefix, e.g. VIEWDATA_DATABASE.HOST.
func Load(configPath string) (Config, error) {
	cfg := Config{
		Server: ServerConfig{
			Addr:           ":8080",
			AllowedOrigins: []string{"http://localhost:5173"},
		},
		Database: postgres.DefaultConfig(),
		Engine: EngineConfig{
			WorkerLimit: 4,
			Collation:   "en",
		},
	}

	v := viper.New()
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(configPath)
	v.AutomaticEnv()
	v.SetEnvPrefix("VIEWDATA")

	v.BindEnv("server.addr")
	v.BindEnv("database.host")
	v.BindEnv("database.port")
	v.BindEnv("database.user")
	v.BindEnv("database.password")
	v.BindEnv("database.dbname")
	v.BindEnv("database.sslmode")
	v.BindEnv("database.pagelimit")
	v.BindEnv("engine.workerlimit")
	v.BindEnv("engine.collation")
	v.BindEnv("engine.memorystore")

	// Config file is optional; defaults plus env overrides are enough for
	// local runs.
	_ = v.ReadInConfig()

	if v.IsSet("server.addr") {
		cfg.Server.Addr = v.GetString("server.addr")
	}
	if v.IsSet("server.allowedorigins") {
		cfg.Server.AllowedOrigins = v.GetStringSlice("server.allowedorigins")
	}
	if v.IsSet("database.host") {
		cfg.Database.Host = v.GetString("database.host")
	}
	if v.IsSet("database.port") {
		cfg.Database.Port = v.GetInt("database.port")
	}
	if v.IsSet("database.user") {
		cfg.Database.User = v.GetString("database.user")
	}
	if v.IsSet("database.password") {
		cfg.Database.Password = v.GetString("database.password")
	}
	if v.IsSet("database.dbname") {
		cfg.Database.DBName = v.GetString("database.dbname")
	}
	if v.IsSet("database.sslmode") {
		cfg.Database.SSLMode = v.GetString("database.sslmode")
	}
	if v.IsSet("database.pagelimit") {
		cfg.Database.PageLimit = v.GetInt("database.pagelimit")
	}
	if v.IsSet("engine.workerlimit") {
		cfg.Engine.WorkerLimit = v.GetInt("engine.workerlimit")
	}
	if v.IsSet("engine.collation") {
		cfg.Engine.Collation = v.GetString("engine.collation")
	}
	if v.IsSet("engine.memorystore") {
		cfg.Engine.MemoryStore = v.GetBool("engine.memorystore")
	}

	return cfg, nil
}
