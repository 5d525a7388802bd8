// Package config
package config

import (
	"flag"
	"log"
	"os"
	"strconv"

	"gopkg.in/yaml.v3"
)

/*
YAML config example:
store_backend: "postgres"
db_conn_str: "host=localhost port=5432 user=postgres dbname=orders sslmode=disable"
db_max_open: 10
db_max_idle: 5
pebble_path: "data/orderstack"
api_addr: ":8090"
log_path: "order-stack.log"
*/

type Config struct {
	// StoreBackend selects the order store: memory, postgres or pebble.
	StoreBackend string `yaml:"store_backend"`
	DBConnStr    string `yaml:"db_conn_str"`
	DBMaxOpen    int    `yaml:"db_max_open"`
	DBMaxIdle    int    `yaml:"db_max_idle"`
	PebblePath   string `yaml:"pebble_path"`
	APIAddr      string `yaml:"api_addr"`
	LogPath      string `yaml:"log_path"`
	RunMigration bool   `yaml:"run_migration"`
}

func loadConfig() Config {
	storeBackend := flag.String("store-backend", "memory", "Order store backend: memory, postgres or pebble")
	pebblePath := flag.String("pebble-path", "data/orderstack", "Path to the pebble store directory")
	apiAddr := flag.String("api-addr", ":8090", "Listen address for the operations API")
	logPath := flag.String("log-path", "", "Log file path (stdout only when empty)")
	runMigration := flag.Bool("migrate", false, "Run database migrations on startup")
	configFile := flag.String("config", "", "Path to YAML config file")
	flag.Parse()

	if *configFile != "" {
		data, err := os.ReadFile(*configFile)
		if err != nil {
			log.Fatalf("Failed to read config file: %v", err)
		}
		var fileCfg Config
		if err := yaml.Unmarshal(data, &fileCfg); err != nil {
			log.Fatalf("Failed to parse config file: %v", err)
		}
		return fileCfg
	}

	return Config{
		StoreBackend: *storeBackend,
		DBConnStr:    os.Getenv("DB_CONN_STR"),
		DBMaxOpen:    envInt("DB_MAX_OPEN", 10),
		DBMaxIdle:    envInt("DB_MAX_IDLE", 5),
		PebblePath:   *pebblePath,
		APIAddr:      *apiAddr,
		LogPath:      *logPath,
		RunMigration: *runMigration,
	}
}

// MustLoadConfig loads and validates configuration, exiting on error.
func MustLoadConfig() Config {
	cfg := loadConfig()
	switch cfg.StoreBackend {
	case "memory", "pebble":
	case "postgres":
		if cfg.DBConnStr == "" {
			log.Fatal("store_backend postgres requires db_conn_str (or DB_CONN_STR)")
		}
	default:
		log.Fatalf("Unknown store backend %q (want memory, postgres or pebble)", cfg.StoreBackend)
	}
	return cfg
}

func envInt(name string, fallback int) int {
	if v := os.Getenv(name); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return fallback
}
