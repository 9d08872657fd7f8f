package config

import (
	"os"
	"strconv"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/scorelab/scorefold/internal/support/exception"
	"github.com/scorelab/scorefold/internal/support/logger"
)

const moduleName = "config"

// LoadConfig builds the effective configuration: defaults, then the embedded
// YAML, then environment variable overrides. It is called once at startup.
func LoadConfig(envFilePath string, embedded EmbeddedConfig) (*Config, error) {
	if envFilePath != "" {
		if err := godotenv.Load(envFilePath); err != nil {
			logger.Debugf(".env file (%s) not loaded: %v", envFilePath, err)
		}
	} else if err := godotenv.Load(); err != nil {
		logger.Debugf(".env file not loaded: %v", err)
	}

	cfg := NewConfig()

	// ${VAR} placeholders in the YAML are resolved from the environment,
	// after godotenv has populated it.
	expanded := []byte(os.ExpandEnv(string(embedded)))

	var fileCfg Config
	if err := yaml.Unmarshal(expanded, &fileCfg); err != nil {
		return nil, exception.NewBatchError(moduleName, "failed to unmarshal embedded config", err, false)
	}
	merge(cfg, &fileCfg)
	applyEnvOverrides(cfg)

	return cfg, nil
}

// merge overlays non-zero values from src onto dst.
func merge(dst, src *Config) {
	d, s := &dst.Scorefold, &src.Scorefold

	if s.Pipeline.ChunkSize != 0 {
		d.Pipeline.ChunkSize = s.Pipeline.ChunkSize
	}
	if s.Pipeline.PartitionCount != 0 {
		d.Pipeline.PartitionCount = s.Pipeline.PartitionCount
	}
	if s.Pipeline.PageSize != 0 {
		d.Pipeline.PageSize = s.Pipeline.PageSize
	}
	if s.Pipeline.WriteRetry.MaxAttempts != 0 {
		d.Pipeline.WriteRetry.MaxAttempts = s.Pipeline.WriteRetry.MaxAttempts
	}
	if s.Pipeline.WriteRetry.InitialIntervalMS != 0 {
		d.Pipeline.WriteRetry.InitialIntervalMS = s.Pipeline.WriteRetry.InitialIntervalMS
	}
	if s.Server.Addr != "" {
		d.Server.Addr = s.Server.Addr
	}
	if s.Logging.Level != "" {
		d.Logging.Level = s.Logging.Level
	}
	if s.LedgerDBRef != "" {
		d.LedgerDBRef = s.LedgerDBRef
	}
	if s.StoreDBRef != "" {
		d.StoreDBRef = s.StoreDBRef
	}
	if s.Databases != nil {
		if d.Databases == nil {
			d.Databases = map[string]interface{}{}
		}
		for name, raw := range s.Databases {
			d.Databases[name] = raw
		}
	}
}

// applyEnvOverrides applies SCOREFOLD_* environment variables on top of the
// merged configuration.
func applyEnvOverrides(cfg *Config) {
	sc := &cfg.Scorefold
	overrideString("SCOREFOLD_LOG_LEVEL", &sc.Logging.Level)
	overrideString("SCOREFOLD_SERVER_ADDR", &sc.Server.Addr)
	overrideString("SCOREFOLD_LEDGER_DB", &sc.LedgerDBRef)
	overrideString("SCOREFOLD_STORE_DB", &sc.StoreDBRef)
	overrideInt("SCOREFOLD_CHUNK_SIZE", &sc.Pipeline.ChunkSize)
	overrideInt("SCOREFOLD_PARTITION_COUNT", &sc.Pipeline.PartitionCount)
	overrideInt("SCOREFOLD_PAGE_SIZE", &sc.Pipeline.PageSize)
}

func overrideString(key string, target *string) {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		*target = v
	}
}

func overrideInt(key string, target *int) {
	v, ok := os.LookupEnv(key)
	if !ok || v == "" {
		return
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		logger.Warnf("Ignoring non-integer value for %s: %q", key, v)
		return
	}
	*target = n
}
