package utils

import (
	"os"
	"strings"

	"github.com/yungbote/curator-backend/internal/platform/envutil"
	"github.com/yungbote/curator-backend/internal/platform/logger"
)

// GetEnv reads key and logs where the value came from. The value is logged
// under the lowercased variable name so the logger redacts secrets such as
// POSTGRES_PASSWORD.
func GetEnv(key, defaultVal string, log *logger.Logger) string {
	val, ok := os.LookupEnv(key)
	if !ok {
		val = defaultVal
	}
	report(log, key, ok, val)
	return val
}

func GetEnvAsInt(key string, defaultVal int, log *logger.Logger) int {
	raw, ok := os.LookupEnv(key)
	val := envutil.Int(key, defaultVal)
	if ok && strings.TrimSpace(raw) != "" && val == defaultVal && log != nil {
		log.Debug("Environment variable may not be an int; check the value", "env_var", key)
	}
	report(log, key, ok, val)
	return val
}

func GetEnvAsBool(key string, defaultVal bool, log *logger.Logger) bool {
	_, ok := os.LookupEnv(key)
	val := envutil.Bool(key, defaultVal)
	report(log, key, ok, val)
	return val
}

func report(log *logger.Logger, key string, found bool, val any) {
	if log == nil {
		return
	}
	source := "default"
	if found {
		source = "environment"
	}
	log.Debug("Environment variable loaded", "env_var", key, "source", source, strings.ToLower(key), val)
}
