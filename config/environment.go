package config

import (
	"os"
	"path/filepath"
	"strings"
)

const (
	appEnvVar              = "APP_ENV"
	environmentDevelopment = "development"
	environmentProduction  = "production"
	environmentStaging     = "staging"
)

const (
	EnvironmentDevelopment = environmentDevelopment
	EnvironmentProduction  = environmentProduction
	EnvironmentStaging     = environmentStaging
)

// DefaultPath is the configuration file used when no --config flag is given.
const DefaultPath = "config/config.yml"

var environmentAliases = map[string]string{
	"dev":   environmentDevelopment,
	"prod":  environmentProduction,
	"stag":  environmentStaging,
	"stage": environmentStaging,
}

// getAppEnvironment reads the application environment from APP_ENV and
// defaults to development when no value is provided.
func getAppEnvironment() string {
	env := strings.ToLower(strings.TrimSpace(os.Getenv(appEnvVar)))
	if env == "" {
		return environmentDevelopment
	}
	if canonical, ok := environmentAliases[env]; ok {
		return canonical
	}
	return env
}

// ResolvePath returns the configuration file to load. An explicit path wins;
// otherwise config/config.<env>.yml is used when it exists for a non
// development environment, falling back to DefaultPath.
func ResolvePath(path string) string {
	if path != "" && path != DefaultPath {
		return path
	}
	env := getAppEnvironment()
	if env == environmentDevelopment {
		return DefaultPath
	}
	candidate := filepath.Join(filepath.Dir(DefaultPath), "config."+env+".yml")
	if _, err := os.Stat(candidate); err == nil {
		return candidate
	}
	return DefaultPath
}

// AppEnvironment exposes the normalised APP_ENV value.
func AppEnvironment() string {
	return getAppEnvironment()
}

// IsProductionLike reports whether the environment treats a failed startup
// symbol check as fatal.
func IsProductionLike(env string) bool {
	switch env {
	case environmentProduction, environmentStaging:
		return true
	default:
		return false
	}
}
