// Package config manages application settings through Viper: defaults,
// an optional config file and GOSTREAM_* environment overrides.
package config

import (
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/pkg/errors"
	"github.com/spf13/viper"
)

const envPrefix = "gostream"

// Configuration keys.
const (
	KeyHelperURL     = "crypto.helper_url"
	KeyStreamDomain  = "vidsrc.stream_domain"
	KeyVidsrcBase    = "vidsrc.base_url"
	KeyVidsrcGateway = "vidsrc.gateway_url"
	KeyAnimeBase     = "anime.base_url"
	KeyMappingBase   = "anime.mapping_url"
	KeyLivePanelURL  = "livetv.panel_url"
	KeyCredentialDB  = "livetv.credential_db"
	KeyBudget        = "resolver.budget"
	KeyCacheTTL      = "resolver.cache_ttl"
	KeyDebug         = "debug"
)

var defaults = map[string]any{
	KeyHelperURL:     "http://127.0.0.1:8001",
	KeyStreamDomain:  "",
	KeyVidsrcBase:    "",
	KeyVidsrcGateway: "",
	KeyAnimeBase:     "",
	KeyMappingBase:   "",
	KeyLivePanelURL:  "",
	KeyCredentialDB:  "",
	KeyBudget:        45 * time.Second,
	KeyCacheTTL:      6 * time.Hour,
	KeyDebug:         false,
}

// Setup loads defaults, the optional config file and the environment. A
// missing config file is not an error; a malformed one is.
func Setup() error {
	viper.SetConfigName("gostream")
	viper.SetConfigType("yaml")
	viper.AddConfigPath(configDir())
	viper.AddConfigPath(".")

	viper.SetEnvPrefix(envPrefix)
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()

	viper.SetTypeByDefaultValue(true)
	for key, value := range defaults {
		viper.SetDefault(key, value)
	}

	if err := viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); ok {
			return nil
		}
		return errors.Wrap(err, "failed to read config file")
	}
	return nil
}

// CredentialDBPath returns the configured credential database path, or the
// default under the user config directory.
func CredentialDBPath() string {
	if path := viper.GetString(KeyCredentialDB); path != "" {
		return path
	}
	return filepath.Join(configDir(), "credentials.db")
}

func configDir() string {
	base, err := os.UserConfigDir()
	if err != nil {
		return "."
	}
	return filepath.Join(base, "gostream")
}
