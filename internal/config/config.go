package config

import (
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/pkg/errors"
	"github.com/spf13/viper"
)

type Config struct {
	Env          string
	Addr         string
	DatabaseURL  string
	APIKey       string
	JWTSecret    string
	PollInterval time.Duration

	MontantRequis int64
	PhonePrefix   string

	StorageDriver string // local | b2
	StorageDir    string
	PublicBaseURL string
	B2KeyID       string
	B2AppKey      string
	B2Bucket      string

	RollbarToken string
}

var ErrMissing = errors.New("missing required configuration")

// Load reads SEFIMAP_* variables, after loading config/.env.<env> if it
// exists. DATABASE_URL and API_KEY are required.
func Load() (*Config, error) {
	env := strings.ToLower(os.Getenv("ENV")) // dev (default), test, prod
	if env == "" {
		env = "dev"
	}

	dotEnvPath := filepath.Join("config", ".env."+env)
	if _, err := os.Stat(dotEnvPath); err == nil {
		if err := godotenv.Load(dotEnvPath); err != nil {
			return nil, errors.Wrapf(err, "config.godotenv(%s)", dotEnvPath)
		}
	} else if !os.IsNotExist(err) {
		return nil, errors.Wrapf(err, "config.os.Stat(%s)", dotEnvPath)
	}

	return FromViper(newViper(), env)
}

func newViper() *viper.Viper {
	v := viper.New()
	v.SetTypeByDefaultValue(true)
	v.SetDefault("addr", ":8080")
	v.SetDefault("poll_interval", 3*time.Minute)
	v.SetDefault("montant_requis", int64(4000))
	v.SetDefault("phone_prefix", "+225")
	v.SetDefault("storage_driver", "local")
	v.SetDefault("storage_dir", "photos")
	v.SetDefault("public_base_url", "http://localhost:8080")
	v.SetDefault("database_url", "")
	v.SetDefault("api_key", "")
	v.SetDefault("jwt_secret", "")
	v.SetDefault("b2_key_id", "")
	v.SetDefault("b2_app_key", "")
	v.SetDefault("b2_bucket", "")
	v.SetDefault("rollbar_token", "")
	v.SetEnvPrefix("SEFIMAP")
	v.AutomaticEnv()
	return v
}

// FromViper builds a Config from an already populated viper instance.
func FromViper(v *viper.Viper, env string) (*Config, error) {
	c := &Config{
		Env:           env,
		Addr:          v.GetString("addr"),
		DatabaseURL:   strings.TrimSpace(v.GetString("database_url")),
		APIKey:        strings.TrimSpace(v.GetString("api_key")),
		JWTSecret:     v.GetString("jwt_secret"),
		PollInterval:  v.GetDuration("poll_interval"),
		MontantRequis: v.GetInt64("montant_requis"),
		PhonePrefix:   v.GetString("phone_prefix"),
		StorageDriver: strings.ToLower(v.GetString("storage_driver")),
		StorageDir:    v.GetString("storage_dir"),
		PublicBaseURL: strings.TrimRight(v.GetString("public_base_url"), "/"),
		B2KeyID:       v.GetString("b2_key_id"),
		B2AppKey:      v.GetString("b2_app_key"),
		B2Bucket:      v.GetString("b2_bucket"),
		RollbarToken:  v.GetString("rollbar_token"),
	}

	var missing []string
	if c.DatabaseURL == "" {
		missing = append(missing, "SEFIMAP_DATABASE_URL")
	}
	if c.APIKey == "" {
		missing = append(missing, "SEFIMAP_API_KEY")
	}
	if len(missing) > 0 {
		return nil, errors.Wrap(ErrMissing, strings.Join(missing, ", "))
	}
	if c.PollInterval <= 0 {
		c.PollInterval = 3 * time.Minute
	}
	if c.MontantRequis <= 0 {
		c.MontantRequis = 4000
	}
	if c.StorageDriver == "b2" && (c.B2KeyID == "" || c.B2AppKey == "" || c.B2Bucket == "") {
		return nil, errors.Wrap(ErrMissing, "SEFIMAP_B2_KEY_ID, SEFIMAP_B2_APP_KEY, SEFIMAP_B2_BUCKET")
	}
	return c, nil
}
