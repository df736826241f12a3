package config

import (
	"errors"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/joeshaw/envdecode"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"cms-dispatch/internal/platform/paths"
	"cms-dispatch/internal/secrets"
)

var ErrNotFound = errors.New("config not found")

// EnvConfigPath overrides the machine-wide config location.
const EnvConfigPath = "CMS_CONFIG"

type envOverrides struct {
	APIListen         string `env:"API_LISTEN"`
	LogLevel          string `env:"LOG_LEVEL"`
	DBDriver          string `env:"DB_DRIVER"`
	DBHost            string `env:"DB_HOST"`
	DBPort            int    `env:"DB_PORT"`
	DBUser            string `env:"DB_USER"`
	DBName            string `env:"DB_NAME"`
	DBPassword        string `env:"DB_PASSWORD"`
	JWTSecret         string `env:"JWT_SECRET"`
	ServiceToken      string `env:"SERVICE_TOKEN"`
	MaxFileSize       int64  `env:"MAX_FILE_SIZE"`
	MaxResultSize     int    `env:"MAX_RESULT_SIZE"`
	MaxFilesPerUpload int    `env:"MAX_FILES_PER_UPLOAD"`
}

func Path() (string, error) {
	if p := strings.TrimSpace(os.Getenv(EnvConfigPath)); p != "" {
		return p, nil
	}
	return paths.ConfigFilePath()
}

func Load() (Config, error) {
	p, err := Path()
	if err != nil {
		return Config{}, err
	}
	return LoadFile(p)
}

// LoadFile reads the YAML file on top of Default(), fills credentials from the
// secrets directory beside it and then applies .env and environment overrides.
func LoadFile(p string) (Config, error) {
	f, err := os.Open(p)
	if err != nil {
		if os.IsNotExist(err) {
			return Config{}, ErrNotFound
		}
		return Config{}, err
	}
	defer f.Close()

	b, err := io.ReadAll(f)
	if err != nil {
		return Config{}, err
	}

	cfg := Default()
	if err := yaml.Unmarshal(b, &cfg); err != nil {
		return Config{}, err
	}

	if err := ApplySecrets(&cfg, secrets.NewStore(secrets.DirFor(p))); err != nil {
		return Config{}, err
	}
	if err := ApplyEnv(&cfg); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// ApplySecrets fills empty credential fields from the store. Missing entries
// are not an error.
func ApplySecrets(cfg *Config, store *secrets.Store) error {
	targets := map[string]*string{
		secrets.KeyDBPassword:   &cfg.DB.Password,
		secrets.KeyJWTSecret:    &cfg.JWT.Secret,
		secrets.KeyServiceToken: &cfg.ServiceToken,
	}
	for key, dst := range targets {
		if *dst != "" {
			continue
		}
		v, err := store.Get(key)
		if errors.Is(err, secrets.ErrNotFound) {
			continue
		}
		if err != nil {
			return err
		}
		*dst = strings.TrimSpace(string(v))
	}
	return nil
}

func LoadOrDefault() (Config, error) {
	cfg, err := Load()
	if err == nil {
		return cfg, nil
	}

	if errors.Is(err, ErrNotFound) {
		cfg = Default()
		if err := ApplyEnv(&cfg); err != nil {
			return Config{}, err
		}
		return cfg, nil
	}

	return Config{}, err
}

// ApplyEnv loads ./.env when present and overlays the variables it and the
// process environment define.
func ApplyEnv(cfg *Config) error {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return err
	}

	o := envOverrides{
		APIListen:         cfg.APIListen,
		LogLevel:          cfg.Log.Level,
		DBDriver:          string(cfg.DB.Driver),
		DBHost:            cfg.DB.Host,
		DBPort:            cfg.DB.Port,
		DBUser:            cfg.DB.User,
		DBName:            cfg.DB.Database,
		DBPassword:        cfg.DB.Password,
		JWTSecret:         cfg.JWT.Secret,
		ServiceToken:      cfg.ServiceToken,
		MaxFileSize:       cfg.Dispatch.MaxFileSize,
		MaxResultSize:     cfg.Dispatch.MaxResultSize,
		MaxFilesPerUpload: cfg.Dispatch.MaxFilesPerUpload,
	}
	if err := envdecode.Decode(&o); err != nil {
		if errors.Is(err, envdecode.ErrNoTargetFieldsAreSet) {
			return nil
		}
		return err
	}

	cfg.APIListen = o.APIListen
	cfg.Log.Level = o.LogLevel
	cfg.DB.Driver = DBDriver(strings.ToLower(o.DBDriver))
	cfg.DB.Host = o.DBHost
	cfg.DB.Port = o.DBPort
	cfg.DB.User = o.DBUser
	cfg.DB.Database = o.DBName
	cfg.DB.Password = o.DBPassword
	cfg.JWT.Secret = o.JWTSecret
	cfg.ServiceToken = o.ServiceToken
	cfg.Dispatch.MaxFileSize = o.MaxFileSize
	cfg.Dispatch.MaxResultSize = o.MaxResultSize
	cfg.Dispatch.MaxFilesPerUpload = o.MaxFilesPerUpload
	return nil
}

func Save(cfg Config) error {
	p, err := Path()
	if err != nil {
		return err
	}
	return SaveFile(p, cfg)
}

func SaveFile(p string, cfg Config) error {
	dir := filepath.Dir(p)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}

	out, err := yaml.Marshal(cfg)
	if err != nil {
		return err
	}

	tmp, err := os.CreateTemp(dir, "config-*.tmp")
	if err != nil {
		return err
	}

	tmpName := tmp.Name()

	_ = tmp.Chmod(0o600)

	_, writeErr := tmp.Write(out)

	syncErr := tmp.Sync()

	closeErr := tmp.Close()

	if writeErr != nil || syncErr != nil || closeErr != nil {
		_ = os.Remove(tmpName)
		if writeErr != nil {
			return writeErr
		}
		if syncErr != nil {
			return syncErr
		}
		return closeErr
	}

	if err := os.Rename(tmpName, p); err != nil {
		_ = os.Remove(tmpName)
		return err
	}

	return nil
}
