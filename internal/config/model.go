package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"cms-dispatch/internal/codec"
)

type DBDriver string

const (
	DBDriverMySQL DBDriver = "mysql"
	DBDriverMSSQL DBDriver = "mssql"
)

type DBConfig struct {
	Driver   DBDriver          `yaml:"driver"`
	Host     string            `yaml:"host"`
	Port     int               `yaml:"port"`
	User     string            `yaml:"user"`
	Password string            `yaml:"-"`
	Database string            `yaml:"database"`
	Params   map[string]string `yaml:"params,omitempty"`
}

type DispatchConfig struct {
	MaxFileSize       int64         `yaml:"maxFileSize"`
	MaxResultSize     int           `yaml:"maxResultSize"`
	MaxFilesPerUpload int           `yaml:"maxFilesPerUpload"`
	PlainResolver     string        `yaml:"plainResolver"`
	FileResolver      string        `yaml:"fileResolver"`
	ParamDelimiter    string        `yaml:"paramDelimiter"`
	QueryTimeout      time.Duration `yaml:"queryTimeout"`
}

type JWTConfig struct {
	Secret string `yaml:"-"`
	Cookie string `yaml:"cookie"`
}

type LogConfig struct {
	Level string `yaml:"level"`
	File  string `yaml:"file,omitempty"`
}

type Config struct {
	APIListen    string         `yaml:"apiListen"`
	Debug        bool           `yaml:"debug"`
	ServiceToken string         `yaml:"serviceToken,omitempty"`
	JWT          JWTConfig      `yaml:"jwt"`
	DB           DBConfig       `yaml:"db"`
	Dispatch     DispatchConfig `yaml:"dispatch"`
	Log          LogConfig      `yaml:"log"`
}

func DBDriverValues() []DBDriver {
	return []DBDriver{DBDriverMySQL, DBDriverMSSQL}
}

func DBDriverOptions() []string {
	vals := DBDriverValues()
	out := make([]string, 0, len(vals))
	for _, v := range vals {
		out = append(out, string(v))
	}
	return out
}

func Default() Config {
	return Config{
		APIListen: "127.0.0.1:8080",
		JWT: JWTConfig{
			Cookie: "jwt_token",
		},
		DB: DBConfig{
			Driver: DBDriverMySQL,
			Host:   "localhost",
			Port:   3306,
		},
		Dispatch: DispatchConfig{
			MaxFileSize:       50 << 20,
			MaxResultSize:     50,
			MaxFilesPerUpload: 5,
			PlainResolver:     "UP_MAPVIEW_SELECT",
			FileResolver:      "UP_MAPVIEWFILES_SELECT",
			ParamDelimiter:    codec.DefaultDelimiter,
			QueryTimeout:      30 * time.Second,
		},
		Log: LogConfig{
			Level: "info",
		},
	}
}

func (c Config) Validate() error {
	var errs []error

	driverOK := false
	for _, d := range DBDriverValues() {
		if c.DB.Driver == d {
			driverOK = true
		}
	}
	if !driverOK {
		errs = append(errs, fmt.Errorf("db.driver must be one of %s", strings.Join(DBDriverOptions(), ", ")))
	}

	d := c.Dispatch
	if d.MaxFileSize <= 0 {
		errs = append(errs, errors.New("dispatch.maxFileSize must be positive"))
	}
	if d.MaxResultSize <= 0 {
		errs = append(errs, errors.New("dispatch.maxResultSize must be positive"))
	}
	if d.MaxFilesPerUpload <= 0 {
		errs = append(errs, errors.New("dispatch.maxFilesPerUpload must be positive"))
	}
	if strings.TrimSpace(d.PlainResolver) == "" || strings.TrimSpace(d.FileResolver) == "" {
		errs = append(errs, errors.New("dispatch resolver procedures are required"))
	}
	if !codec.ValidDelimiter(d.ParamDelimiter) {
		errs = append(errs, errors.New("dispatch.paramDelimiter collides with the escape codec"))
	}
	if d.QueryTimeout < 0 {
		errs = append(errs, errors.New("dispatch.queryTimeout must not be negative"))
	}

	return errors.Join(errs...)
}
