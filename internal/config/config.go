package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"
)

// Global configuration structure.
type Global struct {
	// Parameters analyzed when --params is not given. Empty means every
	// column in the logs.
	Params     []string `mapstructure:"params" yaml:"params"`
	GroupBy    string   `mapstructure:"group_by" yaml:"group_by" validate:"oneof=lot wafer lot_wafer file all"`
	Workers    int      `mapstructure:"workers" yaml:"workers" validate:"gte=0,lte=256"`
	Encoding   string   `mapstructure:"encoding" yaml:"encoding" validate:"oneof=utf-8 utf8 gbk gb18030 big5 latin1"`
	Extensions []string `mapstructure:"extensions" yaml:"extensions"`
	Sniff      bool     `mapstructure:"sniff" yaml:"sniff"`
	MaxFileMB  int      `mapstructure:"max_file_mb" yaml:"max_file_mb" validate:"gte=1,lte=4096"`

	// Output
	OutputDir string   `mapstructure:"output_dir" yaml:"output_dir"`
	Formats   []string `mapstructure:"formats" yaml:"formats" validate:"dive,oneof=markdown csv xlsx"`
	CSVBOM    bool     `mapstructure:"csv_bom" yaml:"csv_bom"`
	DBPath    string   `mapstructure:"db_path" yaml:"db_path"`

	OutlierThreshold float64 `mapstructure:"outlier_threshold" yaml:"outlier_threshold" validate:"gt=0"`

	LogLevel  string `mapstructure:"log_level" yaml:"log_level" validate:"oneof=debug info warn error"`
	LogFormat string `mapstructure:"log_format" yaml:"log_format" validate:"oneof=text json"`
}

var validate = validator.New()

// Validate checks field ranges and enumerations.
func (c *Global) Validate() error {
	if err := validate.Struct(c); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	return nil
}

// Keys lists the settable configuration keys in display order.
var Keys = []string{
	"params", "group_by", "workers", "encoding", "extensions", "sniff", "max_file_mb",
	"output_dir", "formats", "csv_bom", "db_path", "outlier_threshold", "log_level", "log_format",
}

// Get returns the string form of one key.
func (c *Global) Get(key string) (string, error) {
	switch key {
	case "params":
		return strings.Join(c.Params, ","), nil
	case "group_by":
		return c.GroupBy, nil
	case "workers":
		return strconv.Itoa(c.Workers), nil
	case "encoding":
		return c.Encoding, nil
	case "extensions":
		return strings.Join(c.Extensions, ","), nil
	case "sniff":
		return strconv.FormatBool(c.Sniff), nil
	case "max_file_mb":
		return strconv.Itoa(c.MaxFileMB), nil
	case "output_dir":
		return c.OutputDir, nil
	case "formats":
		return strings.Join(c.Formats, ","), nil
	case "csv_bom":
		return strconv.FormatBool(c.CSVBOM), nil
	case "db_path":
		return c.DBPath, nil
	case "outlier_threshold":
		return strconv.FormatFloat(c.OutlierThreshold, 'g', -1, 64), nil
	case "log_level":
		return c.LogLevel, nil
	case "log_format":
		return c.LogFormat, nil
	}
	return "", fmt.Errorf("unknown key: %s", key)
}

// Set parses val into key and validates the result. On error c is left
// unchanged.
func (c *Global) Set(key, val string) error {
	next := *c
	switch key {
	case "params":
		next.Params = splitList(val)
	case "group_by":
		next.GroupBy = strings.ToLower(val)
	case "workers":
		i, err := strconv.Atoi(val)
		if err != nil {
			return fmt.Errorf("invalid int for workers: %w", err)
		}
		next.Workers = i
	case "encoding":
		next.Encoding = strings.ToLower(val)
	case "extensions":
		next.Extensions = splitList(val)
	case "sniff":
		b, err := strconv.ParseBool(val)
		if err != nil {
			return fmt.Errorf("invalid bool for sniff: %w", err)
		}
		next.Sniff = b
	case "max_file_mb":
		i, err := strconv.Atoi(val)
		if err != nil {
			return fmt.Errorf("invalid int for max_file_mb: %w", err)
		}
		next.MaxFileMB = i
	case "output_dir":
		next.OutputDir = val
	case "formats":
		next.Formats = splitList(strings.ToLower(val))
	case "csv_bom":
		b, err := strconv.ParseBool(val)
		if err != nil {
			return fmt.Errorf("invalid bool for csv_bom: %w", err)
		}
		next.CSVBOM = b
	case "db_path":
		next.DBPath = val
	case "outlier_threshold":
		f, err := strconv.ParseFloat(val, 64)
		if err != nil {
			return fmt.Errorf("invalid float for outlier_threshold: %w", err)
		}
		next.OutlierThreshold = f
	case "log_level":
		next.LogLevel = strings.ToLower(val)
	case "log_format":
		next.LogFormat = strings.ToLower(val)
	default:
		return fmt.Errorf("unknown key: %s", key)
	}
	if err := next.Validate(); err != nil {
		return err
	}
	*c = next
	return nil
}

func splitList(s string) []string {
	var out []string
	for _, p := range strings.Split(s, ",") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

// missingConfig reports whether err only means there is no config file yet.
func missingConfig(err error, cfgFile string) bool {
	var nf viper.ConfigFileNotFoundError
	if errors.As(err, &nf) {
		return true
	}
	if cfgFile != "" {
		_, statErr := os.Stat(cfgFile)
		return errors.Is(statErr, fs.ErrNotExist)
	}
	return false
}

func defaultDir() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("resolve home dir: %w", err)
	}
	return filepath.Join(home, ".cplog"), nil
}

// Save writes the given configuration to the cfgFile path. If cfgFile is empty,
// it writes to ~/.cplog/config.yaml, creating the directory if necessary.
func Save(c *Global, cfgFile string) error {
	path := cfgFile
	if path == "" {
		dir, err := defaultDir()
		if err != nil {
			return err
		}
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("mkdir config dir: %w", err)
		}
		path = filepath.Join(dir, "config.yaml")
	}
	b, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("marshal yaml: %w", err)
	}
	if err := os.WriteFile(path, b, 0o644); err != nil {
		return fmt.Errorf("write config: %w", err)
	}
	return nil
}

// Load loads configuration from file, env, and defaults.
// Precedence: flags (cfgFile) > env > config file > defaults.
func Load(cfgFile string) (*Global, error) {
	v := viper.New()
	v.SetEnvPrefix("CPLOG")
	v.AutomaticEnv()

	v.SetDefault("params", []string{})
	v.SetDefault("group_by", "lot")
	v.SetDefault("workers", 0)
	v.SetDefault("encoding", "utf-8")
	v.SetDefault("extensions", []string{".txt", ".log", ".dat", ""})
	v.SetDefault("sniff", false)
	v.SetDefault("max_file_mb", 64)
	v.SetDefault("output_dir", "")
	v.SetDefault("formats", []string{"markdown"})
	v.SetDefault("csv_bom", true)
	v.SetDefault("db_path", "")
	v.SetDefault("outlier_threshold", 3.5)
	v.SetDefault("log_level", "warn")
	v.SetDefault("log_format", "text")

	if cfgFile != "" {
		v.SetConfigFile(cfgFile)
	} else {
		dir, err := defaultDir()
		if err != nil {
			return nil, err
		}
		v.AddConfigPath(dir)
		v.SetConfigName("config")
		v.SetConfigType("yaml")
	}
	if err := v.ReadInConfig(); err != nil && !missingConfig(err, cfgFile) {
		return nil, fmt.Errorf("read config: %w", err)
	}

	var c Global
	if err := v.Unmarshal(&c); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}
	c.GroupBy = strings.ToLower(c.GroupBy)
	c.Encoding = strings.ToLower(c.Encoding)
	if err := c.Validate(); err != nil {
		return nil, err
	}
	return &c, nil
}
