// Package config reads the pipeline settings from the environment and an
// optional config file.
package config

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/rtm0/sstpoints/internal/logger"
)

// ErrInvalid is returned for missing or malformed settings.
var ErrInvalid = errors.New("invalid configuration")

// S3 describes an S3 compatible endpoint.
type S3 struct {
	Endpoint string
	Region   string
	Insecure bool
}

// Config stores all configuration of a stage invocation.
type Config struct {
	// BatchSize is the number of points per write batch. Zero means unset.
	BatchSize int
	// Subset truncates the flattened table to SubsetSize rows. Development
	// only.
	Subset     bool
	SubsetSize int

	ScratchDir   string
	StoreBackend string
	StoreFSRoot  string
	Output       S3
	Source       S3

	SecretsBackend string
	SSMRegion      string

	CMRURL         string
	KafkaBrokers   []string
	KafkaTopic     string
	PushgatewayURL string
	HTTPTimeout    time.Duration

	ValueVariable   string
	AnomalyVariable string

	Log logger.Options
}

func defaults(v *viper.Viper) {
	v.SetDefault("store_backend", "s3")
	v.SetDefault("output_s3_endpoint", "s3.amazonaws.com")
	v.SetDefault("output_s3_region", "us-west-2")
	v.SetDefault("source_s3_endpoint", "s3.us-west-2.amazonaws.com")
	v.SetDefault("source_s3_region", "us-west-2")
	v.SetDefault("secrets_backend", "ssm")
	v.SetDefault("ssm_region", "us-west-2")
	v.SetDefault("cmr_url", "https://cmr.earthdata.nasa.gov/search")
	v.SetDefault("kafka_topic", "sstpoints-staged")
	v.SetDefault("http_timeout", "30s")
	v.SetDefault("value_variable", "analysed_sst")
	v.SetDefault("anomaly_variable", "sst_anomaly")
	v.SetDefault("log_level", "info")
	v.SetDefault("log_format", "json")
}

// Load reads the configuration from the environment, and from configFile
// when it is not empty. Environment variables take precedence.
func Load(configFile string) (*Config, error) {
	v := viper.New()
	defaults(v)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	if configFile != "" {
		v.SetConfigFile(configFile)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("%w: cannot read %s: %v", ErrInvalid, configFile, err)
		}
	}
	return fromViper(v)
}

func fromViper(v *viper.Viper) (*Config, error) {
	c := &Config{
		ScratchDir:      v.GetString("scratch_dir"),
		StoreBackend:    strings.ToLower(v.GetString("store_backend")),
		StoreFSRoot:     v.GetString("store_fs_root"),
		SecretsBackend:  strings.ToLower(v.GetString("secrets_backend")),
		SSMRegion:       v.GetString("ssm_region"),
		CMRURL:          v.GetString("cmr_url"),
		KafkaTopic:      v.GetString("kafka_topic"),
		PushgatewayURL:  v.GetString("pushgateway_url"),
		ValueVariable:   v.GetString("value_variable"),
		AnomalyVariable: v.GetString("anomaly_variable"),
		Output: S3{
			Endpoint: v.GetString("output_s3_endpoint"),
			Region:   v.GetString("output_s3_region"),
		},
		Source: S3{
			Endpoint: v.GetString("source_s3_endpoint"),
			Region:   v.GetString("source_s3_region"),
		},
		Log: logger.Options{
			Level:  v.GetString("log_level"),
			Format: v.GetString("log_format"),
		},
	}
	var err error
	if c.BatchSize, err = intSetting(v, "batch_size", 0); err != nil {
		return nil, err
	}
	if c.Subset, err = boolSetting(v, "subset_df"); err != nil {
		return nil, err
	}
	if c.SubsetSize, err = intSetting(v, "subset_size", -1); err != nil {
		return nil, err
	}
	if c.Output.Insecure, err = boolSetting(v, "output_s3_insecure"); err != nil {
		return nil, err
	}
	if c.Source.Insecure, err = boolSetting(v, "source_s3_insecure"); err != nil {
		return nil, err
	}
	if c.HTTPTimeout, err = durationSetting(v, "http_timeout"); err != nil {
		return nil, err
	}
	for _, b := range strings.Split(v.GetString("kafka_brokers"), ",") {
		if b = strings.TrimSpace(b); b != "" {
			c.KafkaBrokers = append(c.KafkaBrokers, b)
		}
	}
	switch c.StoreBackend {
	case "s3":
	case "fs":
		if c.StoreFSRoot == "" {
			return nil, fmt.Errorf("%w: STORE_FS_ROOT is required with STORE_BACKEND=fs", ErrInvalid)
		}
	default:
		return nil, fmt.Errorf("%w: STORE_BACKEND must be s3 or fs, got %q", ErrInvalid, c.StoreBackend)
	}
	switch c.SecretsBackend {
	case "ssm", "env":
	default:
		return nil, fmt.Errorf("%w: SECRETS_BACKEND must be ssm or env, got %q", ErrInvalid, c.SecretsBackend)
	}
	return c, nil
}

// ValidateExplode checks the settings the explode stage needs: a positive
// BATCH_SIZE and, when SUBSET_DF is on, a non-negative SUBSET_SIZE.
func (c *Config) ValidateExplode() error {
	if c.BatchSize <= 0 {
		return fmt.Errorf("%w: BATCH_SIZE must be a positive integer, got %d", ErrInvalid, c.BatchSize)
	}
	if c.Subset && c.SubsetSize < 0 {
		return fmt.Errorf("%w: SUBSET_SIZE must be a non-negative integer with SUBSET_DF=true", ErrInvalid)
	}
	return nil
}

// RowLimit returns the development row limit, or -1 when rows are not
// truncated.
func (c *Config) RowLimit() int {
	if !c.Subset {
		return -1
	}
	return c.SubsetSize
}

func envName(key string) string {
	return strings.ToUpper(key)
}

// intSetting returns unset when key has no value.
func intSetting(v *viper.Viper, key string, unset int) (int, error) {
	s := strings.TrimSpace(v.GetString(key))
	if s == "" {
		return unset, nil
	}
	n, err := strconv.Atoi(s)
	if err != nil {
		return 0, fmt.Errorf("%w: %s must be an integer, got %q", ErrInvalid, envName(key), s)
	}
	return n, nil
}

func boolSetting(v *viper.Viper, key string) (bool, error) {
	s := strings.TrimSpace(v.GetString(key))
	if s == "" {
		return false, nil
	}
	b, err := strconv.ParseBool(s)
	if err != nil {
		return false, fmt.Errorf("%w: %s must be a boolean, got %q", ErrInvalid, envName(key), s)
	}
	return b, nil
}

func durationSetting(v *viper.Viper, key string) (time.Duration, error) {
	s := strings.TrimSpace(v.GetString(key))
	d, err := time.ParseDuration(s)
	if n, aErr := strconv.Atoi(s); aErr == nil {
		d, err = time.Duration(n)*time.Second, nil
	}
	if err != nil || d <= 0 {
		return 0, fmt.Errorf("%w: %s must be a positive duration, got %q", ErrInvalid, envName(key), s)
	}
	return d, nil
}
