package main

import (
	"fmt"
	"strings"

	"github.com/spf13/viper"
	"github.com/urfave/cli/v2"

	"github.com/gostratum/bucketx"
	"github.com/gostratum/bucketx/fixture"
)

const envPrefix = "BUCKETX"

// loadCredentials resolves the credential context. A config file wins over
// everything else; manual keys apply only when both are given; the
// environment is the last resort.
func loadCredentials(c *cli.Context) (bucketx.Credentials, error) {
	v := viper.New()
	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()

	if path := c.String("config"); path != "" {
		v.SetConfigFile(path)
		v.SetConfigType("json")
		if err := v.ReadInConfig(); err != nil {
			return bucketx.Credentials{}, fmt.Errorf("%w: reading %s: %v", bucketx.ErrInvalidConfig, path, err)
		}

		var file struct {
			AccessKey string `mapstructure:"accesskey"`
			SecretKey string `mapstructure:"secretkey"`
			URL       string `mapstructure:"url"`
		}
		if err := v.Unmarshal(&file); err != nil {
			return bucketx.Credentials{}, fmt.Errorf("%w: decoding %s: %v", bucketx.ErrInvalidConfig, path, err)
		}
		return bucketx.Configure(file.AccessKey, file.SecretKey, file.URL), nil
	}

	if c.String("accesskey") != "" && c.String("secretkey") != "" {
		return bucketx.Configure(c.String("accesskey"), c.String("secretkey"), c.String("endpoint")), nil
	}

	endpoint := c.String("endpoint")
	if endpoint == "" {
		endpoint = v.GetString("endpoint")
	}
	return bucketx.Configure(v.GetString("access_key"), v.GetString("secret_key"), endpoint), nil
}

// loadConfig builds and validates the store configuration
func loadConfig(c *cli.Context) (*bucketx.Config, error) {
	creds, err := loadCredentials(c)
	if err != nil {
		return nil, err
	}

	cfg := bucketx.DefaultConfig()
	cfg.Credentials = creds
	if provider := c.String("provider"); provider != "" {
		cfg.Provider = provider
	}
	if region := c.String("region"); region != "" {
		cfg.Region = region
	}
	cfg = cfg.Normalize()

	if err := bucketx.ValidateConfig(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

func loadFixtureConfig(c *cli.Context) fixture.Config {
	cfg := fixture.DefaultConfig()
	cfg.Count = c.Int("fixture-count")
	cfg.MinSize = c.Int("fixture-min-size")
	cfg.MaxSize = c.Int("fixture-max-size")
	return cfg
}
