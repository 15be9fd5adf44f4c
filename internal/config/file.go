package config

import (
	"os"
	"time"

	"github.com/pelletier/go-toml"

	"github.com/bardlex/noso2m/pkg/errors"
)

// fileConfig mirrors the TOML file. nil means the key is absent and the
// current value stays.
type fileConfig struct {
	Address         *string  `toml:"address"`
	MinerID         *int     `toml:"minerid"`
	Threads         *int     `toml:"threads"`
	Solo            *bool    `toml:"solo"`
	Pools           *string  `toml:"pools"`
	Nodes           []string `toml:"nodes"`
	Quorum          *int     `toml:"quorum"`
	VerifySolutions *bool    `toml:"verify_solutions"`
	NodeTimeout     *string  `toml:"node_timeout"`
	PoolTimeout     *string  `toml:"pool_timeout"`

	Log struct {
		Level  *string `toml:"level"`
		Format *string `toml:"format"`
	} `toml:"log"`

	Metrics struct {
		Listen *string `toml:"listen"`
	} `toml:"metrics"`

	Kafka struct {
		Brokers     []string `toml:"brokers"`
		TopicPrefix *string  `toml:"topic_prefix"`
		Encoding    *string  `toml:"encoding"`
	} `toml:"kafka"`

	ZMQ struct {
		Endpoint *string `toml:"endpoint"`
	} `toml:"zmq"`

	Stores struct {
		Postgres     *string `toml:"postgres"`
		Redis        *string `toml:"redis"`
		Influx       *string `toml:"influx"`
		InfluxToken  *string `toml:"influx_token"`
		InfluxOrg    *string `toml:"influx_org"`
		InfluxBucket *string `toml:"influx_bucket"`
	} `toml:"stores"`
}

// LoadFile overlays the TOML file at path onto c
func (c *Config) LoadFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return errors.Wrap(err, errors.ErrorTypeConfig, "config_load_file", "cannot read config file").
			WithContext("path", path)
	}
	if err := c.apply(data); err != nil {
		return errors.Wrap(err, errors.ErrorTypeConfig, "config_load_file", "invalid config file").
			WithContext("path", path)
	}
	return nil
}

func (c *Config) apply(data []byte) error {
	var fc fileConfig
	if err := toml.Unmarshal(data, &fc); err != nil {
		return err
	}

	setString(&c.Address, fc.Address)
	setInt(&c.MinerID, fc.MinerID)
	setInt(&c.Threads, fc.Threads)
	setBool(&c.Solo, fc.Solo)
	setString(&c.Pools, fc.Pools)
	if len(fc.Nodes) > 0 {
		c.Nodes = fc.Nodes
	}
	setInt(&c.Quorum, fc.Quorum)
	setBool(&c.VerifySolutions, fc.VerifySolutions)
	if err := setDuration(&c.NodeTimeout, fc.NodeTimeout); err != nil {
		return err
	}
	if err := setDuration(&c.PoolTimeout, fc.PoolTimeout); err != nil {
		return err
	}

	setString(&c.LogLevel, fc.Log.Level)
	setString(&c.LogFormat, fc.Log.Format)
	setString(&c.MetricsAddr, fc.Metrics.Listen)

	if len(fc.Kafka.Brokers) > 0 {
		c.KafkaBrokers = fc.Kafka.Brokers
	}
	setString(&c.KafkaTopicPrefix, fc.Kafka.TopicPrefix)
	setString(&c.KafkaEncoding, fc.Kafka.Encoding)
	setString(&c.ZMQEndpoint, fc.ZMQ.Endpoint)

	setString(&c.PostgresURL, fc.Stores.Postgres)
	setString(&c.RedisURL, fc.Stores.Redis)
	setString(&c.InfluxURL, fc.Stores.Influx)
	setString(&c.InfluxToken, fc.Stores.InfluxToken)
	setString(&c.InfluxOrg, fc.Stores.InfluxOrg)
	setString(&c.InfluxBucket, fc.Stores.InfluxBucket)
	return nil
}

func setString(dst *string, v *string) {
	if v != nil {
		*dst = *v
	}
}

func setInt(dst *int, v *int) {
	if v != nil {
		*dst = *v
	}
}

func setBool(dst *bool, v *bool) {
	if v != nil {
		*dst = *v
	}
}

func setDuration(dst *time.Duration, v *string) error {
	if v == nil {
		return nil
	}
	d, err := time.ParseDuration(*v)
	if err != nil {
		return err
	}
	*dst = d
	return nil
}
