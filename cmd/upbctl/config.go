package main

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	upb "github.com/gwww/upb-lib"
	"github.com/gwww/upb-lib/bridge"
	"github.com/gwww/upb-lib/logging"
)

// fileConfig is the YAML configuration for upbctl.
//
// Example:
//
//	url: serial:///dev/ttyUSB0
//	export_file: house.upe
//	flags: "report_state, heartbeat_timeout_sec=120"
//	logging:
//	  level: info
//	  format: text
//	mqtt:
//	  broker_url: tcp://localhost:1883
//	  topic_prefix: upb
//	history:
//	  path: upb-history.db
//	  retention_days: 30
type fileConfig struct {
	URL           string `yaml:"url"`
	ExportFile    string `yaml:"export_file"`
	Flags         string `yaml:"flags"`
	TransmitCount int    `yaml:"transmit_count"`

	Logging logging.Config `yaml:"logging"`

	MQTT struct {
		BrokerURL   string `yaml:"broker_url"`
		ClientID    string `yaml:"client_id"`
		Username    string `yaml:"username"`
		Password    string `yaml:"password"`
		TopicPrefix string `yaml:"topic_prefix"`
		QoS         byte   `yaml:"qos"`
	} `yaml:"mqtt"`

	History struct {
		Path          string `yaml:"path"`
		RetentionDays int    `yaml:"retention_days"`
	} `yaml:"history"`
}

// loadConfig reads the YAML file if path is non-empty, then applies any
// command-line overrides.
func loadConfig(path string) (fileConfig, error) {
	var cfg fileConfig
	cfg.MQTT.QoS = 1

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return fileConfig{}, fmt.Errorf("read config: %w", err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return fileConfig{}, fmt.Errorf("parse config: %w", err)
		}
	}

	if flagURL != "" {
		cfg.URL = flagURL
	}
	if flagExport != "" {
		cfg.ExportFile = flagExport
	}
	if flagFlags != "" {
		cfg.Flags = flagFlags
	}
	return cfg, nil
}

// clientConfig converts the file configuration into the library's.
func (c fileConfig) clientConfig() (upb.Config, error) {
	if c.URL == "" {
		return upb.Config{}, fmt.Errorf("no connection URL configured (use --url or the config file)")
	}
	flags, err := upb.ParseFlags(c.Flags)
	if err != nil {
		return upb.Config{}, err
	}
	return upb.Config{
		URL:            c.URL,
		ExportFilePath: c.ExportFile,
		TransmitCount:  c.TransmitCount,
		Flags:          flags,
	}, nil
}

func (c fileConfig) bridgeConfig() bridge.Config {
	return bridge.Config{
		BrokerURL:   c.MQTT.BrokerURL,
		ClientID:    c.MQTT.ClientID,
		Username:    c.MQTT.Username,
		Password:    c.MQTT.Password,
		TopicPrefix: c.MQTT.TopicPrefix,
		QoS:         c.MQTT.QoS,
	}
}

func (c fileConfig) historyRetention() time.Duration {
	days := c.History.RetentionDays
	if days <= 0 {
		days = 30
	}
	return time.Duration(days) * 24 * time.Hour
}
