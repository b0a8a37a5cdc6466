package main

import (
	"fmt"
	"strings"

	"github.com/BurntSushi/toml"

	"github.com/danmuck/framectl/internal/config"
)

type fileConfig struct {
	Name                  string `toml:"name"`
	Addr                  string `toml:"addr"`
	PSK                   string `toml:"psk"`
	PSKFile               string `toml:"psk_file"`
	LogLevel              string `toml:"log_level"`
	MaxPlaintextPerRecord int    `toml:"max_plaintext_per_record"`
	MaxRecordBytes        int    `toml:"max_record_bytes"`
	ReadBufferBytes       int    `toml:"read_buffer_bytes"`
}

func loadPeerConfig(path string) (config.PeerConfig, error) {
	cfg := config.DefaultPeerConfig()

	var raw fileConfig
	meta, err := toml.DecodeFile(path, &raw)
	if err != nil {
		return config.PeerConfig{}, fmt.Errorf("load framectl config: %w", err)
	}

	if meta.IsDefined("name") {
		if name := strings.TrimSpace(raw.Name); name != "" {
			cfg.Name = name
		}
	}
	if meta.IsDefined("addr") {
		cfg.Addr = strings.TrimSpace(raw.Addr)
	}
	if meta.IsDefined("psk") {
		cfg.PSK = strings.TrimSpace(raw.PSK)
	}
	if meta.IsDefined("psk_file") {
		cfg.PSKFile = strings.TrimSpace(raw.PSKFile)
	}
	if meta.IsDefined("log_level") {
		cfg.LogLevel = strings.TrimSpace(raw.LogLevel)
	}
	if meta.IsDefined("max_plaintext_per_record") {
		cfg.Stage.MaxPlaintextPerRecord = raw.MaxPlaintextPerRecord
	}
	if meta.IsDefined("max_record_bytes") {
		cfg.Stage.MaxRecordBytes = raw.MaxRecordBytes
	}
	if meta.IsDefined("read_buffer_bytes") {
		cfg.Stage.ReadBufferBytes = raw.ReadBufferBytes
	}

	if err := cfg.Validate(); err != nil {
		return config.PeerConfig{}, err
	}
	return cfg, nil
}
