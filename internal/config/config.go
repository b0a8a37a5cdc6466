package config

import (
	"crypto/sha256"
	"encoding/base64"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/pelletier/go-toml/v2"
)

var (
	ErrMissingAddr   = errors.New("config: missing addr")
	ErrMissingPSK    = errors.New("config: psk or psk_file required")
	ErrAmbiguousPSK  = errors.New("config: psk and psk_file both set")
	ErrInvalidLimits = errors.New("config: invalid stage limits")
)

// StageConfig tunes the secure frame stage for one peer.
type StageConfig struct {
	MaxPlaintextPerRecord int `toml:"max_plaintext_per_record"`
	MaxRecordBytes        int `toml:"max_record_bytes"`
	ReadBufferBytes       int `toml:"read_buffer_bytes"`
}

// PeerConfig configures one framectl peer.
type PeerConfig struct {
	Name     string      `toml:"name"`
	Addr     string      `toml:"addr"`
	PSK      string      `toml:"psk"` // base64; prefer psk_file
	PSKFile  string      `toml:"psk_file"`
	LogLevel string      `toml:"log_level"`
	Stage    StageConfig `toml:"stage"`
}

func DefaultPeerConfig() PeerConfig {
	return PeerConfig{
		Name:     "framectl",
		Addr:     ":9400",
		LogLevel: "info",
		Stage: StageConfig{
			MaxPlaintextPerRecord: 16 * 1024,
			MaxRecordBytes:        64 * 1024,
			ReadBufferBytes:       32 * 1024,
		},
	}
}

// LoadPeerConfig reads a TOML peer config, filling unset fields with
// defaults and validating the result.
func LoadPeerConfig(path string) (PeerConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return PeerConfig{}, fmt.Errorf("config load failed (%s): %w", path, err)
	}
	cfg := DefaultPeerConfig()
	if err := toml.Unmarshal(data, &cfg); err != nil {
		return PeerConfig{}, fmt.Errorf("config parse failed (%s): %w", path, err)
	}
	cfg.applyDefaults()
	if err := cfg.Validate(); err != nil {
		return PeerConfig{}, err
	}
	return cfg, nil
}

func (c *PeerConfig) applyDefaults() {
	def := DefaultPeerConfig()
	if strings.TrimSpace(c.Name) == "" {
		c.Name = def.Name
	}
	if strings.TrimSpace(c.Addr) == "" {
		c.Addr = def.Addr
	}
	if strings.TrimSpace(c.LogLevel) == "" {
		c.LogLevel = def.LogLevel
	}
	if c.Stage.MaxPlaintextPerRecord == 0 {
		c.Stage.MaxPlaintextPerRecord = def.Stage.MaxPlaintextPerRecord
	}
	if c.Stage.MaxRecordBytes == 0 {
		c.Stage.MaxRecordBytes = def.Stage.MaxRecordBytes
	}
	if c.Stage.ReadBufferBytes == 0 {
		c.Stage.ReadBufferBytes = def.Stage.ReadBufferBytes
	}
}

func (c PeerConfig) Validate() error {
	if strings.TrimSpace(c.Addr) == "" {
		return ErrMissingAddr
	}
	if strings.TrimSpace(c.PSK) == "" && strings.TrimSpace(c.PSKFile) == "" {
		return ErrMissingPSK
	}
	if strings.TrimSpace(c.PSK) != "" && strings.TrimSpace(c.PSKFile) != "" {
		return ErrAmbiguousPSK
	}
	if c.Stage.MaxPlaintextPerRecord < 0 || c.Stage.MaxRecordBytes < 0 || c.Stage.ReadBufferBytes < 0 {
		return ErrInvalidLimits
	}
	if c.Stage.MaxRecordBytes > 0 && c.Stage.MaxPlaintextPerRecord > c.Stage.MaxRecordBytes {
		return fmt.Errorf("%w: max_plaintext_per_record exceeds max_record_bytes", ErrInvalidLimits)
	}
	return nil
}

// Key derives the 32-byte session key from the configured pre-shared
// secret. The PSK is hashed, not used raw, so its length is free-form.
func (c PeerConfig) Key() ([]byte, error) {
	var material []byte
	switch {
	case strings.TrimSpace(c.PSKFile) != "":
		data, err := os.ReadFile(c.PSKFile)
		if err != nil {
			return nil, fmt.Errorf("config read psk_file: %w", err)
		}
		material = []byte(strings.TrimSpace(string(data)))
	case strings.TrimSpace(c.PSK) != "":
		decoded, err := base64.StdEncoding.DecodeString(strings.TrimSpace(c.PSK))
		if err != nil {
			return nil, fmt.Errorf("config decode psk: %w", err)
		}
		material = decoded
	default:
		return nil, ErrMissingPSK
	}
	if len(material) == 0 {
		return nil, ErrMissingPSK
	}
	key := sha256.Sum256(material)
	return key[:], nil
}
