package config

import (
	"fmt"
	"os"
	"strings"

	"github.com/BurntSushi/toml"

	"vouchermarket/native/fees"
)

type Config struct {
	RPCAddress string `toml:"RPCAddress"`
	DataDir    string `toml:"DataDir"`
	RPCToken   string `toml:"RPCToken"`
	Env        string `toml:"Env"`

	Protocol Protocol `toml:"Protocol"`
}

// Protocol carries the global market parameters. Fee and deposit settings
// apply to offers created after a change; existing offers keep the values
// snapshotted at creation.
type Protocol struct {
	ProtocolFeeBps           uint32 `toml:"ProtocolFeeBps"`
	MaxTotalFeeBps           uint32 `toml:"MaxTotalFeeBps"`
	EscalationDepositPctBps  uint32 `toml:"EscalationDepositPctBps"`
	EscalationResponsePeriod int64  `toml:"EscalationResponsePeriod"`
	MaxRangeLength           uint64 `toml:"MaxRangeLength"`
	BurnBatchSize            uint64 `toml:"BurnBatchSize"`
	TreasuryAccount          uint64 `toml:"TreasuryAccount"`
	ConduitAccount           uint64 `toml:"ConduitAccount"`
}

func defaultConfig() *Config {
	return &Config{
		RPCAddress: "127.0.0.1:8645",
		DataDir:    "./market-data",
		Env:        "local",
		Protocol: Protocol{
			ProtocolFeeBps:           50,
			MaxTotalFeeBps:           4000,
			EscalationDepositPctBps:  2000,
			EscalationResponsePeriod: 30 * 24 * 60 * 60,
			MaxRangeLength:           1 << 20,
			BurnBatchSize:            500,
			TreasuryAccount:          1,
			ConduitAccount:           2,
		},
	}
}

// Load loads the configuration from the given path. A missing file yields
// the defaults.
func Load(path string) (*Config, error) {
	cfg := defaultConfig()
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return cfg, nil
	}
	if _, err := toml.DecodeFile(path, cfg); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config file %s: %w", path, err)
	}
	return cfg, nil
}

// Validate checks the loaded values for internal consistency.
func (c *Config) Validate() error {
	if strings.TrimSpace(c.RPCAddress) == "" {
		return fmt.Errorf("RPCAddress must not be empty")
	}
	if strings.TrimSpace(c.DataDir) == "" {
		return fmt.Errorf("DataDir must not be empty")
	}
	p := c.Protocol
	if p.ProtocolFeeBps > uint32(fees.BpsDenominator) {
		return fmt.Errorf("ProtocolFeeBps %d exceeds %d", p.ProtocolFeeBps, fees.BpsDenominator)
	}
	if p.MaxTotalFeeBps == 0 || p.MaxTotalFeeBps > uint32(fees.BpsDenominator) {
		return fmt.Errorf("MaxTotalFeeBps %d out of range", p.MaxTotalFeeBps)
	}
	if p.ProtocolFeeBps > p.MaxTotalFeeBps {
		return fmt.Errorf("ProtocolFeeBps %d exceeds MaxTotalFeeBps %d", p.ProtocolFeeBps, p.MaxTotalFeeBps)
	}
	if p.EscalationDepositPctBps > uint32(fees.BpsDenominator) {
		return fmt.Errorf("EscalationDepositPctBps %d exceeds %d", p.EscalationDepositPctBps, fees.BpsDenominator)
	}
	if p.EscalationResponsePeriod <= 0 {
		return fmt.Errorf("EscalationResponsePeriod must be positive")
	}
	if p.MaxRangeLength == 0 {
		return fmt.Errorf("MaxRangeLength must be positive")
	}
	if p.BurnBatchSize == 0 {
		return fmt.Errorf("BurnBatchSize must be positive")
	}
	if p.TreasuryAccount == 0 {
		return fmt.Errorf("TreasuryAccount must be set")
	}
	if p.ConduitAccount == 0 {
		return fmt.Errorf("ConduitAccount must be set")
	}
	return nil
}
