package scan

import (
	"fmt"
	"strings"

	"github.com/go-viper/mapstructure/v2"
	"github.com/knadh/koanf/parsers/json"
	"github.com/knadh/koanf/providers/confmap"
	"github.com/knadh/koanf/providers/env/v2"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
)

// envPrefix is the namespace for environment overrides, mirroring the
// teacher's practice of prefixing process env vars with the CLI's own
// name.
const envPrefix = "SOURCETRACE_"

// Config is the Scan Driver's configuration: the SBOM/blacklist lists,
// the core's implementation limits, and the path to the Index Gateway's
// backing store. It is loaded once at driver construction and never
// re-read mid-run (spec §5, "read-only after initialization").
type Config struct {
	SBOM      string `koanf:"sbom"`
	Blacklist string `koanf:"blacklist"`

	ScanLimit     int   `koanf:"scan_limit"`
	MaxFileSize   int64 `koanf:"max_file_size"`
	MaxHashesRead int   `koanf:"max_hashes_read"`
	MaxFiles      int   `koanf:"max_files"`

	GatewayPath string `koanf:"gateway_path"`
}

func defaultConfig() map[string]interface{} {
	return map[string]interface{}{
		"sbom":            "",
		"blacklist":       "",
		"scan_limit":      10,
		"max_file_size":   100 << 20, // 100MiB
		"max_hashes_read": 1 << 16,
		"max_files":       4096,
		"gateway_path":    "sourcetrace.bolt",
	}
}

// LoadConfig layers configuration the way the teacher's go.mod stack
// implies: confmap defaults, an optional JSON file at configPath (skipped
// when configPath is empty; a path that cannot be loaded is an error), then
// SOURCETRACE_*-prefixed environment overrides, matching koanf's
// lowest-to-highest-precedence provider ordering.
func LoadConfig(configPath string) (Config, error) {
	k := koanf.New(".")

	if err := k.Load(confmap.Provider(defaultConfig(), "."), nil); err != nil {
		return Config{}, fmt.Errorf("scan: load defaults: %w", err)
	}

	if configPath != "" {
		if err := k.Load(file.Provider(configPath), json.Parser()); err != nil {
			return Config{}, fmt.Errorf("scan: load config file %s: %w", configPath, err)
		}
	}

	envProvider := env.Provider(".", env.Opt{
		Prefix: envPrefix,
		TransformFunc: func(k, v string) (string, any) {
			return strings.ToLower(strings.TrimPrefix(k, envPrefix)), v
		},
	})
	if err := k.Load(envProvider, nil); err != nil {
		return Config{}, fmt.Errorf("scan: load env overrides: %w", err)
	}

	var cfg Config
	// Env values arrive as strings even for int/int64 fields (scan_limit,
	// max_file_size, ...), so the decode needs WeaklyTypedInput to coerce
	// them rather than failing the unmarshal outright.
	err := k.UnmarshalWithConf("", &cfg, koanf.UnmarshalConf{
		Tag: "koanf",
		DecoderConfig: &mapstructure.DecoderConfig{
			Result:           &cfg,
			WeaklyTypedInput: true,
		},
	})
	if err != nil {
		return Config{}, fmt.Errorf("scan: unmarshal config: %w", err)
	}
	return cfg, nil
}
