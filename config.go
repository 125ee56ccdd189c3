package pgadapt

import (
	"fmt"
	"hash/crc32"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/syssam/pgadapt/dialect/sql"
)

// DefaultAdvisoryLockKey is the advisory lock key used to serialize sequence
// repairs when no key is configured. It is derived from the module name so
// that unrelated tools sharing the database are unlikely to collide with it.
var DefaultAdvisoryLockKey = int64(crc32.ChecksumIEEE([]byte("pgadapt:sequence")))

// Duration wraps time.Duration with YAML support for strings such as "150ms".
type Duration time.Duration

// UnmarshalYAML implements the yaml.Unmarshaler interface.
func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	var s string
	if err := value.Decode(&s); err != nil {
		return err
	}
	v, err := time.ParseDuration(s)
	if err != nil {
		return fmt.Errorf("pgadapt: invalid duration %q: %w", s, err)
	}
	*d = Duration(v)
	return nil
}

// MarshalYAML implements the yaml.Marshaler interface.
func (d Duration) MarshalYAML() (any, error) {
	return time.Duration(d).String(), nil
}

// Config carries the tunables of the adaptation layer.
type Config struct {
	// TablePrefix is prepended to table names when deriving sequence names.
	TablePrefix string `yaml:"table_prefix"`

	// TempTablePrefix is prepended to generated temporary table names.
	// Defaults to "tmp_".
	TempTablePrefix string `yaml:"temp_table_prefix"`

	// AdvisoryLockKey is the advisory lock key that serializes sequence
	// repairs. All processes sharing a database must agree on it.
	AdvisoryLockKey int64 `yaml:"advisory_lock_key"`

	// SlowQueryThreshold enables query statistics collection with the
	// given slow query threshold when positive.
	SlowQueryThreshold Duration `yaml:"slow_query_threshold"`

	// Debug enables statement logging.
	Debug bool `yaml:"debug"`
}

// DefaultConfig returns a Config populated with the default values.
func DefaultConfig() Config {
	return Config{
		TempTablePrefix: "tmp_",
		AdvisoryLockKey: DefaultAdvisoryLockKey,
	}
}

// LoadConfig reads a YAML configuration file and merges it over the defaults.
func LoadConfig(path string) (Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("pgadapt: read config: %w", err)
	}
	return ParseConfig(data)
}

// ParseConfig parses YAML configuration data and merges it over the defaults.
func ParseConfig(data []byte) (Config, error) {
	cfg := DefaultConfig()
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return Config{}, fmt.Errorf("pgadapt: parse config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate reports whether the configuration is usable. The zero advisory
// lock key is reserved to catch unset configurations.
func (c Config) Validate() error {
	if c.AdvisoryLockKey == 0 {
		return fmt.Errorf("pgadapt: advisory lock key must not be zero")
	}
	if c.TablePrefix != "" && !sql.ValidIdentifier(c.TablePrefix) {
		return fmt.Errorf("pgadapt: invalid table prefix %q", c.TablePrefix)
	}
	if c.TempTablePrefix != "" && !sql.ValidIdentifier(c.TempTablePrefix) {
		return fmt.Errorf("pgadapt: invalid temporary table prefix %q", c.TempTablePrefix)
	}
	return nil
}
