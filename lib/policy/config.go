package policy

import (
	"os"

	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"
)

// Config is the source a RuleSet is built from: command line flags, a YAML file, or both.
type Config struct {
	RequireSigning  bool     `yaml:"require-signing"`
	NoDeletion      bool     `yaml:"no-deletion"`
	NoCreation      bool     `yaml:"no-creation"`
	AllowPatterns   []string `yaml:"allow-patterns"`
	ProtectPatterns []string `yaml:"protect-patterns"`
}

func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrapf(err, "could not read policy file %v", path)
	}

	return ParseConfig(data)
}

func ParseConfig(data []byte) (*Config, error) {
	var result Config

	err := yaml.Unmarshal(data, &result)
	if err != nil {
		return nil, errors.Wrap(err, "could not parse policy file")
	}

	return &result, nil
}

// Merge combines two configs: toggles are OR-ed and pattern lists concatenated.
func (c Config) Merge(other Config) Config {
	return Config{
		RequireSigning:  c.RequireSigning || other.RequireSigning,
		NoDeletion:      c.NoDeletion || other.NoDeletion,
		NoCreation:      c.NoCreation || other.NoCreation,
		AllowPatterns:   append(append([]string(nil), c.AllowPatterns...), other.AllowPatterns...),
		ProtectPatterns: append(append([]string(nil), c.ProtectPatterns...), other.ProtectPatterns...),
	}
}
