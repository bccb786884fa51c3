package persona

import (
	"os"

	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
	"gopkg.in/yaml.v3"
)

type configFile struct {
	User struct {
		Name     string `yaml:"name"`
		Greeting string `yaml:"greeting"`
	} `yaml:"user"`
	Master   MasterMessages `yaml:"master"`
	Personas []Persona      `yaml:"personas"`
	Helpers  []Persona      `yaml:"helpers"`
}

// LoadFromFile reads the persona table from a YAML document. Missing pieces
// (master messages, helper personas) are filled in from the built-in
// defaults so a minimal file that only lists participants still works.
func LoadFromFile(path string) (*Registry, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrapf(err, "could not read persona file %s", path)
	}

	cfg := &configFile{}
	if err := yaml.Unmarshal(b, cfg); err != nil {
		return nil, errors.Wrapf(err, "could not parse persona file %s", path)
	}

	if cfg.Master.SystemMessage == "" {
		cfg.Master = defaultMaster
	}
	if len(cfg.Personas) == 0 {
		cfg.Personas = defaultPersonas
	}
	helpers := mergeHelpers(cfg.Helpers)

	userName := cfg.User.Name
	if userName == "" {
		userName = defaultUserName
	}

	ret := NewRegistry(cfg.Personas, helpers, cfg.Master, userName)
	ret.greeting = cfg.User.Greeting

	log.Debug().Str("path", path).
		Int("personas", len(cfg.Personas)).
		Int("helpers", len(helpers)).
		Msg("loaded persona registry")
	return ret, nil
}

// Default returns the built-in registry used when no persona file is
// configured.
func Default(userName string) *Registry {
	if userName == "" {
		userName = defaultUserName
	}
	return NewRegistry(defaultPersonas, defaultHelpers, defaultMaster, userName)
}

// mergeHelpers overlays user-defined helpers on the built-in set; every
// well-known helper must exist for the core to function.
func mergeHelpers(custom []Persona) []Persona {
	byName := map[string]Persona{}
	for _, p := range defaultHelpers {
		byName[p.Name] = p
	}
	for _, p := range custom {
		byName[p.Name] = p
	}

	ret := make([]Persona, 0, len(byName))
	for _, name := range []string{HelperTopicGenerator, HelperResponseDetector, HelperContextDetector, HelperModerator} {
		if p, ok := byName[name]; ok {
			ret = append(ret, p)
			delete(byName, name)
		}
	}
	for _, p := range byName {
		ret = append(ret, p)
	}
	return ret
}
