package scoring

import (
	"errors"
	"fmt"
	"io"
	"os"

	"gopkg.in/yaml.v3"
)

var ErrInvalidRuleSet = errors.New("scoring: invalid rule set")

type ruleSetFile struct {
	Sets map[string][]Rule `yaml:"sets"`
}

// LoadRuleSets reads a YAML rule-set document:
//
//	sets:
//	  Club:
//	    - name: Free distance
//	      code: od
//	      shape: distance3
//	      multiplier: 1
//	      cardinality: 3
//
// The document is validated before it is decoded into rules.
func LoadRuleSets(r io.Reader) (map[string][]Rule, error) {
	raw, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("read rule sets: %w", err)
	}

	var doc map[string]interface{}
	if err := yaml.Unmarshal(raw, &doc); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidRuleSet, err)
	}
	v, err := NewValidator()
	if err != nil {
		return nil, err
	}
	if err := v.Validate(doc); err != nil {
		return nil, err
	}

	var f ruleSetFile
	if err := yaml.Unmarshal(raw, &f); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidRuleSet, err)
	}
	return f.Sets, nil
}

// LoadFile adds the rule sets of a YAML file to the registry.
func (r *Registry) LoadFile(path string) error {
	fh, err := os.Open(path)
	if err != nil {
		return err
	}
	defer fh.Close()
	sets, err := LoadRuleSets(fh)
	if err != nil {
		return fmt.Errorf("%s: %w", path, err)
	}
	for name, rules := range sets {
		r.Add(name, rules)
	}
	return nil
}
