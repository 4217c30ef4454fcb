package rules

import (
	"fmt"
	"io"
	"os"

	"gopkg.in/yaml.v3"
)

// Bundle is a YAML file of rules, e.g.
//
//	rules:
//	  - action: cancel_order
//	    condition: The order was placed less than 24 hours ago.
//	    deny_message: Orders can only be cancelled within a day.
//	    escalate_after_retries: 2
type Bundle struct {
	Rules []CreateRuleInput `yaml:"rules"`
}

// LoadBundle reads a rule bundle from path
func LoadBundle(path string) (*Bundle, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open rule bundle: %w", err)
	}
	defer f.Close()

	return DecodeBundle(f)
}

// DecodeBundle parses a rule bundle
func DecodeBundle(r io.Reader) (*Bundle, error) {
	var bundle Bundle
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(&bundle); err != nil {
		if err == io.EOF {
			return &Bundle{}, nil
		}
		return nil, fmt.Errorf("failed to parse rule bundle: %w", err)
	}
	return &bundle, nil
}
