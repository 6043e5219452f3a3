// Package bank provides the question banks shipped with the service and
// reads operator-supplied ones from YAML.
package bank

import (
	_ "embed"
	"fmt"
	"os"

	"wordfall-service/internal/domain"

	"gopkg.in/yaml.v3"
)

// DefaultID is the id of the embedded bank.
const DefaultID = "default"

//go:embed default_bank.yaml
var defaultBankYAML []byte

// Default returns the embedded question bank.
func Default() (domain.Bank, error) {
	return Parse(defaultBankYAML)
}

// Parse decodes and validates a YAML bank.
func Parse(data []byte) (domain.Bank, error) {
	var b domain.Bank
	if err := yaml.Unmarshal(data, &b); err != nil {
		return domain.Bank{}, fmt.Errorf("decode bank: %w", err)
	}
	if err := b.Validate(); err != nil {
		return domain.Bank{}, err
	}
	return b, nil
}

// LoadFile reads a YAML bank from path.
func LoadFile(path string) (domain.Bank, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return domain.Bank{}, fmt.Errorf("read bank %s: %w", path, err)
	}
	return Parse(data)
}
