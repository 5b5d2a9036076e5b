package main

import (
	"context"
	"fmt"
	"io"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/ehr/allergy/internal/domain/allergy"
)

type seedPair struct {
	DrugA string `yaml:"drug_a"`
	DrugB string `yaml:"drug_b"`
}

// seedFile is the YAML layout accepted by "registry import".
type seedFile struct {
	CrossSensitivities []seedPair `yaml:"cross_sensitivities"`
}

func loadSeedFile(path string) (*seedFile, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open seed file: %w", err)
	}
	defer f.Close()
	return parseSeed(f)
}

func parseSeed(r io.Reader) (*seedFile, error) {
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	var seed seedFile
	if err := dec.Decode(&seed); err != nil && err != io.EOF {
		return nil, fmt.Errorf("parse seed: %w", err)
	}
	return &seed, nil
}

// importSeed registers every pair in order and stops at the first failure.
// It returns how many pairs were registered.
func importSeed(ctx context.Context, svc *allergy.Service, admin string, seed *seedFile) (int, error) {
	for i, p := range seed.CrossSensitivities {
		if err := svc.RegisterCrossSensitivity(ctx, admin, p.DrugA, p.DrugB); err != nil {
			return i, fmt.Errorf("pair %d (%q, %q): %w", i+1, p.DrugA, p.DrugB, err)
		}
	}
	return len(seed.CrossSensitivities), nil
}
