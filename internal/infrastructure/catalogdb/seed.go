package catalogdb

import (
	"context"
	"fmt"
	"io"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/medicompare/backend/internal/domain"
)

// SeedFile is the YAML layout of a catalog seed:
//
//	analyses:
//	  - name: Hemoleucograma completa
//	    category: hematologie
//	    alternative_names: [HLG, CBC]
//	    prices:
//	      reginamaria:
//	        normal: {amount: 25, currency: RON}
type SeedFile struct {
	Analyses []domain.CatalogEntry `yaml:"analyses"`
}

// ParseSeed decodes a YAML seed and validates every entry
func ParseSeed(r io.Reader) ([]domain.CatalogEntry, error) {
	var f SeedFile
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(&f); err != nil {
		if err == io.EOF {
			return []domain.CatalogEntry{}, nil
		}
		return nil, fmt.Errorf("%w: seed: %v", domain.ErrInvalidInput, err)
	}

	seen := make(map[string]bool, len(f.Analyses))
	for i, e := range f.Analyses {
		if err := e.Validate(); err != nil {
			return nil, fmt.Errorf("seed entry %d: %w", i, err)
		}
		if seen[e.Name] {
			return nil, fmt.Errorf("%w: seed entry %d: duplicate name %q", domain.ErrInvalidInput, i, e.Name)
		}
		seen[e.Name] = true
	}
	return f.Analyses, nil
}

// LoadSeedFile reads and parses a YAML seed from disk
func LoadSeedFile(path string) ([]domain.CatalogEntry, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("catalogdb: open seed: %w", err)
	}
	defer f.Close()
	return ParseSeed(f)
}

// SeedFromFile imports a YAML seed into the store
func (s *Store) SeedFromFile(ctx context.Context, path string) (int, error) {
	entries, err := LoadSeedFile(path)
	if err != nil {
		return 0, err
	}
	n, err := s.Import(ctx, entries)
	if err != nil {
		return 0, err
	}
	s.logger.Info().Str("file", path).Int("entries", n).Msg("catalog seeded")
	return n, nil
}
