// Package blueprint reads blueprint definitions from YAML or JSON files.
package blueprint

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/aretw0/botflow/pkg/domain"
	"gopkg.in/yaml.v3"
)

// Extensions lists the file extensions LoadDir picks up.
var Extensions = []string{".yaml", ".yml", ".json"}

// File is the on-disk shape: either a single blueprint or a list under "blueprints".
type File struct {
	Blueprints []*domain.Blueprint `yaml:"blueprints" json:"blueprints"`
}

// Parse decodes data according to ext (".json" or YAML otherwise). tenantID, when
// not empty, fills blueprints that declare no tenant. Steps inherit their map key as id.
func Parse(data []byte, ext, tenantID string) ([]*domain.Blueprint, error) {
	var (
		file   File
		single domain.Blueprint
	)
	if strings.EqualFold(ext, ".json") {
		if err := json.Unmarshal(data, &file); err != nil {
			return nil, fmt.Errorf("failed to parse json: %w", err)
		}
		if len(file.Blueprints) == 0 {
			if err := json.Unmarshal(data, &single); err != nil {
				return nil, fmt.Errorf("failed to parse json: %w", err)
			}
		}
	} else {
		// Default to YAML
		if err := yaml.Unmarshal(data, &file); err != nil {
			return nil, fmt.Errorf("failed to parse yaml: %w", err)
		}
		if len(file.Blueprints) == 0 {
			if err := yaml.Unmarshal(data, &single); err != nil {
				return nil, fmt.Errorf("failed to parse yaml: %w", err)
			}
		}
	}

	out := file.Blueprints
	if len(out) == 0 {
		if single.ID == "" && len(single.Steps) == 0 {
			return nil, errors.New("no blueprint found")
		}
		out = []*domain.Blueprint{&single}
	}
	for _, bp := range out {
		normalize(bp, tenantID)
	}
	return out, nil
}

func normalize(bp *domain.Blueprint, tenantID string) {
	if bp.TenantID == "" {
		bp.TenantID = tenantID
	}
	if bp.Version == 0 {
		bp.Version = 1
	}
	for id, step := range bp.Steps {
		if step.ID == "" {
			step.ID = id
			bp.Steps[id] = step
		}
	}
}

// LoadFile reads every blueprint in path and validates each one.
func LoadFile(path, tenantID string) ([]*domain.Blueprint, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read blueprint file: %w", err)
	}
	bps, err := Parse(data, filepath.Ext(path), tenantID)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	for _, bp := range bps {
		if err := bp.Validate(); err != nil {
			return nil, fmt.Errorf("%s: %w", path, err)
		}
	}
	return bps, nil
}

// LoadDir loads every blueprint file directly under dir, sorted by file name.
// Blueprint ids must be unique per tenant across the directory.
func LoadDir(dir, tenantID string) ([]*domain.Blueprint, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("failed to read blueprint dir: %w", err)
	}
	names := make([]string, 0, len(entries))
	for _, e := range entries {
		if e.IsDir() || !hasExtension(e.Name()) {
			continue
		}
		names = append(names, e.Name())
	}
	sort.Strings(names)

	var (
		out  []*domain.Blueprint
		errs []error
		seen = make(map[string]string)
	)
	for _, name := range names {
		path := filepath.Join(dir, name)
		bps, err := LoadFile(path, tenantID)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		for _, bp := range bps {
			key := bp.TenantID + "/" + bp.ID
			if prev, dup := seen[key]; dup {
				errs = append(errs, fmt.Errorf("%s: blueprint %q already defined in %s", path, bp.ID, prev))
				continue
			}
			seen[key] = path
			out = append(out, bp)
		}
	}
	return out, errors.Join(errs...)
}

func hasExtension(name string) bool {
	ext := strings.ToLower(filepath.Ext(name))
	for _, want := range Extensions {
		if ext == want {
			return true
		}
	}
	return false
}
