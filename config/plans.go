package config

import (
	_ "embed"
	"fmt"
	"os"

	"github.com/NAHIAN-19/project-planner/models"
	"gopkg.in/yaml.v3"
)

//go:embed plans.yaml
var defaultPlans []byte

// LoadPlans parses the plan catalog from path, or the embedded catalog when path is empty.
func LoadPlans(path string) (*models.PlanCatalog, error) {
	data := defaultPlans
	if path != "" {
		b, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read plans file: %w", err)
		}
		data = b
	}
	return ParsePlans(data)
}

func ParsePlans(data []byte) (*models.PlanCatalog, error) {
	var catalog models.PlanCatalog
	if err := yaml.Unmarshal(data, &catalog); err != nil {
		return nil, fmt.Errorf("failed to parse plans: %w", err)
	}
	if len(catalog.Plans) == 0 {
		return nil, fmt.Errorf("plan catalog is empty")
	}
	seen := make(map[string]bool, len(catalog.Plans))
	for _, p := range catalog.Plans {
		if p.Name == "" {
			return nil, fmt.Errorf("plan without a name")
		}
		if seen[p.Name] {
			return nil, fmt.Errorf("duplicate plan %q", p.Name)
		}
		if p.MaxProjects < models.Unlimited || p.MaxMembersPerProject < models.Unlimited {
			return nil, fmt.Errorf("plan %q: limits must be -1 or non-negative", p.Name)
		}
		seen[p.Name] = true
	}
	if catalog.Default == "" {
		catalog.Default = catalog.Plans[0].Name
	}
	if !seen[catalog.Default] {
		return nil, fmt.Errorf("default plan %q is not defined", catalog.Default)
	}
	return &catalog, nil
}
