package models

// Unlimited disables a plan limit.
const Unlimited = -1

type Plan struct {
	Name                 string `json:"name" yaml:"name"`
	MaxProjects          int    `json:"maxProjects" yaml:"max_projects"`
	MaxMembersPerProject int    `json:"maxMembersPerProject" yaml:"max_members_per_project"`
}

// AllowsProjects reports whether an owner holding current projects may create another one.
func (p Plan) AllowsProjects(current int) bool {
	return p.MaxProjects == Unlimited || current < p.MaxProjects
}

// AllowsMembers reports whether a project with current members may take another one.
func (p Plan) AllowsMembers(current int) bool {
	return p.MaxMembersPerProject == Unlimited || current < p.MaxMembersPerProject
}

type PlanCatalog struct {
	Default string `json:"default" yaml:"default"`
	Plans   []Plan `json:"plans" yaml:"plans"`
}

func (c *PlanCatalog) Get(name string) (Plan, bool) {
	for _, p := range c.Plans {
		if p.Name == name {
			return p, true
		}
	}
	return Plan{}, false
}
