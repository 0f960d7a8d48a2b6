package deployment

import (
	"maps"

	"github.com/artpar/stackup/internal/core/domain"
)

// Label keys used to find stackup containers again.
const (
	LabelManaged = "com.stackup.managed"
	LabelProject = "com.stackup.project"
	LabelProfile = "com.stackup.profile"
	LabelService = "com.stackup.service"
	LabelRun     = "com.stackup.run"
)

// ContainerPlan is what the engine needs to run one service of a plan.
type ContainerPlan struct {
	Name    string
	Image   string
	Build   *domain.BuildSpec // set when Image is built locally
	Command []string
	Env     map[string]string
	Labels  map[string]string
	Ports   []domain.PortMapping // protocol always set
	Network string
	Alias   string // DNS name of the service on Network
	Restart string // Docker restart policy name
}

// ContainerFor plans the container of svc within a deployment plan. The
// environment is the one the plan resolved for svc, copied.
//
//	cp := ContainerFor("suite", plan, svc)
//	// cp.Name == "stackup_suite_database"
func ContainerFor(project string, plan *domain.DeploymentPlan, svc domain.ServiceDescriptor) ContainerPlan {
	cp := ContainerPlan{
		Name:    ContainerName(project, svc.Name),
		Image:   svc.Launch.Image,
		Build:   svc.Launch.Build,
		Command: svc.Command,
		Env:     maps.Clone(plan.Environment[svc.Name]),
		Labels: map[string]string{
			LabelManaged: "true",
			LabelProject: project,
			LabelProfile: string(plan.Profile),
			LabelService: svc.Name,
			LabelRun:     plan.RunID,
		},
		Network: NetworkName(project),
		Alias:   svc.Name,
		Restart: dockerRestart(svc.Restart),
	}
	if cp.Env == nil {
		cp.Env = map[string]string{}
	}
	if cp.Build != nil && cp.Image == "" {
		cp.Image = BuildImageName(project, svc.Name)
	}

	for _, p := range svc.Ports {
		p.Protocol = p.Key().Protocol
		cp.Ports = append(cp.Ports, p)
	}
	return cp
}

// ProjectLabels returns the label filter matching every container of a project.
func ProjectLabels(project string) map[string]string {
	return map[string]string{
		LabelManaged: "true",
		LabelProject: project,
	}
}

// dockerRestart names policy the way the engine expects. Unset means "no".
func dockerRestart(policy domain.RestartPolicy) string {
	if policy == "" {
		return string(domain.RestartNever)
	}
	return string(policy)
}
