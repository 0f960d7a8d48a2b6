package compose

import (
	"context"
	"fmt"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/artpar/stackup/internal/core/domain"
	"github.com/compose-spec/compose-go/v2/loader"
	"github.com/compose-spec/compose-go/v2/types"
	"gopkg.in/yaml.v3"
)

// =============================================================================
// Parser Functions
// =============================================================================

// ParseTopology parses a compose-format YAML document into service descriptors.
// This is a pure function - it never reads env files or build contexts, only
// records their paths.
// Input: raw YAML bytes
// Output: Topology in declaration order or a *domain.ConfigError
func ParseTopology(ctx context.Context, content []byte, opts Options) (*Topology, error) {
	// Input validation
	if strings.TrimSpace(string(content)) == "" {
		return nil, newParseError("", "topology is empty", ErrEmptyInput)
	}

	order, err := declarationOrder(content)
	if err != nil {
		return nil, err
	}

	project, err := loadProject(ctx, content, opts)
	if err != nil {
		return nil, err
	}

	if len(project.Services) == 0 {
		return nil, newParseError("services", "no services defined", ErrNoServices)
	}

	topo := &Topology{
		Name:     project.Name,
		Services: make([]domain.ServiceDescriptor, 0, len(project.Services)),
	}

	for name, svc := range project.Services {
		idx, ok := order[name]
		if !ok {
			idx = len(order) + len(topo.Services)
		}
		converted, err := convertService(svc, idx, opts)
		if err != nil {
			return nil, err
		}
		topo.Services = append(topo.Services, converted)
	}

	domain.SortByIndex(topo.Services)
	return topo, nil
}

// declarationOrder records the position of each key under `services`.
// compose-go returns services as a map, so order must come from the document.
func declarationOrder(content []byte) (map[string]int, error) {
	var doc yaml.Node
	if err := yaml.Unmarshal(content, &doc); err != nil {
		return nil, newParseError("", err.Error(), ErrInvalidYAML)
	}
	if len(doc.Content) == 0 || doc.Content[0].Kind != yaml.MappingNode {
		return nil, newParseError("", "document must be a mapping", ErrInvalidYAML)
	}

	order := make(map[string]int)
	root := doc.Content[0]
	for i := 0; i+1 < len(root.Content); i += 2 {
		if root.Content[i].Value != "services" {
			continue
		}
		services := root.Content[i+1]
		if services.Kind != yaml.MappingNode {
			return nil, newParseError("services", "services must be a mapping", ErrInvalidYAML)
		}
		for j := 0; j+1 < len(services.Content); j += 2 {
			order[services.Content[j].Value] = j / 2
		}
	}
	return order, nil
}

// loadProject loads the document using compose-go with every profile enabled.
func loadProject(ctx context.Context, content []byte, opts Options) (*types.Project, error) {
	// Parse YAML into a map first
	var dict map[string]interface{}
	if err := yaml.Unmarshal(content, &dict); err != nil {
		return nil, newParseError("", "invalid YAML syntax", ErrInvalidYAML)
	}
	if dict == nil {
		return nil, newParseError("", "invalid YAML syntax", ErrInvalidYAML)
	}

	projectName := domain.DefaultProjectName
	if opts.ProjectName != "" {
		projectName = domain.NormalizeProjectName(opts.ProjectName)
	}

	project, err := loader.LoadWithContext(ctx, types.ConfigDetails{
		WorkingDir: opts.WorkingDir,
		ConfigFiles: []types.ConfigFile{
			{
				Filename: "compose.yaml",
				Content:  content,
				Config:   dict,
			},
		},
		Environment: types.Mapping(opts.Environment),
	}, func(o *loader.Options) {
		o.SetProjectName(projectName, opts.ProjectName != "")
		o.Profiles = []string{"*"}
		o.ResolvePaths = false
		// Env files are read at plan time, relative to WorkingDir
		o.SkipResolveEnvironment = true
		o.SkipNormalization = true
		// Cross-service checks are done per activation, not per document
		o.SkipConsistencyCheck = true
		o.SkipExtends = true
		o.SkipInclude = true
	})
	if err != nil {
		errStr := err.Error()
		if strings.Contains(errStr, "dependency cycle detected") {
			return nil, domain.NewConfigError("", "circular dependency detected", domain.ErrCyclicDependency)
		}
		if strings.Contains(errStr, "image") && strings.Contains(errStr, "build") {
			return nil, newParseError("", "service must have image or build", ErrServiceNoImage)
		}
		return nil, newParseError("", errStr, ErrInvalidYAML)
	}

	return project, nil
}

// convertService converts a compose-go service to a ServiceDescriptor
func convertService(svc types.ServiceConfig, index int, opts Options) (domain.ServiceDescriptor, error) {
	field := "services." + svc.Name
	desc := domain.ServiceDescriptor{
		Name:        svc.Name,
		Index:       index,
		Environment: make(map[string]string),
		Command:     []string(svc.Command),
	}

	// Launch spec
	desc.Launch.Image = svc.Image
	if svc.Build != nil {
		dockerfile := svc.Build.Dockerfile
		if dockerfile == "" {
			dockerfile = "Dockerfile"
		}
		desc.Launch.Build = &domain.BuildSpec{
			Context:    resolvePath(opts.WorkingDir, svc.Build.Context),
			Dockerfile: dockerfile,
			Target:     svc.Build.Target,
		}
	}

	// Migration extension
	migration, err := convertMigration(svc)
	if err != nil {
		return domain.ServiceDescriptor{}, err
	}
	desc.Migration = migration

	if desc.Launch.IsZero() && desc.Migration == nil {
		return domain.ServiceDescriptor{}, newParseError(field, "service must have image or build", ErrServiceNoImage)
	}

	// Ports
	for i, p := range svc.Ports {
		port, err := convertPort(p)
		if err != nil {
			return domain.ServiceDescriptor{}, newParseError(fmt.Sprintf("%s.ports[%d]", field, i), err.Error(), ErrServiceInvalidPort)
		}
		desc.Ports = append(desc.Ports, port)
	}

	// Environment
	for k, v := range svc.Environment {
		if v != nil {
			desc.Environment[k] = *v
			continue
		}
		// Bare KEY inherits from the invoking environment
		if inherited, ok := opts.Environment[k]; ok {
			desc.Environment[k] = inherited
		}
	}

	// Env files
	for _, f := range svc.EnvFiles {
		desc.EnvFiles = append(desc.EnvFiles, domain.EnvFileRef{
			Path:     resolvePath(opts.WorkingDir, f.Path),
			Required: bool(f.Required),
		})
	}

	// DependsOn
	for name, dep := range svc.DependsOn {
		cond, err := convertCondition(dep.Condition)
		if err != nil {
			return domain.ServiceDescriptor{}, newParseError(field+".depends_on."+name, err.Error(), ErrUnsupportedCondition)
		}
		desc.DependsOn = append(desc.DependsOn, domain.Dependency{
			Service:   name,
			Condition: cond,
			Required:  bool(dep.Required),
		})
	}
	domain.SortDependencies(desc.DependsOn)

	// Restart policy
	restart, err := domain.ParseRestartPolicy(svc.Restart)
	if err != nil {
		return domain.ServiceDescriptor{}, domain.NewConfigError(field+".restart", err.Error(), err)
	}
	desc.Restart = restart

	// HealthCheck
	desc.HealthCheck = convertHealthCheck(svc.HealthCheck)

	// Profiles are validated by the registry against the closed set
	for _, p := range svc.Profiles {
		desc.Profiles = append(desc.Profiles, domain.Profile(p))
	}

	return desc, nil
}

func convertPort(p types.ServicePortConfig) (domain.PortMapping, error) {
	if p.Target == 0 || p.Target > 65535 {
		return domain.PortMapping{}, fmt.Errorf("target port %d out of range", p.Target)
	}

	var published int
	if p.Published != "" {
		if strings.Contains(p.Published, "-") {
			return domain.PortMapping{}, fmt.Errorf("published port ranges are not supported: %s", p.Published)
		}
		pub, err := strconv.ParseUint(p.Published, 10, 16)
		if err != nil {
			return domain.PortMapping{}, fmt.Errorf("invalid published port %q", p.Published)
		}
		published = int(pub)
	}

	protocol := p.Protocol
	if protocol == "" {
		protocol = "tcp"
	}

	return domain.PortMapping{
		HostIP:        p.HostIP,
		HostPort:      published,
		ContainerPort: int(p.Target),
		Protocol:      protocol,
	}, nil
}

func convertCondition(c string) (domain.Condition, error) {
	switch c {
	case "", types.ServiceConditionStarted:
		return domain.ConditionStarted, nil
	case types.ServiceConditionHealthy:
		return domain.ConditionHealthy, nil
	default:
		return "", fmt.Errorf("condition %q is not supported", c)
	}
}

func convertHealthCheck(hc *types.HealthCheckConfig) *domain.HealthCheck {
	if hc == nil || hc.Disable {
		return nil
	}
	if len(hc.Test) == 0 || hc.Test[0] == "NONE" {
		return nil
	}

	out := &domain.HealthCheck{Test: []string(hc.Test)}
	if hc.Interval != nil {
		out.Interval = time.Duration(*hc.Interval)
	}
	if hc.Timeout != nil {
		out.Timeout = time.Duration(*hc.Timeout)
	}
	if hc.StartPeriod != nil {
		out.StartPeriod = time.Duration(*hc.StartPeriod)
	}
	if hc.Retries != nil {
		out.Retries = int(*hc.Retries)
	}
	return out
}

// convertMigration decodes the x-migrate extension by round-tripping it
// through YAML into a MigrationSpec.
func convertMigration(svc types.ServiceConfig) (*domain.MigrationSpec, error) {
	raw, ok := svc.Extensions[MigrateExtension]
	if !ok || raw == nil {
		return nil, nil
	}

	field := "services." + svc.Name + "." + MigrateExtension
	encoded, err := yaml.Marshal(raw)
	if err != nil {
		return nil, newParseError(field, err.Error(), ErrInvalidExtension)
	}

	var spec domain.MigrationSpec
	if err := yaml.Unmarshal(encoded, &spec); err != nil {
		return nil, newParseError(field, err.Error(), ErrInvalidExtension)
	}
	if spec.Source == "" || spec.DatabaseURLEnv == "" {
		return nil, newParseError(field, "source and database_url_env are required", ErrInvalidExtension)
	}
	return &spec, nil
}

func resolvePath(base, p string) string {
	if p == "" || filepath.IsAbs(p) || base == "" || strings.Contains(p, "://") {
		return p
	}
	return filepath.Join(base, p)
}

// =============================================================================
// Variable Extraction
// =============================================================================

// variablePlaceholderRegex matches ${VAR_NAME} or ${VAR_NAME:-default}.
// Group 1 is set for the escaped form $${VAR_NAME}, group 3 for a modifier.
var variablePlaceholderRegex = regexp.MustCompile(`\$(\$?)\{([A-Za-z_][A-Za-z0-9_]*)((?::?[-?+])[^}]*)?\}`)

// ReferencedVariables extracts environment variable placeholders from raw YAML
// content, before compose-go interpolates them. Escaped placeholders are
// left to the container and skipped.
// Returns unique variable names without the ${} wrapper, in order of appearance.
func ReferencedVariables(content []byte) []string {
	seen := make(map[string]bool)
	var vars []string

	for _, match := range variablePlaceholderRegex.FindAllSubmatch(content, -1) {
		if len(match[1]) > 0 {
			continue
		}
		varName := string(match[2])
		if !seen[varName] {
			seen[varName] = true
			vars = append(vars, varName)
		}
	}

	return vars
}

// MissingVariables returns the variables referenced without a default or
// required-message that are absent from env. compose-go replaces them with
// an empty string.
func MissingVariables(content []byte, env map[string]string) []string {
	seen := make(map[string]bool)
	var missing []string

	for _, match := range variablePlaceholderRegex.FindAllSubmatch(content, -1) {
		if len(match[1]) > 0 || len(match[3]) > 0 {
			continue
		}
		varName := string(match[2])
		if _, ok := env[varName]; ok || seen[varName] {
			continue
		}
		seen[varName] = true
		missing = append(missing, varName)
	}

	return missing
}
