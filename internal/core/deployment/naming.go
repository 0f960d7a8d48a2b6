package deployment

import "fmt"

// =============================================================================
// Resource Naming Functions
// =============================================================================

// NetworkName generates the network name shared by a project's services.
// Pattern: stackup_{project}
//
// Example:
//
//	NetworkName("suite") // returns "stackup_suite"
func NetworkName(project string) string {
	return fmt.Sprintf("stackup_%s", project)
}

// ContainerName generates a container name for a service in a project.
// Pattern: stackup_{project}_{serviceName}
//
// Example:
//
//	ContainerName("suite", "backend") // returns "stackup_suite_backend"
func ContainerName(project, serviceName string) string {
	return fmt.Sprintf("stackup_%s_%s", project, serviceName)
}

// BuildImageName generates the tag for a locally built image when the
// service does not name one.
// Pattern: stackup/{project}-{serviceName}:latest
//
// Example:
//
//	BuildImageName("suite", "aio") // returns "stackup/suite-aio:latest"
func BuildImageName(project, serviceName string) string {
	return fmt.Sprintf("stackup/%s-%s:latest", project, serviceName)
}
