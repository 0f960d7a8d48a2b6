// Package deployment provides pure functions for deployment planning.
//
// This package contains the functional core logic for turning the services
// of one profile into a validated, ordered DeploymentPlan and into Docker
// container plans. All functions are pure (no I/O, no side effects).
//
// # Functions
//
//   - Ports: Reject duplicate host ports within one activation (ValidatePorts)
//   - Ordering: Deterministic dependency order (ActiveEdges, Order)
//   - Planning: Compose the checks into a plan (BuildPlan, MergeEnvironment, UnwindOrder)
//   - Naming: Generate consistent resource names (NetworkName, ContainerName, BuildImageName)
//   - Variables: Substitute environment placeholders (SubstituteVariables, ExpandProbeArgs)
//   - Container: Plan the container of one service (ContainerFor)
//
// # Usage
//
// The orchestrator (internal/shell/orchestrator) plans with these functions,
// then executes the plan through the container engine.
//
//	plan, err := deployment.BuildPlan(profile, services)
//	cp := deployment.ContainerFor(project, plan, svc)
package deployment
