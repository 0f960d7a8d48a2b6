package domain

import (
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// =============================================================================
// Profile Tests
// =============================================================================

func TestParseProfile_Known(t *testing.T) {
	for _, p := range KnownProfiles {
		got, err := ParseProfile(string(p))
		require.NoError(t, err)
		assert.Equal(t, p, got)
	}
}

func TestParseProfile_Unknown(t *testing.T) {
	tests := []string{"", "Default", "prod", "backend ", "DATABASE"}
	for _, name := range tests {
		t.Run(name, func(t *testing.T) {
			_, err := ParseProfile(name)
			assert.ErrorIs(t, err, ErrUnknownProfile)
		})
	}
}

func TestProfile_IsBundle(t *testing.T) {
	assert.True(t, ProfileDefault.IsBundle())
	assert.True(t, ProfileDefaultNoDB.IsBundle())
	assert.False(t, ProfileBackend.IsBundle())
	assert.False(t, ProfileDeprecated.IsBundle())
}

// =============================================================================
// Service Descriptor Tests
// =============================================================================

func TestParseRestartPolicy(t *testing.T) {
	tests := []struct {
		in      string
		want    RestartPolicy
		wantErr bool
	}{
		{"", RestartNever, false},
		{"no", RestartNever, false},
		{"always", RestartAlways, false},
		{"unless-stopped", RestartUnlessStopped, false},
		{"on-failure", "", true},
		{"sometimes", "", true},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseRestartPolicy(tt.in)
			if tt.wantErr {
				assert.ErrorIs(t, err, ErrMalformedDescriptor)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestHealthCheck_WithDefaults(t *testing.T) {
	hc := HealthCheck{Test: []string{"CMD", "true"}}.WithDefaults()
	assert.Equal(t, DefaultHealthInterval, hc.Interval)
	assert.Equal(t, DefaultHealthTimeout, hc.Timeout)
	assert.Equal(t, DefaultHealthRetries, hc.Retries)
	assert.Zero(t, hc.StartPeriod)

	custom := HealthCheck{Interval: time.Second, Timeout: 2 * time.Second, Retries: 7, StartPeriod: 5 * time.Second}.WithDefaults()
	assert.Equal(t, time.Second, custom.Interval)
	assert.Equal(t, 2*time.Second, custom.Timeout)
	assert.Equal(t, 7, custom.Retries)
	assert.Equal(t, 5*time.Second, custom.StartPeriod)
}

func TestHealthCheck_Kind(t *testing.T) {
	assert.Equal(t, ProbeCmdShell, HealthCheck{Test: []string{"CMD-SHELL", "pg_isready"}}.Kind())
	assert.Empty(t, HealthCheck{}.Kind())

	assert.False(t, HealthCheck{Test: []string{"CMD", "true"}}.HostSide())
	assert.True(t, HealthCheck{Test: []string{"HTTP", "http://localhost:8080"}}.HostSide())
	assert.True(t, HealthCheck{Test: []string{"POSTGRES", "postgres://localhost"}}.HostSide())
}

func TestPortMapping_KeyDefaultsToTCP(t *testing.T) {
	assert.Equal(t, HostPort{Port: 8080, Protocol: "tcp"}, PortMapping{HostPort: 8080, ContainerPort: 80}.Key())
	assert.Equal(t, HostPort{Port: 53, Protocol: "udp"}, PortMapping{HostPort: 53, Protocol: "udp"}.Key())
	assert.Equal(t, "8080/tcp", HostPort{Port: 8080, Protocol: "tcp"}.String())
}

func TestLaunchSpec(t *testing.T) {
	assert.True(t, LaunchSpec{}.IsZero())
	assert.False(t, LaunchSpec{Image: "postgres:16"}.IsZero())
	assert.True(t, LaunchSpec{Build: &BuildSpec{Context: "."}}.IsBuild())
}

// =============================================================================
// State Machine Tests
// =============================================================================

func TestValidateTransition(t *testing.T) {
	tests := []struct {
		from, to ServiceState
		valid    bool
	}{
		{StatePending, StateStarting, true},
		{StateStarting, StateStarted, true},
		{StateStarted, StateHealthy, true},
		{StateStarted, StateFailed, true},
		{StateHealthy, StateStopping, true},
		{StateStopping, StateStopped, true},
		{StatePending, StateHealthy, false},
		{StateHealthy, StateStarted, false},
		{StateStopped, StateStarting, false},
	}

	for _, tt := range tests {
		t.Run(fmt.Sprintf("%s->%s", tt.from, tt.to), func(t *testing.T) {
			err := ValidateTransition(tt.from, tt.to)
			if tt.valid {
				assert.NoError(t, err)
			} else {
				assert.ErrorIs(t, err, ErrInvalidTransition)
			}
		})
	}
}

func TestServiceState_Satisfies(t *testing.T) {
	assert.True(t, StateStarted.Satisfies(ConditionStarted))
	assert.True(t, StateHealthy.Satisfies(ConditionStarted))
	assert.False(t, StateStarted.Satisfies(ConditionHealthy))
	assert.True(t, StateHealthy.Satisfies(ConditionHealthy))
	assert.False(t, StateStarting.Satisfies(ConditionStarted))
	assert.False(t, StateFailed.Satisfies(ConditionStarted))
}

// =============================================================================
// Plan Tests
// =============================================================================

func TestDeploymentPlan_Accessors(t *testing.T) {
	plan := NewDeploymentPlan(ProfileBackend)
	plan.Services = []ServiceDescriptor{{Name: "database"}, {Name: "backend"}}
	plan.Edges = []Edge{{From: "backend", To: "database", Condition: ConditionHealthy}}

	assert.NotEmpty(t, plan.RunID)
	assert.Equal(t, []string{"database", "backend"}, plan.Names())
	assert.Equal(t, []string{"backend", "database"}, plan.ReverseNames())
	assert.Len(t, plan.DependenciesOf("backend"), 1)
	assert.Empty(t, plan.DependenciesOf("database"))

	_, ok := plan.Service("backend")
	assert.True(t, ok)
}

// =============================================================================
// Error Tests
// =============================================================================

func TestKindOf(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want ErrorKind
	}{
		{"nil", nil, KindUnknown},
		{"unknown profile", fmt.Errorf("resolve: %w", ErrUnknownProfile), KindConfig},
		{"config error", NewConfigError("services.x", "bad", nil), KindConfig},
		{"port conflict", &PortConflictError{Port: 3000, Protocol: "tcp", ServiceA: "a", ServiceB: "b"}, KindResource},
		{"cycle", &CycleError{Path: []string{"a", "b", "a"}}, KindTopology},
		{"missing", &MissingDependencyError{Service: "a", Dependency: "b"}, KindTopology},
		{"startup", NewStartupError("db", ErrHealthCheckExhausted, nil), KindRuntime},
		{"launch wrapping config", NewStartupError("db", ErrLaunchFailed, ErrMissingEnvFile), KindRuntime},
		{"other", errors.New("boom"), KindUnknown},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, KindOf(tt.err))
		})
	}
}

func TestTypedErrorMessages(t *testing.T) {
	pc := &PortConflictError{Port: 3000, Protocol: "tcp", ServiceA: "app", ServiceB: "aio"}
	assert.Contains(t, pc.Error(), "3000")
	assert.Contains(t, pc.Error(), `"app"`)

	cyc := &CycleError{Path: []string{"a", "b", "a"}}
	assert.Equal(t, "cyclic dependency: a -> b -> a", cyc.Error())

	se := NewStartupError("db", ErrHealthCheckExhausted, errors.New("exit 1"))
	assert.ErrorIs(t, se, ErrHealthCheckExhausted)
	assert.Contains(t, se.Error(), "exit 1")
}

// =============================================================================
// Project Name Tests
// =============================================================================

func TestNormalizeProjectName(t *testing.T) {
	tests := map[string]string{
		"stackup":     "stackup",
		"My Suite":    "my-suite",
		"suite.v2!":   "suite-v2",
		"__":          DefaultProjectName,
		"":            DefaultProjectName,
		"-lead":       "lead",
		"a_b-c":       "a_b-c",
		"UPPER CASE1": "upper-case1",
	}
	for in, want := range tests {
		assert.Equal(t, want, NormalizeProjectName(in), in)
	}
}
