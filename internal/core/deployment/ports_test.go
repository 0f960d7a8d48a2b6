package deployment

import (
	"errors"
	"testing"

	"github.com/artpar/stackup/internal/core/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// =============================================================================
// ValidatePorts Tests
// =============================================================================

func TestValidatePorts_NoConflict(t *testing.T) {
	services := []domain.ServiceDescriptor{
		withPorts(service("database", 0), 5432),
		withPorts(service("aio", 1), 3000, 3001, 8080),
	}
	active, err := ValidatePorts(services)
	require.NoError(t, err)
	assert.Equal(t, []domain.HostPort{
		{Port: 3000, Protocol: "tcp"},
		{Port: 3001, Protocol: "tcp"},
		{Port: 5432, Protocol: "tcp"},
		{Port: 8080, Protocol: "tcp"},
	}, active)
}

func TestValidatePorts_Conflict(t *testing.T) {
	services := []domain.ServiceDescriptor{
		withPorts(service("aio", 1), 3000),
		withPorts(service("app", 0), 3000),
	}
	_, err := ValidatePorts(services)
	require.ErrorIs(t, err, domain.ErrPortConflict)

	var pc *domain.PortConflictError
	require.ErrorAs(t, err, &pc)
	assert.Equal(t, 3000, pc.Port)
	// app is declared first
	assert.Equal(t, "app", pc.ServiceA)
	assert.Equal(t, "aio", pc.ServiceB)
	assert.Equal(t, domain.KindResource, domain.KindOf(err))
}

func TestValidatePorts_SameServiceTwice(t *testing.T) {
	services := []domain.ServiceDescriptor{withPorts(service("web", 0), 80, 80)}
	_, err := ValidatePorts(services)

	var pc *domain.PortConflictError
	assert.False(t, errors.As(err, &pc))
	assert.ErrorIs(t, err, domain.ErrMalformedDescriptor)
	assert.Equal(t, domain.KindConfig, domain.KindOf(err))
	assert.Contains(t, err.Error(), "services.web.ports")
}

func TestValidatePorts_EphemeralIgnored(t *testing.T) {
	services := []domain.ServiceDescriptor{
		withPorts(service("a", 0), 0),
		withPorts(service("b", 1), 0),
	}
	active, err := ValidatePorts(services)
	require.NoError(t, err)
	assert.Empty(t, active)
}

func TestValidatePorts_DifferentProtocols(t *testing.T) {
	dns := service("dns", 0)
	dns.Ports = []domain.PortMapping{{HostPort: 53, ContainerPort: 53, Protocol: "udp"}}
	web := withPorts(service("web", 1), 53)

	active, err := ValidatePorts([]domain.ServiceDescriptor{dns, web})
	require.NoError(t, err)
	assert.Len(t, active, 2)
}

func TestValidatePorts_Empty(t *testing.T) {
	active, err := ValidatePorts(nil)
	require.NoError(t, err)
	assert.Empty(t, active)
}
