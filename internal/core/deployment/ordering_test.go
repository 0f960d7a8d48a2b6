package deployment

import (
	"math/rand"
	"testing"

	"github.com/artpar/stackup/internal/core/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// =============================================================================
// Order Tests
// =============================================================================

func TestOrder_Empty(t *testing.T) {
	ordered, edges, err := Order(nil)
	require.NoError(t, err)
	assert.Empty(t, ordered)
	assert.Empty(t, edges)
}

func TestOrder_SingleService(t *testing.T) {
	ordered, edges, err := Order([]domain.ServiceDescriptor{service("database", 0)})
	require.NoError(t, err)
	assert.Equal(t, []string{"database"}, names(ordered))
	assert.Empty(t, edges)
}

func TestOrder_NoDependenciesKeepsDeclarationOrder(t *testing.T) {
	services := []domain.ServiceDescriptor{
		service("web", 2),
		service("api", 0),
		service("db", 1),
	}
	ordered, _, err := Order(services)
	require.NoError(t, err)
	assert.Equal(t, []string{"api", "db", "web"}, names(ordered))
}

func TestOrder_LinearDependencies(t *testing.T) {
	// aio depends on migrate, migrate depends on database
	services := []domain.ServiceDescriptor{
		service("aio", 0, started("migrate")),
		service("migrate", 1, healthy("database")),
		service("database", 2),
	}
	ordered, edges, err := Order(services)
	require.NoError(t, err)

	assert.Equal(t, []string{"database", "migrate", "aio"}, names(ordered))
	assert.Equal(t, []domain.Edge{
		{From: "aio", To: "migrate", Condition: domain.ConditionStarted, Required: true},
		{From: "migrate", To: "database", Condition: domain.ConditionHealthy, Required: true},
	}, edges)
}

func TestOrder_DiamondDependencies(t *testing.T) {
	//       web
	//      /   \
	//    api   cache
	//      \   /
	//       db
	services := []domain.ServiceDescriptor{
		service("web", 0, started("api"), started("cache")),
		service("cache", 1, started("db")),
		service("api", 2, started("db")),
		service("db", 3),
	}
	ordered, _, err := Order(services)
	require.NoError(t, err)

	// cache is declared before api, so it is placed first
	assert.Equal(t, []string{"db", "cache", "api", "web"}, names(ordered))
}

func TestOrder_Deterministic(t *testing.T) {
	services := []domain.ServiceDescriptor{
		service("a", 0),
		service("b", 1, started("a")),
		service("c", 2),
		service("d", 3, started("c"), started("a")),
		service("e", 4),
	}
	first, _, err := Order(services)
	require.NoError(t, err)

	rng := rand.New(rand.NewSource(42))
	for i := 0; i < 50; i++ {
		shuffled := make([]domain.ServiceDescriptor, len(services))
		copy(shuffled, services)
		rng.Shuffle(len(shuffled), func(i, j int) { shuffled[i], shuffled[j] = shuffled[j], shuffled[i] })

		again, _, err := Order(shuffled)
		require.NoError(t, err)
		assert.Equal(t, names(first), names(again))
	}
	assert.Equal(t, []string{"a", "b", "c", "d", "e"}, names(first))
}

func TestOrder_EveryEdgeRespected(t *testing.T) {
	services := []domain.ServiceDescriptor{
		service("f", 0, started("e")),
		service("e", 1, started("d"), healthy("b")),
		service("d", 2, started("c")),
		service("c", 3, started("a")),
		service("b", 4, started("a")),
		service("a", 5),
	}
	ordered, edges, err := Order(services)
	require.NoError(t, err)

	pos := make(map[string]int)
	for i, s := range ordered {
		pos[s.Name] = i
	}
	for _, e := range edges {
		assert.Less(t, pos[e.To], pos[e.From], "%s must come before %s", e.To, e.From)
	}
}

func TestOrder_Cycle(t *testing.T) {
	services := []domain.ServiceDescriptor{
		service("root", 0),
		service("a", 1, started("b")),
		service("b", 2, started("c")),
		service("c", 3, started("a")),
	}
	_, _, err := Order(services)
	require.ErrorIs(t, err, domain.ErrCyclicDependency)

	var cyc *domain.CycleError
	require.ErrorAs(t, err, &cyc)
	assert.Equal(t, []string{"a", "b", "c", "a"}, cyc.Path)
	assert.Equal(t, domain.KindTopology, domain.KindOf(err))
}

func TestOrder_CycleBehindDependent(t *testing.T) {
	// x depends on the cycle but is not part of it
	services := []domain.ServiceDescriptor{
		service("x", 0, started("a")),
		service("a", 1, started("b")),
		service("b", 2, started("a")),
	}
	_, _, err := Order(services)

	var cyc *domain.CycleError
	require.ErrorAs(t, err, &cyc)
	assert.Equal(t, []string{"a", "b", "a"}, cyc.Path)
}

func TestOrder_MissingRequiredDependency(t *testing.T) {
	services := []domain.ServiceDescriptor{
		service("admin", 0, started("backend")),
	}
	_, _, err := Order(services)
	require.ErrorIs(t, err, domain.ErrMissingDependency)

	var missing *domain.MissingDependencyError
	require.ErrorAs(t, err, &missing)
	assert.Equal(t, "admin", missing.Service)
	assert.Equal(t, "backend", missing.Dependency)
}

func TestOrder_OptionalDependencyOutsideSetDropped(t *testing.T) {
	services := []domain.ServiceDescriptor{
		service("backend", 0, optional(healthy("database"))),
	}
	ordered, edges, err := Order(services)
	require.NoError(t, err)
	assert.Equal(t, []string{"backend"}, names(ordered))
	assert.Empty(t, edges)
}

func TestOrder_OptionalDependencyInsideSetKept(t *testing.T) {
	services := []domain.ServiceDescriptor{
		service("backend", 0, optional(healthy("database"))),
		service("database", 1),
	}
	ordered, edges, err := Order(services)
	require.NoError(t, err)
	assert.Equal(t, []string{"database", "backend"}, names(ordered))
	require.Len(t, edges, 1)
	assert.False(t, edges[0].Required)
}
