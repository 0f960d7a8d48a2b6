// Package envfile resolves a service's runtime environment from its env files
// and inline overrides.
package envfile

import (
	"fmt"
	"os"

	"github.com/artpar/stackup/internal/core/deployment"
	"github.com/artpar/stackup/internal/core/domain"
	"github.com/compose-spec/compose-go/v2/dotenv"
)

// Lookup resolves ${VAR} references inside env files. os.LookupEnv fits.
type Lookup func(key string) (string, bool)

// Read parses one env file. Values may reference earlier keys of the same
// file and anything lookup knows.
func Read(path string, lookup Lookup) (map[string]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	if lookup == nil {
		lookup = noLookup
	}
	values, err := dotenv.ParseWithLookup(f, dotenv.LookupFn(lookup))
	if err != nil {
		return nil, domain.NewConfigError("env_file", fmt.Sprintf("failed to parse %s", path),
			fmt.Errorf("%w: %w", domain.ErrMalformedDescriptor, err))
	}
	return values, nil
}

// Resolve builds the environment of svc: env files in declaration order,
// then the service's inline environment. Later layers win.
//
// A missing env file is skipped unless it is required, in which case the
// result is a ConfigError wrapping domain.ErrMissingEnvFile.
func Resolve(svc domain.ServiceDescriptor, lookup Lookup) (map[string]string, error) {
	layers := make([]map[string]string, 0, len(svc.EnvFiles)+1)

	for _, ref := range svc.EnvFiles {
		values, err := Read(ref.Path, lookup)
		if err != nil {
			if os.IsNotExist(err) {
				if !ref.Required {
					continue
				}
				return nil, domain.NewConfigError(
					fmt.Sprintf("services.%s.env_file", svc.Name),
					fmt.Sprintf("required env file %s not found", ref.Path),
					fmt.Errorf("%w: %w", domain.ErrMissingEnvFile, err),
				)
			}
			return nil, err
		}
		layers = append(layers, values)
	}

	layers = append(layers, svc.Environment)
	return deployment.MergeEnvironment(layers...), nil
}

// ResolveAll resolves every service of a plan, keyed by service name.
// The first failure aborts.
func ResolveAll(services []domain.ServiceDescriptor, lookup Lookup) (map[string]map[string]string, error) {
	out := make(map[string]map[string]string, len(services))
	for _, svc := range services {
		env, err := Resolve(svc, lookup)
		if err != nil {
			return nil, err
		}
		out[svc.Name] = env
	}
	return out, nil
}

func noLookup(string) (string, bool) { return "", false }
