package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"sort"
	"strings"
	"syscall"

	"github.com/artpar/stackup/internal/core/compose"
	"github.com/artpar/stackup/internal/core/domain"
	"github.com/artpar/stackup/internal/core/profile"
	"github.com/artpar/stackup/internal/shell/api"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"
)

// =============================================================================
// Command Tree
// =============================================================================

func newRootCmd(out, errOut io.Writer) *cobra.Command {
	var opts globalOptions

	root := &cobra.Command{
		Use:           "stackup",
		Short:         "Start and stop the services of a deployment profile",
		Version:       Version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.SetOut(out)
	root.SetErr(errOut)
	root.SetVersionTemplate("stackup {{.Version}}\n")

	root.PersistentFlags().StringVar(&opts.configPath, "config", "", "Path to config file")
	root.PersistentFlags().StringVarP(&opts.file, "file", "f", "", "Compose topology file (default: embedded suite topology)")
	root.PersistentFlags().StringVar(&opts.logLevel, "log-level", "", "Log level: debug, info, warn, error")
	root.PersistentFlags().StringVar(&opts.logFormat, "log-format", "", "Log format: text, json")

	load := func(cmd *cobra.Command) (*app, error) {
		return loadApp(cmd.Context(), opts, cmd.ErrOrStderr())
	}

	root.AddCommand(
		newUpCmd(load),
		newDownCmd(load),
		newPlanCmd(load),
		newProfilesCmd(load),
		newVersionCmd(),
	)
	return root
}

type loader func(cmd *cobra.Command) (*app, error)

// =============================================================================
// up
// =============================================================================

func newUpCmd(load loader) *cobra.Command {
	var profileName string
	var detach bool

	cmd := &cobra.Command{
		Use:   "up",
		Short: "Start every service of a profile in dependency order",
		Long: `Start every service of a profile in dependency order.

Each service starts once its dependencies are started or healthy, as declared.
If any service fails to launch or become healthy, the services already started
are stopped again, newest first.

Without --detach, up stays in the foreground and stops the profile on
SIGINT or SIGTERM.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := load(cmd)
			if err != nil {
				return err
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			// Unknown profiles and bad plans fail before Docker is contacted
			if _, err := a.planner().Plan(profileName); err != nil {
				return err
			}

			r, err := a.connect(ctx)
			if err != nil {
				return fmt.Errorf("%w: %w", domain.ErrLaunchFailed, err)
			}
			defer r.Close()

			session, err := r.orch.Up(ctx, profileName)
			if err != nil {
				return err
			}
			if err := printRun(NewOutput(cmd.OutOrStdout(), false), session.Status()); err != nil {
				return err
			}

			if detach {
				return nil
			}

			if addr := a.cfg.Status.Addr; addr != "" {
				handler := api.NewHandler(r.orch, r.docker, promhttp.HandlerFor(r.metrics, promhttp.HandlerOpts{}), a.logger)
				srv := api.NewServer(addr, handler.Routes(), a.logger)
				go func() {
					if err := srv.Run(ctx); err != nil {
						a.logger.Error("status server failed", "error", err)
					}
				}()
			}

			a.logger.Info("running in the foreground, interrupt to stop", "profile", profileName)
			<-ctx.Done()
			return session.Shutdown(context.Background())
		},
	}

	cmd.Flags().StringVarP(&profileName, "profile", "p", string(domain.ProfileDefault), "Profile to start")
	cmd.Flags().BoolVarP(&detach, "detach", "d", false, "Return once the profile is up and leave it running")
	return cmd
}

// =============================================================================
// down
// =============================================================================

func newDownCmd(load loader) *cobra.Command {
	var profileName string

	cmd := &cobra.Command{
		Use:   "down",
		Short: "Stop and remove the containers of a profile, newest first",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := load(cmd)
			if err != nil {
				return err
			}
			if _, err := a.planner().Plan(profileName); err != nil {
				return err
			}

			r, err := a.connect(cmd.Context())
			if err != nil {
				return err
			}
			defer r.Close()

			return r.orch.Down(cmd.Context(), profileName)
		},
	}

	cmd.Flags().StringVarP(&profileName, "profile", "p", string(domain.ProfileDefault), "Profile to stop")
	return cmd
}

// =============================================================================
// plan
// =============================================================================

// planView is the printable form of a plan. Environment values are left out.
type planView struct {
	Profile  domain.Profile    `json:"profile"`
	Services []planServiceView `json:"services"`
	Edges    []domain.Edge     `json:"edges"`
	Ports    []domain.HostPort `json:"ports"`
	// Variables are the ${VAR} references of the topology document; Unset
	// lists those without a default that the environment does not set.
	Variables []string `json:"variables,omitempty"`
	Unset     []string `json:"unset,omitempty"`
}

type planServiceView struct {
	Name        string   `json:"name"`
	Source      string   `json:"source"`
	DependsOn   []string `json:"depends_on,omitempty"`
	Ports       []string `json:"ports,omitempty"`
	HealthCheck string   `json:"healthcheck,omitempty"`
	EnvKeys     []string `json:"env_keys,omitempty"`
}

func newPlanCmd(load loader) *cobra.Command {
	var profileName string
	var jsonOutput bool

	cmd := &cobra.Command{
		Use:   "plan",
		Short: "Print the start order of a profile without starting anything",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := load(cmd)
			if err != nil {
				return err
			}
			plan, err := a.planner().Plan(profileName)
			if err != nil {
				return err
			}

			view := toPlanView(plan)
			view.Variables = compose.ReferencedVariables(a.source.Document)
			view.Unset = compose.MissingVariables(a.source.Document, environ())

			rows := make([][]string, 0, len(view.Services))
			for i, s := range view.Services {
				rows = append(rows, []string{
					fmt.Sprint(i + 1),
					s.Name,
					s.Source,
					orDash(strings.Join(s.DependsOn, ", ")),
					orDash(strings.Join(s.Ports, ", ")),
					orDash(s.HealthCheck),
				})
			}
			if err := NewOutput(cmd.OutOrStdout(), jsonOutput).Print(
				[]string{"#", "SERVICE", "SOURCE", "WAITS FOR", "PORTS", "HEALTHCHECK"}, rows, view); err != nil {
				return err
			}
			for _, v := range view.Unset {
				fmt.Fprintf(cmd.ErrOrStderr(), "warning: ${%s} is not set, defaulting to an empty string\n", v)
			}
			return nil
		},
	}

	cmd.Flags().StringVarP(&profileName, "profile", "p", string(domain.ProfileDefault), "Profile to plan")
	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Output in JSON format")
	return cmd
}

func toPlanView(plan *domain.DeploymentPlan) planView {
	view := planView{
		Profile: plan.Profile,
		Edges:   plan.Edges,
		Ports:   plan.ActivePorts,
	}
	for _, svc := range plan.Services {
		s := planServiceView{Name: svc.Name, Source: serviceSource(svc)}
		for _, e := range plan.DependenciesOf(svc.Name) {
			s.DependsOn = append(s.DependsOn, fmt.Sprintf("%s (%s)", e.To, e.Condition))
		}
		for _, p := range svc.Ports {
			s.Ports = append(s.Ports, fmt.Sprintf("%d->%d/%s", p.HostPort, p.ContainerPort, p.Key().Protocol))
		}
		if svc.HealthCheck != nil {
			s.HealthCheck = svc.HealthCheck.Kind()
		}
		for k := range plan.Environment[svc.Name] {
			s.EnvKeys = append(s.EnvKeys, k)
		}
		sort.Strings(s.EnvKeys)
		view.Services = append(view.Services, s)
	}
	return view
}

func serviceSource(svc domain.ServiceDescriptor) string {
	switch {
	case svc.Migration != nil:
		return "migrate " + svc.Migration.Source
	case svc.Launch.IsBuild():
		src := "build " + svc.Launch.Build.Context
		if svc.Launch.Build.Target != "" {
			src += " (" + svc.Launch.Build.Target + ")"
		}
		return src
	default:
		return "image " + svc.Launch.Image
	}
}

// =============================================================================
// profiles
// =============================================================================

type profileView struct {
	Name          domain.Profile   `json:"name"`
	Bundle        bool             `json:"bundle"`
	Services      []string         `json:"services"`
	ExclusiveWith []domain.Profile `json:"exclusive_with,omitempty"`
}

func newProfilesCmd(load loader) *cobra.Command {
	var jsonOutput bool

	cmd := &cobra.Command{
		Use:   "profiles",
		Short: "List the profiles of the topology and their services",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := load(cmd)
			if err != nil {
				return err
			}

			var views []profileView
			var rows [][]string
			for _, p := range a.registry.Profiles() {
				v := profileView{
					Name:          p,
					Bundle:        p.IsBundle(),
					Services:      a.registry.Members(p),
					ExclusiveWith: profile.ExclusiveWith(a.registry, p),
				}
				views = append(views, v)

				excl := make([]string, len(v.ExclusiveWith))
				for i, e := range v.ExclusiveWith {
					excl[i] = string(e)
				}
				kind := "split"
				if v.Bundle {
					kind = "bundle"
				}
				rows = append(rows, []string{
					string(p),
					kind,
					strings.Join(v.Services, ", "),
					orDash(strings.Join(excl, ", ")),
				})
			}

			out := NewOutput(cmd.OutOrStdout(), jsonOutput)
			if err := out.Print([]string{"PROFILE", "KIND", "SERVICES", "EXCLUSIVE WITH"}, rows, views); err != nil {
				return err
			}
			if jsonOutput {
				return nil
			}

			overlaps := profile.CrossProfileOverlaps(a.registry)
			if len(overlaps) > 0 {
				fmt.Fprintln(cmd.OutOrStdout())
				for _, o := range overlaps {
					fmt.Fprintln(cmd.OutOrStdout(), "note:", o.String())
				}
			}
			return nil
		},
	}

	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Output in JSON format")
	return cmd
}

// =============================================================================
// version
// =============================================================================

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "stackup %s (built %s)\n", Version, BuildTime)
		},
	}
}

// =============================================================================
// Helpers
// =============================================================================

func printRun(out *Output, run domain.RunStatus) error {
	rows := make([][]string, 0, len(run.Services))
	for _, s := range run.Services {
		rows = append(rows, []string{s.Name, string(s.State), string(s.Health)})
	}
	return out.Print([]string{"SERVICE", "STATE", "HEALTH"}, rows, run)
}
