package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/stackpilot/stackpilot/internal/config"
	"github.com/stackpilot/stackpilot/internal/database"
	"github.com/stackpilot/stackpilot/internal/deploy"
	"github.com/stackpilot/stackpilot/internal/history"
	"github.com/stackpilot/stackpilot/internal/models"
	"github.com/stackpilot/stackpilot/internal/server"
	"github.com/stackpilot/stackpilot/internal/validate"
)

const appVersion = "1.0.0"

const usageText = `stackpilot - compose stack deployment orchestrator

Usage:
  stackpilot <command> [flags]

Deploy commands:
  all                  Deploy the full stack (backend + frontend)
  backend              Deploy the backend stack
  frontend             Deploy the frontend (reported no-op)
  service <name>       Deploy a single service

Operations:
  status               Show containers, latest deployment and stats
  health-check         Verify container and endpoint health
  migrations           Run database migrations inside the API container
  rollback             Mark a deployment rolled back and restart the stack
  history              List recent deployment records
  stats                Show deployment success statistics
  services             List declared services
  version              Show version (--remote reads the deployed marker)
  dashboard            Interactive menu
  server               Run the control-plane HTTP server

Run without a command for the interactive menu.

Deploy flags:
  --env <name>             development|stage|production (default development)
  --config <path>          Explicit configuration file
  --yes                    Approve all confirmation prompts
  --skip-validations       Skip pre-deploy validations
  --skip-health-check      Skip post-deploy health verification
`

func main() {
	args := os.Args[1:]
	if len(args) == 0 {
		runMenu()
		return
	}

	switch args[0] {
	case "all":
		exitOn(runDeploy(models.DeploymentKindFull, "", args[1:]))
	case "backend":
		exitOn(runDeploy(models.DeploymentKindBackend, "", args[1:]))
	case "frontend":
		exitOn(runDeploy(models.DeploymentKindFrontend, "", args[1:]))
	case "service":
		if len(args) < 2 || strings.HasPrefix(args[1], "-") {
			log.Fatalf("Usage: stackpilot service <name> [flags]")
		}
		exitOn(runDeploy(models.DeploymentKindService, args[1], args[2:]))
	case "status":
		exitOn(runStatus(args[1:]))
	case "health-check":
		exitOn(runHealthCheck(args[1:]))
	case "migrations":
		exitOn(runMigrations(args[1:]))
	case "rollback":
		exitOn(runRollback(args[1:]))
	case "history":
		exitOn(runHistory(args[1:]))
	case "stats":
		exitOn(runStats(args[1:]))
	case "services":
		exitOn(runServices(args[1:]))
	case "version":
		exitOn(runVersion(args[1:]))
	case "server":
		exitOn(runServer(args[1:]))
	case "dashboard":
		runMenu()
	case "help", "-h", "--help":
		fmt.Print(usageText)
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n\n%s", args[0], usageText)
		os.Exit(2)
	}
}

func exitOn(err error) {
	if err != nil {
		log.Fatalf("%v", err)
	}
}

// appContext bundles the pieces every command needs.
type appContext struct {
	cfg      *config.ProjectConfig
	settings *config.Settings
	store    *history.Store
	root     string
}

func setup(configPath string) (*appContext, error) {
	settings := config.LoadSettings()

	var cfg *config.ProjectConfig
	var err error
	if configPath != "" {
		cfg, err = config.LoadFrom(configPath)
	} else {
		cfg, err = config.Load()
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}

	if err := database.Connect(settings.DatabasePath); err != nil {
		return nil, fmt.Errorf("failed to open history database: %w", err)
	}

	root, err := os.Getwd()
	if err != nil {
		return nil, fmt.Errorf("failed to resolve working directory: %w", err)
	}

	return &appContext{
		cfg:      cfg,
		settings: settings,
		store:    history.New(database.GetDatabase()),
		root:     root,
	}, nil
}

func (a *appContext) orchestrator(env models.Environment, prompter validate.Prompter, opts deploy.Options) *deploy.Orchestrator {
	return deploy.New(a.cfg, a.settings, env, a.root, a.store, prompter, nil, opts)
}

func pickPrompter(yes bool, settings *config.Settings) validate.Prompter {
	if yes {
		return validate.AcceptAll{}
	}
	if settings.NonInteractive {
		return validate.DeclineAll{}
	}
	return validate.StdinPrompter{}
}

func signalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
}

func parseEnv(raw string) (models.Environment, error) {
	env, ok := models.ParseEnvironment(raw)
	if !ok {
		return "", fmt.Errorf("unknown environment %q (expected development, stage or production)", raw)
	}
	return env, nil
}

func runDeploy(kind models.DeploymentKind, service string, args []string) error {
	fs := flag.NewFlagSet(string(kind), flag.ExitOnError)
	configPath := fs.String("config", "", "Path to configuration file")
	envFlag := fs.String("env", string(models.EnvironmentDevelopment), "Target environment")
	yes := fs.Bool("yes", false, "Approve all confirmation prompts")
	skipValidations := fs.Bool("skip-validations", false, "Skip pre-deploy validations")
	skipHealthCheck := fs.Bool("skip-health-check", false, "Skip post-deploy health verification")
	fs.Parse(args)

	app, err := setup(*configPath)
	if err != nil {
		return err
	}
	env, err := parseEnv(*envFlag)
	if err != nil {
		return err
	}
	orch := app.orchestrator(env, pickPrompter(*yes, app.settings), deploy.Options{
		SkipValidations: *skipValidations,
		SkipHealthCheck: *skipHealthCheck,
	})

	ctx, cancel := signalContext()
	defer cancel()

	switch kind {
	case models.DeploymentKindFull:
		err = orch.DeployAll(ctx)
	case models.DeploymentKindBackend:
		err = orch.DeployBackend(ctx)
	case models.DeploymentKindFrontend:
		err = orch.DeployFrontend(ctx)
	case models.DeploymentKindService:
		err = orch.DeployService(ctx, service)
	}
	if err != nil {
		return fmt.Errorf("deployment failed: %w", err)
	}
	fmt.Println("Deployment completed successfully")
	return nil
}

func runStatus(args []string) error {
	fs := flag.NewFlagSet("status", flag.ExitOnError)
	configPath := fs.String("config", "", "Path to configuration file")
	fs.Parse(args)

	app, err := setup(*configPath)
	if err != nil {
		return err
	}
	orch := app.orchestrator(models.EnvironmentDevelopment, validate.DeclineAll{}, deploy.Options{})

	ctx, cancel := signalContext()
	defer cancel()

	snapshot, err := orch.Status(ctx)
	if err != nil {
		return fmt.Errorf("failed to derive status: %w", err)
	}

	fmt.Printf("Project: %s (%s)\n", snapshot.Project, snapshot.Target)
	if len(snapshot.Containers) == 0 {
		fmt.Println("No containers running for this project")
	}
	for _, c := range snapshot.Containers {
		fmt.Printf("  %-40s %-10s %s\n", c.Name, c.RuntimeState, c.StatusText)
	}
	if snapshot.Latest != nil {
		fmt.Printf("Latest deployment: #%d %s %s (%s)\n",
			snapshot.Latest.ID, snapshot.Latest.Kind, snapshot.Latest.Status, snapshot.Latest.Environment)
	}
	fmt.Printf("Deployments: %d total, %d succeeded, %d failed (%.2f%% success)\n",
		snapshot.Stats.Total, snapshot.Stats.Success, snapshot.Stats.Failed, snapshot.Stats.SuccessRate)
	return nil
}

func runHealthCheck(args []string) error {
	fs := flag.NewFlagSet("health-check", flag.ExitOnError)
	configPath := fs.String("config", "", "Path to configuration file")
	fs.Parse(args)

	app, err := setup(*configPath)
	if err != nil {
		return err
	}
	orch := app.orchestrator(models.EnvironmentDevelopment, validate.DeclineAll{}, deploy.Options{})

	ctx, cancel := signalContext()
	defer cancel()

	summary, err := orch.RunHealthCheck(ctx)
	if err != nil {
		return fmt.Errorf("health check failed to run: %w", err)
	}

	for _, v := range summary.Containers {
		fmt.Printf("  [container] %-25s %s  %s\n", v.Service, healthMark(v.Healthy), v.Message)
	}
	for _, v := range summary.Endpoints {
		fmt.Printf("  [endpoint]  %-25s %s  %s\n", v.Service, healthMark(v.Healthy), v.Message)
	}
	if !summary.Healthy {
		return errors.New("stack is unhealthy")
	}
	fmt.Println("Stack is healthy")
	return nil
}

func healthMark(healthy bool) string {
	if healthy {
		return "ok"
	}
	return "FAIL"
}

func runMigrations(args []string) error {
	fs := flag.NewFlagSet("migrations", flag.ExitOnError)
	configPath := fs.String("config", "", "Path to configuration file")
	fs.Parse(args)

	app, err := setup(*configPath)
	if err != nil {
		return err
	}
	orch := app.orchestrator(models.EnvironmentDevelopment, validate.DeclineAll{}, deploy.Options{})

	ctx, cancel := signalContext()
	defer cancel()

	if err := orch.RunMigrations(ctx); err != nil {
		return fmt.Errorf("migrations failed: %w", err)
	}
	fmt.Println("Migrations completed")
	return nil
}

func runRollback(args []string) error {
	fs := flag.NewFlagSet("rollback", flag.ExitOnError)
	configPath := fs.String("config", "", "Path to configuration file")
	id := fs.Uint("id", 0, "Deployment record to roll back (default: latest)")
	fs.Parse(args)

	app, err := setup(*configPath)
	if err != nil {
		return err
	}
	orch := app.orchestrator(models.EnvironmentDevelopment, validate.DeclineAll{}, deploy.Options{})

	ctx, cancel := signalContext()
	defer cancel()

	if err := orch.Rollback(ctx, uint(*id)); err != nil {
		return fmt.Errorf("rollback failed: %w", err)
	}
	fmt.Println("Rollback completed")
	return nil
}

func runHistory(args []string) error {
	fs := flag.NewFlagSet("history", flag.ExitOnError)
	configPath := fs.String("config", "", "Path to configuration file")
	limit := fs.Int("limit", 20, "Maximum number of records")
	envFlag := fs.String("env", "", "Filter by environment")
	retain := fs.Int("retain", 0, "Prune history, keeping only the N most recent records")
	fs.Parse(args)

	app, err := setup(*configPath)
	if err != nil {
		return err
	}

	if *retain > 0 {
		if err := app.store.Retain(*retain); err != nil {
			return fmt.Errorf("failed to prune history: %w", err)
		}
		fmt.Printf("History pruned to the %d most recent records\n", *retain)
		return nil
	}

	var env *models.Environment
	if *envFlag != "" {
		parsed, err := parseEnv(*envFlag)
		if err != nil {
			return err
		}
		env = &parsed
	}

	records, err := app.store.Query(*limit, env)
	if err != nil {
		return fmt.Errorf("failed to query history: %w", err)
	}
	if len(records) == 0 {
		fmt.Println("No deployments recorded")
		return nil
	}
	for _, r := range records {
		service := "-"
		if r.Service != nil {
			service = *r.Service
		}
		duration := "-"
		if r.DurationSeconds != nil {
			duration = fmt.Sprintf("%.1fs", *r.DurationSeconds)
		}
		fmt.Printf("#%-5d %s  %-11s %-8s %-15s %-12s %s  %s\n",
			r.ID, r.Timestamp.Format("2006-01-02 15:04"), r.Environment, r.Kind,
			service, r.Status, duration, r.User)
	}
	return nil
}

func runStats(args []string) error {
	fs := flag.NewFlagSet("stats", flag.ExitOnError)
	configPath := fs.String("config", "", "Path to configuration file")
	envFlag := fs.String("env", "", "Filter by environment")
	fs.Parse(args)

	app, err := setup(*configPath)
	if err != nil {
		return err
	}

	var env *models.Environment
	if *envFlag != "" {
		parsed, err := parseEnv(*envFlag)
		if err != nil {
			return err
		}
		env = &parsed
	}

	stats, err := app.store.Stats(env)
	if err != nil {
		return fmt.Errorf("failed to compute stats: %w", err)
	}
	fmt.Printf("Total:        %d\n", stats.Total)
	fmt.Printf("Succeeded:    %d\n", stats.Success)
	fmt.Printf("Failed:       %d\n", stats.Failed)
	fmt.Printf("Success rate: %.2f%%\n", stats.SuccessRate)
	return nil
}

func runServices(args []string) error {
	fs := flag.NewFlagSet("services", flag.ExitOnError)
	configPath := fs.String("config", "", "Path to configuration file")
	fs.Parse(args)

	app, err := setup(*configPath)
	if err != nil {
		return err
	}
	for _, name := range app.cfg.Services.Names() {
		desc := app.cfg.Services.Descriptor(name)
		state := "enabled"
		if !desc.Enabled {
			state = "disabled"
		}
		endpoint := ""
		if desc.HealthEndpoint != nil && desc.Port != nil {
			endpoint = fmt.Sprintf("  health=:%d%s", *desc.Port, *desc.HealthEndpoint)
		}
		fmt.Printf("  %-20s %-9s container=%s%s\n", desc.Name, state, app.cfg.DockerIdentity(desc.Name), endpoint)
	}
	return nil
}

func runVersion(args []string) error {
	fs := flag.NewFlagSet("version", flag.ExitOnError)
	configPath := fs.String("config", "", "Path to configuration file")
	remote := fs.Bool("remote", false, "Read the version marker from the deploy root")
	fs.Parse(args)

	if !*remote {
		fmt.Printf("stackpilot %s\n", appVersion)
		return nil
	}

	app, err := setup(*configPath)
	if err != nil {
		return err
	}
	orch := app.orchestrator(models.EnvironmentDevelopment, validate.DeclineAll{}, deploy.Options{})

	ctx, cancel := signalContext()
	defer cancel()

	marker, err := orch.ReadVersionMarker(ctx)
	if err != nil {
		return fmt.Errorf("failed to read version marker: %w", err)
	}
	fmt.Printf("Deployed commit:  %s\n", marker.CommitHash)
	if marker.CommitMessage != "" {
		fmt.Printf("Commit message:   %s\n", marker.CommitMessage)
	}
	fmt.Printf("Deployed at:      %s\n", marker.Timestamp)
	fmt.Printf("Environment:      %s\n", marker.Environment)
	fmt.Printf("Deployment type:  %s\n", marker.DeploymentType)
	fmt.Printf("Services:         %s\n", strings.Join(marker.Services, ", "))
	fmt.Printf("Deployed by:      %s\n", marker.User)
	return nil
}

func runServer(args []string) error {
	fs := flag.NewFlagSet("server", flag.ExitOnError)
	configPath := fs.String("config", "", "Path to configuration file")
	fs.Parse(args)

	app, err := setup(*configPath)
	if err != nil {
		return err
	}
	srv := server.New(app.cfg, app.settings, app.store, app.root)

	ctx, cancel := signalContext()
	defer cancel()
	go func() {
		<-ctx.Done()
		log.Println("Received termination signal, shutting down gracefully...")
		if err := srv.Shutdown(); err != nil {
			log.Printf("Shutdown error: %v", err)
		}
	}()

	if err := srv.Listen(); err != nil {
		return fmt.Errorf("server stopped: %w", err)
	}
	return nil
}
