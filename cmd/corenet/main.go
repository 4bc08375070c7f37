// Command corenet validates an address space and provisions the network
// topology it describes.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/getsentry/sentry-go"

	"corenet/internal/config"
	"corenet/internal/domain"
	"corenet/internal/observability"
	awsprov "corenet/internal/provision/aws"
	"corenet/internal/provision/memory"
	"corenet/internal/tags"
	"corenet/internal/topology"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	code := run(ctx, os.Args[1:], os.Stdout)
	stop()
	os.Exit(code)
}

func run(ctx context.Context, args []string, stdout io.Writer) int {
	logger := observability.NewLogger(observability.ConfigFromEnv())

	fs := flag.NewFlagSet("corenet", flag.ContinueOnError)
	configPath := fs.String("config", "", "path to YAML config file (optional, can use env vars)")
	dryRun := fs.Bool("dry-run", false, "provision against the in-memory provider instead of AWS")
	planOnly := fs.Bool("plan", false, "validate and print the plan without provisioning")
	if err := fs.Parse(args); err != nil {
		return 2
	}

	sentryEnabled := initSentry(logger)
	fail := func(msg string, err error) int {
		logger.Error(msg, "error", err)
		if sentryEnabled {
			sentry.CaptureException(err)
			sentry.Flush(2 * time.Second)
		}
		return 1
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		return fail("failed to load config", err)
	}
	if *dryRun {
		cfg.Provider = config.ProviderDryRun
	}
	req := cfg.Request()

	if *planOnly {
		nodes, err := topology.PlanNetwork(cfg.NetworkName, req)
		if err != nil {
			return fail("address space rejected", err)
		}
		printPlan(stdout, nodes)
		return 0
	}

	metrics := observability.NewMetrics(observability.MetricsConfigFromEnv())
	defer func() {
		if cfg.MetricsFile == "" {
			return
		}
		if err := metrics.WriteTextfile(cfg.MetricsFile); err != nil {
			logger.Warn("failed to write metrics", "path", cfg.MetricsFile, "error", err)
		}
	}()

	provisioner, err := newProvisioner(ctx, cfg, logger)
	if err != nil {
		return fail("failed to create provisioner", err)
	}

	logger.Info("corenet starting",
		"network", cfg.NetworkName,
		"provider", cfg.Provider,
		"blocks", len(req.Blocks),
	)

	builder := topology.NewBuilder(provisioner, tags.NewMerger(cfg.GlobalTags),
		topology.WithLogger(logger),
		topology.WithMetrics(metrics),
	)
	realized, err := builder.BuildNetwork(ctx, cfg.NetworkName, req)
	if realized != nil {
		printTopology(stdout, realized)
	}
	var berr *topology.BuildError
	if errors.As(err, &berr) && berr.Created.ID != "" {
		fmt.Fprintf(stdout, "%-40s %s (incomplete)\n", berr.NodeID, berr.Created.ID)
	}
	if err != nil {
		return fail("network build failed", err)
	}

	logger.Info("corenet finished", "network", cfg.NetworkName, "nodes", len(realized.Order))
	return 0
}

func initSentry(logger observability.Logger) bool {
	dsn := os.Getenv("SENTRY_DSN")
	if dsn == "" {
		return false
	}
	err := sentry.Init(sentry.ClientOptions{
		Dsn:              dsn,
		Environment:      envOr("SENTRY_ENVIRONMENT", "production"),
		Release:          envOr("APP_VERSION", "dev"),
		AttachStacktrace: true,
	})
	if err != nil {
		logger.Warn("sentry initialization failed", "error", err)
		return false
	}
	return true
}

func newProvisioner(ctx context.Context, cfg *config.Config, logger observability.Logger) (topology.Provisioner, error) {
	switch cfg.Provider {
	case config.ProviderDryRun:
		return memory.New(), nil
	case config.ProviderAWS:
		settings := awsprov.Settings{
			Region:            cfg.AWS.Region,
			AccessKeyID:       cfg.AWS.AccessKeyID,
			SecretAccessKey:   cfg.AWS.SecretAccessKey,
			SessionToken:      cfg.AWS.SessionToken,
			RoleARN:           cfg.AWS.RoleARN,
			ExternalID:        cfg.AWS.ExternalID,
			RequestsPerSecond: cfg.AWS.RequestsPerSecond,
			Burst:             cfg.AWS.Burst,
		}
		return awsprov.NewFromSettings(ctx, settings,
			awsprov.WithLogger(logger),
			awsprov.WithNatGatewayWait(cfg.AWS.NatGatewayWait),
		)
	default:
		return nil, errors.New("unknown provider " + cfg.Provider)
	}
}

func printPlan(w io.Writer, nodes []domain.TopologyNode) {
	for _, n := range nodes {
		line := fmt.Sprintf("%-40s %s", n.ID, n.Kind)
		if len(n.DependsOn) > 0 {
			line += " <- " + strings.Join(n.DependsOn, ", ")
		}
		fmt.Fprintln(w, line)
	}
}

func printTopology(w io.Writer, t *domain.RealizedTopology) {
	for _, id := range t.Order {
		h := t.Handles[id]
		fmt.Fprintf(w, "%-40s %s\n", id, h.ID)
	}
	for _, name := range t.SubnetNames() {
		fmt.Fprintf(w, "subnet %-33s %s\n", name, t.Subnets[name].ID)
	}
}

func envOr(k, def string) string {
	if v := os.Getenv(k); v != "" {
		return v
	}
	return def
}
