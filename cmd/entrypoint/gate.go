package main

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/psihotips/psihotips-ops/internal/bootstrap"
	"github.com/psihotips/psihotips-ops/internal/probe"
	"github.com/psihotips/psihotips-ops/internal/reconcile"
	"github.com/psihotips/psihotips-ops/pkg/config"
	"github.com/psihotips/psihotips-ops/pkg/database"
	"github.com/psihotips/psihotips-ops/pkg/logger"
)

// gate sequences the startup phases: Probing, then Reconciling (or the
// empty-database bootstrap), then hand-off. Any fatal error short-circuits
// the chain and the process exits non-zero.
type gate struct {
	cfg *config.Config
	log logger.Logger
}

// waitForReady runs the readiness prober against the configured database.
func (g *gate) waitForReady(ctx context.Context) error {
	prober := probe.New(g.cfg.Probe, g.log)
	if err := prober.WaitForReady(ctx, g.cfg.Postgres); err != nil {
		g.log.Errorf("Readiness gate failed: %v", err)
		return err
	}
	return nil
}

// openSession opens the single serial session used by reconciliation and
// bootstrap. Only called after the prober reported ready.
func (g *gate) openSession(ctx context.Context) (*database.Postgres, error) {
	db, err := database.Connect(ctx, g.cfg.Postgres)
	if err != nil {
		g.log.Errorf("Failed to open database session: %v", err)
		return nil, err
	}
	return db, nil
}

// declaredSchema resolves the schema artifact for the bootstrap path.
func (g *gate) declaredSchema() (string, error) {
	if g.cfg.Bootstrap.SchemaFile == "" {
		return bootstrap.DeclaredSchema(), nil
	}
	return bootstrap.SchemaFromFile(g.cfg.Bootstrap.SchemaFile)
}

// reconcileOrBootstrap inspects the schema and either repairs flagged
// columns or, on an entirely empty database, loads the declared schema.
func (g *gate) reconcileOrBootstrap(ctx context.Context, db database.Session) (*reconcile.Report, error) {
	rec := reconcile.New(db, g.log)

	count, err := rec.TableCount(ctx)
	if err != nil {
		g.log.Errorf("Schema introspection failed: %v", err)
		return nil, err
	}

	if count == 0 {
		schema, err := g.declaredSchema()
		if err != nil {
			g.log.Errorf("Schema artifact unavailable: %v", err)
			return nil, err
		}
		if err := bootstrap.Load(ctx, db, schema, g.log); err != nil {
			g.log.Errorf("Bootstrap failed: %v", err)
			return nil, err
		}
		return reconcile.NewReport(), nil
	}

	g.log.Infof("Found %d tables, reconciling auto-increment defaults", count)
	report, err := rec.Reconcile(ctx)
	if err != nil {
		g.log.Errorf("Reconciliation failed: %v", err)
		return nil, err
	}
	return report, nil
}

// runGate performs the full startup sequence and execs the application
// argv, if one was given.
func runGate(ctx context.Context, argv []string) error {
	g, err := newGate()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		return err
	}

	if err := g.waitForReady(ctx); err != nil {
		return err
	}

	db, err := g.openSession(ctx)
	if err != nil {
		return err
	}

	report, err := g.reconcileOrBootstrap(ctx, db)
	if err != nil {
		db.Close(ctx)
		return err
	}
	g.log.Info(report.Summary())

	// The session must not leak into the application process.
	if err := db.Close(ctx); err != nil {
		g.log.Warnf("Failed to close database session: %v", err)
	}

	if len(argv) == 0 {
		g.log.Info("Startup gate complete, no application command given")
		return nil
	}

	g.log.Infof("Handing off to application: %v", argv)
	return execApplication(argv)
}

// execApplication replaces this process with the application. On success it
// never returns; the application's exit code becomes the container's.
func execApplication(argv []string) error {
	path, err := exec.LookPath(argv[0])
	if err != nil {
		return fmt.Errorf("application binary not found: %w", err)
	}
	return syscall.Exec(path, argv, os.Environ())
}

var runCmd = &cobra.Command{
	Use:   "run [-- application args...]",
	Short: "Gate startup on database readiness, reconcile the schema, then exec the application",
	RunE: func(cmd *cobra.Command, args []string) error {
		return runGate(cmd.Context(), args)
	},
}

var probeCmd = &cobra.Command{
	Use:   "probe",
	Short: "Wait for the database to become reachable, then exit",
	RunE: func(cmd *cobra.Command, args []string) error {
		g, err := newGate()
		if err != nil {
			return err
		}
		return g.waitForReady(cmd.Context())
	},
}

var reconcileCmd = &cobra.Command{
	Use:   "reconcile",
	Short: "Probe, then repair auto-increment defaults without starting the application",
	RunE: func(cmd *cobra.Command, args []string) error {
		g, err := newGate()
		if err != nil {
			return err
		}
		ctx := cmd.Context()
		if err := g.waitForReady(ctx); err != nil {
			return err
		}
		db, err := g.openSession(ctx)
		if err != nil {
			return err
		}
		defer db.Close(ctx)
		report, err := g.reconcileOrBootstrap(ctx, db)
		if err != nil {
			return err
		}
		g.log.Info(report.Summary())
		return nil
	},
}

var bootstrapCmd = &cobra.Command{
	Use:   "bootstrap",
	Short: "Probe, then load the declared schema unconditionally",
	RunE: func(cmd *cobra.Command, args []string) error {
		g, err := newGate()
		if err != nil {
			return err
		}
		ctx := cmd.Context()
		if err := g.waitForReady(ctx); err != nil {
			return err
		}
		schema, err := g.declaredSchema()
		if err != nil {
			g.log.Errorf("Schema artifact unavailable: %v", err)
			return err
		}
		db, err := g.openSession(ctx)
		if err != nil {
			return err
		}
		defer db.Close(ctx)
		if err := bootstrap.Load(ctx, db, schema, g.log); err != nil {
			g.log.Errorf("Bootstrap failed: %v", err)
			return err
		}
		return nil
	},
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Show version information",
	Run: func(cmd *cobra.Command, args []string) {
		printVersionInfo()
	},
}
