package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/spf13/cobra"

	"github.com/ManuelReschke/DocPay/app/models"
	"github.com/ManuelReschke/DocPay/internal/pkg/cache"
	"github.com/ManuelReschke/DocPay/internal/pkg/jobqueue"
	"github.com/ManuelReschke/DocPay/internal/pkg/payment"
	"github.com/ManuelReschke/DocPay/internal/pkg/report"
)

var errSweepFailures = errors.New("some transactions could not be repaired")

type sweepRunner interface {
	FindOrphans(ctx context.Context, limit int) ([]models.PaymentTransaction, error)
	FindProjectionDrift(ctx context.Context, limit int) ([]payment.ProjectionDrift, error)
	Repair(ctx context.Context) (*payment.SweepResult, error)
}

type reconcileOptions struct {
	DryRun     bool
	Limit      int
	ReportPath string
}

func reconcileCmd() *cobra.Command {
	var opts reconcileOptions
	cmd := &cobra.Command{
		Use:   "reconcile",
		Short: "Issue missing receipts and repair payment status projections",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			limit := opts.Limit
			if !cmd.Flags().Changed("limit") {
				limit = cfg.Reconcile.BatchSize
			}
			svc, err := openService(cfg, limit)
			if err != nil {
				return err
			}
			opts.Limit = limit

			ctx := cmd.Context()
			if opts.DryRun {
				return runReconcile(ctx, cmd.OutOrStdout(), svc.Sweeper(), opts)
			}

			client := cache.NewClient(cfg.Cache)
			defer client.Close()
			pingCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
			pingErr := client.Ping(pingCtx).Err()
			cancel()
			if pingErr != nil {
				fmt.Fprintf(cmd.ErrOrStderr(), "Redis unreachable (%v), sweeping without lease\n", pingErr)
				return runReconcile(ctx, cmd.OutOrStdout(), svc.Sweeper(), opts)
			}

			if cfg.Archive.Enabled {
				// Workers in the server pick these up.
				queue := jobqueue.NewQueue(client, 0, cfg.JobQueue.MaxRetries)
				svc.OnReceiptIssued(jobqueue.ReceiptArchiveHook(queue))
			}

			lease, err := cache.AcquireLease(ctx, client, jobqueue.SweepLeaseKey, cfg.Reconcile.LeaseTTL)
			if errors.Is(err, cache.ErrLeaseHeld) {
				return fmt.Errorf("a sweep is already running elsewhere")
			}
			if err != nil {
				return err
			}
			defer lease.Release(context.Background())

			return runReconcile(ctx, cmd.OutOrStdout(), svc.Sweeper(), opts)
		},
	}

	cmd.Flags().BoolVar(&opts.DryRun, "dry-run", false, "Only list what would be repaired")
	cmd.Flags().IntVar(&opts.Limit, "limit", 0, "Maximum rows per pass (default RECONCILE_BATCH_SIZE)")
	cmd.Flags().StringVar(&opts.ReportPath, "report", "", "Write an xlsx report to this path")

	return cmd
}

func runReconcile(ctx context.Context, out io.Writer, s sweepRunner, opts reconcileOptions) error {
	rep := &report.SweepReport{GeneratedAt: time.Now(), DryRun: opts.DryRun}

	orphans, err := s.FindOrphans(ctx, opts.Limit)
	if err != nil {
		return err
	}
	drift, err := s.FindProjectionDrift(ctx, opts.Limit)
	if err != nil {
		return err
	}
	rep.Orphans = orphans
	rep.Drift = drift

	fmt.Fprintf(out, "Orphan transactions: %d\n", len(orphans))
	for _, t := range orphans {
		fmt.Fprintf(out, "  #%d %s %s %s\n", t.ID, t.ExternalTransactionID, t.Amount.StringFixed(2), t.Currency)
	}
	fmt.Fprintf(out, "Projection drift: %d\n", len(drift))
	for _, d := range drift {
		fmt.Fprintf(out, "  %s %s -> %s\n", d.RequestNumber, d.Stored, d.Derived)
	}

	if !opts.DryRun {
		res, err := s.Repair(ctx)
		if err != nil {
			return err
		}
		rep.Result = res
		fmt.Fprintf(out, "Receipts created: %d, already issued: %d, failed: %d, projections fixed: %d\n",
			res.Created, res.AlreadyIssued, res.Failed, res.ProjectionsFixed)
		for _, f := range res.Failures {
			fmt.Fprintf(out, "  failed #%d: %s\n", f.TransactionID, f.Error)
		}
	}

	if opts.ReportPath != "" {
		if err := rep.SaveAs(opts.ReportPath); err != nil {
			return fmt.Errorf("write report: %w", err)
		}
		fmt.Fprintf(out, "Report written to %s\n", opts.ReportPath)
	}
	if rep.Result != nil && rep.Result.Failed > 0 {
		return fmt.Errorf("%w: %d failed", errSweepFailures, rep.Result.Failed)
	}
	return nil
}
