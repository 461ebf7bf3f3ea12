package main

import (
	"context"
	"fmt"
	"io"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/ManuelReschke/DocPay/internal/pkg/paymongo"
)

var defaultWebhookEvents = []string{
	paymongo.EventPaymentPaid,
	paymongo.EventPaymentFailed,
	paymongo.EventPaymentRefunded,
	paymongo.EventLinkPaymentPaid,
}

// newGatewayClient is replaced in tests.
var newGatewayClient = func() (*paymongo.Client, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, err
	}
	return paymongo.NewClient(cfg.PayMongo.SecretKey, cfg.PayMongo.APIBaseURL), nil
}

func webhooksCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "webhooks",
		Short: "Manage PayMongo webhook subscriptions",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "list",
		Short: "List webhook subscriptions",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			client, err := newGatewayClient()
			if err != nil {
				return err
			}
			hooks, err := client.ListWebhooks(cmd.Context())
			if err != nil {
				return err
			}
			printWebhooks(cmd.OutOrStdout(), hooks)
			return nil
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "get [id]",
		Short: "Show one webhook subscription",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client, err := newGatewayClient()
			if err != nil {
				return err
			}
			w, err := client.RetrieveWebhook(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			printWebhooks(cmd.OutOrStdout(), []paymongo.Webhook{*w})
			return nil
		},
	})

	create := &cobra.Command{
		Use:   "create",
		Short: "Register a webhook subscription",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			url, _ := cmd.Flags().GetString("url")
			events, _ := cmd.Flags().GetStringSlice("events")
			if url == "" {
				cfg, err := loadConfig()
				if err != nil {
					return err
				}
				url = cfg.PayMongo.WebhookURL
			}
			if url == "" {
				return fmt.Errorf("--url or PAYMONGO_WEBHOOK_URL is required")
			}

			client, err := newGatewayClient()
			if err != nil {
				return err
			}
			w, err := client.CreateWebhook(cmd.Context(), url, events)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			printWebhooks(out, []paymongo.Webhook{*w})
			if w.SecretKey != "" {
				fmt.Fprintf(out, "\nSigning secret (shown once, set PAYMONGO_WEBHOOK_SECRET): %s\n", w.SecretKey)
			}
			return nil
		},
	}
	create.Flags().String("url", "", "Delivery URL (default PAYMONGO_WEBHOOK_URL)")
	create.Flags().StringSlice("events", defaultWebhookEvents, "Events to subscribe to")
	cmd.AddCommand(create)

	cmd.AddCommand(&cobra.Command{
		Use:   "delete [id]",
		Short: "Delete a webhook subscription",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client, err := newGatewayClient()
			if err != nil {
				return err
			}
			if err := client.DeleteWebhook(cmd.Context(), args[0]); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Deleted webhook %s\n", args[0])
			return nil
		},
	})

	cmd.AddCommand(toggleCmd("enable", "Resume deliveries to a webhook", (*paymongo.Client).EnableWebhook))
	cmd.AddCommand(toggleCmd("disable", "Pause deliveries to a webhook", (*paymongo.Client).DisableWebhook))

	return cmd
}

type toggleFunc func(c *paymongo.Client, ctx context.Context, id string) (*paymongo.Webhook, error)

func toggleCmd(use, short string, fn toggleFunc) *cobra.Command {
	return &cobra.Command{
		Use:   use + " [id]",
		Short: short,
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client, err := newGatewayClient()
			if err != nil {
				return err
			}
			w, err := fn(client, cmd.Context(), args[0])
			if err != nil {
				return err
			}
			printWebhooks(cmd.OutOrStdout(), []paymongo.Webhook{*w})
			return nil
		},
	}
}

func printWebhooks(out io.Writer, hooks []paymongo.Webhook) {
	if len(hooks) == 0 {
		fmt.Fprintln(out, "No webhooks registered")
		return
	}
	tw := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tSTATUS\tLIVE\tURL\tEVENTS\tCREATED")
	for _, w := range hooks {
		created := ""
		if !w.CreatedAt.IsZero() {
			created = w.CreatedAt.Format(time.RFC3339)
		}
		fmt.Fprintf(tw, "%s\t%s\t%t\t%s\t%s\t%s\n", w.ID, w.Status, w.LiveMode, w.URL, strings.Join(w.Events, ","), created)
	}
	tw.Flush()
}
