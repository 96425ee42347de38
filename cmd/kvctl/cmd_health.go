package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/dreamware/kvclient/internal/health"
)

func newHealthCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "health",
		Short: "Health of the first member that answers",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := newClient(cmd)
			if err != nil {
				return err
			}
			resp, err := health.Check(cmd.Context(), c)
			if err != nil {
				return err
			}
			if err := printJSON(cmd.OutOrStdout(), resp.Data); err != nil {
				return err
			}
			if !resp.Data.Healthy() {
				return health.ErrUnhealthy
			}
			return nil
		},
	}
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Server and cluster version of the first member that answers",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := newClient(cmd)
			if err != nil {
				return err
			}
			resp, err := health.Version(cmd.Context(), c)
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), resp.Data)
		},
	}
}

func newEndpointCmd() *cobra.Command {
	endpointCmd := &cobra.Command{
		Use:   "endpoint",
		Short: "Inspect individual endpoints",
	}
	endpointCmd.AddCommand(&cobra.Command{
		Use:   "status",
		Short: "Check every endpoint on its own, without failing over",
		Long: `Check every configured endpoint separately and print one record per
endpoint, in order. Exits non-zero if any endpoint is unhealthy.`,
		Args: cobra.NoArgs,
		RunE: runEndpointStatus,
	})
	return endpointCmd
}

func runEndpointStatus(cmd *cobra.Command, args []string) error {
	c, err := newClient(cmd)
	if err != nil {
		return err
	}
	if len(c.Endpoints()) == 0 {
		return fmt.Errorf("no endpoints configured")
	}

	m := health.NewMonitor(c, time.Minute)
	m.SetMaxFailures(1)
	records := m.CheckAll(cmd.Context())
	if err := printJSON(cmd.OutOrStdout(), records); err != nil {
		return err
	}

	unhealthy := 0
	for _, r := range records {
		if r.Status != health.StatusHealthy {
			unhealthy++
		}
	}
	if unhealthy > 0 {
		return fmt.Errorf("%d of %d endpoints unhealthy", unhealthy, len(records))
	}
	return nil
}
