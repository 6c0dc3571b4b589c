package main

import (
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/vladislavdragonenkov/scm/internal/console"
	"github.com/vladislavdragonenkov/scm/internal/domain"
	"github.com/vladislavdragonenkov/scm/internal/service/reporting"
)

func newDashboardCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "dashboard <project-id|ship-name>",
		Short: "Show cost, carbon and top suppliers of a project",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := openSession(cmd.Context(), opts, "dashboard")
			if err != nil {
				return err
			}
			defer s.Close()

			dashboard, err := s.deps.Dashboards.ProjectDashboard(cmd.Context(), strings.Join(args, " "))
			if errors.Is(err, domain.ErrProjectNotFound) {
				return fmt.Errorf("project %q not found", strings.Join(args, " "))
			}
			if err != nil {
				return err
			}

			console.RenderDashboard(cmd.OutOrStdout(), dashboard)
			return nil
		},
	}
}

type supplierFlags struct {
	grades   string
	minDelay float64
	maxDelay float64
	detail   int64
}

func newSuppliersCmd(opts *rootOptions) *cobra.Command {
	var flags supplierFlags
	def := reporting.DefaultFilter()

	cmd := &cobra.Command{
		Use:   "suppliers",
		Short: "Supplier ESG and delivery delay report",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			filter := domain.SupplierReportFilter{
				ESGGrades: reporting.ParseGrades(flags.grades),
				MinDelay:  flags.minDelay,
				MaxDelay:  flags.maxDelay,
			}
			if filter.MinDelay > filter.MaxDelay {
				return reporting.ErrDelayRangeInvalid
			}

			s, err := openSession(cmd.Context(), opts, "suppliers")
			if err != nil {
				return err
			}
			defer s.Close()

			rows, err := s.deps.Suppliers.Report(cmd.Context(), filter)
			if err != nil {
				return err
			}
			console.RenderSupplierReport(cmd.OutOrStdout(), rows)

			if flags.detail == 0 {
				return nil
			}
			orders, err := s.deps.Suppliers.RecentOrders(cmd.Context(), flags.detail)
			if err != nil {
				return err
			}
			console.RenderSupplierDetail(cmd.OutOrStdout(), flags.detail, orders)
			return nil
		},
	}

	cmd.Flags().StringVar(&flags.grades, "grades", "", `ESG grades separated by spaces, e.g. "A B" (default: all)`)
	cmd.Flags().Float64Var(&flags.minDelay, "min-delay", def.MinDelay, "lower bound of delay rate, %")
	cmd.Flags().Float64Var(&flags.maxDelay, "max-delay", def.MaxDelay, "upper bound of delay rate, %")
	cmd.Flags().Int64Var(&flags.detail, "detail", 0, "supplier id to list recent orders for")
	return cmd
}
