package main

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/vladislavdragonenkov/scm/internal/console"
	"github.com/vladislavdragonenkov/scm/internal/domain"
)

type orderFlags struct {
	projectID   int64
	supplierID  int64
	warehouseID int64
	userID      string
	items       []string
}

func newOrderCmd(opts *rootOptions) *cobra.Command {
	var flags orderFlags

	cmd := &cobra.Command{
		Use:   "order",
		Short: "Register a purchase order with its initial delivery",
		Example: `  scm order --project 10 --supplier 3 --warehouse 1 --item 100:20:5000
  scm order --project 10 --supplier 3 --warehouse 1 --item 100:20:5000 --item 101:4:120`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			items, err := parseItems(flags.items)
			if err != nil {
				return err
			}

			s, err := openSession(cmd.Context(), opts, "order")
			if err != nil {
				return err
			}
			defer s.Close()

			userID := flags.userID
			if userID == "" {
				userID = s.cfg.Order.UserID
			}

			result, err := s.deps.Orders.Submit(cmd.Context(), domain.OrderSubmission{
				ProjectID:   flags.projectID,
				SupplierID:  flags.supplierID,
				UserID:      userID,
				WarehouseID: flags.warehouseID,
				Items:       items,
			})
			if err != nil {
				return errors.New(console.DescribeError(err))
			}

			_, _ = fmt.Fprintf(cmd.OutOrStdout(), "order_id=%d delivery_id=%d attempts=%d\n",
				result.OrderID, result.DeliveryID, result.Attempts)
			return nil
		},
	}

	cmd.Flags().Int64Var(&flags.projectID, "project", 0, "project id")
	cmd.Flags().Int64Var(&flags.supplierID, "supplier", 0, "supplier id")
	cmd.Flags().Int64Var(&flags.warehouseID, "warehouse", 0, "receiving warehouse id")
	cmd.Flags().StringVar(&flags.userID, "user", "", "submitting user id (default: order.user_id)")
	cmd.Flags().StringArrayVar(&flags.items, "item", nil, "line item as part:qty:unit_price, repeatable, in line order")
	_ = cmd.MarkFlagRequired("project")
	_ = cmd.MarkFlagRequired("supplier")
	_ = cmd.MarkFlagRequired("warehouse")
	_ = cmd.MarkFlagRequired("item")

	return cmd
}

// parseItems разбирает позиции вида part:qty:price, сохраняя порядок.
func parseItems(raw []string) ([]domain.OrderItem, error) {
	items := make([]domain.OrderItem, 0, len(raw))
	for i, value := range raw {
		parts := strings.Split(value, ":")
		if len(parts) != 3 {
			return nil, fmt.Errorf("item %d: expected part:qty:unit_price, got %q", i+1, value)
		}

		var nums [3]int64
		for j, part := range parts {
			n, err := strconv.ParseInt(strings.TrimSpace(part), 10, 64)
			if err != nil {
				return nil, fmt.Errorf("item %d: invalid number %q", i+1, part)
			}
			nums[j] = n
		}
		items = append(items, domain.OrderItem{PartID: nums[0], Qty: nums[1], UnitPrice: nums[2]})
	}
	return items, nil
}
