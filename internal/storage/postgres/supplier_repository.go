package postgres

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/vladislavdragonenkov/scm/internal/domain"
)

type supplierRepository struct {
	db *sql.DB
}

// NewSupplierRepository создаёт PostgreSQL-реализацию SupplierRepository.
func NewSupplierRepository(store *Store) domain.SupplierRepository {
	return &supplierRepository{db: store.DB()}
}

// Report считает суммы заказов и поставки в отдельных CTE, чтобы join с поставками
// не умножал суммы по позициям. Пустой список ESG-грейдов означает "все".
func (r *supplierRepository) Report(ctx context.Context, filter domain.SupplierReportFilter) ([]domain.SupplierReportRow, error) {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	grades := filter.ESGGrades
	if grades == nil {
		grades = []string{}
	}

	rows, err := r.db.QueryContext(ctx, `
		WITH order_totals AS (
			SELECT o.supplier_id, SUM(l.qty * l.unit_price) AS amount
			FROM purchase_orders o
			JOIN purchase_order_lines l ON l.purchase_order_id = o.id
			GROUP BY o.supplier_id
		), delivery_stats AS (
			SELECT o.supplier_id,
			       COUNT(d.id) AS deliveries,
			       COUNT(d.id) FILTER (WHERE d.status = 'delayed') AS delayed
			FROM purchase_orders o
			JOIN deliveries d ON d.purchase_order_id = o.id
			GROUP BY o.supplier_id
		)
		SELECT s.id, s.name, s.country, s.esg_grade,
		       COALESCE(t.amount, 0)::BIGINT,
		       COALESCE(ds.deliveries, 0),
		       COALESCE(ds.delayed, 0)
		FROM suppliers s
		LEFT JOIN order_totals t ON t.supplier_id = s.id
		LEFT JOIN delivery_stats ds ON ds.supplier_id = s.id
		WHERE (cardinality($1::TEXT[]) = 0 OR s.esg_grade = ANY($1::TEXT[]))
		  AND (CASE
		           WHEN COALESCE(ds.deliveries, 0) = 0 THEN 0
		           ELSE ds.delayed::FLOAT8 / ds.deliveries * 100
		       END) BETWEEN $2 AND $3
		ORDER BY s.id
	`, grades, filter.MinDelay, filter.MaxDelay)
	if err != nil {
		return nil, ClassifyError(fmt.Errorf("supplier report: %w", err))
	}
	defer rows.Close()

	var result []domain.SupplierReportRow
	for rows.Next() {
		var row domain.SupplierReportRow
		if err := rows.Scan(
			&row.SupplierID,
			&row.Name,
			&row.Country,
			&row.ESG,
			&row.TotalOrderAmount,
			&row.Deliveries,
			&row.DelayedCount,
		); err != nil {
			return nil, ClassifyError(fmt.Errorf("scan supplier report row: %w", err))
		}
		result = append(result, row)
	}
	if err := rows.Err(); err != nil {
		return nil, ClassifyError(fmt.Errorf("iterate supplier report: %w", err))
	}

	return result, nil
}

func (r *supplierRepository) RecentOrders(ctx context.Context, supplierID int64, limit int) ([]domain.SupplierOrderDetail, error) {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	if limit <= 0 {
		limit = 5
	}

	rows, err := r.db.QueryContext(ctx, `
		SELECT o.id, o.order_date, o.status,
		       EXISTS (
				SELECT 1 FROM deliveries d
				WHERE d.purchase_order_id = o.id AND d.status = 'delayed'
		       ) AS delayed
		FROM purchase_orders o
		WHERE o.supplier_id = $1
		ORDER BY o.order_date DESC, o.id DESC
		LIMIT $2
	`, supplierID, limit)
	if err != nil {
		return nil, ClassifyError(fmt.Errorf("supplier recent orders: %w", err))
	}
	defer rows.Close()

	result := make([]domain.SupplierOrderDetail, 0, limit)
	for rows.Next() {
		var detail domain.SupplierOrderDetail
		if err := rows.Scan(&detail.OrderID, &detail.OrderDate, &detail.Status, &detail.Delayed); err != nil {
			return nil, ClassifyError(fmt.Errorf("scan supplier order: %w", err))
		}
		result = append(result, detail)
	}
	if err := rows.Err(); err != nil {
		return nil, ClassifyError(fmt.Errorf("iterate supplier orders: %w", err))
	}

	return result, nil
}

var _ domain.SupplierRepository = (*supplierRepository)(nil)
