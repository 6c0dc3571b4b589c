package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/vladislavdragonenkov/scm/internal/domain"
)

type dashboardRepository struct {
	db *sql.DB
}

// NewDashboardRepository создаёт PostgreSQL-реализацию DashboardRepository.
// Запросы идут через пул, отдельно от соединений, на которых регистрируются заказы.
func NewDashboardRepository(store *Store) domain.DashboardRepository {
	return &dashboardRepository{db: store.DB()}
}

func (r *dashboardRepository) FindProject(ctx context.Context, idOrShipName string) (domain.Project, error) {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	var (
		project  domain.Project
		delivery sql.NullTime
	)
	err := r.db.QueryRowContext(ctx, `
		SELECT id, ship_name, ship_type, contract_date, delivery_date, status
		FROM projects
		WHERE id::text = $1 OR ship_name LIKE '%' || $1 || '%'
		ORDER BY (id::text = $1) DESC, id
		LIMIT 1
	`, idOrShipName).Scan(
		&project.ID,
		&project.ShipName,
		&project.ShipType,
		&project.ContractDate,
		&delivery,
		&project.Status,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return domain.Project{}, domain.ErrProjectNotFound
		}
		return domain.Project{}, ClassifyError(fmt.Errorf("find project: %w", err))
	}
	if delivery.Valid {
		project.DeliveryDate = delivery.Time
	}

	return project, nil
}

func (r *dashboardRepository) TotalOrderAmount(ctx context.Context, projectID int64) (int64, error) {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	var total int64
	if err := r.db.QueryRowContext(ctx, `
		SELECT COALESCE(SUM(l.qty * l.unit_price), 0)::BIGINT
		FROM purchase_orders o
		JOIN purchase_order_lines l ON l.purchase_order_id = o.id
		WHERE o.project_id = $1
	`, projectID).Scan(&total); err != nil {
		return 0, ClassifyError(fmt.Errorf("total order amount: %w", err))
	}

	return total, nil
}

func (r *dashboardRepository) CarbonEmissions(ctx context.Context, projectID int64) (domain.CarbonBreakdown, error) {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	var carbon domain.CarbonBreakdown
	if err := r.db.QueryRowContext(ctx, `
		SELECT
			COALESCE(SUM(amount_kg) FILTER (WHERE record_type = 'transport'), 0)::FLOAT8,
			COALESCE(SUM(amount_kg) FILTER (WHERE record_type = 'storage'), 0)::FLOAT8,
			COALESCE(SUM(amount_kg), 0)::FLOAT8
		FROM carbon_records
		WHERE project_id = $1
		   OR delivery_id IN (
				SELECT d.id
				FROM deliveries d
				JOIN purchase_orders o ON o.id = d.purchase_order_id
				WHERE o.project_id = $1
		   )
	`, projectID).Scan(&carbon.Transport, &carbon.Storage, &carbon.Total); err != nil {
		return domain.CarbonBreakdown{}, ClassifyError(fmt.Errorf("carbon emissions: %w", err))
	}

	return carbon, nil
}

func (r *dashboardRepository) TopSuppliers(ctx context.Context, projectID int64, limit int) ([]domain.SupplierSpend, error) {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	if limit <= 0 {
		limit = 3
	}

	rows, err := r.db.QueryContext(ctx, `
		SELECT s.name, SUM(l.qty * l.unit_price)::BIGINT AS total
		FROM purchase_orders o
		JOIN suppliers s ON s.id = o.supplier_id
		JOIN purchase_order_lines l ON l.purchase_order_id = o.id
		WHERE o.project_id = $1
		GROUP BY s.id, s.name
		ORDER BY total DESC, s.name
		LIMIT $2
	`, projectID, limit)
	if err != nil {
		return nil, ClassifyError(fmt.Errorf("top suppliers: %w", err))
	}
	defer rows.Close()

	result := make([]domain.SupplierSpend, 0, limit)
	for rows.Next() {
		var spend domain.SupplierSpend
		if err := rows.Scan(&spend.Name, &spend.Amount); err != nil {
			return nil, ClassifyError(fmt.Errorf("scan top supplier: %w", err))
		}
		result = append(result, spend)
	}
	if err := rows.Err(); err != nil {
		return nil, ClassifyError(fmt.Errorf("iterate top suppliers: %w", err))
	}

	return result, nil
}

var _ domain.DashboardRepository = (*dashboardRepository)(nil)
