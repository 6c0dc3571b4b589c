package reporting

import (
	"context"
	"errors"
	"sort"
	"strings"

	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/scm/internal/domain"
)

const RecentOrdersLimit = 5

var (
	ErrDelayRangeInvalid = errors.New("delay rate lower bound must not exceed upper bound")
	ErrSupplierIDInvalid = errors.New("supplier id must be positive")
)

// SupplierService строит ESG-отчёт по поставщикам.
type SupplierService struct {
	repo   domain.SupplierRepository
	logger *log.Entry
}

// NewSupplierService создаёт сервис отчётов по поставщикам.
func NewSupplierService(repo domain.SupplierRepository, logger *log.Entry) *SupplierService {
	if logger == nil {
		logger = log.WithField("component", "supplier-report")
	}
	return &SupplierService{repo: repo, logger: logger}
}

// DefaultFilter: все грейды, любой процент задержек.
func DefaultFilter() domain.SupplierReportFilter {
	return domain.SupplierReportFilter{MinDelay: 0, MaxDelay: 100}
}

// ParseGrades разбирает ввод вида "A b  C" в уникальные грейды в верхнем регистре.
func ParseGrades(input string) []string {
	seen := make(map[string]struct{})
	var grades []string
	for _, field := range strings.Fields(input) {
		grade := strings.ToUpper(field)
		if _, ok := seen[grade]; ok {
			continue
		}
		seen[grade] = struct{}{}
		grades = append(grades, grade)
	}
	sort.Strings(grades)
	return grades
}

// Report возвращает строки отчёта, отфильтрованные по грейдам и проценту задержек.
func (s *SupplierService) Report(ctx context.Context, filter domain.SupplierReportFilter) ([]domain.SupplierReportRow, error) {
	if filter.MinDelay > filter.MaxDelay {
		return nil, domain.NewValidationError(ErrDelayRangeInvalid)
	}

	rows, err := s.repo.Report(ctx, filter)
	if err != nil {
		s.logger.WithError(err).Error("ошибка отчёта по поставщикам")
		return nil, err
	}

	s.logger.WithFields(log.Fields{
		"grades": filter.ESGGrades,
		"rows":   len(rows),
	}).Info("отчёт по поставщикам построен")
	return rows, nil
}

// RecentOrders возвращает последние заказы поставщика с признаком задержки.
func (s *SupplierService) RecentOrders(ctx context.Context, supplierID int64) ([]domain.SupplierOrderDetail, error) {
	if supplierID <= 0 {
		return nil, domain.NewValidationError(ErrSupplierIDInvalid)
	}

	orders, err := s.repo.RecentOrders(ctx, supplierID, RecentOrdersLimit)
	if err != nil {
		s.logger.WithError(err).WithField("supplier_id", supplierID).Error("ошибка детализации поставщика")
		return nil, err
	}
	return orders, nil
}
