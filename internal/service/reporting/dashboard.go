package reporting

import (
	"context"
	"errors"
	"fmt"
	"strings"

	log "github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"github.com/vladislavdragonenkov/scm/internal/domain"
)

const TopSuppliersLimit = 3

// ErrLookupRequired — пустой ввод вместо id проекта или названия судна.
var ErrLookupRequired = errors.New("project id or ship name is required")

// DashboardService собирает дашборд проекта из read-only агрегатов.
type DashboardService struct {
	repo   domain.DashboardRepository
	logger *log.Entry
}

// NewDashboardService создаёт сервис дашборда.
func NewDashboardService(repo domain.DashboardRepository, logger *log.Entry) *DashboardService {
	if logger == nil {
		logger = log.WithField("component", "dashboard")
	}
	return &DashboardService{repo: repo, logger: logger}
}

// ProjectDashboard находит проект по id или части названия судна и параллельно
// считает стоимость, выбросы и топ поставщиков. Если проекта нет, возвращает domain.ErrProjectNotFound.
func (s *DashboardService) ProjectDashboard(ctx context.Context, lookup string) (domain.ProjectDashboard, error) {
	lookup = strings.TrimSpace(lookup)
	if lookup == "" {
		return domain.ProjectDashboard{}, domain.NewValidationError(ErrLookupRequired)
	}

	project, err := s.repo.FindProject(ctx, lookup)
	if err != nil {
		return domain.ProjectDashboard{}, err
	}

	dashboard := domain.ProjectDashboard{Project: project}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		total, err := s.repo.TotalOrderAmount(gctx, project.ID)
		if err != nil {
			return fmt.Errorf("total order amount: %w", err)
		}
		dashboard.TotalCost = total
		return nil
	})
	g.Go(func() error {
		carbon, err := s.repo.CarbonEmissions(gctx, project.ID)
		if err != nil {
			return fmt.Errorf("carbon emissions: %w", err)
		}
		dashboard.Carbon = carbon
		return nil
	})
	g.Go(func() error {
		top, err := s.repo.TopSuppliers(gctx, project.ID, TopSuppliersLimit)
		if err != nil {
			return fmt.Errorf("top suppliers: %w", err)
		}
		dashboard.TopSuppliers = top
		return nil
	})

	if err := g.Wait(); err != nil {
		s.logger.WithError(err).WithField("project_id", project.ID).Error("ошибка построения дашборда")
		return domain.ProjectDashboard{}, err
	}

	s.logger.WithField("project_id", project.ID).Info("дашборд проекта построен")
	return dashboard, nil
}
