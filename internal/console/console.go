package console

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"

	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/scm/internal/domain"
	"github.com/vladislavdragonenkov/scm/internal/service/reporting"
)

// Dashboards строит дашборд проекта (пункт 1).
type Dashboards interface {
	ProjectDashboard(ctx context.Context, lookup string) (domain.ProjectDashboard, error)
}

// Orders регистрирует заказ поставщику (пункт 2).
type Orders interface {
	Submit(ctx context.Context, req domain.OrderSubmission) (domain.OrderResult, error)
}

// Suppliers строит ESG-отчёт и детализацию поставщика (пункт 3).
type Suppliers interface {
	Report(ctx context.Context, filter domain.SupplierReportFilter) ([]domain.SupplierReportRow, error)
	RecentOrders(ctx context.Context, supplierID int64) ([]domain.SupplierOrderDetail, error)
}

var errInvalidNumber = errors.New("invalid number format")

// Console — текстовое меню оператора поверх произвольных reader/writer.
type Console struct {
	in     *bufio.Scanner
	out    io.Writer
	userID string
	logger *log.Entry

	dashboards Dashboards
	orders     Orders
	suppliers  Suppliers
}

// Config связывает консоль с сервисами.
type Config struct {
	In         io.Reader
	Out        io.Writer
	UserID     string
	Logger     *log.Entry
	Dashboards Dashboards
	Orders     Orders
	Suppliers  Suppliers
}

// New создаёт консоль.
func New(cfg Config) *Console {
	logger := cfg.Logger
	if logger == nil {
		logger = log.WithField("component", "console")
	}
	return &Console{
		in:         bufio.NewScanner(cfg.In),
		out:        cfg.Out,
		userID:     cfg.UserID,
		logger:     logger,
		dashboards: cfg.Dashboards,
		orders:     cfg.Orders,
		suppliers:  cfg.Suppliers,
	}
}

// Run крутит меню до выбора 0, конца ввода или отмены ctx.
// Ошибка одного пункта печатается и логируется, цикл продолжается.
func (c *Console) Run(ctx context.Context) error {
	c.logger.Info("консоль запущена")
	defer c.logger.Info("консоль остановлена")

	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		c.printMenu()
		choice, err := c.prompt("Выбор: ")
		if err != nil {
			return ignoreEOF(err)
		}

		switch choice {
		case "1":
			err = c.dashboardMenu(ctx)
		case "2":
			err = c.orderMenu(ctx)
		case "3":
			err = c.supplierMenu(ctx)
		case "0":
			return nil
		default:
			c.println("Неверный пункт меню.")
			continue
		}

		if err == nil {
			continue
		}
		if errors.Is(err, io.EOF) {
			return nil
		}
		if errors.Is(err, context.Canceled) && ctx.Err() != nil {
			return ctx.Err()
		}
		c.reportError(choice, err)
	}
}

func (c *Console) printMenu() {
	c.println("")
	c.println("--- [ Главное меню ] ---")
	c.println("1. Дашборд проекта")
	c.println("2. Новый заказ и приёмка")
	c.println("3. ESG-отчёт по поставщикам")
	c.println("0. Выход")
}

func (c *Console) dashboardMenu(ctx context.Context) error {
	lookup, err := c.prompt("ID проекта или название судна: ")
	if err != nil {
		return err
	}

	dashboard, err := c.dashboards.ProjectDashboard(ctx, lookup)
	if errors.Is(err, domain.ErrProjectNotFound) {
		c.println("[инфо] Проект не найден.")
		return nil
	}
	if err != nil {
		return err
	}

	RenderDashboard(c.out, dashboard)
	return nil
}

func (c *Console) orderMenu(ctx context.Context) error {
	c.println("")
	c.println("--- [ Регистрация заказа ] ---")

	projectID, err := c.promptInt("ID проекта: ")
	if err != nil {
		return err
	}
	supplierID, err := c.promptInt("ID поставщика: ")
	if err != nil {
		return err
	}
	warehouseID, err := c.promptInt("ID склада приёмки: ")
	if err != nil {
		return err
	}

	var items []domain.OrderItem
	for {
		partID, err := c.promptInt("ID детали (0 завершает ввод): ")
		if err != nil {
			return err
		}
		if partID == 0 {
			break
		}
		qty, err := c.promptInt("Количество: ")
		if err != nil {
			return err
		}
		price, err := c.promptInt("Цена за единицу: ")
		if err != nil {
			return err
		}
		items = append(items, domain.OrderItem{PartID: partID, Qty: qty, UnitPrice: price})
	}

	if len(items) == 0 {
		c.println("[инфо] Нет позиций, заказ отменён.")
		return nil
	}

	result, err := c.orders.Submit(ctx, domain.OrderSubmission{
		ProjectID:   projectID,
		SupplierID:  supplierID,
		UserID:      c.userID,
		WarehouseID: warehouseID,
		Items:       items,
	})
	if err != nil {
		return err
	}

	c.printf("[успех] Заказ #%d зарегистрирован, поставка #%d.\n", result.OrderID, result.DeliveryID)
	return nil
}

func (c *Console) supplierMenu(ctx context.Context) error {
	c.println("")
	c.println("--- [ Фильтр ESG-отчёта ] ---")

	filter := reporting.DefaultFilter()

	gradesInput, err := c.prompt("ESG-грейды A-D через пробел (Enter для всех): ")
	if err != nil {
		return err
	}
	filter.ESGGrades = reporting.ParseGrades(gradesInput)

	if filter.MinDelay, err = c.promptFloat("Нижняя граница задержек, % (по умолчанию 0): ", filter.MinDelay); err != nil {
		return err
	}
	if filter.MaxDelay, err = c.promptFloat("Верхняя граница задержек, % (по умолчанию 100): ", filter.MaxDelay); err != nil {
		return err
	}

	rows, err := c.suppliers.Report(ctx, filter)
	if err != nil {
		return err
	}
	RenderSupplierReport(c.out, rows)

	supplierID, err := c.promptInt("\nID поставщика для детализации (0 пропускает): ")
	if err != nil {
		return err
	}
	if supplierID == 0 {
		return nil
	}

	orders, err := c.suppliers.RecentOrders(ctx, supplierID)
	if err != nil {
		return err
	}
	RenderSupplierDetail(c.out, supplierID, orders)
	return nil
}

func (c *Console) reportError(choice string, err error) {
	entry := c.logger.WithError(err).WithField("menu", choice)
	if errors.Is(err, errInvalidNumber) {
		c.println("[ошибка] Неверный формат числа.")
		entry.Error("ошибка формата ввода")
		return
	}
	c.println("[ошибка] " + DescribeError(err))
	entry.WithField("kind", domain.KindOf(err)).Error("ошибка выполнения пункта меню")
}

// DescribeError превращает ошибку сервиса в одну строку для оператора.
func DescribeError(err error) string {
	var (
		validation *domain.ValidationError
		exhausted  *domain.RetryExhaustedError
		persist    *domain.PersistenceError
	)
	switch {
	case errors.As(err, &validation):
		return "Заявка отклонена: " + err.Error()
	case errors.As(err, &exhausted):
		return fmt.Sprintf("Хранилище занято, заказ не зарегистрирован после %d попыток.", exhausted.Attempts)
	case errors.As(err, &persist):
		return "Ошибка хранилища, изменения отменены: " + persist.Error()
	default:
		return "Ошибка обработки: " + err.Error()
	}
}

func (c *Console) prompt(label string) (string, error) {
	_, _ = io.WriteString(c.out, label)
	if !c.in.Scan() {
		if err := c.in.Err(); err != nil {
			return "", err
		}
		return "", io.EOF
	}
	return strings.TrimSpace(c.in.Text()), nil
}

func (c *Console) promptInt(label string) (int64, error) {
	line, err := c.prompt(label)
	if err != nil {
		return 0, err
	}
	value, err := strconv.ParseInt(line, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("%w: %q", errInvalidNumber, line)
	}
	return value, nil
}

// promptFloat возвращает def на пустой ввод.
func (c *Console) promptFloat(label string, def float64) (float64, error) {
	line, err := c.prompt(label)
	if err != nil {
		return 0, err
	}
	if line == "" {
		return def, nil
	}
	value, err := strconv.ParseFloat(line, 64)
	if err != nil {
		return 0, fmt.Errorf("%w: %q", errInvalidNumber, line)
	}
	return value, nil
}

func (c *Console) println(s string) {
	_, _ = fmt.Fprintln(c.out, s)
}

func (c *Console) printf(format string, args ...any) {
	_, _ = fmt.Fprintf(c.out, format, args...)
}

func ignoreEOF(err error) error {
	if errors.Is(err, io.EOF) {
		return nil
	}
	return err
}
