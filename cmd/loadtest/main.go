package main

import (
	"context"
	"database/sql"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"strings"
	"sync"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/scm/internal/app"
	"github.com/vladislavdragonenkov/scm/internal/domain"
	"github.com/vladislavdragonenkov/scm/internal/service/procurement"
	"github.com/vladislavdragonenkov/scm/internal/storage/postgres"
)

type config struct {
	dsn         string
	total       int
	concurrency int
	timeout     time.Duration
	maxAttempts int
	backoff     time.Duration
	projectID   int64
	supplierID  int64
	warehouseID int64
	partID      int64
	qty         int64
	unitPrice   int64
	userID      string
	outputPath  string
}

// submitter — то, что регистрирует заказ; *app.OrderService удовлетворяет интерфейсу.
type submitter interface {
	Submit(ctx context.Context, req domain.OrderSubmission) (domain.OrderResult, error)
}

// inventoryReader возвращает текущий остаток (warehouse, part).
type inventoryReader func(ctx context.Context) (int64, error)

func parseConfig(args []string, getenv func(string) string) (config, error) {
	var cfg config

	fs := flag.NewFlagSet("loadtest", flag.ContinueOnError)
	fs.SetOutput(io.Discard)
	fs.StringVar(&cfg.dsn, "dsn", "", "PostgreSQL DSN (fallback: SCM_POSTGRES_DSN)")
	fs.IntVar(&cfg.total, "total", 200, "total submissions")
	fs.IntVar(&cfg.concurrency, "concurrency", 16, "number of concurrent submitters, each on its own connection")
	fs.DurationVar(&cfg.timeout, "timeout", 10*time.Second, "per-submission timeout")
	fs.IntVar(&cfg.maxAttempts, "max-attempts", 3, "transaction attempts per submission")
	fs.DurationVar(&cfg.backoff, "backoff", 50*time.Millisecond, "pause between attempts")
	fs.Int64Var(&cfg.projectID, "project", 10, "project id")
	fs.Int64Var(&cfg.supplierID, "supplier", 3, "supplier id")
	fs.Int64Var(&cfg.warehouseID, "warehouse", 1, "warehouse id shared by all submissions")
	fs.Int64Var(&cfg.partID, "part", 100, "part id shared by all submissions")
	fs.Int64Var(&cfg.qty, "qty", 4, "ordered quantity per submission")
	fs.Int64Var(&cfg.unitPrice, "price", 1000, "unit price")
	fs.StringVar(&cfg.userID, "user", "jack01", "submitting user id")
	fs.StringVar(&cfg.outputPath, "output", "", "optional JSON report output file path")
	if err := fs.Parse(args); err != nil {
		return cfg, err
	}

	if strings.TrimSpace(cfg.dsn) == "" {
		cfg.dsn = strings.TrimSpace(getenv("SCM_POSTGRES_DSN"))
	}

	switch {
	case cfg.dsn == "":
		return cfg, errors.New("SCM_POSTGRES_DSN (or -dsn) is required")
	case cfg.total <= 0:
		return cfg, errors.New("total must be > 0")
	case cfg.concurrency <= 0:
		return cfg, errors.New("concurrency must be > 0")
	case cfg.timeout <= 0:
		return cfg, errors.New("timeout must be > 0")
	case cfg.maxAttempts <= 0:
		return cfg, errors.New("max-attempts must be > 0")
	case cfg.qty <= 0:
		return cfg, errors.New("qty must be > 0")
	case cfg.unitPrice < 0:
		return cfg, errors.New("price must be >= 0")
	}
	return cfg, nil
}

func main() {
	log.SetFormatter(&log.TextFormatter{FullTimestamp: true})
	log.SetLevel(log.WarnLevel)

	cfg, err := parseConfig(os.Args[1:], os.Getenv)
	if err != nil {
		_, _ = fmt.Fprintf(os.Stderr, "invalid config: %v\n", err)
		os.Exit(1)
	}

	ctx := context.Background()
	store, err := postgres.OpenWithPool(ctx, cfg.dsn, postgres.PoolOptions{
		MaxOpenConns:    cfg.concurrency + 2,
		MaxIdleConns:    cfg.concurrency,
		ConnMaxLifetime: 30 * time.Minute,
		ConnMaxIdleTime: 5 * time.Minute,
	})
	if err != nil {
		_, _ = fmt.Fprintf(os.Stderr, "open postgres store: %v\n", err)
		os.Exit(1)
	}
	defer store.Close()

	engine := procurement.NewEngine(procurement.WithRetryConfig(procurement.RetryConfig{
		MaxAttempts: cfg.maxAttempts,
		Backoff:     cfg.backoff,
	}))
	orders := app.NewOrderService(store, engine)

	result, err := run(ctx, cfg, orders, sqlInventoryReader(store.DB(), cfg.warehouseID, cfg.partID))
	if err != nil {
		_, _ = fmt.Fprintf(os.Stderr, "load test failed: %v\n", err)
		os.Exit(1)
	}

	printReport(os.Stdout, result, cfg)
	if cfg.outputPath != "" {
		if err := writeJSONReport(cfg.outputPath, result); err != nil {
			_, _ = fmt.Fprintf(os.Stderr, "failed to write report: %v\n", err)
			os.Exit(1)
		}
	}

	if !result.Inventory.OK {
		os.Exit(2)
	}
	if result.Failed > 0 {
		os.Exit(1)
	}
}

// run выполняет cfg.total заявок на одну пару (warehouse, part) и сверяет прирост остатка
// с суммой принятых количеств успешных заявок (плюс, возможно, заявок с таймаутом).
func run(ctx context.Context, cfg config, orders submitter, readInventory inventoryReader) (report, error) {
	before, err := readInventory(ctx)
	if err != nil {
		return report{}, fmt.Errorf("read inventory before run: %w", err)
	}

	startedAt := time.Now()
	col := newCollector()

	jobs := make(chan int, cfg.concurrency*2)
	var wg sync.WaitGroup
	for workerID := 0; workerID < cfg.concurrency; workerID++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for range jobs {
				submitOne(ctx, orders, cfg, col)
			}
		}()
	}

	for i := 0; i < cfg.total; i++ {
		jobs <- i
	}
	close(jobs)
	wg.Wait()

	after, err := readInventory(ctx)
	if err != nil {
		return report{}, fmt.Errorf("read inventory after run: %w", err)
	}

	result := col.buildReport(startedAt, time.Since(startedAt))
	result.Inventory = newInventoryCheck(before, after, result.Success, result.Uncertain, domain.InitialReceiptQty(cfg.qty))
	return result, nil
}

func submitOne(ctx context.Context, orders submitter, cfg config, col *collector) {
	ctx, cancel := context.WithTimeout(ctx, cfg.timeout)
	defer cancel()

	start := time.Now()
	res, err := orders.Submit(ctx, domain.OrderSubmission{
		ProjectID:   cfg.projectID,
		SupplierID:  cfg.supplierID,
		UserID:      cfg.userID,
		WarehouseID: cfg.warehouseID,
		Items:       []domain.OrderItem{{PartID: cfg.partID, Qty: cfg.qty, UnitPrice: cfg.unitPrice}},
	})
	col.record(time.Since(start), res.Attempts, err)
}

func sqlInventoryReader(db *sql.DB, warehouseID, partID int64) inventoryReader {
	return func(ctx context.Context) (int64, error) {
		var qty int64
		err := db.QueryRowContext(ctx,
			`SELECT quantity FROM inventory WHERE warehouse_id = $1 AND part_id = $2`,
			warehouseID, partID,
		).Scan(&qty)
		if errors.Is(err, sql.ErrNoRows) {
			return 0, nil
		}
		return qty, err
	}
}
