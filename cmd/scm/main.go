package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/vladislavdragonenkov/scm/internal/app"
	"github.com/vladislavdragonenkov/scm/internal/console"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := newRootCmd(os.Stdin, os.Stdout).ExecuteContext(ctx); err != nil && !errors.Is(err, context.Canceled) {
		_, _ = fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

type rootOptions struct {
	configPath string
	in         io.Reader
	out        io.Writer
}

func newRootCmd(in io.Reader, out io.Writer) *cobra.Command {
	opts := &rootOptions{in: in, out: out}

	root := &cobra.Command{
		Use:   "scm",
		Short: "Supply-chain console for shipbuilding projects",
		Long: `Operator console for project dashboards, purchase order registration
with initial receipt, and supplier ESG reports.`,
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runConsole(cmd.Context(), opts)
		},
	}
	root.SetIn(in)
	root.SetOut(out)
	root.PersistentFlags().StringVar(&opts.configPath, "config", "", "path to scm.yaml (default: ./scm.yaml or ./config/scm.yaml)")

	root.AddCommand(
		newConsoleCmd(opts),
		newOrderCmd(opts),
		newDashboardCmd(opts),
		newSuppliersCmd(opts),
		newRelayCmd(opts),
		newDLQReplayCmd(opts),
		newVersionCmd(opts),
	)
	return root
}

func newConsoleCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "console",
		Short: "Run the interactive menu (default)",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runConsole(cmd.Context(), opts)
		},
	}
}

// session — загруженная конфигурация, логгер и зависимости одной команды.
type session struct {
	cfg       app.Config
	deps      *app.Dependencies
	logCloser io.Closer
}

// openSession загружает конфиг, настраивает логирование и подключается к БД.
// Admin HTTP поднимается, если задан metrics.addr.
func openSession(ctx context.Context, opts *rootOptions, component string) (*session, error) {
	cfg, err := app.LoadConfig(opts.configPath)
	if err != nil {
		return nil, err
	}

	logCloser, err := app.SetupLogger(cfg.Log)
	if err != nil {
		return nil, err
	}

	logger := log.WithField("component", component)
	logger.Info("=== запуск scm ===")

	deps, err := app.NewDependencies(ctx, cfg, logger)
	if err != nil {
		logger.WithError(err).Error("не удалось подключиться к базе")
		_ = logCloser.Close()
		return nil, err
	}
	logger.Info("подключение к базе установлено")

	app.StartAdminServer(ctx, cfg.MetricsAddr, deps)
	return &session{cfg: cfg, deps: deps, logCloser: logCloser}, nil
}

func (s *session) Close() {
	if err := s.deps.Close(); err != nil {
		s.deps.Logger.WithError(err).Warn("ошибка закрытия пула соединений")
	}
	s.deps.Logger.Info("=== scm остановлен ===")
	_ = s.logCloser.Close()
}

func runConsole(ctx context.Context, opts *rootOptions) error {
	s, err := openSession(ctx, opts, "console")
	if err != nil {
		return err
	}
	defer s.Close()

	c := console.New(console.Config{
		In:         opts.in,
		Out:        opts.out,
		UserID:     s.cfg.Order.UserID,
		Logger:     s.deps.Logger,
		Dashboards: s.deps.Dashboards,
		Orders:     s.deps.Orders,
		Suppliers:  s.deps.Suppliers,
	})
	return c.Run(ctx)
}
