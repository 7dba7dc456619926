// Command forecastctl runs the forecasting jobs once from the command line: batch updates,
// single-scope forecasts, monitor checks and cleanup.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/fahad0samara/commerce-forecast-go/internal/app"
	"github.com/fahad0samara/commerce-forecast-go/internal/config"
	"github.com/fahad0samara/commerce-forecast-go/internal/forecast"
	"github.com/fahad0samara/commerce-forecast-go/internal/models"
)

// cli carries the global flags and the lazily built application.
type cli struct {
	envFile string
	timeout time.Duration
	out     io.Writer

	// build creates the application; tests replace it.
	build func(ctx context.Context) (*app.App, error)
}

func main() {
	c := &cli{out: os.Stdout}
	c.build = c.buildApp

	if err := c.rootCmd().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func (c *cli) rootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "forecastctl",
		Short:         "Run demand forecasting jobs once",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVar(&c.envFile, "env-file", ".env", "Environment file loaded before the configuration")
	root.PersistentFlags().DurationVar(&c.timeout, "timeout", 30*time.Minute, "Maximum run time of the command")

	root.AddCommand(
		c.updateAllCmd(),
		c.forecastCmd(),
		c.seasonalityCmd(),
		c.checkAccuracyCmd(),
		c.detectAnomaliesCmd(),
		c.compareModelsCmd(),
		c.cleanupCmd(),
	)
	return root
}

func (c *cli) buildApp(ctx context.Context) (*app.App, error) {
	if c.envFile != "" {
		// The file is optional.
		_ = godotenv.Load(c.envFile)
	}
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}
	return app.New(ctx, cfg)
}

// withApp builds the application, runs fn under the command timeout and SIGINT, and
// closes the application afterwards.
func (c *cli) withApp(cmd *cobra.Command, fn func(ctx context.Context, a *app.App) (interface{}, error)) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	if c.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.timeout)
		defer cancel()
	}

	a, err := c.build(ctx)
	if err != nil {
		return err
	}
	defer a.Close(context.Background())

	result, err := fn(ctx, a)
	if err != nil {
		return err
	}
	return c.print(result)
}

func (c *cli) print(v interface{}) error {
	enc := json.NewEncoder(c.out)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func parseID(name, raw string) (int64, error) {
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("invalid %s %q", name, raw)
	}
	return id, nil
}

func (c *cli) updateAllCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "update-all",
		Short: "Refresh forecasts and reorder points for every scope with recent sales",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return c.withApp(cmd, func(ctx context.Context, a *app.App) (interface{}, error) {
				return a.Batch.UpdateAll(ctx)
			})
		},
	}
}

func (c *cli) forecastCmd() *cobra.Command {
	var (
		days      int
		algorithm string
	)
	cmd := &cobra.Command{
		Use:   "forecast <product-id> <warehouse-id>",
		Short: "Generate the forecast of one product in one warehouse",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			productID, err := parseID("product id", args[0])
			if err != nil {
				return err
			}
			warehouseID, err := parseID("warehouse id", args[1])
			if err != nil {
				return err
			}
			var requested *forecast.Algorithm
			if algorithm != "" {
				parsed, err := forecast.ParseAlgorithm(algorithm)
				if err != nil {
					return err
				}
				requested = &parsed
			}

			scope := models.Scope{ProductID: productID, WarehouseID: warehouseID}
			return c.withApp(cmd, func(ctx context.Context, a *app.App) (interface{}, error) {
				return a.Forecasting.GenerateForecast(ctx, scope, days, requested)
			})
		},
	}
	cmd.Flags().IntVar(&days, "days", 30, "Forecast horizon in days (1-365)")
	cmd.Flags().StringVar(&algorithm, "algorithm", "", "Algorithm to use; selected automatically when empty")
	return cmd
}

func (c *cli) seasonalityCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "seasonality <product-id>",
		Short: "Print weekday and monthly sales averages of a product",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			productID, err := parseID("product id", args[0])
			if err != nil {
				return err
			}
			return c.withApp(cmd, func(ctx context.Context, a *app.App) (interface{}, error) {
				return a.Forecasting.AnalyzeSeasonality(ctx, productID)
			})
		},
	}
}

func (c *cli) checkAccuracyCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "check-accuracy",
		Short: "Report recent forecasts whose error exceeded the threshold",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return c.withApp(cmd, func(ctx context.Context, a *app.App) (interface{}, error) {
				return a.Monitor.CheckAccuracy(ctx)
			})
		},
	}
}

func (c *cli) detectAnomaliesCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "detect-anomalies",
		Short: "Report recent sales far from their 30 day baseline",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return c.withApp(cmd, func(ctx context.Context, a *app.App) (interface{}, error) {
				return a.Monitor.DetectAnomalies(ctx)
			})
		},
	}
}

func (c *cli) compareModelsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "compare-models",
		Short: "Report scopes where one algorithm clearly outperforms another",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return c.withApp(cmd, func(ctx context.Context, a *app.App) (interface{}, error) {
				return a.Monitor.CompareModels(ctx)
			})
		},
	}
}

func (c *cli) cleanupCmd() *cobra.Command {
	var statsOnly bool
	cmd := &cobra.Command{
		Use:   "cleanup",
		Short: "Delete forecasts and seasonality patterns older than the retention window",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return c.withApp(cmd, func(ctx context.Context, a *app.App) (interface{}, error) {
				if statsOnly {
					return a.Cleanup.GetDataStats(ctx)
				}
				return a.Cleanup.RunCleanup(ctx)
			})
		},
	}
	cmd.Flags().BoolVar(&statsOnly, "stats", false, "Only print row counts")
	return cmd
}
