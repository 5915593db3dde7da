package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"text/tabwriter"
	"time"

	"huawei-solar/config"
	"huawei-solar/internal/api"
	"huawei-solar/internal/collector"
	"huawei-solar/internal/inverter"
	"huawei-solar/internal/mqtt"
	"huawei-solar/internal/output"
	"huawei-solar/internal/registers"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"
)

var (
	configFile string
	verbose    bool
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:           "huawei-solar",
		Short:         "Huawei Solar Inverter CLI",
		Long:          "Read telemetry from a Huawei SUN2000 inverter (or its SDongle) over Modbus TCP",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	rootCmd.PersistentFlags().StringVarP(&configFile, "config", "c", "", "config file path")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "verbose output")

	rootCmd.AddCommand(queryCmd())
	rootCmd.AddCommand(registersCmd())
	rootCmd.AddCommand(testCmd())
	rootCmd.AddCommand(serveCmd())

	return rootCmd
}

// setup loads the configuration with the command's bound flags and builds
// the logger.
func setup(v *viper.Viper) (*config.Config, *zap.Logger, error) {
	cfg, err := config.Load(v, configFile)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to load config: %w", err)
	}

	level := cfg.Log.Level
	if verbose {
		level = "debug"
	}
	logger, err := newLogger(level)
	if err != nil {
		return nil, nil, err
	}
	return cfg, logger, nil
}

func dialConfig(cfg *config.Config, host string, port int) inverter.DialConfig {
	return inverter.DialConfig{
		Driver:      cfg.Inverter.Client,
		Host:        host,
		Port:        port,
		SlaveID:     cfg.Inverter.SlaveID,
		Timeout:     cfg.Inverter.Timeout,
		SettleDelay: cfg.Inverter.SettleDelay,
	}
}

func queryCmd() *cobra.Command {
	var publish bool

	cmd := &cobra.Command{
		Use:   "query <ip[:port]> <query_params> <output_destination>",
		Short: "Query the inverter",
		Long: "Query the inverter and write the result as json or a pretty printed report.\n\n" +
			"ip[:port]           inverter or SDongle address, port defaults to 502\n" +
			"query_params        comma separated quantities, or 'all' (see the registers command)\n" +
			"output_destination  file name, or - for stdout",
		Args: cobra.ExactArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			v := viper.New()
			v.BindPFlag("inverter.slave_id", cmd.Flags().Lookup("slave_id"))
			v.BindPFlag("output.format", cmd.Flags().Lookup("output_format"))

			cfg, logger, err := setup(v)
			if err != nil {
				return err
			}
			defer logger.Sync()

			host, port, err := parseHostPort(args[0], cfg.Inverter.Port)
			if err != nil {
				return err
			}

			format := chooseFormat(cmd.Flags().Changed("output_format"), cfg.Output.Format, logger)
			if cmd.Flags().Changed("slave_id") {
				logger.Info("Using slave id", zap.Uint8("slave_id", cfg.Inverter.SlaveID))
			} else {
				logger.Info("Using default slave id", zap.Uint8("slave_id", cfg.Inverter.SlaveID))
			}

			session, err := inverter.Dial(dialConfig(cfg, host, port))
			if err != nil {
				return fmt.Errorf("failed to connect to %s:%d: %w", host, port, err)
			}
			defer session.Close()

			res := inverter.Query(session, args[1], logger)

			data, err := output.Render(format, res)
			if err != nil {
				return err
			}
			if args[2] != output.Stdout {
				logger.Info("Writing to file", zap.String("path", args[2]))
			}
			if err := output.Write(args[2], data, cmd.OutOrStdout()); err != nil {
				return err
			}

			if publish {
				publishResult(cfg, res, logger)
			}
			return nil
		},
	}

	cmd.Flags().StringP("output_format", "f", string(output.FormatJSON), "output format (json, pretty_print)")
	cmd.Flags().Uint8("slave_id", 0, "Modbus slave id (specify 1 for connecting through SDongle)")
	cmd.Flags().BoolVar(&publish, "mqtt", false, "also publish the result to the configured MQTT broker")

	return cmd
}

// chooseFormat falls back to json on unknown names instead of failing.
func chooseFormat(explicit bool, name string, logger *zap.Logger) output.Format {
	format, ok := output.ParseFormat(name)
	switch {
	case !ok:
		logger.Warn("Unknown format, using json as output format", zap.String("format", name))
		return output.FormatJSON
	case explicit:
		logger.Info("Using output format", zap.String("format", string(format)))
	default:
		logger.Info("Using default output format", zap.String("format", string(format)))
	}
	return format
}

func publishResult(cfg *config.Config, res inverter.Result, logger *zap.Logger) {
	if !cfg.MQTT.Enabled {
		logger.Warn("MQTT is disabled in the configuration, not publishing")
		return
	}

	publisher, err := mqtt.NewPublisher(mqttConfig(cfg), logger)
	if err != nil {
		logger.Error("MQTT connection failed", zap.Error(err))
		return
	}
	defer publisher.Close()

	if err := publisher.Publish(mqtt.DeviceID(res), res); err != nil {
		logger.Error("Error publishing to MQTT", zap.Error(err))
	}
}

func mqttConfig(cfg *config.Config) mqtt.PublisherConfig {
	return mqtt.PublisherConfig{
		Broker:      cfg.MQTT.Broker,
		ClientID:    cfg.MQTT.ClientID,
		Username:    cfg.MQTT.Username,
		Password:    cfg.MQTT.Password,
		TopicPrefix: cfg.MQTT.TopicPrefix,
		Enabled:     cfg.MQTT.Enabled,
		Timeout:     cfg.MQTT.Timeout,
	}
}

func registersCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "registers",
		Short: "List the quantities that can be queried",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "NAME\tADDRESS\tWORDS\tKIND\tGAIN\tUNIT")
			for _, r := range registers.Catalog() {
				fmt.Fprintf(w, "%s\t%d\t%d\t%s\t%d\t%s\n", r.Name, r.Address, r.Words, r.Kind, r.Gain, r.Unit)
			}
			return w.Flush()
		},
	}
}

func testCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "test <ip[:port]>",
		Short: "Test the connection to the inverter",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			v := viper.New()
			v.BindPFlag("inverter.slave_id", cmd.Flags().Lookup("slave_id"))

			cfg, logger, err := setup(v)
			if err != nil {
				return err
			}
			defer logger.Sync()

			host, port, err := parseHostPort(args[0], cfg.Inverter.Port)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Testing connection to %s:%d...\n", host, port)

			session, err := inverter.Dial(dialConfig(cfg, host, port))
			if err != nil {
				fmt.Fprintf(out, "Connection FAILED: %v\n", err)
				return err
			}
			defer session.Close()

			model, err := session.Read(registers.ModelName)
			if err != nil {
				fmt.Fprintf(out, "Connection FAILED: %v\n", err)
				return err
			}
			fmt.Fprintln(out, "Connection SUCCESS!")

			res := inverter.Query(session, "serial_number,device_status,active_power", logger)
			res[registers.ModelName.Name] = model
			fmt.Fprintf(out, "\n%s", output.Pretty(res))
			return nil
		},
	}

	cmd.Flags().Uint8("slave_id", 0, "Modbus slave id (specify 1 for connecting through SDongle)")
	return cmd
}

func serveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve [ip[:port]]",
		Short: "Start the monitoring service",
		Long:  "Periodically publish inverter readings to MQTT and serve live queries over HTTP",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, logger, err := setup(viper.New())
			if err != nil {
				return err
			}
			defer logger.Sync()

			address := cfg.Inverter.Host
			if len(args) == 1 {
				address = args[0]
			}
			if address == "" {
				return errors.New("no inverter address: pass ip[:port] or set inverter.host")
			}
			host, port, err := parseHostPort(address, cfg.Inverter.Port)
			if err != nil {
				return err
			}

			publisher, err := mqtt.NewPublisher(mqttConfig(cfg), logger)
			if err != nil {
				logger.Warn("MQTT connection failed, publishing disabled", zap.Error(err))
				publisher, _ = mqtt.NewPublisher(mqtt.PublisherConfig{Enabled: false}, logger)
			}

			coll := collector.NewCollector(collector.CollectorConfig{
				Dial: func() (*inverter.Session, error) {
					return inverter.Dial(dialConfig(cfg, host, port))
				},
				Publisher: publisher,
				Interval:  cfg.Collector.Interval,
				Selection: cfg.Collector.Selection,
				Discovery: cfg.MQTT.Discovery,
				Logger:    logger,
			})

			ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			collectorDone := make(chan struct{})
			go func() {
				defer close(collectorDone)
				if err := coll.Start(ctx); err != nil {
					logger.Error("Collector error", zap.Error(err))
				}
			}()

			var server *api.Server
			if cfg.API.Enabled {
				server = api.NewServer(api.ServerConfig{
					Port:    cfg.API.Port,
					Querier: coll,
					Logger:  logger,
				})

				go func() {
					if err := server.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
						logger.Error("API server error", zap.Error(err))
					}
				}()
			}

			logger.Info("Huawei solar monitor started. Press Ctrl+C to stop.", zap.String("inverter", fmt.Sprintf("%s:%d", host, port)))

			<-ctx.Done()
			logger.Info("Shutting down...")

			if server != nil {
				shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
				defer cancel()
				if err := server.Stop(shutdownCtx); err != nil {
					logger.Warn("API server forced to shutdown", zap.Error(err))
				}
			}
			<-collectorDone
			coll.Stop()

			return nil
		},
	}
}
