// upbctl is a command-line tool for UPB powerline networks. It connects to a
// PIM over serial or TCP, loads an UPStart export for device names, and offers
// an interactive console plus an MQTT bridge daemon.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	upb "github.com/gwww/upb-lib"
	"github.com/gwww/upb-lib/logging"
)

var (
	flagConfig string
	flagURL    string
	flagExport string
	flagFlags  string
)

func main() {
	root := &cobra.Command{
		Use:           "upbctl",
		Short:         "Control UPB devices through a powerline interface module",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVarP(&flagConfig, "config", "c", "", "path to YAML config file")
	root.PersistentFlags().StringVar(&flagURL, "url", "", "PIM URL (serial://dev[:baud] or tcp://host[:port])")
	root.PersistentFlags().StringVar(&flagExport, "export", "", "path to UPStart export file")
	root.PersistentFlags().StringVar(&flagFlags, "flags", "", "comma-separated behavior flags")

	root.AddCommand(consoleCommand(), bridgeCommand())

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "upbctl:", err)
		os.Exit(1)
	}
}

// newClient loads configuration and builds a connected-ready client. The
// caller owns Disconnect.
func newClient() (*upb.Client, fileConfig, *logging.Logger, error) {
	cfg, err := loadConfig(flagConfig)
	if err != nil {
		return nil, fileConfig{}, nil, err
	}

	logger := logging.New(cfg.Logging)

	clientCfg, err := cfg.clientConfig()
	if err != nil {
		return nil, fileConfig{}, nil, err
	}
	client, err := upb.NewClient(clientCfg)
	if err != nil {
		return nil, fileConfig{}, nil, err
	}
	client.SetLogger(logger.With("component", "upb"))
	return client, cfg, logger, nil
}

// signalContext returns a context cancelled on SIGINT or SIGTERM.
func signalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
}
