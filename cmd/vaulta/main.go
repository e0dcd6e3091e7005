// Command vaulta manages clients and assets of a Vaulta deployment from the
// shell. Run "vaulta --help" for the command list.
package main

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"os/signal"

	"github.com/spf13/cobra"

	vaulta "github.com/vaulta/vaulta-go"
	"github.com/vaulta/vaulta-go/internal/config"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		stop()
		os.Exit(1)
	}
}

// app is the state shared by all subcommands of one invocation.
type app struct {
	cfgFile string
	cfg     config.Config
	logger  *slog.Logger
	vc      *vaulta.Client
}

func newRootCmd() *cobra.Command {
	a := &app{}

	cmd := &cobra.Command{
		Use:   "vaulta",
		Short: "Manage clients and assets of a Vaulta deployment.",
		Long: `vaulta talks to the Vaulta asset management API.

Settings are read from flags, VAULTA_* environment variables and a
vaulta.yaml file in the user config directory or the working directory.`,
		Version:       vaulta.Version,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return a.init(cmd)
		},
	}

	f := cmd.PersistentFlags()
	f.StringVar(&a.cfgFile, "config", "", "config file (default is <user config dir>/vaulta/vaulta.yaml or ./vaulta.yaml)")
	f.String("base-url", "", "API root, e.g. https://vaulta.example.com/api")
	f.String("token", "", "bearer token")
	f.Duration("timeout", 0, "per call timeout, retries included")
	f.Int("max-retries", 0, "retries after the first attempt, 0 disables")
	f.String("log-level", "", `log level ("debug", "info", "warn", "error")`)
	f.String("output", "", `output format ("json", "yaml")`)

	cmd.AddCommand(newClientsCmd(a))
	cmd.AddCommand(newAssetsCmd(a))
	cmd.AddCommand(newConfigCmd(a))

	return cmd
}

// allowMissingConfig marks commands that may name a --config file that does
// not exist yet.
const allowMissingConfig = "allow-missing-config"

// init resolves the configuration and the logger.
func (a *app) init(cmd *cobra.Command) error {
	file := a.cfgFile
	if _, ok := cmd.Annotations[allowMissingConfig]; ok && file != "" {
		if _, err := os.Stat(file); errors.Is(err, fs.ErrNotExist) {
			file = ""
		}
	}

	cfg, err := config.Load(cmd, file)
	if err != nil {
		return err
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	level, _ := cfg.Level()
	a.cfg = cfg
	a.logger = slog.New(slog.NewTextHandler(cmd.ErrOrStderr(), &slog.HandlerOptions{Level: level}))
	a.logger.Debug("configuration loaded", "base_url", cfg.BaseURL, "timeout", cfg.Timeout, "max_retries", cfg.MaxRetries)

	return nil
}

// api returns the API client, building it on first use.
func (a *app) api() (*vaulta.Client, error) {
	if a.vc != nil {
		return a.vc, nil
	}

	if a.cfg.BaseURL == "" {
		return nil, errors.New("no base url configured: set --base-url, VAULTA_BASE_URL or base_url in vaulta.yaml")
	}

	vc, err := vaulta.New(a.cfg.BaseURL,
		vaulta.WithToken(a.cfg.APIToken),
		vaulta.WithTimeout(a.cfg.Timeout),
		vaulta.WithMaxRetries(a.cfg.MaxRetries),
		vaulta.WithLogger(a.logger),
	)
	if err != nil {
		return nil, err
	}
	a.vc = vc

	return vc, nil
}

// print renders v to the command output in the configured format.
func (a *app) print(cmd *cobra.Command, v any) error {
	return render(cmd.OutOrStdout(), a.cfg.Output, v)
}

// raw copies fetched content to the command output.
func (a *app) raw(cmd *cobra.Command, data []byte) error {
	_, err := cmd.OutOrStdout().Write(data)
	return err
}
