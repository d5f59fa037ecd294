package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/gantryhq/gantry"
)

var version = "dev"

func main() {
	root := buildRoot()
	if err := root.Execute(); err != nil {
		_, _ = fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// GlobalFlags holds persistent flags shared by all commands.
type GlobalFlags struct {
	ConfigPath string
}

// ClientFlags holds flags for commands that talk to a running daemon.
type ClientFlags struct {
	APIUrl     string
	APITimeout time.Duration
}

func buildRoot() *cobra.Command {
	globalFlags := &GlobalFlags{}
	clientFlags := &ClientFlags{}

	root := createRootCommand(globalFlags)
	root.AddCommand(
		createRunCommand(globalFlags),
		createStatusCommand(clientFlags),
		createStartCommand(clientFlags),
		createStopCommand(clientFlags),
		createVersionCommand(),
	)
	return root
}

func createRootCommand(flags *GlobalFlags) *cobra.Command {
	root := &cobra.Command{
		Use:   "gantry",
		Short: "Backend process supervisor for the bundled web UI",
		Long: `Gantry launches and supervises the bundled backend server: it picks a
free loopback port, spawns the backend bound to it, watches the captured
output for the readiness banner, and tears the whole process tree down on
shutdown. A small loopback control API lets the hosting shell query and
drive the lifecycle.

Examples:
  gantry run                       # Supervise with built-in defaults
  gantry run --config=gantry.toml  # Supervise with a config file
  gantry status                    # Query a running instance
  gantry stop                      # Ask a running instance to stop its backend`,
	}

	root.PersistentFlags().StringVar(&flags.ConfigPath, "config", "", "path to TOML config file (optional)")
	return root
}

func createRunCommand(globalFlags *GlobalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "run [config.toml]",
		Short: "Start the gantry daemon and launch the backend",
		Long: `Run the daemon in the foreground: acquire the single-instance lock,
expose the control API, and start the backend. The backend's stdout and
stderr are captured to rotating log files. SIGINT or SIGTERM shuts the
backend process tree down before exiting.

Examples:
  gantry run
  gantry run config.toml
  gantry run --config=config.toml`,
		RunE: func(cmd *cobra.Command, args []string) error {
			configPath := globalFlags.ConfigPath
			if len(args) > 0 {
				configPath = args[0]
			}
			return runDaemon(configPath)
		},
	}
}

func runDaemon(configPath string) error {
	cfg, err := gantry.LoadConfig(configPath)
	if err != nil {
		return fmt.Errorf("error loading config: %w", err)
	}

	log := gantry.NewLogger(cfg.Log.Level)
	d, err := gantry.NewDaemon(cfg, log)
	if err != nil {
		return err
	}
	defer func() { _ = d.Close() }()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := d.Start(ctx); err != nil {
		return err
	}

	st := d.Status()
	fmt.Printf("gantry serving control API on %s, backend %s on port %d\n",
		cfg.Server.Listen, st.Backend.State, st.Backend.Port)

	// Wait for shutdown signal
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh

	fmt.Println("Shutting down...")
	return d.Close()
}

func createStatusCommand(flags *ClientFlags) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show backend status from a running daemon",
		RunE: func(cmd *cobra.Command, args []string) error {
			client := newClient(flags)
			st, err := client.Status()
			if err != nil {
				return err
			}
			printJSON(st)
			return nil
		},
	}
	addClientFlags(cmd, flags, 10*time.Second)
	return cmd
}

func createStartCommand(flags *ClientFlags) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "start",
		Short: "Ask a running daemon to (re)start the backend",
		RunE: func(cmd *cobra.Command, args []string) error {
			client := newClient(flags)
			port, err := client.Start()
			if err != nil {
				return err
			}
			fmt.Printf("backend ready on port %d\n", port)
			return nil
		},
	}
	// start blocks until the backend is ready or its startup timeout fires
	addClientFlags(cmd, flags, 90*time.Second)
	return cmd
}

func createStopCommand(flags *ClientFlags) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "stop",
		Short: "Ask a running daemon to stop the backend",
		RunE: func(cmd *cobra.Command, args []string) error {
			client := newClient(flags)
			if err := client.Stop(); err != nil {
				return err
			}
			st, err := client.Status()
			if err != nil {
				return err
			}
			printJSON(st)
			return nil
		},
	}
	addClientFlags(cmd, flags, 10*time.Second)
	return cmd
}

func createVersionCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the gantry version",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Println(version)
		},
	}
}

func newClient(flags *ClientFlags) *APIClient {
	return NewAPIClient(flags.APIUrl, flags.APITimeout)
}

func addClientFlags(cmd *cobra.Command, flags *ClientFlags, timeout time.Duration) {
	cmd.Flags().StringVar(&flags.APIUrl, "api-url", "", "daemon URL (default http://127.0.0.1:9180/api)")
	cmd.Flags().DurationVar(&flags.APITimeout, "api-timeout", timeout, "request timeout")
}
