package main

import (
	"fmt"
	"io"
	"os"

	"github.com/brick-pid/simplegym/pkg/log"
	"github.com/brick-pid/simplegym/pkg/worker"
	"github.com/brick-pid/simplegym/pkg/wrapper"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"
)

var workerCmd = &cobra.Command{
	Use:    "worker",
	Short:  "Run a worker subprocess (internal)",
	Hidden: true,
	Long: `Run the worker serve loop over stdin/stdout. The router spawns this
command once per pool slot; it is not meant to be invoked by hand.`,
	RunE: runWorker,
}

func init() {
	workerCmd.Flags().String("wrapper", "", "Registered wrapper name")
	workerCmd.Flags().Int("worker-id", 0, "This worker's index in [0, parallel-actor)")
	workerCmd.Flags().Int("parallel-actor", 1, "Pool width")
	workerCmd.Flags().String("wrapper-config", "", "Path to a YAML wrapper config file")
	_ = workerCmd.MarkFlagRequired("wrapper")
}

func runWorker(cmd *cobra.Command, args []string) error {
	wrapperName, _ := cmd.Flags().GetString("wrapper")
	workerID, _ := cmd.Flags().GetInt("worker-id")
	parallel, _ := cmd.Flags().GetInt("parallel-actor")
	configPath, _ := cmd.Flags().GetString("wrapper-config")
	logLevel, _ := rootCmd.PersistentFlags().GetString("log-level")

	// Re-initialize logging onto stderr: stdout is the pipe.
	log.InitWorker(log.Level(logLevel), workerID)

	factory, err := wrapper.Lookup(wrapperName)
	if err != nil {
		return err
	}

	wrapperCfg, err := loadWrapperConfig(configPath)
	if err != nil {
		return err
	}

	w := worker.New(&stdioPipe{}, workerID, parallel, factory, wrapperCfg)
	return w.Serve()
}

// loadWrapperConfig reads an optional YAML wrapper config file.
func loadWrapperConfig(path string) (wrapper.Config, error) {
	if path == "" {
		return wrapper.Config{}, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read wrapper config: %w", err)
	}
	var cfg wrapper.Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse wrapper config %s: %w", path, err)
	}
	return cfg, nil
}

// stdioPipe is the worker's end of the IPC pipe: reads from stdin, writes
// to stdout. Closing closes stdout so the router sees EOF.
type stdioPipe struct{}

func (*stdioPipe) Read(b []byte) (int, error)  { return os.Stdin.Read(b) }
func (*stdioPipe) Write(b []byte) (int, error) { return os.Stdout.Write(b) }

var _ io.ReadWriteCloser = (*stdioPipe)(nil)

func (*stdioPipe) Close() error {
	return os.Stdout.Close()
}
