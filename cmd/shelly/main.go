// Shelly CLI — инструмент командной строки для управления
// flows, runs, batches и schedules через HTTP API.
//
// Использование:
//
//	shelly [--api-url URL] [--json] <command> <subcommand> [flags]
//
// Команды:
//
//	flow       Управление flows
//	run        Запуск и просмотр runs
//	batch      Управление batches
//	input-set  Наборы входов для batches
//	schedule   Управление schedules
//	providers  Каталог LLM-провайдеров
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/mimcmahon20/Shelly/internal/cli"
)

// version задаётся через ldflags при сборке.
var version = "dev"

func main() {
	var apiURL string
	var jsonOutput bool

	defaultURL := "http://localhost:8080"
	if v := os.Getenv("SHELLY_API_URL"); v != "" {
		defaultURL = v
	}

	rootCmd := &cobra.Command{
		Use:           "shelly",
		Short:         "Shelly CLI — run multi-agent LLM flows",
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	rootCmd.PersistentFlags().StringVar(&apiURL, "api-url", defaultURL, "API server URL (env SHELLY_API_URL)")
	rootCmd.PersistentFlags().BoolVar(&jsonOutput, "json", false, "Output in JSON format")

	clientFn := func() *cli.Client { return cli.NewClient(apiURL) }
	outputFn := func() *cli.Output { return cli.NewOutput(jsonOutput) }

	rootCmd.AddCommand(
		cli.NewFlowCmd(clientFn, outputFn),
		cli.NewRunCmd(clientFn, outputFn),
		cli.NewBatchCmd(clientFn, outputFn),
		cli.NewInputSetCmd(clientFn, outputFn),
		cli.NewScheduleCmd(clientFn, outputFn),
		cli.NewProvidersCmd(clientFn, outputFn),
	)

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}
