package cli

import (
	"strings"

	"github.com/spf13/cobra"
)

// NewProvidersCmd создаёт команду просмотра каталога LLM-провайдеров.
func NewProvidersCmd(clientFn func() *Client, outputFn func() *Output) *cobra.Command {
	return &cobra.Command{
		Use:   "providers",
		Short: "List LLM providers and models",
		RunE: func(cmd *cobra.Command, args []string) error {
			client := clientFn()
			out := outputFn()

			providers, err := client.ListProviders()
			if err != nil {
				return err
			}

			headers := []string{"NAME", "LABEL", "DEFAULT_MODEL", "MODELS"}
			rows := make([][]string, len(providers))
			for i, p := range providers {
				rows[i] = []string{p.Name, p.Label, p.DefaultModel, strings.Join(p.Models, ",")}
			}

			out.Print(headers, rows, providers)
			return nil
		},
	}
}
