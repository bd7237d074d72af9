package cli

import (
	"encoding/json"
	"fmt"
	"os"
	"strconv"

	"github.com/spf13/cobra"
)

// NewFlowCmd создаёт группу команд для управления flows.
func NewFlowCmd(clientFn func() *Client, outputFn func() *Output) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "flow",
		Short: "Manage flows",
	}

	cmd.AddCommand(
		newFlowListCmd(clientFn, outputFn),
		newFlowShowCmd(clientFn, outputFn),
		newFlowCreateCmd(clientFn, outputFn),
		newFlowImportCmd(clientFn, outputFn),
		newFlowExportCmd(clientFn, outputFn),
		newFlowDeleteCmd(clientFn, outputFn),
	)

	return cmd
}

func newFlowListCmd(clientFn func() *Client, outputFn func() *Output) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List all flows",
		RunE: func(cmd *cobra.Command, args []string) error {
			client := clientFn()
			out := outputFn()

			flows, err := client.ListFlows()
			if err != nil {
				return err
			}

			headers := []string{"ID", "NAME", "NODES", "EDGES", "UPDATED"}
			rows := make([][]string, len(flows))
			for i, f := range flows {
				rows[i] = []string{f.ID, f.Name, strconv.Itoa(f.Nodes), strconv.Itoa(f.Edges), f.UpdatedAt}
			}

			out.Print(headers, rows, flows)
			return nil
		},
	}
}

func newFlowShowCmd(clientFn func() *Client, outputFn func() *Output) *cobra.Command {
	return &cobra.Command{
		Use:   "show ID",
		Short: "Show flow details",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client := clientFn()
			out := outputFn()

			flow, err := client.GetFlow(args[0])
			if err != nil {
				return err
			}

			out.Print(
				[]string{"ID", "NAME", "NODES", "EDGES", "CREATED"},
				[][]string{{flow.ID, flow.Name, strconv.Itoa(len(flow.Nodes)), strconv.Itoa(len(flow.Edges)), flow.CreatedAt}},
				flow,
			)
			return nil
		},
	}
}

func newFlowCreateCmd(clientFn func() *Client, outputFn func() *Output) *cobra.Command {
	var file string

	cmd := &cobra.Command{
		Use:   "create",
		Short: "Create a flow from a JSON file",
		RunE: func(cmd *cobra.Command, args []string) error {
			client := clientFn()
			out := outputFn()

			data, err := os.ReadFile(file)
			if err != nil {
				return fmt.Errorf("failed to read flow file: %w", err)
			}

			// Валидируем что это валидный JSON
			if !json.Valid(data) {
				return fmt.Errorf("flow file is not valid JSON, use 'flow import' for YAML")
			}

			flow, err := client.CreateFlow(data)
			if err != nil {
				return err
			}

			out.Success(fmt.Sprintf("Flow created: %s", flow.ID))
			out.Print(
				[]string{"ID", "NAME", "NODES", "EDGES"},
				[][]string{{flow.ID, flow.Name, strconv.Itoa(len(flow.Nodes)), strconv.Itoa(len(flow.Edges))}},
				flow,
			)
			return nil
		},
	}

	cmd.Flags().StringVar(&file, "file", "", "Path to flow JSON file (required)")
	cmd.MarkFlagRequired("file")

	return cmd
}

func newFlowImportCmd(clientFn func() *Client, outputFn func() *Output) *cobra.Command {
	var overwrite bool

	cmd := &cobra.Command{
		Use:   "import FILE",
		Short: "Import a flow from a JSON or YAML file",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client := clientFn()
			out := outputFn()

			data, err := os.ReadFile(args[0])
			if err != nil {
				return fmt.Errorf("failed to read flow file: %w", err)
			}

			flow, err := client.ImportFlow(data, overwrite)
			if err != nil {
				return err
			}

			out.Success(fmt.Sprintf("Flow imported: %s", flow.ID))
			out.Print(
				[]string{"ID", "NAME", "NODES", "EDGES"},
				[][]string{{flow.ID, flow.Name, strconv.Itoa(len(flow.Nodes)), strconv.Itoa(len(flow.Edges))}},
				flow,
			)
			return nil
		},
	}

	cmd.Flags().BoolVar(&overwrite, "overwrite", false, "Replace an existing flow with the same ID")

	return cmd
}

func newFlowExportCmd(clientFn func() *Client, outputFn func() *Output) *cobra.Command {
	return &cobra.Command{
		Use:   "export ID",
		Short: "Print a flow as YAML",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client := clientFn()
			out := outputFn()

			doc, err := client.ExportFlow(args[0])
			if err != nil {
				return err
			}

			out.Raw(doc)
			return nil
		},
	}
}

func newFlowDeleteCmd(clientFn func() *Client, outputFn func() *Output) *cobra.Command {
	return &cobra.Command{
		Use:   "delete ID",
		Short: "Delete a flow",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client := clientFn()
			out := outputFn()

			if err := client.DeleteFlow(args[0]); err != nil {
				return err
			}

			out.Success(fmt.Sprintf("Flow deleted: %s", args[0]))
			return nil
		},
	}
}
