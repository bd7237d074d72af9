package cli

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/spf13/cobra"
)

// NewBatchCmd создаёт группу команд для управления batches.
func NewBatchCmd(clientFn func() *Client, outputFn func() *Output) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "batch",
		Short: "Manage batches",
	}

	cmd.AddCommand(
		newBatchListCmd(clientFn, outputFn),
		newBatchStartCmd(clientFn, outputFn),
		newBatchShowCmd(clientFn, outputFn),
		newBatchAbortCmd(clientFn, outputFn),
	)

	return cmd
}

// NewInputSetCmd создаёт группу команд для наборов входов.
func NewInputSetCmd(clientFn func() *Client, outputFn func() *Output) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "input-set",
		Short: "Manage input sets",
	}

	cmd.AddCommand(
		newInputSetListCmd(clientFn, outputFn),
		newInputSetCreateCmd(clientFn, outputFn),
		newInputSetDeleteCmd(clientFn, outputFn),
	)

	return cmd
}

var batchHeaders = []string{"ID", "NAME", "FLOWS", "STATUS", "PROGRESS", "CREATED"}

func batchRow(b BatchResponse) []string {
	return []string{
		b.ID,
		b.Name,
		strings.Join(b.FlowIDs, ","),
		b.Status,
		fmt.Sprintf("%d/%d", b.Progress.Completed, b.Progress.Total),
		b.CreatedAt,
	}
}

func newBatchListCmd(clientFn func() *Client, outputFn func() *Output) *cobra.Command {
	var limit int

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List recent batches",
		RunE: func(cmd *cobra.Command, args []string) error {
			client := clientFn()
			out := outputFn()

			batches, err := client.ListBatches(limit)
			if err != nil {
				return err
			}

			rows := make([][]string, len(batches))
			for i, b := range batches {
				rows[i] = batchRow(b)
			}

			out.Print(batchHeaders, rows, batches)
			return nil
		},
	}

	cmd.Flags().IntVar(&limit, "limit", 0, "Maximum number of results")

	return cmd
}

func newBatchStartCmd(clientFn func() *Client, outputFn func() *Output) *cobra.Command {
	var name string
	var flowIDs []string
	var inputs []string
	var inputSetID string

	cmd := &cobra.Command{
		Use:   "start",
		Short: "Run flows against a list of inputs",
		RunE: func(cmd *cobra.Command, args []string) error {
			client := clientFn()
			out := outputFn()

			if len(inputs) == 0 && inputSetID == "" {
				return fmt.Errorf("either --input or --input-set is required")
			}

			b, err := client.StartBatch(CreateBatchRequest{
				Name:       name,
				FlowIDs:    flowIDs,
				Inputs:     inputs,
				InputSetID: inputSetID,
			})
			if err != nil {
				return err
			}

			out.Success(fmt.Sprintf("Batch started: %s", b.ID))
			out.Print(batchHeaders, [][]string{batchRow(*b)}, b)
			return nil
		},
	}

	cmd.Flags().StringVar(&name, "name", "", "Batch name")
	cmd.Flags().StringSliceVar(&flowIDs, "flow", nil, "Flow ID (repeatable, required)")
	cmd.Flags().StringArrayVar(&inputs, "input", nil, "Input value (repeatable)")
	cmd.Flags().StringVar(&inputSetID, "input-set", "", "Input set ID")
	cmd.MarkFlagRequired("flow")

	return cmd
}

func newBatchShowCmd(clientFn func() *Client, outputFn func() *Output) *cobra.Command {
	return &cobra.Command{
		Use:   "show ID",
		Short: "Show batch progress",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client := clientFn()
			out := outputFn()

			b, err := client.GetBatch(args[0])
			if err != nil {
				return err
			}

			out.Print(batchHeaders, [][]string{batchRow(*b)}, b)
			return nil
		},
	}
}

func newBatchAbortCmd(clientFn func() *Client, outputFn func() *Output) *cobra.Command {
	return &cobra.Command{
		Use:   "abort ID",
		Short: "Abort a running batch",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client := clientFn()
			out := outputFn()

			if err := client.AbortBatch(args[0]); err != nil {
				return err
			}

			out.Success(fmt.Sprintf("Abort requested: %s", args[0]))
			return nil
		},
	}
}

func newInputSetListCmd(clientFn func() *Client, outputFn func() *Output) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List input sets",
		RunE: func(cmd *cobra.Command, args []string) error {
			client := clientFn()
			out := outputFn()

			sets, err := client.ListInputSets()
			if err != nil {
				return err
			}

			headers := []string{"ID", "NAME", "INPUTS", "CREATED"}
			rows := make([][]string, len(sets))
			for i, s := range sets {
				rows[i] = []string{s.ID, s.Name, strconv.Itoa(len(s.Inputs)), s.CreatedAt}
			}

			out.Print(headers, rows, sets)
			return nil
		},
	}
}

func newInputSetCreateCmd(clientFn func() *Client, outputFn func() *Output) *cobra.Command {
	var name string
	var inputs []string

	cmd := &cobra.Command{
		Use:   "create",
		Short: "Create an input set",
		RunE: func(cmd *cobra.Command, args []string) error {
			client := clientFn()
			out := outputFn()

			set, err := client.CreateInputSet(CreateInputSetRequest{Name: name, Inputs: inputs})
			if err != nil {
				return err
			}

			out.Success(fmt.Sprintf("Input set created: %s", set.ID))
			out.Print(
				[]string{"ID", "NAME", "INPUTS"},
				[][]string{{set.ID, set.Name, strconv.Itoa(len(set.Inputs))}},
				set,
			)
			return nil
		},
	}

	cmd.Flags().StringVar(&name, "name", "", "Input set name (required)")
	cmd.Flags().StringArrayVar(&inputs, "input", nil, "Input value (repeatable, required)")
	cmd.MarkFlagRequired("name")
	cmd.MarkFlagRequired("input")

	return cmd
}

func newInputSetDeleteCmd(clientFn func() *Client, outputFn func() *Output) *cobra.Command {
	return &cobra.Command{
		Use:   "delete ID",
		Short: "Delete an input set",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client := clientFn()
			out := outputFn()

			if err := client.DeleteInputSet(args[0]); err != nil {
				return err
			}

			out.Success(fmt.Sprintf("Input set deleted: %s", args[0]))
			return nil
		},
	}
}
