package cli

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"github.com/spf13/cobra"
)

// NewRunCmd создаёт группу команд для управления runs.
func NewRunCmd(clientFn func() *Client, outputFn func() *Output) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Manage runs",
	}

	cmd.AddCommand(
		newRunListCmd(clientFn, outputFn),
		newRunStartCmd(clientFn, outputFn),
		newRunShowCmd(clientFn, outputFn),
	)

	return cmd
}

func newRunListCmd(clientFn func() *Client, outputFn func() *Output) *cobra.Command {
	var flowID string
	var batchID string
	var limit int

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List runs",
		RunE: func(cmd *cobra.Command, args []string) error {
			client := clientFn()
			out := outputFn()

			runs, err := client.ListRuns(ListRunsOpts{
				FlowID:  flowID,
				BatchID: batchID,
				Limit:   limit,
			})
			if err != nil {
				return err
			}

			headers := []string{"ID", "FLOW_ID", "STATUS", "TOKENS", "COST_USD", "STARTED"}
			rows := make([][]string, len(runs))
			for i, r := range runs {
				rows[i] = runRow(r)
			}

			out.Print(headers, rows, runs)
			return nil
		},
	}

	cmd.Flags().StringVar(&flowID, "flow-id", "", "Filter by flow ID")
	cmd.Flags().StringVar(&batchID, "batch-id", "", "Filter by batch ID")
	cmd.Flags().IntVar(&limit, "limit", 0, "Maximum number of results")

	return cmd
}

func newRunStartCmd(clientFn func() *Client, outputFn func() *Output) *cobra.Command {
	var input string
	var jsonInput bool
	var stream bool
	var apiKeys map[string]string

	cmd := &cobra.Command{
		Use:   "start FLOW_ID",
		Short: "Run a flow",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client := clientFn().WithAPIKeys(apiKeys)
			out := outputFn()

			var value any = input
			if jsonInput {
				if err := json.Unmarshal([]byte(input), &value); err != nil {
					return fmt.Errorf("invalid JSON for --input: %w", err)
				}
			}

			if !stream {
				run, err := client.StartRun(args[0], value)
				if err != nil {
					return err
				}
				out.Success(fmt.Sprintf("Run %s: %s", run.ID, run.Status))
				out.Print(
					[]string{"ID", "FLOW_ID", "STATUS", "TOKENS", "COST_USD", "STARTED"},
					[][]string{runRow(*run)},
					run,
				)
				if !out.jsonMode && run.FinalOutput != "" {
					out.Line("\n" + run.FinalOutput + "\n")
				}
				return nil
			}

			runID, err := client.StreamRun(args[0], value, streamPrinter(out))
			if err != nil {
				return err
			}
			out.Success(fmt.Sprintf("Run finished: %s", runID))
			return nil
		},
	}

	cmd.Flags().StringVar(&input, "input", "", "Run input (required)")
	cmd.Flags().BoolVar(&jsonInput, "json-input", false, "Parse --input as JSON")
	cmd.Flags().BoolVar(&stream, "stream", false, "Stream run events as they happen")
	cmd.Flags().StringToStringVar(&apiKeys, "api-key", nil, "Provider API key as PROVIDER=KEY (repeatable)")
	cmd.MarkFlagRequired("input")

	return cmd
}

func newRunShowCmd(clientFn func() *Client, outputFn func() *Output) *cobra.Command {
	return &cobra.Command{
		Use:   "show ID",
		Short: "Show run details with node results",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client := clientFn()
			out := outputFn()

			run, err := client.GetRun(args[0])
			if err != nil {
				return err
			}

			if out.jsonMode {
				out.JSON(run)
				return nil
			}

			headers := []string{"NODE_ID", "TYPE", "TOKENS", "LATENCY_MS", "ERROR"}
			rows := make([][]string, len(run.NodeResults))
			for i, nr := range run.NodeResults {
				rows[i] = []string{nr.NodeID, nr.NodeType, strconv.Itoa(nr.TokensUsed), strconv.FormatInt(nr.LatencyMs, 10), nr.Error}
			}

			out.Success(fmt.Sprintf("Run %s (%s), flow %s", run.ID, run.Status, run.FlowID))
			out.Table(headers, rows)
			if run.FinalOutput != "" {
				out.Line("\n" + run.FinalOutput + "\n")
			}
			return nil
		},
	}
}

func runRow(r RunResponse) []string {
	return []string{
		r.ID,
		r.FlowID,
		r.Status,
		strconv.Itoa(r.Tokens.Total),
		strconv.FormatFloat(r.CostUSD, 'f', 6, 64),
		r.StartedAt,
	}
}

// streamPrinter печатает события run.
// В JSON-режиме каждое событие выводится отдельной строкой (NDJSON).
func streamPrinter(out *Output) func(StreamEvent) error {
	var streamed bool
	return func(e StreamEvent) error {
		if out.jsonMode {
			out.Line(fmt.Sprintf(`{"type":%q,"data":%s}`+"\n", e.Type, e.Data))
			return nil
		}

		switch e.Type {
		case "delta":
			var d struct {
				Text string `json:"text"`
			}
			if err := json.Unmarshal(e.Data, &d); err == nil {
				out.Line(d.Text)
				streamed = streamed || d.Text != ""
			}
		case "node_result":
			var nr NodeResultResponse
			if err := json.Unmarshal(e.Data, &nr); err != nil {
				return nil
			}
			msg := fmt.Sprintf("[%s] %s done in %dms", nr.NodeType, nr.NodeID, nr.LatencyMs)
			if nr.Error != "" {
				msg += ": " + nr.Error
			}
			out.Success(msg)
		case "tool_call":
			var tc struct {
				NodeID   string `json:"node_id"`
				ToolCall struct {
					ToolName string `json:"tool_name"`
				} `json:"tool_call"`
			}
			if err := json.Unmarshal(e.Data, &tc); err == nil {
				out.Success(fmt.Sprintf("[tool] %s called %s", tc.NodeID, tc.ToolCall.ToolName))
			}
		case "interrupted":
			var in struct {
				RunID   string `json:"run_id"`
				LastSeq int64  `json:"last_seq"`
			}
			if err := json.Unmarshal(e.Data, &in); err != nil {
				return nil
			}
			if streamed {
				out.Line("\n")
			}
			out.Success(fmt.Sprintf("Stream interrupted after event %d, see 'shelly run show %s'", in.LastSeq, in.RunID))
		case "run_completed", "run_failed":
			var rd struct {
				Status      string     `json:"status"`
				FinalOutput string     `json:"final_output"`
				Tokens      TokenUsage `json:"tokens"`
			}
			if err := json.Unmarshal(e.Data, &rd); err != nil {
				return nil
			}
			switch {
			case streamed:
				out.Line("\n")
			case rd.FinalOutput != "":
				out.Line(strings.TrimRight(rd.FinalOutput, "\n") + "\n")
			}
			out.Success(fmt.Sprintf("Status: %s, tokens: %d", rd.Status, rd.Tokens.Total))
		}
		return nil
	}
}
