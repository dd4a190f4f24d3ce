package cli

import (
	"fmt"
	"io"
	"unicode/utf8"

	"github.com/muesli/reflow/indent"
	"github.com/muesli/reflow/wordwrap"
	"github.com/spf13/cobra"

	"github.com/Dicklesworthstone/crewgate/internal/budget"
	"github.com/Dicklesworthstone/crewgate/internal/output"
)

func newBudgetCmd() *cobra.Command {
	var counterName string

	cmd := &cobra.Command{
		Use:   "budget",
		Short: "Count tokens and check them against a budget",
	}
	cmd.PersistentFlags().StringVar(&counterName, "counter", "", "Token counter: approx or tiktoken (default from config)")

	newTracker := func(maxTokens int) *budget.Tracker {
		name := cfg.Budget.Counter
		if counterName != "" {
			name = counterName
		}
		if maxTokens <= 0 {
			maxTokens = cfg.Budget.DefaultMaxTokens
		}
		counter := budget.NewCounter(name, cfg.Budget.Encoding, logger)
		return budget.New(budget.Config{DefaultMaxTokens: maxTokens}, counter, logger)
	}

	cmd.AddCommand(newBudgetCountCmd(newTracker))
	cmd.AddCommand(newBudgetCheckCmd(newTracker))
	cmd.AddCommand(newBudgetPromptCmd(newTracker))
	return cmd
}

type trackerFactory func(maxTokens int) *budget.Tracker

func newBudgetCountCmd(newTracker trackerFactory) *cobra.Command {
	return &cobra.Command{
		Use:   "count [file|-]",
		Short: "Count the tokens in a file or stdin",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			text, err := readInput(cmd, args)
			if err != nil {
				return err
			}
			t := newTracker(0)

			f, err := newFormatter(cmd)
			if err != nil {
				return err
			}
			return f.Output(countResult{output.TokenCountResponse{
				Counter: t.Counter().Name(),
				Tokens:  t.CountTokens(text),
				Chars:   utf8.RuneCountInString(text),
			}})
		},
	}
}

type countResult struct {
	output.TokenCountResponse
}

func (r countResult) JSON() interface{} { return r.TokenCountResponse }

func (r countResult) Text(w io.Writer) error {
	_, err := fmt.Fprintf(w, "%d tokens (%d chars, %s)\n", r.Tokens, r.Chars, r.Counter)
	return err
}

func newBudgetCheckCmd(newTracker trackerFactory) *cobra.Command {
	var maxTokens, used int
	var agent string

	cmd := &cobra.Command{
		Use:   "check [file|-]",
		Short: "Classify token usage against a budget",
		Long: `Add the tokens of a file (or stdin) to --used and classify the total
against --max: ok below 80%, warning from 80%, critical from 95%.

Examples:
  crewgate budget check --max 200000 transcript.txt
  crewgate budget check --max 1000 --used 900 - < turn.txt`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			text, err := readInput(cmd, args)
			if err != nil {
				return err
			}
			t := newTracker(maxTokens)
			t.AddTokens(agent, used)
			t.Add(agent, text)

			tokens, ceiling, ratio := t.Usage(agent)
			status, msg := t.Classify(agent)

			f, err := newFormatter(cmd)
			if err != nil {
				return err
			}
			return f.Output(checkResult{output.BudgetCheckResponse{
				Tokens:       tokens,
				MaxTokens:    ceiling,
				UsagePercent: ratio * 100,
				Status:       string(status),
				Message:      msg,
				ShouldSleep:  t.ShouldSleep(agent),
			}})
		},
	}

	cmd.Flags().IntVar(&maxTokens, "max", 0, "Token budget (default from config)")
	cmd.Flags().IntVar(&used, "used", 0, "Tokens already consumed before this input")
	cmd.Flags().StringVar(&agent, "agent", "agent", "Agent identifier")
	return cmd
}

type checkResult struct {
	output.BudgetCheckResponse
}

func (r checkResult) JSON() interface{} { return r.BudgetCheckResponse }

func (r checkResult) Text(w io.Writer) error {
	s := newStyler(w)
	fmt.Fprintf(w, "%s: %d/%d tokens (%.1f%%)\n", s.status(r.Status), r.Tokens, r.MaxTokens, r.UsagePercent)
	if r.Message != "" {
		fmt.Fprintln(w, indent.String(r.Message, 2))
	}
	if r.ShouldSleep {
		fmt.Fprintln(w, indent.String(s.fg(colorError, "agent should hand off and be replaced"), 2))
	}
	return nil
}

func newBudgetPromptCmd(newTracker trackerFactory) *cobra.Command {
	var maxTokens, used int
	var agent string

	cmd := &cobra.Command{
		Use:   "prompt [file|-]",
		Short: "Print the handoff prompt for an agent about to be replaced",
		Long: `Print the instruction asking an agent to summarize its work for a
successor. The file (or stdin) supplies the agent's recent context; only
its first 2000 characters are embedded.

Examples:
  crewgate budget prompt --agent coder --max 200000 --used 192000 context.txt`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			recent, err := readInput(cmd, args)
			if err != nil {
				return err
			}
			t := newTracker(maxTokens)
			t.AddTokens(agent, used)
			prompt := t.SummaryPrompt(agent, recent)

			w := cmd.OutOrStdout()
			if IsJSONOutput() {
				return output.WriteJSON(w, map[string]string{"agent": agent, "prompt": prompt}, true)
			}
			if isTerminal(w) {
				prompt = indent.String(wordwrap.String(prompt, terminalWidth(w)-2), 2)
			}
			_, err = fmt.Fprint(w, prompt)
			return err
		},
	}

	cmd.Flags().IntVar(&maxTokens, "max", 0, "Token budget (default from config)")
	cmd.Flags().IntVar(&used, "used", 0, "Tokens the agent has consumed")
	cmd.Flags().StringVar(&agent, "agent", "agent", "Agent identifier")
	return cmd
}
