package cmd

import (
	"os"
	"os/signal"
	"syscall"

	"github.com/mattn/go-isatty"
	"github.com/spf13/cobra"
	"github.com/tidwall/pretty"

	"github.com/Rorical/PromptMachine/internal/stream"
)

var generateCmd = &cobra.Command{
	Use:   "generate",
	Short: "Send a prompt through the relay and print the answer",
	Long: `Send a prompt through the relay and print the answer to stdout. Progress,
retries and relay logs go to stderr. A JSON answer is pretty-printed.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		prompt, err := readPrompt(cmd)
		if err != nil {
			return err
		}

		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		session, err := newCLISession(cmd, prompt)
		if err != nil {
			return err
		}
		defer session.Close()

		res, err := session.Generate(ctx)
		if err != nil {
			return err
		}

		raw, err := cmd.Flags().GetBool("raw")
		if err != nil {
			return err
		}
		_, err = cmd.OutOrStdout().Write(formatResult(res, raw, isatty.IsTerminal(os.Stdout.Fd())))
		return err
	},
}

func formatResult(res *stream.ResultEvent, raw, color bool) []byte {
	if raw || !res.HasParsed() {
		out := []byte(res.Raw)
		if len(out) == 0 || out[len(out)-1] != '\n' {
			out = append(out, '\n')
		}
		return out
	}
	out := pretty.Pretty(res.Parsed)
	if color {
		out = pretty.Color(out, nil)
	}
	return out
}

func init() {
	addClientFlags(generateCmd.Flags())
	generateCmd.Flags().Bool("raw", false, "print the answer exactly as streamed")
	rootCmd.AddCommand(generateCmd)
}
