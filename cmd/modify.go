package cmd

import (
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/Rorical/PromptMachine/internal/diff"
	"github.com/Rorical/PromptMachine/ui/styles"
)

var modifyCmd = &cobra.Command{
	Use:   "modify [instruction...]",
	Short: "Rewrite a prompt following an instruction",
	Long: `Ask the model to rewrite a prompt following an instruction. The line diff goes
to stderr and the rewritten prompt to stdout, or back into the prompt file
with --write.`,
	Args: cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		write, err := cmd.Flags().GetBool("write")
		if err != nil {
			return err
		}
		path, err := cmd.Flags().GetString("prompt-file")
		if err != nil {
			return err
		}
		if write && (path == "" || path == "-") {
			return errors.New("--write needs --prompt-file")
		}

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

		out, err := session.Modify(ctx, strings.Join(args, " "))
		if err != nil {
			return err
		}

		printDiff(cmd.ErrOrStderr(), out.Overlay)

		if write {
			if err := os.WriteFile(path, []byte(out.Prompt+"\n"), 0o644); err != nil {
				return fmt.Errorf("failed to write prompt file: %w", err)
			}
			return nil
		}
		_, err = fmt.Fprintln(cmd.OutOrStdout(), out.Prompt)
		return err
	},
}

func printDiff(w io.Writer, lines []diff.Line) {
	added, removed := diff.Stats(lines)
	if added == 0 && removed == 0 {
		fmt.Fprintln(w, styles.BannerStyle().Render("No changes"))
		return
	}
	fmt.Fprintln(w, styles.BannerStyle().Render(fmt.Sprintf("+%d -%d", added, removed)))
	for _, line := range lines {
		switch line.Kind {
		case diff.Added:
			fmt.Fprintln(w, styles.AddedStyle().Render("+ "+line.Text))
		case diff.Removed:
			fmt.Fprintln(w, styles.RemovedStyle().Render("- "+line.Text))
		default:
			fmt.Fprintln(w, "  "+line.Text)
		}
	}
}

func init() {
	addClientFlags(modifyCmd.Flags())
	modifyCmd.Flags().BoolP("write", "w", false, "write the rewritten prompt back to --prompt-file")
	rootCmd.AddCommand(modifyCmd)
}
