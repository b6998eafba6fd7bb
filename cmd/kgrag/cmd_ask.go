package main

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/wouteroostervld/kgrag/pkg/query"
)

// sampleQuestions are asked when no question is given and stdin is a terminal
var sampleQuestions = []string{
	"What is the relationship between the Normans and the Vikings?",
	"Tell me about the religion and language of the Normans.",
	"Did the Normans interact with the Franks?",
}

func newAskCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "ask [question...]",
		Short: "Answer questions against the index",
		Long: `Answer each question with the closest chunks of the index. Questions are
taken from the arguments, or one per line from stdin when it is piped. A
failed question is reported and the next one is still asked.`,
		Example: `  kgrag ask "Who was Rollo?"
  cat questions.txt | kgrag ask`,
		RunE: func(cmd *cobra.Command, args []string) error {
			questions, err := collectQuestions(args, cmd.InOrStdin())
			if err != nil {
				return err
			}

			ctx := cmd.Context()
			a, err := newApp(ctx, profile)
			if err != nil {
				return err
			}
			defer a.Close(ctx)

			f, err := a.facade()
			if err != nil {
				return err
			}

			var failed int
			for i, q := range questions {
				if i > 0 {
					fmt.Fprintln(cmd.OutOrStdout())
				}
				ans := f.Answer(ctx, q)
				printAnswer(cmd.OutOrStdout(), ans)
				if ans.Failed() {
					failed++
				}
				if ctx.Err() != nil {
					return ctx.Err()
				}
			}
			if failed == len(questions) {
				return fmt.Errorf("all %d questions failed", failed)
			}
			return nil
		},
	}
	return cmd
}

// collectQuestions returns args, else the non-blank lines of a piped in,
// else the sample questions.
func collectQuestions(args []string, in io.Reader) ([]string, error) {
	if len(args) > 0 {
		return args, nil
	}
	if f, ok := in.(*os.File); ok {
		info, err := f.Stat()
		if err != nil || info.Mode()&os.ModeCharDevice != 0 {
			return sampleQuestions, nil
		}
	}

	var questions []string
	scanner := bufio.NewScanner(in)
	for scanner.Scan() {
		if q := strings.TrimSpace(scanner.Text()); q != "" {
			questions = append(questions, q)
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("failed to read questions: %w", err)
	}
	if len(questions) == 0 {
		return sampleQuestions, nil
	}
	return questions, nil
}

func printAnswer(w io.Writer, ans query.Answer) {
	fmt.Fprintf(w, "Question: %s\n", ans.Question)
	if ans.Failed() {
		fmt.Fprintf(w, "Error: %v\n", ans.Err)
		fmt.Fprintf(w, "Elapsed: %.2f seconds\n", ans.Elapsed.Seconds())
		return
	}

	fmt.Fprintf(w, "Answer: %s\n", ans.Text)
	fmt.Fprintf(w, "Elapsed: %.2f seconds\n", ans.Elapsed.Seconds())
	if len(ans.Sources) == 0 {
		return
	}
	fmt.Fprintln(w, "Sources:")
	for _, s := range ans.Sources {
		fmt.Fprintf(w, "- [%s] %s\n", s.SourceFile, strings.ReplaceAll(s.Snippet, "\n", " "))
	}
}
