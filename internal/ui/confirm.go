package ui

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/charmbracelet/huh"
)

// Confirm asks question and reports whether the answer was yes. On a
// terminal the question is a huh confirm prompt; otherwise a line is read
// from in and only "yes" confirms.
func Confirm(ctx context.Context, in io.Reader, out io.Writer, question string) (bool, error) {
	if f, ok := in.(*os.File); ok && IsTTY(f) {
		var yes bool
		err := huh.NewForm(
			huh.NewGroup(
				huh.NewConfirm().
					Title(question).
					Affirmative("Yes").
					Negative("No").
					Value(&yes),
			),
		).RunWithContext(ctx)
		if err != nil {
			return false, err
		}
		return yes, nil
	}

	fmt.Fprintf(out, "%s (yes/NO) ", question)
	line, err := bufio.NewReader(in).ReadString('\n')
	if err != nil && err != io.EOF {
		return false, fmt.Errorf("failed to read answer: %w", err)
	}
	return strings.TrimSpace(line) == "yes", nil
}
