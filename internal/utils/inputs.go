package utils

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
)

// ErrSelectionCancelled is returned when the user cancels a selection.
var ErrSelectionCancelled = errors.New("selection cancelled")

// PromptYesNoWithReader prompts for yes/no, re-asking on anything else.
// End of input counts as no.
func PromptYesNoWithReader(prompt string, reader io.Reader, writer io.Writer) bool {
	scanner := bufio.NewScanner(reader)

	for {
		_, _ = fmt.Fprintf(writer, "%s (y/n): ", prompt)
		if !scanner.Scan() {
			return false
		}

		switch strings.TrimSpace(strings.ToLower(scanner.Text())) {
		case "y", "yes":
			return true
		case "n", "no":
			return false
		}
	}
}

// PromptSelectionWithReader displays items and prompts the user to pick one.
// Returns the 0-based index, or ErrSelectionCancelled when the user enters 0
// or input ends.
func PromptSelectionWithReader[T any](items []T, prompt string, reader io.Reader, writer io.Writer, display func(index int, item T)) (int, error) {
	for i, item := range items {
		display(i, item)
	}

	scanner := bufio.NewScanner(reader)

	for {
		_, _ = fmt.Fprintf(writer, "%s (0 to cancel): ", prompt)
		if !scanner.Scan() {
			return -1, ErrSelectionCancelled
		}

		num, err := strconv.Atoi(strings.TrimSpace(scanner.Text()))
		if err != nil {
			_, _ = fmt.Fprintln(writer, "Please enter a number")
			continue
		}

		if num == 0 {
			return -1, ErrSelectionCancelled
		}

		if num < 1 || num > len(items) {
			_, _ = fmt.Fprintf(writer, "Please enter a number between 1 and %d\n", len(items))
			continue
		}

		return num - 1, nil
	}
}

// lineReader hands out at most one line per Read.
type lineReader struct {
	r       *bufio.Reader
	pending []byte
}

// NewLineReader wraps r so that a bufio.Scanner over it never reads past the
// line it returns. Successive prompts can then each scan the same input.
func NewLineReader(r io.Reader) io.Reader {
	if lr, ok := r.(*lineReader); ok {
		return lr
	}
	return &lineReader{r: bufio.NewReader(r)}
}

func (l *lineReader) Read(p []byte) (int, error) {
	if len(l.pending) == 0 {
		line, err := l.r.ReadBytes('\n')
		if len(line) == 0 {
			return 0, err
		}
		l.pending = line
	}
	n := copy(p, l.pending)
	l.pending = l.pending[n:]
	return n, nil
}
