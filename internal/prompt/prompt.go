// Package prompt reads interactive credential input for the auth commands.
package prompt

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"golang.org/x/term"
)

// ErrNoInput means the input stream closed before a value was read.
var ErrNoInput = errors.New("no input received")

// ReadLine prints a label and reads one trimmed line.
func ReadLine(r io.Reader, w io.Writer, label string) (string, error) {
	_, _ = fmt.Fprintf(w, "%s: ", label)

	scanner := bufio.NewScanner(r)
	if scanner.Scan() {
		return strings.TrimSpace(scanner.Text()), nil
	}
	if err := scanner.Err(); err != nil {
		return "", err
	}
	return "", ErrNoInput
}

// ReadPassword prints a label and reads a secret. On a real terminal the
// input is not echoed; on any other reader (tests, pipes) it falls back to
// a plain line read.
func ReadPassword(r io.Reader, w io.Writer, label string) (string, error) {
	_, _ = fmt.Fprintf(w, "%s: ", label)

	if f, ok := r.(*os.File); ok && term.IsTerminal(int(f.Fd())) {
		secret, err := term.ReadPassword(int(f.Fd()))
		_, _ = fmt.Fprintln(w)
		if err != nil {
			return "", err
		}
		return string(secret), nil
	}

	scanner := bufio.NewScanner(r)
	if scanner.Scan() {
		return strings.TrimSpace(scanner.Text()), nil
	}
	if err := scanner.Err(); err != nil {
		return "", err
	}
	return "", ErrNoInput
}
