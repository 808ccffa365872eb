package main

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strings"

	"golang.org/x/term"
)

// Seams for tests.
var (
	readPassword = term.ReadPassword
	isTerminal   = term.IsTerminal
)

// passwordArg returns args[i] when given, otherwise asks for the password on
// the terminal without echo, or reads one line from in when stdin is not a
// terminal.
func passwordArg(args []string, i int, in io.Reader, w io.Writer) (string, error) {
	if len(args) > i {
		return args[i], nil
	}

	fd := int(os.Stdin.Fd())
	if isTerminal(fd) {
		fmt.Fprint(w, "Password: ")
		pw, err := readPassword(fd)
		fmt.Fprintln(w)
		if err != nil {
			return "", fmt.Errorf("read password: %w", err)
		}
		return string(pw), nil
	}

	line, err := bufio.NewReader(in).ReadString('\n')
	if err != nil && line == "" {
		return "", fmt.Errorf("read password: %w", err)
	}
	return strings.TrimRight(line, "\r\n"), nil
}
