package cli

import (
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/dmitrijs2005/keyrelay/internal/shared"
	"golang.org/x/term"
)

// Test seams for the terminal.
var (
	readPassword = term.ReadPassword
	isTerminal   = term.IsTerminal
)

var errNoToken = errors.New("no session token: use --token or RELAY_TOKEN")

// GetToken prints a prompt to w and reads a session token from the
// terminal without echo.
func GetToken(w io.Writer) (string, error) {
	if !isTerminal(int(os.Stdin.Fd())) {
		return "", errNoToken
	}
	if _, err := fmt.Fprint(w, "Session token: "); err != nil {
		return "", err
	}
	tok, err := readPassword(int(os.Stdin.Fd()))
	fmt.Fprintln(w)
	if err != nil {
		return "", err
	}
	defer shared.WipeByteArray(tok)
	s := strings.TrimSpace(string(tok))
	if s == "" {
		return "", errNoToken
	}
	return s, nil
}
