package validate

import (
	"bufio"
	"fmt"
	"os"
	"strings"

	"golang.org/x/term"
)

// Prompter asks the operator a yes/no question. Implementations must not
// block when no interactive front-end is attached.
type Prompter interface {
	Confirm(message string) bool
}

// StdinPrompter reads confirmations from the terminal. When stdin is not
// a TTY every prompt is treated as declined.
type StdinPrompter struct{}

// Confirm asks on stdout and reads a y/N answer.
func (StdinPrompter) Confirm(message string) bool {
	if !term.IsTerminal(int(os.Stdin.Fd())) {
		return false
	}
	fmt.Printf("%s [y/N]: ", message)
	reader := bufio.NewReader(os.Stdin)
	line, err := reader.ReadString('\n')
	if err != nil {
		return false
	}
	answer := strings.ToLower(strings.TrimSpace(line))
	return answer == "y" || answer == "yes"
}

// DeclineAll refuses every prompt; the control-plane path uses it so a
// deployment never suspends the server waiting for a human.
type DeclineAll struct{}

func (DeclineAll) Confirm(string) bool { return false }

// AcceptAll approves every prompt, used with explicit --yes flags and
// pre-confirmed control-plane requests.
type AcceptAll struct{}

func (AcceptAll) Confirm(string) bool { return true }
