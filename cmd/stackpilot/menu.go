package main

import (
	"bufio"
	"fmt"
	"os"
	"strings"

	"golang.org/x/term"

	"github.com/stackpilot/stackpilot/internal/models"
)

// runMenu drives the interactive front-end shown when no subcommand is
// given. Requires a TTY; piped invocations get the usage text instead.
func runMenu() {
	if !term.IsTerminal(int(os.Stdin.Fd())) {
		fmt.Print(usageText)
		return
	}

	reader := bufio.NewReader(os.Stdin)
	for {
		fmt.Println()
		fmt.Println("stackpilot " + appVersion)
		fmt.Println("  1) Deploy full stack")
		fmt.Println("  2) Deploy backend")
		fmt.Println("  3) Deploy single service")
		fmt.Println("  4) Stack status")
		fmt.Println("  5) Health check")
		fmt.Println("  6) Deployment history")
		fmt.Println("  7) Run migrations")
		fmt.Println("  8) Rollback latest deployment")
		fmt.Println("  9) Start control-plane server")
		fmt.Println("  q) Quit")
		fmt.Print("> ")

		line, err := reader.ReadString('\n')
		if err != nil {
			return
		}

		switch strings.TrimSpace(line) {
		case "1":
			report(runDeploy(models.DeploymentKindFull, "", menuEnvArgs(reader)))
		case "2":
			report(runDeploy(models.DeploymentKindBackend, "", menuEnvArgs(reader)))
		case "3":
			fmt.Print("Service name: ")
			name, err := reader.ReadString('\n')
			if err != nil {
				return
			}
			name = strings.TrimSpace(name)
			if name == "" {
				fmt.Println("A service name is required")
				continue
			}
			report(runDeploy(models.DeploymentKindService, name, menuEnvArgs(reader)))
		case "4":
			report(runStatus(nil))
		case "5":
			report(runHealthCheck(nil))
		case "6":
			report(runHistory(nil))
		case "7":
			report(runMigrations(nil))
		case "8":
			report(runRollback(nil))
		case "9":
			report(runServer(nil))
			return
		case "q", "Q", "quit", "exit":
			return
		default:
			fmt.Println("Unknown choice")
		}
	}
}

// report prints a failed action and hands control back to the menu.
func report(err error) {
	if err != nil {
		fmt.Println("Error:", err)
	}
}

// menuEnvArgs asks for the target environment and returns it as deploy
// flags. Empty input means development.
func menuEnvArgs(reader *bufio.Reader) []string {
	fmt.Print("Environment [development]: ")
	line, err := reader.ReadString('\n')
	if err != nil {
		return nil
	}
	env := strings.TrimSpace(line)
	if env == "" {
		return nil
	}
	return []string{"--env", env}
}
