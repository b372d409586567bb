package remote

import (
	"context"
	"strings"
	"testing"

	"github.com/stackpilot/stackpilot/internal/models"
)

func TestRunLocalCapturesOutput(t *testing.T) {
	runner := Local(t.TempDir())

	res, err := runner.Run(context.Background(), "echo hello")
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if !res.Ok() {
		t.Fatalf("exit code = %d, want 0", res.ExitCode)
	}
	if strings.TrimSpace(res.Stdout) != "hello" {
		t.Fatalf("stdout = %q", res.Stdout)
	}
}

func TestRunLocalNonZeroExitIsData(t *testing.T) {
	runner := Local(t.TempDir())

	res, err := runner.Run(context.Background(), "echo oops >&2; exit 3")
	if err != nil {
		t.Fatalf("non-zero exit must not be an error: %v", err)
	}
	if res.ExitCode != 3 {
		t.Fatalf("exit code = %d, want 3", res.ExitCode)
	}
	if strings.TrimSpace(res.Stderr) != "oops" {
		t.Fatalf("stderr = %q", res.Stderr)
	}
}

func TestRunLocalHonorsDir(t *testing.T) {
	dir := t.TempDir()
	runner := Local(dir)

	res, err := runner.Run(context.Background(), "pwd")
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if strings.TrimSpace(res.Stdout) != dir {
		t.Fatalf("pwd = %q, want %q", strings.TrimSpace(res.Stdout), dir)
	}
}

func TestSSHArgs(t *testing.T) {
	runner := New(models.DeploymentTarget{
		Type:    models.TargetRemote,
		Host:    "deploy.acme.test",
		User:    "deploy",
		KeyPath: "/home/deploy/.ssh/id_ed25519",
	})

	args := runner.sshArgs("docker info")
	joined := strings.Join(args, " ")
	for _, want := range []string{
		"BatchMode=yes",
		"StrictHostKeyChecking=accept-new",
		"ConnectTimeout=5",
		"-i /home/deploy/.ssh/id_ed25519",
		"deploy@deploy.acme.test docker info",
	} {
		if !strings.Contains(joined, want) {
			t.Errorf("ssh args %q missing %q", joined, want)
		}
	}
}

func TestTestConnectivityLocalAlwaysPasses(t *testing.T) {
	runner := Local(t.TempDir())
	if err := runner.TestConnectivity(context.Background()); err != nil {
		t.Fatalf("local connectivity: %v", err)
	}
}

func TestCombinedOutput(t *testing.T) {
	res := Result{Stdout: "out\n", Stderr: "err\n"}
	if res.CombinedOutput() != "out\n\nerr" {
		t.Fatalf("combined = %q", res.CombinedOutput())
	}
}
