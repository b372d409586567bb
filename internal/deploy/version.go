package deploy

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	git "github.com/go-git/go-git/v5"

	"github.com/stackpilot/stackpilot/internal/errs"
	"github.com/stackpilot/stackpilot/internal/models"
	"github.com/stackpilot/stackpilot/pkg/utils"
)

// markerFile is written at the deploy root after every successful remote
// deployment and is the sole answer to "what is currently deployed".
const markerFile = ".deploy-version.json"

func (o *Orchestrator) buildMarker(kind models.DeploymentKind, service *string, recordID uint, duration float64, commitHash, commitMessage *string) models.VersionMarker {
	services := o.cfg.ActiveServiceNames()
	if service != nil {
		services = []string{*service}
	}
	marker := models.VersionMarker{
		Timestamp:       time.Now().UTC().Format(time.RFC3339),
		Environment:     string(o.env),
		Services:        services,
		DeploymentType:  string(kind),
		DeploymentID:    &recordID,
		DurationSeconds: &duration,
		User:            currentUser(),
	}
	if commitHash != nil {
		marker.CommitHash = *commitHash
	}
	if commitMessage != nil {
		marker.CommitMessage = *commitMessage
	}
	return marker
}

// WriteVersionMarker persists the marker at the deploy root through the
// remote execution adapter, so local and remote targets behave alike.
func (o *Orchestrator) WriteVersionMarker(ctx context.Context, marker models.VersionMarker) error {
	data, err := json.MarshalIndent(marker, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode version marker: %w", err)
	}
	path := o.cfg.Deployment.Path + "/" + markerFile
	command := fmt.Sprintf("cat > %s <<'STACKPILOT_MARKER'\n%s\nSTACKPILOT_MARKER", utils.ShellQuote(path), data)
	res, err := o.runner.Run(ctx, command)
	if err != nil {
		return err
	}
	if !res.Ok() {
		return &errs.OperationFailed{Op: "write version marker", ExitCode: res.ExitCode, Stderr: res.Stderr}
	}
	return nil
}

// ReadVersionMarker fetches the marker from the deploy root.
func (o *Orchestrator) ReadVersionMarker(ctx context.Context) (*models.VersionMarker, error) {
	path := o.cfg.Deployment.Path + "/" + markerFile
	res, err := o.runner.Run(ctx, "cat "+utils.ShellQuote(path))
	if err != nil {
		return nil, err
	}
	if !res.Ok() {
		return nil, fmt.Errorf("no version marker at %s: %s", path, strings.TrimSpace(res.Stderr))
	}
	var marker models.VersionMarker
	if err := json.Unmarshal([]byte(res.Stdout), &marker); err != nil {
		return nil, fmt.Errorf("version marker at %s is corrupt: %w", path, err)
	}
	return &marker, nil
}

// headCommit returns the local HEAD hash and first line of its message.
// Both are nil when the project is not a repository.
func headCommit(root string) (*string, *string) {
	repo, err := git.PlainOpen(root)
	if err != nil {
		return nil, nil
	}
	head, err := repo.Head()
	if err != nil {
		return nil, nil
	}
	hash := head.Hash().String()
	commit, err := repo.CommitObject(head.Hash())
	if err != nil {
		return &hash, nil
	}
	message := strings.SplitN(strings.TrimSpace(commit.Message), "\n", 2)[0]
	return &hash, &message
}
