package pipeline

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/eval-forge/eval-forge/pkg/api"
)

// WorkspaceManager is the default Environment: a working directory per task
// under a shared base directory. Directories are derived deterministically
// from job and task identity, so preparing the same task twice converges on
// the same directory instead of accumulating state.
type WorkspaceManager struct {
	baseDir string
}

func NewWorkspaceManager(baseDir string) *WorkspaceManager {
	return &WorkspaceManager{baseDir: baseDir}
}

func (m *WorkspaceManager) Prepare(_ context.Context, jobID string, taskName string, _ *api.TaskConfig) (*Workspace, error) {
	dir := filepath.Join(m.baseDir, sanitizePathSegment(jobID), sanitizePathSegment(taskName))
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return nil, fmt.Errorf("failed to prepare workspace %s: %w", dir, err)
	}
	return &Workspace{Dir: dir}, nil
}

func (m *WorkspaceManager) Release(workspace *Workspace) error {
	if workspace == nil || workspace.Dir == "" {
		return nil
	}
	return os.RemoveAll(workspace.Dir)
}

// sanitizePathSegment keeps workspace names filesystem-safe.
func sanitizePathSegment(s string) string {
	var b strings.Builder
	for _, r := range s {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '-', r == '_', r == '.':
			b.WriteRune(r)
		default:
			b.WriteByte('-')
		}
	}
	if b.Len() == 0 {
		return "unnamed"
	}
	return b.String()
}
