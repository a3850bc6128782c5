package processor

import (
	"context"
	"os"
	"sync"
	"testing"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/require"
	"github.com/wb-go/wbf/zlog"

	"github.com/aliskhannn/latex2image/internal/runner"
	"github.com/aliskhannn/latex2image/internal/workspace"
)

func TestMain(m *testing.M) {
	zlog.Init()
	os.Exit(m.Run())
}

// fakeRunner records commands and delegates to fn.
type fakeRunner struct {
	mu    sync.Mutex
	calls []runner.Command
	fn    func(ctx context.Context, cmd runner.Command) (runner.Output, error)
}

func (f *fakeRunner) Run(ctx context.Context, cmd runner.Command) (runner.Output, error) {
	f.mu.Lock()
	f.calls = append(f.calls, cmd)
	f.mu.Unlock()

	if f.fn == nil {
		return runner.Output{}, nil
	}
	return f.fn(ctx, cmd)
}

func (f *fakeRunner) commands() []runner.Command {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]runner.Command(nil), f.calls...)
}

func newWorkspace(t *testing.T, id string) *workspace.Workspace {
	t.Helper()

	m, err := workspace.NewManager(afero.NewMemMapFs(), "/work")
	require.NoError(t, err)

	ws, err := m.Acquire(id)
	require.NoError(t, err)

	return ws
}
