//go:build !production

package testutil

import (
	"context"
	"sync"

	"github.com/stretchr/testify/mock"

	"github.com/palemoky/tetris-battle/internal/lobby/launcher"
)

// MockLauncher 对局进程启动器 mock
type MockLauncher struct {
	mock.Mock
}

func (m *MockLauncher) Launch(ctx context.Context, spec launcher.Spec) error {
	args := m.Called(ctx, spec)
	return args.Error(0)
}

// RecordingLauncher 只记录启动参数，不启动进程（用于不需要断言调用的测试）
type RecordingLauncher struct {
	mu    sync.Mutex
	Specs []launcher.Spec
	Err   error
}

func (r *RecordingLauncher) Launch(_ context.Context, spec launcher.Spec) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.Err != nil {
		return r.Err
	}
	r.Specs = append(r.Specs, spec)
	return nil
}

// Last 返回最近一次启动参数
func (r *RecordingLauncher) Last() (launcher.Spec, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.Specs) == 0 {
		return launcher.Spec{}, false
	}
	return r.Specs[len(r.Specs)-1], true
}
