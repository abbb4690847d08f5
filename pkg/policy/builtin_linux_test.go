package policy

import (
	"testing"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/zqzqsb/jailer/pkg/seccomp"
	"github.com/zqzqsb/jailer/pkg/seccomp/libseccomp"
)

// TestDemoPolicy 在本机架构上编译内置 demo 策略
func TestDemoPolicy(t *testing.T) {
	f, err := NewLoader(afero.NewMemMapFs()).Builtin("demo")
	require.NoError(t, err)
	ctx, err := f.Context(libseccomp.ToSyscallNumber, nil)
	require.NoError(t, err)
	prog, err := ctx.Freeze()
	require.NoError(t, err)

	write, err := libseccomp.ToSyscallNumber("write")
	require.NoError(t, err)
	getppid, err := libseccomp.ToSyscallNumber("getppid")
	require.NoError(t, err)

	tests := []struct {
		name string
		nr   int64
		args []uint64
		want seccomp.Action
	}{
		{"hello world", write, []uint64{1, 0, 14}, seccomp.ActionAllow},
		{"wrong length", write, []uint64{1, 0, 15}, seccomp.ActionTrap},
		{"wrong fd", write, []uint64{2, 0, 14}, seccomp.ActionTrap},
		{"not listed", getppid, nil, seccomp.ActionTrap},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := prog.Call(int32(tt.nr), tt.args...)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}
