package seccomp

import (
	"testing"

	"github.com/elastic/go-seccomp-bpf/arch"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestProgramFilter(t *testing.T) {
	ctx := NewContext(ActionKill)
	require.NoError(t, ctx.AddRules(nrRead, NewRule(ActionAllow)))
	prog := freeze(t, ctx)

	filter := prog.Filter()
	require.Len(t, filter, prog.Len())
	for i, raw := range prog.Raw() {
		assert.Equal(t, raw.Op, filter[i].Code)
		assert.Equal(t, raw.K, filter[i].K)
	}

	fprog := filter.SockFprog()
	require.NotNil(t, fprog)
	assert.Equal(t, uint16(prog.Len()), fprog.Len)
	assert.Nil(t, Filter(nil).SockFprog())
}

func TestNativeTarget(t *testing.T) {
	target, err := NativeTarget()
	if err != nil {
		t.Skipf("unsupported architecture: %v", err)
	}
	assert.NotZero(t, target.AuditArch)
	assert.NotEmpty(t, target.Name)

	info, err := arch.GetInfo("")
	require.NoError(t, err)
	assert.Equal(t, uint32(info.ID), target.AuditArch)

	// 本机程序接受本机架构的调用，拒绝其他架构
	prog, err := NewContext(ActionAllow).Freeze()
	require.NoError(t, err)
	assert.Equal(t, target, prog.Target())

	act, err := prog.Evaluate(SyscallData{Nr: nrRead, Arch: target.AuditArch})
	require.NoError(t, err)
	assert.Equal(t, ActionAllow, act)

	act, err = prog.Evaluate(SyscallData{Nr: nrRead, Arch: target.AuditArch ^ 0x1})
	require.NoError(t, err)
	assert.Equal(t, ActionKill, act)
}
