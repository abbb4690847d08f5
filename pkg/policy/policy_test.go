package policy

import (
	"bytes"
	"fmt"
	"testing"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/zqzqsb/jailer/pkg/seccomp"
)

var testTarget = seccomp.Target{Name: "x86_64", AuditArch: 0xc000003e}

// fakeResolver 使用固定的 x86_64 调用号，使测试与运行架构无关
func fakeResolver(name string) (int64, error) {
	nrs := map[string]int64{"read": 0, "write": 1, "open": 2, "close": 3, "openat": 257}
	if nr, ok := nrs[name]; ok {
		return nr, nil
	}
	return 0, fmt.Errorf("unknown syscall %q", name)
}

const yamlPolicy = `
default_action: errno:EPERM
syscalls:
  - name: write
    rules:
      - action: allow
        args:
          - {index: 0, op: eq, value: 1}
          - {index: 2, op: "<=", value: 0x100000000}
      - action: log
  - names: [read, close]
    action: allow
  - nr: 257
    rules:
      - action: errno:13
        args:
          - {index: 2, op: masked_eq, mask: 3, value: 1}
  - names: [no_such_call]
    optional: true
    action: kill
launch:
  mode: spawn
  stdio: "null"
  rlimits: {open_file: 64, cpu: 1}
`

const jsoncPolicy = `{
  // 与 yamlPolicy 相同
  "default_action": "errno(1)",
  "syscalls": [
    {"name": "write", "rules": [
      {"action": "allow", "args": [
        {"index": 0, "op": "eq", "value": 1},
        {"index": 2, "op": "le", "value": 4294967296},
      ]},
      {"action": "log"},
    ]},
    {"names": ["read", "close"], "action": "allow"},
    {"nr": 257, "rules": [
      {"action": "errno:13", "args": [{"index": 2, "op": "masked_eq", "mask": 3, "value": 1}]},
    ]},
    {"names": ["no_such_call"], "optional": true, "action": "kill"},
  ],
  "launch": {"mode": "spawn", "stdio": "null", "rlimits": {"open_file": 64, "cpu": 1}},
}`

func newTestLoader(t *testing.T) *Loader {
	t.Helper()
	fs := afero.NewMemMapFs()
	require.NoError(t, afero.WriteFile(fs, "/etc/jailer/policy.yaml", []byte(yamlPolicy), 0o644))
	require.NoError(t, afero.WriteFile(fs, "/etc/jailer/policy.jsonc", []byte(jsoncPolicy), 0o644))
	require.NoError(t, afero.WriteFile(fs, "/etc/jailer/policy.toml", []byte(""), 0o644))
	return NewLoader(fs)
}

func compileFile(t *testing.T, f *File) (*seccomp.Context, *seccomp.Program) {
	t.Helper()
	ctx, err := f.Context(fakeResolver, nil)
	require.NoError(t, err)
	prog, err := ctx.FreezeFor(testTarget)
	require.NoError(t, err)
	return ctx, prog
}

func TestLoadFormats(t *testing.T) {
	l := newTestLoader(t)

	fy, err := l.Load("/etc/jailer/policy.yaml")
	require.NoError(t, err)
	fj, err := l.Load("/etc/jailer/policy.jsonc")
	require.NoError(t, err)

	assert.Equal(t, "/etc/jailer/policy.yaml", fy.Source())
	assert.Equal(t, fy.Launch, fj.Launch)
	assert.Equal(t, "spawn", fy.Launch.Mode)
	assert.Equal(t, uint64(64), fy.Launch.RLimits.OpenFile)

	_, py := compileFile(t, fy)
	_, pj := compileFile(t, fj)
	assert.True(t, bytes.Equal(py.Bytes(), pj.Bytes()))
	assert.Equal(t, py.Digest(), pj.Digest())
}

func TestFileSemantics(t *testing.T) {
	f, err := newTestLoader(t).Load("/etc/jailer/policy.yaml")
	require.NoError(t, err)
	ctx, prog := compileFile(t, f)
	assert.Equal(t, []int64{0, 1, 3, 257}, ctx.Syscalls())

	tests := []struct {
		name string
		nr   int32
		args []uint64
		want seccomp.Action
	}{
		{"write stdout", 1, []uint64{1, 0, 14}, seccomp.ActionAllow},
		{"write large", 1, []uint64{1, 0, 0x1_0000_0001}, seccomp.ActionLog},
		{"write stderr", 1, []uint64{2, 0, 14}, seccomp.ActionLog},
		{"read", 0, nil, seccomp.ActionAllow},
		{"openat write only", 257, []uint64{0, 0, 0x41}, seccomp.Errno(13)},
		{"openat read only", 257, []uint64{0, 0, 0}, seccomp.Errno(1)},
		{"open", 2, nil, seccomp.Errno(1)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := prog.Call(tt.nr, tt.args...)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestLoadErrors(t *testing.T) {
	l := newTestLoader(t)
	for _, p := range []string{"/etc/jailer/policy.toml", "/etc/jailer/missing.yaml"} {
		_, err := l.Load(p)
		var perr *Error
		require.ErrorAs(t, err, &perr, p)
		assert.Equal(t, p, perr.Source)
	}

	_, err := Parse([]byte("default_action: trap\nunknown: 1\n"), FormatYAML)
	assert.Error(t, err)
	_, err = Parse([]byte(`{"syscalls": [], "extra": true}`), FormatJSON)
	assert.Error(t, err)
}

func TestContextErrors(t *testing.T) {
	nr := int64(1)
	tests := []struct {
		name    string
		file    File
		wantErr error
	}{
		{
			name:    "bad default",
			file:    File{DefaultAction: "deny"},
			wantErr: seccomp.ErrInvalidAction,
		},
		{
			name:    "no target",
			file:    File{Syscalls: []SyscallEntry{{Action: "allow"}}},
			wantErr: ErrInvalidEntry,
		},
		{
			name:    "name and nr",
			file:    File{Syscalls: []SyscallEntry{{Name: "read", Nr: &nr, Action: "allow"}}},
			wantErr: ErrInvalidEntry,
		},
		{
			name:    "action and rules",
			file:    File{Syscalls: []SyscallEntry{{Name: "read", Action: "allow", Rules: []RuleEntry{{Action: "allow"}}}}},
			wantErr: ErrInvalidEntry,
		},
		{
			name: "mask without masked op",
			file: File{Syscalls: []SyscallEntry{{Name: "read", Rules: []RuleEntry{
				{Action: "allow", Args: []ArgEntry{{Index: 0, Op: "eq", Mask: 1}}},
			}}}},
			wantErr: seccomp.ErrInvalidOperator,
		},
		{
			name: "bad width",
			file: File{Syscalls: []SyscallEntry{{Name: "read", Rules: []RuleEntry{
				{Action: "allow", Args: []ArgEntry{{Index: 0, Width: 16}}},
			}}}},
			wantErr: seccomp.ErrInvalidOperator,
		},
		{
			name: "argument out of range",
			file: File{Syscalls: []SyscallEntry{{Name: "read", Rules: []RuleEntry{
				{Action: "allow", Args: []ArgEntry{{Index: 6}}},
			}}}},
			wantErr: seccomp.ErrInvalidArgument,
		},
		{
			name: "duplicate unconditional",
			file: File{Syscalls: []SyscallEntry{
				{Name: "read", Action: "allow"},
				{Names: []string{"read"}, Action: "kill"},
			}},
			wantErr: seccomp.ErrDuplicateUnconditionalRule,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := tt.file.Context(fakeResolver, nil)
			assert.ErrorIs(t, err, tt.wantErr)
		})
	}

	_, err := (&File{Syscalls: []SyscallEntry{{Name: "no_such_call", Action: "allow"}}}).Context(fakeResolver, nil)
	assert.Error(t, err)
}

func TestDwordWidth(t *testing.T) {
	f := &File{
		DefaultAction: "kill",
		Syscalls: []SyscallEntry{{Name: "close", Rules: []RuleEntry{
			{Action: "allow", Args: []ArgEntry{{Index: 0, Op: "eq", Value: 3, Width: 32}}},
		}}},
	}
	_, prog := compileFile(t, f)
	got, err := prog.Call(3, 0xffff_ffff_0000_0003)
	require.NoError(t, err)
	assert.Equal(t, seccomp.ActionAllow, got)
}

func TestBuiltin(t *testing.T) {
	l := NewLoader(afero.NewMemMapFs())
	assert.Contains(t, BuiltinNames(), "demo")

	f, err := l.Builtin("demo")
	require.NoError(t, err)
	assert.Equal(t, "builtin:demo", f.Source())
	assert.Equal(t, "trap", f.DefaultAction)
	assert.Equal(t, "exec", f.Launch.Mode)

	_, err = l.Builtin("nope")
	assert.ErrorIs(t, err, ErrUnknownBuiltin)
}
