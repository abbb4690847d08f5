//go:build linux

package main

import (
	"bytes"
	"errors"
	"fmt"
	"testing"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/zqzqsb/jailer/pkg/forkexec"
	"github.com/zqzqsb/jailer/pkg/installer"
	"github.com/zqzqsb/jailer/pkg/policy"
	"github.com/zqzqsb/jailer/pkg/seccomp"
	"github.com/zqzqsb/jailer/pkg/seccomp/libseccomp"
)

const writePolicy = `
default_action: errno:1
syscalls:
  - name: write
    rules:
      - action: allow
        args:
          - {index: 0, op: eq, value: 1}
  - names: [read, close]
    action: allow
`

type testApp struct {
	*app
	stdout, stderr *bytes.Buffer
}

func newTestApp(t *testing.T, env map[string]string) *testApp {
	t.Helper()
	fs := afero.NewMemMapFs()
	require.NoError(t, afero.WriteFile(fs, "/etc/jailer/write.yaml", []byte(writePolicy), 0o644))
	require.NoError(t, afero.WriteFile(fs, "/etc/jailer/broken.yaml", []byte("default_action: deny\n"), 0o644))

	ta := &testApp{stdout: new(bytes.Buffer), stderr: new(bytes.Buffer)}
	ta.app = &app{
		fs:      fs,
		stdout:  ta.stdout,
		stderr:  ta.stderr,
		getenv:  func(k string) string { return env[k] },
		environ: []string{"PATH=/usr/bin:/bin"},
	}
	return ta
}

func TestExitCode(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want int
	}{
		{"nil", nil, exitOK},
		{"usage", usageErrorf("bad flag"), exitUsage},
		{"seccomp policy", &seccomp.PolicyError{Syscall: 1, Rule: -1, Err: seccomp.ErrEmptyRules}, exitPolicy},
		{"policy file", &policy.Error{Source: "x.yaml", Entry: -1, Err: policy.ErrUnknownFormat}, exitPolicy},
		{"compile", fmt.Errorf("compiling: %w", &seccomp.CompileError{Err: seccomp.ErrProgramTooLarge}), exitCompile},
		{"install", &installer.Error{Op: "seccomp", Err: installer.ErrPermission}, exitInstall},
		{"launch", &forkexec.LaunchError{Op: "resolve", Err: forkexec.ErrNotFound}, exitLaunch},
		{"after install", &installedError{err: &forkexec.LaunchError{Op: "execve", Err: forkexec.ErrNotExecutable}}, exitLaunch},
		{"child status", &exitStatusError{code: 159}, 159},
		{"other", errors.New("boom"), exitFailure},
		{"write failure", fmt.Errorf("writing program: %w", errors.New("read-only file system")), exitFailure},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, exitCode(tt.err))
		})
	}

	assert.True(t, silent(&exitStatusError{code: 1}))
	assert.True(t, silent(&installedError{err: errors.New("x")}))
	assert.False(t, silent(usageErrorf("x")))
}

func TestCommands(t *testing.T) {
	tests := []struct {
		name       string
		args       []string
		env        map[string]string
		want       int
		wantStdout string
		wantStderr string
	}{
		{name: "no command", want: exitUsage, wantStderr: "USAGE"},
		{name: "unknown", args: []string{"frobnicate"}, want: exitUsage, wantStderr: "Unknown command"},
		{name: "version", args: []string{"version"}, want: exitOK, wantStdout: "jailer dev"},
		{name: "help", args: []string{"compile", "--help"}, want: exitOK},
		{name: "no policy", args: []string{"compile"}, want: exitUsage, wantStderr: "no policy"},
		{name: "both sources", args: []string{"compile", "--builtin", "demo", "--policy", "/etc/jailer/write.yaml"}, want: exitUsage},
		{name: "unknown flag", args: []string{"compile", "--bogus"}, want: exitUsage},
		{name: "bad log level", args: []string{"compile", "--builtin", "demo", "--log-level", "loud"}, want: exitUsage},
		{name: "missing file", args: []string{"compile", "--policy", "/etc/jailer/missing.yaml"}, want: exitPolicy},
		{name: "broken file", args: []string{"compile", "--policy", "/etc/jailer/broken.yaml"}, want: exitPolicy},
		{name: "unknown builtin", args: []string{"compile", "--builtin", "nope"}, want: exitPolicy},
		{name: "bad format", args: []string{"compile", "--builtin", "demo", "--format", "hex"}, want: exitUsage},
		{name: "digest", args: []string{"compile", "--builtin", "demo", "--format", "digest"}, want: exitOK},
		{name: "text", args: []string{"compile", "--policy", "/etc/jailer/write.yaml", "--format", "text"}, want: exitOK, wantStdout: "0000: "},
		{
			name:       "env policy",
			args:       []string{"check", "write", "1"},
			env:        map[string]string{"JAILER_POLICY": "/etc/jailer/write.yaml"},
			want:       exitOK,
			wantStdout: "write(0x1) -> allow",
		},
		{name: "check denied", args: []string{"check", "--policy", "/etc/jailer/write.yaml", "write", "2"}, want: exitOK, wantStdout: "write(0x2) -> errno(1)"},
		{name: "check default", args: []string{"check", "--policy", "/etc/jailer/write.yaml", "getppid"}, want: exitOK, wantStdout: "getppid() -> errno(1)"},
		{name: "check demo", args: []string{"check", "--builtin", "demo", "write", "1", "0", "14"}, want: exitOK, wantStdout: "write(0x1, 0x0, 0xe) -> allow"},
		{name: "check demo len", args: []string{"check", "--builtin", "demo", "write", "1", "0", "15"}, want: exitOK, wantStdout: "-> trap"},
		{name: "check unknown syscall", args: []string{"check", "--builtin", "demo", "no_such_call"}, want: exitUsage},
		{name: "check bad arg", args: []string{"check", "--builtin", "demo", "write", "x"}, want: exitUsage},
		{name: "check too many args", args: []string{"check", "--builtin", "demo", "write", "1", "2", "3", "4", "5", "6", "7"}, want: exitUsage},
		{name: "extra allow", args: []string{"check", "--policy", "/etc/jailer/write.yaml", "--allow", "getppid", "getppid"}, want: exitOK, wantStdout: "getppid() -> allow"},
		{name: "extra errno list", args: []string{"check", "--builtin", "demo", "--errno", "getppid,getuid", "getuid"}, want: exitOK, wantStdout: "getuid() -> errno(1)"},
		{name: "extra after conditional", args: []string{"check", "--policy", "/etc/jailer/write.yaml", "--allow", "write", "write", "2"}, want: exitOK, wantStdout: "write(0x2) -> allow"},
		{name: "extra duplicate", args: []string{"check", "--policy", "/etc/jailer/write.yaml", "--errno", "read", "read"}, want: exitPolicy, wantStderr: "command line"},
		{name: "extra unknown", args: []string{"compile", "--builtin", "demo", "--allow", "no_such_call"}, want: exitPolicy, wantStderr: "unknown syscall"},
		{name: "run no program", args: []string{"run", "--builtin", "demo"}, want: exitUsage},
		{name: "run bad mode", args: []string{"run", "--builtin", "demo", "--mode", "fork", "--", "true"}, want: exitUsage},
		{name: "run bad stdio", args: []string{"run", "--builtin", "demo", "--stdio", "pipe", "--", "true"}, want: exitUsage},
		{name: "run bad policy", args: []string{"run", "--policy", "/etc/jailer/broken.yaml", "--", "true"}, want: exitPolicy},
		{name: "run missing program", args: []string{"run", "--builtin", "demo", "--", "/nonexistent/program"}, want: exitLaunch, wantStderr: "executable not found"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			a := newTestApp(t, tt.env)
			got := a.main(tt.args)
			assert.Equal(t, tt.want, got, "stderr: %s", a.stderr)
			assert.Contains(t, a.stdout.String(), tt.wantStdout)
			assert.Contains(t, a.stderr.String(), tt.wantStderr)
		})
	}
}

func TestCompileOutput(t *testing.T) {
	a := newTestApp(t, nil)
	require.Equal(t, exitOK, a.main([]string{"compile", "--policy", "/etc/jailer/write.yaml", "-o", "/out/write.bpf"}), a.stderr.String())

	got, err := afero.ReadFile(a.fs, "/out/write.bpf")
	require.NoError(t, err)

	f, err := policy.Parse([]byte(writePolicy), policy.FormatYAML)
	require.NoError(t, err)
	ctx, err := f.Context(libseccomp.ToSyscallNumber, nil)
	require.NoError(t, err)
	prog, err := ctx.Freeze()
	require.NoError(t, err)

	assert.Equal(t, prog.Bytes(), got)
	assert.Contains(t, a.stderr.String(), "compiled policy")
	assert.Contains(t, a.stderr.String(), fmt.Sprintf("instructions=%d", prog.Len()))
}

func TestCompileOutputFailure(t *testing.T) {
	a := newTestApp(t, nil)
	a.fs = afero.NewReadOnlyFs(a.fs)

	got := a.main([]string{"compile", "--policy", "/etc/jailer/write.yaml", "-o", "/out/write.bpf"})
	assert.Equal(t, exitFailure, got)
	assert.Contains(t, a.stderr.String(), "writing program")
}

func TestLaunchOptions(t *testing.T) {
	mode, stdio, err := launchOptions(policy.Launch{Mode: "spawn", Stdio: "null"}, "", "")
	require.NoError(t, err)
	assert.Equal(t, modeSpawn, mode)
	assert.Equal(t, forkexec.StdioNull, stdio)

	mode, stdio, err = launchOptions(policy.Launch{Mode: "spawn", Stdio: "null"}, "exec", "inherit")
	require.NoError(t, err)
	assert.Equal(t, modeExec, mode)
	assert.Equal(t, forkexec.StdioInherit, stdio)

	mode, stdio, err = launchOptions(policy.Launch{}, "", "")
	require.NoError(t, err)
	assert.Equal(t, modeExec, mode)
	assert.Equal(t, forkexec.StdioInherit, stdio)
}
