package seccomp

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	nrRead  = 0
	nrWrite = 1
	nrOpen  = 2
)

func TestAddRules(t *testing.T) {
	fdIsStdout := Must(NewCondition(0, CmpEq, 1))
	unconditional := NewRule(ActionAllow)
	conditional := NewRule(ActionAllow, fdIsStdout)

	tests := []struct {
		name    string
		setup   [][]Rule
		nr      int64
		rules   []Rule
		wantErr error
	}{
		{
			name:  "new syscall",
			nr:    nrWrite,
			rules: []Rule{conditional},
		},
		{
			name:  "append to existing",
			setup: [][]Rule{{conditional}},
			nr:    nrWrite,
			rules: []Rule{conditional, unconditional},
		},
		{
			name:    "after unconditional",
			setup:   [][]Rule{{unconditional}},
			nr:      nrWrite,
			rules:   []Rule{conditional},
			wantErr: ErrDuplicateUnconditionalRule,
		},
		{
			name:    "second unconditional",
			setup:   [][]Rule{{unconditional}},
			nr:      nrWrite,
			rules:   []Rule{unconditional},
			wantErr: ErrDuplicateUnconditionalRule,
		},
		{
			name:    "unconditional not last",
			nr:      nrWrite,
			rules:   []Rule{unconditional, conditional},
			wantErr: ErrUnconditionalRuleNotLast,
		},
		{
			name:    "empty rules",
			nr:      nrWrite,
			wantErr: ErrEmptyRules,
		},
		{
			name:    "negative syscall",
			nr:      -1,
			rules:   []Rule{unconditional},
			wantErr: ErrInvalidSyscall,
		},
		{
			name:    "syscall too large",
			nr:      1 << 32,
			rules:   []Rule{unconditional},
			wantErr: ErrInvalidSyscall,
		},
		{
			name:    "invalid action",
			nr:      nrWrite,
			rules:   []Rule{NewRule(ActionInvalid)},
			wantErr: ErrInvalidAction,
		},
		{
			name:    "zero condition",
			nr:      nrWrite,
			rules:   []Rule{NewRule(ActionAllow, Condition{})},
			wantErr: ErrInvalidOperator,
		},
		{
			name:    "too many conditions",
			nr:      nrWrite,
			rules:   []Rule{NewRule(ActionAllow, make([]Condition, MaxConditionsPerRule+1)...)},
			wantErr: ErrTooManyConditions,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ctx := NewContext(ActionTrap)
			for _, rules := range tt.setup {
				require.NoError(t, ctx.AddRules(tt.nr, rules...))
			}
			before := ctx.Decide(tt.nr, [MaxArgs]uint64{1})
			beforeRules := 0
			if p, ok := ctx.Policy(tt.nr); ok {
				beforeRules = len(p.Rules())
			}

			err := ctx.AddRules(tt.nr, tt.rules...)
			if tt.wantErr == nil {
				require.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.True(t, errors.Is(err, tt.wantErr), "error = %v, want %v", err, tt.wantErr)

			var perr *PolicyError
			require.True(t, errors.As(err, &perr))
			assert.Equal(t, tt.nr, perr.Syscall)

			// 失败时 Context 保持不变
			after := 0
			if p, ok := ctx.Policy(tt.nr); ok {
				after = len(p.Rules())
			}
			assert.Equal(t, beforeRules, after)
			assert.Equal(t, before, ctx.Decide(tt.nr, [MaxArgs]uint64{1}))
		})
	}
}

func TestAddRulesCapacity(t *testing.T) {
	ctx := NewContext(ActionTrap)
	for nr := int64(0); nr < MaxSyscalls; nr++ {
		require.NoError(t, ctx.AddRules(nr, NewRule(ActionAllow)))
	}
	err := ctx.AddRules(MaxSyscalls, NewRule(ActionAllow))
	assert.ErrorIs(t, err, ErrTooManySyscalls)

	ctx = NewContext(ActionTrap)
	rule := NewRule(ActionAllow, Must(NewCondition(0, CmpEq, 1)))
	rules := make([]Rule, MaxRulesPerSyscall)
	for i := range rules {
		rules[i] = rule
	}
	require.NoError(t, ctx.AddRules(nrWrite, rules...))
	assert.ErrorIs(t, ctx.AddRules(nrWrite, rule), ErrTooManyRules)
}

func TestSetDefaultAction(t *testing.T) {
	ctx := NewContext(ActionTrap)
	require.NoError(t, ctx.SetDefaultAction(ActionKill))
	require.NoError(t, ctx.SetDefaultAction(Errno(1)))
	assert.Equal(t, Errno(1), ctx.DefaultAction())
	assert.ErrorIs(t, ctx.SetDefaultAction(ActionInvalid), ErrInvalidAction)
	assert.Equal(t, Errno(1), ctx.DefaultAction())
}

func TestFrozenContext(t *testing.T) {
	ctx := NewContext(ActionTrap)
	require.NoError(t, ctx.AddRules(nrRead, NewRule(ActionAllow)))

	prog, err := ctx.FreezeFor(testTarget)
	require.NoError(t, err)
	require.NotNil(t, prog)
	assert.True(t, ctx.Frozen())

	assert.ErrorIs(t, ctx.AddRules(nrWrite, NewRule(ActionAllow)), ErrFrozen)
	assert.ErrorIs(t, ctx.SetDefaultAction(ActionAllow), ErrFrozen)

	// 再次冻结失败，且不产生新程序
	again, err := ctx.FreezeFor(testTarget)
	assert.Nil(t, again)
	assert.ErrorIs(t, err, ErrAlreadyFrozen)
	var cerr *CompileError
	assert.True(t, errors.As(err, &cerr))

	again, err = ctx.Freeze()
	assert.Nil(t, again)
	assert.ErrorIs(t, err, ErrAlreadyFrozen)
}

func TestDecide(t *testing.T) {
	ctx := NewContext(ActionTrap)
	require.NoError(t, ctx.AddRules(nrWrite,
		NewRule(Errno(9), Must(NewCondition(0, CmpEq, 2))),
		NewRule(ActionAllow, Must(NewCondition(0, CmpLe, 2))),
	))

	assert.Equal(t, Errno(9), ctx.Decide(nrWrite, [MaxArgs]uint64{2}))
	assert.Equal(t, ActionAllow, ctx.Decide(nrWrite, [MaxArgs]uint64{1}))
	assert.Equal(t, ActionTrap, ctx.Decide(nrWrite, [MaxArgs]uint64{3}))
	assert.Equal(t, ActionTrap, ctx.Decide(nrOpen, [MaxArgs]uint64{}))
	assert.Equal(t, []int64{nrWrite}, ctx.Syscalls())
}

func TestFreezeInvalidDefault(t *testing.T) {
	ctx := NewContext(ActionInvalid)
	require.NoError(t, ctx.AddRules(nrRead, NewRule(ActionAllow)))

	prog, err := ctx.FreezeFor(testTarget)
	assert.Nil(t, prog)
	assert.ErrorIs(t, err, ErrInvalidAction)
	var cerr *CompileError
	require.True(t, errors.As(err, &cerr))
	var perr *PolicyError
	assert.False(t, errors.As(err, &perr))

	// 未冻结，修正默认动作后可以编译
	assert.False(t, ctx.Frozen())
	require.NoError(t, ctx.SetDefaultAction(ActionTrap))
	prog = freeze(t, ctx)
	assert.Equal(t, ActionAllow, call(t, prog, nrRead))
	assert.Equal(t, ActionTrap, call(t, prog, nrWrite))
}
