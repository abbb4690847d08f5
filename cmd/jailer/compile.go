//go:build linux

package main

import (
	"errors"
	"fmt"

	"github.com/spf13/afero"
	"github.com/spf13/pflag"
)

// compileCmd 实现 "compile" 子命令
func (a *app) compileCmd(args []string) error {
	fs := pflag.NewFlagSet("compile", pflag.ContinueOnError)
	fs.SetOutput(a.stderr)

	var pf policyFlags
	pf.register(fs)
	output := fs.StringP("output", "o", "", "output file (default: stdout)")
	format := fs.String("format", "raw", "output format: raw (sock_filter array), text (disassembly) or digest")

	if err := parse(fs, args); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			return nil
		}
		return err
	}
	if fs.NArg() != 0 {
		return usageErrorf("compile takes no arguments")
	}

	logger, err := a.newLogger(pf.logLevel)
	if err != nil {
		return err
	}
	f, err := a.load(&pf, logger)
	if err != nil {
		return err
	}
	_, prog, err := compile(f, &pf.extra, logger)
	if err != nil {
		return err
	}

	var data []byte
	switch *format {
	case "raw":
		data = prog.Bytes()
	case "text":
		data = []byte(prog.String())
	case "digest":
		d := prog.Digest()
		data = []byte(fmt.Sprintf("%x\n", d[:]))
	default:
		return usageErrorf("invalid --format %q", *format)
	}

	if *output == "" {
		if _, err := a.stdout.Write(data); err != nil {
			return fmt.Errorf("writing program: %w", err)
		}
		return nil
	}
	if err := afero.WriteFile(a.fs, *output, data, 0o644); err != nil {
		return fmt.Errorf("writing program: %w", err)
	}
	logger.Info("wrote program", "path", *output, "bytes", len(data))
	return nil
}
