package policy

import (
	"bytes"
	"embed"
	"encoding/json"
	"fmt"
	"log/slog"
	"path"
	"path/filepath"
	"sort"
	"strings"

	"github.com/spf13/afero"
	"github.com/tidwall/jsonc"
	"gopkg.in/yaml.v3"
)

// Format 是策略文件的格式
type Format int

const (
	FormatYAML Format = iota + 1
	FormatJSON
)

//go:embed builtin/*.yaml
var builtinFS embed.FS

// FormatFromPath 根据扩展名判断格式
func FormatFromPath(p string) (Format, error) {
	switch strings.ToLower(filepath.Ext(p)) {
	case ".yaml", ".yml":
		return FormatYAML, nil
	case ".json", ".jsonc":
		return FormatJSON, nil
	}
	return 0, fmt.Errorf("%w: %q", ErrUnknownFormat, p)
}

// Parse 解析策略文件内容，未知字段视为错误
func Parse(data []byte, format Format) (*File, error) {
	var f File
	switch format {
	case FormatYAML:
		dec := yaml.NewDecoder(bytes.NewReader(data))
		dec.KnownFields(true)
		if err := dec.Decode(&f); err != nil {
			return nil, fmt.Errorf("parsing yaml: %w", err)
		}
	case FormatJSON:
		dec := json.NewDecoder(bytes.NewReader(jsonc.ToJSON(data)))
		dec.DisallowUnknownFields()
		if err := dec.Decode(&f); err != nil {
			return nil, fmt.Errorf("parsing json: %w", err)
		}
	default:
		return nil, ErrUnknownFormat
	}
	return &f, nil
}

// Loader 从文件系统读取策略文件
type Loader struct {
	fs     afero.Fs
	logger *slog.Logger
}

// NewLoader 创建一个从 fs 读取策略的 Loader
func NewLoader(fs afero.Fs) *Loader {
	return &Loader{fs: fs}
}

// SetLogger 设置日志输出，未设置时不输出日志
func (l *Loader) SetLogger(logger *slog.Logger) {
	l.logger = logger
}

// Logger 返回设置的日志输出，可能为 nil
func (l *Loader) Logger() *slog.Logger {
	return l.logger
}

func (l *Loader) log(msg string, args ...any) {
	if l.logger != nil {
		l.logger.Info(msg, args...)
	}
}

// Load 读取并解析 p 处的策略文件
func (l *Loader) Load(p string) (*File, error) {
	format, err := FormatFromPath(p)
	if err != nil {
		return nil, &Error{Source: p, Entry: -1, Err: err}
	}
	l.log("loading policy", "path", p)
	data, err := afero.ReadFile(l.fs, p)
	if err != nil {
		return nil, &Error{Source: p, Entry: -1, Err: err}
	}
	f, err := Parse(data, format)
	if err != nil {
		return nil, &Error{Source: p, Entry: -1, Err: err}
	}
	f.source = p
	l.log("loaded policy", "path", p, "entries", len(f.Syscalls))
	return f, nil
}

// Builtin 返回内置策略
func (l *Loader) Builtin(name string) (*File, error) {
	source := "builtin:" + name
	data, err := builtinFS.ReadFile(path.Join("builtin", name+".yaml"))
	if err != nil {
		return nil, &Error{Source: source, Entry: -1, Err: ErrUnknownBuiltin}
	}
	f, err := Parse(data, FormatYAML)
	if err != nil {
		return nil, &Error{Source: source, Entry: -1, Err: err}
	}
	f.source = source
	l.log("loaded builtin policy", "name", name, "entries", len(f.Syscalls))
	return f, nil
}

// BuiltinNames 返回所有内置策略的名称
func BuiltinNames() []string {
	entries, _ := builtinFS.ReadDir("builtin")
	names := make([]string, 0, len(entries))
	for _, e := range entries {
		names = append(names, strings.TrimSuffix(e.Name(), ".yaml"))
	}
	sort.Strings(names)
	return names
}
