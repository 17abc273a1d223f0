package shaders

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/gekko3d/firefx/fxrt/rt/core"

	"github.com/gogpu/naga"
)

var ErrUnknownProgram = errors.New("unknown shader program")

const spirvMagic = 0x07230203

// Logger is the subset of the application logger the loader uses.
type Logger interface {
	Debugf(format string, args ...any)
	Warnf(format string, args ...any)
}

type nopLogger struct{}

func (nopLogger) Debugf(string, ...any) {}
func (nopLogger) Warnf(string, ...any)  {}

// Loader resolves program names to compiled programs. When validation is on
// every source is also run through naga; a naga failure is only logged,
// since the device compiler is authoritative. With a cache directory the
// naga output is stored, and later loads hand the stored binary to the
// device instead of compiling again.
type Loader struct {
	sources   map[string]core.ProgramSource
	validate  bool
	cacheDir  string
	overwrite bool
	log       Logger
	compile   func(string) ([]byte, error)
	validated map[string][]byte
}

type LoaderOption func(*Loader)

// WithValidation toggles the naga pass.
func WithValidation(enabled bool) LoaderOption {
	return func(l *Loader) { l.validate = enabled }
}

// WithCacheDir stores validated SPIR-V under dir and reuses it on later
// loads. With overwrite set, cached files are ignored and rewritten.
func WithCacheDir(dir string, overwrite bool) LoaderOption {
	return func(l *Loader) {
		l.cacheDir = dir
		l.overwrite = overwrite
	}
}

func WithLogger(log Logger) LoaderOption {
	return func(l *Loader) {
		if log != nil {
			l.log = log
		}
	}
}

// WithSource registers or replaces a program source.
func WithSource(src core.ProgramSource) LoaderOption {
	return func(l *Loader) { l.sources[src.Name] = src }
}

func withCompiler(fn func(string) ([]byte, error)) LoaderOption {
	return func(l *Loader) { l.compile = fn }
}

func NewLoader(opts ...LoaderOption) *Loader {
	l := &Loader{
		sources:   make(map[string]core.ProgramSource, len(builtin)),
		validate:  true,
		log:       nopLogger{},
		compile:   naga.Compile,
		validated: make(map[string][]byte),
	}
	for name, src := range builtin {
		l.sources[name] = src
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

func (l *Loader) Source(name string) (core.ProgramSource, error) {
	src, ok := l.sources[name]
	if !ok {
		return core.ProgramSource{}, fmt.Errorf("%w: %s", ErrUnknownProgram, name)
	}
	return src, nil
}

// Load compiles the named program on dev.
func (l *Loader) Load(dev core.Device, name string) (core.Program, error) {
	src, err := l.Source(name)
	if err != nil {
		return nil, err
	}
	if spirv, ok := l.cached(src.Name); ok {
		src.SPIRV = spirv
	} else if l.validate {
		l.check(src)
	}
	prog, err := dev.CreateProgram(src)
	if err != nil {
		return nil, fmt.Errorf("create program %s: %w", name, err)
	}
	return prog, nil
}

// StreamSignature returns the record layout written by a simulate program.
func (l *Loader) StreamSignature(name string) (core.VertexLayout, error) {
	src, err := l.Source(name)
	if err != nil {
		return core.VertexLayout{}, err
	}
	if src.Kind != core.ProgramSimulate {
		return core.VertexLayout{}, fmt.Errorf("%s is a %s program", name, src.Kind)
	}
	return StructLayout(src.Code, "Particle")
}

// InputSignature returns the vertex input layout of a visual program.
func (l *Loader) InputSignature(name string) (core.VertexLayout, error) {
	src, err := l.Source(name)
	if err != nil {
		return core.VertexLayout{}, err
	}
	if src.Kind == core.ProgramSimulate {
		return core.VertexLayout{}, fmt.Errorf("%s is a %s program", name, src.Kind)
	}
	return StructLayout(src.Code, "ParticleIn")
}

func (l *Loader) check(src core.ProgramSource) {
	// Programs sharing one module are compiled once.
	spirv, seen := l.validated[src.Code]
	if !seen {
		var err error
		spirv, err = l.compile(src.Code)
		if err != nil {
			l.log.Warnf("shader %s: naga validation skipped: %v", src.Name, err)
			spirv = nil
		} else if !isSPIRV(spirv) {
			l.log.Warnf("shader %s: naga produced no SPIR-V module", src.Name)
			spirv = nil
		} else {
			l.log.Debugf("shader %s: validated (%d bytes SPIR-V)", src.Name, len(spirv))
		}
		l.validated[src.Code] = spirv
	}
	if spirv == nil || l.cacheDir == "" {
		return
	}
	if err := l.store(src.Name, spirv); err != nil {
		l.log.Warnf("shader %s: cache write failed: %v", src.Name, err)
	}
}

func isSPIRV(b []byte) bool {
	if len(b) < 4 {
		return false
	}
	return uint32(b[0])|uint32(b[1])<<8|uint32(b[2])<<16|uint32(b[3])<<24 == spirvMagic
}

// CachePath is where the SPIR-V of name is stored.
func (l *Loader) CachePath(name string) string {
	return filepath.Join(l.cacheDir, strings.ReplaceAll(name, ".", "_")+".spv")
}

// cached returns the stored binary of name. Unreadable or foreign files are
// reported and left for check to replace.
func (l *Loader) cached(name string) ([]byte, bool) {
	if l.cacheDir == "" || l.overwrite {
		return nil, false
	}
	path := l.CachePath(name)
	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return nil, false
	}
	if err != nil {
		l.log.Warnf("shader %s: cache read failed: %v", name, err)
		return nil, false
	}
	if !isSPIRV(data) {
		l.log.Warnf("shader %s: %s is not a SPIR-V module, rebuilding", name, path)
		return nil, false
	}
	l.log.Debugf("shader %s: using cached SPIR-V (%d bytes)", name, len(data))
	return data, true
}

func (l *Loader) store(name string, spirv []byte) error {
	if err := os.MkdirAll(l.cacheDir, 0o755); err != nil {
		return err
	}
	return os.WriteFile(l.CachePath(name), spirv, 0o644)
}
