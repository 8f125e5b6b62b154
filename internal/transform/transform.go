// Package transform defines the user-pluggable stage functions of the
// pipeline and the loader for correction scripts. A transform's source
// bytes participate in the stage fingerprint, so editing a script changes
// the cache key of its stage and everything downstream.
package transform

import (
	"context"
	"fmt"
	"os"
)

// Transform is one stage function: bytes in, bytes out. Implementations
// must be deterministic with respect to their input and Source.
type Transform interface {
	// Name identifies the transform in logs and errors.
	Name() string
	// Source returns the bytes hashed into the stage fingerprint. For
	// loaded scripts this is the script body; for built-in transforms a
	// version marker that is bumped when the behavior changes.
	Source() []byte
	Apply(ctx context.Context, in []byte) ([]byte, error)
}

// Error wraps a transform failure with the transform's name.
type Error struct {
	Name  string
	Cause error
}

func (e *Error) Error() string {
	return fmt.Sprintf("transform %q failed: %v", e.Name, e.Cause)
}

func (e *Error) Unwrap() error { return e.Cause }

// Func adapts a plain function into a Transform.
type Func struct {
	name   string
	source []byte
	fn     func(ctx context.Context, in []byte) ([]byte, error)
}

func NewFunc(name string, source []byte, fn func(ctx context.Context, in []byte) ([]byte, error)) *Func {
	return &Func{name: name, source: source, fn: fn}
}

func (f *Func) Name() string   { return f.name }
func (f *Func) Source() []byte { return f.source }

func (f *Func) Apply(ctx context.Context, in []byte) ([]byte, error) {
	return f.fn(ctx, in)
}

// Invoke runs a transform, converting panics and errors into *Error. User
// scripts run in-process, so a panicking rule must not take the worker
// down with it.
func Invoke(ctx context.Context, t Transform, in []byte) (out []byte, err error) {
	defer func() {
		if r := recover(); r != nil {
			out = nil
			err = &Error{Name: t.Name(), Cause: fmt.Errorf("panic: %v", r)}
		}
	}()
	if cerr := ctx.Err(); cerr != nil {
		return nil, cerr
	}
	res, aerr := t.Apply(ctx, in)
	if aerr != nil {
		return nil, &Error{Name: t.Name(), Cause: aerr}
	}
	return res, nil
}

// Loader resolves the correction transform for a run. The script file is
// re-read on every Load, so edits take effect on the next run and show up
// as a new fingerprint without restarting the service.
type Loader struct {
	Path string
}

// Load returns the current correction script, or (nil, nil) when no script
// is configured or the file does not exist. A present but invalid script
// is an error, not a silent pass-through.
func (l *Loader) Load() (Transform, error) {
	if l == nil || l.Path == "" {
		return nil, nil
	}
	raw, err := os.ReadFile(l.Path)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read correction script %s: %w", l.Path, err)
	}
	return LoadScript(l.Path, raw)
}
