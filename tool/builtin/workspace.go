package builtin

import (
	"path/filepath"
	"strings"

	"github.com/spf13/afero"
)

// Workspace confines file tools to a directory tree. Paths given by the
// model, absolute or relative, are resolved inside the root and ".." cannot
// climb above it.
type Workspace struct {
	root string
	fs   afero.Fs
}

// NewWorkspace roots a workspace at dir on the OS filesystem.
func NewWorkspace(dir string) *Workspace {
	abs, err := filepath.Abs(dir)
	if err != nil {
		abs = dir
	}
	return &Workspace{root: abs, fs: afero.NewBasePathFs(afero.NewOsFs(), abs)}
}

// NewMemWorkspace returns a workspace backed by an in-memory filesystem.
func NewMemWorkspace() *Workspace {
	return &Workspace{root: "/", fs: afero.NewMemMapFs()}
}

// Root returns the directory the workspace is confined to.
func (w *Workspace) Root() string { return w.root }

// Fs exposes the confined filesystem.
func (w *Workspace) Fs() afero.Fs { return w.fs }

// clean normalizes a model supplied path to a workspace relative one.
func (w *Workspace) clean(p string) string {
	p = filepath.ToSlash(strings.TrimSpace(p))
	if w.root != "/" && strings.HasPrefix(p, filepath.ToSlash(w.root)+"/") {
		p = strings.TrimPrefix(p, filepath.ToSlash(w.root))
	}
	return filepath.Clean("/" + p)
}
