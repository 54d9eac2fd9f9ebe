// Package workspace maintains the registered workspace list under the
// state home. A workspace is a directory containing workflow files; runs
// are recorded against the workspace they came from.
package workspace

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"
)

// Workspace is one registered directory.
type Workspace struct {
	Name    string    `json:"name"`
	Path    string    `json:"path"`
	AddedAt time.Time `json:"addedAt"`
}

// Registry reads and writes the workspace list.
type Registry struct {
	mu   sync.Mutex
	home string
}

// NewRegistry creates a registry rooted at the state home.
func NewRegistry(home string) *Registry {
	return &Registry{home: home}
}

func (r *Registry) path() string { return filepath.Join(r.home, "workspaces.json") }

// Init creates the state home layout: the root, the runs directory and an
// empty workspace list. Safe to call repeatedly.
func (r *Registry) Init() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if err := os.MkdirAll(filepath.Join(r.home, "runs"), 0o755); err != nil {
		return fmt.Errorf("failed to create state directory: %w", err)
	}
	if _, err := os.Stat(r.path()); err == nil {
		return nil
	}
	return r.write([]Workspace{})
}

// Add registers a directory. The workspace name is the directory base name;
// re-adding an already registered path is a no-op.
func (r *Registry) Add(dir string) (*Workspace, error) {
	abs, err := filepath.Abs(dir)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve path %s: %w", dir, err)
	}
	info, err := os.Stat(abs)
	if err != nil {
		return nil, fmt.Errorf("workspace path does not exist: %w", err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("workspace path is not a directory: %s", abs)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	list, err := r.read()
	if err != nil {
		return nil, err
	}
	for i := range list {
		if list[i].Path == abs {
			return &list[i], nil
		}
	}

	ws := Workspace{
		Name:    filepath.Base(abs),
		Path:    abs,
		AddedAt: time.Now(),
	}
	list = append(list, ws)
	if err := r.write(list); err != nil {
		return nil, err
	}
	return &ws, nil
}

// Remove unregisters a workspace by name or path.
func (r *Registry) Remove(ref string) error {
	abs, _ := filepath.Abs(ref)

	r.mu.Lock()
	defer r.mu.Unlock()

	list, err := r.read()
	if err != nil {
		return err
	}
	kept := list[:0]
	removed := false
	for _, ws := range list {
		if ws.Name == ref || ws.Path == ref || ws.Path == abs {
			removed = true
			continue
		}
		kept = append(kept, ws)
	}
	if !removed {
		return fmt.Errorf("workspace not registered: %s", ref)
	}
	return r.write(kept)
}

// List returns all registered workspaces.
func (r *Registry) List() ([]Workspace, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.read()
}

// Find locates a workspace by name or path.
func (r *Registry) Find(ref string) (*Workspace, error) {
	abs, _ := filepath.Abs(ref)

	list, err := r.List()
	if err != nil {
		return nil, err
	}
	for i := range list {
		if list[i].Name == ref || list[i].Path == ref || list[i].Path == abs {
			return &list[i], nil
		}
	}
	return nil, fmt.Errorf("workspace not registered: %s", ref)
}

// ForDir returns the registered workspace containing dir, or a synthetic
// unregistered one so runs outside any workspace still record history.
func (r *Registry) ForDir(dir string) Workspace {
	abs, err := filepath.Abs(dir)
	if err != nil {
		abs = dir
	}
	list, err := r.List()
	if err == nil {
		for _, ws := range list {
			if abs == ws.Path || isUnder(abs, ws.Path) {
				return ws
			}
		}
	}
	return Workspace{Name: filepath.Base(abs), Path: abs}
}

func isUnder(path, root string) bool {
	rel, err := filepath.Rel(root, path)
	if err != nil {
		return false
	}
	return rel == "." || (rel != ".." && !strings.HasPrefix(rel, ".."+string(filepath.Separator)))
}

func (r *Registry) read() ([]Workspace, error) {
	data, err := os.ReadFile(r.path())
	if os.IsNotExist(err) {
		return []Workspace{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read workspace list: %w", err)
	}
	var list []Workspace
	if err := json.Unmarshal(data, &list); err != nil {
		return nil, fmt.Errorf("failed to decode workspace list: %w", err)
	}
	return list, nil
}

func (r *Registry) write(list []Workspace) error {
	if err := os.MkdirAll(r.home, 0o755); err != nil {
		return fmt.Errorf("failed to create state directory: %w", err)
	}
	data, err := json.MarshalIndent(list, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode workspace list: %w", err)
	}
	tmp, err := os.CreateTemp(r.home, "workspaces.tmp-*")
	if err != nil {
		return err
	}
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return err
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return err
	}
	return os.Rename(tmp.Name(), r.path())
}
