package catalog

import (
	"bytes"
	"embed"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"
)

//go:embed apps/*.yaml
var builtin embed.FS

// ErrUnknownApp is returned when no app has the requested name.
var ErrUnknownApp = errors.New("unknown app")

// Catalog is an immutable set of apps keyed by name.
type Catalog struct {
	apps   []*App
	byName map[string]*App
}

// New builds a catalog, rejecting duplicate names.
func New(apps ...*App) (*Catalog, error) {
	c := &Catalog{byName: make(map[string]*App, len(apps))}
	for _, a := range apps {
		if _, dup := c.byName[a.Name]; dup {
			return nil, fmt.Errorf("duplicate app %q", a.Name)
		}
		c.byName[a.Name] = a
		c.apps = append(c.apps, a)
	}
	sort.Slice(c.apps, func(i, j int) bool { return c.apps[i].Name < c.apps[j].Name })
	return c, nil
}

// Get returns the named app.
func (c *Catalog) Get(name string) (*App, error) {
	a, ok := c.byName[name]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownApp, name)
	}
	return a, nil
}

// Apps returns every app sorted by name.
func (c *Catalog) Apps() []*App {
	return append([]*App(nil), c.apps...)
}

// Parse decodes and validates one app definition. Unknown keys are rejected so
// a misspelt field cannot silently fall back to a default.
func Parse(data []byte) (*App, error) {
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)

	var app App
	if err := dec.Decode(&app); err != nil {
		return nil, fmt.Errorf("failed to decode app: %w", err)
	}
	if err := app.Validate(); err != nil {
		return nil, err
	}
	return &app, nil
}

// LoadFS parses every *.yaml file in dir of fsys.
func LoadFS(fsys fs.FS, dir string) ([]*App, error) {
	entries, err := fs.ReadDir(fsys, dir)
	if err != nil {
		return nil, err
	}
	var apps []*App
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), ".yaml") {
			continue
		}
		data, err := fs.ReadFile(fsys, path.Join(dir, e.Name()))
		if err != nil {
			return nil, err
		}
		app, err := Parse(data)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", e.Name(), err)
		}
		apps = append(apps, app)
	}
	return apps, nil
}

// Builtin returns the apps compiled into the binary.
func Builtin() ([]*App, error) {
	return LoadFS(builtin, "apps")
}

// Load returns the builtin apps plus any found in dir (which may be empty).
// An app in dir replaces a builtin app of the same name. When only is
// non-empty, apps not listed are dropped.
func Load(dir string, only []string) (*Catalog, error) {
	apps, err := Builtin()
	if err != nil {
		return nil, fmt.Errorf("failed to load builtin apps: %w", err)
	}

	if dir != "" {
		extra, err := LoadFS(os.DirFS(dir), ".")
		if err != nil {
			return nil, fmt.Errorf("failed to load apps from %s: %w", dir, err)
		}
		apps = merge(apps, extra)
	}

	if len(only) > 0 {
		keep := make(map[string]bool, len(only))
		for _, name := range only {
			keep[name] = true
		}
		filtered := apps[:0]
		for _, a := range apps {
			if keep[a.Name] {
				filtered = append(filtered, a)
				delete(keep, a.Name)
			}
		}
		if len(keep) > 0 {
			missing := make([]string, 0, len(keep))
			for name := range keep {
				missing = append(missing, name)
			}
			sort.Strings(missing)
			return nil, fmt.Errorf("%w: %s", ErrUnknownApp, strings.Join(missing, ", "))
		}
		apps = filtered
	}
	return New(apps...)
}

func merge(base, override []*App) []*App {
	idx := make(map[string]int, len(base))
	for i, a := range base {
		idx[a.Name] = i
	}
	for _, a := range override {
		if i, ok := idx[a.Name]; ok {
			base[i] = a
			continue
		}
		idx[a.Name] = len(base)
		base = append(base, a)
	}
	return base
}
