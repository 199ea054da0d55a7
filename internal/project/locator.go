// Package project discovers the Zowe team configuration files that apply to
// a working directory.
package project

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/jellydator/ttlcache/v3"
)

const (
	ConfigName     = "zowe.config.json"
	UserConfigName = "zowe.config.user.json"
)

// Layer is one configuration file found on disk.
type Layer struct {
	Path   string `json:"path" yaml:"path"`
	User   bool   `json:"user" yaml:"user"`
	Global bool   `json:"global" yaml:"global"`
}

// Result lists the layers for one directory, highest precedence first:
// user before team file, nearer directories before farther ones, project
// layers before global ones.
type Result struct {
	Cwd    string  `json:"cwd" yaml:"cwd"`
	Layers []Layer `json:"layers" yaml:"layers"`
}

// Nearest returns the highest precedence layer path, or "" when none exist.
func (r *Result) Nearest() string {
	if r == nil || len(r.Layers) == 0 {
		return ""
	}
	return r.Layers[0].Path
}

var statFn = os.Stat

// Locator walks up from a directory looking for configuration files. Results
// are cached per directory so repeated invocations from the same place skip
// the walk.
type Locator struct {
	home  string
	cache *ttlcache.Cache[string, *Result]
}

// NewLocator returns a Locator caching results for ttl. home is the global
// configuration directory, searched after every project directory; empty
// disables the global layer. A ttl of zero disables caching.
func NewLocator(home string, ttl time.Duration) *Locator {
	l := &Locator{home: home}
	if ttl > 0 {
		l.cache = ttlcache.New[string, *Result](
			ttlcache.WithTTL[string, *Result](ttl),
			ttlcache.WithDisableTouchOnHit[string, *Result](),
		)
		go l.cache.Start()
	}
	return l
}

// Close stops the cache expiration loop.
func (l *Locator) Close() {
	if l.cache != nil {
		l.cache.Stop()
	}
}

// Cached returns how many directories currently have a cached result.
func (l *Locator) Cached() int {
	if l.cache == nil {
		return 0
	}
	return l.cache.Len()
}

// Find returns the configuration layers that apply to cwd.
func (l *Locator) Find(cwd string) (*Result, error) {
	if cwd == "" {
		return nil, errors.New("working directory is empty")
	}
	if !filepath.IsAbs(cwd) {
		return nil, fmt.Errorf("working directory %q is not absolute", cwd)
	}
	cwd = filepath.Clean(cwd)

	if l.cache != nil {
		if item := l.cache.Get(cwd); item != nil {
			return item.Value(), nil
		}
	}

	res, err := l.walk(cwd)
	if err != nil {
		return nil, err
	}
	if l.cache != nil {
		l.cache.Set(cwd, res, ttlcache.DefaultTTL)
	}
	return res, nil
}

func (l *Locator) walk(cwd string) (*Result, error) {
	res := &Result{Cwd: cwd, Layers: []Layer{}}

	globalDir := ""
	if l.home != "" {
		globalDir = filepath.Clean(l.home)
	}

	dir := cwd
	for {
		if dir != globalDir {
			found, err := layersIn(dir, false)
			if err != nil {
				return nil, err
			}
			res.Layers = append(res.Layers, found...)
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			break
		}
		dir = parent
	}

	if globalDir != "" {
		found, err := layersIn(globalDir, true)
		if err != nil {
			return nil, err
		}
		res.Layers = append(res.Layers, found...)
	}
	return res, nil
}

func layersIn(dir string, global bool) ([]Layer, error) {
	var out []Layer
	for _, name := range []string{UserConfigName, ConfigName} {
		path := filepath.Join(dir, name)
		info, err := statFn(path)
		if err != nil {
			if errors.Is(err, os.ErrNotExist) || errors.Is(err, os.ErrPermission) {
				continue
			}
			return nil, fmt.Errorf("checking %s: %w", path, err)
		}
		if info.IsDir() {
			continue
		}
		out = append(out, Layer{Path: path, User: name == UserConfigName, Global: global})
	}
	return out, nil
}
