package manifest

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"github.com/tliron/commonlog"
)

var log = commonlog.GetLogger("nother.manifest")

// ReservedPrefix is the include prefix of the bundled library.
const ReservedPrefix = "std"

// ResolvedDep represents a dependency that has been resolved to a local path.
type ResolvedDep struct {
	Name      string    // dependency name
	LocalPath string    // local filesystem path
	Prefix    string    // include prefix for this dependency
	Manifest  *Manifest // the dependency's own manifest (may be nil)
	Spec      Dependency
}

// SourceDirs returns the directories searched for "<prefix>/<name>"
// includes: the dependency's own source dirs, or its root without a
// manifest.
func (d ResolvedDep) SourceDirs() []string {
	if d.Manifest != nil {
		return d.Manifest.SourceDirPaths()
	}
	return []string{d.LocalPath}
}

// Resolver manages dependency resolution.
type Resolver struct {
	manifest *Manifest
	lock     *LockFile
}

// NewResolver creates a new dependency resolver.
func NewResolver(m *Manifest) *Resolver {
	return &Resolver{manifest: m}
}

// Resolve resolves all dependencies and returns them in load order
// (dependencies before dependents).
func (r *Resolver) Resolve() ([]ResolvedDep, error) {
	if len(r.manifest.Dependencies) == 0 {
		return nil, nil
	}

	lock, err := ReadLock(r.manifest.LockFilePath())
	if err != nil {
		return nil, fmt.Errorf("reading lock file: %w", err)
	}
	r.lock = lock

	resolved := make(map[string]*ResolvedDep)
	prefixes := make(map[string]string)
	order, err := r.resolveAll(r.manifest.Dir, r.manifest.Dependencies, resolved, prefixes)
	if err != nil {
		return nil, err
	}

	if err := r.writeLock(resolved); err != nil {
		return nil, fmt.Errorf("writing lock file: %w", err)
	}
	return order, nil
}

// resolveAll resolves a set of dependencies declared by the manifest in
// base, recursively and in name order so the result is deterministic.
func (r *Resolver) resolveAll(base string, deps map[string]Dependency, resolved map[string]*ResolvedDep, prefixes map[string]string) ([]ResolvedDep, error) {
	names := make([]string, 0, len(deps))
	for name := range deps {
		names = append(names, name)
	}
	sort.Strings(names)

	var order []ResolvedDep
	for _, name := range names {
		if _, ok := resolved[name]; ok {
			continue // already resolved
		}

		rd, err := r.resolveOne(base, name, deps[name])
		if err != nil {
			return nil, fmt.Errorf("resolving %s: %w", name, err)
		}
		if other, ok := prefixes[rd.Prefix]; ok {
			return nil, fmt.Errorf("dependencies %q and %q both use include prefix %q", other, name, rd.Prefix)
		}
		prefixes[rd.Prefix] = name
		resolved[name] = rd

		if rd.Manifest != nil && len(rd.Manifest.Dependencies) > 0 {
			transitive, err := r.resolveAll(rd.Manifest.Dir, rd.Manifest.Dependencies, resolved, prefixes)
			if err != nil {
				return nil, err
			}
			order = append(order, transitive...)
		}

		order = append(order, *rd)
	}
	return order, nil
}

// resolvePrefix determines the include prefix for a dependency:
//  1. Consumer override (dep.Prefix from TOML)
//  2. Producer manifest (depManifest.Project.Name)
//  3. The dependency's key
func resolvePrefix(name string, dep Dependency, depManifest *Manifest) (string, error) {
	var prefix string
	switch {
	case dep.Prefix != "":
		prefix = dep.Prefix
	case depManifest != nil && depManifest.Project.Name != "":
		prefix = depManifest.Project.Name
	default:
		prefix = name
	}

	if prefix == ReservedPrefix {
		return "", fmt.Errorf("dependency %q resolves to reserved include prefix %q; add prefix = \"...\" in [dependencies]", name, prefix)
	}
	return prefix, nil
}

func (r *Resolver) resolveOne(base, name string, dep Dependency) (*ResolvedDep, error) {
	var localPath string

	switch {
	case dep.Path != "":
		localPath = dep.Path
		if !filepath.IsAbs(localPath) {
			localPath = filepath.Join(base, localPath)
		}
		if _, err := os.Stat(localPath); err != nil {
			return nil, fmt.Errorf("local dependency %q not found at %s: %w", name, localPath, err)
		}

	case dep.Git != "":
		if err := os.MkdirAll(r.manifest.DepsDir(), 0755); err != nil {
			return nil, fmt.Errorf("creating deps dir: %w", err)
		}
		localPath = filepath.Join(r.manifest.DepsDir(), name)
		if err := r.syncGit(name, dep, localPath); err != nil {
			return nil, err
		}

	default:
		return nil, fmt.Errorf("dependency %q has no git or path specified", name)
	}

	// A dependency without a manifest is a plain directory of sources.
	var depManifest *Manifest
	if _, err := os.Stat(filepath.Join(localPath, FileName)); err == nil {
		m, err := Load(localPath)
		if err != nil {
			return nil, err
		}
		depManifest = m
	}

	prefix, err := resolvePrefix(name, dep, depManifest)
	if err != nil {
		return nil, err
	}
	log.Debugf("dependency %s at %s as %s/", name, localPath, prefix)

	return &ResolvedDep{
		Name:      name,
		LocalPath: localPath,
		Prefix:    prefix,
		Manifest:  depManifest,
		Spec:      dep,
	}, nil
}

func (r *Resolver) syncGit(name string, dep Dependency, dir string) error {
	if _, err := os.Stat(dir); os.IsNotExist(err) {
		log.Infof("cloning %s from %s", name, dep.Git)
		if err := gitClone(dep.Git, dir); err != nil {
			return err
		}
	} else if locked := r.lock.FindLockedDep(name); locked == nil || locked.Tag != dep.Tag {
		log.Infof("fetching %s", name)
		if err := gitFetch(dir); err != nil {
			return err
		}
	}

	if dep.Tag != "" {
		return gitCheckout(dir, dep.Tag)
	}
	return nil
}

// writeLock writes the resolved dependencies to the lock file.
func (r *Resolver) writeLock(resolved map[string]*ResolvedDep) error {
	lf := &LockFile{}

	names := make([]string, 0, len(resolved))
	for name := range resolved {
		names = append(names, name)
	}
	sort.Strings(names)

	for _, name := range names {
		rd := resolved[name]
		ld := LockedDep{Name: name}

		dep := rd.Spec
		if dep.Git != "" {
			ld.Git = dep.Git
			ld.Tag = dep.Tag
			if commit, err := gitCurrentCommit(rd.LocalPath); err == nil {
				ld.Commit = commit
			}
		} else {
			ld.Path = dep.Path
		}
		lf.Deps = append(lf.Deps, ld)
	}

	if err := os.MkdirAll(filepath.Dir(r.manifest.LockFilePath()), 0755); err != nil {
		return err
	}
	return WriteLock(r.manifest.LockFilePath(), lf)
}
