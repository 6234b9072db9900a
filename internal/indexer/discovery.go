package indexer

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/karrick/godirwalk"
	gitignore "github.com/sabhiram/go-gitignore"

	"github.com/VioletCranberry/coco-search/internal/lang"
)

// skipDirs are directory names never descended into regardless of
// gitignore rules.
var skipDirs = map[string]bool{
	"vendor":       true,
	"node_modules": true,
	"target":       true,
	"dist":         true,
	"__pycache__":  true,
}

// DiscoverOptions narrows file discovery.
type DiscoverOptions struct {
	// Languages restricts discovery to these language ids. Empty means
	// every registered language.
	Languages []string

	// IncludeHidden walks into dot-directories when set.
	IncludeHidden bool
}

// DiscoverFiles walks root and returns paths (relative to root) of
// files whose extension is registered, honoring .gitignore when one
// exists at the root.
func DiscoverFiles(root string, registry *lang.Registry, opts DiscoverOptions) ([]string, error) {
	root, err := filepath.Abs(root)
	if err != nil {
		return nil, fmt.Errorf("resolve root: %w", err)
	}
	info, err := os.Stat(root)
	if err != nil {
		return nil, fmt.Errorf("stat root: %w", err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("root %s is not a directory", root)
	}

	wanted := make(map[string]bool, len(opts.Languages))
	for _, id := range opts.Languages {
		wanted[id] = true
	}

	var ignorer *gitignore.GitIgnore
	if gi, err := gitignore.CompileIgnoreFile(filepath.Join(root, ".gitignore")); err == nil {
		ignorer = gi
	}

	var files []string
	err = godirwalk.Walk(root, &godirwalk.Options{
		Unsorted: true,
		Callback: func(path string, de *godirwalk.Dirent) error {
			rel, err := filepath.Rel(root, path)
			if err != nil {
				return err
			}
			if rel == "." {
				return nil
			}

			name := de.Name()
			if de.IsDir() {
				if skipDirs[name] {
					return filepath.SkipDir
				}
				if !opts.IncludeHidden && strings.HasPrefix(name, ".") {
					return filepath.SkipDir
				}
				if ignorer != nil && ignorer.MatchesPath(rel+"/") {
					return filepath.SkipDir
				}
				return nil
			}

			if !opts.IncludeHidden && strings.HasPrefix(name, ".") {
				return nil
			}
			if ignorer != nil && ignorer.MatchesPath(rel) {
				return nil
			}

			spec := registry.LookupPath(path)
			if spec == nil {
				return nil
			}
			if len(wanted) > 0 && !wanted[spec.ID] {
				return nil
			}

			files = append(files, filepath.ToSlash(rel))
			return nil
		},
		ErrorCallback: func(path string, err error) godirwalk.ErrorAction {
			// Unreadable entries are skipped, not fatal.
			return godirwalk.SkipNode
		},
	})
	if err != nil {
		return nil, fmt.Errorf("walk %s: %w", root, err)
	}

	sort.Strings(files)
	return files, nil
}
