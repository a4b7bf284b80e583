// Package scanner walks directory trees looking for inputs decomp can
// analyse: LLVM assembly (.ll), Go source (.go) and YAML CFG fixtures
// (.cfg.yaml). It respects .decompignore files with gitignore-style patterns.
package scanner

import (
	"bufio"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/l3aro/go-decomp/internal/config"
)

// FileInfo represents information about a discovered input.
type FileInfo struct {
	Path     string          // Relative path from root, slash separated
	FullPath string          // Absolute path
	Kind     config.Frontend // Front-end that loads the file
	Size     int64           // File size in bytes
}

// Options configures the scanner behavior.
type Options struct {
	SkipHidden      bool     // Skip hidden files and directories (starting with .)
	FollowSymlinks  bool     // Follow file symlinks that stay within root
	SkipGoTests     bool     // Skip _test.go files
	IncludeTestdata bool     // Descend into testdata directories
	DefaultExcludes []string // Directory names never descended into
	Exclude         []string // Extra ignore patterns applied at the root
	IgnoreFileName  string   // Name of the ignore file (default: .decompignore)
}

// DefaultOptions returns scanner options with sensible defaults.
func DefaultOptions() Options {
	return Options{
		SkipHidden:     true,
		SkipGoTests:    true,
		IgnoreFileName: ".decompignore",
		DefaultExcludes: []string{
			".git",
			".hg",
			".svn",
			"vendor",
			"node_modules",
			"testdata",
			"build",
			"dist",
		},
	}
}

// OptionsFromConfig returns DefaultOptions extended with the config's
// exclude patterns.
func OptionsFromConfig(cfg *config.Config) Options {
	opts := DefaultOptions()
	opts.Exclude = append(opts.Exclude, cfg.Exclude...)
	return opts
}

// Scanner provides file tree scanning capabilities.
type Scanner struct {
	opts Options
	root string
}

// New creates a new Scanner with the given options.
func New(opts Options) *Scanner {
	if opts.IgnoreFileName == "" {
		opts.IgnoreFileName = ".decompignore"
	}
	return &Scanner{opts: opts}
}

// Scan recursively scans the directory at root and returns the analysable
// inputs sorted by path. A root that is a single file is returned as is
// when its kind is known.
func (s *Scanner) Scan(root string) ([]FileInfo, error) {
	absRoot, err := filepath.Abs(root)
	if err != nil {
		return nil, fmt.Errorf("getting absolute path: %w", err)
	}
	s.root = absRoot

	st, err := os.Stat(absRoot)
	if err != nil {
		return nil, fmt.Errorf("stat %s: %w", root, err)
	}
	if !st.IsDir() {
		kind := DetectKind(st.Name())
		if kind == "" {
			return nil, nil
		}
		return []FileInfo{{Path: st.Name(), FullPath: absRoot, Kind: kind, Size: st.Size()}}, nil
	}

	var ignores ignoreSet
	for _, p := range s.opts.Exclude {
		ignores = append(ignores, scopedPattern{IgnorePattern: ParseIgnorePattern(p)})
	}

	var files []FileInfo

	err = filepath.WalkDir(absRoot, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			// unreadable entries are skipped, not fatal
			if d != nil && d.IsDir() && path != absRoot {
				return filepath.SkipDir
			}
			return nil
		}

		relPath, err := filepath.Rel(absRoot, path)
		if err != nil {
			return nil
		}
		rel := filepath.ToSlash(relPath)

		if rel == "." {
			patterns, err := s.loadIgnorePatterns(path, "")
			if err != nil {
				return fmt.Errorf("loading ignore patterns: %w", err)
			}
			ignores = append(ignores, patterns...)
			return nil
		}

		if s.opts.SkipHidden && strings.HasPrefix(d.Name(), ".") {
			if d.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}

		if d.IsDir() {
			if s.isDefaultExcluded(d.Name()) || ignores.ignored(rel, true) {
				return filepath.SkipDir
			}
			if nested, err := s.loadIgnorePatterns(path, rel); err == nil {
				ignores = append(ignores, nested...)
			}
			return nil
		}

		kind := DetectKind(d.Name())
		if kind == "" {
			return nil
		}
		if kind == config.FrontendGoSrc && s.opts.SkipGoTests && strings.HasSuffix(d.Name(), "_test.go") {
			return nil
		}
		if ignores.ignored(rel, false) {
			return nil
		}

		info, ok := s.fileInfo(path, d)
		if !ok {
			return nil
		}

		files = append(files, FileInfo{
			Path:     rel,
			FullPath: path,
			Kind:     kind,
			Size:     info.Size(),
		})
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("walking directory: %w", err)
	}

	sort.Slice(files, func(i, j int) bool { return files[i].Path < files[j].Path })
	return files, nil
}

// fileInfo stats a regular file or, when allowed, a symlink to a regular
// file inside root.
func (s *Scanner) fileInfo(path string, d fs.DirEntry) (fs.FileInfo, bool) {
	if d.Type()&fs.ModeSymlink == 0 {
		info, err := d.Info()
		return info, err == nil
	}
	if !s.opts.FollowSymlinks {
		return nil, false
	}
	target, err := filepath.EvalSymlinks(path)
	if err != nil {
		return nil, false
	}
	realAbs, err := filepath.Abs(target)
	if err != nil {
		return nil, false
	}
	if !strings.HasPrefix(realAbs, s.root+string(filepath.Separator)) {
		return nil, false
	}
	info, err := os.Stat(realAbs)
	if err != nil || info.IsDir() {
		return nil, false
	}
	return info, true
}

func (s *Scanner) isDefaultExcluded(name string) bool {
	if s.opts.IncludeTestdata && name == "testdata" {
		return false
	}
	for _, exclude := range s.opts.DefaultExcludes {
		if strings.EqualFold(name, exclude) {
			return true
		}
	}
	return false
}

// loadIgnorePatterns reads the ignore file in dir. Patterns are scoped to
// base, the slash-separated path of dir relative to the scan root.
func (s *Scanner) loadIgnorePatterns(dir, base string) (ignoreSet, error) {
	file, err := os.Open(filepath.Join(dir, s.opts.IgnoreFileName))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}
	defer file.Close()

	var patterns ignoreSet
	sc := bufio.NewScanner(file)
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		patterns = append(patterns, scopedPattern{base: base, IgnorePattern: ParseIgnorePattern(line)})
	}
	return patterns, sc.Err()
}

// Scan is a convenience function that scans a directory with default options.
func Scan(root string) ([]FileInfo, error) {
	return New(DefaultOptions()).Scan(root)
}

// ScanAll scans several roots and concatenates the results, dropping
// duplicate absolute paths.
func ScanAll(roots []string, opts Options) ([]FileInfo, error) {
	seen := make(map[string]bool)
	var out []FileInfo
	for _, root := range roots {
		files, err := New(opts).Scan(root)
		if err != nil {
			return nil, err
		}
		for _, f := range files {
			if seen[f.FullPath] {
				continue
			}
			seen[f.FullPath] = true
			out = append(out, f)
		}
	}
	return out, nil
}
