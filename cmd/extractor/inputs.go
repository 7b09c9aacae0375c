package main

import (
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/pkg/errors"
)

// resolveInputs expands command-line arguments into a sorted, de-duplicated
// list of transcript files. Directories are searched with glob; arguments
// containing glob metacharacters are expanded; anything else is taken as a file.
// With no arguments the glob is applied to the working directory.
func resolveInputs(args []string, glob string) ([]string, error) {
	if glob == "" {
		glob = "_chat*.txt"
	}
	if len(args) == 0 {
		args = []string{"."}
	}

	seen := make(map[string]struct{})
	var out []string
	add := func(p string) {
		p = filepath.Clean(p)
		if _, ok := seen[p]; ok {
			return
		}
		seen[p] = struct{}{}
		out = append(out, p)
	}

	for _, arg := range args {
		arg = strings.TrimSpace(arg)
		if arg == "" {
			continue
		}
		if hasGlobMeta(arg) {
			matches, err := filepath.Glob(arg)
			if err != nil {
				return nil, errors.Wrapf(err, "expand %q", arg)
			}
			for _, m := range matches {
				if info, err := os.Stat(m); err == nil && info.Mode().IsRegular() {
					add(m)
				}
			}
			continue
		}
		info, err := os.Stat(arg)
		if err != nil {
			// Missing files are reported per file by the harvester.
			add(arg)
			continue
		}
		if !info.IsDir() {
			add(arg)
			continue
		}
		matches, err := filepath.Glob(filepath.Join(arg, glob))
		if err != nil {
			return nil, errors.Wrapf(err, "expand %q in %s", glob, arg)
		}
		for _, m := range matches {
			if info, err := os.Stat(m); err == nil && info.Mode().IsRegular() {
				add(m)
			}
		}
	}
	sort.Strings(out)
	return out, nil
}

func hasGlobMeta(s string) bool {
	return strings.ContainsAny(s, "*?[")
}

// watchDirs returns the directories holding inputs, for the file watcher.
func watchDirs(args []string) []string {
	if len(args) == 0 {
		return []string{"."}
	}
	seen := make(map[string]struct{})
	var out []string
	for _, arg := range args {
		dir := arg
		if hasGlobMeta(arg) {
			dir = filepath.Dir(arg)
		} else if info, err := os.Stat(arg); err != nil || !info.IsDir() {
			dir = filepath.Dir(arg)
		}
		dir = filepath.Clean(dir)
		if _, ok := seen[dir]; ok {
			continue
		}
		seen[dir] = struct{}{}
		out = append(out, dir)
	}
	sort.Strings(out)
	return out
}
