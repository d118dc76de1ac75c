package cmd

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"github.com/KaramelBytes/cplog-cli/internal/dataset"
)

// collectInputs expands globs and directories into a sorted, de-duplicated
// list of log files. The sorted order is the merge order.
func collectInputs(args []string, opt dataset.DiscoverOptions) ([]string, error) {
	seen := map[string]struct{}{}
	var files []string
	for _, arg := range args {
		matches, _ := filepath.Glob(arg)
		if len(matches) == 0 {
			if _, err := os.Stat(arg); err != nil {
				return nil, fmt.Errorf("input %s: %w", arg, err)
			}
			matches = []string{arg}
		}
		for _, m := range matches {
			found, err := dataset.Discover(m, opt)
			if err != nil {
				return nil, err
			}
			for _, f := range found {
				if _, ok := seen[f]; ok {
					continue
				}
				seen[f] = struct{}{}
				files = append(files, f)
			}
		}
	}
	if len(files) == 0 {
		return nil, fmt.Errorf("no input files matched")
	}
	sort.Strings(files)
	return files, nil
}

// commonRoot returns the directory argument when exactly one was given, so
// records can be named by their path below it.
func commonRoot(args []string) string {
	if len(args) != 1 {
		return ""
	}
	if info, err := os.Stat(args[0]); err == nil && info.IsDir() {
		return args[0]
	}
	return ""
}
