package git

import (
	"context"
	"sort"
	"strconv"
	"strings"
)

// Change is a path that differs between HEAD and the working tree.
type Change struct {
	Path      string
	OrigPath  string // rename source, if any
	Deleted   bool
	Untracked bool
}

// ChangedPaths lists staged, unstaged and untracked paths relative to HEAD,
// with renames detected. Works on an unborn branch.
func (r *Repo) ChangedPaths(ctx context.Context) ([]Change, error) {
	out, err := r.run(ctx, nil, "status", "--porcelain=v1", "-z", "--untracked-files=all")
	if err != nil {
		return nil, err
	}
	return parseStatusZ(out), nil
}

// parseStatusZ parses `git status --porcelain=v1 -z`. Each record is
// "XY path\0", renames and copies carry an extra "orig\0" record.
func parseStatusZ(out []byte) []Change {
	records := strings.Split(string(out), "\x00")
	var changes []Change
	for i := 0; i < len(records); i++ {
		rec := records[i]
		if len(rec) < 4 {
			continue
		}
		x, y := rec[0], rec[1]
		c := Change{Path: rec[3:]}
		switch {
		case x == '?' && y == '?':
			c.Untracked = true
		case x == '!':
			continue
		}
		if x == 'R' || x == 'C' {
			if i+1 < len(records) {
				c.OrigPath = records[i+1]
				i++
			}
		}
		if x == 'D' || y == 'D' {
			c.Deleted = true
		}
		changes = append(changes, c)
	}
	sort.Slice(changes, func(a, b int) bool { return changes[a].Path < changes[b].Path })
	return changes
}

// FileStatus is one entry of a name-status diff between two trees.
type FileStatus struct {
	Status   byte // 'A', 'M', 'D', 'R', 'C', 'T'
	Path     string
	OrigPath string
}

// DiffNameStatus lists files changed between two commits with renames
// detected. An empty from compares against the empty tree.
func (r *Repo) DiffNameStatus(ctx context.Context, from, to string) ([]FileStatus, error) {
	if from == "" {
		from = EmptyTree
	}
	out, err := r.run(ctx, nil, "diff", "--no-ext-diff", "--name-status", "-M", "-z", from, to)
	if err != nil {
		return nil, err
	}
	return parseNameStatusZ(out), nil
}

func parseNameStatusZ(out []byte) []FileStatus {
	records := strings.Split(string(out), "\x00")
	var files []FileStatus
	for i := 0; i < len(records); i++ {
		code := records[i]
		if code == "" {
			continue
		}
		st := code[0]
		if _, err := strconv.Atoi(code[1:]); len(code) > 1 && err != nil {
			continue
		}
		if i+1 >= len(records) {
			break
		}
		fs := FileStatus{Status: st}
		if st == 'R' || st == 'C' {
			if i+2 >= len(records) {
				break
			}
			fs.OrigPath = records[i+1]
			fs.Path = records[i+2]
			i += 2
		} else {
			fs.Path = records[i+1]
			i++
		}
		files = append(files, fs)
	}
	return files
}
