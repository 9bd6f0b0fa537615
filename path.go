package squashfs

import (
	"io/fs"
	"strings"
)

// resolvePath walks name from the archive root, following symlinks
// (including the final component) up to the archive's configured depth
// limit (spec.md §4.M, §6.2 WithMaxSymlinkDepth).
func (a *Archive) resolvePath(name string) (*Inode, error) {
	if name == "." {
		return a.rootIno, nil
	}
	return a.lookup(a.rootIno, []*Inode{a.rootIno}, name, true, 0)
}

// Lstat resolves name like resolvePath but does not follow a symlink named
// by the final path component.
func (a *Archive) Lstat(name string) (*Inode, error) {
	if name == "." {
		return a.rootIno, nil
	}
	return a.lookup(a.rootIno, []*Inode{a.rootIno}, name, false, 0)
}

// lookup walks path component by component starting at dir, whose ancestor
// chain (root-first) is stack; followFinal controls whether a symlink named
// by path's last component is itself resolved.
func (a *Archive) lookup(dir *Inode, stack []*Inode, path string, followFinal bool, depth int) (*Inode, error) {
	parts := strings.Split(path, "/")
	cur := dir
	for i, part := range parts {
		switch part {
		case "", ".":
			continue
		case "..":
			if len(stack) > 1 {
				stack = stack[:len(stack)-1]
			}
			cur = stack[len(stack)-1]
			continue
		}

		if !cur.IsDir() {
			return nil, ErrNotDirectory
		}
		child, err := a.lookupChild(cur, part)
		if err != nil {
			return nil, err
		}

		isLast := i == len(parts)-1
		if child.IsSymlink() && (!isLast || followFinal) {
			var err error
			cur, stack, err = a.followSymlink(child, stack, depth)
			if err != nil {
				return nil, err
			}
			continue
		}

		cur = child
		stack = append(stack, cur)
	}
	return cur, nil
}

// lookupChild scans dir's listing for name, returning ErrOutOfBounds-free
// fs.ErrNotExist semantics via the sentinel from io/fs. Seeks via dir's
// directory index first when it has one, rather than always scanning from
// the listing's start.
func (a *Archive) lookupChild(dir *Inode, name string) (*Inode, error) {
	it, err := a.dirIteratorNear(dir, name)
	if err != nil {
		return nil, err
	}
	for {
		e, err := it.next()
		if err != nil {
			return nil, err
		}
		if e == nil {
			return nil, fs.ErrNotExist
		}
		if e.name == name {
			return e.Inode()
		}
	}
}

// followSymlink resolves one symlink hop, expanding its target against cur's
// ancestor stack (absolute targets restart at root).
func (a *Archive) followSymlink(link *Inode, stack []*Inode, depth int) (*Inode, []*Inode, error) {
	if depth >= a.cfg.maxSymlinkDepth {
		return nil, nil, ErrTooManySymlinks
	}
	target := string(link.TargetPath)

	// stack's top is already the directory lookupChild scanned to find this
	// symlink, i.e. the symlink's own parent directory: the symlink itself
	// is never pushed onto stack. A relative target resolves against that
	// directory directly; only an absolute target needs to restart at root.
	base := stack[len(stack)-1]
	baseStack := stack
	if strings.HasPrefix(target, "/") {
		base = a.rootIno
		baseStack = []*Inode{a.rootIno}
		target = strings.TrimPrefix(target, "/")
	}

	resolved, err := a.lookup(base, baseStack, target, true, depth+1)
	if err != nil {
		return nil, nil, err
	}
	return resolved, append(append([]*Inode{}, baseStack...), resolved), nil
}
