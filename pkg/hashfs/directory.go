package hashfs

import (
	"bufio"
	"bytes"
	"fmt"
	"path"
	"sort"
	"strings"
	"unicode/utf8"

	"golang.org/x/text/unicode/norm"
)

// dirNode is one node of the tree of implicit directories built up during
// add (spec §4.7).
type dirNode struct {
	path     string
	children map[string]*dirNode
	isFile   map[string]bool
}

func newDirNode(p string) *dirNode {
	return &dirNode{path: p, children: map[string]*dirNode{}, isFile: map[string]bool{}}
}

// directoryTree accumulates registered archive paths and, on demand,
// synthesizes one listing blob per directory (spec §4.7).
type directoryTree struct {
	root *dirNode
}

func newDirectoryTree() *directoryTree {
	return &directoryTree{root: newDirNode("/")}
}

// add ensures every intermediate prefix of archivePath exists as a
// directory node, and records archivePath's leaf name in its immediate
// parent.
func (t *directoryTree) add(archivePath string) {
	clean := normalizeArchivePath(archivePath)
	parts := strings.Split(strings.Trim(clean, "/"), "/")

	node := t.root
	dirPath := ""
	for i, part := range parts {
		isLast := i == len(parts)-1
		if isLast {
			node.isFile[part] = true
			break
		}
		dirPath = dirPath + "/" + part
		child, ok := node.children[part]
		if !ok {
			child = newDirNode(dirPath)
			node.children[part] = child
		}
		node = child
	}
}

func normalizeArchivePath(p string) string {
	return norm.NFC.String(path.Clean("/" + p))
}

// listing is one directory's synthesized contents: names, sorted, with
// subdirectory names distinguished from file names.
type listing struct {
	path string
	// names holds both files and subdirectories; isDir[i] tells which.
	names []string
	isDir []bool
}

// walk returns one listing per directory node, including the root, in
// depth-first order; each listing's path is that directory's archive path.
func (t *directoryTree) walk() []listing {
	var out []listing
	var visit func(n *dirNode)
	visit = func(n *dirNode) {
		var names []string
		var dirs []bool
		for name := range n.isFile {
			names = append(names, name)
			dirs = append(dirs, false)
		}
		for name := range n.children {
			names = append(names, name)
			dirs = append(dirs, true)
		}
		order := sortIndices(names)
		sortedNames := make([]string, len(names))
		sortedDirs := make([]bool, len(names))
		for i, idx := range order {
			sortedNames[i] = names[idx]
			sortedDirs[i] = dirs[idx]
		}
		out = append(out, listing{path: n.path, names: sortedNames, isDir: sortedDirs})

		childNames := make([]string, 0, len(n.children))
		for name := range n.children {
			childNames = append(childNames, name)
		}
		sort.Strings(childNames)
		for _, name := range childNames {
			visit(n.children[name])
		}
	}
	visit(t.root)
	return out
}

func sortIndices(names []string) []int {
	idx := make([]int, len(names))
	for i := range idx {
		idx[i] = i
	}
	sort.Slice(idx, func(a, b int) bool { return names[idx[a]] < names[idx[b]] })
	return idx
}

// encodeListingV1 renders a listing as v1's UTF-8 text format: one name
// per line, subdirectory names prefixed with '/' (spec §3).
func encodeListingV1(l listing) []byte {
	var buf bytes.Buffer
	for i, name := range l.names {
		if l.isDir[i] {
			buf.WriteByte('/')
		}
		buf.WriteString(name)
		buf.WriteByte('\n')
	}
	return buf.Bytes()
}

// decodeListingV1 parses a v1 directory-listing blob.
func decodeListingV1(data []byte) ([]string, []bool, error) {
	var names []string
	var dirs []bool
	sc := bufio.NewScanner(bytes.NewReader(data))
	for sc.Scan() {
		line := sc.Text()
		if line == "" {
			continue
		}
		name := line
		isDir := false
		if strings.HasPrefix(line, "/") {
			name = line[1:]
			isDir = true
		}
		if !utf8.ValidString(name) {
			return nil, nil, fmt.Errorf("decoding v1 directory listing: name %q is not valid UTF-8", name)
		}
		names = append(names, name)
		dirs = append(dirs, isDir)
	}
	if err := sc.Err(); err != nil {
		return nil, nil, fmt.Errorf("decoding v1 directory listing: %w", err)
	}
	return names, dirs, nil
}

// encodeListingV2 renders a listing as v2's binary format: u32 count, then
// count single-byte length-prefixed UTF-8 names, subdirectories flagged by
// a '/' prefix byte within the name (spec §3).
func encodeListingV2(l listing) []byte {
	var buf bytes.Buffer
	countBuf := make([]byte, 4)
	Endian.PutUint32(countBuf, uint32(len(l.names)))
	buf.Write(countBuf)
	for i, name := range l.names {
		entry := name
		if l.isDir[i] {
			entry = "/" + name
		}
		buf.WriteByte(byte(len(entry)))
		buf.WriteString(entry)
	}
	return buf.Bytes()
}

func decodeListingV2(data []byte) ([]string, []bool, error) {
	if len(data) < 4 {
		return nil, nil, fmt.Errorf("v2 directory listing truncated")
	}
	count := int(Endian.Uint32(data[0:4]))
	cursor := 4
	names := make([]string, 0, count)
	dirs := make([]bool, 0, count)
	for i := 0; i < count; i++ {
		if cursor >= len(data) {
			return nil, nil, fmt.Errorf("v2 directory listing truncated at entry %d", i)
		}
		n := int(data[cursor])
		cursor++
		if cursor+n > len(data) {
			return nil, nil, fmt.Errorf("v2 directory listing truncated at entry %d", i)
		}
		raw := data[cursor : cursor+n]
		cursor += n
		if !utf8.Valid(raw) {
			return nil, nil, fmt.Errorf("v2 directory listing entry %d is not valid UTF-8", i)
		}
		entry := string(raw)
		if strings.HasPrefix(entry, "/") {
			names = append(names, entry[1:])
			dirs = append(dirs, true)
		} else {
			names = append(names, entry)
			dirs = append(dirs, false)
		}
	}
	return names, dirs, nil
}
