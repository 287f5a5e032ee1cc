// Package verify compares a received snapshot with its source tree.
package verify

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
)

// Kind classifies a discrepancy.
type Kind int

const (
	ContentMismatch Kind = iota
	LeftOnly
	RightOnly
	TypeMismatch
	Unreadable
)

func (k Kind) String() string {
	switch k {
	case ContentMismatch:
		return "content"
	case LeftOnly:
		return "left-only"
	case RightOnly:
		return "right-only"
	case TypeMismatch:
		return "type"
	default:
		return "unreadable"
	}
}

// Discrepancy is one difference between the two trees.
type Discrepancy struct {
	Kind  Kind
	Rel   string // path relative to the compared roots
	Left  string
	Right string
	Err   error // set for Unreadable
}

// String renders the discrepancy as one report line naming both sides.
func (d Discrepancy) String() string {
	switch d.Kind {
	case ContentMismatch:
		return fmt.Sprintf("%s differs between %s and %s", d.Rel, d.Left, d.Right)
	case LeftOnly:
		return fmt.Sprintf("%s only found in %s, missing %s", d.Rel, d.Left, d.Right)
	case RightOnly:
		return fmt.Sprintf("%s only found in %s, missing %s", d.Rel, d.Right, d.Left)
	case TypeMismatch:
		return fmt.Sprintf("%s has different file types in %s and %s", d.Rel, d.Left, d.Right)
	default:
		return fmt.Sprintf("%s could not be compared between %s and %s: %v", d.Rel, d.Left, d.Right, d.Err)
	}
}

// Compare walks left and right together and returns every difference, in
// path order. The error is only set when a root itself cannot be read.
func Compare(left, right string) ([]Discrepancy, error) {
	for _, root := range []string{left, right} {
		st, err := os.Stat(root)
		if err != nil {
			return nil, err
		}
		if !st.IsDir() {
			return nil, fmt.Errorf("%s is not a directory", root)
		}
	}

	c := &comparer{}
	c.dir(left, right, "")
	return c.found, nil
}

type comparer struct {
	found []Discrepancy
}

func (c *comparer) add(kind Kind, rel, left, right string, err error) {
	c.found = append(c.found, Discrepancy{Kind: kind, Rel: rel, Left: left, Right: right, Err: err})
}

func (c *comparer) dir(left, right, rel string) {
	leftNames, lerr := readNames(left)
	rightNames, rerr := readNames(right)
	if err := errors.Join(lerr, rerr); err != nil {
		c.add(Unreadable, relOrDot(rel), left, right, err)
		return
	}

	for _, name := range union(leftNames, rightNames) {
		lp := filepath.Join(left, name)
		rp := filepath.Join(right, name)
		rn := filepath.Join(rel, name)

		_, inLeft := leftNames[name]
		_, inRight := rightNames[name]
		switch {
		case !inRight:
			c.add(LeftOnly, rn, lp, rp, nil)
			continue
		case !inLeft:
			c.add(RightOnly, rn, lp, rp, nil)
			continue
		}

		c.entry(lp, rp, rn)
	}
}

func (c *comparer) entry(lp, rp, rel string) {
	li, lerr := os.Lstat(lp)
	ri, rerr := os.Lstat(rp)
	if err := errors.Join(lerr, rerr); err != nil {
		c.add(Unreadable, rel, lp, rp, err)
		return
	}

	if li.Mode().Type() != ri.Mode().Type() {
		c.add(TypeMismatch, rel, lp, rp, nil)
		return
	}

	switch {
	case li.IsDir():
		c.dir(lp, rp, rel)
	case li.Mode().IsRegular():
		same, err := sameContent(lp, rp, li, ri)
		if err != nil {
			c.add(Unreadable, rel, lp, rp, err)
		} else if !same {
			c.add(ContentMismatch, rel, lp, rp, nil)
		}
	case li.Mode().Type()&fs.ModeSymlink != 0:
		lt, lerr := os.Readlink(lp)
		rt, rerr := os.Readlink(rp)
		if err := errors.Join(lerr, rerr); err != nil {
			c.add(Unreadable, rel, lp, rp, err)
		} else if lt != rt {
			c.add(ContentMismatch, rel, lp, rp, nil)
		}
	}
	// devices, fifos and sockets of matching type carry no content
}

const chunkSize = 64 << 10

func sameContent(lp, rp string, li, ri fs.FileInfo) (bool, error) {
	if li.Size() != ri.Size() {
		return false, nil
	}

	lf, err := os.Open(lp)
	if err != nil {
		return false, err
	}
	defer lf.Close()
	rf, err := os.Open(rp)
	if err != nil {
		return false, err
	}
	defer rf.Close()

	lb := make([]byte, chunkSize)
	rb := make([]byte, chunkSize)
	for {
		ln, lerr := io.ReadFull(lf, lb)
		rn, rerr := io.ReadFull(rf, rb)
		if !bytes.Equal(lb[:ln], rb[:rn]) {
			return false, nil
		}
		lend := lerr == io.EOF || lerr == io.ErrUnexpectedEOF
		rend := rerr == io.EOF || rerr == io.ErrUnexpectedEOF
		if lend || rend {
			return lend && rend, nil
		}
		if lerr != nil {
			return false, lerr
		}
		if rerr != nil {
			return false, rerr
		}
	}
}

func readNames(dir string) (map[string]struct{}, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, err
	}
	names := make(map[string]struct{}, len(entries))
	for _, e := range entries {
		names[e.Name()] = struct{}{}
	}
	return names, nil
}

func union(a, b map[string]struct{}) []string {
	out := make([]string, 0, len(a)+len(b))
	for n := range a {
		out = append(out, n)
	}
	for n := range b {
		if _, ok := a[n]; !ok {
			out = append(out, n)
		}
	}
	sort.Strings(out)
	return out
}

func relOrDot(rel string) string {
	if rel == "" {
		return "."
	}
	return rel
}
