package scenario

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
)

// ErrIndex is matched by every out-of-range scenario lookup.
var ErrIndex = errors.New("scenario index out of range")

// Index addresses a node by its child position at each stage below the
// root. The root is the empty index.
type Index []int

func (i Index) Stage() int { return len(i) }

// Parent drops the last component. The root is its own parent.
func (i Index) Parent() Index {
	if len(i) == 0 {
		return i
	}
	return i[: len(i)-1 : len(i)-1]
}

func (i Index) Child(k int) Index {
	out := make(Index, len(i)+1)
	copy(out, i)
	out[len(i)] = k
	return out
}

func (i Index) String() string {
	parts := make([]string, len(i))
	for k, c := range i {
		parts[k] = strconv.Itoa(c)
	}
	return "[" + strings.Join(parts, " ") + "]"
}

// BlockName is the qualified name of the block at i: "root" followed by one
// ".sub[k]" per component.
func (i Index) BlockName() string {
	var sb strings.Builder
	sb.WriteString("root")
	for _, c := range i {
		fmt.Fprintf(&sb, ".sub[%d]", c)
	}
	return sb.String()
}

type IndexError struct {
	Index Index
	// Position is the offending component, or -1 when the depth is wrong.
	Position int
	Limit    int
}

func (e *IndexError) Error() string {
	if e.Position < 0 {
		return fmt.Sprintf("%v: %s has depth %d, tree has %d stages below the root", ErrIndex, e.Index, len(e.Index), e.Limit)
	}
	return fmt.Sprintf("%v: %s component %d must be in [0, %d)", ErrIndex, e.Index, e.Position, e.Limit)
}

func (e *IndexError) Is(target error) bool { return target == ErrIndex }

// EachIndex calls fn for every index of the product range(bf[0]) x ... in
// lexicographic order. The index passed to fn is reused between calls.
func EachIndex(bf []int, fn func(Index) error) error {
	for _, n := range bf {
		if n <= 0 {
			return nil
		}
	}
	idx := make(Index, len(bf))
	for {
		if err := fn(idx); err != nil {
			return err
		}
		k := len(idx) - 1
		for k >= 0 {
			idx[k]++
			if idx[k] < bf[k] {
				break
			}
			idx[k] = 0
			k--
		}
		if k < 0 {
			return nil
		}
	}
}
