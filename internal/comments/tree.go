// Package comments holds the comment forest of one open thread.
//
// The tree helpers never mutate their input. A changed node gets a fresh
// slice on the path from the root to it; every other subtree keeps the
// backing array it had before.
package comments

import (
	"slices"

	"gymthreads/internal/models"
)

// FindAndUpdate applies fn to the comment with the given id. The updated
// node's Replies is never nil. If id is absent, list is returned as is.
func FindAndUpdate(list []models.Comment, id string, fn func(models.Comment) models.Comment) ([]models.Comment, bool) {
	for i, c := range list {
		if c.ID == id {
			next := fn(c)
			if next.Replies == nil {
				next.Replies = []models.Comment{}
			}
			out := slices.Clone(list)
			out[i] = next
			return out, true
		}
		if len(c.Replies) == 0 {
			continue
		}
		if replies, ok := FindAndUpdate(c.Replies, id, fn); ok {
			out := slices.Clone(list)
			c.Replies = replies
			out[i] = c
			return out, true
		}
	}
	return list, false
}

// FindAndRemove drops the comment with the given id together with its
// subtree and returns how many nodes went with it.
func FindAndRemove(list []models.Comment, id string) ([]models.Comment, int) {
	for i, c := range list {
		if c.ID == id {
			out := make([]models.Comment, 0, len(list)-1)
			out = append(out, list[:i]...)
			out = append(out, list[i+1:]...)
			return out, Count(c)
		}
		if len(c.Replies) == 0 {
			continue
		}
		if replies, n := FindAndRemove(c.Replies, id); n > 0 {
			out := slices.Clone(list)
			c.Replies = replies
			out[i] = c
			return out, n
		}
	}
	return list, 0
}

// Count is 1 plus the number of descendants of c.
func Count(c models.Comment) int {
	n := 1
	for _, r := range c.Replies {
		n += Count(r)
	}
	return n
}

// Total counts every node in the forest.
func Total(list []models.Comment) int {
	n := 0
	for _, c := range list {
		n += Count(c)
	}
	return n
}

// Find returns the comment with the given id anywhere in the forest.
func Find(list []models.Comment, id string) (models.Comment, bool) {
	for _, c := range list {
		if c.ID == id {
			return c, true
		}
		if found, ok := Find(c.Replies, id); ok {
			return found, true
		}
	}
	return models.Comment{}, false
}

type treeNode struct {
	val     models.Comment
	replies []*treeNode
}

// BuildForest nests a flat, parent-linked list. Comments whose parent is
// missing become roots. Sibling order follows input order.
func BuildForest(flat []models.Comment) []models.Comment {
	nodes := make(map[string]*treeNode, len(flat))
	order := make([]*treeNode, 0, len(flat))
	for _, c := range flat {
		c.Replies = nil
		n := &treeNode{val: c}
		nodes[c.ID] = n
		order = append(order, n)
	}

	var roots []*treeNode
	for _, n := range order {
		pid := n.val.ParentCommentID
		if pid == nil || *pid == "" {
			roots = append(roots, n)
			continue
		}
		parent, ok := nodes[*pid]
		if !ok || parent == n {
			roots = append(roots, n)
			continue
		}
		parent.replies = append(parent.replies, n)
	}

	out := make([]models.Comment, 0, len(roots))
	for _, r := range roots {
		out = append(out, flatten(r))
	}
	return out
}

func flatten(n *treeNode) models.Comment {
	out := n.val
	out.Replies = make([]models.Comment, 0, len(n.replies))
	for _, c := range n.replies {
		out.Replies = append(out.Replies, flatten(c))
	}
	return out
}

// normalize makes every Replies in the forest non-nil.
func normalize(list []models.Comment) []models.Comment {
	if list == nil {
		return []models.Comment{}
	}
	for i := range list {
		list[i].Replies = normalize(list[i].Replies)
	}
	return list
}
