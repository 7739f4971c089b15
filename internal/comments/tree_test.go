package comments

import (
	"strings"
	"testing"

	"gymthreads/internal/models"
)

func strp(s string) *string { return &s }

// forest:
//
//	c1
//	├── c2
//	│   └── c4
//	└── c3
//	c5
func sampleForest() []models.Comment {
	return []models.Comment{
		{ID: "c1", Text: "root", Replies: []models.Comment{
			{ID: "c2", Text: "reply", Replies: []models.Comment{
				{ID: "c4", Text: "nested"},
			}},
			{ID: "c3", Text: "reply 2", Replies: []models.Comment{}},
		}},
		{ID: "c5", Text: "other root", Replies: []models.Comment{{ID: "c6"}}},
	}
}

func TestFindAndRemoveCountsSubtree(t *testing.T) {
	next, removed := FindAndRemove(sampleForest(), "c1")
	if removed != 4 {
		t.Fatalf("removed = %d, want 4", removed)
	}
	if len(next) != 1 || next[0].ID != "c5" {
		t.Fatalf("next = %+v", next)
	}
}

func TestFindAndRemoveNested(t *testing.T) {
	forest := sampleForest()
	next, removed := FindAndRemove(forest, "c2")
	if removed != 2 {
		t.Fatalf("removed = %d, want 2", removed)
	}
	if got := Total(next); got != 4 {
		t.Fatalf("total = %d, want 4", got)
	}
	if Total(forest) != 6 {
		t.Fatalf("input forest was mutated")
	}
	if &next[1].Replies[0] != &forest[1].Replies[0] {
		t.Fatalf("untouched subtree lost its identity")
	}
}

func TestFindAndRemoveMissing(t *testing.T) {
	forest := sampleForest()
	next, removed := FindAndRemove(forest, "nope")
	if removed != 0 || &next[0] != &forest[0] {
		t.Fatalf("missing id should return input unchanged")
	}
}

func TestFindAndUpdateSharesUntouchedBranches(t *testing.T) {
	forest := sampleForest()
	next, ok := FindAndUpdate(forest, "c4", func(c models.Comment) models.Comment {
		c.Text = "edited"
		c.Replies = nil
		return c
	})
	if !ok {
		t.Fatalf("c4 not found")
	}
	got, _ := Find(next, "c4")
	if got.Text != "edited" || got.Replies == nil {
		t.Fatalf("c4 = %+v, want edited with non-nil replies", got)
	}
	old, _ := Find(forest, "c4")
	if old.Text != "nested" {
		t.Fatalf("input mutated: %+v", old)
	}
	if &next[1].Replies[0] != &forest[1].Replies[0] {
		t.Fatalf("sibling root subtree was copied")
	}
	if c3, _ := Find(next, "c3"); c3.Text != "reply 2" {
		t.Fatalf("c3 changed: %+v", c3)
	}
}

func TestCount(t *testing.T) {
	if n := Count(sampleForest()[0]); n != 4 {
		t.Fatalf("Count(c1) = %d, want 4", n)
	}
}

func TestBuildForestFromFlatList(t *testing.T) {
	flat := []models.Comment{
		{ID: "a"},
		{ID: "b", ParentCommentID: strp("a")},
		{ID: "c", ParentCommentID: strp("b")},
		{ID: "d", ParentCommentID: strp("a")},
		{ID: "orphan", ParentCommentID: strp("missing")},
	}
	forest := BuildForest(flat)
	if len(forest) != 2 || forest[0].ID != "a" || forest[1].ID != "orphan" {
		t.Fatalf("roots = %+v", forest)
	}
	a := forest[0]
	if len(a.Replies) != 2 || a.Replies[0].ID != "b" || a.Replies[1].ID != "d" {
		t.Fatalf("a.replies = %+v", a.Replies)
	}
	if len(a.Replies[0].Replies) != 1 || a.Replies[0].Replies[0].ID != "c" {
		t.Fatalf("b.replies = %+v", a.Replies[0].Replies)
	}
	if Total(forest) != 5 {
		t.Fatalf("total = %d", Total(forest))
	}
}

func TestRenderDepthLimit(t *testing.T) {
	out := Render(sampleForest(), 2)
	if !strings.Contains(out, "## ") || !strings.Contains(out, "### ") {
		t.Fatalf("missing headings:\n%s", out)
	}
	if strings.Contains(out, "nested") {
		t.Fatalf("depth limit ignored:\n%s", out)
	}
}
