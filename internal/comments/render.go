package comments

import (
	"fmt"
	"strings"

	"gymthreads/internal/models"
)

// Render writes a forest as markdown. Heading depth follows nesting up to
// h6; depthLimit > 0 stops descending past that level.
func Render(list []models.Comment, depthLimit int) string {
	var b strings.Builder
	for _, c := range list {
		renderComment(&b, c, 1, depthLimit)
	}
	return b.String()
}

func renderComment(b *strings.Builder, c models.Comment, level int, depthLimit int) {
	if depthLimit > 0 && level > depthLimit {
		return
	}
	if b.Len() > 0 {
		b.WriteString("\n")
	}
	headingLevel := min(level+1, 6)
	b.WriteString(strings.Repeat("#", headingLevel))
	fmt.Fprintf(b, " %s (%s) `%s`\n\n", displayName(c.Author), c.CreatedAt, c.ID)
	b.WriteString(c.Text)
	b.WriteString("\n")
	heart := "♡"
	if c.LikedByMe {
		heart = "♥"
	}
	fmt.Fprintf(b, "\n%s %d", heart, c.LikeCount)
	if n := len(c.Replies); n > 0 {
		fmt.Fprintf(b, " · %d replies", n)
	}
	b.WriteString("\n")

	for _, r := range c.Replies {
		renderComment(b, r, level+1, depthLimit)
	}
}

func displayName(a models.Author) string {
	if strings.TrimSpace(a.DisplayName) != "" {
		return a.DisplayName
	}
	return a.UID
}
