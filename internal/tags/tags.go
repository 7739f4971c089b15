package tags

import (
	"regexp"

	"github.com/samber/lo"
)

var hashtag = regexp.MustCompile(`#([A-Za-z0-9_]+)`)

// Extract returns the hashtags in text in order of first appearance,
// deduplicated and case-sensitive, without the leading '#'.
func Extract(text string) []string {
	matches := hashtag.FindAllStringSubmatch(text, -1)
	return lo.Uniq(lo.Map(matches, func(m []string, _ int) string { return m[1] }))
}
