package output

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/mattn/go-isatty"
	"gopkg.in/yaml.v3"
)

func DefaultFormat() string {
	if isatty.IsTerminal(os.Stdout.Fd()) || isatty.IsCygwinTerminal(os.Stdout.Fd()) {
		return "table"
	}
	return "json"
}

// view describes how a list payload under key is rendered.
type view struct {
	key     string
	columns []string
	fields  []string
	md      string
}

var views = []view{
	{
		key:     "threads",
		columns: []string{"ID", "AUTHOR", "LIKES", "REPLIES", "REPOSTS", "CREATED", "TEXT"},
		fields:  []string{"id", "author.displayName", "stats.likes", "stats.replies", "stats.reposts", "createdAt", "text"},
		md:      "- `%s` **%s** (%s likes, %s replies, %s reposts, %s): %s\n",
	},
	{
		key:     "comments",
		columns: []string{"ID", "DEPTH", "AUTHOR", "LIKES", "CREATED", "TEXT"},
		fields:  []string{"id", "depth", "author.displayName", "likeCount", "createdAt", "text"},
		md:      "- `%s` depth %s **%s** (%s likes, %s): %s\n",
	},
	{
		key:     "notifications",
		columns: []string{"ID", "TYPE", "FROM", "ENTITY", "COUNT", "READ_AT", "CREATED"},
		fields:  []string{"id", "type", "actor.displayName", "entityId", "groupCount", "readAt", "createdAt"},
		md:      "- `%s` %s from %s on `%s` (x%s, read %s, %s)\n",
	},
	{
		key:     "users",
		columns: []string{"UID", "NAME", "EMAIL"},
		fields:  []string{"uid", "displayName", "email"},
		md:      "- `%s` **%s** %s\n",
	},
	{
		key:     "tags",
		columns: []string{"TAG"},
		fields:  []string{""},
		md:      "- #%s\n",
	},
}

// Print renders payload to stdout.
func Print(payload map[string]any, format string, quiet bool) error {
	return Fprint(os.Stdout, payload, format, quiet)
}

func Fprint(w io.Writer, payload map[string]any, format string, quiet bool) error {
	if quiet {
		format = "quiet"
	}
	format = strings.TrimSpace(strings.ToLower(format))
	if format == "" {
		format = DefaultFormat()
	}

	switch format {
	case "json":
		return printJSON(w, payload)
	case "yaml":
		return printYAML(w, payload)
	case "table":
		return printTable(w, payload)
	case "plain":
		return printPlain(w, payload)
	case "md":
		return printMarkdown(w, payload)
	case "quiet":
		return printQuiet(w, payload)
	default:
		return errors.New("invalid --format value")
	}
}

// Payload converts v into the generic shape Print expects by a JSON round
// trip. When key is non-empty v is wrapped as {key: v}.
func Payload(key string, v any) (map[string]any, error) {
	if key != "" {
		v = map[string]any{key: v}
	}
	b, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	var out map[string]any
	if err := json.Unmarshal(b, &out); err != nil {
		return nil, fmt.Errorf("payload must be an object: %w", err)
	}
	return out, nil
}

func printJSON(w io.Writer, v any) error {
	b, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	_, err = fmt.Fprintln(w, string(b))
	return err
}

func printYAML(w io.Writer, v any) error {
	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	if err := enc.Encode(v); err != nil {
		return err
	}
	return enc.Close()
}

func match(payload map[string]any) (view, []any, bool) {
	for _, v := range views {
		if rows, ok := payload[v.key].([]any); ok {
			return v, rows, true
		}
	}
	return view{}, nil, false
}

func printTable(w io.Writer, payload map[string]any) error {
	v, rows, ok := match(payload)
	if !ok {
		return printJSON(w, payload)
	}
	fmt.Fprintln(w, strings.Join(v.columns, "\t"))
	for _, row := range rows {
		fmt.Fprintln(w, strings.Join(cells(row, v.fields), "\t"))
	}
	return nil
}

func printPlain(w io.Writer, payload map[string]any) error {
	v, rows, ok := match(payload)
	if !ok {
		if id, ok := payload["id"]; ok {
			fmt.Fprintf(w, "%s %s\n", str(id), oneLine(str(payload["text"])))
			return nil
		}
		return printJSON(w, payload)
	}
	for _, row := range rows {
		c := cells(row, v.fields)
		if len(c) > 3 {
			c = append(c[:2], c[len(c)-1])
		}
		fmt.Fprintln(w, strings.Join(c, " "))
	}
	return nil
}

func printMarkdown(w io.Writer, payload map[string]any) error {
	v, rows, ok := match(payload)
	if !ok {
		return printJSON(w, payload)
	}
	for _, row := range rows {
		c := cells(row, v.fields)
		args := make([]any, len(c))
		for i, s := range c {
			args[i] = s
		}
		fmt.Fprintf(w, v.md, args...)
	}
	return nil
}

func printQuiet(w io.Writer, payload map[string]any) error {
	v, rows, ok := match(payload)
	if !ok {
		if id, ok := payload["id"]; ok {
			fmt.Fprintln(w, str(id))
			return nil
		}
		return printJSON(w, payload)
	}
	for _, row := range rows {
		fmt.Fprintln(w, field(row, v.fields[0]))
	}
	return nil
}

func cells(row any, fields []string) []string {
	out := make([]string, len(fields))
	for i, f := range fields {
		out[i] = oneLine(field(row, f))
	}
	return out
}

// field resolves a dotted path inside row. An empty path is row itself.
func field(row any, path string) string {
	cur := row
	if path != "" {
		for _, part := range strings.Split(path, ".") {
			m, ok := cur.(map[string]any)
			if !ok {
				return ""
			}
			cur = m[part]
		}
	}
	return str(cur)
}

func oneLine(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

func str(v any) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return t
	default:
		return fmt.Sprintf("%v", t)
	}
}
