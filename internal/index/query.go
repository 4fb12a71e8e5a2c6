package index

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"iter"
	"path"
	"sort"
	"strings"
	"time"
	"unicode"

	"github.com/maruel/natural"
	"github.com/samber/lo"

	"github.com/starford/thumbindex/internal/metrics"
	"github.com/starford/thumbindex/internal/models"
	"github.com/starford/thumbindex/internal/storage"
)

// SearchResult is a bounded page of subfolder rows.
type SearchResult struct {
	Results []*models.Stat `json:"results"`

	// ApproximateCount is the highest row id in the whole index. It is an
	// upper bound on the number of rows ever stored and ignores the filters.
	ApproximateCount int64 `json:"approximateCount"`
}

// buildSubfolderQuery returns the row query for entries strictly below dir
// (root-relative, "" for the root) matching search and exts.
func buildSubfolderQuery(dir, search string, exts []string) (string, []any) {
	var (
		sb    strings.Builder
		where []string
		args  []any
	)
	sb.WriteString(`SELECT t.fullName, t.type, t.statHash, t.stat FROM thumbnail t`)

	if match := ftsMatch(search); match != "" {
		sb.WriteString(` JOIN thumbnail_fts ON thumbnail_fts.rowid = t.id`)
		where = append(where, `thumbnail_fts MATCH ?`)
		args = append(args, match)
	}

	prefix, prefixArgs := prefixClause(dir)
	where = append(where, prefix)
	args = append(args, prefixArgs...)

	if exts = normalizeExts(exts); len(exts) > 0 {
		likes := make([]string, len(exts))
		for i, ext := range exts {
			likes[i] = `t.fullName LIKE ? ESCAPE '\'`
			args = append(args, "%."+escapeLike(ext))
		}
		where = append(where, "("+strings.Join(likes, " OR ")+")")
	}

	sb.WriteString(" WHERE ")
	sb.WriteString(strings.Join(where, " AND "))
	sb.WriteString(" ORDER BY t.fullName")
	return sb.String(), args
}

// prefixClause restricts rows to strict descendants of dir. '0' sorts
// right after '/', so the range covers exactly the names starting with dir+"/".
func prefixClause(dir string) (string, []any) {
	if dir == "" {
		return `t.fullName <> ''`, nil
	}
	return `t.fullName >= ? AND t.fullName < ?`, []any{dir + "/", dir + "0"}
}

// ftsMatch turns free text into a prefix query over its letter and digit
// runs. Text without any yields "".
func ftsMatch(search string) string {
	tokens := strings.FieldsFunc(strings.ToLower(search), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsNumber(r)
	})
	if len(tokens) == 0 {
		return ""
	}
	for i, tok := range tokens {
		tokens[i] = tok + "*"
	}
	return strings.Join(tokens, " ")
}

var likeEscaper = strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)

func escapeLike(s string) string {
	return likeEscaper.Replace(s)
}

func normalizeExts(exts []string) []string {
	norm := lo.Map(exts, func(e string, _ int) string {
		return strings.ToLower(strings.TrimPrefix(strings.TrimSpace(e), "."))
	})
	return lo.Uniq(lo.Compact(norm))
}

// openDir opens the handle owning dir and returns dir relative to its root.
func (c *Cache) openDir(ctx context.Context, dir string) (*Handle, string, error) {
	h, err := c.reg.Open(ctx, dir)
	if err != nil {
		return nil, "", err
	}
	rel, err := c.reg.resolver.Normalize(dir)
	if err != nil {
		return nil, "", err
	}
	return h, rel, nil
}

// SearchSubfolder returns up to the registry's search limit of rows below
// dir, ordered by name, with absolute paths.
func (c *Cache) SearchSubfolder(ctx context.Context, dir, search string, exts []string) (_ *SearchResult, err error) {
	start := time.Now()
	defer func() { recordQuery("search", start, err) }()

	h, rel, err := c.openDir(ctx, dir)
	if err != nil {
		return nil, err
	}
	q, args := buildSubfolderQuery(rel, search, exts)
	q += " LIMIT ?"
	args = append(args, c.reg.searchLimit)

	rows, err := h.conn.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("index: search: %w", err)
	}
	defer rows.Close()

	res := &SearchResult{Results: []*models.Stat{}}
	for rows.Next() {
		s, err := scanStat(rows, h.Root())
		if err != nil {
			return nil, err
		}
		res.Results = append(res.Results, s)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("index: search: %w", err)
	}

	err = h.conn.QueryRowContext(ctx, `SELECT COALESCE(MAX(id), 0) FROM thumbnail`).Scan(&res.ApproximateCount)
	if err != nil {
		return nil, fmt.Errorf("index: approximate count: %w", err)
	}
	metrics.RowsReturned.WithLabelValues("materialize").Observe(float64(len(res.Results)))
	return res, nil
}

// StreamSubfolder yields the same rows as SearchSubfolder without the
// bound, one at a time as the cursor advances. An error is yielded once and
// ends the sequence.
func (c *Cache) StreamSubfolder(ctx context.Context, dir, search string, exts []string) iter.Seq2[*models.Stat, error] {
	return func(yield func(*models.Stat, error) bool) {
		start := time.Now()
		var n int
		err := c.stream(ctx, dir, search, exts, func(s *models.Stat) bool {
			n++
			return yield(s, nil)
		})
		recordQuery("stream", start, err)
		metrics.RowsReturned.WithLabelValues("stream").Observe(float64(n))
		if err != nil {
			yield(nil, err)
		}
	}
}

func (c *Cache) stream(ctx context.Context, dir, search string, exts []string, fn func(*models.Stat) bool) error {
	h, rel, err := c.openDir(ctx, dir)
	if err != nil {
		return err
	}
	q, args := buildSubfolderQuery(rel, search, exts)
	rows, err := h.conn.QueryContext(ctx, q, args...)
	if err != nil {
		return fmt.Errorf("index: stream: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		s, err := scanStat(rows, h.Root())
		if err != nil {
			return err
		}
		if !fn(s) {
			return nil
		}
	}
	if err := rows.Err(); err != nil {
		return fmt.Errorf("index: stream: %w", err)
	}
	return nil
}

func scanStat(rows *sql.Rows, root string) (*models.Stat, error) {
	var name, typ, hash, blob string
	if err := rows.Scan(&name, &typ, &hash, &blob); err != nil {
		return nil, fmt.Errorf("index: scan row: %w", err)
	}
	var s models.Stat
	if err := json.Unmarshal([]byte(blob), &s); err != nil {
		return nil, fmt.Errorf("index: decode stat %s: %w", name, err)
	}
	s.Path = storage.Join(root, name)
	s.Hash = hash
	if s.Type == "" {
		s.Type = models.EntryType(typ)
	}
	return &s, nil
}

// ListExtensions returns the distinct lowercase extensions of files below
// dir. Names without one, dotfiles included, are skipped.
func (c *Cache) ListExtensions(ctx context.Context, dir string) (_ map[string]struct{}, err error) {
	start := time.Now()
	defer func() { recordQuery("extensions", start, err) }()

	h, rel, err := c.openDir(ctx, dir)
	if err != nil {
		return nil, err
	}
	prefix, args := prefixClause(rel)
	rows, err := h.conn.QueryContext(ctx,
		`SELECT t.fullName FROM thumbnail t WHERE t.type = 'file' AND `+prefix, args...)
	if err != nil {
		return nil, fmt.Errorf("index: list extensions: %w", err)
	}
	defer rows.Close()

	out := make(map[string]struct{})
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, fmt.Errorf("index: scan name: %w", err)
		}
		if ext, ok := extensionOf(name); ok {
			out[ext] = struct{}{}
		}
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("index: list extensions: %w", err)
	}
	return out, nil
}

func extensionOf(name string) (string, bool) {
	base := path.Base(name)
	i := strings.LastIndexByte(base, '.')
	if i <= 0 || i == len(base)-1 {
		return "", false
	}
	return strings.ToLower(base[i+1:]), true
}

// SortedExtensions returns the members of set in natural order.
func SortedExtensions(set map[string]struct{}) []string {
	keys := lo.Keys(set)
	sort.Sort(natural.StringSlice(keys))
	return keys
}

func recordQuery(operation string, start time.Time, err error) {
	status := "success"
	if err != nil {
		status = "error"
	}
	metrics.QueryTotal.WithLabelValues(operation, status).Inc()
	metrics.QueryDuration.WithLabelValues(operation).Observe(time.Since(start).Seconds())
}
