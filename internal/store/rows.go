package store

import (
	"encoding/binary"
	"encoding/json"
	"fmt"
	"math"
	"sort"
	"strconv"
	"strings"

	"github.com/rotisserie/eris"

	"github.com/edwinlov3tt/ignite-report-ai-sub002/internal/db"
	"github.com/edwinlov3tt/ignite-report-ai-sub002/internal/model"
)

// scannable is satisfied by pgx.Row, pgx.Rows, *sql.Row and *sql.Rows.
type scannable interface {
	Scan(dest ...any) error
}

// scanEntityRow scans the text columns of an entity row followed by any
// extra destinations.
func scanEntityRow(sc scannable, cols []string, extra ...any) (model.Row, error) {
	vals := make([]*string, len(cols))
	dest := make([]any, 0, len(cols)+len(extra))
	for i := range vals {
		dest = append(dest, &vals[i])
	}
	dest = append(dest, extra...)
	if err := sc.Scan(dest...); err != nil {
		return nil, err
	}

	row := make(model.Row, len(cols))
	for i, c := range cols {
		if vals[i] == nil {
			row[c] = nil
			continue
		}
		row[c] = *vals[i]
	}
	return row, nil
}

func selectColumns(kind model.EntityKind) ([]string, error) {
	switch k := kind.(type) {
	case model.CoreKind:
		return k.SelectColumns(), nil
	case model.EnrichmentKind:
		return k.SelectColumns(), nil
	}
	return nil, eris.Errorf("store: unsupported entity kind %T", kind)
}

// sortedColumns returns the keys of values in a stable order with their
// values as query arguments.
func sortedColumns(values map[string]string) ([]string, []any) {
	cols := make([]string, 0, len(values))
	for c := range values {
		cols = append(cols, c)
	}
	sort.Strings(cols)

	args := make([]any, len(cols))
	for i, c := range cols {
		args[i] = values[c]
	}
	return cols, args
}

// matchFunctions names the similarity RPC for each indexed type.
var matchFunctions = map[model.EntityType]string{
	model.EntityPlatform:   "match_platforms",
	model.EntityIndustry:   "match_similar_industries",
	model.EntityProduct:    "match_products",
	model.EntityTacticType: "match_tactics",
}

func indexedKind(t model.EntityType) (model.CoreKind, error) {
	if !t.Indexed() {
		return model.CoreKind{}, model.Validationf("entity_type %q is not semantically indexed", t)
	}
	k, ok := model.CoreKindOf(t)
	if !ok {
		return model.CoreKind{}, eris.Errorf("store: no core kind for %s", t)
	}
	return k, nil
}

// vectorLiteral renders an embedding in pgvector text form.
func vectorLiteral(v []float32) string {
	var b strings.Builder
	b.WriteByte('[')
	for i, f := range v {
		if i > 0 {
			b.WriteByte(',')
		}
		b.WriteString(strconv.FormatFloat(float64(f), 'f', -1, 32))
	}
	b.WriteByte(']')
	return b.String()
}

func encodeVector(v []float32) []byte {
	buf := make([]byte, 4*len(v))
	for i, f := range v {
		binary.LittleEndian.PutUint32(buf[i*4:], math.Float32bits(f))
	}
	return buf
}

func decodeVector(b []byte) []float32 {
	v := make([]float32, len(b)/4)
	for i := range v {
		v[i] = math.Float32frombits(binary.LittleEndian.Uint32(b[i*4:]))
	}
	return v
}

// escapeLike escapes LIKE wildcards so a name matches literally.
func escapeLike(s string) string {
	r := strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)
	return r.Replace(s)
}

// nullable maps "" to a SQL NULL.
func nullable(s string) any {
	if s == "" {
		return nil
	}
	return s
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

func marshalJSON(v any, what string) ([]byte, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return nil, eris.Wrapf(err, "store: marshal %s", what)
	}
	return b, nil
}

func unmarshalJSON(b []byte, v any, what string) error {
	if len(b) == 0 {
		return nil
	}
	return eris.Wrapf(json.Unmarshal(b, v), "store: unmarshal %s", what)
}

func limitOrDefault(n int) int {
	if n <= 0 {
		return defaultListLimit
	}
	return n
}

func encodeSessionLists(s *model.CuratorSession) (messages, pending, committed []byte, err error) {
	msgs := s.Messages
	if msgs == nil {
		msgs = []model.SessionMessage{}
	}
	items := s.PendingItems
	if items == nil {
		items = []model.CuratorAction{}
	}
	done := s.CommittedItems
	if done == nil {
		done = []model.CommittedItem{}
	}

	if messages, err = marshalJSON(msgs, "session messages"); err != nil {
		return nil, nil, nil, err
	}
	if pending, err = marshalJSON(items, "pending items"); err != nil {
		return nil, nil, nil, err
	}
	if committed, err = marshalJSON(done, "committed items"); err != nil {
		return nil, nil, nil, err
	}
	return messages, pending, committed, nil
}

func decodeSessionLists(s *model.CuratorSession, messages, pending, committed []byte) error {
	if err := unmarshalJSON(messages, &s.Messages, "session messages"); err != nil {
		return err
	}
	if err := unmarshalJSON(pending, &s.PendingItems, "pending items"); err != nil {
		return err
	}
	return unmarshalJSON(committed, &s.CommittedItems, "committed items")
}

func nonNil(list []string) []string {
	if list == nil {
		return []string{}
	}
	return list
}

func sortedAnyColumns(values map[string]any) ([]string, []any) {
	cols := make([]string, 0, len(values))
	for c := range values {
		cols = append(cols, c)
	}
	sort.Strings(cols)

	args := make([]any, len(cols))
	for i, c := range cols {
		args[i] = values[c]
	}
	return cols, args
}

// sourceUpdateValues validates a partial source update and returns the
// columns to write. Categories are encoded as JSON text.
func sourceUpdateValues(u model.SourceUpdate) (map[string]any, error) {
	values := map[string]any{}
	if u.Title != nil {
		values["title"] = nullable(*u.Title)
	}
	if u.AuthorityTier != nil {
		if !u.AuthorityTier.Valid() {
			return nil, model.Validationf("unknown authority_tier %q", *u.AuthorityTier)
		}
		values["authority_tier"] = string(*u.AuthorityTier)
	}
	if u.AuthorityScore != nil {
		if *u.AuthorityScore < 0 || *u.AuthorityScore > 1 {
			return nil, model.Validationf("authority_score must be between 0 and 1, got %v", *u.AuthorityScore)
		}
		values["authority_score"] = *u.AuthorityScore
	}
	if u.Categories != nil {
		b, err := marshalJSON(u.Categories, "categories")
		if err != nil {
			return nil, err
		}
		values["categories"] = string(b)
	}
	return values, nil
}

func feedbackCountsSQL(d db.Dialect) string {
	return fmt.Sprintf(`SELECT COALESCE(field_name, %s) AS field,
		SUM(CASE WHEN feedback_type = 'good' THEN 1 ELSE 0 END),
		SUM(CASE WHEN feedback_type = 'bad' THEN 1 ELSE 0 END),
		SUM(CASE WHEN feedback_type = 'partial' THEN 1 ELSE 0 END)
	FROM research_feedback
	GROUP BY field`, d.Placeholder(1))
}
