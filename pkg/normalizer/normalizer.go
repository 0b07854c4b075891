// Package normalizer renames ERP export columns onto the canonical column set
// of a data kind and rejects uploads that lack required columns.
package normalizer

import (
	"fmt"
	"sort"
	"strings"

	"github.com/zsmith-jtec/AFKPI/pkg/tabular"
)

// SchemaValidationError is returned when required columns are missing after
// renaming. Found lists the columns that were present, post-rename.
type SchemaValidationError struct {
	Kind    Kind
	Missing []string
	Found   []string
}

func (e *SchemaValidationError) Error() string {
	return fmt.Sprintf("%s data is missing required columns [%s]; found [%s]",
		e.Kind,
		strings.Join(e.Missing, ", "),
		strings.Join(e.Found, ", "),
	)
}

type Normalized struct {
	Kind   Kind
	Schema KindSchema
	Table  *tabular.Table

	// Renamed maps source column names to the canonical names they now carry.
	Renamed map[string]string

	// Exports lists the ids of export schemas that matched at least one column.
	Exports []string
}

// HasColumn reports whether the normalized table carries col.
func (n *Normalized) HasColumn(col string) bool {
	return n.Table.HasColumn(col)
}

// renameColumns decides the output name of every input column. Columns that
// already carry a canonical name keep it and win over aliases; among several
// aliases for one canonical name the first in column order wins.
func renameColumns(ks KindSchema, columns []string) ([]string, map[string]string, []string) {
	claimed := make(map[string]bool)
	for _, c := range columns {
		if ks.isCanonical(c) {
			claimed[c] = true
		}
	}

	idx := ks.aliasIndex()
	out := make([]string, len(columns))
	renamed := make(map[string]string)
	exports := make(map[string]struct{})

	for i, c := range columns {
		out[i] = c
		if ks.isCanonical(c) {
			continue
		}
		target, ok := idx[c]
		if !ok || claimed[target.canonical] {
			continue
		}
		claimed[target.canonical] = true
		out[i] = target.canonical
		renamed[c] = target.canonical
		exports[target.export] = struct{}{}
	}

	exportIds := make([]string, 0, len(exports))
	for id := range exports {
		exportIds = append(exportIds, id)
	}
	sort.Strings(exportIds)
	return out, renamed, exportIds
}

// Normalize renames the columns of t for kind and validates required columns.
// The input table is not modified.
func Normalize(kind Kind, t *tabular.Table) (*Normalized, error) {
	ks, err := SchemaFor(kind)
	if err != nil {
		return nil, err
	}
	if t == nil {
		t = &tabular.Table{}
	}

	columns, renamed, exports := renameColumns(ks, t.Columns)

	present := make(map[string]bool, len(columns))
	for _, c := range columns {
		present[c] = true
	}
	missing := make([]string, 0)
	for _, req := range ks.Required {
		if !present[req] {
			missing = append(missing, req)
		}
	}
	if len(missing) > 0 {
		return nil, &SchemaValidationError{
			Kind:    kind,
			Missing: missing,
			Found:   columns,
		}
	}

	out := &tabular.Table{
		Columns: columns,
		Rows:    make([]tabular.Row, 0, len(t.Rows)),
	}
	for _, row := range t.Rows {
		nr := tabular.NewRow()
		for i, src := range t.Columns {
			v, _ := row.Get(src)
			nr.Set(columns[i], v)
		}
		out.Rows = append(out.Rows, nr)
	}

	return &Normalized{
		Kind:    kind,
		Schema:  ks,
		Table:   out,
		Renamed: renamed,
		Exports: exports,
	}, nil
}
