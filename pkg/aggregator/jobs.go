package aggregator

import (
	"sort"

	orderedmap "github.com/wk8/go-ordered-map/v2"
	"github.com/zsmith-jtec/AFKPI/pkg/normalizer"
)

// JobRow is the job master record assembled from every row of one job
// number. Empty strings and a nil JobClosed mean the export did not say.
type JobRow struct {
	JobNum        string
	SalesOrderNum string
	PartNum       string
	ProductLine   string
	ProductGroup  string
	Category      string
	JobClosed     *bool
}

func firstNonEmpty(current *string, value string) {
	if *current == "" {
		*current = value
	}
}

// AggregateJobs collapses job rows to one per job number. Within a file the
// first non-empty value of each field wins.
func AggregateJobs(n *normalizer.Normalized) ([]*JobRow, *Stats) {
	stats := &Stats{}
	buckets := orderedmap.New[string, *JobRow]()
	hasClosed := n.HasColumn(normalizer.Col_JobClosed)

	for i, row := range n.Table.Rows {
		rs := newRowScanner(stats, i, row)

		jobNum, ok := rs.requireText(normalizer.Col_JobNum)
		if !ok {
			continue
		}
		jr := bucket(buckets, jobNum, func() *JobRow {
			return &JobRow{JobNum: jobNum}
		})

		orderNum := rs.text(normalizer.Col_OrderNum)
		// the ERP reports 0 for jobs that are not tied to a sales order
		if orderNum == "0" {
			orderNum = ""
		}
		firstNonEmpty(&jr.SalesOrderNum, orderNum)
		firstNonEmpty(&jr.PartNum, rs.text(normalizer.Col_PartNum))
		firstNonEmpty(&jr.ProductLine, rs.text(normalizer.Col_ProdLine))
		firstNonEmpty(&jr.ProductGroup, rs.text(normalizer.Col_ProdCode))
		firstNonEmpty(&jr.Category, rs.text(normalizer.Col_PartClass))

		if hasClosed && jr.JobClosed == nil {
			jr.JobClosed = rs.optionalFlag(normalizer.Col_JobClosed)
		}
		rs.done()
	}

	out := values(buckets)
	for _, jr := range out {
		if jr.ProductGroup != "" && jr.Category == "" {
			jr.Category = UnknownCategory
		}
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].JobNum < out[j].JobNum
	})
	return out, stats
}
