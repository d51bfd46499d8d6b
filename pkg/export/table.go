package export

// Table defines ordered tabular export content. Rows are positional and
// must match the column count.
type Table struct {
	Columns []string
	Rows    [][]string
}
