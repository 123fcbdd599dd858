package archive

import (
	"bytes"
	"fmt"
	"sort"
	"strconv"

	"github.com/parquet-go/parquet-go"

	"github.com/askql/askql/internal/present"
)

type ParquetEncodeResult struct {
	Data        []byte
	RecordCount int64
	// Columns holds the parquet column names in header order; duplicate
	// headers get a numeric suffix.
	Columns []string
}

// EncodeParquet writes a tabular result with one optional string column per
// header. Values are rendered as text and NULLs are kept as nulls.
func EncodeParquet(headers []string, rows [][]any, metadata map[string]string) (ParquetEncodeResult, error) {
	if len(headers) == 0 {
		return ParquetEncodeResult{}, fmt.Errorf("headers are required")
	}

	columns := uniqueColumnNames(headers)
	group := parquet.Group{}
	for _, name := range columns {
		group[name] = parquet.Optional(parquet.String())
	}
	schema := parquet.NewSchema("askql_result", group)

	// Group fields are ordered by name; map each header to its leaf index.
	sorted := append([]string(nil), columns...)
	sort.Strings(sorted)
	leafIndex := make(map[string]int, len(sorted))
	for i, name := range sorted {
		leafIndex[name] = i
	}

	encoded := make([]parquet.Row, 0, len(rows))
	for rowNum, row := range rows {
		if len(row) != len(columns) {
			return ParquetEncodeResult{}, fmt.Errorf("row %d has %d values, want %d", rowNum, len(row), len(columns))
		}
		values := make(parquet.Row, len(columns))
		for i, name := range columns {
			col := leafIndex[name]
			if row[i] == nil {
				values[col] = parquet.NullValue().Level(0, 0, col)
				continue
			}
			values[col] = parquet.ByteArrayValue([]byte(present.Cell(row[i]))).Level(0, 1, col)
		}
		encoded = append(encoded, values)
	}

	options := []parquet.WriterOption{schema}
	keys := make([]string, 0, len(metadata))
	for key := range metadata {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	for _, key := range keys {
		options = append(options, parquet.KeyValueMetadata(key, metadata[key]))
	}

	buf := bytes.NewBuffer(nil)
	writer := parquet.NewWriter(buf, options...)
	if _, err := writer.WriteRows(encoded); err != nil {
		return ParquetEncodeResult{}, fmt.Errorf("write parquet rows: %w", err)
	}
	if err := writer.Close(); err != nil {
		return ParquetEncodeResult{}, fmt.Errorf("close parquet writer: %w", err)
	}

	return ParquetEncodeResult{
		Data:        buf.Bytes(),
		RecordCount: int64(len(encoded)),
		Columns:     columns,
	}, nil
}

func uniqueColumnNames(headers []string) []string {
	used := make(map[string]bool, len(headers))
	out := make([]string, len(headers))
	for i, header := range headers {
		name := header
		if name == "" {
			name = "column_" + strconv.Itoa(i+1)
		}
		candidate := name
		for n := 2; used[candidate]; n++ {
			candidate = name + "_" + strconv.Itoa(n)
		}
		used[candidate] = true
		out[i] = candidate
	}
	return out
}
