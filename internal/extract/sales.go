package extract

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/pgEdge/pgedge-retail-etl/internal/logging"
	"github.com/pgEdge/pgedge-retail-etl/internal/transform"
)

// Source tags written to the _source column.
const (
	SourceRetailCSV = "kaggle_retail_sales"
	SourceCatalog   = "fake_store_api"
)

const extractedAtLayout = time.RFC3339Nano

// ReadSalesCSV reads the retail sales file and tags every row with the
// extraction time and source.
func ReadSalesCSV(path string, now time.Time) (*transform.RawTable, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open sales file: %w", err)
	}
	defer f.Close()

	table, err := readCSV(f)
	if err != nil {
		return nil, fmt.Errorf("failed to read sales file %s: %w", path, err)
	}
	table.AddColumn(transform.ColExtractedAt, now.UTC().Format(extractedAtLayout))
	table.AddColumn(transform.ColSource, SourceRetailCSV)

	logging.Info().
		Str("path", path).
		Int("rows", table.Len()).
		Strs("columns", table.Header).
		Msg("Extracted retail sales")
	return table, nil
}

func readCSV(r io.Reader) (*transform.RawTable, error) {
	reader := csv.NewReader(r)
	reader.FieldsPerRecord = -1
	reader.TrimLeadingSpace = true

	header, err := reader.Read()
	if errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("file has no header row")
	}
	if err != nil {
		return nil, err
	}
	if len(header) > 0 {
		header[0] = trimBOM(header[0])
	}

	table := transform.NewRawTable(header...)
	for {
		rec, err := reader.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, err
		}
		table.Append(rec...)
	}
	return table, nil
}

func trimBOM(s string) string {
	return strings.TrimPrefix(s, "\ufeff")
}
