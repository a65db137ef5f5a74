// Package dataset synthesizes labelled reaction tables from the rule engine
// and reads and writes them as CSV.
package dataset

import (
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"github.com/turtacn/ChemPredict/internal/domain/reaction"
	"github.com/turtacn/ChemPredict/pkg/errors"
)

// Header is the CSV header row, in column order.
var Header = []string{
	reaction.ColSubstrateDegree,
	reaction.ColLeavingGroup,
	reaction.ColNucleophile,
	reaction.ColSolventType,
	reaction.ColStericHindrance,
	reaction.ColTemperature,
	reaction.ColTarget,
}

// Row is one labelled training example.
type Row struct {
	reaction.Descriptor
	Target reaction.Mechanism `json:"Target_Mechanism"`
}

// Record returns the row as CSV cells.
func (r Row) Record() []string {
	return []string{
		string(r.SubstrateDegree),
		string(r.LeavingGroup),
		string(r.Nucleophile),
		string(r.SolventType),
		string(r.StericHindrance),
		strconv.FormatFloat(r.Temperature, 'f', 1, 64),
		string(r.Target),
	}
}

// Table is an ordered collection of rows.
type Table struct {
	Rows []Row
}

// Len returns the row count.
func (t *Table) Len() int {
	if t == nil {
		return 0
	}
	return len(t.Rows)
}

// ClassCount is one entry of the label distribution.
type ClassCount struct {
	Mechanism reaction.Mechanism `json:"mechanism"`
	Count     int                `json:"count"`
}

// ClassCounts returns the label distribution, largest class first.  Ties are
// broken by mechanism display order.
func (t *Table) ClassCounts() []ClassCount {
	counts := make(map[reaction.Mechanism]int)
	for _, r := range t.Rows {
		counts[r.Target]++
	}
	order := make(map[reaction.Mechanism]int)
	for i, m := range reaction.Mechanisms() {
		order[m] = i
	}
	out := make([]ClassCount, 0, len(counts))
	for m, n := range counts {
		out = append(out, ClassCount{Mechanism: m, Count: n})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Count != out[j].Count {
			return out[i].Count > out[j].Count
		}
		return order[out[i].Mechanism] < order[out[j].Mechanism]
	})
	return out
}

// WriteCSV writes the header and every row.
func (t *Table) WriteCSV(w io.Writer) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(Header); err != nil {
		return errors.Wrap(err, errors.ErrCodeSerialization, "failed to write csv header")
	}
	for _, r := range t.Rows {
		if err := cw.Write(r.Record()); err != nil {
			return errors.Wrap(err, errors.ErrCodeSerialization, "failed to write csv row")
		}
	}
	cw.Flush()
	if err := cw.Error(); err != nil {
		return errors.Wrap(err, errors.ErrCodeSerialization, "failed to flush csv")
	}
	return nil
}

// ReadCSV parses a table.  The header must match Header exactly (a UTF-8 BOM
// and surrounding whitespace are tolerated) and every cell must parse.
func ReadCSV(r io.Reader) (*Table, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = len(Header)
	cr.TrimLeadingSpace = true

	head, err := cr.Read()
	if err == io.EOF {
		return nil, errors.DatasetInvalid("dataset is empty")
	}
	if err != nil {
		return nil, errors.DatasetInvalid("failed to read header").WithCause(err)
	}
	for i, name := range head {
		name = strings.TrimSpace(strings.TrimPrefix(name, "\ufeff"))
		if name != Header[i] {
			return nil, errors.DatasetInvalid("unexpected header").
				WithDetail(fmt.Sprintf("column %d is %q, expected %q", i+1, name, Header[i]))
		}
	}

	t := &Table{}
	line := 1
	for {
		rec, err := cr.Read()
		if err == io.EOF {
			break
		}
		line++
		if err != nil {
			return nil, errors.DatasetInvalid("malformed csv").WithCause(err).
				WithDetail(fmt.Sprintf("row %d", line))
		}
		row, err := parseRecord(rec)
		if err != nil {
			ae, _ := errors.AsAppError(err)
			col := ""
			if ae != nil {
				col = ae.Field
			}
			return nil, errors.DatasetInvalid("invalid cell").WithCause(err).WithField(col).
				WithDetail(fmt.Sprintf("row %d, column %s: %v", line, col, err))
		}
		t.Rows = append(t.Rows, row)
	}
	return t, nil
}

func parseRecord(rec []string) (Row, error) {
	d, err := reaction.RawDescriptor{
		SubstrateDegree: rec[0],
		LeavingGroup:    rec[1],
		Nucleophile:     rec[2],
		SolventType:     rec[3],
		StericHindrance: rec[4],
		Temperature:     rec[5],
	}.Parse()
	if err != nil {
		return Row{}, err
	}
	target, err := reaction.ParseMechanism(rec[6])
	if err != nil {
		return Row{}, err
	}
	return Row{Descriptor: d, Target: target}, nil
}

// SaveFile writes the table to path, creating parent directories.
func (t *Table) SaveFile(path string) error {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return errors.Wrap(err, errors.ErrCodeStorageError, "failed to create dataset directory")
		}
	}
	f, err := os.Create(path)
	if err != nil {
		return errors.Wrap(err, errors.ErrCodeStorageError, "failed to create dataset file").WithDetail(path)
	}
	if err := t.WriteCSV(f); err != nil {
		_ = f.Close()
		return err
	}
	if err := f.Close(); err != nil {
		return errors.Wrap(err, errors.ErrCodeStorageError, "failed to close dataset file").WithDetail(path)
	}
	return nil
}

// LoadFile reads a table from path.
func LoadFile(path string) (*Table, error) {
	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, errors.New(errors.ErrCodeNotFound, "dataset file not found").WithDetail(path)
		}
		return nil, errors.Wrap(err, errors.ErrCodeStorageError, "failed to open dataset file").WithDetail(path)
	}
	defer f.Close()
	return ReadCSV(f)
}
