package replay

import (
	"encoding/csv"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/pkg/errors"
)

const columns = 6

// Row is one line of a recorded file: ts, seq, is_trade, is_bid, price, size.
type Row struct {
	TS      float64
	Seq     int64
	IsTrade bool
	IsBid   bool
	Price   float64
	Size    float64
}

// LoadFile reads a whole recording from disk.
func LoadFile(path string) ([]Row, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, errors.Wrap(err, "open replay file")
	}
	defer f.Close()

	rows, err := Load(f)
	if err != nil {
		return nil, errors.Wrapf(err, "load %s", path)
	}
	return rows, nil
}

// Load parses header-less CSV rows. Any malformed line fails the whole load.
func Load(r io.Reader) ([]Row, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = columns
	cr.TrimLeadingSpace = true
	cr.ReuseRecord = true

	var rows []Row
	for {
		rec, err := cr.Read()
		if err == io.EOF {
			return rows, nil
		}
		if err != nil {
			return nil, errors.Wrap(err, "read csv")
		}

		row, err := parseRow(rec)
		if err != nil {
			// blank lines are skipped by the reader, so count physical lines from it
			line, _ := cr.FieldPos(0)
			return nil, errors.Wrapf(err, "line %d", line)
		}
		rows = append(rows, row)
	}
}

func parseRow(rec []string) (Row, error) {
	var (
		row Row
		err error
	)
	if row.TS, err = parseFloat("ts", rec[0]); err != nil {
		return Row{}, err
	}
	if row.Seq, err = strconv.ParseInt(strings.TrimSpace(rec[1]), 10, 64); err != nil {
		// some recorders write the sequence as a float
		f, ferr := parseFloat("seq", rec[1])
		if ferr != nil {
			return Row{}, ferr
		}
		row.Seq = int64(f)
	}
	if row.IsTrade, err = parseBool("is_trade", rec[2]); err != nil {
		return Row{}, err
	}
	if row.IsBid, err = parseBool("is_bid", rec[3]); err != nil {
		return Row{}, err
	}
	if row.Price, err = parseFloat("price", rec[4]); err != nil {
		return Row{}, err
	}
	if row.Size, err = parseFloat("size", rec[5]); err != nil {
		return Row{}, err
	}
	return row, nil
}

func parseFloat(field, s string) (float64, error) {
	f, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
	if err != nil {
		return 0, errors.Wrapf(err, "column %s", field)
	}
	return f, nil
}

func parseBool(field, s string) (bool, error) {
	b, err := strconv.ParseBool(strings.TrimSpace(s))
	if err != nil {
		return false, errors.Wrapf(err, "column %s", field)
	}
	return b, nil
}
