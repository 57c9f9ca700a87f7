package transform

import (
	"bufio"
	"bytes"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"iter"
	"path"
	"strings"

	"github.com/xuri/excelize/v2"
)

var byteOrderMark = []byte{0xEF, 0xBB, 0xBF}

// MaxFieldSize caps a single cell. Larger cells mean the file is not tabular.
const MaxFieldSize = 128 << 10

var (
	// ErrEmptyFile is wrapped by a ParseError when the source has no header row.
	ErrEmptyFile = errors.New("file has no header row")
	// ErrFieldTooLarge is wrapped by a ParseError when a cell exceeds MaxFieldSize.
	ErrFieldTooLarge = fmt.Errorf("field larger than %d bytes", MaxFieldSize)
)

// Parse lazily yields one record per data row of r. The format follows the
// extension of name: .xlsx is read with excelize, everything else as CSV.
// Rows shorter or longer than the header are accepted: missing cells are
// empty and extra cells are dropped. A ParseError is yielded last and ends the
// sequence; records before it have already been produced.
func Parse(name string, r io.Reader) iter.Seq2[UploadRecord, error] {
	if strings.EqualFold(path.Ext(name), ".xlsx") {
		return parseXLSX(r)
	}
	return parseCSV(r)
}

func parseCSV(r io.Reader) iter.Seq2[UploadRecord, error] {
	return func(yield func(UploadRecord, error) bool) {
		br := bufio.NewReader(r)
		if prefix, err := br.Peek(len(byteOrderMark)); err == nil && bytes.Equal(prefix, byteOrderMark) {
			_, _ = br.Discard(len(byteOrderMark))
		}

		cr := csv.NewReader(br)
		cr.ReuseRecord = true
		cr.FieldsPerRecord = -1
		cr.LazyQuotes = true

		header, err := cr.Read()
		if err == io.EOF {
			yield(UploadRecord{}, &ParseError{Err: ErrEmptyFile})
			return
		}
		if err != nil {
			yield(UploadRecord{}, &ParseError{Line: csvLine(err, 1), Err: err})
			return
		}
		if err := checkFieldSizes(cr, header); err != nil {
			yield(UploadRecord{}, err)
			return
		}
		cols := newColumnMap(header)

		for {
			row, err := cr.Read()
			if err == io.EOF {
				return
			}
			if err != nil {
				yield(UploadRecord{}, &ParseError{Line: csvLine(err, 0), Err: err})
				return
			}
			if err := checkFieldSizes(cr, row); err != nil {
				yield(UploadRecord{}, err)
				return
			}
			if !yield(cols.build(row), nil) {
				return
			}
		}
	}
}

func checkFieldSizes(cr *csv.Reader, row []string) error {
	for i, v := range row {
		if len(v) > MaxFieldSize {
			line, _ := cr.FieldPos(i)
			return &ParseError{Line: line, Err: ErrFieldTooLarge}
		}
	}
	return nil
}

func csvLine(err error, fallback int) int {
	var pe *csv.ParseError
	if errors.As(err, &pe) {
		return pe.Line
	}
	return fallback
}

func parseXLSX(r io.Reader) iter.Seq2[UploadRecord, error] {
	return func(yield func(UploadRecord, error) bool) {
		f, err := excelize.OpenReader(r)
		if err != nil {
			yield(UploadRecord{}, &ParseError{Err: err})
			return
		}
		defer func() { _ = f.Close() }()

		sheets := f.GetSheetList()
		if len(sheets) == 0 {
			yield(UploadRecord{}, &ParseError{Err: ErrEmptyFile})
			return
		}

		rows, err := f.Rows(sheets[0])
		if err != nil {
			yield(UploadRecord{}, &ParseError{Err: err})
			return
		}
		defer func() { _ = rows.Close() }()

		var cols columnMap
		line := 0
		for rows.Next() {
			line++
			row, err := rows.Columns()
			if err != nil {
				yield(UploadRecord{}, &ParseError{Line: line, Err: err})
				return
			}
			if cols == nil {
				cols = newColumnMap(row)
				continue
			}
			if !yield(cols.build(row), nil) {
				return
			}
		}
		if err := rows.Error(); err != nil {
			yield(UploadRecord{}, &ParseError{Line: line, Err: err})
			return
		}
		if cols == nil {
			yield(UploadRecord{}, &ParseError{Err: ErrEmptyFile})
		}
	}
}
