package result

import (
	"strconv"

	"github.com/google/renameio/v2"
	"github.com/xuri/excelize/v2"

	"github.com/Brownie44l1/fiber-thresholds/internal/errors"
	"github.com/Brownie44l1/fiber-thresholds/internal/model"
)

const sheetName = "Thresholds"

// WriteXLSX exports r as one sheet with a row per fiber and a column per
// pulse width. The file is replaced atomically like WriteFile.
func WriteXLSX(path string, r Result, fiberCount int) error {
	widths, err := r.PulseWidths()
	if err != nil {
		return errors.OutputWrite(path, err)
	}

	f := excelize.NewFile()
	defer f.Close()

	if err := f.SetSheetName("Sheet1", sheetName); err != nil {
		return errors.OutputWrite(path, err)
	}

	set := func(col, row int, v interface{}) error {
		cell, err := excelize.CoordinatesToCellName(col, row)
		if err != nil {
			return err
		}
		return f.SetCellValue(sheetName, cell, v)
	}

	if err := set(1, 1, "fiber"); err != nil {
		return errors.OutputWrite(path, err)
	}
	for c, w := range widths {
		if err := set(c+2, 1, w.Key()); err != nil {
			return errors.OutputWrite(path, err)
		}
	}

	for fiber := 0; fiber < fiberCount; fiber++ {
		row := fiber + 2
		if err := set(1, row, fiber); err != nil {
			return errors.OutputWrite(path, err)
		}
		for c, w := range widths {
			p, ok := r[w.Key()][strconv.Itoa(fiber)]
			if !ok {
				return errors.IncompleteResult("pulse width %s is missing fiber %d", w.Key(), fiber)
			}
			var v interface{} = p.Threshold
			if p.Mode == model.Classification {
				v = p.Activated
			}
			if err := set(c+2, row, v); err != nil {
				return errors.OutputWrite(path, err)
			}
		}
	}

	buf, err := f.WriteToBuffer()
	if err != nil {
		return errors.OutputWrite(path, err)
	}
	if err := renameio.WriteFile(path, buf.Bytes(), 0o644); err != nil {
		return errors.OutputWrite(path, err)
	}
	return nil
}
