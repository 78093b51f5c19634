package profile

import (
	"bufio"
	"os"
	"strconv"
	"strings"

	"github.com/pkg/errors"
)

// columns is the required CSV header, in order.
var columns = []string{"patch", "cell", "baseline", "c0", "c1", "c2"}

// Read loads a calibration profile from a CSV file.  The first row must
// be the header "patch,cell,baseline,c0,c1,c2"; each following row
// defines one cell.  Duplicated cells overwrite earlier rows.  Errors
// carry the offending line number.
func Read(path string) (*Profile, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, errors.Wrapf(err, "cannot open profile %s", path)
	}
	defer f.Close()

	p := New()
	p.path = path

	sc := bufio.NewScanner(f)
	for lineNum := 1; sc.Scan(); lineNum++ {
		line := strings.TrimRight(sc.Text(), "\r\n")
		if strings.TrimSpace(line) == "" {
			continue
		}
		fields := strings.Split(line, ",")
		if lineNum == 1 {
			if err := checkHeader(fields); err != nil {
				return nil, errors.Wrapf(err, "%s: line %d", path, lineNum)
			}
			continue
		}
		if err := p.parseRow(fields); err != nil {
			return nil, errors.Wrapf(err, "%s: line %d", path, lineNum)
		}
	}
	if err := sc.Err(); err != nil {
		return nil, errors.Wrapf(err, "reading profile %s", path)
	}
	return p, nil
}

func checkHeader(fields []string) error {
	if len(fields) != len(columns) {
		return errors.Errorf("expected %d header columns, found %d", len(columns), len(fields))
	}
	for i, f := range fields {
		if strings.TrimSpace(f) != columns[i] {
			return errors.Errorf("unknown header column %q (expected %q)", strings.TrimSpace(f), columns[i])
		}
	}
	return nil
}

func (p *Profile) parseRow(fields []string) error {
	if len(fields) != len(columns) {
		return errors.Errorf("expected %d columns, found %d", len(columns), len(fields))
	}
	patch, err := parseInt(fields[0])
	if err != nil {
		return err
	}
	if patch < 1 {
		return errors.Errorf("invalid patch number %d", patch)
	}
	cell, err := parseInt(fields[1])
	if err != nil {
		return err
	}
	if cell < 0 {
		return errors.Errorf("invalid cell number %d", cell)
	}
	baseline, err := parseInt(fields[2])
	if err != nil {
		return err
	}
	var coef [3]float64
	for i := 0; i < 3; i++ {
		if coef[i], err = parseFloat(fields[3+i]); err != nil {
			return err
		}
	}
	p.GetOrCreate(patch).Set(cell, int32(baseline), coef[0], coef[1], coef[2])
	return nil
}

func parseInt(tok string) (int, error) {
	v, err := strconv.Atoi(strings.TrimSpace(tok))
	if err != nil {
		return 0, errors.Errorf("integer expected but found %q", strings.TrimSpace(tok))
	}
	return v, nil
}

func parseFloat(tok string) (float64, error) {
	v, err := strconv.ParseFloat(strings.TrimSpace(tok), 64)
	if err != nil {
		return 0, errors.Errorf("float expected but found %q", strings.TrimSpace(tok))
	}
	return v, nil
}
