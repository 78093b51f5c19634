package layout

import (
	"bufio"
	"os"
	"strconv"
	"strings"

	"github.com/pkg/errors"
)

// parser states for the layout file format.
const (
	stateInit    = iota // number of patches expected
	statePatchID        // patch header line expected
	stateCellID         // cell line expected
)

// Read loads a layout from a text file.  The first value is the number
// of patches; then for each patch a header line "patch_id,num_cells"
// followed by num_cells lines "cell_id,x,y".  Commas or spaces separate
// values.  Errors carry the offending line number.
func Read(path string) (*Layout, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, errors.Wrapf(err, "cannot open layout %s", path)
	}
	defer f.Close()

	lo := &Layout{}
	state := stateInit
	numPatches := 0
	cellsLeft := 0
	var current PatchLayout

	sc := bufio.NewScanner(f)
	lineNum := 0
	for sc.Scan() {
		lineNum++
		fields := splitFields(sc.Text())
		if len(fields) == 0 {
			continue
		}
		switch state {
		case stateInit:
			if len(fields) != 1 {
				return nil, parseError(path, lineNum, "expected patch count")
			}
			if numPatches, err = parseInt(fields[0]); err != nil {
				return nil, errors.Wrapf(err, "%s: line %d", path, lineNum)
			}
			if numPatches < 0 {
				return nil, parseError(path, lineNum, "negative patch count")
			}
			state = statePatchID

		case statePatchID:
			if lo.NumPatches() == numPatches {
				return nil, parseError(path, lineNum, "more patches than declared")
			}
			if len(fields) != 2 {
				return nil, parseError(path, lineNum, "expected patch_id,num_cells")
			}
			patchID, err := parseInt(fields[0])
			if err != nil {
				return nil, errors.Wrapf(err, "%s: line %d", path, lineNum)
			}
			if patchID < 1 {
				return nil, parseError(path, lineNum, "patch ids start at 1")
			}
			if cellsLeft, err = parseInt(fields[1]); err != nil {
				return nil, errors.Wrapf(err, "%s: line %d", path, lineNum)
			}
			current = PatchLayout{PatchID: patchID}
			if cellsLeft == 0 {
				lo.addPatch(current)
			} else {
				state = stateCellID
			}

		case stateCellID:
			if len(fields) != 3 {
				return nil, parseError(path, lineNum, "expected cell_id,x,y")
			}
			cellID, err := parseInt(fields[0])
			if err != nil {
				return nil, errors.Wrapf(err, "%s: line %d", path, lineNum)
			}
			if cellID < 0 {
				return nil, parseError(path, lineNum, "negative cell id")
			}
			x, err := parseFloat(fields[1])
			if err != nil {
				return nil, errors.Wrapf(err, "%s: line %d", path, lineNum)
			}
			y, err := parseFloat(fields[2])
			if err != nil {
				return nil, errors.Wrapf(err, "%s: line %d", path, lineNum)
			}
			current.addCell(cellID, x, y)
			if cellsLeft--; cellsLeft == 0 {
				lo.addPatch(current)
				state = statePatchID
			}
		}
	}
	if err := sc.Err(); err != nil {
		return nil, errors.Wrapf(err, "reading layout %s", path)
	}
	if state == stateCellID {
		return nil, parseError(path, lineNum, "unexpected end of file inside patch")
	}
	if lo.NumPatches() != numPatches {
		return nil, errors.Errorf("%s: declared %d patches, found %d", path, numPatches, lo.NumPatches())
	}
	return lo, nil
}

func parseError(path string, line int, msg string) error {
	return errors.Errorf("%s: line %d: %s", path, line, msg)
}

// splitFields tokenizes a line on commas and whitespace.
func splitFields(line string) []string {
	return strings.FieldsFunc(line, func(r rune) bool {
		return r == ',' || r == ' ' || r == '\t' || r == '\r'
	})
}

func parseInt(tok string) (int, error) {
	v, err := strconv.Atoi(tok)
	if err != nil {
		return 0, errors.Errorf("integer expected but found %q", tok)
	}
	return v, nil
}

func parseFloat(tok string) (float64, error) {
	v, err := strconv.ParseFloat(tok, 64)
	if err != nil {
		return 0, errors.Errorf("float expected but found %q", tok)
	}
	return v, nil
}
