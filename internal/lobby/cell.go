package lobby

import "fmt"

// parseCell decodes a MOVE coordinate field, which must be exactly the
// three characters "d,d" with each d a digit 1-3. Anything else (wrong
// length, non-digit, or out-of-range row/column) is a fatal grammar
// violation, not a recoverable INVL.
func parseCell(field string) (row, col int, ok bool) {
	if len(field) != 3 || field[1] != ',' {
		return 0, 0, false
	}
	r, c := field[0], field[2]
	if r < '1' || r > '3' || c < '1' || c > '3' {
		return 0, 0, false
	}
	return int(r - '0'), int(c - '0'), true
}

func formatCell(row, col int) string {
	return fmt.Sprintf("%d,%d", row, col)
}
