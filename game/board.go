package game

import "fmt"

// Board is a size×size grid of symbols. Occupied cells are never
// cleared or overwritten: the only mutation is Apply on an empty cell.
type Board struct {
	Size  int        `json:"size"`
	Cells [][]string `json:"cells"`
}

func NewBoard(size int) *Board {
	cells := make([][]string, size)
	for i := range cells {
		cells[i] = make([]string, size)
	}
	return &Board{Size: size, Cells: cells}
}

// InBounds reports whether (row, col) is on the board.
func (b *Board) InBounds(row, col int) bool {
	return row >= 0 && row < b.Size && col >= 0 && col < b.Size
}

// At returns the symbol at (row, col), or "" for an empty cell.
func (b *Board) At(row, col int) string {
	return b.Cells[row][col]
}

// Occupied reports whether (row, col) already holds a symbol.
func (b *Board) Occupied(row, col int) bool {
	return b.Cells[row][col] != ""
}

// Apply places symbol at (row, col). It fails on out-of-bounds or
// occupied cells so committed cells can never be overwritten.
func (b *Board) Apply(row, col int, symbol string) error {
	if !b.InBounds(row, col) {
		return fmt.Errorf("%w: cell (%d,%d) out of bounds", ErrProtocol, row, col)
	}
	if b.Occupied(row, col) {
		return fmt.Errorf("%w: cell (%d,%d) already occupied", ErrProtocol, row, col)
	}
	b.Cells[row][col] = symbol
	return nil
}

// Full reports whether every cell is occupied.
func (b *Board) Full() bool {
	for _, row := range b.Cells {
		for _, cell := range row {
			if cell == "" {
				return false
			}
		}
	}
	return true
}

// WinningMove reports whether a move at (row, col) by symbol completes
// a full row, column or diagonal. The cell at (row, col) must already
// hold the symbol when called.
func (b *Board) WinningMove(row, col int, symbol string) bool {
	rowWin, colWin := true, true
	for i := 0; i < b.Size; i++ {
		if b.Cells[row][i] != symbol {
			rowWin = false
		}
		if b.Cells[i][col] != symbol {
			colWin = false
		}
	}
	if rowWin || colWin {
		return true
	}
	if row == col {
		win := true
		for i := 0; i < b.Size; i++ {
			if b.Cells[i][i] != symbol {
				win = false
				break
			}
		}
		if win {
			return true
		}
	}
	if row+col == b.Size-1 {
		win := true
		for i := 0; i < b.Size; i++ {
			if b.Cells[i][b.Size-1-i] != symbol {
				win = false
				break
			}
		}
		if win {
			return true
		}
	}
	return false
}

// clone returns a deep copy, used for hypothetical validation and
// snapshots.
func (b *Board) clone() *Board {
	c := NewBoard(b.Size)
	for i := range b.Cells {
		copy(c.Cells[i], b.Cells[i])
	}
	return c
}
