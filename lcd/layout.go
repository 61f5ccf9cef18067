package lcd

// Row selects one of the two display lines.
type Row uint8

const (
	Row0 Row = 0
	Row1 Row = 1
)

// Flip returns the other row.
func (r Row) Flip() Row { return r ^ 1 }

func (r Row) base() byte {
	if r == Row0 {
		return row0Base
	}
	return row1Base
}

func (r Row) String() string {
	if r == Row0 {
		return "row0"
	}
	return "row1"
}

var blankRow = []byte("                ")

// WriteLine writes text starting at the first column of row and returns the
// row the next WriteLine should target.
//
// After 16 characters, if more remain, writing continues at the start of the
// other row. Once text is exhausted the row is flipped one more time, so two
// consecutive calls alternate rows. WriteLine has no length limit: text
// longer than 32 characters keeps wrapping and overwrites earlier output.
func (d *Device) WriteLine(text []byte, row Row) Row {
	d.setCursor(row, 0)
	col := 0
	for i, c := range text {
		d.WriteChar(c)
		col++
		if i+1 < len(text) && col > Columns-1 {
			col = 0
			row = row.Flip()
			d.setCursor(row, 0)
		}
	}
	return row.Flip()
}

// ClearRow blanks row and returns it, ready to be written again.
func (d *Device) ClearRow(row Row) Row {
	// WriteLine leaves the other row selected; flip back to the cleared one.
	return d.WriteLine(blankRow, row).Flip()
}

// WriteAt writes text on row starting at col without wrapping. Characters
// past the last column are dropped.
func (d *Device) WriteAt(row Row, col int, text []byte) {
	if col < 0 || col >= Columns {
		return
	}
	d.setCursor(row, col)
	for i, c := range text {
		if col+i >= Columns {
			break
		}
		d.WriteChar(c)
	}
}

func (d *Device) setCursor(row Row, col int) {
	d.WriteInstruction(cmdSetDDRAMAddr | (row.base() + byte(col)))
	d.delay.Delay(InstructionSettle)
}
