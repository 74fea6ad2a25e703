// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package hal

import (
	"fmt"
	"strings"
	"sync"
)

// Character display geometry
const (
	DisplayColumns = 16
	DisplayRows    = 2
)

// CharDisplay is a 16x2 character display buffer.
// Characters written past the end of a row are dropped.
type CharDisplay struct {
	mu        sync.Mutex
	cells     [DisplayRows][DisplayColumns]byte
	col, row  int
	on        bool
	backlight bool
	onChange  func(lines [DisplayRows]string)
}

// NewCharDisplay creates a cleared display, switched on with the backlight lit.
// onChange, if non-nil, is called with the new contents after every change.
func NewCharDisplay(onChange func(lines [DisplayRows]string)) *CharDisplay {
	d := &CharDisplay{on: true, backlight: true, onChange: onChange}
	d.clear()
	return d
}

// Clear blanks the display and homes the cursor
func (d *CharDisplay) Clear() error {
	d.mu.Lock()
	d.clear()
	d.mu.Unlock()
	d.notify()
	return nil
}

func (d *CharDisplay) clear() {
	for r := range d.cells {
		for c := range d.cells[r] {
			d.cells[r][c] = ' '
		}
	}
	d.col, d.row = 0, 0
}

// SetCursor moves the write position
func (d *CharDisplay) SetCursor(col, row int) error {
	if col < 0 || col >= DisplayColumns || row < 0 || row >= DisplayRows {
		return fmt.Errorf("cursor (%d,%d) outside %dx%d display", col, row, DisplayColumns, DisplayRows)
	}
	d.mu.Lock()
	d.col, d.row = col, row
	d.mu.Unlock()
	return nil
}

// WriteText writes text at the cursor and advances it
func (d *CharDisplay) WriteText(text string) error {
	d.mu.Lock()
	for _, r := range text {
		if d.col >= DisplayColumns {
			break
		}
		if r < 0x20 || r > 0x7E {
			r = '?'
		}
		d.cells[d.row][d.col] = byte(r)
		d.col++
	}
	d.mu.Unlock()
	d.notify()
	return nil
}

// Printf formats and writes text at the cursor
func (d *CharDisplay) Printf(format string, args ...interface{}) error {
	return d.WriteText(fmt.Sprintf(format, args...))
}

// SetBacklight switches the backlight
func (d *CharDisplay) SetBacklight(on bool) {
	d.mu.Lock()
	d.backlight = on
	d.mu.Unlock()
	d.notify()
}

// SetDisplayOn blanks or restores the visible contents
func (d *CharDisplay) SetDisplayOn(on bool) {
	d.mu.Lock()
	d.on = on
	d.mu.Unlock()
	d.notify()
}

// Backlight reports whether the backlight is lit
func (d *CharDisplay) Backlight() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.backlight
}

// Lines returns the visible rows, right-padded to the display width
func (d *CharDisplay) Lines() [DisplayRows]string {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.lines()
}

func (d *CharDisplay) lines() [DisplayRows]string {
	var out [DisplayRows]string
	for r := range d.cells {
		if d.on {
			out[r] = string(d.cells[r][:])
		} else {
			out[r] = strings.Repeat(" ", DisplayColumns)
		}
	}
	return out
}

// String renders the display as two trimmed lines
func (d *CharDisplay) String() string {
	lines := d.Lines()
	return strings.TrimRight(lines[0], " ") + "\n" + strings.TrimRight(lines[1], " ")
}

func (d *CharDisplay) notify() {
	if d.onChange == nil {
		return
	}
	d.onChange(d.Lines())
}
