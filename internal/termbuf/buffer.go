// Package termbuf answers the question "what would this terminal
// currently display?" by feeding raw PTY bytes into a VT100-compatible
// emulator and serializing its cell grid back into a byte sequence a
// fresh, same-sized emulator can replay to reach the identical state.
package termbuf

import (
	"bytes"
	"fmt"
	"sync"

	"github.com/hinshun/vt10x"
)

// Buffer is a terminal buffer: a VT emulator plus a canonical
// full-redraw serializer. It has no history ring; feeding bytes only
// ever changes the current screen, never appends to a log a late reader
// could replay. See spec.md §4.2 for the contract this type implements.
type Buffer struct {
	mu   sync.Mutex
	term vt10x.Terminal
	cols int
	rows int
}

// New creates a buffer sized to cols x rows. cols and rows must be
// positive; the caller (session registry / PTY supervisor) is
// responsible for supplying a sane initial size.
func New(cols, rows int) *Buffer {
	return &Buffer{
		term: vt10x.New(vt10x.WithSize(cols, rows)),
		cols: cols,
		rows: rows,
	}
}

// Feed interprets raw PTY output bytes, updating cursor, cell grid, and
// SGR state as the escape sequences it contains dictate.
func (b *Buffer) Feed(data []byte) {
	b.mu.Lock()
	defer b.mu.Unlock()
	_, _ = b.term.Write(data)
}

// Resize changes the emulator's screen dimensions in place. Existing
// cell contents outside the new dimensions are discarded by the
// emulator, matching a real terminal's behavior on SIGWINCH.
func (b *Buffer) Resize(cols, rows int) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.term.Resize(cols, rows)
	b.cols, b.rows = cols, rows
}

// Size returns the buffer's current dimensions.
func (b *Buffer) Size() (cols, rows int) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.cols, b.rows
}

// ContentsFormatted serializes the current screen as a byte sequence
// that, fed into a fresh Buffer of the same size, reproduces this
// buffer's current state: cell contents, foreground and background
// colours (as 256-colour palette indices), and cursor position. Other
// SGR attributes (bold, underline, reverse, ...) are not emitted. It
// does not attempt to reproduce scrollback or the
// alternate-screen toggle history — only what is currently visible,
// which is all the priming-snapshot contract in spec.md §4.5 requires.
func (b *Buffer) ContentsFormatted() []byte {
	b.mu.Lock()
	defer b.mu.Unlock()

	var out bytes.Buffer
	out.WriteString("\x1b[2J") // clear screen
	out.WriteString("\x1b[H")  // cursor to home

	lastFG, lastBG := vt10x.DefaultFG, vt10x.DefaultBG
	out.WriteString("\x1b[0m")

	for row := 0; row < b.rows; row++ {
		for col := 0; col < b.cols; col++ {
			cell := b.term.Cell(col, row)
			if cell.FG != lastFG || cell.BG != lastBG {
				out.WriteString("\x1b[0m")
				if cell.FG != vt10x.DefaultFG {
					fmt.Fprintf(&out, "\x1b[38;5;%dm", uint8(cell.FG))
				}
				if cell.BG != vt10x.DefaultBG {
					fmt.Fprintf(&out, "\x1b[48;5;%dm", uint8(cell.BG))
				}
				lastFG, lastBG = cell.FG, cell.BG
			}
			if cell.Char == 0 {
				out.WriteRune(' ')
			} else {
				out.WriteRune(cell.Char)
			}
		}
		if row < b.rows-1 {
			out.WriteString("\r\n")
		}
	}

	out.WriteString("\x1b[0m")
	cursor := b.term.Cursor()
	fmt.Fprintf(&out, "\x1b[%d;%dH", cursor.Y+1, cursor.X+1)

	return out.Bytes()
}
