package main

import (
	"bufio"
	"fmt"
	"os"
	"strings"

	"go.uber.org/zap"
	"golang.org/x/term"
)

const (
	defaultWidth  = 100
	defaultHeight = 30
)

// InPlaceUI for low-flicker updates (home + clear + redraw on the alternate screen).
// When stdin is a terminal it is put in raw mode and keystrokes are delivered on Keys.
type InPlaceUI struct {
	log   *zap.Logger
	out   *bufio.Writer
	inFd  int
	outFd int
	state *term.State
	keys  chan byte
}

type terminal interface {
	Init() error
	Close()
}

// openUI initialises t and restores it again when Init fails half way, so raw mode never outlives the process.
func openUI(t terminal) error {
	if err := t.Init(); err != nil {
		t.Close()
		return fmt.Errorf("ui init: %w", err)
	}
	return nil
}

func NewInPlaceUI(log *zap.Logger) *InPlaceUI {
	return &InPlaceUI{
		log:   log,
		inFd:  int(os.Stdin.Fd()),
		outFd: int(os.Stdout.Fd()),
	}
}

func (ui *InPlaceUI) Init() error {
	// try to enable VT (Windows); non-windows is no-op
	if err := enableVT(os.Stdout); err != nil {
		ui.log.Warn("enableVT failed", zap.Error(err))
	}
	ui.out = bufio.NewWriterSize(os.Stdout, 1<<20)

	if term.IsTerminal(ui.inFd) {
		state, err := term.MakeRaw(ui.inFd)
		if err != nil {
			ui.log.Warn("raw mode unavailable, keys disabled", zap.Error(err))
		} else {
			ui.state = state
			ui.keys = make(chan byte, 16)
			go ui.readKeys()
		}
	}

	fmt.Fprint(ui.out, "\x1b[?1049h") // enter alternate screen
	fmt.Fprint(ui.out, "\x1b[2J")     // clear screen
	fmt.Fprint(ui.out, "\x1b[H")      // cursor home
	fmt.Fprint(ui.out, "\x1b[?25l")   // hide cursor

	return ui.out.Flush()
}

func (ui *InPlaceUI) Close() {
	if ui.out == nil {
		return
	}
	fmt.Fprint(ui.out, "\x1b[?25h")   // show cursor
	fmt.Fprint(ui.out, "\x1b[?1049l") // leave alternate screen
	_ = ui.out.Flush()

	if ui.state != nil {
		_ = term.Restore(ui.inFd, ui.state)
		ui.state = nil
	}
}

// Draw redraws block from the top-left and clears the rest of the screen.
func (ui *InPlaceUI) Draw(block string) error {
	if ui.out == nil {
		return nil
	}
	if ui.state != nil {
		// raw mode turns off output newline translation
		block = strings.ReplaceAll(block, "\n", "\r\n")
	}

	fmt.Fprint(ui.out, "\x1b[H")  // cursor home
	fmt.Fprint(ui.out, "\x1b[0J") // clear from cursor to end of screen
	fmt.Fprint(ui.out, block)

	return ui.out.Flush()
}

// Size is the terminal size, or a fixed fallback when stdout is not a terminal.
func (ui *InPlaceUI) Size() (int, int) {
	w, h, err := term.GetSize(ui.outFd)
	if err != nil || w <= 0 || h <= 0 {
		return defaultWidth, defaultHeight
	}
	return w, h
}

// Keys yields raw keystrokes. It is nil when stdin is not a terminal.
func (ui *InPlaceUI) Keys() <-chan byte {
	return ui.keys
}

func (ui *InPlaceUI) readKeys() {
	buf := make([]byte, 1)
	for {
		n, err := os.Stdin.Read(buf)
		if err != nil {
			close(ui.keys)
			return
		}
		if n == 1 {
			ui.keys <- buf[0]
		}
	}
}
