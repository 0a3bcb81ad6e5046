package plot

import (
	"bytes"
	"math"
	"strconv"
	"strings"
	"sync"

	"github.com/mattn/go-runewidth"
)

const (
	minPlotWidth  = 10
	minPlotHeight = 4

	ansiReset = "\x1b[0m"
)

var ansiColors = map[Color]string{
	ColorRed:   "\x1b[31m",
	ColorGreen: "\x1b[32m",
	ColorCyan:  "\x1b[36m",
}

type trace struct {
	points []Point
	style  Style
}

// Canvas is a Surface that keeps every trace and renders them into a text frame.
type Canvas struct {
	mu      sync.Mutex
	traces  []trace
	version uint64

	title string
	color bool
}

type Option func(*Canvas)

func WithTitle(title string) Option {
	return func(c *Canvas) { c.title = title }
}

// WithoutColor drops ANSI colour codes from frames.
func WithoutColor() Option {
	return func(c *Canvas) { c.color = false }
}

func NewCanvas(opts ...Option) *Canvas {
	c := &Canvas{color: true}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func (c *Canvas) Render(points []Point, style Style) {
	cp := make([]Point, len(points))
	copy(cp, points)

	c.mu.Lock()
	c.traces = append(c.traces, trace{points: cp, style: style})
	c.version++
	c.mu.Unlock()
}

// Version changes every time a trace is added.
func (c *Canvas) Version() uint64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.version
}

func (c *Canvas) Traces() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.traces)
}

type bounds struct {
	minX, maxX, minY, maxY float64
	ok                     bool
}

func (b *bounds) add(p Point) {
	if math.IsNaN(p.X) || math.IsNaN(p.Y) || math.IsInf(p.X, 0) || math.IsInf(p.Y, 0) {
		return
	}
	if !b.ok {
		b.minX, b.maxX, b.minY, b.maxY = p.X, p.X, p.Y, p.Y
		b.ok = true
		return
	}
	b.minX = math.Min(b.minX, p.X)
	b.maxX = math.Max(b.maxX, p.X)
	b.minY = math.Min(b.minY, p.Y)
	b.maxY = math.Max(b.maxY, p.Y)
}

// widen keeps a degenerate axis from collapsing to zero span.
func (b *bounds) widen() {
	if b.maxX == b.minX {
		b.minX -= 0.5
		b.maxX += 0.5
	}
	if b.maxY == b.minY {
		b.minY -= 0.5
		b.maxY += 0.5
	}
}

type cell struct {
	r     rune
	color Color
}

type grid struct {
	w, h  int
	cells [][]cell
	b     bounds
}

func newGrid(w, h int, b bounds) *grid {
	cells := make([][]cell, h)
	for i := range cells {
		cells[i] = make([]cell, w)
		for j := range cells[i] {
			cells[i][j] = cell{r: ' '}
		}
	}
	return &grid{w: w, h: h, cells: cells, b: b}
}

func (g *grid) project(p Point) (col, row int, ok bool) {
	if math.IsNaN(p.X) || math.IsNaN(p.Y) || math.IsInf(p.X, 0) || math.IsInf(p.Y, 0) {
		return 0, 0, false
	}
	col = int(math.Round((p.X - g.b.minX) / (g.b.maxX - g.b.minX) * float64(g.w-1)))
	row = g.h - 1 - int(math.Round((p.Y-g.b.minY)/(g.b.maxY-g.b.minY)*float64(g.h-1)))
	return col, row, true
}

func (g *grid) set(col, row int, r rune, color Color) {
	if col < 0 || col >= g.w || row < 0 || row >= g.h {
		return
	}
	g.cells[row][col] = cell{r: r, color: color}
}

// line draws a Bresenham segment between two projected cells.
func (g *grid) line(c0, r0, c1, r1 int, color Color) {
	dc := abs(c1 - c0)
	dr := -abs(r1 - r0)
	sc, sr := 1, 1
	if c0 > c1 {
		sc = -1
	}
	if r0 > r1 {
		sr = -1
	}
	e := dc + dr
	for {
		g.set(c0, r0, '*', color)
		if c0 == c1 && r0 == r1 {
			return
		}
		e2 := 2 * e
		if e2 >= dr {
			e += dr
			c0 += sc
		}
		if e2 <= dc {
			e += dc
			r0 += sr
		}
	}
}

func (g *grid) draw(t trace) {
	if t.style.Line {
		prevOK := false
		var pc, pr int
		for _, p := range t.points {
			col, row, ok := g.project(p)
			if !ok {
				prevOK = false
				continue
			}
			if prevOK {
				g.line(pc, pr, col, row, t.style.Color)
			} else {
				g.set(col, row, '*', t.style.Color)
			}
			pc, pr, prevOK = col, row, true
		}
	}

	r := markerRune(t.style)
	if r == 0 {
		return
	}
	for _, p := range t.points {
		if col, row, ok := g.project(p); ok {
			g.set(col, row, r, t.style.Color)
		}
	}
}

func markerRune(s Style) rune {
	switch s.Marker {
	case MarkerPlus:
		return '+'
	case MarkerCircle:
		return 'o'
	}
	if s.Line {
		return 0
	}
	return '.'
}

// Frame renders the chart into width x height terminal cells, legend included.
// The last line has no line feed so a frame drawn from the home position never scrolls.
func (c *Canvas) Frame(width, height int) string {
	c.mu.Lock()
	traces := make([]trace, len(c.traces))
	copy(traces, c.traces)
	c.mu.Unlock()

	var b bytes.Buffer
	if c.title != "" {
		b.WriteString(c.title + "\n")
	}

	var bd bounds
	for _, t := range traces {
		for _, p := range t.points {
			bd.add(p)
		}
	}
	if !bd.ok {
		b.WriteString("(no data yet)\n")
		b.WriteString(renderTable(legendHeader, legendRows(traces)))
		return strings.TrimSuffix(b.String(), "\n")
	}
	bd.widen()

	yTop, yMid, yBot := formatNum(bd.maxY), formatNum((bd.maxY+bd.minY)/2), formatNum(bd.minY)
	labelW := maxWidth(yTop, yMid, yBot)

	legend := renderTable(legendHeader, legendRows(traces))
	legendLines := strings.Count(legend, "\n")

	reserved := legendLines + 2 // x axis + x labels
	if c.title != "" {
		reserved++
	}
	pw := width - labelW - 2
	ph := height - reserved
	if pw < minPlotWidth {
		pw = minPlotWidth
	}
	if ph < minPlotHeight {
		ph = minPlotHeight
	}

	g := newGrid(pw, ph, bd)
	for _, t := range traces {
		g.draw(t)
	}

	for row := 0; row < ph; row++ {
		label := ""
		switch row {
		case 0:
			label = yTop
		case ph / 2:
			label = yMid
		case ph - 1:
			label = yBot
		}
		b.WriteString(padLeft(label, labelW))
		b.WriteString(" |")
		c.writeRow(&b, g.cells[row])
		b.WriteString("\n")
	}

	b.WriteString(strings.Repeat(" ", labelW+1) + "+" + strings.Repeat("-", pw) + "\n")
	xMin, xMax := formatNum(bd.minX), formatNum(bd.maxX)
	gap := pw - runewidth.StringWidth(xMin) - runewidth.StringWidth(xMax)
	if gap < 1 {
		gap = 1
	}
	b.WriteString(strings.Repeat(" ", labelW+2) + xMin + strings.Repeat(" ", gap) + xMax + "\n")

	b.WriteString(legend)
	return strings.TrimSuffix(b.String(), "\n")
}

func (c *Canvas) writeRow(b *bytes.Buffer, row []cell) {
	open := ColorDefault
	for _, cl := range row {
		if c.color && cl.color != open {
			if open != ColorDefault {
				b.WriteString(ansiReset)
			}
			if code, ok := ansiColors[cl.color]; ok {
				b.WriteString(code)
			}
			open = cl.color
		}
		b.WriteRune(cl.r)
	}
	if c.color && open != ColorDefault {
		b.WriteString(ansiReset)
	}
}

var legendHeader = []string{"SERIES", "STYLE", "TRACES", "POINTS"}

func legendRows(traces []trace) [][]string {
	type agg struct {
		style  Style
		traces int
		points int
	}
	var order []string
	byLabel := make(map[string]*agg)
	for _, t := range traces {
		label := t.style.Label
		if label == "" {
			label = "-"
		}
		a, ok := byLabel[label]
		if !ok {
			a = &agg{style: t.style}
			byLabel[label] = a
			order = append(order, label)
		}
		a.traces++
		a.points += len(t.points)
	}

	rows := make([][]string, 0, len(order))
	for _, label := range order {
		a := byLabel[label]
		rows = append(rows, []string{label, describe(a.style), strconv.Itoa(a.traces), strconv.Itoa(a.points)})
	}
	return rows
}

func describe(s Style) string {
	var parts []string
	if r := markerRune(s); r != 0 {
		parts = append(parts, string(r))
	}
	if s.Line {
		parts = append(parts, "line")
	}
	if s.Color != ColorDefault {
		parts = append(parts, string(s.Color))
	}
	return strings.Join(parts, " ")
}

func formatNum(v float64) string {
	return strconv.FormatFloat(v, 'f', 4, 64)
}

func maxWidth(ss ...string) int {
	w := 0
	for _, s := range ss {
		if sw := runewidth.StringWidth(s); sw > w {
			w = sw
		}
	}
	return w
}

func padLeft(s string, w int) string {
	sw := runewidth.StringWidth(s)
	if sw >= w {
		return s
	}
	return strings.Repeat(" ", w-sw) + s
}

func abs(v int) int {
	if v < 0 {
		return -v
	}
	return v
}

// renderTable builds a simple ASCII table using runewidth-aware padding
func renderTable(headers []string, rows [][]string) string {
	widths := make([]int, len(headers))
	for i, h := range headers {
		widths[i] = runewidth.StringWidth(h)
	}
	for _, r := range rows {
		for i := range headers {
			v := ""
			if i < len(r) {
				v = r[i]
			}
			if w := runewidth.StringWidth(v); w > widths[i] {
				widths[i] = w
			}
		}
	}

	pad := func(s string, w int) string {
		sw := runewidth.StringWidth(s)
		if sw >= w {
			return s
		}
		return s + strings.Repeat(" ", w-sw)
	}

	var b bytes.Buffer
	sep := func() {
		b.WriteString("+")
		for _, w := range widths {
			b.WriteString(strings.Repeat("-", w+2))
			b.WriteString("+")
		}
		b.WriteString("\n")
	}

	sep()
	b.WriteString("|")
	for i, h := range headers {
		b.WriteString(" ")
		b.WriteString(pad(h, widths[i]))
		b.WriteString(" |")
	}
	b.WriteString("\n")
	sep()

	for _, r := range rows {
		b.WriteString("|")
		for i := range headers {
			v := ""
			if i < len(r) {
				v = r[i]
			}
			b.WriteString(" ")
			b.WriteString(pad(v, widths[i]))
			b.WriteString(" |")
		}
		b.WriteString("\n")
	}
	sep()
	return b.String()
}
