package plot

// Point is one (x, y) sample on the chart.
type Point struct {
	X float64
	Y float64
}

type Marker string

const (
	MarkerNone   Marker = ""
	MarkerPlus   Marker = "plus"
	MarkerCircle Marker = "circle"
)

type Color string

const (
	ColorDefault Color = ""
	ColorRed     Color = "red"
	ColorGreen   Color = "green"
	ColorCyan    Color = "cyan"
)

// Style describes how a trace is drawn. Line draws a solid pen through consecutive points.
type Style struct {
	Marker Marker
	Line   bool
	Color  Color
	Label  string
}

// Surface draws traces on a shared 2D chart. Every call adds a trace; nothing is cleared.
type Surface interface {
	Render(points []Point, style Style)
}
