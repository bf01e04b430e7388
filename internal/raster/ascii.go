package raster

import (
	"bufio"
	"io"
	"math"
	"os"
	"strconv"
	"strings"

	"github.com/rotisserie/eris"
)

// DefaultNodataValue is written to ASCII grids for NaN cells.
const DefaultNodataValue = -9999.0

// FarValue stands in for an infinite distance in ASCII grids. Cells at or
// beyond ±FarValue read back as ±Inf.
const FarValue = 1e30

// ReadASCIIGridFile opens and parses an ESRI ASCII grid.
func ReadASCIIGridFile(path, name string, kind Kind) (*Layer, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, eris.Wrapf(err, "raster: open %s", path)
	}
	defer f.Close() //nolint:errcheck

	l, err := ReadASCIIGrid(f, name, kind)
	if err != nil {
		return nil, eris.Wrapf(err, "raster: read %s", path)
	}
	return l, nil
}

// ReadASCIIGrid parses an ESRI ASCII grid. Cells equal to NODATA_value
// become NaN, and cells at or beyond ±FarValue become ±Inf.
func ReadASCIIGrid(r io.Reader, name string, kind Kind) (*Layer, error) {
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 64*1024), 1024*1024)
	sc.Split(bufio.ScanWords)

	header := map[string]float64{}
	var first string
	for sc.Scan() {
		tok := sc.Text()
		key := strings.ToLower(tok)
		if !isHeaderKey(key) {
			first = tok
			break
		}
		if !sc.Scan() {
			return nil, eris.Errorf("raster: header %s has no value", tok)
		}
		v, err := strconv.ParseFloat(sc.Text(), 64)
		if err != nil {
			return nil, eris.Wrapf(err, "raster: header %s", tok)
		}
		header[key] = v
	}
	if err := sc.Err(); err != nil {
		return nil, eris.Wrap(err, "raster: scan header")
	}

	cols, rows := int(header["ncols"]), int(header["nrows"])
	cellSize := header["cellsize"]
	minX, okX := header["xllcorner"]
	minY, okY := header["yllcorner"]
	if !okX {
		minX = header["xllcenter"] - cellSize/2
	}
	if !okY {
		minY = header["yllcenter"] - cellSize/2
	}
	nodata, hasNodata := header["nodata_value"]

	g, err := NewGrid(minX, minY+float64(rows)*cellSize, cellSize, cols, rows)
	if err != nil {
		return nil, err
	}

	data := make([]float64, 0, g.Len())
	parse := func(tok string) error {
		v, err := strconv.ParseFloat(tok, 64)
		if err != nil {
			return eris.Wrapf(err, "raster: cell %d", len(data))
		}
		switch {
		case hasNodata && v == nodata:
			v = math.NaN()
		case v >= FarValue:
			v = math.Inf(1)
		case v <= -FarValue:
			v = math.Inf(-1)
		}
		data = append(data, v)
		return nil
	}
	if first != "" {
		if err := parse(first); err != nil {
			return nil, err
		}
	}
	for len(data) < g.Len() && sc.Scan() {
		if err := parse(sc.Text()); err != nil {
			return nil, err
		}
	}
	if err := sc.Err(); err != nil {
		return nil, eris.Wrap(err, "raster: scan cells")
	}
	if len(data) != g.Len() {
		return nil, eris.Errorf("raster: expected %d cells, got %d", g.Len(), len(data))
	}

	return &Layer{Name: name, Kind: kind, Grid: g, Data: data}, nil
}

func isHeaderKey(k string) bool {
	switch k {
	case "ncols", "nrows", "xllcorner", "yllcorner", "xllcenter", "yllcenter", "cellsize", "nodata_value":
		return true
	}
	return false
}

// WriteASCIIGridFile writes a layer to path as an ESRI ASCII grid.
func WriteASCIIGridFile(path string, l *Layer) error {
	f, err := os.Create(path)
	if err != nil {
		return eris.Wrapf(err, "raster: create %s", path)
	}
	if err := WriteASCIIGrid(f, l); err != nil {
		_ = f.Close()
		return err
	}
	return eris.Wrapf(f.Close(), "raster: close %s", path)
}

// WriteASCIIGrid writes a layer as an ESRI ASCII grid.
func WriteASCIIGrid(w io.Writer, l *Layer) error {
	bw := bufio.NewWriter(w)
	g := l.Grid
	header := "ncols " + strconv.Itoa(g.Cols) + "\n" +
		"nrows " + strconv.Itoa(g.Rows) + "\n" +
		"xllcorner " + formatFloat(g.MinX) + "\n" +
		"yllcorner " + formatFloat(g.MinY()) + "\n" +
		"cellsize " + formatFloat(g.CellSize) + "\n" +
		"NODATA_value " + formatFloat(DefaultNodataValue) + "\n"
	if _, err := bw.WriteString(header); err != nil {
		return eris.Wrap(err, "raster: write header")
	}

	for row := 0; row < g.Rows; row++ {
		for col := 0; col < g.Cols; col++ {
			if col > 0 {
				_ = bw.WriteByte(' ')
			}
			v := l.Data[g.Index(col, row)]
			switch {
			case math.IsNaN(v):
				v = DefaultNodataValue
			case math.IsInf(v, 1):
				v = FarValue
			case math.IsInf(v, -1):
				v = -FarValue
			}
			_, _ = bw.WriteString(formatFloat(v))
		}
		if err := bw.WriteByte('\n'); err != nil {
			return eris.Wrap(err, "raster: write row")
		}
	}
	return eris.Wrap(bw.Flush(), "raster: flush")
}

func formatFloat(v float64) string {
	return strconv.FormatFloat(v, 'g', -1, 64)
}
