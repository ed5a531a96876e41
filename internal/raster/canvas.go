package raster

import (
	"fmt"
	"image"
	"image/color"
	"os"

	"github.com/edsrzf/mmap-go"
)

// bytesPerPixel is the RGB pixel width; canvases carry no alpha
const bytesPerPixel = 3

// Canvas is a square RGB pixel buffer. The buffer either lives on the heap
// or in a memory-mapped scratch file, which keeps the two 18000x18000
// hemisphere canvases (~970 MB each) out of the Go heap.
//
// Canvas implements image.Image. Concurrent reads are safe; writes are not.
type Canvas struct {
	size int
	pix  []byte

	mapped mmap.MMap
	file   *os.File
}

// NewCanvas allocates a heap-backed canvas filled with c
func NewCanvas(size int, c color.RGBA) *Canvas {
	cv := &Canvas{
		size: size,
		pix:  make([]byte, size*size*bytesPerPixel),
	}
	cv.Fill(c)
	return cv
}

// NewMappedCanvas creates a canvas backed by a memory-mapped file at path.
// The file is truncated to the canvas size and removed on Close.
func NewMappedCanvas(path string, size int, c color.RGBA) (*Canvas, error) {
	length := size * size * bytesPerPixel

	f, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE|os.O_TRUNC, 0644)
	if err != nil {
		return nil, fmt.Errorf("failed to create canvas file: %w", err)
	}

	if err := f.Truncate(int64(length)); err != nil {
		f.Close()
		os.Remove(path)
		return nil, fmt.Errorf("failed to size canvas file: %w", err)
	}

	m, err := mmap.MapRegion(f, length, mmap.RDWR, 0, 0)
	if err != nil {
		f.Close()
		os.Remove(path)
		return nil, fmt.Errorf("failed to mmap canvas file: %w", err)
	}

	cv := &Canvas{
		size:   size,
		pix:    m,
		mapped: m,
		file:   f,
	}
	cv.Fill(c)
	return cv, nil
}

// Size returns the edge length in pixels
func (cv *Canvas) Size() int {
	return cv.size
}

// Fill paints every pixel with c
func (cv *Canvas) Fill(c color.RGBA) {
	if cv.size == 0 {
		return
	}
	row := cv.pix[:cv.size*bytesPerPixel]
	for i := 0; i < len(row); i += bytesPerPixel {
		row[i], row[i+1], row[i+2] = c.R, c.G, c.B
	}
	for off := len(row); off < len(cv.pix); off += len(row) {
		copy(cv.pix[off:off+len(row)], row)
	}
}

// fillSpan paints pixels [x0, x1) of row y. Bounds must be pre-clipped.
func (cv *Canvas) fillSpan(y, x0, x1 int, c color.RGBA) {
	off := (y*cv.size + x0) * bytesPerPixel
	end := (y*cv.size + x1) * bytesPerPixel
	for i := off; i < end; i += bytesPerPixel {
		cv.pix[i], cv.pix[i+1], cv.pix[i+2] = c.R, c.G, c.B
	}
}

// RGBAt returns the colour of one pixel
func (cv *Canvas) RGBAt(x, y int) color.RGBA {
	i := (y*cv.size + x) * bytesPerPixel
	return color.RGBA{R: cv.pix[i], G: cv.pix[i+1], B: cv.pix[i+2], A: 0xff}
}

// ColorModel implements image.Image
func (cv *Canvas) ColorModel() color.Model {
	return color.RGBAModel
}

// Bounds implements image.Image
func (cv *Canvas) Bounds() image.Rectangle {
	return image.Rect(0, 0, cv.size, cv.size)
}

// At implements image.Image
func (cv *Canvas) At(x, y int) color.Color {
	if !(image.Point{x, y}.In(cv.Bounds())) {
		return color.RGBA{}
	}
	return cv.RGBAt(x, y)
}

// Crop copies the pixels inside r into a new opaque image whose origin
// is (0, 0).
func (cv *Canvas) Crop(r image.Rectangle) *image.RGBA {
	r = r.Intersect(cv.Bounds())
	dst := image.NewRGBA(image.Rect(0, 0, r.Dx(), r.Dy()))
	for y := 0; y < r.Dy(); y++ {
		src := ((r.Min.Y+y)*cv.size + r.Min.X) * bytesPerPixel
		row := dst.Pix[y*dst.Stride : y*dst.Stride+r.Dx()*4]
		for x := 0; x < r.Dx(); x++ {
			row[x*4] = cv.pix[src]
			row[x*4+1] = cv.pix[src+1]
			row[x*4+2] = cv.pix[src+2]
			row[x*4+3] = 0xff
			src += bytesPerPixel
		}
	}
	return dst
}

// Close releases a memory-mapped canvas and removes its scratch file.
// It is a no-op for heap canvases.
func (cv *Canvas) Close() error {
	if cv.mapped == nil {
		return nil
	}
	name := cv.file.Name()
	err := cv.mapped.Unmap()
	cv.mapped = nil
	cv.pix = nil
	if cerr := cv.file.Close(); err == nil {
		err = cerr
	}
	if rerr := os.Remove(name); err == nil {
		err = rerr
	}
	return err
}
