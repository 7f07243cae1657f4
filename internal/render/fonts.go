package render

import (
	"errors"
	"fmt"
	"image"
	"io/fs"
	"os"

	"go.uber.org/zap"
	"golang.org/x/image/font"
	"golang.org/x/image/font/gofont/goregular"
	"golang.org/x/image/font/opentype"
	"golang.org/x/image/font/sfnt"
	"golang.org/x/image/math/fixed"
)

// CSS pixel sizes matching the chart template
const (
	titleFontSize = 28
	labelFontSize = 12
)

// FontSet is an ordered list of fonts; each rune is drawn with the first font
// that has a glyph for it. The embedded Go Regular font is always last.
// Parsed fonts are shared between renders, faces are not.
type FontSet struct {
	fonts []*sfnt.Font
	names []string
	base  *sfnt.Font
}

// baseFontName names the embedded fallback font
const baseFontName = "Go Regular"

// LoadFonts parses the OpenType/TrueType files in paths (the first font of a .ttc
// collection is used). Missing or unreadable files are skipped.
func LoadFonts(paths []string, logger *zap.Logger) *FontSet {
	set := &FontSet{}
	set.baseFont()
	for _, path := range paths {
		data, err := os.ReadFile(path)
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				logger.Debug("Font file not found, skipping", zap.String("path", path))
			} else {
				logger.Warn("Failed to read font file", zap.String("path", path), zap.Error(err))
			}
			continue
		}
		if err := set.Add(path, data); err != nil {
			logger.Warn("Failed to parse font file", zap.String("path", path), zap.Error(err))
			continue
		}
		logger.Info("Loaded export font", zap.String("path", path))
	}

	return set
}

// Add appends a font after the ones already added, still ahead of the Go Regular fallback
func (s *FontSet) Add(name string, data []byte) error {
	coll, err := opentype.ParseCollection(data)
	if err != nil {
		return err
	}
	f, err := coll.Font(0)
	if err != nil {
		return err
	}

	s.fonts = append(s.fonts, f)
	s.names = append(s.names, name)
	return nil
}

// Names lists the fonts in lookup order
func (s *FontSet) Names() []string {
	return append(append([]string(nil), s.names...), baseFontName)
}

// FontFor returns the name of the font that draws r, or "" when no font has a glyph for it
func (s *FontSet) FontFor(r rune) string {
	var buf sfnt.Buffer
	names := s.Names()
	for i, f := range s.lookup() {
		if idx, err := f.GlyphIndex(&buf, r); err == nil && idx != 0 {
			return names[i]
		}
	}
	return ""
}

// NewFace returns a face of size pixels. The face is not safe for concurrent use
// and must be closed.
func (s *FontSet) NewFace(size float64) (font.Face, error) {
	fonts := s.lookup()
	face := &fallbackFace{
		fonts: fonts,
		faces: make([]font.Face, len(fonts)),
		index: make(map[rune]int),
	}
	for i, f := range fonts {
		ff, err := opentype.NewFace(f, &opentype.FaceOptions{Size: size, DPI: 72, Hinting: font.HintingFull})
		if err != nil {
			return nil, fmt.Errorf("font %s: %w", s.Names()[i], err)
		}
		face.faces[i] = ff
	}
	return face, nil
}

func (s *FontSet) lookup() []*sfnt.Font {
	return append(append([]*sfnt.Font(nil), s.fonts...), s.baseFont())
}

func (s *FontSet) baseFont() *sfnt.Font {
	if s.base == nil {
		f, err := opentype.Parse(goregular.TTF)
		if err != nil {
			// embedded font data
			panic(fmt.Sprintf("parse %s: %v", baseFontName, err))
		}
		s.base = f
	}
	return s.base
}

// fallbackFace draws each rune with the first face whose font maps it to a glyph.
// Metrics come from the last (base) face so line placement does not depend on content.
type fallbackFace struct {
	fonts []*sfnt.Font
	faces []font.Face
	index map[rune]int
	buf   sfnt.Buffer
}

func (f *fallbackFace) pick(r rune) font.Face {
	i, ok := f.index[r]
	if !ok {
		i = len(f.faces) - 1
		for j, fnt := range f.fonts {
			if idx, err := fnt.GlyphIndex(&f.buf, r); err == nil && idx != 0 {
				i = j
				break
			}
		}
		f.index[r] = i
	}
	return f.faces[i]
}

func (f *fallbackFace) Close() error {
	var errs []error
	for _, face := range f.faces {
		errs = append(errs, face.Close())
	}
	return errors.Join(errs...)
}

func (f *fallbackFace) Glyph(dot fixed.Point26_6, r rune) (image.Rectangle, image.Image, image.Point, fixed.Int26_6, bool) {
	return f.pick(r).Glyph(dot, r)
}

func (f *fallbackFace) GlyphBounds(r rune) (fixed.Rectangle26_6, fixed.Int26_6, bool) {
	return f.pick(r).GlyphBounds(r)
}

func (f *fallbackFace) GlyphAdvance(r rune) (fixed.Int26_6, bool) {
	return f.pick(r).GlyphAdvance(r)
}

func (f *fallbackFace) Kern(r0, r1 rune) fixed.Int26_6 {
	face := f.pick(r0)
	if face != f.pick(r1) {
		return 0
	}
	return face.Kern(r0, r1)
}

func (f *fallbackFace) Metrics() font.Metrics {
	return f.faces[len(f.faces)-1].Metrics()
}
