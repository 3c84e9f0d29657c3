package transform

import (
	"bytes"
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"image/gif"
	"image/png"
	"path"
	"strings"
	"sync/atomic"

	"github.com/tdewolff/minify/v2"
	"github.com/tdewolff/minify/v2/svg"

	"github.com/conneroisu/siteforge/internal/build"
)

const svgMediaType = "image/svg+xml"

// ImagesOptions configures the image optimizers.
type ImagesOptions struct {
	// Interlaced is recorded in the cache key. The Go encoders cannot write
	// interlaced GIF or progressive JPEG, so it does not change the output.
	Interlaced bool
}

// ImageStats counts optimizer work.
type ImageStats struct {
	// Processed is the number of files actually optimized.
	Processed int64
	// CacheHits is the number of files served from the cache.
	CacheHits int64
}

// Images losslessly shrinks PNG, GIF, JPEG and SVG files. Results are
// cached by content so unchanged images are never reprocessed.
type Images struct {
	opts      ImagesOptions
	cache     *build.OutputCache
	m         *minify.M
	processed atomic.Int64
	hits      atomic.Int64
}

// NewImages creates the image transformer. cache may be nil to disable
// caching.
func NewImages(opts ImagesOptions, cache *build.OutputCache) *Images {
	m := minify.New()
	m.AddFunc(svgMediaType, svg.Minify)
	return &Images{opts: opts, cache: cache, m: m}
}

func (im *Images) Name() string { return "images" }

func (im *Images) Accept(p string) bool {
	switch strings.ToLower(path.Ext(p)) {
	case ".png", ".gif", ".jpg", ".jpeg", ".svg":
		return true
	}
	return false
}

func (im *Images) OutputPath(rel string) string { return rel }

// Stats returns the optimizer counters.
func (im *Images) Stats() ImageStats {
	return ImageStats{Processed: im.processed.Load(), CacheHits: im.hits.Load()}
}

// CacheHits returns the number of files served from the cache so far.
func (im *Images) CacheHits() int64 { return im.hits.Load() }

func (im *Images) settings(ext string) string {
	return fmt.Sprintf("images/v1 ext=%s interlaced=%t", ext, im.opts.Interlaced)
}

func (im *Images) Transform(_ context.Context, f File) ([]byte, error) {
	ext := strings.ToLower(path.Ext(f.Path))
	key := build.Key(f.Content, im.settings(ext))

	if im.cache != nil {
		cached, ok, err := im.cache.Get(key)
		if err != nil {
			return nil, err
		}
		if ok {
			im.hits.Add(1)
			return cached, nil
		}
	}

	out, err := im.optimize(ext, f.Content)
	if err != nil {
		return nil, err
	}
	im.processed.Add(1)
	if len(out) >= len(f.Content) {
		out = f.Content
	}

	if im.cache != nil {
		if err := im.cache.Put(key, out); err != nil {
			return nil, err
		}
	}
	return out, nil
}

func (im *Images) optimize(ext string, data []byte) ([]byte, error) {
	switch ext {
	case ".png":
		return optimizePNG(data)
	case ".gif":
		return optimizeGIF(data)
	case ".jpg", ".jpeg":
		return stripJPEG(data)
	case ".svg":
		return im.m.Bytes(svgMediaType, data)
	}
	return data, nil
}

func optimizePNG(data []byte) ([]byte, error) {
	img, err := png.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, err
	}
	var out bytes.Buffer
	enc := png.Encoder{CompressionLevel: png.BestCompression}
	if err := enc.Encode(&out, img); err != nil {
		return nil, err
	}
	return out.Bytes(), nil
}

func optimizeGIF(data []byte) ([]byte, error) {
	g, err := gif.DecodeAll(bytes.NewReader(data))
	if err != nil {
		return nil, err
	}
	var out bytes.Buffer
	if err := gif.EncodeAll(&out, g); err != nil {
		return nil, err
	}
	return out.Bytes(), nil
}

// JPEG markers
const (
	markerSOI  = 0xD8
	markerSOS  = 0xDA
	markerAPP0 = 0xE0
	markerAPP2 = 0xE2
	markerAP14 = 0xEE
	markerAP15 = 0xEF
	markerCOM  = 0xFE
)

var errBadJPEG = errors.New("malformed JPEG")

// stripJPEG drops comment and metadata segments (EXIF, XMP, vendor APPn)
// without touching the entropy coded data. JFIF (APP0), ICC profiles (APP2)
// and the Adobe segment (APP14) are kept because they affect decoding.
func stripJPEG(data []byte) ([]byte, error) {
	if len(data) < 4 || data[0] != 0xFF || data[1] != markerSOI {
		return nil, errBadJPEG
	}

	out := make([]byte, 0, len(data))
	out = append(out, data[:2]...)
	i := 2
	for i+4 <= len(data) {
		if data[i] != 0xFF {
			return nil, errBadJPEG
		}
		marker := data[i+1]
		if marker == 0xFF {
			// fill byte
			i++
			continue
		}
		if marker == markerSOS {
			return append(out, data[i:]...), nil
		}

		length := int(binary.BigEndian.Uint16(data[i+2 : i+4]))
		end := i + 2 + length
		if length < 2 || end > len(data) {
			return nil, errBadJPEG
		}

		strip := marker == markerCOM ||
			(marker > markerAPP0 && marker <= markerAP15 && marker != markerAPP2 && marker != markerAP14)
		if !strip {
			out = append(out, data[i:end]...)
		}
		i = end
	}
	return nil, errBadJPEG
}
