// Galleria - Self-Hosted Photo and Video Gallery
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/galleria

package pipeline

import (
	"context"
	"encoding/binary"
	"fmt"
	"image"
	_ "image/gif"
	_ "image/png"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/corona10/goimagehash"
	"github.com/disintegration/imaging"
	"github.com/galdor/go-thumbhash"
	"github.com/rwcarlsen/goexif/exif"
	"github.com/rwcarlsen/goexif/tiff"

	// Register the decoders image.Decode needs beyond the standard set.
	_ "golang.org/x/image/bmp"
	_ "golang.org/x/image/tiff"
	_ "golang.org/x/image/webp"

	"github.com/tomtom215/galleria/internal/apperr"
	"github.com/tomtom215/galleria/internal/ffmpeg"
	"github.com/tomtom215/galleria/internal/models"
)

// thumbnailMaxDim bounds the longer edge of the JPEG derivative.
const thumbnailMaxDim = 1280

// thumbhashMaxDim bounds the image handed to the thumbhash encoder; the
// algorithm wants small inputs.
const thumbhashMaxDim = 100

// indexRecord fills in metadata and derivatives for a freshly copied
// record: EXIF, dimensions, orientation fixup, thumbhash, phash (images),
// and the JPEG derivative.
func (p *Pipeline) indexRecord(ctx context.Context, record *models.Record) error {
	imported := p.layout.ImportedPath(record.ID, record.Media().Ext)
	switch record.Type {
	case models.TypeImage:
		return p.indexImage(record, imported)
	case models.TypeVideo:
		return p.indexVideo(ctx, record, imported)
	default:
		return apperr.Newf(apperr.InvalidInput, "cannot index record type %s", record.Type)
	}
}

func (p *Pipeline) indexImage(record *models.Record, imported string) error {
	media := &record.Image.MediaMetadata

	media.Exif = extractExif(imported)

	img, err := decodeOriented(imported, media.Exif)
	if err != nil {
		return err
	}
	bounds := img.Bounds()
	media.Width = bounds.Dx()
	media.Height = bounds.Dy()

	record.Thumbhash = computeThumbhash(img)
	record.Image.Phash = computePhash(img)

	return p.writeThumbnail(record.ID, img)
}

func (p *Pipeline) indexVideo(ctx context.Context, record *models.Record, imported string) error {
	media := &record.Video.MediaMetadata

	info, err := ffmpeg.Probe(ctx, imported)
	if err != nil {
		return err
	}
	record.Video.Duration = info.Duration

	media.Width = info.Width
	media.Height = info.Height
	// Rotated streams display with swapped axes.
	if rot := normalizeRotation(info.Rotation); rot == 90 || rot == 270 {
		media.Width, media.Height = media.Height, media.Width
	}

	media.Exif = models.ExifVec{}
	media.Exif.Set("duration", strconv.FormatFloat(info.Duration, 'f', -1, 64))
	media.Exif.Set("rotation", strconv.Itoa(info.Rotation))

	// The poster frame doubles as the decode source for the thumbhash.
	poster := p.layout.CompressedImagePath(record.ID)
	if err := os.MkdirAll(filepath.Dir(poster), 0o755); err != nil {
		return apperr.Wrap(apperr.IO, "create shard dir", err)
	}
	if err := ffmpeg.ExtractFirstFrame(ctx, imported, poster); err != nil {
		return err
	}
	frame, err := imaging.Open(poster)
	if err != nil {
		return apperr.Wrap(apperr.IO, "decode poster frame", err)
	}
	record.Thumbhash = computeThumbhash(frame)

	if media.Width == 0 || media.Height == 0 {
		bounds := frame.Bounds()
		media.Width = bounds.Dx()
		media.Height = bounds.Dy()
	}
	return nil
}

// decodeOriented decodes an image and applies the EXIF Orientation fixup so
// downstream dimensions and derivatives are display-correct.
func decodeOriented(path string, exifVec models.ExifVec) (image.Image, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, apperr.Temp(apperr.Wrap(apperr.IO, "open for decode", err))
	}
	defer f.Close()

	img, err := imaging.Decode(f)
	if err != nil {
		return nil, apperr.Wrap(apperr.InvalidInput, fmt.Sprintf("decode image %s", path), err)
	}

	orientation := 1
	if v, ok := exifVec.Get("Orientation"); ok {
		if n, err := strconv.Atoi(v); err == nil {
			orientation = n
		}
	}
	switch orientation {
	case 2:
		img = imaging.FlipH(img)
	case 3:
		img = imaging.Rotate180(img)
	case 4:
		img = imaging.FlipV(img)
	case 5:
		img = imaging.Transpose(img)
	case 6:
		img = imaging.Rotate270(img)
	case 7:
		img = imaging.Transverse(img)
	case 8:
		img = imaging.Rotate90(img)
	}
	return img, nil
}

// exifKeyRenames maps goexif field names onto the keys the rest of the
// system expects.
var exifKeyRenames = map[string]string{
	"ISOSpeedRatings": "PhotographicSensitivity",
}

// extractExif reads every EXIF field into an ordered vector. Decode
// failures yield an empty vector: plenty of valid images carry no EXIF.
func extractExif(path string) models.ExifVec {
	f, err := os.Open(path)
	if err != nil {
		return models.ExifVec{}
	}
	defer f.Close()

	x, err := exif.Decode(f)
	if err != nil {
		return models.ExifVec{}
	}

	collector := &exifCollector{}
	_ = x.Walk(collector)
	return collector.vec
}

type exifCollector struct {
	vec models.ExifVec
}

func (c *exifCollector) Walk(name exif.FieldName, tag *tiff.Tag) error {
	key := string(name)
	if renamed, ok := exifKeyRenames[key]; ok {
		key = renamed
	}
	value := strings.Trim(tag.String(), `"`)
	if value != "" {
		c.vec.Set(key, value)
	}
	return nil
}

// computeThumbhash encodes a downscaled copy into the compact perceptual
// thumbnail format.
func computeThumbhash(img image.Image) []byte {
	small := imaging.Fit(img, thumbhashMaxDim, thumbhashMaxDim, imaging.Lanczos)
	return thumbhash.EncodeImage(small)
}

// computePhash returns the 64-bit perception hash as 8 big-endian bytes.
func computePhash(img image.Image) []byte {
	h, err := goimagehash.PerceptionHash(img)
	if err != nil {
		return nil
	}
	out := make([]byte, 8)
	binary.BigEndian.PutUint64(out, h.GetHash())
	return out
}

// writeThumbnail stores the JPEG derivative for an image record.
func (p *Pipeline) writeThumbnail(id string, img image.Image) error {
	dst := p.layout.CompressedImagePath(id)
	if err := os.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
		return apperr.Wrap(apperr.IO, "create shard dir", err)
	}
	bounds := img.Bounds()
	if bounds.Dx() > thumbnailMaxDim || bounds.Dy() > thumbnailMaxDim {
		img = imaging.Fit(img, thumbnailMaxDim, thumbnailMaxDim, imaging.Lanczos)
	}
	if err := imaging.Save(img, dst, imaging.JPEGQuality(80)); err != nil {
		return apperr.Wrap(apperr.IO, "write thumbnail", err)
	}
	return nil
}

func normalizeRotation(rotation int) int {
	rot := rotation % 360
	if rot < 0 {
		rot += 360
	}
	return rot
}
