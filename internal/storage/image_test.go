package storage

import (
	"bytes"
	"errors"
	"image"
	"image/color"
	"image/png"
	"testing"

	"github.com/disintegration/imaging"
)

func pngBytes(t *testing.T, w, h int) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for x := 0; x < w; x++ {
		img.Set(x, 0, color.RGBA{R: 200, A: 255})
	}
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		t.Fatalf("encode png: %v", err)
	}
	return buf.Bytes()
}

func TestPrepareImageShrinksWideImages(t *testing.T) {
	out, err := PrepareImage(pngBytes(t, 2000, 1000))
	if err != nil {
		t.Fatalf("prepare: %v", err)
	}
	img, err := imaging.Decode(bytes.NewReader(out))
	if err != nil {
		t.Fatalf("decode output: %v", err)
	}
	if got := img.Bounds().Dx(); got != MaxImageWidth {
		t.Fatalf("width = %d, want %d", got, MaxImageWidth)
	}
	if got := img.Bounds().Dy(); got != 800 {
		t.Fatalf("height = %d, want 800", got)
	}
}

func TestPrepareImageKeepsSmallImages(t *testing.T) {
	out, err := PrepareImage(pngBytes(t, 300, 200))
	if err != nil {
		t.Fatalf("prepare: %v", err)
	}
	img, err := imaging.Decode(bytes.NewReader(out))
	if err != nil {
		t.Fatalf("decode output: %v", err)
	}
	if img.Bounds().Dx() != 300 {
		t.Fatalf("width = %d, want 300", img.Bounds().Dx())
	}
}

func TestPrepareImageRejectsGarbage(t *testing.T) {
	if _, err := PrepareImage(nil); !errors.Is(err, ErrEmptyImage) {
		t.Fatalf("err = %v, want %v", err, ErrEmptyImage)
	}
	if _, err := PrepareImage([]byte("definitely not an image")); err == nil {
		t.Fatal("err = nil, want decode error")
	}
}

func TestURLUsesPublicBase(t *testing.T) {
	s := &S3Store{bucket: "b", region: "eu-west-1", publicURL: "https://cdn.example.com"}
	if got := s.URL("listings/car/a b.jpg"); got != "https://cdn.example.com/listings/car/a%20b.jpg" {
		t.Fatalf("url = %q", got)
	}
	s.publicURL = ""
	if got := s.URL("k.jpg"); got != "https://b.s3.eu-west-1.amazonaws.com/k.jpg" {
		t.Fatalf("url = %q", got)
	}
}
