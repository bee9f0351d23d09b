package transform

import (
	"context"
	"errors"
	"fmt"
	"io"
	"path"
	"strings"
	"time"

	"github.com/klauspost/compress/flate"
	"github.com/klauspost/compress/zip"
)

// KindCompression selects the zip archiver. Every other kind is a conversion.
const KindCompression = "Compression"

// ErrKindRequired is returned when no conversion type was supplied.
var ErrKindRequired = errors.New("conversion type is required")

var extensions = map[string]string{
	"PDF to Word":  ".docx",
	"PDF to Excel": ".xlsx",
	"PDF to PPT":   ".pptx",
	"PDF to JPG":   ".jpg",
	"PDF to PNG":   ".png",
	"PDF to TXT":   ".txt",
	"PDF to HTML":  ".html",
	"Word to PDF":  ".pdf",
	"Excel to PDF": ".pdf",
	"PPT to PDF":   ".pdf",
	"JPG to PDF":   ".pdf",
	"PNG to PDF":   ".pdf",
	"TXT to PDF":   ".pdf",
	"HTML to PDF":  ".pdf",
}

// OutputExtension maps a conversion kind to the extension of its result.
func OutputExtension(kind string) string {
	if ext, ok := extensions[kind]; ok {
		return ext
	}
	return ".out"
}

// Output is a transformed artifact. Size is -1 when not known up front.
type Output struct {
	Body        io.ReadCloser
	DisplayName string
	Size        int64
}

// Transformer turns an upload into the artifact that gets stored.
type Transformer struct {
	nowFunc func() time.Time
	level   int
}

// New returns a Transformer compressing at the given flate level.
// Zero or an out of range level selects best compression.
func New(level int) *Transformer {
	if level == 0 || level < flate.HuffmanOnly || level > flate.BestCompression {
		level = flate.BestCompression
	}
	return &Transformer{nowFunc: time.Now, level: level}
}

// Transform produces the output for kind. The caller must close Output.Body.
func (t *Transformer) Transform(ctx context.Context, kind, name string, src io.Reader, size int64) (Output, error) {
	kind = strings.TrimSpace(kind)
	if kind == "" {
		return Output{}, ErrKindRequired
	}
	name = baseName(name)

	if kind == KindCompression {
		return Output{
			Body:        t.compress(ctx, name, src),
			DisplayName: name + "_compressed.zip",
			Size:        -1,
		}, nil
	}

	// Conversion engines are not bundled; the bytes pass through unchanged.
	return Output{
		Body:        io.NopCloser(src),
		DisplayName: fmt.Sprintf("converted_%d%s", t.nowFunc().UnixMilli(), OutputExtension(kind)),
		Size:        size,
	}, nil
}

func (t *Transformer) compress(ctx context.Context, name string, src io.Reader) io.ReadCloser {
	pr, pw := io.Pipe()
	go func() {
		pw.CloseWithError(t.writeArchive(ctx, pw, name, src))
	}()
	return pr
}

func (t *Transformer) writeArchive(ctx context.Context, w io.Writer, name string, src io.Reader) error {
	zw := zip.NewWriter(w)
	zw.RegisterCompressor(zip.Deflate, func(out io.Writer) (io.WriteCloser, error) {
		return flate.NewWriter(out, t.level)
	})

	entry, err := zw.CreateHeader(&zip.FileHeader{
		Name:     name,
		Method:   zip.Deflate,
		Modified: t.nowFunc(),
	})
	if err != nil {
		return fmt.Errorf("create zip entry: %w", err)
	}
	if _, err := io.Copy(entry, contextReader{ctx: ctx, r: src}); err != nil {
		return fmt.Errorf("compress %s: %w", name, err)
	}
	if err := zw.Close(); err != nil {
		return fmt.Errorf("finish zip: %w", err)
	}
	return nil
}

func baseName(name string) string {
	name = strings.ReplaceAll(strings.TrimSpace(name), "\\", "/")
	name = path.Base(name)
	if name == "" || name == "." || name == "/" || name == ".." {
		return "file"
	}
	return name
}

type contextReader struct {
	ctx context.Context
	r   io.Reader
}

func (c contextReader) Read(p []byte) (int, error) {
	if err := c.ctx.Err(); err != nil {
		return 0, err
	}
	return c.r.Read(p)
}
