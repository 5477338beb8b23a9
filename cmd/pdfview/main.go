// Command pdfview exercises the viewer stack from the shell: document
// info, single-page rendering and full-document search.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"image"
	"image/png"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/GaoZ1en/arxiv-manager-sub001/config"
	_ "github.com/GaoZ1en/arxiv-manager-sub001/doc/mupdf" // default backend
	"github.com/GaoZ1en/arxiv-manager-sub001/observability"
	_ "github.com/GaoZ1en/arxiv-manager-sub001/ocr/tesseract" // default OCR engine
	"github.com/GaoZ1en/arxiv-manager-sub001/render"
	"github.com/GaoZ1en/arxiv-manager-sub001/search"
	"github.com/GaoZ1en/arxiv-manager-sub001/viewer"
)

type options struct {
	command    string
	pdfPath    string
	configPath string
	verbose    bool

	page  int
	zoom  float64
	out   string
	thumb int

	query         string
	caseSensitive bool
	wholeWord     bool
	asJSON        bool
}

func main() {
	opts, err := parseFlags(os.Args[1:])
	if err != nil {
		if err != flag.ErrHelp {
			fmt.Fprintf(os.Stderr, "pdfview: %v\n", err)
		}
		os.Exit(2)
	}
	if err := run(opts); err != nil {
		fmt.Fprintf(os.Stderr, "pdfview: %v\n", err)
		os.Exit(1)
	}
}

func parseFlags(args []string) (options, error) {
	var opts options

	global := flag.NewFlagSet("pdfview", flag.ContinueOnError)
	configPath := global.String("config", "", "YAML configuration file")
	verbose := global.Bool("v", false, "Force debug logging")
	global.Usage = func() {
		out := global.Output()
		fmt.Fprintf(out, "Usage: pdfview [flags] <command> [command flags] <pdf> [args]\n\n")
		fmt.Fprintf(out, "Commands:\n")
		fmt.Fprintf(out, "  info    <pdf>          dump document metadata and page sizes\n")
		fmt.Fprintf(out, "  render  <pdf>          render one page to PNG or SVG\n")
		fmt.Fprintf(out, "  search  <pdf> <query>  find matches across all pages\n\n")
		global.PrintDefaults()
	}
	if err := global.Parse(args); err != nil {
		return options{}, err
	}
	opts.configPath = *configPath
	opts.verbose = *verbose

	rest := global.Args()
	if len(rest) < 1 {
		global.Usage()
		return options{}, fmt.Errorf("missing command")
	}
	opts.command = rest[0]

	switch opts.command {
	case "info":
		fs := flag.NewFlagSet("info", flag.ContinueOnError)
		if err := fs.Parse(rest[1:]); err != nil {
			return options{}, err
		}
		if fs.NArg() != 1 {
			return options{}, fmt.Errorf("info: want exactly one pdf path")
		}
		opts.pdfPath = fs.Arg(0)

	case "render":
		fs := flag.NewFlagSet("render", flag.ContinueOnError)
		page := fs.Int("page", 1, "Page to render, 1-based")
		zoom := fs.Float64("zoom", 1.0, "Zoom factor")
		out := fs.String("o", "", "Output file (defaults to page-N.png or .svg)")
		thumb := fs.Int("thumb", 0, "Also write a thumbnail with this max edge in pixels")
		if err := fs.Parse(rest[1:]); err != nil {
			return options{}, err
		}
		if fs.NArg() != 1 {
			return options{}, fmt.Errorf("render: want exactly one pdf path")
		}
		opts.pdfPath = fs.Arg(0)
		opts.page = *page
		opts.zoom = *zoom
		opts.out = *out
		opts.thumb = *thumb

	case "search":
		fs := flag.NewFlagSet("search", flag.ContinueOnError)
		caseSensitive := fs.Bool("case", false, "Case sensitive matching")
		wholeWord := fs.Bool("word", false, "Whole word matching")
		asJSON := fs.Bool("json", false, "Emit matches as JSON")
		if err := fs.Parse(rest[1:]); err != nil {
			return options{}, err
		}
		if fs.NArg() != 2 {
			return options{}, fmt.Errorf("search: want <pdf> <query>")
		}
		opts.pdfPath = fs.Arg(0)
		opts.query = fs.Arg(1)
		opts.caseSensitive = *caseSensitive
		opts.wholeWord = *wholeWord
		opts.asJSON = *asJSON

	default:
		return options{}, fmt.Errorf("unknown command %q", opts.command)
	}
	return opts, nil
}

func run(opts options) error {
	cfg := config.Default()
	if opts.configPath != "" {
		var err error
		cfg, err = config.Load(opts.configPath)
		if err != nil {
			return err
		}
	}

	level := cfg.Logging.SlogLevel()
	if opts.verbose {
		level = slog.LevelDebug
	}
	ho := &slog.HandlerOptions{Level: level}
	var handler slog.Handler = slog.NewTextHandler(os.Stderr, ho)
	if cfg.Logging.Format == "json" {
		handler = slog.NewJSONHandler(os.Stderr, ho)
	}
	log := observability.NewSlogLogger(slog.New(handler))

	v := viewer.New(cfg, viewer.WithLogger(log))
	ctx := context.Background()
	if err := v.Open(ctx, opts.pdfPath); err != nil {
		return err
	}
	defer v.Close()

	switch opts.command {
	case "info":
		return runInfo(v)
	case "render":
		return runRender(ctx, v, opts)
	case "search":
		return runSearch(ctx, v, opts)
	}
	return nil
}

type pageSize struct {
	Page   int     `json:"page"`
	Width  float64 `json:"width"`
	Height float64 `json:"height"`
}

type docInfo struct {
	Path     string            `json:"path"`
	Backend  string            `json:"backend"`
	Pages    int               `json:"pages"`
	Metadata map[string]string `json:"metadata,omitempty"`
	Sizes    []pageSize        `json:"page_sizes"`
}

func runInfo(v *viewer.Viewer) error {
	h := v.Document()
	info := docInfo{
		Path:     h.Path(),
		Backend:  h.BackendName(),
		Pages:    h.PageCount(),
		Metadata: h.Metadata(),
	}
	for page := 1; page <= h.PageCount(); page++ {
		s, err := h.PageBounds(page)
		if err != nil {
			return fmt.Errorf("bounds of page %d: %w", page, err)
		}
		info.Sizes = append(info.Sizes, pageSize{Page: page, Width: s.W, Height: s.H})
	}
	return emit(info)
}

func runRender(ctx context.Context, v *viewer.Viewer, opts options) error {
	if _, err := v.Navigate(ctx, opts.page); err != nil {
		return err
	}
	rp, err := v.SetZoom(ctx, opts.zoom)
	if err != nil {
		return err
	}

	out := opts.out
	if out == "" {
		ext := "png"
		if rp.Format == render.FormatVector {
			ext = "svg"
		}
		out = fmt.Sprintf("page-%d.%s", opts.page, ext)
	}
	if err := writePage(out, rp); err != nil {
		return err
	}
	fmt.Printf("%s: page %d at %.2fx, %dx%d\n", out, rp.Page, rp.Zoom, rp.Width, rp.Height)

	if opts.thumb > 0 {
		img, err := render.Thumbnail(rp, opts.thumb)
		if err != nil {
			return fmt.Errorf("thumbnail: %w", err)
		}
		tp := strings.TrimSuffix(out, filepath.Ext(out)) + ".thumb.png"
		if err := writePNG(tp, img); err != nil {
			return err
		}
		fmt.Printf("%s: thumbnail %dx%d\n", tp, img.Bounds().Dx(), img.Bounds().Dy())
	}
	return nil
}

func runSearch(ctx context.Context, v *viewer.Viewer, opts options) error {
	ses, err := v.SearchWith(ctx, opts.query, search.Options{
		CaseSensitive: opts.caseSensitive,
		WholeWord:     opts.wholeWord,
	})
	if err != nil {
		return err
	}

	if opts.asJSON {
		type matchRow struct {
			Page    int    `json:"page"`
			Offset  int    `json:"offset"`
			Length  int    `json:"length"`
			Snippet string `json:"snippet"`
		}
		rows := make([]matchRow, 0, ses.Len())
		for _, m := range ses.Matches() {
			rows = append(rows, matchRow{Page: m.Page, Offset: m.Offset, Length: m.Length, Snippet: m.Snippet})
		}
		return emit(rows)
	}

	for _, m := range ses.Matches() {
		fmt.Printf("page %4d  %s\n", m.Page, m.Snippet)
	}
	if skipped := ses.Skipped(); len(skipped) > 0 {
		fmt.Fprintf(os.Stderr, "pdfview: skipped unreadable pages %v\n", skipped)
	}
	fmt.Printf("%d matches for %q\n", ses.Len(), ses.Query())
	return nil
}

func writePage(path string, rp *render.RenderedPage) error {
	if rp.Format == render.FormatVector {
		if err := os.WriteFile(path, rp.Vector, 0o644); err != nil {
			return fmt.Errorf("write %s: %w", path, err)
		}
		return nil
	}
	return writePNG(path, rp.Raster)
}

func writePNG(path string, img image.Image) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create %s: %w", path, err)
	}
	if err := png.Encode(f, img); err != nil {
		f.Close()
		return fmt.Errorf("encode %s: %w", path, err)
	}
	return f.Close()
}

func emit(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
