package renderer

import (
	"bytes"
	"context"
	"fmt"
	"image"
	"image/png"

	"github.com/chromedp/cdproto/page"
	"github.com/chromedp/chromedp"
	"github.com/chromedp/chromedp/kb"
)

// Surface is the live slide deck under frame capture. The renderer owns
// exclusive access to it for the duration of a run; slide and animation
// state advance only through SendKey.
type Surface interface {
	Open(ctx context.Context, html string, width, height int) error
	Screenshot(ctx context.Context) (image.Image, error)
	SendKey(ctx context.Context, key string) error
	Close() error
}

// Input keys the slide decks are authored against.
const (
	KeyNextPage = "ArrowRight"
	KeyPrevPage = "ArrowLeft"
	KeyStep     = "Enter"
)

// ChromeSurface drives the deck in a headless Chrome tab.
type ChromeSurface struct {
	allocCancel context.CancelFunc
	tabCancel   context.CancelFunc
	tabCtx      context.Context
}

func NewChromeSurface() *ChromeSurface {
	return &ChromeSurface{}
}

func (s *ChromeSurface) Open(ctx context.Context, html string, width, height int) error {
	opts := append(chromedp.DefaultExecAllocatorOptions[:],
		chromedp.Flag("headless", true),
		chromedp.Flag("hide-scrollbars", true),
		chromedp.WindowSize(width, height),
	)
	allocCtx, allocCancel := chromedp.NewExecAllocator(ctx, opts...)
	tabCtx, tabCancel := chromedp.NewContext(allocCtx)
	s.allocCancel = allocCancel
	s.tabCancel = tabCancel
	s.tabCtx = tabCtx

	err := chromedp.Run(tabCtx,
		chromedp.EmulateViewport(int64(width), int64(height)),
		chromedp.Navigate("about:blank"),
		chromedp.ActionFunc(func(ctx context.Context) error {
			tree, err := page.GetFrameTree().Do(ctx)
			if err != nil {
				return err
			}
			return page.SetDocumentContent(tree.Frame.ID, html).Do(ctx)
		}),
	)
	if err != nil {
		s.Close()
		return fmt.Errorf("open slide surface: %w", err)
	}
	return nil
}

func (s *ChromeSurface) Screenshot(ctx context.Context) (image.Image, error) {
	var buf []byte
	if err := chromedp.Run(s.tabCtx, chromedp.CaptureScreenshot(&buf)); err != nil {
		return nil, fmt.Errorf("capture screenshot: %w", err)
	}
	img, err := png.Decode(bytes.NewReader(buf))
	if err != nil {
		return nil, fmt.Errorf("decode screenshot: %w", err)
	}
	return img, nil
}

func (s *ChromeSurface) SendKey(ctx context.Context, key string) error {
	var seq string
	switch key {
	case KeyNextPage:
		seq = kb.ArrowRight
	case KeyPrevPage:
		seq = kb.ArrowLeft
	case KeyStep:
		seq = kb.Enter
	default:
		return fmt.Errorf("unsupported key %q", key)
	}
	if err := chromedp.Run(s.tabCtx, chromedp.KeyEvent(seq)); err != nil {
		return fmt.Errorf("send key %s: %w", key, err)
	}
	return nil
}

func (s *ChromeSurface) Close() error {
	if s.tabCancel != nil {
		s.tabCancel()
	}
	if s.allocCancel != nil {
		s.allocCancel()
	}
	return nil
}
