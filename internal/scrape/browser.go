package scrape

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/playwright-community/playwright-go"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/pql-agent/internal/model"
)

const bodyTextScript = `() => {
  const body = document.body;
  if (!body) return "";
  return body.innerText || "";
}`

// BrowserConfig tunes the headless browser renderer.
type BrowserConfig struct {
	Timeout  time.Duration // navigation timeout
	Settle   time.Duration // fixed delay after DOMContentLoaded
	MaxChars int
}

// BrowserRenderer loads pages in headless Chromium via Playwright so that
// client-rendered sites produce real text. The browser is started lazily on
// first use; if the Playwright driver is missing the renderer reports itself
// unavailable on every call.
type BrowserRenderer struct {
	cfg    BrowserConfig
	launch func() (*playwright.Playwright, playwright.Browser, error)

	mu       sync.Mutex
	started  bool
	startErr error
	pw       *playwright.Playwright
	browser  playwright.Browser
}

// NewBrowserRenderer creates a BrowserRenderer. No browser is launched until
// the first Render call.
func NewBrowserRenderer(cfg BrowserConfig) *BrowserRenderer {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Second
	}
	if cfg.MaxChars <= 0 {
		cfg.MaxChars = MaxTextChars
	}
	return &BrowserRenderer{cfg: cfg, launch: launchChromium}
}

func (b *BrowserRenderer) Name() string { return model.RendererPlaywright }

func (b *BrowserRenderer) ensureBrowser() (playwright.Browser, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.started {
		return b.browser, b.startErr
	}
	b.started = true

	pw, browser, err := b.launch()
	if err != nil {
		b.startErr = err
		zap.L().Warn("scrape: browser renderer unavailable, using http fallback only", zap.Error(err))
		return nil, b.startErr
	}

	b.pw = pw
	b.browser = browser
	return browser, nil
}

// launchChromium starts the Playwright driver and a headless Chromium.
func launchChromium() (*playwright.Playwright, playwright.Browser, error) {
	pw, err := playwright.Run(&playwright.RunOptions{SkipInstallBrowsers: true})
	if err != nil {
		return nil, nil, eris.Wrap(err, "playwright: driver is not available; install it with "+
			"`go run github.com/playwright-community/playwright-go/cmd/playwright install chromium`")
	}

	browser, err := pw.Chromium.Launch(playwright.BrowserTypeLaunchOptions{
		Headless: playwright.Bool(true),
	})
	if err != nil {
		_ = pw.Stop()
		return nil, nil, eris.Wrap(err, "playwright: launch chromium")
	}
	return pw, browser, nil
}

// Render navigates to targetURL and summarizes the settled DOM.
func (b *BrowserRenderer) Render(ctx context.Context, targetURL string) (*model.PageSummary, error) {
	if err := ctx.Err(); err != nil {
		return nil, eris.Wrap(err, "playwright: context done")
	}

	browser, err := b.ensureBrowser()
	if err != nil {
		return nil, err
	}

	bctx, err := browser.NewContext(playwright.BrowserNewContextOptions{
		UserAgent:         playwright.String(UserAgent),
		IgnoreHttpsErrors: playwright.Bool(true),
	})
	if err != nil {
		return nil, eris.Wrap(err, "playwright: new context")
	}
	defer func() { _ = bctx.Close() }()

	page, err := bctx.NewPage()
	if err != nil {
		return nil, eris.Wrap(err, "playwright: new page")
	}

	resp, err := page.Goto(targetURL, playwright.PageGotoOptions{
		WaitUntil: playwright.WaitUntilStateDomcontentloaded,
		Timeout:   playwright.Float(float64(b.cfg.Timeout.Milliseconds())),
	})
	if err != nil {
		return nil, eris.Wrap(err, "playwright: goto")
	}
	if b.cfg.Settle > 0 {
		page.WaitForTimeout(float64(b.cfg.Settle.Milliseconds()))
	}

	contentType := ""
	if resp != nil {
		contentType = strings.ToLower(resp.Headers()["content-type"])
	}

	doc, err := page.Content()
	if err != nil {
		return nil, eris.Wrap(err, "playwright: read content")
	}
	title, err := page.Title()
	if err != nil {
		return nil, eris.Wrap(err, "playwright: read title")
	}

	description := ""
	meta := page.Locator("meta[name='description']")
	if n, countErr := meta.Count(); countErr == nil && n > 0 {
		if v, attrErr := meta.First().GetAttribute("content"); attrErr == nil {
			description = CleanText(v)
		}
	}
	if description == "" {
		description = ExtractMetaDescription(doc)
	}

	excerpt := ""
	if v, evalErr := page.Evaluate(bodyTextScript); evalErr == nil {
		if text, ok := v.(string); ok && text != "" {
			excerpt = Truncate(CleanText(text), b.cfg.MaxChars)
		}
	}
	if excerpt == "" {
		excerpt = ExtractVisibleExcerpt(doc, b.cfg.MaxChars)
	}

	return &model.PageSummary{
		URL:         page.URL(),
		OK:          true,
		Title:       CleanText(title),
		Description: description,
		Excerpt:     excerpt,
		ContentType: contentType,
		Renderer:    model.RendererPlaywright,
	}, nil
}

// Close shuts down the browser and the Playwright driver if they were started.
func (b *BrowserRenderer) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.browser != nil {
		_ = b.browser.Close()
		b.browser = nil
	}
	if b.pw != nil {
		err := b.pw.Stop()
		b.pw = nil
		return eris.Wrap(err, "playwright: stop")
	}
	return nil
}
