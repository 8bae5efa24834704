// Package browser wraps the CDP automation engine behind the small
// capability surface the lookups need: open an isolated context,
// navigate, fill, click, wait, screenshot, close.
package browser

import (
	"context"
	"sync"
	"time"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/launcher"
	"github.com/go-rod/rod/lib/proto"

	"consulta-vehicular-go/internal/platform/config"
	"consulta-vehicular-go/internal/platform/errors"
	"consulta-vehicular-go/internal/platform/logging"
)

const (
	viewportWidth  = 1366
	viewportHeight = 860

	navigateResetTimeout = 5 * time.Second
)

// Driver owns the shared browser process. Every lookup and manual
// session gets its own incognito Context from it.
type Driver struct {
	cfg    config.BrowserConfig
	logger *logging.Logger

	mu         sync.Mutex
	browser    *rod.Browser
	controlURL string
}

func NewDriver(cfg config.BrowserConfig, logger *logging.Logger) *Driver {
	return &Driver{cfg: cfg, logger: logger}
}

// Start launches the browser and connects over CDP.
func (d *Driver) Start(ctx context.Context) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.browser != nil {
		return nil
	}

	launch := launcher.New().Headless(d.cfg.Headless)
	if d.cfg.BinPath != "" {
		launch = launch.Bin(d.cfg.BinPath)
	}
	controlURL, err := launch.Launch()
	if err != nil {
		return errors.Wrap(errors.KindInternal, "browser.start", "launch browser", err)
	}

	browser := rod.New().ControlURL(controlURL).Context(ctx)
	if err := browser.Connect(); err != nil {
		return errors.Wrap(errors.KindInternal, "browser.start", "connect to browser", err)
	}

	d.browser = browser
	d.controlURL = controlURL
	d.logger.InfoTag("Browser", "connected (headless=%v)", d.cfg.Headless)
	return nil
}

func (d *Driver) ensureStarted(ctx context.Context) error {
	d.mu.Lock()
	started := d.browser != nil
	d.mu.Unlock()
	if started {
		return nil
	}
	return d.Start(ctx)
}

// Shutdown closes the browser process.
func (d *Driver) Shutdown() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.browser == nil {
		return nil
	}
	err := d.browser.Close()
	d.browser = nil
	d.controlURL = ""
	return err
}

// Open creates a fresh incognito context with the configured viewport
// and user agent. The caller owns it and must Close it on every path.
func (d *Driver) Open(ctx context.Context) (*Context, error) {
	if err := d.ensureStarted(ctx); err != nil {
		return nil, err
	}

	d.mu.Lock()
	browser := d.browser
	d.mu.Unlock()
	if browser == nil {
		return nil, errors.New(errors.KindInternal, "browser.open", "browser not connected")
	}

	incognito, err := browser.Incognito()
	if err != nil {
		return nil, errors.Wrap(errors.KindInternal, "browser.open", "incognito context", err)
	}

	page, err := incognito.Page(proto.TargetCreateTarget{URL: "about:blank"})
	if err != nil {
		return nil, errors.Wrap(errors.KindInternal, "browser.open", "create page", err)
	}

	if err := (proto.EmulationSetDeviceMetricsOverride{
		Width:             viewportWidth,
		Height:            viewportHeight,
		DeviceScaleFactor: 1.0,
		Mobile:            false,
	}).Call(page); err != nil {
		d.logger.WarnTag("Browser", "set viewport: %v", err)
	}

	if d.cfg.UserAgent != "" {
		if err := (proto.NetworkSetUserAgentOverride{
			UserAgent: d.cfg.UserAgent,
		}).Call(page); err != nil {
			d.logger.WarnTag("Browser", "set user agent: %v", err)
		}
	}

	return &Context{page: page, ua: d.cfg.UserAgent}, nil
}

// Context is one isolated browsing context, exclusively owned by the
// task or session that opened it.
type Context struct {
	page      *rod.Page
	ua        string
	closeOnce sync.Once
}

// Page exposes the underlying page for flows that need raw CDP access.
func (c *Context) Page() *rod.Page {
	return c.page
}

func (c *Context) UserAgent() string {
	return c.ua
}

// InstallHook registers a script evaluated on every new document before
// any page script runs.
func (c *Context) InstallHook(js string) error {
	_, err := proto.PageAddScriptToEvaluateOnNewDocument{Source: js}.Call(c.page)
	if err != nil {
		return errors.Wrap(errors.KindInternal, "browser.hook", "install document hook", err)
	}
	return nil
}

// Navigate loads a URL and waits for the load event.
func (c *Context) Navigate(ctx context.Context, url string, timeout time.Duration) error {
	page := c.page.Context(ctx).Timeout(timeout)
	if err := page.Navigate(url); err != nil {
		return errors.Wrap(errors.KindUpstream, "browser.navigate", "navigate to "+url, err)
	}
	if err := page.WaitLoad(); err != nil {
		return errors.Wrap(errors.KindUpstream, "browser.navigate", "wait for load", err)
	}
	return nil
}

// WaitVisible waits for a selector to exist and become visible.
func (c *Context) WaitVisible(ctx context.Context, selector string, timeout time.Duration) (*rod.Element, error) {
	el, err := c.page.Context(ctx).Timeout(timeout).Element(selector)
	if err != nil {
		return nil, errors.Wrap(errors.KindUpstream, "browser.wait", "element "+selector, err)
	}
	if err := el.WaitVisible(); err != nil {
		return nil, errors.Wrap(errors.KindUpstream, "browser.wait", "visibility of "+selector, err)
	}
	return el, nil
}

// Fill types text into the element matching the selector.
func (c *Context) Fill(ctx context.Context, selector, text string) error {
	el, err := c.page.Context(ctx).Element(selector)
	if err != nil {
		return errors.Wrap(errors.KindUpstream, "browser.fill", "element "+selector, err)
	}
	if err := el.SelectAllText(); err == nil {
		_ = el.Input("")
	}
	if err := el.Input(text); err != nil {
		return errors.Wrap(errors.KindUpstream, "browser.fill", "input into "+selector, err)
	}
	return nil
}

// Click clicks the element matching the selector.
func (c *Context) Click(ctx context.Context, selector string) error {
	el, err := c.page.Context(ctx).Element(selector)
	if err != nil {
		return errors.Wrap(errors.KindUpstream, "browser.click", "element "+selector, err)
	}
	if err := el.Click(proto.InputMouseButtonLeft, 1); err != nil {
		return errors.Wrap(errors.KindUpstream, "browser.click", "click "+selector, err)
	}
	return nil
}

// Text returns the inner text of the first element matching the
// selector, or empty when it does not exist.
func (c *Context) Text(ctx context.Context, selector string) string {
	el, err := c.page.Context(ctx).Timeout(2 * time.Second).Element(selector)
	if err != nil {
		return ""
	}
	text, err := el.Text()
	if err != nil {
		return ""
	}
	return text
}

// Attribute reads an attribute from the first matching element.
func (c *Context) Attribute(ctx context.Context, selector, name string) (string, error) {
	el, err := c.page.Context(ctx).Element(selector)
	if err != nil {
		return "", errors.Wrap(errors.KindUpstream, "browser.attr", "element "+selector, err)
	}
	val, err := el.Attribute(name)
	if err != nil {
		return "", errors.Wrap(errors.KindUpstream, "browser.attr", "attribute "+name, err)
	}
	if val == nil {
		return "", nil
	}
	return *val, nil
}

// ScreenshotElement captures a PNG of one element.
func (c *Context) ScreenshotElement(ctx context.Context, selector string, timeout time.Duration) ([]byte, error) {
	el, err := c.WaitVisible(ctx, selector, timeout)
	if err != nil {
		return nil, err
	}
	data, err := el.Screenshot(proto.PageCaptureScreenshotFormatPng, 0)
	if err != nil {
		return nil, errors.Wrap(errors.KindUpstream, "browser.screenshot", "capture "+selector, err)
	}
	return data, nil
}

// Eval runs JavaScript in the page and returns the remote result.
func (c *Context) Eval(ctx context.Context, js string, args ...any) (*proto.RuntimeRemoteObject, error) {
	res, err := c.page.Context(ctx).Evaluate(&rod.EvalOptions{
		JS:           js,
		JSArgs:       args,
		ByValue:      true,
		AwaitPromise: true,
	})
	if err != nil {
		return nil, errors.Wrap(errors.KindUpstream, "browser.eval", "evaluate script", err)
	}
	return res, nil
}

// HTML returns the full page markup.
func (c *Context) HTML(ctx context.Context) (string, error) {
	html, err := c.page.Context(ctx).HTML()
	if err != nil {
		return "", errors.Wrap(errors.KindUpstream, "browser.html", "read page html", err)
	}
	return html, nil
}

// URL returns the page's current location.
func (c *Context) URL() string {
	info, err := c.page.Info()
	if err != nil {
		return ""
	}
	return info.URL
}

// Close releases the context. Safe to call more than once.
func (c *Context) Close() {
	c.closeOnce.Do(func() {
		_ = c.page.Close()
	})
}
