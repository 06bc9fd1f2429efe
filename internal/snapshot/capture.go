// Package snapshot implements the browser-facing edge of the pipeline with
// chromedp: capturing the interactive-element inventory the model reasons
// over, and re-executing actions against healed locators.
package snapshot

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/chromedp/cdproto/page"
	"github.com/chromedp/chromedp"
	"go.uber.org/zap"

	"github.com/glaciousm/intent-healer-sub001/api/schemas"
	"github.com/glaciousm/intent-healer-sub001/internal/config"
)

// collectElementsJS runs in the page and returns the interactive-element
// inventory. Elements get their index here; the rest of the pipeline refers
// to them by that index only.
const collectElementsJS = `(() => {
	const selector = 'a, button, input, select, textarea, [role=button], [role=link], [role=tab], [role=menuitem], [onclick], [contenteditable=true]';
	const nodes = Array.from(document.querySelectorAll(selector));
	return nodes.map((el, index) => {
		const rect = el.getBoundingClientRect();
		const style = window.getComputedStyle(el);
		const dataAttrs = {};
		for (const attr of el.attributes) {
			if (attr.name.startsWith('data-')) dataAttrs[attr.name] = attr.value;
		}
		const labels = [];
		if (el.labels) for (const l of el.labels) labels.push(l.innerText.trim());
		const aria = el.getAttribute('aria-label');
		if (aria) labels.push(aria);
		if (el.title) labels.push(el.title);
		if (el.placeholder) labels.push(el.placeholder);
		return {
			index: index,
			tag: el.tagName.toLowerCase(),
			type: el.type || '',
			id: el.id || '',
			name: el.getAttribute('name') || '',
			classes: Array.from(el.classList),
			text: (el.innerText || el.value || '').trim().slice(0, 200),
			visible: rect.width > 0 && rect.height > 0 && style.visibility !== 'hidden' && style.display !== 'none',
			enabled: !el.disabled,
			selected: !!(el.checked || el.selected),
			rect: { x: rect.x, y: rect.y, width: rect.width, height: rect.height },
			labels: labels,
			data_attrs: dataAttrs
		};
	});
})()`

// Provider captures UiSnapshots from a live chromedp session. The session
// context identifies the tab the failed test was driving; the provider
// attaches to it rather than spawning its own browser.
type Provider struct {
	sessionCtx context.Context
	cfg        config.SnapshotConfig
	logger     *zap.Logger
}

// NewProvider attaches a snapshot provider to an existing chromedp context.
func NewProvider(sessionCtx context.Context, cfg config.SnapshotConfig, logger *zap.Logger) (*Provider, error) {
	if sessionCtx == nil {
		return nil, fmt.Errorf("snapshot provider requires a chromedp session context")
	}
	return &Provider{
		sessionCtx: sessionCtx,
		cfg:        cfg,
		logger:     logger.Named("snapshot"),
	}, nil
}

// CaptureSnapshot reads the current page state. The failure context is used
// only for logging; the snapshot always reflects the page as it is now.
func (p *Provider) CaptureSnapshot(ctx context.Context, failure *schemas.FailureContext) (*schemas.UiSnapshot, error) {
	runCtx := p.sessionCtx
	if deadline, ok := ctx.Deadline(); ok {
		var cancel context.CancelFunc
		runCtx, cancel = context.WithDeadline(p.sessionCtx, deadline)
		defer cancel()
	}

	var (
		rawElements json.RawMessage
		url         string
		title       string
		language    string
	)

	tasks := chromedp.Tasks{
		chromedp.Location(&url),
		chromedp.Title(&title),
		chromedp.Evaluate(`document.documentElement.lang || ''`, &language),
		chromedp.Evaluate(collectElementsJS, &rawElements),
	}
	if err := chromedp.Run(runCtx, tasks); err != nil {
		return nil, fmt.Errorf("page state capture failed: %w", err)
	}

	var elements []schemas.ElementSnapshot
	if err := json.Unmarshal(rawElements, &elements); err != nil {
		return nil, fmt.Errorf("decoding element inventory: %w", err)
	}
	if p.cfg.MaxElements > 0 && len(elements) > p.cfg.MaxElements {
		p.logger.Warn("Element inventory truncated",
			zap.Int("elements", len(elements)),
			zap.Int("cap", p.cfg.MaxElements))
		elements = elements[:p.cfg.MaxElements]
	}

	snap := &schemas.UiSnapshot{
		URL:      url,
		Title:    title,
		Language: language,
		Elements: elements,
	}

	if p.cfg.CaptureScreenshot {
		var shot []byte
		if err := chromedp.Run(runCtx, chromedp.ActionFunc(func(ctx context.Context) error {
			var err error
			shot, err = page.CaptureScreenshot().WithFormat(page.CaptureScreenshotFormatPng).Do(ctx)
			return err
		})); err != nil {
			p.logger.Warn("Screenshot capture failed", zap.Error(err))
		} else {
			snap.Screenshot = shot
		}
	}
	if p.cfg.CaptureDOM {
		var dom string
		if err := chromedp.Run(runCtx, chromedp.OuterHTML("html", &dom, chromedp.ByQuery)); err != nil {
			p.logger.Warn("DOM capture failed", zap.Error(err))
		} else {
			snap.DOM = dom
		}
	}

	p.logger.Debug("Snapshot captured",
		zap.String("url", url),
		zap.String("step", failure.StepText),
		zap.Int("elements", len(elements)))
	return snap, nil
}
