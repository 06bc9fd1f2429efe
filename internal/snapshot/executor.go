// internal/snapshot/executor.go
package snapshot

import (
	"context"
	"fmt"
	"strings"

	"github.com/chromedp/chromedp"
	"go.uber.org/zap"

	"github.com/glaciousm/intent-healer-sub001/api/schemas"
)

// Executor performs healed actions against the same chromedp session the
// snapshots come from.
type Executor struct {
	sessionCtx context.Context
	logger     *zap.Logger
}

// NewExecutor attaches an executor to an existing chromedp context.
func NewExecutor(sessionCtx context.Context, logger *zap.Logger) (*Executor, error) {
	if sessionCtx == nil {
		return nil, fmt.Errorf("executor requires a chromedp session context")
	}
	return &Executor{
		sessionCtx: sessionCtx,
		logger:     logger.Named("executor"),
	}, nil
}

// Execute re-locates the element with the healed locator and performs the
// action. A nil return means the action completed at the browser level;
// whether it achieved the intended outcome is the caller's problem.
func (e *Executor) Execute(ctx context.Context, locator schemas.LocatorInfo, action schemas.ActionType, value string) error {
	sel, by, err := toSelector(locator)
	if err != nil {
		return err
	}

	runCtx := e.sessionCtx
	if deadline, ok := ctx.Deadline(); ok {
		var cancel context.CancelFunc
		runCtx, cancel = context.WithDeadline(e.sessionCtx, deadline)
		defer cancel()
	}

	e.logger.Debug("Executing healed action",
		zap.String("action", string(action)),
		zap.String("selector", sel))

	var task chromedp.Action
	switch action {
	case schemas.ActionClick, schemas.ActionSubmit:
		task = chromedp.Click(sel, by)
	case schemas.ActionSendKeys:
		task = chromedp.SendKeys(sel, value, by)
	case schemas.ActionSelect:
		task = chromedp.SetValue(sel, value, by)
	case schemas.ActionClear:
		task = chromedp.Clear(sel, by)
	case schemas.ActionHover:
		task = chromedp.Tasks{
			chromedp.ScrollIntoView(sel, by),
			chromedp.Evaluate(hoverJS(sel), nil),
		}
	case schemas.ActionNavigate:
		task = chromedp.Navigate(value)
	default:
		return fmt.Errorf("unsupported action type: %s", action)
	}

	if err := chromedp.Run(runCtx, task); err != nil {
		return fmt.Errorf("action %s on %s failed: %w", action, locator, err)
	}
	return nil
}

// toSelector converts a locator into a chromedp selector and query option.
func toSelector(locator schemas.LocatorInfo) (string, chromedp.QueryOption, error) {
	v := locator.Value
	switch locator.Strategy {
	case schemas.StrategyID:
		return "#" + v, chromedp.ByQuery, nil
	case schemas.StrategyName:
		return fmt.Sprintf("[name=%q]", v), chromedp.ByQuery, nil
	case schemas.StrategyClassName:
		return "." + v, chromedp.ByQuery, nil
	case schemas.StrategyCSS:
		return v, chromedp.ByQuery, nil
	case schemas.StrategyXPath:
		return v, chromedp.BySearch, nil
	case schemas.StrategyLinkText:
		return fmt.Sprintf(`//a[normalize-space(text())=%s]`, xpathLiteral(v)), chromedp.BySearch, nil
	case schemas.StrategyPartialLinkText:
		return fmt.Sprintf(`//a[contains(normalize-space(text()), %s)]`, xpathLiteral(v)), chromedp.BySearch, nil
	case schemas.StrategyTagName:
		return v, chromedp.ByQuery, nil
	default:
		return "", nil, fmt.Errorf("unknown locator strategy %q", locator.Strategy)
	}
}

// xpathLiteral quotes a string for embedding in an XPath expression.
func xpathLiteral(s string) string {
	if !strings.Contains(s, `'`) {
		return "'" + s + "'"
	}
	if !strings.Contains(s, `"`) {
		return `"` + s + `"`
	}
	parts := strings.Split(s, `'`)
	return "concat('" + strings.Join(parts, `', "'", '`) + "')"
}

func hoverJS(sel string) string {
	return fmt.Sprintf(`(() => {
	const el = document.querySelector(%q);
	if (!el) throw new Error('hover target not found');
	el.dispatchEvent(new MouseEvent('mouseover', { bubbles: true }));
	el.dispatchEvent(new MouseEvent('mouseenter', { bubbles: true }));
})()`, sel)
}
