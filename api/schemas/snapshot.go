package schemas

// Rect is an element's bounding box in CSS pixels.
type Rect struct {
	X      float64 `json:"x"`
	Y      float64 `json:"y"`
	Width  float64 `json:"width"`
	Height float64 `json:"height"`
}

// ElementSnapshot describes one interactive element on the page. The model
// only ever refers to elements by their Index into UiSnapshot.Elements; it
// never emits locator strings directly, which constrains the space of
// possible outputs to elements that actually exist.
type ElementSnapshot struct {
	Index     int               `json:"index"`
	Tag       string            `json:"tag"`
	Type      string            `json:"type,omitempty"`
	ID        string            `json:"id,omitempty"`
	Name      string            `json:"name,omitempty"`
	Classes   []string          `json:"classes,omitempty"`
	Text      string            `json:"text,omitempty"`
	Visible   bool              `json:"visible"`
	Enabled   bool              `json:"enabled"`
	Selected  bool              `json:"selected"`
	Rect      Rect              `json:"rect"`
	Labels    []string          `json:"labels,omitempty"`
	DataAttrs map[string]string `json:"data_attrs,omitempty"`
}

// UiSnapshot captures the current page state for candidate evaluation.
type UiSnapshot struct {
	URL        string            `json:"url"`
	Title      string            `json:"title"`
	Language   string            `json:"language,omitempty"`
	Elements   []ElementSnapshot `json:"elements"`
	Screenshot []byte            `json:"-"`
	DOM        string            `json:"-"`
}

// Element returns the element at idx, or nil when idx is out of range.
func (s *UiSnapshot) Element(idx int) *ElementSnapshot {
	if s == nil || idx < 0 || idx >= len(s.Elements) {
		return nil
	}
	return &s.Elements[idx]
}
