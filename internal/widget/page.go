package widget

import (
	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"

	"github.com/beekhof/calendar-widget/internal/render"
)

// LoadingText is the placeholder shown until the first load completes.
const LoadingText = "Loading..."

// ElementIDs returns the title and output element IDs of the widget name.
func ElementIDs(name string) (titleID, outputID string) {
	prefix := "widget-" + name + "-"
	return prefix + "widget_title", prefix + "widget_events"
}

// NewPage builds the markup a widget is rendered into: a title element
// (omitted when title is empty) and an output element holding the loading
// placeholder. The returned root is a div wrapping both.
func NewPage(name, title string) *render.Document {
	titleID, outputID := ElementIDs(name)

	root := render.Element(atom.Div, "widget")
	render.SetAttr(root, "id", "widget-"+name)

	if title != "" {
		titleDiv := render.Element(atom.Div, render.ClassWidgetTitle)
		render.SetAttr(titleDiv, "id", titleID)
		render.SetText(titleDiv, title)
		root.AppendChild(titleDiv)
	}

	events := render.Element(atom.Div, render.ClassWidgetEvents)
	render.SetAttr(events, "id", outputID)
	loading := render.Element(atom.Div, render.ClassLoading)
	loading.AppendChild(&html.Node{Type: html.TextNode, Data: LoadingText})
	events.AppendChild(loading)
	root.AppendChild(events)

	return render.NewDocument(root)
}

// PageParams returns Params with the element IDs of NewPage filled in.
func PageParams(name string, p Params) Params {
	p.TitleElementID, p.OutputElementID = ElementIDs(name)
	return p
}
