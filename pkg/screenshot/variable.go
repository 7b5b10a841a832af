package screenshot

import (
	"context"
	"fmt"

	"golang.org/x/text/language"
	"golang.org/x/text/message"
	"golang.org/x/text/message/catalog"
)

// VariableID identifies the focused-window screenshot attachment.
const VariableID = "screenshot-focused-window"

const variableNameKey = "Screenshot"

// VariableEntry is a screenshot packaged as a chat attachment.
type VariableEntry struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	Value     []byte `json:"value"`
	IsImage   bool   `json:"isImage"`
	IsDynamic bool   `json:"isDynamic"`
}

var variableLabels = []struct {
	tag   language.Tag
	label string
}{
	{language.English, "Screenshot"},
	{language.German, "Bildschirmfoto"},
	{language.French, "Capture d'écran"},
	{language.Spanish, "Captura de pantalla"},
	{language.Japanese, "スクリーンショット"},
	{language.SimplifiedChinese, "屏幕截图"},
	{language.BrazilianPortuguese, "Captura de tela"},
}

var (
	labels, labelTags = mustLabelCatalog()
	// English comes first so unmatched tags fall back to it.
	labelMatcher = language.NewMatcher(labelTags)
)

func mustLabelCatalog() (catalog.Catalog, []language.Tag) {
	b := catalog.NewBuilder(catalog.Fallback(language.English))
	tags := make([]language.Tag, 0, len(variableLabels))
	for _, l := range variableLabels {
		if err := b.SetString(l.tag, variableNameKey, l.label); err != nil {
			panic(fmt.Sprintf("screenshot: register %s label: %v", l.tag, err))
		}
		tags = append(tags, l.tag)
	}
	return b, tags
}

// VariableName returns the attachment label for the catalog language
// closest to lang.
func VariableName(lang language.Tag) string {
	_, idx, _ := labelMatcher.Match(lang)
	return message.NewPrinter(labelTags[idx], message.Catalog(labels)).Sprintf(variableNameKey)
}

// GetScreenshotAsVariable captures the active window and wraps the image as
// an attachment entry labelled in lang. It reports false when no screenshot
// is available.
func GetScreenshotAsVariable(ctx context.Context, c *Capturer, lang language.Tag, opts ...CaptureOption) (VariableEntry, bool) {
	shot, ok := c.Capture(ctx, opts...)
	if !ok {
		return VariableEntry{}, false
	}
	return VariableEntry{
		ID:        VariableID,
		Name:      VariableName(lang),
		Value:     shot.Data,
		IsImage:   true,
		IsDynamic: true,
	}, true
}
