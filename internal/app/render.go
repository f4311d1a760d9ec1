package app

import "github.com/klabast/wb-services/abfall-display/internal/layout"

// BuildBlock turns content into layout text: the pickup date as header and
// one item per waste type, or a single notice for the sentinel.
func BuildBlock(c Content, dateFormat string) layout.Block {
	if c.IsEmpty() {
		return layout.Block{Notice: NoPickupText}
	}
	if dateFormat == "" {
		dateFormat = DefaultDateFormat
	}
	return layout.Block{
		Header: FormatDate(c.NextDate, dateFormat),
		Items:  append([]string(nil), c.Types...),
	}
}
