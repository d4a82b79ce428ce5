package markdown

import (
	"fmt"
	"html"
	"strings"

	"github.com/russross/blackfriday/v2"
)

// ToHTML converts reddit-flavoured markdown to an HTML fragment
func ToHTML(markdown string) string {
	if strings.TrimSpace(markdown) == "" {
		return ""
	}

	return string(blackfriday.Run([]byte(markdown), blackfriday.WithExtensions(blackfriday.CommonExtensions)))
}

// Page wraps the rendered markdown in a minimal standalone HTML document
func Page(title, markdown string) string {
	return fmt.Sprintf("<!DOCTYPE html>\n<html>\n<head><meta charset=\"utf-8\"><title>%s</title></head>\n<body>\n%s</body>\n</html>\n",
		html.EscapeString(title), ToHTML(markdown))
}
