package utils

import "github.com/microcosm-cc/bluemonday"

var strictSanitizer = bluemonday.StrictPolicy()

// SanitizeText strips all HTML from user supplied text such as check-in greetings.
func SanitizeText(input string) string {
	return strictSanitizer.Sanitize(input)
}
