package validation

import (
	"fmt"
	"net/url"
	"regexp"
	"strings"
	"unicode/utf8"
)

var (
	// AccountIDRegex matches publisher account ids.
	AccountIDRegex = regexp.MustCompile(`^[a-zA-Z0-9]+$`)

	// SourceIDRegex matches the ids publishers give multi-source feeds.
	SourceIDRegex = regexp.MustCompile(`^[a-zA-Z0-9_.\-]+$`)
)

// ValidateStreamName validates the name of a published stream.
func ValidateStreamName(name string) error {
	if strings.TrimSpace(name) == "" {
		return fmt.Errorf("stream name is required")
	}
	if name != strings.TrimSpace(name) {
		return fmt.Errorf("stream name must not start or end with whitespace")
	}
	if utf8.RuneCountInString(name) > 100 {
		return fmt.Errorf("stream name is too long (max 100 characters)")
	}
	if !utf8.ValidString(name) {
		return fmt.Errorf("stream name contains invalid characters")
	}
	if strings.ContainsAny(name, "/?#") {
		return fmt.Errorf("stream name must not contain '/', '?' or '#'")
	}
	return nil
}

func ValidateAccountID(accountID string) error {
	if accountID == "" {
		return fmt.Errorf("account ID is required")
	}
	if len(accountID) > 64 {
		return fmt.Errorf("account ID is too long (max 64 characters)")
	}
	if !AccountIDRegex.MatchString(accountID) {
		return fmt.Errorf("invalid account ID format")
	}
	return nil
}

// ValidateSourceID validates a source id. The empty id names the main source.
func ValidateSourceID(sourceID string) error {
	if sourceID == "" {
		return nil
	}
	if len(sourceID) > 100 {
		return fmt.Errorf("source ID is too long (max 100 characters)")
	}
	if !SourceIDRegex.MatchString(sourceID) {
		return fmt.Errorf("invalid source ID format")
	}
	return nil
}

// ValidateURL validates URL format
func ValidateURL(urlStr string) error {
	if urlStr == "" {
		return fmt.Errorf("URL is required")
	}
	u, err := url.Parse(urlStr)
	if err != nil {
		return fmt.Errorf("invalid URL format: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" && u.Scheme != "ws" && u.Scheme != "wss" {
		return fmt.Errorf("invalid URL scheme (must be http, https, ws, or wss)")
	}
	if u.Host == "" {
		return fmt.Errorf("URL must have a host")
	}
	return nil
}

// ValidateQuality validates a requested video quality name.
func ValidateQuality(quality string) error {
	switch quality {
	case "", "auto", "high", "medium", "low":
		return nil
	default:
		return fmt.Errorf("invalid quality level (must be auto, high, medium, or low)")
	}
}
