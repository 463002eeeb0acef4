package utils

import (
	"fmt"
	"math"
	"path/filepath"
	"regexp"
	"strings"
)

var (
	emailRegex   = regexp.MustCompile(`^[a-zA-Z0-9._%+\-]+@[a-zA-Z0-9.\-]+$`)
	controlChars = regexp.MustCompile(`[\x00-\x1f\x7f]`)
)

// receiptExtensions lists the accepted receipt file extensions, lower case
var receiptExtensions = map[string]bool{
	".jpg":  true,
	".jpeg": true,
	".png":  true,
}

// IsAllowedReceipt reports whether fileName has an accepted image extension.
// The check is case-insensitive.
func IsAllowedReceipt(fileName string) bool {
	return receiptExtensions[strings.ToLower(filepath.Ext(fileName))]
}

// ReceiptContentType returns the MIME type matching an accepted receipt name
func ReceiptContentType(fileName string) string {
	switch strings.ToLower(filepath.Ext(fileName)) {
	case ".png":
		return "image/png"
	case ".jpg", ".jpeg":
		return "image/jpeg"
	default:
		return "application/octet-stream"
	}
}

// ValidateEmail validates an email address.
// Local accounts such as a@a are accepted.
func ValidateEmail(email string) error {
	if !emailRegex.MatchString(email) {
		return fmt.Errorf("invalid email format: %s", email)
	}
	return nil
}

// ValidateAmount validates a bill amount: finite and not negative
func ValidateAmount(amount float64) error {
	if math.IsNaN(amount) || math.IsInf(amount, 0) {
		return fmt.Errorf("amount must be a finite number: %v", amount)
	}
	if amount < 0 {
		return fmt.Errorf("amount must not be negative: %.2f", amount)
	}
	return nil
}

// SanitizeString removes control characters
func SanitizeString(s string) string {
	return controlChars.ReplaceAllString(s, "")
}

// SanitizeFileName strips directories and control characters from an uploaded file name
func SanitizeFileName(name string) string {
	name = SanitizeString(filepath.Base(strings.ReplaceAll(name, "\\", "/")))
	if name == "." || name == "/" || name == ".." {
		return ""
	}
	return name
}
