package leads

import (
	"regexp"
	"strings"
	"unicode"
	"unicode/utf8"
)

const (
	minNameLength = 2
	maxNameLength = 50
)

// Russian numbers: optional +7/8/7 prefix, three-digit area code with
// optional parentheses, then 3-2-2 digits with optional separators.
var phonePattern = regexp.MustCompile(`^(\+7|8|7)?[\s\-]?\(?[0-9]{3}\)?[\s\-]?[0-9]{3}[\s\-]?[0-9]{2}[\s\-]?[0-9]{2}$`)

// ValidationResult lists every violated constraint, in field order.
type ValidationResult struct {
	Valid  bool
	Errors []string
}

// ValidateName accepts 2 to 50 characters after trimming.
func ValidateName(name string) bool {
	n := utf8.RuneCountInString(strings.TrimSpace(name))
	return n >= minNameLength && n <= maxNameLength
}

// ValidatePhone accepts Russian phone numbers; whitespace is ignored.
func ValidatePhone(phone string) bool {
	if phone == "" {
		return false
	}
	return phonePattern.MatchString(stripSpaces(phone))
}

// ValidateModel accepts any non-blank model name.
func ValidateModel(model string) bool {
	return strings.TrimSpace(model) != ""
}

// Validate runs every check the intent requires without stopping at the
// first failure.
func Validate(intent Intent, f Fields) ValidationResult {
	var errs []string
	if !ValidateName(f.Name) {
		errs = append(errs, msgNameLength)
	}
	if !ValidatePhone(f.Phone) {
		errs = append(errs, msgPhoneFormat)
	}
	if intent.RequiresModel() && !ValidateModel(f.Model) {
		errs = append(errs, msgModelEmpty)
	}
	return ValidationResult{Valid: len(errs) == 0, Errors: errs}
}

func stripSpaces(s string) string {
	return strings.Map(func(r rune) rune {
		if unicode.IsSpace(r) {
			return -1
		}
		return r
	}, s)
}
