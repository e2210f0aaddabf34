package guardian

import (
	"errors"
	"regexp"
	"strings"
	"unicode"

	validation "github.com/go-ozzo/ozzo-validation"
	"github.com/go-ozzo/ozzo-validation/is"
	"github.com/nyaruka/phonenumbers"
)

// DefaultPhoneRegion is used to parse mobile numbers without a country prefix
const DefaultPhoneRegion = "US"

const minPasswordClasses = 3

var errWeakPassword = errors.New("must mix at least three of lower case, upper case, digits and symbols")

// strongPassword is an ozzo rule requiring several character classes
var strongPassword = validation.By(func(value any) error {
	s, _ := value.(string)
	if s == "" {
		return nil
	}
	var lower, upper, digit, symbol bool
	for _, r := range s {
		switch {
		case unicode.IsLower(r):
			lower = true
		case unicode.IsUpper(r):
			upper = true
		case unicode.IsDigit(r):
			digit = true
		default:
			symbol = true
		}
	}
	classes := 0
	for _, ok := range []bool{lower, upper, digit, symbol} {
		if ok {
			classes++
		}
	}
	if classes < minPasswordClasses {
		return errWeakPassword
	}
	return nil
})

// usernameRules keep usernames apart from emails and mobile numbers
var usernameRules = []validation.Rule{
	validation.Length(3, 64),
	is.PrintableASCII,
	validation.Match(usernamePattern).Error("must not contain '@', '+' or spaces"),
}

var usernamePattern = regexp.MustCompile(`^[^@+\s]+$`)

// passwordRules is shared by registration and reset
var passwordRules = []validation.Rule{
	validation.Required,
	validation.Length(8, 128),
	strongPassword,
}

func matchesPassword(password string) validation.Rule {
	return validation.By(func(value any) error {
		s, _ := value.(string)
		if s != password {
			return errors.New("must match password")
		}
		return nil
	})
}

// NormalizeMobile parses number and renders it in E.164 form
func NormalizeMobile(number, region string) (string, error) {
	number = strings.TrimSpace(number)
	if number == "" {
		return "", nil
	}
	if region == "" {
		region = DefaultPhoneRegion
	}
	parsed, err := phonenumbers.Parse(number, region)
	if err != nil {
		return "", err
	}
	if !phonenumbers.IsValidNumber(parsed) {
		return "", errors.New("not a valid phone number")
	}
	return phonenumbers.Format(parsed, phonenumbers.E164), nil
}

// mobileCandidate returns the E.164 form of identity when it reads as a
// phone number and differs from the input.
func mobileCandidate(identity, region string) (string, bool) {
	if identity == "" || strings.ContainsAny(identity, "@") {
		return "", false
	}
	for _, r := range identity {
		if unicode.IsLetter(r) {
			return "", false
		}
	}
	normalized, err := NormalizeMobile(identity, region)
	if err != nil || normalized == "" || normalized == identity {
		return "", false
	}
	return normalized, true
}

// asValidationError converts ozzo errors into a VALIDATION_FAILED error
func asValidationError(err error, msg string) error {
	if err == nil {
		return nil
	}
	var verrs validation.Errors
	if errors.As(err, &verrs) {
		fields := make(map[string]string, len(verrs))
		for field, ferr := range verrs {
			if ferr != nil {
				fields[field] = ferr.Error()
			}
		}
		return NewValidationError(msg, fields)
	}
	return NewValidationError(msg, map[string]string{"error": err.Error()})
}
