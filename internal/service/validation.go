package service

import (
	"errors"
	"fmt"
	"reflect"
	"regexp"
	"strconv"
	"strings"
	"unicode"

	"github.com/go-playground/validator/v10"

	"sneaker-review-service/internal/auth"
	"sneaker-review-service/internal/domain"
)

var usernamePattern = regexp.MustCompile(`^[\p{L}\p{N}_.@+-]+$`)

// newValidator returns a validator that reports fields by their json name and
// knows the rating and username rules plus the password policy.
func newValidator(minPasswordLen int) *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})

	_ = v.RegisterValidation("rating", func(fl validator.FieldLevel) bool {
		r, err := strconv.Atoi(fl.Field().String())
		return err == nil && domain.ValidRating(r)
	})
	_ = v.RegisterValidation("username", func(fl validator.FieldLevel) bool {
		return usernamePattern.MatchString(fl.Field().String())
	})
	v.RegisterStructValidation(passwordPolicy(minPasswordLen), RegistrationInput{})
	return v
}

// passwordPolicy reports weak passwords against password2, where the
// confirmation form shows them.
func passwordPolicy(minLen int) validator.StructLevelFunc {
	return func(sl validator.StructLevel) {
		in := sl.Current().Interface().(RegistrationInput)
		if in.Password1 == "" || in.Password1 != in.Password2 {
			return
		}
		pw := in.Password1
		if userAttributeSimilar(pw, in.Username) {
			sl.ReportError(in.Password2, "password2", "Password2", "similar", "")
		}
		if len([]rune(pw)) < minLen {
			sl.ReportError(in.Password2, "password2", "Password2", "min_length", strconv.Itoa(minLen))
		}
		if len(pw) > auth.MaxPasswordBytes {
			sl.ReportError(in.Password2, "password2", "Password2", "too_long", "")
		}
		if isCommonPassword(pw) {
			sl.ReportError(in.Password2, "password2", "Password2", "common", "")
		}
		if isNumeric(pw) {
			sl.ReportError(in.Password2, "password2", "Password2", "numeric", "")
		}
	}
}

// toValidationError turns validator output into field messages.
func toValidationError(err error) error {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return err
	}
	ve := &ValidationError{}
	for _, fe := range verrs {
		ve.Add(fe.Field(), messageFor(fe))
	}
	return ve
}

func messageFor(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return "This field is required."
	case "max":
		return fmt.Sprintf("Ensure this value has at most %s characters (it has %d).", fe.Param(), len([]rune(fmt.Sprint(fe.Value()))))
	case "rating":
		return fmt.Sprintf("Select a valid choice. %v is not one of the available choices.", fe.Value())
	case "username":
		return "Enter a valid username. This value may contain only letters, numbers, and @/./+/-/_ characters."
	case "eqfield":
		return "The two password fields didn't match."
	case "similar":
		return "The password is too similar to the username."
	case "min_length":
		return fmt.Sprintf("This password is too short. It must contain at least %s characters.", fe.Param())
	case "too_long":
		return "This password is too long."
	case "common":
		return "This password is too common."
	case "numeric":
		return "This password is entirely numeric."
	}
	return fmt.Sprintf("Failed on the %q rule.", fe.Tag())
}

func isNumeric(s string) bool {
	for _, r := range s {
		if !unicode.IsDigit(r) {
			return false
		}
	}
	return s != ""
}

// userAttributeSimilar compares the password with the username and each of its
// word-separated parts, using a longest-common-subsequence ratio.
func userAttributeSimilar(password, username string) bool {
	const maxSimilarity = 0.7
	pw := strings.ToLower(password)
	candidates := append([]string{username}, strings.FieldsFunc(username, func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r) && r != '_'
	})...)
	for _, c := range candidates {
		c = strings.ToLower(c)
		if c == "" {
			continue
		}
		if similarityRatio(pw, c) >= maxSimilarity {
			return true
		}
	}
	return false
}

func similarityRatio(a, b string) float64 {
	ra, rb := []rune(a), []rune(b)
	total := len(ra) + len(rb)
	if total == 0 {
		return 1
	}
	prev := make([]int, len(rb)+1)
	cur := make([]int, len(rb)+1)
	for i := 1; i <= len(ra); i++ {
		for j := 1; j <= len(rb); j++ {
			switch {
			case ra[i-1] == rb[j-1]:
				cur[j] = prev[j-1] + 1
			case prev[j] >= cur[j-1]:
				cur[j] = prev[j]
			default:
				cur[j] = cur[j-1]
			}
		}
		prev, cur = cur, prev
	}
	return 2 * float64(prev[len(rb)]) / float64(total)
}

// commonPasswords is a short list of the most frequently leaked passwords.
var commonPasswords = map[string]struct{}{}

func init() {
	for _, p := range strings.Fields(`
		123456 password 12345678 qwerty 123456789 12345 1234 111111 1234567 dragon
		123123 baseball abc123 football monkey letmein 696969 shadow master 666666
		qwertyuiop 123321 mustang 1234567890 michael 654321 superman 1qaz2wsx 7777777
		121212 000000 qazwsx 123qwe killer trustno1 jordan jennifer zxcvbnm asdfgh
		hunter buster soccer harley batman andrew tigger sunshine iloveyou 2000
		charlie robert thomas hockey ranger daniel starwars klaster 112233 george
		computer michelle jessica pepper 1111 zxcvbn 555555 11111111 131313 freedom
		777777 pass maggie 159753 aaaaaa ginger princess joshua cheese amanda summer
		love ashley nicole chelsea biteme matthew access yankees 987654321 dallas
		austin thunder taylor matrix welcome welcome1 password1 password123 admin
		login passw0rd qwerty123 senha senha123 mudar123 brasil flamengo corinthians
		palmeiras sneakers tenis123 nike1234 jordan23 adidas123
	`) {
		commonPasswords[p] = struct{}{}
	}
}

func isCommonPassword(pw string) bool {
	_, ok := commonPasswords[strings.ToLower(strings.TrimSpace(pw))]
	return ok
}
