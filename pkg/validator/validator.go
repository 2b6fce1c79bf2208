package validator

import (
	"fmt"
	"net/mail"
	"net/url"
	"regexp"
	"strings"
	"time"
	"unicode"
	"unicode/utf8"
)

type ValidationErrors map[string]string

func (v ValidationErrors) HasErrors() bool {
	return len(v) > 0
}

func (v ValidationErrors) Add(field, message string) {
	v[field] = message
}

var usernameRegex = regexp.MustCompile(`^[a-zA-Z0-9_-]+$`)

func ValidateRegister(email, username, displayName, password string) ValidationErrors {
	errs := make(ValidationErrors)

	// Email
	email = strings.TrimSpace(email)
	if email == "" {
		errs.Add("email", "Email is required")
	} else if _, err := mail.ParseAddress(email); err != nil {
		errs.Add("email", "Invalid email address")
	}

	// Username
	username = strings.TrimSpace(username)
	if username == "" {
		errs.Add("username", "Username is required")
	} else if len(username) < 3 {
		errs.Add("username", "Username must be at least 3 characters")
	} else if len(username) > 50 {
		errs.Add("username", "Username is too long")
	} else if !usernameRegex.MatchString(username) {
		errs.Add("username", "Username can only contain letters, numbers, _ and -")
	}

	// Display name (optional, defaults to username)
	displayName = strings.TrimSpace(displayName)
	if displayName != "" && len(displayName) < 2 {
		errs.Add("display_name", "Display name must be at least 2 characters")
	} else if len(displayName) > 100 {
		errs.Add("display_name", "Display name is too long")
	}

	// Password
	validatePassword(password, errs)

	return errs
}

func ValidateLogin(email, password string) ValidationErrors {
	errs := make(ValidationErrors)

	email = strings.TrimSpace(email)
	if email == "" {
		errs.Add("email", "Email is required")
	} else if _, err := mail.ParseAddress(email); err != nil {
		errs.Add("email", "Invalid email address")
	}

	if password == "" {
		errs.Add("password", "Password is required")
	}

	return errs
}

// ValidateGroup checks group metadata. Nil fields are not being changed.
func ValidateGroup(name, description, iconURL *string) ValidationErrors {
	errs := make(ValidationErrors)

	if name != nil {
		n := strings.TrimSpace(*name)
		if n == "" {
			errs.Add("name", "Group name is required")
		} else if utf8.RuneCountInString(n) > 100 {
			errs.Add("name", "Group name is too long")
		}
	}

	if description != nil && utf8.RuneCountInString(*description) > 500 {
		errs.Add("description", "Description is too long")
	}

	if iconURL != nil && *iconURL != "" {
		if u, err := url.Parse(*iconURL); err != nil || (u.Scheme != "https" && u.Scheme != "http" && !strings.HasPrefix(*iconURL, "/")) {
			errs.Add("icon_url", "Icon must be a URL")
		}
	}

	return errs
}

func ValidateMute(until, now time.Time) ValidationErrors {
	errs := make(ValidationErrors)
	if until.IsZero() {
		errs.Add("until", "Mute end is required")
	} else if !until.After(now) {
		errs.Add("until", "Mute end must be in the future")
	}
	return errs
}

func validatePassword(password string, errs ValidationErrors) {
	if len(password) < 8 {
		errs.Add("password", "Password must be at least 8 characters")
		return
	}

	var hasUpper, hasLower, hasDigit bool
	for _, ch := range password {
		switch {
		case unicode.IsUpper(ch):
			hasUpper = true
		case unicode.IsLower(ch):
			hasLower = true
		case unicode.IsDigit(ch):
			hasDigit = true
		}
	}

	missing := []string{}
	if !hasUpper {
		missing = append(missing, "one uppercase letter")
	}
	if !hasLower {
		missing = append(missing, "one lowercase letter")
	}
	if !hasDigit {
		missing = append(missing, "one number")
	}

	if len(missing) > 0 {
		errs.Add("password", fmt.Sprintf("Password must contain at least %s", strings.Join(missing, ", ")))
	}
}
