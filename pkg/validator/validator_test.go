package validator

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestValidateRegister(t *testing.T) {
	errs := ValidateRegister("alice@example.com", "alice_01", "", "Secret123")
	assert.False(t, errs.HasErrors())

	errs = ValidateRegister("not-an-email", "a!", "A", "short")
	assert.Contains(t, errs, "email")
	assert.Contains(t, errs, "username")
	assert.Contains(t, errs, "display_name")
	assert.Contains(t, errs, "password")
}

func TestPasswordRules(t *testing.T) {
	errs := ValidateRegister("a@example.com", "alice", "Alice", "alllowercase1")
	assert.Equal(t, "Password must contain at least one uppercase letter", errs["password"])
}

func TestValidateLogin(t *testing.T) {
	assert.False(t, ValidateLogin("a@example.com", "x").HasErrors())
	assert.Contains(t, ValidateLogin("", ""), "email")
}

func TestValidateGroup(t *testing.T) {
	name, blank := "Weekend trip", "  "
	icon, badIcon := "https://cdn.example.com/i.png", "ftp://nope"

	assert.False(t, ValidateGroup(&name, nil, &icon).HasErrors())
	assert.False(t, ValidateGroup(nil, nil, nil).HasErrors())

	errs := ValidateGroup(&blank, nil, &badIcon)
	assert.Contains(t, errs, "name")
	assert.Contains(t, errs, "icon_url")
}

func TestValidateMute(t *testing.T) {
	now := time.Now()
	assert.False(t, ValidateMute(now.Add(time.Hour), now).HasErrors())
	assert.Contains(t, ValidateMute(now.Add(-time.Second), now), "until")
	assert.Contains(t, ValidateMute(time.Time{}, now), "until")
}
