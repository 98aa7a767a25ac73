package auth

import "strings"

const (
	// MinPasswordLength is the shortest password accepted at signup.
	MinPasswordLength = 8
	// MaxPasswordBytes is the longest password bcrypt can hash.
	MaxPasswordBytes = 72
)

type Strength string

const (
	Weak   Strength = "weak"
	Fair   Strength = "fair"
	Good   Strength = "good"
	Strong Strength = "strong"
)

const specialChars = `!@#$%^&*()_+-=[]{};':"\|,.<>/?`

// PasswordCheck reports which strength rules a password satisfies.
type PasswordCheck struct {
	IsValid        bool     `json:"isValid"`
	MinLength      bool     `json:"minLength"`
	HasUppercase   bool     `json:"hasUppercase"`
	HasLowercase   bool     `json:"hasLowercase"`
	HasNumber      bool     `json:"hasNumber"`
	HasSpecialChar bool     `json:"hasSpecialChar"`
	Strength       Strength `json:"strength"`
	Score          int      `json:"score"`
	TooLong        bool     `json:"tooLong,omitempty"`
}

// ValidatePassword scores a password from 0 to 4: one point each for
// length, mixed case, a digit and a special character. Only passwords that
// satisfy every rule and fit in MaxPasswordBytes are valid.
func ValidatePassword(password string) PasswordCheck {
	c := PasswordCheck{
		MinLength: len([]rune(password)) >= MinPasswordLength,
		TooLong:   len(password) > MaxPasswordBytes,
	}
	for _, r := range password {
		switch {
		case r >= 'A' && r <= 'Z':
			c.HasUppercase = true
		case r >= 'a' && r <= 'z':
			c.HasLowercase = true
		case r >= '0' && r <= '9':
			c.HasNumber = true
		case strings.ContainsRune(specialChars, r):
			c.HasSpecialChar = true
		}
	}

	if c.MinLength {
		c.Score++
	}
	if c.HasUppercase && c.HasLowercase {
		c.Score++
	}
	if c.HasNumber {
		c.Score++
	}
	if c.HasSpecialChar {
		c.Score++
	}

	switch c.Score {
	case 4:
		c.Strength = Strong
	case 3:
		c.Strength = Good
	case 2:
		c.Strength = Fair
	default:
		c.Strength = Weak
	}

	c.IsValid = !c.TooLong && c.MinLength && c.HasUppercase && c.HasLowercase && c.HasNumber && c.HasSpecialChar
	return c
}

// Missing lists the unmet rules in user facing wording.
func (c PasswordCheck) Missing() []string {
	var out []string
	if !c.MinLength {
		out = append(out, "at least 8 characters")
	}
	if !c.HasUppercase {
		out = append(out, "an uppercase letter")
	}
	if !c.HasLowercase {
		out = append(out, "a lowercase letter")
	}
	if !c.HasNumber {
		out = append(out, "a number")
	}
	if !c.HasSpecialChar {
		out = append(out, "a special character")
	}
	if c.TooLong {
		out = append(out, "at most 72 bytes")
	}
	return out
}
