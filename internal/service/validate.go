package service

import (
	"regexp"
	"unicode"
)

type LoginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type RegisterRequest struct {
	Username        string `json:"username"`
	Email           string `json:"email"`
	Phone           string `json:"phone"`
	Password        string `json:"password"`
	ConfirmPassword string `json:"confirm_password"`
}

type ForgotPasswordRequest struct {
	Identifier string `json:"identifier"`
}

type VerifyOTPRequest struct {
	Identifier string `json:"identifier"`
	Code       string `json:"code"`
}

type ResetPasswordRequest struct {
	Token           string `json:"token"`
	NewPassword     string `json:"new_password"`
	ConfirmPassword string `json:"confirm_password"`
}

var (
	usernameRe = regexp.MustCompile(`^[A-Za-z0-9.]{2,50}$`)
	emailRe    = regexp.MustCompile(`^[^@\s]+@[^@\s]+\.[^@\s]+$`)
	phoneRe    = regexp.MustCompile(`^\+?[1-9]\d{9,14}$`)
	otpRe      = regexp.MustCompile(`^\d{6}$`)
)

func (r *LoginRequest) Validate() error {
	errs := NewValidationError()
	if r.Email == "" {
		errs.Add("email", "email is required")
	}
	if r.Password == "" {
		errs.Add("password", "password is required")
	}
	if errs.HasErrors() {
		return errs
	}
	return nil
}

func (r *RegisterRequest) Validate() error {
	errs := NewValidationError()
	if !usernameRe.MatchString(r.Username) {
		errs.Add("username", "username must be 2-50 characters: letters, digits and dots only")
	}
	if !emailRe.MatchString(r.Email) {
		errs.Add("email", "a valid email address is required")
	}
	if !phoneRe.MatchString(r.Phone) {
		errs.Add("phone", "phone must be 10-15 digits with an optional leading +")
	}
	checkPassword(errs, r.Password, r.ConfirmPassword)
	if errs.HasErrors() {
		return errs
	}
	return nil
}

func (r *ForgotPasswordRequest) Validate() error {
	if r.Identifier == "" {
		errs := NewValidationError()
		errs.Add("identifier", "email or phone is required")
		return errs
	}
	return nil
}

func (r *VerifyOTPRequest) Validate() error {
	errs := NewValidationError()
	if r.Identifier == "" {
		errs.Add("identifier", "identifier is required")
	}
	if !otpRe.MatchString(r.Code) {
		errs.Add("code", "code must be 6 digits")
	}
	if errs.HasErrors() {
		return errs
	}
	return nil
}

func (r *ResetPasswordRequest) Validate() error {
	errs := NewValidationError()
	if r.Token == "" {
		errs.Add("token", "reset token is required")
	}
	checkPassword(errs, r.NewPassword, r.ConfirmPassword)
	if errs.HasErrors() {
		return errs
	}
	return nil
}

// checkPassword enforces the password policy shared by registration and
// reset: at least 6 characters containing a letter and a digit.
func checkPassword(errs *ValidationError, password, confirm string) {
	if len(password) < 6 {
		errs.Add("password", "password must be at least 6 characters")
		return
	}
	var hasLetter, hasDigit bool
	for _, r := range password {
		switch {
		case unicode.IsLetter(r):
			hasLetter = true
		case unicode.IsDigit(r):
			hasDigit = true
		}
	}
	if !hasLetter || !hasDigit {
		errs.Add("password", "password must contain at least one letter and one digit")
		return
	}
	if password != confirm {
		errs.Add("confirm_password", "passwords do not match")
	}
}
