package dto

import (
	"bytes"
	"encoding/json"
	"errors"
	"strings"

	"github.com/hongminglow/storefront-be/internal/auth"
)

type SendEmailCodeRequest struct {
	Email    string `json:"email"`
	Name     string `json:"name"`
	Password string `json:"password"`
}

type SendSMSCodeRequest struct {
	PhoneNumber string `json:"phoneNumber"`
	Name        string `json:"name"`
	Password    string `json:"password"`
}

// VerifyCodeRequest accepts the identifier under its generic name or the channel-specific one.
type VerifyCodeRequest struct {
	Identifier  string `json:"identifier"`
	Email       string `json:"email"`
	PhoneNumber string `json:"phoneNumber"`
	OTP         Code   `json:"otp"`
}

var errCodeFormat = errors.New("otp must be a string or a whole number")

// Code is a verification code sent either as a JSON string or as a JSON integer.
type Code struct {
	value   string
	numeric bool
}

func (c *Code) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if bytes.Equal(b, []byte("null")) {
		*c = Code{}
		return nil
	}
	if len(b) > 0 && b[0] == '"' {
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
		*c = Code{value: s}
		return nil
	}
	if len(b) == 0 {
		return errCodeFormat
	}
	for _, ch := range b {
		if ch < '0' || ch > '9' {
			return errCodeFormat
		}
	}
	*c = Code{value: string(b), numeric: true}
	return nil
}

// Padded returns the code as sent. A number shorter than width gets back the
// leading zeros JSON dropped.
func (c Code) Padded(width int) string {
	if c.numeric && len(c.value) < width {
		return strings.Repeat("0", width-len(c.value)) + c.value
	}
	return c.value
}

type LoginRequest struct {
	Identifier string `json:"identifier"`
	Password   string `json:"password"`
}

type RefreshRequest struct {
	RefreshToken string `json:"refreshToken"`
}

type TokensResponse struct {
	Tokens    auth.TokenPair `json:"tokens"`
	Onboarded bool           `json:"onboarded"`
}

type RefreshResponse struct {
	AccessToken string `json:"accessToken"`
}
