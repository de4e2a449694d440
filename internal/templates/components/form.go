// Copyright 2025 Oliver Andrich
// Licensed under the EUPL-1.2

package components

import authsvc "codeberg.org/oliverandrich/go-webapp-auth/internal/services/auth"

// Field is one input of a form. Label is an i18n message id.
type Field struct {
	Name    string
	Type    string // text, email, password, checkbox
	Label   string
	Value   string
	Checked bool
}

// DisplayValue is the value rendered into the input. Passwords are never
// echoed back.
func (f Field) DisplayValue() string {
	if f.Type == "password" {
		return ""
	}
	return f.Value
}

// Form describes a POST form rendered with the CSRF token and per-field errors.
type Form struct {
	Action string
	Submit string // i18n message id
	Fields []Field
	Errors authsvc.FieldErrors
}
