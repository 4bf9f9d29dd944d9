// Package validator wraps go-playground/validator v10 with English
// translations. Configuration structs and recipient addresses are checked
// through it so every caller reports problems the same way.
package validator
