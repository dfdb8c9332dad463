// internal/app/system/inputval/inputval.go
package inputval

import (
	"strings"

	"github.com/dalemusser/waffle/pantry/validate"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

// IsValidEmail reports whether s is a bare, internet-routable address.
// The waffle guardrail rejects empty, '@'-less and dotless-domain input;
// the validator "email" rule then rejects display names, whitespace and
// malformed dot-atoms.
func IsValidEmail(s string) bool {
	if !validate.SimpleEmailValid(s) {
		return false
	}
	return instance().Var(s, "email") == nil
}

// IsValidObjectID reports whether s (after trimming) is a 24-char hex id.
func IsValidObjectID(s string) bool {
	_, err := primitive.ObjectIDFromHex(strings.ToLower(strings.TrimSpace(s)))
	return err == nil
}
