package normalize

import (
	"strings"
	"unicode"

	"github.com/sells-group/lead-import/internal/model"
)

// headerAliases maps a squashed header (lowercase letters and digits only) to
// the lead field it most likely carries.
var headerAliases = map[string]string{
	"businessname":  model.FieldBusinessName,
	"business":      model.FieldBusinessName,
	"company":       model.FieldBusinessName,
	"companyname":   model.FieldBusinessName,
	"organization":  model.FieldBusinessName,
	"organisation":  model.FieldBusinessName,
	"account":       model.FieldBusinessName,
	"accountname":   model.FieldBusinessName,
	"name":          model.FieldBusinessName,
	"contactname":   model.FieldContactName,
	"contact":       model.FieldContactName,
	"fullname":      model.FieldContactName,
	"owner":         model.FieldContactName,
	"email":         model.FieldEmail,
	"emailaddress":  model.FieldEmail,
	"contactemail":  model.FieldEmail,
	"phone":         model.FieldPhone,
	"phonenumber":   model.FieldPhone,
	"telephone":     model.FieldPhone,
	"tel":           model.FieldPhone,
	"mobile":        model.FieldPhone,
	"cell":          model.FieldPhone,
	"website":       model.FieldWebsite,
	"web":           model.FieldWebsite,
	"url":           model.FieldWebsite,
	"domain":        model.FieldWebsite,
	"homepage":      model.FieldWebsite,
	"address":       model.FieldAddress,
	"streetaddress": model.FieldAddress,
	"street":        model.FieldAddress,
	"address1":      model.FieldAddress,
	"city":          model.FieldCity,
	"town":          model.FieldCity,
	"locality":      model.FieldCity,
	"state":         model.FieldState,
	"province":      model.FieldState,
	"region":        model.FieldState,
	"postalcode":    model.FieldPostalCode,
	"zip":           model.FieldPostalCode,
	"zipcode":       model.FieldPostalCode,
	"postcode":      model.FieldPostalCode,
}

// FieldForHeader returns the lead field a source header most likely carries.
func FieldForHeader(header string) (string, bool) {
	f, ok := headerAliases[squash(header)]
	return f, ok
}

// squash lowercases s and drops everything but letters and digits, so
// "E-mail", "Email Address" and "email_address" compare equal.
func squash(s string) string {
	var b strings.Builder
	for _, r := range strings.ToLower(s) {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			b.WriteRune(r)
		}
	}
	return b.String()
}
