package api

import (
	"bytes"
	"fmt"
	"math"
	"math/big"
	"strconv"
	"strings"
	"unicode/utf8"

	json "github.com/goccy/go-json"
	"github.com/shopspring/decimal"

	"github.com/tigerroll/bulkload/internal/domain/entity"
)

// NonFieldErrors is the key under which cross-field rule violations are reported.
const NonFieldErrors = "non_field_errors"

const (
	msgRequired      = "This field is required."
	msgNull          = "This field may not be null."
	msgBlank         = "This field may not be blank."
	msgNotString     = "Not a valid string."
	msgUnknown       = "Unknown field."
	msgInvalidNumber = "A valid number is required."
	msgInvalidInt    = "A valid integer is required."
	msgDateFormat    = "Date has wrong format. Use one of these formats instead: YYYY-MM-DD."
	msgNotObject     = "Invalid data. Expected a dictionary, but got %s."

	msgPricePositive = "Price must be a positive number"
	msgNameTooShort  = "Name must be at least 2 characters long"
	msgNameIsDesc    = "Name and description should not be the same"
	msgTitleIsGenre  = "Title and genre should not be the same"
)

// Item column limits.
const (
	ItemNameMaxLength      = 100
	ItemNameMinLength      = 2
	PriceMaxDigits         = 10
	PriceDecimalPlaces     = 2
	MaxAvailableQuantity   = math.MaxInt32
	MovieTitleMaxLength    = 100
	MovieGenreMaxLength    = 50
	MovieDirectorMaxLength = 100
)

// FieldErrors maps a field name to its error messages.
type FieldErrors map[string][]string

func (e FieldErrors) add(field, msg string) {
	e[field] = append(e[field], msg)
}

func (e FieldErrors) has(field string) bool {
	return len(e[field]) > 0
}

// field reads one raw value out of a field set and records why it cannot be used.
type field struct {
	name     string
	raw      json.RawMessage
	present  bool
	required bool
	errs     FieldErrors
}

func lookup(f Fields, name string, required bool, errs FieldErrors) *field {
	raw, ok := f[name]
	return &field{name: name, raw: raw, present: ok, required: required, errs: errs}
}

// usable reports whether the field carries a value to validate. A missing optional field is
// not usable but is not an error either.
func (fd *field) usable() bool {
	if !fd.present {
		if fd.required {
			fd.errs.add(fd.name, msgRequired)
		}
		return false
	}
	if bytes.Equal(bytes.TrimSpace(fd.raw), []byte("null")) {
		fd.errs.add(fd.name, msgNull)
		return false
	}
	return true
}

func (fd *field) str(maxLen int, allowBlank bool) (string, bool) {
	if !fd.usable() {
		return "", false
	}
	var s string
	if err := json.Unmarshal(fd.raw, &s); err != nil {
		fd.errs.add(fd.name, msgNotString)
		return "", false
	}
	s = strings.TrimSpace(s)
	if s == "" && !allowBlank {
		fd.errs.add(fd.name, msgBlank)
		return "", false
	}
	if maxLen > 0 && utf8.RuneCountInString(s) > maxLen {
		fd.errs.add(fd.name, fmt.Sprintf("Ensure this field has no more than %d characters.", maxLen))
		return "", false
	}
	return s, true
}

// literal returns the value text of a JSON string or number.
func (fd *field) literal() (string, bool) {
	raw := bytes.TrimSpace(fd.raw)
	if len(raw) > 0 && raw[0] == '"' {
		var s string
		if err := json.Unmarshal(raw, &s); err != nil {
			return "", false
		}
		return strings.TrimSpace(s), true
	}
	var n json.Number
	if err := json.Unmarshal(raw, &n); err != nil {
		return "", false
	}
	return n.String(), true
}

func (fd *field) decimal(maxDigits, places int) (decimal.Decimal, bool) {
	if !fd.usable() {
		return decimal.Decimal{}, false
	}
	text, ok := fd.literal()
	if !ok || text == "" {
		fd.errs.add(fd.name, msgInvalidNumber)
		return decimal.Decimal{}, false
	}
	d, err := decimal.NewFromString(text)
	if err != nil {
		fd.errs.add(fd.name, msgInvalidNumber)
		return decimal.Decimal{}, false
	}

	coef := new(big.Int).Abs(d.Coefficient())
	digits := len(coef.String())
	exp := int(d.Exponent())
	decimals := 0
	if exp < 0 {
		decimals = -exp
	} else {
		digits += exp
	}
	whole := digits - decimals
	switch {
	case digits > maxDigits:
		fd.errs.add(fd.name, fmt.Sprintf("Ensure that there are no more than %d digits in total.", maxDigits))
	case decimals > places:
		fd.errs.add(fd.name, fmt.Sprintf("Ensure that there are no more than %d decimal places.", places))
	case whole > maxDigits-places:
		fd.errs.add(fd.name, fmt.Sprintf("Ensure that there are no more than %d digits before the decimal point.", maxDigits-places))
	default:
		return d, true
	}
	return decimal.Decimal{}, false
}

func (fd *field) integer(min, max int64) (int64, bool) {
	if !fd.usable() {
		return 0, false
	}
	text, ok := fd.literal()
	if !ok {
		fd.errs.add(fd.name, msgInvalidInt)
		return 0, false
	}
	// 3.0 is accepted as 3, 3.5 is not.
	if d, err := decimal.NewFromString(text); err == nil && d.IsInteger() {
		text = d.String()
	}
	n, err := strconv.ParseInt(text, 10, 64)
	if err != nil {
		fd.errs.add(fd.name, msgInvalidInt)
		return 0, false
	}
	if n < min {
		fd.errs.add(fd.name, fmt.Sprintf("Ensure this value is greater than or equal to %d.", min))
		return 0, false
	}
	if n > max {
		fd.errs.add(fd.name, fmt.Sprintf("Ensure this value is less than or equal to %d.", max))
		return 0, false
	}
	return n, true
}

func (fd *field) date() (entity.Date, bool) {
	if !fd.usable() {
		return entity.Date{}, false
	}
	var s string
	if err := json.Unmarshal(fd.raw, &s); err != nil {
		fd.errs.add(fd.name, msgDateFormat)
		return entity.Date{}, false
	}
	d, err := entity.ParseDate(strings.TrimSpace(s))
	if err != nil {
		fd.errs.add(fd.name, msgDateFormat)
		return entity.Date{}, false
	}
	return d, true
}

// rejectUnknown reports every key of f that is not in known. Read-only keys are skipped.
func rejectUnknown(f Fields, errs FieldErrors, readOnly []string, known ...string) {
	for name := range f {
		if contains(known, name) || contains(readOnly, name) {
			continue
		}
		errs.add(name, msgUnknown)
	}
}

func contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}

// newItem builds an Item from a submitted field set. The returned FieldErrors is empty when
// the item is valid.
func newItem(f Fields) (entity.Item, FieldErrors) {
	errs := FieldErrors{}
	if f == nil {
		errs.add(NonFieldErrors, fmt.Sprintf(msgNotObject, "a non-object value"))
		return entity.Item{}, errs
	}
	rejectUnknown(f, errs, []string{"id"}, "name", "description", "price", "available_quantity")

	var item entity.Item
	name, nameOK := lookup(f, "name", true, errs).str(ItemNameMaxLength, false)
	if nameOK && utf8.RuneCountInString(name) < ItemNameMinLength {
		errs.add("name", msgNameTooShort)
	}
	item.Name = name

	desc, descOK := lookup(f, "description", true, errs).str(0, false)
	item.Description = desc

	if price, ok := lookup(f, "price", true, errs).decimal(PriceMaxDigits, PriceDecimalPlaces); ok {
		if !price.IsPositive() {
			errs.add("price", msgPricePositive)
		}
		item.Price = price
	}

	if qty, ok := lookup(f, "available_quantity", true, errs).integer(0, MaxAvailableQuantity); ok {
		item.AvailableQuantity = uint32(qty)
	}

	if len(errs) == 0 && nameOK && descOK && item.Name == item.Description {
		errs.add(NonFieldErrors, msgNameIsDesc)
	}
	return item, errs
}

// newMovie builds a Movie from a submitted field set. With base set, the call is a partial
// update: absent fields keep the values of base.
func newMovie(f Fields, base *entity.Movie) (entity.Movie, FieldErrors) {
	errs := FieldErrors{}
	if f == nil {
		errs.add(NonFieldErrors, fmt.Sprintf(msgNotObject, "a non-object value"))
		return entity.Movie{}, errs
	}
	rejectUnknown(f, errs, []string{"id"}, "title", "release_date", "genre", "director")

	required := base == nil
	var m entity.Movie
	if base != nil {
		m = *base
	}
	if v, ok := lookup(f, "title", required, errs).str(MovieTitleMaxLength, false); ok {
		m.Title = v
	}
	if v, ok := lookup(f, "release_date", required, errs).date(); ok {
		m.ReleaseDate = v
	}
	if v, ok := lookup(f, "genre", required, errs).str(MovieGenreMaxLength, false); ok {
		m.Genre = v
	}
	if v, ok := lookup(f, "director", required, errs).str(MovieDirectorMaxLength, false); ok {
		m.Director = v
	}

	if len(errs) == 0 && m.Title == m.Genre {
		errs.add(NonFieldErrors, msgTitleIsGenre)
	}
	return m, errs
}
