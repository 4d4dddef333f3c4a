package api

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func mustPayload(t *testing.T, body string) Payload {
	t.Helper()
	p, err := DecodePayload([]byte(body))
	require.NoError(t, err)
	return p
}

func TestDecodePayload(t *testing.T) {
	p := mustPayload(t, "  \n{\"name\":\"pen\"}")
	assert.Equal(t, PayloadSingle, p.Kind)
	assert.Contains(t, p.Single, "name")

	p = mustPayload(t, `[{"name":"pen"}, 3, {"name":"cup"}]`)
	require.Equal(t, PayloadMany, p.Kind)
	require.Len(t, p.Many, 3)
	assert.Nil(t, p.Many[1])
	assert.NotNil(t, p.Many[2])

	_, err := DecodePayload([]byte(`[]`))
	assert.ErrorIs(t, err, ErrEmptyList)
	_, err = DecodePayload([]byte(`true`))
	assert.ErrorIs(t, err, ErrWrongShape)
	_, err = DecodePayload([]byte(`[{"name":`))
	assert.Error(t, err)
}

func TestNewItem(t *testing.T) {
	cases := []struct {
		name  string
		body  string
		field string
		want  string
	}{
		{"missing price", `{"name":"pen","description":"ink","available_quantity":1}`, "price", msgRequired},
		{"zero price", `{"name":"pen","description":"ink","price":0,"available_quantity":1}`, "price", msgPricePositive},
		{"negative price", `{"name":"pen","description":"ink","price":"-1.00","available_quantity":1}`, "price", msgPricePositive},
		{"price not a number", `{"name":"pen","description":"ink","price":"cheap","available_quantity":1}`, "price", msgInvalidNumber},
		{"too many places", `{"name":"pen","description":"ink","price":"1.005","available_quantity":1}`, "price", "Ensure that there are no more than 2 decimal places."},
		{"too many digits", `{"name":"pen","description":"ink","price":"1234567890.5","available_quantity":1}`, "price", "Ensure that there are no more than 10 digits in total."},
		{"too many whole digits", `{"name":"pen","description":"ink","price":"123456789","available_quantity":1}`, "price", "Ensure that there are no more than 8 digits before the decimal point."},
		{"short name", `{"name":"p","description":"ink","price":1,"available_quantity":1}`, "name", msgNameTooShort},
		{"blank name", `{"name":"  ","description":"ink","price":1,"available_quantity":1}`, "name", msgBlank},
		{"null description", `{"name":"pen","description":null,"price":1,"available_quantity":1}`, "description", msgNull},
		{"negative quantity", `{"name":"pen","description":"ink","price":1,"available_quantity":-1}`, "available_quantity", "Ensure this value is greater than or equal to 0."},
		{"fractional quantity", `{"name":"pen","description":"ink","price":1,"available_quantity":1.5}`, "available_quantity", msgInvalidInt},
		{"huge quantity", `{"name":"pen","description":"ink","price":1,"available_quantity":2147483648}`, "available_quantity", "Ensure this value is less than or equal to 2147483647."},
		{"unknown field", `{"name":"pen","description":"ink","price":1,"available_quantity":1,"colour":"red"}`, "colour", msgUnknown},
		{"same text", `{"name":"pen","description":"pen","price":1,"available_quantity":1}`, NonFieldErrors, msgNameIsDesc},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, errs := newItem(mustPayload(t, tc.body).Single)
			assert.Contains(t, errs[tc.field], tc.want, "%v", errs)
		})
	}
}

func TestNewItem_Valid(t *testing.T) {
	item, errs := newItem(mustPayload(t, `{"id":99,"name":" pen ","description":"ink","price":"12.5","available_quantity":"3"}`).Single)
	require.Empty(t, errs)
	assert.Zero(t, item.ID)
	assert.Equal(t, "pen", item.Name)
	assert.Equal(t, "12.50", item.Price.StringFixed(2))
	assert.Equal(t, uint32(3), item.AvailableQuantity)
}

func TestNewItem_CrossFieldWaitsForFieldChecks(t *testing.T) {
	_, errs := newItem(mustPayload(t, `{"name":"pen","description":"pen","price":0,"available_quantity":1}`).Single)
	assert.Contains(t, errs, "price")
	assert.NotContains(t, errs, NonFieldErrors)
}

func TestNewMovie_Partial(t *testing.T) {
	base, errs := newMovie(mustPayload(t, `{"title":"Heat","release_date":"1995-12-15","genre":"Crime","director":"Michael Mann"}`).Single, nil)
	require.Empty(t, errs)

	m, errs := newMovie(mustPayload(t, `{"director":"M. Mann"}`).Single, &base)
	require.Empty(t, errs)
	assert.Equal(t, "Heat", m.Title)
	assert.Equal(t, "M. Mann", m.Director)
	assert.Equal(t, "1995-12-15", m.ReleaseDate.String())

	_, errs = newMovie(mustPayload(t, `{"genre":"Heat"}`).Single, &base)
	assert.Equal(t, []string{msgTitleIsGenre}, errs[NonFieldErrors])

	_, errs = newMovie(mustPayload(t, `{"genre":"abcdefghijabcdefghijabcdefghijabcdefghijabcdefghijX"}`).Single, &base)
	assert.Contains(t, errs, "genre")
}
