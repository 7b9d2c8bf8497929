package sources

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSanitizeNumericLiterals(t *testing.T) {
	cases := []struct {
		name string
		in   string
		want string
	}{
		{name: "nan", in: `{"a": NaN}`, want: `{"a": null}`},
		{name: "no space", in: `{"a":NaN,"b":1}`, want: `{"a":null,"b":1}`},
		{name: "infinity", in: `{"a": Infinity, "b": -Infinity}`, want: `{"a": null, "b": null}`},
		{name: "quoted value untouched", in: `{"a": "NaN"}`, want: `{"a": "NaN"}`},
		{name: "identifier prefix untouched", in: `{"a": NaNa}`, want: `{"a": NaNa}`},
		{name: "clean payload", in: `{"a": 1.5}`, want: `{"a": 1.5}`},
		{name: "colon inside string untouched", in: `{"street": "Rua Ponto: NaN", "bairro": "x:Infinity"}`, want: `{"street": "Rua Ponto: NaN", "bairro": "x:Infinity"}`},
		{name: "escaped quote inside string", in: `{"a": "say \": NaN", "b": NaN}`, want: `{"a": "say \": NaN", "b": null}`},
		{name: "array elements", in: `{"v": [NaN, 1, -Infinity,Infinity]}`, want: `{"v": [null, 1, null,null]}`},
		{name: "newline before value", in: "{\"a\":\n  NaN}", want: "{\"a\":\n  null}"},
		{name: "key named NaN untouched", in: `{"NaN": 1}`, want: `{"NaN": 1}`},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, string(SanitizeNumericLiterals([]byte(tc.in))))
		})
	}
}

func TestParseEnvelope(t *testing.T) {
	env, err := parseEnvelope([]byte(`{"data": [{"street": "Rua A", "total_built_area_m2": NaN}], "total_records": 12}`))
	require.NoError(t, err)
	require.Len(t, env.Data, 1)
	assert.Equal(t, "Rua A", env.Data[0]["street"])
	assert.Nil(t, env.Data[0]["total_built_area_m2"])
	assert.Equal(t, 12, env.total())
}

func TestParseEnvelope_KeepsStringTextAndNullsArrayValues(t *testing.T) {
	env, err := parseEnvelope([]byte(`{"data": [{"street": "Rua Ponto: NaN", "bairro": "x:Infinity", "v": [NaN, 1]}]}`))
	require.NoError(t, err)
	require.Len(t, env.Data, 1)

	assert.Equal(t, "Rua Ponto: NaN", env.Data[0]["street"])
	assert.Equal(t, "x:Infinity", env.Data[0]["bairro"])
	assert.Equal(t, []any{nil, json.Number("1")}, env.Data[0]["v"])
}

func TestParseEnvelope_DoubleEncoded(t *testing.T) {
	inner := `{"data": [{"street": "Rua B", "total_transaction_value": 250000.5}], "total_records": 1}`
	body, err := json.Marshal(inner)
	require.NoError(t, err)

	env, err := parseEnvelope(body)
	require.NoError(t, err)
	require.Len(t, env.Data, 1)
	assert.Equal(t, json.Number("250000.5"), env.Data[0]["total_transaction_value"])
	assert.Equal(t, 1, env.total())
}

func TestParseEnvelope_MissingTotal(t *testing.T) {
	env, err := parseEnvelope([]byte(`{"data": []}`))
	require.NoError(t, err)
	assert.Empty(t, env.Data)
	assert.Zero(t, env.total())
}

func TestParseEnvelope_Errors(t *testing.T) {
	cases := []struct {
		name string
		body string
		want error
	}{
		{name: "empty", body: "  \n", want: errEmptyBody},
		{name: "empty inner string", body: `""`, want: errEmptyBody},
		{name: "not json", body: `<html></html>`, want: errEnvelope},
		{name: "array", body: `[1, 2]`, want: errEnvelope},
		{name: "inner not json", body: `"oops"`, want: errEnvelope},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := parseEnvelope([]byte(tc.body))
			assert.ErrorIs(t, err, tc.want)
		})
	}
}
