package solver

import (
	"testing"

	"quizsolver/internal/scorer"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func mustPayload(t *testing.T, raw string) scorer.Payload {
	t.Helper()
	p, err := scorer.ParsePayload([]byte(raw))
	require.NoError(t, err)
	return p
}

func TestNormalize(t *testing.T) {
	tests := []struct {
		name string
		raw  string
		want Verdict
	}{
		{"null", `null`, Unknown},
		{"string one", `"1"`, Correct},
		{"number one", `1`, Correct},
		{"string zero", `"0"`, Incorrect},
		{"number zero", `0`, Incorrect},
		{"other scalar", `"yes"`, Unknown},
		{"bool", `true`, Unknown},
		{"keyed correct", `{"q7": "1", "q8": "0"}`, Correct},
		{"keyed incorrect", `{"q8": "1", "q7": 0}`, Incorrect},
		{"keyed ambiguous does not scan siblings", `{"q8": "1", "q7": "maybe"}`, Unknown},
		{"keyed null", `{"q8": "1", "q7": null}`, Unknown},
		{"keyed nested mapping", `{"q7": {"status": "1"}}`, Unknown},
		{"keyed nested sequence", `{"q7": ["1"]}`, Unknown},
		{"keyed nested keyed", `{"q7": {"q8": "0"}}`, Unknown},
		{"unkeyed scans in order", `{"x": "n/a", "y": 0, "z": "1"}`, Incorrect},
		{"unkeyed skips nested values", `{"x": {"q7": "1"}, "y": "1"}`, Correct},
		{"unkeyed nothing usable", `{"x": "n/a"}`, Unknown},
		{"empty mapping", `{}`, Unknown},
		{"sequence first bit", `["n/a", "1", "0"]`, Correct},
		{"sequence numeric", `[0]`, Incorrect},
		{"sequence nothing usable", `[["1"], {"a": 1}]`, Unknown},
		{"empty sequence", `[]`, Unknown},
		{"unrelated object", `{"message": "ok", "code": 200}`, Unknown},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := mustPayload(t, tt.raw)
			got := Normalize(p, "q7")
			assert.Equal(t, tt.want, got)
			assert.Equal(t, got, Normalize(p, "q7"), "normalize must be idempotent")
		})
	}
}

func TestNormalize_NilAndAbsent(t *testing.T) {
	assert.Equal(t, Unknown, Normalize(nil, "q"))
	assert.Equal(t, Unknown, Normalize(scorer.Absent{}, "q"))
}

func TestVerdictString(t *testing.T) {
	assert.Equal(t, "correct", Correct.String())
	assert.Equal(t, "incorrect", Incorrect.String())
	assert.Equal(t, "unknown", Unknown.String())
}
