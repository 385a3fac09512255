package model

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestValue_Text(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name  string
		value Value
		want  string
	}{
		{"null", Null(), ""},
		{"string trimmed", String("  Acme  "), "Acme"},
		{"integral number", Number(5554443333), "5554443333"},
		{"fractional number", Number(1.5), "1.5"},
		{"bool", Bool(true), "true"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.value.Text())
		})
	}
}

func TestText_BlankIsNull(t *testing.T) {
	t.Parallel()

	assert.True(t, Text("   ").IsNull())
	assert.Equal(t, KindString, Text("x").Kind())
}

func TestFields_JSON(t *testing.T) {
	t.Parallel()

	in := Fields{
		"Company": String("Acme"),
		"Phone":   Number(5551112222),
		"Active":  Bool(false),
		"Notes":   Null(),
	}
	data, err := json.Marshal(in)
	require.NoError(t, err)

	var out Fields
	require.NoError(t, json.Unmarshal(data, &out))
	assert.Equal(t, in, out)
	assert.True(t, out.Get("missing").IsNull())
}

func TestValue_UnmarshalRejectsObjects(t *testing.T) {
	t.Parallel()

	var v Value
	err := json.Unmarshal([]byte(`{"a":1}`), &v)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "scalar")
}

func TestRowBucket_Statuses(t *testing.T) {
	t.Parallel()

	s, ok := BucketErrors.Statuses()
	require.True(t, ok)
	assert.Equal(t, []RowStatus{RowStatusError}, s)

	s, ok = BucketAll.Statuses()
	require.True(t, ok)
	assert.Nil(t, s)

	_, ok = RowBucket("bogus").Statuses()
	assert.False(t, ok)
}

func TestLead_SetFieldRoundTrip(t *testing.T) {
	t.Parallel()

	var l Lead
	for _, f := range LeadFields {
		require.True(t, l.SetField(f, "v-"+f))
		assert.Equal(t, "v-"+f, l.Field(f))
	}
	assert.False(t, l.SetField("favorite_color", "blue"))
	assert.Equal(t, "v-email", l.Fields().Text(FieldEmail))
}

func TestImportRun_Balanced(t *testing.T) {
	t.Parallel()

	r := &ImportRun{TotalRows: 3, Counts: RunCounts{Processed: 3, Created: 1, HardDuplicate: 1, Error: 1}}
	assert.True(t, r.Balanced())
	assert.True(t, r.Done())

	r.Counts.Created = 2
	assert.False(t, r.Balanced())
}
