package questpub_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/questlore/questpub/pkg/questpub"
)

const questXML = `<?xml version="1.0" encoding="UTF-8"?>
<!-- exported -->
<quest xmlns="http://questlore.example/schema" title="The Lost Crypt" summary="Delve below."
       minplayers="2" maxplayers="5" mintimeminutes="60">
  <room id="1"/>
</quest>`

func TestXMLTranslator_Translate(t *testing.T) {
	q, err := questpub.NewXMLTranslator().Translate([]byte(questXML))
	require.NoError(t, err)
	assert.Equal(t, "The Lost Crypt", q.Title)
	assert.Equal(t, "Delve below.", q.Summary)
	assert.Equal(t, 2, q.MinPlayers)
	assert.Equal(t, 5, q.MaxPlayers)
	require.NotNil(t, q.MinTimeMinutes)
	assert.Equal(t, 60, *q.MinTimeMinutes)
	assert.Empty(t, q.ID, "engine fields are not taken from content")
}

func TestXMLTranslator_Errors(t *testing.T) {
	tests := []struct {
		name    string
		content string
		field   string
		kind    questpub.FieldErrorKind
	}{
		{"wrong root", `<adventure title="x"/>`, "content", questpub.FieldInvalid},
		{"malformed", `<quest title="x"`, "content", questpub.FieldInvalid},
		{"no element", `<!-- nothing -->`, "content", questpub.FieldInvalid},
		{"missing title", `<quest minplayers="1" maxplayers="2"/>`, "title", questpub.FieldMissing},
		{"unknown attribute", `<quest title="t" minplayers="1" maxplayers="2" difficulty="hard"/>`, "difficulty", questpub.FieldUnknown},
		{"out of range", `<quest title="t" minplayers="1" maxplayers="99"/>`, "maxplayers", questpub.FieldInvalid},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := questpub.NewXMLTranslator().Translate([]byte(tt.content))
			require.Error(t, err)
			assert.Equal(t, tt.kind, kinds(t, err)[tt.field])
		})
	}
}

func TestXMLTranslator_CustomRoot(t *testing.T) {
	tr := &questpub.XMLTranslator{RootElement: "adventure"}
	attrs, err := tr.RootAttributes([]byte(`<adventure title="x"/>`))
	require.NoError(t, err)
	assert.Equal(t, map[string]string{"title": "x"}, attrs)
}
