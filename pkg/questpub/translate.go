package questpub

import (
	"bytes"
	"encoding/xml"
	"errors"
	"fmt"
	"io"
)

// XMLTranslator derives quest metadata from the attributes of a quest
// document's root element, e.g.
//
//	<quest title="The Lost Crypt" minplayers="2" maxplayers="5">…</quest>
type XMLTranslator struct {
	// RootElement is the expected root tag; defaults to "quest".
	RootElement string
}

// NewXMLTranslator creates a translator for <quest> documents.
func NewXMLTranslator() *XMLTranslator {
	return &XMLTranslator{RootElement: "quest"}
}

// Translate implements Translator.
func (t *XMLTranslator) Translate(content []byte) (*Quest, error) {
	attrs, err := t.RootAttributes(content)
	if err != nil {
		return nil, err
	}
	return ValidateAttributes(attrs)
}

// RootAttributes returns the root element's attributes keyed by local name.
func (t *XMLTranslator) RootAttributes(content []byte) (map[string]string, error) {
	root := t.RootElement
	if root == "" {
		root = "quest"
	}

	dec := xml.NewDecoder(bytes.NewReader(content))
	for {
		tok, err := dec.Token()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, invalidDocument(fmt.Sprintf("malformed xml: %v", err))
		}
		start, ok := tok.(xml.StartElement)
		if !ok {
			continue
		}
		if start.Name.Local != root {
			return nil, invalidDocument(fmt.Sprintf("root element is <%s>, expected <%s>", start.Name.Local, root))
		}
		attrs := make(map[string]string, len(start.Attr))
		for _, a := range start.Attr {
			if a.Name.Space == "xmlns" || a.Name.Local == "xmlns" {
				continue
			}
			attrs[a.Name.Local] = a.Value
		}
		return attrs, nil
	}
	return nil, invalidDocument(fmt.Sprintf("no <%s> element", root))
}

func invalidDocument(msg string) error {
	verr := &ValidationError{}
	verr.Add("content", FieldInvalid, msg)
	return verr
}

// TranslatorFunc adapts a function to the Translator interface.
type TranslatorFunc func(content []byte) (*Quest, error)

// Translate implements Translator.
func (f TranslatorFunc) Translate(content []byte) (*Quest, error) {
	return f(content)
}
