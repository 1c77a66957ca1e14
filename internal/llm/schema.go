package llm

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/santhosh-tekuri/jsonschema/v5"

	"github.com/spherical/flyer-extractor/internal/domain"
)

// productsKey is the list key the prompt asks the model to answer with.
const productsKey = "prodotti"

const envelopeSchema = `{
  "type": "object",
  "required": ["prodotti"],
  "properties": {
    "prodotti": {"type": "array"}
  }
}`

var compiledEnvelope = mustCompile("envelope.json", envelopeSchema)

func mustCompile(name, schema string) *jsonschema.Schema {
	compiler := jsonschema.NewCompiler()
	if err := compiler.AddResource(name, strings.NewReader(schema)); err != nil {
		panic(fmt.Sprintf("add schema %s: %v", name, err))
	}
	return compiler.MustCompile(name)
}

// StripCodeFence removes an optional ```json / ``` wrapping around model output.
func StripCodeFence(text string) string {
	cleaned := strings.TrimSpace(text)
	if strings.HasPrefix(cleaned, "```json") {
		cleaned = cleaned[len("```json"):]
	} else if strings.HasPrefix(cleaned, "```") {
		cleaned = cleaned[len("```"):]
	}
	cleaned = strings.TrimSuffix(strings.TrimSpace(cleaned), "```")
	return strings.TrimSpace(cleaned)
}

// errSchema marks a payload that is valid JSON without a products list.
type errSchema struct{ err error }

func (e errSchema) Error() string { return "response does not match schema: " + e.err.Error() }
func (e errSchema) Unwrap() error { return e.err }

// ParseProducts decodes the model text into raw products.
// Invalid JSON is a malformed response (retryable); valid JSON without a
// "prodotti" array is a schema mismatch (not retryable). Items that are not
// objects are returned in skipped rather than failing the whole page.
func ParseProducts(text string) (products []domain.RawProduct, skipped int, err error) {
	cleaned := StripCodeFence(text)

	var payload any
	dec := json.NewDecoder(bytes.NewReader([]byte(cleaned)))
	dec.UseNumber()
	if err := dec.Decode(&payload); err != nil {
		return nil, 0, domain.MalformedResponseError("invalid JSON in model response", err)
	}

	if err := compiledEnvelope.Validate(payload); err != nil {
		return nil, 0, domain.RejectedError("model response has no product list", errSchema{err: err})
	}

	var envelope struct {
		Products []json.RawMessage `json:"prodotti"`
	}
	if err := json.Unmarshal([]byte(cleaned), &envelope); err != nil {
		return nil, 0, domain.MalformedResponseError("decode product list", err)
	}

	products = make([]domain.RawProduct, 0, len(envelope.Products))
	for _, raw := range envelope.Products {
		var p domain.RawProduct
		if err := json.Unmarshal(raw, &p); err != nil {
			skipped++
			continue
		}
		products = append(products, p)
	}
	return products, skipped, nil
}
