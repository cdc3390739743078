package evidence

import (
	"bytes"
	_ "embed"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/santhosh-tekuri/jsonschema/v5"

	dErrors "residency/pkg/domain-errors"
)

//go:embed feed_schema.json
var feedSchemaJSON string

const feedSchemaURL = "https://residency.local/schemas/evidence-feed.json"

var (
	feedSchemaOnce sync.Once
	feedSchema     *jsonschema.Schema
	feedSchemaErr  error
)

func compiledFeedSchema() (*jsonschema.Schema, error) {
	feedSchemaOnce.Do(func() {
		c := jsonschema.NewCompiler()
		c.Draft = jsonschema.Draft2020
		if err := c.AddResource(feedSchemaURL, bytes.NewReader([]byte(feedSchemaJSON))); err != nil {
			feedSchemaErr = fmt.Errorf("feed schema load failed: %w", err)
			return
		}
		feedSchema, feedSchemaErr = c.Compile(feedSchemaURL)
	})
	return feedSchema, feedSchemaErr
}

// Feed is the wire form of an evidence submission.
type Feed struct {
	Records []Record `json:"records"`
}

// DecodeFeed checks the feed's structure against the embedded JSON Schema
// and decodes it. Structural problems reject the whole feed; semantic
// problems (unknown countries, inverted ranges) are left to Canonicalize
// so they can be reported per record.
func DecodeFeed(data []byte) (*Feed, error) {
	schema, err := compiledFeedSchema()
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "evidence feed schema unavailable")
	}

	var doc any
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	if err := dec.Decode(&doc); err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeBadRequest, "evidence feed is not valid JSON")
	}
	if err := schema.Validate(doc); err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeValidation, "evidence feed does not match schema")
	}

	var feed Feed
	if err := json.Unmarshal(data, &feed); err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeBadRequest, "evidence feed could not be decoded")
	}
	return &feed, nil
}
