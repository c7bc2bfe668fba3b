package perception

import (
	"fmt"
	"regexp"
	"strings"

	json "github.com/json-iterator/go"
	"go.uber.org/zap"

	"github.com/veskora/screenpilot/api/schemas"
)

// A regex to robustly extract a JSON object from a markdown code block.
var jsonBlockRegex = regexp.MustCompile(fmt.Sprintf("(?s)%s(?:json)?\\s*(.*?)\\s*%s", "```", "```"))

// ExtractJSON pulls the JSON payload out of a model response, tolerating
// markdown code fences and surrounding prose. The prompts mandate raw JSON
// output, but models do not always honor that.
func ExtractJSON(response string) string {
	response = strings.TrimSpace(response)

	matches := jsonBlockRegex.FindStringSubmatch(response)
	if len(matches) > 1 {
		return strings.TrimSpace(matches[1])
	}

	firstBracket := strings.Index(response, "{")
	lastBracket := strings.LastIndex(response, "}")
	if firstBracket != -1 && lastBracket != -1 && lastBracket > firstBracket {
		return response[firstBracket : lastBracket+1]
	}

	return response
}

// discoveryResponse mirrors the wire format of an element discovery reply.
type discoveryResponse struct {
	Elements []elementRecord `json:"elements"`
}

// elementRecord keeps box_2d raw so one malformed box cannot sink the
// whole response.
type elementRecord struct {
	Label string          `json:"label"`
	Type  string          `json:"type"`
	Box   json.RawMessage `json:"box_2d"`
}

// Parser converts raw discovery responses from the vision model into
// screen elements with pixel coordinates.
type Parser struct {
	logger *zap.Logger
}

// NewParser creates a Parser that logs diagnostics through the given logger.
func NewParser(logger *zap.Logger) *Parser {
	return &Parser{logger: logger.Named("perception")}
}

// Parse decodes a discovery response into elements, converting each
// well-formed box_2d into pixel coordinates for the given screen size.
// It never panics: malformed responses yield an empty slice and an error
// the caller can report. Elements with a missing or malformed box are kept
// without pixel coordinates, and duplicate labels are preserved in order.
func (p *Parser) Parse(raw string, size schemas.ScreenSize) ([]schemas.Element, error) {
	extracted := ExtractJSON(raw)
	if extracted == "" {
		return nil, fmt.Errorf("could not find any JSON in the discovery response")
	}

	var payload discoveryResponse
	if err := json.Unmarshal([]byte(extracted), &payload); err != nil {
		p.logger.Warn("Failed to unmarshal discovery response",
			zap.String("raw_response", raw),
			zap.String("extracted_json", extracted),
			zap.Error(err))
		return nil, fmt.Errorf("failed to unmarshal extracted JSON: %w", err)
	}

	if payload.Elements == nil {
		p.logger.Warn("Discovery response missing 'elements' key",
			zap.String("raw_response", raw))
		return nil, fmt.Errorf("discovery response missing required 'elements' key")
	}

	elements := make([]schemas.Element, 0, len(payload.Elements))
	for _, rec := range payload.Elements {
		element := schemas.Element{
			Label: rec.Label,
			Kind:  schemas.ElementKind(rec.Type),
		}
		if box, ok := decodeBox(rec.Box); ok {
			pixel := box.ToPixelBox(size)
			element.Box = &box
			element.PixelBox = &pixel
		}
		elements = append(elements, element)
	}

	p.logger.Debug("Parsed discovery response",
		zap.Int("element_count", len(elements)),
		zap.String("screen", size.String()))
	return elements, nil
}

// decodeBox accepts only a four-component numeric box. Anything else
// leaves the element un-actionable rather than failing the parse.
func decodeBox(raw json.RawMessage) (schemas.NormalizedBox, bool) {
	if len(raw) == 0 {
		return schemas.NormalizedBox{}, false
	}

	var coords []float64
	if err := json.Unmarshal(raw, &coords); err != nil || len(coords) != 4 {
		return schemas.NormalizedBox{}, false
	}

	var box schemas.NormalizedBox
	copy(box[:], coords)
	return box, true
}
