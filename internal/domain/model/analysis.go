// Package model contains the wire models exchanged with the analysis service.
package model

import (
	"bytes"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"image"
	"io"
	"strings"
	"time"

	// Echoed images arrive as JPEG or PNG.
	_ "image/jpeg"
	_ "image/png"

	"github.com/okian/skincheck/internal/domain/flow"
)

// AnalysisResponse is the JSON body returned by the analysis service.
// Fields mirror the service contract; anything else is rejected.
type AnalysisResponse struct {
	ID         string     `json:"id,omitempty"`
	AnalyzedAt *time.Time `json:"analyzed_at,omitempty"`
	RiskLevel  string     `json:"risk_level"`
	Asymmetry  string     `json:"asymmetry"`
	Border     string     `json:"border"`
	Color      string     `json:"color"`
	Notes      string     `json:"notes"`
	Image      string     `json:"image,omitempty"` // base64 JPEG or PNG
}

// DecodeAnalysisResponse reads exactly one response object from r.
// Unknown fields, trailing data, and missing required fields are errors.
func DecodeAnalysisResponse(r io.Reader) (AnalysisResponse, error) {
	var resp AnalysisResponse
	dec := json.NewDecoder(r)
	dec.DisallowUnknownFields()
	if err := dec.Decode(&resp); err != nil {
		return AnalysisResponse{}, fmt.Errorf("%w: %w", ErrMalformed, err)
	}
	if _, err := dec.Token(); !errors.Is(err, io.EOF) {
		return AnalysisResponse{}, fmt.Errorf("%w: trailing data", ErrMalformed)
	}
	if err := resp.Validate(); err != nil {
		return AnalysisResponse{}, err
	}
	return resp, nil
}

// Validate reports the required fields that are missing or blank.
func (r AnalysisResponse) Validate() error {
	var missing []string
	for _, f := range []struct {
		name, value string
	}{
		{"risk_level", r.RiskLevel},
		{"asymmetry", r.Asymmetry},
		{"border", r.Border},
		{"color", r.Color},
		{"notes", r.Notes},
	} {
		if strings.TrimSpace(f.value) == "" {
			missing = append(missing, f.name)
		}
	}
	if len(missing) > 0 {
		return fmt.Errorf("%w: %s", ErrMissingField, strings.Join(missing, ", "))
	}
	return nil
}

// Outcome converts the response into a flow outcome, decoding the echoed image.
func (r AnalysisResponse) Outcome() (flow.Outcome, error) {
	out := flow.Outcome{
		ID:        r.ID,
		RiskLevel: r.RiskLevel,
		Asymmetry: r.Asymmetry,
		Border:    r.Border,
		Color:     r.Color,
		Notes:     r.Notes,
	}
	if r.AnalyzedAt != nil {
		out.AnalyzedAt = *r.AnalyzedAt
	}
	if r.Image != "" {
		raw, err := base64.StdEncoding.DecodeString(r.Image)
		if err != nil {
			return flow.Outcome{}, fmt.Errorf("%w: image: %w", ErrMalformed, err)
		}
		img, _, err := image.Decode(bytes.NewReader(raw))
		if err != nil {
			return flow.Outcome{}, fmt.Errorf("%w: image: %w", ErrMalformed, err)
		}
		out.Image = img
	}
	return out, nil
}

// FromOutcome builds the wire form of an outcome. The image is not echoed.
func FromOutcome(o flow.Outcome) AnalysisResponse {
	resp := AnalysisResponse{
		ID:        o.ID,
		RiskLevel: o.RiskLevel,
		Asymmetry: o.Asymmetry,
		Border:    o.Border,
		Color:     o.Color,
		Notes:     o.Notes,
	}
	if !o.AnalyzedAt.IsZero() {
		t := o.AnalyzedAt
		resp.AnalyzedAt = &t
	}
	return resp
}
