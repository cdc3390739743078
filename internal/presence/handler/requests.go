package handler

import (
	"strings"

	"cloud.google.com/go/civil"

	"residency/internal/presence/models"
	id "residency/pkg/domain"
	dErrors "residency/pkg/domain-errors"
	pstrings "residency/pkg/platform/strings"
)

// GenerateReportRequest is the body of POST /v1/users/{userID}/reports.
type GenerateReportRequest struct {
	From           string   `json:"from"`
	To             string   `json:"to"`
	Attribution    string   `json:"attribution"`
	Timezone       string   `json:"timezone,omitempty"`
	RuleSet        string   `json:"rule_set,omitempty"`
	RuleSetVersion string   `json:"rule_set_version,omitempty"`
	Jurisdictions  []string `json:"jurisdictions,omitempty"`

	from          civil.Date
	to            civil.Date
	attribution   models.Attribution
	jurisdictions []id.Jurisdiction
}

// Validate parses the request fields.
func (r *GenerateReportRequest) Validate() error {
	var err error
	if r.from, err = civil.ParseDate(strings.TrimSpace(r.From)); err != nil {
		return dErrors.New(dErrors.CodeValidation, "from must be a YYYY-MM-DD date")
	}
	if r.to, err = civil.ParseDate(strings.TrimSpace(r.To)); err != nil {
		return dErrors.New(dErrors.CodeValidation, "to must be a YYYY-MM-DD date")
	}
	if r.Attribution == "" {
		r.attribution = models.AttributionMidnight
	} else if r.attribution, err = models.ParseAttribution(r.Attribution); err != nil {
		return err
	}
	r.jurisdictions = nil
	for _, j := range pstrings.DedupeAndTrimUpper(r.Jurisdictions) {
		parsed, err := id.ParseJurisdiction(j)
		if err != nil {
			return dErrors.Wrap(err, dErrors.CodeValidation, "invalid jurisdiction: "+j)
		}
		r.jurisdictions = append(r.jurisdictions, parsed)
	}
	return nil
}

// ResolveConflictRequest is the body of the conflict-resolution callback.
type ResolveConflictRequest struct {
	Resolution string `json:"resolution"`
	Country    string `json:"country"`

	country id.CountryCode
}

// Validate accepts only user overrides naming a country.
func (r *ResolveConflictRequest) Validate() error {
	if r.Resolution != string(models.ResolutionUserOverride) {
		return dErrors.New(dErrors.CodeValidation, "resolution must be user_override")
	}
	c, err := id.ParseCountryCode(r.Country)
	if err != nil {
		return dErrors.Wrap(err, dErrors.CodeValidation, "invalid country")
	}
	r.country = c
	return nil
}
