package handler

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"testing"
	"time"

	"cloud.google.com/go/civil"
	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/suite"
	"go.uber.org/mock/gomock"

	"residency/internal/presence/conflict"
	"residency/internal/presence/handler/mocks"
	"residency/internal/presence/models"
	"residency/internal/presence/report"
	"residency/internal/presence/rules"
	"residency/internal/presence/service"
	evidencestore "residency/internal/presence/store/evidence"
	id "residency/pkg/domain"
	dErrors "residency/pkg/domain-errors"
	"residency/pkg/testutil"
)

//go:generate mockgen -source=handler.go -destination=mocks/mocks.go -package=mocks Service
type HandlerSuite struct {
	suite.Suite
	service *mocks.MockService
	router  chi.Router
}

const (
	userPath   = "/v1/users/6f1c2a8e-3b1d-4c1a-9a51-2d5c1e7b9f00"
	userString = "6f1c2a8e-3b1d-4c1a-9a51-2d5c1e7b9f00"
)

func TestHandlerSuite(t *testing.T) {
	suite.Run(t, new(HandlerSuite))
}

func (s *HandlerSuite) SetupTest() {
	ctrl := gomock.NewController(s.T())
	s.service = mocks.NewMockService(ctrl)
	h := New(s.service, slog.New(slog.NewTextHandler(io.Discard, nil)), time.Second)
	s.router = chi.NewRouter()
	h.Register(s.router)
}

func mustDate(v string) civil.Date {
	d, err := civil.ParseDate(v)
	if err != nil {
		panic(err)
	}
	return d
}

func (s *HandlerSuite) user() id.UserID {
	u, err := id.ParseUserID(userString)
	s.Require().NoError(err)
	return u
}

// =============================================================================
// Evidence
// =============================================================================

func (s *HandlerSuite) TestPutEvidence() {
	feed := `{"records":[]}`
	s.service.EXPECT().PutEvidence(gomock.Any(), s.user(), []byte(feed)).Return(&evidencestore.Snapshot{
		ID:        "ev-1",
		CreatedAt: time.Date(2024, 4, 1, 0, 0, 0, 0, time.UTC),
	}, nil)

	rr := testutil.DoRequest(s.router, testutil.NewRequestWithBody(s.T(), http.MethodPut, userPath+"/evidence", feed))

	testutil.AssertStatusOK(s.T(), rr)
	resp := testutil.UnmarshalResponse[SnapshotResponse](s.T(), rr)
	s.Equal(id.SnapshotID("ev-1"), resp.SnapshotID)
	s.NotEmpty(rr.Header().Get("X-Request-ID"))
}

func (s *HandlerSuite) TestPutEvidenceRejectedBySchema() {
	s.service.EXPECT().PutEvidence(gomock.Any(), gomock.Any(), gomock.Any()).
		Return(nil, dErrors.New(dErrors.CodeValidation, "evidence feed does not match schema"))

	rr := testutil.DoRequest(s.router, testutil.NewRequestWithBody(s.T(), http.MethodPut, userPath+"/evidence", `{}`))
	testutil.AssertStatusAndError(s.T(), rr, http.StatusBadRequest, string(dErrors.CodeValidation))
}

func (s *HandlerSuite) TestBadUserID() {
	rr := testutil.DoRequest(s.router, testutil.NewRequestWithBody(s.T(), http.MethodPut, "/v1/users/not-a-uuid/evidence", `{}`))
	testutil.AssertStatusAndError(s.T(), rr, http.StatusBadRequest, string(dErrors.CodeInvalidInput))
}

// =============================================================================
// Reports
// =============================================================================

func (s *HandlerSuite) TestGenerateReport() {
	s.service.EXPECT().GenerateReport(gomock.Any(), service.ReportRequest{
		UserID:        s.user(),
		From:          mustDate("2024-01-01"),
		To:            mustDate("2024-06-30"),
		Attribution:   models.AttributionAnyPresence,
		Timezone:      "Europe/Lisbon",
		Jurisdictions: []id.Jurisdiction{{Zone: "SCHENGEN"}, {Country: "PT"}},
	}).Return(&report.UniversalReport{Fingerprint: "abc"}, nil)

	rr := testutil.DoRequest(s.router, testutil.NewJSONRequest(s.T(), http.MethodPost, userPath+"/reports", GenerateReportRequest{
		From:          "2024-01-01",
		To:            "2024-06-30",
		Attribution:   "any_presence",
		Timezone:      "Europe/Lisbon",
		Jurisdictions: []string{"schengen", "pt", " PT "},
	}))

	testutil.AssertStatusOK(s.T(), rr)
	testutil.AssertJSONContains(s.T(), rr, "fingerprint", "abc")
}

func (s *HandlerSuite) TestGenerateReportDefaultsToMidnight() {
	var got service.ReportRequest
	s.service.EXPECT().GenerateReport(gomock.Any(), gomock.Any()).DoAndReturn(
		func(_ context.Context, req service.ReportRequest) (*report.UniversalReport, error) {
			got = req
			return &report.UniversalReport{}, nil
		})

	rr := testutil.DoRequest(s.router, testutil.NewRequestWithBody(s.T(), http.MethodPost, userPath+"/reports",
		`{"from":"2024-01-01","to":"2024-01-31"}`))
	testutil.AssertStatusOK(s.T(), rr)
	s.Equal(models.AttributionMidnight, got.Attribution)
	s.Nil(got.Jurisdictions)
}

func (s *HandlerSuite) TestGenerateReportValidation() {
	tests := []struct {
		name string
		body string
		code dErrors.Code
	}{
		{"empty body", ``, dErrors.CodeBadRequest},
		{"unknown field", `{"from":"2024-01-01","to":"2024-01-31","colour":"red"}`, dErrors.CodeBadRequest},
		{"bad date", `{"from":"01/01/2024","to":"2024-01-31"}`, dErrors.CodeValidation},
		{"bad policy", `{"from":"2024-01-01","to":"2024-01-31","attribution":"noon"}`, dErrors.CodeValidation},
		{"bad jurisdiction", `{"from":"2024-01-01","to":"2024-01-31","jurisdictions":["x"]}`, dErrors.CodeValidation},
	}
	for _, tt := range tests {
		s.Run(tt.name, func() {
			rr := testutil.DoRequest(s.router, testutil.NewRequestWithBody(s.T(), http.MethodPost, userPath+"/reports", tt.body))
			testutil.AssertStatusAndError(s.T(), rr, http.StatusBadRequest, string(tt.code))
		})
	}
}

func (s *HandlerSuite) TestGenerateReportErrorsMapToStatus() {
	tests := []struct {
		name   string
		err    error
		status int
	}{
		{"missing evidence", dErrors.New(dErrors.CodeNotFound, "no evidence stored for user"), http.StatusNotFound},
		{"timeout", context.DeadlineExceeded, http.StatusGatewayTimeout},
		{"internal", dErrors.New(dErrors.CodeInternal, "secret detail"), http.StatusInternalServerError},
	}
	for _, tt := range tests {
		s.Run(tt.name, func() {
			s.service.EXPECT().GenerateReport(gomock.Any(), gomock.Any()).Return(nil, tt.err)
			rr := testutil.DoRequest(s.router, testutil.NewRequestWithBody(s.T(), http.MethodPost, userPath+"/reports",
				`{"from":"2024-01-01","to":"2024-01-31"}`))
			testutil.AssertStatus(s.T(), rr, tt.status)
			s.NotContains(rr.Body.String(), "secret detail")
		})
	}
}

// =============================================================================
// Conflict resolution
// =============================================================================

func (s *HandlerSuite) TestResolveConflict() {
	cid := id.NewConflictID("c-1")
	s.service.EXPECT().ResolveConflict(gomock.Any(), s.user(), cid, id.CountryCode("FR")).Return(conflict.Override{
		ConflictID: cid, Date: mustDate("2024-03-04"), Country: "FR",
	}, nil)

	rr := testutil.DoRequest(s.router, testutil.NewJSONRequest(s.T(), http.MethodPost,
		userPath+"/conflicts/"+cid.String()+"/resolve",
		ResolveConflictRequest{Resolution: "user_override", Country: "fr"}))

	testutil.AssertStatusOK(s.T(), rr)
	testutil.AssertJSONContains(s.T(), rr, "country", "FR")
}

func (s *HandlerSuite) TestResolveConflictRejectsOtherResolutions() {
	cid := id.NewConflictID("c-1")
	rr := testutil.DoRequest(s.router, testutil.NewJSONRequest(s.T(), http.MethodPost,
		userPath+"/conflicts/"+cid.String()+"/resolve",
		ResolveConflictRequest{Resolution: "automatic", Country: "FR"}))
	testutil.AssertStatusAndError(s.T(), rr, http.StatusBadRequest, string(dErrors.CodeValidation))
}

func (s *HandlerSuite) TestResolveConflictBadID() {
	rr := testutil.DoRequest(s.router, testutil.NewJSONRequest(s.T(), http.MethodPost,
		userPath+"/conflicts/nope/resolve",
		ResolveConflictRequest{Resolution: "user_override", Country: "FR"}))
	testutil.AssertStatus(s.T(), rr, http.StatusBadRequest)
}

// =============================================================================
// Catalog
// =============================================================================

func (s *HandlerSuite) TestCountries() {
	s.service.EXPECT().AvailableCountries(gomock.Any()).Return([]id.CountryCode{"FR", "PT"}, nil)

	rr := testutil.DoRequest(s.router, testutil.NewRequest(s.T(), http.MethodGet, "/v1/countries"))
	testutil.AssertStatusOK(s.T(), rr)
	resp := testutil.UnmarshalResponse[CountriesResponse](s.T(), rr)
	s.Equal([]id.CountryCode{"FR", "PT"}, resp.Countries)
}

func (s *HandlerSuite) TestCountryRules() {
	s.service.EXPECT().CountryRules(gomock.Any(), id.CountryCode("PT")).Return([]rules.CountryRule{}, nil)

	rr := testutil.DoRequest(s.router, testutil.NewRequest(s.T(), http.MethodGet, "/v1/countries/pt/rules"))
	testutil.AssertStatusOK(s.T(), rr)
	s.JSONEq(`{"country":"PT","rules":[]}`, rr.Body.String())
}

func (s *HandlerSuite) TestCountryRulesUnknownCode() {
	rr := testutil.DoRequest(s.router, testutil.NewRequest(s.T(), http.MethodGet, "/v1/countries/qq/rules"))
	testutil.AssertStatusAndError(s.T(), rr, http.StatusNotFound, string(dErrors.CodeNotFound))
}
