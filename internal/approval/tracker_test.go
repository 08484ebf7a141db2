package approval

import (
	"context"
	"net/url"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/OpenCamTrap/camtrap/internal/apperr"
	"github.com/OpenCamTrap/camtrap/internal/config"
	"github.com/OpenCamTrap/camtrap/internal/esign"
)

func setupTestDB(t *testing.T) (*gorm.DB, sqlmock.Sqlmock) {
	t.Helper()
	sqlDB, mock, err := sqlmock.New()
	assert.NoError(t, err)
	db, err := gorm.Open(postgres.New(postgres.Config{
		Conn:                 sqlDB,
		PreferSimpleProtocol: true,
	}), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	assert.NoError(t, err)
	t.Cleanup(func() { sqlDB.Close() })
	return db, mock
}

type fakeEnvelopes struct {
	envelopes []esign.Envelope
	listErr   error
	formData  map[string]string
	formErr   error
	listCalls int
	formCalls int
}

func (f *fakeEnvelopes) ListEnvelopesByCustomField(ctx context.Context, field, value string, since time.Time) ([]esign.Envelope, error) {
	f.listCalls++
	return f.envelopes, f.listErr
}

func (f *fakeEnvelopes) GetFormData(ctx context.Context, powerFormID, envelopeID string) (map[string]string, error) {
	f.formCalls++
	return f.formData, f.formErr
}

type recordingAction struct {
	calls    int
	formData map[string]string
	err      error
}

func (a *recordingAction) Execute(ctx context.Context, req *Request, formData map[string]string) error {
	a.calls++
	a.formData = formData
	return a.err
}

func testESignConfig() config.ESignConfig {
	return config.ESignConfig{
		TagPowerFormURL:        "https://sign.example.com/powerforms?PowerFormId=pf-tag&env=na4",
		MapPublishPowerFormURL: "https://sign.example.com/powerforms?PowerFormId=pf-map&env=na4",
	}
}

func pendingRequestRows(id, token uuid.UUID) *sqlmock.Rows {
	return sqlmock.NewRows([]string{"id", "kind", "correlation_token", "status", "requested_at"}).
		AddRow(id, "TAG", token, "PENDING", time.Now().UTC().Add(-time.Hour))
}

func TestTracker_Create_MintsTokenAndSigningURL(t *testing.T) {
	db, sqlMock := setupTestDB(t)
	tracker := NewTracker(db, &fakeEnvelopes{}, testESignConfig(), nil)

	sqlMock.ExpectBegin()
	sqlMock.ExpectExec(`INSERT INTO "approval_requests"`).
		WillReturnResult(sqlmock.NewResult(1, 1))
	sqlMock.ExpectCommit()

	subID := uuid.New()
	fields := url.Values{"SPECIES": {"quokka"}, "Description": {"count: 3"}}
	req, signingURL, err := tracker.Create(context.Background(), KindTag, Binding{SubmissionID: &subID}, fields)
	assert.NoError(t, err)
	assert.Equal(t, StatusPending, req.Status)
	assert.NotEqual(t, uuid.Nil, req.CorrelationToken)

	parsed, err := url.Parse(signingURL)
	assert.NoError(t, err)
	query := parsed.Query()
	assert.Equal(t, req.CorrelationToken.String(), query.Get("EnvelopeField_correlation_token"))
	assert.Equal(t, "quokka", query.Get("EnvelopeField_SPECIES"))
	assert.Equal(t, "pf-tag", query.Get("PowerFormId"))
	assert.NoError(t, sqlMock.ExpectationsWereMet())
}

func TestTracker_Poll_UnknownToken(t *testing.T) {
	db, sqlMock := setupTestDB(t)
	tracker := NewTracker(db, &fakeEnvelopes{}, testESignConfig(), nil)

	token := uuid.New()
	sqlMock.ExpectQuery(`SELECT \* FROM "approval_requests" WHERE correlation_token = \$1`).
		WithArgs(token, 1).
		WillReturnRows(sqlmock.NewRows([]string{"id"}))

	_, err := tracker.Poll(context.Background(), token.String())
	assert.True(t, apperr.IsNotFound(err))
}

func TestTracker_Poll_MalformedToken(t *testing.T) {
	db, _ := setupTestDB(t)
	tracker := NewTracker(db, &fakeEnvelopes{}, testESignConfig(), nil)

	_, err := tracker.Poll(context.Background(), "not-a-uuid")
	assert.True(t, apperr.IsValidation(err))
}

func TestTracker_Poll_StillPending(t *testing.T) {
	db, sqlMock := setupTestDB(t)
	envelopes := &fakeEnvelopes{envelopes: []esign.Envelope{{EnvelopeID: "env-1", Status: "sent"}}}
	tracker := NewTracker(db, envelopes, testESignConfig(), nil)

	reqID, token := uuid.New(), uuid.New()
	sqlMock.ExpectQuery(`SELECT \* FROM "approval_requests" WHERE correlation_token = \$1`).
		WithArgs(token, 1).
		WillReturnRows(pendingRequestRows(reqID, token))

	req, err := tracker.Poll(context.Background(), token.String())
	assert.NoError(t, err)
	assert.Equal(t, StatusPending, req.Status)
	assert.Equal(t, 0, envelopes.formCalls)
	assert.NoError(t, sqlMock.ExpectationsWereMet())
}

func TestTracker_Poll_AmbiguousEnvelopes(t *testing.T) {
	db, sqlMock := setupTestDB(t)
	envelopes := &fakeEnvelopes{envelopes: []esign.Envelope{
		{EnvelopeID: "env-1", Status: "completed"},
		{EnvelopeID: "env-2", Status: "completed"},
	}}
	tracker := NewTracker(db, envelopes, testESignConfig(), nil)

	reqID, token := uuid.New(), uuid.New()
	sqlMock.ExpectQuery(`SELECT \* FROM "approval_requests" WHERE correlation_token = \$1`).
		WithArgs(token, 1).
		WillReturnRows(pendingRequestRows(reqID, token))

	_, err := tracker.Poll(context.Background(), token.String())
	assert.Error(t, err)
	var extErr *apperr.ExternalServiceError
	assert.ErrorAs(t, err, &extErr)
	// No write expectations were registered: stored state is untouched.
	assert.NoError(t, sqlMock.ExpectationsWereMet())
}

func TestTracker_Poll_ApprovesAndRunsActionOnce(t *testing.T) {
	db, sqlMock := setupTestDB(t)
	envelopes := &fakeEnvelopes{
		envelopes: []esign.Envelope{{EnvelopeID: "env-1", Status: esign.EnvelopeStatusCompleted}},
		formData:  map[string]string{"SPECIES": "wombat", "approved_by": "Dana Field"},
	}
	tracker := NewTracker(db, envelopes, testESignConfig(), nil)
	action := &recordingAction{}
	tracker.Bind(KindTag, action)

	reqID, token := uuid.New(), uuid.New()

	// First poll: pending row, completed envelope, winning compare-and-set.
	sqlMock.ExpectQuery(`SELECT \* FROM "approval_requests" WHERE correlation_token = \$1`).
		WithArgs(token, 1).
		WillReturnRows(pendingRequestRows(reqID, token))
	sqlMock.ExpectBegin()
	sqlMock.ExpectExec(`UPDATE "approval_requests" SET .* WHERE id = \$\d+ AND status = \$\d+`).
		WillReturnResult(sqlmock.NewResult(0, 1))
	sqlMock.ExpectCommit()

	req, err := tracker.Poll(context.Background(), token.String())
	assert.NoError(t, err)
	assert.Equal(t, StatusApproved, req.Status)
	assert.Equal(t, "env-1", req.EnvelopeID)
	assert.Equal(t, "Dana Field", req.GrantedBy)
	assert.Equal(t, 1, action.calls)
	assert.Equal(t, "wombat", action.formData["SPECIES"])

	// Second poll: terminal row short-circuits, provider untouched.
	sqlMock.ExpectQuery(`SELECT \* FROM "approval_requests" WHERE correlation_token = \$1`).
		WithArgs(token, 1).
		WillReturnRows(sqlmock.NewRows([]string{"id", "kind", "correlation_token", "status"}).
			AddRow(reqID, "TAG", token, "APPROVED"))

	again, err := tracker.Poll(context.Background(), token.String())
	assert.NoError(t, err)
	assert.Equal(t, StatusApproved, again.Status)
	assert.Equal(t, 1, action.calls)
	assert.Equal(t, 1, envelopes.listCalls)
	assert.NoError(t, sqlMock.ExpectationsWereMet())
}

func TestTracker_Poll_LostRaceDoesNotRunAction(t *testing.T) {
	db, sqlMock := setupTestDB(t)
	envelopes := &fakeEnvelopes{
		envelopes: []esign.Envelope{{EnvelopeID: "env-1", Status: esign.EnvelopeStatusCompleted}},
		formData:  map[string]string{"SPECIES": "wombat"},
	}
	tracker := NewTracker(db, envelopes, testESignConfig(), nil)
	action := &recordingAction{}
	tracker.Bind(KindTag, action)

	reqID, token := uuid.New(), uuid.New()
	sqlMock.ExpectQuery(`SELECT \* FROM "approval_requests" WHERE correlation_token = \$1`).
		WithArgs(token, 1).
		WillReturnRows(pendingRequestRows(reqID, token))
	sqlMock.ExpectBegin()
	sqlMock.ExpectExec(`UPDATE "approval_requests" SET .* WHERE id = \$\d+ AND status = \$\d+`).
		WillReturnResult(sqlmock.NewResult(0, 0))
	sqlMock.ExpectCommit()
	// Losing poll reloads the stored terminal state.
	sqlMock.ExpectQuery(`SELECT \* FROM "approval_requests" WHERE correlation_token = \$1`).
		WithArgs(token, 1).
		WillReturnRows(sqlmock.NewRows([]string{"id", "kind", "correlation_token", "status"}).
			AddRow(reqID, "TAG", token, "APPROVED"))

	req, err := tracker.Poll(context.Background(), token.String())
	assert.NoError(t, err)
	assert.Equal(t, StatusApproved, req.Status)
	assert.Equal(t, 0, action.calls)
	assert.NoError(t, sqlMock.ExpectationsWereMet())
}

func TestTracker_Poll_RejectsWithoutAction(t *testing.T) {
	db, sqlMock := setupTestDB(t)
	envelopes := &fakeEnvelopes{
		envelopes: []esign.Envelope{{EnvelopeID: "env-1", Status: esign.EnvelopeStatusDeclined}},
	}
	tracker := NewTracker(db, envelopes, testESignConfig(), nil)
	action := &recordingAction{}
	tracker.Bind(KindTag, action)

	reqID, token := uuid.New(), uuid.New()
	sqlMock.ExpectQuery(`SELECT \* FROM "approval_requests" WHERE correlation_token = \$1`).
		WithArgs(token, 1).
		WillReturnRows(pendingRequestRows(reqID, token))
	sqlMock.ExpectBegin()
	sqlMock.ExpectExec(`UPDATE "approval_requests" SET .* WHERE id = \$\d+ AND status = \$\d+`).
		WillReturnResult(sqlmock.NewResult(0, 1))
	sqlMock.ExpectCommit()

	req, err := tracker.Poll(context.Background(), token.String())
	assert.NoError(t, err)
	assert.Equal(t, StatusRejected, req.Status)
	assert.Equal(t, 0, action.calls)
	assert.Equal(t, 0, envelopes.formCalls)
	assert.NoError(t, sqlMock.ExpectationsWereMet())
}
