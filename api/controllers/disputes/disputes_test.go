package disputes

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ajme-abes/blockchain-marketplace-mvp-sub003/api/middleware"
	internaldisputes "github.com/ajme-abes/blockchain-marketplace-mvp-sub003/internal/disputes"
	"github.com/ajme-abes/blockchain-marketplace-mvp-sub003/internal/orders"
	"github.com/ajme-abes/blockchain-marketplace-mvp-sub003/pkg/db/models"
	"github.com/ajme-abes/blockchain-marketplace-mvp-sub003/pkg/enums"
	pkgerrors "github.com/ajme-abes/blockchain-marketplace-mvp-sub003/pkg/errors"
)

// fakeService records the last input of each call and returns err when set.
type fakeService struct {
	created      internaldisputes.CreateInput
	evidence     internaldisputes.EvidenceInput
	message      internaldisputes.MessageInput
	status       internaldisputes.UpdateStatusInput
	resolvedWith string
	err          error
}

func (f *fakeService) Create(ctx context.Context, input internaldisputes.CreateInput) (*models.Dispute, error) {
	f.created = input
	if f.err != nil {
		return nil, f.err
	}
	return &models.Dispute{ID: uuid.New(), OrderID: input.OrderID, RaisedBy: input.Actor.ID, Status: enums.DisputeStatusOpen}, nil
}

func (f *fakeService) AddEvidence(ctx context.Context, input internaldisputes.EvidenceInput) (*models.DisputeEvidence, error) {
	f.evidence = input
	if f.err != nil {
		return nil, f.err
	}
	return &models.DisputeEvidence{ID: uuid.New(), DisputeID: input.DisputeID}, nil
}

func (f *fakeService) AddMessage(ctx context.Context, input internaldisputes.MessageInput) (*models.DisputeMessage, error) {
	f.message = input
	if f.err != nil {
		return nil, f.err
	}
	return &models.DisputeMessage{ID: uuid.New(), DisputeID: input.DisputeID}, nil
}

func (f *fakeService) UpdateStatus(ctx context.Context, input internaldisputes.UpdateStatusInput) (*models.Dispute, error) {
	f.status = input
	if f.err != nil {
		return nil, f.err
	}
	return &models.Dispute{ID: input.DisputeID, Status: input.Status}, nil
}

func (f *fakeService) Resolve(ctx context.Context, disputeID uuid.UUID, actor orders.Actor, resolution string) (*models.Dispute, error) {
	f.resolvedWith = resolution
	if f.err != nil {
		return nil, f.err
	}
	return &models.Dispute{ID: disputeID, Status: enums.DisputeStatusResolved}, nil
}

func (f *fakeService) Cancel(ctx context.Context, disputeID uuid.UUID, actor orders.Actor) (*models.Dispute, error) {
	if f.err != nil {
		return nil, f.err
	}
	return &models.Dispute{ID: disputeID, Status: enums.DisputeStatusCancelled}, nil
}

func (f *fakeService) Get(ctx context.Context, disputeID uuid.UUID, actor orders.Actor) (*internaldisputes.DisputeDetail, error) {
	if f.err != nil {
		return nil, f.err
	}
	return &internaldisputes.DisputeDetail{Dispute: models.Dispute{ID: disputeID}}, nil
}

func (f *fakeService) ListByOrder(ctx context.Context, orderID uuid.UUID, actor orders.Actor) ([]models.Dispute, error) {
	if f.err != nil {
		return nil, f.err
	}
	return []models.Dispute{{ID: uuid.New(), OrderID: orderID}}, nil
}

func request(method, body string, params map[string]string, actorID uuid.UUID, role enums.ActorRole) *http.Request {
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, "/", nil)
	} else {
		req = httptest.NewRequest(method, "/", strings.NewReader(body))
	}
	rc := chi.NewRouteContext()
	for k, v := range params {
		rc.URLParams.Add(k, v)
	}
	ctx := context.WithValue(req.Context(), chi.RouteCtxKey, rc)
	ctx = middleware.WithUserID(ctx, actorID.String())
	ctx = middleware.WithRole(ctx, role)
	return req.WithContext(ctx)
}

func errorCode(t *testing.T, rec *httptest.ResponseRecorder) string {
	t.Helper()
	var env struct {
		Error struct {
			Code string `json:"code"`
		} `json:"error"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &env))
	return env.Error.Code
}

func TestCreateReturnsCreated(t *testing.T) {
	svc := &fakeService{}
	orderID := uuid.New()
	buyer := uuid.New()
	rec := httptest.NewRecorder()
	Create(svc, nil).ServeHTTP(rec, request(http.MethodPost, `{"order_id":"`+orderID.String()+`","reason":"damaged","description":"box crushed"}`, nil, buyer, enums.ActorRoleBuyer))

	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	assert.Equal(t, orderID, svc.created.OrderID)
	assert.Equal(t, buyer, svc.created.Actor.ID)
	assert.Equal(t, "damaged", svc.created.Reason)
}

func TestCreateSurfacesActiveDisputeConflict(t *testing.T) {
	svc := &fakeService{err: pkgerrors.New(pkgerrors.CodeConflict, "order already has an active dispute")}
	rec := httptest.NewRecorder()
	Create(svc, nil).ServeHTTP(rec, request(http.MethodPost, `{"order_id":"`+uuid.NewString()+`","reason":"late"}`, nil, uuid.New(), enums.ActorRoleBuyer))

	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.Equal(t, string(pkgerrors.CodeConflict), errorCode(t, rec))
}

func TestAddEvidenceParsesType(t *testing.T) {
	svc := &fakeService{}
	disputeID := uuid.New()
	rec := httptest.NewRecorder()
	AddEvidence(svc, nil).ServeHTTP(rec, request(http.MethodPost, `{"file_ref":"gs://evidence/1.png","evidence_type":"image"}`, map[string]string{"disputeId": disputeID.String()}, uuid.New(), enums.ActorRoleBuyer))

	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	assert.Equal(t, disputeID, svc.evidence.DisputeID)
	assert.Equal(t, enums.EvidenceTypeImage, svc.evidence.EvidenceType)
}

func TestAddEvidenceRejectsUnknownType(t *testing.T) {
	svc := &fakeService{}
	rec := httptest.NewRecorder()
	AddEvidence(svc, nil).ServeHTTP(rec, request(http.MethodPost, `{"file_ref":"x","evidence_type":"hologram"}`, map[string]string{"disputeId": uuid.NewString()}, uuid.New(), enums.ActorRoleBuyer))

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestAddMessageOnClosedDispute(t *testing.T) {
	svc := &fakeService{err: pkgerrors.New(pkgerrors.CodeDisputeClosed, "dispute is closed")}
	rec := httptest.NewRecorder()
	AddMessage(svc, nil).ServeHTTP(rec, request(http.MethodPost, `{"content":"hello"}`, map[string]string{"disputeId": uuid.NewString()}, uuid.New(), enums.ActorRoleProducer))

	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.Equal(t, string(pkgerrors.CodeDisputeClosed), errorCode(t, rec))
}

func TestUpdateStatusPassesRefund(t *testing.T) {
	svc := &fakeService{}
	disputeID := uuid.New()
	rec := httptest.NewRecorder()
	UpdateStatus(svc, nil).ServeHTTP(rec, request(http.MethodPatch, `{"status":"refunded","resolution":"partial refund","refund_amount_cents":2500}`, map[string]string{"disputeId": disputeID.String()}, uuid.New(), enums.ActorRoleAdmin))

	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, enums.DisputeStatusRefunded, svc.status.Status)
	assert.Equal(t, int64(2500), svc.status.RefundAmountCents)
	assert.Equal(t, enums.ActorRoleAdmin, svc.status.Actor.Role)
}

func TestUpdateStatusRejectsNegativeRefund(t *testing.T) {
	svc := &fakeService{}
	rec := httptest.NewRecorder()
	UpdateStatus(svc, nil).ServeHTTP(rec, request(http.MethodPatch, `{"status":"REFUNDED","refund_amount_cents":-1}`, map[string]string{"disputeId": uuid.NewString()}, uuid.New(), enums.ActorRoleAdmin))

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestResolveRequiresResolution(t *testing.T) {
	svc := &fakeService{}
	rec := httptest.NewRecorder()
	Resolve(svc, nil).ServeHTTP(rec, request(http.MethodPost, `{}`, map[string]string{"disputeId": uuid.NewString()}, uuid.New(), enums.ActorRoleBuyer))

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Empty(t, svc.resolvedWith)
}

func TestCancelRequiresDisputeID(t *testing.T) {
	svc := &fakeService{}
	rec := httptest.NewRecorder()
	Cancel(svc, nil).ServeHTTP(rec, request(http.MethodPost, "", map[string]string{"disputeId": "abc"}, uuid.New(), enums.ActorRoleBuyer))

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestListByOrder(t *testing.T) {
	svc := &fakeService{}
	orderID := uuid.New()
	rec := httptest.NewRecorder()
	ListByOrder(svc, nil).ServeHTTP(rec, request(http.MethodGet, "", map[string]string{"orderId": orderID.String()}, uuid.New(), enums.ActorRoleAdmin))

	require.Equal(t, http.StatusOK, rec.Code)
	var payload struct {
		Data []models.Dispute `json:"data"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &payload))
	require.Len(t, payload.Data, 1)
	assert.Equal(t, orderID, payload.Data[0].OrderID)
}
