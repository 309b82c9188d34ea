package rights_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/zlnvch/folio/models"
	"github.com/zlnvch/folio/rights"
	"github.com/zlnvch/folio/store"
	storemocks "github.com/zlnvch/folio/store/mocks"
	"go.uber.org/zap"
)

var now = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

func setupResolver() (*rights.Resolver, *storemocks.MockGrantStore) {
	grants := new(storemocks.MockGrantStore)
	r := rights.NewResolver(grants, zap.NewNop()).WithClock(func() time.Time { return now })
	return r, grants
}

func ptr(t time.Time) *time.Time { return &t }

func TestResolve_AdditiveGrants(t *testing.T) {
	r, grants := setupResolver()
	ctx := context.Background()

	grants.On("GetAccessKey", ctx, "key1").Return(models.AccessKey{Id: "key1", DocumentId: "doc1", PrintLimit: 2, PrintCount: 2}, nil)
	grants.On("GetProfileGrant", ctx, "prof1").Return(models.ProfileGrant{
		ProfileId:          "prof1",
		AllowedDocumentIds: []string{"doc1"},
		CanPrint:           true,
	}, nil)

	res := r.Resolve(ctx, "doc1", models.CredentialContext{AccessKeyId: "key1", ProfileId: "prof1"})

	assert.True(t, res.CanView)
	assert.True(t, res.CanPrint)
	assert.Equal(t, models.PrintSourceProfileGlobal, res.Source)
	assert.Equal(t, models.Unlimited, res.RemainingPrints)
	assert.Equal(t, "prof1", res.ProfileId)
	assert.Empty(t, res.PrintMessage)
}

func TestResolve_ExplicitZeroOverridesGlobal(t *testing.T) {
	r, grants := setupResolver()
	ctx := context.Background()

	grants.On("GetProfileGrant", ctx, "prof1").Return(models.ProfileGrant{
		AllowedDocumentIds:     []string{"doc1"},
		CanPrint:               true,
		PerDocumentPrintLimits: map[string]int{"doc1": 0},
	}, nil)

	res := r.Resolve(ctx, "doc1", models.CredentialContext{ProfileId: "prof1"})

	assert.True(t, res.CanView)
	assert.False(t, res.CanPrint)
	assert.Equal(t, rights.ReasonExhausted, res.PrintMessage)
}

func TestResolve_PerDocumentLimitOverridesGlobalFalse(t *testing.T) {
	r, grants := setupResolver()
	ctx := context.Background()

	grants.On("GetProfileGrant", ctx, "prof1").Return(models.ProfileGrant{
		AllowedDocumentIds:     []string{"doc1"},
		CanPrint:               false,
		PerDocumentPrintLimits: map[string]int{"doc1": 3},
	}, nil)

	res := r.Resolve(ctx, "doc1", models.CredentialContext{ProfileId: "prof1"})

	assert.True(t, res.CanPrint)
	assert.Equal(t, models.PrintSourceProfileLimit, res.Source)
	assert.Equal(t, 3, res.RemainingPrints)
}

func TestResolve_FolderGrantViewOnly(t *testing.T) {
	r, grants := setupResolver()
	ctx := context.Background()

	grants.On("GetProfileGrant", ctx, "prof1").Return(models.ProfileGrant{
		FolderIds:          []string{"F1"},
		AllowedDocumentIds: []string{},
		CanPrint:           false,
	}, nil)
	grants.On("GetDocumentFolder", ctx, "D1").Return("F1", nil)

	res := r.Resolve(ctx, "D1", models.CredentialContext{ProfileId: "prof1"})

	assert.True(t, res.CanView)
	assert.False(t, res.CanPrint)
	assert.Equal(t, rights.ReasonPrintNotPermitted, res.PrintMessage)
}

func TestResolve_DocumentOutsideGrant(t *testing.T) {
	r, grants := setupResolver()
	ctx := context.Background()

	grants.On("GetProfileGrant", ctx, "prof1").Return(models.ProfileGrant{
		FolderIds: []string{"F1"},
		CanPrint:  true,
	}, nil)
	grants.On("GetDocumentFolder", ctx, "D2").Return("F2", nil)

	res := r.Resolve(ctx, "D2", models.CredentialContext{ProfileId: "prof1"})

	assert.False(t, res.CanView)
	assert.False(t, res.CanPrint)
	assert.Equal(t, rights.ReasonNoGrant, res.Reason)
}

func TestResolve_ExpiredProfileGrantIsVoid(t *testing.T) {
	r, grants := setupResolver()
	ctx := context.Background()

	grants.On("GetProfileGrant", ctx, "prof1").Return(models.ProfileGrant{
		AllowedDocumentIds: []string{"doc1"},
		CanPrint:           true,
		ExpiresAt:          ptr(now.Add(-time.Minute)),
	}, nil)

	res := r.Resolve(ctx, "doc1", models.CredentialContext{ProfileId: "prof1"})

	assert.False(t, res.CanView)
	assert.False(t, res.CanPrint)
	assert.Equal(t, rights.ReasonExpired, res.Reason)
	assert.Equal(t, rights.ReasonExpired, res.PrintMessage)
	grants.AssertNotCalled(t, "GetDocumentFolder", mock.Anything, mock.Anything)
}

func TestResolve_ExpiredKeyStillLetsValidProfileView(t *testing.T) {
	r, grants := setupResolver()
	ctx := context.Background()

	grants.On("GetAccessKey", ctx, "key1").Return(models.AccessKey{
		DocumentId: "doc1", PrintLimit: 5, ExpiresAt: ptr(now.Add(-time.Hour)),
	}, nil)
	grants.On("GetProfileGrant", ctx, "prof1").Return(models.ProfileGrant{
		AllowedDocumentIds: []string{"doc1"},
		ExpiresAt:          ptr(now.Add(time.Hour)),
	}, nil)

	res := r.Resolve(ctx, "doc1", models.CredentialContext{AccessKeyId: "key1", ProfileId: "prof1"})

	assert.True(t, res.CanView)
	assert.False(t, res.CanPrint)
	assert.Equal(t, rights.ReasonExpired, res.PrintMessage)
}

func TestResolve_ExhaustedKey(t *testing.T) {
	r, grants := setupResolver()
	ctx := context.Background()

	grants.On("GetAccessKey", ctx, "key1").Return(models.AccessKey{DocumentId: "doc1", PrintLimit: 2, PrintCount: 2}, nil)

	res := r.Resolve(ctx, "doc1", models.CredentialContext{AccessKeyId: "key1"})

	assert.True(t, res.CanView)
	assert.False(t, res.CanPrint)
	assert.Equal(t, 0, res.RemainingPrints)
	assert.Equal(t, rights.ReasonExhausted, res.PrintMessage)
}

func TestResolve_KeyWithAllowanceIsDebitTarget(t *testing.T) {
	r, grants := setupResolver()
	ctx := context.Background()

	grants.On("GetAccessKey", ctx, "key1").Return(models.AccessKey{DocumentId: "doc1", PrintLimit: 3, PrintCount: 1}, nil)
	grants.On("GetProfileGrant", ctx, "prof1").Return(models.ProfileGrant{
		AllowedDocumentIds:     []string{"doc1"},
		PerDocumentPrintLimits: map[string]int{"doc1": 9},
	}, nil)

	res := r.Resolve(ctx, "doc1", models.CredentialContext{AccessKeyId: "key1", ProfileId: "prof1"})

	assert.True(t, res.CanPrint)
	assert.Equal(t, models.PrintSourceAccessKey, res.Source)
	assert.Equal(t, 2, res.RemainingPrints)
	assert.Equal(t, "key1", res.AccessKeyId)
	assert.Empty(t, res.ProfileId)
}

func TestResolve_KeyForAnotherDocument(t *testing.T) {
	r, grants := setupResolver()
	ctx := context.Background()

	grants.On("GetAccessKey", ctx, "key1").Return(models.AccessKey{DocumentId: "other", PrintLimit: 3}, nil)

	res := r.Resolve(ctx, "doc1", models.CredentialContext{AccessKeyId: "key1"})

	assert.False(t, res.CanView)
	assert.Equal(t, rights.ReasonNoGrant, res.Reason)
}

func TestResolve_Anonymous(t *testing.T) {
	r, grants := setupResolver()

	res := r.Resolve(context.Background(), "doc1", models.CredentialContext{})

	assert.False(t, res.CanView)
	assert.False(t, res.CanPrint)
	assert.Equal(t, rights.ReasonNoGrant, res.Reason)
	grants.AssertNotCalled(t, "GetAccessKey", mock.Anything, mock.Anything)
}

func TestResolve_LookupFailureTreatedAsAbsent(t *testing.T) {
	r, grants := setupResolver()
	ctx := context.Background()

	grants.On("GetAccessKey", ctx, "key1").Return(models.AccessKey{}, errors.New("connection refused"))
	grants.On("GetProfileGrant", ctx, "prof1").Return(models.ProfileGrant{}, store.ErrItemNotFound)

	res := r.Resolve(ctx, "doc1", models.CredentialContext{AccessKeyId: "key1", ProfileId: "prof1"})

	assert.False(t, res.CanView)
	assert.Equal(t, rights.ReasonNoGrant, res.Reason)
}
