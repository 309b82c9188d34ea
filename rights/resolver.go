package rights

import (
	"context"
	"errors"
	"slices"
	"time"

	"github.com/zlnvch/folio/models"
	"github.com/zlnvch/folio/store"
	"go.uber.org/zap"
)

const (
	ReasonNoGrant           = "no grant found"
	ReasonExpired           = "grant expired"
	ReasonExhausted         = "limit exhausted"
	ReasonPrintNotPermitted = "printing not permitted"
)

// GrantSource reads the grant records kept by the access-control collaborator.
// Missing records are reported as store.ErrItemNotFound.
type GrantSource interface {
	GetAccessKey(ctx context.Context, accessKeyId string) (models.AccessKey, error)
	GetProfileGrant(ctx context.Context, profileId string) (models.ProfileGrant, error)
	GetDocumentFolder(ctx context.Context, documentId string) (string, error)
}

type Resolver struct {
	grants GrantSource
	logger *zap.Logger
	now    func() time.Time
}

func NewResolver(grants GrantSource, logger *zap.Logger) *Resolver {
	return &Resolver{grants: grants, logger: logger, now: time.Now}
}

// WithClock replaces the time source used to judge expiry.
func (r *Resolver) WithClock(now func() time.Time) *Resolver {
	r.now = now
	return r
}

// verdict is what one grant source contributes on its own.
type verdict struct {
	view      bool
	print     bool
	remaining int
	expired   bool
	exhausted bool
	// the profile's global flag answered the print question
	global bool
}

// Resolve merges every grant the caller presents into one decision. Grant problems
// are reported through Reason and PrintMessage, never as errors.
func (r *Resolver) Resolve(ctx context.Context, documentId string, creds models.CredentialContext) models.Rights {
	key := r.accessKeyVerdict(ctx, documentId, creds.AccessKeyId)
	profile := r.profileVerdict(ctx, documentId, creds.ProfileId)

	res := models.Rights{CanView: key.view || profile.view}
	if !res.CanView {
		res.Reason = ReasonNoGrant
		if key.expired || profile.expired {
			res.Reason = ReasonExpired
		}
		res.PrintMessage = res.Reason
		return res
	}

	// Print sources are additive; the first one that authorizes is the one debited.
	switch {
	case key.print:
		res.CanPrint = true
		res.Source = models.PrintSourceAccessKey
		res.RemainingPrints = key.remaining
		res.AccessKeyId = creds.AccessKeyId
	case profile.print && !profile.global:
		res.CanPrint = true
		res.Source = models.PrintSourceProfileLimit
		res.RemainingPrints = profile.remaining
		res.ProfileId = creds.ProfileId
	case profile.print:
		res.CanPrint = true
		res.Source = models.PrintSourceProfileGlobal
		res.RemainingPrints = models.Unlimited
		res.ProfileId = creds.ProfileId
	default:
		switch {
		case key.exhausted || profile.exhausted:
			res.PrintMessage = ReasonExhausted
		case key.expired || profile.expired:
			res.PrintMessage = ReasonExpired
		default:
			res.PrintMessage = ReasonPrintNotPermitted
		}
	}
	return res
}

func (r *Resolver) expired(expiresAt *time.Time) bool {
	return expiresAt != nil && !r.now().Before(*expiresAt)
}

func (r *Resolver) accessKeyVerdict(ctx context.Context, documentId, accessKeyId string) verdict {
	if accessKeyId == "" {
		return verdict{}
	}
	key, err := r.grants.GetAccessKey(ctx, accessKeyId)
	if err != nil {
		r.logLookup("access key", accessKeyId, err)
		return verdict{}
	}
	if key.DocumentId != documentId {
		return verdict{}
	}
	if r.expired(key.ExpiresAt) {
		return verdict{expired: true}
	}

	v := verdict{view: true}
	if key.PrintCount < key.PrintLimit {
		v.print = true
		v.remaining = key.PrintLimit - key.PrintCount
	} else {
		v.exhausted = true
	}
	return v
}

func (r *Resolver) profileVerdict(ctx context.Context, documentId, profileId string) verdict {
	if profileId == "" {
		return verdict{}
	}
	grant, err := r.grants.GetProfileGrant(ctx, profileId)
	if err != nil {
		r.logLookup("profile grant", profileId, err)
		return verdict{}
	}
	if r.expired(grant.ExpiresAt) {
		return verdict{expired: true}
	}

	if !slices.Contains(grant.AllowedDocumentIds, documentId) && !r.inFolders(ctx, documentId, grant.FolderIds) {
		return verdict{}
	}

	v := verdict{view: true}
	if limit, ok := grant.PerDocumentPrintLimits[documentId]; ok {
		// An explicit entry wins over the global flag, including zero
		if limit > 0 {
			v.print = true
			v.remaining = limit
		} else {
			v.exhausted = true
		}
		return v
	}
	v.print = grant.CanPrint
	v.global = grant.CanPrint
	return v
}

func (r *Resolver) inFolders(ctx context.Context, documentId string, folderIds []string) bool {
	if len(folderIds) == 0 {
		return false
	}
	folderId, err := r.grants.GetDocumentFolder(ctx, documentId)
	if err != nil {
		r.logLookup("document folder", documentId, err)
		return false
	}
	return slices.Contains(folderIds, folderId)
}

func (r *Resolver) logLookup(kind, id string, err error) {
	if errors.Is(err, store.ErrItemNotFound) {
		return
	}
	r.logger.Warn("grant lookup failed, treating as absent",
		zap.String("kind", kind),
		zap.String("id", id),
		zap.Error(err),
	)
}
