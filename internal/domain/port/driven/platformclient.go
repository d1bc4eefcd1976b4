package driven

import (
	"context"
	"errors"

	"github.com/ericfisherdev/accountpilot/internal/domain/model"
)

// Dispatch pipeline error taxonomy. Soft errors (quota, rate limit) reschedule
// at the caller; permanent errors surface so the host can trigger
// re-authentication out of band.
var (
	// ErrCredentialExpired means the credential is past its validity stamp
	// and needs a refresh before any dispatch.
	ErrCredentialExpired = errors.New("credential expired")

	// ErrQuotaExceeded means the account's rolling-window quota for the
	// action type is exhausted. Soft: retry after the window moves.
	ErrQuotaExceeded = errors.New("action quota exceeded")

	// ErrRateLimited means the platform reported an explicit rate limit.
	// Soft: backoff is applied to the account, retry after a delay.
	ErrRateLimited = errors.New("rate limited by platform")

	// ErrPermanentAuth means the platform rejected the credential. Never
	// retried; the account needs re-authentication.
	ErrPermanentAuth = errors.New("platform rejected credentials")

	// ErrTransient covers network failures, timeouts, and 5xx responses
	// that survived the retry budget.
	ErrTransient = errors.New("transient platform error")

	// ErrProxyUnavailable means the account's bound egress proxy could not
	// be used. Fatal to the dispatch attempt.
	ErrProxyUnavailable = errors.New("egress proxy unavailable")
)

// PlatformClient is the driven port for dispatching one signed, proxied
// request to the platform. Implementations attach auth material from the
// decrypted secret, route through the account's proxy binding, retry
// transient failures internally, and classify the terminal result into the
// error taxonomy above.
type PlatformClient interface {
	Do(ctx context.Context, spec model.RequestSpec, secret model.Secret, proxy model.ProxyBinding) (*model.PlatformResponse, error)
}
