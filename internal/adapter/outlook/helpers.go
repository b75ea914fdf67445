package outlook

import (
	"errors"

	abstractions "github.com/microsoft/kiota-abstractions-go"
	"github.com/microsoftgraph/msgraph-sdk-go/models/odataerrors"
	"golang.org/x/oauth2"

	"github.com/theakshaypant/calmirror/internal/core"
)

func derefStr(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

func derefBool(b *bool) bool {
	if b == nil {
		return false
	}
	return *b
}

// statusCode extracts the HTTP status of a Graph failure, 0 if there is none.
func statusCode(err error) int {
	var odataErr *odataerrors.ODataError
	if errors.As(err, &odataErr) {
		return odataErr.ResponseStatusCode
	}
	var apiErr *abstractions.ApiError
	if errors.As(err, &apiErr) {
		return apiErr.ResponseStatusCode
	}
	return 0
}

func errorCode(err error) string {
	var odataErr *odataerrors.ODataError
	if errors.As(err, &odataErr) {
		if main := odataErr.GetErrorEscaped(); main != nil {
			return derefStr(main.GetCode())
		}
	}
	return ""
}

// classify maps Graph failures onto provider error kinds.
func classify(op string, err error) error {
	switch code := errorCode(err); code {
	case "SyncStateNotFound", "SyncStateInvalid", "resyncRequired":
		return core.NewProviderError(core.KindCursorInvalidated, op, err)
	case "InvalidAuthenticationToken", "AuthenticationError":
		return core.NewProviderError(core.KindCredentials, op, err)
	}

	switch statusCode(err) {
	case 410:
		return core.NewProviderError(core.KindCursorInvalidated, op, err)
	case 401, 403:
		return core.NewProviderError(core.KindCredentials, op, err)
	}

	var retrieveErr *oauth2.RetrieveError
	if errors.As(err, &retrieveErr) {
		return core.NewProviderError(core.KindCredentials, op, err)
	}
	return core.NewProviderError(core.KindTransient, op, err)
}
