package protocol

const (
	// Protocol/transport validation.
	ErrProtoBadRequest = "E_PROTO_BAD_REQUEST"
	ErrProtoVersion    = "E_PROTO_VERSION"

	// Match routing/state.
	ErrMatchFull     = "E_MATCH_FULL"
	ErrMatchOver     = "E_MATCH_OVER"
	ErrNotJoined     = "E_NOT_JOINED"
	ErrRateLimit     = "E_RATE_LIMIT"
	ErrCatalogDigest = "E_CATALOG_DIGEST"
	ErrInternal      = "E_INTERNAL"
)

var knownCodes = map[string]struct{}{
	ErrProtoBadRequest: {},
	ErrProtoVersion:    {},
	ErrMatchFull:       {},
	ErrMatchOver:       {},
	ErrNotJoined:       {},
	ErrRateLimit:       {},
	ErrCatalogDigest:   {},
	ErrInternal:        {},
}

func IsKnownCode(code string) bool {
	if code == "" {
		return true
	}
	_, ok := knownCodes[code]
	return ok
}
