package protocol

const (
	// Protocol/transport validation.
	ErrProtoBadRequest = "E_PROTO_BAD_REQUEST"
	ErrProtoVersion    = "E_PROTO_VERSION"

	// Command layer.
	ErrBadRequest     = "E_BAD_REQUEST"
	ErrUnknownPhrase  = "E_UNKNOWN_PHRASE"
	ErrUnknownCommand = "E_UNKNOWN_COMMAND"
	ErrBusy           = "E_BUSY"
	ErrFinished       = "E_FINISHED"
	ErrInternal       = "E_INTERNAL"
)

var knownCodes = map[string]struct{}{
	ErrProtoBadRequest: {},
	ErrProtoVersion:    {},
	ErrBadRequest:      {},
	ErrUnknownPhrase:   {},
	ErrUnknownCommand:  {},
	ErrBusy:            {},
	ErrFinished:        {},
	ErrInternal:        {},
}

func IsKnownCode(code string) bool {
	if code == "" {
		return true
	}
	_, ok := knownCodes[code]
	return ok
}
