package errs

const (
	ServerInternalError = 500

	ArgsError               = 1001
	NotConnectedError       = 1002
	SendFailedError         = 1003
	MalformedFrameError     = 1004
	ClosedError             = 1005
	NoConversationError     = 1006
	HistoryUnavailableError = 1007
	TokenInvalidError       = 1101
)

var (
	ErrInternalServer     = NewCodeError(ServerInternalError, "ServerInternalError")
	ErrArgs               = NewCodeError(ArgsError, "ArgsError")
	ErrNotConnected       = NewCodeError(NotConnectedError, "NotConnectedError")
	ErrSendFailed         = NewCodeError(SendFailedError, "SendFailedError")
	ErrMalformedFrame     = NewCodeError(MalformedFrameError, "MalformedFrameError")
	ErrClosed             = NewCodeError(ClosedError, "ClosedError")
	ErrNoConversation     = NewCodeError(NoConversationError, "NoConversationError")
	ErrHistoryUnavailable = NewCodeError(HistoryUnavailableError, "HistoryUnavailableError")
	ErrTokenInvalid       = NewCodeError(TokenInvalidError, "TokenInvalidError")
)
