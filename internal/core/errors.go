package core

// Rejection messages carried in NOTIFY responses.
const (
	MsgInvalidParameters  = "invalid parameters"
	MsgMissingSeq         = "seq not found"
	MsgDuplicateSeq       = "seq already used"
	MsgUnauthenticated    = "please login to access"
	MsgAlreadyLoggedIn    = "user already logged in"
	MsgChatDismissed      = "chat room may be dismissed"
	MsgGameDismissed      = "game room may be dismissed"
	MsgUserDismissed      = "user may be dismissed"
	MsgNoAutohost         = "no autohost available"
	MsgPersistenceFailure = "operation timed out"
)
