package errors

var (
	// Auth
	ErrUsernameRequired   = InvalidArg("username is required")
	ErrPasswordRequired   = InvalidArg("password is required")
	ErrUsernameTaken      = AlreadyExists("username is already taken")
	ErrInvalidCredentials = Unauthorized("invalid credentials")
	ErrInvalidToken       = Unauthorized("invalid or expired token")

	// Conversations. The forbidden variant carries the same message as
	// not-found on purpose: a non-owner must not be able to tell the
	// two apart from the response body.
	ErrConversationNotFound  = NotFound("conversation not found")
	ErrConversationForbidden = Forbidden("conversation not found")

	// Messages
	ErrEmptyContent = InvalidArg("message content cannot be empty")
	ErrInvalidRole  = InvalidArg("role must be 'user' or 'assistant'")
)
