package sessionmock

import "context"

// Static returns a fixed user id; the zero value is logged out.
type Static string

func (s Static) UserID(ctx context.Context) (string, bool) { return string(s), s != "" }
