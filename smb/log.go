package smb

import "github.com/jfjallid/golog"

// log is this package's logger, obtained the same way main.go's
// golog.Get("smb-test") obtains its own — one named logger per
// component, used at Debug for routine connection/session bookkeeping
// and at Error for anything that tears down a Connection or Session.
var log = golog.Get("smb")
