// Package lifecycle implements C10: hook execution (pre, post, attach, and
// parent) around a setup pipeline run (C9), the non-zero-exit notification
// UX, and the final instance teardown. It calls into C9's setup.Run rather
// than re-implementing cache resolution or fabrication.
package lifecycle

import (
	"github.com/antimony-sandbox/antimony/usefulerror"
)

func wrapHookErr(msg string, err error) error {
	return usefulerror.Useful().
		WithCode(usefulerror.ErrCodeHook).
		WithHumanError(msg).
		Wrap(err)
}
