package debug

import (
	"errors"
	"fmt"

	"github.com/xhd2015/extension-dev/config"
	"github.com/xhd2015/extension-dev/debug/common"
	"github.com/xhd2015/extension-dev/debug/rdp"
	"github.com/xhd2015/extension-dev/log"
)

// ErrFlagLoaded is returned for browsers that load unpacked extensions from
// launch flags and therefore need no protocol install.
var ErrFlagLoaded = errors.New("browser loads unpacked extensions from launch flags")

// NewInstaller returns the install strategy for a browser target.
func NewInstaller(browser config.BrowserTarget, opts rdp.Options) (common.AddonInstaller, error) {
	switch {
	case browser.IsGecko():
		return rdp.NewClient(opts), nil
	case browser.IsChromium():
		return nil, fmt.Errorf("%s: %w", browser, ErrFlagLoaded)
	default:
		return nil, fmt.Errorf("unsupported browser: %s", browser)
	}
}

// NewSessionManager creates a new session manager based on the debugger type
func NewSessionManager(debuggerType string, logger log.Logger) (common.SessionManager, error) {
	switch debuggerType {
	case rdp.DebuggerType:
		return rdp.NewSessionManager(rdp.NewDefaultClient(logger), logger), nil
	default:
		return nil, fmt.Errorf("unsupported debugger type: %s", debuggerType)
	}
}
