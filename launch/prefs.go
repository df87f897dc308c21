package launch

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

// firefoxDebugPrefs let the debugger server accept connections without a prompt.
var firefoxDebugPrefs = map[string]interface{}{
	"devtools.chrome.enabled":                    true,
	"devtools.debugger.remote-enabled":           true,
	"devtools.debugger.prompt-connection":        false,
	"xpinstall.signatures.required":              false,
	"browser.shell.checkDefaultBrowser":          false,
	"datareporting.policy.dataSubmissionEnabled": false,
}

// WriteFirefoxPrefs writes user.js into profileDir. prefs override the
// defaults needed for remote debugging.
func WriteFirefoxPrefs(profileDir string, prefs map[string]interface{}) (string, error) {
	if profileDir == "" {
		return "", &ConfigError{Field: "profile path"}
	}
	merged := make(map[string]interface{}, len(firefoxDebugPrefs)+len(prefs))
	for k, v := range firefoxDebugPrefs {
		merged[k] = v
	}
	for k, v := range prefs {
		merged[k] = v
	}

	keys := make([]string, 0, len(merged))
	for k := range merged {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var b strings.Builder
	for _, k := range keys {
		v, err := json.Marshal(merged[k])
		if err != nil {
			return "", fmt.Errorf("preference %s: %w", k, err)
		}
		fmt.Fprintf(&b, "user_pref(%q, %s);\n", k, v)
	}

	if err := os.MkdirAll(profileDir, 0755); err != nil {
		return "", fmt.Errorf("create profile dir: %w", err)
	}
	file := filepath.Join(profileDir, "user.js")
	if err := os.WriteFile(file, []byte(b.String()), 0644); err != nil {
		return "", err
	}
	return file, nil
}
