package gateway

import (
	"fmt"
	"path/filepath"

	"github.com/aokihu/atom-message-gateway/internal/gwtypes"
)

// pluginEntries maps a channel type to its plugin executable, relative to
// the project root. Each channel type ships as its own small binary so a
// crashing plugin cannot take down the manager or any sibling channel.
var pluginEntries = map[gwtypes.ChannelType]string{
	gwtypes.ChannelTypeHTTP:     filepath.Join("cmd", "plugin-http", "plugin-http"),
	gwtypes.ChannelTypeTelegram: filepath.Join("cmd", "plugin-telegram", "plugin-telegram"),
}

// resolvePluginEntry returns the absolute path to the executable for
// channel type t, rooted at projectRoot.
func resolvePluginEntry(projectRoot string, t gwtypes.ChannelType) (string, error) {
	rel, ok := pluginEntries[t]
	if !ok {
		return "", fmt.Errorf("gateway: no plugin entry registered for channel type %q", t)
	}
	return filepath.Join(projectRoot, rel), nil
}
