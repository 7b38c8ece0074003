package handler

import "net/http"

// ConfigPresence is satisfied by *config.Config.
type ConfigPresence interface {
	Presence() map[string]bool
}

// HandleDebugConfig reports which configuration values are set. Values are
// never included.
//
// HTTP: GET /debug/config
func HandleDebugConfig(cfg ConfigPresence, gatewayMode string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		writeData(w, http.StatusOK, map[string]any{
			"gatewayMode": gatewayMode,
			"present":     cfg.Presence(),
		})
	}
}
