package handlers

import (
	"encoding/json"
	"net/http"

	"github.com/scenariolabs/verdict/internal/version"
)

// VersionHandler returns build identification.
func VersionHandler(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]string{
		"name":    "verdict",
		"version": version.Version,
		"commit":  version.Commit,
		"date":    version.Date,
	})
}
