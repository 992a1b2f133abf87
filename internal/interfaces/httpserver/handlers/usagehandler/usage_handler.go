package usagehandler

import (
	"net/http"
	"sort"

	"github.com/gin-gonic/gin"

	"keygate/internal/domain/dispatch"
	"keygate/internal/domain/key"
)

// UsageHandler exposes per-key usage snapshots for dashboards.
type UsageHandler struct {
	registry *dispatch.Registry
}

func NewUsageHandler(registry *dispatch.Registry) *UsageHandler {
	return &UsageHandler{registry: registry}
}

// ScopeUsage aggregates one scope's key snapshots.
type ScopeUsage struct {
	Scope       string         `json:"scope"`
	TotalKeys   int            `json:"total_keys"`
	Available   int            `json:"available"`
	CoolingDown int            `json:"cooling_down"`
	RateLimited int            `json:"rate_limited"`
	Keys        []key.Snapshot `json:"keys"`
}

// GetUsage handles GET /v1/keys/usage. With a scope query parameter it
// returns that scope's usage; without one it returns every registered scope.
func (h *UsageHandler) GetUsage(c *gin.Context) {
	if scope := c.Query("scope"); scope != "" {
		snapshots, err := h.registry.UsageSnapshot(scope)
		if err != nil {
			c.JSON(http.StatusNotFound, gin.H{"error": "unknown_scope", "message": err.Error()})
			return
		}
		c.JSON(http.StatusOK, aggregate(scope, snapshots))
		return
	}

	scopes := h.registry.Scopes()
	sort.Strings(scopes)
	result := make([]ScopeUsage, 0, len(scopes))
	for _, scope := range scopes {
		snapshots, err := h.registry.UsageSnapshot(scope)
		if err != nil {
			continue
		}
		result = append(result, aggregate(scope, snapshots))
	}
	c.JSON(http.StatusOK, gin.H{"scopes": result})
}

func aggregate(scope string, snapshots []key.Snapshot) ScopeUsage {
	usage := ScopeUsage{Scope: scope, TotalKeys: len(snapshots), Keys: snapshots}
	for _, s := range snapshots {
		switch {
		case s.Available:
			usage.Available++
		case !s.Enabled:
			// administratively off; counted only in total
		case s.DisabledUntil != nil && s.ConsecutiveFailures > 0:
			usage.CoolingDown++
		default:
			usage.RateLimited++
		}
	}
	return usage
}
