package handler

import (
	"net/http"
	"time"

	"github.com/smogwatch/smogwatch/internal/airquality"
	"github.com/smogwatch/smogwatch/internal/airquality/gios"
	"github.com/smogwatch/smogwatch/internal/api/models"
	"github.com/smogwatch/smogwatch/internal/api/response"
	"github.com/smogwatch/smogwatch/internal/provider/resilience"
)

// OpsHandler handles operational endpoints.
type OpsHandler struct {
	version   string
	buildTime string
	service   *airquality.Service
}

// NewOpsHandler creates a new OpsHandler.
func NewOpsHandler(version, buildTime string, service *airquality.Service) *OpsHandler {
	return &OpsHandler{
		version:   version,
		buildTime: buildTime,
		service:   service,
	}
}

// HealthCheck handles GET /v1/ops/health - liveness check.
func (h *OpsHandler) HealthCheck(w http.ResponseWriter, r *http.Request) {
	health := models.Health{
		Status: models.HealthStatusOK,
		Time:   models.Timestamp(time.Now()),
		Details: map[string]interface{}{
			"version":   h.version,
			"buildTime": h.buildTime,
		},
	}
	response.JSON(w, r, http.StatusOK, health)
}

// ReadinessCheck handles GET /v1/ops/ready - readiness check. The service
// is ready when either the provider is reachable or a station cache exists
// to serve from.
func (h *OpsHandler) ReadinessCheck(w http.ResponseWriter, r *http.Request) {
	status := models.HealthStatusOK
	code := http.StatusOK

	if !h.service.ProviderReachable(r.Context()) {
		if h.service.Status().HasStations {
			status = models.HealthStatusDegraded
		} else {
			status = models.HealthStatusFail
			code = http.StatusServiceUnavailable
		}
	}

	health := models.Health{
		Status: status,
		Time:   models.Timestamp(time.Now()),
	}
	response.JSON(w, r, code, health)
}

// SystemStatus handles GET /v1/ops/status - provider and cache status.
// Provider health comes from the circuit breaker registry, so a tripped
// breaker shows up here without issuing new upstream requests.
func (h *OpsHandler) SystemStatus(w http.ResponseWriter, r *http.Request) {
	now := models.Timestamp(time.Now())
	online := h.service.ProviderReachable(r.Context())
	cache := h.service.Status()

	cacheStatus := models.HealthStatusOK
	if !cache.HasStations {
		cacheStatus = models.HealthStatusDegraded
	}

	providers := []models.ProviderStatus{}
	providerFail := false
	for _, health := range resilience.GlobalRegistry.GetAllHealth() {
		status := models.HealthStatusOK
		switch {
		case health.IsUnhealthy():
			status = models.HealthStatusFail
			providerFail = true
		case health.IsDegraded():
			status = models.HealthStatusDegraded
		}
		if health.Name == gios.ProviderName && !online {
			status = models.HealthStatusFail
			providerFail = true
		}

		ps := models.ProviderStatus{Provider: health.Name, Status: status}
		if health.LastSuccessAt != nil {
			ts := models.Timestamp(*health.LastSuccessAt)
			ps.LastSuccessAt = &ts
		}
		providers = append(providers, ps)
	}

	overall := models.HealthStatusOK
	switch {
	case providerFail && !cache.HasStations:
		overall = models.HealthStatusFail
	case providerFail || !cache.HasStations || !online:
		overall = models.HealthStatusDegraded
	}

	status := models.SystemStatus{
		Status: overall,
		Time:   now,
		Subsystems: []models.SubsystemStatus{
			{Name: "file-cache", Status: cacheStatus},
		},
		Providers: providers,
	}
	response.JSON(w, r, http.StatusOK, status)
}
