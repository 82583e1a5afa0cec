package interfaces

import (
	"encoding/json"
	"fmt"
	"log"
	"net"
	"net/http"
	"strings"

	"github.com/avika/achexport/internal/payment/application"
	"github.com/avika/achexport/internal/payment/domain"
	"go.uber.org/zap"
)

type AuthorizationHandler struct {
	service        application.AuthorizationServiceInterface
	trustedProxies []*net.IPNet
	respondJSON    RespondJSONFunc
	respondError   RespondErrorFunc
	logger         *zap.Logger
}

// NewAuthorizationHandler builds the payer-facing handler. X-Forwarded-For is
// only honoured when the connection comes from one of trustedProxies.
func NewAuthorizationHandler(
	service application.AuthorizationServiceInterface,
	trustedProxies []*net.IPNet,
	respondJSON RespondJSONFunc,
	respondError RespondErrorFunc,
	logger *zap.Logger,
) *AuthorizationHandler {
	if service == nil {
		log.Fatal("Service must not be nil")
		return nil
	}
	if respondJSON == nil || respondError == nil {
		log.Fatal("Respond functions must not be nil")
		return nil
	}
	return &AuthorizationHandler{
		service:        service,
		trustedProxies: trustedProxies,
		respondJSON:    respondJSON,
		respondError:   respondError,
		logger:         logger,
	}
}

// CreateAuthorization records a payer's consent and bank details. The consent
// IP is always taken from the connection, never from the body.
func (h *AuthorizationHandler) CreateAuthorization(w http.ResponseWriter, r *http.Request) {
	var input domain.AuthorizationInput
	decoder := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxRequestBodyBytes))
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(&input); err != nil {
		h.respondError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	input.ConsentIP = h.clientIP(r)

	result, err := h.service.CreateAuthorization(r.Context(), input)
	if err != nil {
		status, message, details := errorResponse(err, "Failed to record payment authorization")
		if status >= http.StatusInternalServerError {
			h.logger.Error("Error during payment authorization creation", zap.Error(err))
		}
		h.respondError(w, status, message, details)
		return
	}

	h.respondJSON(w, http.StatusCreated, map[string]interface{}{
		"status":  "success",
		"message": "Payment authorization recorded.",
		"data":    result,
	})
}

// clientIP returns the connection's address, or the nearest untrusted hop of
// X-Forwarded-For when the connection is from a trusted proxy.
func (h *AuthorizationHandler) clientIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		host = r.RemoteAddr
	}
	remote := net.ParseIP(host)
	if remote == nil {
		return ""
	}
	if !h.trusted(remote) {
		return remote.String()
	}

	hops := strings.Split(r.Header.Get("X-Forwarded-For"), ",")
	for i := len(hops) - 1; i >= 0; i-- {
		hop := net.ParseIP(strings.TrimSpace(hops[i]))
		if hop == nil {
			break
		}
		if !h.trusted(hop) {
			return hop.String()
		}
	}
	return remote.String()
}

func (h *AuthorizationHandler) trusted(ip net.IP) bool {
	for _, network := range h.trustedProxies {
		if network.Contains(ip) {
			return true
		}
	}
	return false
}

// ParseTrustedProxies reads a comma separated list of IPs and CIDR ranges.
func ParseTrustedProxies(list string) ([]*net.IPNet, error) {
	var networks []*net.IPNet
	for _, entry := range strings.Split(list, ",") {
		entry = strings.TrimSpace(entry)
		if entry == "" {
			continue
		}
		if !strings.Contains(entry, "/") {
			ip := net.ParseIP(entry)
			if ip == nil {
				return nil, fmt.Errorf("invalid trusted proxy %q", entry)
			}
			bits := 128
			if ip.To4() != nil {
				ip, bits = ip.To4(), 32
			}
			networks = append(networks, &net.IPNet{IP: ip, Mask: net.CIDRMask(bits, bits)})
			continue
		}
		_, network, err := net.ParseCIDR(entry)
		if err != nil {
			return nil, fmt.Errorf("invalid trusted proxy %q: %w", entry, err)
		}
		networks = append(networks, network)
	}
	return networks, nil
}
