package service

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/gofiber/fiber/v3/client"
	"github.com/rs/zerolog/log"
	"golang.org/x/time/rate"

	"github.com/Nueylo/smartroad-inspector-ioqtoe/internal/model"
	"github.com/Nueylo/smartroad-inspector-ioqtoe/pkg/e"
)

const geocoderUserAgent = "smartroad-inspector/1.0"

// nominatimResponse is the subset of a Nominatim /reverse reply we read.
type nominatimResponse struct {
	DisplayName string `json:"display_name"`
	Error       string `json:"error"`
	Address     struct {
		Road        string `json:"road"`
		HouseNumber string `json:"house_number"`
		City        string `json:"city"`
		Town        string `json:"town"`
		Village     string `json:"village"`
	} `json:"address"`
}

// GeocodeService reverse-geocodes coordinates against a Nominatim-compatible
// endpoint. Outbound calls are throttled and results are cached.
type GeocodeService struct {
	baseURL string
	http    *client.Client
	limiter *rate.Limiter
	cache   *CacheService
}

// NewGeocodeService creates a geocoder calling baseURL at most rps times
// per second. cache may be nil.
func NewGeocodeService(baseURL string, rps float64, cache *CacheService) *GeocodeService {
	if rps <= 0 {
		rps = 1
	}
	return &GeocodeService{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    client.New(),
		limiter: rate.NewLimiter(rate.Limit(rps), 1),
		cache:   cache,
	}
}

// ReverseGeocode returns a human-readable address for the coordinates, at
// most model.MaxAddressLength characters long.
func (s *GeocodeService) ReverseGeocode(ctx context.Context, lat, lon float64) (string, error) {
	const op = "service.Geocode.ReverseGeocode"

	if err := CheckCoordinates(lat, lon); err != nil {
		return "", fmt.Errorf("%s: %w", op, err)
	}

	if s.cache != nil {
		addr, err := s.cache.GetAddress(ctx, lat, lon)
		if err != nil {
			log.Warn().Err(err).Msg("cache: get address error")
		} else if addr != "" {
			return addr, nil
		}
	}

	if err := s.limiter.Wait(ctx); err != nil {
		return "", e.WrapError(ctx, op, err)
	}

	resp, err := s.http.Get(s.baseURL+"/reverse", client.Config{
		Ctx:       ctx,
		UserAgent: geocoderUserAgent,
		Timeout:   5 * time.Second,
		Param: map[string]string{
			"format": "jsonv2",
			"lat":    strconv.FormatFloat(lat, 'f', 6, 64),
			"lon":    strconv.FormatFloat(lon, 'f', 6, 64),
		},
	})
	if err != nil {
		return "", fmt.Errorf("%s: %v: %w", op, err, e.ErrGeocode)
	}
	defer resp.Close()

	if resp.StatusCode() != 200 {
		return "", fmt.Errorf("%s: status %d: %w", op, resp.StatusCode(), e.ErrGeocode)
	}

	var body nominatimResponse
	if err := resp.JSON(&body); err != nil {
		return "", fmt.Errorf("%s: decode: %v: %w", op, err, e.ErrGeocode)
	}
	if body.Error != "" {
		return "", fmt.Errorf("%s: %s: %w", op, body.Error, e.ErrGeocode)
	}

	addr := model.ClampAddress(formatAddress(&body))
	if addr == "" {
		return "", fmt.Errorf("%s: empty address: %w", op, e.ErrGeocode)
	}

	if s.cache != nil {
		if err := s.cache.SetAddress(ctx, lat, lon, addr); err != nil {
			log.Warn().Err(err).Msg("cache: set address error")
		}
	}
	return addr, nil
}

// formatAddress builds "road house_number, city", falling back to the
// provider's display name when the structured parts are missing.
func formatAddress(r *nominatimResponse) string {
	street := strings.TrimSpace(strings.Join(nonEmpty(r.Address.Road, r.Address.HouseNumber), " "))
	city := r.Address.City
	if city == "" {
		city = r.Address.Town
	}
	if city == "" {
		city = r.Address.Village
	}

	parts := nonEmpty(street, city)
	if len(parts) == 0 || street == "" {
		return strings.TrimSpace(r.DisplayName)
	}
	return strings.Join(parts, ", ")
}

func nonEmpty(values ...string) []string {
	out := values[:0:0]
	for _, v := range values {
		if v = strings.TrimSpace(v); v != "" {
			out = append(out, v)
		}
	}
	return out
}
