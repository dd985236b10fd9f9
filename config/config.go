/*
Package config assembles the engine's explicit configuration.

Rate anchors, fare constants and lunch windows are fiscal-period data: they
are loaded once here and passed INTO the calculators at call time, never
read from ambient globals, so a per-period override is one struct swap and
tests stay deterministic.

Values come from the environment (a local .env file is honored via
godotenv), with defaults matching the current fiscal period.
*/
package config

import (
	"fmt"
	"os"
	"strconv"

	"github.com/joho/godotenv"
	"github.com/shopspring/decimal"

	"github.com/drillpay/settlement-engine/compensation"
	"github.com/drillpay/settlement-engine/schedule"
	"github.com/drillpay/settlement-engine/transport"
)

// Config is everything tunable about the engine.
type Config struct {
	Ledger compensation.Config
	Fare   transport.FareConfig

	GeocoderBaseURL string
	RouterBaseURL   string
}

// Load reads configuration from the environment. A missing .env file is
// fine; explicit environment variables always win.
func Load() (Config, error) {
	_ = godotenv.Load()

	lunchStandard, err := lunchWindow("LUNCH_STANDARD", "12:00-13:00")
	if err != nil {
		return Config{}, err
	}
	lunchBrunch, err := lunchWindow("LUNCH_BRUNCH", "10:30-11:30")
	if err != nil {
		return Config{}, err
	}

	cfg := Config{
		Ledger: compensation.Config{
			Rate: compensation.RateConfig{
				WeekdayBase:  envInt64("RATE_WEEKDAY_BASE", 100000),
				WeekendBase:  envInt64("RATE_WEEKEND_BASE", 150000),
				FullDayHours: envDecimal("RATE_FULL_DAY_HOURS", "8"),
			},
			LunchStandard: lunchStandard,
			LunchBrunch:   lunchBrunch,
		},
		Fare: transport.FareConfig{
			FlatFee:                  envInt64("TRANSPORT_FLAT_FEE", 4000),
			FlatDistanceKm:           envDecimal("TRANSPORT_FLAT_DISTANCE_KM", "30"),
			FuelPricePerLiter:        envDecimal("FUEL_PRICE_PER_LITER", "1600"),
			FuelEfficiencyKmPerLiter: envDecimal("FUEL_EFFICIENCY_KM_PER_LITER", "10"),
		},
		GeocoderBaseURL: envString("GEOCODER_BASE_URL", "https://nominatim.openstreetmap.org"),
		RouterBaseURL:   envString("ROUTER_BASE_URL", "https://router.project-osrm.org"),
	}

	// Fare divides by the efficiency; a zero or negative constant would
	// poison every calculation, so refuse to start with one.
	if !cfg.Fare.FuelEfficiencyKmPerLiter.IsPositive() {
		return Config{}, fmt.Errorf("FUEL_EFFICIENCY_KM_PER_LITER: must be positive, got %s",
			cfg.Fare.FuelEfficiencyKmPerLiter)
	}
	return cfg, nil
}

func envString(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envInt64(key string, fallback int64) int64 {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	n, err := strconv.ParseInt(v, 10, 64)
	if err != nil {
		return fallback
	}
	return n
}

func envDecimal(key, fallback string) decimal.Decimal {
	v := os.Getenv(key)
	if v == "" {
		v = fallback
	}
	d, err := decimal.NewFromString(v)
	if err != nil {
		d, _ = decimal.NewFromString(fallback)
	}
	return d
}

// lunchWindow parses "HH:MM-HH:MM".
func lunchWindow(key, fallback string) (schedule.LunchWindow, error) {
	v := envString(key, fallback)
	if len(v) != 11 || v[5] != '-' {
		return schedule.LunchWindow{}, fmt.Errorf("%s: want HH:MM-HH:MM, got %q", key, v)
	}
	return schedule.NewLunchWindow(v[:5], v[6:])
}
