package config // package config loads application configuration from environment variables

import (
	"log"     // log is used to report configuration errors and halt execution
	"os"      // os provides access to environment variables
	"strconv" // strconv converts strings to other types
	"strings" // strings normalizes list and name values
	"time"    // time resolves the cutoff weekday and timezone
)

// Config holds all runtime configuration values.  Each field corresponds
// to an environment variable.  The types reflect how the values are used
// in the application: strings for identifiers and secrets, ints for
// durations and costs, and resolved time types for the weekly cutoff.
type Config struct {
	Env            string // application environment (e.g. "dev", "prod")
	Port           string // HTTP port to listen on
	DBUser         string // database username
	DBPass         string // database password (optional)
	DBHost         string // database host address
	DBPort         string // database port number
	DBName         string // database name
	JWTSecret      string // secret used to sign JWTs
	AccessTTLMin   int    // access token time-to-live in minutes
	RefreshTTLDays int    // refresh token time-to-live in days
	BcryptCost     int    // bcrypt cost for password hashing

	PassTTLMin    int            // default pass time-to-live in minutes
	CutoffWeekday time.Weekday   // day of week of the weekly cutoff
	CutoffHour    int            // hour of day (0-23) of the weekly cutoff
	CutoffLoc     *time.Location // reference timezone of the cutoff
	ExtraKinds    []string       // operator-configured extension pass kinds
	SweepSpec     string         // cron spec of the expiry sweep
}

// Load reads configuration values from environment variables and returns
// a Config.  Required variables are enforced by must() and missing values
// cause the program to exit with a fatal log message.  Access-control
// settings fall back to sensible defaults so a bare deployment only needs
// the database and JWT variables.
func Load() Config {
	return Config{
		Env:            must("APP_ENV"),
		Port:           must("APP_PORT"),
		DBUser:         must("DB_USER"),
		DBPass:         os.Getenv("DB_PASS"), // empty allowed
		DBHost:         must("DB_HOST"),
		DBPort:         must("DB_PORT"),
		DBName:         must("DB_NAME"),
		JWTSecret:      must("JWT_SECRET"),
		AccessTTLMin:   mustInt("ACCESS_TOKEN_TTL_MIN"),
		RefreshTTLDays: mustInt("REFRESH_TOKEN_TTL_DAYS"),
		BcryptCost:     mustInt("BCRYPT_COST"),

		PassTTLMin:    intOr("PASS_TTL_MIN", 10080), // a full week; the cutoff caps it anyway
		CutoffWeekday: weekday(strOr("CUTOFF_WEEKDAY", "SUNDAY")),
		CutoffHour:    intOr("CUTOFF_HOUR", 23),
		CutoffLoc:     location(strOr("CUTOFF_TZ", "UTC")),
		ExtraKinds:    csv(os.Getenv("PASS_KINDS_EXTRA")),
		SweepSpec:     strOr("SWEEP_CRON", "@every 10m"),
	}
}

// must retrieves the value of a required environment variable.  If the
// variable is unset or empty, the application logs a fatal error and exits.
func must(key string) string {
	v, ok := os.LookupEnv(key)
	if !ok || v == "" {
		log.Fatalf("missing required env var: %s", key)
	}
	return v
}

// mustInt is like must() but converts the retrieved string into an integer.
func mustInt(key string) int {
	s := must(key)
	n, err := strconv.Atoi(s)
	if err != nil {
		log.Fatalf("invalid int for %s: %q", key, s)
	}
	return n
}

func strOr(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func intOr(key string, def int) int {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		log.Fatalf("invalid int for %s: %q", key, v)
	}
	return n
}

// weekday resolves an English weekday name.  Unknown names are fatal:
// issuing passes against the wrong cutoff day would be silently wrong for
// a whole week.
func weekday(name string) time.Weekday {
	for d := time.Sunday; d <= time.Saturday; d++ {
		if strings.EqualFold(d.String(), name) {
			return d
		}
	}
	log.Fatalf("invalid weekday for CUTOFF_WEEKDAY: %q", name)
	return time.Sunday
}

// location resolves an IANA timezone name.
func location(name string) *time.Location {
	loc, err := time.LoadLocation(name)
	if err != nil {
		log.Fatalf("invalid timezone for CUTOFF_TZ: %q: %v", name, err)
	}
	return loc
}

// csv splits a comma-separated list, dropping blanks.
func csv(s string) []string {
	if s == "" {
		return nil
	}
	var out []string
	for _, p := range strings.Split(s, ",") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
