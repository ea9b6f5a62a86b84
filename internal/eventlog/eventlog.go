// Package eventlog is the producer side of the pipeline: it turns raw
// access events into usage log lines the loader can consume. Raw IP
// addresses are hashed before they touch disk.
package eventlog

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/pariz/gountries"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"countpress/internal/config"
	"countpress/internal/pkg/geoip"
	"countpress/internal/usage"
)

// Event is one raw access event as observed by the application. The IP
// address is still in the clear here; Record hashes it.
type Event struct {
	Time             time.Time
	IP               string
	UserAgent        string
	CanonicalURL     string
	ContextID        int64
	SubmissionID     int64
	RepresentationID int64
	AssocType        usage.AssocType
	AssocID          int64
	FileType         usage.FileType
	InstitutionIDs   []int64
}

// Recorder appends usage events to the day's log file in the stage
// directory. Safe for concurrent use; writes are serialized.
type Recorder struct {
	cfg       *config.Config
	logger    *slog.Logger
	mu        sync.Mutex
	countries *gountries.Query
	titler    cases.Caser
}

// NewRecorder creates a recorder writing under the configured stage
// directory, creating it if needed.
func NewRecorder(cfg *config.Config, logger *slog.Logger) (*Recorder, error) {
	if err := os.MkdirAll(cfg.StageDir(), 0o755); err != nil {
		return nil, fmt.Errorf("eventlog: failed to create stage directory: %w", err)
	}
	return &Recorder{
		cfg:       cfg,
		logger:    logger,
		countries: gountries.New(),
		titler:    cases.Title(language.English),
	}, nil
}

// FileName returns the log file name for the given day. One file per
// calendar day (UTC); the loader only picks up files from closed days.
func FileName(t time.Time) string {
	return fmt.Sprintf("usage_events_%s.log", t.UTC().Format("20060102"))
}

// HashIP hashes an IP address with the site salt. The raw address is
// never stored; the hash is stable, so COUNTER dedup still works.
func HashIP(ip, salt string) string {
	hash := sha256.Sum256([]byte(fmt.Sprintf("%s.%s", salt, ip)))
	return hex.EncodeToString(hash[:])
}

// Record enriches one event with location data, hashes its IP and
// appends it as a JSON line to the day's log file.
func (r *Recorder) Record(ev Event) error {
	entry := usage.LogEntry{
		Time:             ev.Time.UTC().Format(usage.TimeLayout),
		IP:               HashIP(ev.IP, r.cfg.PrivateKey),
		UserAgent:        ev.UserAgent,
		CanonicalURL:     ev.CanonicalURL,
		ContextID:        ev.ContextID,
		SubmissionID:     ev.SubmissionID,
		RepresentationID: ev.RepresentationID,
		AssocType:        ev.AssocType,
		AssocID:          ev.AssocID,
		FileType:         ev.FileType,
		InstitutionIDs:   ev.InstitutionIDs,
	}
	if entry.InstitutionIDs == nil {
		entry.InstitutionIDs = []int64{}
	}

	loc := geoip.Lookup(ev.IP)
	if loc.Country != "" {
		if _, err := r.countries.FindCountryByAlpha(loc.Country); err == nil {
			entry.Country = loc.Country
			entry.Region = loc.Region
			if loc.City != "" {
				entry.City = r.titler.String(loc.City)
			}
		} else {
			r.logger.Warn("Dropping unrecognized country code",
				slog.String("country", loc.Country))
		}
	}

	line, err := json.Marshal(&entry)
	if err != nil {
		return fmt.Errorf("eventlog: failed to marshal entry: %w", err)
	}

	path := filepath.Join(r.cfg.StageDir(), FileName(ev.Time))

	r.mu.Lock()
	defer r.mu.Unlock()

	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("eventlog: failed to open %s: %w", path, err)
	}
	defer f.Close()

	if _, err := f.Write(append(line, '\n')); err != nil {
		return fmt.Errorf("eventlog: failed to append to %s: %w", path, err)
	}
	return nil
}
