// Package botdetect classifies User-Agent strings against a device
// detector style bot database. Bot traffic is excluded from COUNTER
// counting entirely.
package botdetect

import (
	"embed"
	"fmt"
	"sync"

	"go.elara.ws/pcre"
	"gopkg.in/yaml.v3"
)

//go:embed database/bots.yml
var databaseFiles embed.FS

// BotEntry is one bot definition from the database.
type BotEntry struct {
	Regex    string `yaml:"regex"`
	Name     string `yaml:"name"`
	Category string `yaml:"category"`
	URL      string `yaml:"url"`
	Producer struct {
		Name string `yaml:"name"`
		URL  string `yaml:"url"`
	} `yaml:"producer"`
}

// Compiled regex cache
type regexCache struct {
	compiled map[string]*pcre.Regexp
	mutex    sync.RWMutex
}

func newRegexCache() *regexCache {
	return &regexCache{
		compiled: make(map[string]*pcre.Regexp),
	}
}

func (rc *regexCache) get(pattern string) (*pcre.Regexp, error) {
	rc.mutex.RLock()
	if regex, exists := rc.compiled[pattern]; exists {
		rc.mutex.RUnlock()
		return regex, nil
	}
	rc.mutex.RUnlock()

	rc.mutex.Lock()
	defer rc.mutex.Unlock()

	// Double-check pattern
	if regex, exists := rc.compiled[pattern]; exists {
		return regex, nil
	}

	regex, err := pcre.Compile(pattern)
	if err != nil {
		return nil, err
	}
	rc.compiled[pattern] = regex
	return regex, nil
}

// Detector matches user agents against the embedded bot database.
// Safe for concurrent use.
type Detector struct {
	bots  []BotEntry
	cache *regexCache
}

var (
	detector *Detector
	once     sync.Once
)

// NewDetector returns the shared detector, loading the database on first use.
func NewDetector() *Detector {
	once.Do(func() {
		detector = &Detector{cache: newRegexCache()}
		if data, err := databaseFiles.ReadFile("database/bots.yml"); err == nil {
			if err := yaml.Unmarshal(data, &detector.bots); err != nil {
				fmt.Printf("Error parsing bots.yml: %v\n", err)
			}
		}
	})
	return detector
}

// Detect returns the matching bot entry, or nil for human traffic.
// Entries are tried in database order; the first match wins.
func (d *Detector) Detect(userAgent string) *BotEntry {
	for i := range d.bots {
		regex, err := d.cache.get(d.bots[i].Regex)
		if err != nil {
			continue
		}
		if regex.MatchString(userAgent) {
			return &d.bots[i]
		}
	}
	return nil
}

// IsBot reports whether the user agent belongs to a known bot.
func (d *Detector) IsBot(userAgent string) bool {
	return d.Detect(userAgent) != nil
}
